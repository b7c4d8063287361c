package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vastrakart/vastra/internal"
	"github.com/vastrakart/vastra/internal/handler"
	"github.com/vastrakart/vastra/internal/handler/webhook"
	"github.com/vastrakart/vastra/internal/middleware"
	"github.com/vastrakart/vastra/internal/payment"
	"github.com/vastrakart/vastra/internal/postgres"
	"github.com/vastrakart/vastra/internal/router"
	"github.com/vastrakart/vastra/internal/routes"
	"github.com/vastrakart/vastra/internal/service"
	"github.com/vastrakart/vastra/internal/shipment"
	"github.com/vastrakart/vastra/internal/telemetry"
	"github.com/vastrakart/vastra/internal/worker"
)

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize Sentry error tracking
	sentryCleanup, err := telemetry.InitSentry(telemetry.SentryConfig{
		DSN:              cfg.Sentry.DSN,
		Enabled:          cfg.Sentry.Enabled,
		Environment:      cfg.Sentry.Environment,
		Release:          cfg.Sentry.Release,
		SampleRate:       cfg.Sentry.SampleRate,
		TracesSampleRate: cfg.Sentry.TracesSampleRate,
		Debug:            cfg.Sentry.Debug,
	}, logger)
	if err != nil {
		return fmt.Errorf("sentry initialization failed: %w", err)
	}
	defer sentryCleanup()

	// Initialize database/sql connection for migrations
	logger.Info("Connecting to database...")
	sqlDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer sqlDB.Close()

	// Verify database connection
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	logger.Info("Database connection established")

	// Run migrations
	logger.Info("Running database migrations...")
	if err := internal.RunMigrations(sqlDB); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database migrations completed successfully")

	// Initialize pgx connection pool for application
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}
	defer pool.Close()

	// Initialize order store
	store := postgres.NewOrderStore(pool)

	// Initialize Razorpay payment provider
	logger.Info("Initializing Razorpay payment provider...")
	paymentProvider, err := payment.NewRazorpayProvider(payment.RazorpayConfig{
		KeyID:     cfg.Razorpay.KeyID,
		KeySecret: cfg.Razorpay.KeySecret,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Razorpay provider: %w", err)
	}

	// Initialize Shiprocket shipment gateway
	logger.Info("Initializing Shiprocket shipment gateway...")
	shipmentGateway, err := shipment.NewShiprocketGateway(shipment.ShiprocketConfig{
		Email:          cfg.Shiprocket.Email,
		Password:       cfg.Shiprocket.Password,
		BaseURL:        cfg.Shiprocket.BaseURL,
		PickupLocation: cfg.Shiprocket.PickupLocation,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Shiprocket gateway: %w", err)
	}

	// Business metrics
	businessMetrics := telemetry.NewBusinessMetrics("vastra")

	// Initialize order workflow service
	orders := service.NewOrderService(service.OrderServiceConfig{
		Store:    store,
		Shipment: shipmentGateway,
		Payment:  paymentProvider,
		Logger:   logger,
		Metrics:  businessMetrics,
		Warehouse: shipment.ShipmentAddress{
			Name:    cfg.Shiprocket.PickupName,
			Phone:   cfg.Shiprocket.PickupPhone,
			Address: cfg.Shiprocket.PickupAddress,
			City:    cfg.Shiprocket.PickupCity,
			State:   cfg.Shiprocket.PickupState,
			Pincode: cfg.Shiprocket.PickupPincode,
			Country: cfg.Shiprocket.PickupCountry,
		},
	})
	logger.Info("Order service initialized")

	// ==========================================================================
	// Initialize middleware and router
	// ==========================================================================

	metrics := middleware.NewMetrics("vastra")

	r := router.New(
		middleware.RequestID,
		metrics.Middleware,
		middleware.WithRequestLogger(logger),
		middleware.Recover,
	)

	// Metrics endpoint (protect via firewall in production)
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		metrics.Handler().ServeHTTP(w, req)
	})

	routes.RegisterAPIRoutes(r, routes.APIDeps{
		OrderHandler:   handler.NewOrderHandler(orders),
		PaymentHandler: handler.NewPaymentHandler(orders),
		HealthHandler:  handler.NewHealthHandler(pool),
		AdminAPIKey:    cfg.AdminAPIKey,
	})
	routes.RegisterWebhookRoutes(r, routes.WebhookDeps{
		ShiprocketHandler: webhook.NewShiprocketHandler(orders, webhook.ShiprocketWebhookConfig{
			Token:   cfg.Shiprocket.WebhookToken,
			Metrics: businessMetrics,
		}),
	})

	// ==========================================================================
	// Start the shipment retry worker
	// ==========================================================================

	if cfg.Worker.Enabled {
		w := worker.NewWorker(store, orders, worker.Config{
			PollInterval: time.Duration(cfg.Worker.PollSeconds) * time.Second,
			MaxAttempts:  int(cfg.Worker.MaxAttempts),
			BatchSize:    int(cfg.Worker.BatchSize),
		}, logger, businessMetrics)

		go func() {
			if err := w.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("shipment retry worker stopped", "error", err)
			}
		}()
	}

	// ==========================================================================
	// Serve
	// ==========================================================================

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	logger.Info("Server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
