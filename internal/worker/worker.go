// Package worker retries shipment creation for orders whose synchronous
// carrier call failed during placement.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vastrakart/vastra/internal/domain"
	"github.com/vastrakart/vastra/internal/service"
	"github.com/vastrakart/vastra/internal/telemetry"
)

// Config holds worker configuration
type Config struct {
	// PollInterval is how often to look for flagged orders
	PollInterval time.Duration

	// MaxAttempts caps retries per order; beyond it the flag is cleared
	// and the order needs manual intervention
	MaxAttempts int

	// BatchSize is the maximum orders claimed per poll
	BatchSize int
}

// Worker polls for orders flagged shipment_pending and re-runs shipment
// creation for them. Claiming increments the attempt counter atomically, so
// multiple instances can run side by side.
type Worker struct {
	config  Config
	store   domain.OrderStore
	orders  *service.OrderService
	logger  *slog.Logger
	metrics *telemetry.BusinessMetrics
}

// NewWorker creates a new shipment retry worker
func NewWorker(store domain.OrderStore, orders *service.OrderService, config Config, logger *slog.Logger, metrics *telemetry.BusinessMetrics) *Worker {
	if config.PollInterval == 0 {
		config.PollInterval = time.Minute
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 5
	}
	if config.BatchSize == 0 {
		config.BatchSize = 10
	}

	return &Worker{
		config:  config,
		store:   store,
		orders:  orders,
		logger:  logger,
		metrics: metrics,
	}
}

// Start begins processing until the context is cancelled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("shipment retry worker starting",
		"poll_interval", w.config.PollInterval,
		"max_attempts", w.config.MaxAttempts,
		"batch_size", w.config.BatchSize,
	)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("shipment retry worker shutting down")
			return ctx.Err()

		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

// processBatch claims a batch of flagged orders and retries each one.
func (w *Worker) processBatch(ctx context.Context) {
	claimed, err := w.store.ClaimPendingShipments(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to claim pending shipments", "error", err)
		return
	}
	if len(claimed) == 0 {
		return
	}

	w.logger.Info("retrying pending shipments", "count", len(claimed))

	for i := range claimed {
		order := &claimed[i]
		w.retryShipment(ctx, order)
	}
}

func (w *Worker) retryShipment(ctx context.Context, order *domain.Order) {
	logger := w.logger.With("order_id", order.ID, "attempt", order.ShipmentAttempts)

	if w.metrics != nil {
		w.metrics.ShipmentRetries.Inc()
	}

	retryCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := w.orders.CreateShipmentForOrder(retryCtx, order, "retry")
	if err == nil {
		logger.Info("pending shipment created on retry")
		return
	}

	if domain.IsCode(err, domain.ECONFLICT) {
		// Another path already shipped this order; clear the flag.
		logger.Info("order already shipped, clearing retry flag")
		if clearErr := w.store.SetShipmentPending(ctx, order.ID, false); clearErr != nil {
			logger.Error("failed to clear retry flag", "error", clearErr)
		}
		return
	}

	logger.Warn("shipment retry failed", "error", err)
	telemetry.CaptureError(err, map[string]interface{}{
		"order_id": order.ID.String(),
		"attempt":  order.ShipmentAttempts,
	})

	if order.ShipmentAttempts >= w.config.MaxAttempts {
		logger.Error("shipment retry attempts exhausted, manual intervention needed")
		if clearErr := w.store.SetShipmentPending(ctx, order.ID, false); clearErr != nil {
			logger.Error("failed to clear retry flag", "error", clearErr)
		}
	}
}
