package routes

import (
	"github.com/vastrakart/vastra/internal/handler"
	"github.com/vastrakart/vastra/internal/handler/webhook"
)

// APIDeps contains dependencies for the JSON API routes
type APIDeps struct {
	// Orders (place, list, retrieve, status, address, returns, tracking)
	OrderHandler *handler.OrderHandler

	// Payments (gateway order creation, signature verification)
	PaymentHandler *handler.PaymentHandler

	// Health
	HealthHandler *handler.HealthHandler

	// AdminAPIKey guards administrative routes
	AdminAPIKey string
}

// WebhookDeps contains dependencies for webhook routes
type WebhookDeps struct {
	ShiprocketHandler *webhook.ShiprocketHandler
}
