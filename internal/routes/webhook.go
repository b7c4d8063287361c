package routes

import (
	"github.com/vastrakart/vastra/internal/router"
)

// RegisterWebhookRoutes registers all webhook routes.
// These routes handle incoming webhooks from external services.
//
// Note: Webhook routes do NOT use the admin key middleware.
// Each webhook handler verifies its own shared-secret header.
func RegisterWebhookRoutes(r *router.Router, deps WebhookDeps) {
	r.Post("/api/shipping/shiprocket/webhook", deps.ShiprocketHandler.HandleWebhook)
}
