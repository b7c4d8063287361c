package routes

import (
	"github.com/vastrakart/vastra/internal/middleware"
	"github.com/vastrakart/vastra/internal/router"
)

// RegisterAPIRoutes registers the order and payment JSON API.
// Administrative routes require the X-Admin-Key header.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	admin := middleware.RequireAdminKey(deps.AdminAPIKey)

	// Orders
	r.Post("/api/orders/place", deps.OrderHandler.Place)
	r.Get("/api/orders", deps.OrderHandler.List, admin)
	r.Get("/api/orders/my-orders", deps.OrderHandler.MyOrders)
	r.Get("/api/orders/track/{awb}", deps.OrderHandler.Track)
	r.Get("/api/orders/track-live/{awb}", deps.OrderHandler.Track)
	r.Get("/api/orders/{id}", deps.OrderHandler.Get)
	r.Patch("/api/orders/{id}/paid", deps.OrderHandler.MarkPaid, admin)
	r.Put("/api/orders/{id}/status", deps.OrderHandler.UpdateStatus, admin)
	r.Put("/api/orders/{id}/address", deps.OrderHandler.UpdateAddress)
	r.Delete("/api/orders/{id}", deps.OrderHandler.Delete, admin)

	// Returns
	r.Post("/api/orders/{id}/return", deps.OrderHandler.RequestReturn)
	r.Post("/api/orders/{id}/return/approve", deps.OrderHandler.ApproveReturn, admin)
	r.Post("/api/orders/{id}/return/reject", deps.OrderHandler.RejectReturn, admin)

	// Payments
	r.Post("/api/payment/razorpay/create-order", deps.PaymentHandler.CreateOrder)
	r.Post("/api/payment/razorpay/verify", deps.PaymentHandler.Verify)

	// Health
	r.Get("/healthz", deps.HealthHandler.Healthz)
}
