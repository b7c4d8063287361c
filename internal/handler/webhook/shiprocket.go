package webhook

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/vastrakart/vastra/internal/domain"
	"github.com/vastrakart/vastra/internal/handler"
	"github.com/vastrakart/vastra/internal/middleware"
	"github.com/vastrakart/vastra/internal/service"
	"github.com/vastrakart/vastra/internal/telemetry"
)

// APIKeyHeader carries the shared webhook secret configured in the carrier
// dashboard.
const APIKeyHeader = "x-api-key"

// ShiprocketHandler handles asynchronous carrier status callbacks.
//
// Response policy: 401 for a bad key, 500 for processing errors, 200 for
// everything else. Ignored events and processed events both return 200 so
// the carrier does not retry events we deliberately skipped.
type ShiprocketHandler struct {
	orders *service.OrderService
	config ShiprocketWebhookConfig
}

// ShiprocketWebhookConfig contains configuration for webhook handling
type ShiprocketWebhookConfig struct {
	// Token is the shared secret the carrier sends in the x-api-key header
	Token string

	// Metrics is optional
	Metrics *telemetry.BusinessMetrics
}

// NewShiprocketHandler creates a new carrier webhook handler.
func NewShiprocketHandler(orders *service.OrderService, config ShiprocketWebhookConfig) *ShiprocketHandler {
	return &ShiprocketHandler{orders: orders, config: config}
}

type webhookPayload struct {
	AWB           string `json:"awb"`
	CurrentStatus string `json:"current_status"`
}

// HandleWebhook processes one carrier callback.
func (h *ShiprocketHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	logger := middleware.GetLogger(r.Context())

	defer func() {
		if h.config.Metrics != nil {
			h.config.Metrics.WebhookLatency.Observe(time.Since(start).Seconds())
		}
	}()

	key := r.Header.Get(APIKeyHeader)
	if h.config.Token == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.config.Token)) != 1 {
		logger.Warn("webhook rejected, bad api key")
		handler.ErrorResponse(w, r, domain.Unauthorized("webhook.auth", "invalid api key"))
		return
	}

	var payload webhookPayload
	if err := handler.Decode(r, &payload); err != nil {
		// Malformed carrier payloads are acknowledged, not retried.
		logger.Warn("webhook payload unreadable", "error", err)
		handler.JSON(w, http.StatusOK, map[string]interface{}{"success": true})
		return
	}

	logger.Info("carrier webhook received", "awb", payload.AWB, "status", payload.CurrentStatus)

	if payload.AWB == "" {
		handler.JSON(w, http.StatusOK, map[string]interface{}{"success": true})
		return
	}

	if err := h.orders.ProcessReturnEvent(r.Context(), payload.AWB, payload.CurrentStatus); err != nil {
		logger.Error("webhook processing failed", "awb", payload.AWB, "error", err)
		if h.config.Metrics != nil {
			h.config.Metrics.WebhookFailed.Inc()
		}
		telemetry.CaptureError(err, map[string]interface{}{
			"awb":    payload.AWB,
			"status": payload.CurrentStatus,
		})
		handler.ErrorResponse(w, r, domain.Internal(err, "webhook.process", "failed to process carrier event"))
		return
	}

	handler.JSON(w, http.StatusOK, map[string]interface{}{"success": true})
}
