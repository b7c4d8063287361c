package handler

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/vastrakart/vastra/internal/domain"
	"github.com/vastrakart/vastra/internal/service"
)

// PaymentHandler exposes the payment gateway operations.
type PaymentHandler struct {
	orders *service.OrderService
}

// NewPaymentHandler creates a new payment handler.
func NewPaymentHandler(orders *service.OrderService) *PaymentHandler {
	return &PaymentHandler{orders: orders}
}

type createPaymentOrderRequest struct {
	TotalAmount float64 `json:"totalAmount" validate:"required,gt=0"`
	Receipt     string  `json:"receipt"`
}

// CreateOrder handles POST /api/payment/razorpay/create-order.
func (h *PaymentHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createPaymentOrderRequest
	if err := Decode(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		ErrorResponse(w, r, validationError("payment.create_order", err))
		return
	}

	order, err := h.orders.CreatePaymentOrder(r.Context(), req.TotalAmount, req.Receipt)
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"order": map[string]interface{}{
			"id":       order.ID,
			"amount":   order.AmountPaise,
			"currency": order.Currency,
			"status":   order.Status,
		},
	})
}

type verifyPaymentRequest struct {
	OrderID           string `json:"orderId" validate:"required"`
	RazorpayOrderID   string `json:"razorpay_order_id" validate:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" validate:"required"`
	RazorpaySignature string `json:"razorpay_signature" validate:"required"`
}

// Verify handles POST /api/payment/razorpay/verify. A signature mismatch is
// a 400 with no state change.
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := Decode(r, &req); err != nil {
		ErrorResponse(w, r, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		ErrorResponse(w, r, validationError("payment.verify", err))
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		ErrorResponse(w, r, domain.Invalid("payment.verify", "orderId must be a valid UUID"))
		return
	}

	order, err := h.orders.VerifyPayment(r.Context(), service.VerifyPaymentParams{
		OrderID:          orderID,
		GatewayOrderID:   req.RazorpayOrderID,
		GatewayPaymentID: req.RazorpayPaymentID,
		Signature:        req.RazorpaySignature,
	})
	if err != nil {
		ErrorResponse(w, r, err)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{"success": true, "order": order})
}
