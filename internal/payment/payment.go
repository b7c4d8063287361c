package payment

import (
	"context"
	"time"
)

// Provider defines the interface for payment gateway operations.
// Implementations can use Razorpay, Stripe, etc.
type Provider interface {
	// CreateOrder creates a provider-side payment order for the given
	// rupee amount. The provider's unit is paise, the smallest currency
	// unit; conversion happens inside the adapter.
	CreateOrder(ctx context.Context, params CreateOrderParams) (*GatewayOrder, error)

	// VerifySignature recomputes the callback signature over
	// "orderID|paymentID" with the server-held secret and compares it to
	// the provided value. Returns ErrSignatureMismatch on any difference.
	VerifySignature(orderID, paymentID, signature string) error

	// Refund refunds a captured payment, fully or partially.
	Refund(ctx context.Context, params RefundParams) (*Refund, error)
}

// CreateOrderParams contains parameters for creating a gateway order.
type CreateOrderParams struct {
	// AmountRupees is the order total in rupees.
	AmountRupees float64

	// Currency code, defaults to "INR".
	Currency string

	// Receipt is our reference attached to the gateway order.
	Receipt string

	// Notes for filtering and reporting in the gateway dashboard.
	Notes map[string]string
}

// GatewayOrder represents a provider-side payment order.
type GatewayOrder struct {
	// ID is the gateway order id (order_...).
	ID string

	// AmountPaise is the amount in the smallest currency unit.
	AmountPaise int64

	Currency  string
	Status    string
	CreatedAt time.Time
}

// RefundParams contains parameters for creating a refund.
type RefundParams struct {
	// PaymentID is the gateway payment id (pay_...).
	PaymentID string

	// AmountRupees is the refund amount; 0 refunds the full payment.
	AmountRupees float64

	Notes map[string]string
}

// Refund represents a gateway refund.
type Refund struct {
	ID          string
	PaymentID   string
	AmountPaise int64
	Currency    string
	Status      string // created, processed, failed
	CreatedAt   time.Time
}
