package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
	"github.com/shopspring/decimal"
)

// RazorpayProvider implements the Provider interface using the Razorpay API.
type RazorpayProvider struct {
	client    *razorpay.Client
	keySecret string
	logger    *slog.Logger
}

// RazorpayConfig contains configuration for the Razorpay provider.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string

	// Logger is optional; defaults to slog.Default().
	Logger *slog.Logger
}

// Compile-time check that RazorpayProvider implements Provider.
var _ Provider = (*RazorpayProvider)(nil)

// NewRazorpayProvider creates a new Razorpay payment provider.
func NewRazorpayProvider(cfg RazorpayConfig) (*RazorpayProvider, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, ErrMissingCredentials
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &RazorpayProvider{
		client:    razorpay.NewClient(cfg.KeyID, cfg.KeySecret),
		keySecret: cfg.KeySecret,
		logger:    logger,
	}, nil
}

// CreateOrder creates a Razorpay order for the given rupee amount.
func (p *RazorpayProvider) CreateOrder(ctx context.Context, params CreateOrderParams) (*GatewayOrder, error) {
	if params.AmountRupees <= 0 {
		return nil, ErrInvalidAmount
	}

	currency := params.Currency
	if currency == "" {
		currency = "INR"
	}

	amountPaise := rupeesToPaise(params.AmountRupees)

	logger := p.logger.With("receipt", params.Receipt, "amount_paise", amountPaise)
	logger.Info("creating razorpay order")

	data := map[string]interface{}{
		"amount":   amountPaise,
		"currency": currency,
	}
	if params.Receipt != "" {
		data["receipt"] = params.Receipt
	}
	if len(params.Notes) > 0 {
		notes := make(map[string]interface{}, len(params.Notes))
		for k, v := range params.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	body, err := p.client.Order.Create(data, nil)
	if err != nil {
		logger.Error("failed to create razorpay order", "error", err)
		return nil, ErrGateway("order create", err)
	}

	order := fromRazorpayOrder(body)
	logger.Info("razorpay order created", "gateway_order_id", order.ID)
	return order, nil
}

// VerifySignature recomputes HMAC-SHA256(secret, "orderID|paymentID") and
// compares it to the provided signature in constant time. Fails closed.
func (p *RazorpayProvider) VerifySignature(orderID, paymentID, signature string) error {
	if orderID == "" || paymentID == "" || signature == "" {
		return ErrSignatureMismatch
	}

	mac := hmac.New(sha256.New, []byte(p.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

// Refund refunds a captured payment. AmountRupees 0 refunds in full.
func (p *RazorpayProvider) Refund(ctx context.Context, params RefundParams) (*Refund, error) {
	logger := p.logger.With("gateway_payment_id", params.PaymentID)
	logger.Info("creating razorpay refund")

	data := map[string]interface{}{}
	if len(params.Notes) > 0 {
		notes := make(map[string]interface{}, len(params.Notes))
		for k, v := range params.Notes {
			notes[k] = v
		}
		data["notes"] = notes
	}

	amountPaise := int(rupeesToPaise(params.AmountRupees))

	body, err := p.client.Payment.Refund(params.PaymentID, amountPaise, data, nil)
	if err != nil {
		logger.Error("failed to create refund", "error", err)
		return nil, ErrGateway("refund", err)
	}

	refund := fromRazorpayRefund(body)
	logger.Info("razorpay refund created", "refund_id", refund.ID, "status", refund.Status)
	return refund, nil
}

// rupeesToPaise converts a rupee amount to paise without float drift.
func rupeesToPaise(rupees float64) int64 {
	return decimal.NewFromFloat(rupees).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// fromRazorpayOrder converts the SDK's map payload to our GatewayOrder.
func fromRazorpayOrder(body map[string]interface{}) *GatewayOrder {
	order := &GatewayOrder{
		ID:       stringField(body, "id"),
		Currency: stringField(body, "currency"),
		Status:   stringField(body, "status"),
	}
	order.AmountPaise = intField(body, "amount")
	if ts := intField(body, "created_at"); ts > 0 {
		order.CreatedAt = time.Unix(ts, 0)
	}
	return order
}

// fromRazorpayRefund converts the SDK's map payload to our Refund.
func fromRazorpayRefund(body map[string]interface{}) *Refund {
	refund := &Refund{
		ID:        stringField(body, "id"),
		PaymentID: stringField(body, "payment_id"),
		Currency:  stringField(body, "currency"),
		Status:    stringField(body, "status"),
	}
	refund.AmountPaise = intField(body, "amount")
	if ts := intField(body, "created_at"); ts > 0 {
		refund.CreatedAt = time.Unix(ts, 0)
	}
	return refund
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]interface{}, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}
