package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MockProvider is a mock payment provider for testing.
// Simulates gateway flows without calling the Razorpay API.
type MockProvider struct {
	// CreateOrderFunc allows customizing order creation behavior
	CreateOrderFunc func(ctx context.Context, params CreateOrderParams) (*GatewayOrder, error)

	// VerifySignatureFunc allows customizing verification behavior
	VerifySignatureFunc func(orderID, paymentID, signature string) error

	// RefundFunc allows customizing refund behavior
	RefundFunc func(ctx context.Context, params RefundParams) (*Refund, error)

	// Orders stores created gateway orders for retrieval
	Orders map[string]*GatewayOrder

	// CallLog tracks method calls for test assertions
	CallLog []string
}

// Compile-time check that MockProvider implements Provider.
var _ Provider = (*MockProvider)(nil)

// NewMockProvider creates a new mock payment provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Orders:  make(map[string]*GatewayOrder),
		CallLog: []string{},
	}
}

// CreateOrder creates a mock gateway order.
func (m *MockProvider) CreateOrder(ctx context.Context, params CreateOrderParams) (*GatewayOrder, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateOrder(%.2f)", params.AmountRupees))

	if m.CreateOrderFunc != nil {
		return m.CreateOrderFunc(ctx, params)
	}

	order := &GatewayOrder{
		ID:          "order_" + uuid.New().String()[:12],
		AmountPaise: int64(params.AmountRupees * 100),
		Currency:    "INR",
		Status:      "created",
		CreatedAt:   time.Now(),
	}
	m.Orders[order.ID] = order
	return order, nil
}

// VerifySignature verifies a mock signature. Default behavior accepts
// everything; set VerifySignatureFunc to simulate mismatches.
func (m *MockProvider) VerifySignature(orderID, paymentID, signature string) error {
	m.CallLog = append(m.CallLog, fmt.Sprintf("VerifySignature(%s, %s)", orderID, paymentID))

	if m.VerifySignatureFunc != nil {
		return m.VerifySignatureFunc(orderID, paymentID, signature)
	}
	return nil
}

// Refund creates a mock refund.
func (m *MockProvider) Refund(ctx context.Context, params RefundParams) (*Refund, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("Refund(%s, %.2f)", params.PaymentID, params.AmountRupees))

	if m.RefundFunc != nil {
		return m.RefundFunc(ctx, params)
	}

	return &Refund{
		ID:          "rfnd_" + uuid.New().String()[:12],
		PaymentID:   params.PaymentID,
		AmountPaise: int64(params.AmountRupees * 100),
		Currency:    "INR",
		Status:      "processed",
		CreatedAt:   time.Now(),
	}, nil
}

// Calls returns the number of calls matching the given method prefix.
func (m *MockProvider) Calls(prefix string) int {
	n := 0
	for _, c := range m.CallLog {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}
