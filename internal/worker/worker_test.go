package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/vastrakart/vastra/internal/domain"
	"github.com/vastrakart/vastra/internal/payment"
	"github.com/vastrakart/vastra/internal/service"
	"github.com/vastrakart/vastra/internal/shipment"
)

// retryStore is a minimal OrderStore fake covering only the paths the worker
// touches: claiming flagged orders, storing shipments, and flag updates.
type retryStore struct {
	claimed  []domain.Order
	flags    map[uuid.UUID]bool
	shipped  map[uuid.UUID]domain.ShipmentInfo
	claimErr error
}

var _ domain.OrderStore = (*retryStore)(nil)

func newRetryStore(claimed ...domain.Order) *retryStore {
	return &retryStore{
		claimed: claimed,
		flags:   make(map[uuid.UUID]bool),
		shipped: make(map[uuid.UUID]domain.ShipmentInfo),
	}
}

func (s *retryStore) ClaimPendingShipments(ctx context.Context, limit int) ([]domain.Order, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	if len(s.claimed) > limit {
		return s.claimed[:limit], nil
	}
	return s.claimed, nil
}

func (s *retryStore) SetShipment(ctx context.Context, id uuid.UUID, info domain.ShipmentInfo) (bool, error) {
	if _, ok := s.shipped[id]; ok {
		return false, nil
	}
	s.shipped[id] = info
	return true, nil
}

func (s *retryStore) SetShipmentPending(ctx context.Context, id uuid.UUID, pending bool) error {
	s.flags[id] = pending
	return nil
}

func (s *retryStore) Create(ctx context.Context, o *domain.Order) error { return nil }
func (s *retryStore) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return nil, domain.ErrOrderNotFound
}
func (s *retryStore) List(ctx context.Context) ([]domain.Order, error) { return nil, nil }
func (s *retryStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	return nil, nil
}
func (s *retryStore) FindByReturnAWB(ctx context.Context, awb string) (*domain.Order, error) {
	return nil, domain.ErrOrderNotFound
}
func (s *retryStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (bool, error) {
	return false, nil
}
func (s *retryStore) MarkPaid(ctx context.Context, id uuid.UUID, info domain.PaymentInfo) (bool, error) {
	return false, nil
}
func (s *retryStore) UpdateAddress(ctx context.Context, id uuid.UUID, addr domain.ShippingAddress, notes *string) error {
	return nil
}
func (s *retryStore) Delete(ctx context.Context, id uuid.UUID) error { return nil }
func (s *retryStore) RequestReturn(ctx context.Context, id uuid.UUID, rt domain.ReturnType, ev domain.ReturnEvent) (bool, error) {
	return false, nil
}
func (s *retryStore) ResolveReturnRequest(ctx context.Context, id uuid.UUID, to domain.ReturnStatus, awb string, ev domain.ReturnEvent) (bool, error) {
	return false, nil
}
func (s *retryStore) SetReturnPickupState(ctx context.Context, id uuid.UUID, state domain.ReturnPickupState, ev domain.ReturnEvent) error {
	return nil
}
func (s *retryStore) ClaimReturnCompletion(ctx context.Context, id uuid.UUID) (bool, error) {
	return false, nil
}
func (s *retryStore) ReleaseReturnCompletion(ctx context.Context, id uuid.UUID) error { return nil }
func (s *retryStore) CompleteReturn(ctx context.Context, id uuid.UUID, refund *domain.RefundInfo, replacementID *uuid.UUID, ev domain.ReturnEvent) (bool, error) {
	return false, nil
}

func pendingOrder(attempts int) domain.Order {
	return domain.Order{
		ID:    uuid.New(),
		Items: []domain.OrderItem{{ProductID: "prod-1", Name: "Kurta", Price: 799, Quantity: 1}},
		ShippingAddress: domain.ShippingAddress{
			Name: "Asha Rao", AddressLine1: "12 MG Road", City: "Bengaluru",
			State: "Karnataka", PostalCode: "560001", Country: "India",
		},
		PaymentMethod:    domain.PaymentMethodCOD,
		PaymentStatus:    domain.PaymentStatusPending,
		OrderStatus:      domain.OrderStatusProcessing,
		Subtotal:         799,
		Total:            848,
		ShipmentPending:  true,
		ShipmentAttempts: attempts,
	}
}

func newTestWorker(store *retryStore, gateway *shipment.MockGateway, maxAttempts int) *Worker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orders := service.NewOrderService(service.OrderServiceConfig{
		Store:    store,
		Shipment: gateway,
		Payment:  payment.NewMockProvider(),
		Logger:   logger,
	})
	return NewWorker(store, orders, Config{MaxAttempts: maxAttempts, BatchSize: 10}, logger, nil)
}

func TestProcessBatchCreatesShipmentOnRetry(t *testing.T) {
	order := pendingOrder(1)
	store := newRetryStore(order)
	gateway := shipment.NewMockGateway()
	w := newTestWorker(store, gateway, 5)

	w.processBatch(context.Background())

	assert.Equal(t, 1, gateway.Calls("CreateShipment"))
	info, ok := store.shipped[order.ID]
	assert.True(t, ok)
	assert.Equal(t, "AWB123456789", info.AWBCode)
}

func TestProcessBatchClearsFlagWhenAlreadyShipped(t *testing.T) {
	order := pendingOrder(1)
	order.Shipment = &domain.ShipmentInfo{OrderID: 1001, ShipmentID: 2001}
	store := newRetryStore(order)
	gateway := shipment.NewMockGateway()
	w := newTestWorker(store, gateway, 5)

	w.processBatch(context.Background())

	assert.Zero(t, gateway.Calls("CreateShipment"))
	cleared, ok := store.flags[order.ID]
	assert.True(t, ok)
	assert.False(t, cleared)
}

func TestProcessBatchKeepsFlagWhileAttemptsRemain(t *testing.T) {
	order := pendingOrder(2)
	store := newRetryStore(order)
	gateway := shipment.NewMockGateway()
	gateway.CreateShipmentFunc = func(ctx context.Context, params shipment.CreateShipmentParams) (*shipment.Shipment, error) {
		return nil, errors.New("carrier down")
	}
	w := newTestWorker(store, gateway, 5)

	w.processBatch(context.Background())

	_, touched := store.flags[order.ID]
	assert.False(t, touched, "flag stays set so the next poll retries")
}

func TestProcessBatchGivesUpAfterMaxAttempts(t *testing.T) {
	order := pendingOrder(5)
	store := newRetryStore(order)
	gateway := shipment.NewMockGateway()
	gateway.CreateShipmentFunc = func(ctx context.Context, params shipment.CreateShipmentParams) (*shipment.Shipment, error) {
		return nil, errors.New("carrier down")
	}
	w := newTestWorker(store, gateway, 5)

	w.processBatch(context.Background())

	cleared, ok := store.flags[order.ID]
	assert.True(t, ok, "exhausted orders are unflagged for manual intervention")
	assert.False(t, cleared)
}

func TestProcessBatchToleratesClaimFailure(t *testing.T) {
	store := newRetryStore()
	store.claimErr = errors.New("db down")
	gateway := shipment.NewMockGateway()
	w := newTestWorker(store, gateway, 5)

	w.processBatch(context.Background())

	assert.Zero(t, gateway.Calls("CreateShipment"))
}
