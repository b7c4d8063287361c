package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vastrakart/vastra/internal/domain"
	"github.com/vastrakart/vastra/internal/payment"
	"github.com/vastrakart/vastra/internal/service"
	"github.com/vastrakart/vastra/internal/shipment"
)

// memStore is an in-memory OrderStore with the same conditional-update
// semantics as the Postgres implementation.
type memStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]*domain.Order
}

var _ domain.OrderStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{orders: make(map[uuid.UUID]*domain.Order)}
}

// put seeds an order directly, bypassing Create defaults.
func (s *memStore) put(o *domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *o
	s.orders[o.ID] = &cp
}

func (s *memStore) Create(ctx context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	o.Version = 1
	cp := *o
	s.orders[o.ID] = &cp
	return nil
}

func (s *memStore) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) List(ctx context.Context) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.PaymentStatus == domain.PaymentStatusPaid || o.PaymentMethod == domain.PaymentMethodCOD {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *memStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.UserID != nil && *o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *memStore) FindByReturnAWB(ctx context.Context, awb string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ReturnAWB != "" && o.ReturnAWB == awb {
			cp := *o
			return &cp, nil
		}
	}
	return nil, domain.ErrOrderNotFound
}

func (s *memStore) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.OrderStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.OrderStatus != from {
		return false, nil
	}
	o.OrderStatus = to
	o.Version++
	return true, nil
}

func (s *memStore) MarkPaid(ctx context.Context, id uuid.UUID, info domain.PaymentInfo) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.PaymentStatus != domain.PaymentStatusPending {
		return false, nil
	}
	o.PaymentStatus = domain.PaymentStatusPaid
	o.Payment = &info
	o.Version++
	return true, nil
}

func (s *memStore) SetShipment(ctx context.Context, id uuid.UUID, info domain.ShipmentInfo) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.Shipment != nil {
		return false, nil
	}
	o.Shipment = &info
	o.ShipmentPending = false
	o.Version++
	return true, nil
}

func (s *memStore) SetShipmentPending(ctx context.Context, id uuid.UUID, pending bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.ShipmentPending = pending
	o.Version++
	return nil
}

func (s *memStore) ClaimPendingShipments(ctx context.Context, limit int) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if len(out) >= limit {
			break
		}
		if o.ShipmentPending && o.Shipment == nil && o.OrderStatus == domain.OrderStatusProcessing {
			o.ShipmentAttempts++
			o.Version++
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *memStore) UpdateAddress(ctx context.Context, id uuid.UUID, addr domain.ShippingAddress, notes *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.ShippingAddress = addr
	if notes != nil {
		o.Notes = *notes
	}
	o.Version++
	return nil
}

func (s *memStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[id]; !ok {
		return domain.ErrOrderNotFound
	}
	delete(s.orders, id)
	return nil
}

func (s *memStore) RequestReturn(ctx context.Context, id uuid.UUID, rt domain.ReturnType, ev domain.ReturnEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.ReturnStatus != domain.ReturnStatusNone {
		return false, nil
	}
	o.ReturnStatus = domain.ReturnStatusRequested
	o.ReturnType = rt
	o.ReturnHistory = append(o.ReturnHistory, ev)
	o.Version++
	return true, nil
}

func (s *memStore) ResolveReturnRequest(ctx context.Context, id uuid.UUID, to domain.ReturnStatus, awb string, ev domain.ReturnEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.ReturnStatus != domain.ReturnStatusRequested {
		return false, nil
	}
	o.ReturnStatus = to
	if to == domain.ReturnStatusApproved {
		o.ReturnAWB = awb
		o.ReturnPickupState = domain.ReturnPickupScheduled
	}
	o.ReturnHistory = append(o.ReturnHistory, ev)
	o.Version++
	return true, nil
}

func (s *memStore) SetReturnPickupState(ctx context.Context, id uuid.UUID, state domain.ReturnPickupState, ev domain.ReturnEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.ReturnPickupState = state
	o.ReturnHistory = append(o.ReturnHistory, ev)
	o.Version++
	return nil
}

func (s *memStore) ClaimReturnCompletion(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.ReturnStatus != domain.ReturnStatusApproved {
		return false, nil
	}
	o.ReturnStatus = domain.ReturnStatusCompleting
	o.Version++
	return true, nil
}

func (s *memStore) ReleaseReturnCompletion(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.ReturnStatus != domain.ReturnStatusCompleting {
		return domain.ErrOrderNotFound
	}
	o.ReturnStatus = domain.ReturnStatusApproved
	o.Version++
	return nil
}

func (s *memStore) CompleteReturn(ctx context.Context, id uuid.UUID, refund *domain.RefundInfo, replacementID *uuid.UUID, ev domain.ReturnEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || o.ReturnStatus != domain.ReturnStatusCompleting {
		return false, nil
	}
	o.ReturnStatus = domain.ReturnStatusCompleted
	if refund != nil {
		o.RefundInfo = refund
	}
	if replacementID != nil {
		o.ReplacementOrderID = replacementID
	}
	now := time.Now().UTC()
	o.ReturnResolvedAt = &now
	o.ReturnHistory = append(o.ReturnHistory, ev)
	o.Version++
	return true, nil
}

// ============================================================================
// Test fixtures
// ============================================================================

func newTestService(t *testing.T) (*service.OrderService, *memStore, *shipment.MockGateway, *payment.MockProvider) {
	t.Helper()

	store := newMemStore()
	gateway := shipment.NewMockGateway()
	billing := payment.NewMockProvider()

	svc := service.NewOrderService(service.OrderServiceConfig{
		Store:    store,
		Shipment: gateway,
		Payment:  billing,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Warehouse: shipment.ShipmentAddress{
			Name:    "Vastra Warehouse",
			Phone:   "9000000000",
			Address: "Plot 7, Industrial Area",
			City:    "Mumbai",
			State:   "Maharashtra",
			Pincode: "400001",
			Country: "India",
		},
	})
	return svc, store, gateway, billing
}

func validAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		Name:         "Asha Rao",
		Phone:        "9876543210",
		AddressLine1: "12 MG Road",
		City:         "Bengaluru",
		State:        "Karnataka",
		PostalCode:   "560001",
		Country:      "India",
	}
}

func validItems() []map[string]interface{} {
	return []map[string]interface{}{
		{"productId": "prod-1", "name": "Cotton Kurta", "price": 799.0, "quantity": 2.0},
	}
}

func placeParams(method domain.PaymentMethod) service.PlaceOrderParams {
	return service.PlaceOrderParams{
		Items:           validItems(),
		ShippingAddress: validAddress(),
		PaymentMethod:   method,
		Subtotal:        1598,
		ShippingCharges: 49,
		Tax:             80,
		Total:           1727,
	}
}

// seedOrder stores an order in a given fulfillment state for tests that
// start mid-workflow.
func seedOrder(store *memStore, mutate func(o *domain.Order)) *domain.Order {
	o := &domain.Order{
		ID:     uuid.New(),
		Items:  []domain.OrderItem{{ProductID: "prod-1", Name: "Cotton Kurta", Price: 799, Quantity: 2}},
		ShippingAddress: validAddress(),
		PaymentMethod:   domain.PaymentMethodCOD,
		PaymentStatus:   domain.PaymentStatusPending,
		OrderStatus:     domain.OrderStatusProcessing,
		Subtotal:        1598,
		Total:           1727,
		ReturnStatus:    domain.ReturnStatusNone,
		Version:         1,
		CreatedAt:       time.Now().UTC(),
	}
	if mutate != nil {
		mutate(o)
	}
	store.put(o)
	return o
}

// ============================================================================
// Placement
// ============================================================================

func TestPlaceOrderRejectsInvalidPincode(t *testing.T) {
	svc, store, gateway, _ := newTestService(t)

	for _, pin := range []string{"056001", "56001", "5600011", "56000a", ""} {
		params := placeParams(domain.PaymentMethodCOD)
		params.ShippingAddress.PostalCode = pin

		_, err := svc.PlaceOrder(context.Background(), params)

		assert.ErrorIs(t, err, domain.ErrInvalidPincode, "pin=%q", pin)
	}

	assert.Empty(t, store.orders, "rejected orders must not be persisted")
	assert.Zero(t, gateway.Calls("CreateShipment"))
}

func TestPlaceOrderValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	p := placeParams(domain.PaymentMethodCOD)
	p.Items = nil
	_, err := svc.PlaceOrder(ctx, p)
	assert.ErrorIs(t, err, domain.ErrEmptyItems)

	p = placeParams("")
	_, err = svc.PlaceOrder(ctx, p)
	assert.ErrorIs(t, err, domain.ErrMissingPaymentMethod)

	p = placeParams("UPI")
	_, err = svc.PlaceOrder(ctx, p)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	p = placeParams(domain.PaymentMethodCOD)
	p.ShippingAddress.AddressLine1 = ""
	_, err = svc.PlaceOrder(ctx, p)
	assert.ErrorIs(t, err, domain.ErrMissingAddress)

	p = placeParams(domain.PaymentMethodCOD)
	p.Total = 0
	_, err = svc.PlaceOrder(ctx, p)
	assert.ErrorIs(t, err, domain.ErrMissingAmounts)
}

func TestPlaceOrderNormalizesItemKeys(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	params := placeParams(domain.PaymentMethodRazorpay)
	params.Items = []map[string]interface{}{
		{"_id": "prod-7", "title": "Silk Saree", "amount": 2499.0, "qty": 1.0},
		{"id": "prod-8", "name": "Dupatta", "price": "349.50"},
	}

	result, err := svc.PlaceOrder(context.Background(), params)
	require.NoError(t, err)

	items := result.Order.Items
	require.Len(t, items, 2)
	assert.Equal(t, "prod-7", items[0].ProductID)
	assert.Equal(t, "Silk Saree", items[0].Name)
	assert.Equal(t, 2499.0, items[0].Price)
	assert.Equal(t, 1, items[0].Quantity)

	assert.Equal(t, "prod-8", items[1].ProductID)
	assert.Equal(t, 349.50, items[1].Price)
	assert.Equal(t, 1, items[1].Quantity, "missing quantity defaults to 1")
}

func TestPlaceOrderRejectsItemsWithoutIdentity(t *testing.T) {
	svc, store, _, _ := newTestService(t)

	params := placeParams(domain.PaymentMethodCOD)
	params.Items = []map[string]interface{}{{"price": 100.0}}

	_, err := svc.PlaceOrder(context.Background(), params)

	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	assert.Empty(t, store.orders)
}

func TestPlaceOrderCODCreatesShipmentSynchronously(t *testing.T) {
	svc, store, gateway, _ := newTestService(t)

	result, err := svc.PlaceOrder(context.Background(), placeParams(domain.PaymentMethodCOD))
	require.NoError(t, err)

	require.NotNil(t, result.Shipment)
	assert.Equal(t, "AWB123456789", result.Shipment.AWBCode)
	assert.Equal(t, 1, gateway.Calls("CreateShipment"))
	assert.Equal(t, 1, gateway.Calls("AssignCourier"))

	stored, err := store.Get(context.Background(), result.Order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Shipment)
	assert.False(t, stored.ShipmentPending)
	assert.Equal(t, domain.OrderStatusProcessing, stored.OrderStatus)
}

func TestPlaceOrderSurvivesShipmentFailure(t *testing.T) {
	svc, store, gateway, _ := newTestService(t)
	gateway.CreateShipmentFunc = func(ctx context.Context, params shipment.CreateShipmentParams) (*shipment.Shipment, error) {
		return nil, errors.New("carrier unavailable")
	}

	result, err := svc.PlaceOrder(context.Background(), placeParams(domain.PaymentMethodCOD))

	require.NoError(t, err, "a failed shipment must not fail the placement")
	assert.Nil(t, result.Shipment)
	assert.Equal(t, 1, gateway.Calls("CreateShipment"), "exactly one synchronous attempt")

	stored, err := store.Get(context.Background(), result.Order.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Shipment)
	assert.True(t, stored.ShipmentPending, "order must be flagged for retry")
	assert.Equal(t, domain.OrderStatusProcessing, stored.OrderStatus)
}

func TestPlaceOrderPrepaidSkipsShipment(t *testing.T) {
	svc, store, gateway, _ := newTestService(t)

	result, err := svc.PlaceOrder(context.Background(), placeParams(domain.PaymentMethodRazorpay))
	require.NoError(t, err)

	assert.Nil(t, result.Shipment)
	assert.Zero(t, gateway.Calls("CreateShipment"))

	stored, err := store.Get(context.Background(), result.Order.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Shipment)
	assert.False(t, stored.ShipmentPending)
}

func TestCreateShipmentForOrderRefusesDuplicate(t *testing.T) {
	svc, store, gateway, _ := newTestService(t)
	order := seedOrder(store, func(o *domain.Order) {
		o.Shipment = &domain.ShipmentInfo{OrderID: 1001, ShipmentID: 2001}
	})

	_, err := svc.CreateShipmentForOrder(context.Background(), order, "retry")

	assert.ErrorIs(t, err, domain.ErrShipmentExists)
	assert.Zero(t, gateway.Calls("CreateShipment"))
}

func TestCreateShipmentForOrderCancelsLoserOfRace(t *testing.T) {
	svc, store, gateway, _ := newTestService(t)
	order := seedOrder(store, nil)

	// Another writer stores a shipment between our gateway call and the
	// conditional update.
	gateway.GenerateLabelFunc = func(ctx context.Context, shipmentID int64) (*shipment.Label, error) {
		applied, err := store.SetShipment(context.Background(), order.ID, domain.ShipmentInfo{OrderID: 8888, ShipmentID: 9999})
		require.NoError(t, err)
		require.True(t, applied)
		return &shipment.Label{LabelURL: "https://labels.example.com/x.pdf"}, nil
	}

	_, err := svc.CreateShipmentForOrder(context.Background(), order, "placement")

	assert.ErrorIs(t, err, domain.ErrShipmentExists)
	assert.Equal(t, 1, gateway.Calls("CancelShipment"), "the duplicate carrier shipment must be cancelled")

	stored, err := store.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8888), stored.Shipment.OrderID, "the winner's shipment survives")
}

func TestCreateShipmentForOrderKeepsShipmentWhenLabelFails(t *testing.T) {
	svc, store, gateway, _ := newTestService(t)
	order := seedOrder(store, nil)
	gateway.GenerateLabelFunc = func(ctx context.Context, shipmentID int64) (*shipment.Label, error) {
		return nil, errors.New("label service down")
	}

	info, err := svc.CreateShipmentForOrder(context.Background(), order, "placement")

	require.NoError(t, err)
	assert.Equal(t, "AWB123456789", info.AWBCode)
	assert.Empty(t, info.LabelURL)
}

// ============================================================================
// Payment
// ============================================================================

func TestVerifyPaymentMismatchFailsClosed(t *testing.T) {
	svc, store, _, billing := newTestService(t)
	order := seedOrder(store, func(o *domain.Order) {
		o.PaymentMethod = domain.PaymentMethodRazorpay
	})
	billing.VerifySignatureFunc = func(orderID, paymentID, signature string) error {
		return payment.ErrSignatureMismatch
	}

	params := service.VerifyPaymentParams{
		OrderID:          order.ID,
		GatewayOrderID:   "order_abc",
		GatewayPaymentID: "pay_def",
		Signature:        "forged",
	}

	// Repeated invalid callbacks never mutate the order.
	for i := 0; i < 3; i++ {
		_, err := svc.VerifyPayment(context.Background(), params)
		assert.ErrorIs(t, err, domain.ErrSignatureMismatch)
	}

	stored, err := store.Get(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, stored.PaymentStatus)
	assert.Nil(t, stored.Payment)
}

func TestVerifyPaymentMarksPaidOnce(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	order := seedOrder(store, func(o *domain.Order) {
		o.PaymentMethod = domain.PaymentMethodRazorpay
	})

	params := service.VerifyPaymentParams{
		OrderID:          order.ID,
		GatewayOrderID:   "order_abc",
		GatewayPaymentID: "pay_def",
		Signature:        "valid",
	}

	paid, err := svc.VerifyPayment(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, paid.PaymentStatus)
	require.NotNil(t, paid.Payment)
	assert.Equal(t, "razorpay", paid.Payment.Gateway)
	assert.Equal(t, "pay_def", paid.Payment.PaymentID)

	// Redelivery of the same callback is a safe no-op.
	again, err := svc.VerifyPayment(context.Background(), params)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, again.PaymentStatus)

	// A different payment id against an already-paid order is a conflict.
	params.GatewayPaymentID = "pay_other"
	_, err = svc.VerifyPayment(context.Background(), params)
	assert.ErrorIs(t, err, domain.ErrPaymentNotPending)
}

func TestMarkPaidRecordsCODCollection(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	order := seedOrder(store, nil)

	paid, err := svc.MarkPaid(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, paid.PaymentStatus)
	assert.Equal(t, "cod", paid.Payment.Gateway)

	_, err = svc.MarkPaid(context.Background(), order.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentNotPending)
}

// ============================================================================
// Status transitions
// ============================================================================

func TestUpdateStatusRejectsUnknownStatus(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	order := seedOrder(store, nil)

	_, err := svc.UpdateStatus(context.Background(), order.ID, "teleported")

	assert.ErrorIs(t, err, domain.ErrInvalidStatus)
	stored, _ := store.Get(context.Background(), order.ID)
	assert.Equal(t, domain.OrderStatusProcessing, stored.OrderStatus)
}

func TestUpdateStatusEnforcesTransitionTable(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	order := seedOrder(store, func(o *domain.Order) {
		o.OrderStatus = domain.OrderStatusDelivered
	})

	_, err := svc.UpdateStatus(context.Background(), order.ID, domain.OrderStatusPacked)

	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
	stored, _ := store.Get(context.Background(), order.ID)
	assert.Equal(t, domain.OrderStatusDelivered, stored.OrderStatus)
}

func TestUpdateStatusMovesForward(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	order := seedOrder(store, nil)

	updated, err := svc.UpdateStatus(context.Background(), order.ID, domain.OrderStatusPacked)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPacked, updated.OrderStatus)

	updated, err = svc.UpdateStatus(context.Background(), order.ID, domain.OrderStatusShipped)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, updated.OrderStatus)
}

func TestCancellingOrderCancelsCarrierShipment(t *testing.T) {
	svc, store, gateway, _ := newTestService(t)
	order := seedOrder(store, func(o *domain.Order) {
		o.Shipment = &domain.ShipmentInfo{OrderID: 1001, ShipmentID: 2001, AWBCode: "AWB1"}
	})

	updated, err := svc.UpdateStatus(context.Background(), order.ID, domain.OrderStatusCancelled)

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, updated.OrderStatus)
	assert.Equal(t, 1, gateway.Calls("CancelShipment"))
}

func TestCancellationSurvivesCarrierFailure(t *testing.T) {
	svc, store, gateway, _ := newTestService(t)
	order := seedOrder(store, func(o *domain.Order) {
		o.Shipment = &domain.ShipmentInfo{OrderID: 1001, ShipmentID: 2001}
	})
	gateway.CancelShipmentFunc = func(ctx context.Context, params shipment.CancelParams) (*shipment.CancelResult, error) {
		return nil, shipment.ErrCancelFailed
	}

	updated, err := svc.UpdateStatus(context.Background(), order.ID, domain.OrderStatusCancelled)

	require.NoError(t, err, "carrier failure must not block the cancellation")
	assert.Equal(t, domain.OrderStatusCancelled, updated.OrderStatus)
}

// ============================================================================
// Address updates
// ============================================================================

func TestUpdateAddressOnlyBeforeDispatch(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	order := seedOrder(store, func(o *domain.Order) {
		o.OrderStatus = domain.OrderStatusShipped
	})

	addr := validAddress()
	addr.AddressLine1 = "44 Residency Road"

	_, err := svc.UpdateAddress(context.Background(), order.ID, addr, nil)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))

	order2 := seedOrder(store, nil)
	updated, err := svc.UpdateAddress(context.Background(), order2.ID, addr, nil)
	require.NoError(t, err)
	assert.Equal(t, "44 Residency Road", updated.ShippingAddress.AddressLine1)
}

func TestUpdateAddressEditsNotes(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	order := seedOrder(store, func(o *domain.Order) {
		o.Notes = "gift wrap"
	})

	notes := "leave with the neighbour"
	updated, err := svc.UpdateAddress(context.Background(), order.ID, validAddress(), &notes)
	require.NoError(t, err)
	assert.Equal(t, "leave with the neighbour", updated.Notes)

	// Omitted notes stay as they are.
	updated, err = svc.UpdateAddress(context.Background(), order.ID, validAddress(), nil)
	require.NoError(t, err)
	assert.Equal(t, "leave with the neighbour", updated.Notes)
}

func TestUpdateAddressValidatesPincode(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	order := seedOrder(store, nil)

	addr := validAddress()
	addr.PostalCode = "00001"

	_, err := svc.UpdateAddress(context.Background(), order.ID, addr, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidPincode)
}

// ============================================================================
// Returns
// ============================================================================

func TestRequestReturnRequiresDeliveredOrder(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	order := seedOrder(store, nil) // still processing

	_, err := svc.RequestReturn(context.Background(), order.ID, domain.ReturnTypeRefund, "customer", "")

	assert.ErrorIs(t, err, domain.ErrReturnNotReturnable)
}

func TestRequestReturnHappyPathAndDuplicate(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	order := seedOrder(store, func(o *domain.Order) {
		o.OrderStatus = domain.OrderStatusDelivered
	})

	updated, err := svc.RequestReturn(context.Background(), order.ID, domain.ReturnTypeRefund, "customer", "wrong size")
	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusRequested, updated.ReturnStatus)
	assert.Equal(t, domain.ReturnTypeRefund, updated.ReturnType)
	require.Len(t, updated.ReturnHistory, 1)
	assert.Equal(t, "requested", updated.ReturnHistory[0].Action)

	_, err = svc.RequestReturn(context.Background(), order.ID, domain.ReturnTypeRefund, "customer", "")
	assert.ErrorIs(t, err, domain.ErrReturnAlreadyRequested)
}

func TestRequestReturnRejectsUnknownType(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	order := seedOrder(store, func(o *domain.Order) {
		o.OrderStatus = domain.OrderStatusDelivered
	})

	_, err := svc.RequestReturn(context.Background(), order.ID, "exchange", "customer", "")
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestApproveReturnSchedulesReversePickup(t *testing.T) {
	svc, store, gateway, _ := newTestService(t)
	order := seedOrder(store, func(o *domain.Order) {
		o.OrderStatus = domain.OrderStatusDelivered
		o.ReturnStatus = domain.ReturnStatusRequested
		o.ReturnType = domain.ReturnTypeRefund
	})

	updated, err := svc.ApproveReturn(context.Background(), order.ID, "admin")

	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusApproved, updated.ReturnStatus)
	assert.Equal(t, "RAWB987654321", updated.ReturnAWB)
	assert.Equal(t, domain.ReturnPickupScheduled, updated.ReturnPickupState)
	assert.Equal(t, 1, gateway.Calls("CreateReturnPickup"))
}

func TestApproveReturnLeavesRequestOpenOnPickupFailure(t *testing.T) {
	svc, store, gateway, _ := newTestService(t)
	order := seedOrder(store, func(o *domain.Order) {
		o.OrderStatus = domain.OrderStatusDelivered
		o.ReturnStatus = domain.ReturnStatusRequested
		o.ReturnType = domain.ReturnTypeRefund
	})
	gateway.CreateReturnPickupFunc = func(ctx context.Context, params shipment.ReturnPickupParams) (*shipment.ReturnPickup, error) {
		return nil, shipment.ErrInvalidPhone("12345")
	}

	_, err := svc.ApproveReturn(context.Background(), order.ID, "admin")

	assert.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	stored, _ := store.Get(context.Background(), order.ID)
	assert.Equal(t, domain.ReturnStatusRequested, stored.ReturnStatus, "failed pickup keeps the request open")
}

func TestApproveReturnRequiresPendingRequest(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	noReturn := seedOrder(store, func(o *domain.Order) {
		o.OrderStatus = domain.OrderStatusDelivered
	})
	_, err := svc.ApproveReturn(ctx, noReturn.ID, "admin")
	assert.ErrorIs(t, err, domain.ErrReturnNotRequested)

	completed := seedOrder(store, func(o *domain.Order) {
		o.OrderStatus = domain.OrderStatusDelivered
		o.ReturnStatus = domain.ReturnStatusCompleted
	})
	_, err = svc.ApproveReturn(ctx, completed.ID, "admin")
	assert.ErrorIs(t, err, domain.ErrReturnCompleted)
}

func TestRejectReturn(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	order := seedOrder(store, func(o *domain.Order) {
		o.OrderStatus = domain.OrderStatusDelivered
		o.ReturnStatus = domain.ReturnStatusRequested
		o.ReturnType = domain.ReturnTypeRefund
	})

	updated, err := svc.RejectReturn(context.Background(), order.ID, "admin", "outside return window")

	require.NoError(t, err)
	assert.Equal(t, domain.ReturnStatusRejected, updated.ReturnStatus)
	assert.Empty(t, updated.ReturnAWB)
}

// ============================================================================
// Webhook-driven return events
// ============================================================================

func approvedReturnOrder(store *memStore, rt domain.ReturnType, mutate func(o *domain.Order)) *domain.Order {
	return seedOrder(store, func(o *domain.Order) {
		o.OrderStatus = domain.OrderStatusDelivered
		o.ReturnStatus = domain.ReturnStatusApproved
		o.ReturnType = rt
		o.ReturnAWB = "RAWB0001"
		o.ReturnPickupState = domain.ReturnPickupScheduled
		if mutate != nil {
			mutate(o)
		}
	})
}

func TestProcessReturnEventIgnoresUnknownWaybill(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	err := svc.ProcessReturnEvent(context.Background(), "RAWB-UNKNOWN", "PICKED UP")

	assert.NoError(t, err, "unknown waybills are acknowledged so the carrier stops retrying")
}

func TestProcessReturnEventIgnoresUnrecognizedStatus(t *testing.T) {
	svc, store, _, billing := newTestService(t)
	order := approvedReturnOrder(store, domain.ReturnTypeRefund, nil)

	err := svc.ProcessReturnEvent(context.Background(), "RAWB0001", "OUT FOR PICKUP")

	assert.NoError(t, err)
	stored, _ := store.Get(context.Background(), order.ID)
	assert.Equal(t, domain.ReturnStatusApproved, stored.ReturnStatus)
	assert.Equal(t, domain.ReturnPickupScheduled, stored.ReturnPickupState)
	assert.Zero(t, billing.Calls("Refund"))
}

func TestProcessReturnEventPickupCancelled(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	order := approvedReturnOrder(store, domain.ReturnTypeRefund, nil)

	err := svc.ProcessReturnEvent(context.Background(), "RAWB0001", "CANCELLED")

	require.NoError(t, err)
	stored, _ := store.Get(context.Background(), order.ID)
	assert.Equal(t, domain.ReturnPickupCancelled, stored.ReturnPickupState)
	assert.Equal(t, domain.ReturnStatusApproved, stored.ReturnStatus, "cancellation does not complete the return")
}

func TestProcessReturnEventPickupFailed(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	order := approvedReturnOrder(store, domain.ReturnTypeRefund, nil)

	err := svc.ProcessReturnEvent(context.Background(), "RAWB0001", "PICKUP FAILED")

	require.NoError(t, err)
	stored, _ := store.Get(context.Background(), order.ID)
	assert.Equal(t, domain.ReturnPickupFailed, stored.ReturnPickupState)
}

func TestProcessReturnEventPrepaidRefund(t *testing.T) {
	svc, store, _, billing := newTestService(t)
	order := approvedReturnOrder(store, domain.ReturnTypeRefund, func(o *domain.Order) {
		o.PaymentMethod = domain.PaymentMethodRazorpay
		o.PaymentStatus = domain.PaymentStatusPaid
		o.Payment = &domain.PaymentInfo{Gateway: "razorpay", PaymentID: "pay_abc"}
	})

	err := svc.ProcessReturnEvent(context.Background(), "RAWB0001", "PICKED UP")

	require.NoError(t, err)
	assert.Equal(t, 1, billing.Calls("Refund"))

	stored, _ := store.Get(context.Background(), order.ID)
	assert.Equal(t, domain.ReturnStatusCompleted, stored.ReturnStatus)
	assert.Equal(t, domain.ReturnPickupPicked, stored.ReturnPickupState)
	require.NotNil(t, stored.RefundInfo)
	assert.Equal(t, "razorpay", stored.RefundInfo.Gateway)
	assert.Equal(t, order.Total, stored.RefundInfo.Amount)
	assert.NotNil(t, stored.ReturnResolvedAt)
}

func TestProcessReturnEventCODRefundIsManual(t *testing.T) {
	svc, store, _, billing := newTestService(t)
	order := approvedReturnOrder(store, domain.ReturnTypeRefund, nil) // COD, no gateway payment

	err := svc.ProcessReturnEvent(context.Background(), "RAWB0001", "DELIVERED")

	require.NoError(t, err)
	assert.Zero(t, billing.Calls("Refund"), "COD refunds never hit the gateway")

	stored, _ := store.Get(context.Background(), order.ID)
	assert.Equal(t, domain.ReturnStatusCompleted, stored.ReturnStatus)
	require.NotNil(t, stored.RefundInfo)
	assert.Equal(t, "manual", stored.RefundInfo.Gateway)
	assert.Equal(t, "pending", stored.RefundInfo.Status)
}

func TestProcessReturnEventRedeliveryIsIdempotent(t *testing.T) {
	svc, store, _, billing := newTestService(t)
	order := approvedReturnOrder(store, domain.ReturnTypeRefund, func(o *domain.Order) {
		o.PaymentMethod = domain.PaymentMethodRazorpay
		o.PaymentStatus = domain.PaymentStatusPaid
		o.Payment = &domain.PaymentInfo{Gateway: "razorpay", PaymentID: "pay_abc"}
	})

	require.NoError(t, svc.ProcessReturnEvent(context.Background(), "RAWB0001", "PICKED UP"))

	// The carrier redelivers the same event twice more.
	require.NoError(t, svc.ProcessReturnEvent(context.Background(), "RAWB0001", "PICKED UP"))
	require.NoError(t, svc.ProcessReturnEvent(context.Background(), "RAWB0001", "RETURN RECEIVED"))

	assert.Equal(t, 1, billing.Calls("Refund"), "a completed return must never refund twice")

	stored, _ := store.Get(context.Background(), order.ID)
	assert.Equal(t, domain.ReturnStatusCompleted, stored.ReturnStatus)
}

func TestProcessReturnEventConcurrentDeliveriesRefundOnce(t *testing.T) {
	svc, store, _, billing := newTestService(t)
	order := approvedReturnOrder(store, domain.ReturnTypeRefund, func(o *domain.Order) {
		o.PaymentMethod = domain.PaymentMethodRazorpay
		o.PaymentStatus = domain.PaymentStatusPaid
		o.Payment = &domain.PaymentInfo{Gateway: "razorpay", PaymentID: "pay_abc"}
	})

	// Hold the first delivery inside the gateway refund while the second
	// delivery of the same event is processed.
	inRefund := make(chan struct{})
	release := make(chan struct{})
	billing.RefundFunc = func(ctx context.Context, params payment.RefundParams) (*payment.Refund, error) {
		close(inRefund)
		<-release
		return &payment.Refund{ID: "rfnd_once", Currency: "INR", Status: "processed"}, nil
	}

	done := make(chan error, 1)
	go func() {
		done <- svc.ProcessReturnEvent(context.Background(), "RAWB0001", "PICKED UP")
	}()
	<-inRefund

	require.NoError(t, svc.ProcessReturnEvent(context.Background(), "RAWB0001", "PICKED UP"))

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, 1, billing.Calls("Refund"), "concurrent deliveries must refund once")

	stored, _ := store.Get(context.Background(), order.ID)
	assert.Equal(t, domain.ReturnStatusCompleted, stored.ReturnStatus)
	require.NotNil(t, stored.RefundInfo)
	assert.Equal(t, "rfnd_once", stored.RefundInfo.RefundID)
}

func TestProcessReturnEventRefundFailureReleasesClaim(t *testing.T) {
	svc, store, _, billing := newTestService(t)
	order := approvedReturnOrder(store, domain.ReturnTypeRefund, func(o *domain.Order) {
		o.PaymentMethod = domain.PaymentMethodRazorpay
		o.PaymentStatus = domain.PaymentStatusPaid
		o.Payment = &domain.PaymentInfo{Gateway: "razorpay", PaymentID: "pay_abc"}
	})

	billing.RefundFunc = func(ctx context.Context, params payment.RefundParams) (*payment.Refund, error) {
		return nil, errors.New("gateway timeout")
	}

	err := svc.ProcessReturnEvent(context.Background(), "RAWB0001", "PICKED UP")
	require.Error(t, err)

	stored, _ := store.Get(context.Background(), order.ID)
	assert.Equal(t, domain.ReturnStatusApproved, stored.ReturnStatus,
		"a failed refund hands the claim back for the next delivery")

	// The carrier retries and the gateway has recovered.
	billing.RefundFunc = nil
	require.NoError(t, svc.ProcessReturnEvent(context.Background(), "RAWB0001", "PICKED UP"))

	stored, _ = store.Get(context.Background(), order.ID)
	assert.Equal(t, domain.ReturnStatusCompleted, stored.ReturnStatus)
	assert.Equal(t, 2, billing.Calls("Refund"))
}

func TestProcessReturnEventReplacementFlow(t *testing.T) {
	svc, store, gateway, billing := newTestService(t)
	order := approvedReturnOrder(store, domain.ReturnTypeReplacement, nil)

	err := svc.ProcessReturnEvent(context.Background(), "RAWB0001", "PICKED UP")
	require.NoError(t, err)

	stored, _ := store.Get(context.Background(), order.ID)
	assert.Equal(t, domain.ReturnStatusCompleted, stored.ReturnStatus)
	require.NotNil(t, stored.ReplacementOrderID)
	assert.Nil(t, stored.RefundInfo)
	assert.Zero(t, billing.Calls("Refund"))

	replacement, err := store.Get(context.Background(), *stored.ReplacementOrderID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, replacement.PaymentStatus, "replacements are not charged again")
	assert.Equal(t, domain.OrderStatusProcessing, replacement.OrderStatus)
	assert.Equal(t, order.Items, replacement.Items)
	assert.Equal(t, 1, gateway.Calls("CreateShipment"), "replacement ships immediately")
}

func TestReplacementShipmentFailureFlagsReplacement(t *testing.T) {
	svc, store, gateway, _ := newTestService(t)
	order := approvedReturnOrder(store, domain.ReturnTypeReplacement, nil)
	gateway.CreateShipmentFunc = func(ctx context.Context, params shipment.CreateShipmentParams) (*shipment.Shipment, error) {
		return nil, errors.New("carrier down")
	}

	err := svc.ProcessReturnEvent(context.Background(), "RAWB0001", "PICKED UP")
	require.NoError(t, err, "shipment failure must not fail the return completion")

	stored, _ := store.Get(context.Background(), order.ID)
	require.NotNil(t, stored.ReplacementOrderID)

	replacement, err := store.Get(context.Background(), *stored.ReplacementOrderID)
	require.NoError(t, err)
	assert.True(t, replacement.ShipmentPending)
	assert.Nil(t, replacement.Shipment)
}
