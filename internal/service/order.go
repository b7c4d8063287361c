package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vastrakart/vastra/internal/domain"
	"github.com/vastrakart/vastra/internal/payment"
	"github.com/vastrakart/vastra/internal/shipment"
	"github.com/vastrakart/vastra/internal/telemetry"
)

// OrderService orchestrates the order fulfillment workflow: validation,
// persistence, and conditional invocation of the payment and shipment
// gateways.
type OrderService struct {
	store   domain.OrderStore
	gateway shipment.Gateway
	billing payment.Provider
	logger  *slog.Logger
	metrics *telemetry.BusinessMetrics

	// warehouse is the pickup address registered with the carrier,
	// used as the drop location for reverse pickups.
	warehouse shipment.ShipmentAddress
}

// OrderServiceConfig contains dependencies for the order service.
type OrderServiceConfig struct {
	Store    domain.OrderStore
	Shipment shipment.Gateway
	Payment  payment.Provider
	Logger   *slog.Logger
	Metrics  *telemetry.BusinessMetrics

	Warehouse shipment.ShipmentAddress
}

// NewOrderService creates a new order workflow service.
func NewOrderService(cfg OrderServiceConfig) *OrderService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &OrderService{
		store:     cfg.Store,
		gateway:   cfg.Shipment,
		billing:   cfg.Payment,
		logger:    logger,
		metrics:   cfg.Metrics,
		warehouse: cfg.Warehouse,
	}
}

// PlaceOrderParams contains checkout input. Items arrive as loosely-keyed
// maps because storefront clients disagree on field names; normalization
// happens here, not at the HTTP boundary.
type PlaceOrderParams struct {
	UserID          *uuid.UUID
	Items           []map[string]interface{}
	ShippingAddress domain.ShippingAddress
	PaymentMethod   domain.PaymentMethod
	Subtotal        float64
	ShippingCharges float64
	Tax             float64
	Total           float64
}

// PlaceOrderResult is the outcome of order placement. Shipment is set only
// when a COD shipment was created synchronously and succeeded.
type PlaceOrderResult struct {
	Order    *domain.Order
	Shipment *domain.ShipmentInfo
}

// PlaceOrder validates and persists a new order. COD orders additionally get
// a synchronous shipment creation attempt; a shipment failure never fails
// the placement, it flags the order for out-of-band retry instead.
func (s *OrderService) PlaceOrder(ctx context.Context, params PlaceOrderParams) (*PlaceOrderResult, error) {
	const op = "order.place"

	if len(params.Items) == 0 {
		return nil, domain.ErrEmptyItems
	}
	if params.PaymentMethod == "" {
		return nil, domain.ErrMissingPaymentMethod
	}
	if !params.PaymentMethod.IsValid() {
		return nil, domain.Errorf(domain.EINVALID, op, "invalid payment method: %s", params.PaymentMethod)
	}
	if params.ShippingAddress.AddressLine1 == "" || params.ShippingAddress.City == "" {
		return nil, domain.ErrMissingAddress
	}
	if params.Subtotal <= 0 || params.Total <= 0 {
		return nil, domain.ErrMissingAmounts
	}
	if !domain.ValidPincode(params.ShippingAddress.PostalCode) {
		return nil, domain.ErrInvalidPincode
	}

	items, err := normalizeItems(params.Items)
	if err != nil {
		return nil, err
	}

	order := &domain.Order{
		ID:              uuid.New(),
		UserID:          params.UserID,
		Items:           items,
		ShippingAddress: params.ShippingAddress,
		PaymentMethod:   params.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusPending,
		OrderStatus:     domain.OrderStatusProcessing,
		Subtotal:        params.Subtotal,
		ShippingCharges: params.ShippingCharges,
		Tax:             params.Tax,
		Total:           params.Total,
		ReturnStatus:    domain.ReturnStatusNone,
	}

	if err := s.store.Create(ctx, order); err != nil {
		return nil, err
	}

	logger := s.logger.With("order_id", order.ID, "payment_method", order.PaymentMethod)
	logger.Info("order placed", "total", order.Total, "items", len(order.Items))

	if s.metrics != nil {
		s.metrics.OrdersPlaced.WithLabelValues(string(order.PaymentMethod)).Inc()
		s.metrics.OrderValue.WithLabelValues(string(order.PaymentMethod)).Observe(order.Total)
		s.metrics.OrderItemCount.Observe(float64(len(order.Items)))
	}

	result := &PlaceOrderResult{Order: order}

	// COD ships immediately; prepaid orders wait for payment verification.
	// The order stands even when the carrier call fails: capture the sale,
	// retry the shipment out-of-band.
	if order.PaymentMethod == domain.PaymentMethodCOD {
		info, err := s.CreateShipmentForOrder(ctx, order, "placement")
		if err != nil {
			logger.Warn("shipment creation failed, order flagged for retry", "error", err)
			telemetry.CaptureError(err, map[string]interface{}{"order_id": order.ID.String()})
			if flagErr := s.store.SetShipmentPending(ctx, order.ID, true); flagErr != nil {
				logger.Error("failed to flag order for shipment retry", "error", flagErr)
			} else {
				order.ShipmentPending = true
			}
		} else {
			order.Shipment = info
			result.Shipment = info
		}
	}

	return result, nil
}

// CreateShipmentForOrder registers the order with the carrier aggregator,
// requests a waybill, and generates a label. The label step is best-effort:
// a shipment with a waybill but no label is still usable.
func (s *OrderService) CreateShipmentForOrder(ctx context.Context, o *domain.Order, trigger string) (*domain.ShipmentInfo, error) {
	const op = "order.create_shipment"

	if o.Shipment != nil {
		return nil, domain.ErrShipmentExists
	}

	logger := s.logger.With("order_id", o.ID, "trigger", trigger)

	created, err := s.gateway.CreateShipment(ctx, toShipmentParams(o))
	if err != nil {
		if s.metrics != nil {
			s.metrics.ShipmentFailures.WithLabelValues(trigger).Inc()
		}
		return nil, domain.WrapError(err, domain.EINTERNAL, op, "carrier order creation failed")
	}

	info := domain.ShipmentInfo{
		OrderID:    created.OrderID,
		ShipmentID: created.ShipmentID,
	}

	assignment, err := s.gateway.AssignCourier(ctx, created.ShipmentID, 0)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ShipmentFailures.WithLabelValues(trigger).Inc()
		}
		return nil, domain.WrapError(err, domain.EINTERNAL, op, "courier assignment failed")
	}
	info.AWBCode = assignment.AWBCode
	info.CourierID = assignment.CourierID
	info.CourierName = assignment.CourierName

	label, err := s.gateway.GenerateLabel(ctx, created.ShipmentID)
	if err != nil {
		logger.Warn("label generation failed, shipment kept", "error", err)
	} else {
		info.LabelURL = label.LabelURL
	}

	applied, err := s.store.SetShipment(ctx, o.ID, info)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the race to another shipment creation. Ours is now an
		// orphan at the carrier; cancel it rather than double-ship.
		logger.Warn("concurrent shipment detected, cancelling duplicate", "shipment_id", created.ShipmentID)
		if _, cancelErr := s.gateway.CancelShipment(ctx, shipment.CancelParams{
			OrderID:    created.OrderID,
			ShipmentID: created.ShipmentID,
		}); cancelErr != nil {
			logger.Error("failed to cancel duplicate shipment", "error", cancelErr)
		}
		return nil, domain.ErrShipmentExists
	}

	logger.Info("shipment created", "awb", info.AWBCode, "courier", info.CourierName)
	if s.metrics != nil {
		s.metrics.ShipmentsCreated.WithLabelValues(trigger).Inc()
	}

	return &info, nil
}

// Get retrieves a single order.
func (s *OrderService) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.store.Get(ctx, id)
}

// List returns all orders that are paid or COD, newest first.
func (s *OrderService) List(ctx context.Context) ([]domain.Order, error) {
	return s.store.List(ctx)
}

// ListByUser returns a customer's orders, newest first.
func (s *OrderService) ListByUser(ctx context.Context, userID uuid.UUID) ([]domain.Order, error) {
	return s.store.ListByUser(ctx, userID)
}

// CreatePaymentOrder creates a gateway-side payment order for checkout.
func (s *OrderService) CreatePaymentOrder(ctx context.Context, amountRupees float64, receipt string) (*payment.GatewayOrder, error) {
	order, err := s.billing.CreateOrder(ctx, payment.CreateOrderParams{
		AmountRupees: amountRupees,
		Receipt:      receipt,
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.PaymentOrdersCreated.Inc()
	}
	return order, nil
}

// VerifyPaymentParams identifies the order and carries the gateway callback
// identifiers to verify.
type VerifyPaymentParams struct {
	OrderID          uuid.UUID
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
}

// VerifyPayment checks the gateway callback signature and, on match, marks
// the order paid exactly once. A mismatch fails closed with no mutation.
// Repeating a valid call is a no-op returning the already-paid order.
func (s *OrderService) VerifyPayment(ctx context.Context, params VerifyPaymentParams) (*domain.Order, error) {
	const op = "order.verify_payment"

	order, err := s.store.Get(ctx, params.OrderID)
	if err != nil {
		return nil, err
	}

	if err := s.billing.VerifySignature(params.GatewayOrderID, params.GatewayPaymentID, params.Signature); err != nil {
		s.logger.Warn("payment signature mismatch",
			"order_id", params.OrderID, "gateway_order_id", params.GatewayOrderID)
		if s.metrics != nil {
			s.metrics.PaymentVerifications.WithLabelValues("mismatch").Inc()
		}
		return nil, domain.ErrSignatureMismatch
	}

	info := domain.PaymentInfo{
		Gateway:   "razorpay",
		OrderID:   params.GatewayOrderID,
		PaymentID: params.GatewayPaymentID,
		Signature: params.Signature,
	}

	applied, err := s.store.MarkPaid(ctx, order.ID, info)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Already paid. Same payment id means a redelivered callback,
		// which is fine; a different one is a real conflict.
		current, err := s.store.Get(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if current.PaymentStatus == domain.PaymentStatusPaid &&
			current.Payment != nil && current.Payment.PaymentID == params.GatewayPaymentID {
			return current, nil
		}
		return nil, domain.ErrPaymentNotPending
	}

	s.logger.Info("payment verified", "order_id", order.ID, "gateway_payment_id", params.GatewayPaymentID)
	if s.metrics != nil {
		s.metrics.PaymentVerifications.WithLabelValues("verified").Inc()
	}

	return s.store.Get(ctx, order.ID)
}

// MarkPaid records manual payment confirmation for a COD order on delivery.
func (s *OrderService) MarkPaid(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	applied, err := s.store.MarkPaid(ctx, order.ID, domain.PaymentInfo{Gateway: "cod"})
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.ErrPaymentNotPending
	}

	s.logger.Info("order marked paid", "order_id", id, "gateway", "cod")
	return s.store.Get(ctx, id)
}

// UpdateStatus moves the order to a new fulfillment status, enforcing the
// forward-only transition table. Cancelling an order with a live shipment
// also cancels the carrier shipment, best-effort.
func (s *OrderService) UpdateStatus(ctx context.Context, id uuid.UUID, to domain.OrderStatus) (*domain.Order, error) {
	if !to.IsValid() {
		return nil, domain.ErrInvalidStatus
	}

	order, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !order.OrderStatus.CanTransitionTo(to) {
		return nil, domain.Errorf(domain.ECONFLICT, "order.update_status",
			"cannot move order from %s to %s", order.OrderStatus, to)
	}

	applied, err := s.store.UpdateStatus(ctx, id, order.OrderStatus, to)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.ErrStatusTransition
	}

	s.logger.Info("order status updated", "order_id", id, "from", order.OrderStatus, "to", to)
	if s.metrics != nil {
		s.metrics.StatusChanges.WithLabelValues(string(to)).Inc()
	}

	if to == domain.OrderStatusCancelled && order.Shipment != nil {
		result, err := s.gateway.CancelShipment(ctx, shipment.CancelParams{
			OrderID:    order.Shipment.OrderID,
			ShipmentID: order.Shipment.ShipmentID,
		})
		if err != nil {
			s.logger.Warn("carrier cancellation failed", "order_id", id, "error", err)
			telemetry.CaptureError(err, map[string]interface{}{"order_id": id.String()})
		} else {
			s.logger.Info("carrier shipment cancelled", "order_id", id, "strategy", result.Strategy)
			if s.metrics != nil {
				s.metrics.ShipmentsCancelled.WithLabelValues(result.Strategy).Inc()
			}
		}
	}

	return s.store.Get(ctx, id)
}

// UpdateAddress replaces the shipping address, and optionally the order
// notes, while the order is still in the warehouse.
func (s *OrderService) UpdateAddress(ctx context.Context, id uuid.UUID, addr domain.ShippingAddress, notes *string) (*domain.Order, error) {
	if addr.AddressLine1 == "" || addr.City == "" {
		return nil, domain.ErrMissingAddress
	}
	if !domain.ValidPincode(addr.PostalCode) {
		return nil, domain.ErrInvalidPincode
	}

	order, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.OrderStatus != domain.OrderStatusProcessing && order.OrderStatus != domain.OrderStatusPacked {
		return nil, domain.Conflict("order.update_address", "address can only change before dispatch")
	}

	if err := s.store.UpdateAddress(ctx, id, addr, notes); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// Delete removes an order entirely. Admin-only escape hatch.
func (s *OrderService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("order deleted", "order_id", id)
	return nil
}

// Track proxies live carrier tracking for a waybill.
func (s *OrderService) Track(ctx context.Context, awb string) (*shipment.TrackingInfo, error) {
	return s.gateway.Track(ctx, awb)
}

// RequestReturn records a customer return request on a delivered order.
func (s *OrderService) RequestReturn(ctx context.Context, id uuid.UUID, rt domain.ReturnType, by, note string) (*domain.Order, error) {
	if !rt.IsValid() {
		return nil, domain.Invalid("order.request_return", "return type must be refund or replacement")
	}

	order, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.OrderStatus != domain.OrderStatusDelivered {
		return nil, domain.ErrReturnNotReturnable
	}
	if order.ReturnStatus != domain.ReturnStatusNone {
		return nil, domain.ErrReturnAlreadyRequested
	}

	ev := domain.ReturnEvent{Action: "requested", By: by, Note: note, At: time.Now().UTC()}
	applied, err := s.store.RequestReturn(ctx, id, rt, ev)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.ErrReturnAlreadyRequested
	}

	s.logger.Info("return requested", "order_id", id, "type", rt)
	if s.metrics != nil {
		s.metrics.ReturnsRequested.WithLabelValues(string(rt)).Inc()
	}

	return s.store.Get(ctx, id)
}

// ApproveReturn schedules a reverse pickup with the carrier and moves the
// return to approved. The carrier call happens before the state change, so a
// pickup failure leaves the request open for another attempt.
func (s *OrderService) ApproveReturn(ctx context.Context, id uuid.UUID, by string) (*domain.Order, error) {
	order, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.ReturnStatus == domain.ReturnStatusCompleted {
		return nil, domain.ErrReturnCompleted
	}
	if order.ReturnStatus != domain.ReturnStatusRequested {
		return nil, domain.ErrReturnNotRequested
	}

	// Gateway errors carry their own codes (invalid phone or pincode maps
	// to a 400, provider outages to a 503), so they pass through untouched.
	pickup, err := s.gateway.CreateReturnPickup(ctx, toReturnPickupParams(order, s.warehouse))
	if err != nil {
		return nil, err
	}

	ev := domain.ReturnEvent{Action: "approved", By: by, At: time.Now().UTC()}
	applied, err := s.store.ResolveReturnRequest(ctx, id, domain.ReturnStatusApproved, pickup.AWBCode, ev)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.ErrReturnNotRequested
	}

	s.logger.Info("return approved", "order_id", id, "return_awb", pickup.AWBCode)
	if s.metrics != nil {
		s.metrics.ReturnsResolved.WithLabelValues("approved").Inc()
	}

	return s.store.Get(ctx, id)
}

// RejectReturn declines a pending return request.
func (s *OrderService) RejectReturn(ctx context.Context, id uuid.UUID, by, note string) (*domain.Order, error) {
	order, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.ReturnStatus == domain.ReturnStatusCompleted {
		return nil, domain.ErrReturnCompleted
	}
	if order.ReturnStatus != domain.ReturnStatusRequested {
		return nil, domain.ErrReturnNotRequested
	}

	ev := domain.ReturnEvent{Action: "rejected", By: by, Note: note, At: time.Now().UTC()}
	applied, err := s.store.ResolveReturnRequest(ctx, id, domain.ReturnStatusRejected, "", ev)
	if err != nil {
		return nil, err
	}
	if !applied {
		return nil, domain.ErrReturnNotRequested
	}

	s.logger.Info("return rejected", "order_id", id)
	if s.metrics != nil {
		s.metrics.ReturnsResolved.WithLabelValues("rejected").Inc()
	}

	return s.store.Get(ctx, id)
}

// ProcessReturnEvent applies one carrier webhook event to the order owning
// the return waybill. Unknown waybills and unrecognized statuses are
// acknowledged without mutation so the carrier stops retrying. An order
// whose return already completed is never re-processed.
func (s *OrderService) ProcessReturnEvent(ctx context.Context, awb, carrierStatus string) error {
	const op = "order.process_return_event"

	status := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(carrierStatus), " ", "_"))
	logger := s.logger.With("return_awb", awb, "carrier_status", status)

	if s.metrics != nil {
		s.metrics.WebhookReceived.WithLabelValues(status).Inc()
	}

	order, err := s.store.FindByReturnAWB(ctx, awb)
	if err != nil {
		if domain.IsCode(err, domain.ENOTFOUND) {
			logger.Debug("webhook for unknown waybill, ignoring")
			return nil
		}
		return err
	}

	logger = logger.With("order_id", order.ID)

	switch status {
	case "CANCELLED", "RTO_CANCELLED":
		ev := domain.ReturnEvent{Action: "pickup_cancelled", By: "carrier", Note: status, At: time.Now().UTC()}
		if err := s.store.SetReturnPickupState(ctx, order.ID, domain.ReturnPickupCancelled, ev); err != nil {
			return err
		}
		logger.Info("return pickup cancelled by carrier")
		if s.metrics != nil {
			s.metrics.WebhookProcessed.WithLabelValues("pickup_cancelled").Inc()
		}

	case "PICKUP_FAILED":
		ev := domain.ReturnEvent{Action: "pickup_failed", By: "carrier", Note: status, At: time.Now().UTC()}
		if err := s.store.SetReturnPickupState(ctx, order.ID, domain.ReturnPickupFailed, ev); err != nil {
			return err
		}
		logger.Info("return pickup failed")
		if s.metrics != nil {
			s.metrics.WebhookProcessed.WithLabelValues("pickup_failed").Inc()
		}

	case "PICKED_UP", "DELIVERED", "RETURN_RECEIVED":
		// Carriers redeliver webhook events; completed is terminal.
		if order.ReturnStatus == domain.ReturnStatusCompleted {
			logger.Debug("return already completed, ignoring redelivery")
			return nil
		}

		// Claim the completion before any money moves. Concurrent
		// deliveries of the same event race on this conditional update
		// and only the winner runs the refund or replacement.
		claimed, err := s.store.ClaimReturnCompletion(ctx, order.ID)
		if err != nil {
			return err
		}
		if !claimed {
			logger.Debug("return completion already claimed, ignoring redelivery")
			return nil
		}

		ev := domain.ReturnEvent{Action: "picked_up", By: "carrier", Note: status, At: time.Now().UTC()}
		err = s.store.SetReturnPickupState(ctx, order.ID, domain.ReturnPickupPicked, ev)

		var refund *domain.RefundInfo
		var replacementID *uuid.UUID
		if err == nil {
			switch order.ReturnType {
			case domain.ReturnTypeRefund:
				refund, err = s.issueRefund(ctx, order)
			case domain.ReturnTypeReplacement:
				replacementID, err = s.createReplacement(ctx, order)
			}
		}
		if err != nil {
			// Hand the claim back so the carrier's next retry can run
			// the flow again.
			if relErr := s.store.ReleaseReturnCompletion(ctx, order.ID); relErr != nil {
				logger.Error("failed to release return completion claim", "error", relErr)
				telemetry.CaptureError(relErr, map[string]interface{}{"order_id": order.ID.String()})
			}
			return err
		}

		done := domain.ReturnEvent{Action: "completed", By: "system", At: time.Now().UTC()}
		applied, err := s.store.CompleteReturn(ctx, order.ID, refund, replacementID, done)
		if err != nil {
			return err
		}
		if !applied {
			logger.Warn("completion claim lost before stamping, leaving return as is")
			return nil
		}

		logger.Info("return completed", "type", order.ReturnType)
		if s.metrics != nil {
			s.metrics.WebhookProcessed.WithLabelValues("return_completed").Inc()
		}

	default:
		logger.Debug("unrecognized carrier status, ignoring")
	}

	return nil
}

// issueRefund resolves a refund-type return. Prepaid orders refund through
// the gateway; COD orders have no gateway payment, so the refund is recorded
// for manual settlement.
func (s *OrderService) issueRefund(ctx context.Context, order *domain.Order) (*domain.RefundInfo, error) {
	const op = "order.issue_refund"

	if order.PaymentMethod == domain.PaymentMethodCOD || order.Payment == nil || order.Payment.PaymentID == "" {
		s.logger.Info("COD refund recorded for manual settlement", "order_id", order.ID, "amount", order.Total)
		if s.metrics != nil {
			s.metrics.RefundsIssued.WithLabelValues("manual").Inc()
			s.metrics.RefundAmount.Add(order.Total)
		}
		return &domain.RefundInfo{
			Gateway:  "manual",
			Amount:   order.Total,
			Currency: "INR",
			Status:   "pending",
		}, nil
	}

	refund, err := s.billing.Refund(ctx, payment.RefundParams{
		PaymentID:    order.Payment.PaymentID,
		AmountRupees: order.Total,
		Notes:        map[string]string{"order_id": order.ID.String(), "reason": "return"},
	})
	if err != nil {
		return nil, domain.WrapError(err, domain.EINTERNAL, op, "gateway refund failed")
	}

	s.logger.Info("refund issued", "order_id", order.ID, "refund_id", refund.ID, "amount", order.Total)
	if s.metrics != nil {
		s.metrics.RefundsIssued.WithLabelValues("razorpay").Inc()
		s.metrics.RefundAmount.Add(order.Total)
	}

	return &domain.RefundInfo{
		Gateway:  "razorpay",
		RefundID: refund.ID,
		Amount:   order.Total,
		Currency: refund.Currency,
		Status:   refund.Status,
	}, nil
}

// createReplacement places a zero-charge duplicate of the returned order and
// ships it like a COD order, with the same swallow-and-retry policy.
func (s *OrderService) createReplacement(ctx context.Context, original *domain.Order) (*uuid.UUID, error) {
	replacement := &domain.Order{
		ID:              uuid.New(),
		UserID:          original.UserID,
		Items:           original.Items,
		ShippingAddress: original.ShippingAddress,
		PaymentMethod:   original.PaymentMethod,
		PaymentStatus:   domain.PaymentStatusPaid,
		OrderStatus:     domain.OrderStatusProcessing,
		Subtotal:        original.Subtotal,
		Total:           original.Total,
		ReturnStatus:    domain.ReturnStatusNone,
	}

	if err := s.store.Create(ctx, replacement); err != nil {
		return nil, err
	}

	s.logger.Info("replacement order created",
		"order_id", original.ID, "replacement_order_id", replacement.ID)

	if _, err := s.CreateShipmentForOrder(ctx, replacement, "replacement"); err != nil {
		s.logger.Warn("replacement shipment failed, flagged for retry",
			"replacement_order_id", replacement.ID, "error", err)
		if flagErr := s.store.SetShipmentPending(ctx, replacement.ID, true); flagErr != nil {
			s.logger.Error("failed to flag replacement for shipment retry", "error", flagErr)
		}
	}

	return &replacement.ID, nil
}

// toShipmentParams maps an order onto the carrier request shape.
func toShipmentParams(o *domain.Order) shipment.CreateShipmentParams {
	items := make([]shipment.ShipmentItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = shipment.ShipmentItem{
			Name:  it.Name,
			SKU:   itemSKU(it),
			Units: it.Quantity,
			Price: it.Price,
		}
	}

	method := "Prepaid"
	if o.PaymentMethod == domain.PaymentMethodCOD {
		method = "COD"
	}

	return shipment.CreateShipmentParams{
		OrderRef:      o.ID.String(),
		OrderDate:     o.CreatedAt,
		Billing:       toShipmentAddress(o.ShippingAddress),
		Items:         items,
		PaymentMethod: method,
		Subtotal:      o.Subtotal,
		Total:         o.Total,
	}
}

// toReturnPickupParams maps an order onto a reverse-logistics request: the
// customer address becomes the pickup, the warehouse becomes the drop.
func toReturnPickupParams(o *domain.Order, warehouse shipment.ShipmentAddress) shipment.ReturnPickupParams {
	items := make([]shipment.ShipmentItem, len(o.Items))
	for i, it := range o.Items {
		items[i] = shipment.ShipmentItem{
			Name:  it.Name,
			SKU:   itemSKU(it),
			Units: it.Quantity,
			Price: it.Price,
		}
	}

	return shipment.ReturnPickupParams{
		OrderRef:  o.ID.String(),
		OrderDate: time.Now().UTC(),
		Pickup:    toShipmentAddress(o.ShippingAddress),
		Drop:      warehouse,
		Items:     items,
		Total:     o.Total,
	}
}

func toShipmentAddress(a domain.ShippingAddress) shipment.ShipmentAddress {
	return shipment.ShipmentAddress{
		Name:     a.Name,
		Phone:    a.Phone,
		Address:  a.AddressLine1,
		Address2: a.AddressLine2,
		City:     a.City,
		State:    a.State,
		Pincode:  a.PostalCode,
		Country:  a.Country,
	}
}

func itemSKU(it domain.OrderItem) string {
	sku := it.ProductID
	if it.Size != "" {
		sku = fmt.Sprintf("%s-%s", sku, it.Size)
	}
	return sku
}

// normalizeItems coerces loosely-keyed storefront items into the canonical
// snapshot shape. Clients send product id as productId, _id, id or
// product_id; name as name or title; price as price or amount.
func normalizeItems(raw []map[string]interface{}) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, len(raw))
	for i, m := range raw {
		item := domain.OrderItem{
			ProductID: firstString(m, "productId", "_id", "id", "product_id"),
			Name:      firstString(m, "name", "title"),
			Price:     firstFloat(m, "price", "amount"),
			Quantity:  firstInt(m, "quantity", "qty"),
			Image:     firstString(m, "image", "img"),
			Size:      firstString(m, "size"),
			Color:     firstString(m, "color"),
		}
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		if item.ProductID == "" || item.Name == "" {
			return nil, domain.Errorf(domain.EINVALID, "order.place", "item %d is missing a product id or name", i)
		}
		if item.Price < 0 {
			return nil, domain.Errorf(domain.EINVALID, "order.place", "item %d has a negative price", i)
		}
		items = append(items, item)
	}
	return items, nil
}

func firstString(m map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func firstFloat(m map[string]interface{}, keys ...string) float64 {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case string:
			var f float64
			if _, err := fmt.Sscanf(v, "%f", &f); err == nil {
				return f
			}
		}
	}
	return 0
}

func firstInt(m map[string]interface{}, keys ...string) int {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
	}
	return 0
}
