package domain

import (
	"context"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Order-related domain errors.
var (
	ErrOrderNotFound          = &Error{Code: ENOTFOUND, Message: "Order not found"}
	ErrEmptyItems             = &Error{Code: EINVALID, Message: "Order must contain at least one item"}
	ErrMissingPaymentMethod   = &Error{Code: EINVALID, Message: "Payment method is required"}
	ErrMissingAddress         = &Error{Code: EINVALID, Message: "Shipping address is required"}
	ErrMissingAmounts         = &Error{Code: EINVALID, Message: "Subtotal and total are required"}
	ErrInvalidPincode         = &Error{Code: EINVALID, Message: "Postal code must be a valid 6-digit PIN"}
	ErrInvalidStatus          = &Error{Code: EINVALID, Message: "Invalid order status"}
	ErrStatusTransition       = &Error{Code: ECONFLICT, Message: "Order status transition not allowed"}
	ErrPaymentNotPending      = &Error{Code: ECONFLICT, Message: "Payment is not pending"}
	ErrSignatureMismatch      = &Error{Code: EINVALID, Message: "Payment signature verification failed"}
	ErrShipmentExists         = &Error{Code: ECONFLICT, Message: "Shipment already created for this order"}
	ErrReturnAlreadyRequested = &Error{Code: ECONFLICT, Message: "Return already requested for this order"}
	ErrReturnNotRequested     = &Error{Code: ECONFLICT, Message: "Order has no pending return request"}
	ErrReturnCompleted        = &Error{Code: ECONFLICT, Message: "Return already completed"}
	ErrReturnNotReturnable    = &Error{Code: EINVALID, Message: "Order is not eligible for return"}
)

// PaymentMethod identifies how the customer pays for an order.
type PaymentMethod string

const (
	PaymentMethodCOD      PaymentMethod = "COD"
	PaymentMethodStripe   PaymentMethod = "STRIPE"
	PaymentMethodRazorpay PaymentMethod = "RAZORPAY"
)

// IsValid reports whether m is a recognized payment method.
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodStripe, PaymentMethodRazorpay:
		return true
	}
	return false
}

// PaymentStatus tracks the payment lifecycle of an order.
// Every order starts pending regardless of payment method.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// OrderStatus tracks fulfillment progress.
type OrderStatus string

const (
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusPacked         OrderStatus = "packed"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// OrderStatuses lists every valid order status, in forward order.
var OrderStatuses = []OrderStatus{
	OrderStatusProcessing,
	OrderStatusPacked,
	OrderStatusShipped,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// IsValid reports whether s is a recognized order status.
func (s OrderStatus) IsValid() bool {
	for _, v := range OrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// orderStatusTransitions is the closed transition table for order status.
// Statuses only move forward through the fulfillment sequence; cancelled is
// the single exit available before delivery.
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusProcessing:     {OrderStatusPacked, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusPacked:         {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:        {OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusOutForDelivery: {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered:      {},
	OrderStatusCancelled:      {},
}

// CanTransitionTo reports whether the status may move from s to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, v := range orderStatusTransitions[s] {
		if v == next {
			return true
		}
	}
	return false
}

// ReturnStatus tracks the return/refund lifecycle of an order.
type ReturnStatus string

const (
	ReturnStatusNone       ReturnStatus = "none"
	ReturnStatusRequested  ReturnStatus = "requested"
	ReturnStatusApproved   ReturnStatus = "approved"
	ReturnStatusRejected   ReturnStatus = "rejected"
	ReturnStatusCompleting ReturnStatus = "completing"
	ReturnStatusCompleted  ReturnStatus = "completed"
)

// returnStatusTransitions is the closed transition table for return status.
// Completing is the claim a webhook delivery takes before moving money; it
// goes back to approved if the refund or replacement fails. Completed is
// terminal: once reached the record is immutable.
var returnStatusTransitions = map[ReturnStatus][]ReturnStatus{
	ReturnStatusNone:       {ReturnStatusRequested},
	ReturnStatusRequested:  {ReturnStatusApproved, ReturnStatusRejected},
	ReturnStatusApproved:   {ReturnStatusCompleting},
	ReturnStatusCompleting: {ReturnStatusCompleted, ReturnStatusApproved},
	ReturnStatusRejected:   {},
	ReturnStatusCompleted:  {},
}

// CanTransitionTo reports whether the return status may move from s to next.
func (s ReturnStatus) CanTransitionTo(next ReturnStatus) bool {
	for _, v := range returnStatusTransitions[s] {
		if v == next {
			return true
		}
	}
	return false
}

// ReturnType identifies what the customer asked for when returning.
type ReturnType string

const (
	ReturnTypeNone        ReturnType = ""
	ReturnTypeRefund      ReturnType = "refund"
	ReturnTypeReplacement ReturnType = "replacement"
)

// IsValid reports whether t is a recognized return type for a new request.
func (t ReturnType) IsValid() bool {
	return t == ReturnTypeRefund || t == ReturnTypeReplacement
}

// ReturnPickupState tracks the reverse-logistics shipment, driven by
// carrier webhook events.
type ReturnPickupState string

const (
	ReturnPickupScheduled ReturnPickupState = "scheduled"
	ReturnPickupCancelled ReturnPickupState = "cancelled"
	ReturnPickupFailed    ReturnPickupState = "failed"
	ReturnPickupPicked    ReturnPickupState = "picked"
)

// OrderItem is a line item captured as a snapshot at order time.
// Prices and names do not change retroactively with the catalog.
type OrderItem struct {
	ProductID string  `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Image     string  `json:"image,omitempty"`
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
}

// ShippingAddress is the embedded delivery address value object.
type ShippingAddress struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
}

// pinPattern matches a 6-digit Indian PIN that does not start with zero.
var pinPattern = regexp.MustCompile(`^[1-9][0-9]{5}$`)

// ValidPincode reports whether pin is a well-formed Indian PIN code.
func ValidPincode(pin string) bool {
	return pinPattern.MatchString(pin)
}

// ShipmentInfo captures third-party shipment identifiers. It is populated
// only after a successful gateway call and may remain entirely absent.
type ShipmentInfo struct {
	OrderID     int64  `json:"order_id,omitempty"`
	ShipmentID  int64  `json:"shipment_id,omitempty"`
	AWBCode     string `json:"awb_code,omitempty"`
	CourierID   int64  `json:"courier_id,omitempty"`
	CourierName string `json:"courier_name,omitempty"`
	LabelURL    string `json:"label_url,omitempty"`
}

// PaymentInfo stores the gateway identifiers recorded by payment verification.
type PaymentInfo struct {
	Gateway   string `json:"gateway,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// RefundInfo records a refund issued for a returned order.
type RefundInfo struct {
	Gateway  string  `json:"gateway"`
	RefundID string  `json:"refund_id,omitempty"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Status   string  `json:"status"`
}

// ReturnEvent is one entry in the append-only return audit trail.
type ReturnEvent struct {
	Action string    `json:"action"`
	By     string    `json:"by"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

// Order is the persisted record of a customer's purchase, its payment
// state, fulfillment state, and any return/replacement activity.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          *uuid.UUID      `json:"user_id,omitempty"` // nil for guest checkout
	Items           []OrderItem     `json:"items"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	Notes           string          `json:"notes,omitempty"`
	PaymentMethod   PaymentMethod   `json:"payment_method"`
	PaymentStatus   PaymentStatus   `json:"payment_status"`
	OrderStatus     OrderStatus     `json:"order_status"`

	Subtotal        float64 `json:"subtotal"`
	ShippingCharges float64 `json:"shipping_charges"`
	Tax             float64 `json:"tax"`
	Total           float64 `json:"total"`

	Payment  *PaymentInfo  `json:"payment,omitempty"`
	Shipment *ShipmentInfo `json:"shiprocket,omitempty"`

	// ShipmentPending marks orders whose shipment creation failed during
	// placement and must be retried out-of-band.
	ShipmentPending  bool `json:"shipment_pending"`
	ShipmentAttempts int  `json:"-"`

	ReturnStatus      ReturnStatus      `json:"return_status"`
	ReturnType        ReturnType        `json:"return_type,omitempty"`
	ReturnAWB         string            `json:"return_awb,omitempty"`
	ReturnPickupState ReturnPickupState `json:"return_pickup_state,omitempty"`
	ReturnHistory     []ReturnEvent     `json:"return_history,omitempty"`
	ReturnResolvedAt  *time.Time        `json:"return_resolved_at,omitempty"`

	RefundInfo         *RefundInfo `json:"refund_info,omitempty"`
	ReplacementOrderID *uuid.UUID  `json:"replacement_order_id,omitempty"`

	// Version increments on every mutation; conditional updates compare it
	// to detect concurrent writers.
	Version   int       `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OrderStore provides persistence for orders. All mutating operations are
// conditional: they apply only when the stored row still satisfies the
// stated precondition, and report false when it does not. That keeps
// concurrent admin updates and webhook deliveries from silently discarding
// each other's writes.
type OrderStore interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id uuid.UUID) (*Order, error)

	// List returns orders that are paid or COD, newest first.
	List(ctx context.Context) ([]Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Order, error)

	// FindByReturnAWB locates the order owning a return-pickup waybill.
	// Returns ErrOrderNotFound when no order matches.
	FindByReturnAWB(ctx context.Context, awb string) (*Order, error)

	// UpdateStatus moves order_status from exactly `from` to `to`.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to OrderStatus) (bool, error)

	// MarkPaid transitions payment_status pending->paid and records the
	// gateway identifiers. Applies at most once per order.
	MarkPaid(ctx context.Context, id uuid.UUID, info PaymentInfo) (bool, error)

	// SetShipment stores shipment metadata; applies only while the order
	// has no shipment yet, guaranteeing at most one courier assignment.
	SetShipment(ctx context.Context, id uuid.UUID, info ShipmentInfo) (bool, error)
	SetShipmentPending(ctx context.Context, id uuid.UUID, pending bool) error

	// ClaimPendingShipments returns up to limit orders flagged for shipment
	// retry, incrementing their attempt counter.
	ClaimPendingShipments(ctx context.Context, limit int) ([]Order, error)

	// UpdateAddress replaces the shipping address and, when notes is
	// non-nil, the order notes.
	UpdateAddress(ctx context.Context, id uuid.UUID, addr ShippingAddress, notes *string) error
	Delete(ctx context.Context, id uuid.UUID) error

	// RequestReturn records a customer return request; applies only while
	// return_status is none.
	RequestReturn(ctx context.Context, id uuid.UUID, rt ReturnType, ev ReturnEvent) (bool, error)

	// ResolveReturnRequest moves return_status requested->approved or
	// requested->rejected, storing the reverse-pickup waybill on approval.
	ResolveReturnRequest(ctx context.Context, id uuid.UUID, to ReturnStatus, awb string, ev ReturnEvent) (bool, error)

	SetReturnPickupState(ctx context.Context, id uuid.UUID, state ReturnPickupState, ev ReturnEvent) error

	// ClaimReturnCompletion moves return_status approved->completing. The
	// webhook flow claims the return before issuing a refund or creating a
	// replacement, so concurrent deliveries of the same event move money at
	// most once.
	ClaimReturnCompletion(ctx context.Context, id uuid.UUID) (bool, error)

	// ReleaseReturnCompletion moves return_status completing->approved so a
	// claim whose refund or replacement failed can be retried by the next
	// delivery.
	ReleaseReturnCompletion(ctx context.Context, id uuid.UUID) error

	// CompleteReturn stamps the terminal return state. Applies only while
	// return_status is completing, held by the claiming delivery.
	CompleteReturn(ctx context.Context, id uuid.UUID, refund *RefundInfo, replacementID *uuid.UUID, ev ReturnEvent) (bool, error)
}
