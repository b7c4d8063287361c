package shipment

import (
	"context"
	"time"
)

// Gateway defines the interface for shipment operations.
// Implementations encapsulate a third-party logistics aggregator behind a
// stable internal surface, hiding authentication and request shaping.
type Gateway interface {
	// CreateShipment registers a forward order with the aggregator and
	// returns the provider's order and shipment identifiers.
	CreateShipment(ctx context.Context, params CreateShipmentParams) (*Shipment, error)

	// AssignCourier requests a carrier waybill for the shipment.
	// courierID 0 lets the provider choose the courier.
	AssignCourier(ctx context.Context, shipmentID int64, courierID int64) (*CourierAssignment, error)

	// GenerateLabel produces a printable label for the shipment.
	GenerateLabel(ctx context.Context, shipmentID int64) (*Label, error)

	// Track returns the live tracking payload for a waybill.
	Track(ctx context.Context, awb string) (*TrackingInfo, error)

	// CancelShipment cancels by provider order id first, falling back to
	// shipment id, and reports which strategy succeeded.
	CancelShipment(ctx context.Context, params CancelParams) (*CancelResult, error)

	// CreateReturnPickup builds a reverse-logistics shipment to collect a
	// returned item from the customer.
	CreateReturnPickup(ctx context.Context, params ReturnPickupParams) (*ReturnPickup, error)
}

// CreateShipmentParams contains the order fields mapped onto the provider's
// expected request shape.
type CreateShipmentParams struct {
	// OrderRef is our order identifier, sent as the provider's order_id.
	OrderRef string
	OrderDate time.Time

	Billing ShipmentAddress
	Items   []ShipmentItem

	PaymentMethod string // "COD" or "Prepaid"
	Subtotal      float64
	Total         float64
}

// ShipmentAddress is the consignee address for a shipment.
type ShipmentAddress struct {
	Name     string
	Phone    string
	Address  string
	Address2 string
	City     string
	State    string
	Pincode  string
	Country  string
	Email    string
}

// ShipmentItem is one provider line item.
type ShipmentItem struct {
	Name     string
	SKU      string
	Units    int
	Price    float64
}

// Shipment holds the provider identifiers returned by CreateShipment.
type Shipment struct {
	OrderID    int64
	ShipmentID int64
	Status     string
}

// CourierAssignment holds the waybill issued by AssignCourier.
type CourierAssignment struct {
	AWBCode     string
	CourierID   int64
	CourierName string
}

// Label is a generated shipping label.
type Label struct {
	LabelURL string
}

// TrackingInfo is the live carrier tracking payload, passed through
// verbatim from the provider.
type TrackingInfo struct {
	AWB           string
	CurrentStatus string
	CourierName   string
	ETD           string
	Events        []TrackingEvent
}

// TrackingEvent is a single scan in the tracking history.
type TrackingEvent struct {
	Date     string
	Status   string
	Activity string
	Location string
}

// CancelParams identifies the shipment to cancel. OrderID is tried first;
// ShipmentID is the fallback.
type CancelParams struct {
	OrderID    int64
	ShipmentID int64
}

// CancelResult reports a successful cancellation and the strategy used
// ("order_id" or "shipment_id").
type CancelResult struct {
	Strategy string
}

// ReturnPickupParams contains the fields for a reverse-logistics request.
type ReturnPickupParams struct {
	OrderRef  string
	OrderDate time.Time

	// Pickup is the customer address the courier collects from.
	Pickup ShipmentAddress

	// Drop is the warehouse address the item returns to.
	Drop ShipmentAddress

	Items []ShipmentItem
	Total float64
}

// ReturnPickup holds the provider identifiers for a reverse pickup.
type ReturnPickup struct {
	OrderID    int64
	ShipmentID int64
	AWBCode    string
}
