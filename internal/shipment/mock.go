package shipment

import (
	"context"
	"fmt"
)

// MockGateway is a mock shipment gateway for testing.
// Simulates the aggregator without network calls.
type MockGateway struct {
	// CreateShipmentFunc allows customizing shipment creation behavior
	CreateShipmentFunc func(ctx context.Context, params CreateShipmentParams) (*Shipment, error)

	// AssignCourierFunc allows customizing courier assignment behavior
	AssignCourierFunc func(ctx context.Context, shipmentID, courierID int64) (*CourierAssignment, error)

	// GenerateLabelFunc allows customizing label generation behavior
	GenerateLabelFunc func(ctx context.Context, shipmentID int64) (*Label, error)

	// TrackFunc allows customizing tracking behavior
	TrackFunc func(ctx context.Context, awb string) (*TrackingInfo, error)

	// CancelShipmentFunc allows customizing cancellation behavior
	CancelShipmentFunc func(ctx context.Context, params CancelParams) (*CancelResult, error)

	// CreateReturnPickupFunc allows customizing reverse pickup behavior
	CreateReturnPickupFunc func(ctx context.Context, params ReturnPickupParams) (*ReturnPickup, error)

	// CallLog tracks method calls for test assertions
	CallLog []string
}

// Compile-time check that MockGateway implements Gateway.
var _ Gateway = (*MockGateway)(nil)

// NewMockGateway creates a new mock shipment gateway.
func NewMockGateway() *MockGateway {
	return &MockGateway{CallLog: []string{}}
}

// CreateShipment creates a mock shipment.
func (m *MockGateway) CreateShipment(ctx context.Context, params CreateShipmentParams) (*Shipment, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateShipment(%s)", params.OrderRef))

	if m.CreateShipmentFunc != nil {
		return m.CreateShipmentFunc(ctx, params)
	}

	return &Shipment{OrderID: 1001, ShipmentID: 2001, Status: "NEW"}, nil
}

// AssignCourier assigns a mock courier.
func (m *MockGateway) AssignCourier(ctx context.Context, shipmentID, courierID int64) (*CourierAssignment, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("AssignCourier(%d, %d)", shipmentID, courierID))

	if m.AssignCourierFunc != nil {
		return m.AssignCourierFunc(ctx, shipmentID, courierID)
	}

	return &CourierAssignment{AWBCode: "AWB123456789", CourierID: 51, CourierName: "Mock Express"}, nil
}

// GenerateLabel generates a mock label.
func (m *MockGateway) GenerateLabel(ctx context.Context, shipmentID int64) (*Label, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("GenerateLabel(%d)", shipmentID))

	if m.GenerateLabelFunc != nil {
		return m.GenerateLabelFunc(ctx, shipmentID)
	}

	return &Label{LabelURL: "https://labels.example.com/mock.pdf"}, nil
}

// Track returns mock tracking info.
func (m *MockGateway) Track(ctx context.Context, awb string) (*TrackingInfo, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("Track(%s)", awb))

	if m.TrackFunc != nil {
		return m.TrackFunc(ctx, awb)
	}

	return &TrackingInfo{AWB: awb, CurrentStatus: "In Transit"}, nil
}

// CancelShipment cancels a mock shipment.
func (m *MockGateway) CancelShipment(ctx context.Context, params CancelParams) (*CancelResult, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CancelShipment(%d, %d)", params.OrderID, params.ShipmentID))

	if m.CancelShipmentFunc != nil {
		return m.CancelShipmentFunc(ctx, params)
	}

	return &CancelResult{Strategy: "order_id"}, nil
}

// CreateReturnPickup creates a mock reverse pickup.
func (m *MockGateway) CreateReturnPickup(ctx context.Context, params ReturnPickupParams) (*ReturnPickup, error) {
	m.CallLog = append(m.CallLog, fmt.Sprintf("CreateReturnPickup(%s)", params.OrderRef))

	if m.CreateReturnPickupFunc != nil {
		return m.CreateReturnPickupFunc(ctx, params)
	}

	return &ReturnPickup{OrderID: 3001, ShipmentID: 4001, AWBCode: "RAWB987654321"}, nil
}

// Calls returns the number of calls matching the given method prefix.
func (m *MockGateway) Calls(prefix string) int {
	n := 0
	for _, c := range m.CallLog {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}
