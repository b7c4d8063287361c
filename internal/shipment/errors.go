package shipment

import "fmt"

// ============================================================================
// SHIPMENT ERROR CODES
// ============================================================================
// These constants mirror domain error codes to avoid circular imports.
// The handler layer maps these to HTTP status codes.

const (
	codeConflict    = "conflict"
	codeInternal    = "internal"
	codeInvalid     = "invalid"
	codeNotFound    = "not_found"
	codeUnavailable = "unavailable" // provider-side failures
)

// ============================================================================
// SHIPMENT ERROR TYPE
// ============================================================================

// ShipmentError represents a shipment-specific error with a code and message.
// It implements the domain.Error interface pattern for consistent HTTP status mapping.
type ShipmentError struct {
	Code    string
	Message string
}

func (e *ShipmentError) Error() string {
	return e.Message
}

// ErrorCode returns the error code for HTTP status mapping.
func (e *ShipmentError) ErrorCode() string {
	return e.Code
}

// ErrorMessage returns the user-facing message.
func (e *ShipmentError) ErrorMessage() string {
	return e.Message
}

// newShipmentError creates a new shipment error.
func newShipmentError(code, message string) *ShipmentError {
	return &ShipmentError{Code: code, Message: message}
}

// ============================================================================
// SHIPMENT DOMAIN ERRORS
// ============================================================================

var (
	// ErrMissingCredentials is returned when gateway credentials are not configured.
	ErrMissingCredentials = newShipmentError(codeInternal, "Shipment gateway credentials are required")

	// ErrNoItems is returned when a shipment has no line items.
	ErrNoItems = newShipmentError(codeInvalid, "At least one item is required")

	// ErrShipmentNotFound is returned when the provider does not know the shipment.
	ErrShipmentNotFound = newShipmentError(codeNotFound, "Shipment not found")

	// ErrNoCourier is returned when the provider cannot assign any courier.
	ErrNoCourier = newShipmentError(codeUnavailable, "No courier available for shipment")

	// ErrCancelFailed is returned when neither cancellation strategy succeeded.
	ErrCancelFailed = newShipmentError(codeConflict, "Shipment could not be cancelled")

	// ErrTrackingFailed is returned when live tracking cannot be retrieved.
	ErrTrackingFailed = newShipmentError(codeUnavailable, "Tracking information unavailable")
)

// ErrInvalidPhone reports a phone number that does not normalize to 10 digits.
func ErrInvalidPhone(phone string) error {
	return &ShipmentError{
		Code:    codeInvalid,
		Message: fmt.Sprintf("Phone %q must normalize to exactly 10 digits for return pickup", phone),
	}
}

// ErrInvalidPincode reports a pincode that is not exactly 6 digits.
func ErrInvalidPincode(pin string) error {
	return &ShipmentError{
		Code:    codeInvalid,
		Message: fmt.Sprintf("Pincode %q must be exactly 6 digits for return pickup", pin),
	}
}

// ErrProvider wraps an unexpected provider response.
func ErrProvider(op string, status int, body string) error {
	return &ShipmentError{
		Code:    codeUnavailable,
		Message: fmt.Sprintf("Shiprocket %s failed with status %d: %s", op, status, body),
	}
}
