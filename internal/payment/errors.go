package payment

import "fmt"

// PaymentError represents a payment-specific error with a code and message.
// Codes mirror domain error codes to avoid circular imports; the handler
// layer maps them to HTTP status codes.
type PaymentError struct {
	Code    string
	Message string
}

const (
	codeInvalid     = "invalid"
	codeInternal    = "internal"
	codeUnavailable = "unavailable"
)

func (e *PaymentError) Error() string {
	return e.Message
}

// ErrorCode returns the error code for HTTP status mapping.
func (e *PaymentError) ErrorCode() string {
	return e.Code
}

// ErrorMessage returns the user-facing message.
func (e *PaymentError) ErrorMessage() string {
	return e.Message
}

var (
	// ErrMissingCredentials is returned when gateway credentials are not configured.
	ErrMissingCredentials = &PaymentError{Code: codeInternal, Message: "Payment gateway credentials are required"}

	// ErrSignatureMismatch is returned when callback signature verification fails.
	ErrSignatureMismatch = &PaymentError{Code: codeInvalid, Message: "Payment signature verification failed"}

	// ErrInvalidAmount is returned for non-positive order amounts.
	ErrInvalidAmount = &PaymentError{Code: codeInvalid, Message: "Amount must be positive"}
)

// ErrGateway wraps an unexpected gateway response.
func ErrGateway(op string, err error) error {
	return &PaymentError{
		Code:    codeUnavailable,
		Message: fmt.Sprintf("Razorpay %s failed: %v", op, err),
	}
}
