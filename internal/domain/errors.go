package domain

import "errors"

// Error taxonomy shared by every component. Lower layers wrap these with
// fmt.Errorf("%w: ...") and transports map them with errors.Is.
var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrAuthorizationDenied    = errors.New("authorization denied")
	ErrNotFound               = errors.New("not found")
	ErrValidation             = errors.New("validation error")
	ErrConflict               = errors.New("conflict")
)

// Error codes sent to clients in websocket error events.
const (
	ErrCodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	ErrCodeAuthorizationDenied    = "AUTHORIZATION_DENIED"
	ErrCodeNotFound               = "NOT_FOUND"
	ErrCodeValidation             = "VALIDATION_ERROR"
	ErrCodeConflict               = "CONFLICT"
	ErrCodeInternal               = "INTERNAL_ERROR"
	ErrCodeUnknownEvent           = "UNKNOWN_EVENT"
)

// ErrorCode maps err onto the client-facing code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthenticationRequired):
		return ErrCodeAuthenticationRequired
	case errors.Is(err, ErrAuthorizationDenied):
		return ErrCodeAuthorizationDenied
	case errors.Is(err, ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, ErrValidation):
		return ErrCodeValidation
	case errors.Is(err, ErrConflict):
		return ErrCodeConflict
	default:
		return ErrCodeInternal
	}
}
