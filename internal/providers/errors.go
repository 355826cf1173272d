package providers

import (
	"errors"
	"fmt"
)

// ValidationError means the request is client-correctable. Field names the
// first offending input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// AuthenticationError means the credential/token exchange with a gateway
// failed. Retry policy belongs to the caller.
type AuthenticationError struct {
	Provider Name
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("%s: authentication failed: %v", e.Provider, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// GatewayError means the external call failed or returned an unexpected
// shape: network failure, non-2xx response, malformed payload. Adapters
// never interpret partial responses as success.
type GatewayError struct {
	Provider Name
	Cause    error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s: gateway error: %v", e.Provider, e.Cause)
}

func (e *GatewayError) Unwrap() error {
	return e.Cause
}

// NewGatewayError wraps cause unless it is already a classified error.
func NewGatewayError(provider Name, cause error) error {
	var authErr *AuthenticationError
	if errors.As(cause, &authErr) {
		return cause
	}
	var gwErr *GatewayError
	if errors.As(cause, &gwErr) {
		return cause
	}
	return &GatewayError{Provider: provider, Cause: cause}
}

// ErrUnsupported marks an operation no configured gateway can serve,
// either because the capability is not implemented or the adapter was
// never registered.
var ErrUnsupported = errors.New("operation not supported by provider")
