package errors

import "errors"

// Common error types for the auth session client
var (
	// Auth flow errors
	ErrInvalidProvider = errors.New("invalid provider")
	ErrStateMismatch   = errors.New("auth flow state mismatch")
	ErrAuthFlowExpired = errors.New("auth flow expired")

	// Token errors
	ErrInvalidTokenResponse = errors.New("invalid token response")
	ErrNoRefreshToken       = errors.New("no refresh token")
	ErrRefreshFailed        = errors.New("refresh failed")
	ErrOpaqueToken          = errors.New("access token is not a JWT")
	ErrNotAuthenticated     = errors.New("not authenticated")

	// Backend errors
	ErrBackendNotConfigured = errors.New("backend endpoint not configured")
	ErrInvalidResponse      = errors.New("invalid backend response")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrNotFound           = errors.New("not found")
)

// Join returns an error that wraps the given errors, discarding nils
func Join(errs ...error) error {
	return errors.Join(errs...)
}
