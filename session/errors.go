package session

import (
	"errors"

	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

var (
	ErrInvalidProvider      = autherrors.ErrInvalidProvider
	ErrStateMismatch        = autherrors.ErrStateMismatch
	ErrAuthFlowExpired      = autherrors.ErrAuthFlowExpired
	ErrInvalidTokenResponse = autherrors.ErrInvalidTokenResponse
	ErrNoRefreshToken       = autherrors.ErrNoRefreshToken
	ErrRefreshFailed        = autherrors.ErrRefreshFailed
	ErrOpaqueToken          = autherrors.ErrOpaqueToken
	ErrNotAuthenticated     = autherrors.ErrNotAuthenticated
	ErrStorageUnavailable   = autherrors.ErrStorageUnavailable
	ErrBackendNotConfigured = autherrors.ErrBackendNotConfigured
	ErrMissingAuthCode      = errors.New("missing auth code")

	// ErrSessionChanged is returned by a refresh whose session was logged out or replaced while it ran
	ErrSessionChanged = errors.New("session changed during refresh")
)
