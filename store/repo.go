package store

import (
	"context"

	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = autherrors.ErrNotFound

// Repo is durable key/value storage that survives a process restart but is not sent with HTTP requests.
type Repo interface {
	// Get returns the value stored under key or ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, replacing any existing value
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
