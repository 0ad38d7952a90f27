// Package authflow records pending login handshakes so the state echoed back at callback time can be checked.
package authflow

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no pending flow exists for a state value
var ErrNotFound = errors.New("auth flow not found")

// Flow is a login handshake started by Initiate and not yet completed
type Flow struct {
	State       string    `json:"state"`
	Provider    string    `json:"provider"`
	RedirectURL string    `json:"redirect_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the flow is older than timeout at now
func (f Flow) Expired(now time.Time, timeout time.Duration) bool {
	return timeout > 0 && now.Sub(f.CreatedAt) > timeout
}

type Repo interface {
	Upsert(ctx context.Context, flow *Flow) error
	Get(ctx context.Context, state string) (*Flow, error)
	Delete(ctx context.Context, state string) error
	// Sweep removes flows created before cutoff and returns how many it removed
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}
