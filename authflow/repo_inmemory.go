package authflow

import (
	"context"
	"errors"
	"sync"
	"time"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu    sync.RWMutex
	flows map[string]Flow
}

// NewInMemoryRepo creates a new in-memory auth flow repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		flows: make(map[string]Flow),
	}
}

// Upsert stores or updates a pending flow
func (r *InMemoryRepo) Upsert(_ context.Context, flow *Flow) error {
	if flow == nil {
		return errors.New("flow cannot be nil")
	}
	if flow.State == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy to prevent external modifications
	r.flows[flow.State] = *flow
	return nil
}

// Get retrieves a pending flow by state
func (r *InMemoryRepo) Get(_ context.Context, state string) (*Flow, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	flow, exists := r.flows[state]
	if !exists {
		return nil, ErrNotFound
	}
	return &flow, nil
}

// Delete removes a pending flow
func (r *InMemoryRepo) Delete(_ context.Context, state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.flows, state)
	return nil
}

// Sweep removes flows created before cutoff
func (r *InMemoryRepo) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for state, flow := range r.flows {
		if flow.CreatedAt.Before(cutoff) {
			delete(r.flows, state)
			removed++
		}
	}
	return removed, nil
}
