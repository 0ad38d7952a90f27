package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/store"
)

const (
	keyPrefix = "auth_flow:"
	// indexKey maps every pending state to its creation time so stale flows can be swept
	indexKey = "auth_flows"
)

var _ Repo = (*StoreRepo)(nil)

// StoreRepo keeps pending flows in durable storage so a flow started by one process can be completed by another
type StoreRepo struct {
	repo store.Repo
	mu   sync.Mutex
}

func NewStoreRepo(repo store.Repo) *StoreRepo {
	return &StoreRepo{repo: repo}
}

func (r *StoreRepo) Upsert(ctx context.Context, flow *Flow) error {
	if flow == nil {
		return errors.New("flow cannot be nil")
	}
	if flow.State == "" {
		return errors.New("state cannot be empty")
	}
	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("[authflow Upsert] encode: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.repo.Set(ctx, keyPrefix+flow.State, string(data)); err != nil {
		return fmt.Errorf("[authflow Upsert] %w", err)
	}
	index, err := r.loadIndex(ctx)
	if err != nil {
		return fmt.Errorf("[authflow Upsert] %w", err)
	}
	index[flow.State] = flow.CreatedAt
	if err := r.saveIndex(ctx, index); err != nil {
		return fmt.Errorf("[authflow Upsert] %w", err)
	}
	return nil
}

func (r *StoreRepo) Get(ctx context.Context, state string) (*Flow, error) {
	if state == "" {
		return nil, errors.New("state cannot be empty")
	}
	raw, err := r.repo.Get(ctx, keyPrefix+state)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("[authflow Get] %w", err)
	}
	var flow Flow
	if err := json.Unmarshal([]byte(raw), &flow); err != nil {
		return nil, fmt.Errorf("[authflow Get] decode: %w", err)
	}
	return &flow, nil
}

func (r *StoreRepo) Delete(ctx context.Context, state string) error {
	if state == "" {
		return errors.New("state cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.repo.Delete(ctx, keyPrefix+state); err != nil {
		return fmt.Errorf("[authflow Delete] %w", err)
	}
	index, err := r.loadIndex(ctx)
	if err != nil {
		return fmt.Errorf("[authflow Delete] %w", err)
	}
	if _, ok := index[state]; !ok {
		return nil
	}
	delete(index, state)
	if err := r.saveIndex(ctx, index); err != nil {
		return fmt.Errorf("[authflow Delete] %w", err)
	}
	return nil
}

// Sweep removes flows created before cutoff
func (r *StoreRepo) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index, err := r.loadIndex(ctx)
	if err != nil {
		return 0, fmt.Errorf("[authflow Sweep] %w", err)
	}
	removed := 0
	for state, created := range index {
		if !created.Before(cutoff) {
			continue
		}
		if err := r.repo.Delete(ctx, keyPrefix+state); err != nil {
			return removed, fmt.Errorf("[authflow Sweep] %w", err)
		}
		delete(index, state)
		removed++
	}
	if removed == 0 {
		return 0, nil
	}
	if err := r.saveIndex(ctx, index); err != nil {
		return removed, fmt.Errorf("[authflow Sweep] %w", err)
	}
	return removed, nil
}

func (r *StoreRepo) loadIndex(ctx context.Context) (map[string]time.Time, error) {
	index := make(map[string]time.Time)
	raw, err := r.repo.Get(ctx, indexKey)
	if errors.Is(err, store.ErrNotFound) {
		return index, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &index); err != nil {
		return nil, fmt.Errorf("decode index: %w", err)
	}
	return index, nil
}

func (r *StoreRepo) saveIndex(ctx context.Context, index map[string]time.Time) error {
	if len(index) == 0 {
		return r.repo.Delete(ctx, indexKey)
	}
	data, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	return r.repo.Set(ctx, indexKey, string(data))
}
