// Package redisstore implements store.Repo on top of Redis so several client processes can share one session.
package redisstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-auth-session/store"
	"github.com/redis/go-redis/v9"
)

var _ store.Repo = (*Repo)(nil)

type Config struct {
	Address  string
	Password string
	Database int
	Prefix   string
}

// Repo stores values as plain Redis strings under Prefix+key
type Repo struct {
	client redis.UniversalClient
	prefix string
}

// New dials Redis using cfg
func New(cfg Config) *Repo {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.Database,
	}), cfg.Prefix)
}

// NewWithClient wraps an existing client
func NewWithClient(client redis.UniversalClient, prefix string) *Repo {
	return &Repo{client: client, prefix: prefix}
}

// Ping checks the connection
func (r *Repo) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("[redisstore Ping] %w", err)
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, key string) (string, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("[redisstore Get] %s: %w", key, err)
	}
	return value, nil
}

func (r *Repo) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	if err := r.client.Set(ctx, r.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("[redisstore Set] %s: %w", key, err)
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("[redisstore Delete] %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client
func (r *Repo) Close() error {
	return r.client.Close()
}
