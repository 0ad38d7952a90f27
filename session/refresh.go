package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-auth-session/metrics"
)

const refreshKey = "refresh"

// RefreshAccessToken exchanges the refresh token for a new token pair.
//
// With refresh disabled (the default) this is a no-op and the session relies on the auth cookie lifetime
// plus a new login. Concurrent callers share one in-flight refresh.
func (m *Manager) RefreshAccessToken(ctx context.Context) error {
	ch := m.refreshGroup.DoChan(refreshKey, func() (any, error) {
		return nil, m.refresh(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) refresh(ctx context.Context) error {
	if !m.refreshEnabled {
		m.metrics.Refresh(metrics.ResultSkipped)
		m.logger.Debug().Msg("token refresh disabled")
		return nil
	}

	m.mu.RLock()
	refreshToken, generation := m.refreshToken, m.generation
	m.mu.RUnlock()
	if refreshToken == "" {
		return m.failRefresh(ctx, generation, ErrNoRefreshToken)
	}

	tokens, err := m.api.Refresh(ctx, refreshToken)
	if err != nil {
		return m.failRefresh(ctx, generation, fmt.Errorf("[RefreshAccessToken] %w: %w", ErrRefreshFailed, err))
	}
	err = m.storeTokens(ctx, *tokens, &generation)
	if errors.Is(err, ErrSessionChanged) {
		m.metrics.Refresh(metrics.ResultSkipped)
		m.logger.Info().Msg("session changed during refresh, refreshed tokens dropped")
		return fmt.Errorf("[RefreshAccessToken] %w", err)
	}
	if err != nil {
		return m.failRefresh(ctx, generation, fmt.Errorf("[RefreshAccessToken] %w", err))
	}

	m.metrics.Refresh(metrics.ResultSuccess)
	m.logger.Info().Msg("access token refreshed")
	return nil
}

// failRefresh logs out the session the refresh started from, never one set since
func (m *Manager) failRefresh(ctx context.Context, generation uint64, err error) error {
	m.metrics.Refresh(metrics.ResultFailure)
	m.logger.Warn().Err(err).Bool("logout", m.logoutOnRefreshFailure).Msg("token refresh failed")
	if m.logoutOnRefreshFailure {
		if logoutErr := m.logout(ctx, &generation); logoutErr != nil {
			m.logger.Error().Err(logoutErr).Msg("logout after failed refresh")
		}
	}
	return err
}
