package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jrsteele09/go-auth-session/authapi"
	"github.com/jrsteele09/go-auth-session/authflow"
	"github.com/jrsteele09/go-auth-session/metrics"
)

// InitiateAuth starts a login handshake with provider. The caller redirects the user agent to the
// returned AuthRedirectURL. The returned state is recorded and checked by HandleCallback.
func (m *Manager) InitiateAuth(ctx context.Context, provider string) (*authapi.AuthFlow, error) {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return nil, ErrInvalidProvider
	}

	flow, err := m.api.Initiate(ctx, provider)
	if err != nil {
		return nil, fmt.Errorf("[InitiateAuth] %w", err)
	}

	m.sweepFlows(ctx)
	if err := m.flows.Upsert(ctx, &authflow.Flow{
		State:       flow.State,
		Provider:    provider,
		RedirectURL: flow.AuthRedirectURL,
		CreatedAt:   m.nowTime(),
	}); err != nil {
		return nil, fmt.Errorf("[InitiateAuth] %w: %w", ErrStorageUnavailable, err)
	}

	m.logger.Info().Str("provider", provider).Msg("auth flow initiated")
	return flow, nil
}

// HandleCallback completes a handshake started by InitiateAuth. The state must belong to a pending flow
// for the same provider; a flow can be completed once. On any failure the session is left untouched.
func (m *Manager) HandleCallback(ctx context.Context, provider, authCode, state string) error {
	if authCode == "" {
		return ErrMissingAuthCode
	}
	if err := m.consumeFlow(ctx, provider, state); err != nil {
		m.metrics.Login(provider, metrics.ResultFailure)
		return fmt.Errorf("[HandleCallback] %w", err)
	}

	tokens, err := m.api.Callback(ctx, provider, authCode, state)
	if err != nil {
		m.metrics.Login(provider, metrics.ResultFailure)
		return fmt.Errorf("[HandleCallback] %w", err)
	}

	if err := m.SetTokens(ctx, *tokens); err != nil {
		m.metrics.Login(provider, metrics.ResultFailure)
		return fmt.Errorf("[HandleCallback] %w", err)
	}

	m.metrics.Login(provider, metrics.ResultSuccess)
	m.logger.Info().Str("provider", provider).Msg("login completed")
	return nil
}

// sweepFlows drops handshakes that were started and never completed
func (m *Manager) sweepFlows(ctx context.Context) {
	if m.flowTimeout <= 0 {
		return
	}
	removed, err := m.flows.Sweep(ctx, m.nowTime().Add(-m.flowTimeout))
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to sweep expired auth flows")
		return
	}
	if removed > 0 {
		m.logger.Debug().Int("removed", removed).Msg("expired auth flows swept")
	}
}

func (m *Manager) consumeFlow(ctx context.Context, provider, state string) error {
	if state == "" {
		return ErrStateMismatch
	}

	flow, err := m.flows.Get(ctx, state)
	if errors.Is(err, authflow.ErrNotFound) {
		return ErrStateMismatch
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	// Single use, whatever the outcome
	if err := m.flows.Delete(ctx, state); err != nil {
		m.logger.Warn().Err(err).Msg("failed to delete auth flow")
	}

	if flow.Provider != provider {
		return ErrStateMismatch
	}
	if flow.Expired(m.nowTime(), m.flowTimeout) {
		return ErrAuthFlowExpired
	}
	return nil
}
