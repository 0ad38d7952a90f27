package session

import "context"

// VerifyToken reports whether token is valid.
//
// When token is the held access token the check is local: an unexpired token is valid without a network
// call, an expired one triggers RefreshAccessToken and is valid if a token is held afterwards. Any other
// token, the empty token included, is checked by the backend verify endpoint. Errors count as invalid.
func (m *Manager) VerifyToken(ctx context.Context, token string) bool {
	if current, ok := m.AccessToken(ctx); ok && current == token {
		if !m.expired() {
			m.metrics.Verification("local", true)
			return true
		}
		if err := m.RefreshAccessToken(ctx); err != nil {
			m.logger.Warn().Err(err).Msg("refresh during verify failed")
		}
		_, valid := m.AccessToken(ctx)
		m.metrics.Verification("local", valid)
		return valid
	}

	valid, err := m.api.Verify(ctx, token)
	if err != nil {
		m.logger.Warn().Err(err).Msg("token verification failed")
		m.metrics.Verification("remote", false)
		return false
	}
	m.metrics.Verification("remote", valid)
	return valid
}
