package session

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// Identity is what the held access token says about its holder.
// The claims are read without signature verification and are for display only.
type Identity struct {
	Subject   string
	Issuer    string
	Email     string
	Audience  []string
	ExpiresAt time.Time
}

type identityClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// Identity decodes the held access token. Opaque tokens return ErrOpaqueToken.
func (m *Manager) Identity(ctx context.Context) (Identity, error) {
	token, ok := m.AccessToken(ctx)
	if !ok {
		return Identity{}, ErrNotAuthenticated
	}

	var claims identityClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrOpaqueToken, err)
	}

	identity := Identity{
		Subject:  claims.Subject,
		Issuer:   claims.Issuer,
		Email:    claims.Email,
		Audience: claims.Audience,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

type tokenSource struct {
	ctx     context.Context
	manager *Manager
}

// TokenSource exposes the session to golang.org/x/oauth2 consumers. An expired token triggers
// RefreshAccessToken before it is returned.
func (m *Manager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return tokenSource{ctx: ctx, manager: m}
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	m := ts.manager
	if !m.IsAuthenticated(ts.ctx) {
		return nil, ErrNotAuthenticated
	}
	if m.expired() {
		if err := m.RefreshAccessToken(ts.ctx); err != nil {
			return nil, err
		}
	}

	accessToken, ok := m.AccessToken(ts.ctx)
	if !ok {
		return nil, ErrNotAuthenticated
	}
	refreshToken, _ := m.RefreshToken()
	expiry, _ := m.ExpirationTime()
	return &oauth2.Token{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		RefreshToken: refreshToken,
		Expiry:       expiry,
	}, nil
}
