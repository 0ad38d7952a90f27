package session_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/authapi"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/store"
	"github.com/stretchr/testify/require"
)

type failingRepo struct {
	err error
}

func (r failingRepo) Get(context.Context, string) (string, error) { return "", r.err }
func (r failingRepo) Set(context.Context, string, string) error   { return r.err }
func (r failingRepo) Delete(context.Context, string) error        { return r.err }

func TestNewRequiresCollaborators(t *testing.T) {
	f := setupTestFixture(t)

	_, err := session.New(t.Context(), nil, f.cookies, f.durable)
	require.Error(t, err)
	_, err = session.New(t.Context(), f.api, nil, f.durable)
	require.Error(t, err)
	_, err = session.New(t.Context(), f.api, f.cookies, nil)
	require.Error(t, err)
}

func TestNewFailsWhenStorageUnavailable(t *testing.T) {
	f := setupTestFixture(t)

	_, err := session.New(t.Context(), f.api, f.cookies, failingRepo{err: errors.New("disk gone")})
	require.ErrorIs(t, err, session.ErrStorageUnavailable)
}

func TestNewSessionIsLoggedOut(t *testing.T) {
	f := setupTestFixture(t)

	require.False(t, f.manager.IsAuthenticated(t.Context()))
	require.False(t, f.manager.IsFresh(t.Context()))
	require.Equal(t, session.LoggedOut, f.manager.State(t.Context()))
	_, ok := f.manager.AccessToken(t.Context())
	require.False(t, ok)
	require.NotEmpty(t, f.manager.ID())
}

func TestSetTokens(t *testing.T) {
	f := setupTestFixture(t)
	ctx := t.Context()

	err := f.manager.SetTokens(ctx, authapi.TokenResponse{AccessToken: "A", RefreshToken: "B", ExpiresIn: 3600})
	require.NoError(t, err)

	token, ok := f.manager.AccessToken(ctx)
	require.True(t, ok)
	require.Equal(t, "A", token)
	refresh, ok := f.manager.RefreshToken()
	require.True(t, ok)
	require.Equal(t, "B", refresh)

	cookie, ok, err := f.cookies.Get(ctx, session.DefaultCookieName)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "A", cookie)

	stored, err := f.durable.Get(ctx, session.RefreshTokenKey)
	require.NoError(t, err)
	require.Equal(t, "B", stored)

	rawExpiration, err := f.durable.Get(ctx, session.TokenExpirationKey)
	require.NoError(t, err)
	require.Equal(t, strconv.FormatInt(f.clock.Now().UnixMilli()+3600*1000, 10), rawExpiration)
}

func TestSetTokensRejectsInvalidResponse(t *testing.T) {
	f := setupTestFixture(t)

	err := f.manager.SetTokens(t.Context(), authapi.TokenResponse{ExpiresIn: 60})
	require.ErrorIs(t, err, session.ErrInvalidTokenResponse)
	err = f.manager.SetTokens(t.Context(), authapi.TokenResponse{AccessToken: "A", ExpiresIn: -1})
	require.ErrorIs(t, err, session.ErrInvalidTokenResponse)
	require.False(t, f.manager.IsAuthenticated(t.Context()))
}

func TestSetTokensWithoutRefreshTokenClearsStoredOne(t *testing.T) {
	f := setupTestFixture(t)
	ctx := t.Context()

	require.NoError(t, f.manager.SetTokens(ctx, authapi.TokenResponse{AccessToken: "A", RefreshToken: "B", ExpiresIn: 60}))
	require.NoError(t, f.manager.SetTokens(ctx, authapi.TokenResponse{AccessToken: "C", ExpiresIn: 60}))

	_, ok := f.manager.RefreshToken()
	require.False(t, ok)
	_, err := f.durable.Get(ctx, session.RefreshTokenKey)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestExpirationArithmetic(t *testing.T) {
	f := setupTestFixture(t)

	for _, expiresIn := range []int64{0, 1, 60, 3600, 86400} {
		require.NoError(t, f.manager.SetTokens(t.Context(), authapi.TokenResponse{AccessToken: "A", ExpiresIn: expiresIn}))
		expiration, ok := f.manager.ExpirationTime()
		require.True(t, ok)
		require.Equal(t, f.clock.Now().UnixMilli()+expiresIn*1000, expiration.UnixMilli(), "expires_in=%d", expiresIn)
	}
}

func TestExpirationArithmeticWallClock(t *testing.T) {
	f := setupTestFixture(t)
	m := f.newManager(t, session.WithNowTime(time.Now))

	before := time.Now().UnixMilli()
	require.NoError(t, m.SetTokens(t.Context(), authapi.TokenResponse{AccessToken: "A", ExpiresIn: 3600}))

	expiration, ok := m.ExpirationTime()
	require.True(t, ok)
	require.InDelta(t, before+3600*1000, expiration.UnixMilli(), 50)
}

func TestSessionSurvivesReload(t *testing.T) {
	f := setupTestFixture(t)
	ctx := t.Context()

	require.NoError(t, f.manager.SetTokens(ctx, authapi.TokenResponse{AccessToken: "A", RefreshToken: "B", ExpiresIn: 3600}))
	expected, _ := f.manager.ExpirationTime()

	reloaded := f.newManager(t)
	token, ok := reloaded.AccessToken(ctx)
	require.True(t, ok)
	require.Equal(t, "A", token)
	refresh, ok := reloaded.RefreshToken()
	require.True(t, ok)
	require.Equal(t, "B", refresh)
	expiration, ok := reloaded.ExpirationTime()
	require.True(t, ok)
	require.Equal(t, expected.UnixMilli(), expiration.UnixMilli())
	require.Equal(t, session.LoggedInFresh, reloaded.State(ctx))
}

func TestMalformedExpirationIsIgnored(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.durable.Set(t.Context(), session.TokenExpirationKey, "not-a-number"))

	m := f.newManager(t)
	_, ok := m.ExpirationTime()
	require.False(t, ok)
}

func TestAccessTokenReadsCookieLazily(t *testing.T) {
	f := setupTestFixture(t)
	ctx := t.Context()

	// Another writer sets the cookie after this manager loaded
	other := f.newManager(t)
	require.NoError(t, other.SetTokens(ctx, authapi.TokenResponse{AccessToken: "A", ExpiresIn: 60}))

	token, ok := f.manager.AccessToken(ctx)
	require.True(t, ok)
	require.Equal(t, "A", token)
}

func TestCookieOutlivesExpiresIn(t *testing.T) {
	f := setupTestFixture(t)
	ctx := t.Context()

	require.NoError(t, f.manager.SetTokens(ctx, authapi.TokenResponse{AccessToken: "A", ExpiresIn: 60}))

	f.clock.Advance(24 * time.Hour)
	reloaded := f.newManager(t)
	require.True(t, reloaded.IsAuthenticated(ctx))
	require.Equal(t, session.LoggedInExpired, reloaded.State(ctx))

	f.clock.Advance(session.DefaultCookieLifetime)
	reloaded = f.newManager(t)
	require.False(t, reloaded.IsAuthenticated(ctx))
}

func TestStateTransitions(t *testing.T) {
	f := setupTestFixture(t)
	ctx := t.Context()

	require.Equal(t, session.LoggedOut, f.manager.State(ctx))

	require.NoError(t, f.manager.SetTokens(ctx, authapi.TokenResponse{AccessToken: "A", ExpiresIn: 60}))
	require.Equal(t, session.LoggedInFresh, f.manager.State(ctx))
	require.True(t, f.manager.IsFresh(ctx))

	f.clock.Advance(time.Minute)
	require.Equal(t, session.LoggedInExpired, f.manager.State(ctx))
	require.False(t, f.manager.IsFresh(ctx))
	require.True(t, f.manager.IsAuthenticated(ctx))

	require.NoError(t, f.manager.Logout(ctx))
	require.Equal(t, session.LoggedOut, f.manager.State(ctx))
	require.Equal(t, "logged_out", session.LoggedOut.String())
}

func TestMissingExpirationCountsAsExpired(t *testing.T) {
	f := setupTestFixture(t)
	ctx := t.Context()

	require.NoError(t, f.manager.SetTokens(ctx, authapi.TokenResponse{AccessToken: "A", ExpiresIn: 60}))
	require.NoError(t, f.durable.Delete(ctx, session.TokenExpirationKey))

	reloaded := f.newManager(t)
	require.True(t, reloaded.IsAuthenticated(ctx))
	require.Equal(t, session.LoggedInExpired, reloaded.State(ctx))
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := setupTestFixture(t)
	ctx := t.Context()

	require.NoError(t, f.manager.SetTokens(ctx, authapi.TokenResponse{AccessToken: "A", RefreshToken: "B", ExpiresIn: 3600}))

	require.NoError(t, f.manager.Logout(ctx))
	require.NoError(t, f.manager.Logout(ctx))

	require.False(t, f.manager.IsAuthenticated(ctx))
	_, ok := f.manager.RefreshToken()
	require.False(t, ok)
	_, ok = f.manager.ExpirationTime()
	require.False(t, ok)

	_, ok, err := f.cookies.Get(ctx, session.DefaultCookieName)
	require.NoError(t, err)
	require.False(t, ok)
	_, err = f.durable.Get(ctx, session.RefreshTokenKey)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.durable.Get(ctx, session.TokenExpirationKey)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.False(t, f.newManager(t).IsAuthenticated(ctx))
	for _, path := range []string{authapi.PathInitiate, authapi.PathCallback, authapi.PathVerify, authapi.PathRefresh} {
		require.Zero(t, f.backend.callCount(path), path)
	}
}

func TestLogoutClearsMemoryWhenStorageFails(t *testing.T) {
	f := setupTestFixture(t)
	ctx := t.Context()

	durable := &flakyRepo{Repo: store.NewInMemoryRepo()}
	m, err := session.New(ctx, f.api, f.cookies, durable, session.WithNowTime(f.clock.Now))
	require.NoError(t, err)
	require.NoError(t, m.SetTokens(ctx, authapi.TokenResponse{AccessToken: "A", RefreshToken: "B", ExpiresIn: 60}))

	durable.deleteErr = errors.New("read-only")
	require.Error(t, m.Logout(ctx))
	_, ok := m.RefreshToken()
	require.False(t, ok)
	_, ok = m.ExpirationTime()
	require.False(t, ok)
}

type flakyRepo struct {
	store.Repo
	deleteErr error
}

func (r *flakyRepo) Delete(ctx context.Context, key string) error {
	if r.deleteErr != nil {
		return r.deleteErr
	}
	return r.Repo.Delete(ctx, key)
}
