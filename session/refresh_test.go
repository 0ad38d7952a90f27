package session_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/authapi"
	"github.com/jrsteele09/go-auth-session/cookies"
	"github.com/jrsteele09/go-auth-session/metrics"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// blockingAPI holds every refresh until release is closed
type blockingAPI struct {
	refreshes atomic.Int32
	started   chan struct{}
	release   chan struct{}
	startOnce sync.Once
}

func (a *blockingAPI) Initiate(context.Context, string) (*authapi.AuthFlow, error) {
	return nil, errors.New("not used")
}

func (a *blockingAPI) Callback(context.Context, string, string, string) (*authapi.TokenResponse, error) {
	return nil, errors.New("not used")
}

func (a *blockingAPI) Verify(context.Context, string) (bool, error) {
	return false, errors.New("not used")
}

func (a *blockingAPI) Refresh(_ context.Context, refreshToken string) (*authapi.TokenResponse, error) {
	a.refreshes.Add(1)
	a.startOnce.Do(func() { close(a.started) })
	<-a.release
	return &authapi.TokenResponse{AccessToken: "fresh-" + refreshToken, RefreshToken: refreshToken, ExpiresIn: 60}, nil
}

func (a *blockingAPI) BaseURL() string { return "http://backend.invalid" }

func newBlockingManager(t *testing.T, api session.AuthAPI, options ...session.Option) *session.Manager {
	t.Helper()
	durable := store.NewInMemoryRepo()
	jar, err := cookies.New(store.Namespaced(durable, "cookie:"))
	require.NoError(t, err)
	m, err := session.New(context.Background(), api, jar, durable, options...)
	require.NoError(t, err)
	return m
}

func TestRefreshDisabledIsNoop(t *testing.T) {
	f := setupTestFixture(t)
	ctx := t.Context()
	require.NoError(t, f.manager.SetTokens(ctx, authapi.TokenResponse{AccessToken: "A", RefreshToken: "R", ExpiresIn: 60}))

	require.NoError(t, f.manager.RefreshAccessToken(ctx))
	require.Zero(t, f.backend.callCount(authapi.PathRefresh))
	token, _ := f.manager.AccessToken(ctx)
	require.Equal(t, "A", token)
}

func TestRefreshEnabled(t *testing.T) {
	reg := prometheus.NewRegistry()
	mt := metrics.New(reg)
	f := setupTestFixture(t, session.WithRefresh(true), session.WithMetrics(mt))
	ctx := t.Context()
	require.NoError(t, f.manager.SetTokens(ctx, authapi.TokenResponse{AccessToken: "A", RefreshToken: "R", ExpiresIn: 60}))
	f.clock.Advance(time.Hour)

	require.NoError(t, f.manager.RefreshAccessToken(ctx))

	token, _ := f.manager.AccessToken(ctx)
	require.Equal(t, "tok2", token)
	refresh, _ := f.manager.RefreshToken()
	require.Equal(t, "ref2", refresh)
	require.True(t, f.manager.IsFresh(ctx))
	require.Equal(t, float64(1), testutil.ToFloat64(mt.RefreshesTotal.WithLabelValues(metrics.ResultSuccess)))

	// Persisted for the next process
	reloaded := f.newManager(t)
	token, _ = reloaded.AccessToken(ctx)
	require.Equal(t, "tok2", token)
}

func TestRefreshWithoutRefreshToken(t *testing.T) {
	f := setupTestFixture(t, session.WithRefresh(true))
	ctx := t.Context()
	require.NoError(t, f.manager.SetTokens(ctx, authapi.TokenResponse{AccessToken: "A", ExpiresIn: 60}))

	err := f.manager.RefreshAccessToken(ctx)
	require.ErrorIs(t, err, session.ErrNoRefreshToken)
	require.Zero(t, f.backend.callCount(authapi.PathRefresh))
}

func TestRefreshFailureLogsOut(t *testing.T) {
	f := setupTestFixture(t, session.WithRefresh(true))
	ctx := t.Context()
	require.NoError(t, f.manager.SetTokens(ctx, authapi.TokenResponse{AccessToken: "A", RefreshToken: "R", ExpiresIn: 60}))
	f.backend.configure(func(b *testBackend) { b.refreshStatus = http.StatusUnauthorized })

	err := f.manager.RefreshAccessToken(ctx)
	require.ErrorIs(t, err, session.ErrRefreshFailed)
	require.False(t, f.manager.IsAuthenticated(ctx))
	require.False(t, f.newManager(t).IsAuthenticated(ctx))
}

func TestRefreshFailureKeepsSessionWhenConfigured(t *testing.T) {
	f := setupTestFixture(t, session.WithRefresh(true), session.WithLogoutOnRefreshFailure(false))
	ctx := t.Context()
	require.NoError(t, f.manager.SetTokens(ctx, authapi.TokenResponse{AccessToken: "A", RefreshToken: "R", ExpiresIn: 60}))
	f.backend.configure(func(b *testBackend) { b.refreshStatus = http.StatusBadGateway })

	err := f.manager.RefreshAccessToken(ctx)
	require.ErrorIs(t, err, session.ErrRefreshFailed)
	token, ok := f.manager.AccessToken(ctx)
	require.True(t, ok)
	require.Equal(t, "A", token)
}

func TestConcurrentRefreshesAreCoalesced(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	api := &blockingAPI{started: make(chan struct{}), release: make(chan struct{})}
	m := newBlockingManager(t, api, session.WithRefresh(true))
	require.NoError(t, m.SetTokens(context.Background(), authapi.TokenResponse{AccessToken: "A", RefreshToken: "R", ExpiresIn: 60}))

	const callers = 8
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- m.RefreshAccessToken(context.Background())
	}()
	<-api.started

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- m.RefreshAccessToken(context.Background())
		}()
	}
	// Give the followers time to join the in-flight refresh
	time.Sleep(50 * time.Millisecond)
	close(api.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(1), api.refreshes.Load())
	token, _ := m.AccessToken(context.Background())
	require.Equal(t, "fresh-R", token)
}

func TestRefreshCallerCancellationDoesNotAbortRefresh(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	api := &blockingAPI{started: make(chan struct{}), release: make(chan struct{})}
	m := newBlockingManager(t, api, session.WithRefresh(true))
	require.NoError(t, m.SetTokens(context.Background(), authapi.TokenResponse{AccessToken: "A", RefreshToken: "R", ExpiresIn: 60}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.RefreshAccessToken(ctx) }()
	<-api.started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(api.release)
	require.Eventually(t, func() bool {
		token, _ := m.AccessToken(context.Background())
		return token == "fresh-R"
	}, time.Second, 10*time.Millisecond)
}

func TestLogoutDuringRefreshStaysLoggedOut(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	api := &blockingAPI{started: make(chan struct{}), release: make(chan struct{})}
	m := newBlockingManager(t, api, session.WithRefresh(true))
	ctx := context.Background()
	require.NoError(t, m.SetTokens(ctx, authapi.TokenResponse{AccessToken: "A", RefreshToken: "R", ExpiresIn: 60}))

	done := make(chan error, 1)
	go func() { done <- m.RefreshAccessToken(ctx) }()
	<-api.started

	require.NoError(t, m.Logout(ctx))
	close(api.release)

	require.ErrorIs(t, <-done, session.ErrSessionChanged)
	require.False(t, m.IsAuthenticated(ctx))
	require.Equal(t, session.LoggedOut, m.State(ctx))
	_, ok := m.RefreshToken()
	require.False(t, ok)
}

func TestLoginDuringRefreshKeepsNewTokens(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	api := &blockingAPI{started: make(chan struct{}), release: make(chan struct{})}
	m := newBlockingManager(t, api, session.WithRefresh(true))
	ctx := context.Background()
	require.NoError(t, m.SetTokens(ctx, authapi.TokenResponse{AccessToken: "A", RefreshToken: "R", ExpiresIn: 60}))

	done := make(chan error, 1)
	go func() { done <- m.RefreshAccessToken(ctx) }()
	<-api.started

	require.NoError(t, m.SetTokens(ctx, authapi.TokenResponse{AccessToken: "B", RefreshToken: "R2", ExpiresIn: 60}))
	close(api.release)

	require.ErrorIs(t, <-done, session.ErrSessionChanged)
	token, _ := m.AccessToken(ctx)
	require.Equal(t, "B", token)
	refresh, _ := m.RefreshToken()
	require.Equal(t, "R2", refresh)
}
