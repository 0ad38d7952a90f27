// Package session is the client-side authentication session manager.
//
// A Manager owns the access token, refresh token and expiration of one signed-in user. It persists them
// (the access token in the auth cookie, the rest in durable storage), runs the initiate/callback login
// handshake against the backend auth API, and hands out an HTTP client that attaches the bearer token to
// every request. Construct one Manager at process start and pass it to every consumer.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-session/authapi"
	"github.com/jrsteele09/go-auth-session/authflow"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/jrsteele09/go-auth-session/metrics"
	"github.com/jrsteele09/go-auth-session/store"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Persisted state layout
const (
	DefaultCookieName      = "auth_token"
	RefreshTokenKey        = "refresh_token"
	TokenExpirationKey     = "token_expiration"
	DefaultCookieLifetime  = 7 * 24 * time.Hour
	DefaultAuthFlowTimeout = 15 * time.Minute
	DefaultHTTPTimeout     = 30 * time.Second
)

// AuthAPI is the backend auth API consumed by the Manager. *authapi.Client implements it.
type AuthAPI interface {
	Initiate(ctx context.Context, provider string) (*authapi.AuthFlow, error)
	Callback(ctx context.Context, provider, authCode, state string) (*authapi.TokenResponse, error)
	Verify(ctx context.Context, token string) (bool, error)
	Refresh(ctx context.Context, refreshToken string) (*authapi.TokenResponse, error)
	BaseURL() string
}

// CookieStore holds the auth cookie. When it also implements http.CookieJar it is installed on the
// authenticated client so cookies travel with every request.
type CookieStore interface {
	Get(ctx context.Context, name string) (string, bool, error)
	Set(ctx context.Context, cookie *http.Cookie) error
	Delete(ctx context.Context, name string) error
}

// Manager is the single authority over one client session
type Manager struct {
	id      string
	api     AuthAPI
	cookies CookieStore
	durable store.Repo
	flows   authflow.Repo
	metrics *metrics.Metrics
	logger  zerolog.Logger
	nowTime func() time.Time

	cookieName             string
	cookieLifetime         time.Duration
	flowTimeout            time.Duration
	refreshEnabled         bool
	logoutOnRefreshFailure bool
	httpTimeout            time.Duration
	transport              http.RoundTripper

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	expiration   time.Time
	// generation changes whenever tokens are set or cleared
	generation uint64

	refreshGroup singleflight.Group
}

// Option defines a function type to modify the Manager instance.
type Option func(*Manager)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(m *Manager) {
		m.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithRefresh enables the refresh token exchange. When disabled RefreshAccessToken is a no-op.
func WithRefresh(enabled bool) Option {
	return func(m *Manager) {
		m.refreshEnabled = enabled
	}
}

// WithLogoutOnRefreshFailure clears the session when an enabled refresh fails
func WithLogoutOnRefreshFailure(logout bool) Option {
	return func(m *Manager) {
		m.logoutOnRefreshFailure = logout
	}
}

func WithCookieName(name string) Option {
	return func(m *Manager) {
		m.cookieName = name
	}
}

// WithCookieLifetime sets the auth cookie lifetime. It does not follow expires_in.
func WithCookieLifetime(lifetime time.Duration) Option {
	return func(m *Manager) {
		m.cookieLifetime = lifetime
	}
}

// WithAuthFlowRepo sets where pending login handshakes are kept. Defaults to the durable store.
func WithAuthFlowRepo(repo authflow.Repo) Option {
	return func(m *Manager) {
		m.flows = repo
	}
}

func WithAuthFlowTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.flowTimeout = timeout
	}
}

// WithHTTPTimeout sets the timeout of the authenticated client
func WithHTTPTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		m.httpTimeout = timeout
	}
}

// WithTransport sets the round tripper wrapped by the authenticated client
func WithTransport(rt http.RoundTripper) Option {
	return func(m *Manager) {
		m.transport = rt
	}
}

// New creates a Manager and loads any persisted session.
// A storage error while loading is returned: client storage must be available.
func New(ctx context.Context, api AuthAPI, cookies CookieStore, durable store.Repo, options ...Option) (*Manager, error) {
	if api == nil {
		return nil, errors.New("[session New] auth api is required")
	}
	if cookies == nil {
		return nil, errors.New("[session New] cookie store is required")
	}
	if durable == nil {
		return nil, errors.New("[session New] durable store is required")
	}

	m := &Manager{
		id:                     uuid.New().String(),
		api:                    api,
		cookies:                cookies,
		durable:                durable,
		logger:                 zerolog.Nop(),
		nowTime:                time.Now,
		cookieName:             DefaultCookieName,
		cookieLifetime:         DefaultCookieLifetime,
		flowTimeout:            DefaultAuthFlowTimeout,
		logoutOnRefreshFailure: true,
		httpTimeout:            DefaultHTTPTimeout,
		transport:              http.DefaultTransport,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.flows == nil {
		m.flows = authflow.NewStoreRepo(durable)
	}
	m.logger = m.logger.With().Str("session_id", m.id).Logger()

	if err := m.load(ctx); err != nil {
		return nil, fmt.Errorf("[session New] %w: %w", autherrors.ErrStorageUnavailable, err)
	}
	m.logger.Debug().Stringer("state", m.State(ctx)).Msg("session loaded")
	return m, nil
}

// ID identifies this Manager in logs
func (m *Manager) ID() string {
	return m.id
}

func (m *Manager) load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	accessToken, ok, err := m.cookies.Get(ctx, m.cookieName)
	if err != nil {
		return fmt.Errorf("read auth cookie: %w", err)
	}
	if ok {
		m.accessToken = accessToken
	}

	refreshToken, err := m.durable.Get(ctx, RefreshTokenKey)
	switch {
	case err == nil:
		m.refreshToken = refreshToken
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("read %s: %w", RefreshTokenKey, err)
	}

	rawExpiration, err := m.durable.Get(ctx, TokenExpirationKey)
	switch {
	case err == nil:
		ms, parseErr := strconv.ParseInt(rawExpiration, 10, 64)
		if parseErr != nil {
			m.logger.Warn().Str("value", rawExpiration).Msg("ignoring malformed token expiration")
			break
		}
		m.expiration = time.UnixMilli(ms)
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("read %s: %w", TokenExpirationKey, err)
	}
	return nil
}

// SetTokens stores a token response. The expiration is now + expires_in seconds, kept in epoch milliseconds.
// The access token goes to the auth cookie with the fixed cookie lifetime; the refresh token and
// expiration go to durable storage.
func (m *Manager) SetTokens(ctx context.Context, tokens authapi.TokenResponse) error {
	return m.storeTokens(ctx, tokens, nil)
}

// storeTokens writes tokens. A non-nil generation makes the write conditional: it fails with
// ErrSessionChanged when the session was set or cleared since generation was read.
func (m *Manager) storeTokens(ctx context.Context, tokens authapi.TokenResponse, generation *uint64) error {
	if tokens.AccessToken == "" || tokens.ExpiresIn < 0 {
		return autherrors.ErrInvalidTokenResponse
	}

	now := m.nowTime()
	expiration := time.UnixMilli(now.Add(tokens.Lifetime()).UnixMilli())

	m.mu.Lock()
	defer m.mu.Unlock()

	if generation != nil && *generation != m.generation {
		return ErrSessionChanged
	}
	if err := m.persist(ctx, tokens, now, expiration); err != nil {
		return fmt.Errorf("[SetTokens] %w: %w", autherrors.ErrStorageUnavailable, err)
	}

	m.accessToken = tokens.AccessToken
	m.refreshToken = tokens.RefreshToken
	m.expiration = expiration
	m.generation++

	m.logger.Debug().Time("expires_at", expiration).Bool("refresh_token", tokens.RefreshToken != "").Msg("tokens set")
	return nil
}

func (m *Manager) persist(ctx context.Context, tokens authapi.TokenResponse, now, expiration time.Time) error {
	err := m.cookies.Set(ctx, &http.Cookie{
		Name:     m.cookieName,
		Value:    tokens.AccessToken,
		Path:     "/",
		Expires:  now.Add(m.cookieLifetime),
		SameSite: http.SameSiteLaxMode,
	})
	if err != nil {
		return fmt.Errorf("write auth cookie: %w", err)
	}

	if tokens.RefreshToken != "" {
		err = m.durable.Set(ctx, RefreshTokenKey, tokens.RefreshToken)
	} else {
		err = m.durable.Delete(ctx, RefreshTokenKey)
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", RefreshTokenKey, err)
	}

	if err := m.durable.Set(ctx, TokenExpirationKey, strconv.FormatInt(expiration.UnixMilli(), 10)); err != nil {
		return fmt.Errorf("write %s: %w", TokenExpirationKey, err)
	}
	return nil
}

// AccessToken returns the held access token. When none is held it reads the auth cookie.
// Expiry is not checked.
func (m *Manager) AccessToken(ctx context.Context) (string, bool) {
	m.mu.RLock()
	token := m.accessToken
	m.mu.RUnlock()
	if token != "" {
		return token, true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.accessToken == "" {
		value, ok, err := m.cookies.Get(ctx, m.cookieName)
		if err != nil {
			m.logger.Error().Err(err).Msg("auth cookie read failed")
			return "", false
		}
		if ok {
			m.accessToken = value
		}
	}
	return m.accessToken, m.accessToken != ""
}

// RefreshToken returns the held refresh token
func (m *Manager) RefreshToken() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshToken, m.refreshToken != ""
}

// ExpirationTime returns when the access token goes stale
func (m *Manager) ExpirationTime() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expiration, !m.expiration.IsZero()
}

// IsAuthenticated reports whether an access token is present. It is not a freshness check; see IsFresh.
func (m *Manager) IsAuthenticated(ctx context.Context) bool {
	_, ok := m.AccessToken(ctx)
	return ok
}

// IsFresh reports whether an access token is present and not past its expiration
func (m *Manager) IsFresh(ctx context.Context) bool {
	return m.IsAuthenticated(ctx) && !m.expired()
}

// State returns where the session sits in its lifecycle
func (m *Manager) State(ctx context.Context) SessionState {
	switch {
	case !m.IsAuthenticated(ctx):
		return LoggedOut
	case m.expired():
		return LoggedInExpired
	default:
		return LoggedInFresh
	}
}

// expired treats a missing expiration as expired
func (m *Manager) expired() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expiration.IsZero() || !m.nowTime().Before(m.expiration)
}

// Logout clears the session from memory, the auth cookie and durable storage. It makes no network call
// and is safe to call when already logged out. Memory is always cleared; storage errors are returned.
func (m *Manager) Logout(ctx context.Context) error {
	return m.logout(ctx, nil)
}

// logout clears the session. A non-nil generation makes it conditional: a session set or cleared since
// generation was read is left alone.
func (m *Manager) logout(ctx context.Context, generation *uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if generation != nil && *generation != m.generation {
		return nil
	}
	m.accessToken = ""
	m.refreshToken = ""
	m.expiration = time.Time{}
	m.generation++

	err := autherrors.Join(
		m.cookies.Delete(ctx, m.cookieName),
		m.durable.Delete(ctx, RefreshTokenKey),
		m.durable.Delete(ctx, TokenExpirationKey),
	)
	m.metrics.Logout()
	if err != nil {
		m.logger.Error().Err(err).Msg("logout left persisted state behind")
		return fmt.Errorf("[Logout] %w", err)
	}
	m.logger.Info().Msg("logged out")
	return nil
}
