package session_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-session/authapi"
	"github.com/jrsteele09/go-auth-session/cookies"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/store"
	"github.com/stretchr/testify/require"
)

const (
	testProvider     = "google"
	testAuthCode     = "code123"
	testAccessToken  = "tok1"
	testRefreshToken = "ref1"
	testExpiresIn    = 7200
	testResourcePath = "/api/v1/datasources"
	testMovedPath    = "/api/v1/moved"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// testBackend fakes the backend auth API plus one protected resource
type testBackend struct {
	srv *httptest.Server

	mu               sync.Mutex
	calls            map[string]int
	states           int
	verifyValid      bool
	callbackStatus   int
	refreshStatus    int
	tokens           authapi.TokenResponse
	refreshed        authapi.TokenResponse
	resourceStatuses []int
	authHeaders      []string
	authCookies      []string
	resourceBodies   []string
	redirectTo       string
}

func newTestBackend(t *testing.T) *testBackend {
	t.Helper()
	b := &testBackend{
		calls:     make(map[string]int),
		tokens:    authapi.TokenResponse{AccessToken: testAccessToken, RefreshToken: testRefreshToken, ExpiresIn: testExpiresIn},
		refreshed: authapi.TokenResponse{AccessToken: "tok2", RefreshToken: "ref2", ExpiresIn: testExpiresIn},
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.serveHTTP))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *testBackend) serveHTTP(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[r.URL.Path]++

	switch r.URL.Path {
	case authapi.PathInitiate:
		var req authapi.AuthFlowRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.states++
		writeJSON(w, map[string]any{"auth_flow": map[string]string{
			"provider":          req.AuthFlow.Provider,
			"auth_redirect_url": "https://idp.example.com/auth?provider=" + req.AuthFlow.Provider,
			"state":             fmt.Sprintf("state-%d", b.states),
		}})
	case authapi.PathCallback:
		if b.callbackStatus != 0 {
			http.Error(w, "callback rejected", b.callbackStatus)
			return
		}
		writeJSON(w, b.tokens)
	case authapi.PathVerify:
		writeJSON(w, authapi.VerifyResponse{IsValid: b.verifyValid})
	case authapi.PathRefresh:
		if b.refreshStatus != 0 {
			http.Error(w, "refresh rejected", b.refreshStatus)
			return
		}
		writeJSON(w, b.refreshed)
	case testResourcePath:
		body, _ := io.ReadAll(r.Body)
		b.authHeaders = append(b.authHeaders, r.Header.Get("Authorization"))
		cookie := ""
		if c, err := r.Cookie(session.DefaultCookieName); err == nil {
			cookie = c.Value
		}
		b.authCookies = append(b.authCookies, cookie)
		b.resourceBodies = append(b.resourceBodies, string(body))
		status := http.StatusOK
		if len(b.resourceStatuses) > 0 {
			status = b.resourceStatuses[0]
			b.resourceStatuses = b.resourceStatuses[1:]
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	case testMovedPath:
		http.Redirect(w, r, b.redirectTo, http.StatusFound)
	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (b *testBackend) callCount(path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[path]
}

func (b *testBackend) headers() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.authHeaders...)
}

func (b *testBackend) cookies() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.authCookies...)
}

func (b *testBackend) configure(fn func(b *testBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

// testFixture holds all test dependencies
type testFixture struct {
	backend *testBackend
	api     *authapi.Client
	durable *store.InMemoryRepo
	cookies *cookies.Jar
	clock   *testClock
	manager *session.Manager
}

// setupTestFixture creates a new test fixture with all dependencies
func setupTestFixture(t *testing.T, options ...session.Option) *testFixture {
	t.Helper()

	f := &testFixture{
		backend: newTestBackend(t),
		durable: store.NewInMemoryRepo(),
		clock:   &testClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.api = authapi.New(f.backend.srv.URL)

	jar, err := cookies.New(store.Namespaced(f.durable, "cookie:"), cookies.WithNowTime(f.clock.Now))
	require.NoError(t, err)
	f.cookies = jar

	f.manager = f.newManager(t, options...)
	return f
}

// newManager builds another Manager over the same storage, as after a reload
func (f *testFixture) newManager(t *testing.T, options ...session.Option) *session.Manager {
	t.Helper()
	opts := append([]session.Option{session.WithNowTime(f.clock.Now)}, options...)
	m, err := session.New(t.Context(), f.api, f.cookies, f.durable, opts...)
	require.NoError(t, err)
	return m
}

// login runs a full initiate/callback handshake
func (f *testFixture) login(t *testing.T) {
	t.Helper()
	flow, err := f.manager.InitiateAuth(t.Context(), testProvider)
	require.NoError(t, err)
	require.NoError(t, f.manager.HandleCallback(t.Context(), testProvider, testAuthCode, flow.State))
}

func (f *testFixture) getResource(t *testing.T) *http.Response {
	t.Helper()
	client := f.manager.AuthenticatedClient()
	req, err := client.NewRequest(t.Context(), http.MethodGet, testResourcePath, nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
