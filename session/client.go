package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jrsteele09/go-auth-session/authapi"
)

const maxErrorBodySize = 4096

// Client is an HTTP client bound to the backend base URL that authorizes every request with the session
type Client struct {
	manager    *Manager
	httpClient *http.Client
}

// AuthenticatedClient returns a client for the backend. Each request to the backend origin carries
// "Authorization: Bearer <token>" while an access token is held, and a 401 from it is retried once after a
// refresh when a refresh token is held. Requests to any other origin, redirects included, go out without
// the token.
func (m *Manager) AuthenticatedClient() *Client {
	httpClient := &http.Client{
		Transport: &authTransport{base: m.transport, manager: m},
		Timeout:   m.httpTimeout,
	}
	if jar, ok := m.cookies.(http.CookieJar); ok {
		httpClient.Jar = jar
	}
	return &Client{manager: m, httpClient: httpClient}
}

// HTTPClient returns the underlying http client
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// BaseURL returns the backend base URL requests are resolved against
func (c *Client) BaseURL() string {
	return c.manager.api.BaseURL()
}

// NewRequest builds a request for path, resolved against the base URL unless it is absolute
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		baseURL := c.BaseURL()
		if baseURL == "" {
			return nil, ErrBackendNotConfigured
		}
		target = baseURL + "/" + strings.TrimLeft(path, "/")
	}
	return http.NewRequestWithContext(ctx, method, target, body)
}

// Do sends req
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// GetJSON fetches path and decodes the JSON response into out
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	req, err := c.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return fmt.Errorf("[GetJSON] %w", err)
	}
	return c.doJSON(req, out)
}

// PostJSON posts in as JSON to path and decodes the JSON response into out. out may be nil.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("[PostJSON] encode: %w", err)
	}
	req, err := c.NewRequest(ctx, http.MethodPost, path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("[PostJSON] %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, out)
}

func (c *Client) doJSON(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &authapi.StatusError{Path: req.URL.Path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

// authTransport attaches the bearer token and retries a 401 at most once
type authTransport struct {
	base    http.RoundTripper
	manager *Manager
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(t.authorize(req))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || !t.toBackend(req.URL) {
		return resp, nil
	}
	if _, ok := t.manager.RefreshToken(); !ok {
		return resp, nil
	}

	retry, ok := rewind(req)
	if !ok {
		t.manager.logger.Debug().Str("path", req.URL.Path).Msg("401 not retried, request body cannot be replayed")
		return resp, nil
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))
	_ = resp.Body.Close()

	if err := t.manager.RefreshAccessToken(req.Context()); err != nil {
		t.manager.logger.Warn().Err(err).Msg("refresh after 401 failed")
	}

	t.reloadCookies(retry)
	resp, err = t.base.RoundTrip(t.authorize(retry))
	if err != nil {
		t.manager.metrics.Retry("error")
		return nil, err
	}
	t.manager.metrics.Retry(strconv.Itoa(resp.StatusCode))
	return resp, nil
}

// authorize returns a copy of req carrying the current access token when req targets the backend
func (t *authTransport) authorize(req *http.Request) *http.Request {
	out := req.Clone(req.Context())
	if !t.toBackend(req.URL) {
		return out
	}
	if token, ok := t.manager.AccessToken(req.Context()); ok {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	return out
}

// toBackend reports whether u has the scheme and host of the backend base URL
func (t *authTransport) toBackend(u *url.URL) bool {
	base, err := url.Parse(t.manager.api.BaseURL())
	if err != nil || base.Host == "" {
		return false
	}
	return base.Scheme == u.Scheme && strings.EqualFold(base.Host, u.Host)
}

// reloadCookies replaces the jar cookies on req with the jar's current values. The http.Client added
// them before the refresh, so they can be stale.
func (t *authTransport) reloadCookies(req *http.Request) {
	jar, ok := t.manager.cookies.(http.CookieJar)
	if !ok {
		return
	}
	fresh := jar.Cookies(req.URL)
	names := make(map[string]bool, len(fresh))
	for _, c := range fresh {
		names[c.Name] = true
	}

	kept := req.Cookies()
	req.Header.Del("Cookie")
	for _, c := range kept {
		if !names[c.Name] {
			req.AddCookie(c)
		}
	}
	for _, c := range fresh {
		req.AddCookie(c)
	}
}

// rewind returns a copy of req with a fresh body, or false when the body cannot be replayed
func rewind(req *http.Request) (*http.Request, bool) {
	out := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return out, true
	}
	if req.GetBody == nil {
		return nil, false
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, false
	}
	out.Body = body
	return out, true
}
