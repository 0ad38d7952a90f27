// Package authapi is a client for the backend auth API: initiate, verify, callback and refresh.
package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	autherrors "github.com/jrsteele09/go-auth-session/internal/errors"
	"github.com/rs/zerolog"
)

const (
	defaultTimeout   = 30 * time.Second
	maxErrorBodySize = 4096
)

var (
	ErrNotConfigured   = autherrors.ErrBackendNotConfigured
	ErrInvalidResponse = autherrors.ErrInvalidResponse
)

// StatusError is returned when the backend answers with a non-2xx status
type StatusError struct {
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("auth api %s: unexpected status %d: %s", e.Path, e.StatusCode, e.Body)
}

// Client calls the backend auth API. The base URL can be changed at runtime by the first-run setup flow.
type Client struct {
	mu         sync.RWMutex
	baseURL    string
	httpClient *http.Client
	validate   *validator.Validate
	logger     zerolog.Logger
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient sets the http client used for every call
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets the client logger
func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client. An empty baseURL leaves the client unconfigured; calls fail with ErrNotConfigured.
func New(baseURL string, options ...ClientOption) *Client {
	c := &Client{
		baseURL:    normaliseBaseURL(baseURL),
		httpClient: &http.Client{Timeout: defaultTimeout},
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// BaseURL returns the configured backend base URL
func (c *Client) BaseURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.baseURL
}

// SetBaseURL points the client at a new backend
func (c *Client) SetBaseURL(baseURL string) {
	c.mu.Lock()
	c.baseURL = normaliseBaseURL(baseURL)
	c.mu.Unlock()
}

// Configured reports whether a backend base URL is set
func (c *Client) Configured() bool {
	return c.BaseURL() != ""
}

// Initiate starts an auth flow for provider and returns the redirect URL and state
func (c *Client) Initiate(ctx context.Context, provider string) (*AuthFlow, error) {
	var resp AuthFlowResponse
	if err := c.post(ctx, PathInitiate, AuthFlowRequest{AuthFlow: AuthFlow{Provider: provider}}, &resp); err != nil {
		return nil, fmt.Errorf("[Initiate] %w", err)
	}
	return &AuthFlow{
		Provider:        resp.AuthFlow.Provider,
		AuthRedirectURL: resp.AuthFlow.AuthRedirectURL,
		State:           resp.AuthFlow.State,
	}, nil
}

// Callback exchanges an authorization code for tokens
func (c *Client) Callback(ctx context.Context, provider, authCode, state string) (*TokenResponse, error) {
	var resp TokenResponse
	req := AuthFlowRequest{AuthFlow: AuthFlow{Provider: provider, AuthCode: authCode, State: state}}
	if err := c.post(ctx, PathCallback, req, &resp); err != nil {
		return nil, fmt.Errorf("[Callback] %w", err)
	}
	return &resp, nil
}

// Verify asks the backend whether token is valid
func (c *Client) Verify(ctx context.Context, token string) (bool, error) {
	var resp VerifyResponse
	if err := c.post(ctx, PathVerify, VerifyRequest{Token: token}, &resp); err != nil {
		return false, fmt.Errorf("[Verify] %w", err)
	}
	return resp.IsValid, nil
}

// Refresh exchanges a refresh token for a new token pair
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	var resp TokenResponse
	if err := c.post(ctx, PathRefresh, RefreshRequest{RefreshToken: refreshToken}, &resp); err != nil {
		return nil, fmt.Errorf("[Refresh] %w", err)
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	baseURL := c.BaseURL()
	if baseURL == "" {
		return ErrNotConfigured
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("path", path).Msg("auth api request failed")
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Dur("elapsed", time.Since(start)).Msg("auth api request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(errBody))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrInvalidResponse, err)
	}
	if err := c.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func normaliseBaseURL(baseURL string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/")
}
