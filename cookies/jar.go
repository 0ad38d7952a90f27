// Package cookies persists client cookies in a store.Repo.
//
// A Jar plays the part of a browser cookie store: values carry an expiry that is enforced on read,
// they survive a process restart, and the Jar satisfies http.CookieJar so an http.Client sends them
// with every matching request.
package cookies

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-session/store"
	"github.com/rs/zerolog"
)

// StorageKey is the store key holding every cookie of the jar
const StorageKey = "cookies"

var _ http.CookieJar = (*Jar)(nil)

type record struct {
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

func (r record) expired(now time.Time) bool {
	return !r.Expires.IsZero() && !now.Before(r.Expires)
}

// Jar is a persistent cookie store
type Jar struct {
	repo    store.Repo
	nowTime func() time.Time
	logger  zerolog.Logger
	mu      sync.Mutex
}

// Option defines a function type to modify the Jar instance.
type Option func(*Jar)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(j *Jar) {
		j.nowTime = nowFunc
	}
}

// WithLogger sets the logger used by the http.CookieJar methods, which cannot return errors
func WithLogger(logger zerolog.Logger) Option {
	return func(j *Jar) {
		j.logger = logger
	}
}

// New creates a Jar backed by repo
func New(repo store.Repo, options ...Option) (*Jar, error) {
	if repo == nil {
		return nil, errors.New("[cookies New] repo is required")
	}
	j := &Jar{
		repo:    repo,
		nowTime: time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range options {
		opt(j)
	}
	return j, nil
}

// Get returns the value of an unexpired cookie
func (j *Jar) Get(ctx context.Context, name string) (string, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	records, err := j.load(ctx)
	if err != nil {
		return "", false, err
	}
	rec, ok := records[name]
	if !ok {
		return "", false, nil
	}
	if rec.expired(j.nowTime()) {
		delete(records, name)
		if err := j.save(ctx, records); err != nil {
			return "", false, err
		}
		return "", false, nil
	}
	return rec.Value, true, nil
}

// Set stores c. A negative MaxAge or an Expires in the past deletes the cookie.
func (j *Jar) Set(ctx context.Context, c *http.Cookie) error {
	if c == nil || c.Name == "" {
		return errors.New("[cookies Set] cookie name is required")
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	records, err := j.load(ctx)
	if err != nil {
		return err
	}
	j.apply(records, "", c)
	return j.save(ctx, records)
}

// Delete removes the named cookie. Deleting a missing cookie is not an error.
func (j *Jar) Delete(ctx context.Context, name string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	records, err := j.load(ctx)
	if err != nil {
		return err
	}
	if _, ok := records[name]; !ok {
		return nil
	}
	delete(records, name)
	return j.save(ctx, records)
}

// SetCookies implements http.CookieJar
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	ctx := context.Background()

	j.mu.Lock()
	defer j.mu.Unlock()

	records, err := j.load(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("cookie jar load failed")
		return
	}
	for _, c := range cookies {
		if c == nil || c.Name == "" {
			continue
		}
		j.apply(records, u.Hostname(), c)
	}
	if err := j.save(ctx, records); err != nil {
		j.logger.Error().Err(err).Msg("cookie jar save failed")
	}
}

// Cookies implements http.CookieJar. Cookies without a domain match every host.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()

	records, err := j.load(context.Background())
	if err != nil {
		j.logger.Error().Err(err).Msg("cookie jar load failed")
		return nil
	}

	now := j.nowTime()
	host := u.Hostname()
	path := u.Path
	if path == "" {
		path = "/"
	}

	var cookies []*http.Cookie
	for name, rec := range records {
		if rec.expired(now) {
			continue
		}
		if rec.Secure && u.Scheme != "https" {
			continue
		}
		if rec.Domain != "" && !domainMatch(host, rec.Domain) {
			continue
		}
		if rec.Path != "" && !strings.HasPrefix(path, rec.Path) {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: rec.Value})
	}
	return cookies
}

func (j *Jar) apply(records map[string]record, host string, c *http.Cookie) {
	now := j.nowTime()

	expires := c.Expires
	switch {
	case c.MaxAge < 0:
		delete(records, c.Name)
		return
	case c.MaxAge > 0:
		expires = now.Add(time.Duration(c.MaxAge) * time.Second)
	}
	if !expires.IsZero() && !now.Before(expires) {
		delete(records, c.Name)
		return
	}

	domain := strings.TrimPrefix(c.Domain, ".")
	if domain == "" {
		domain = host
	}
	records[c.Name] = record{
		Value:    c.Value,
		Domain:   domain,
		Path:     c.Path,
		Expires:  expires,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
	}
}

func (j *Jar) load(ctx context.Context) (map[string]record, error) {
	raw, err := j.repo.Get(ctx, StorageKey)
	if errors.Is(err, store.ErrNotFound) {
		return make(map[string]record), nil
	}
	if err != nil {
		return nil, fmt.Errorf("[cookies load] %w", err)
	}
	records := make(map[string]record)
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("[cookies load] decode: %w", err)
	}
	return records, nil
}

func (j *Jar) save(ctx context.Context, records map[string]record) error {
	if len(records) == 0 {
		if err := j.repo.Delete(ctx, StorageKey); err != nil {
			return fmt.Errorf("[cookies save] %w", err)
		}
		return nil
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("[cookies save] encode: %w", err)
	}
	if err := j.repo.Set(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("[cookies save] %w", err)
	}
	return nil
}

func domainMatch(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}
