package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jrsteele09/go-auth-session/authapi"
	"github.com/jrsteele09/go-auth-session/cookies"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/metrics"
	"github.com/jrsteele09/go-auth-session/server"
	"github.com/jrsteele09/go-auth-session/session"
	"github.com/jrsteele09/go-auth-session/store"
	"github.com/jrsteele09/go-auth-session/store/redisstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

const (
	cookieNamespace  = "cookie:"
	redisPingTimeout = 5 * time.Second
)

// app is everything one command needs, built from config
type app struct {
	cfg      config.Config
	logger   zerolog.Logger
	durable  store.Repo
	api      *authapi.Client
	registry *prometheus.Registry
	manager  *session.Manager
	closers  []func() error
}

func newApp(ctx context.Context, cfg config.Config, logOut io.Writer) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   newLogger(logOut, cfg.GetLogLevel(), cfg.GetLogFormat()),
		registry: prometheus.NewRegistry(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	durable, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.durable = durable

	jar, err := cookies.New(store.Namespaced(durable, cookieNamespace), cookies.WithLogger(a.logger))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("[newApp] cookie store: %w", err)
	}

	// One connection pool for the auth API and the authenticated client
	transport := http.DefaultTransport.(*http.Transport).Clone()
	a.closers = append(a.closers, func() error {
		transport.CloseIdleConnections()
		return nil
	})
	a.api = authapi.New(cfg.GetBackendURL(),
		authapi.WithHTTPClient(&http.Client{Transport: transport, Timeout: cfg.GetHTTPTimeout()}),
		authapi.WithLogger(a.logger),
	)
	if !a.api.Configured() {
		if baseURL, err := durable.Get(ctx, server.BackendURLKey); err == nil {
			a.api.SetBaseURL(baseURL)
		}
	}

	a.manager, err = session.New(ctx, a.api, jar, durable,
		session.WithLogger(a.logger),
		session.WithMetrics(metrics.New(a.registry)),
		session.WithRefresh(cfg.GetRefreshEnabled()),
		session.WithLogoutOnRefreshFailure(cfg.GetLogoutOnRefreshFailure()),
		session.WithCookieName(cfg.GetAuthCookieName()),
		session.WithCookieLifetime(cfg.GetAuthCookieLifetime()),
		session.WithAuthFlowTimeout(cfg.GetAuthFlowTimeout()),
		session.WithHTTPTimeout(cfg.GetHTTPTimeout()),
		session.WithTransport(transport),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) (store.Repo, error) {
	switch backend := a.cfg.GetStorageBackend(); backend {
	case config.StorageMemory:
		a.logger.Warn().Msg("memory storage: the session is lost when the process exits")
		return store.NewInMemoryRepo(), nil

	case config.StorageFile:
		options := []store.FileRepoOption{store.WithFileLogger(a.logger)}
		if hexKey := a.cfg.GetStorageKey(); hexKey != "" {
			key, err := store.ParseKey(hexKey)
			if err != nil {
				return nil, fmt.Errorf("[openStore] STORAGE_KEY: %w", err)
			}
			options = append(options, store.WithEncryptionKey(key))
		}
		return store.NewFileRepo(a.cfg.GetStorageFile(), options...)

	case config.StorageRedis:
		repo := redisstore.New(redisstore.Config{
			Address:  a.cfg.GetRedisAddr(),
			Password: a.cfg.GetRedisPassword(),
			Database: a.cfg.GetRedisDB(),
			Prefix:   a.cfg.GetRedisPrefix(),
		})
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := repo.Ping(pingCtx); err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("[openStore] %w", err)
		}
		a.closers = append(a.closers, repo.Close)
		return repo, nil

	default:
		return nil, fmt.Errorf("[openStore] unknown storage backend %q", backend)
	}
}

func (a *app) Close() error {
	var errs []error
	for _, closer := range a.closers {
		errs = append(errs, closer())
	}
	return errors.Join(errs...)
}
