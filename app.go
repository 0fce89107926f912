package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.etcd.io/bbolt"

	"github.com/go-authgate/api-client/api"
	"github.com/go-authgate/api-client/gateway"
	"github.com/go-authgate/api-client/session"
	"github.com/go-authgate/api-client/tokenstore"
	"github.com/go-authgate/api-client/transport"
	"github.com/go-authgate/api-client/tui"
)

// boltOpenTimeout bounds waiting for another process holding the bolt file.
const boltOpenTimeout = time.Second

// app is the wired client: one session, one gateway, one API client.
type app struct {
	cfg      Config
	log      *slog.Logger
	display  tui.Displayer
	registry *prometheus.Registry

	store   tokenstore.Store
	session *session.Manager
	gateway *gateway.Gateway
	api     *api.Client

	closers []func() error
}

func newApp(cfg Config, logger *slog.Logger, d tui.Displayer) (*app, error) {
	a := &app{cfg: cfg, log: logger, display: d, registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	a.store = store

	client, err := transport.New(transport.Options{
		Retries: cfg.HTTPRetries,
		Timeout: cfg.RequestTimeout,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	// Auth calls go out exactly once: a replayed refresh would spend a
	// rotating refresh token twice.
	authClient, err := transport.New(transport.Options{Timeout: cfg.RequestTimeout})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.session, err = session.New(session.Config{
		BaseURL:        cfg.ServerURL,
		Store:          store,
		Client:         authClient,
		Logger:         logger,
		Events:         d,
		RefreshTimeout: cfg.RefreshTimeout,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.gateway, err = gateway.New(gateway.Config{
		BaseURL: cfg.ServerURL,
		Session: a.session,
		Client:  client,
		Logger:  logger,
		Events:  d,
		Metrics: gateway.NewMetrics(a.registry),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.api = api.New(a.gateway, logger)
	return a, nil
}

func (a *app) openStore() (tokenstore.Store, error) {
	switch a.cfg.TokenStore {
	case storeMemory:
		return tokenstore.NewMemoryStore(), nil
	case storeBolt:
		s, err := tokenstore.OpenBoltStore(a.cfg.TokenFile, a.cfg.Profile, &bbolt.Options{Timeout: boltOpenTimeout})
		if err != nil {
			return nil, fmt.Errorf("failed to open token store: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	default:
		return tokenstore.NewFileStore(a.cfg.TokenFile, a.cfg.Profile), nil
	}
}

// Close releases the token store.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn("app.close", "err", err)
		}
	}
	a.closers = nil
}
