// Package app wires the relay runtime: config, logging, persistence
// selection, HTTP routes, and the realtime gateway.
//
// It is intentionally small and deterministic: components are constructed
// explicitly here and passed by handle, never reached as process globals.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	authapi "github.com/Kabilan-0809/chat-application/internal/auth/api"
	"github.com/Kabilan-0809/chat-application/internal/auth/session"
	"github.com/Kabilan-0809/chat-application/internal/identity"
	"github.com/Kabilan-0809/chat-application/internal/relay"
	"github.com/Kabilan-0809/chat-application/internal/store"
)

// App is the relay runtime: it owns HTTP server wiring, persistence handles,
// and the realtime gateway dependencies.
type App struct {
	cfg Config
	log Logger

	reg *prometheus.Registry

	dbPool    *pgxpool.Pool
	dbEnabled bool

	msgStore store.MessageStore

	ws   *relay.WSGateway
	auth *authapi.Handler
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := relay.NewMetrics(reg)

	var (
		dbPool    *pgxpool.Pool
		dbEnabled bool

		identities identity.Store
		sessStore  session.Store
		msgStore   store.MessageStore
	)

	switch {
	case cfg.DatabaseURL != "":
		pool, err := NewDBPool(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		dbPool = pool
		dbEnabled = true

		ids, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
		if err != nil {
			pool.Close()
			return nil, err
		}
		identities = ids

		ss, err := session.NewPostgresStore(pool, session.WithSchema(cfg.DBSchema))
		if err != nil {
			pool.Close()
			return nil, err
		}
		sessStore = ss

		ms, err := store.NewPostgresStore(pool, store.WithSchema(cfg.DBSchema))
		if err != nil {
			pool.Close()
			return nil, err
		}
		msgStore = ms
		log.Info("persistence.postgres", "schema", cfg.DBSchema)

	case cfg.BadgerPath != "":
		bs, err := store.OpenBadgerStore(cfg.BadgerPath)
		if err != nil {
			return nil, err
		}
		msgStore = bs
		identities = identity.NewInMemoryStore()
		sessStore = session.NewInMemoryStore()
		log.Info("persistence.badger", "path", cfg.BadgerPath)

	default:
		msgStore = store.NewInMemoryStore()
		identities = identity.NewInMemoryStore()
		sessStore = session.NewInMemoryStore()
		log.Info("persistence.inmemory")
	}

	sessions := session.NewService(log, sessStore, identities, session.WithTTL(cfg.SessionTTL))

	var exchanger authapi.ProfileExchanger
	if cfg.GoogleClientID != "" {
		ex, err := authapi.NewGoogleExchanger(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL)
		if err != nil {
			closeQuiet(msgStore, dbPool)
			return nil, err
		}
		exchanger = ex
	} else {
		log.Warn("oauth.disabled", "reason", "GOOGLE_CLIENT_ID not set")
	}

	auth := authapi.NewHandler(log, authapi.Config{
		PostLoginRedirect:  cfg.PostLoginRedirect,
		PostLogoutRedirect: cfg.PostLogoutRedirect,
		SecureCookies:      cfg.SecureCookies,
	}, identities, sessions, exchanger)

	room := relay.NewRoom(log, metrics)
	broadcaster := relay.NewBroadcaster(log, room, msgStore, metrics)
	ws := relay.NewWSGateway(log, room, broadcaster, sessions, metrics,
		relay.WithAllowedOrigins(cfg.AllowedOrigins()),
		relay.WithOriginRequired(cfg.WSOriginRequired),
		relay.WithDevInsecure(cfg.WSDevInsecure),
		relay.WithSendQueueSize(cfg.WSSendQueue),
		relay.WithTimeouts(cfg.WSWriteTimeout, cfg.WSReadIdleTimeout),
		relay.WithHeartbeat(cfg.WSHeartbeatInterval, cfg.WSHeartbeatTimeout),
		relay.WithRateLimit(cfg.WSRateEvents, cfg.WSRateWindow),
	)

	return &App{
		cfg:       cfg,
		log:       log,
		reg:       reg,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		msgStore:  msgStore,
		ws:        ws,
		auth:      auth,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.reg, a.ws, a.auth)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	if err := a.msgStore.Close(); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}
	if a.dbPool != nil {
		a.dbPool.Close()
	}

	a.log.Info("server.stopped")
	return nil
}

func closeQuiet(ms store.MessageStore, pool *pgxpool.Pool) {
	if ms != nil {
		_ = ms.Close()
	}
	if pool != nil {
		pool.Close()
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
