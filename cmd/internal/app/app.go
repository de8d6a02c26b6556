// Package app wires the Ripple server runtime: config, logging, metrics,
// HTTP routes, and the realtime gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ripple/cmd/identity"
	authapi "ripple/cmd/internal/auth/api"
	"ripple/cmd/internal/auth/reset"
	"ripple/cmd/internal/auth/session"
	"ripple/cmd/internal/chat"
	chatapi "ripple/cmd/internal/chat/api"
	"ripple/cmd/internal/realtime"
)

// App is the Ripple server runtime.
type App struct {
	cfg     Config
	log     Logger
	metrics *Metrics

	dbPool    *pgxpool.Pool
	dbEnabled bool

	ws    *realtime.WSGateway
	auth  *authapi.Handler
	chatH *chatapi.Handler
	authn *authapi.Authenticator
}

// sessionVerifier adapts the session service to the gateway's stateless
// access check.
type sessionVerifier struct {
	sessions *session.Service
}

func (v sessionVerifier) VerifyAccessToken(tokenPlain string, now time.Time) (string, error) {
	claims, err := v.sessions.VerifyAccess(tokenPlain, now)
	if err != nil {
		return "", err
	}
	return claims.UserID, nil
}

// New constructs a fully wired App instance from config and logger.
//
// Without RIPPLE_DATABASE_URL the server still starts, but only /healthz,
// /readyz and /metrics are serviceable: chat state is held in the in-memory
// store, yet every chat, auth, and websocket surface sits behind session
// auth, which answers 503 until a database is configured.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	if err := ValidateSecurityConfig(cfg); err != nil {
		return nil, err
	}

	metrics := NewMetrics()

	var (
		dbPool    *pgxpool.Pool
		dbEnabled bool
		chatStore chat.Store
	)
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		chatStore = chat.NewMemoryStore()
	} else {
		pool, err := NewDBPool(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		log.Info("db.enabled.postgres_store")
		dbPool = pool
		dbEnabled = true
		chatStore = chat.NewPostgresStore(pool)
	}

	var (
		authHandler *authapi.Handler
		sessions    *session.Service
		verifier    realtime.AccessVerifier
	)
	if dbEnabled {
		sessCfg, err := session.LoadConfigFromEnv()
		if err != nil {
			dbPool.Close()
			return nil, err
		}
		tokens, err := session.NewPasetoV4PublicManager(sessCfg)
		if err != nil {
			dbPool.Close()
			return nil, err
		}
		sessions = session.NewService(sessCfg, session.NewPostgresStore(dbPool), tokens)

		idStore, err := identity.NewPostgresStore(dbPool)
		if err != nil {
			dbPool.Close()
			return nil, err
		}
		resetStore, err := reset.NewPostgresStore(dbPool)
		if err != nil {
			dbPool.Close()
			return nil, err
		}
		resets, err := reset.NewService(resetStore)
		if err != nil {
			dbPool.Close()
			return nil, err
		}

		authHandler = authapi.NewHandler(log, authapi.LoadConfigFromEnv(), idStore, sessions, resets)
		verifier = sessionVerifier{sessions: sessions}
	}

	hub := realtime.NewHub(log, metrics.Registry)
	chatSvc := chat.NewService(log, chatStore, hub, metrics.Registry)
	ws := realtime.NewWSGateway(log, hub, chatSvc, verifier, metrics.Registry)

	return &App{
		cfg:       cfg,
		log:       log,
		metrics:   metrics,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		ws:        ws,
		auth:      authHandler,
		chatH:     chatapi.NewHandler(log, chatSvc),
		authn:     authapi.NewAuthenticator(sessions),
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal
// server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.metrics, a.ws, a.auth, a.chatH, a.authn)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log, a.metrics),
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
		a.log.Error("server.fail", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "error", err)
		return err
	}

	if a.dbPool != nil {
		a.dbPool.Close()
	}

	a.log.Info("server.stopped")
	return nil
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
