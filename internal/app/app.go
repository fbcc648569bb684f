// Package app wires up all subsystems and owns the application lifecycle.
//
// Startup order:
//  1. initInfra    : external connections (Redis or ClickHouse when the store needs one)
//  2. initUpstream : the completion client, skipped when no API key is set
//  3. initStore    : persistence backend and identity resolver
//  4. initServices : metrics registry
//  5. initServer   : relay service + HTTP server
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"

	"github.com/nulpointcorp/ai-relay/internal/config"
	"github.com/nulpointcorp/ai-relay/internal/metrics"
	"github.com/nulpointcorp/ai-relay/internal/relay"
	"github.com/nulpointcorp/ai-relay/internal/store"
	"github.com/nulpointcorp/ai-relay/internal/upstream"
)

// shutdownTimeout bounds how long in-flight requests may run after a signal.
const shutdownTimeout = 15 * time.Second

// App owns all long-lived resources and exposes Run / Close.
type App struct {
	version string
	cfg     *config.Config
	baseCtx context.Context
	log     *slog.Logger

	// Optional external connections; nil when not configured.
	rdb *redis.Client
	ch  driver.Conn

	completer upstream.Completer
	store     store.Store
	identity  store.IdentityResolver

	prom *metrics.Registry

	svc *relay.Service
	srv *fasthttp.Server

	closeOnce sync.Once
}

// New initialises all subsystems and returns a ready-to-run App.
// All resources allocated here are released by Close.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, version string) (*App, error) {
	if ctx == nil {
		return nil, fmt.Errorf("app: context must not be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("app: config must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	a := &App{cfg: cfg, version: version, baseCtx: ctx, log: log}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infra", a.initInfra},
		{"upstream", a.initUpstream},
		{"store", a.initStore},
		{"services", a.initServices},
		{"server", a.initServer},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("app: init %s: %w", s.name, err)
		}
	}

	return a, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails. In-flight requests are drained before connections are closed.
func (a *App) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", a.cfg.Port)

	upstreamName := "unconfigured"
	if a.completer != nil {
		upstreamName = a.completer.Name()
	}
	a.log.Info("starting relay",
		slog.String("version", a.version),
		slog.String("addr", addr),
		slog.String("upstream", upstreamName),
		slog.String("store_mode", a.cfg.Store.Mode),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.srv.ListenAndServe(addr); err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := a.srv.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			a.log.Error("server shutdown error", slog.String("error", err.Error()))
		}
		a.Close()
		return nil
	})

	return g.Wait()
}

// Handler exposes the fully wired HTTP handler.
func (a *App) Handler() fasthttp.RequestHandler { return a.srv.Handler }

// Close releases all resources in reverse-init order. Safe to call multiple
// times and from multiple goroutines.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.ch != nil {
			if err := a.ch.Close(); err != nil {
				a.log.Error("clickhouse close error", slog.String("error", err.Error()))
			}
		}
		if a.rdb != nil {
			if err := a.rdb.Close(); err != nil {
				a.log.Error("redis close error", slog.String("error", err.Error()))
			}
		}
	})
}

// ── Private helpers ──────────────────────────────────────────────────────────

// connectRedis parses the URL and verifies connectivity with a PING.
func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return rdb, nil
}

// connectClickHouse opens a native-protocol connection and verifies it.
func connectClickHouse(ctx context.Context, dsn string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := conn.Ping(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return conn, nil
}

// redactURL replaces the userinfo portion of a URL with "***" for safe logging.
// e.g. "redis://:secret@localhost:6379" → "redis://***@localhost:6379"
func redactURL(raw string) string {
	at := -1
	for i := len(raw) - 1; i >= 0; i-- {
		if raw[i] == '@' {
			at = i
			break
		}
	}
	if at < 0 {
		return raw
	}
	for j := at - 1; j >= 0; j-- {
		if j+3 <= len(raw) && raw[j:j+3] == "://" {
			return raw[:j+3] + "***" + raw[at:]
		}
	}
	return "***" + raw[at:]
}
