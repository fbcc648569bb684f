package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nulpointcorp/ai-relay/internal/config"
	"github.com/nulpointcorp/ai-relay/internal/metrics"
	"github.com/nulpointcorp/ai-relay/internal/relay"
	"github.com/nulpointcorp/ai-relay/internal/store"
	"github.com/nulpointcorp/ai-relay/internal/upstream"
	anthropicup "github.com/nulpointcorp/ai-relay/internal/upstream/anthropic"
	"github.com/nulpointcorp/ai-relay/internal/upstream/gateway"
	geminiup "github.com/nulpointcorp/ai-relay/internal/upstream/gemini"
)

// initInfra establishes the external connection the store backend needs.
// PostgREST and "none" need none.
func (a *App) initInfra(ctx context.Context) error {
	switch a.cfg.Store.Mode {
	case config.StoreRedis:
		a.log.Info("connecting to redis", slog.String("url", redactURL(a.cfg.Redis.URL)))

		rdb, err := connectRedis(ctx, a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		a.rdb = rdb
		a.log.Info("redis connected")

	case config.StoreClickHouse:
		a.log.Info("connecting to clickhouse", slog.String("dsn", redactURL(a.cfg.ClickHouse.DSN)))

		conn, err := connectClickHouse(ctx, a.cfg.ClickHouse.DSN)
		if err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		a.ch = conn
		a.log.Info("clickhouse connected")
	}

	return nil
}

// initUpstream builds the completion client. A missing key is not fatal:
// the relays answer "AI not configured" until one is provided.
func (a *App) initUpstream(ctx context.Context) error {
	if !a.cfg.AIConfigured() {
		a.log.Warn("AI_API_KEY not set; relays will answer \"AI not configured\"")
		return nil
	}

	c, err := buildCompleter(ctx, a.cfg.AI)
	if err != nil {
		return err
	}
	a.completer = c
	a.log.Info("upstream configured",
		slog.String("provider", c.Name()),
		slog.String("model", a.cfg.AI.Model),
	)

	return nil
}

// initStore builds the persistence backend and the identity resolver that
// supplies the owner of each exchange.
func (a *App) initStore(ctx context.Context) error {
	if a.cfg.Store.Mode == config.StoreDisabled {
		a.log.Info("store backend: disabled; exchanges get synthesized records")
		return nil
	}

	a.identity = store.NewSupabaseAuth(a.cfg.Supabase.URL, a.cfg.Supabase.AnonKey, a.cfg.Store.Timeout, a.log)

	switch a.cfg.Store.Mode {
	case config.StorePostgREST:
		a.store = store.NewPostgREST(a.cfg.Supabase.URL, a.cfg.Supabase.AnonKey,
			store.WithTable(a.cfg.Store.Table),
			store.WithTimeout(a.cfg.Store.Timeout),
		)

	case config.StoreRedis:
		a.store = store.NewRedisStream(a.rdb, a.cfg.Redis.Stream, a.cfg.Redis.MaxLen)

	case config.StoreClickHouse:
		ch := store.NewClickHouse(a.ch, a.cfg.Store.Table)
		if err := ch.EnsureTable(ctx); err != nil {
			return fmt.Errorf("clickhouse: %w", err)
		}
		a.store = ch

	default:
		return fmt.Errorf("unknown store mode: %s", a.cfg.Store.Mode)
	}

	a.log.Info("store backend ready", slog.String("backend", a.store.Name()))
	return nil
}

// initServices creates the Prometheus metrics registry.
func (a *App) initServices(_ context.Context) error {
	a.prom = metrics.New()
	a.prom.SetBuildInfo(a.version)
	return nil
}

// initServer wires the relay service and its HTTP server.
func (a *App) initServer(_ context.Context) error {
	a.svc = relay.New(relay.Options{
		Logger:       a.log,
		Completer:    a.completer,
		Store:        a.store,
		Identity:     a.identity,
		Metrics:      a.prom,
		StoreTimeout: a.cfg.Store.Timeout,
		Version:      a.version,
	})
	a.srv = a.svc.NewServer()
	return nil
}

// buildCompleter creates the upstream client for the configured provider.
func buildCompleter(ctx context.Context, cfg config.AIConfig) (upstream.Completer, error) {
	switch cfg.Provider {
	case config.ProviderGateway:
		opts := []gateway.Option{gateway.WithTimeout(cfg.Timeout)}
		if cfg.BaseURL != "" {
			opts = append(opts, gateway.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, gateway.WithModel(cfg.Model))
		}
		return gateway.New(cfg.APIKey, opts...), nil

	case config.ProviderAnthropic:
		opts := []anthropicup.Option{anthropicup.WithTimeout(cfg.Timeout)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropicup.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, anthropicup.WithModel(cfg.Model))
		}
		return anthropicup.New(cfg.APIKey, opts...), nil

	case config.ProviderGemini:
		opts := []geminiup.Option{geminiup.WithTimeout(cfg.Timeout)}
		if cfg.BaseURL != "" {
			opts = append(opts, geminiup.WithBaseURL(cfg.BaseURL))
		}
		if cfg.Model != "" {
			opts = append(opts, geminiup.WithModel(cfg.Model))
		}
		p, err := geminiup.New(ctx, cfg.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		return p, nil

	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.Provider)
	}
}
