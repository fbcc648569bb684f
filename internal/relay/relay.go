// Package relay implements the two chat relays and the HTTP gate in front of
// them.
//
//	POST /ai-chat       stateless: message + optional history → {response}
//	POST /ai-assistant  persisting: message + optional project → stored record
//
// Every request is handled independently. The Service only holds read-only
// configuration and thread-safe clients built at startup; each request makes
// at most one upstream call and, for the persisting relay, one identity lookup
// and one store write. Nothing is retried.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nulpointcorp/ai-relay/internal/metrics"
	"github.com/nulpointcorp/ai-relay/internal/store"
	"github.com/nulpointcorp/ai-relay/internal/upstream"
	"github.com/nulpointcorp/ai-relay/pkg/apierr"
)

const (
	routeChat      = "/ai-chat"
	routeAssistant = "/ai-assistant"
)

// Options holds the relay's collaborators. Every field is optional:
//   - nil Completer: both relays answer "AI not configured".
//   - nil Store: the persisting relay always falls back to a synthesized record.
//   - nil Identity: exchanges are written without an owner.
//   - nil Metrics: metrics are disabled.
type Options struct {
	Logger    *slog.Logger
	Completer upstream.Completer
	Store     store.Store
	Identity  store.IdentityResolver
	Metrics   *metrics.Registry

	// StoreTimeout bounds identity lookup plus write. Default: store.DefaultTimeout.
	StoreTimeout time.Duration

	Version string
}

// Service hosts both relays.
type Service struct {
	log          *slog.Logger
	completer    upstream.Completer
	store        store.Store
	identity     store.IdentityResolver
	metrics      *metrics.Registry
	storeTimeout time.Duration
	version      string
}

func New(opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := opts.StoreTimeout
	if timeout <= 0 {
		timeout = store.DefaultTimeout
	}
	return &Service{
		log:          log,
		completer:    opts.Completer,
		store:        opts.Store,
		identity:     opts.Identity,
		metrics:      opts.Metrics,
		storeTimeout: timeout,
		version:      opts.Version,
	}
}

// complete runs the single upstream call for route and classifies failures.
// Empty content is replaced by upstream.FallbackText.
func (s *Service) complete(ctx context.Context, reqID, route string, msgs []upstream.Message) (*upstream.Completion, error) {
	if s.completer == nil {
		s.observeUpstream("none", metrics.OutcomeNotConfigured, 0)
		return nil, apierr.NotConfigured(nil)
	}

	provider := s.completer.Name()
	start := time.Now()
	out, err := s.completer.Complete(ctx, msgs)
	elapsed := time.Since(start)

	if err != nil {
		var sc upstream.StatusCoder
		switch {
		case errors.Is(err, upstream.ErrNotConfigured):
			s.observeUpstream(provider, metrics.OutcomeNotConfigured, elapsed)
			return nil, apierr.NotConfigured(err)

		case errors.As(err, &sc):
			classified := apierr.FromUpstream(sc.HTTPStatus(), err)
			s.observeUpstream(provider, upstreamOutcome(classified.Kind), elapsed)
			s.log.ErrorContext(ctx, "upstream_error",
				slog.String("request_id", reqID),
				slog.String("route", route),
				slog.String("provider", provider),
				slog.Int("upstream_status", sc.HTTPStatus()),
				slog.String("error", err.Error()),
				slog.Duration("elapsed", elapsed),
			)
			return nil, classified

		default:
			s.observeUpstream(provider, metrics.OutcomeTransportError, elapsed)
			s.log.ErrorContext(ctx, "upstream_unreachable",
				slog.String("request_id", reqID),
				slog.String("route", route),
				slog.String("provider", provider),
				slog.String("error", err.Error()),
				slog.Duration("elapsed", elapsed),
			)
			return nil, err
		}
	}

	s.observeUpstream(provider, metrics.OutcomeSuccess, elapsed)

	if out.Content == "" {
		out.Content = upstream.FallbackText
	}
	if out.TotalTokens < 0 {
		out.TotalTokens = 0
	}
	if s.metrics != nil {
		s.metrics.AddTokens(route, out.TotalTokens)
	}

	return out, nil
}

func (s *Service) observeUpstream(provider, outcome string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveUpstream(provider, outcome, d)
	}
}

func upstreamOutcome(k apierr.Kind) string {
	switch k {
	case apierr.KindRateLimited:
		return metrics.OutcomeRateLimited
	case apierr.KindPaymentRequired:
		return metrics.OutcomePaymentRequired
	default:
		return metrics.OutcomeUpstreamError
	}
}
