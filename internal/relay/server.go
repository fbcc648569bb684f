package relay

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/ai-relay/pkg/apierr"
)

// Handler returns the complete HTTP handler: both relays, /health and
// /metrics behind the middleware chain.
func (s *Service) Handler() fasthttp.RequestHandler {
	r := router.New()
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false

	r.POST(routeChat, s.handle(routeChat, s.handleChat))
	r.POST(routeAssistant, s.handle(routeAssistant, s.handleAssistant))
	r.GET("/health", s.handleHealth)

	if s.metrics != nil {
		r.GET("/metrics", s.metrics.Handler())
	}

	r.NotFound = func(ctx *fasthttp.RequestCtx) {
		apierr.Write(ctx, fasthttp.StatusNotFound, apierr.MsgNotFound)
	}
	r.MethodNotAllowed = func(ctx *fasthttp.RequestCtx) {
		apierr.Write(ctx, fasthttp.StatusMethodNotAllowed, apierr.MsgMethodNotAllowed)
	}

	return applyMiddleware(r.Handler,
		recovery,
		requestID,
		timing,
		cors,
		securityHeaders,
	)
}

// NewServer wraps Handler in a fasthttp.Server. The caller owns its lifecycle.
func (s *Service) NewServer() *fasthttp.Server {
	return &fasthttp.Server{
		Name:         "ai-relay",
		Handler:      s.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		Logger:       fasthttpLogger{s.log},
	}
}

type healthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Upstream string `json:"upstream"`
	Store    string `json:"store"`
}

func (s *Service) handleHealth(ctx *fasthttp.RequestCtx) {
	upstreamName := "unconfigured"
	if s.completer != nil {
		upstreamName = s.completer.Name()
	}
	writeJSON(ctx, fasthttp.StatusOK, healthResponse{
		Status:   "ok",
		Version:  s.version,
		Upstream: upstreamName,
		Store:    s.storeName(),
	})
}

// fasthttpLogger routes fasthttp's internal messages into slog.
type fasthttpLogger struct{ log *slog.Logger }

func (l fasthttpLogger) Printf(format string, args ...any) {
	l.log.Warn("fasthttp", slog.String("message", fmt.Sprintf(format, args...)))
}
