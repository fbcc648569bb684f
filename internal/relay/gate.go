package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/nulpointcorp/ai-relay/pkg/apierr"
)

// CORS header set carried by every response, preflight included.
const (
	corsAllowOrigin  = "*"
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"
	corsAllowMethods = "POST, GET, OPTIONS"
)

// handlerFunc is a relay body. A nil error means HTTP 200 with v as JSON.
type handlerFunc func(ctx *fasthttp.RequestCtx) (any, error)

// recovery catches panics in any handler and converts them into the same
// {"error": ...} 500 the failure boundary produces.
func recovery(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		defer func() {
			if r := recover(); r != nil {
				writePanic(ctx, r)
			}
		}()
		next(ctx)
	}
}

func writePanic(ctx *fasthttp.RequestCtx, r any) {
	slog.Error("handler_panic",
		slog.Any("panic", r),
		slog.String("path", string(ctx.Path())),
		slog.String("method", string(ctx.Method())),
	)
	ctx.ResetBody()
	msg := fmt.Sprint(r)
	if msg == "" {
		msg = apierr.MsgUnknown
	}
	apierr.Write(ctx, fasthttp.StatusInternalServerError, msg)
}

// requestID ensures every request has an X-Request-ID header. If the client
// does not supply one a UUID v4 is generated. The ID is also stored under the
// user value "request_id".
func requestID(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id := string(ctx.Request.Header.Peek("X-Request-ID"))
		if id == "" {
			id = uuid.New().String()
		}
		ctx.Response.Header.Set("X-Request-ID", id)
		ctx.SetUserValue("request_id", id)
		next(ctx)
	}
}

// timing records the total handler duration in X-Response-Time.
func timing(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		next(ctx)
		ctx.Response.Header.Set("X-Response-Time", time.Since(start).String())
	}
}

// cors sets the permissive cross-origin headers and answers preflight
// requests itself: 200, empty body, no Content-Type.
func cors(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		h := &ctx.Response.Header
		h.Set("Access-Control-Allow-Origin", corsAllowOrigin)
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)

		if ctx.IsOptions() {
			h.SetNoDefaultContentType(true)
			ctx.SetStatusCode(fasthttp.StatusOK)
			return
		}
		next(ctx)
	}
}

// securityHeaders adds API-appropriate hardening headers to every response.
func securityHeaders(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		next(ctx)
		h := &ctx.Response.Header
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'")
		h.Set("Referrer-Policy", "no-referrer")
	}
}

// applyMiddleware wraps h with the given middleware chain. The first middleware
// in the slice becomes the outermost wrapper:
//
//	applyMiddleware(h, mw1, mw2) → mw1(mw2(h))
func applyMiddleware(h fasthttp.RequestHandler, mws ...func(fasthttp.RequestHandler) fasthttp.RequestHandler) fasthttp.RequestHandler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// handle is the failure boundary around a relay body. Classified errors keep
// their status and message; anything else becomes a 500 carrying the error
// text. Success is always 200.
func (s *Service) handle(route string, h handlerFunc) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()
		reqID, _ := ctx.UserValue("request_id").(string)

		if s.metrics != nil {
			s.metrics.IncInFlight()
			defer func() {
				s.metrics.DecInFlight()
				s.metrics.ObserveHTTP(route, ctx.Response.StatusCode(), time.Since(start), len(ctx.PostBody()))
			}()
		}

		// Runs before the metrics defer, so a panic is counted as a 500.
		defer func() {
			if r := recover(); r != nil {
				writePanic(ctx, r)
			}
		}()

		v, err := h(ctx)
		if err != nil {
			s.logFailure(ctx, reqID, route, err)
			apierr.WriteError(ctx, err)
			return
		}

		body, err := json.Marshal(v)
		if err != nil {
			s.logFailure(ctx, reqID, route, err)
			apierr.WriteError(ctx, err)
			return
		}

		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetContentType("application/json")
		ctx.SetBody(body)

		s.log.InfoContext(ctx, "relay_request",
			slog.String("request_id", reqID),
			slog.String("route", route),
			slog.Int("status", fasthttp.StatusOK),
			slog.Duration("elapsed", time.Since(start)),
		)
	}
}

func (s *Service) logFailure(ctx *fasthttp.RequestCtx, reqID, route string, err error) {
	status, msg := apierr.Resolve(err)
	level := slog.LevelError

	var ae *apierr.Error
	if errors.As(err, &ae) && ae.Kind == apierr.KindValidation {
		level = slog.LevelInfo
	}

	s.log.Log(ctx, level, "relay_failed",
		slog.String("request_id", reqID),
		slog.String("route", route),
		slog.Int("status", status),
		slog.String("message", msg),
		slog.String("error", err.Error()),
	)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v any) {
	data, _ := json.Marshal(v)
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(data)
}
