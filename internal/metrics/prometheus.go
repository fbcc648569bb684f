// Package metrics provides a Prometheus metrics registry for the relay.
//
// All metrics are scoped to a private registry (not the global default) so
// they don't interfere with host-level metrics when embedded in other
// applications. The /metrics HTTP handler is exposed via Handler().
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Upstream outcomes.
const (
	OutcomeSuccess         = "success"
	OutcomeRateLimited     = "rate_limited"
	OutcomePaymentRequired = "payment_required"
	OutcomeUpstreamError   = "upstream_error"
	OutcomeTransportError  = "transport_error"
	OutcomeNotConfigured   = "not_configured"
)

// Store write outcomes.
const (
	StoreStored   = "stored"
	StoreFallback = "fallback"
)

var latencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60}

// Registry holds all exported metrics.
type Registry struct {
	reg *prometheus.Registry

	// relay_inflight_requests
	inFlight prometheus.Gauge

	// relay_http_requests_total{route,status}
	httpRequestsTotal *prometheus.CounterVec

	// relay_http_request_duration_seconds{route}
	httpDuration *prometheus.HistogramVec

	// relay_http_request_size_bytes{route}
	httpReqSize *prometheus.HistogramVec

	// relay_upstream_requests_total{provider,outcome}
	upstreamRequests *prometheus.CounterVec

	// relay_upstream_request_duration_seconds{provider,outcome}
	upstreamDuration *prometheus.HistogramVec

	// relay_tokens_total{route}
	tokensTotal *prometheus.CounterVec

	// relay_store_writes_total{backend,outcome}
	storeWrites *prometheus.CounterVec

	// relay_build_info{version}
	buildInfo *prometheus.GaugeVec

	metricsHandler fasthttp.RequestHandler
}

func New() *Registry {
	reg := prometheus.NewRegistry()

	// Baseline runtime metrics even with a private registry.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		reg: reg,

		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_http_requests_total",
				Help: "Total number of HTTP requests handled by the relay",
			},
			[]string{"route", "status"},
		),

		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds (end-to-end, includes upstream and store)",
				Buckets: latencyBuckets,
			},
			[]string{"route"},
		),

		httpReqSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_http_request_size_bytes",
				Help:    "HTTP request body size in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 2, 12), // 64B .. ~128KB
			},
			[]string{"route"},
		),

		upstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_upstream_requests_total",
				Help: "Upstream completion calls by outcome (one per relayed request)",
			},
			[]string{"provider", "outcome"},
		),

		upstreamDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_upstream_request_duration_seconds",
				Help:    "Upstream completion call duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"provider", "outcome"},
		),

		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_tokens_total",
				Help: "Token usage reported by the upstream",
			},
			[]string{"route"},
		),

		storeWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_store_writes_total",
				Help: "Exchange persistence attempts by outcome",
			},
			[]string{"backend", "outcome"},
		),

		buildInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "relay_build_info",
				Help: "Build information",
			},
			[]string{"version"},
		),
	}

	reg.MustRegister(
		r.inFlight,
		r.httpRequestsTotal,
		r.httpDuration,
		r.httpReqSize,
		r.upstreamRequests,
		r.upstreamDuration,
		r.tokensTotal,
		r.storeWrites,
		r.buildInfo,
	)

	h := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	r.metricsHandler = fasthttpadaptor.NewFastHTTPHandler(h)

	return r
}

func (r *Registry) IncInFlight() { r.inFlight.Inc() }
func (r *Registry) DecInFlight() { r.inFlight.Dec() }

// ObserveHTTP records end-to-end HTTP metrics.
func (r *Registry) ObserveHTTP(route string, statusCode int, dur time.Duration, reqBytes int) {
	r.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	r.httpDuration.WithLabelValues(route).Observe(dur.Seconds())
	if reqBytes >= 0 {
		r.httpReqSize.WithLabelValues(route).Observe(float64(reqBytes))
	}
}

// ObserveUpstream records one upstream completion call.
func (r *Registry) ObserveUpstream(provider, outcome string, dur time.Duration) {
	r.upstreamRequests.WithLabelValues(provider, outcome).Inc()
	r.upstreamDuration.WithLabelValues(provider, outcome).Observe(dur.Seconds())
}

func (r *Registry) AddTokens(route string, tokens int) {
	if tokens > 0 {
		r.tokensTotal.WithLabelValues(route).Add(float64(tokens))
	}
}

func (r *Registry) RecordStoreWrite(backend, outcome string) {
	r.storeWrites.WithLabelValues(backend, outcome).Inc()
}

func (r *Registry) SetBuildInfo(version string) {
	// Gauge is used so the time series always exists.
	r.buildInfo.WithLabelValues(version).Set(1)
}

func (r *Registry) Handler() fasthttp.RequestHandler {
	return r.metricsHandler
}

func (r *Registry) PromRegistry() *prometheus.Registry { return r.reg }
