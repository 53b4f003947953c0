package observability

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusHooks records every hook event as a Prometheus metric.
type PrometheusHooks struct {
	Requests   *prometheus.CounterVec
	Responses  *prometheus.CounterVec
	HTTPErrors prometheus.Counter
	Retries    prometheus.Counter
	Latency    prometheus.Histogram

	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec
	CacheBytes  *prometheus.CounterVec

	Runs       *prometheus.CounterVec
	Flattened  prometheus.Counter
	Nested     prometheus.Counter
	Conflicts  prometheus.Counter
	CycleSkips prometheus.Counter
	Duration   prometheus.Histogram
}

// NewPrometheusHooks creates the collectors and registers them on reg.
func NewPrometheusHooks(reg prometheus.Registerer) (*PrometheusHooks, error) {
	h := &PrometheusHooks{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pget_registry_requests_total",
			Help: "Registry HTTP requests by host.",
		}, []string{"host"}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pget_registry_responses_total",
			Help: "Registry HTTP responses by status code.",
		}, []string{"code"}),
		HTTPErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pget_registry_errors_total",
			Help: "Registry requests that failed without a response.",
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pget_registry_retries_total",
			Help: "Registry attempts that were retried.",
		}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pget_registry_request_duration_seconds",
			Help:    "Time taken for a registry response.",
			Buckets: prometheus.DefBuckets,
		}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pget_cache_hits_total",
			Help: "Cache hits by level.",
		}, []string{"level"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pget_cache_misses_total",
			Help: "Cache misses by level.",
		}, []string{"level"}),
		CacheBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pget_cache_written_bytes_total",
			Help: "Bytes written to the cache by level.",
		}, []string{"level"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pget_resolve_runs_total",
			Help: "Completed resolution runs by outcome.",
		}, []string{"outcome"}),
		Flattened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pget_resolve_flattened_total",
			Help: "Packages hoisted to the top-level node_modules.",
		}),
		Nested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pget_resolve_nested_total",
			Help: "Packages nested under a parent.",
		}),
		Conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pget_resolve_conflicts_total",
			Help: "Irreconcilable version conflicts.",
		}),
		CycleSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pget_resolve_cycle_skips_total",
			Help: "Dependencies skipped because an ancestor satisfies them.",
		}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pget_resolve_duration_seconds",
			Help:    "Time taken to resolve a manifest.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	for _, c := range []prometheus.Collector{
		h.Requests, h.Responses, h.HTTPErrors, h.Retries, h.Latency,
		h.CacheHits, h.CacheMisses, h.CacheBytes,
		h.Runs, h.Flattened, h.Nested, h.Conflicts, h.CycleSkips, h.Duration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *PrometheusHooks) OnResolveStart(context.Context, string, int) {}

func (h *PrometheusHooks) OnResolveComplete(_ context.Context, _ string, _, _ int, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	h.Runs.WithLabelValues(outcome).Inc()
	h.Duration.Observe(d.Seconds())
}

func (h *PrometheusHooks) OnFlatten(context.Context, string, string)      { h.Flattened.Inc() }
func (h *PrometheusHooks) OnNest(context.Context, string, string, string) { h.Nested.Inc() }
func (h *PrometheusHooks) OnConflict(context.Context, string, string)     { h.Conflicts.Inc() }
func (h *PrometheusHooks) OnCycleSkip(context.Context, string, string)    { h.CycleSkips.Inc() }

func (h *PrometheusHooks) OnCacheHit(_ context.Context, level string) {
	h.CacheHits.WithLabelValues(level).Inc()
}

func (h *PrometheusHooks) OnCacheMiss(_ context.Context, level string) {
	h.CacheMisses.WithLabelValues(level).Inc()
}

func (h *PrometheusHooks) OnCacheSet(_ context.Context, level string, size int) {
	h.CacheBytes.WithLabelValues(level).Add(float64(size))
}

func (h *PrometheusHooks) OnRequest(_ context.Context, _, host, _ string) {
	h.Requests.WithLabelValues(host).Inc()
}

func (h *PrometheusHooks) OnResponse(_ context.Context, _, _, _ string, code int, d time.Duration) {
	h.Responses.WithLabelValues(strconv.Itoa(code)).Inc()
	h.Latency.Observe(d.Seconds())
}

func (h *PrometheusHooks) OnError(context.Context, string, string, string, error) {
	h.HTTPErrors.Inc()
}

func (h *PrometheusHooks) OnRetry(context.Context, string, int, error) {
	h.Retries.Inc()
}

var _ AllHooks = (*PrometheusHooks)(nil)
