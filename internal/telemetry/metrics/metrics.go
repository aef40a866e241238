// Package metrics defines the Prometheus metrics recorded by xrpcd and the
// HTTP handler that exposes them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric xrpcd records, grounded on the
// teacher's Metrics struct shape (one promauto.With(reg) field per
// instrument, namespace-prefixed names).
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	RateLimitExceeded  *prometheus.CounterVec
	RateLimitKeys      prometheus.Gauge
	ActiveSubscribers  prometheus.Gauge
	SubscriptionFrames *prometheus.CounterVec
}

// New creates and registers every metric with reg, and registers the
// standard Go/process collectors the teacher always pairs with its own
// registry.
func New(reg *prometheus.Registry) *Metrics {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "xrpcd",
				Name:      "requests_total",
				Help:      "Total number of XRPC requests processed, by NSID and outcome.",
			},
			[]string{"nsid", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "xrpcd",
				Name:      "request_duration_seconds",
				Help:      "XRPC request handling duration in seconds, by NSID.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"nsid"},
		),
		RateLimitExceeded: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "xrpcd",
				Name:      "rate_limit_exceeded_total",
				Help:      "Total requests rejected by a rate limiter, by limiter name.",
			},
			[]string{"limiter"},
		),
		RateLimitKeys: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "xrpcd",
				Name:      "rate_limit_keys",
				Help:      "Number of distinct rate limit keys currently tracked.",
			},
		),
		ActiveSubscribers: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "xrpcd",
				Name:      "active_subscribers",
				Help:      "Number of open subscription (websocket) connections.",
			},
		),
		SubscriptionFrames: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "xrpcd",
				Name:      "subscription_frames_total",
				Help:      "Total subscription frames sent, by NSID and frame type.",
			},
			[]string{"nsid", "frame_type"},
		),
	}
}

// Handler returns the /metrics HTTP handler for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
