// Package metrics provides the centralized Prometheus metrics registry for
// the decision engine.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Global registry instance
var (
	registry *prometheus.Registry
	once     sync.Once
)

// Counter metrics
var (
	DecisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turfpilot",
		Name:      "decisions_total",
		Help:      "Total number of decisions emitted, by phase and outcome",
	}, []string{"phase", "outcome"})
	GuardrailRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turfpilot",
		Name:      "guardrail_rejections_total",
		Help:      "Total number of guardrail rejections, by phase",
	}, []string{"phase"})
	StakeAllocated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turfpilot",
		Name:      "stake_allocated_total",
		Help:      "Cumulative stake allocated, by ticket kind",
	}, []string{"kind"})
	SnapshotFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "turfpilot",
		Name:      "snapshot_fetches_total",
		Help:      "Total number of snapshot fetches, by result",
	}, []string{"result"})
	StreamReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "turfpilot",
		Name:      "stream_reconnects_total",
		Help:      "Total number of odds stream reconnections",
	})
)

// Gauge metrics
var (
	RacesScheduled = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "turfpilot",
		Name:      "races_scheduled",
		Help:      "Number of races with pending checkpoints today",
	})
	DailyProfitLoss = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "turfpilot",
		Name:      "daily_pnl",
		Help:      "Realized profit and loss for the current day",
	})
	CalibrationCacheHitRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "turfpilot",
		Name:      "calibration_cache_hit_ratio",
		Help:      "Hit ratio of the calibration cache",
	})
)

// Histogram metrics
var (
	PipelineDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "turfpilot",
		Name:      "pipeline_duration_seconds",
		Help:      "Duration of one pipeline phase invocation in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"phase"})
	ProviderLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "turfpilot",
		Name:      "provider_latency_seconds",
		Help:      "Latency of provider HTTP calls in seconds",
		Buckets:   prometheus.DefBuckets,
	})
)

// InitRegistry initializes the global Prometheus registry.
func InitRegistry() *prometheus.Registry {
	once.Do(func() {
		registry = prometheus.NewRegistry()

		registry.MustRegister(DecisionsTotal)
		registry.MustRegister(GuardrailRejectionsTotal)
		registry.MustRegister(StakeAllocated)
		registry.MustRegister(SnapshotFetchesTotal)
		registry.MustRegister(StreamReconnectsTotal)

		registry.MustRegister(RacesScheduled)
		registry.MustRegister(DailyProfitLoss)
		registry.MustRegister(CalibrationCacheHitRatio)

		registry.MustRegister(PipelineDuration)
		registry.MustRegister(ProviderLatency)
	})
	return registry
}

// GetRegistry returns the global Prometheus registry.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{})
}
