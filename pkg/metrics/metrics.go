// Package metrics exposes local Prometheus instruments for sandbox
// pipeline stage durations and cache hit/miss counts. There is no served
// /metrics endpoint; `minotaur status --metrics` dumps the registry's
// text-format encoding to stdout for ad hoc inspection.
package metrics

import (
	"bytes"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

var registry = prometheus.NewRegistry()

var (
	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minotaur_stage_duration_seconds",
			Help:    "Duration of each run pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	CacheResult = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minotaur_cache_result_total",
			Help: "Cache lookups by kind (volume, image) and result (hit, miss)",
		},
		[]string{"kind", "result"},
	)

	CredentialFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "minotaur_credential_fetch_duration_seconds",
			Help:    "Time spent calling a cloud CLI to obtain credentials",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	ImagesComposedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "minotaur_images_composed_total",
			Help: "Total number of composed images built from layer manifests",
		},
	)

	SessionsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minotaur_sessions_started_total",
			Help: "Total number of sandbox sessions started, by runtime backend",
		},
		[]string{"runtime"},
	)
)

func init() {
	registry.MustRegister(
		StageDuration,
		CacheResult,
		CredentialFetchDuration,
		ImagesComposedTotal,
		SessionsStartedTotal,
	)
}

// RecordCacheHit increments the cache hit/miss counter for kind.
func RecordCacheHit(kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheResult.WithLabelValues(kind, result).Inc()
}

// Dump renders the current registry in Prometheus text exposition format,
// used by `minotaur status --metrics`.
func Dump() (string, error) {
	families, err := registry.Gather()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// Timer is a helper for timing pipeline stages.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// ObserveStage times stage and records it against StageDuration.
func ObserveStage(stage string) func() {
	start := time.Now()
	return func() {
		StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
