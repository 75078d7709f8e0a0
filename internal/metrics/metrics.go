// Package metrics exposes Prometheus collectors for search sessions,
// adapter calls and the cover gallery.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "shelfscout"

var (
	registerOnce sync.Once

	sessionsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Search sessions started by query kind",
	}, []string{"kind"})
	sessionsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_finished_total",
		Help:      "Search sessions finished by terminal outcome",
	}, []string{"outcome"})
	sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Search sessions currently running",
	})
	sessionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_duration_seconds",
		Help:      "Wall time from dispatch to terminal event",
		Buckets:   prometheus.ExponentialBuckets(0.05, 1.8, 10),
	})

	adapterCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "adapter_calls_total",
		Help:      "Adapter calls by provider and outcome",
	}, []string{"provider", "outcome"})
	adapterDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "adapter_duration_seconds",
		Help:      "Adapter call latency by provider",
		Buckets:   prometheus.ExponentialBuckets(0.05, 1.8, 10),
	}, []string{"provider"})
	lateResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "adapter_late_results_total",
		Help:      "Adapter results discarded because the session had already ended",
	}, []string{"provider"})

	thumbnails = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gallery_thumbnails_total",
		Help:      "Gallery thumbnail fetches by outcome",
	}, []string{"outcome"})
	thumbnailsDeferred = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gallery_thumbnails_deferred_total",
		Help:      "Thumbnail fetches rejected by a saturated worker pool",
	})
)

// Register adds all collectors to the default registry. Idempotent.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(sessionsStarted, sessionsFinished, sessionsActive, sessionDuration,
			adapterCalls, adapterDuration, lateResults, thumbnails, thumbnailsDeferred)
	})
}

func IncSessionStarted(kind string) {
	sessionsStarted.WithLabelValues(kind).Inc()
	sessionsActive.Inc()
}

func IncSessionFinished(outcome string, d time.Duration) {
	sessionsFinished.WithLabelValues(outcome).Inc()
	sessionsActive.Dec()
	sessionDuration.Observe(d.Seconds())
}

// IncSessionRejected counts a session that ended before dispatch.
func IncSessionRejected(kind, outcome string) {
	sessionsStarted.WithLabelValues(kind).Inc()
	sessionsFinished.WithLabelValues(outcome).Inc()
}

func ObserveAdapterCall(provider, outcome string, d time.Duration) {
	adapterCalls.WithLabelValues(provider, outcome).Inc()
	adapterDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func IncLateResult(provider string)        { lateResults.WithLabelValues(provider).Inc() }
func IncThumbnail(outcome string)          { thumbnails.WithLabelValues(outcome).Inc() }
func IncThumbnailDeferred()                { thumbnailsDeferred.Inc() }
func SessionsActive() prometheus.Gauge     { return sessionsActive }
func AdapterCalls() *prometheus.CounterVec { return adapterCalls }

// Snapshot sums every counter and gauge in the default registry by metric
// name. Used by the CLI to print a run summary.
func Snapshot() (map[string]float64, error) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				out[mf.GetName()] += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				out[mf.GetName()] += m.GetGauge().GetValue()
			}
		}
	}
	return out, nil
}
