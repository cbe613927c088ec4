// Package metrics holds the Prometheus collectors for health sweeps,
// correction analyses, and lifecycle transitions.
package metrics

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JaimeStill/tenet/internal/events"
)

const namespace = "tenet"

// Metrics is safe for concurrent use. A nil *Metrics discards every
// observation.
type Metrics struct {
	analyses      *prometheus.CounterVec
	declining     *prometheus.GaugeVec
	successRate   *prometheus.GaugeVec
	sweepDuration prometheus.Histogram
	transitions   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		analyses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "corrections",
			Name:      "analyses_total",
			Help:      "Correction analyses completed, by recommendation.",
		}, []string{"recommendation"}),
		declining: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "declining_patterns",
			Help:      "Declining patterns found by the last sweep, by health status.",
		}, []string{"status"}),
		successRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "success_rate",
			Help:      "Success rate of each declining pattern at the last sweep.",
		}, []string{"pattern_id"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of health sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "patterns",
			Name:      "transitions_total",
			Help:      "Committed lifecycle events, by event type.",
		}, []string{"event_type"}),
	}

	for _, c := range []prometheus.Collector{
		m.analyses, m.declining, m.successRate, m.sweepDuration, m.transitions,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Analysis counts one completed correction analysis.
func (m *Metrics) Analysis(recommendation string) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(recommendation).Inc()
}

// Sweep records the outcome of one health sweep. The per-pattern gauge is
// reset so patterns that recovered drop out.
func (m *Metrics) Sweep(elapsed time.Duration, counts map[string]int, rates map[string]float64) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(elapsed.Seconds())

	m.declining.Reset()
	for status, n := range counts {
		m.declining.WithLabelValues(status).Set(float64(n))
	}

	m.successRate.Reset()
	for id, rate := range rates {
		m.successRate.WithLabelValues(id).Set(rate)
	}
}

// Observe counts a committed lifecycle event.
func (m *Metrics) Observe(_ context.Context, e events.Event) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(strings.ToLower(string(e.Type))).Inc()
}
