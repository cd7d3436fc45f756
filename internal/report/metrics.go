package report

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vanilla/proftimers/pkg/timers"
)

// Metrics turns timer activity into Prometheus series.
// It is shared by every per-request registry, so it must stay safe for
// concurrent use; the prometheus vectors and the violation log both are.
type Metrics struct {
	registry *prometheus.Registry

	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	warnings *prometheus.CounterVec
	misuse   *prometheus.CounterVec

	violations *ViolationLog
}

// NewMetrics creates the collectors on a private registry.
func NewMetrics(namespace string, violations *ViolationLog) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timer_runs_total",
				Help:      "Completed timer runs",
			},
			[]string{"timer"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "timer_duration_seconds",
				Help:      "Duration of single timer runs",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
			},
			[]string{"timer"},
		),
		warnings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timer_warnings_total",
				Help:      "Timer runs that exceeded their warning limit",
			},
			[]string{"timer"},
		),
		misuse: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timer_misuse_total",
				Help:      "Auto-corrected start/stop protocol violations",
			},
			[]string{"timer", "kind"},
		),
		violations: violations,
	}

	m.registry.MustRegister(m.runs, m.duration, m.warnings, m.misuse)
	return m
}

// Registry exposes the underlying prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Violations returns the violation log fed by ObserveWarning
func (m *Metrics) Violations() *ViolationLog {
	return m.violations
}

// ObserveStop implements timers.Observer
func (m *Metrics) ObserveStop(name string, elapsedMs float64) {
	m.runs.WithLabelValues(name).Inc()
	m.duration.WithLabelValues(name).Observe(elapsedMs / 1000)
}

// ObserveWarning implements timers.Observer
func (m *Metrics) ObserveWarning(w timers.Warning) {
	m.warnings.WithLabelValues(w.Timer).Inc()
	if m.violations != nil {
		m.violations.Record(w)
	}
}

// ObserveMisuse implements timers.Observer
func (m *Metrics) ObserveMisuse(name string, kind timers.Misuse) {
	m.misuse.WithLabelValues(name, string(kind)).Inc()
}
