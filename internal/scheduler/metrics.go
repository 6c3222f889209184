package scheduler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports scheduler observability counters. All methods are safe on
// a nil receiver so callers can run without metrics wired.
type Metrics struct {
	registry    prometheus.Registerer
	jobsTotal   prometheus.Gauge
	runsTotal   *prometheus.CounterVec
	runDuration *prometheus.HistogramVec
	ticksTotal  prometheus.Counter
}

// InitMetrics registers scheduler metrics against the given registerer
func InitMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		registry: reg,
		jobsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Number of jobs in the store",
			},
		),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of job dispatches",
			},
			[]string{"status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of job payload execution",
				Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),
		ticksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ticks_total",
				Help:      "Total number of dispatch loop ticks",
			},
		),
	}

	reg.MustRegister(
		m.jobsTotal,
		m.runsTotal,
		m.runDuration,
		m.ticksTotal,
	)

	return m
}

// SetJobs records the current job count
func (m *Metrics) SetJobs(n int) {
	if m == nil {
		return
	}
	m.jobsTotal.Set(float64(n))
}

// ObserveRun records one dispatch outcome and its duration
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(status).Inc()
	m.runDuration.WithLabelValues(status).Observe(d.Seconds())
}

// IncTick counts one dispatch loop wakeup
func (m *Metrics) IncTick() {
	if m == nil {
		return
	}
	m.ticksTotal.Inc()
}
