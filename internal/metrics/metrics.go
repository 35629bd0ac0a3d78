// Package metrics records pipeline outcomes as Prometheus metrics and can
// export them in the node_exporter textfile format after a run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentstation/apicorpus/pkg/errors"
	"github.com/agentstation/apicorpus/pkg/reconcile"
)

const namespace = "apicorpus"

// Metrics holds the pipeline collectors.
type Metrics struct {
	registry *prometheus.Registry

	candidates *prometheus.CounterVec   // By step and terminal state
	failures   *prometheus.CounterVec   // By step and failure kind
	changes    *prometheus.CounterVec   // By step and change type (content, version)
	duration   *prometheus.HistogramVec // By step
	tracked    prometheus.Gauge         // Candidates in the registry after the last run
	lastRun    prometheus.Gauge         // Unix time of the last completed run
}

// New creates the collectors and registers them with a private registry.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		candidates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "candidates_total",
			Help:      "Candidates processed, by step and terminal state",
		}, []string{"step", "state"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "failures_total",
			Help:      "Candidate failures, by step and kind (network, validation, filesystem)",
		}, []string{"step", "kind"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "changes_total",
			Help:      "Detected changes, by step and type",
		}, []string{"step", "type"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "candidate_duration_seconds",
			Help:      "Time spent on one candidate",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"step"}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "candidates",
			Help:      "Candidates tracked in the registry",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last completed run",
		}),
	}

	for _, c := range []prometheus.Collector{m.candidates, m.failures, m.changes, m.duration, m.tracked, m.lastRun} {
		if err := m.registry.Register(c); err != nil {
			return nil, errors.NewConfigError("metrics", "registering collector", err)
		}
	}
	return m, nil
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observer returns a reconcile.Observer that labels outcomes with step.
func (m *Metrics) Observer(step string) reconcile.Observer {
	return &observer{m: m, step: step}
}

// RunFinished records the registry size and the completion time.
func (m *Metrics) RunFinished(tracked int) {
	m.tracked.Set(float64(tracked))
	m.lastRun.SetToCurrentTime()
}

// WriteTextfile writes every metric to path in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return errors.WrapIO("write", path, err)
	}
	return nil
}

type observer struct {
	m    *Metrics
	step string
}

func (o *observer) Observe(out *reconcile.Outcome) {
	o.m.candidates.WithLabelValues(o.step, string(out.State)).Inc()
	o.m.duration.WithLabelValues(o.step).Observe(out.Duration.Seconds())
	if out.Kind != reconcile.KindNone {
		o.m.failures.WithLabelValues(o.step, string(out.Kind)).Inc()
	}
	if out.Changed {
		o.m.changes.WithLabelValues(o.step, "content").Inc()
	}
	if out.Moved {
		o.m.changes.WithLabelValues(o.step, "version").Inc()
	}
}
