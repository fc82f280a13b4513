package infrastructure

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects pipeline instrumentation: stage durations, stage
// outcomes, and headline analysis gauges.
type Metrics struct {
	registry *prometheus.Registry

	stageDuration *prometheus.HistogramVec
	stageTotal    *prometheus.CounterVec
	coverageRatio *prometheus.GaugeVec
	runsActive    prometheus.Gauge
}

// NewMetrics builds the metric set on a private registry so tests do not
// collide on the default one.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "panelrep",
		Name:      "stage_duration_seconds",
		Help:      "Wall time per pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	}, []string{"stage"})

	m.stageTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "panelrep",
		Name:      "stage_total",
		Help:      "Stage executions by outcome.",
	}, []string{"stage", "outcome"})

	m.coverageRatio = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "panelrep",
		Name:      "coverage_ratio",
		Help:      "Latest employment coverage ratio per aggregation level.",
	}, []string{"level"})

	m.runsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "panelrep",
		Name:      "runs_active",
		Help:      "Pipeline runs currently in flight.",
	})

	m.registry.MustRegister(m.stageDuration, m.stageTotal, m.coverageRatio, m.runsActive)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveStage records one stage execution.
func (m *Metrics) ObserveStage(stage string, d time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	m.stageTotal.WithLabelValues(stage, outcome).Inc()
}

// SetCoverageRatio publishes the latest coverage ratio for a level.
func (m *Metrics) SetCoverageRatio(level string, ratio float64) {
	m.coverageRatio.WithLabelValues(level).Set(ratio)
}

// RunStarted and RunFinished bracket a pipeline run.
func (m *Metrics) RunStarted()  { m.runsActive.Inc() }
func (m *Metrics) RunFinished() { m.runsActive.Dec() }
