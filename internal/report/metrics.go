package report

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/psantana5/wfrunner/pkg/models"
)

// Metrics holds the run-level Prometheus collectors. Every value can be
// explained by looking at a single run record.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	runDuration    prometheus.Gauge
	phaseDuration  *prometheus.GaugeVec
	publishTotal   *prometheus.CounterVec
	engineSteps    *prometheus.GaugeVec
	runStartedTime prometheus.Gauge
}

// NewMetrics creates a metrics set on its own registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wfrunner_runs_total",
			Help: "Workflow runs by terminal state",
		}, []string{"state"}),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wfrunner_run_duration_seconds",
			Help: "Wall-clock duration of the last run",
		}),
		phaseDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wfrunner_phase_duration_seconds",
			Help: "Duration of each supervisor phase of the last run",
		}, []string{"phase"}),
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wfrunner_status_publish_total",
			Help: "Status publish attempts by state and result",
		}, []string{"state", "result"}),
		engineSteps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wfrunner_engine_steps",
			Help: "Engine steps by state as last reported by the engine",
		}, []string{"state"}),
		runStartedTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "wfrunner_run_start_time_seconds",
			Help: "Unix time the last run started",
		}),
	}

	m.registry.MustRegister(
		m.runsTotal,
		m.runDuration,
		m.phaseDuration,
		m.publishTotal,
		m.engineSteps,
		m.runStartedTime,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordResult updates the run counters from a frozen Result. This is the
// only way run-level metrics change.
func (m *Metrics) RecordResult(r *Result) {
	if m == nil {
		return
	}
	m.runsTotal.WithLabelValues(string(r.State)).Inc()
	m.runDuration.Set(r.Duration.Seconds())
	m.runStartedTime.Set(float64(r.StartTime.Unix()))
	for phase, d := range r.Phases {
		m.phaseDuration.WithLabelValues(phase).Set(d.Seconds())
	}
}

// RecordPublish counts one status publish attempt
func (m *Metrics) RecordPublish(state models.RunState, delivered bool) {
	if m == nil {
		return
	}
	result := "delivered"
	if !delivered {
		result = "failed"
	}
	m.publishTotal.WithLabelValues(string(state), result).Inc()
}

// SetEngineSteps records the number of engine steps in a given state
func (m *Metrics) SetEngineSteps(state string, count int) {
	if m == nil {
		return
	}
	m.engineSteps.WithLabelValues(state).Set(float64(count))
}
