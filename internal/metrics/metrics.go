package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "mediaprep"

// Metrics groups the collectors recorded by the pipeline.
type Metrics struct {
	registry *prometheus.Registry

	ItemsTotal      *prometheus.CounterVec
	StepDuration    *prometheus.HistogramVec
	ToolInvocations *prometheus.CounterVec
	ToolDuration    *prometheus.HistogramVec
	PendingItems    prometheus.Gauge
	ScanRejected    prometheus.Gauge
	LastRunSuccess  prometheus.Gauge
	RunsTotal       prometheus.Counter
}

// New creates a Metrics value with every collector registered on a fresh
// registry, together with the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_total",
			Help:      "Items processed by the encoder, by result and failure kind.",
		}, []string{"result", "kind"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of encoder steps in seconds.",
			Buckets:   []float64{0.01, 0.1, 1, 5, 30, 60, 300, 900, 3600},
		}, []string{"step"}),
		ToolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "External media tool invocations by operation and result.",
		}, []string{"operation", "result"}),
		ToolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_duration_seconds",
			Help:      "Duration of external media tool invocations in seconds.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 30, 120, 600, 1800},
		}, []string{"operation"}),
		PendingItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_items",
			Help:      "Items selected for encoding by the most recent run.",
		}),
		ScanRejected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scan_rejected_items",
			Help:      "Items excluded by the most recent source scan.",
		}),
		LastRunSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished without fatal errors.",
		}),
		RunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Batch runs started.",
		}),
	}
	m.registry.MustRegister(
		m.ItemsTotal,
		m.StepDuration,
		m.ToolInvocations,
		m.ToolDuration,
		m.PendingItems,
		m.ScanRejected,
		m.LastRunSuccess,
		m.RunsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveItem counts a finished item. kind is empty on success.
func (m *Metrics) ObserveItem(success bool, kind string) {
	if m == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	m.ItemsTotal.WithLabelValues(result, kind).Inc()
}

// ObserveStep records how long an encoder step took.
func (m *Metrics) ObserveStep(step string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.StepDuration.WithLabelValues(step).Observe(elapsed.Seconds())
}

// ObserveTool records one external tool invocation.
func (m *Metrics) ObserveTool(operation string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.ToolInvocations.WithLabelValues(operation, result).Inc()
	m.ToolDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// StartRun records the start of a batch.
func (m *Metrics) StartRun(pending, rejected int) {
	if m == nil {
		return
	}
	m.RunsTotal.Inc()
	m.PendingItems.Set(float64(pending))
	m.ScanRejected.Set(float64(rejected))
}

// FinishRun records a batch that completed without fatal errors.
func (m *Metrics) FinishRun(at time.Time) {
	if m == nil {
		return
	}
	m.LastRunSuccess.Set(float64(at.Unix()))
}
