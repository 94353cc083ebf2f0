// Package observability holds the engine's Prometheus collectors.
// Collectors are constructor-injected rather than registered on the
// global default registry, so tests and embedders control their own
// metric lifetimes.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the engine's collectors.
type Metrics struct {
	CommandsTotal   *prometheus.CounterVec
	CommandDuration *prometheus.HistogramVec
	ScriptsTotal    *prometheus.CounterVec
	RetriesTotal    *prometheus.CounterVec
}

// New creates and registers the engine collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datum",
			Name:      "commands_total",
			Help:      "Commands processed, labeled by command type and outcome.",
		}, []string{"type", "status"}),
		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "datum",
			Name:      "command_duration_seconds",
			Help:      "Histogram of command execution durations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		ScriptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datum",
			Name:      "scripts_total",
			Help:      "Script invocations, labeled by routing kind and outcome.",
		}, []string{"kind", "status"}),
		RetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "datum",
			Name:      "io_retries_total",
			Help:      "Transient I/O retries, labeled by failure kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.CommandsTotal, m.CommandDuration, m.ScriptsTotal, m.RetriesTotal)
	return m
}

// ObserveCommand records one command execution.
func (m *Metrics) ObserveCommand(commandType string, success bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.CommandsTotal.WithLabelValues(commandType, status(success)).Inc()
	m.CommandDuration.WithLabelValues(commandType).Observe(elapsed.Seconds())
}

// ObserveScript records one script invocation.
func (m *Metrics) ObserveScript(kind string, success bool) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.ScriptsTotal.WithLabelValues(kind, status(success)).Inc()
}

// ObserveRetry records one transient I/O retry.
func (m *Metrics) ObserveRetry(kind string) {
	if m == nil {
		return
	}
	m.RetriesTotal.WithLabelValues(kind).Inc()
}

func status(success bool) string {
	if success {
		return "ok"
	}
	return "error"
}
