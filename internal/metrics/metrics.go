// Package metrics holds the prometheus collectors for sandbox lifecycle events.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Removal reasons used as the "reason" label.
const (
	ReasonStopped  = "stopped"
	ReasonReaped   = "reaped"
	ReasonShutdown = "shutdown"
	ReasonOrphan   = "orphan"
)

// Metrics is a set of sandbox collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	created      *prometheus.CounterVec
	removed      *prometheus.CounterVec
	active       prometheus.Gauge
	execDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dotbox_sandboxes_created_total",
			Help: "Sandboxes created, by dotnet version.",
		}, []string{"version"}),
		removed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dotbox_sandboxes_removed_total",
			Help: "Sandboxes removed, by reason.",
		}, []string{"reason"}),
		active: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dotbox_sandboxes_active",
			Help: "Sandboxes with a tracked activity record.",
		}),
		execDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dotbox_exec_duration_seconds",
			Help:    "Duration of commands executed inside sandboxes.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.created, m.removed, m.active, m.execDuration)
	}
	return m
}

func (m *Metrics) SandboxCreated(version string) {
	if m == nil {
		return
	}
	m.created.WithLabelValues(version).Inc()
}

func (m *Metrics) SandboxRemoved(reason string) {
	if m == nil {
		return
	}
	m.removed.WithLabelValues(reason).Inc()
}

// SetActive sets the active sandbox gauge.
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.active.Set(float64(n))
}

func (m *Metrics) ObserveExec(d time.Duration) {
	if m == nil {
		return
	}
	m.execDuration.Observe(d.Seconds())
}
