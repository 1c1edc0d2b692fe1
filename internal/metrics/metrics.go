// Package metrics holds the Prometheus collectors of a screengate client.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Config struct {
	// Namespace defaults to "screengate".
	Namespace string

	// Registry defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

type Metrics struct {
	framesTotal     *prometheus.CounterVec
	frameErrors     *prometheus.CounterVec
	admissionsTotal *prometheus.CounterVec
	authzRequests   *prometheus.CounterVec
	authzDuration   prometheus.Histogram
	pendingCommands prometheus.Gauge
	reconnectsTotal prometheus.Counter
}

func New(cfg Config) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "screengate"
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "frames_total",
			Help:      "Inbound frames by kind.",
		}, []string{"kind"}),
		frameErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "frame_errors_total",
			Help:      "Inbound frames that failed to decode.",
		}, []string{"kind"}),
		admissionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "admissions_total",
			Help:      "Outgoing commands by admission path and outcome.",
		}, []string{"path", "outcome", "reason"}),
		authzRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "authz_requests_total",
			Help:      "Authorization calls by mode and result.",
		}, []string{"mode", "result"}),
		authzDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "authz_request_duration_seconds",
			Help:      "Authorization round-trip latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		pendingCommands: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "pending_commands",
			Help:      "Commands queued while the transport is closed.",
		}),
		reconnectsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "reconnects_total",
			Help:      "Connection attempts after the first.",
		}),
	}
}

func (m *Metrics) Frame(kind string) {
	if m == nil {
		return
	}
	m.framesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) FrameError(kind string) {
	if m == nil {
		return
	}
	m.frameErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) Admission(path, outcome, reason string) {
	if m == nil {
		return
	}
	m.admissionsTotal.WithLabelValues(path, outcome, reason).Inc()
}

func (m *Metrics) Authz(mode, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.authzRequests.WithLabelValues(mode, result).Inc()
	m.authzDuration.Observe(d.Seconds())
}

func (m *Metrics) Pending(n int) {
	if m == nil {
		return
	}
	m.pendingCommands.Set(float64(n))
}

func (m *Metrics) Reconnect() {
	if m == nil {
		return
	}
	m.reconnectsTotal.Inc()
}
