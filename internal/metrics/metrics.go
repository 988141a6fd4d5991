// Package metrics provides Prometheus metrics for the subscription engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	SweepsTotal         *prometheus.CounterVec
	SweepDuration       prometheus.Histogram
	RevocationsTotal    *prometheus.CounterVec
	JoinDecisionsTotal  *prometheus.CounterVec
	ClaimsTotal         *prometheus.CounterVec
	GatewayRetriesTotal *prometheus.CounterVec
	Conversations       prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SweepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subgate_sweeps_total",
				Help: "Expiry sweeps by trigger and result.",
			},
			[]string{"trigger", "result"},
		),
		SweepDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "subgate_sweep_duration_seconds",
				Help:    "Wall time of completed expiry sweeps.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		RevocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subgate_revocations_total",
				Help: "Membership revocations by result.",
			},
			[]string{"result"},
		),
		JoinDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subgate_join_decisions_total",
				Help: "Join request decisions.",
			},
			[]string{"decision"},
		),
		ClaimsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subgate_code_claims_total",
				Help: "Verification code claims by result.",
			},
			[]string{"result"},
		),
		GatewayRetriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subgate_gateway_flood_waits_total",
				Help: "Rate-limit waits per gateway method.",
			},
			[]string{"method"},
		),
		Conversations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "subgate_conversations_active",
				Help: "Operator conversations currently in progress.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.SweepsTotal)
	reg.MustRegister(m.SweepDuration)
	reg.MustRegister(m.RevocationsTotal)
	reg.MustRegister(m.JoinDecisionsTotal)
	reg.MustRegister(m.ClaimsTotal)
	reg.MustRegister(m.GatewayRetriesTotal)
	reg.MustRegister(m.Conversations)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordSweep(trigger, result string, took time.Duration) {
	m.SweepsTotal.WithLabelValues(trigger, result).Inc()
	if result == "ok" {
		m.SweepDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) RecordRevocation(result string) {
	m.RevocationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordJoinDecision(decision string) {
	m.JoinDecisionsTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) RecordClaim(result string) {
	m.ClaimsTotal.WithLabelValues(result).Inc()
}

// RecordFloodWait matches gateway.RetryObserver.
func (m *Metrics) RecordFloodWait(method string, _ time.Duration) {
	m.GatewayRetriesTotal.WithLabelValues(method).Inc()
}

// SetConversations matches the state store's size observer.
func (m *Metrics) SetConversations(n int) {
	m.Conversations.Set(float64(n))
}
