// Package metrics bundles the Prometheus collectors shared by the webhook
// pipeline. This is part of the platform layer and contains no business logic.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	webhookEvents  *prometheus.CounterVec
	flushes        *prometheus.CounterVec
	forwardLatency *prometheus.HistogramVec
	leadTracking   *prometheus.CounterVec
	gatherer       prometheus.Gatherer
}

// New registers all collectors on reg. Passing a *prometheus.Registry lets
// tests run without touching the global default registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		webhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whatsapp_webhook_events_total",
				Help: "Provider webhook deliveries by event type and outcome.",
			},
			[]string{"event", "outcome"},
		),
		flushes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whatsapp_coalescer_flushes_total",
				Help: "Coalesced buffers flushed, by trigger.",
			},
			[]string{"reason"},
		),
		forwardLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "whatsapp_forward_duration_seconds",
				Help:    "Latency of forwarding coalesced messages to tenant automation endpoints.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"status"},
		),
		leadTracking: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "whatsapp_lead_tracking_total",
				Help: "Lead conversion tracking attempts by result.",
			},
			[]string{"result"},
		),
		gatherer: reg,
	}

	reg.MustRegister(m.webhookEvents, m.flushes, m.forwardLatency, m.leadTracking)
	return m
}

// RegisterPendingGauge exposes a live count of conversations with a pending
// buffer. fn is called on every scrape.
func (m *Metrics) RegisterPendingGauge(reg prometheus.Registerer, fn func() int) {
	if m == nil {
		return
	}
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "whatsapp_coalescer_pending_conversations",
			Help: "Conversations with buffered messages waiting for a quiet period.",
		},
		func() float64 { return float64(fn()) },
	))
}

// WebhookEvent counts one webhook delivery.
func (m *Metrics) WebhookEvent(event, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(event, outcome).Inc()
}

// Flush counts one coalescer flush.
func (m *Metrics) Flush(reason string) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(reason).Inc()
}

// ObserveForward records one forward attempt.
func (m *Metrics) ObserveForward(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.forwardLatency.WithLabelValues(status).Observe(elapsed.Seconds())
}

// LeadTracking counts one lead tracking attempt.
func (m *Metrics) LeadTracking(result string) {
	if m == nil {
		return
	}
	m.leadTracking.WithLabelValues(result).Inc()
}

// Handler exposes /metrics for the registry passed to New.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
