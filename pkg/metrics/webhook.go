package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// WebhookMetrics records per-domain processing outcomes for inbound
// payment-provider events.
type WebhookMetrics struct {
	processed *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	weakRule  *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_processed_total",
		Help: "Webhook events by routed domain and outcome.",
	}, []string{"domain", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_processing_duration_seconds",
		Help:    "End-to-end webhook processing duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"domain"})
	weakRule := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_classifier_weak_rule_total",
		Help: "Events classified by the free-text description fallback rule.",
	}, []string{"rule"})
	reg.MustRegister(processed, duration, weakRule)
	return &WebhookMetrics{
		processed: processed,
		duration:  duration,
		weakRule:  weakRule,
	}
}

// IncProcessed counts one event for the domain/outcome pair.
func (m *WebhookMetrics) IncProcessed(domain, outcome string) {
	if m == nil || m.processed == nil {
		return
	}
	m.processed.WithLabelValues(normalizeLabel(domain), normalizeLabel(outcome)).Inc()
}

// ObserveDuration records the end-to-end duration for the domain.
func (m *WebhookMetrics) ObserveDuration(domain string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(domain)).Observe(duration.Seconds())
}

// IncWeakRule counts a classification decided by the description fallback.
func (m *WebhookMetrics) IncWeakRule(rule string) {
	if m == nil || m.weakRule == nil {
		return
	}
	m.weakRule.WithLabelValues(normalizeLabel(rule)).Inc()
}

func normalizeLabel(value string) string {
	v := strings.TrimSpace(strings.ToLower(value))
	if v == "" {
		return "unknown"
	}
	return v
}
