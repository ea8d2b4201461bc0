package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics counts gateway notifications by handling result.
type WebhookMetrics struct {
	notifications *prometheus.CounterVec
	provisioning  *prometheus.CounterVec
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "notifications_total",
		Help:      "Gateway notifications by classified outcome and handling result.",
	}, []string{"outcome", "result"})
	provisioning := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "provisioning_total",
		Help:      "Recurring subscription provisioning attempts by result.",
	}, []string{"result"})
	reg.MustRegister(notifications, provisioning)
	return &WebhookMetrics{notifications: notifications, provisioning: provisioning}
}

// IncNotification records one handled notification.
func (w *WebhookMetrics) IncNotification(outcome, result string) {
	if w == nil || w.notifications == nil {
		return
	}
	w.notifications.WithLabelValues(normalizeLabel(outcome), normalizeLabel(result)).Inc()
}

// IncProvisioning records one provisioning attempt result.
func (w *WebhookMetrics) IncProvisioning(result string) {
	if w == nil || w.provisioning == nil {
		return
	}
	w.provisioning.WithLabelValues(normalizeLabel(result)).Inc()
}
