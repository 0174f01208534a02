// Package telemetry exposes Prometheus metrics for the payment pipeline.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics holds Prometheus metrics for business-level observability.
type BusinessMetrics struct {
	// Payment pipeline
	PaymentAttempts  *prometheus.CounterVec
	PaymentSucceeded *prometheus.CounterVec
	PaymentFailed    *prometheus.CounterVec

	// Orders
	OrdersCreated *prometheus.CounterVec
	OrderValue    *prometheus.HistogramVec

	// Webhooks
	WebhookReceived  *prometheus.CounterVec
	WebhookProcessed *prometheus.CounterVec
	WebhookFailed    *prometheus.CounterVec
	WebhookLatency   *prometheus.HistogramVec

	// Email delivery
	EmailSent   *prometheus.CounterVec
	EmailFailed *prometheus.CounterVec

	// External API performance
	StripeAPILatency *prometheus.HistogramVec
}

// NewBusinessMetrics creates and registers all business metrics.
func NewBusinessMetrics(namespace string) *BusinessMetrics {
	if namespace == "" {
		namespace = "formpay"
	}
	subsystem := "business"

	return &BusinessMetrics{
		PaymentAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_attempts_total",
				Help:      "Total payment attempts entering the pipeline",
			},
			[]string{"form", "payment_type"},
		),
		PaymentSucceeded: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_succeeded_total",
				Help:      "Total payments that produced a finalized order",
			},
			[]string{"form", "payment_type"},
		),
		PaymentFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "payment_failed_total",
				Help:      "Total failed payment attempts by failure category",
			},
			[]string{"form", "category"},
		),
		OrdersCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "orders_created_total",
				Help:      "Total orders persisted",
			},
			[]string{"form", "state"},
		),
		OrderValue: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "order_value",
				Help:      "Order totals in major currency units",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
			},
			[]string{"currency"},
		),
		WebhookReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_received_total",
				Help:      "Total webhook events received",
			},
			[]string{"event_type"},
		),
		WebhookProcessed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_processed_total",
				Help:      "Total webhook events processed successfully",
			},
			[]string{"event_type"},
		),
		WebhookFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_failed_total",
				Help:      "Total webhook events that failed processing",
			},
			[]string{"event_type", "reason"},
		),
		WebhookLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_latency_seconds",
				Help:      "Webhook processing duration",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		EmailSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "email_sent_total",
				Help:      "Total notification emails sent",
			},
			[]string{"kind"},
		),
		EmailFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "email_failed_total",
				Help:      "Total notification emails that failed to send",
			},
			[]string{"kind"},
		),
		StripeAPILatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stripe_api_latency_seconds",
				Help:      "Latency of Stripe API calls",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// Business is the process-wide metrics instance. Nil until
// InitBusinessMetrics runs; the Record helpers tolerate that so tests and
// tools need no metrics setup.
var Business *BusinessMetrics

// InitBusinessMetrics registers the global metrics instance.
func InitBusinessMetrics(namespace string) {
	Business = NewBusinessMetrics(namespace)
}

func RecordPaymentAttempt(form, paymentType string) {
	if Business != nil {
		Business.PaymentAttempts.WithLabelValues(form, paymentType).Inc()
	}
}

func RecordPaymentSucceeded(form, paymentType string) {
	if Business != nil {
		Business.PaymentSucceeded.WithLabelValues(form, paymentType).Inc()
	}
}

func RecordPaymentFailed(form, category string) {
	if Business != nil {
		Business.PaymentFailed.WithLabelValues(form, category).Inc()
	}
}

func RecordOrderCreated(form, state string) {
	if Business != nil {
		Business.OrdersCreated.WithLabelValues(form, state).Inc()
	}
}

func RecordOrderValue(currency string, value float64) {
	if Business != nil {
		Business.OrderValue.WithLabelValues(currency).Observe(value)
	}
}

func RecordWebhookReceived(eventType string) {
	if Business != nil {
		Business.WebhookReceived.WithLabelValues(eventType).Inc()
	}
}

func RecordWebhookProcessed(eventType string) {
	if Business != nil {
		Business.WebhookProcessed.WithLabelValues(eventType).Inc()
	}
}

func RecordWebhookFailed(eventType, reason string) {
	if Business != nil {
		Business.WebhookFailed.WithLabelValues(eventType, reason).Inc()
	}
}

func ObserveWebhookLatency(eventType string, seconds float64) {
	if Business != nil {
		Business.WebhookLatency.WithLabelValues(eventType).Observe(seconds)
	}
}

func RecordEmailSent(kind string) {
	if Business != nil {
		Business.EmailSent.WithLabelValues(kind).Inc()
	}
}

func RecordEmailFailed(kind string) {
	if Business != nil {
		Business.EmailFailed.WithLabelValues(kind).Inc()
	}
}

func ObserveStripeLatency(operation string, seconds float64) {
	if Business != nil {
		Business.StripeAPILatency.WithLabelValues(operation).Observe(seconds)
	}
}
