package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// SplitComputedTotal counts split computations by method.
	SplitComputedTotal *prometheus.CounterVec
	// PaymentAttemptTotal counts payment attempt outcomes.
	PaymentAttemptTotal *prometheus.CounterVec
	// PaymentEventTotal counts reconciler event outcomes, including the
	// non-fatal drops (duplicate, stale, unknown target).
	PaymentEventTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// SessionsCompletedTotal counts sessions that reached full payment.
	SessionsCompletedTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		SplitComputedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "split_computed_total",
			Help:      "Count of split computations by method.",
		}, []string{"method"})
		PaymentAttemptTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_attempt_total",
			Help:      "Count of payment attempt outcomes.",
		}, []string{"provider", "result"})
		PaymentEventTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_event_total",
			Help:      "Count of reconciled payment events by kind and outcome.",
		}, []string{"kind", "result"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"provider", "result"})
		SessionsCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_completed_total",
			Help:      "Number of sessions where every participant paid.",
		})

		registerOrReuse(reg, SplitComputedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				SplitComputedTotal = v
			}
		})
		registerOrReuse(reg, PaymentAttemptTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentAttemptTotal = v
			}
		})
		registerOrReuse(reg, PaymentEventTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentEventTotal = v
			}
		})
		registerOrReuse(reg, PaymentWebhookTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentWebhookTotal = v
			}
		})
		registerOrReuse(reg, SessionsCompletedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				SessionsCompletedTotal = v
			}
		})
	})
}
