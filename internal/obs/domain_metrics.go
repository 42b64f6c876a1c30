package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// PaymentIntentTotal counts payment intent creation attempts.
	PaymentIntentTotal *prometheus.CounterVec
	// PaymentIntentLatency records gateway round-trip latency in milliseconds.
	PaymentIntentLatency *prometheus.HistogramVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// CheckoutTotal counts checkout attempts by outcome.
	CheckoutTotal *prometheus.CounterVec
	// AnalyticsEventsTotal counts analytics events per sink and outcome.
	AnalyticsEventsTotal *prometheus.CounterVec
	// InquirySubmissionsTotal counts product inquiry submissions by outcome.
	InquirySubmissionsTotal *prometheus.CounterVec
	// CacheLookupsTotal counts layered cache lookups by cache, tier and outcome.
	CacheLookupsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		PaymentIntentTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_intent_total",
			Help:      "Count of payment intent processing outcomes.",
		}, []string{"provider", "currency", "result"}))
		PaymentIntentLatency = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_intent_duration_ms",
			Help:      "Latency of payment intent creation calls in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"provider"}))
		PaymentWebhookTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"provider", "result"}))
		CheckoutTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_total",
			Help:      "Count of checkout attempts by outcome.",
		}, []string{"result"}))
		AnalyticsEventsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analytics_events_total",
			Help:      "Count of analytics events published per sink.",
		}, []string{"event", "sink", "result"}))
		InquirySubmissionsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inquiry_submissions_total",
			Help:      "Count of product inquiry submissions by outcome.",
		}, []string{"result"}))
		CacheLookupsTotal = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Layered cache lookups by cache, tier and outcome.",
		}, []string{"cache", "tier", "result"}))
	})
}

// CountCheckout increments the checkout counter when metrics are registered.
func CountCheckout(result string) {
	if CheckoutTotal != nil {
		CheckoutTotal.WithLabelValues(result).Inc()
	}
}

// CountAnalyticsEvent increments the analytics counter when metrics are registered.
func CountAnalyticsEvent(event, sink, result string) {
	if AnalyticsEventsTotal != nil {
		AnalyticsEventsTotal.WithLabelValues(event, sink, result).Inc()
	}
}

// CountInquiry increments the inquiry counter when metrics are registered.
func CountInquiry(result string) {
	if InquirySubmissionsTotal != nil {
		InquirySubmissionsTotal.WithLabelValues(result).Inc()
	}
}

// CountCache increments the cache lookup counter when metrics are registered.
func CountCache(cache, tier, result string) {
	if CacheLookupsTotal != nil {
		CacheLookupsTotal.WithLabelValues(cache, tier, result).Inc()
	}
}
