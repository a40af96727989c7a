package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WebhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapcraft_webhook_events_total",
			Help: "Payment webhook deliveries by provider, kind and outcome",
		},
		[]string{"provider", "kind", "outcome"},
	)

	CreditConsumptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapcraft_credit_consumptions_total",
			Help: "Credit consumer calls by outcome",
		},
		[]string{"outcome"},
	)

	CheckoutSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapcraft_checkout_sessions_total",
			Help: "Checkout sessions created, by outcome and whether a regional discount applied",
		},
		[]string{"outcome", "discounted"},
	)

	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapcraft_rate_limit_decisions_total",
			Help: "Rate limiter decisions by class and result",
		},
		[]string{"class", "result"},
	)

	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mapcraft_payment_provider_request_seconds",
			Help:    "Latency of outbound payment provider calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	UsageLogFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mapcraft_usage_log_failures_total",
			Help: "Swallowed failures writing usage or download logs",
		},
		[]string{"source"},
	)
)
