package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "razorpay_orders_created_total",
		Help: "Total number of processor orders created",
	})

	PlansCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "razorpay_plans_created_total",
		Help: "Total number of billing plans created",
	})

	SubscriptionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "razorpay_subscriptions_created_total",
		Help: "Total number of subscriptions created",
	})

	CustomerResolutionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "customer_resolutions_total",
		Help: "Customer resolutions by outcome (existing, created, busy, error)",
	}, []string{"outcome"})

	CustomerPagesScanned = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "customer_resolution_pages_scanned",
		Help:    "Number of customer pages fetched per resolution",
		Buckets: []float64{1, 2, 3, 5, 10, 25, 50},
	})

	VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verifications_total",
		Help: "Completion notice verifications by flow and result",
	}, []string{"flow", "result"})

	UpstreamErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "razorpay_upstream_errors_total",
		Help: "Failed processor calls by operation",
	}, []string{"op"})

	ProcessorLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "razorpay_request_latency_seconds",
		Help:    "Latency of processor calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "razorpay_webhook_events_total",
		Help: "Webhook events by type and result",
	}, []string{"event", "result"})

	ConsumerHandlerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_handler_failures_total",
		Help: "Failed handler attempts by topic",
	}, []string{"topic"})

	ConsumerDeadLetteredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kafka_consumer_dead_lettered_total",
		Help: "Messages moved to the dead-letter topic by source topic",
	}, []string{"topic"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
