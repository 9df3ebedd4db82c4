package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WebhookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Total number of webhook requests by route and outcome (count)",
		},
		[]string{"route", "outcome"},
	)

	WebhookProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_duration_ms",
			Help:    "End-to-end webhook handling duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"route", "outcome"},
	)

	ProcessorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "processor_requests_total",
			Help: "Total number of calls to the event processor (count)",
		},
		[]string{"route", "status"},
	)

	ReplayChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "replay_checks_total",
			Help: "Total number of replay guard checks by result (count)",
		},
		[]string{"result"},
	)

	RateLimitDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_decisions_total",
			Help: "Total number of rate limit decisions by route and result (count)",
		},
		[]string{"route", "result"},
	)

	StoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_operations_total",
			Help: "Total number of key-value store operations by backend (count)",
		},
		[]string{"backend", "operation", "status"},
	)

	StoreMode = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_mode",
			Help: "Active key-value backend (0=durable, 1=in-memory fallback) (state code)",
		},
	)

	StoreMemoryKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "store_memory_keys",
			Help: "Number of live keys held by the in-memory backend (count)",
		},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times fallback strategies were used (count)",
		},
		[]string{"service", "strategy", "reason"},
	)

	NotificationTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_tasks_total",
			Help: "Total number of notification task transitions by state (count)",
		},
		[]string{"channel", "state"},
	)

	NotificationAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_attempts_total",
			Help: "Total number of notification delivery attempts by outcome (count)",
		},
		[]string{"channel", "outcome"},
	)

	NotificationDeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_delivery_duration_ms",
			Help:    "Duration of a single notification delivery attempt in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
		[]string{"channel"},
	)

	NotificationQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_queue_size",
			Help: "Notification tasks currently queued, waiting for retry or in flight (count)",
		},
	)

	NotificationsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "notifications_in_flight",
			Help: "Notification delivery attempts currently running (count)",
		},
	)

	DeadLettersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dead_letters_total",
			Help: "Total number of abandoned notifications reported to sinks (count)",
		},
		[]string{"sink", "status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more than once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			WebhookRequestsTotal,
			WebhookProcessingDuration,
			ProcessorRequestsTotal,
			ReplayChecksTotal,
			RateLimitDecisionsTotal,
			StoreOperationsTotal,
			StoreMode,
			StoreMemoryKeys,
			FallbackUsageTotal,
			NotificationTasksTotal,
			NotificationAttemptsTotal,
			NotificationDeliveryDuration,
			NotificationQueueSize,
			NotificationsInFlight,
			DeadLettersTotal,
			CircuitBreakerState,
			CircuitBreakerRequests,
			CircuitBreakerFailures,
			KafkaMessagesWrittenTotal,
			KafkaWriteDuration,
		)
	})
}

func ObserveWebhook(route, outcome string, duration time.Duration) {
	WebhookRequestsTotal.WithLabelValues(route, outcome).Inc()
	WebhookProcessingDuration.WithLabelValues(route, outcome).Observe(float64(duration.Milliseconds()))
}

func IncStoreOperation(backend, operation string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	StoreOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

func ObserveNotificationAttempt(channel, outcome string, duration time.Duration) {
	NotificationAttemptsTotal.WithLabelValues(channel, outcome).Inc()
	NotificationDeliveryDuration.WithLabelValues(channel).Observe(float64(duration.Milliseconds()))
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(float64(duration.Milliseconds()))
}
