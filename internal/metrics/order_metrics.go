package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты checkout для метки result.
const (
	CheckoutSucceeded = "succeeded"
	CheckoutRejected  = "rejected"
	CheckoutFailed    = "failed"
)

// OrderMetrics - метрики жизненного цикла заказов.
type OrderMetrics struct {
	ordersCreated       prometheus.Counter
	checkouts           *prometheus.CounterVec
	checkoutDuration    prometheus.Histogram
	invariantViolations *prometheus.CounterVec
	timelineEvents      prometheus.Counter
	outboxEnqueued      *prometheus.CounterVec
}

// NewOrderMetricsWithRegisterer регистрирует метрики в переданном реестре.
func NewOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	return &OrderMetrics{
		ordersCreated: register(registerer, "orderdesk_orders_created_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderdesk_orders_created_total",
			Help: "Total number of orders created",
		})),
		checkouts: register(registerer, "orderdesk_checkouts_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderdesk_checkouts_total",
			Help: "Total number of checkout attempts grouped by result",
		}, []string{"result"})),
		checkoutDuration: register(registerer, "orderdesk_checkout_duration_seconds", prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "orderdesk_checkout_duration_seconds",
			Help:    "Duration of checkout transactions in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
		})),
		invariantViolations: register(registerer, "orderdesk_invariant_violations_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderdesk_invariant_violations_total",
			Help: "Writes rejected by the invariant enforcer grouped by field",
		}, []string{"entity", "field"})),
		timelineEvents: register(registerer, "orderdesk_timeline_events_total", prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderdesk_timeline_events_total",
			Help: "Total number of order timeline events recorded",
		})),
		outboxEnqueued: register(registerer, "orderdesk_outbox_enqueued_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderdesk_outbox_enqueued_total",
			Help: "Total number of events written to the transactional outbox",
		}, []string{"event_type"})),
	}
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *OrderMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordCheckout фиксирует результат и длительность checkout.
func (m *OrderMetrics) RecordCheckout(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(result).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordInvariantViolation считает отклонённую запись. field пустой для ошибок уровня объекта.
func (m *OrderMetrics) RecordInvariantViolation(entity, field string) {
	if m == nil {
		return
	}
	if field == "" {
		field = "non_field"
	}
	m.invariantViolations.WithLabelValues(entity, field).Inc()
}

func (m *OrderMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

func (m *OrderMetrics) RecordOutboxEnqueued(eventType string) {
	if m == nil {
		return
	}
	m.outboxEnqueued.WithLabelValues(eventType).Inc()
}
