package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты попыток публикации outbox.
const (
	OutboxSent       = "sent"
	OutboxRetryError = "retry_error"
	OutboxFailed     = "failed"
	OutboxDLQFailed  = "dlq_failed"
)

// OutboxMetrics - метрики воркера публикации outbox.
type OutboxMetrics struct {
	attempts      *prometheus.CounterVec
	pending       prometheus.Gauge
	oldestPending prometheus.Gauge
}

// NewOutboxMetrics создаёт метрики outbox в переданном реестре.
// Повторная регистрация в том же реестре приводит к панике, поэтому
// создавайте их один раз на реестр.
func NewOutboxMetrics(registerer prometheus.Registerer) *OutboxMetrics {
	factory := promauto.With(registerer)
	return &OutboxMetrics{
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "orderdesk_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orderdesk_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		}),
		oldestPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "orderdesk_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
	}
}

// RecordAttempt увеличивает счётчик попыток с указанным результатом.
func (m *OutboxMetrics) RecordAttempt(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// SetBacklog обновляет размер и возраст backlog.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	if oldestAge < 0 {
		oldestAge = 0
	}
	m.pending.Set(float64(pending))
	m.oldestPending.Set(oldestAge.Seconds())
}

// Attempts возвращает счётчик попыток с указанным результатом.
func (m *OutboxMetrics) Attempts(result string) prometheus.Counter {
	return m.attempts.WithLabelValues(result)
}
