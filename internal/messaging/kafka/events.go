package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// Topics для Kafka.
const (
	TopicOrderEvents     = "orderdesk.order.events"
	TopicUserEvents      = "orderdesk.user.events"
	TopicDeadLetterQueue = "orderdesk.dlq"
)

// Заголовки сообщений.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// TopicFor возвращает topic по типу агрегата.
func TopicFor(aggregateType string) string {
	if aggregateType == domain.AggregateUser {
		return TopicUserEvents
	}
	return TopicOrderEvents
}

// Envelope - формат сообщения, которое получают подписчики.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает outbox-сообщение. Невалидный JSON в payload заменяется на null.
func NewEnvelope(event domain.OutboxMessage, publishedAt time.Time) Envelope {
	payload := json.RawMessage(event.Payload)
	if !json.Valid(payload) {
		payload = json.RawMessage(`null`)
	}
	return Envelope{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishedAt:   publishedAt.UTC(),
	}
}
