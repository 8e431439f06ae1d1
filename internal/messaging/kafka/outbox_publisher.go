package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

var errPublisherNotInitialized = errors.New("kafka outbox publisher is not initialized")

// OutboxPublisher публикует outbox-сообщения в Kafka. Ключ сообщения:
// идентификатор агрегата, поэтому события одного заказа попадают в одну партицию.
type OutboxPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт паблишер. Пустой topic выбирает topic по типу агрегата.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxPublisher {
	return &OutboxPublisher{producer: producer, topic: topic, now: time.Now}
}

// NewDLQPublisher создаёт паблишер в dead letter topic.
func NewDLQPublisher(producer *Producer) *OutboxPublisher {
	return NewOutboxPublisher(producer, TopicDeadLetterQueue)
}

func (p *OutboxPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotInitialized
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}
	topic := p.topic
	if topic == "" {
		topic = TopicFor(event.AggregateType)
	}

	body, err := json.Marshal(NewEnvelope(event, p.now()))
	if err != nil {
		return fmt.Errorf("marshal outbox envelope: %w", err)
	}
	return p.producer.Send(ctx, topic, key, body, map[string]string{
		HeaderEventType:     event.EventType,
		HeaderAggregateType: event.AggregateType,
		HeaderOutboxID:      event.ID,
	})
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)
