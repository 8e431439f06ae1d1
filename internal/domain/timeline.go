package domain

import "time"

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

const (
	AggregateOrder = "order"
	AggregateUser  = "user"

	EventOrderCreated    = "order.created"
	EventOrderUpdated    = "order.updated"
	EventOrderDeleted    = "order.deleted"
	EventOrderCheckedOut = "order.checked_out"
	EventUserDeleted     = "user.deleted"
)
