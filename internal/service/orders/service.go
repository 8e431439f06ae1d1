// Package orders реализует жизненный цикл пользователей, заказов и позиций:
// CRUD, checkout и таймлайн. Каждая запись выполняется в одной транзакции
// хранилища и проходит через invariants.Enforcer.
package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/invariants"
)

// PasswordHasher превращает пароль в хэш для хранения.
type PasswordHasher interface {
	Hash(password string) ([]byte, error)
}

// Service - сервис жизненного цикла заказов.
type Service struct {
	store    domain.Store
	enforcer *invariants.Enforcer
	hasher   PasswordHasher
	metrics  *metrics.OrderMetrics
	logger   *log.Entry
	now      func() time.Time
	newID    func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics задаёт метрики. Без них сервис работает, но ничего не считает.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithPasswordHasher включает приём паролей при создании и изменении пользователя.
func WithPasswordHasher(hasher PasswordHasher) Option {
	return func(s *Service) {
		s.hasher = hasher
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithIDGenerator подменяет генератор идентификаторов (для тестов).
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// NewService создаёт сервис поверх хранилища.
func NewService(store domain.Store, options ...Option) *Service {
	s := &Service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.WithField("component", "order-service")
	}
	s.enforcer = invariants.New(s.metrics)
	return s
}

// Ready проверяет доступность хранилища.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// orderEvent - payload событий заказа в outbox.
type orderEvent struct {
	OrderID        string    `json:"order_id"`
	UserID         string    `json:"user_id"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	CartItems      int       `json:"cart_items"`
	Total          string    `json:"total"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// userEvent - payload событий пользователя в outbox.
type userEvent struct {
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (s *Service) enqueue(ctx context.Context, tx domain.Tx, aggregateType, aggregateID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	if _, err := tx.EnqueueOutbox(ctx, domain.OutboxMessage{
		ID:            s.newID(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	}); err != nil {
		return fmt.Errorf("enqueue %s: %w", eventType, err)
	}
	s.metrics.RecordOutboxEnqueued(eventType)
	return nil
}

// enqueueOrderEvent перечитывает заказ с позициями и кладёт событие в outbox.
func (s *Service) enqueueOrderEvent(ctx context.Context, tx domain.Tx, orderID, eventType string, previous domain.OrderStatus) error {
	order, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	total := orderTotal(order)
	return s.enqueue(ctx, tx, domain.AggregateOrder, order.ID, eventType, orderEvent{
		OrderID:        order.ID,
		UserID:         order.UserID,
		Status:         string(order.Status),
		PreviousStatus: string(previous),
		CartItems:      len(order.CartItems),
		Total:          total,
		OccurredAt:     s.now(),
	})
}

func (s *Service) appendTimeline(ctx context.Context, tx domain.Tx, orderID, eventType, reason string) error {
	if err := tx.AppendTimeline(ctx, domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: s.now(),
	}); err != nil {
		return fmt.Errorf("append timeline %s: %w", eventType, err)
	}
	s.metrics.RecordTimelineEvent()
	return nil
}

func orderTotal(order domain.Order) string {
	if len(order.CartItems) == 0 {
		return "0.00"
	}
	total := order.CartItems[0].Subtotal()
	for _, item := range order.CartItems[1:] {
		total = total.Add(item.Subtotal())
	}
	return total.StringFixed(2)
}
