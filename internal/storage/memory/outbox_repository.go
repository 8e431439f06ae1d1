package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

const (
	outboxStatusPending = "pending"
	outboxStatusSent    = "sent"
	outboxStatusFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
	seq        uint64
}

// EnqueueOutbox сохраняет событие со статусом `pending` в рамках транзакции.
func (t *tx) EnqueueOutbox(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	t.writable()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := t.now()
	t.state.outbox[msg.ID] = outboxRecord{
		msg:       msg,
		status:    outboxStatusPending,
		createdAt: now,
		updatedAt: now,
		seq:       t.state.nextSeq(),
	}
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке постановки.
func (s *Store) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 100
	}

	recs := make([]outboxRecord, 0)
	for _, rec := range s.state.outbox {
		if rec.status == outboxStatusPending {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })
	if len(recs) > limit {
		recs = recs[:limit]
	}

	result := make([]domain.OutboxMessage, 0, len(recs))
	for _, rec := range recs {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого pending-сообщения.
func (s *Store) Stats(context.Context) (domain.OutboxStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats domain.OutboxStats
	for _, rec := range s.state.outbox {
		if rec.status != outboxStatusPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.createdAt
		}
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (s *Store) MarkSent(_ context.Context, id string) error {
	return s.markOutbox(id, outboxStatusSent)
}

// MarkFailed фиксирует ошибку публикации.
func (s *Store) MarkFailed(_ context.Context, id string) error {
	return s.markOutbox(id, outboxStatusFailed)
}

func (s *Store) markOutbox(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.state.outbox[id]
	if !ok {
		return domain.ErrNotFound
	}
	rec.status = status
	rec.attemptCnt++
	rec.updatedAt = s.now()
	s.state.outbox[id] = rec
	return nil
}

var _ domain.OutboxRepository = (*Store)(nil)
