package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

func enqueue(t *testing.T, store *Store, msg domain.OutboxMessage) domain.OutboxMessage {
	t.Helper()

	var saved domain.OutboxMessage
	err := store.WithinTx(context.Background(), func(tx domain.Tx) error {
		var err error
		saved, err = tx.EnqueueOutbox(context.Background(), msg)
		return err
	})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	return saved
}

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	first := enqueue(t, store, domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-1",
		EventType:     domain.EventOrderCreated,
		Payload:       []byte(`{"status":"Pending"}`),
	})
	if first.ID == "" {
		t.Fatal("expected generated id")
	}
	second := enqueue(t, store, domain.OutboxMessage{AggregateType: domain.AggregateOrder, AggregateID: "order-1"})

	pending, err := store.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull failed: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}
	if pending[0].ID != first.ID || pending[1].ID != second.ID {
		t.Fatalf("expected FIFO order, got %s, %s", pending[0].ID, pending[1].ID)
	}

	limited, _ := store.PullPending(ctx, 1)
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.PendingCount != 2 || stats.OldestPendingAt.IsZero() {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	saved := enqueue(t, store, domain.OutboxMessage{AggregateType: domain.AggregateOrder})

	if err := store.MarkSent(ctx, saved.ID); err != nil {
		t.Fatalf("mark sent failed: %v", err)
	}
	pending, _ := store.PullPending(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("sent message must leave backlog, got %d", len(pending))
	}

	if err := store.MarkFailed(ctx, saved.ID); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	if err := store.MarkFailed(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing record, got %v", err)
	}
}

func TestOutboxRepository_RolledBackEnqueueIsDropped(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_ = store.WithinTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.EnqueueOutbox(ctx, domain.OutboxMessage{AggregateType: domain.AggregateOrder}); err != nil {
			return err
		}
		return errors.New("abort")
	})

	stats, _ := store.Stats(ctx)
	if stats.PendingCount != 0 {
		t.Fatalf("expected empty backlog after rollback, got %d", stats.PendingCount)
	}
}
