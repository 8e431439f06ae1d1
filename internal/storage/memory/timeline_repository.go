package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// AppendTimeline добавляет событие заказа, сохраняя хронологический порядок.
func (t *tx) AppendTimeline(_ context.Context, event domain.TimelineEvent) error {
	t.writable()
	if _, ok := t.state.orders[event.OrderID]; !ok {
		return domain.ErrOrderNotFound
	}
	if event.Occurred.IsZero() {
		event.Occurred = t.now()
	}

	events := append(t.state.timeline[event.OrderID], event)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	t.state.timeline[event.OrderID] = events
	return nil
}

// ListTimeline возвращает события заказа в хронологическом порядке.
func (t *tx) ListTimeline(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	events := t.state.timeline[orderID]
	result := make([]domain.TimelineEvent, len(events))
	copy(result, events)
	return result, nil
}
