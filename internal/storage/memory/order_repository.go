package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// CreateOrder сохраняет заказ, если ID свободен и владелец существует.
func (t *tx) CreateOrder(_ context.Context, order domain.Order) error {
	t.writable()
	if _, exists := t.state.orders[order.ID]; exists {
		return domain.ErrConflict
	}
	if _, ok := t.state.users[order.UserID]; !ok {
		return domain.ErrUserUnknown
	}

	order.CartItems = nil
	t.state.orders[order.ID] = orderRecord{order: order, seq: t.state.nextSeq()}
	return nil
}

// GetOrder возвращает заказ с позициями в порядке добавления.
func (t *tx) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	rec, ok := t.state.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}

	order := rec.order
	items, err := t.ListCartItems(ctx, domain.CartItemFilter{OrderID: id})
	if err != nil {
		return domain.Order{}, err
	}
	order.CartItems = items
	return order, nil
}

func (t *tx) LockOrder(_ context.Context, id string) (domain.Order, error) {
	rec, ok := t.state.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return rec.order, nil
}

// ListOrders возвращает заказы, новые первыми.
func (t *tx) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	recs := make([]orderRecord, 0, len(t.state.orders))
	for _, rec := range t.state.orders {
		if filter.UserID != "" && rec.order.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && rec.order.Status != filter.Status {
			continue
		}
		recs = append(recs, rec)
	}

	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].order, recs[j].order
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return recs[i].seq > recs[j].seq
	})

	result := make([]domain.Order, 0, len(recs))
	for _, rec := range recs {
		order, err := t.GetOrder(ctx, rec.order.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, order)
	}
	return result, nil
}

func (t *tx) UpdateOrder(_ context.Context, order domain.Order) error {
	t.writable()
	rec, ok := t.state.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if _, ok := t.state.users[order.UserID]; !ok {
		return domain.ErrUserUnknown
	}

	order.CreatedAt = rec.order.CreatedAt
	order.CartItems = nil
	rec.order = order
	t.state.orders[order.ID] = rec
	return nil
}

// DeleteOrder удаляет заказ, его позиции и таймлайн.
func (t *tx) DeleteOrder(_ context.Context, id string) error {
	t.writable()
	if _, ok := t.state.orders[id]; !ok {
		return domain.ErrOrderNotFound
	}

	for itemID, rec := range t.state.items {
		if rec.item.OrderID == id {
			delete(t.state.items, itemID)
		}
	}
	delete(t.state.timeline, id)
	delete(t.state.orders, id)
	return nil
}

func (t *tx) CountPendingOrders(_ context.Context, userID, excludeOrderID string) (int, error) {
	count := 0
	for id, rec := range t.state.orders {
		if id == excludeOrderID {
			continue
		}
		if rec.order.UserID == userID && rec.order.Status == domain.OrderStatusPending {
			count++
		}
	}
	return count, nil
}

func (t *tx) CreateCartItem(_ context.Context, item domain.CartItem) error {
	t.writable()
	if _, exists := t.state.items[item.ID]; exists {
		return domain.ErrConflict
	}
	if _, ok := t.state.orders[item.OrderID]; !ok {
		return domain.ErrOrderUnknown
	}

	t.state.items[item.ID] = cartItemRecord{item: item, seq: t.state.nextSeq()}
	return nil
}

func (t *tx) GetCartItem(_ context.Context, id string) (domain.CartItem, error) {
	rec, ok := t.state.items[id]
	if !ok {
		return domain.CartItem{}, domain.ErrCartItemNotFound
	}
	return rec.item, nil
}

func (t *tx) ListCartItems(_ context.Context, filter domain.CartItemFilter) ([]domain.CartItem, error) {
	recs := make([]cartItemRecord, 0)
	for _, rec := range t.state.items {
		if filter.OrderID != "" && rec.item.OrderID != filter.OrderID {
			continue
		}
		if filter.PendingOnly {
			order, ok := t.state.orders[rec.item.OrderID]
			if !ok || order.order.Status != domain.OrderStatusPending {
				continue
			}
		}
		recs = append(recs, rec)
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	result := make([]domain.CartItem, 0, len(recs))
	for _, rec := range recs {
		result = append(result, rec.item)
	}
	return result, nil
}

func (t *tx) UpdateCartItem(_ context.Context, item domain.CartItem) error {
	t.writable()
	rec, ok := t.state.items[item.ID]
	if !ok {
		return domain.ErrCartItemNotFound
	}
	if _, ok := t.state.orders[item.OrderID]; !ok {
		return domain.ErrOrderUnknown
	}

	rec.item = item
	t.state.items[item.ID] = rec
	return nil
}

func (t *tx) DeleteCartItem(_ context.Context, id string) error {
	t.writable()
	if _, ok := t.state.items[id]; !ok {
		return domain.ErrCartItemNotFound
	}
	delete(t.state.items, id)
	return nil
}

func (t *tx) CountCartItems(_ context.Context, orderID string) (int, error) {
	count := 0
	for _, rec := range t.state.items {
		if rec.item.OrderID == orderID {
			count++
		}
	}
	return count, nil
}
