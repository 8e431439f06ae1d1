package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

const (
	orderColumns    = `o.id, o.user_id, o.status, o.created_at, o.updated_at`
	cartItemColumns = `c.id, c.order_id, c.product_name, c.quantity, c.price`
)

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order  domain.Order
		status string
	)
	if err := row.Scan(&order.ID, &order.UserID, &status, &order.CreatedAt, &order.UpdatedAt); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return order, nil
}

func scanCartItem(row rowScanner) (domain.CartItem, error) {
	var item domain.CartItem
	if err := row.Scan(&item.ID, &item.OrderID, &item.ProductName, &item.Quantity, &item.Price); err != nil {
		return domain.CartItem{}, err
	}
	return item, nil
}

func (t *tx) CreateOrder(ctx context.Context, order domain.Order) error {
	now := t.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5)
	`, order.ID, order.UserID, string(order.Status), order.CreatedAt, order.UpdatedAt); err != nil {
		return mapError(err, "insert order")
	}
	return nil
}

func (t *tx) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := t.selectOrder(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1`, id)
	if err != nil {
		return domain.Order{}, err
	}

	items, err := t.ListCartItems(ctx, domain.CartItemFilter{OrderID: id})
	if err != nil {
		return domain.Order{}, err
	}
	order.CartItems = items
	return order, nil
}

// LockOrder блокирует строку заказа: checkout и изменения позиций одного заказа идут строго по очереди.
func (t *tx) LockOrder(ctx context.Context, id string) (domain.Order, error) {
	return t.selectOrder(ctx, `SELECT `+orderColumns+` FROM orders o WHERE o.id = $1 FOR UPDATE`, id)
}

func (t *tx) selectOrder(ctx context.Context, query, id string) (domain.Order, error) {
	order, err := scanOrder(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, mapError(err, "select order")
	}
	return order, nil
}

func (t *tx) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var (
		conds []string
		args  []any
	)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, "o.user_id = $"+strconv.Itoa(len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, "o.status = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + orderColumns + ` FROM orders o`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY o.created_at DESC, o.id DESC`

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list orders")
	}

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}
	// Соединение транзакции одно: позиции читаем только после закрытия курсора.
	_ = rows.Close()

	for i := range orders {
		items, err := t.ListCartItems(ctx, domain.CartItemFilter{OrderID: orders[i].ID})
		if err != nil {
			return nil, err
		}
		orders[i].CartItems = items
	}
	return orders, nil
}

func (t *tx) UpdateOrder(ctx context.Context, order domain.Order) error {
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = t.now()
	}

	res, err := t.tx.ExecContext(ctx, `
		UPDATE orders
		SET user_id = $2,
		    status = $3,
		    updated_at = $4
		WHERE id = $1
	`, order.ID, order.UserID, string(order.Status), order.UpdatedAt)
	if err != nil {
		return mapError(err, "update order")
	}
	return expectAffected(res, domain.ErrOrderNotFound)
}

func (t *tx) DeleteOrder(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "delete order")
	}
	return expectAffected(res, domain.ErrOrderNotFound)
}

func (t *tx) CountPendingOrders(ctx context.Context, userID, excludeOrderID string) (int, error) {
	var count int
	if err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM orders
		WHERE user_id = $1
		  AND status = $2
		  AND id <> $3
	`, userID, string(domain.OrderStatusPending), excludeOrderID).Scan(&count); err != nil {
		return 0, mapError(err, "count pending orders")
	}
	return count, nil
}

func (t *tx) CreateCartItem(ctx context.Context, item domain.CartItem) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO cart_items (id, order_id, product_name, quantity, price)
		VALUES ($1,$2,$3,$4,$5)
	`, item.ID, item.OrderID, item.ProductName, item.Quantity, item.Price); err != nil {
		return mapError(err, "insert cart item")
	}
	return nil
}

func (t *tx) GetCartItem(ctx context.Context, id string) (domain.CartItem, error) {
	item, err := scanCartItem(t.tx.QueryRowContext(ctx, `SELECT `+cartItemColumns+` FROM cart_items c WHERE c.id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CartItem{}, domain.ErrCartItemNotFound
		}
		return domain.CartItem{}, mapError(err, "select cart item")
	}
	return item, nil
}

func (t *tx) ListCartItems(ctx context.Context, filter domain.CartItemFilter) ([]domain.CartItem, error) {
	var (
		conds []string
		args  []any
	)
	query := `SELECT ` + cartItemColumns + ` FROM cart_items c`
	if filter.PendingOnly {
		query += ` JOIN orders o ON o.id = c.order_id`
		args = append(args, string(domain.OrderStatusPending))
		conds = append(conds, "o.status = $"+strconv.Itoa(len(args)))
	}
	if filter.OrderID != "" {
		args = append(args, filter.OrderID)
		conds = append(conds, "c.order_id = $"+strconv.Itoa(len(args)))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY c.seq ASC`

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "list cart items")
	}
	defer rows.Close()

	items := make([]domain.CartItem, 0)
	for rows.Next() {
		item, err := scanCartItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart item row: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart item rows: %w", err)
	}
	return items, nil
}

func (t *tx) UpdateCartItem(ctx context.Context, item domain.CartItem) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE cart_items
		SET order_id = $2,
		    product_name = $3,
		    quantity = $4,
		    price = $5
		WHERE id = $1
	`, item.ID, item.OrderID, item.ProductName, item.Quantity, item.Price)
	if err != nil {
		return mapError(err, "update cart item")
	}
	return expectAffected(res, domain.ErrCartItemNotFound)
}

func (t *tx) DeleteCartItem(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE id = $1`, id)
	if err != nil {
		return mapError(err, "delete cart item")
	}
	return expectAffected(res, domain.ErrCartItemNotFound)
}

func (t *tx) CountCartItems(ctx context.Context, orderID string) (int, error) {
	var count int
	if err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM cart_items WHERE order_id = $1`, orderID).Scan(&count); err != nil {
		return 0, mapError(err, "count cart items")
	}
	return count, nil
}
