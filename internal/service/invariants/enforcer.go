// Package invariants проверяет правила целостности пользователей, заказов и позиций.
// Проверки выполняются внутри транзакции записи, до сохранения, и являются
// единственным путём валидации: HTTP-слой своих правил не добавляет.
package invariants

import (
	"context"
	"errors"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
)

// Enforcer применяет правила целостности к записям внутри транзакции.
type Enforcer struct {
	metrics *metrics.OrderMetrics
}

// New создаёт Enforcer. m может быть nil.
func New(m *metrics.OrderMetrics) *Enforcer {
	return &Enforcer{metrics: m}
}

// CheckUser проверяет поля пользователя. Для существующего пользователя
// дополнительно запрещает сохранение, если у него больше одного Pending-заказа.
func (e *Enforcer) CheckUser(ctx context.Context, tx domain.Tx, user domain.User, existing bool) error {
	errs := user.Validate()
	if existing && len(errs) == 0 {
		pending, err := tx.CountPendingOrders(ctx, user.ID, "")
		if err != nil {
			return err
		}
		if pending > 1 {
			errs = append(errs, domain.ErrMultiplePendingOrders)
		}
	}
	return e.reject("user", errs)
}

// CheckOrder проверяет заказ, который будет сохранён с указанным статусом.
// Для статуса Pending строка владельца блокируется до конца транзакции,
// после чего ищется другой Pending-заказ этого пользователя (сам заказ исключается по ID).
func (e *Enforcer) CheckOrder(ctx context.Context, tx domain.Tx, order domain.Order) error {
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return e.reject("order", errs)
	}

	if _, err := tx.LockUser(ctx, order.UserID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return e.reject("order", []error{domain.ErrUserUnknown})
		}
		return err
	}

	if order.Status != domain.OrderStatusPending {
		return nil
	}

	others, err := tx.CountPendingOrders(ctx, order.UserID, order.ID)
	if err != nil {
		return err
	}
	if others > 0 {
		return e.reject("order", []error{domain.ErrPendingOrderExists})
	}
	return nil
}

// CheckCartItem проверяет позицию и блокирует её заказ. Позиции меняются
// только у заказа в статусе Pending.
func (e *Enforcer) CheckCartItem(ctx context.Context, tx domain.Tx, item domain.CartItem) error {
	if errs := item.ValidateInvariants(); len(errs) > 0 {
		return e.reject("cart_item", errs)
	}
	return e.CheckOrderEditable(ctx, tx, item.OrderID)
}

// CheckOrderEditable блокирует заказ и проверяет, что его позиции можно менять.
func (e *Enforcer) CheckOrderEditable(ctx context.Context, tx domain.Tx, orderID string) error {
	order, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return e.reject("cart_item", []error{domain.ErrOrderUnknown})
		}
		return err
	}
	if order.Status != domain.OrderStatusPending {
		e.metrics.RecordInvariantViolation("cart_item", "order_status")
		return domain.ErrOrderLocked
	}
	return nil
}

func (e *Enforcer) reject(entity string, errs []error) error {
	for _, err := range errs {
		e.metrics.RecordInvariantViolation(entity, domain.FieldOf(err))
	}
	return domain.JoinValidation(errs)
}
