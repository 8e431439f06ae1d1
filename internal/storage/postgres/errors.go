package postgres

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// Коды SQLSTATE, которые переводятся в доменные ошибки.
const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Имена ограничений из sql/migrations.
const (
	constraintUserEmail     = "users_email_lower_key"
	constraintOnePending    = "orders_one_pending_per_user_key"
	constraintOrderUser     = "orders_user_id_fkey"
	constraintOrderStatus   = "orders_status_check"
	constraintCartItemOrder = "cart_items_order_id_fkey"
	constraintCartItemQty   = "cart_items_quantity_check"
	constraintCartItemPrice = "cart_items_price_check"
	constraintTimelineOrder = "timeline_events_order_id_fkey"
)

// mapError переводит ошибку драйвера в доменную. Неизвестные ошибки оборачиваются с op.
func mapError(err error, op string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return fmt.Errorf("%s: %w", op, err)
	}

	switch pgErr.Code {
	case pgUniqueViolation:
		switch pgErr.ConstraintName {
		case constraintUserEmail:
			return domain.ErrEmailTaken
		case constraintOnePending:
			return domain.ErrPendingOrderExists
		}
		return domain.ErrConflict
	case pgForeignKeyViolation:
		switch pgErr.ConstraintName {
		case constraintOrderUser:
			return domain.ErrUserUnknown
		case constraintCartItemOrder:
			return domain.ErrOrderUnknown
		case constraintTimelineOrder:
			return domain.ErrOrderNotFound
		}
	case pgCheckViolation:
		switch pgErr.ConstraintName {
		case constraintOrderStatus:
			return domain.ErrStatusInvalid
		case constraintCartItemQty:
			return domain.ErrQuantityInvalid
		case constraintCartItemPrice:
			return domain.ErrPriceInvalid
		}
	case pgSerializationFailure, pgDeadlockDetected:
		return domain.ErrConflict
	}

	return fmt.Errorf("%s: %w", op, err)
}
