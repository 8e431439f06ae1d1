package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// OrderInput - поля заказа из запроса. nil означает, что поле не передано.
type OrderInput struct {
	UserID *string
	Status *string
}

func (in OrderInput) apply(order *domain.Order, partial bool) []error {
	var errs []error

	switch {
	case in.UserID != nil:
		order.UserID = strings.TrimSpace(*in.UserID)
	case !partial:
		errs = append(errs, domain.ErrUserRequired)
	}
	if in.Status != nil {
		order.Status = domain.OrderStatus(strings.TrimSpace(*in.Status))
	}
	return errs
}

// CreateOrder создаёт заказ. Статус по умолчанию Pending.
func (s *Service) CreateOrder(ctx context.Context, in OrderInput) (domain.Order, error) {
	now := s.now()
	order := domain.Order{
		ID:        s.newID(),
		Status:    domain.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if errs := in.apply(&order, false); len(errs) > 0 {
		return domain.Order{}, domain.JoinValidation(errs)
	}

	var created domain.Order
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		if err := s.enforcer.CheckOrder(ctx, tx, order); err != nil {
			return err
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := s.appendTimeline(ctx, tx, order.ID, domain.TimelineOrderCreated, string(order.Status)); err != nil {
			return err
		}
		if err := s.enqueueOrderEvent(ctx, tx, order.ID, domain.EventOrderCreated, ""); err != nil {
			return err
		}

		var err error
		created, err = tx.GetOrder(ctx, order.ID)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.RecordOrderCreated()
	s.logger.WithFields(log.Fields{
		"order_id": created.ID,
		"user_id":  created.UserID,
		"status":   created.Status,
	}).Info("order created")
	return created, nil
}

// CreateOrderFor создаёт заказ от имени вызывающего. Поле user из запроса игнорируется.
func (s *Service) CreateOrderFor(ctx context.Context, principal domain.Principal, in OrderInput) (domain.Order, error) {
	if principal.IsZero() {
		return domain.Order{}, domain.ErrTokenMissing
	}
	userID := principal.UserID
	in.UserID = &userID
	order, err := s.CreateOrder(ctx, in)
	if errors.Is(err, domain.ErrUserUnknown) {
		// токен пережил своего пользователя
		return domain.Order{}, domain.ErrTokenInvalid
	}
	return order, err
}

func (s *Service) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	var order domain.Order
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		order, err = tx.GetOrder(ctx, id)
		return err
	})
	return order, err
}

// ListOrders возвращает заказы, новые первыми.
func (s *Service) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	var orders []domain.Order
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		orders, err = tx.ListOrders(ctx, filter)
		return err
	})
	return orders, err
}

// ListOrdersFor возвращает заказы вызывающего.
func (s *Service) ListOrdersFor(ctx context.Context, principal domain.Principal) ([]domain.Order, error) {
	if principal.IsZero() {
		return nil, domain.ErrTokenMissing
	}

	var orders []domain.Order
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.GetUser(ctx, principal.UserID); err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				return domain.ErrTokenInvalid
			}
			return err
		}
		var err error
		orders, err = tx.ListOrders(ctx, domain.OrderFilter{UserID: principal.UserID})
		return err
	})
	return orders, err
}

// UpdateOrder меняет владельца и/или статус. Перевод в Pending проверяется
// правилом одного Pending-заказа на пользователя. partial=true соответствует PATCH.
func (s *Service) UpdateOrder(ctx context.Context, id string, in OrderInput, partial bool) (domain.Order, error) {
	var (
		updated  domain.Order
		previous domain.OrderStatus
	)
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		order, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		previous = order.Status

		if errs := in.apply(&order, partial); len(errs) > 0 {
			return domain.JoinValidation(errs)
		}
		if err := s.enforcer.CheckOrder(ctx, tx, order); err != nil {
			return err
		}

		order.UpdatedAt = s.now()
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}

		if order.Status != previous {
			reason := fmt.Sprintf("%s -> %s", previous, order.Status)
			if err := s.appendTimeline(ctx, tx, order.ID, domain.TimelineOrderStatusChanged, reason); err != nil {
				return err
			}
		}
		if err := s.enqueueOrderEvent(ctx, tx, order.ID, domain.EventOrderUpdated, previous); err != nil {
			return err
		}

		updated, err = tx.GetOrder(ctx, order.ID)
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	if updated.Status != previous {
		s.logger.WithFields(log.Fields{
			"order_id": updated.ID,
			"from":     previous,
			"to":       updated.Status,
		}).Info("order status changed")
	}
	return updated, nil
}

// DeleteOrder удаляет заказ вместе с позициями и таймлайном.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	return s.store.WithinTx(ctx, func(tx domain.Tx) error {
		order, err := tx.LockOrder(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteOrder(ctx, id); err != nil {
			return err
		}
		return s.enqueue(ctx, tx, domain.AggregateOrder, id, domain.EventOrderDeleted, orderEvent{
			OrderID:    order.ID,
			UserID:     order.UserID,
			Status:     string(order.Status),
			Total:      "0.00",
			OccurredAt: s.now(),
		})
	})
}

// Timeline возвращает события заказа в хронологическом порядке.
func (s *Service) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	var events []domain.TimelineEvent
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		if _, err := tx.GetOrder(ctx, orderID); err != nil {
			return err
		}
		var err error
		events, err = tx.ListTimeline(ctx, orderID)
		return err
	})
	return events, err
}
