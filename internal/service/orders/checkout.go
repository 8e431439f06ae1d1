package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
)

// CheckoutSucceededMessage возвращается клиенту после успешного checkout.
const CheckoutSucceededMessage = "Order successfully checked out."

// CheckoutResult - итог checkout.
type CheckoutResult struct {
	OrderID string
	Status  domain.OrderStatus
	Message string
}

// Checkout переводит заказ из Pending в Processed. Строка заказа блокируется
// до конца транзакции, поэтому параллельные checkout и изменения позиций
// одного заказа выполняются строго по очереди: ровно один checkout успешен.
func (s *Service) Checkout(ctx context.Context, orderID string) (CheckoutResult, error) {
	start := time.Now()
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return CheckoutResult{}, domain.ErrOrderIDRequired
	}

	var items int
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}

		switch order.Status {
		case domain.OrderStatusPending:
		case domain.OrderStatusProcessed:
			return domain.ErrOrderAlreadyProcessed
		default:
			return domain.ErrOrderNotPending
		}

		items, err = tx.CountCartItems(ctx, order.ID)
		if err != nil {
			return err
		}
		if items == 0 {
			return domain.ErrNoCartItems
		}

		order.Status = domain.OrderStatusProcessed
		order.UpdatedAt = s.now()
		if err := s.enforcer.CheckOrder(ctx, tx, order); err != nil {
			return err
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}

		reason := fmt.Sprintf("%d cart items", items)
		if err := s.appendTimeline(ctx, tx, order.ID, domain.TimelineOrderCheckedOut, reason); err != nil {
			return err
		}
		return s.enqueueOrderEvent(ctx, tx, order.ID, domain.EventOrderCheckedOut, domain.OrderStatusPending)
	})

	s.metrics.RecordCheckout(checkoutResult(err), time.Since(start))
	logger := s.logger.WithField("order_id", orderID)
	if err != nil {
		if domain.KindOf(err) == domain.KindInternal {
			logger.WithError(err).Error("checkout failed")
		} else {
			logger.WithError(err).Debug("checkout rejected")
		}
		return CheckoutResult{}, err
	}

	logger.WithFields(log.Fields{"cart_items": items}).Info("order checked out")
	return CheckoutResult{
		OrderID: orderID,
		Status:  domain.OrderStatusProcessed,
		Message: CheckoutSucceededMessage,
	}, nil
}

func checkoutResult(err error) string {
	switch {
	case err == nil:
		return metrics.CheckoutSucceeded
	case errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, domain.ErrEmptyOrder),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrValidation):
		return metrics.CheckoutRejected
	default:
		return metrics.CheckoutFailed
	}
}
