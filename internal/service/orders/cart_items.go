package orders

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

// CartItemInput - поля позиции из запроса. nil означает, что поле не передано.
type CartItemInput struct {
	OrderID     *string
	ProductName *string
	Quantity    *int
	Price       *decimal.Decimal
}

func (in CartItemInput) apply(item *domain.CartItem, partial bool) []error {
	var errs []error

	switch {
	case in.OrderID != nil:
		item.OrderID = strings.TrimSpace(*in.OrderID)
	case !partial:
		errs = append(errs, domain.ErrOrderRequired)
	}
	switch {
	case in.ProductName != nil:
		item.ProductName = strings.TrimSpace(*in.ProductName)
	case !partial:
		errs = append(errs, domain.ErrProductNameRequired)
	}
	switch {
	case in.Quantity != nil:
		item.Quantity = *in.Quantity
	case !partial:
		errs = append(errs, domain.NewFieldError("quantity", "quantity is required"))
	}
	switch {
	case in.Price != nil:
		item.Price = *in.Price
	case !partial:
		errs = append(errs, domain.NewFieldError("price", "price is required"))
	}
	return errs
}

// CreateCartItem добавляет позицию в заказ в статусе Pending.
func (s *Service) CreateCartItem(ctx context.Context, in CartItemInput) (domain.CartItem, error) {
	item := domain.CartItem{ID: s.newID()}
	if errs := in.apply(&item, false); len(errs) > 0 {
		return domain.CartItem{}, domain.JoinValidation(errs)
	}

	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		if err := s.enforcer.CheckCartItem(ctx, tx, item); err != nil {
			return err
		}
		if err := tx.CreateCartItem(ctx, item); err != nil {
			return err
		}
		return s.enqueueOrderEvent(ctx, tx, item.OrderID, domain.EventOrderUpdated, "")
	})
	if err != nil {
		return domain.CartItem{}, err
	}
	return item, nil
}

func (s *Service) GetCartItem(ctx context.Context, id string) (domain.CartItem, error) {
	var item domain.CartItem
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		item, err = tx.GetCartItem(ctx, id)
		return err
	})
	return item, err
}

// ListCartItems возвращает позиции. С непустым orderID - только позиции
// этого заказа и только пока он в статусе Pending.
func (s *Service) ListCartItems(ctx context.Context, orderID string) ([]domain.CartItem, error) {
	filter := domain.CartItemFilter{}
	if orderID = strings.TrimSpace(orderID); orderID != "" {
		filter = domain.CartItemFilter{OrderID: orderID, PendingOnly: true}
	}

	var items []domain.CartItem
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		items, err = tx.ListCartItems(ctx, filter)
		return err
	})
	return items, err
}

// UpdateCartItem меняет позицию. Если позиция переносится в другой заказ,
// оба заказа должны быть в статусе Pending. partial=true соответствует PATCH.
func (s *Service) UpdateCartItem(ctx context.Context, id string, in CartItemInput, partial bool) (domain.CartItem, error) {
	var item domain.CartItem
	err := s.store.WithinTx(ctx, func(tx domain.Tx) error {
		var err error
		item, err = tx.GetCartItem(ctx, id)
		if err != nil {
			return err
		}
		source := item.OrderID

		if errs := in.apply(&item, partial); len(errs) > 0 {
			return domain.JoinValidation(errs)
		}
		if err := s.enforcer.CheckOrderEditable(ctx, tx, source); err != nil {
			return err
		}
		if err := s.enforcer.CheckCartItem(ctx, tx, item); err != nil {
			return err
		}
		if err := tx.UpdateCartItem(ctx, item); err != nil {
			return err
		}

		if source != item.OrderID {
			if err := s.enqueueOrderEvent(ctx, tx, source, domain.EventOrderUpdated, ""); err != nil {
				return err
			}
		}
		return s.enqueueOrderEvent(ctx, tx, item.OrderID, domain.EventOrderUpdated, "")
	})
	if err != nil {
		return domain.CartItem{}, err
	}
	return item, nil
}

// DeleteCartItem удаляет позицию из заказа в статусе Pending.
func (s *Service) DeleteCartItem(ctx context.Context, id string) error {
	return s.store.WithinTx(ctx, func(tx domain.Tx) error {
		item, err := tx.GetCartItem(ctx, id)
		if err != nil {
			return err
		}
		if err := s.enforcer.CheckOrderEditable(ctx, tx, item.OrderID); err != nil {
			return err
		}
		if err := tx.DeleteCartItem(ctx, id); err != nil {
			return err
		}
		return s.enqueueOrderEvent(ctx, tx, item.OrderID, domain.EventOrderUpdated, "")
	})
}
