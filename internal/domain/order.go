package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending - заказ собирается и ждёт checkout. У пользователя не больше одного такого заказа.
	OrderStatusPending OrderStatus = "Pending"
	// OrderStatusProcessed - заказ прошёл checkout.
	OrderStatusProcessed OrderStatus = "Processed"
	// OrderStatusCancelled - заказ отменён.
	OrderStatusCancelled OrderStatus = "Cancelled"
)

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessed, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID        string
	UserID    string
	Status    OrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
	// CartItems заполняется при чтении, запись позиций идёт через отдельный репозиторий.
	CartItems []CartItem
}

// ValidateInvariants проверяет поля заказа, не требующие обращения к хранилищу.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusInvalid)
	}

	return errs
}

// CartItem - позиция заказа.
type CartItem struct {
	ID          string
	OrderID     string
	ProductName string
	Quantity    int
	Price       decimal.Decimal
}

var maxPrice = decimal.New(1, 8)

// ValidateInvariants проверяет количество, цену и название товара.
func (c *CartItem) ValidateInvariants() []error {
	var errs []error

	if c.OrderID == "" {
		errs = append(errs, ErrOrderRequired)
	}
	if c.ProductName == "" {
		errs = append(errs, ErrProductNameRequired)
	} else if len([]rune(c.ProductName)) > maxNameLength {
		errs = append(errs, NewFieldError("product_name", "product_name must be at most 255 characters"))
	}
	switch {
	case c.Quantity <= 0:
		errs = append(errs, ErrQuantityInvalid)
	case c.Quantity > math.MaxInt32:
		errs = append(errs, ErrQuantityTooLarge)
	}

	switch {
	case !c.Price.IsPositive():
		errs = append(errs, ErrPriceInvalid)
	case !c.Price.Equal(c.Price.Round(2)):
		errs = append(errs, ErrPriceTooPrecise)
	case c.Price.GreaterThanOrEqual(maxPrice):
		errs = append(errs, ErrPriceTooPrecise)
	}

	return errs
}

// Subtotal возвращает quantity * price.
func (c CartItem) Subtotal() decimal.Decimal {
	return c.Price.Mul(decimal.NewFromInt(int64(c.Quantity)))
}

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}

const (
	TimelineOrderCreated       = "OrderCreated"
	TimelineOrderStatusChanged = "OrderStatusChanged"
	TimelineOrderCheckedOut    = "OrderCheckedOut"
)
