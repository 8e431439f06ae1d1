package orders_test

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/orders"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/memory"
)

func ptr[T any](v T) *T { return &v }

var int32Limit int64 = math.MaxInt32

func quietLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return log.NewEntry(logger)
}

type plainHasher struct{}

func (plainHasher) Hash(password string) ([]byte, error) { return []byte("hashed:" + password), nil }

func newService(store *memory.Store) *orders.Service {
	return orders.NewService(store,
		orders.WithLogger(quietLogger()),
		orders.WithMetrics(metrics.NewOrderMetricsWithRegisterer(prometheus.NewRegistry())),
		orders.WithPasswordHasher(plainHasher{}),
	)
}

type LifecycleSuite struct {
	suite.Suite

	ctx   context.Context
	store *memory.Store
	svc   *orders.Service
	user  domain.User
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = memory.NewStore()
	s.svc = newService(s.store)

	user, err := s.svc.CreateUser(s.ctx, orders.UserInput{
		Name:  ptr("Ada Lovelace"),
		Email: ptr("ada@example.com"),
	})
	s.Require().NoError(err)
	s.user = user
}

func (s *LifecycleSuite) createOrder(status domain.OrderStatus) domain.Order {
	order, err := s.svc.CreateOrder(s.ctx, orders.OrderInput{UserID: ptr(s.user.ID), Status: ptr(string(status))})
	s.Require().NoError(err)
	return order
}

func (s *LifecycleSuite) addItem(orderID string, qty int, price string) domain.CartItem {
	item, err := s.svc.CreateCartItem(s.ctx, orders.CartItemInput{
		OrderID:     ptr(orderID),
		ProductName: ptr("widget"),
		Quantity:    ptr(qty),
		Price:       ptr(decimal.RequireFromString(price)),
	})
	s.Require().NoError(err)
	return item
}

func (s *LifecycleSuite) TestScenario() {
	o1 := s.createOrder(domain.OrderStatusPending)
	s.addItem(o1.ID, 2, "5.00")

	result, err := s.svc.Checkout(s.ctx, o1.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusProcessed, result.Status)
	s.Equal(orders.CheckoutSucceededMessage, result.Message)

	_, err = s.svc.Checkout(s.ctx, o1.ID)
	s.Require().ErrorIs(err, domain.ErrOrderAlreadyProcessed)
	s.Equal("order is already processed", err.Error())

	o2 := s.createOrder(domain.OrderStatusPending)

	_, err = s.svc.CreateOrder(s.ctx, orders.OrderInput{UserID: ptr(s.user.ID), Status: ptr("Pending")})
	s.Require().ErrorIs(err, domain.ErrPendingOrderExists)
	s.Require().ErrorIs(err, domain.ErrValidation)

	list, err := s.svc.ListOrders(s.ctx, domain.OrderFilter{UserID: s.user.ID})
	s.Require().NoError(err)
	s.Len(list, 2)
	s.Equal(o2.ID, list[0].ID, "newest order first")

	s.Require().NoError(s.svc.DeleteUser(s.ctx, s.user.ID))

	_, err = s.svc.GetOrder(s.ctx, o1.ID)
	s.ErrorIs(err, domain.ErrOrderNotFound)
	_, err = s.svc.GetOrder(s.ctx, o2.ID)
	s.ErrorIs(err, domain.ErrOrderNotFound)
	items, err := s.svc.ListCartItems(s.ctx, "")
	s.Require().NoError(err)
	s.Empty(items)
}

func (s *LifecycleSuite) TestCheckoutEmptyOrder() {
	order := s.createOrder(domain.OrderStatusPending)

	_, err := s.svc.Checkout(s.ctx, order.ID)
	s.Require().ErrorIs(err, domain.ErrNoCartItems)
	s.Equal(domain.KindEmptyOrder, domain.KindOf(err))

	stored, err := s.svc.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusPending, stored.Status)
}

func (s *LifecycleSuite) TestCheckoutCancelledOrder() {
	order := s.createOrder(domain.OrderStatusCancelled)

	_, err := s.svc.Checkout(s.ctx, order.ID)
	s.Require().ErrorIs(err, domain.ErrOrderNotPending)
	s.Equal(domain.KindInvalidState, domain.KindOf(err))
}

func (s *LifecycleSuite) TestCheckoutMissingOrder() {
	_, err := s.svc.Checkout(s.ctx, "missing")
	s.ErrorIs(err, domain.ErrOrderNotFound)

	_, err = s.svc.Checkout(s.ctx, "  ")
	s.ErrorIs(err, domain.ErrOrderIDRequired)
}

func (s *LifecycleSuite) TestCartItemValidation() {
	order := s.createOrder(domain.OrderStatusPending)

	for _, tc := range []struct {
		qty   int
		price string
		want  error
	}{
		{0, "9.99", domain.ErrQuantityInvalid},
		{-1, "9.99", domain.ErrQuantityInvalid},
		{1, "0", domain.ErrPriceInvalid},
		{1, "-1.00", domain.ErrPriceInvalid},
		{1, "9.999", domain.ErrPriceTooPrecise},
		{int(int32Limit + 1), "9.99", domain.ErrQuantityTooLarge},
	} {
		_, err := s.svc.CreateCartItem(s.ctx, orders.CartItemInput{
			OrderID:     ptr(order.ID),
			ProductName: ptr("widget"),
			Quantity:    ptr(tc.qty),
			Price:       ptr(decimal.RequireFromString(tc.price)),
		})
		s.Require().ErrorIs(err, tc.want, "qty=%d price=%s", tc.qty, tc.price)
	}

	item := s.addItem(order.ID, 1, "9.99")
	s.True(item.Price.Equal(decimal.RequireFromString("9.99")))

	_, err := s.svc.CreateCartItem(s.ctx, orders.CartItemInput{OrderID: ptr(order.ID)})
	s.Require().ErrorIs(err, domain.ErrProductNameRequired)
	s.Equal("quantity", domain.FieldOf(joinedAt(err, 1)))
}

func (s *LifecycleSuite) TestCartItemsFrozenAfterCheckout() {
	order := s.createOrder(domain.OrderStatusPending)
	item := s.addItem(order.ID, 1, "1.00")
	_, err := s.svc.Checkout(s.ctx, order.ID)
	s.Require().NoError(err)

	_, err = s.svc.CreateCartItem(s.ctx, orders.CartItemInput{
		OrderID:     ptr(order.ID),
		ProductName: ptr("late"),
		Quantity:    ptr(1),
		Price:       ptr(decimal.RequireFromString("1.00")),
	})
	s.ErrorIs(err, domain.ErrOrderLocked)

	_, err = s.svc.UpdateCartItem(s.ctx, item.ID, orders.CartItemInput{Quantity: ptr(5)}, true)
	s.ErrorIs(err, domain.ErrOrderLocked)
	s.ErrorIs(s.svc.DeleteCartItem(s.ctx, item.ID), domain.ErrOrderLocked)

	pending, err := s.svc.ListCartItems(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Empty(pending, "order_id filter only returns items of pending orders")
}

func (s *LifecycleSuite) TestUpdateOrderStatus() {
	order := s.createOrder(domain.OrderStatusPending)

	processed, err := s.svc.UpdateOrder(s.ctx, order.ID, orders.OrderInput{Status: ptr("Processed")}, true)
	s.Require().NoError(err)
	s.Equal(domain.OrderStatusProcessed, processed.Status)
	s.False(processed.UpdatedAt.Before(order.UpdatedAt))
	s.Equal(order.CreatedAt, processed.CreatedAt)

	second := s.createOrder(domain.OrderStatusPending)

	_, err = s.svc.UpdateOrder(s.ctx, order.ID, orders.OrderInput{Status: ptr("Pending")}, true)
	s.Require().ErrorIs(err, domain.ErrPendingOrderExists)

	_, err = s.svc.UpdateOrder(s.ctx, second.ID, orders.OrderInput{Status: ptr("Pending")}, true)
	s.Require().NoError(err, "re-saving the only pending order must pass")

	_, err = s.svc.UpdateOrder(s.ctx, second.ID, orders.OrderInput{Status: ptr("Shipped")}, true)
	s.Require().ErrorIs(err, domain.ErrStatusInvalid)

	_, err = s.svc.UpdateOrder(s.ctx, second.ID, orders.OrderInput{Status: ptr("Cancelled")}, false)
	s.Require().ErrorIs(err, domain.ErrUserRequired, "PUT requires user")

	events, err := s.svc.Timeline(s.ctx, order.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(domain.TimelineOrderCreated, events[0].Type)
	s.Equal(domain.TimelineOrderStatusChanged, events[1].Type)
	s.Equal("Pending -> Processed", events[1].Reason)
}

func (s *LifecycleSuite) TestOrdersForPrincipal() {
	other, err := s.svc.CreateUser(s.ctx, orders.UserInput{Name: ptr("Eve"), Email: ptr("eve@example.com")})
	s.Require().NoError(err)

	principal := domain.Principal{UserID: s.user.ID, Username: s.user.Email}
	created, err := s.svc.CreateOrderFor(s.ctx, principal, orders.OrderInput{UserID: ptr(other.ID)})
	s.Require().NoError(err)
	s.Equal(s.user.ID, created.UserID, "owner comes from the principal")

	mine, err := s.svc.ListOrdersFor(s.ctx, principal)
	s.Require().NoError(err)
	s.Len(mine, 1)

	s.Require().NoError(s.svc.DeleteUser(s.ctx, other.ID))
	ghost := domain.Principal{UserID: other.ID, Username: other.Email}
	_, err = s.svc.ListOrdersFor(s.ctx, ghost)
	s.ErrorIs(err, domain.ErrTokenInvalid)
	_, err = s.svc.CreateOrderFor(s.ctx, ghost, orders.OrderInput{})
	s.ErrorIs(err, domain.ErrTokenInvalid)

	_, err = s.svc.ListOrdersFor(s.ctx, domain.Principal{})
	s.ErrorIs(err, domain.ErrUnauthorized)
	_, err = s.svc.CreateOrderFor(s.ctx, domain.Principal{}, orders.OrderInput{})
	s.ErrorIs(err, domain.ErrUnauthorized)
}

func (s *LifecycleSuite) TestUsers() {
	_, err := s.svc.CreateUser(s.ctx, orders.UserInput{Name: ptr("Copy"), Email: ptr("ADA@example.com")})
	s.Require().ErrorIs(err, domain.ErrEmailTaken)

	_, err = s.svc.CreateUser(s.ctx, orders.UserInput{Name: ptr("Bad"), Email: ptr("nope"), PhoneNumber: orders.NullableString{Set: true, Value: ptr("1234567890123456")}})
	s.Require().ErrorIs(err, domain.ErrEmailInvalid)
	s.Require().ErrorIs(err, domain.ErrPhoneTooLong)

	updated, err := s.svc.UpdateUser(s.ctx, s.user.ID, orders.UserInput{Address: orders.NullableString{Set: true, Value: ptr("London")}}, true)
	s.Require().NoError(err)
	s.Equal("Ada Lovelace", updated.Name)
	s.Require().NotNil(updated.Address)
	s.Equal("London", *updated.Address)

	cleared, err := s.svc.UpdateUser(s.ctx, s.user.ID, orders.UserInput{Address: orders.NullableString{Set: true}}, true)
	s.Require().NoError(err)
	s.Nil(cleared.Address)

	_, err = s.svc.UpdateUser(s.ctx, s.user.ID, orders.UserInput{Name: ptr("Ada")}, false)
	s.Require().ErrorIs(err, domain.ErrEmailRequired, "PUT requires email")

	_, err = s.svc.UpdateUser(s.ctx, "missing", orders.UserInput{Name: ptr("x")}, true)
	s.ErrorIs(err, domain.ErrUserNotFound)
}

func (s *LifecycleSuite) TestCredentials() {
	_, _, err := s.svc.Credentials(s.ctx, "ada@example.com")
	s.ErrorIs(err, domain.ErrInvalidCredentials, "user without password cannot log in")

	_, err = s.svc.UpdateUser(s.ctx, s.user.ID, orders.UserInput{Password: ptr("short")}, true)
	s.Require().ErrorIs(err, domain.ErrPasswordTooShort)

	tooLong := strings.Repeat("x", domain.MaxPasswordBytes+8)
	_, err = s.svc.UpdateUser(s.ctx, s.user.ID, orders.UserInput{Password: ptr(tooLong)}, true)
	s.Require().ErrorIs(err, domain.ErrPasswordTooLong)
	_, err = s.svc.CreateUser(s.ctx, orders.UserInput{Name: ptr("Long"), Email: ptr("long@example.com"), Password: ptr(tooLong)})
	s.Require().ErrorIs(err, domain.ErrPasswordTooLong)
	s.Equal("password", domain.FieldOf(err))

	_, err = s.svc.UpdateUser(s.ctx, s.user.ID, orders.UserInput{Password: ptr("correct horse")}, true)
	s.Require().NoError(err)

	user, hash, err := s.svc.Credentials(s.ctx, " ADA@example.com ")
	s.Require().NoError(err)
	s.Equal(s.user.ID, user.ID)
	s.Equal("hashed:correct horse", string(hash))

	_, _, err = s.svc.Credentials(s.ctx, "nobody@example.com")
	s.ErrorIs(err, domain.ErrInvalidCredentials)
}

func (s *LifecycleSuite) TestOutboxEvents() {
	order := s.createOrder(domain.OrderStatusPending)
	s.addItem(order.ID, 2, "5.00")
	_, err := s.svc.Checkout(s.ctx, order.ID)
	s.Require().NoError(err)

	pending, err := s.store.PullPending(s.ctx, 100)
	s.Require().NoError(err)

	types := make([]string, 0, len(pending))
	var checkedOut domain.OutboxMessage
	for _, msg := range pending {
		types = append(types, msg.EventType)
		if msg.EventType == domain.EventOrderCheckedOut {
			checkedOut = msg
		}
	}
	s.Equal([]string{domain.EventOrderCreated, domain.EventOrderUpdated, domain.EventOrderCheckedOut}, types)

	var payload map[string]any
	s.Require().NoError(json.Unmarshal(checkedOut.Payload, &payload))
	s.Equal("Processed", payload["status"])
	s.Equal("Pending", payload["previous_status"])
	s.Equal("10.00", payload["total"])
}

func (s *LifecycleSuite) TestMoveCartItemBetweenOrders() {
	first := s.createOrder(domain.OrderStatusPending)
	item := s.addItem(first.ID, 1, "3.00")
	_, err := s.svc.Checkout(s.ctx, first.ID)
	s.Require().NoError(err)
	second := s.createOrder(domain.OrderStatusPending)

	_, err = s.svc.UpdateCartItem(s.ctx, item.ID, orders.CartItemInput{OrderID: ptr(second.ID)}, true)
	s.ErrorIs(err, domain.ErrOrderLocked, "items cannot leave a processed order")
}

// joinedAt возвращает i-ю ошибку из errors.Join.
func joinedAt(err error, i int) error {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return err
	}
	errs := joined.Unwrap()
	if i >= len(errs) {
		return nil
	}
	return errs[i]
}

func TestService_UsesInjectedClockAndIDs(t *testing.T) {
	fixed := time.Date(2026, 4, 19, 12, 0, 0, 0, time.UTC)
	ids := []string{"user-1", "order-1", "event-1", "event-2"}
	next := 0

	svc := orders.NewService(memory.NewStore(),
		orders.WithLogger(quietLogger()),
		orders.WithClock(func() time.Time { return fixed }),
		orders.WithIDGenerator(func() string {
			id := ids[next%len(ids)]
			next++
			return id
		}),
	)

	user, err := svc.CreateUser(context.Background(), orders.UserInput{Name: ptr("Ada"), Email: ptr("ada@example.com")})
	require.NoError(t, err)
	require.Equal(t, "user-1", user.ID)

	order, err := svc.CreateOrder(context.Background(), orders.OrderInput{UserID: ptr(user.ID)})
	require.NoError(t, err)
	require.Equal(t, "order-1", order.ID)
	require.Equal(t, domain.OrderStatusPending, order.Status)
	require.True(t, order.CreatedAt.Equal(fixed))
}

func TestService_PasswordWithoutHasher(t *testing.T) {
	svc := orders.NewService(memory.NewStore(), orders.WithLogger(quietLogger()))

	_, err := svc.CreateUser(context.Background(), orders.UserInput{
		Name:     ptr("Ada"),
		Email:    ptr("ada@example.com"),
		Password: ptr("long enough"),
	})
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Equal(t, "password", domain.FieldOf(err))
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
