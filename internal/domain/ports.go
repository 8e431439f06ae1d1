package domain

import "context"

// UserRepository описывает операции над пользователями внутри транзакции.
type UserRepository interface {
	// CreateUser сохраняет пользователя. Занятый email - ErrEmailTaken.
	CreateUser(ctx context.Context, user User) error
	// GetUser возвращает пользователя или ErrUserNotFound.
	GetUser(ctx context.Context, id string) (User, error)
	// LockUser читает пользователя с блокировкой строки до конца транзакции.
	LockUser(ctx context.Context, id string) (User, error)
	// GetUserByEmail ищет пользователя по нормализованному email.
	GetUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	UpdateUser(ctx context.Context, user User) error
	// DeleteUser удаляет пользователя вместе с заказами и позициями.
	DeleteUser(ctx context.Context, id string) error
}

// CredentialRepository хранит хэши паролей пользователей.
type CredentialRepository interface {
	SetPasswordHash(ctx context.Context, userID string, hash []byte) error
	// GetPasswordHash возвращает хэш или ErrUserNotFound, если пароль не задан.
	GetPasswordHash(ctx context.Context, userID string) ([]byte, error)
}

// OrderFilter ограничивает выборку заказов.
type OrderFilter struct {
	UserID string
	Status OrderStatus
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order Order) error
	// GetOrder возвращает заказ вместе с позициями или ErrOrderNotFound.
	GetOrder(ctx context.Context, id string) (Order, error)
	// LockOrder читает заказ (без позиций) с блокировкой строки.
	LockOrder(ctx context.Context, id string) (Order, error)
	ListOrders(ctx context.Context, filter OrderFilter) ([]Order, error)
	UpdateOrder(ctx context.Context, order Order) error
	// DeleteOrder удаляет заказ вместе с позициями.
	DeleteOrder(ctx context.Context, id string) error
	// CountPendingOrders считает Pending-заказы пользователя, не учитывая excludeOrderID.
	CountPendingOrders(ctx context.Context, userID, excludeOrderID string) (int, error)
}

// CartItemFilter ограничивает выборку позиций.
type CartItemFilter struct {
	OrderID string
	// PendingOnly оставляет только позиции заказов в статусе Pending.
	PendingOnly bool
}

// CartItemRepository описывает хранилище позиций заказа.
type CartItemRepository interface {
	CreateCartItem(ctx context.Context, item CartItem) error
	GetCartItem(ctx context.Context, id string) (CartItem, error)
	ListCartItems(ctx context.Context, filter CartItemFilter) ([]CartItem, error)
	UpdateCartItem(ctx context.Context, item CartItem) error
	DeleteCartItem(ctx context.Context, id string) error
	CountCartItems(ctx context.Context, orderID string) (int, error)
}

// TimelineRepository хранит события жизненного цикла заказа.
type TimelineRepository interface {
	AppendTimeline(ctx context.Context, event TimelineEvent) error
	ListTimeline(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// OutboxWriter добавляет события в transactional outbox в рамках той же транзакции.
type OutboxWriter interface {
	EnqueueOutbox(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
}

// Tx - единица работы. Все проверки инвариантов и запись идут через один Tx.
type Tx interface {
	UserRepository
	CredentialRepository
	OrderRepository
	CartItemRepository
	TimelineRepository
	OutboxWriter
}

// Store - хранилище сущностей.
type Store interface {
	// WithinTx выполняет fn в транзакции: ошибка fn откатывает все записи.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// OutboxRepository используется воркером публикации.
type OutboxRepository interface {
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, event OutboxMessage) error
}
