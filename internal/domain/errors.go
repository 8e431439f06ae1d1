package domain

import "errors"

// Базовые виды ошибок. Конкретные ошибки оборачивают один из них,
// транспортный слой определяет ответ через errors.Is.
var (
	// ErrValidation - нарушен инвариант или не заполнено обязательное поле.
	ErrValidation = errors.New("validation error")
	// ErrNotFound - сущность по идентификатору не найдена.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState - операция недопустима в текущем статусе заказа.
	ErrInvalidState = errors.New("invalid state")
	// ErrEmptyOrder - checkout заказа без позиций.
	ErrEmptyOrder = errors.New("empty order")
	// ErrAuthentication - неверные учётные данные.
	ErrAuthentication = errors.New("authentication failed")
	// ErrUnauthorized - нет или недействителен bearer-токен.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrConflict - конкурентная запись была отклонена хранилищем, клиент может повторить запрос.
	ErrConflict = errors.New("conflicting write")
)

// FieldError описывает нарушение валидации, привязанное к полю (или ко всему объекту, если Field пуст).
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Unwrap позволяет сопоставлять любые FieldError с ErrValidation.
func (e *FieldError) Unwrap() error {
	return ErrValidation
}

// NewFieldError создаёт ошибку валидации поля.
func NewFieldError(field, message string) *FieldError {
	return &FieldError{Field: field, Message: message}
}

// stateError - ошибка конкретного вида с собственным текстом.
type stateError struct {
	kind    error
	message string
}

func (e *stateError) Error() string { return e.message }

func (e *stateError) Unwrap() error { return e.kind }

var (
	// ErrPendingOrderExists - у пользователя уже есть другой заказ в статусе Pending.
	ErrPendingOrderExists = NewFieldError("status", "user can only have one pending order")
	// ErrMultiplePendingOrders - пользователь владеет несколькими Pending-заказами, сохранение запрещено.
	ErrMultiplePendingOrders = NewFieldError("", "user already has more than one pending order")
	// ErrQuantityInvalid - количество должно быть больше нуля.
	ErrQuantityInvalid = NewFieldError("quantity", "quantity must be greater than zero")
	// ErrQuantityTooLarge - количество не помещается в INTEGER.
	ErrQuantityTooLarge = NewFieldError("quantity", "quantity must be at most 2147483647")
	// ErrPriceInvalid - цена должна быть больше нуля.
	ErrPriceInvalid = NewFieldError("price", "price must be greater than zero")
	// ErrPriceTooPrecise - цена не помещается в decimal(10,2).
	ErrPriceTooPrecise = NewFieldError("price", "price must have at most 10 digits and 2 decimal places")
	// ErrProductNameRequired - не указано название товара.
	ErrProductNameRequired = NewFieldError("product_name", "product_name is required")
	// ErrStatusInvalid - неизвестное значение статуса.
	ErrStatusInvalid = NewFieldError("status", "status must be one of Pending, Processed, Cancelled")
	// ErrUserRequired - у заказа не указан владелец.
	ErrUserRequired = NewFieldError("user", "user is required")
	// ErrUserUnknown - владелец заказа не существует.
	ErrUserUnknown = NewFieldError("user", "user does not exist")
	// ErrOrderRequired - у позиции не указан заказ.
	ErrOrderRequired = NewFieldError("order", "order is required")
	// ErrOrderUnknown - заказ позиции не существует.
	ErrOrderUnknown = NewFieldError("order", "order does not exist")
	// ErrNameRequired - у пользователя не указано имя.
	ErrNameRequired = NewFieldError("name", "name is required")
	// ErrNameTooLong - имя длиннее 255 символов.
	ErrNameTooLong = NewFieldError("name", "name must be at most 255 characters")
	// ErrEmailRequired - у пользователя не указан email.
	ErrEmailRequired = NewFieldError("email", "email is required")
	// ErrEmailInvalid - email не похож на адрес.
	ErrEmailInvalid = NewFieldError("email", "enter a valid email address")
	// ErrEmailTaken - email уже занят другим пользователем.
	ErrEmailTaken = NewFieldError("email", "user with this email already exists")
	// ErrPhoneTooLong - телефон длиннее 15 символов.
	ErrPhoneTooLong = NewFieldError("phone_number", "phone_number must be at most 15 characters")
	// ErrPasswordTooShort - пароль короче 8 символов.
	ErrPasswordTooShort = NewFieldError("password", "password must be at least 8 characters")
	// ErrPasswordTooLong - пароль длиннее 72 байт, bcrypt его не примет.
	ErrPasswordTooLong = NewFieldError("password", "password must be at most 72 bytes")
	// ErrOrderIDRequired - в запросе checkout нет идентификатора заказа.
	ErrOrderIDRequired = NewFieldError("order_id", "order ID is required")

	// ErrUserNotFound возвращается, если пользователя нет в хранилище.
	ErrUserNotFound = &stateError{kind: ErrNotFound, message: "user not found"}
	// ErrOrderNotFound возвращается, если заказа нет в хранилище.
	ErrOrderNotFound = &stateError{kind: ErrNotFound, message: "order not found"}
	// ErrCartItemNotFound возвращается, если позиции нет в хранилище.
	ErrCartItemNotFound = &stateError{kind: ErrNotFound, message: "cart item not found"}

	// ErrOrderAlreadyProcessed - повторный checkout уже обработанного заказа.
	ErrOrderAlreadyProcessed = &stateError{kind: ErrInvalidState, message: "order is already processed"}
	// ErrOrderNotPending - checkout заказа в статусе, отличном от Pending.
	ErrOrderNotPending = &stateError{kind: ErrInvalidState, message: "only pending orders can be checked out"}
	// ErrOrderLocked - изменение позиций заказа, который уже не в статусе Pending.
	ErrOrderLocked = &stateError{kind: ErrInvalidState, message: "cart items can only be changed while the order is pending"}
	// ErrNoCartItems - checkout заказа без позиций.
	ErrNoCartItems = &stateError{kind: ErrEmptyOrder, message: "no cart items found for this order"}

	// ErrInvalidCredentials - неверная пара логин/пароль.
	ErrInvalidCredentials = &stateError{kind: ErrAuthentication, message: "invalid credentials"}
	// ErrTokenMissing - запрос к защищённому endpoint без токена.
	ErrTokenMissing = &stateError{kind: ErrUnauthorized, message: "authentication credentials were not provided"}
	// ErrTokenInvalid - токен не прошёл проверку или отозван.
	ErrTokenInvalid = &stateError{kind: ErrUnauthorized, message: "invalid or expired token"}
)

// Kind - машинно-различимый вид ошибки для ответов API.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindNotFound       Kind = "not_found"
	KindInvalidState   Kind = "invalid_state"
	KindEmptyOrder     Kind = "empty_order"
	KindAuthentication Kind = "authentication_error"
	KindUnauthorized   Kind = "unauthorized"
	KindConflict       Kind = "conflict"
	KindInternal       Kind = "server_error"
)

// KindOf классифицирует ошибку. Неизвестные ошибки считаются внутренними.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrEmptyOrder):
		return KindEmptyOrder
	case errors.Is(err, ErrAuthentication):
		return KindAuthentication
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	case errors.Is(err, ErrConflict):
		return KindConflict
	default:
		return KindInternal
	}
}

// FieldOf возвращает имя поля, если ошибка привязана к полю.
func FieldOf(err error) string {
	var fieldErr *FieldError
	if errors.As(err, &fieldErr) {
		return fieldErr.Field
	}
	return ""
}

// JoinValidation объединяет список ошибок валидации в одну (nil для пустого списка).
func JoinValidation(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}
