package httpapi

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/orders"
)

// nullableString различает отсутствующее поле, null и строку.
type nullableString struct {
	set   bool
	value *string
}

func (n *nullableString) UnmarshalJSON(data []byte) error {
	n.set = true
	if bytes.Equal(data, []byte("null")) {
		n.value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	n.value = &s
	return nil
}

func (n nullableString) input() orders.NullableString {
	return orders.NullableString{Set: n.set, Value: n.value}
}

type userRequest struct {
	Name        *string        `json:"name"`
	Email       *string        `json:"email"`
	Address     nullableString `json:"address"`
	PhoneNumber nullableString `json:"phone_number"`
	Password    *string        `json:"password"`
}

func (r userRequest) input() orders.UserInput {
	return orders.UserInput{
		Name:        r.Name,
		Email:       r.Email,
		Address:     r.Address.input(),
		PhoneNumber: r.PhoneNumber.input(),
		Password:    r.Password,
	}
}

type userResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Email       string    `json:"email"`
	Address     *string   `json:"address"`
	PhoneNumber *string   `json:"phone_number"`
	CreatedAt   time.Time `json:"created_at"`
}

func newUserResponse(u domain.User) userResponse {
	return userResponse{
		ID:          u.ID,
		Name:        u.Name,
		Email:       u.Email,
		Address:     u.Address,
		PhoneNumber: u.PhoneNumber,
		CreatedAt:   u.CreatedAt,
	}
}

type orderRequest struct {
	User   *string `json:"user"`
	Status *string `json:"status"`
}

func (r orderRequest) input() orders.OrderInput {
	return orders.OrderInput{UserID: r.User, Status: r.Status}
}

type orderResponse struct {
	ID        string             `json:"id"`
	User      string             `json:"user"`
	Status    string             `json:"status"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
	CartItems []cartItemResponse `json:"cart_items"`
	Total     string             `json:"total"`
}

func newOrderResponse(o domain.Order) orderResponse {
	items := make([]cartItemResponse, 0, len(o.CartItems))
	total := decimal.Zero
	for _, item := range o.CartItems {
		items = append(items, newCartItemResponse(item))
		total = total.Add(item.Subtotal())
	}
	return orderResponse{
		ID:        o.ID,
		User:      o.UserID,
		Status:    string(o.Status),
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
		CartItems: items,
		Total:     total.StringFixed(2),
	}
}

func newOrderResponses(list []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(list))
	for _, o := range list {
		out = append(out, newOrderResponse(o))
	}
	return out
}

// cartItemRequest принимает price и строкой, и числом.
type cartItemRequest struct {
	Order       *string          `json:"order"`
	ProductName *string          `json:"product_name"`
	Quantity    *int             `json:"quantity"`
	Price       *decimal.Decimal `json:"price"`
}

func (r cartItemRequest) input() orders.CartItemInput {
	return orders.CartItemInput{
		OrderID:     r.Order,
		ProductName: r.ProductName,
		Quantity:    r.Quantity,
		Price:       r.Price,
	}
}

type cartItemResponse struct {
	ID          string `json:"id"`
	Order       string `json:"order"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
}

func newCartItemResponse(c domain.CartItem) cartItemResponse {
	return cartItemResponse{
		ID:          c.ID,
		Order:       c.OrderID,
		ProductName: c.ProductName,
		Quantity:    c.Quantity,
		Price:       c.Price.StringFixed(2),
	}
}

// checkoutRequest принимает order_id и устаревшее имя orderID.
type checkoutRequest struct {
	OrderID       string `json:"order_id"`
	LegacyOrderID string `json:"orderID"`
}

func (r checkoutRequest) orderID() string {
	if r.OrderID != "" {
		return r.OrderID
	}
	return r.LegacyOrderID
}

type checkoutResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func newCheckoutResponse(r orders.CheckoutResult) checkoutResponse {
	return checkoutResponse{OrderID: r.OrderID, Status: string(r.Status), Message: r.Message}
}

// loginRequest: username - это email пользователя, поле email принимается как синоним.
type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r loginRequest) login() string {
	if r.Username != "" {
		return r.Username
	}
	return r.Email
}

type loginResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

type timelineEventResponse struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason"`
	Occurred time.Time `json:"occurred"`
}

func newTimelineResponse(events []domain.TimelineEvent) []timelineEventResponse {
	out := make([]timelineEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, timelineEventResponse{Type: e.Type, Reason: e.Reason, Occurred: e.Occurred})
	}
	return out
}
