package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (a *API) listUsers(c *gin.Context) {
	users, err := a.orders.ListUsers(c.Request.Context())
	if err != nil {
		a.writeError(c, err)
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, newUserResponse(u))
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) createUser(c *gin.Context) {
	var req userRequest
	if err := bindBody(c, &req); err != nil {
		a.writeError(c, bindError(err))
		return
	}
	user, err := a.orders.CreateUser(c.Request.Context(), req.input())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newUserResponse(user))
}

func (a *API) getUser(c *gin.Context) {
	user, err := a.orders.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(user))
}

func (a *API) updateUser(partial bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req userRequest
		if err := bindBody(c, &req); err != nil {
			a.writeError(c, bindError(err))
			return
		}
		user, err := a.orders.UpdateUser(c.Request.Context(), c.Param("id"), req.input(), partial)
		if err != nil {
			a.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newUserResponse(user))
	}
}

func (a *API) deleteUser(c *gin.Context) {
	if err := a.orders.DeleteUser(c.Request.Context(), c.Param("id")); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) listOwnOrders(c *gin.Context) {
	list, err := a.orders.ListOrdersFor(c.Request.Context(), principalFrom(c))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponses(list))
}

// createOwnOrder создаёт заказ вызывающему; поле user из тела игнорируется.
func (a *API) createOwnOrder(c *gin.Context) {
	var req orderRequest
	if err := bindBody(c, &req); err != nil {
		a.writeError(c, bindError(err))
		return
	}
	order, err := a.orders.CreateOrderFor(c.Request.Context(), principalFrom(c), req.input())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newOrderResponse(order))
}

func (a *API) getOrder(c *gin.Context) {
	order, err := a.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newOrderResponse(order))
}

func (a *API) updateOrder(partial bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req orderRequest
		if err := bindBody(c, &req); err != nil {
			a.writeError(c, bindError(err))
			return
		}
		order, err := a.orders.UpdateOrder(c.Request.Context(), c.Param("id"), req.input(), partial)
		if err != nil {
			a.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newOrderResponse(order))
	}
}

func (a *API) deleteOrder(c *gin.Context) {
	if err := a.orders.DeleteOrder(c.Request.Context(), c.Param("id")); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) orderTimeline(c *gin.Context) {
	events, err := a.orders.Timeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newTimelineResponse(events))
}

func (a *API) checkoutOrder(c *gin.Context) {
	a.runCheckout(c, c.Param("id"))
}

func (a *API) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := bindBody(c, &req); err != nil {
		a.writeError(c, bindError(err))
		return
	}
	a.runCheckout(c, req.orderID())
}

func (a *API) runCheckout(c *gin.Context, orderID string) {
	result, err := a.orders.Checkout(c.Request.Context(), orderID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCheckoutResponse(result))
}

func (a *API) listCartItems(c *gin.Context) {
	items, err := a.orders.ListCartItems(c.Request.Context(), c.Query("order_id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	out := make([]cartItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, newCartItemResponse(item))
	}
	c.JSON(http.StatusOK, out)
}

func (a *API) createCartItem(c *gin.Context) {
	var req cartItemRequest
	if err := bindBody(c, &req); err != nil {
		a.writeError(c, bindError(err))
		return
	}
	item, err := a.orders.CreateCartItem(c.Request.Context(), req.input())
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newCartItemResponse(item))
}

func (a *API) getCartItem(c *gin.Context) {
	item, err := a.orders.GetCartItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCartItemResponse(item))
}

func (a *API) updateCartItem(partial bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req cartItemRequest
		if err := bindBody(c, &req); err != nil {
			a.writeError(c, bindError(err))
			return
		}
		item, err := a.orders.UpdateCartItem(c.Request.Context(), c.Param("id"), req.input(), partial)
		if err != nil {
			a.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, newCartItemResponse(item))
	}
}

func (a *API) deleteCartItem(c *gin.Context) {
	if err := a.orders.DeleteCartItem(c.Request.Context(), c.Param("id")); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) login(c *gin.Context) {
	var req loginRequest
	if err := bindBody(c, &req); err != nil {
		a.writeError(c, bindError(err))
		return
	}
	session, err := a.auth.Login(c.Request.Context(), req.login(), req.Password)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{
		Token:     session.Token,
		UserID:    session.UserID,
		Username:  session.Username,
		ExpiresAt: session.ExpiresAt,
	})
}

func (a *API) logout(c *gin.Context) {
	if err := a.auth.Logout(c.Request.Context(), c.GetString(tokenKey)); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// bindBody разбирает JSON-тело. Пустое тело равносильно {}.
func bindBody(c *gin.Context, dst any) error {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(dst)
}
