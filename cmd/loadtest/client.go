package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const codeTransportError = "transport_error"

// apiClient ходит в HTTP API и пишет каждый вызов в collector.
type apiClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
	col     *collector
}

func newAPIClient(baseURL string, timeout time.Duration, maxConns int, col *collector) *apiClient {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = maxConns
	transport.MaxIdleConnsPerHost = maxConns
	transport.MaxConnsPerHost = maxConns

	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: transport},
		timeout: timeout,
		col:     col,
	}
}

type apiError struct {
	method string
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.method, e.status, e.body)
}

// call выполняет запрос. want - ожидаемый статус, иначе возвращается *apiError.
func (c *apiClient) call(ctx context.Context, name, method, path, token string, body any, want int, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("%s: marshal request: %w", name, err)
		}
		reader = bytes.NewReader(raw)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("%s: build request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.col.record(name, time.Since(start), codeTransportError, false)
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	defer resp.Body.Close()
	raw, readErr := io.ReadAll(resp.Body)
	c.col.record(name, time.Since(start), strconv.Itoa(resp.StatusCode), resp.StatusCode == want)

	if readErr != nil {
		return resp.StatusCode, fmt.Errorf("%s: read response: %w", name, readErr)
	}
	if resp.StatusCode != want {
		return resp.StatusCode, &apiError{method: name, status: resp.StatusCode, body: strings.TrimSpace(string(raw))}
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%s: decode response: %w", name, err)
		}
	}
	return resp.StatusCode, nil
}

type idResponse struct {
	ID string `json:"id"`
}

func (c *apiClient) signUp(ctx context.Context, name, email, password string) (string, error) {
	var out idResponse
	_, err := c.call(ctx, "CreateUser", http.MethodPost, "/users/", "", map[string]any{
		"name": name, "email": email, "password": password,
	}, http.StatusCreated, &out)
	return out.ID, err
}

func (c *apiClient) login(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	_, err := c.call(ctx, "Login", http.MethodPost, "/login/", "", map[string]any{
		"username": email, "password": password,
	}, http.StatusOK, &out)
	return out.Token, err
}

func (c *apiClient) createOrder(ctx context.Context, token string) (string, error) {
	var out idResponse
	_, err := c.call(ctx, "CreateOrder", http.MethodPost, "/orders/", token, nil, http.StatusCreated, &out)
	return out.ID, err
}

func (c *apiClient) addItem(ctx context.Context, token, orderID, product string, quantity int, price string) error {
	_, err := c.call(ctx, "CreateCartItem", http.MethodPost, "/cart-items/", token, map[string]any{
		"order": orderID, "product_name": product, "quantity": quantity, "price": price,
	}, http.StatusCreated, nil)
	return err
}

func (c *apiClient) checkout(ctx context.Context, token, orderID string) (int, error) {
	return c.call(ctx, "Checkout", http.MethodPost, "/checkout/", token, map[string]any{
		"order_id": orderID,
	}, http.StatusOK, nil)
}
