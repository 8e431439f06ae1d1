package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func serve(t *testing.T, handler http.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewFuncChecker("storage", ok))

	rec := serve(t, handler.ServeHTTP, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var response Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	require.Equal(t, StatusHealthy, response.Status)
	require.Equal(t, "v1.0.0", response.Version)
	require.Len(t, response.Checks, 1)
}

func TestHealthHandler_CriticalFailure(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewFuncChecker("storage", failing))
	handler.RegisterOptional("sessions", NewFuncChecker("sessions", ok))

	rec := serve(t, handler.ServeHTTP, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var response Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
	require.Equal(t, StatusUnhealthy, response.Status)
	require.Equal(t, "connection refused", response.Checks["storage"].Message)

	rec = serve(t, handler.ReadinessHandler, "/readyz")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "not ready", rec.Body.String())
}

func TestHealthHandler_OptionalFailureDegrades(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("storage", NewFuncChecker("storage", ok))
	handler.RegisterOptional("kafka", NewFuncChecker("kafka", failing))

	response := handler.Evaluate(context.Background())
	require.Equal(t, StatusDegraded, response.Status)
	require.Equal(t, StatusDegraded, response.Checks["kafka"].Status)

	rec := serve(t, handler.ReadinessHandler, "/readyz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ready", rec.Body.String())
}

func TestHealthHandler_CheckTimeout(t *testing.T) {
	handler := NewHandler("dev")
	handler.timeout = 20 * time.Millisecond
	handler.RegisterChecker("slow", NewFuncChecker("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	start := time.Now()
	response := handler.Evaluate(context.Background())
	require.Less(t, time.Since(start), time.Second)
	require.Equal(t, StatusUnhealthy, response.Status)
	require.Equal(t, context.DeadlineExceeded.Error(), response.Checks["slow"].Message)
}

func TestLivenessHandler(t *testing.T) {
	rec := serve(t, LivenessHandler, "/livez")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
