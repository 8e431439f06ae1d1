package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vladislavdragonenkov/orderdesk/internal/auth"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/httpapi"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/orders"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	entry := log.NewEntry(logger)

	hasher := auth.BcryptHasher{Cost: bcrypt.MinCost}
	svc := orders.NewService(memory.NewStore(), orders.WithLogger(entry), orders.WithPasswordHasher(hasher))
	tokens, err := auth.NewTokenIssuer(strings.Repeat("t", 32), time.Hour)
	require.NoError(t, err)
	authenticator := auth.NewAuthenticator(svc, hasher, tokens, auth.NewMemorySessions(), entry)

	server := httptest.NewServer(httpapi.New(svc, authenticator, nil, httpapi.Config{}, entry).Handler())
	t.Cleanup(server.Close)
	return server
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(nil, io.Discard)
	require.NoError(t, err)
	require.Equal(t, modeCheckout, cfg.mode)
	require.Equal(t, 200, cfg.total)
	require.False(t, cfg.totalSet)
	require.Equal(t, "9.99", cfg.price.StringFixed(2))
}

func TestParseConfig_Errors(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-mode=pay"}, "unsupported mode"},
		{[]string{"-price=abc"}, "parse price"},
		{[]string{"-price=0"}, "price must be > 0"},
		{[]string{"-total=0"}, "total must be > 0 when duration is not set"},
		{[]string{"-duration=1s", "-total=0"}, "total must be > 0 when explicitly set"},
		{[]string{"-concurrency=0"}, "concurrency must be > 0"},
		{[]string{"-items=0"}, "items must be > 0"},
		{[]string{"-mode=race", "-race-width=1"}, "race-width must be >= 2"},
		{[]string{"-user-tag= "}, "user-tag is required"},
	}
	for _, tt := range tests {
		_, err := parseConfig(tt.args, io.Discard)
		require.ErrorContains(t, err, tt.want, "args %v", tt.args)
	}

	cfg, err := parseConfig([]string{"-duration=1s"}, io.Discard)
	require.NoError(t, err)
	require.Equal(t, "duration:1s", runTarget(cfg))
}

func TestRunLoad_Checkout(t *testing.T) {
	server := newTestServer(t)
	cfg, err := parseConfig([]string{"-url=" + server.URL, "-total=6", "-concurrency=3", "-items=2"}, io.Discard)
	require.NoError(t, err)

	result := runLoad(context.Background(), cfg)

	require.EqualValues(t, 6, result.TotalScenarios)
	require.EqualValues(t, 0, result.FailedScenarios, "methods: %+v", result.Methods)
	require.EqualValues(t, 12, result.Methods["CreateCartItem"].Calls)
	require.EqualValues(t, 6, result.Methods["Checkout"].Codes["200"])
}

func TestRunLoad_RaceHasSingleWinner(t *testing.T) {
	server := newTestServer(t)
	cfg, err := parseConfig([]string{"-url=" + server.URL, "-mode=race", "-total=4", "-concurrency=2", "-race-width=6"}, io.Discard)
	require.NoError(t, err)

	result := runLoad(context.Background(), cfg)

	require.EqualValues(t, 4, result.TotalScenarios)
	require.EqualValues(t, 0, result.FailedScenarios, "methods: %+v", result.Methods)
	checkout := result.Methods["Checkout"]
	require.EqualValues(t, 24, checkout.Calls)
	require.EqualValues(t, 4, checkout.Success)
}

func TestRunScenario_ReportsHTTPStatus(t *testing.T) {
	server := newTestServer(t)
	col := newCollector()
	client := newAPIClient(server.URL, time.Second, 2, col)
	cfg := config{mode: modeCheckout, items: 1, userTag: "dup"}

	require.NoError(t, runScenario(context.Background(), client, cfg, 1, "run"))
	err := runScenario(context.Background(), client, cfg, 1, "run")

	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "400", scenarioCode(err))
	require.EqualValues(t, 1, col.buildReport(time.Now(), time.Second).Methods[scenarioMethod].Codes["400"])
}

func TestScenarioCode(t *testing.T) {
	require.Equal(t, "ok", scenarioCode(nil))
	require.Equal(t, "race_violation", scenarioCode(errRaceViolation))
	require.Equal(t, "409", scenarioCode(&apiError{status: 409}))
	require.Equal(t, codeTransportError, scenarioCode(errors.New("dial tcp")))
}

func TestBuildLatencySummary(t *testing.T) {
	require.Equal(t, latencySummary{}, buildLatencySummary(nil))

	summary := buildLatencySummary([]float64{4, 1, 3, 2, 5})
	require.Equal(t, 1.0, summary.Min)
	require.Equal(t, 5.0, summary.Max)
	require.Equal(t, 3.0, summary.Avg)
	require.Equal(t, 3.0, summary.P50)
	require.InDelta(t, 4.8, summary.P95, 1e-9)
}

func TestCollectorReport(t *testing.T) {
	col := newCollector()
	col.record(scenarioMethod, 10*time.Millisecond, "ok", true)
	col.record(scenarioMethod, 30*time.Millisecond, "400", false)
	col.record("Checkout", 5*time.Millisecond, "200", true)

	result := col.buildReport(time.Unix(0, 0), 2*time.Second)
	require.EqualValues(t, 2, result.TotalScenarios)
	require.EqualValues(t, 1, result.FailedScenarios)
	require.Equal(t, 0.5, result.ErrorRate)
	require.Equal(t, 1.0, result.RPS)
	require.Equal(t, 20.0, result.ScenarioLatencyMs.Avg)

	var out strings.Builder
	printReport(&out, result, config{mode: modeCheckout, total: 2})
	require.Contains(t, out.String(), "mode=checkout run=count:2 total=2 success=1 failed=1")
	require.Contains(t, out.String(), "Checkout: calls=1")
}

func TestWriteJSONReport(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.Error(t, writeJSONReport(".", report{}))
	require.Error(t, writeJSONReport("../escape.json", report{}))

	require.NoError(t, writeJSONReport("report.json", report{TotalScenarios: 3}))
	raw, err := os.ReadFile(filepath.Join(dir, "report.json"))
	require.NoError(t, err)

	var decoded report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.EqualValues(t, 3, decoded.TotalScenarios)
}
