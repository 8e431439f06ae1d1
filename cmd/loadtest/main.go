// Команда loadtest гоняет сценарий «регистрация, вход, заказ, позиции, checkout»
// против HTTP API. Режим race дополнительно бьёт параллельными checkout по одному
// заказу и проверяет, что ровно один из них успешен.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
)

type loadMode string

const (
	modeCheckout loadMode = "checkout"
	modeRace     loadMode = "race"
)

const loadPassword = "load-test-password"

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	items       int
	price       decimal.Decimal
	raceWidth   int
	userTag     string
	outputPath  string
}

func parseConfig(args []string, output io.Writer) (config, error) {
	var (
		cfg       config
		modeValue string
		priceRaw  string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8000", "HTTP API base URL")
	fs.IntVar(&cfg.total, "total", 200, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 20, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCheckout), "load mode: checkout | race")
	fs.IntVar(&cfg.items, "items", 2, "cart items per order")
	fs.StringVar(&priceRaw, "price", "9.99", "cart item price")
	fs.IntVar(&cfg.raceWidth, "race-width", 8, "parallel checkout requests per order in race mode")
	fs.StringVar(&cfg.userTag, "user-tag", "load", "email prefix for generated users")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode

	price, err := decimal.NewFromString(strings.TrimSpace(priceRaw))
	if err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}
	cfg.price = price

	switch {
	case strings.TrimSpace(cfg.baseURL) == "":
		return cfg, errors.New("url is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.items <= 0:
		return cfg, errors.New("items must be > 0")
	case !cfg.price.IsPositive():
		return cfg, errors.New("price must be > 0")
	case cfg.mode == modeRace && cfg.raceWidth < 2:
		return cfg, errors.New("race-width must be >= 2")
	case strings.TrimSpace(cfg.userTag) == "":
		return cfg, errors.New("user-tag is required")
	}
	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCheckout:
		return modeCheckout, nil
	case modeRace:
		return modeRace, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := runLoad(ctx, cfg)
	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}
	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func runLoad(ctx context.Context, cfg config) report {
	startedAt := time.Now()
	runID := strconv.FormatInt(startedAt.UnixNano(), 36)
	col := newCollector()
	client := newAPIClient(cfg.baseURL, cfg.timeout, cfg.concurrency*max(cfg.raceWidth, 1), col)

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				_ = runScenario(ctx, client, cfg, id, runID)
			}
		}()
	}

	dispatchJobs(ctx, jobs, cfg)
	wg.Wait()

	return col.buildReport(startedAt, time.Since(startedAt))
}

func dispatchJobs(ctx context.Context, jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}
	limited := cfg.duration <= 0 || cfg.totalSet

	for i := 0; !limited || i < cfg.total; i++ {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}

func runScenario(ctx context.Context, client *apiClient, cfg config, index int, runID string) (err error) {
	start := time.Now()
	defer func() {
		client.col.record(scenarioMethod, time.Since(start), scenarioCode(err), err == nil)
	}()

	email := fmt.Sprintf("%s-%s-%d@load.test", cfg.userTag, runID, index)
	if _, err := client.signUp(ctx, fmt.Sprintf("Load %d", index), email, loadPassword); err != nil {
		return err
	}
	token, err := client.login(ctx, email, loadPassword)
	if err != nil {
		return err
	}
	orderID, err := client.createOrder(ctx, token)
	if err != nil {
		return err
	}
	for i := 0; i < cfg.items; i++ {
		if err := client.addItem(ctx, token, orderID, fmt.Sprintf("SKU-%d", i), i+1, cfg.price.StringFixed(2)); err != nil {
			return err
		}
	}

	if cfg.mode == modeRace {
		return raceCheckout(ctx, client, token, orderID, cfg.raceWidth)
	}
	_, err = client.checkout(ctx, token, orderID)
	return err
}

var errRaceViolation = errors.New("race violation")

// raceCheckout шлёт width одновременных checkout одного заказа.
// Успешным должен оказаться ровно один.
func raceCheckout(ctx context.Context, client *apiClient, token, orderID string, width int) error {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		winners  int
		failures []error
		start    = make(chan struct{})
	)
	for i := 0; i < width; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			status, err := client.checkout(ctx, token, orderID)
			mu.Lock()
			defer mu.Unlock()
			var apiErr *apiError
			switch {
			case err == nil:
				winners++
			case errors.As(err, &apiErr) && status < 500:
			default:
				failures = append(failures, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	if winners != 1 {
		return fmt.Errorf("%w: %d of %d checkouts succeeded for order %s", errRaceViolation, winners, width, orderID)
	}
	return nil
}

func scenarioCode(err error) string {
	var apiErr *apiError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, errRaceViolation):
		return "race_violation"
	case errors.As(err, &apiErr):
		return strconv.Itoa(apiErr.status)
	default:
		return codeTransportError
	}
}
