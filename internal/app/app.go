// Package app собирает сервис заказов из конфигурации: хранилище, сессии,
// Kafka, HTTP API, сервер метрик и health, опциональный gRPC health.
package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/auth"
	healthcheck "github.com/vladislavdragonenkov/orderdesk/internal/health"
	"github.com/vladislavdragonenkov/orderdesk/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orderdesk/internal/metrics"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/httpapi"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/orders"
	"github.com/vladislavdragonenkov/orderdesk/internal/service/outbox"
	"github.com/vladislavdragonenkov/orderdesk/internal/version"
)

const apiReadHeaderTimeout = 10 * time.Second

// application - собранный, но ещё не запущенный сервис.
type application struct {
	cfg      Config
	logger   *log.Entry
	registry *prometheus.Registry

	deps     *runtimeDependencies
	producer *kafka.Producer

	service *orders.Service
	health  *healthcheck.Handler
	api     http.Handler
	worker  *outbox.Worker
}

func newApplication(ctx context.Context, cfg Config, logger *log.Entry) (*application, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &application{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		deps:     deps,
	}

	hasher := auth.BcryptHasher{}
	a.service = orders.NewService(deps.store,
		orders.WithLogger(logger.WithField("layer", "orders")),
		orders.WithMetrics(metrics.NewOrderMetricsWithRegisterer(registry)),
		orders.WithPasswordHasher(hasher),
	)

	secret := cfg.JWTSecret
	if secret == "" {
		if secret, err = randomSecret(); err != nil {
			a.close()
			return nil, err
		}
		logger.Warn("jwt secret is not configured, tokens will not survive a restart")
	}
	tokens, err := auth.NewTokenIssuer(secret, cfg.TokenTTL)
	if err != nil {
		a.close()
		return nil, err
	}
	authenticator := auth.NewAuthenticator(a.service, hasher, tokens, deps.sessions, logger.WithField("layer", "auth"))

	a.api = httpapi.New(a.service, authenticator, metrics.NewHTTPMetrics(registry), httpapi.Config{
		RequireAuth: cfg.AuthRequireAll,
		CORSOrigins: cfg.CORSOrigins,
	}, logger.WithField("layer", "http")).Handler()

	a.health = healthcheck.NewHandler(version.GetVersion())
	a.health.RegisterChecker("storage", deps.storageChecker)
	if deps.sessionsChecker != nil {
		a.health.RegisterChecker("sessions", deps.sessionsChecker)
	}
	if cfg.OutboxMaxPending > 0 {
		a.health.RegisterOptional("outbox", healthcheck.NewFuncChecker("outbox", a.outboxBacklogCheck))
	}

	// Kafka необязательна: без неё сервис работает, события ждут в outbox.
	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err == nil && producer != nil {
		a.producer = producer
		a.worker = outbox.NewWorker(deps.outboxRepo, kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithMetrics(metrics.NewOutboxMetrics(registry)),
			outbox.WithDLQPublisher(kafka.NewDLQPublisher(producer)),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
			outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
		)
	} else {
		logger.Info("outbox publishing disabled")
	}

	return a, nil
}

func (a *application) outboxBacklogCheck(ctx context.Context) error {
	stats, err := a.deps.outboxRepo.Stats(ctx)
	if err != nil {
		return err
	}
	if stats.PendingCount > a.cfg.OutboxMaxPending {
		return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, a.cfg.OutboxMaxPending)
	}
	return nil
}

func (a *application) close() {
	closeKafka(a.producer, a.logger)
	a.producer = nil
	if err := a.deps.Close(); err != nil {
		a.logger.WithError(err).Warn("failed to close runtime dependencies")
	}
}

// Run поднимает сервис и блокируется до отмены ctx или падения HTTP API.
func Run(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := log.WithField("component", "app")

	a, err := newApplication(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	lis, err := a.listen()
	if err != nil {
		return err
	}
	return a.serve(ctx, lis)
}

type listeners struct {
	api, metrics, grpc net.Listener
}

func (l listeners) close() {
	for _, lis := range []net.Listener{l.api, l.metrics, l.grpc} {
		if lis != nil {
			_ = lis.Close()
		}
	}
}

func (a *application) listen() (listeners, error) {
	var (
		l   listeners
		err error
	)
	if l.api, err = net.Listen("tcp", a.cfg.HTTPAddr); err != nil {
		return listeners{}, fmt.Errorf("listen http api: %w", err)
	}
	if l.metrics, err = net.Listen("tcp", a.cfg.MetricsAddr); err != nil {
		l.close()
		return listeners{}, fmt.Errorf("listen metrics: %w", err)
	}
	if a.cfg.GRPCHealthAddr != "" {
		if l.grpc, err = net.Listen("tcp", a.cfg.GRPCHealthAddr); err != nil {
			l.close()
			return listeners{}, fmt.Errorf("listen grpc health: %w", err)
		}
	}
	return l, nil
}

func (a *application) serve(ctx context.Context, l listeners) error {
	logger := a.logger

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	var workerWG sync.WaitGroup
	if a.worker != nil {
		workerWG.Add(1)
		go func() {
			defer workerWG.Done()
			a.worker.Run(workerCtx)
		}()
	}

	metricsSrv := startMetricsServer(ctx, l.metrics, a.registry, a.health, logger)

	var grpcHealth *grpcHealthServer
	if l.grpc != nil {
		grpcHealth = startGRPCHealthServer(ctx, l.grpc, a.registry, a.health, logger)
	}

	apiSrv := &http.Server{Handler: a.api, ReadHeaderTimeout: apiReadHeaderTimeout}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", l.api.Addr())
		errCh <- apiSrv.Serve(l.api)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownHTTP(apiSrv, a.cfg.ShutdownTimeout, logger)
	grpcHealth.stop(a.cfg.ShutdownTimeout, logger)
	shutdownHTTP(metricsSrv, a.cfg.ShutdownTimeout, logger)

	stopWorker()
	workerWG.Wait()
	return runErr
}

func randomSecret() (string, error) {
	buf := make([]byte, minJWTSecretLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate jwt secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
