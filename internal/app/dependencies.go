package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/auth"
	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/orderdesk/internal/health"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/memory"
	"github.com/vladislavdragonenkov/orderdesk/internal/storage/postgres"
)

const redisDialTimeout = 3 * time.Second

// runtimeDependencies - хранилище и реестр сессий, выбранные по конфигурации.
type runtimeDependencies struct {
	store      domain.Store
	outboxRepo domain.OutboxRepository
	sessions   auth.SessionStore

	storageChecker  healthcheck.Checker
	sessionsChecker healthcheck.Checker

	closers []func() error
}

// Close освобождает ресурсы в обратном порядке открытия.
func (d *runtimeDependencies) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	deps := &runtimeDependencies{}

	if err := initStorage(ctx, cfg, logger, deps); err != nil {
		_ = deps.Close()
		return nil, err
	}
	if err := initSessions(ctx, cfg, logger, deps); err != nil {
		_ = deps.Close()
		return nil, err
	}
	return deps, nil
}

func initStorage(ctx context.Context, cfg Config, logger *log.Entry, deps *runtimeDependencies) error {
	switch cfg.StorageDriver {
	case StorageDriverMemory, "":
		store := memory.NewStore()
		deps.store = store
		deps.outboxRepo = store
		deps.storageChecker = healthcheck.NewFuncChecker("storage", store.Ping)
		logger.WithField("driver", StorageDriverMemory).Info("storage initialized")
		return nil

	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return errors.New("postgres dsn is required for postgres storage driver")
		}
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres storage: %w", err)
		}
		deps.closers = append(deps.closers, store.Close)

		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				return fmt.Errorf("apply postgres migrations: %w", err)
			}
		}

		deps.store = store
		deps.outboxRepo = postgres.NewOutboxRepository(store)
		deps.storageChecker = healthcheck.NewFuncChecker("storage", store.Ping)
		logger.WithFields(log.Fields{
			"driver":       StorageDriverPostgres,
			"auto_migrate": cfg.PostgresAutoMigrate,
		}).Info("storage initialized")
		return nil

	default:
		return fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}

func initSessions(ctx context.Context, cfg Config, logger *log.Entry, deps *runtimeDependencies) error {
	if cfg.RedisAddr == "" {
		deps.sessions = auth.NewMemorySessions()
		logger.Info("sessions kept in memory")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisAddr,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: redisDialTimeout,
	})
	deps.closers = append(deps.closers, client.Close)

	sessions := auth.NewRedisSessions(client)
	pingCtx, cancel := context.WithTimeout(ctx, redisDialTimeout)
	defer cancel()
	if err := sessions.Ping(pingCtx); err != nil {
		return fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
	}

	deps.sessions = sessions
	deps.sessionsChecker = healthcheck.NewFuncChecker("sessions", sessions.Ping)
	logger.WithField("addr", cfg.RedisAddr).Info("sessions kept in redis")
	return nil
}
