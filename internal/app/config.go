package app

import (
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// minJWTSecretLength совпадает с требованием auth.NewTokenIssuer.
const minJWTSecretLength = 32

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	MetricsAddr string
	// GRPCHealthAddr - адрес gRPC health/reflection. Пусто - сервер не поднимается.
	GRPCHealthAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// RedisAddr - реестр сессий в Redis. Пусто - сессии в памяти процесса.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// KafkaBrokers пусто - outbox копится без публикации.
	KafkaBrokers []string
	// KafkaTopic пусто - топик выбирается по типу агрегата.
	KafkaTopic string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPending - порог backlog, после которого /healthz отдаёт degraded.
	OutboxMaxPending int

	// JWTSecret пусто - секрет генерируется при старте, токены не переживают рестарт.
	JWTSecret      string
	TokenTTL       time.Duration
	AuthRequireAll bool
	CORSOrigins    []string

	ShutdownTimeout time.Duration
}

// DefaultConfig возвращает настройки для локального запуска на памяти.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8000",
		MetricsAddr:         ":9090",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    50 * time.Millisecond,
		OutboxMaxPending:    1000,
		TokenTTL:            24 * time.Hour,
		ShutdownTimeout:     5 * time.Second,
	}
}

// Validate проверяет согласованность настроек и возвращает все найденные проблемы.
func (c Config) Validate() error {
	var errs []error

	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http addr is required"))
	}
	if c.MetricsAddr == "" {
		errs = append(errs, errors.New("metrics addr is required"))
	}
	if c.HTTPAddr != "" && c.HTTPAddr == c.MetricsAddr && !ephemeralPort(c.HTTPAddr) {
		errs = append(errs, fmt.Errorf("http and metrics servers cannot share address %s", c.HTTPAddr))
	}

	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}

	if c.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("redis db must be >= 0, got %d", c.RedisDB))
	}

	if c.OutboxPollInterval <= 0 {
		errs = append(errs, errors.New("outbox poll interval must be positive"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox batch size must be positive"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox max attempts must be positive"))
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox retry delay must not be negative"))
	}

	if c.JWTSecret != "" && len(c.JWTSecret) < minJWTSecretLength {
		errs = append(errs, fmt.Errorf("jwt secret must be at least %d bytes", minJWTSecretLength))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("token ttl must be positive"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}

	return errors.Join(errs...)
}

// ephemeralPort сообщает, что порт выберет ОС: два таких адреса не конфликтуют.
func ephemeralPort(addr string) bool {
	_, port, err := net.SplitHostPort(addr)
	return err == nil && port == "0"
}
