package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/orderdesk/internal/app"
)

const (
	envLogFormat = "LOG_FORMAT"
	envLogLevel  = "LOG_LEVEL"

	envHTTPAddr            = "ORDERDESK_HTTP_ADDR"
	envMetricsAddr         = "ORDERDESK_METRICS_ADDR"
	envGRPCHealthAddr      = "ORDERDESK_GRPC_HEALTH_ADDR"
	envStorageDriver       = "ORDERDESK_STORAGE_DRIVER"
	envPostgresDSN         = "ORDERDESK_POSTGRES_DSN"
	envPostgresAutoMigrate = "ORDERDESK_POSTGRES_AUTO_MIGRATE"
	envRedisAddr           = "ORDERDESK_REDIS_ADDR"
	envRedisPassword       = "ORDERDESK_REDIS_PASSWORD"
	envRedisDB             = "ORDERDESK_REDIS_DB"
	envKafkaBrokers        = "KAFKA_BROKERS"
	envKafkaTopic          = "ORDERDESK_KAFKA_TOPIC"
	envOutboxPollInterval  = "ORDERDESK_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "ORDERDESK_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "ORDERDESK_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "ORDERDESK_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending    = "ORDERDESK_OUTBOX_MAX_PENDING"
	envJWTSecret           = "ORDERDESK_JWT_SECRET"
	envTokenTTL            = "ORDERDESK_TOKEN_TTL"
	envAuthRequireAll      = "ORDERDESK_AUTH_REQUIRE_ALL"
	envCORSOrigins         = "ORDERDESK_CORS_ORIGINS"
	envShutdownTimeout     = "ORDERDESK_SHUTDOWN_TIMEOUT"
)

type envLookup func(string) (string, bool)

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректное значение не валит запуск: остаётся значение по умолчанию, а причина
// возвращается предупреждением.
func readConfigFromEnv(lookup envLookup) (app.Config, []string) {
	cfg := app.DefaultConfig()
	var warnings []string

	warn := func(key string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v, using default", key, err))
	}

	setString := func(key string, target *string) {
		if v, ok := nonEmpty(lookup, key); ok {
			*target = v
		}
	}
	setBool := func(key string, target *bool) {
		if v, ok := nonEmpty(lookup, key); ok {
			parsed, err := parseBool(v)
			if err != nil {
				warn(key, err)
				return
			}
			*target = parsed
		}
	}
	setInt := func(key string, target *int, valid func(int) bool, rule string) {
		if v, ok := nonEmpty(lookup, key); ok {
			parsed, err := parseInt(v, valid, rule)
			if err != nil {
				warn(key, err)
				return
			}
			*target = parsed
		}
	}
	setDuration := func(key string, target *time.Duration, valid func(time.Duration) bool, rule string) {
		if v, ok := nonEmpty(lookup, key); ok {
			parsed, err := parseDuration(v, valid, rule)
			if err != nil {
				warn(key, err)
				return
			}
			*target = parsed
		}
	}
	positive := func(v int) bool { return v > 0 }
	nonNegative := func(v int) bool { return v >= 0 }
	positiveDuration := func(v time.Duration) bool { return v > 0 }

	setString(envHTTPAddr, &cfg.HTTPAddr)
	setString(envMetricsAddr, &cfg.MetricsAddr)
	setString(envGRPCHealthAddr, &cfg.GRPCHealthAddr)
	if v, ok := nonEmpty(lookup, envStorageDriver); ok {
		cfg.StorageDriver = strings.ToLower(v)
	}
	setString(envPostgresDSN, &cfg.PostgresDSN)
	setBool(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)

	setString(envRedisAddr, &cfg.RedisAddr)
	setString(envRedisPassword, &cfg.RedisPassword)
	setInt(envRedisDB, &cfg.RedisDB, nonNegative, "must be >= 0")

	if v, ok := nonEmpty(lookup, envKafkaBrokers); ok {
		cfg.KafkaBrokers = splitList(v)
	}
	setString(envKafkaTopic, &cfg.KafkaTopic)

	setDuration(envOutboxPollInterval, &cfg.OutboxPollInterval, positiveDuration, "must be > 0")
	setInt(envOutboxBatchSize, &cfg.OutboxBatchSize, positive, "must be > 0")
	setInt(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts, positive, "must be > 0")
	setDuration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, func(v time.Duration) bool { return v >= 0 }, "must be >= 0")
	setInt(envOutboxMaxPending, &cfg.OutboxMaxPending, nonNegative, "must be >= 0")

	setString(envJWTSecret, &cfg.JWTSecret)
	setDuration(envTokenTTL, &cfg.TokenTTL, positiveDuration, "must be > 0")
	setBool(envAuthRequireAll, &cfg.AuthRequireAll)
	if v, ok := nonEmpty(lookup, envCORSOrigins); ok {
		cfg.CORSOrigins = splitList(v)
	}
	setDuration(envShutdownTimeout, &cfg.ShutdownTimeout, positiveDuration, "must be > 0")

	return cfg, warnings
}

func nonEmpty(lookup envLookup, key string) (string, bool) {
	v, ok := lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid bool value %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %d %s", value, rule)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q", raw)
	}
	if valid != nil && !valid(value) {
		return 0, fmt.Errorf("value %s %s", value, rule)
	}
	return value, nil
}
