// Команда order-api запускает HTTP API заказов, сервер метрик и outbox-воркер.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderdesk/internal/app"
	"github.com/vladislavdragonenkov/orderdesk/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) []string {
	var warnings []string

	if format, ok := lookup(envLogFormat); ok && strings.EqualFold(strings.TrimSpace(format), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level := log.InfoLevel
	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		parsed, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			warnings = append(warnings, envLogLevel+": "+err.Error())
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)
	return warnings
}

func main() {
	warnings := setupLogger(os.LookupEnv)
	cfg, configWarnings := readConfigFromEnv(os.LookupEnv)
	for _, warning := range append(warnings, configWarnings...) {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":        version.String(),
		"http_addr":      cfg.HTTPAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"grpc_health":    cfg.GRPCHealthAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka":          len(cfg.KafkaBrokers) > 0,
		"redis":          cfg.RedisAddr != "",
	}).Info("запускаем order-api")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("order-api остановлен")
}
