package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/procurement/internal/app"
	"github.com/vladislavdragonenkov/procurement/internal/version"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	parsed, err := log.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = log.InfoLevel
	}
	log.SetLevel(parsed)
}

// readConfig загружает .env, YAML из PROCUREMENT_CONFIG и переменные окружения.
func readConfig(lookup app.EnvLookup) (app.Config, []string, error) {
	if err := app.LoadDotEnv(".env"); err != nil {
		return app.Config{}, nil, err
	}
	return app.LoadConfig(lookup)
}

func main() {
	cfg, warnings, err := readConfig(os.LookupEnv)
	if err != nil {
		setupLogger("info")
		log.WithError(err).Fatal("не удалось загрузить конфигурацию")
	}
	setupLogger(cfg.LogLevel)
	for _, warning := range warnings {
		log.WithField("warning", warning).Warn("некорректное значение переменной окружения, используется значение по умолчанию")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":           version.String(),
		"http_addr":         cfg.HTTPAddr,
		"grpc_addr":         cfg.GRPCAddr,
		"metrics_addr":      cfg.MetricsAddr,
		"storage_driver":    cfg.StorageDriver,
		"finalization_mode": cfg.FinalizationMode,
	}).Info("запускаем procurement-service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("procurement-service остановлен")
}
