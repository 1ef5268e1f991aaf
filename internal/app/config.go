package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/procurement/internal/service/lifecycle"
)

const (
	// StorageDriverMemory использует in-memory хранилище.
	StorageDriverMemory = "memory"
	// StorageDriverPostgres использует PostgreSQL.
	StorageDriverPostgres = "postgres"
)

// Переменные окружения, переопределяющие конфигурацию.
const (
	EnvConfigPath = "PROCUREMENT_CONFIG"

	envHTTPAddr            = "PROCUREMENT_HTTP_ADDR"
	envGRPCAddr            = "PROCUREMENT_GRPC_ADDR"
	envMetricsAddr         = "PROCUREMENT_METRICS_ADDR"
	envLogLevel            = "PROCUREMENT_LOG_LEVEL"
	envStorageDriver       = "PROCUREMENT_STORAGE_DRIVER"
	envPostgresDSN         = "PROCUREMENT_POSTGRES_DSN"
	envPostgresAutoMigrate = "PROCUREMENT_POSTGRES_AUTO_MIGRATE"
	envFinalizationMode    = "PROCUREMENT_FINALIZATION_MODE"
	envKafkaBrokers        = "PROCUREMENT_KAFKA_BROKERS"
	envOutboxPollInterval  = "PROCUREMENT_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize     = "PROCUREMENT_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts   = "PROCUREMENT_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay    = "PROCUREMENT_OUTBOX_RETRY_DELAY"
	envOutboxMaxPending    = "PROCUREMENT_OUTBOX_MAX_PENDING"
	envOpenOrdersSchedule  = "PROCUREMENT_OPEN_ORDERS_SCHEDULE"
	envSeedDemoData        = "PROCUREMENT_SEED_DEMO_DATA"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	HTTPAddr    string `yaml:"http_addr"`
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`

	StorageDriver       string `yaml:"storage_driver"`
	PostgresDSN         string `yaml:"postgres_dsn"`
	PostgresAutoMigrate bool   `yaml:"postgres_auto_migrate"`

	// FinalizationMode: "atomic" или "best_effort".
	FinalizationMode string `yaml:"finalization_mode"`

	// KafkaBrokers: список брокеров через запятую; пусто означает работу без Kafka.
	KafkaBrokers       string        `yaml:"kafka_brokers"`
	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval"`
	OutboxBatchSize    int           `yaml:"outbox_batch_size"`
	OutboxMaxAttempts  int           `yaml:"outbox_max_attempts"`
	OutboxRetryDelay   time.Duration `yaml:"outbox_retry_delay"`
	// OutboxMaxPending: порог backlog, после которого health-check сообщает degraded.
	OutboxMaxPending int `yaml:"outbox_max_pending"`

	OpenOrdersSchedule string `yaml:"open_orders_schedule"`
	// SeedDemoData заполняет in-memory хранилище демонстрационными данными.
	SeedDemoData bool `yaml:"seed_demo_data"`
}

// DefaultConfig возвращает настройки для локального запуска.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:            ":8080",
		GRPCAddr:            ":50051",
		MetricsAddr:         ":9090",
		LogLevel:            "info",
		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,
		FinalizationMode:    string(lifecycle.FinalizationAtomic),
		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    200 * time.Millisecond,
		OutboxMaxPending:    1000,
		OpenOrdersSchedule:  "@every 30s",
		SeedDemoData:        true,
	}
}

// Brokers возвращает список Kafka брокеров без пустых элементов.
func (c Config) Brokers() []string {
	var brokers []string
	for _, broker := range strings.Split(c.KafkaBrokers, ",") {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// EnvLookup совместим с os.LookupEnv.
type EnvLookup func(key string) (string, bool)

// LoadDotEnv загружает переменные из .env файла, если он существует.
// Уже выставленные переменные окружения не перезаписываются.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// LoadConfig собирает конфигурацию: значения по умолчанию, затем YAML-файл из
// PROCUREMENT_CONFIG, затем переменные окружения PROCUREMENT_*.
// Некорректные значения переменных окружения игнорируются и возвращаются как предупреждения.
func LoadConfig(lookup EnvLookup) (Config, []string, error) {
	cfg := DefaultConfig()
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if path, ok := lookup(EnvConfigPath); ok && strings.TrimSpace(path) != "" {
		if err := loadConfigFile(strings.TrimSpace(path), &cfg); err != nil {
			return Config{}, nil, err
		}
	}

	warnings := applyEnv(&cfg, lookup)
	return cfg, warnings, nil
}

func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config, lookup EnvLookup) []string {
	var warnings []string
	warn := func(key string, err error) {
		warnings = append(warnings, fmt.Sprintf("%s: %v", key, err))
	}

	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	setString(envHTTPAddr, &cfg.HTTPAddr)
	setString(envGRPCAddr, &cfg.GRPCAddr)
	setString(envMetricsAddr, &cfg.MetricsAddr)
	setString(envPostgresDSN, &cfg.PostgresDSN)
	setString(envOpenOrdersSchedule, &cfg.OpenOrdersSchedule)

	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = strings.TrimSpace(v)
	}
	if v, ok := lookup(envStorageDriver); ok && strings.TrimSpace(v) != "" {
		cfg.StorageDriver = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(envLogLevel); ok && strings.TrimSpace(v) != "" {
		if _, err := log.ParseLevel(strings.TrimSpace(v)); err != nil {
			warn(envLogLevel, err)
		} else {
			cfg.LogLevel = strings.ToLower(strings.TrimSpace(v))
		}
	}
	if v, ok := lookup(envFinalizationMode); ok && strings.TrimSpace(v) != "" {
		mode := lifecycle.FinalizationMode(strings.ToLower(strings.TrimSpace(v)))
		if !mode.Valid() {
			warn(envFinalizationMode, fmt.Errorf("unsupported mode %q", v))
		} else {
			cfg.FinalizationMode = string(mode)
		}
	}

	if v, ok := lookup(envPostgresAutoMigrate); ok {
		if parsed, err := parseBool(v); err != nil {
			warn(envPostgresAutoMigrate, err)
		} else {
			cfg.PostgresAutoMigrate = parsed
		}
	}
	if v, ok := lookup(envSeedDemoData); ok {
		if parsed, err := parseBool(v); err != nil {
			warn(envSeedDemoData, err)
		} else {
			cfg.SeedDemoData = parsed
		}
	}

	positive := func(v int) bool { return v > 0 }
	if v, ok := lookup(envOutboxBatchSize); ok {
		if parsed, err := parseInt(v, positive, "must be > 0"); err != nil {
			warn(envOutboxBatchSize, err)
		} else {
			cfg.OutboxBatchSize = parsed
		}
	}
	if v, ok := lookup(envOutboxMaxAttempts); ok {
		if parsed, err := parseInt(v, positive, "must be > 0"); err != nil {
			warn(envOutboxMaxAttempts, err)
		} else {
			cfg.OutboxMaxAttempts = parsed
		}
	}
	if v, ok := lookup(envOutboxMaxPending); ok {
		if parsed, err := parseInt(v, func(v int) bool { return v >= 0 }, "must be >= 0"); err != nil {
			warn(envOutboxMaxPending, err)
		} else {
			cfg.OutboxMaxPending = parsed
		}
	}
	if v, ok := lookup(envOutboxPollInterval); ok {
		if parsed, err := parseDuration(v, func(v time.Duration) bool { return v > 0 }, "must be > 0"); err != nil {
			warn(envOutboxPollInterval, err)
		} else {
			cfg.OutboxPollInterval = parsed
		}
	}
	if v, ok := lookup(envOutboxRetryDelay); ok {
		if parsed, err := parseDuration(v, func(v time.Duration) bool { return v >= 0 }, "must be >= 0"); err != nil {
			warn(envOutboxRetryDelay, err)
		} else {
			cfg.OutboxRetryDelay = parsed
		}
	}

	return warnings
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

func parseInt(raw string, valid func(int) bool, constraint string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid int value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("invalid value %d: %s", value, constraint)
	}
	return value, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, constraint string) (time.Duration, error) {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration value %q: %w", raw, err)
	}
	if !valid(value) {
		return 0, fmt.Errorf("invalid value %s: %s", value, constraint)
	}
	return value, nil
}
