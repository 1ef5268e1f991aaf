package app

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/procurement/internal/health"
	"github.com/vladislavdragonenkov/procurement/internal/storage/memory"
	"github.com/vladislavdragonenkov/procurement/internal/storage/postgres"
)

// runtimeDependencies: репозитории выбранного хранилища.
type runtimeDependencies struct {
	transactor domain.Transactor
	orders     domain.PurchaseOrderRepository
	statuses   domain.OrderStatusRepository
	articles   domain.ArticleRepository
	suppliers  domain.SupplierRepository
	models     domain.InventoryModelRepository
	outbox     domain.OutboxRepository
	timeline   domain.TimelineRepository

	// storageChecker равен nil для in-memory хранилища.
	storageChecker healthcheck.Checker
	closeFn        func() error
}

func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	switch driver {
	case "", StorageDriverMemory:
		store := memory.NewStore()
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			transactor: store,
			orders:     store.PurchaseOrders(),
			statuses:   store.OrderStatuses(),
			articles:   store.Articles(),
			suppliers:  store.Suppliers(),
			models:     store.InventoryModels(),
			outbox:     store.Outbox(),
			timeline:   store.Timeline(),
		}, nil
	case StorageDriverPostgres:
		dsn := strings.TrimSpace(cfg.PostgresDSN)
		if dsn == "" {
			return nil, fmt.Errorf("postgres storage requires dsn (%s)", envPostgresDSN)
		}

		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, err
		}
		if cfg.PostgresAutoMigrate {
			if err := store.EnsureSchema(ctx); err != nil {
				_ = store.Close()
				return nil, fmt.Errorf("apply postgres migrations: %w", err)
			}
			state, err := store.MigrationStatus(ctx)
			if err == nil {
				logger.WithFields(log.Fields{
					"version": state.Version,
					"applied": state.Applied,
					"pending": state.Pending,
				}).Info("postgres schema is up to date")
			}
		}

		logger.Info("using postgres storage")
		return &runtimeDependencies{
			transactor:     store,
			orders:         postgres.NewPurchaseOrderRepository(store),
			statuses:       postgres.NewOrderStatusRepository(store),
			articles:       postgres.NewArticleRepository(store),
			suppliers:      postgres.NewSupplierRepository(store),
			models:         postgres.NewInventoryModelRepository(store),
			outbox:         postgres.NewOutboxRepository(store),
			timeline:       postgres.NewTimelineRepository(store),
			storageChecker: healthcheck.NewPingChecker("postgres", store),
			closeFn:        store.Close,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}

func (d *runtimeDependencies) close(logger *log.Entry) {
	if d == nil || d.closeFn == nil {
		return
	}
	if err := d.closeFn(); err != nil {
		logger.WithError(err).Warn("failed to close storage")
	}
}
