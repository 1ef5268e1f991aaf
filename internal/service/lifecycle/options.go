package lifecycle

import (
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
	"github.com/vladislavdragonenkov/procurement/internal/metrics"
)

// FinalizationMode определяет, как переход в Finalizada сочетается с обновлением склада.
type FinalizationMode string

const (
	// FinalizationAtomic: смена статуса и пополнение склада в одной транзакции.
	// Ошибка финализации откатывает смену статуса.
	FinalizationAtomic FinalizationMode = "atomic"
	// FinalizationBestEffort: статус фиксируется первым; ошибка финализации
	// возвращается как *domain.FinalizationError (частичный успех).
	FinalizationBestEffort FinalizationMode = "best_effort"
)

// Valid проверяет, что режим поддерживается.
func (m FinalizationMode) Valid() bool {
	return m == FinalizationAtomic || m == FinalizationBestEffort
}

// Repositories: хранилища, с которыми работает Manager.
type Repositories struct {
	Orders   domain.PurchaseOrderRepository
	Statuses domain.OrderStatusRepository
	Articles domain.ArticleRepository
	Models   domain.InventoryModelRepository
}

// Options задаёт необязательные зависимости Manager.
type Options struct {
	Logger     *log.Entry
	Metrics    *metrics.ProcurementMetrics
	Outbox     domain.OutboxRepository
	Timeline   domain.TimelineRepository
	Transactor domain.Transactor
	Mode       FinalizationMode
	Clock      func() time.Time
	IDFunc     func() string
}

// Option настраивает Manager.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithMetrics включает запись метрик переходов.
func WithMetrics(m *metrics.ProcurementMetrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithOutbox задаёт outbox для публикации событий заказа.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(opts *Options) {
		opts.Outbox = outbox
	}
}

// WithTimeline задаёт журнал событий заказа.
func WithTimeline(timeline domain.TimelineRepository) Option {
	return func(opts *Options) {
		opts.Timeline = timeline
	}
}

// WithTransactor задаёт транзакционную границу хранилища.
func WithTransactor(tx domain.Transactor) Option {
	return func(opts *Options) {
		opts.Transactor = tx
	}
}

// WithFinalizationMode выбирает режим финализации.
func WithFinalizationMode(mode FinalizationMode) Option {
	return func(opts *Options) {
		opts.Mode = mode
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(opts *Options) {
		opts.Clock = clock
	}
}

// WithIDFunc подменяет генератор идентификаторов записей статуса.
func WithIDFunc(fn func() string) Option {
	return func(opts *Options) {
		opts.IDFunc = fn
	}
}

func defaultOptions() Options {
	return Options{
		Transactor: domain.NoopTransactor,
		Mode:       FinalizationAtomic,
		Clock:      func() time.Time { return time.Now().UTC() },
		IDFunc:     uuid.NewString,
	}
}
