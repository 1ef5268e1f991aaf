package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
	"github.com/vladislavdragonenkov/procurement/internal/metrics"
)

// TransitionResult: итог успешной (или частично успешной) смены статуса.
type TransitionResult struct {
	// Status: новая активная запись статуса.
	Status domain.OrderStatus
	// Finalization заполнено только при успешном переходе в Finalizada.
	Finalization *FinalizationResult
}

// Manager управляет жизненным циклом статусов заказов на закупку.
type Manager struct {
	orders   domain.PurchaseOrderRepository
	statuses domain.OrderStatusRepository
	articles domain.ArticleRepository
	models   domain.InventoryModelRepository

	tx       domain.Transactor
	outbox   domain.OutboxRepository
	timeline domain.TimelineRepository
	metrics  *metrics.ProcurementMetrics
	logger   *log.Entry
	mode     FinalizationMode
	now      func() time.Time
	newID    func() string
}

// NewManager создаёт Manager. Отсутствующие опции заменяются значениями по умолчанию:
// транзакции без изоляции, атомарная финализация, UTC-время и UUID.
func NewManager(repos Repositories, options ...Option) *Manager {
	opts := defaultOptions()
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "lifecycle")
	}
	if opts.Transactor == nil {
		opts.Transactor = domain.NoopTransactor
	}
	if !opts.Mode.Valid() {
		logger.WithField("mode", opts.Mode).Warn("unknown finalization mode, using atomic")
		opts.Mode = FinalizationAtomic
	}

	return &Manager{
		orders:   repos.Orders,
		statuses: repos.Statuses,
		articles: repos.Articles,
		models:   repos.Models,
		tx:       opts.Transactor,
		outbox:   opts.Outbox,
		timeline: opts.Timeline,
		metrics:  opts.Metrics,
		logger:   logger,
		mode:     opts.Mode,
		now:      opts.Clock,
		newID:    opts.IDFunc,
	}
}

// Mode возвращает действующий режим финализации.
func (m *Manager) Mode() FinalizationMode {
	return m.mode
}

// GetActiveStatus возвращает текущий статус заказа; ok=false, если активной записи нет.
func (m *Manager) GetActiveStatus(ctx context.Context, orderID string) (domain.OrderStatus, bool, error) {
	records, err := m.statuses.ListActive(ctx, orderID)
	if err != nil {
		return domain.OrderStatus{}, false, fmt.Errorf("get active status of %s: %w", orderID, err)
	}
	if len(records) > 1 {
		m.logger.WithFields(log.Fields{
			"order_id": orderID,
			"active":   len(records),
		}).Warn("order has several active statuses, using the latest")
	}
	current, ok := domain.CurrentStatus(records)
	return current, ok, nil
}

// ListValidTargets возвращает статусы, в которые можно перейти из current.
func (m *Manager) ListValidTargets(current domain.StatusName) []domain.StatusName {
	return domain.ValidTargets(current)
}

// History возвращает историю статусов заказа по возрастанию ActivatedAt.
func (m *Manager) History(ctx context.Context, orderID string) ([]domain.OrderStatus, error) {
	if _, err := m.orders.Get(ctx, orderID); err != nil {
		return nil, err
	}
	records, err := m.statuses.List(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list status history of %s: %w", orderID, err)
	}
	return records, nil
}

// ChangeStatus читает текущий статус заказа и выполняет Transition.
func (m *Manager) ChangeStatus(ctx context.Context, orderID string, target domain.StatusName) (TransitionResult, error) {
	if _, err := m.orders.Get(ctx, orderID); err != nil {
		return TransitionResult{}, err
	}
	current, ok, err := m.GetActiveStatus(ctx, orderID)
	if err != nil {
		return TransitionResult{}, err
	}
	if !ok {
		return m.Transition(ctx, orderID, nil, target)
	}
	return m.Transition(ctx, orderID, &current, target)
}

// Transition закрывает current и открывает запись target. Переход в Finalizada
// дополнительно пополняет склад (см. FinalizationMode).
func (m *Manager) Transition(ctx context.Context, orderID string, current *domain.OrderStatus, target domain.StatusName) (TransitionResult, error) {
	start := time.Now()
	defer func() {
		if m.metrics != nil {
			m.metrics.RecordTransitionDuration(time.Since(start))
		}
	}()

	var from domain.StatusName
	if current != nil {
		from = current.Name
	}
	logger := m.logger.WithFields(log.Fields{
		"order_id": orderID,
		"from":     from,
		"to":       target,
	})

	if err := validateTransition(orderID, current, target); err != nil {
		logger.WithError(err).Info("status change rejected")
		m.recordTransition(from, target, metrics.ResultRejected)
		return TransitionResult{}, err
	}

	now := m.now()
	next := domain.OrderStatus{
		ID:          m.newID(),
		OrderID:     orderID,
		Name:        target,
		ActivatedAt: now,
	}
	// Запись активирована не раньше закрываемой: история остаётся упорядоченной.
	if next.ActivatedAt.Before(current.ActivatedAt) {
		next.ActivatedAt = current.ActivatedAt
	}

	var (
		result TransitionResult
		err    error
	)
	if target == domain.StatusFinalized {
		result, err = m.finalizeTransition(ctx, *current, next)
	} else {
		err = m.replace(ctx, *current, next)
		result = TransitionResult{Status: next}
	}

	switch {
	case err == nil:
		logger.WithField("status_id", next.ID).Info("order status changed")
		m.recordTransition(from, target, metrics.ResultOK)
	case domain.IsPartialSuccess(err):
		logger.WithError(err).Error("order finalized but inventory was not updated")
		m.recordTransition(from, target, metrics.ResultPartial)
	case errors.Is(err, domain.ErrStatusConflict):
		logger.WithError(err).Warn("order status changed concurrently")
		m.recordTransition(from, target, metrics.ResultConflict)
		return TransitionResult{}, err
	default:
		logger.WithError(err).Error("order status change failed")
		m.recordTransition(from, target, metrics.ResultError)
		return TransitionResult{}, err
	}

	m.emitTransitionEvents(ctx, from, result, err)
	return result, err
}

func validateTransition(orderID string, current *domain.OrderStatus, target domain.StatusName) error {
	if current == nil || !current.IsActive() || current.OrderID != orderID {
		return &domain.TransitionError{OrderID: orderID, To: target}
	}
	if !domain.CanTransition(current.Name, target) {
		return &domain.TransitionError{
			OrderID:    orderID,
			From:       current.Name,
			To:         target,
			HasCurrent: true,
		}
	}
	return nil
}

func (m *Manager) replace(ctx context.Context, current, next domain.OrderStatus) error {
	if err := m.statuses.Replace(ctx, current, next); err != nil {
		return fmt.Errorf("replace status of %s: %w", current.OrderID, err)
	}
	return nil
}

func (m *Manager) recordTransition(from, to domain.StatusName, result string) {
	if m.metrics != nil {
		m.metrics.RecordTransition(string(from), string(to), result)
	}
}
