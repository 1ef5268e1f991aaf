package retirement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
	"github.com/vladislavdragonenkov/procurement/internal/metrics"
)

// Repositories: хранилища, которые читает валидатор.
type Repositories struct {
	Suppliers domain.SupplierRepository
	Articles  domain.ArticleRepository
	Orders    domain.PurchaseOrderRepository
	Statuses  domain.OrderStatusRepository
}

// Option настраивает Validator.
type Option func(*Validator)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(v *Validator) {
		v.logger = logger
	}
}

// WithMetrics включает метрики вывода поставщиков.
func WithMetrics(m *metrics.ProcurementMetrics) Option {
	return func(v *Validator) {
		v.metrics = m
	}
}

// WithOutbox задаёт outbox для событий SupplierRetired / SupplierRetirementRefused.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(v *Validator) {
		v.outbox = outbox
	}
}

// WithTransactor задаёт транзакционную границу Retire.
func WithTransactor(tx domain.Transactor) Option {
	return func(v *Validator) {
		v.tx = tx
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(v *Validator) {
		v.now = clock
	}
}

// Validator проверяет, можно ли вывести поставщика из оборота, и выполняет вывод.
//
// Правила проверяются в фиксированном порядке:
//   - A: поставщик не назначен поставщиком по умолчанию ни у одного активного артикула;
//   - B: у поставщика нет логически не удалённого заказа в статусе Pendiente или Enviada.
type Validator struct {
	suppliers domain.SupplierRepository
	articles  domain.ArticleRepository
	orders    domain.PurchaseOrderRepository
	statuses  domain.OrderStatusRepository

	tx      domain.Transactor
	outbox  domain.OutboxRepository
	metrics *metrics.ProcurementMetrics
	logger  *log.Entry
	now     func() time.Time
}

// NewValidator создаёт Validator.
func NewValidator(repos Repositories, options ...Option) *Validator {
	v := &Validator{
		suppliers: repos.Suppliers,
		articles:  repos.Articles,
		orders:    repos.Orders,
		statuses:  repos.Statuses,
		tx:        domain.NoopTransactor,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(v)
	}
	if v.logger == nil {
		v.logger = log.WithField("component", "supplier-retirement")
	}
	if v.tx == nil {
		v.tx = domain.NoopTransactor
	}
	return v
}

// Check возвращает nil, если поставщика можно вывести, иначе *domain.RetirementError.
func (v *Validator) Check(ctx context.Context, supplierID string) error {
	if err := v.checkDefaultSupplier(ctx, supplierID); err != nil {
		return err
	}
	return v.checkOpenOrders(ctx, supplierID)
}

// Retire проверяет правила и выставляет поставщику DeactivatedAt в одной транзакции.
func (v *Validator) Retire(ctx context.Context, supplierID string) (domain.Supplier, error) {
	logger := v.logger.WithField("supplier_id", supplierID)

	var retired domain.Supplier
	err := v.tx.WithinTx(ctx, func(ctx context.Context) error {
		supplier, err := v.suppliers.Get(ctx, supplierID)
		if err != nil {
			return err
		}
		if !supplier.IsActive() {
			return fmt.Errorf("retire supplier %s: %w", supplierID, domain.ErrSupplierRetired)
		}
		if err := v.Check(ctx, supplierID); err != nil {
			return err
		}

		at := v.now()
		if err := v.suppliers.Deactivate(ctx, supplierID, at); err != nil {
			return fmt.Errorf("retire supplier %s: %w", supplierID, err)
		}
		supplier.DeactivatedAt = &at
		retired = supplier
		return nil
	})

	var refusal *domain.RetirementError
	switch {
	case err == nil:
		logger.Info("supplier retired")
		v.recordRetirement(metrics.ResultOK)
		v.emitEvent(ctx, supplierID, domain.EventSupplierRetired, map[string]interface{}{
			"name": retired.Name,
			"ts":   retired.DeactivatedAt.UTC().Format(time.RFC3339Nano),
		})
		return retired, nil
	case errors.As(err, &refusal):
		logger.WithError(err).Info("supplier retirement refused")
		v.recordRetirement(metrics.ResultRejected)
		v.emitEvent(ctx, supplierID, domain.EventSupplierRetirementRefused, map[string]interface{}{
			"rule":       domain.ErrorCode(refusal.Reason),
			"article_id": refusal.ArticleID,
			"order_id":   refusal.OrderID,
			"reason":     refusal.Error(),
		})
	case errors.Is(err, domain.ErrSupplierNotFound), errors.Is(err, domain.ErrSupplierRetired):
		logger.WithError(err).Info("supplier retirement rejected")
		v.recordRetirement(metrics.ResultRejected)
	default:
		logger.WithError(err).Error("supplier retirement failed")
		v.recordRetirement(metrics.ResultError)
	}
	return domain.Supplier{}, err
}

// checkDefaultSupplier: правило A.
func (v *Validator) checkDefaultSupplier(ctx context.Context, supplierID string) error {
	links, err := v.articles.ListDefaultLinks(ctx, supplierID)
	if err != nil {
		return fmt.Errorf("check default supplier links of %s: %w", supplierID, err)
	}
	if len(links) == 0 {
		return nil
	}
	return &domain.RetirementError{
		SupplierID: supplierID,
		Reason:     domain.ErrDefaultSupplierInUse,
		ArticleID:  links[0].ArticleID,
	}
}

// checkOpenOrders: правило B. Заказы без активного статуса пропускаются.
func (v *Validator) checkOpenOrders(ctx context.Context, supplierID string) error {
	orders, err := v.orders.ListBySupplier(ctx, supplierID)
	if err != nil {
		return fmt.Errorf("check open orders of %s: %w", supplierID, err)
	}
	for _, order := range orders {
		records, err := v.statuses.ListActive(ctx, order.ID)
		if err != nil {
			return fmt.Errorf("check open orders of %s: %w", supplierID, err)
		}
		current, ok := domain.CurrentStatus(records)
		if !ok {
			v.logger.WithFields(log.Fields{
				"supplier_id": supplierID,
				"order_id":    order.ID,
			}).Debug("order has no active status, skipping")
			continue
		}
		if current.Name.IsOpen() {
			return &domain.RetirementError{
				SupplierID: supplierID,
				Reason:     domain.ErrOpenOrderExists,
				OrderID:    order.ID,
			}
		}
	}
	return nil
}

func (v *Validator) emitEvent(ctx context.Context, supplierID, eventType string, payload map[string]interface{}) {
	if v.outbox == nil {
		return
	}
	payload["supplier_id"] = supplierID
	logger := v.logger.WithFields(log.Fields{
		"supplier_id": supplierID,
		"event":       eventType,
	})

	data, err := json.Marshal(payload)
	if err != nil {
		logger.WithError(err).Error("marshal event failed")
		return
	}
	if _, err := v.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateSupplier,
		AggregateID:   supplierID,
		EventType:     eventType,
		Payload:       data,
	}); err != nil {
		logger.WithError(err).Error("enqueue event failed")
	} else if v.metrics != nil {
		v.metrics.RecordOutboxEvent()
	}
}

func (v *Validator) recordRetirement(result string) {
	if v.metrics != nil {
		v.metrics.RecordRetirement(result)
	}
}
