package lifecycle

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
	"github.com/vladislavdragonenkov/procurement/internal/metrics"
)

// FinalizationResult описывает пополнение склада при переходе в Finalizada.
type FinalizationResult struct {
	ArticleID     string
	PreviousStock int64
	NewStock      int64
	// Warning != nil, если остаток опустился до точки заказа (модель modelo1).
	Warning *domain.ReorderWarning
}

func (m *Manager) finalizeTransition(ctx context.Context, current, next domain.OrderStatus) (TransitionResult, error) {
	result := TransitionResult{Status: next}

	if m.mode == FinalizationAtomic {
		err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := m.replace(ctx, current, next); err != nil {
				return err
			}
			fin, err := m.finalize(ctx, next.OrderID)
			if err != nil {
				return err
			}
			result.Finalization = &fin
			return nil
		})
		if err != nil {
			m.recordFinalization(metrics.ResultError)
			return TransitionResult{}, err
		}
		m.recordFinalization(metrics.ResultOK)
		return result, nil
	}

	if err := m.replace(ctx, current, next); err != nil {
		return TransitionResult{}, err
	}
	var fin FinalizationResult
	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		fin, err = m.finalize(ctx, next.OrderID)
		return err
	})
	if err != nil {
		m.recordFinalization(metrics.ResultPartial)
		return result, &domain.FinalizationError{OrderID: next.OrderID, Err: err}
	}
	m.recordFinalization(metrics.ResultOK)
	result.Finalization = &fin
	return result, nil
}

// finalize пополняет склад артикула заказа и проверяет точку заказа.
func (m *Manager) finalize(ctx context.Context, orderID string) (FinalizationResult, error) {
	order, err := m.orders.Get(ctx, orderID)
	if err != nil {
		return FinalizationResult{}, fmt.Errorf("load purchase order %s: %w", orderID, err)
	}
	if !order.HasFinalizationData() {
		return FinalizationResult{}, fmt.Errorf("purchase order %s: %w", orderID, domain.ErrIncompleteOrderData)
	}

	article, err := m.articles.Get(ctx, order.ArticleID)
	if err != nil {
		return FinalizationResult{}, fmt.Errorf("load article %s: %w", order.ArticleID, err)
	}

	updated, err := m.articles.IncrementStock(ctx, article.ID, domain.NonNegative(order.PurchasedQuantity))
	if err != nil {
		return FinalizationResult{}, fmt.Errorf("increment stock of %s: %w", article.ID, err)
	}

	fin := FinalizationResult{
		ArticleID:     updated.ID,
		PreviousStock: domain.NonNegative(article.CurrentStock),
		NewStock:      updated.CurrentStock,
	}

	model, ok, err := m.models.FindByArticle(ctx, updated.ID)
	if err != nil {
		return FinalizationResult{}, fmt.Errorf("load inventory model of %s: %w", updated.ID, err)
	}
	if ok {
		fin.Warning = domain.CheckReorderPoint(model, updated, updated.CurrentStock)
	}

	m.logger.WithFields(log.Fields{
		"order_id":   orderID,
		"article_id": fin.ArticleID,
		"new_stock":  fin.NewStock,
		"warning":    fin.Warning != nil,
	}).Info("inventory finalized")
	return fin, nil
}

func (m *Manager) recordFinalization(result string) {
	if m.metrics != nil {
		m.metrics.RecordFinalization(result)
	}
}
