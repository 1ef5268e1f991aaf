package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

func (m *Manager) emitTransitionEvents(ctx context.Context, from domain.StatusName, result TransitionResult, finErr error) {
	status := result.Status
	ts := status.ActivatedAt.UTC().Format(time.RFC3339Nano)

	m.emitEvent(ctx, status.OrderID, domain.AggregatePurchaseOrder, status.OrderID, domain.EventStatusChanged, map[string]interface{}{
		"status_id": status.ID,
		"from":      string(from),
		"to":        string(status.Name),
		"ts":        ts,
	})

	if finErr != nil {
		m.emitEvent(ctx, status.OrderID, domain.AggregatePurchaseOrder, status.OrderID, domain.EventFinalizationFailed, map[string]interface{}{
			"reason": finErr.Error(),
			"ts":     ts,
		})
		return
	}

	fin := result.Finalization
	if fin == nil {
		return
	}
	m.emitEvent(ctx, status.OrderID, domain.AggregateArticle, fin.ArticleID, domain.EventStockIncreased, map[string]interface{}{
		"article_id":     fin.ArticleID,
		"previous_stock": fin.PreviousStock,
		"new_stock":      fin.NewStock,
		"ts":             ts,
	})
	if fin.Warning != nil {
		if m.metrics != nil {
			m.metrics.RecordReorderWarning()
		}
		m.emitEvent(ctx, status.OrderID, domain.AggregateArticle, fin.ArticleID, domain.EventReorderPointReached, map[string]interface{}{
			"article_id":    fin.ArticleID,
			"new_stock":     fin.Warning.NewStock,
			"reorder_point": fin.Warning.ReorderPoint,
			"reason":        fin.Warning.String(),
			"ts":            ts,
		})
	}
}

// emitEvent кладёт событие в outbox и журнал заказа. Ошибки только логируются:
// смена статуса к этому моменту уже зафиксирована.
func (m *Manager) emitEvent(ctx context.Context, orderID, aggregateType, aggregateID, eventType string, payload map[string]interface{}) {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	payload["order_id"] = orderID
	logger := m.logger.WithFields(log.Fields{
		"order_id": orderID,
		"event":    eventType,
	})

	if m.outbox != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.WithError(err).Error("marshal event failed")
		} else if _, err := m.outbox.Enqueue(ctx, domain.OutboxMessage{
			AggregateType: aggregateType,
			AggregateID:   aggregateID,
			EventType:     eventType,
			Payload:       data,
		}); err != nil {
			logger.WithError(err).Error("enqueue event failed")
		} else if m.metrics != nil {
			m.metrics.RecordOutboxEvent()
		}
	}

	if m.timeline == nil {
		return
	}
	var reason string
	if r, ok := payload["reason"].(string); ok {
		reason = r
	}
	occurred := m.now()
	if ts, ok := payload["ts"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			occurred = parsed
		}
	}
	event := domain.TimelineEvent{
		OrderID:  orderID,
		Type:     eventType,
		Reason:   reason,
		Occurred: occurred,
	}
	if err := m.timeline.Append(ctx, event); err != nil {
		logger.WithError(err).Warn("append timeline event failed")
	} else if m.metrics != nil {
		m.metrics.RecordTimelineEvent()
	}
}
