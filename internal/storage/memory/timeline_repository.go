package memory

import (
	"context"
	"sort"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

// timelineRepository хранит журнал заказов в памяти (для разработки/тестов).
type timelineRepository struct {
	s *Store
}

// Append добавляет событие в хранилище.
func (r timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	return r.s.update(ctx, "append timeline event", func() error {
		events := append(r.s.timeline[event.OrderID], event)
		sort.SliceStable(events, func(i, j int) bool {
			return events[i].Occurred.Before(events[j].Occurred)
		})
		r.s.timeline[event.OrderID] = events
		return nil
	})
}

// List возвращает события заказа в хронологическом порядке.
func (r timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	var result []domain.TimelineEvent
	err := r.s.view(ctx, "list timeline events", func() error {
		events := r.s.timeline[orderID]
		result = make([]domain.TimelineEvent, len(events))
		copy(result, events)
		return nil
	})
	return result, err
}

var _ domain.TimelineRepository = timelineRepository{}
