package memory

import (
	"context"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

type orderStatusRepository struct {
	s *Store
}

// Append добавляет запись истории. Второй активный статус отклоняется.
func (r orderStatusRepository) Append(ctx context.Context, status domain.OrderStatus) error {
	if !status.Name.Valid() {
		return domain.ErrStatusNameInvalid
	}
	return r.s.update(ctx, "append order status", func() error {
		if status.IsActive() && hasActive(r.s.statuses[status.OrderID]) {
			return domain.ErrActiveStatusExists
		}
		r.s.statuses[status.OrderID] = append(r.s.statuses[status.OrderID], status)
		return nil
	})
}

// Import загружает исторические записи как есть, без проверки единственности
// активного статуса. Используется при переносе данных из старых систем.
func (s *Store) Import(ctx context.Context, records ...domain.OrderStatus) error {
	return s.update(ctx, "import order statuses", func() error {
		for _, rec := range records {
			s.statuses[rec.OrderID] = append(s.statuses[rec.OrderID], rec)
		}
		return nil
	})
}

func (r orderStatusRepository) ListActive(ctx context.Context, orderID string) ([]domain.OrderStatus, error) {
	var result []domain.OrderStatus
	err := r.s.view(ctx, "list active order statuses", func() error {
		for _, rec := range r.s.statuses[orderID] {
			if rec.IsActive() {
				result = append(result, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortStatuses(result)
	return result, nil
}

// List возвращает всю историю заказа по возрастанию ActivatedAt.
func (r orderStatusRepository) List(ctx context.Context, orderID string) ([]domain.OrderStatus, error) {
	var result []domain.OrderStatus
	err := r.s.view(ctx, "list order statuses", func() error {
		result = append([]domain.OrderStatus(nil), r.s.statuses[orderID]...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortStatuses(result)
	return result, nil
}

// Replace закрывает current и добавляет next одним шагом.
func (r orderStatusRepository) Replace(ctx context.Context, current, next domain.OrderStatus) error {
	if !next.Name.Valid() {
		return domain.ErrStatusNameInvalid
	}
	return r.s.update(ctx, "replace order status", func() error {
		records := r.s.statuses[current.OrderID]
		idx := -1
		for i, rec := range records {
			if rec.ID == current.ID {
				idx = i
				break
			}
		}
		if idx < 0 || !records[idx].IsActive() {
			return domain.ErrStatusConflict
		}

		updated := append([]domain.OrderStatus(nil), records...)
		updated[idx] = records[idx].Close(next.ActivatedAt)
		next.OrderID = current.OrderID
		next.DeactivatedAt = nil
		r.s.statuses[current.OrderID] = append(updated, next)
		return nil
	})
}

func hasActive(records []domain.OrderStatus) bool {
	for _, rec := range records {
		if rec.IsActive() {
			return true
		}
	}
	return false
}

var _ domain.OrderStatusRepository = orderStatusRepository{}
