package memory

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

// ErrSupplierExists возвращается при повторном создании поставщика.
var ErrSupplierExists = errors.New("supplier already exists")

type supplierRepository struct {
	s *Store
}

func (r supplierRepository) Create(ctx context.Context, supplier domain.Supplier) error {
	return r.s.update(ctx, "create supplier", func() error {
		if _, exists := r.s.suppliers[supplier.ID]; exists {
			return ErrSupplierExists
		}
		r.s.suppliers[supplier.ID] = supplier
		return nil
	})
}

func (r supplierRepository) Get(ctx context.Context, id string) (domain.Supplier, error) {
	var supplier domain.Supplier
	err := r.s.view(ctx, "get supplier", func() error {
		stored, ok := r.s.suppliers[id]
		if !ok {
			return domain.ErrSupplierNotFound
		}
		supplier = stored
		return nil
	})
	return supplier, err
}

func (r supplierRepository) ListActive(ctx context.Context) ([]domain.Supplier, error) {
	return r.list(ctx, true)
}

func (r supplierRepository) List(ctx context.Context) ([]domain.Supplier, error) {
	return r.list(ctx, false)
}

func (r supplierRepository) list(ctx context.Context, onlyActive bool) ([]domain.Supplier, error) {
	var result []domain.Supplier
	err := r.s.view(ctx, "list suppliers", func() error {
		for _, supplier := range r.s.suppliers {
			if onlyActive && !supplier.IsActive() {
				continue
			}
			result = append(result, supplier)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Deactivate выставляет отметку о выводе поставщика.
func (r supplierRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	return r.s.update(ctx, "deactivate supplier", func() error {
		supplier, ok := r.s.suppliers[id]
		if !ok {
			return domain.ErrSupplierNotFound
		}
		if !supplier.IsActive() {
			return domain.ErrSupplierRetired
		}
		supplier.DeactivatedAt = &at
		r.s.suppliers[id] = supplier
		return nil
	})
}

var _ domain.SupplierRepository = supplierRepository{}
