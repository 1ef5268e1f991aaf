package memory

import (
	"context"
	"errors"
	"sort"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

// ErrOrderExists возвращается при повторном создании заказа с тем же ID.
var ErrOrderExists = errors.New("purchase order already exists")

type purchaseOrderRepository struct {
	s *Store
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r purchaseOrderRepository) Create(ctx context.Context, order domain.PurchaseOrder) error {
	return r.s.update(ctx, "create purchase order", func() error {
		if _, exists := r.s.orders[order.ID]; exists {
			return ErrOrderExists
		}
		r.s.orders[order.ID] = cloneOrder(order)
		return nil
	})
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r purchaseOrderRepository) Get(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	var order domain.PurchaseOrder
	err := r.s.view(ctx, "get purchase order", func() error {
		stored, ok := r.s.orders[id]
		if !ok {
			return domain.ErrOrderNotFound
		}
		order = cloneOrder(stored)
		return nil
	})
	return order, err
}

func (r purchaseOrderRepository) ListActive(ctx context.Context) ([]domain.PurchaseOrder, error) {
	return r.list(ctx, "list purchase orders", func(domain.PurchaseOrder) bool { return true })
}

func (r purchaseOrderRepository) ListBySupplier(ctx context.Context, supplierID string) ([]domain.PurchaseOrder, error) {
	return r.list(ctx, "list supplier purchase orders", func(o domain.PurchaseOrder) bool {
		return o.SupplierID == supplierID
	})
}

func (r purchaseOrderRepository) list(ctx context.Context, op string, match func(domain.PurchaseOrder) bool) ([]domain.PurchaseOrder, error) {
	var result []domain.PurchaseOrder
	err := r.s.view(ctx, op, func() error {
		result = make([]domain.PurchaseOrder, 0, len(r.s.orders))
		for _, order := range r.s.orders {
			if !order.IsActive() || !match(order) {
				continue
			}
			result = append(result, cloneOrder(order))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// cloneOrder копирует детализацию, чтобы вызывающий код не мутировал хранилище.
func cloneOrder(src domain.PurchaseOrder) domain.PurchaseOrder {
	dst := src
	if src.Detail != nil {
		detail := *src.Detail
		detail.Lines = append([]domain.OrderLine(nil), src.Detail.Lines...)
		dst.Detail = &detail
	}
	return dst
}

var _ domain.PurchaseOrderRepository = purchaseOrderRepository{}
