package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

// ErrOrderExists возвращается при повторном создании заказа с тем же ID.
var ErrOrderExists = errors.New("purchase order already exists")

const selectPurchaseOrder = `
	SELECT id, number, supplier_id, created_at, article_id, purchased_quantity, deactivated_at
	FROM purchase_orders
`

type purchaseOrderRepository struct {
	s *Store
}

// NewPurchaseOrderRepository создаёт PostgreSQL-реализацию PurchaseOrderRepository.
func NewPurchaseOrderRepository(store *Store) domain.PurchaseOrderRepository {
	return &purchaseOrderRepository{s: store}
}

// Create сохраняет заказ вместе с детализацией в одной транзакции.
func (r *purchaseOrderRepository) Create(ctx context.Context, order domain.PurchaseOrder) error {
	return r.s.WithinTx(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()
		q := r.s.exec(ctx)

		var articleID sql.NullString
		if order.ArticleID != "" {
			articleID = sql.NullString{String: order.ArticleID, Valid: true}
		}

		if _, err := q.ExecContext(ctx, `
			INSERT INTO purchase_orders (
				id, number, supplier_id, created_at, article_id, purchased_quantity, deactivated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7)
		`,
			order.ID, order.Number, order.SupplierID, order.CreatedAt.UTC(),
			articleID, order.PurchasedQuantity, nullTime(order.DeactivatedAt),
		); err != nil {
			if isUniqueViolation(err) {
				return ErrOrderExists
			}
			return domain.StoreError("insert purchase order", err)
		}

		if order.Detail == nil {
			return nil
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO order_details (id, order_id, total_price)
			VALUES ($1,$2,$3)
		`, order.Detail.ID, order.ID, order.Detail.TotalPrice); err != nil {
			return domain.StoreError("insert order detail", err)
		}
		for i, line := range order.Detail.Lines {
			if _, err := q.ExecContext(ctx, `
				INSERT INTO order_lines (detail_id, position, article_id, unit_price, quantity)
				VALUES ($1,$2,$3,$4,$5)
			`, order.Detail.ID, i, line.ArticleID, line.UnitPrice, line.Quantity); err != nil {
				return domain.StoreError("insert order line", err)
			}
		}
		return nil
	})
}

func (r *purchaseOrderRepository) Get(ctx context.Context, id string) (domain.PurchaseOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanPurchaseOrder(r.s.exec(ctx).QueryRowContext(ctx, selectPurchaseOrder+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PurchaseOrder{}, domain.ErrOrderNotFound
		}
		return domain.PurchaseOrder{}, domain.StoreError("select purchase order", err)
	}

	if err := r.loadDetail(ctx, &order); err != nil {
		return domain.PurchaseOrder{}, err
	}
	return order, nil
}

func (r *purchaseOrderRepository) ListActive(ctx context.Context) ([]domain.PurchaseOrder, error) {
	return r.list(ctx, selectPurchaseOrder+`
		WHERE deactivated_at IS NULL
		ORDER BY created_at ASC, id ASC
	`)
}

func (r *purchaseOrderRepository) ListBySupplier(ctx context.Context, supplierID string) ([]domain.PurchaseOrder, error) {
	return r.list(ctx, selectPurchaseOrder+`
		WHERE supplier_id = $1 AND deactivated_at IS NULL
		ORDER BY created_at ASC, id ASC
	`, supplierID)
}

func (r *purchaseOrderRepository) list(ctx context.Context, query string, args ...any) ([]domain.PurchaseOrder, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.s.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.StoreError("list purchase orders", err)
	}
	defer rows.Close()

	orders := make([]domain.PurchaseOrder, 0)
	for rows.Next() {
		order, err := scanPurchaseOrder(rows)
		if err != nil {
			return nil, domain.StoreError("scan purchase order", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StoreError("iterate purchase orders", err)
	}
	rows.Close()

	for i := range orders {
		if err := r.loadDetail(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (r *purchaseOrderRepository) loadDetail(ctx context.Context, order *domain.PurchaseOrder) error {
	q := r.s.exec(ctx)

	var detail domain.OrderDetail
	err := q.QueryRowContext(ctx, `
		SELECT id, order_id, total_price
		FROM order_details
		WHERE order_id = $1
	`, order.ID).Scan(&detail.ID, &detail.OrderID, &detail.TotalPrice)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return domain.StoreError("select order detail", err)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT article_id, unit_price, quantity
		FROM order_lines
		WHERE detail_id = $1
		ORDER BY position ASC
	`, detail.ID)
	if err != nil {
		return domain.StoreError("load order lines", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ArticleID, &line.UnitPrice, &line.Quantity); err != nil {
			return domain.StoreError("scan order line", err)
		}
		detail.Lines = append(detail.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return domain.StoreError("iterate order lines", err)
	}

	order.Detail = &detail
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPurchaseOrder(row rowScanner) (domain.PurchaseOrder, error) {
	var (
		order       domain.PurchaseOrder
		articleID   sql.NullString
		deactivated sql.NullTime
	)
	if err := row.Scan(
		&order.ID, &order.Number, &order.SupplierID, &order.CreatedAt,
		&articleID, &order.PurchasedQuantity, &deactivated,
	); err != nil {
		return domain.PurchaseOrder{}, fmt.Errorf("scan purchase order: %w", err)
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.ArticleID = articleID.String
	order.DeactivatedAt = timePtr(deactivated)
	return order, nil
}

var _ domain.PurchaseOrderRepository = (*purchaseOrderRepository)(nil)
