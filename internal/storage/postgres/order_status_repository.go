package postgres

import (
	"context"
	"database/sql"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

// activeStatusIndex: частичный уникальный индекс: не более одного активного статуса на заказ.
const activeStatusIndex = "order_statuses_one_active"

type orderStatusRepository struct {
	s *Store
}

// NewOrderStatusRepository создаёт PostgreSQL-реализацию OrderStatusRepository.
func NewOrderStatusRepository(store *Store) domain.OrderStatusRepository {
	return &orderStatusRepository{s: store}
}

func (r *orderStatusRepository) Append(ctx context.Context, status domain.OrderStatus) error {
	if !status.Name.Valid() {
		return domain.ErrStatusNameInvalid
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.insert(ctx, status); err != nil {
		if violatesConstraint(err, activeStatusIndex) {
			return domain.ErrActiveStatusExists
		}
		return domain.StoreError("insert order status", err)
	}
	return nil
}

func (r *orderStatusRepository) ListActive(ctx context.Context, orderID string) ([]domain.OrderStatus, error) {
	return r.list(ctx, `
		SELECT id, order_id, name, activated_at, deactivated_at
		FROM order_statuses
		WHERE order_id = $1 AND deactivated_at IS NULL
		ORDER BY activated_at ASC, id ASC
	`, orderID)
}

func (r *orderStatusRepository) List(ctx context.Context, orderID string) ([]domain.OrderStatus, error) {
	return r.list(ctx, `
		SELECT id, order_id, name, activated_at, deactivated_at
		FROM order_statuses
		WHERE order_id = $1
		ORDER BY activated_at ASC, id ASC
	`, orderID)
}

// Replace закрывает current и вставляет next. Закрытие выполняется только
// если current всё ещё активен, иначе возвращается ErrStatusConflict.
func (r *orderStatusRepository) Replace(ctx context.Context, current, next domain.OrderStatus) error {
	if !next.Name.Valid() {
		return domain.ErrStatusNameInvalid
	}
	next.OrderID = current.OrderID
	next.DeactivatedAt = nil

	return r.s.WithinTx(ctx, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, opTimeout)
		defer cancel()

		res, err := r.s.exec(ctx).ExecContext(ctx, `
			UPDATE order_statuses
			SET deactivated_at = $3
			WHERE id = $1
			  AND order_id = $2
			  AND deactivated_at IS NULL
		`, current.ID, current.OrderID, next.ActivatedAt.UTC())
		if err != nil {
			return domain.StoreError("close order status", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return domain.StoreError("rows affected for order status", err)
		}
		if affected == 0 {
			return domain.ErrStatusConflict
		}

		if err := r.insert(ctx, next); err != nil {
			if violatesConstraint(err, activeStatusIndex) {
				return domain.ErrStatusConflict
			}
			return domain.StoreError("insert order status", err)
		}
		return nil
	})
}

func (r *orderStatusRepository) insert(ctx context.Context, status domain.OrderStatus) error {
	_, err := r.s.exec(ctx).ExecContext(ctx, `
		INSERT INTO order_statuses (id, order_id, name, activated_at, deactivated_at)
		VALUES ($1,$2,$3,$4,$5)
	`, status.ID, status.OrderID, string(status.Name), status.ActivatedAt.UTC(), nullTime(status.DeactivatedAt))
	return err
}

func (r *orderStatusRepository) list(ctx context.Context, query string, orderID string) ([]domain.OrderStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.s.exec(ctx).QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, domain.StoreError("list order statuses", err)
	}
	defer rows.Close()

	result := make([]domain.OrderStatus, 0)
	for rows.Next() {
		var (
			status      domain.OrderStatus
			name        string
			deactivated sql.NullTime
		)
		if err := rows.Scan(&status.ID, &status.OrderID, &name, &status.ActivatedAt, &deactivated); err != nil {
			return nil, domain.StoreError("scan order status", err)
		}
		status.Name = domain.StatusName(name)
		status.ActivatedAt = status.ActivatedAt.UTC()
		status.DeactivatedAt = timePtr(deactivated)
		result = append(result, status)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StoreError("iterate order statuses", err)
	}
	return result, nil
}

var _ domain.OrderStatusRepository = (*orderStatusRepository)(nil)
