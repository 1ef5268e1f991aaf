package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

// ErrSupplierExists возвращается при повторном создании поставщика.
var ErrSupplierExists = errors.New("supplier already exists")

type supplierRepository struct {
	s *Store
}

// NewSupplierRepository создаёт PostgreSQL-реализацию SupplierRepository.
func NewSupplierRepository(store *Store) domain.SupplierRepository {
	return &supplierRepository{s: store}
}

func (r *supplierRepository) Create(ctx context.Context, supplier domain.Supplier) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.s.exec(ctx).ExecContext(ctx, `
		INSERT INTO suppliers (id, name, deactivated_at)
		VALUES ($1,$2,$3)
	`, supplier.ID, supplier.Name, nullTime(supplier.DeactivatedAt)); err != nil {
		if isUniqueViolation(err) {
			return ErrSupplierExists
		}
		return domain.StoreError("insert supplier", err)
	}
	return nil
}

func (r *supplierRepository) Get(ctx context.Context, id string) (domain.Supplier, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	supplier, err := scanSupplier(r.s.exec(ctx).QueryRowContext(ctx, `
		SELECT id, name, deactivated_at FROM suppliers WHERE id = $1
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Supplier{}, domain.ErrSupplierNotFound
		}
		return domain.Supplier{}, domain.StoreError("select supplier", err)
	}
	return supplier, nil
}

func (r *supplierRepository) ListActive(ctx context.Context) ([]domain.Supplier, error) {
	return r.list(ctx, `
		SELECT id, name, deactivated_at
		FROM suppliers
		WHERE deactivated_at IS NULL
		ORDER BY name ASC, id ASC
	`)
}

func (r *supplierRepository) List(ctx context.Context) ([]domain.Supplier, error) {
	return r.list(ctx, `
		SELECT id, name, deactivated_at
		FROM suppliers
		ORDER BY name ASC, id ASC
	`)
}

func (r *supplierRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	q := r.s.exec(ctx)
	res, err := q.ExecContext(ctx, `
		UPDATE suppliers
		SET deactivated_at = $2
		WHERE id = $1 AND deactivated_at IS NULL
	`, id, at.UTC())
	if err != nil {
		return domain.StoreError("deactivate supplier", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return domain.StoreError("rows affected for supplier", err)
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM suppliers WHERE id = $1)`, id).Scan(&exists); err != nil {
		return domain.StoreError("check supplier exists", err)
	}
	if !exists {
		return domain.ErrSupplierNotFound
	}
	return domain.ErrSupplierRetired
}

func (r *supplierRepository) list(ctx context.Context, query string) ([]domain.Supplier, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rows, err := r.s.exec(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, domain.StoreError("list suppliers", err)
	}
	defer rows.Close()

	result := make([]domain.Supplier, 0)
	for rows.Next() {
		supplier, err := scanSupplier(rows)
		if err != nil {
			return nil, domain.StoreError("scan supplier", err)
		}
		result = append(result, supplier)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StoreError("iterate suppliers", err)
	}
	return result, nil
}

func scanSupplier(row rowScanner) (domain.Supplier, error) {
	var (
		supplier    domain.Supplier
		deactivated sql.NullTime
	)
	if err := row.Scan(&supplier.ID, &supplier.Name, &deactivated); err != nil {
		return domain.Supplier{}, err
	}
	supplier.DeactivatedAt = timePtr(deactivated)
	return supplier, nil
}

var _ domain.SupplierRepository = (*supplierRepository)(nil)
