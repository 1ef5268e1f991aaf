package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

type inventoryModelRepository struct {
	s *Store
}

// NewInventoryModelRepository создаёт PostgreSQL-реализацию InventoryModelRepository.
func NewInventoryModelRepository(store *Store) domain.InventoryModelRepository {
	return &inventoryModelRepository{s: store}
}

func (r *inventoryModelRepository) Create(ctx context.Context, model domain.InventoryModel) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.s.exec(ctx).ExecContext(ctx, `
		INSERT INTO inventory_models (id, article_id, model_type, reorder_point)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (article_id) DO UPDATE
		SET id = EXCLUDED.id,
		    model_type = EXCLUDED.model_type,
		    reorder_point = EXCLUDED.reorder_point
	`, model.ID, model.ArticleID, string(model.ModelType), model.ReorderPoint); err != nil {
		return domain.StoreError("upsert inventory model", err)
	}
	return nil
}

func (r *inventoryModelRepository) FindByArticle(ctx context.Context, articleID string) (domain.InventoryModel, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		model     domain.InventoryModel
		modelType string
	)
	err := r.s.exec(ctx).QueryRowContext(ctx, `
		SELECT id, article_id, model_type, reorder_point
		FROM inventory_models
		WHERE article_id = $1
	`, articleID).Scan(&model.ID, &model.ArticleID, &modelType, &model.ReorderPoint)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.InventoryModel{}, false, nil
	}
	if err != nil {
		return domain.InventoryModel{}, false, domain.StoreError("select inventory model", err)
	}
	model.ModelType = domain.InventoryModelType(modelType)
	return model, true, nil
}

var _ domain.InventoryModelRepository = (*inventoryModelRepository)(nil)
