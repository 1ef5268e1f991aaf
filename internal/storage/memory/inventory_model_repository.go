package memory

import (
	"context"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

type inventoryModelRepository struct {
	s *Store
}

// Create сохраняет модель артикула, заменяя предыдущую.
func (r inventoryModelRepository) Create(ctx context.Context, model domain.InventoryModel) error {
	return r.s.update(ctx, "create inventory model", func() error {
		r.s.models[model.ArticleID] = model
		return nil
	})
}

func (r inventoryModelRepository) FindByArticle(ctx context.Context, articleID string) (domain.InventoryModel, bool, error) {
	var (
		model domain.InventoryModel
		found bool
	)
	err := r.s.view(ctx, "find inventory model", func() error {
		model, found = r.s.models[articleID]
		return nil
	})
	return model, found, err
}

var _ domain.InventoryModelRepository = inventoryModelRepository{}
