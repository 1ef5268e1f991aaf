package domain

import (
	"fmt"
	"time"
)

// Supplier: поставщик. DeactivatedAt != nil означает, что поставщик выведен из оборота.
type Supplier struct {
	ID            string
	Name          string
	DeactivatedAt *time.Time
}

// IsActive сообщает, что поставщик не выведен.
func (s Supplier) IsActive() bool {
	return s.DeactivatedAt == nil
}

// Article: складской артикул.
type Article struct {
	ID            string
	Name          string
	CurrentStock  int64
	DeactivatedAt *time.Time
}

// IsActive сообщает, что артикул не удалён логически.
func (a Article) IsActive() bool {
	return a.DeactivatedAt == nil
}

// ArticleSupplier связывает артикул с поставщиком.
type ArticleSupplier struct {
	ArticleID         string
	SupplierID        string
	IsDefaultSupplier bool
}

// InventoryModelType: тип модели управления запасами.
type InventoryModelType string

const (
	// ModelTypeFixedLot: модель фиксированного размера партии с точкой заказа.
	ModelTypeFixedLot InventoryModelType = "modelo1"
	// ModelTypeFixedInterval: модель фиксированного интервала, точка заказа не используется.
	ModelTypeFixedInterval InventoryModelType = "modelo2"
)

// InventoryModel: параметры управления запасами артикула.
type InventoryModel struct {
	ID           string
	ArticleID    string
	ModelType    InventoryModelType
	ReorderPoint int64
}

// ReorderWarning: рекомендательное предупреждение о достижении точки заказа. Не является ошибкой.
type ReorderWarning struct {
	ArticleID    string
	ArticleName  string
	NewStock     int64
	ReorderPoint int64
}

func (w ReorderWarning) String() string {
	return fmt.Sprintf("article %q stock (%d) is at or below its reorder point (%d)", w.ArticleName, w.NewStock, w.ReorderPoint)
}

// CheckReorderPoint возвращает предупреждение, если модель фиксированной партии и newStock <= точки заказа.
func CheckReorderPoint(model InventoryModel, article Article, newStock int64) *ReorderWarning {
	if model.ModelType != ModelTypeFixedLot {
		return nil
	}
	reorderPoint := NonNegative(model.ReorderPoint)
	if newStock > reorderPoint {
		return nil
	}
	return &ReorderWarning{
		ArticleID:    article.ID,
		ArticleName:  article.Name,
		NewStock:     newStock,
		ReorderPoint: reorderPoint,
	}
}
