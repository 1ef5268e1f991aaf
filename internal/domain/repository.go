package domain

import (
	"context"
	"time"
)

// PurchaseOrderRepository описывает требования к хранилищу заказов на закупку.
type PurchaseOrderRepository interface {
	// Create сохраняет новый заказ вместе с детализацией.
	Create(ctx context.Context, order PurchaseOrder) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound.
	Get(ctx context.Context, id string) (PurchaseOrder, error)
	// ListActive возвращает логически не удалённые заказы, упорядоченные по CreatedAt.
	ListActive(ctx context.Context) ([]PurchaseOrder, error)
	// ListBySupplier возвращает логически не удалённые заказы поставщика.
	ListBySupplier(ctx context.Context, supplierID string) ([]PurchaseOrder, error)
}

// OrderStatusRepository хранит историю статусов заказа.
type OrderStatusRepository interface {
	// Append добавляет запись. Активная запись отклоняется с ErrActiveStatusExists,
	// если у заказа уже есть активный статус.
	Append(ctx context.Context, status OrderStatus) error
	// ListActive возвращает все незакрытые записи заказа.
	ListActive(ctx context.Context, orderID string) ([]OrderStatus, error)
	// List возвращает всю историю заказа по возрастанию ActivatedAt.
	List(ctx context.Context, orderID string) ([]OrderStatus, error)
	// Replace атомарно закрывает current моментом next.ActivatedAt и добавляет next.
	// Возвращает ErrStatusConflict, если current уже не активен.
	Replace(ctx context.Context, current OrderStatus, next OrderStatus) error
}

// ArticleRepository описывает хранилище артикулов и их поставщиков.
type ArticleRepository interface {
	Create(ctx context.Context, article Article) error
	// Get возвращает артикул или ErrArticleNotFound.
	Get(ctx context.Context, id string) (Article, error)
	// ListActive возвращает логически не удалённые артикулы.
	ListActive(ctx context.Context) ([]Article, error)
	// AddSupplierLink создаёт или заменяет связь артикул-поставщик.
	AddSupplierLink(ctx context.Context, link ArticleSupplier) error
	// ListSupplierLinks возвращает связи артикула.
	ListSupplierLinks(ctx context.Context, articleID string) ([]ArticleSupplier, error)
	// ListDefaultLinks возвращает связи активных артикулов, где поставщик назначен по умолчанию.
	ListDefaultLinks(ctx context.Context, supplierID string) ([]ArticleSupplier, error)
	// IncrementStock атомарно прибавляет delta к неотрицательному остатку и возвращает обновлённый артикул.
	IncrementStock(ctx context.Context, id string, delta int64) (Article, error)
}

// SupplierRepository описывает хранилище поставщиков.
type SupplierRepository interface {
	Create(ctx context.Context, supplier Supplier) error
	// Get возвращает поставщика или ErrSupplierNotFound.
	Get(ctx context.Context, id string) (Supplier, error)
	// ListActive возвращает поставщиков без отметки о выводе.
	ListActive(ctx context.Context) ([]Supplier, error)
	// List возвращает всех поставщиков, включая выведенных.
	List(ctx context.Context) ([]Supplier, error)
	// Deactivate выставляет DeactivatedAt. Возвращает ErrSupplierRetired, если отметка уже стоит.
	Deactivate(ctx context.Context, id string, at time.Time) error
}

// InventoryModelRepository хранит модели управления запасами.
type InventoryModelRepository interface {
	Create(ctx context.Context, model InventoryModel) error
	// FindByArticle возвращает модель артикула; ok=false, если модели нет.
	FindByArticle(ctx context.Context, articleID string) (model InventoryModel, ok bool, err error)
}

// Transactor выполняет fn в одной транзакции хранилища. Репозитории,
// вызванные с переданным ctx, работают внутри этой транзакции.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TransactorFunc адаптирует функцию к интерфейсу Transactor.
type TransactorFunc func(ctx context.Context, fn func(ctx context.Context) error) error

func (f TransactorFunc) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}

// NoopTransactor выполняет fn без транзакции.
var NoopTransactor Transactor = TransactorFunc(func(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
})
