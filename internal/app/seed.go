package app

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

type demoOrder struct {
	id        string
	number    int64
	supplier  string
	article   string
	quantity  int64
	unitPrice string
	history   []domain.StatusName
}

// seedDemoData заполняет пустое хранилище небольшим каталогом и заказами во всех статусах.
// Если поставщики уже есть, ничего не делает.
func seedDemoData(ctx context.Context, deps *runtimeDependencies, now time.Time, logger *log.Entry) error {
	existing, err := deps.suppliers.List(ctx)
	if err != nil {
		return fmt.Errorf("list suppliers: %w", err)
	}
	if len(existing) > 0 {
		logger.WithField("suppliers", len(existing)).Debug("storage is not empty, demo data skipped")
		return nil
	}

	err = deps.transactor.WithinTx(ctx, func(ctx context.Context) error {
		suppliers := []domain.Supplier{
			{ID: "prov-1", Name: "Distribuidora Norte"},
			{ID: "prov-2", Name: "Ferretería Sur"},
			{ID: "prov-3", Name: "Insumos Centro"},
		}
		for _, supplier := range suppliers {
			if err := deps.suppliers.Create(ctx, supplier); err != nil {
				return fmt.Errorf("create supplier %s: %w", supplier.ID, err)
			}
		}

		articles := []domain.Article{
			{ID: "art-1", Name: "Tornillo 10mm", CurrentStock: 5},
			{ID: "art-2", Name: "Tuerca 10mm", CurrentStock: 40},
			{ID: "art-3", Name: "Arandela 10mm"},
		}
		for _, article := range articles {
			if err := deps.articles.Create(ctx, article); err != nil {
				return fmt.Errorf("create article %s: %w", article.ID, err)
			}
		}

		links := []domain.ArticleSupplier{
			{ArticleID: "art-1", SupplierID: "prov-1", IsDefaultSupplier: true},
			{ArticleID: "art-2", SupplierID: "prov-2", IsDefaultSupplier: true},
			{ArticleID: "art-2", SupplierID: "prov-1"},
			{ArticleID: "art-3", SupplierID: "prov-3"},
		}
		for _, link := range links {
			if err := deps.articles.AddSupplierLink(ctx, link); err != nil {
				return fmt.Errorf("link article %s to supplier %s: %w", link.ArticleID, link.SupplierID, err)
			}
		}

		models := []domain.InventoryModel{
			{ID: "mod-1", ArticleID: "art-1", ModelType: domain.ModelTypeFixedLot, ReorderPoint: 10},
			{ID: "mod-2", ArticleID: "art-2", ModelType: domain.ModelTypeFixedInterval},
		}
		for _, model := range models {
			if err := deps.models.Create(ctx, model); err != nil {
				return fmt.Errorf("create inventory model %s: %w", model.ID, err)
			}
		}

		orders := []demoOrder{
			{id: "oc-1", number: 1, supplier: "prov-1", article: "art-1", quantity: 3, unitPrice: "12.50",
				history: []domain.StatusName{domain.StatusPending}},
			{id: "oc-2", number: 2, supplier: "prov-1", article: "art-2", quantity: 20, unitPrice: "3.10",
				history: []domain.StatusName{domain.StatusPending, domain.StatusSent}},
			{id: "oc-3", number: 3, supplier: "prov-3", article: "art-3", quantity: 5, unitPrice: "0.75",
				history: []domain.StatusName{domain.StatusPending, domain.StatusSent, domain.StatusFinalized}},
			{id: "oc-4", number: 4, supplier: "prov-3", article: "art-3", quantity: 8, unitPrice: "0.70",
				history: []domain.StatusName{domain.StatusPending, domain.StatusCanceled}},
		}
		for i, demo := range orders {
			createdAt := now.Add(time.Duration(i-len(orders)) * time.Hour)
			if err := createDemoOrder(ctx, deps, demo, createdAt); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("demo data seeded")
	return nil
}

func createDemoOrder(ctx context.Context, deps *runtimeDependencies, demo demoOrder, createdAt time.Time) error {
	price := decimal.RequireFromString(demo.unitPrice)
	detail := &domain.OrderDetail{
		ID:      demo.id + "-detail",
		OrderID: demo.id,
		Lines: []domain.OrderLine{
			{ArticleID: demo.article, UnitPrice: price, Quantity: demo.quantity},
		},
	}
	detail.TotalPrice = detail.LinesTotal()

	order := domain.PurchaseOrder{
		ID:                demo.id,
		Number:            demo.number,
		SupplierID:        demo.supplier,
		CreatedAt:         createdAt,
		ArticleID:         demo.article,
		PurchasedQuantity: demo.quantity,
		Detail:            detail,
	}
	if err := deps.orders.Create(ctx, order); err != nil {
		return fmt.Errorf("create order %s: %w", demo.id, err)
	}

	for i, name := range demo.history {
		activatedAt := createdAt.Add(time.Duration(i) * time.Minute)
		record := domain.OrderStatus{
			ID:          fmt.Sprintf("%s-st-%d", demo.id, i+1),
			OrderID:     demo.id,
			Name:        name,
			ActivatedAt: activatedAt,
		}
		if i < len(demo.history)-1 {
			record = record.Close(activatedAt.Add(time.Minute))
		}
		if err := deps.statuses.Append(ctx, record); err != nil {
			return fmt.Errorf("append status %s to order %s: %w", name, demo.id, err)
		}
	}
	return nil
}
