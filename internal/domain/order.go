package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderLine представляет одну позицию детализации заказа.
type OrderLine struct {
	// ArticleID: идентификатор закупаемого артикула.
	ArticleID string
	// UnitPrice: цена за единицу.
	UnitPrice decimal.Decimal
	// Quantity: количество единиц.
	Quantity int64
}

// OrderDetail хранит позиции заказа и итоговую сумму. В наблюдаемых данных у заказа одна детализация.
type OrderDetail struct {
	ID         string
	OrderID    string
	TotalPrice decimal.Decimal
	Lines      []OrderLine
}

// LinesTotal считает сумму позиций: qty * unit price.
func (d OrderDetail) LinesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range d.Lines {
		total = total.Add(line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)))
	}
	return total
}

// PurchaseOrder: заказ на закупку у поставщика.
// ArticleID и PurchasedQuantity используются при финализации для пополнения склада.
type PurchaseOrder struct {
	ID                string
	Number            int64
	SupplierID        string
	CreatedAt         time.Time
	ArticleID         string
	PurchasedQuantity int64
	DeactivatedAt     *time.Time
	// Detail может отсутствовать, если детализация не заведена.
	Detail *OrderDetail
}

// IsActive сообщает, что заказ не удалён логически.
func (o PurchaseOrder) IsActive() bool {
	return o.DeactivatedAt == nil
}

// HasFinalizationData проверяет, что у заказа заданы артикул и количество.
// Отрицательное количество считается заданным: при финализации оно приводится к нулю.
func (o PurchaseOrder) HasFinalizationData() bool {
	return o.ArticleID != "" && o.PurchasedQuantity != 0
}

// NonNegative приводит значение к неотрицательному: некорректные значения считаются нулём.
func NonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
