package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
	"github.com/vladislavdragonenkov/procurement/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/procurement/internal/service/query"
)

type statusDTO struct {
	ID            string     `json:"id"`
	OrderID       string     `json:"order_id"`
	Name          string     `json:"name"`
	ActivatedAt   time.Time  `json:"activated_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

type activeStatusResponse struct {
	OrderID      string     `json:"order_id"`
	HasStatus    bool       `json:"has_status"`
	Status       *statusDTO `json:"status,omitempty"`
	ValidTargets []string   `json:"valid_targets"`
}

type changeStatusRequest struct {
	Status string `json:"status"`
}

type reorderWarningDTO struct {
	ArticleID    string `json:"article_id"`
	ArticleName  string `json:"article_name"`
	NewStock     int64  `json:"new_stock"`
	ReorderPoint int64  `json:"reorder_point"`
	Message      string `json:"message"`
}

type finalizationDTO struct {
	ArticleID      string             `json:"article_id"`
	PreviousStock  int64              `json:"previous_stock"`
	NewStock       int64              `json:"new_stock"`
	ReorderWarning *reorderWarningDTO `json:"reorder_warning,omitempty"`
}

type transitionResponse struct {
	Status           statusDTO        `json:"status"`
	Finalization     *finalizationDTO `json:"finalization,omitempty"`
	FollowUpRequired bool             `json:"follow_up_required"`
	Code             string           `json:"code,omitempty"`
	Message          string           `json:"message,omitempty"`
}

type lineDTO struct {
	ArticleID   string          `json:"article_id"`
	ArticleName string          `json:"article_name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int64           `json:"quantity"`
}

type purchaseOrderDTO struct {
	ID                string          `json:"id"`
	Number            int64           `json:"number"`
	SupplierID        string          `json:"supplier_id"`
	SupplierName      string          `json:"supplier_name"`
	CreatedAt         time.Time       `json:"created_at"`
	ArticleID         string          `json:"article_id,omitempty"`
	PurchasedQuantity int64           `json:"purchased_quantity"`
	Status            *statusDTO      `json:"status,omitempty"`
	Total             decimal.Decimal `json:"total"`
	Lines             []lineDTO       `json:"lines"`
}

type supplierDTO struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

type timelineEventDTO struct {
	Type     string    `json:"type"`
	Reason   string    `json:"reason,omitempty"`
	Occurred time.Time `json:"occurred"`
}

type articleSupplierDTO struct {
	SupplierID   string `json:"supplier_id"`
	SupplierName string `json:"supplier_name"`
	IsDefault    bool   `json:"is_default"`
	Retired      bool   `json:"retired"`
}

type retirementCheckResponse struct {
	SupplierID string `json:"supplier_id"`
	Eligible   bool   `json:"eligible"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

func toStatusDTO(status domain.OrderStatus) statusDTO {
	return statusDTO{
		ID:            status.ID,
		OrderID:       status.OrderID,
		Name:          string(status.Name),
		ActivatedAt:   status.ActivatedAt,
		DeactivatedAt: status.DeactivatedAt,
	}
}

func toTimelineDTO(events []domain.TimelineEvent) []timelineEventDTO {
	result := make([]timelineEventDTO, 0, len(events))
	for _, event := range events {
		result = append(result, timelineEventDTO{
			Type:     event.Type,
			Reason:   event.Reason,
			Occurred: event.Occurred,
		})
	}
	return result
}

func toArticleSupplierDTO(views []query.ArticleSupplierView) []articleSupplierDTO {
	result := make([]articleSupplierDTO, 0, len(views))
	for _, view := range views {
		result = append(result, articleSupplierDTO{
			SupplierID:   view.SupplierID,
			SupplierName: view.SupplierName,
			IsDefault:    view.IsDefault,
			Retired:      view.Retired,
		})
	}
	return result
}

func toTargets(names []domain.StatusName) []string {
	result := make([]string, 0, len(names))
	for _, name := range names {
		result = append(result, string(name))
	}
	return result
}

func toTransitionResponse(result lifecycle.TransitionResult) transitionResponse {
	resp := transitionResponse{Status: toStatusDTO(result.Status)}
	fin := result.Finalization
	if fin == nil {
		return resp
	}
	resp.Finalization = &finalizationDTO{
		ArticleID:     fin.ArticleID,
		PreviousStock: fin.PreviousStock,
		NewStock:      fin.NewStock,
	}
	if w := fin.Warning; w != nil {
		resp.Finalization.ReorderWarning = &reorderWarningDTO{
			ArticleID:    w.ArticleID,
			ArticleName:  w.ArticleName,
			NewStock:     w.NewStock,
			ReorderPoint: w.ReorderPoint,
			Message:      w.String(),
		}
	}
	return resp
}

func toPurchaseOrderDTO(view query.PurchaseOrderView) purchaseOrderDTO {
	dto := purchaseOrderDTO{
		ID:                view.ID,
		Number:            view.Number,
		SupplierID:        view.SupplierID,
		SupplierName:      view.SupplierName,
		CreatedAt:         view.CreatedAt,
		ArticleID:         view.ArticleID,
		PurchasedQuantity: view.PurchasedQuantity,
		Total:             view.Total,
		Lines:             make([]lineDTO, 0, len(view.Lines)),
	}
	if view.HasStatus {
		status := toStatusDTO(view.Status)
		dto.Status = &status
	}
	for _, line := range view.Lines {
		dto.Lines = append(dto.Lines, lineDTO{
			ArticleID:   line.ArticleID,
			ArticleName: line.ArticleName,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
		})
	}
	return dto
}

func toPurchaseOrderDTOs(views []query.PurchaseOrderView) []purchaseOrderDTO {
	result := make([]purchaseOrderDTO, 0, len(views))
	for _, view := range views {
		result = append(result, toPurchaseOrderDTO(view))
	}
	return result
}

func toSupplierDTO(supplier domain.Supplier) supplierDTO {
	return supplierDTO{
		ID:            supplier.ID,
		Name:          supplier.Name,
		DeactivatedAt: supplier.DeactivatedAt,
	}
}
