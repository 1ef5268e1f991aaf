package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
	"github.com/vladislavdragonenkov/procurement/internal/service/query"
)

// ListPurchaseOrders обрабатывает GET /api/v1/purchase-orders?supplier=...&order=asc|desc.
func (s *Server) ListPurchaseOrders(c echo.Context) error {
	opts := query.ListOptions{SupplierName: c.QueryParam("supplier")}
	switch strings.ToLower(c.QueryParam("order")) {
	case "", "asc":
	case "desc":
		opts.Descending = true
	default:
		return badRequest(c, "order must be asc or desc")
	}

	views, err := s.query.ListPurchaseOrders(c.Request().Context(), opts)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(http.StatusOK, toPurchaseOrderDTOs(views))
}

// ListTransitionable обрабатывает GET /api/v1/purchase-orders/transitionable.
func (s *Server) ListTransitionable(c echo.Context) error {
	views, err := s.query.ListTransitionable(c.Request().Context())
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(http.StatusOK, toPurchaseOrderDTOs(views))
}

// GetStatus обрабатывает GET /api/v1/purchase-orders/:id/status.
func (s *Server) GetStatus(c echo.Context) error {
	orderID := c.Param("id")
	current, ok, err := s.lifecycle.GetActiveStatus(c.Request().Context(), orderID)
	if err != nil {
		return s.renderError(c, err)
	}

	resp := activeStatusResponse{OrderID: orderID, HasStatus: ok, ValidTargets: []string{}}
	if ok {
		status := toStatusDTO(current)
		resp.Status = &status
		resp.ValidTargets = toTargets(s.lifecycle.ListValidTargets(current.Name))
	}
	return c.JSON(http.StatusOK, resp)
}

// GetHistory обрабатывает GET /api/v1/purchase-orders/:id/statuses.
func (s *Server) GetHistory(c echo.Context) error {
	history, err := s.lifecycle.History(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.renderError(c, err)
	}
	result := make([]statusDTO, 0, len(history))
	for _, rec := range history {
		result = append(result, toStatusDTO(rec))
	}
	return c.JSON(http.StatusOK, result)
}

// GetTimeline обрабатывает GET /api/v1/purchase-orders/:id/timeline.
func (s *Server) GetTimeline(c echo.Context) error {
	events, err := s.query.Timeline(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(http.StatusOK, toTimelineDTO(events))
}

// ListArticleSuppliers обрабатывает GET /api/v1/articles/:id/suppliers.
func (s *Server) ListArticleSuppliers(c echo.Context) error {
	suppliers, err := s.query.ArticleSuppliers(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(http.StatusOK, toArticleSupplierDTO(suppliers))
}

// ChangeStatus обрабатывает POST /api/v1/purchase-orders/:id/status {"status": "Enviada"}.
func (s *Server) ChangeStatus(c echo.Context) error {
	var req changeStatusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	target := domain.StatusName(strings.TrimSpace(req.Status))
	if target == "" {
		return badRequest(c, "status is required")
	}

	result, err := s.lifecycle.ChangeStatus(c.Request().Context(), c.Param("id"), target)
	if err != nil && !domain.IsPartialSuccess(err) {
		return s.renderError(c, err)
	}

	resp := toTransitionResponse(result)
	if err != nil {
		resp.FollowUpRequired = true
		resp.Code = domain.ErrorCode(err)
		resp.Message = err.Error()
	}
	return c.JSON(http.StatusOK, resp)
}

// ListSuppliers обрабатывает GET /api/v1/suppliers (только активные).
func (s *Server) ListSuppliers(c echo.Context) error {
	suppliers, err := s.query.ListActiveSuppliers(c.Request().Context())
	if err != nil {
		return s.renderError(c, err)
	}
	result := make([]supplierDTO, 0, len(suppliers))
	for _, supplier := range suppliers {
		result = append(result, toSupplierDTO(supplier))
	}
	return c.JSON(http.StatusOK, result)
}

// CheckRetirement обрабатывает GET /api/v1/suppliers/:id/retirement.
func (s *Server) CheckRetirement(c echo.Context) error {
	supplierID := c.Param("id")
	err := s.retirement.Check(c.Request().Context(), supplierID)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, retirementCheckResponse{SupplierID: supplierID, Eligible: true})
	case domain.IsRetirementRefused(err):
		return c.JSON(http.StatusOK, retirementCheckResponse{
			SupplierID: supplierID,
			Code:       domain.ErrorCode(err),
			Message:    err.Error(),
		})
	default:
		return s.renderError(c, err)
	}
}

// RetireSupplier обрабатывает POST /api/v1/suppliers/:id/retire.
func (s *Server) RetireSupplier(c echo.Context) error {
	supplier, err := s.retirement.Retire(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(http.StatusOK, toSupplierDTO(supplier))
}
