package httpapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

const codeBadRequest = "bad_request"

// errorResponse: тело ответа с ошибкой; Code называет сработавшее правило.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// httpStatus сопоставляет код правила с HTTP-статусом.
func httpStatus(code string) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeInvalidTransition, domain.CodeIncompleteOrderData, domain.CodeArticleNotFound:
		return http.StatusUnprocessableEntity
	case domain.CodeDefaultSupplierInUse, domain.CodeOpenOrderExists, domain.CodeStatusConflict, domain.CodeSupplierRetired:
		return http.StatusConflict
	case domain.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	case codeBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) renderError(c echo.Context, err error) error {
	code := domain.ErrorCode(err)
	status := httpStatus(code)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.Path()).Error("unexpected api error")
		message = "internal error"
	}
	return c.JSON(status, errorResponse{Code: code, Message: message})
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Code: codeBadRequest, Message: message})
}

// handleHTTPError рендерит ошибки echo (404 маршрута, 405, panic) в общем формате.
func (s *Server) handleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code := "http_error"
		if httpErr.Code == http.StatusNotFound {
			code = domain.CodeNotFound
		}
		_ = c.JSON(httpErr.Code, errorResponse{Code: code, Message: http.StatusText(httpErr.Code)})
		return
	}
	_ = s.renderError(c, err)
}
