package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
	"github.com/vladislavdragonenkov/procurement/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/procurement/internal/service/query"
)

// LifecycleService: операции жизненного цикла заказа, которые нужны API.
type LifecycleService interface {
	GetActiveStatus(ctx context.Context, orderID string) (domain.OrderStatus, bool, error)
	ListValidTargets(current domain.StatusName) []domain.StatusName
	ChangeStatus(ctx context.Context, orderID string, target domain.StatusName) (lifecycle.TransitionResult, error)
	History(ctx context.Context, orderID string) ([]domain.OrderStatus, error)
}

// RetirementService: проверка и вывод поставщиков.
type RetirementService interface {
	Check(ctx context.Context, supplierID string) error
	Retire(ctx context.Context, supplierID string) (domain.Supplier, error)
}

// QueryService: запросы чтения списков.
type QueryService interface {
	ListPurchaseOrders(ctx context.Context, opts query.ListOptions) ([]query.PurchaseOrderView, error)
	ListTransitionable(ctx context.Context) ([]query.PurchaseOrderView, error)
	ListActiveSuppliers(ctx context.Context) ([]domain.Supplier, error)
	Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error)
	ArticleSuppliers(ctx context.Context, articleID string) ([]query.ArticleSupplierView, error)
}

// Server обслуживает JSON API закупок.
type Server struct {
	lifecycle  LifecycleService
	retirement RetirementService
	query      QueryService
	logger     *log.Entry
}

// NewServer создаёт HTTP-обработчики API.
func NewServer(lifecycle LifecycleService, retirement RetirementService, query QueryService, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &Server{
		lifecycle:  lifecycle,
		retirement: retirement,
		query:      query,
		logger:     logger,
	}
}

// Register подключает маршруты /api/v1 к echo.
func (s *Server) Register(e *echo.Echo) {
	api := e.Group("/api/v1")

	api.GET("/purchase-orders", s.ListPurchaseOrders)
	api.GET("/purchase-orders/transitionable", s.ListTransitionable)
	api.GET("/purchase-orders/:id/status", s.GetStatus)
	api.GET("/purchase-orders/:id/statuses", s.GetHistory)
	api.GET("/purchase-orders/:id/timeline", s.GetTimeline)
	api.POST("/purchase-orders/:id/status", s.ChangeStatus)

	api.GET("/articles/:id/suppliers", s.ListArticleSuppliers)

	api.GET("/suppliers", s.ListSuppliers)
	api.GET("/suppliers/:id/retirement", s.CheckRetirement)
	api.POST("/suppliers/:id/retire", s.RetireSupplier)
}

// NewEcho собирает echo с recover, логированием запросов и маршрутами API.
func NewEcho(s *Server) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleHTTPError

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(s.logger))

	s.Register(e)
	return e
}

// NewHTTPServer оборачивает echo в http.Server с таймаутами.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
