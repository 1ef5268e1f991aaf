package query

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

// Repositories: хранилища, из которых собираются представления заказов.
type Repositories struct {
	Orders    domain.PurchaseOrderRepository
	Statuses  domain.OrderStatusRepository
	Suppliers domain.SupplierRepository
	Articles  domain.ArticleRepository
	Timeline  domain.TimelineRepository
}

// ListOptions задаёт фильтр и сортировку списка заказов.
type ListOptions struct {
	// SupplierName: подстрока имени поставщика без учёта регистра. Пустая строка отключает фильтр.
	SupplierName string
	// Descending сортирует по CreatedAt по убыванию.
	Descending bool
}

// LineView: позиция заказа с именем артикула.
type LineView struct {
	ArticleID   string
	ArticleName string
	UnitPrice   decimal.Decimal
	Quantity    int64
}

// PurchaseOrderView: заказ в том виде, в каком его показывает список закупок.
type PurchaseOrderView struct {
	ID                string
	Number            int64
	SupplierID        string
	SupplierName      string
	CreatedAt         time.Time
	ArticleID         string
	PurchasedQuantity int64
	// HasStatus=false, если у заказа нет активной записи статуса.
	HasStatus bool
	Status    domain.OrderStatus
	Total     decimal.Decimal
	Lines     []LineView
}

// ArticleSupplierView: поставщик артикула с признаком поставщика по умолчанию.
type ArticleSupplierView struct {
	SupplierID   string
	SupplierName string
	IsDefault    bool
	Retired      bool
}

// Service отвечает на запросы чтения по заказам и поставщикам.
type Service struct {
	orders    domain.PurchaseOrderRepository
	statuses  domain.OrderStatusRepository
	suppliers domain.SupplierRepository
	articles  domain.ArticleRepository
	timeline  domain.TimelineRepository
	logger    *log.Entry
}

// NewService создаёт сервис запросов.
func NewService(repos Repositories, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "query")
	}
	return &Service{
		orders:    repos.Orders,
		statuses:  repos.Statuses,
		suppliers: repos.Suppliers,
		articles:  repos.Articles,
		timeline:  repos.Timeline,
		logger:    logger,
	}
}

// ListPurchaseOrders возвращает логически не удалённые заказы с поставщиком,
// текущим статусом и детализацией.
func (s *Service) ListPurchaseOrders(ctx context.Context, opts ListOptions) ([]PurchaseOrderView, error) {
	orders, err := s.orders.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list purchase orders: %w", err)
	}
	supplierNames, err := s.supplierNames(ctx)
	if err != nil {
		return nil, err
	}
	articleNames := make(map[string]string)

	filter := strings.ToLower(strings.TrimSpace(opts.SupplierName))
	views := make([]PurchaseOrderView, 0, len(orders))
	for _, order := range orders {
		supplierName := supplierNames[order.SupplierID]
		if supplierName == "" {
			supplierName = order.SupplierID
		}
		if filter != "" && !strings.Contains(strings.ToLower(supplierName), filter) {
			continue
		}

		view, err := s.buildView(ctx, order, supplierName, articleNames)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}

	sort.SliceStable(views, func(i, j int) bool {
		if opts.Descending {
			return views[i].CreatedAt.After(views[j].CreatedAt)
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})
	return views, nil
}

// ListTransitionable возвращает заказы активных поставщиков, статус которых ещё можно сменить.
func (s *Service) ListTransitionable(ctx context.Context) ([]PurchaseOrderView, error) {
	all, err := s.ListPurchaseOrders(ctx, ListOptions{})
	if err != nil {
		return nil, err
	}
	active, err := s.suppliers.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active suppliers: %w", err)
	}
	activeIDs := make(map[string]struct{}, len(active))
	for _, supplier := range active {
		activeIDs[supplier.ID] = struct{}{}
	}

	result := make([]PurchaseOrderView, 0, len(all))
	for _, view := range all {
		if _, ok := activeIDs[view.SupplierID]; !ok {
			continue
		}
		if view.HasStatus && view.Status.Name.IsOpen() {
			result = append(result, view)
		}
	}
	return result, nil
}

// ListActiveSuppliers возвращает поставщиков, которых ещё не выводили из оборота.
func (s *Service) ListActiveSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	suppliers, err := s.suppliers.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active suppliers: %w", err)
	}
	return suppliers, nil
}

// CountOpenOrders считает логически не удалённые заказы по текущему статусу.
// Заказы без активного статуса не учитываются.
func (s *Service) CountOpenOrders(ctx context.Context) (map[domain.StatusName]int, error) {
	orders, err := s.orders.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("count purchase orders: %w", err)
	}
	counts := make(map[domain.StatusName]int, len(domain.AllStatuses()))
	for _, name := range domain.AllStatuses() {
		counts[name] = 0
	}
	for _, order := range orders {
		current, ok, err := s.currentStatus(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			counts[current.Name]++
		}
	}
	return counts, nil
}

func (s *Service) buildView(ctx context.Context, order domain.PurchaseOrder, supplierName string, articleNames map[string]string) (PurchaseOrderView, error) {
	view := PurchaseOrderView{
		ID:                order.ID,
		Number:            order.Number,
		SupplierID:        order.SupplierID,
		SupplierName:      supplierName,
		CreatedAt:         order.CreatedAt,
		ArticleID:         order.ArticleID,
		PurchasedQuantity: order.PurchasedQuantity,
		Total:             decimal.Zero,
	}

	current, ok, err := s.currentStatus(ctx, order.ID)
	if err != nil {
		return PurchaseOrderView{}, err
	}
	view.HasStatus = ok
	view.Status = current

	if order.Detail == nil {
		return view, nil
	}
	view.Total = order.Detail.TotalPrice
	if view.Total.IsZero() {
		view.Total = order.Detail.LinesTotal()
	}
	for _, line := range order.Detail.Lines {
		name, err := s.articleName(ctx, line.ArticleID, articleNames)
		if err != nil {
			return PurchaseOrderView{}, err
		}
		view.Lines = append(view.Lines, LineView{
			ArticleID:   line.ArticleID,
			ArticleName: name,
			UnitPrice:   line.UnitPrice,
			Quantity:    line.Quantity,
		})
	}
	return view, nil
}

// Timeline возвращает журнал событий заказа: смены статуса, пополнения склада,
// предупреждения о точке заказа и сбои финализации, требующие ручного разбора.
func (s *Service) Timeline(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	if _, err := s.orders.Get(ctx, orderID); err != nil {
		return nil, fmt.Errorf("load purchase order %s: %w", orderID, err)
	}
	if s.timeline == nil {
		return []domain.TimelineEvent{}, nil
	}
	events, err := s.timeline.List(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list timeline of %s: %w", orderID, err)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Occurred.Before(events[j].Occurred)
	})
	return events, nil
}

// ArticleSuppliers возвращает поставщиков артикула; поставщик по умолчанию идёт первым.
func (s *Service) ArticleSuppliers(ctx context.Context, articleID string) ([]ArticleSupplierView, error) {
	if _, err := s.articles.Get(ctx, articleID); err != nil {
		return nil, fmt.Errorf("load article %s: %w", articleID, err)
	}
	links, err := s.articles.ListSupplierLinks(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("list suppliers of %s: %w", articleID, err)
	}

	result := make([]ArticleSupplierView, 0, len(links))
	for _, link := range links {
		view := ArticleSupplierView{
			SupplierID:   link.SupplierID,
			SupplierName: link.SupplierID,
			IsDefault:    link.IsDefaultSupplier,
		}
		supplier, err := s.suppliers.Get(ctx, link.SupplierID)
		switch {
		case err == nil:
			view.SupplierName = supplier.Name
			view.Retired = !supplier.IsActive()
		case domain.IsStoreUnavailable(err):
			return nil, fmt.Errorf("load supplier %s: %w", link.SupplierID, err)
		}
		result = append(result, view)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].IsDefault != result[j].IsDefault {
			return result[i].IsDefault
		}
		return result[i].SupplierID < result[j].SupplierID
	})
	return result, nil
}

func (s *Service) currentStatus(ctx context.Context, orderID string) (domain.OrderStatus, bool, error) {
	records, err := s.statuses.ListActive(ctx, orderID)
	if err != nil {
		return domain.OrderStatus{}, false, fmt.Errorf("load status of %s: %w", orderID, err)
	}
	current, ok := domain.CurrentStatus(records)
	return current, ok, nil
}

func (s *Service) supplierNames(ctx context.Context) (map[string]string, error) {
	suppliers, err := s.suppliers.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list suppliers: %w", err)
	}
	names := make(map[string]string, len(suppliers))
	for _, supplier := range suppliers {
		names[supplier.ID] = supplier.Name
	}
	return names, nil
}

// articleName возвращает имя артикула, а для неизвестного артикула его ID.
func (s *Service) articleName(ctx context.Context, articleID string, cache map[string]string) (string, error) {
	if name, ok := cache[articleID]; ok {
		return name, nil
	}
	article, err := s.articles.Get(ctx, articleID)
	switch {
	case err == nil:
		cache[articleID] = article.Name
	case domain.IsStoreUnavailable(err):
		return "", fmt.Errorf("load article %s: %w", articleID, err)
	default:
		s.logger.WithError(err).WithField("article_id", articleID).Debug("article not resolved, using id")
		cache[articleID] = articleID
	}
	return cache[articleID], nil
}
