package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
)

// Store: общее in-memory хранилище для локальной разработки и тестов.
// Все репозитории работают поверх одного мьютекса, поэтому WithinTx
// даёт атомарность на уровне всего хранилища.
type Store struct {
	mu sync.RWMutex

	orders    map[string]domain.PurchaseOrder
	statuses  map[string][]domain.OrderStatus
	articles  map[string]domain.Article
	links     map[string]map[string]domain.ArticleSupplier
	suppliers map[string]domain.Supplier
	models    map[string]domain.InventoryModel
	timeline  map[string][]domain.TimelineEvent
	outbox    map[string]outboxRecord
	outboxSeq int64
}

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		orders:    make(map[string]domain.PurchaseOrder),
		statuses:  make(map[string][]domain.OrderStatus),
		articles:  make(map[string]domain.Article),
		links:     make(map[string]map[string]domain.ArticleSupplier),
		suppliers: make(map[string]domain.Supplier),
		models:    make(map[string]domain.InventoryModel),
		timeline:  make(map[string][]domain.TimelineEvent),
		outbox:    make(map[string]outboxRecord),
	}
}

type txKey struct{}

// WithinTx выполняет fn под эксклюзивной блокировкой. При ошибке состояние
// хранилища откатывается к снимку, сделанному до вызова fn.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return domain.StoreError("begin tx", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// view выполняет fn под блокировкой чтения (если вызов не внутри WithinTx).
func (s *Store) view(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return domain.StoreError(op, err)
	}
	if s.inTx(ctx) {
		return fn()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn()
}

// update выполняет fn под блокировкой записи (если вызов не внутри WithinTx).
func (s *Store) update(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return domain.StoreError(op, err)
	}
	if s.inTx(ctx) {
		return fn()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}

type snapshot struct {
	orders    map[string]domain.PurchaseOrder
	statuses  map[string][]domain.OrderStatus
	articles  map[string]domain.Article
	links     map[string]map[string]domain.ArticleSupplier
	suppliers map[string]domain.Supplier
	models    map[string]domain.InventoryModel
	timeline  map[string][]domain.TimelineEvent
	outbox    map[string]outboxRecord
	outboxSeq int64
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		orders:    make(map[string]domain.PurchaseOrder, len(s.orders)),
		statuses:  make(map[string][]domain.OrderStatus, len(s.statuses)),
		articles:  make(map[string]domain.Article, len(s.articles)),
		links:     make(map[string]map[string]domain.ArticleSupplier, len(s.links)),
		suppliers: make(map[string]domain.Supplier, len(s.suppliers)),
		models:    make(map[string]domain.InventoryModel, len(s.models)),
		timeline:  make(map[string][]domain.TimelineEvent, len(s.timeline)),
		outbox:    make(map[string]outboxRecord, len(s.outbox)),
		outboxSeq: s.outboxSeq,
	}
	for k, v := range s.orders {
		snap.orders[k] = v
	}
	for k, v := range s.statuses {
		snap.statuses[k] = append([]domain.OrderStatus(nil), v...)
	}
	for k, v := range s.articles {
		snap.articles[k] = v
	}
	for k, v := range s.links {
		inner := make(map[string]domain.ArticleSupplier, len(v))
		for sk, sv := range v {
			inner[sk] = sv
		}
		snap.links[k] = inner
	}
	for k, v := range s.suppliers {
		snap.suppliers[k] = v
	}
	for k, v := range s.models {
		snap.models[k] = v
	}
	for k, v := range s.timeline {
		snap.timeline[k] = append([]domain.TimelineEvent(nil), v...)
	}
	for k, v := range s.outbox {
		snap.outbox[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.orders = snap.orders
	s.statuses = snap.statuses
	s.articles = snap.articles
	s.links = snap.links
	s.suppliers = snap.suppliers
	s.models = snap.models
	s.timeline = snap.timeline
	s.outbox = snap.outbox
	s.outboxSeq = snap.outboxSeq
}

// PurchaseOrders возвращает репозиторий заказов поверх хранилища.
func (s *Store) PurchaseOrders() domain.PurchaseOrderRepository { return purchaseOrderRepository{s} }

// OrderStatuses возвращает репозиторий истории статусов.
func (s *Store) OrderStatuses() domain.OrderStatusRepository { return orderStatusRepository{s} }

// Articles возвращает репозиторий артикулов.
func (s *Store) Articles() domain.ArticleRepository { return articleRepository{s} }

// Suppliers возвращает репозиторий поставщиков.
func (s *Store) Suppliers() domain.SupplierRepository { return supplierRepository{s} }

// InventoryModels возвращает репозиторий моделей запасов.
func (s *Store) InventoryModels() domain.InventoryModelRepository { return inventoryModelRepository{s} }

// Timeline возвращает журнал событий заказов.
func (s *Store) Timeline() domain.TimelineRepository { return timelineRepository{s} }

// Outbox возвращает in-memory outbox.
func (s *Store) Outbox() *OutboxRepository { return &OutboxRepository{s} }

func sortStatuses(records []domain.OrderStatus) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].ActivatedAt.Equal(records[j].ActivatedAt) {
			return records[i].ActivatedAt.Before(records[j].ActivatedAt)
		}
		return records[i].ID < records[j].ID
	})
}

var _ domain.Transactor = (*Store)(nil)
