package retirement_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
	"github.com/vladislavdragonenkov/procurement/internal/metrics"
	"github.com/vladislavdragonenkov/procurement/internal/service/retirement"
	"github.com/vladislavdragonenkov/procurement/internal/storage/memory"
)

var (
	base      = time.Date(2025, 6, 2, 8, 30, 0, 0, time.UTC)
	retiredAt = base.Add(24 * time.Hour)
)

func newValidator(t *testing.T) (*memory.Store, *retirement.Validator) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()

	require.NoError(t, store.Suppliers().Create(ctx, domain.Supplier{ID: "prov-1", Name: "Ferretería Sur"}))
	require.NoError(t, store.Articles().Create(ctx, domain.Article{ID: "art-1", Name: "Tornillo", CurrentStock: 10}))
	require.NoError(t, store.Articles().Create(ctx, domain.Article{ID: "art-2", Name: "Tuerca", CurrentStock: 4}))

	validator := retirement.NewValidator(retirement.Repositories{
		Suppliers: store.Suppliers(),
		Articles:  store.Articles(),
		Orders:    store.PurchaseOrders(),
		Statuses:  store.OrderStatuses(),
	},
		retirement.WithTransactor(store),
		retirement.WithOutbox(store.Outbox()),
		retirement.WithMetrics(metrics.NewProcurementMetricsWithRegisterer(prometheus.NewRegistry())),
		retirement.WithClock(func() time.Time { return retiredAt }),
	)
	return store, validator
}

func addOrder(t *testing.T, store *memory.Store, id string, status domain.StatusName, deleted bool) {
	t.Helper()
	ctx := context.Background()
	order := domain.PurchaseOrder{ID: id, SupplierID: "prov-1", CreatedAt: base, ArticleID: "art-1", PurchasedQuantity: 2}
	if deleted {
		at := base.Add(time.Hour)
		order.DeactivatedAt = &at
	}
	require.NoError(t, store.PurchaseOrders().Create(ctx, order))
	if status != "" {
		require.NoError(t, store.OrderStatuses().Append(ctx, domain.OrderStatus{
			ID: id + "-st", OrderID: id, Name: status, ActivatedAt: base,
		}))
	}
}

func TestCheck_DefaultSupplierTakesPrecedence(t *testing.T) {
	ctx := context.Background()
	store, validator := newValidator(t)

	require.NoError(t, store.Articles().AddSupplierLink(ctx, domain.ArticleSupplier{ArticleID: "art-2", SupplierID: "prov-1", IsDefaultSupplier: true}))
	addOrder(t, store, "oc-1", domain.StatusSent, false)

	err := validator.Check(ctx, "prov-1")
	var refusal *domain.RetirementError
	require.ErrorAs(t, err, &refusal)
	assert.ErrorIs(t, err, domain.ErrDefaultSupplierInUse)
	assert.Equal(t, "art-2", refusal.ArticleID)
	assert.True(t, domain.IsRetirementRefused(err))
}

func TestCheck_OpenOrders(t *testing.T) {
	tests := []struct {
		name    string
		status  domain.StatusName
		deleted bool
		wantErr bool
	}{
		{name: "pending order blocks", status: domain.StatusPending, wantErr: true},
		{name: "sent order blocks", status: domain.StatusSent, wantErr: true},
		{name: "finalized order allows", status: domain.StatusFinalized},
		{name: "canceled order allows", status: domain.StatusCanceled},
		{name: "deleted pending order allows", status: domain.StatusPending, deleted: true},
		{name: "order without status allows"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			store, validator := newValidator(t)
			addOrder(t, store, "oc-1", tt.status, tt.deleted)

			err := validator.Check(context.Background(), "prov-1")
			if !tt.wantErr {
				require.NoError(t, err)
				return
			}
			var refusal *domain.RetirementError
			require.ErrorAs(t, err, &refusal)
			assert.ErrorIs(t, err, domain.ErrOpenOrderExists)
			assert.Equal(t, "oc-1", refusal.OrderID)
		})
	}
}

func TestCheck_IgnoresNonDefaultAndDeletedArticleLinks(t *testing.T) {
	ctx := context.Background()
	store, validator := newValidator(t)

	require.NoError(t, store.Articles().AddSupplierLink(ctx, domain.ArticleSupplier{ArticleID: "art-1", SupplierID: "prov-1"}))
	deleted := base
	require.NoError(t, store.Articles().Create(ctx, domain.Article{ID: "art-3", Name: "Arandela", DeactivatedAt: &deleted}))
	require.NoError(t, store.Articles().AddSupplierLink(ctx, domain.ArticleSupplier{ArticleID: "art-3", SupplierID: "prov-1", IsDefaultSupplier: true}))

	assert.NoError(t, validator.Check(ctx, "prov-1"))
}

func TestCheck_LatestDuplicateStatusDecides(t *testing.T) {
	ctx := context.Background()
	store, validator := newValidator(t)
	addOrder(t, store, "oc-1", "", false)

	require.NoError(t, store.Import(ctx,
		domain.OrderStatus{ID: "a", OrderID: "oc-1", Name: domain.StatusPending, ActivatedAt: base},
		domain.OrderStatus{ID: "b", OrderID: "oc-1", Name: domain.StatusCanceled, ActivatedAt: base.Add(time.Minute)},
	))
	assert.NoError(t, validator.Check(ctx, "prov-1"))

	require.NoError(t, store.Import(ctx,
		domain.OrderStatus{ID: "c", OrderID: "oc-1", Name: domain.StatusSent, ActivatedAt: base.Add(2 * time.Minute)},
	))
	assert.ErrorIs(t, validator.Check(ctx, "prov-1"), domain.ErrOpenOrderExists)
}

func TestRetire_Success(t *testing.T) {
	ctx := context.Background()
	store, validator := newValidator(t)
	addOrder(t, store, "oc-1", domain.StatusFinalized, false)
	addOrder(t, store, "oc-2", domain.StatusCanceled, false)

	supplier, err := validator.Retire(ctx, "prov-1")
	require.NoError(t, err)
	require.NotNil(t, supplier.DeactivatedAt)
	assert.Equal(t, retiredAt, *supplier.DeactivatedAt)

	stored, err := store.Suppliers().Get(ctx, "prov-1")
	require.NoError(t, err)
	assert.False(t, stored.IsActive())

	active, err := store.Suppliers().ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	pending := store.Outbox().AllPending()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.EventSupplierRetired, pending[0].EventType)
	assert.Equal(t, domain.AggregateSupplier, pending[0].AggregateType)

	_, err = validator.Retire(ctx, "prov-1")
	assert.ErrorIs(t, err, domain.ErrSupplierRetired)
}

func TestRetire_Refused(t *testing.T) {
	ctx := context.Background()
	store, validator := newValidator(t)
	addOrder(t, store, "oc-1", domain.StatusPending, false)

	_, err := validator.Retire(ctx, "prov-1")
	require.ErrorIs(t, err, domain.ErrOpenOrderExists)

	stored, err := store.Suppliers().Get(ctx, "prov-1")
	require.NoError(t, err)
	assert.True(t, stored.IsActive())

	pending := store.Outbox().AllPending()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.EventSupplierRetirementRefused, pending[0].EventType)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	assert.Equal(t, "open_order_exists", payload["rule"])
	assert.Equal(t, "oc-1", payload["order_id"])
}

func TestRetire_UnknownSupplier(t *testing.T) {
	_, validator := newValidator(t)

	_, err := validator.Retire(context.Background(), "prov-404")
	assert.ErrorIs(t, err, domain.ErrSupplierNotFound)
}

func TestRetire_CanceledContext(t *testing.T) {
	_, validator := newValidator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := validator.Retire(ctx, "prov-1")
	assert.True(t, domain.IsStoreUnavailable(err))
}
