package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func newIsolatedMetrics(t *testing.T) (*ProcurementMetrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewProcurementMetricsWithRegisterer(reg), reg
}

func TestNewProcurementMetrics(t *testing.T) {
	m := NewProcurementMetrics()
	if m == nil {
		t.Fatal("NewProcurementMetrics should not return nil")
	}
	if m.transitions == nil || m.finalizations == nil || m.retirements == nil {
		t.Fatal("counter vectors should be initialized")
	}
	if m.openOrders == nil {
		t.Fatal("open orders gauge should be initialized")
	}

	// Повторная регистрация в том же registerer не должна паниковать.
	again := NewProcurementMetrics()
	if again.transitions != m.transitions {
		t.Fatal("expected existing collector to be reused")
	}
}

func TestRecordTransition(t *testing.T) {
	m, _ := newIsolatedMetrics(t)

	m.RecordTransition("Pendiente", "Enviada", ResultOK)
	m.RecordTransition("Pendiente", "Enviada", ResultOK)
	m.RecordTransition("", "Enviada", ResultRejected)

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("Pendiente", "Enviada", ResultOK)); got != 2 {
		t.Fatalf("expected 2 ok transitions, got %f", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("none", "Enviada", ResultRejected)); got != 1 {
		t.Fatalf("expected rejected transition without current status, got %f", got)
	}
}

func TestRecordFinalizationAndWarnings(t *testing.T) {
	m, _ := newIsolatedMetrics(t)

	m.RecordFinalization(ResultOK)
	m.RecordFinalization(ResultPartial)
	m.RecordReorderWarning()

	if got := testutil.ToFloat64(m.finalizations.WithLabelValues(ResultPartial)); got != 1 {
		t.Fatalf("expected 1 partial finalization, got %f", got)
	}
	if got := testutil.ToFloat64(m.reorderWarnings); got != 1 {
		t.Fatalf("expected 1 reorder warning, got %f", got)
	}
}

func TestRecordRetirement(t *testing.T) {
	m, _ := newIsolatedMetrics(t)

	m.RecordRetirement(ResultRejected)
	m.RecordRetirement(ResultOK)

	if got := testutil.ToFloat64(m.retirements.WithLabelValues(ResultRejected)); got != 1 {
		t.Fatalf("expected 1 rejected retirement, got %f", got)
	}
}

func TestRecordTransitionDuration(t *testing.T) {
	m, _ := newIsolatedMetrics(t)

	m.RecordTransitionDuration(20 * time.Millisecond)

	metric := &dto.Metric{}
	if err := m.transitionDuration.Write(metric); err != nil {
		t.Fatalf("failed to write histogram: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 1 {
		t.Fatalf("expected 1 sample, got %d", metric.Histogram.GetSampleCount())
	}
}

func TestSetOpenOrders_ResetsMissingStatuses(t *testing.T) {
	m, reg := newIsolatedMetrics(t)

	m.SetOpenOrders(map[string]int{"Pendiente": 3, "Enviada": 1})
	m.SetOpenOrders(map[string]int{"Enviada": 2})

	if got := testutil.ToFloat64(m.openOrders.WithLabelValues("Enviada")); got != 2 {
		t.Fatalf("expected 2 sent orders, got %f", got)
	}
	if got := testutil.CollectAndCount(reg, "procurement_purchase_orders"); got != 1 {
		t.Fatalf("expected one series after reset, got %d", got)
	}
}

func TestTimelineAndOutboxCounters(t *testing.T) {
	m, _ := newIsolatedMetrics(t)

	m.RecordTimelineEvent()
	m.RecordOutboxEvent()
	m.RecordOutboxEvent()

	if got := testutil.ToFloat64(m.timelineEvents); got != 1 {
		t.Fatalf("expected 1 timeline event, got %f", got)
	}
	if got := testutil.ToFloat64(m.outboxEvents); got != 2 {
		t.Fatalf("expected 2 outbox events, got %f", got)
	}
}
