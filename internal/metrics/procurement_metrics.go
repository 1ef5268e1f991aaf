package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Метки результата операций.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultConflict = "conflict"
	ResultError    = "error"
	ResultPartial  = "partial"
)

// ProcurementMetrics содержит метрики жизненного цикла заказов на закупку.
type ProcurementMetrics struct {
	transitions        *prometheus.CounterVec
	transitionDuration prometheus.Histogram
	finalizations      *prometheus.CounterVec
	reorderWarnings    prometheus.Counter
	retirements        *prometheus.CounterVec
	timelineEvents     prometheus.Counter
	outboxEvents       prometheus.Counter
	openOrders         *prometheus.GaugeVec
}

// NewProcurementMetrics создаёт метрики в DefaultRegisterer.
func NewProcurementMetrics() *ProcurementMetrics {
	return NewProcurementMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewProcurementMetricsWithRegisterer создаёт метрики в указанном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewProcurementMetricsWithRegisterer(registerer prometheus.Registerer) *ProcurementMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &ProcurementMetrics{
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "procurement_status_transitions_total",
			Help: "Purchase order status change requests grouped by from, to and result.",
		}, []string{"from", "to", "result"}),
		transitionDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "procurement_status_transition_duration_seconds",
			Help:    "Duration of purchase order status changes in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		finalizations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "procurement_finalizations_total",
			Help: "Inventory updates on finalization grouped by result.",
		}, []string{"result"}),
		reorderWarnings: registerCounter(registerer, prometheus.CounterOpts{
			Name: "procurement_reorder_warnings_total",
			Help: "Total number of reorder point warnings raised on finalization.",
		}),
		retirements: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "procurement_supplier_retirements_total",
			Help: "Supplier retirement checks grouped by result.",
		}, []string{"result"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "procurement_timeline_events_total",
			Help: "Total number of timeline events recorded.",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "procurement_outbox_events_total",
			Help: "Total number of events enqueued to the outbox.",
		}),
		openOrders: registerGaugeVec(registerer, prometheus.GaugeOpts{
			Name: "procurement_purchase_orders",
			Help: "Number of active purchase orders grouped by current status.",
		}, []string{"status"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerGaugeVec(registerer prometheus.Registerer, opts prometheus.GaugeOpts, labels []string) *prometheus.GaugeVec {
	collector := prometheus.NewGaugeVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.GaugeVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordTransition учитывает запрос смены статуса. Пустой from означает отсутствие текущего статуса.
func (m *ProcurementMetrics) RecordTransition(from, to, result string) {
	if from == "" {
		from = "none"
	}
	m.transitions.WithLabelValues(from, to, result).Inc()
}

// RecordTransitionDuration записывает время смены статуса.
func (m *ProcurementMetrics) RecordTransitionDuration(duration time.Duration) {
	m.transitionDuration.Observe(duration.Seconds())
}

// RecordFinalization учитывает результат обновления склада.
func (m *ProcurementMetrics) RecordFinalization(result string) {
	m.finalizations.WithLabelValues(result).Inc()
}

// RecordReorderWarning увеличивает счётчик предупреждений о точке заказа.
func (m *ProcurementMetrics) RecordReorderWarning() {
	m.reorderWarnings.Inc()
}

// RecordRetirement учитывает результат проверки вывода поставщика.
func (m *ProcurementMetrics) RecordRetirement(result string) {
	m.retirements.WithLabelValues(result).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *ProcurementMetrics) RecordTimelineEvent() {
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *ProcurementMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}

// SetOpenOrders выставляет количество активных заказов по статусам.
// Статусы, отсутствующие в counts, обнуляются.
func (m *ProcurementMetrics) SetOpenOrders(counts map[string]int) {
	m.openOrders.Reset()
	for status, count := range counts {
		m.openOrders.WithLabelValues(status).Set(float64(count))
	}
}
