package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
	"github.com/vladislavdragonenkov/procurement/internal/metrics"
)

const (
	defaultSchedule = "@every 30s"
	defaultTimeout  = 10 * time.Second
)

var snapshotRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "procurement_open_orders_snapshot_runs_total",
	Help: "Total number of open purchase order snapshot runs grouped by result.",
}, []string{"result"})

// OrderCounter считает заказы по текущему статусу.
type OrderCounter interface {
	CountOpenOrders(ctx context.Context) (map[domain.StatusName]int, error)
}

// OpenOrdersOptions задаёт параметры задачи.
type OpenOrdersOptions struct {
	Logger   *log.Entry
	Schedule string
	Timeout  time.Duration
}

// OpenOrdersOption настраивает OpenOrdersJob.
type OpenOrdersOption func(*OpenOrdersOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) OpenOrdersOption {
	return func(opts *OpenOrdersOptions) {
		opts.Logger = logger
	}
}

// WithSchedule задаёт cron-расписание (поддерживаются секунды и дескрипторы вида "@every 1m").
func WithSchedule(schedule string) OpenOrdersOption {
	return func(opts *OpenOrdersOptions) {
		opts.Schedule = schedule
	}
}

// WithTimeout ограничивает длительность одного снимка.
func WithTimeout(timeout time.Duration) OpenOrdersOption {
	return func(opts *OpenOrdersOptions) {
		opts.Timeout = timeout
	}
}

// OpenOrdersJob по расписанию публикует число заказов по статусам в gauge
// procurement_purchase_orders.
type OpenOrdersJob struct {
	counter  OrderCounter
	metrics  *metrics.ProcurementMetrics
	cron     *cron.Cron
	logger   *log.Entry
	schedule string
	timeout  time.Duration
}

// NewOpenOrdersJob создаёт задачу снимка открытых заказов.
func NewOpenOrdersJob(counter OrderCounter, m *metrics.ProcurementMetrics, options ...OpenOrdersOption) *OpenOrdersJob {
	opts := OpenOrdersOptions{
		Schedule: defaultSchedule,
		Timeout:  defaultTimeout,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "open-orders-job")
	}
	if opts.Schedule == "" {
		opts.Schedule = defaultSchedule
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}

	return &OpenOrdersJob{
		counter:  counter,
		metrics:  m,
		cron:     cron.New(cron.WithSeconds()),
		logger:   logger,
		schedule: opts.Schedule,
		timeout:  opts.Timeout,
	}
}

// Run делает первый снимок сразу, затем по расписанию до отмены ctx.
func (j *OpenOrdersJob) Run(ctx context.Context) error {
	if j.counter == nil || j.metrics == nil {
		j.logger.Warn("open orders job is disabled: counter or metrics is nil")
		return nil
	}

	if _, err := j.cron.AddFunc(j.schedule, func() { j.snapshot(ctx) }); err != nil {
		return fmt.Errorf("schedule open orders job %q: %w", j.schedule, err)
	}

	j.snapshot(ctx)
	j.cron.Start()
	j.logger.WithField("schedule", j.schedule).Info("open orders job started")

	<-ctx.Done()
	<-j.cron.Stop().Done()
	j.logger.Info("open orders job stopped")
	return nil
}

// Snapshot считает заказы и обновляет gauge.
func (j *OpenOrdersJob) Snapshot(ctx context.Context) (map[domain.StatusName]int, error) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	counts, err := j.counter.CountOpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int, len(counts))
	for name, count := range counts {
		byName[string(name)] = count
	}
	j.metrics.SetOpenOrders(byName)
	return counts, nil
}

func (j *OpenOrdersJob) snapshot(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	counts, err := j.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		snapshotRunsTotal.WithLabelValues("error").Inc()
		j.logger.WithError(err).Warn("open orders snapshot failed")
		return
	}
	snapshotRunsTotal.WithLabelValues("ok").Inc()
	j.logger.WithFields(log.Fields{
		"pending": counts[domain.StatusPending],
		"sent":    counts[domain.StatusSent],
	}).Debug("open orders snapshot updated")
}
