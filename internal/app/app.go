package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthcheck "github.com/vladislavdragonenkov/procurement/internal/health"
	"github.com/vladislavdragonenkov/procurement/internal/jobs"
	"github.com/vladislavdragonenkov/procurement/internal/metrics"
	"github.com/vladislavdragonenkov/procurement/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/procurement/internal/service/outbox"
	"github.com/vladislavdragonenkov/procurement/internal/service/query"
	"github.com/vladislavdragonenkov/procurement/internal/service/retirement"
	"github.com/vladislavdragonenkov/procurement/internal/transport/grpcapi"
	"github.com/vladislavdragonenkov/procurement/internal/transport/httpapi"
	"github.com/vladislavdragonenkov/procurement/internal/version"
)

const shutdownTimeout = 5 * time.Second

// services: прикладной слой поверх выбранного хранилища.
type services struct {
	lifecycle  *lifecycle.Manager
	retirement *retirement.Validator
	query      *query.Service
}

func newServices(cfg Config, deps *runtimeDependencies, m *metrics.ProcurementMetrics, logger *log.Entry) services {
	manager := lifecycle.NewManager(
		lifecycle.Repositories{
			Orders:   deps.orders,
			Statuses: deps.statuses,
			Articles: deps.articles,
			Models:   deps.models,
		},
		lifecycle.WithLogger(logger.WithField("component", "lifecycle")),
		lifecycle.WithMetrics(m),
		lifecycle.WithOutbox(deps.outbox),
		lifecycle.WithTimeline(deps.timeline),
		lifecycle.WithTransactor(deps.transactor),
		lifecycle.WithFinalizationMode(lifecycle.FinalizationMode(cfg.FinalizationMode)),
	)

	validator := retirement.NewValidator(
		retirement.Repositories{
			Suppliers: deps.suppliers,
			Articles:  deps.articles,
			Orders:    deps.orders,
			Statuses:  deps.statuses,
		},
		retirement.WithLogger(logger.WithField("component", "retirement")),
		retirement.WithMetrics(m),
		retirement.WithOutbox(deps.outbox),
		retirement.WithTransactor(deps.transactor),
	)

	queries := query.NewService(query.Repositories{
		Orders:    deps.orders,
		Statuses:  deps.statuses,
		Suppliers: deps.suppliers,
		Articles:  deps.articles,
		Timeline:  deps.timeline,
	}, logger.WithField("component", "query"))

	return services{lifecycle: manager, retirement: validator, query: queries}
}

// Run поднимает HTTP API, gRPC, ops-сервер, outbox worker и задачу снимка
// открытых заказов. Возвращает ctx.Err() после штатной остановки.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close(logger)

	if cfg.SeedDemoData {
		if err := seedDemoData(ctx, deps, time.Now().UTC(), logger); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	procurementMetrics := metrics.NewProcurementMetrics()
	svc := newServices(cfg, deps, procurementMetrics, logger)
	logger.WithField("finalization_mode", svc.lifecycle.Mode()).Info("lifecycle manager configured")

	kafkaProducer, _ := initKafkaProducer(cfg.Brokers(), logger)
	defer closeKafka(kafkaProducer, logger)

	publisher, dlqPublisher := newOutboxPublishers(kafkaProducer, logger)
	workerOptions := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if dlqPublisher != nil {
		workerOptions = append(workerOptions, outbox.WithDLQPublisher(dlqPublisher))
	}
	worker := outbox.NewWorker(deps.outbox, publisher, workerOptions...)

	job := jobs.NewOpenOrdersJob(svc.query, procurementMetrics,
		jobs.WithLogger(logger.WithField("component", "open-orders-job")),
		jobs.WithSchedule(cfg.OpenOrdersSchedule),
	)

	healthHandler := newHealthHandler(cfg, deps)

	grpcServer, grpcHealth := grpcapi.NewServer(
		grpcapi.NewService(svc.lifecycle, svc.retirement, logger.WithField("layer", "grpc")),
		prometheus.DefaultRegisterer,
		logger.WithField("layer", "grpc"),
	)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}

	api := httpapi.NewServer(svc.lifecycle, svc.retirement, svc.query, logger.WithField("layer", "http"))
	httpServer := httpapi.NewHTTPServer(cfg.HTTPAddr, httpapi.NewEcho(api))
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	metricsSrv := startMetricsServer(runCtx, cfg.MetricsAddr, logger, healthHandler)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(runCtx)
	}()

	jobDone := make(chan struct{})
	go func() {
		defer close(jobDone)
		if err := job.Run(runCtx); err != nil {
			logger.WithError(err).Warn("open orders job stopped")
		}
	}()

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", httpLis.Addr())
		if err := httpServer.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервисы")
		runErr = ctx.Err()
	case runErr = <-errCh:
		logger.WithError(runErr).Error("сервер завершился с ошибкой")
	}

	cancelRun()
	shutdownGRPC(grpcServer, grpcHealth, logger)
	shutdownHTTP(httpServer, logger)
	shutdownHTTP(metricsSrv, logger)
	waitDone(workerDone, "outbox worker", logger)
	waitDone(jobDone, "open orders job", logger)

	return runErr
}

func newHealthHandler(cfg Config, deps *runtimeDependencies) *healthcheck.Handler {
	handler := healthcheck.NewHandler(version.GetVersion())
	if deps.storageChecker != nil {
		handler.RegisterChecker("storage", deps.storageChecker)
	}
	if deps.outbox != nil && cfg.OutboxMaxPending > 0 {
		maxPending := cfg.OutboxMaxPending
		handler.RegisterChecker("outbox", healthcheck.NewOptionalChecker("outbox", func(ctx context.Context) error {
			stats, err := deps.outbox.Stats(ctx)
			if err != nil {
				return err
			}
			if stats.PendingCount > maxPending {
				return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, maxPending)
			}
			return nil
		}))
	}
	return handler
}

// startMetricsServer запускает ops HTTP-сервер: /metrics для Prometheus и health-эндпоинты.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownGRPC останавливает gRPC сервер, при превышении таймаута принудительно.
func shutdownGRPC(server *grpc.Server, healthServer *health.Server, logger *log.Entry) {
	if healthServer != nil {
		healthServer.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	}
	if server == nil {
		return
	}

	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("addr", srv.Addr).Warn("http shutdown with error")
	}
}

func waitDone(done <-chan struct{}, name string, logger *log.Entry) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		logger.WithField("worker", name).Warn("worker did not stop in time")
	}
}
