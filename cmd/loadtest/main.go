package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/procurement/internal/transport/grpcapi"
)

const (
	defaultAddr     = "localhost:50051"
	defaultOrders   = "oc-1,oc-2,oc-3,oc-4"
	defaultRequests = 400
	scenarioMethod  = "scenario"
)

type scenario string

const (
	// scenarioStatus читает только активный статус заказа.
	scenarioStatus scenario = "status"
	// scenarioStatusTargets дополнительно запрашивает допустимые переходы из него.
	scenarioStatusTargets scenario = "status-targets"
)

// caller совпадает с методом grpcapi.Client.Call.
type caller interface {
	Call(ctx context.Context, name string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type options struct {
	addr        string
	scenario    scenario
	requests    int
	duration    time.Duration
	workers     int
	connections int
	callTimeout time.Duration
	orderIDs    []string
	reportPath  string
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fail("loadtest failed: %v", err)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, err := parseOptions(args)
	if err != nil {
		return err
	}

	clients := make([]caller, 0, opts.connections)
	for i := 0; i < opts.connections; i++ {
		conn, err := grpc.NewClient(opts.addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("dial %s: %w", opts.addr, err)
		}
		defer conn.Close()
		clients = append(clients, grpcapi.NewClient(conn))
	}

	log.WithFields(log.Fields{
		"addr":        opts.addr,
		"scenario":    opts.scenario,
		"requests":    opts.requests,
		"duration":    opts.duration,
		"workers":     opts.workers,
		"connections": opts.connections,
	}).Info("starting procurement load")

	gen := &generator{opts: opts, clients: clients, rec: newRecorder()}
	rep, err := gen.run(ctx)
	if err != nil {
		return err
	}

	printSummary(out, rep)
	if opts.reportPath != "" {
		if err := writeReport(opts.reportPath, rep); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	return nil
}

func parseOptions(args []string) (options, error) {
	var (
		opts        options
		scenarioRaw string
		ordersRaw   string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&opts.addr, "addr", defaultAddr, "procurement gRPC address")
	fs.StringVar(&scenarioRaw, "scenario", string(scenarioStatusTargets), "status|status-targets")
	fs.IntVar(&opts.requests, "requests", 0, "scenarios to run; 0 means 400 without -duration and no limit with it")
	fs.DurationVar(&opts.duration, "duration", 0, "stop after this long")
	fs.IntVar(&opts.workers, "workers", 8, "concurrent scenario workers")
	fs.IntVar(&opts.connections, "connections", 1, "gRPC connections shared by workers")
	fs.DurationVar(&opts.callTimeout, "call-timeout", 3*time.Second, "timeout of a single RPC")
	fs.StringVar(&ordersRaw, "orders", defaultOrders, "purchase order ids as comma-separated list")
	fs.StringVar(&opts.reportPath, "report", "", "write JSON report to this file")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	switch sc := scenario(strings.TrimSpace(scenarioRaw)); sc {
	case scenarioStatus, scenarioStatusTargets:
		opts.scenario = sc
	default:
		return options{}, fmt.Errorf("unknown scenario %q (use %s|%s)", scenarioRaw, scenarioStatus, scenarioStatusTargets)
	}
	opts.addr = strings.TrimSpace(opts.addr)
	opts.orderIDs = splitList(ordersRaw)
	if opts.requests == 0 && opts.duration == 0 {
		opts.requests = defaultRequests
	}

	switch {
	case opts.addr == "":
		return options{}, errors.New("addr is required")
	case opts.requests < 0:
		return options{}, errors.New("requests must be >= 0")
	case opts.duration < 0:
		return options{}, errors.New("duration must be >= 0")
	case opts.workers <= 0:
		return options{}, errors.New("workers must be > 0")
	case opts.connections <= 0:
		return options{}, errors.New("connections must be > 0")
	case opts.callTimeout <= 0:
		return options{}, errors.New("call-timeout must be > 0")
	case len(opts.orderIDs) == 0:
		return options{}, errors.New("at least one purchase order id is required")
	}
	if opts.connections > opts.workers {
		opts.connections = opts.workers
	}
	return opts, nil
}

func splitList(raw string) []string {
	var items []string
	for _, chunk := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(chunk); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// generator гоняет сценарии по заказам из opts.orderIDs по кругу.
type generator struct {
	opts    options
	clients []caller
	rec     *recorder
}

func (g *generator) run(ctx context.Context) (report, error) {
	if len(g.clients) == 0 {
		return report{}, errors.New("no gRPC clients")
	}
	if g.opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.duration)
		defer cancel()
	}

	startedAt := time.Now()
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < g.opts.workers; w++ {
		client := g.clients[w%len(g.clients)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				g.runScenario(ctx, client, n)
			}
		}()
	}

	feed(ctx, jobs, g.opts.requests)
	wg.Wait()

	return g.rec.report(g.opts.scenario, startedAt, time.Since(startedAt))
}

// feed раздаёт номера сценариев, пока не исчерпан limit или не отменён ctx.
// limit=0 снимает ограничение.
func feed(ctx context.Context, jobs chan<- int, limit int) {
	defer close(jobs)
	for n := 0; limit == 0 || n < limit; n++ {
		select {
		case <-ctx.Done():
			return
		case jobs <- n:
		}
	}
}

func (g *generator) runScenario(ctx context.Context, client caller, n int) {
	startedAt := time.Now()
	err := g.walk(ctx, client, g.opts.orderIDs[n%len(g.opts.orderIDs)])
	g.rec.observe(scenarioMethod, time.Since(startedAt), err)
}

func (g *generator) walk(ctx context.Context, client caller, orderID string) error {
	resp, err := g.call(ctx, client, grpcapi.MethodGetActiveStatus, map[string]interface{}{"order_id": orderID})
	if err != nil || g.opts.scenario == scenarioStatus {
		return err
	}

	current, _ := resp.AsMap()["status"].(map[string]interface{})
	name, _ := current["name"].(string)
	if name == "" {
		// Заказ без статуса: переходы считать не из чего.
		return nil
	}
	_, err = g.call(ctx, client, grpcapi.MethodListValidTargets, map[string]interface{}{"status": name})
	return err
}

// call не прерывает уже начатый вызов при остановке по -duration: таймаут у него свой.
func (g *generator) call(ctx context.Context, client caller, method string, fields map[string]interface{}) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.callTimeout)
	defer cancel()

	startedAt := time.Now()
	resp, err := client.Call(callCtx, method, req)
	g.rec.observe(method, time.Since(startedAt), err)
	return resp, err
}

// recorder копит результаты вызовов в отдельном prometheus registry;
// отчёт строится из Gather.
type recorder struct {
	registry *prometheus.Registry
	calls    *prometheus.CounterVec
	latency  *prometheus.SummaryVec
}

func newRecorder() *recorder {
	r := &recorder{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loadtest_calls_total",
			Help: "Load test calls by method and gRPC code.",
		}, []string{"method", "code"}),
		latency: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       "loadtest_call_latency_milliseconds",
			Help:       "Load test call latency by method.",
			Objectives: map[float64]float64{0.5: 0.05, 0.95: 0.01, 0.99: 0.001},
			MaxAge:     time.Hour,
		}, []string{"method"}),
	}
	r.registry.MustRegister(r.calls, r.latency)
	return r
}

func (r *recorder) observe(method string, elapsed time.Duration, err error) {
	r.calls.WithLabelValues(method, status.Code(err).String()).Inc()
	r.latency.WithLabelValues(method).Observe(float64(elapsed.Microseconds()) / 1000)
}

type latencyStats struct {
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type methodStats struct {
	Calls     int64            `json:"calls"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Codes     map[string]int64 `json:"codes"`
	LatencyMs latencyStats     `json:"latency_ms"`
}

type report struct {
	Scenario          scenario               `json:"scenario"`
	StartedAt         time.Time              `json:"started_at"`
	DurationSeconds   float64                `json:"duration_seconds"`
	Scenarios         int64                  `json:"scenarios"`
	FailedScenarios   int64                  `json:"failed_scenarios"`
	ErrorRate         float64                `json:"error_rate"`
	RPS               float64                `json:"rps"`
	ScenarioLatencyMs latencyStats           `json:"scenario_latency_ms"`
	Methods           map[string]methodStats `json:"methods"`
}

func (r *recorder) report(sc scenario, startedAt time.Time, elapsed time.Duration) (report, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return report{}, fmt.Errorf("gather loadtest metrics: %w", err)
	}

	byMethod := make(map[string]*methodStats)
	statsFor := func(method string) *methodStats {
		stats, ok := byMethod[method]
		if !ok {
			stats = &methodStats{Codes: make(map[string]int64)}
			byMethod[method] = stats
		}
		return stats
	}

	for _, family := range families {
		for _, metric := range family.GetMetric() {
			labels := labelValues(metric)
			stats := statsFor(labels["method"])
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				count := int64(metric.GetCounter().GetValue())
				stats.Codes[labels["code"]] += count
				stats.Calls += count
				if labels["code"] != codes.OK.String() {
					stats.Failed += count
				}
			case dto.MetricType_SUMMARY:
				stats.LatencyMs = latencyFromSummary(metric.GetSummary())
			}
		}
	}

	rep := report{
		Scenario:        sc,
		StartedAt:       startedAt.UTC(),
		DurationSeconds: elapsed.Seconds(),
		Methods:         make(map[string]methodStats, len(byMethod)),
	}
	for method, stats := range byMethod {
		stats.ErrorRate = ratio(stats.Failed, stats.Calls)
		if method == scenarioMethod {
			rep.Scenarios = stats.Calls
			rep.FailedScenarios = stats.Failed
			rep.ErrorRate = stats.ErrorRate
			rep.ScenarioLatencyMs = stats.LatencyMs
			continue
		}
		rep.Methods[method] = *stats
	}
	if elapsed > 0 {
		rep.RPS = float64(rep.Scenarios) / elapsed.Seconds()
	}
	return rep, nil
}

func labelValues(metric *dto.Metric) map[string]string {
	labels := make(map[string]string, len(metric.GetLabel()))
	for _, pair := range metric.GetLabel() {
		labels[pair.GetName()] = pair.GetValue()
	}
	return labels
}

func latencyFromSummary(summary *dto.Summary) latencyStats {
	if summary.GetSampleCount() == 0 {
		return latencyStats{}
	}
	stats := latencyStats{Avg: summary.GetSampleSum() / float64(summary.GetSampleCount())}
	for _, q := range summary.GetQuantile() {
		value := q.GetValue()
		if math.IsNaN(value) {
			continue
		}
		switch q.GetQuantile() {
		case 0.5:
			stats.P50 = value
		case 0.95:
			stats.P95 = value
		case 0.99:
			stats.P99 = value
		}
	}
	return stats
}

func ratio(part, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total)
}

func printSummary(out io.Writer, rep report) {
	_, _ = fmt.Fprintf(out, "scenario=%s scenarios=%d failed=%d error_rate=%.4f duration=%.2fs rps=%.2f\n",
		rep.Scenario, rep.Scenarios, rep.FailedScenarios, rep.ErrorRate, rep.DurationSeconds, rep.RPS)
	_, _ = fmt.Fprintf(out, "scenario latency ms: avg=%.2f p50=%.2f p95=%.2f p99=%.2f\n",
		rep.ScenarioLatencyMs.Avg, rep.ScenarioLatencyMs.P50, rep.ScenarioLatencyMs.P95, rep.ScenarioLatencyMs.P99)

	methods := make([]string, 0, len(rep.Methods))
	for method := range rep.Methods {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	for _, method := range methods {
		stats := rep.Methods[method]
		_, _ = fmt.Fprintf(out, "%s: calls=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			method, stats.Calls, stats.Failed, stats.ErrorRate, stats.LatencyMs.P95)
	}
}

func writeReport(path string, rep report) error {
	clean := filepath.Clean(path)
	if clean == "." || strings.HasSuffix(path, string(filepath.Separator)) {
		return fmt.Errorf("report path %q must name a file", path)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(clean, append(data, '\n'), 0o600)
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
