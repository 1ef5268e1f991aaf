package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/procurement/internal/transport/grpcapi"
)

// fakeCaller отвечает по таблице статусов заказов: пустая строка означает заказ без статуса,
// отсутствие ключа означает NotFound.
type fakeCaller struct {
	mu       sync.Mutex
	statuses map[string]string
	calls    map[string]int
}

func newFakeCaller(statuses map[string]string) *fakeCaller {
	return &fakeCaller{statuses: statuses, calls: make(map[string]int)}
}

func (f *fakeCaller) Call(_ context.Context, name string, req *structpb.Struct, _ ...grpc.CallOption) (*structpb.Struct, error) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()

	fields := req.AsMap()
	switch name {
	case grpcapi.MethodGetActiveStatus:
		orderID, _ := fields["order_id"].(string)
		current, ok := f.statuses[orderID]
		if !ok {
			return nil, status.Error(codes.NotFound, "purchase order not found")
		}
		resp := map[string]interface{}{"order_id": orderID, "has_status": current != ""}
		if current != "" {
			resp["status"] = map[string]interface{}{"name": current}
		}
		return structpb.NewStruct(resp)
	case grpcapi.MethodListValidTargets:
		return structpb.NewStruct(map[string]interface{}{"valid_targets": []interface{}{"Enviada", "Cancelada"}})
	default:
		return nil, status.Error(codes.Unimplemented, name)
	}
}

func (f *fakeCaller) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func testOptions(sc scenario, requests int, orders ...string) options {
	return options{
		addr:        defaultAddr,
		scenario:    sc,
		requests:    requests,
		workers:     3,
		connections: 2,
		callTimeout: time.Second,
		orderIDs:    orders,
	}
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, defaultAddr, opts.addr)
	assert.Equal(t, scenarioStatusTargets, opts.scenario)
	assert.Equal(t, defaultRequests, opts.requests)
	assert.Equal(t, []string{"oc-1", "oc-2", "oc-3", "oc-4"}, opts.orderIDs)

	opts, err = parseOptions([]string{
		"-addr=127.0.0.1:50051",
		"-scenario= status ",
		"-duration=2s",
		"-workers=2",
		"-connections=5",
		"-call-timeout=250ms",
		"-orders= oc-7, ,oc-8,",
		"-report=out.json",
	})
	require.NoError(t, err)
	assert.Equal(t, scenarioStatus, opts.scenario)
	assert.Zero(t, opts.requests, "duration without requests runs without a limit")
	assert.Equal(t, 2*time.Second, opts.duration)
	assert.Equal(t, 2, opts.connections, "connections are capped by workers")
	assert.Equal(t, 250*time.Millisecond, opts.callTimeout)
	assert.Equal(t, []string{"oc-7", "oc-8"}, opts.orderIDs)
	assert.Equal(t, "out.json", opts.reportPath)
}

func TestParseOptions_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "scenario", args: []string{"-scenario=create"}, want: "unknown scenario"},
		{name: "addr", args: []string{"-addr= "}, want: "addr is required"},
		{name: "requests", args: []string{"-requests=-1"}, want: "requests must be >= 0"},
		{name: "duration", args: []string{"-duration=-1s"}, want: "duration must be >= 0"},
		{name: "workers", args: []string{"-workers=0"}, want: "workers must be > 0"},
		{name: "connections", args: []string{"-connections=0"}, want: "connections must be > 0"},
		{name: "timeout", args: []string{"-call-timeout=0s"}, want: "call-timeout must be > 0"},
		{name: "orders", args: []string{"-orders= , "}, want: "purchase order id"},
		{name: "positional", args: []string{"extra"}, want: "unexpected arguments"},
		{name: "flag", args: []string{"-total=5"}, want: "not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseOptions(tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"oc-1", "oc-2"}, splitList(" oc-1, ,oc-2,"))
	assert.Empty(t, splitList(" , "))
}

func TestRecorder_Report(t *testing.T) {
	rec := newRecorder()
	rec.observe(grpcapi.MethodGetActiveStatus, 2*time.Millisecond, nil)
	rec.observe(grpcapi.MethodGetActiveStatus, 4*time.Millisecond, nil)
	rec.observe(grpcapi.MethodGetActiveStatus, 6*time.Millisecond, status.Error(codes.NotFound, "missing"))
	rec.observe(scenarioMethod, 3*time.Millisecond, nil)
	rec.observe(scenarioMethod, 5*time.Millisecond, errors.New("plain error"))

	startedAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rep, err := rec.report(scenarioStatus, startedAt, 2*time.Second)
	require.NoError(t, err)

	assert.Equal(t, scenarioStatus, rep.Scenario)
	assert.Equal(t, startedAt, rep.StartedAt)
	assert.EqualValues(t, 2, rep.Scenarios)
	assert.EqualValues(t, 1, rep.FailedScenarios)
	assert.InDelta(t, 0.5, rep.ErrorRate, 1e-9)
	assert.InDelta(t, 1.0, rep.RPS, 1e-9)
	assert.InDelta(t, 4.0, rep.ScenarioLatencyMs.Avg, 1e-9)
	assert.NotContains(t, rep.Methods, scenarioMethod)

	stats := rep.Methods[grpcapi.MethodGetActiveStatus]
	assert.EqualValues(t, 3, stats.Calls)
	assert.EqualValues(t, 1, stats.Failed)
	assert.Equal(t, map[string]int64{"OK": 2, "NotFound": 1}, stats.Codes)
	assert.InDelta(t, 4.0, stats.LatencyMs.Avg, 1e-9)
	assert.Greater(t, stats.LatencyMs.P50, 0.0)
	assert.LessOrEqual(t, stats.LatencyMs.P50, stats.LatencyMs.P99)
}

func TestRecorder_EmptyReport(t *testing.T) {
	rep, err := newRecorder().report(scenarioStatus, time.Now(), 0)
	require.NoError(t, err)
	assert.Zero(t, rep.Scenarios)
	assert.Zero(t, rep.RPS)
	assert.Empty(t, rep.Methods)
}

func TestGenerator_StatusTargets(t *testing.T) {
	first := newFakeCaller(map[string]string{"oc-1": "Pendiente", "oc-2": "Enviada"})
	second := newFakeCaller(map[string]string{"oc-1": "Pendiente", "oc-2": "Enviada"})
	gen := &generator{
		opts:    testOptions(scenarioStatusTargets, 6, "oc-1", "oc-2"),
		clients: []caller{first, second},
		rec:     newRecorder(),
	}

	rep, err := gen.run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 6, rep.Scenarios)
	assert.Zero(t, rep.FailedScenarios)
	assert.EqualValues(t, 6, rep.Methods[grpcapi.MethodGetActiveStatus].Calls)
	assert.EqualValues(t, 6, rep.Methods[grpcapi.MethodListValidTargets].Calls)
	assert.Equal(t, 6, first.count(grpcapi.MethodGetActiveStatus)+second.count(grpcapi.MethodGetActiveStatus))
}

func TestGenerator_StatusScenarioSkipsTargets(t *testing.T) {
	client := newFakeCaller(map[string]string{"oc-1": "Pendiente"})
	gen := &generator{opts: testOptions(scenarioStatus, 4, "oc-1"), clients: []caller{client}, rec: newRecorder()}

	rep, err := gen.run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 4, rep.Scenarios)
	assert.Zero(t, client.count(grpcapi.MethodListValidTargets))
	assert.NotContains(t, rep.Methods, grpcapi.MethodListValidTargets)
}

func TestGenerator_OrderWithoutStatusAndFailures(t *testing.T) {
	client := newFakeCaller(map[string]string{"oc-1": "", "oc-2": "Finalizada"})
	gen := &generator{
		opts:    testOptions(scenarioStatusTargets, 6, "oc-1", "oc-2", "oc-404"),
		clients: []caller{client},
		rec:     newRecorder(),
	}

	rep, err := gen.run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 6, rep.Scenarios)
	assert.EqualValues(t, 2, rep.FailedScenarios)

	active := rep.Methods[grpcapi.MethodGetActiveStatus]
	assert.EqualValues(t, 2, active.Codes["NotFound"])
	assert.EqualValues(t, 4, active.Codes["OK"])
	assert.EqualValues(t, 2, rep.Methods[grpcapi.MethodListValidTargets].Calls, "only oc-2 has a status to expand")
}

func TestGenerator_DurationBoundsUnlimitedRun(t *testing.T) {
	client := newFakeCaller(map[string]string{"oc-1": "Pendiente"})
	opts := testOptions(scenarioStatus, 0, "oc-1")
	opts.duration = 30 * time.Millisecond
	gen := &generator{opts: opts, clients: []caller{client}, rec: newRecorder()}

	done := make(chan report, 1)
	go func() {
		rep, err := gen.run(context.Background())
		assert.NoError(t, err)
		done <- rep
	}()

	select {
	case rep := <-done:
		assert.Positive(t, rep.Scenarios)
		assert.Zero(t, rep.FailedScenarios, "calls in flight at the deadline finish on their own timeout")
	case <-time.After(5 * time.Second):
		t.Fatal("duration did not stop the generator")
	}
}

func TestGenerator_CanceledContextAndNoClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newFakeCaller(map[string]string{"oc-1": "Pendiente"})
	gen := &generator{opts: testOptions(scenarioStatus, 100, "oc-1"), clients: []caller{client}, rec: newRecorder()}
	rep, err := gen.run(ctx)
	require.NoError(t, err)
	assert.Less(t, rep.Scenarios, int64(100))

	gen = &generator{opts: testOptions(scenarioStatus, 1, "oc-1"), rec: newRecorder()}
	_, err = gen.run(context.Background())
	require.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	var out bytes.Buffer
	printSummary(&out, report{
		Scenario:        scenarioStatusTargets,
		Scenarios:       10,
		FailedScenarios: 1,
		ErrorRate:       0.1,
		DurationSeconds: 2,
		RPS:             5,
		Methods: map[string]methodStats{
			grpcapi.MethodListValidTargets: {Calls: 9},
			grpcapi.MethodGetActiveStatus:  {Calls: 10, Failed: 1, ErrorRate: 0.1, LatencyMs: latencyStats{P95: 1.5}},
		},
	})

	text := out.String()
	assert.Contains(t, text, "scenario=status-targets scenarios=10 failed=1 error_rate=0.1000")
	assert.Contains(t, text, grpcapi.MethodGetActiveStatus+": calls=10 failed=1 error_rate=0.1000 p95=1.50ms")
	assert.Less(t,
		bytes.Index(out.Bytes(), []byte(grpcapi.MethodGetActiveStatus+":")),
		bytes.Index(out.Bytes(), []byte(grpcapi.MethodListValidTargets+":")),
		"methods are printed in name order")
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, writeReport(path, report{Scenario: scenarioStatus, Scenarios: 3}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, scenarioStatus, decoded.Scenario)
	assert.EqualValues(t, 3, decoded.Scenarios)

	require.Error(t, writeReport(".", report{}))
	require.Error(t, writeReport(t.TempDir()+string(filepath.Separator), report{}))
}

type loadtestServer struct{}

func (loadtestServer) GetActiveStatus(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{
		"order_id":   req.AsMap()["order_id"],
		"has_status": true,
		"status":     map[string]interface{}{"name": "Pendiente"},
	})
}

func (loadtestServer) ListValidTargets(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]interface{}{"valid_targets": []interface{}{"Enviada", "Cancelada"}})
}

func (loadtestServer) TransitionStatus(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "read-only load")
}

func (loadtestServer) RetireSupplier(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "read-only load")
}

func TestRun_AgainstGRPCServer(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := grpc.NewServer()
	grpcapi.RegisterProcurementServer(srv, loadtestServer{})
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	reportPath := filepath.Join(t.TempDir(), "run.json")
	var out bytes.Buffer
	err = run(context.Background(), []string{
		"-addr=" + lis.Addr().String(),
		"-requests=5",
		"-workers=2",
		"-report=" + reportPath,
	}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "scenarios=5 failed=0")

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var decoded report
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.EqualValues(t, 5, decoded.Scenarios)
	assert.EqualValues(t, 5, decoded.Methods[grpcapi.MethodListValidTargets].Calls)

	require.Error(t, run(context.Background(), []string{"-workers=0"}, &out))
}

func TestFailExits(t *testing.T) {
	if os.Getenv("LOADTEST_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 7)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "LOADTEST_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	require.Error(t, err)
	var exitErr *exec.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.NotZero(t, exitErr.ExitCode())
}
