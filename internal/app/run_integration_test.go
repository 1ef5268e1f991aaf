package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	healthcheck "github.com/vladislavdragonenkov/procurement/internal/health"
	"github.com/vladislavdragonenkov/procurement/internal/transport/grpcapi"
)

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.StorageDriver = StorageDriverMemory

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StorageDriver = "invalid-driver"
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unsupported storage driver") {
		t.Fatalf("expected unsupported storage driver error, got %v", err)
	}
}

func TestRun_ServesHTTPAndGRPC(t *testing.T) {
	httpPort := findFreePort(t)
	grpcPort := findFreePort(t)

	cfg := DefaultConfig()
	cfg.HTTPAddr = fmt.Sprintf("127.0.0.1:%d", httpPort)
	cfg.GRPCAddr = fmt.Sprintf("127.0.0.1:%d", grpcPort)
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.OutboxPollInterval = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- Run(ctx, cfg) }()
	waitForListener(t, httpPort)
	waitForListener(t, grpcPort)

	baseURL := fmt.Sprintf("http://127.0.0.1:%d/api/v1", httpPort)

	resp, err := http.Get(baseURL + "/purchase-orders")
	require.NoError(t, err)
	var orders []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&orders))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, orders, 4)

	resp, err = http.Post(baseURL+"/purchase-orders/oc-2/status", "application/json", strings.NewReader(`{"status":"Finalizada"}`))
	require.NoError(t, err)
	var transition map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&transition))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, transition["follow_up_required"])
	finalization, ok := transition["finalization"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 60, finalization["new_stock"])

	resp, err = http.Post(baseURL+"/suppliers/prov-1/retire", "application/json", nil)
	require.NoError(t, err)
	var refusal map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&refusal))
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "default_supplier_in_use", refusal["code"])

	conn, err := grpc.NewClient(cfg.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	req, err := structpb.NewStruct(map[string]interface{}{"order_id": "oc-1"})
	require.NoError(t, err)
	callCtx, callCancel := context.WithTimeout(ctx, 2*time.Second)
	defer callCancel()
	out, err := grpcapi.NewClient(conn).Call(callCtx, grpcapi.MethodGetActiveStatus, req)
	require.NoError(t, err)
	status := out.AsMap()["status"].(map[string]interface{})
	assert.Equal(t, "Pendiente", status["name"])

	cancel()
	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := postgresTestDSNCandidate()
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.PostgresAutoMigrate = true

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer deps.close(log.WithField("test", "postgres-init"))

	if deps.orders == nil || deps.statuses == nil || deps.outbox == nil || deps.timeline == nil {
		t.Fatalf("postgres dependencies must be initialized: %+v", deps)
	}
	if deps.storageChecker == nil {
		t.Fatal("expected non-nil storage checker for postgres")
	}
	check := deps.storageChecker.Check(context.Background())
	if check.Status != healthcheck.StatusHealthy {
		t.Fatalf("expected healthy storage checker, got %+v", check)
	}
}

func postgresTestDSNCandidate() string {
	return strings.TrimSpace(os.Getenv("PROCUREMENT_POSTGRES_TEST_DSN"))
}
