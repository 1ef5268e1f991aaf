package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBrokerDown = errors.New("kafka: client has run out of available brokers")

func passing(context.Context) error { return nil }

func failing(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestHandler_RunAggregatesProcurementChecks(t *testing.T) {
	tests := []struct {
		name     string
		checkers map[string]Checker
		want     Status
		httpCode int
		ready    bool
	}{
		{
			name:     "no checks",
			want:     StatusHealthy,
			httpCode: http.StatusOK,
			ready:    true,
		},
		{
			name: "store and outbox healthy",
			checkers: map[string]Checker{
				"postgres": NewPingChecker("postgres", stubPinger{}),
				"outbox":   NewOptionalChecker("outbox", passing),
			},
			want:     StatusHealthy,
			httpCode: http.StatusOK,
			ready:    true,
		},
		{
			name: "outbox backlog only degrades",
			checkers: map[string]Checker{
				"postgres": NewPingChecker("postgres", stubPinger{}),
				"outbox":   NewOptionalChecker("outbox", failing(errors.New("outbox backlog 120 > 100"))),
			},
			want:     StatusDegraded,
			httpCode: http.StatusOK,
			ready:    true,
		},
		{
			name: "store down is fatal",
			checkers: map[string]Checker{
				"postgres": NewPingChecker("postgres", stubPinger{err: errors.New("connection refused")}),
				"kafka":    NewOptionalChecker("kafka", failing(errBrokerDown)),
			},
			want:     StatusUnhealthy,
			httpCode: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler("v0.3.0")
			for name, checker := range tt.checkers {
				handler.RegisterChecker(name, checker)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			assert.Equal(t, tt.httpCode, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var body Response
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.want, body.Status)
			assert.Equal(t, "v0.3.0", body.Version)
			assert.Len(t, body.Checks, len(tt.checkers))

			ready := httptest.NewRecorder()
			handler.ReadinessHandler(ready, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if tt.ready {
				assert.Equal(t, http.StatusOK, ready.Code)
				assert.Equal(t, "ready", ready.Body.String())
			} else {
				assert.Equal(t, http.StatusServiceUnavailable, ready.Code)
				assert.Equal(t, "not ready", ready.Body.String())
			}
		})
	}
}

func TestHandler_CheckDetails(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("kafka", NewOptionalChecker("kafka", failing(errBrokerDown)))
	handler.RegisterChecker("postgres", NewPingChecker("postgres", stubPinger{}))

	response := handler.Run(context.Background())
	require.Contains(t, response.Checks, "kafka")
	kafka := response.Checks["kafka"]
	assert.Equal(t, StatusUnhealthy, kafka.Status)
	assert.False(t, kafka.Critical)
	assert.Equal(t, errBrokerDown.Error(), kafka.Message)

	postgres := response.Checks["postgres"]
	assert.Equal(t, StatusHealthy, postgres.Status)
	assert.True(t, postgres.Critical)
	assert.Empty(t, postgres.Message)
	assert.Equal(t, time.UTC, response.Timestamp.Location())
}

func TestHandler_CheckTimeout(t *testing.T) {
	handler := NewHandler("dev")
	handler.SetTimeout(20 * time.Millisecond)
	handler.SetTimeout(0)
	handler.RegisterChecker("postgres", NewSimpleChecker("postgres", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	startedAt := time.Now()
	response := handler.Run(context.Background())
	assert.Less(t, time.Since(startedAt), time.Second, "a non-positive timeout keeps the previous one")
	assert.Equal(t, StatusUnhealthy, response.Status)
	assert.Contains(t, response.Checks["postgres"].Message, context.DeadlineExceeded.Error())
}

func TestLivenessHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/livez", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestSimpleChecker_MeasuresDuration(t *testing.T) {
	check := NewSimpleChecker("postgres", func(context.Context) error {
		time.Sleep(10 * time.Millisecond)
		return nil
	}).Check(context.Background())

	assert.Equal(t, "postgres", check.Name)
	assert.Equal(t, StatusHealthy, check.Status)
	assert.GreaterOrEqual(t, check.DurationMs, int64(10))
}
