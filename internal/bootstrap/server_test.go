package bootstrap

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/Domenick1991/airline-backoffice/config"
	"github.com/Domenick1991/airline-backoffice/internal/circuitbreaker"
)

func testConfig() *config.Config {
	return &config.Config{
		HTTP: config.HTTPConfig{Address: "127.0.0.1:0", ShutdownTimeout: 5 * time.Second},
		GRPC: config.GRPCConfig{Address: "127.0.0.1:0"},
	}
}

func status(t *testing.T, h *HealthReporter, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := h.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthReporter_FollowsBreakers(t *testing.T) {
	h := NewHealthReporter("reservation", zap.NewNop())
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, h, ""))

	h.OnStateChange("database", circuitbreaker.StateClosed, circuitbreaker.StateOpen)
	h.OnStateChange("flight", circuitbreaker.StateClosed, circuitbreaker.StateOpen)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, h, "reservation"))

	h.OnStateChange("database", circuitbreaker.StateOpen, circuitbreaker.StateHalfOpen)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, h, ""))

	h.OnStateChange("flight", circuitbreaker.StateHalfOpen, circuitbreaker.StateClosed)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, h, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, h, "reservation"))
}

func TestHealthReporter_WiredToBreaker(t *testing.T) {
	h := NewHealthReporter("gateway", zap.NewNop())
	b := circuitbreaker.New("flight", circuitbreaker.Config{FailureThreshold: 1, RecoveryTimeout: time.Minute},
		circuitbreaker.WithStateChangeListener(h.OnStateChange))

	err := b.Do(context.Background(), func(context.Context) error { return assert.AnError })
	require.Error(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, h, ""))
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServers_ServeAndShutdown(t *testing.T) {
	health := NewHealthReporter("reservation", zap.NewNop())
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("app"))
	})

	s, err := New(testConfig(), handler, health, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	base := "http://" + s.HTTPAddr()

	code, body := get(t, base+"/anything")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "app", body)

	code, body = get(t, base+"/healthz")
	assert.Equal(t, http.StatusOK, code)
	var resp healthpb.HealthCheckResponse
	require.NoError(t, protojson.Unmarshal([]byte(body), &resp))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())

	health.OnStateChange("database", circuitbreaker.StateClosed, circuitbreaker.StateOpen)
	code, _ = get(t, base+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, body = get(t, base+"/docs/doc.json")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "/api/v1/reservations")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("servers did not shut down")
	}
}
