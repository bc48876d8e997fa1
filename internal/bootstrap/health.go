package bootstrap

import (
	"sync"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/Domenick1991/airline-backoffice/internal/circuitbreaker"
)

// HealthReporter publishes the process status on the standard gRPC health
// service. The status is NOT_SERVING while any registered breaker is open.
type HealthReporter struct {
	server  *health.Server
	service string
	logger  *zap.Logger

	mu   sync.Mutex
	open map[string]bool
}

func NewHealthReporter(service string, logger *zap.Logger) *HealthReporter {
	h := &HealthReporter{
		server:  health.NewServer(),
		service: service,
		logger:  logger,
		open:    make(map[string]bool),
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
	return h
}

func (h *HealthReporter) Server() *health.Server {
	return h.server
}

// OnStateChange matches circuitbreaker.StateChangeFunc.
func (h *HealthReporter) OnStateChange(name string, _, to circuitbreaker.State) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if to == circuitbreaker.StateOpen {
		h.open[name] = true
	} else {
		delete(h.open, name)
	}

	status := healthpb.HealthCheckResponse_SERVING
	if len(h.open) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	h.logger.Info("health status updated",
		zap.String("breaker", name),
		zap.String("breaker_state", to.String()),
		zap.String("status", status.String()),
	)
	h.set(status)
}

func (h *HealthReporter) Shutdown() {
	h.server.Shutdown()
}

func (h *HealthReporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(h.service, status)
}
