package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Domenick1991/airline-backoffice/internal/circuitbreaker"
)

// SystemHandler serves the service banner, health and breaker statistics.
type SystemHandler struct {
	service  string
	version  string
	database *circuitbreaker.Breaker
	peers    *circuitbreaker.Registry
	checkDB  func(ctx context.Context) error
	now      func() time.Time
}

func NewSystemHandler(service, version string, database *circuitbreaker.Breaker, peers *circuitbreaker.Registry, checkDB func(ctx context.Context) error) *SystemHandler {
	return &SystemHandler{
		service:  service,
		version:  version,
		database: database,
		peers:    peers,
		checkDB:  checkDB,
		now:      time.Now,
	}
}

type breakerStatsResponse struct {
	Database     circuitbreaker.Stats            `json:"database_circuit_breaker"`
	HTTP         circuitbreaker.Stats            `json:"http_circuit_breaker"`
	HTTPBreakers map[string]circuitbreaker.Stats `json:"http_circuit_breakers"`
	Timestamp    time.Time                       `json:"timestamp"`
}

func (h *SystemHandler) Register(router *gin.Engine) {
	router.GET("/", h.banner)
	router.GET("/health", h.health)
	router.GET("/api/v1/circuit-breaker/stats", h.stats)
}

func (h *SystemHandler) banner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": h.service,
		"version": h.version,
		"status":  "active",
	})
}

func (h *SystemHandler) health(c *gin.Context) {
	err := h.checkDB(c.Request.Context())
	body := gin.H{
		"service":          h.service,
		"timestamp":        h.now().UTC(),
		"circuit_breakers": h.snapshot(),
	}
	if err != nil {
		body["status"] = "unhealthy"
		body["database"] = "disconnected"
		body["error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "healthy"
	body["database"] = "connected"
	c.JSON(http.StatusOK, body)
}

func (h *SystemHandler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.snapshot())
}

func (h *SystemHandler) snapshot() breakerStatsResponse {
	perPeer := h.peers.Stats()
	all := make([]circuitbreaker.Stats, 0, len(perPeer))
	for _, name := range h.peers.Names() {
		all = append(all, perPeer[name])
	}
	return breakerStatsResponse{
		Database:     h.database.Stats(),
		HTTP:         circuitbreaker.Aggregate(all...),
		HTTPBreakers: perPeer,
		Timestamp:    h.now().UTC(),
	}
}
