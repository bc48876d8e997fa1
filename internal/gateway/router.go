// Package gateway is the single public entry point: it resolves the owning
// service of each /api/v1 request, applies the authorization policy and
// forwards the call through that service's breaker-protected client.
package gateway

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Domenick1991/airline-backoffice/internal/auth"
	"github.com/Domenick1991/airline-backoffice/internal/client"
	"github.com/Domenick1991/airline-backoffice/internal/middleware"
)

const (
	apiPrefix      = "/api/v1/"
	maxRequestBody = 10 << 20
)

var ErrServiceNotFound = errors.New("service not found")

// DefaultResources maps the first path segment after /api/v1/ to the
// service that owns it.
func DefaultResources() map[string]string {
	return map[string]string{
		"flights":         "flight",
		"passengers":      "passenger",
		"reservations":    "reservation",
		"users":           "user",
		"auth":            "user",
		"airports":        "airport",
		"aircraft":        "aircraft",
		"crew":            "crew",
		"circuit-breaker": "reservation",
	}
}

// headers never forwarded downstream. Accept-Encoding is dropped so the
// transport negotiates and decodes compression itself.
var strippedHeaders = []string{"Host", "Content-Length", "Accept-Encoding", "Connection"}

type Router struct {
	engine    *gin.Engine
	policy    *auth.Policy
	decoder   auth.TokenDecoder
	clients   map[string]*client.ServiceClient
	resources map[string]string
	logger    *zap.Logger
	now       func() time.Time
}

type Option func(*Router)

func WithResources(resources map[string]string) Option {
	return func(r *Router) { r.resources = resources }
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRouter builds the gateway. clients is keyed by service name, the same
// names used as values in the resource map.
func NewRouter(policy *auth.Policy, decoder auth.TokenDecoder, clients map[string]*client.ServiceClient, opts ...Option) *Router {
	rt := &Router{
		policy:    policy,
		decoder:   decoder,
		clients:   clients,
		resources: DefaultResources(),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(rt)
	}

	engine := gin.New()
	engine.Use(middleware.Stack(rt.logger)...)
	engine.GET("/", rt.banner)
	engine.GET("/health", rt.health)
	engine.Any("/api/v1/*path", rt.proxy)
	rt.engine = engine
	return rt
}

func (rt *Router) Engine() *gin.Engine {
	return rt.engine
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.engine.ServeHTTP(w, r)
}

// Resolve returns the service owning path.
func (rt *Router) Resolve(path string) (string, error) {
	if !strings.HasPrefix(path, apiPrefix) {
		return "", fmt.Errorf("%w: %s", ErrServiceNotFound, path)
	}
	resource, _, _ := strings.Cut(strings.TrimPrefix(path, apiPrefix), "/")
	service, ok := rt.resources[resource]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrServiceNotFound, resource)
	}
	if _, ok := rt.clients[service]; !ok {
		return "", fmt.Errorf("%w: %s is not configured", ErrServiceNotFound, service)
	}
	return service, nil
}

func (rt *Router) proxy(c *gin.Context) {
	path := c.Request.URL.Path

	service, err := rt.Resolve(path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	claims := rt.claims(c)
	switch rt.policy.Authorize(path, c.Request.Method, claims) {
	case auth.Unauthenticated:
		c.Header("WWW-Authenticate", "Bearer")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	case auth.Forbidden:
		c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
		return
	}

	req := client.Request{
		Method: c.Request.Method,
		Path:   path,
		Query:  c.Request.URL.Query(),
		Header: forwardHeaders(c.Request.Header),
	}
	switch c.Request.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
			return
		}
		req.Body = body
	}

	resp, err := rt.clients[service].Do(c.Request.Context(), req)
	switch {
	case err == nil:
		relay(c, resp)
	case errors.Is(err, client.ErrServiceUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": fmt.Sprintf("service %s unavailable", service)})
	case errors.Is(err, client.ErrCallerAborted):
		// nobody is listening any more
		c.Abort()
	default:
		rt.logger.Error("proxy request failed",
			zap.String("service", service),
			zap.String("path", path),
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// claims decodes the bearer token. Missing or invalid tokens mean an
// anonymous caller; the policy decides whether that is enough.
func (rt *Router) claims(c *gin.Context) *auth.Claims {
	token, ok := auth.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		return nil
	}
	claims, err := rt.decoder.Decode(token)
	if err != nil {
		rt.logger.Debug("ignoring invalid bearer token", zap.Error(err))
		return nil
	}
	return claims
}

func forwardHeaders(in http.Header) http.Header {
	out := in.Clone()
	for _, h := range strippedHeaders {
		out.Del(h)
	}
	return out
}

func relay(c *gin.Context, resp *client.Response) {
	if len(resp.Body) == 0 {
		c.Status(resp.StatusCode)
		return
	}
	if v, ok := resp.JSON(); ok {
		c.JSON(resp.StatusCode, v)
		return
	}
	c.Data(resp.StatusCode, "text/plain; charset=utf-8", resp.Body)
}

func (rt *Router) serviceNames() []string {
	names := make([]string, 0, len(rt.clients))
	for name := range rt.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (rt *Router) banner(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message":  "Airline back-office API gateway",
		"status":   "active",
		"services": rt.serviceNames(),
		"endpoints": gin.H{
			"flights":      "/api/v1/flights",
			"passengers":   "/api/v1/passengers",
			"reservations": "/api/v1/reservations",
			"health":       "/health",
		},
	})
}

type serviceHealth struct {
	Status       string `json:"status"`
	URL          string `json:"url"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
	Breaker      any    `json:"circuit_breaker"`
}

// health pings every downstream /health concurrently. Pings bypass the
// breakers, so they report reachability without moving breaker state.
func (rt *Router) health(c *gin.Context) {
	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		services = make(map[string]serviceHealth, len(rt.clients))
	)
	for name, sc := range rt.clients {
		wg.Add(1)
		go func(name string, sc *client.ServiceClient) {
			defer wg.Done()
			h := serviceHealth{Status: "healthy", URL: sc.BaseURL(), Breaker: sc.Breaker().Stats()}
			elapsed, err := sc.Ping(c.Request.Context())
			if err != nil {
				h.Status = "unhealthy"
				h.Error = err.Error()
			} else {
				h.ResponseTime = fmt.Sprintf("%.3fs", elapsed.Seconds())
			}
			mu.Lock()
			services[name] = h
			mu.Unlock()
		}(name, sc)
	}
	wg.Wait()

	c.JSON(http.StatusOK, gin.H{
		"gateway":   "healthy",
		"timestamp": rt.now().UTC(),
		"services":  services,
	})
}
