// Package client performs breaker-protected HTTP calls to peer services.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Domenick1991/airline-backoffice/internal/circuitbreaker"
	"go.uber.org/zap"
)

const maxResponseBytes = 10 << 20

var (
	// ErrServiceUnavailable means the breaker rejected the call; no request was sent.
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrDownstreamUnavailable means the request was sent and failed at the
	// transport level, timed out, or the peer answered with a 5xx.
	ErrDownstreamUnavailable = errors.New("downstream unavailable")
	// ErrCallerAborted means the caller's context ended before the call completed.
	ErrCallerAborted = errors.New("request aborted by caller")
	ErrNotFound      = errors.New("not found")
	ErrUnexpected    = errors.New("unexpected downstream response")
)

// IsBreakerFailure is the failure classifier for breakers guarding peer
// services: calls abandoned by the caller are not held against the peer.
func IsBreakerFailure(err error) bool {
	return !errors.Is(err, ErrCallerAborted) && !errors.Is(err, context.Canceled)
}

type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (r *Response) Success() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON reports whether the body parses as JSON and returns the decoded value.
func (r *Response) JSON() (any, bool) {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil, false
	}
	var v any
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return nil, false
	}
	return v, true
}

func (r *Response) Decode(v any) error {
	return json.Unmarshal(r.Body, v)
}

// statusError carries a 5xx response through the breaker so it is counted as
// a failure while the caller still receives the response.
type statusError struct {
	resp *Response
}

func (e *statusError) Error() string {
	return fmt.Sprintf("server error: status %d", e.resp.StatusCode)
}

type ServiceClient struct {
	name       string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	logger     *zap.Logger
}

type Option func(*ServiceClient)

func WithHTTPClient(c *http.Client) Option {
	return func(s *ServiceClient) {
		if c != nil {
			s.httpClient = c
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *ServiceClient) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func New(name, baseURL string, timeout time.Duration, breaker *circuitbreaker.Breaker, opts ...Option) *ServiceClient {
	c := &ServiceClient{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
		breaker:    breaker,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ServiceClient) Name() string {
	return c.name
}

func (c *ServiceClient) BaseURL() string {
	return c.baseURL
}

func (c *ServiceClient) Breaker() *circuitbreaker.Breaker {
	return c.breaker
}

// Do sends one request through the breaker. 2xx-4xx responses are returned
// with a nil error. A 5xx response is also returned with a nil error but is
// recorded by the breaker as a failure.
func (c *ServiceClient) Do(ctx context.Context, req Request) (*Response, error) {
	resp, err := circuitbreaker.Execute(ctx, c.breaker, func(ctx context.Context) (*Response, error) {
		return c.send(ctx, req)
	})
	if err == nil {
		return resp, nil
	}

	var se *statusError
	switch {
	case errors.As(err, &se):
		return se.resp, nil
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		c.logger.Warn("call rejected by open circuit breaker",
			zap.String("service", c.name),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
		)
		return nil, fmt.Errorf("%w: %s: %w", ErrServiceUnavailable, c.name, err)
	case errors.Is(err, ErrCallerAborted):
		return nil, err
	default:
		c.logger.Error("downstream call failed",
			zap.String("service", c.name),
			zap.String("method", req.Method),
			zap.String("path", req.Path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %s: %w", ErrDownstreamUnavailable, c.name, err)
	}
}

// Request is a JSON convenience wrapper around Do. body may be nil.
func (c *ServiceClient) Request(ctx context.Context, method, path string, body any) (*Response, error) {
	req := Request{Method: method, Path: path, Header: http.Header{}}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		req.Body = payload
		req.Header.Set("Content-Type", "application/json")
	}
	return c.Do(ctx, req)
}

func (c *ServiceClient) send(parent context.Context, req Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.transportError(parent, err)
	}
	defer httpResp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.transportError(parent, err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       payload,
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &statusError{resp: resp}
	}
	return resp, nil
}

func (c *ServiceClient) transportError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("%w: %s: %w", ErrCallerAborted, c.name, err)
	}
	return err
}

// Ping calls the peer's /health endpoint directly, outside the breaker, so
// that health checks never move breaker state.
func (c *ServiceClient) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return 0, err
	}
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return time.Since(start), err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return time.Since(start), fmt.Errorf("%w: health status %d", ErrUnexpected, resp.StatusCode)
	}
	return time.Since(start), nil
}
