package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Domenick1991/airline-backoffice/internal/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBreaker(threshold int) *circuitbreaker.Breaker {
	return circuitbreaker.New("flight", circuitbreaker.Config{
		FailureThreshold: threshold,
		RecoveryTimeout:  time.Minute,
	}, circuitbreaker.WithFailureClassifier(IsBreakerFailure))
}

func TestServiceClient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/flights", r.URL.Path)
		assert.Equal(t, "JFK", r.URL.Query().Get("origin"))
		assert.Equal(t, "abc", r.Header.Get("X-Request-ID"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"flight_number":"AV101"}]`))
	}))
	defer srv.Close()

	b := newBreaker(3)
	c := New("flight", srv.URL, time.Second, b)

	resp, err := c.Do(context.Background(), Request{
		Method: http.MethodGet,
		Path:   "/api/v1/flights",
		Query:  url.Values{"origin": {"JFK"}},
		Header: http.Header{"X-Request-ID": {"abc"}},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	v, ok := resp.JSON()
	assert.True(t, ok)
	assert.Len(t, v, 1)
	assert.Equal(t, uint64(1), b.Stats().SuccessCount)
}

func TestServiceClient_ClientErrorsAreBreakerNeutral(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"detail":"not found"}`))
	}))
	defer srv.Close()

	b := newBreaker(2)
	c := New("flight", srv.URL, time.Second, b)

	for i := 0; i < 5; i++ {
		resp, err := c.Request(context.Background(), http.MethodGet, "/api/v1/flights/XX1", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	}
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
	assert.Equal(t, 0, b.Stats().FailureCount)
}

func TestServiceClient_ServerErrorsTripBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream exploded"))
	}))
	defer srv.Close()

	b := newBreaker(2)
	c := New("flight", srv.URL, time.Second, b)

	for i := 0; i < 2; i++ {
		resp, err := c.Request(context.Background(), http.MethodGet, "/api/v1/flights", nil)
		require.NoError(t, err, "5xx responses are relayed to the caller")
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.Equal(t, "upstream exploded", string(resp.Body))
	}
	assert.Equal(t, circuitbreaker.StateOpen, b.State())

	_, err := c.Request(context.Background(), http.MethodGet, "/api/v1/flights", nil)
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the network")
}

func TestServiceClient_TimeoutIsBreakerFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	b := newBreaker(1)
	c := New("flight", srv.URL, 50*time.Millisecond, b)

	_, err := c.Request(context.Background(), http.MethodGet, "/api/v1/flights", nil)
	assert.ErrorIs(t, err, ErrDownstreamUnavailable)
	assert.Equal(t, circuitbreaker.StateOpen, b.State())
}

func TestServiceClient_TransportErrorIsBreakerFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	b := newBreaker(1)
	c := New("flight", addr, time.Second, b)

	_, err := c.Request(context.Background(), http.MethodGet, "/api/v1/flights", nil)
	assert.ErrorIs(t, err, ErrDownstreamUnavailable)
	assert.Equal(t, circuitbreaker.StateOpen, b.State())
}

func TestServiceClient_CallerCancellationIsNotCounted(t *testing.T) {
	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer srv.Close()

	b := newBreaker(1)
	c := New("flight", srv.URL, 5*time.Second, b)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := c.Request(ctx, http.MethodGet, "/api/v1/flights", nil)
	assert.ErrorIs(t, err, ErrCallerAborted)
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
	assert.Equal(t, 0, b.Stats().FailureCount)
}

func TestFlightClient_GetFlight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/flights/AV101":
			_, _ = w.Write([]byte(`{"flight_number":"AV101","origin_airport":"BOG","destination_airport":"MDE"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	fc := NewFlightClient(New("flight", srv.URL, time.Second, newBreaker(3)))

	flight, err := fc.GetFlight(context.Background(), "AV101")
	require.NoError(t, err)
	assert.Equal(t, "BOG", flight["origin_airport"])

	_, err = fc.GetFlight(context.Background(), "ZZ999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFlightClient_AdjustAvailableSeats(t *testing.T) {
	var got map[string]int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v1/flights/AV101/available-seats", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	fc := NewFlightClient(New("flight", srv.URL, time.Second, newBreaker(3)))
	require.NoError(t, fc.AdjustAvailableSeats(context.Background(), "AV101", -1))
	assert.Equal(t, map[string]int{"delta": -1}, got)
}

func TestPassengerClient_ServerErrorMapsToUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	pc := NewPassengerClient(New("passenger", srv.URL, time.Second, newBreaker(3)))
	_, err := pc.GetPassenger(context.Background(), "123")
	assert.ErrorIs(t, err, ErrDownstreamUnavailable)
}

func TestServiceClient_PingBypassesBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	b := newBreaker(1)
	c := New("flight", srv.URL, time.Second, b)

	_, err := c.Ping(context.Background())
	assert.ErrorIs(t, err, ErrUnexpected)
	assert.Equal(t, circuitbreaker.StateClosed, b.State())
	assert.Zero(t, b.Stats().TotalRequests)
}
