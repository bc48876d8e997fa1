package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// FlightClient is the typed view of the flight service used by the reservation saga.
type FlightClient struct {
	sc *ServiceClient
}

func NewFlightClient(sc *ServiceClient) *FlightClient {
	return &FlightClient{sc: sc}
}

func (c *FlightClient) GetFlight(ctx context.Context, flightNumber string) (map[string]any, error) {
	return getResource(ctx, c.sc, "/api/v1/flights/"+url.PathEscape(flightNumber))
}

// AdjustAvailableSeats moves the flight's available-seat counter by delta.
func (c *FlightClient) AdjustAvailableSeats(ctx context.Context, flightNumber string, delta int) error {
	resp, err := c.sc.Request(ctx, http.MethodPatch,
		"/api/v1/flights/"+url.PathEscape(flightNumber)+"/available-seats",
		map[string]int{"delta": delta},
	)
	if err != nil {
		return err
	}
	return statusToError(c.sc.Name(), resp)
}

type PassengerClient struct {
	sc *ServiceClient
}

func NewPassengerClient(sc *ServiceClient) *PassengerClient {
	return &PassengerClient{sc: sc}
}

func (c *PassengerClient) GetPassenger(ctx context.Context, identification string) (map[string]any, error) {
	return getResource(ctx, c.sc, "/api/v1/passengers/"+url.PathEscape(identification))
}

func getResource(ctx context.Context, sc *ServiceClient, path string) (map[string]any, error) {
	resp, err := sc.Request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if err := statusToError(sc.Name(), resp); err != nil {
		return nil, err
	}

	var out map[string]any
	if err := resp.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %s: decode body: %w", ErrUnexpected, sc.Name(), err)
	}
	return out, nil
}

func statusToError(service string, resp *Response) error {
	switch {
	case resp.Success():
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", service, ErrNotFound)
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s returned status %d", ErrDownstreamUnavailable, service, resp.StatusCode)
	default:
		return fmt.Errorf("%w: %s returned status %d", ErrUnexpected, service, resp.StatusCode)
	}
}
