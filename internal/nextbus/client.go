package nextbus

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"busmon.openmbta.org/internal/logging"
)

// DefaultBaseURL is the public NextBus XML feed endpoint.
const DefaultBaseURL = "http://webservices.nextbus.com/service/publicXMLFeed"

const (
	commandRouteConfig      = "routeConfig"
	commandVehicleLocations = "vehicleLocations"
	commandPredictions      = "predictionsForMultiStops"
)

// Feed is the upstream capability consumed by the topology resolver and the
// poller: fetch route topology, fetch vehicle locations, fetch predictions.
// Tests substitute fakes for it.
type Feed interface {
	RouteConfig(ctx context.Context, routeID string) (*RouteConfigBody, error)
	VehicleLocations(ctx context.Context, routeID string, historySeconds int) (*VehicleLocationsBody, error)
	PredictionsForStops(ctx context.Context, routeID string, stopIDs []string) (*PredictionsBody, error)
}

// Client fetches and decodes NextBus publicXMLFeed responses for one agency.
type Client struct {
	baseURL    string
	agency     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient returns a Client for the given agency. baseURL falls back to the
// public NextBus endpoint when empty; timeout bounds every fetch.
func NewClient(baseURL, agency string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		agency:     agency,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// RouteConfig fetches the static topology for a route: its stops and its
// directions with their ordered stop references. The terse flag trims the
// response to the elements this application reads.
func (c *Client) RouteConfig(ctx context.Context, routeID string) (*RouteConfigBody, error) {
	params := url.Values{}
	params.Set("command", commandRouteConfig)
	params.Set("a", c.agency)
	params.Set("r", routeID)
	params.Set("terse", "")

	var body RouteConfigBody
	if err := c.get(ctx, params, &body); err != nil {
		return nil, fmt.Errorf("route config for %s: %w", routeID, err)
	}
	if body.Error != nil {
		return nil, feedError(commandRouteConfig, body.Error)
	}
	return &body, nil
}

// VehicleLocations fetches the current location reports for a whole route.
// historySeconds is passed through as the t parameter; zero means the feed's
// own default window of the last 15 minutes of reports.
func (c *Client) VehicleLocations(ctx context.Context, routeID string, historySeconds int) (*VehicleLocationsBody, error) {
	params := url.Values{}
	params.Set("command", commandVehicleLocations)
	params.Set("a", c.agency)
	params.Set("r", routeID)
	params.Set("t", strconv.Itoa(historySeconds))

	var body VehicleLocationsBody
	if err := c.get(ctx, params, &body); err != nil {
		return nil, fmt.Errorf("vehicle locations for %s: %w", routeID, err)
	}
	if body.Error != nil {
		return nil, feedError(commandVehicleLocations, body.Error)
	}
	return &body, nil
}

// PredictionsForStops fetches arrival predictions for all the given stops in a
// single batched request, one stops=route|stop pair per stop. Request count is
// therefore bounded by direction count, not stop count.
func (c *Client) PredictionsForStops(ctx context.Context, routeID string, stopIDs []string) (*PredictionsBody, error) {
	params := url.Values{}
	params.Set("command", commandPredictions)
	params.Set("a", c.agency)
	for _, stopID := range stopIDs {
		params.Add("stops", routeID+"|"+stopID)
	}

	var body PredictionsBody
	if err := c.get(ctx, params, &body); err != nil {
		return nil, fmt.Errorf("predictions for %s: %w", routeID, err)
	}
	if body.Error != nil {
		return nil, feedError(commandPredictions, body.Error)
	}
	return &body, nil
}

func (c *Client) get(ctx context.Context, params url.Values, out any) error {
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(resp.Body,
		c.logger, "feed_response_body")

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if err := xml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decoding feed response: %w", err)
	}
	return nil
}

func feedError(command string, e *ErrorElement) error {
	return fmt.Errorf("feed error from %s (shouldRetry=%v): %s",
		command, e.ShouldRetry, strings.TrimSpace(e.Text))
}
