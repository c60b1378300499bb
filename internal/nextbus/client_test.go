package nextbus

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"busmon.openmbta.org/internal/logging"
)

const routeConfigXML = `<?xml version="1.0" encoding="utf-8" ?>
<body copyright="All data copyright MBTA 2023.">
<route tag="1" title="1" color="ffc72c" oppositeColor="000000">
  <stop tag="64" title="Nubian Station" lat="42.3297" lon="-71.0838" stopId="00064"/>
  <stop tag="1" title="Washington St opp Ruggles St" lat="42.3314" lon="-71.0829" stopId="00001"/>
  <stop tag="2" title="Washington St at Eustis St" lat="42.3288" lon="-71.0839" stopId="00002"/>
  <direction tag="1_1_var0" title="Inbound" name="Inbound" useForUI="true">
    <stop tag="64"/>
    <stop tag="1"/>
  </direction>
  <direction tag="1_0_var0" title="Outbound" name="Outbound" useForUI="true">
    <stop tag="2"/>
  </direction>
</route>
</body>`

const vehicleLocationsXML = `<?xml version="1.0" encoding="utf-8" ?>
<body copyright="All data copyright MBTA 2023.">
<vehicle id="0401" routeTag="1" dirTag="1_1_var0" lat="42.3504" lon="-71.1021" secsSinceReport="5" predictable="true" heading="217" speedKmHr="0"/>
<vehicle id="0322" routeTag="1" dirTag="1_0_var0" lat="42.3332" lon="-71.0810" secsSinceReport="18" predictable="true" heading="45" speedKmHr="21"/>
<lastTime time="1700000000000"/>
</body>`

const predictionsXML = `<?xml version="1.0" encoding="utf-8" ?>
<body copyright="All data copyright MBTA 2023.">
<predictions agencyTitle="MBTA" routeTag="1" routeTitle="1" stopTitle="Nubian Station" stopTag="64">
  <direction title="Inbound">
    <prediction epochTime="1700000000999" seconds="120" minutes="2" dirTag="1_1_var0" vehicle="0401" block="T77_b" tripTag="T77"/>
    <prediction epochTime="1700000600000" seconds="720" minutes="12" dirTag="1_1_var0" vehicle="0322" block="T78_b" tripTag="T78"/>
  </direction>
</predictions>
<predictions agencyTitle="MBTA" routeTag="1" routeTitle="1" stopTitle="Washington St opp Ruggles St" stopTag="1">
  <direction title="Inbound">
    <prediction epochTime="1700000060000" seconds="180" minutes="3" dirTag="1_1_var0" vehicle="0401" tripTag="T77"/>
  </direction>
</predictions>
</body>`

const errorXML = `<?xml version="1.0" encoding="utf-8" ?>
<body copyright="All data copyright MBTA 2023.">
<Error shouldRetry="false">
  Could not get route "9999" for agency tag "mbta".
</Error>
</body>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger := logging.NewStructuredLogger(testWriter{t}, slog.LevelError)
	return NewClient(server.URL, "mbta", 5*time.Second, logger)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestRouteConfig(t *testing.T) {
	var gotQuery url.Values
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(routeConfigXML))
	})

	body, err := client.RouteConfig(context.Background(), "1")
	require.NoError(t, err)
	require.NotNil(t, body.Route)

	assert.Equal(t, "routeConfig", gotQuery.Get("command"))
	assert.Equal(t, "mbta", gotQuery.Get("a"))
	assert.Equal(t, "1", gotQuery.Get("r"))

	assert.Equal(t, "1", body.Route.Tag)
	require.Len(t, body.Route.Stops, 3)
	assert.Equal(t, "64", body.Route.Stops[0].Tag)
	assert.Equal(t, "Nubian Station", body.Route.Stops[0].Title)
	assert.InDelta(t, 42.3297, body.Route.Stops[0].Lat, 1e-9)
	assert.InDelta(t, -71.0838, body.Route.Stops[0].Lon, 1e-9)

	require.Len(t, body.Route.Directions, 2)
	inbound := body.Route.Directions[0]
	assert.Equal(t, "1_1_var0", inbound.Tag)
	assert.Equal(t, "Inbound", inbound.Title)
	require.Len(t, inbound.Stops, 2)
	// direction stops are bare tag references in feed-declared order
	assert.Equal(t, "64", inbound.Stops[0].Tag)
	assert.Equal(t, "1", inbound.Stops[1].Tag)
}

func TestVehicleLocations(t *testing.T) {
	var gotQuery url.Values
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(vehicleLocationsXML))
	})

	body, err := client.VehicleLocations(context.Background(), "1", 0)
	require.NoError(t, err)

	assert.Equal(t, "vehicleLocations", gotQuery.Get("command"))
	assert.Equal(t, "0", gotQuery.Get("t"))

	require.Len(t, body.Vehicles, 2)
	v := body.Vehicles[0]
	assert.Equal(t, "0401", v.ID)
	assert.Equal(t, "1", v.RouteTag)
	assert.Equal(t, "1_1_var0", v.DirTag)
	assert.InDelta(t, 42.3504, v.Lat, 1e-9)
	assert.InDelta(t, -71.1021, v.Lon, 1e-9)
	assert.Equal(t, int64(5), v.SecsSinceReport)
	assert.InDelta(t, 217.0, v.Heading, 1e-9)

	require.NotNil(t, body.LastTime)
	assert.Equal(t, int64(1700000000000), body.LastTime.Time)
}

func TestPredictionsForStopsBatchesIntoOneRequest(t *testing.T) {
	requests := 0
	var gotStops []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		requests++
		gotStops = r.URL.Query()["stops"]
		_, _ = w.Write([]byte(predictionsXML))
	})

	body, err := client.PredictionsForStops(context.Background(), "1", []string{"64", "1", "2"})
	require.NoError(t, err)

	assert.Equal(t, 1, requests)
	assert.Equal(t, []string{"1|64", "1|1", "1|2"}, gotStops)

	require.Len(t, body.Predictions, 2)
	first := body.Predictions[0]
	assert.Equal(t, "64", first.StopTag)
	require.Len(t, first.Directions, 1)
	require.Len(t, first.Directions[0].Predictions, 2)
	p := first.Directions[0].Predictions[0]
	assert.Equal(t, "T77", p.TripTag)
	assert.Equal(t, "0401", p.Vehicle)
	assert.Equal(t, int64(1700000000999), p.EpochTimeMS)
}

func TestFeedErrorBodySurfacesAsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(errorXML))
	})

	_, err := client.RouteConfig(context.Background(), "9999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `Could not get route "9999"`)
}

func TestNon200StatusIsAnError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	_, err := client.VehicleLocations(context.Background(), "1", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestSlowResponseTimesOut(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)

	logger := logging.NewStructuredLogger(testWriter{t}, slog.LevelError)
	client := NewClient(server.URL, "mbta", 50*time.Millisecond, logger)

	start := time.Now()
	_, err := client.VehicleLocations(context.Background(), "1", 0)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
