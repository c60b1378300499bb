// Package poller fetches the live vehicle-location and per-stop prediction
// snapshots for a route and joins them into one record per active trip.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"busmon.openmbta.org/internal/logging"
	"busmon.openmbta.org/internal/metrics"
	"busmon.openmbta.org/internal/models"
	"busmon.openmbta.org/internal/nextbus"
)

// ErrLocationFetch reports that the whole-route vehicle-location fetch failed.
// Fatal for the poll of that route: predictions are never joined against a
// stale or partial vehicle set.
var ErrLocationFetch = errors.New("vehicle location fetch failed")

// TopologySource resolves a route identifier to its directions and stops.
// Satisfied by the topology resolver.
type TopologySource interface {
	Resolve(ctx context.Context, routeID string) (*models.Route, error)
}

// Metrics receives poll outcome counts. Implemented by the metrics collector;
// nil disables reporting.
type Metrics interface {
	ObservePoll(d time.Duration, completedAt time.Time)
	PollErrorInc()
	FetchErrorInc(kind string)
	TripsJoinedAdd(n int)
	JoinMissInc()
}

// Poller joins topology, vehicle locations, and predictions for one agency's
// routes. Safe for concurrent use across routes; the design assumes at most
// one poll in flight per route at a time.
type Poller struct {
	topology TopologySource
	feed     nextbus.Feed
	logger   *slog.Logger
	metrics  Metrics
	now      func() time.Time
}

type Option func(*Poller)

// WithClock replaces the poller's clock for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

// WithMetrics wires poll outcome counters.
func WithMetrics(m Metrics) Option {
	return func(p *Poller) { p.metrics = m }
}

func New(topology TopologySource, feed nextbus.Feed, logger *slog.Logger, opts ...Option) *Poller {
	p := &Poller{
		topology: topology,
		feed:     feed,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll resolves the route's topology, fetches one vehicle-location snapshot
// for the whole route, fetches predictions for each direction, and returns
// the joined records keyed by (route, direction, trip).
//
// A location-fetch failure aborts the poll; a prediction-fetch failure is
// isolated to its direction, which contributes zero records while its
// siblings proceed.
func (p *Poller) Poll(ctx context.Context, routeID string) (map[models.TripKey]models.TripRecord, error) {
	started := p.now()
	logger := p.logger.With(
		slog.String("cycle_id", uuid.NewString()),
		slog.String("route_id", routeID))
	// Carry the per-cycle logger to the per-direction goroutines.
	ctx = logging.WithLogger(ctx, logger)

	route, err := p.topology.Resolve(ctx, routeID)
	if err != nil {
		p.countFetchError(metrics.FetchKindTopology)
		p.countPollError()
		return nil, err
	}

	// One snapshot for the whole route. A zero history window means the feed
	// serves its default last-15-minutes of reports.
	locations, err := p.feed.VehicleLocations(ctx, routeID, 0)
	if err != nil {
		p.countFetchError(metrics.FetchKindLocations)
		p.countPollError()
		return nil, fmt.Errorf("%w: %w", ErrLocationFetch, err)
	}

	vehicles := make(map[string]models.Vehicle, len(locations.Vehicles))
	for _, v := range locations.Vehicles {
		vehicles[v.ID] = models.Vehicle{
			ID:              v.ID,
			RouteID:         v.RouteTag,
			DirectionID:     v.DirTag,
			Lat:             v.Lat,
			Lon:             v.Lon,
			SecsSinceReport: v.SecsSinceReport,
			Heading:         v.Heading,
		}
	}
	// Replace, never merge: the prior snapshot is discarded wholesale.
	route.Vehicles = vehicles

	out := make(map[models.TripKey]models.TripRecord)
	var outMu sync.Mutex
	var wg sync.WaitGroup

	for _, direction := range route.Directions {
		wg.Add(1)
		go func(direction models.Direction) {
			defer wg.Done()

			records, err := p.pollDirection(ctx, route, direction, vehicles)
			if err != nil {
				// This direction contributes nothing this cycle; siblings
				// are unaffected.
				p.countFetchError(metrics.FetchKindPredictions)
				logging.LogError(logging.FromContext(ctx), "prediction fetch failed", err,
					slog.String("direction_id", direction.ID))
				return
			}

			outMu.Lock()
			for key, rec := range records {
				out[key] = rec
			}
			outMu.Unlock()
		}(direction)
	}
	wg.Wait()

	completed := p.now()
	if p.metrics != nil {
		p.metrics.ObservePoll(completed.Sub(started), completed)
		p.metrics.TripsJoinedAdd(len(out))
	}
	logging.LogOperation(logger, "poll_completed",
		slog.Int("vehicle_count", len(vehicles)),
		slog.Int("trip_count", len(out)),
		slog.Duration("duration", completed.Sub(started)))

	return out, nil
}

// pollDirection fetches predictions for every stop of one direction in a
// single batched request and joins the resulting trip rows against the shared
// read-only vehicle snapshot.
func (p *Poller) pollDirection(ctx context.Context, route *models.Route, direction models.Direction, vehicles map[string]models.Vehicle) (map[models.TripKey]models.TripRecord, error) {
	if len(direction.StopOrder) == 0 {
		return nil, nil
	}

	body, err := p.feed.PredictionsForStops(ctx, route.ID, direction.StopOrder)
	if err != nil {
		return nil, err
	}

	epochTime := p.now().Unix()
	records := make(map[models.TripKey]models.TripRecord)

	// Trip rows are keyed by trip tag; the first prediction seen for a tag
	// establishes the row and its vehicle association, which stays
	// authoritative for the rest of the cycle. Later predictions for the
	// same tag only add stop columns.
	for _, stopPredictions := range body.Predictions {
		for _, dir := range stopPredictions.Directions {
			for _, prediction := range dir.Predictions {
				key := models.TripKey{
					RouteID:     route.ID,
					DirectionID: direction.ID,
					TripTag:     prediction.TripTag,
				}

				rec, ok := records[key]
				if !ok {
					rec = models.TripRecord{
						EpochTime:   epochTime,
						VehicleID:   prediction.Vehicle,
						TripTag:     prediction.TripTag,
						RouteID:     route.ID,
						DirectionID: direction.ID,
						Predictions: make(map[string]int64),
					}
					p.joinLocation(&rec, vehicles)
				}

				// Feed times are epoch milliseconds; floor-divide to seconds.
				rec.Predictions[stopPredictions.StopTag] = prediction.EpochTimeMS / 1000
				records[key] = rec
			}
		}
	}

	return records, nil
}

// joinLocation attaches the vehicle's current location fields to the record,
// or the -1 sentinels when the vehicle has no report in the snapshot (for
// example it dropped off the feed's 15-minute window). A missing vehicle
// never aborts the join of the other trips.
func (p *Poller) joinLocation(rec *models.TripRecord, vehicles map[string]models.Vehicle) {
	vehicle, ok := vehicles[rec.VehicleID]
	if !ok {
		rec.MarkLocationMissing()
		if p.metrics != nil {
			p.metrics.JoinMissInc()
		}
		return
	}
	rec.Lat = vehicle.Lat
	rec.Lon = vehicle.Lon
	rec.SecsSinceReport = vehicle.SecsSinceReport
	rec.Heading = vehicle.Heading
}

func (p *Poller) countFetchError(kind string) {
	if p.metrics != nil {
		p.metrics.FetchErrorInc(kind)
	}
}

func (p *Poller) countPollError() {
	if p.metrics != nil {
		p.metrics.PollErrorInc()
	}
}
