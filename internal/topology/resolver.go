// Package topology resolves a route identifier to its directions and stops,
// serving a persisted same-day snapshot when one exists and fetching from the
// upstream feed otherwise. Route configuration only changes at service
// boundaries, so entries are refreshed at most once per calendar day.
package topology

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"busmon.openmbta.org/internal/logging"
	"busmon.openmbta.org/internal/models"
	"busmon.openmbta.org/internal/nextbus"
)

// ErrConfigUnavailable reports that the route's topology could not be fetched
// and no valid same-day cache entry exists. Fatal for the whole poll of that
// route.
var ErrConfigUnavailable = errors.New("route configuration unavailable")

// CacheMetrics receives cache outcome counts. Implemented by the metrics
// collector; nil disables reporting.
type CacheMetrics interface {
	TopologyCacheHit()
	TopologyCacheMiss()
}

// Resolver is the topology cache. It is safe for concurrent use; the fetch-
// and-persist path is mutually exclusive per route, so concurrent pollers
// cannot race to write different entries for the same route and day.
type Resolver struct {
	feed    nextbus.Feed
	store   Store
	logger  *slog.Logger
	metrics CacheMetrics
	now     func() time.Time

	mu         sync.Mutex
	routeLocks map[string]*sync.Mutex
}

type ResolverOption func(*Resolver)

// WithClock replaces the resolver's clock. Tests use it to cross day
// boundaries without waiting.
func WithClock(now func() time.Time) ResolverOption {
	return func(r *Resolver) { r.now = now }
}

// WithCacheMetrics wires cache hit/miss counters.
func WithCacheMetrics(m CacheMetrics) ResolverOption {
	return func(r *Resolver) { r.metrics = m }
}

func NewResolver(feed nextbus.Feed, store Store, logger *slog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		feed:       feed,
		store:      store,
		logger:     logger,
		now:        time.Now,
		routeLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the route's topology, reading the persisted snapshot when
// it was written today and fetching, assembling, and persisting it otherwise.
// The cache-hit path makes no network call.
func (r *Resolver) Resolve(ctx context.Context, routeID string) (*models.Route, error) {
	lock := r.routeLock(routeID)
	lock.Lock()
	defer lock.Unlock()

	if route := r.readFresh(routeID); route != nil {
		if r.metrics != nil {
			r.metrics.TopologyCacheHit()
		}
		return route, nil
	}
	if r.metrics != nil {
		r.metrics.TopologyCacheMiss()
	}

	body, err := r.feed.RouteConfig(ctx, routeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigUnavailable, err)
	}

	route := buildRoute(routeID, body, r.logger)
	logging.LogOperation(r.logger, "topology_resolved",
		slog.String("route_id", routeID),
		slog.Any("direction_ids", route.DirectionIDs()))
	r.persist(route)
	return route, nil
}

func (r *Resolver) routeLock(routeID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.routeLocks[routeID]
	if !ok {
		lock = &sync.Mutex{}
		r.routeLocks[routeID] = lock
	}
	return lock
}

// readFresh returns the cached route when a same-day entry deserializes
// cleanly; anything else (absent, stale day, unreadable, corrupt) is a miss.
func (r *Resolver) readFresh(routeID string) *models.Route {
	blob, writtenAt, err := r.store.Read(routeID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logging.LogError(r.logger, "could not read topology entry", err,
				slog.String("route_id", routeID))
		}
		return nil
	}

	if !sameDay(writtenAt, r.now()) {
		return nil
	}

	var route models.Route
	if err := json.Unmarshal(blob, &route); err != nil {
		logging.LogError(r.logger, "discarding corrupt topology entry", err,
			slog.String("route_id", routeID))
		return nil
	}
	return &route
}

// persist writes the fully assembled route. The route is only serialized once
// assembly has completed, so a partially populated topology can never reach
// the store. A failed write is logged and the fetched topology is still
// returned to the caller; the next resolve simply refetches.
func (r *Resolver) persist(route *models.Route) {
	blob, err := json.Marshal(route)
	if err != nil {
		logging.LogError(r.logger, "could not serialize topology", err,
			slog.String("route_id", route.ID))
		return
	}
	if err := r.store.Write(route.ID, blob, r.now()); err != nil {
		logging.LogError(r.logger, "could not persist topology entry", err,
			slog.String("route_id", route.ID))
		return
	}
	logging.LogOperation(r.logger, "topology_persisted",
		slog.String("route_id", route.ID),
		slog.Int("direction_count", len(route.Directions)))
}

// buildRoute assembles the typed topology from the feed body: first the flat
// stop registry, then each direction's ordered path by identifier lookup.
// Feed order is the physical stop sequence and is preserved exactly, never
// sorted or deduplicated.
func buildRoute(routeID string, body *nextbus.RouteConfigBody, logger *slog.Logger) *models.Route {
	route := models.NewRoute(routeID)
	if body.Route == nil {
		return route
	}

	stops := make(map[string]models.Stop, len(body.Route.Stops))
	for _, s := range body.Route.Stops {
		stops[s.Tag] = models.Stop{
			ID:   s.Tag,
			Name: s.Title,
			Lat:  s.Lat,
			Lon:  s.Lon,
		}
	}

	for _, d := range body.Route.Directions {
		direction := models.Direction{
			ID:    d.Tag,
			Title: d.Title,
			Stops: make(map[string]models.Stop, len(d.Stops)),
		}
		for _, ref := range d.Stops {
			stop, ok := stops[ref.Tag]
			if !ok {
				logger.Warn("direction references unknown stop",
					slog.String("route_id", routeID),
					slog.String("direction_id", d.Tag),
					slog.String("stop_id", ref.Tag))
				continue
			}
			direction.AddStop(stop)
		}
		route.AddDirection(direction)
	}
	return route
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
