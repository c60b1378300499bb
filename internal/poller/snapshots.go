package poller

import (
	"sync"

	"busmon.openmbta.org/internal/models"
)

// Snapshots retains the most recent joined result per route for read-side
// consumers (the status API). Each completed poll replaces a route's entry
// wholesale.
type Snapshots struct {
	mu     sync.RWMutex
	latest map[string]map[models.TripKey]models.TripRecord
}

func NewSnapshots() *Snapshots {
	return &Snapshots{
		latest: make(map[string]map[models.TripKey]models.TripRecord),
	}
}

// Set replaces the retained snapshot for a route.
func (s *Snapshots) Set(routeID string, records map[models.TripKey]models.TripRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[routeID] = records
}

// Get returns the retained snapshot for a route, or false when the route has
// not completed a poll yet.
func (s *Snapshots) Get(routeID string) (map[models.TripKey]models.TripRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records, ok := s.latest[routeID]
	return records, ok
}

// Routes returns the route identifiers with a retained snapshot.
func (s *Snapshots) Routes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	routes := make([]string, 0, len(s.latest))
	for routeID := range s.latest {
		routes = append(routes, routeID)
	}
	return routes
}
