package topology

import (
	"errors"
	"time"
)

// ErrNotFound reports that a store holds no entry for a route.
var ErrNotFound = errors.New("topology: no cached entry for route")

// Store is the persistence boundary for route topology snapshots. Entries are
// keyed by route and carry the time they were written; the resolver decides
// freshness from that timestamp, so a store never serves staleness policy
// itself. Write must be all-or-nothing: a reader must never observe a
// partially written entry.
type Store interface {
	// Read returns the stored blob for a route and the time it was written.
	// A missing entry returns ErrNotFound.
	Read(routeID string) ([]byte, time.Time, error)

	// Write replaces the entry for a route with blob, recorded as written at
	// writtenAt.
	Write(routeID string, blob []byte, writtenAt time.Time) error
}
