package topology

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FSStore persists one JSON topology file per route under a data directory,
// using file modification time as the written-at record. This mirrors the
// one-file-per-route layout the poller's log directory already uses.
type FSStore struct {
	dir string
}

func NewFSStore(dir string) *FSStore {
	return &FSStore{dir: dir}
}

func (s *FSStore) path(routeID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("route_%s_topology.json", routeID))
}

func (s *FSStore) Read(routeID string) ([]byte, time.Time, error) {
	path := s.path(routeID)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}

	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	return blob, info.ModTime(), nil
}

// Write creates the data directory on first use and replaces the route's
// entry via a temp file and rename, so a crash mid-write never leaves a
// truncated entry behind.
func (s *FSStore) Write(routeID string, blob []byte, writtenAt time.Time) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating topology dir: %w", err)
	}

	path := s.path(routeID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0o644); err != nil {
		return fmt.Errorf("writing topology entry: %w", err)
	}
	if err := os.Chtimes(tmp, writtenAt, writtenAt); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("stamping topology entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replacing topology entry: %w", err)
	}
	return nil
}
