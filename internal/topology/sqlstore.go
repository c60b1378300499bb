package topology

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"busmon.openmbta.org/internal/logging"
)

// SQLStore persists topology snapshots in a SQLite table keyed by
// (route_id, service_day). Prior-day rows are left in place for inspection;
// Read always serves the newest row and the resolver's day check rejects
// anything stale.
type SQLStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLStore opens (or creates) the SQLite database at path. Use ":memory:"
// in tests.
func NewSQLStore(path string, logger *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error opening topology database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS route_topologies (
			route_id    TEXT    NOT NULL,
			service_day TEXT    NOT NULL,
			payload     BLOB    NOT NULL,
			written_at  INTEGER NOT NULL,
			PRIMARY KEY (route_id, service_day)
		);
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("error creating topology table: %w", err)
	}

	return &SQLStore{db: db, logger: logger}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Read(routeID string) ([]byte, time.Time, error) {
	row := s.db.QueryRow(`
		SELECT payload, written_at FROM route_topologies
		WHERE route_id = ?
		ORDER BY written_at DESC
		LIMIT 1;
	`, routeID)

	var blob []byte
	var writtenAt int64
	if err := row.Scan(&blob, &writtenAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, time.Time{}, ErrNotFound
		}
		return nil, time.Time{}, err
	}
	return blob, time.Unix(writtenAt, 0), nil
}

func (s *SQLStore) Write(routeID string, blob []byte, writtenAt time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer logging.SafeRollbackWithLogging(tx, s.logger, "topology_write")

	_, err = tx.Exec(`
		INSERT OR REPLACE INTO route_topologies (route_id, service_day, payload, written_at)
		VALUES (?, ?, ?, ?);
	`, routeID, writtenAt.Format("2006-01-02"), blob, writtenAt.Unix())
	if err != nil {
		return fmt.Errorf("error writing topology entry: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("error committing topology entry: %w", err)
	}
	return nil
}
