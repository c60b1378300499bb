// Package csvlog appends joined trip records to per-trip CSV files, one
// directory per route per service day.
package csvlog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"busmon.openmbta.org/internal/logging"
	"busmon.openmbta.org/internal/models"
)

const dayLayout = "2006.01.02"

// filenameSanitizer strips characters that feed tags occasionally carry but
// filesystems do not tolerate.
var filenameSanitizer = strings.NewReplacer("/", "_", "\\", "_", " ", "_")

// Writer appends one CSV row per trip record per poll cycle. Files live under
// <dataDir>/route_<id>/<YYYY.MM.DD>/ and roll over with the calendar day.
type Writer struct {
	dataDir string
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Writer)

// WithClock replaces the writer's clock for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

func NewWriter(dataDir string, logger *slog.Logger, opts ...Option) *Writer {
	w := &Writer{
		dataDir: dataDir,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Append writes one row per record into that trip's file for today. The route
// supplies each direction's stop order, so every row of a trip's file has the
// same columns: the fixed record fields, then a stopID,prediction pair per
// stop with -1 where the cycle carried no prediction for that stop.
//
// A failed row is logged and skipped; the remaining records still land.
func (w *Writer) Append(route *models.Route, records map[models.TripKey]models.TripRecord) error {
	day := w.now().Format(dayLayout)
	dir := filepath.Join(w.dataDir, "route_"+route.ID, day)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating log directory %s: %w", dir, err)
	}

	var errs []error
	for key, rec := range records {
		direction, ok := route.Directions[key.DirectionID]
		if !ok {
			// A record for a direction the topology no longer lists has no
			// stop ordering to render; skip it.
			w.logger.Warn("skipping record for unknown direction",
				slog.String("route_id", route.ID),
				slog.String("direction_id", key.DirectionID),
				slog.String("trip_tag", key.TripTag))
			continue
		}
		if err := w.appendRow(dir, day, direction, rec); err != nil {
			logging.LogError(w.logger, "trip log append failed", err,
				slog.String("route_id", route.ID),
				slog.String("trip_tag", key.TripTag))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *Writer) appendRow(dir, day string, direction models.Direction, rec models.TripRecord) (err error) {
	name := fmt.Sprintf("%s_route_%s_direction_%s_trip_%s.csv",
		day,
		filenameSanitizer.Replace(rec.RouteID),
		filenameSanitizer.Replace(rec.DirectionID),
		filenameSanitizer.Replace(rec.TripTag))

	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	// A close failure can mean the row never reached disk; surface it.
	defer logging.HandleDeferredError(&err, f.Close, w.logger, "trip_log_close")

	cw := csv.NewWriter(f)
	if err := cw.Write(rowFor(direction, rec)); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// rowFor renders the record as a dense row: prediction columns follow the
// direction's stop order, -1 for stops the cycle had no prediction for.
func rowFor(direction models.Direction, rec models.TripRecord) []string {
	row := make([]string, 0, 9+2*len(direction.StopOrder))
	row = append(row,
		strconv.FormatInt(rec.EpochTime, 10),
		rec.VehicleID,
		rec.TripTag,
		rec.RouteID,
		rec.DirectionID,
		formatCoord(rec.Lat),
		formatCoord(rec.Lon),
		strconv.FormatInt(rec.SecsSinceReport, 10),
		formatCoord(rec.Heading),
	)
	for _, stopID := range direction.StopOrder {
		prediction, ok := rec.Predictions[stopID]
		if !ok {
			prediction = models.MissingLocation
		}
		row = append(row, stopID, strconv.FormatInt(prediction, 10))
	}
	return row
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
