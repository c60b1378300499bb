// Package statusapi serves the operational surface: health, metrics, and the
// latest joined snapshot per route.
package statusapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"busmon.openmbta.org/internal/logging"
	"busmon.openmbta.org/internal/models"
	"busmon.openmbta.org/internal/poller"
)

type API struct {
	snapshots *poller.Snapshots
	metrics   http.Handler
	logger    *slog.Logger
}

func New(snapshots *poller.Snapshots, metricsHandler http.Handler, logger *slog.Logger) *API {
	return &API{
		snapshots: snapshots,
		metrics:   metricsHandler,
		logger:    logger,
	}
}

// Router builds the HTTP routing table with request logging applied.
func (api *API) Router() http.Handler {
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/healthz", api.healthHandler)
	router.Handler(http.MethodGet, "/metrics", api.metrics)
	router.HandlerFunc(http.MethodGet, "/api/routes", api.routesHandler)
	router.HandlerFunc(http.MethodGet, "/api/routes/:routeID/trips", api.tripsHandler)
	return api.logRequests(router)
}

// statusWriter captures the status code for the request log.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (api *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		logging.LogHTTPRequest(api.logger,
			r.Method,
			r.URL.Path,
			wrapped.status,
			float64(time.Since(start).Nanoseconds())/1e6,
			slog.String("component", "status_api"))
	})
}

func (api *API) healthHandler(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (api *API) routesHandler(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, map[string][]string{"routes": api.snapshots.Routes()})
}

// tripRow is the JSON rendering of one joined record; the composite key is
// flattened into the record fields, so the response is a plain list.
type tripRow struct {
	EpochTime       int64            `json:"epochTime"`
	VehicleID       string           `json:"vehicleId"`
	TripTag         string           `json:"tripTag"`
	RouteID         string           `json:"routeId"`
	DirectionID     string           `json:"directionId"`
	Lat             float64          `json:"lat"`
	Lon             float64          `json:"lon"`
	SecsSinceReport int64            `json:"secsSinceReport"`
	Heading         float64          `json:"heading"`
	Predictions     map[string]int64 `json:"predictions"`
}

func (api *API) tripsHandler(w http.ResponseWriter, r *http.Request) {
	routeID := httprouter.ParamsFromContext(r.Context()).ByName("routeID")

	records, ok := api.snapshots.Get(routeID)
	if !ok {
		api.writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "no snapshot for route " + routeID,
		})
		return
	}

	trips := make([]tripRow, 0, len(records))
	for _, rec := range records {
		trips = append(trips, tripRowFor(rec))
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"routeId": routeID,
		"trips":   trips,
	})
}

func tripRowFor(rec models.TripRecord) tripRow {
	return tripRow{
		EpochTime:       rec.EpochTime,
		VehicleID:       rec.VehicleID,
		TripTag:         rec.TripTag,
		RouteID:         rec.RouteID,
		DirectionID:     rec.DirectionID,
		Lat:             rec.Lat,
		Lon:             rec.Lon,
		SecsSinceReport: rec.SecsSinceReport,
		Heading:         rec.Heading,
		Predictions:     rec.Predictions,
	}
}

func (api *API) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		api.logger.Error("failed to encode response", "error", err)
	}
}
