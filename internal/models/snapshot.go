package models

import "fmt"

// Vehicle is a single live location report. Vehicles are ephemeral: the whole
// set is replaced on every poll, never merged with prior state. Units are
// feed-native and preserved verbatim.
type Vehicle struct {
	ID              string  `json:"vehicleId"`
	RouteID         string  `json:"routeId"`
	DirectionID     string  `json:"directionId"`
	Lat             float64 `json:"lat"`
	Lon             float64 `json:"lon"`
	SecsSinceReport int64   `json:"secsSinceReport"`
	Heading         float64 `json:"heading"`
}

// Prediction is one (trip, stop) arrival fact from a prediction fetch,
// annotated with the vehicle and direction it was reported under. Arrival
// times are epoch seconds, floor-divided from the feed's epoch milliseconds.
type Prediction struct {
	TripTag             string `json:"tripTag"`
	VehicleID           string `json:"vehicleId"`
	DirectionID         string `json:"directionId"`
	StopID              string `json:"stopId"`
	ArrivalEpochSeconds int64  `json:"arrivalEpochSeconds"`
}

// TripKey uniquely identifies a joined trip record across a whole poll result.
type TripKey struct {
	RouteID     string `json:"routeId"`
	DirectionID string `json:"directionId"`
	TripTag     string `json:"tripTag"`
}

func (k TripKey) String() string {
	return fmt.Sprintf("%s|%s|%s", k.RouteID, k.DirectionID, k.TripTag)
}

// TripRecord is one active trip with its vehicle location (or the -1 sentinels
// when the vehicle has no current report) and its per-stop arrival predictions.
type TripRecord struct {
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

// Key returns the record's caller-visible composite key.
func (t TripRecord) Key() TripKey {
	return TripKey{RouteID: t.RouteID, DirectionID: t.DirectionID, TripTag: t.TripTag}
}

// MarkLocationMissing sets the sentinel location fields on a record whose
// vehicle was absent from the location snapshot. No other field is touched.
func (t *TripRecord) MarkLocationMissing() {
	t.Lat = MissingLocation
	t.Lon = MissingLocation
	t.SecsSinceReport = MissingLocation
	t.Heading = MissingLocation
}
