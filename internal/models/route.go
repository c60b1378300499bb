package models

// MissingLocation is the sentinel attached to a trip's location fields when its
// vehicle has no current report in the location snapshot. The upstream feed never
// reports -1 for a real latitude, longitude, heading, or report age.
const MissingLocation = -1

// Stop is a physical boarding location along a route. Stops are immutable for
// the calendar day they were fetched on.
type Stop struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Direction is one travel direction of a route. StopOrder is the physical stop
// sequence exactly as the feed declares it; Stops is the unordered lookup over
// the same stops. Every ID in StopOrder is a key of Stops.
type Direction struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	StopOrder []string        `json:"stopOrder"`
	Stops     map[string]Stop `json:"stops"`
}

// AddStop appends a stop to the direction's ordered path and registers it in
// the lookup map. Feed order is preserved; duplicates are kept as declared.
func (d *Direction) AddStop(stop Stop) {
	if d.Stops == nil {
		d.Stops = make(map[string]Stop)
	}
	d.StopOrder = append(d.StopOrder, stop.ID)
	d.Stops[stop.ID] = stop
}

// Route is the daily-cached topology of a bus route: its identifier and the
// directions it runs in.
type Route struct {
	ID         string               `json:"id"`
	Directions map[string]Direction `json:"directions"`

	// Vehicles is the live location snapshot from the most recent poll,
	// replaced wholesale each cycle. Poll-cycle state, never persisted with
	// the topology.
	Vehicles map[string]Vehicle `json:"-"`
}

func NewRoute(id string) *Route {
	return &Route{
		ID:         id,
		Directions: make(map[string]Direction),
	}
}

func (r *Route) AddDirection(d Direction) {
	r.Directions[d.ID] = d
}

// DirectionIDs returns the identifiers of the route's directions.
func (r *Route) DirectionIDs() []string {
	ids := make([]string, 0, len(r.Directions))
	for id := range r.Directions {
		ids = append(ids, id)
	}
	return ids
}
