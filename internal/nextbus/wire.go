// Wire types for the NextBus publicXMLFeed. Fields map one to one onto the
// feed's XML attributes; parsing into the application's entities happens in
// the packages that consume them.
package nextbus

import "encoding/xml"

// ErrorElement is the feed-level error body NextBus returns in place of data,
// e.g. for an unknown route tag.
type ErrorElement struct {
	ShouldRetry bool   `xml:"shouldRetry,attr"`
	Text        string `xml:",chardata"`
}

// StopElement appears in two shapes: fully-attributed under <route>, and as a
// bare tag reference under <direction>.
type StopElement struct {
	Tag    string  `xml:"tag,attr"`
	Title  string  `xml:"title,attr"`
	Lat    float64 `xml:"lat,attr"`
	Lon    float64 `xml:"lon,attr"`
	StopID string  `xml:"stopId,attr"`
}

type DirectionElement struct {
	Tag      string        `xml:"tag,attr"`
	Title    string        `xml:"title,attr"`
	Name     string        `xml:"name,attr"`
	UseForUI bool          `xml:"useForUI,attr"`
	Stops    []StopElement `xml:"stop"`
}

type RouteElement struct {
	Tag        string             `xml:"tag,attr"`
	Title      string             `xml:"title,attr"`
	Stops      []StopElement      `xml:"stop"`
	Directions []DirectionElement `xml:"direction"`
}

// RouteConfigBody is the response to command=routeConfig.
type RouteConfigBody struct {
	XMLName xml.Name      `xml:"body"`
	Error   *ErrorElement `xml:"Error"`
	Route   *RouteElement `xml:"route"`
}

type VehicleElement struct {
	ID              string  `xml:"id,attr"`
	RouteTag        string  `xml:"routeTag,attr"`
	DirTag          string  `xml:"dirTag,attr"`
	Lat             float64 `xml:"lat,attr"`
	Lon             float64 `xml:"lon,attr"`
	SecsSinceReport int64   `xml:"secsSinceReport,attr"`
	Predictable     bool    `xml:"predictable,attr"`
	Heading         float64 `xml:"heading,attr"`
	SpeedKmHr       float64 `xml:"speedKmHr,attr"`
}

type LastTimeElement struct {
	// Unix epoch time (milliseconds) at which the most recent report arrived.
	Time int64 `xml:"time,attr"`
}

// VehicleLocationsBody is the response to command=vehicleLocations.
type VehicleLocationsBody struct {
	XMLName  xml.Name         `xml:"body"`
	Error    *ErrorElement    `xml:"Error"`
	Vehicles []VehicleElement `xml:"vehicle"`
	LastTime *LastTimeElement `xml:"lastTime"`
}

type PredictionElement struct {
	// EpochTimeMS is the predicted arrival in epoch milliseconds, feed-native.
	EpochTimeMS int64  `xml:"epochTime,attr"`
	Seconds     int64  `xml:"seconds,attr"`
	Minutes     int64  `xml:"minutes,attr"`
	IsDeparture bool   `xml:"isDeparture,attr"`
	DirTag      string `xml:"dirTag,attr"`
	Vehicle     string `xml:"vehicle,attr"`
	Block       string `xml:"block,attr"`
	TripTag     string `xml:"tripTag,attr"`
}

type PredictionDirectionElement struct {
	Title       string              `xml:"title,attr"`
	Predictions []PredictionElement `xml:"prediction"`
}

// PredictionsElement holds one stop's predictions within a multi-stop response.
type PredictionsElement struct {
	AgencyTitle string                       `xml:"agencyTitle,attr"`
	RouteTag    string                       `xml:"routeTag,attr"`
	StopTag     string                       `xml:"stopTag,attr"`
	StopTitle   string                       `xml:"stopTitle,attr"`
	Directions  []PredictionDirectionElement `xml:"direction"`
}

// PredictionsBody is the response to command=predictionsForMultiStops.
type PredictionsBody struct {
	XMLName     xml.Name             `xml:"body"`
	Error       *ErrorElement        `xml:"Error"`
	Predictions []PredictionsElement `xml:"predictions"`
}
