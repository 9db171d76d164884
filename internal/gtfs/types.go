// Package gtfs reads a static GTFS feed and derives a simulation network
// from its stop patterns.
package gtfs

// Data holds the GTFS tables the importer needs
type Data struct {
	Routes    []Route
	Stops     []Stop
	Trips     []Trip
	StopTimes []StopTime
}

// Route represents a route from routes.txt
type Route struct {
	RouteID        string
	RouteShortName string
	RouteLongName  string
	RouteType      int
}

// Stop represents a stop from stops.txt
type Stop struct {
	StopID        string
	StopName      string
	StopLat       float64
	StopLon       float64
	LocationType  int
	ParentStation string
}

// Trip represents a trip from trips.txt
type Trip struct {
	RouteID     string
	TripID      string
	DirectionID int
}

// StopTime represents a stop time from stop_times.txt
type StopTime struct {
	TripID       string
	StopID       string
	StopSequence int
}
