package db

import "time"

// Run describes one simulation run
type Run struct {
	RunID         string     `json:"runId"`
	StartedAt     time.Time  `json:"startedAt"`
	FinishedAt    *time.Time `json:"finishedAt,omitempty"`
	TimeScale     int        `json:"timeScale"`
	Seed          int64      `json:"seed"`
	StationCount  int        `json:"stationCount"`
	BusCount      int        `json:"busCount"`
	SnapshotCount int        `json:"snapshotCount"`
}

// BusPosition is the state of a bus at snapshot time
type BusPosition struct {
	BusID          string
	RouteID        string
	StationID      *string
	Phase          string
	Latitude       float64
	Longitude      float64
	Bearing        float64
	Onboard        int
	Capacity       int
	Boarded        int
	Delivered      int
	Departures     int
	OdometerMeters float64
	SimulatedAt    time.Time
}

// StationStat is the state of a station at snapshot time
type StationStat struct {
	StationID     string
	Name          string
	Waiting       int
	Arrivals      int
	Boarded       int
	Delivered     int
	ServingRoutes []string
	SimulatedAt   time.Time
}

// HeadwayStat is the running headway summary of a station
type HeadwayStat struct {
	StationID     string
	SampleCount   int
	MeanSeconds   float64
	StdDevSeconds float64
	LastDeparture *time.Time
	LastBusID     *string
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
