// Package passenger defines the rider value passed between stations and buses.
package passenger

import (
	"fmt"
	"slices"
	"sync/atomic"
	"time"
)

// Passenger waits at Origin for a bus on one of SuitableRoutes to reach Destination.
type Passenger struct {
	ID             int64     `json:"id"`
	Origin         string    `json:"origin"`
	Destination    string    `json:"destination"`
	SuitableRoutes []string  `json:"suitableRoutes"`
	ArrivedAt      time.Time `json:"arrivedAt"`
}

// None is returned when no passenger matches a boarding request
var None = Passenger{}

// IsNone reports whether p is the "no passenger" sentinel
func (p Passenger) IsNone() bool {
	return p.ID == 0
}

// IsSuitable reports whether a bus on routeID can carry p
func (p Passenger) IsSuitable(routeID string) bool {
	return slices.Contains(p.SuitableRoutes, routeID)
}

// AlightsAt reports whether stationID is p's destination
func (p Passenger) AlightsAt(stationID string) bool {
	return p.Destination != "" && p.Destination == stationID
}

func (p Passenger) String() string {
	return fmt.Sprintf("Passenger [%d]", p.ID)
}

// Sequence hands out passenger ids, starting at 1. One Sequence is shared by
// every station of a simulation.
type Sequence struct {
	last atomic.Int64
}

// Next returns the next unused id
func (s *Sequence) Next() int64 {
	return s.last.Add(1)
}

// New creates a passenger with the next id from seq. routes is copied.
func New(seq *Sequence, origin, destination string, routes []string, arrivedAt time.Time) Passenger {
	return Passenger{
		ID:             seq.Next(),
		Origin:         origin,
		Destination:    destination,
		SuitableRoutes: slices.Clone(routes),
		ArrivedAt:      arrivedAt,
	}
}
