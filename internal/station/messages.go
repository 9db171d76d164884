package station

import (
	"time"

	"github.com/mini-rodalies-3d/transitsim/internal/geo"
	"github.com/mini-rodalies-3d/transitsim/internal/mailbox"
	"github.com/mini-rodalies-3d/transitsim/internal/passenger"
)

// Message is a request handled by a Station
type Message interface {
	isStationMessage()
}

// Arrived announces a bus of RouteID at the station
type Arrived struct {
	BusID   string
	RouteID string
	ReplyTo mailbox.Sender[Reply]
}

// ToAlight hands a passenger off the bus
type ToAlight struct {
	Passenger passenger.Passenger
	ReplyTo   mailbox.Sender[Reply]
}

// Boarding asks for the first waiting passenger that can ride RouteID.
// Duration is the simulated time the boarding takes.
type Boarding struct {
	BusID    string
	RouteID  string
	Duration time.Duration
	Load     int
	ReplyTo  mailbox.Sender[Reply]
}

// Requeue returns a passenger whose boarding the bus could no longer take.
// The passenger goes back to the front of the queue.
type Requeue struct {
	Passenger passenger.Passenger
}

// Describe asks for the station's id, name and location
type Describe struct {
	ReplyTo mailbox.Sender[Reply]
}

// Snapshot asks for the station's current statistics
type Snapshot struct {
	ReplyTo mailbox.Sender[Stats]
}

type passengerArrived struct{}

type boardingComplete struct {
	passenger passenger.Passenger
	replyTo   mailbox.Sender[Reply]
}

func (Arrived) isStationMessage()          {}
func (ToAlight) isStationMessage()         {}
func (Boarding) isStationMessage()         {}
func (Requeue) isStationMessage()          {}
func (Describe) isStationMessage()         {}
func (Snapshot) isStationMessage()         {}
func (passengerArrived) isStationMessage() {}
func (boardingComplete) isStationMessage() {}

// Reply is sent by a Station to a requester
type Reply interface {
	isStationReply()
}

// Alighting acknowledges Arrived and ToAlight
type Alighting struct {
	StationID string
}

// ToBoard carries the boarded passenger, or passenger.None
type ToBoard struct {
	StationID string
	Passenger passenger.Passenger
}

// Data describes the station
type Data struct {
	ID       string
	Name     string
	Location geo.Coordinate
}

func (Alighting) isStationReply() {}
func (ToBoard) isStationReply()   {}
func (Data) isStationReply()      {}

// Stats is a point-in-time view of a station
type Stats struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Location      geo.Coordinate `json:"location"`
	Waiting       int            `json:"waiting"`
	ServingRoutes []string       `json:"servingRoutes"`
	Arrivals      int            `json:"arrivals"`
	Boarded       int            `json:"boarded"`
	Delivered     int            `json:"delivered"`
	At            time.Time      `json:"at"`
}
