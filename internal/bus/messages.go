package bus

import (
	"time"

	"github.com/mini-rodalies-3d/transitsim/internal/geo"
	"github.com/mini-rodalies-3d/transitsim/internal/mailbox"
	"github.com/mini-rodalies-3d/transitsim/internal/motion"
	"github.com/mini-rodalies-3d/transitsim/internal/route"
	"github.com/mini-rodalies-3d/transitsim/internal/station"
)

// Message is a request or reply handled by a Bus
type Message interface {
	isBusMessage()
}

// Assign puts the bus on RouteID, dropping whatever trip it was on
type Assign struct {
	RouteID string
}

// Snapshot asks for the bus status
type Snapshot struct {
	ReplyTo mailbox.Sender[Status]
}

// routeReply wraps a Route reply with the request it answers
type routeReply struct {
	req   int
	reply route.Reply
}

// routeFailed is sent when the Route of generation gen stops with an error
type routeFailed struct {
	gen int
	err error
}

type stationReply struct {
	req   int
	reply station.Reply
}

type motionReport struct {
	report motion.Report
}

func (Assign) isBusMessage()       {}
func (Snapshot) isBusMessage()     {}
func (routeReply) isBusMessage()   {}
func (routeFailed) isBusMessage()  {}
func (stationReply) isBusMessage() {}
func (motionReport) isBusMessage() {}

type Phase int

const (
	Idle Phase = iota
	AwaitingRoute
	AwaitingStation
	AwaitingData
	Traveling
	AwaitingArrival
	Alighting
	Boarding
	Stalled
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case AwaitingRoute:
		return "awaiting_route"
	case AwaitingStation:
		return "awaiting_station"
	case AwaitingData:
		return "awaiting_data"
	case Traveling:
		return "traveling"
	case AwaitingArrival:
		return "awaiting_arrival"
	case Alighting:
		return "alighting"
	case Boarding:
		return "boarding"
	case Stalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of a bus
type Status struct {
	BusID      string         `json:"busId"`
	RouteID    string         `json:"routeId"`
	Phase      string         `json:"phase"`
	StationID  string         `json:"stationId,omitempty"`
	Position   geo.Coordinate `json:"position"`
	Positioned bool           `json:"positioned"`
	Bearing    float64        `json:"bearing"`
	Onboard    int            `json:"onboard"`
	Capacity   int            `json:"capacity"`
	Boarded    int            `json:"boarded"`
	Delivered  int            `json:"delivered"`
	Departures int            `json:"departures"`
	Error      string         `json:"error,omitempty"`
	At         time.Time      `json:"at"`
}
