// Package tracking records where a bus has been and how far it has travelled.
package tracking

import (
	"context"
	"log"
	"slices"
	"time"

	"github.com/mini-rodalies-3d/transitsim/internal/clock"
	"github.com/mini-rodalies-3d/transitsim/internal/geo"
	"github.com/mini-rodalies-3d/transitsim/internal/mailbox"
)

// Message is a request handled by a Tracker
type Message interface {
	isTrackingMessage()
}

// Track records a reached point
type Track struct {
	Point geo.Point
}

// Snapshot asks for a copy of the recorded path
type Snapshot struct {
	ReplyTo mailbox.Sender[Path]
}

func (Track) isTrackingMessage()    {}
func (Snapshot) isTrackingMessage() {}

type Position struct {
	At         time.Time      `json:"at"`
	Coordinate geo.Coordinate `json:"coordinate"`
}

type Odometer struct {
	At     time.Time `json:"at"`
	Meters float64   `json:"meters"`
}

// Path is the recorded history of one bus. Both lists are in insertion
// order with strictly increasing timestamps.
type Path struct {
	BusID     string     `json:"busId"`
	Positions []Position `json:"positions"`
	Odometer  []Odometer `json:"odometer"`
}

// Latest returns the last recorded position, if any
func (p Path) Latest() (Position, bool) {
	if len(p.Positions) == 0 {
		return Position{}, false
	}
	return p.Positions[len(p.Positions)-1], true
}

// TotalMeters returns the distance travelled so far
func (p Path) TotalMeters() float64 {
	if len(p.Odometer) == 0 {
		return 0
	}
	return p.Odometer[len(p.Odometer)-1].Meters
}

// Tracker keeps the position and odometer log of one bus
type Tracker struct {
	busID string
	clock *clock.Clock
	inbox *mailbox.Mailbox[Message]

	positions []Position
	odometer  []Odometer
	total     float64
	last      time.Time
}

// New creates a tracker with a zero odometer entry stamped now
func New(busID string, clk *clock.Clock) *Tracker {
	t := &Tracker{
		busID: busID,
		clock: clk,
		inbox: mailbox.New[Message](),
	}
	now := t.stamp()
	t.odometer = append(t.odometer, Odometer{At: now, Meters: 0})
	return t
}

// Send queues msg for the Tracker
func (t *Tracker) Send(msg Message) {
	t.inbox.Send(msg)
}

func (t *Tracker) Run(ctx context.Context) error {
	defer t.inbox.Close()
	for {
		msg, err := t.inbox.Receive(ctx)
		if err != nil {
			return nil
		}
		t.handle(msg)
	}
}

func (t *Tracker) handle(msg Message) {
	switch m := msg.(type) {
	case Track:
		now := t.stamp()
		t.total += m.Point.Distance
		t.positions = append(t.positions, Position{At: now, Coordinate: m.Point.Coordinate})
		t.odometer = append(t.odometer, Odometer{At: now, Meters: t.total})
	case Snapshot:
		m.ReplyTo.Send(Path{
			BusID:     t.busID,
			Positions: slices.Clone(t.positions),
			Odometer:  slices.Clone(t.odometer),
		})
	default:
		log.Printf("Tracking %s: unhandled message %T", t.busID, msg)
	}
}

// stamp returns the current simulated time, nudged forward so that no two
// entries share a timestamp
func (t *Tracker) stamp() time.Time {
	now := t.clock.Now()
	if !now.After(t.last) {
		now = t.last.Add(time.Nanosecond)
	}
	t.last = now
	return now
}
