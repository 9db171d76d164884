// Package motion moves a bus along queued points, one jittered timer per point,
// and decides when the bus has reached its destination.
package motion

import (
	"context"
	"log"
	"math"
	"math/rand"
	"slices"
	"time"

	"github.com/mini-rodalies-3d/transitsim/internal/clock"
	"github.com/mini-rodalies-3d/transitsim/internal/geo"
	"github.com/mini-rodalies-3d/transitsim/internal/logging"
	"github.com/mini-rodalies-3d/transitsim/internal/mailbox"
	"github.com/mini-rodalies-3d/transitsim/internal/tracking"
)

// ArrivalRadiusMeters is how close a point must be to count as the destination
const ArrivalRadiusMeters = 10.0

// Jitter bounds applied to every point's nominal duration
const (
	minJitter = 0.9
	maxJitter = 1.1
)

type Phase int

const (
	Idle Phase = iota
	Loaded
	Traveling
	Starved
	Arrived
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Traveling:
		return "traveling"
	case Starved:
		return "starved"
	case Arrived:
		return "arrived"
	default:
		return "unknown"
	}
}

// Message is a request handled by a Motion
type Message interface {
	isMotionMessage()
}

// Load appends points to the travel queue
type Load struct {
	Points []geo.Point
}

// MoveTo starts travelling toward Destination
type MoveTo struct {
	Destination geo.Coordinate
}

// Halt drops the queued points and any pending timer
type Halt struct{}

// GetState asks for the current phase and queue length
type GetState struct {
	ReplyTo mailbox.Sender[State]
}

type reached struct {
	leg int
}

func (Load) isMotionMessage()     {}
func (MoveTo) isMotionMessage()   {}
func (Halt) isMotionMessage()     {}
func (GetState) isMotionMessage() {}
func (reached) isMotionMessage()  {}

// Report is sent by a Motion to its owner
type Report interface {
	isMotionReport()
}

// Locate reports a reached point
type Locate struct {
	Coordinate geo.Coordinate
}

// WeAreHere reports arrival at the destination
type WeAreHere struct {
	Destination geo.Coordinate
}

func (Locate) isMotionReport()    {}
func (WeAreHere) isMotionReport() {}

type State struct {
	Phase       Phase
	Queued      int
	Destination geo.Coordinate
}

// ArrivedAt reports whether current is the destination: within the arrival
// radius and closer than the next queued point. Without a next point the
// current one is the end of the leg.
func ArrivedAt(destination, current, next geo.Coordinate, hasNext bool) bool {
	toDestination := geo.Distance(destination, current)
	fromNextPoint := math.Inf(1)
	if hasNext {
		fromNextPoint = geo.Distance(destination, next)
	}
	return toDestination < ArrivalRadiusMeters && toDestination < fromNextPoint
}

// Motion moves a bus along the points of its current leg
type Motion struct {
	busID   string
	clock   *clock.Clock
	rng     *rand.Rand
	owner   mailbox.Sender[Report]
	tracker mailbox.Sender[tracking.Message]
	inbox   *mailbox.Mailbox[Message]

	queue       []geo.Point
	destination geo.Coordinate
	phase       Phase
	leg         int
	timer       *clock.Timer
}

func New(busID string, clk *clock.Clock, seed int64, owner mailbox.Sender[Report], tracker mailbox.Sender[tracking.Message]) *Motion {
	return &Motion{
		busID:   busID,
		clock:   clk,
		rng:     rand.New(rand.NewSource(seed)),
		owner:   owner,
		tracker: tracker,
		inbox:   mailbox.New[Message](),
	}
}

// Send queues msg for the Motion
func (m *Motion) Send(msg Message) {
	m.inbox.Send(msg)
}

func (m *Motion) Run(ctx context.Context) error {
	defer func() {
		m.timer.Stop()
		m.inbox.Close()
	}()
	for {
		msg, err := m.inbox.Receive(ctx)
		if err != nil {
			return nil
		}
		m.handle(msg)
	}
}

func (m *Motion) handle(msg Message) {
	switch msg := msg.(type) {
	case Load:
		m.queue = append(m.queue, msg.Points...)
		switch m.phase {
		case Idle, Arrived:
			m.phase = Loaded
		case Starved:
			m.step()
		}
	case MoveTo:
		m.timer.Stop()
		m.leg++
		m.destination = msg.Destination
		m.step()
	case Halt:
		m.timer.Stop()
		m.leg++
		m.queue = nil
		m.phase = Idle
	case reached:
		m.onReached(msg)
	case GetState:
		msg.ReplyTo.Send(State{Phase: m.phase, Queued: len(m.queue), Destination: m.destination})
	default:
		log.Printf("Motion %s: unhandled message %T", m.busID, msg)
	}
}

// step schedules the front point
func (m *Motion) step() {
	if len(m.queue) == 0 {
		m.phase = Starved
		return
	}
	jitter := minJitter + (maxJitter-minJitter)*m.rng.Float64()
	d := time.Duration(float64(m.queue[0].Duration) * jitter)
	m.timer = clock.ScheduleOnce[Message](m.clock, m.clock.Scale(d), m, reached{leg: m.leg})
	m.phase = Traveling
}

func (m *Motion) onReached(msg reached) {
	if msg.leg != m.leg || m.phase != Traveling || len(m.queue) == 0 {
		logging.Debugf("Motion %s: dropping stale timer for leg %d", m.busID, msg.leg)
		return
	}

	p := m.queue[0]
	m.queue = slices.Delete(m.queue, 0, 1)
	m.owner.Send(Locate{Coordinate: p.Coordinate})
	m.tracker.Send(tracking.Track{Point: p})

	var next geo.Coordinate
	hasNext := len(m.queue) > 0
	if hasNext {
		next = m.queue[0].Coordinate
	}

	switch {
	case ArrivedAt(m.destination, p.Coordinate, next, hasNext):
		m.phase = Arrived
		m.owner.Send(WeAreHere{Destination: m.destination})
	case !hasNext:
		m.phase = Starved
		logging.Debugf("Motion %s: out of points %.0fm from destination", m.busID, geo.Distance(m.destination, p.Coordinate))
	default:
		m.step()
	}
}
