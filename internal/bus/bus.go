// Package bus drives one vehicle through its trip: next station, travel,
// alighting, boarding, departure, and again. Each step waits for the reply
// to the previous one; replies that no longer match the bus's phase are
// dropped, except boarded passengers, who go back to their station.
package bus

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/mini-rodalies-3d/transitsim/internal/clock"
	"github.com/mini-rodalies-3d/transitsim/internal/departure"
	"github.com/mini-rodalies-3d/transitsim/internal/geo"
	"github.com/mini-rodalies-3d/transitsim/internal/logging"
	"github.com/mini-rodalies-3d/transitsim/internal/mailbox"
	"github.com/mini-rodalies-3d/transitsim/internal/motion"
	"github.com/mini-rodalies-3d/transitsim/internal/passenger"
	"github.com/mini-rodalies-3d/transitsim/internal/route"
	"github.com/mini-rodalies-3d/transitsim/internal/station"
	"github.com/mini-rodalies-3d/transitsim/internal/tracking"
)

const (
	DefaultCapacity     = 60
	DefaultSpeedKmph    = 20
	DefaultBoardingTime = 3 * time.Second
	DefaultStepMeters   = 50
)

var ErrUnknownStation = errors.New("unknown station")

type Config struct {
	ID      string
	RouteID string
	// Capacity is the number of passengers the bus can carry
	Capacity     int
	SpeedKmph    float64
	BoardingTime time.Duration
	// StepMeters is the spacing of the points a leg is split into
	StepMeters float64
	Seed       int64
}

// Deps are the components a bus talks to
type Deps struct {
	Clock    *clock.Clock
	Routes   route.Lookup
	Stations map[string]mailbox.Sender[station.Message]
	Ledger   mailbox.Sender[departure.Message]
	Tracker  mailbox.Sender[tracking.Message]
}

// Bus is one vehicle with its own Motion and Route
type Bus struct {
	cfg    Config
	deps   Deps
	inbox  *mailbox.Mailbox[Message]
	motion *motion.Motion

	wg          sync.WaitGroup
	routeCancel context.CancelFunc

	phase   Phase
	gen     int // route instance
	req     int // outstanding request
	route   *route.Route
	routeID string
	err     error

	stationID  string
	stopAt     geo.Coordinate
	position   geo.Coordinate
	positioned bool
	bearing    float64

	onboard   []passenger.Passenger
	alighting []passenger.Passenger

	boarded    int
	delivered  int
	departures int
}

func New(cfg Config, deps Deps) *Bus {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.SpeedKmph <= 0 {
		cfg.SpeedKmph = DefaultSpeedKmph
	}
	if cfg.BoardingTime < 0 {
		cfg.BoardingTime = DefaultBoardingTime
	}
	if cfg.StepMeters <= 0 {
		cfg.StepMeters = DefaultStepMeters
	}

	b := &Bus{
		cfg:   cfg,
		deps:  deps,
		inbox: mailbox.New[Message](),
	}
	b.motion = motion.New(cfg.ID, deps.Clock, cfg.Seed,
		mailbox.Map[motion.Report, Message](b, func(r motion.Report) Message {
			return motionReport{report: r}
		}),
		deps.Tracker)
	return b
}

// ID returns the bus id
func (b *Bus) ID() string {
	return b.cfg.ID
}

// Send queues msg for the Bus
func (b *Bus) Send(msg Message) {
	b.inbox.Send(msg)
}

// Run drives the bus until ctx is done. Its Motion and Route run alongside
// and are stopped before Run returns. A failing Route stalls this bus only.
func (b *Bus) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		b.wg.Wait()
		b.inbox.Close()
	}()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.motion.Run(ctx)
	}()

	if b.cfg.RouteID != "" {
		b.assign(ctx, b.cfg.RouteID)
	}

	for {
		msg, err := b.inbox.Receive(ctx)
		if err != nil {
			return nil
		}
		b.handle(ctx, msg)
	}
}

func (b *Bus) handle(ctx context.Context, msg Message) {
	switch m := msg.(type) {
	case Assign:
		b.assign(ctx, m.RouteID)
	case routeReply:
		b.onRouteReply(m)
	case routeFailed:
		if m.gen != b.gen {
			logging.Debugf("Bus %s: dropping failure of replaced route: %v", b.cfg.ID, m.err)
			return
		}
		b.err = m.err
		b.phase = Stalled
		log.Printf("Bus %s: stalled on route %s: %v", b.cfg.ID, b.routeID, m.err)
	case stationReply:
		b.onStationReply(m)
	case motionReport:
		b.onMotionReport(m.report)
	case Snapshot:
		m.ReplyTo.Send(b.status())
	default:
		log.Printf("Bus %s: unhandled message %T", b.cfg.ID, msg)
	}
}

// assign starts a fresh Route for routeID. Replies from the previous Route
// carry an older request number and are dropped.
func (b *Bus) assign(ctx context.Context, routeID string) {
	if b.routeCancel != nil {
		b.routeCancel()
	}
	b.motion.Send(motion.Halt{})

	b.gen++
	b.req++
	b.err = nil
	b.routeID = routeID
	b.stationID = ""
	b.phase = AwaitingRoute

	gen, req := b.gen, b.req
	b.route = route.New(b.deps.Routes, routeID, mailbox.Map[route.Reply, Message](b, func(r route.Reply) Message {
		return routeReply{req: req, reply: r}
	}))

	routeCtx, cancel := context.WithCancel(ctx)
	b.routeCancel = cancel
	r := b.route
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := r.Run(routeCtx); err != nil {
			b.Send(routeFailed{gen: gen, err: err})
		}
	}()

	log.Printf("Bus %s: assigned to route %s", b.cfg.ID, routeID)
}

func (b *Bus) nextStation() {
	b.req++
	req := b.req
	b.phase = AwaitingStation
	b.route.Send(route.GetNextStation{
		ReplyTo: mailbox.Map[route.Reply, Message](b, func(r route.Reply) Message {
			return routeReply{req: req, reply: r}
		}),
	})
}

// stationReplyTo returns a reply sender for a new request to a station
func (b *Bus) stationReplyTo() mailbox.Sender[station.Reply] {
	b.req++
	req := b.req
	return mailbox.Map[station.Reply, Message](b, func(r station.Reply) Message {
		return stationReply{req: req, reply: r}
	})
}

func (b *Bus) onRouteReply(m routeReply) {
	if m.req != b.req {
		logging.Debugf("Bus %s: dropping stale route reply %T", b.cfg.ID, m.reply)
		return
	}

	switch r := m.reply.(type) {
	case route.Ready:
		if b.phase != AwaitingRoute {
			break
		}
		b.routeID = r.RouteID
		b.nextStation()
	case route.Reloaded:
		if b.phase != AwaitingStation {
			break
		}
		log.Printf("Bus %s: reversing onto route %s", b.cfg.ID, r.RouteID)
		b.routeID = r.RouteID
		b.nextStation()
	case route.NextStation:
		if b.phase != AwaitingStation {
			break
		}
		st, ok := b.deps.Stations[r.StationID]
		if !ok {
			b.phase = Stalled
			b.err = fmt.Errorf("%w: %s", ErrUnknownStation, r.StationID)
			log.Printf("Bus %s: stalled on route %s: %v", b.cfg.ID, b.routeID, b.err)
			return
		}
		b.stationID = r.StationID
		b.phase = AwaitingData
		st.Send(station.Describe{ReplyTo: b.stationReplyTo()})
	default:
		log.Printf("Bus %s: unhandled route reply %T", b.cfg.ID, m.reply)
	}
}

func (b *Bus) onStationReply(m stationReply) {
	if m.req != b.req {
		if r, ok := m.reply.(station.ToBoard); ok && !r.Passenger.IsNone() {
			b.returnPassenger(r)
			return
		}
		logging.Debugf("Bus %s: dropping stale station reply %T", b.cfg.ID, m.reply)
		return
	}

	switch r := m.reply.(type) {
	case station.Data:
		if b.phase != AwaitingData || r.ID != b.stationID {
			break
		}
		b.travelTo(r.Location)
	case station.Alighting:
		switch b.phase {
		case AwaitingArrival:
			b.alighting = b.takeAlighting()
			b.alightNext()
		case Alighting:
			b.delivered++
			b.alightNext()
		}
	case station.ToBoard:
		if b.phase != Boarding {
			if !r.Passenger.IsNone() {
				b.returnPassenger(r)
			}
			break
		}
		if r.Passenger.IsNone() {
			b.depart()
			return
		}
		b.onboard = append(b.onboard, r.Passenger)
		b.boarded++
		b.board()
	default:
		log.Printf("Bus %s: unhandled station reply %T", b.cfg.ID, m.reply)
	}
}

// returnPassenger hands a passenger boarded for an abandoned request back to
// the station it came from.
func (b *Bus) returnPassenger(r station.ToBoard) {
	st, ok := b.deps.Stations[r.StationID]
	if !ok {
		log.Printf("Bus %s: cannot return %s to unknown station %s", b.cfg.ID, r.Passenger, r.StationID)
		return
	}
	log.Printf("Bus %s: returning %s to station %s", b.cfg.ID, r.Passenger, r.StationID)
	st.Send(station.Requeue{Passenger: r.Passenger})
}

func (b *Bus) onMotionReport(report motion.Report) {
	switch r := report.(type) {
	case motion.Locate:
		if b.positioned {
			b.bearing = geo.Bearing(b.position, r.Coordinate)
		}
		b.position = r.Coordinate
		b.positioned = true
	case motion.WeAreHere:
		if b.phase != Traveling || r.Destination != b.stopAt {
			logging.Debugf("Bus %s: dropping stale arrival", b.cfg.ID)
			return
		}
		st := b.deps.Stations[b.stationID]
		b.phase = AwaitingArrival
		st.Send(station.Arrived{BusID: b.cfg.ID, RouteID: b.routeID, ReplyTo: b.stationReplyTo()})
	default:
		log.Printf("Bus %s: unhandled motion report %T", b.cfg.ID, report)
	}
}

// travelTo loads the leg to dest into Motion. The very first leg places
// the bus at its first station.
func (b *Bus) travelTo(dest geo.Coordinate) {
	var points []geo.Point
	if b.positioned {
		points = geo.Leg(b.position, dest, b.cfg.StepMeters, geo.KmphToMPS(b.cfg.SpeedKmph))
	} else {
		points = []geo.Point{{Coordinate: dest}}
	}

	b.stopAt = dest
	b.phase = Traveling
	b.motion.Send(motion.Load{Points: points})
	b.motion.Send(motion.MoveTo{Destination: dest})
}

// takeAlighting removes the passengers getting off at the current station
func (b *Bus) takeAlighting() []passenger.Passenger {
	var off []passenger.Passenger
	b.onboard = slices.DeleteFunc(b.onboard, func(p passenger.Passenger) bool {
		if p.AlightsAt(b.stationID) {
			off = append(off, p)
			return true
		}
		return false
	})
	return off
}

func (b *Bus) alightNext() {
	if len(b.alighting) == 0 {
		b.board()
		return
	}
	p := b.alighting[0]
	b.alighting = b.alighting[1:]
	b.phase = Alighting
	b.deps.Stations[b.stationID].Send(station.ToAlight{Passenger: p, ReplyTo: b.stationReplyTo()})
}

func (b *Bus) board() {
	if len(b.onboard) >= b.cfg.Capacity {
		b.depart()
		return
	}
	b.phase = Boarding
	b.deps.Stations[b.stationID].Send(station.Boarding{
		BusID:    b.cfg.ID,
		RouteID:  b.routeID,
		Duration: b.cfg.BoardingTime,
		Load:     len(b.onboard),
		ReplyTo:  b.stationReplyTo(),
	})
}

func (b *Bus) depart() {
	b.deps.Ledger.Send(departure.SetDeparture{StationID: b.stationID, BusID: b.cfg.ID})
	b.departures++
	logging.Debugf("Bus %s: departing %s with %d onboard", b.cfg.ID, b.stationID, len(b.onboard))
	b.nextStation()
}

func (b *Bus) status() Status {
	s := Status{
		BusID:      b.cfg.ID,
		RouteID:    b.routeID,
		Phase:      b.phase.String(),
		StationID:  b.stationID,
		Position:   b.position,
		Positioned: b.positioned,
		Bearing:    b.bearing,
		Onboard:    len(b.onboard),
		Capacity:   b.cfg.Capacity,
		Boarded:    b.boarded,
		Delivered:  b.delivered,
		Departures: b.departures,
		At:         b.deps.Clock.Now(),
	}
	if b.err != nil {
		s.Error = b.err.Error()
	}
	return s
}
