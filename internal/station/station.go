// Package station implements a stop: its passenger arrival process, the
// waiting queue and the boarding/alighting exchange with buses.
package station

import (
	"context"
	"log"
	"math"
	"math/rand"
	"slices"
	"sort"
	"time"

	"github.com/mini-rodalies-3d/transitsim/internal/clock"
	"github.com/mini-rodalies-3d/transitsim/internal/dispatch"
	"github.com/mini-rodalies-3d/transitsim/internal/geo"
	"github.com/mini-rodalies-3d/transitsim/internal/logging"
	"github.com/mini-rodalies-3d/transitsim/internal/mailbox"
	"github.com/mini-rodalies-3d/transitsim/internal/passenger"
)

const (
	// DefaultInitialDelay is the simulated time before the first passenger shows up
	DefaultInitialDelay = 10 * time.Second
	// MaxInterArrival bounds the gap between two passengers at very low rates
	MaxInterArrival = 24 * time.Hour
)

type Config struct {
	ID       string
	Name     string
	Location geo.Coordinate
	// ArrivalRate is the mean number of passengers per simulated minute.
	// Zero disables arrivals.
	ArrivalRate  float64
	InitialDelay time.Duration
	// Trips are the destinations a new passenger picks from
	Trips []dispatch.Trip
	Seed  int64
}

// Station is one stop and its waiting passengers
type Station struct {
	cfg   Config
	clock *clock.Clock
	seq   *passenger.Sequence
	rng   *rand.Rand
	inbox *mailbox.Mailbox[Message]

	queue   []passenger.Passenger
	serving map[string]struct{}

	arrivals  int
	boarded   int
	delivered int

	arrivalTimer *clock.Timer
	boarding     map[int64]*clock.Timer
}

func New(cfg Config, clk *clock.Clock, seq *passenger.Sequence) *Station {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = DefaultInitialDelay
	}
	return &Station{
		cfg:      cfg,
		clock:    clk,
		seq:      seq,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		inbox:    mailbox.New[Message](),
		serving:  make(map[string]struct{}),
		boarding: make(map[int64]*clock.Timer),
	}
}

// ID returns the station id
func (s *Station) ID() string {
	return s.cfg.ID
}

// Send queues msg for the Station
func (s *Station) Send(msg Message) {
	s.inbox.Send(msg)
}

// Run starts the arrival process and serves requests until ctx is done
func (s *Station) Run(ctx context.Context) error {
	defer s.shutdown()

	if s.cfg.ArrivalRate > 0 {
		s.scheduleArrival(s.cfg.InitialDelay)
	}

	for {
		msg, err := s.inbox.Receive(ctx)
		if err != nil {
			return nil
		}
		s.handle(msg)
	}
}

func (s *Station) shutdown() {
	s.arrivalTimer.Stop()
	for id, t := range s.boarding {
		t.Stop()
		delete(s.boarding, id)
	}
	s.inbox.Close()
}

func (s *Station) handle(msg Message) {
	switch m := msg.(type) {
	case passengerArrived:
		s.onPassengerArrived()
	case Arrived:
		s.serving[m.RouteID] = struct{}{}
		logging.Debugf("Station %s: bus %s arrived on %s", s.cfg.ID, m.BusID, m.RouteID)
		m.ReplyTo.Send(Alighting{StationID: s.cfg.ID})
	case ToAlight:
		s.delivered++
		logging.Debugf("Station %s: %s alighted", s.cfg.ID, m.Passenger)
		m.ReplyTo.Send(Alighting{StationID: s.cfg.ID})
	case Boarding:
		s.onBoarding(m)
	case boardingComplete:
		delete(s.boarding, m.passenger.ID)
		s.boarded++
		m.replyTo.Send(ToBoard{StationID: s.cfg.ID, Passenger: m.passenger})
	case Requeue:
		s.queue = slices.Insert(s.queue, 0, m.Passenger)
		s.boarded--
		logging.Debugf("Station %s: %s back in queue", s.cfg.ID, m.Passenger)
	case Describe:
		m.ReplyTo.Send(Data{ID: s.cfg.ID, Name: s.cfg.Name, Location: s.cfg.Location})
	case Snapshot:
		m.ReplyTo.Send(s.stats())
	default:
		log.Printf("Station %s: unhandled message %T", s.cfg.ID, msg)
	}
}

func (s *Station) onPassengerArrived() {
	var p passenger.Passenger
	now := s.clock.Now()
	if len(s.cfg.Trips) > 0 {
		trip := s.cfg.Trips[s.rng.Intn(len(s.cfg.Trips))]
		p = passenger.New(s.seq, s.cfg.ID, trip.Destination, trip.Routes, now)
	} else {
		p = passenger.New(s.seq, s.cfg.ID, "", nil, now)
	}
	s.queue = append(s.queue, p)
	s.arrivals++
	logging.Debugf("Station %s: %s waiting for %s (%d in queue)", s.cfg.ID, p, p.Destination, len(s.queue))

	s.scheduleArrival(s.interArrival())
}

// interArrival draws the simulated delay to the next passenger, rounded to
// the millisecond and capped at MaxInterArrival
func (s *Station) interArrival() time.Duration {
	minutes := s.rng.ExpFloat64() / s.cfg.ArrivalRate
	ms := math.Round(minutes * 60000)
	if ms > float64(MaxInterArrival/time.Millisecond) {
		return MaxInterArrival
	}
	return time.Duration(ms) * time.Millisecond
}

func (s *Station) scheduleArrival(delay time.Duration) {
	s.arrivalTimer = clock.ScheduleOnce[Message](s.clock, s.clock.Scale(delay), s, passengerArrived{})
}

func (s *Station) onBoarding(m Boarding) {
	i := slices.IndexFunc(s.queue, func(p passenger.Passenger) bool {
		return p.IsSuitable(m.RouteID)
	})
	if i < 0 {
		m.ReplyTo.Send(ToBoard{StationID: s.cfg.ID, Passenger: passenger.None})
		return
	}

	p := s.queue[i]
	s.queue = slices.Delete(s.queue, i, i+1)
	logging.Debugf("Station %s: %s boarding bus %s (load %d)", s.cfg.ID, p, m.BusID, m.Load)

	s.boarding[p.ID] = clock.ScheduleOnce[Message](s.clock, s.clock.Scale(m.Duration), s,
		boardingComplete{passenger: p, replyTo: m.ReplyTo})
}

func (s *Station) stats() Stats {
	routes := make([]string, 0, len(s.serving))
	for id := range s.serving {
		routes = append(routes, id)
	}
	sort.Strings(routes)

	return Stats{
		ID:            s.cfg.ID,
		Name:          s.cfg.Name,
		Location:      s.cfg.Location,
		Waiting:       len(s.queue),
		ServingRoutes: routes,
		Arrivals:      s.arrivals,
		Boarded:       s.boarded,
		Delivered:     s.delivered,
		At:            s.clock.Now(),
	}
}
