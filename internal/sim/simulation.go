// Package sim builds every component of a network and runs them together.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/mini-rodalies-3d/transitsim/internal/bus"
	"github.com/mini-rodalies-3d/transitsim/internal/clock"
	"github.com/mini-rodalies-3d/transitsim/internal/config"
	"github.com/mini-rodalies-3d/transitsim/internal/departure"
	"github.com/mini-rodalies-3d/transitsim/internal/dispatch"
	"github.com/mini-rodalies-3d/transitsim/internal/geo"
	"github.com/mini-rodalies-3d/transitsim/internal/mailbox"
	"github.com/mini-rodalies-3d/transitsim/internal/passenger"
	"github.com/mini-rodalies-3d/transitsim/internal/station"
	"github.com/mini-rodalies-3d/transitsim/internal/tracking"
)

var (
	ErrStationNotFound = errors.New("station not found")
	ErrBusNotFound     = errors.New("bus not found")
)

type component interface {
	Run(ctx context.Context) error
}

// Simulation owns every component built from a network
type Simulation struct {
	clock    *clock.Clock
	registry *dispatch.Registry
	ledger   *departure.Ledger
	seq      *passenger.Sequence

	stations    []*station.Station
	stationByID map[string]*station.Station
	buses       []*bus.Bus
	busByID     map[string]*bus.Bus
	trackers    map[string]*tracking.Tracker
}

// New builds the components of network n. seed makes runs reproducible.
func New(n *config.Network, clk *clock.Clock, seed int64) (*Simulation, error) {
	routes := make([]dispatch.Route, 0, len(n.Routes))
	for _, r := range n.Routes {
		routes = append(routes, dispatch.Route{ID: r.ID, Stations: r.Stations, Reverse: r.Reverse})
	}
	registry, err := dispatch.NewRegistry(routes)
	if err != nil {
		return nil, fmt.Errorf("failed to build route table: %w", err)
	}

	seeds := rand.New(rand.NewSource(seed))
	s := &Simulation{
		clock:       clk,
		registry:    registry,
		ledger:      departure.New(clk),
		seq:         &passenger.Sequence{},
		stationByID: make(map[string]*station.Station, len(n.Stations)),
		busByID:     make(map[string]*bus.Bus, len(n.Buses)),
		trackers:    make(map[string]*tracking.Tracker, len(n.Buses)),
	}

	senders := make(map[string]mailbox.Sender[station.Message], len(n.Stations))
	for _, sc := range n.Stations {
		st := station.New(station.Config{
			ID:          sc.ID,
			Name:        sc.Name,
			Location:    geo.Coordinate{Lat: sc.Lat, Lng: sc.Lng},
			ArrivalRate: sc.ArrivalRate,
			Trips:       registry.Trips(sc.ID),
			Seed:        seeds.Int63(),
		}, clk, s.seq)
		s.stations = append(s.stations, st)
		s.stationByID[sc.ID] = st
		senders[sc.ID] = st
	}

	for _, bc := range n.Buses {
		tracker := tracking.New(bc.ID, clk)
		b := bus.New(bus.Config{
			ID:           bc.ID,
			RouteID:      bc.Route,
			Capacity:     bc.Capacity,
			SpeedKmph:    bc.SpeedKmph,
			BoardingTime: time.Duration(bc.BoardingSeconds * float64(time.Second)),
			StepMeters:   bc.StepMeters,
			Seed:         seeds.Int63(),
		}, bus.Deps{
			Clock:    clk,
			Routes:   registry,
			Stations: senders,
			Ledger:   s.ledger,
			Tracker:  tracker,
		})
		s.buses = append(s.buses, b)
		s.busByID[bc.ID] = b
		s.trackers[bc.ID] = tracker
	}

	return s, nil
}

// Run starts every component and blocks until ctx is done and all of them
// have stopped. A component that fails is logged; the others keep running.
func (s *Simulation) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	start := func(name string, c component) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Run(ctx); err != nil {
				log.Printf("Simulation: %s stopped: %v", name, err)
			}
		}()
	}

	start("departures", s.ledger)
	for _, st := range s.stations {
		start("station "+st.ID(), st)
	}
	for id, tr := range s.trackers {
		start("tracking "+id, tr)
	}
	for _, b := range s.buses {
		start("bus "+b.ID(), b)
	}

	log.Printf("Simulation: running %d stations, %d buses at time scale %d",
		len(s.stations), len(s.buses), s.clock.TimeScale())

	wg.Wait()
	log.Println("Simulation: stopped")
	return nil
}

// Clock returns the simulation clock
func (s *Simulation) Clock() *clock.Clock {
	return s.clock
}

// Registry returns the route table
func (s *Simulation) Registry() *dispatch.Registry {
	return s.registry
}

// BusIDs returns the bus ids in network order
func (s *Simulation) BusIDs() []string {
	ids := make([]string, 0, len(s.buses))
	for _, b := range s.buses {
		ids = append(ids, b.ID())
	}
	return ids
}

// StationIDs returns the station ids in network order
func (s *Simulation) StationIDs() []string {
	ids := make([]string, 0, len(s.stations))
	for _, st := range s.stations {
		ids = append(ids, st.ID())
	}
	return ids
}
