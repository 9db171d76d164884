package sim

import (
	"context"
	"fmt"

	"github.com/mini-rodalies-3d/transitsim/internal/bus"
	"github.com/mini-rodalies-3d/transitsim/internal/departure"
	"github.com/mini-rodalies-3d/transitsim/internal/mailbox"
	"github.com/mini-rodalies-3d/transitsim/internal/station"
	"github.com/mini-rodalies-3d/transitsim/internal/tracking"
)

// Station returns the current statistics of one station
func (s *Simulation) Station(ctx context.Context, id string) (station.Stats, error) {
	st, ok := s.stationByID[id]
	if !ok {
		return station.Stats{}, fmt.Errorf("%w: %s", ErrStationNotFound, id)
	}
	return mailbox.Ask(ctx, mailbox.Sender[station.Message](st), func(replyTo mailbox.Sender[station.Stats]) station.Message {
		return station.Snapshot{ReplyTo: replyTo}
	})
}

// Stations returns the statistics of every station in network order
func (s *Simulation) Stations(ctx context.Context) ([]station.Stats, error) {
	out := make([]station.Stats, 0, len(s.stations))
	for _, st := range s.stations {
		stats, err := s.Station(ctx, st.ID())
		if err != nil {
			return nil, err
		}
		out = append(out, stats)
	}
	return out, nil
}

// Bus returns the status of one bus
func (s *Simulation) Bus(ctx context.Context, id string) (bus.Status, error) {
	b, ok := s.busByID[id]
	if !ok {
		return bus.Status{}, fmt.Errorf("%w: %s", ErrBusNotFound, id)
	}
	return mailbox.Ask(ctx, mailbox.Sender[bus.Message](b), func(replyTo mailbox.Sender[bus.Status]) bus.Message {
		return bus.Snapshot{ReplyTo: replyTo}
	})
}

// Buses returns the status of every bus in network order
func (s *Simulation) Buses(ctx context.Context) ([]bus.Status, error) {
	out := make([]bus.Status, 0, len(s.buses))
	for _, b := range s.buses {
		status, err := s.Bus(ctx, b.ID())
		if err != nil {
			return nil, err
		}
		out = append(out, status)
	}
	return out, nil
}

// Path returns the recorded track of one bus
func (s *Simulation) Path(ctx context.Context, busID string) (tracking.Path, error) {
	tr, ok := s.trackers[busID]
	if !ok {
		return tracking.Path{}, fmt.Errorf("%w: %s", ErrBusNotFound, busID)
	}
	return mailbox.Ask(ctx, mailbox.Sender[tracking.Message](tr), func(replyTo mailbox.Sender[tracking.Path]) tracking.Message {
		return tracking.Snapshot{ReplyTo: replyTo}
	})
}

// Departure returns the last departure from a station
func (s *Simulation) Departure(ctx context.Context, stationID string) (departure.DepartureWas, error) {
	if _, ok := s.stationByID[stationID]; !ok {
		return departure.DepartureWas{}, fmt.Errorf("%w: %s", ErrStationNotFound, stationID)
	}
	return mailbox.Ask(ctx, mailbox.Sender[departure.Message](s.ledger), func(replyTo mailbox.Sender[departure.DepartureWas]) departure.Message {
		return departure.GetDeparture{StationID: stationID, ReplyTo: replyTo}
	})
}

// Headways returns headway statistics of every station with a departure
func (s *Simulation) Headways(ctx context.Context) ([]departure.Headway, error) {
	return mailbox.Ask(ctx, mailbox.Sender[departure.Message](s.ledger), func(replyTo mailbox.Sender[[]departure.Headway]) departure.Message {
		return departure.GetHeadways{ReplyTo: replyTo}
	})
}

// Assign moves a bus onto another route
func (s *Simulation) Assign(busID, routeID string) error {
	b, ok := s.busByID[busID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrBusNotFound, busID)
	}
	if _, err := s.registry.StationsFor(routeID); err != nil {
		return err
	}
	b.Send(bus.Assign{RouteID: routeID})
	return nil
}
