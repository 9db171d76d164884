package gtfs

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/mini-rodalies-3d/transitsim/internal/config"
)

var ErrNoPatterns = errors.New("feed has no route with two or more stations")

// Options sets the values GTFS does not carry
type Options struct {
	ArrivalRate       float64
	BusesPerDirection int
	Capacity          int
	SpeedKmph         float64
	BoardingSeconds   float64
}

func DefaultOptions() Options {
	return Options{
		ArrivalRate:       1,
		BusesPerDirection: 1,
		Capacity:          60,
		SpeedKmph:         20,
		BoardingSeconds:   3,
	}
}

// pattern is the station sequence of a route in one direction
type pattern struct {
	routeID   string
	direction int
	stations  []string
	tripID    string
}

// BuildNetwork turns each GTFS route into a pair of simulation routes, one
// per direction. The longest trip of a direction is its pattern; a route
// with a single direction runs the same pattern backwards. Platforms are
// merged into their parent station.
func BuildNetwork(data *Data, opts Options) (*config.Network, error) {
	stops := make(map[string]Stop, len(data.Stops))
	for _, s := range data.Stops {
		stops[s.StopID] = s
	}
	stationOf := func(stopID string) string {
		if s, ok := stops[stopID]; ok && s.ParentStation != "" {
			if _, ok := stops[s.ParentStation]; ok {
				return s.ParentStation
			}
		}
		return stopID
	}

	sequences := tripSequences(data.StopTimes)

	best := make(map[string]map[int]pattern)
	for _, trip := range data.Trips {
		seq, ok := sequences[trip.TripID]
		if !ok {
			continue
		}
		stations := make([]string, 0, len(seq))
		for _, stopID := range seq {
			station := stationOf(stopID)
			if _, known := stops[station]; !known {
				continue
			}
			if n := len(stations); n > 0 && stations[n-1] == station {
				continue
			}
			stations = append(stations, station)
		}
		if len(stations) < 2 {
			continue
		}

		byDirection, ok := best[trip.RouteID]
		if !ok {
			byDirection = make(map[int]pattern)
			best[trip.RouteID] = byDirection
		}
		current, ok := byDirection[trip.DirectionID]
		if !ok || len(stations) > len(current.stations) ||
			(len(stations) == len(current.stations) && trip.TripID < current.tripID) {
			byDirection[trip.DirectionID] = pattern{
				routeID:   trip.RouteID,
				direction: trip.DirectionID,
				stations:  stations,
				tripID:    trip.TripID,
			}
		}
	}

	if len(best) == 0 {
		return nil, ErrNoPatterns
	}

	routeIDs := make([]string, 0, len(best))
	for id := range best {
		routeIDs = append(routeIDs, id)
	}
	sort.Strings(routeIDs)

	n := &config.Network{}
	used := make(map[string]bool)

	for _, routeID := range routeIDs {
		forward, hasForward := best[routeID][0]
		backward, hasBackward := best[routeID][1]
		switch {
		case !hasForward:
			forward = backward
			forward.stations = reversed(backward.stations)
		case !hasBackward:
			backward = forward
			backward.stations = reversed(forward.stations)
		}

		outID, backID := routeID+"-0", routeID+"-1"
		n.Routes = append(n.Routes,
			config.RouteConfig{ID: outID, Stations: forward.stations, Reverse: backID},
			config.RouteConfig{ID: backID, Stations: backward.stations, Reverse: outID},
		)
		for _, id := range append(slices.Clone(forward.stations), backward.stations...) {
			used[id] = true
		}

		for _, simRoute := range []string{outID, backID} {
			for i := 1; i <= opts.BusesPerDirection; i++ {
				n.Buses = append(n.Buses, config.BusConfig{
					ID:              fmt.Sprintf("%s-%d", simRoute, i),
					Route:           simRoute,
					Capacity:        opts.Capacity,
					SpeedKmph:       opts.SpeedKmph,
					BoardingSeconds: opts.BoardingSeconds,
				})
			}
		}
	}

	for _, s := range data.Stops {
		if !used[s.StopID] {
			continue
		}
		name := s.StopName
		if name == "" {
			name = s.StopID
		}
		n.Stations = append(n.Stations, config.StationConfig{
			ID:          s.StopID,
			Name:        name,
			Lat:         s.StopLat,
			Lng:         s.StopLon,
			ArrivalRate: opts.ArrivalRate,
		})
	}

	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

// tripSequences orders each trip's stops by stop_sequence
func tripSequences(stopTimes []StopTime) map[string][]string {
	byTrip := make(map[string][]StopTime)
	for _, st := range stopTimes {
		byTrip[st.TripID] = append(byTrip[st.TripID], st)
	}

	out := make(map[string][]string, len(byTrip))
	for tripID, times := range byTrip {
		sort.Slice(times, func(i, j int) bool {
			return times[i].StopSequence < times[j].StopSequence
		})
		stops := make([]string, len(times))
		for i, st := range times {
			stops[i] = st.StopID
		}
		out[tripID] = stops
	}
	return out
}

func reversed(s []string) []string {
	out := slices.Clone(s)
	slices.Reverse(out)
	return out
}
