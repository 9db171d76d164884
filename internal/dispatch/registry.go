// Package dispatch holds the route table every Route cursor loads from.
// A Registry is immutable once built and safe for concurrent reads.
package dispatch

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

var (
	ErrRouteNotFound        = errors.New("route not found")
	ErrReverseRouteNotFound = errors.New("reverse route not found")
	ErrDuplicateRoute       = errors.New("duplicate route")
)

// Route is one entry of the route table
type Route struct {
	ID       string
	Stations []string
	Reverse  string
}

// Trip is a destination a passenger can reach from an origin, and the
// routes that take them there
type Trip struct {
	Destination string
	Routes      []string
}

// Registry is the read-only route table
type Registry struct {
	routes  map[string]Route
	ids     []string
	serving map[string][]string
	trips   map[string][]Trip
}

// NewRegistry builds a registry from a copy of routes
func NewRegistry(routes []Route) (*Registry, error) {
	r := &Registry{
		routes:  make(map[string]Route, len(routes)),
		serving: make(map[string][]string),
		trips:   make(map[string][]Trip),
	}

	for _, route := range routes {
		if _, ok := r.routes[route.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateRoute, route.ID)
		}
		r.routes[route.ID] = Route{
			ID:       route.ID,
			Stations: slices.Clone(route.Stations),
			Reverse:  route.Reverse,
		}
		r.ids = append(r.ids, route.ID)
	}
	sort.Strings(r.ids)

	// destination -> routes, per origin
	reach := make(map[string]map[string][]string)
	for _, id := range r.ids {
		stations := r.routes[id].Stations
		for i, origin := range stations {
			if !slices.Contains(r.serving[origin], id) {
				r.serving[origin] = append(r.serving[origin], id)
			}
			for _, dest := range stations[i+1:] {
				if dest == origin {
					continue
				}
				if reach[origin] == nil {
					reach[origin] = make(map[string][]string)
				}
				if !slices.Contains(reach[origin][dest], id) {
					reach[origin][dest] = append(reach[origin][dest], id)
				}
			}
		}
	}

	for origin, dests := range reach {
		trips := make([]Trip, 0, len(dests))
		for dest, ids := range dests {
			trips = append(trips, Trip{Destination: dest, Routes: ids})
		}
		sort.Slice(trips, func(i, j int) bool { return trips[i].Destination < trips[j].Destination })
		r.trips[origin] = trips
	}

	return r, nil
}

// StationsFor returns a copy of the ordered station ids of routeID
func (r *Registry) StationsFor(routeID string) ([]string, error) {
	route, ok := r.routes[routeID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotFound, routeID)
	}
	return slices.Clone(route.Stations), nil
}

// ReverseOf returns the id of the route running routeID backwards
func (r *Registry) ReverseOf(routeID string) (string, error) {
	route, ok := r.routes[routeID]
	if !ok || route.Reverse == "" {
		return "", fmt.Errorf("%w: %s", ErrReverseRouteNotFound, routeID)
	}
	return route.Reverse, nil
}

// RouteIDs returns every route id, sorted
func (r *Registry) RouteIDs() []string {
	return slices.Clone(r.ids)
}

// RoutesServing returns the sorted ids of routes that stop at stationID
func (r *Registry) RoutesServing(stationID string) []string {
	return slices.Clone(r.serving[stationID])
}

// Trips returns the destinations reachable from origin, sorted by destination.
// Empty when origin is only ever a terminus.
func (r *Registry) Trips(origin string) []Trip {
	src := r.trips[origin]
	out := make([]Trip, len(src))
	for i, t := range src {
		out[i] = Trip{Destination: t.Destination, Routes: slices.Clone(t.Routes)}
	}
	return out
}
