// Package route implements the per-bus route cursor. It hands out station
// ids front to back and, once drained, reloads the reverse route.
package route

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mini-rodalies-3d/transitsim/internal/mailbox"
)

// Lookup is the part of the route table a cursor needs
type Lookup interface {
	StationsFor(routeID string) ([]string, error)
	ReverseOf(routeID string) (string, error)
}

// Message is a request handled by a Route
type Message interface {
	isRouteMessage()
}

// GetNextStation asks for the next station id
type GetNextStation struct {
	ReplyTo mailbox.Sender[Reply]
}

func (GetNextStation) isRouteMessage() {}

// Reply is sent by a Route to its owner or to a requester
type Reply interface {
	isRouteReply()
}

// Ready is sent to the owner once the forward route is loaded
type Ready struct {
	RouteID string
}

// NextStation carries the popped station id. Last is set when the pop
// drained the current load.
type NextStation struct {
	StationID string
	Last      bool
}

// Reloaded tells the requester the cursor switched to RouteID and the
// request has to be sent again.
type Reloaded struct {
	RouteID string
}

func (Ready) isRouteReply()       {}
func (NextStation) isRouteReply() {}
func (Reloaded) isRouteReply()    {}

var errEmptyRoute = errors.New("route has no stations")

// Route walks a bus through the stations of its route, then of the reverse
// route, and so on.
type Route struct {
	lookup    Lookup
	owner     mailbox.Sender[Reply]
	routeID   string
	remaining []string
	inbox     *mailbox.Mailbox[Message]
}

// New creates a cursor for routeID. Ready is sent to owner once Run has
// loaded the stations.
func New(lookup Lookup, routeID string, owner mailbox.Sender[Reply]) *Route {
	return &Route{
		lookup:  lookup,
		owner:   owner,
		routeID: routeID,
		inbox:   mailbox.New[Message](),
	}
}

// Send queues msg for the Route
func (r *Route) Send(msg Message) {
	r.inbox.Send(msg)
}

// Run loads the route and serves requests until ctx is done. It returns an
// error when the route table has no entry for the current or reverse route.
func (r *Route) Run(ctx context.Context) error {
	defer r.inbox.Close()

	stations, err := r.lookup.StationsFor(r.routeID)
	if err != nil {
		log.Printf("Route %s: failed to load: %v", r.routeID, err)
		return fmt.Errorf("failed to load route %s: %w", r.routeID, err)
	}
	r.remaining = stations
	r.owner.Send(Ready{RouteID: r.routeID})

	for {
		msg, err := r.inbox.Receive(ctx)
		if err != nil {
			return nil
		}
		if err := r.handle(msg); err != nil {
			log.Printf("Route %s: %v", r.routeID, err)
			return err
		}
	}
}

func (r *Route) handle(msg Message) error {
	switch m := msg.(type) {
	case GetNextStation:
		return r.next(m.ReplyTo)
	default:
		log.Printf("Route %s: unhandled message %T", r.routeID, msg)
		return nil
	}
}

func (r *Route) next(replyTo mailbox.Sender[Reply]) error {
	if len(r.remaining) > 0 {
		id := r.remaining[0]
		r.remaining = r.remaining[1:]
		replyTo.Send(NextStation{StationID: id, Last: len(r.remaining) == 0})
		return nil
	}

	reverse, err := r.lookup.ReverseOf(r.routeID)
	if err != nil {
		return fmt.Errorf("failed to reverse: %w", err)
	}
	stations, err := r.lookup.StationsFor(reverse)
	if err != nil {
		return fmt.Errorf("failed to load reverse route: %w", err)
	}
	if len(stations) == 0 {
		return fmt.Errorf("%w: %s", errEmptyRoute, reverse)
	}

	r.routeID = reverse
	r.remaining = stations
	replyTo.Send(Reloaded{RouteID: reverse})
	return nil
}
