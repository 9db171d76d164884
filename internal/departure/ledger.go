// Package departure keeps the last departure time of every station and the
// headways between consecutive departures.
package departure

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/mini-rodalies-3d/transitsim/internal/clock"
	"github.com/mini-rodalies-3d/transitsim/internal/mailbox"
	"github.com/mini-rodalies-3d/transitsim/internal/metrics"
)

// Message is a request handled by the Ledger
type Message interface {
	isDepartureMessage()
}

// SetDeparture records now as the station's latest departure
type SetDeparture struct {
	StationID string
	BusID     string
}

// GetDeparture asks for the station's latest departure
type GetDeparture struct {
	StationID string
	ReplyTo   mailbox.Sender[DepartureWas]
}

// GetHeadways asks for headway statistics of every station
type GetHeadways struct {
	ReplyTo mailbox.Sender[[]Headway]
}

func (SetDeparture) isDepartureMessage() {}
func (GetDeparture) isDepartureMessage() {}
func (GetHeadways) isDepartureMessage()  {}

// DepartureWas answers GetDeparture. At is the zero time when the station
// never had a departure.
type DepartureWas struct {
	StationID string    `json:"stationId"`
	At        time.Time `json:"at"`
}

// Headway summarises the intervals between departures at one station
type Headway struct {
	StationID     string    `json:"stationId"`
	Count         int       `json:"count"`
	MeanSeconds   float64   `json:"meanSeconds"`
	StdDevSeconds float64   `json:"stdDevSeconds"`
	LastDeparture time.Time `json:"lastDeparture"`
	LastBusID     string    `json:"lastBusId"`
}

type record struct {
	at       time.Time
	busID    string
	headways metrics.Welford
}

// Ledger records departures per station
type Ledger struct {
	clock *clock.Clock
	inbox *mailbox.Mailbox[Message]

	stations map[string]*record
	// lastStation is where each bus departed last
	lastStation map[string]string
}

func New(clk *clock.Clock) *Ledger {
	return &Ledger{
		clock:       clk,
		inbox:       mailbox.New[Message](),
		stations:    make(map[string]*record),
		lastStation: make(map[string]string),
	}
}

// Send queues msg for the Ledger
func (l *Ledger) Send(msg Message) {
	l.inbox.Send(msg)
}

func (l *Ledger) Run(ctx context.Context) error {
	defer l.inbox.Close()
	for {
		msg, err := l.inbox.Receive(ctx)
		if err != nil {
			return nil
		}
		l.handle(msg)
	}
}

func (l *Ledger) handle(msg Message) {
	switch m := msg.(type) {
	case SetDeparture:
		l.set(m.StationID, m.BusID)
	case GetDeparture:
		var at time.Time
		if r, ok := l.stations[m.StationID]; ok {
			at = r.at
		}
		m.ReplyTo.Send(DepartureWas{StationID: m.StationID, At: at})
	case GetHeadways:
		m.ReplyTo.Send(l.headways())
	default:
		log.Printf("Departures: unhandled message %T", msg)
	}
}

func (l *Ledger) set(stationID, busID string) {
	now := l.clock.Now()
	turnaround := l.lastStation[busID] == stationID
	l.lastStation[busID] = stationID

	r, ok := l.stations[stationID]
	if !ok {
		l.stations[stationID] = &record{at: now, busID: busID}
		return
	}
	// A bus turning at a terminus departs it twice in a row; that is not a headway
	if !turnaround {
		r.headways.Observe(now.Sub(r.at).Seconds())
	}
	r.at = now
	r.busID = busID
}

func (l *Ledger) headways() []Headway {
	out := make([]Headway, 0, len(l.stations))
	for id, r := range l.stations {
		out = append(out, Headway{
			StationID:     id,
			Count:         r.headways.Count(),
			MeanSeconds:   r.headways.Mean(),
			StdDevSeconds: r.headways.StdDev(),
			LastDeparture: r.at,
			LastBusID:     r.busID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StationID < out[j].StationID })
	return out
}
