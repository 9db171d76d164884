package departure

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mini-rodalies-3d/transitsim/internal/clock"
	"github.com/mini-rodalies-3d/transitsim/internal/mailbox"
)

type steppedWall struct {
	mu  sync.Mutex
	now time.Time
}

func (w *steppedWall) Now() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now
}

func (w *steppedWall) Advance(d time.Duration) {
	w.mu.Lock()
	w.now = w.now.Add(d)
	w.mu.Unlock()
}

func startLedger(t *testing.T, opts ...clock.Option) (*Ledger, *clock.Clock) {
	t.Helper()
	clk, err := clock.New(1, opts...)
	if err != nil {
		t.Fatal(err)
	}
	l := New(clk)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go l.Run(ctx)
	return l, clk
}

func getDeparture(t *testing.T, l *Ledger, stationID string) DepartureWas {
	t.Helper()
	got, err := mailbox.Ask(context.Background(), mailbox.Sender[Message](l), func(replyTo mailbox.Sender[DepartureWas]) Message {
		return GetDeparture{StationID: stationID, ReplyTo: replyTo}
	})
	if err != nil {
		t.Fatalf("GetDeparture failed: %v", err)
	}
	return got
}

func TestDepartureDefaultsToZero(t *testing.T) {
	l, _ := startLedger(t)
	got := getDeparture(t, l, "stationX")
	if !got.At.IsZero() {
		t.Errorf("At = %v before any departure, expected zero time", got.At)
	}
	if got.StationID != "stationX" {
		t.Errorf("StationID = %q", got.StationID)
	}
}

func TestDepartureOverwrites(t *testing.T) {
	l, clk := startLedger(t)

	before := clk.Now()
	l.Send(SetDeparture{StationID: "stationX", BusID: "B1"})
	first := getDeparture(t, l, "stationX")
	after := clk.Now()
	if first.At.Before(before) || first.At.After(after) {
		t.Errorf("At = %v, expected between %v and %v", first.At, before, after)
	}

	time.Sleep(2 * time.Millisecond)
	l.Send(SetDeparture{StationID: "stationX", BusID: "B2"})
	second := getDeparture(t, l, "stationX")
	if !second.At.After(first.At) {
		t.Errorf("second departure %v not after first %v", second.At, first.At)
	}

	headways, err := mailbox.Ask(context.Background(), mailbox.Sender[Message](l), func(replyTo mailbox.Sender[[]Headway]) Message {
		return GetHeadways{ReplyTo: replyTo}
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(headways) != 1 {
		t.Fatalf("got %d headway rows, expected 1 (overwrite, not append)", len(headways))
	}
	if headways[0].LastBusID != "B2" || !headways[0].LastDeparture.Equal(second.At) {
		t.Errorf("headway row = %+v", headways[0])
	}
}

func TestHeadwayStatistics(t *testing.T) {
	wall := &steppedWall{now: time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)}
	l, _ := startLedger(t, clock.WithWallClock(wall.Now))

	// departures at 0, 60, 180 and 300 seconds -> headways 60, 120, 120
	for i, gap := range []time.Duration{0, 60 * time.Second, 120 * time.Second, 120 * time.Second} {
		wall.Advance(gap)
		l.Send(SetDeparture{StationID: "A", BusID: fmt.Sprintf("B%d", i+1)})
		getDeparture(t, l, "A")
	}
	l.Send(SetDeparture{StationID: "B", BusID: "B9"})

	headways, err := mailbox.Ask(context.Background(), mailbox.Sender[Message](l), func(replyTo mailbox.Sender[[]Headway]) Message {
		return GetHeadways{ReplyTo: replyTo}
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(headways) != 2 || headways[0].StationID != "A" || headways[1].StationID != "B" {
		t.Fatalf("headways = %+v", headways)
	}

	a := headways[0]
	if a.Count != 3 || a.MeanSeconds != 100 {
		t.Errorf("A headways = %+v, expected 3 observations with mean 100", a)
	}
	if headways[1].Count != 0 {
		t.Errorf("B has %d headways after a single departure", headways[1].Count)
	}
}

func TestTurnaroundIsNotAHeadway(t *testing.T) {
	wall := &steppedWall{now: time.Date(2024, 3, 1, 7, 0, 0, 0, time.UTC)}
	l, _ := startLedger(t, clock.WithWallClock(wall.Now))

	depart := func(gap time.Duration, stationID, busID string) {
		wall.Advance(gap)
		l.Send(SetDeparture{StationID: stationID, BusID: busID})
		getDeparture(t, l, stationID)
	}

	// B1 ends its pass at C and starts the reverse pass there
	depart(0, "C", "B1")
	depart(5*time.Second, "C", "B1")
	depart(60*time.Second, "C", "B2")

	// a lone bus coming back to A after a full cycle is a real headway
	depart(0, "A", "B3")
	depart(30*time.Second, "B", "B3")
	depart(70*time.Second, "A", "B3")

	headways, err := mailbox.Ask(context.Background(), mailbox.Sender[Message](l), func(replyTo mailbox.Sender[[]Headway]) Message {
		return GetHeadways{ReplyTo: replyTo}
	})
	if err != nil {
		t.Fatal(err)
	}

	byStation := make(map[string]Headway)
	for _, h := range headways {
		byStation[h.StationID] = h
	}
	if c := byStation["C"]; c.Count != 1 || c.MeanSeconds != 60 {
		t.Errorf("C headways = %+v, expected one 60s observation", c)
	}
	if a := byStation["A"]; a.Count != 1 || a.MeanSeconds != 100 {
		t.Errorf("A headways = %+v, expected one 100s observation", a)
	}
}
