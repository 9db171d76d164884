package motion

import (
	"context"
	"testing"
	"time"

	"github.com/mini-rodalies-3d/transitsim/internal/clock/clocktest"
	"github.com/mini-rodalies-3d/transitsim/internal/geo"
	"github.com/mini-rodalies-3d/transitsim/internal/mailbox"
	"github.com/mini-rodalies-3d/transitsim/internal/tracking"
)

var depot = geo.Coordinate{Lat: 41.3870, Lng: 2.1700}

func TestArrivedAt(t *testing.T) {
	dest := depot
	tests := []struct {
		name    string
		current float64
		next    float64
		hasNext bool
		want    bool
	}{
		{"close and next is farther", 8, 15, true, true},
		{"close but still approaching", 8, 5, true, false},
		{"outside radius", 12, 20, true, false},
		{"last point of the leg", 0, 0, false, true},
		{"last point outside radius", 30, 0, false, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			current := geo.Offset(dest, 90, tc.current)
			next := geo.Offset(dest, 270, tc.next)
			if got := ArrivedAt(dest, current, next, tc.hasNext); got != tc.want {
				t.Errorf("ArrivedAt(current %vm, next %vm) = %v, expected %v", tc.current, tc.next, got, tc.want)
			}
		})
	}
}

type harness struct {
	motion  *Motion
	manual  *clocktest.Manual
	reports chan Report
	tracks  chan tracking.Message
}

func start(t *testing.T, scale int) *harness {
	t.Helper()
	h := &harness{
		manual:  &clocktest.Manual{},
		reports: make(chan Report, 64),
		tracks:  make(chan tracking.Message, 64),
	}
	h.motion = New("B1", h.manual.NewClock(scale), 1,
		mailbox.Chan[Report](h.reports), mailbox.Chan[tracking.Message](h.tracks))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.motion.Run(ctx)
	return h
}

func (h *harness) state(t *testing.T) State {
	t.Helper()
	ch := make(chan State, 1)
	h.motion.Send(GetState{ReplyTo: mailbox.Chan[State](ch)})
	select {
	case s := <-ch:
		return s
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for state")
		return State{}
	}
}

func (h *harness) report(t *testing.T) Report {
	t.Helper()
	select {
	case r := <-h.reports:
		return r
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for report")
		return nil
	}
}

func TestMotionTravelsLegAndArrives(t *testing.T) {
	h := start(t, 1)
	dest := geo.Offset(depot, 0, 300)
	points := geo.Leg(depot, dest, 100, 10)

	h.motion.Send(Load{Points: points})
	if s := h.state(t); s.Phase != Loaded || s.Queued != 3 {
		t.Fatalf("state after Load = %+v", s)
	}

	h.motion.Send(MoveTo{Destination: dest})
	for i, p := range points {
		if s := h.state(t); s.Phase != Traveling {
			t.Fatalf("point %d: phase = %v, expected traveling", i, s.Phase)
		}

		delays := h.manual.Delays()
		if len(delays) != 1 {
			t.Fatalf("point %d: %d timers pending, expected 1", i, len(delays))
		}
		lo := time.Duration(float64(p.Duration) * minJitter)
		hi := time.Duration(float64(p.Duration) * maxJitter)
		if delays[0] < lo || delays[0] > hi {
			t.Errorf("point %d: delay %v outside [%v, %v]", i, delays[0], lo, hi)
		}

		h.manual.FireNext()
		locate, ok := h.report(t).(Locate)
		if !ok || locate.Coordinate != p.Coordinate {
			t.Fatalf("point %d: report = %#v, expected Locate at %v", i, locate, p.Coordinate)
		}
	}

	if _, ok := h.report(t).(WeAreHere); !ok {
		t.Fatal("expected WeAreHere after the last point")
	}
	if s := h.state(t); s.Phase != Arrived || s.Queued != 0 {
		t.Errorf("final state = %+v", s)
	}
	if len(h.tracks) != len(points) {
		t.Errorf("tracker got %d points, expected %d", len(h.tracks), len(points))
	}
}

func TestMotionScalesDelay(t *testing.T) {
	h := start(t, 10)
	dest := geo.Offset(depot, 0, 100)
	points := geo.Leg(depot, dest, 100, 10)

	h.motion.Send(Load{Points: points})
	h.motion.Send(MoveTo{Destination: dest})
	h.state(t)

	delays := h.manual.Delays()
	if len(delays) != 1 {
		t.Fatalf("%d timers pending, expected 1", len(delays))
	}
	// ~10s nominal, scaled by 10
	if delays[0] < 850*time.Millisecond || delays[0] > 1150*time.Millisecond {
		t.Errorf("delay = %v, expected ~1s", delays[0])
	}
}

func TestMotionStarvesAndResumes(t *testing.T) {
	h := start(t, 1)
	dest := geo.Offset(depot, 0, 200)
	points := geo.Leg(depot, dest, 100, 10)

	h.motion.Send(Load{Points: points[:1]})
	h.motion.Send(MoveTo{Destination: dest})
	h.state(t)
	h.manual.FireNext()
	h.report(t) // Locate

	if s := h.state(t); s.Phase != Starved {
		t.Fatalf("phase = %v with an empty queue short of the destination, expected starved", s.Phase)
	}

	h.motion.Send(Load{Points: points[1:]})
	if s := h.state(t); s.Phase != Traveling {
		t.Fatalf("phase = %v after reload, expected traveling", s.Phase)
	}
	h.manual.FireNext()
	h.report(t) // Locate
	if _, ok := h.report(t).(WeAreHere); !ok {
		t.Fatal("expected WeAreHere after resuming")
	}
}

func TestMoveToCancelsPreviousLeg(t *testing.T) {
	h := start(t, 1)
	first := geo.Offset(depot, 0, 100)
	second := geo.Offset(depot, 180, 100)

	h.motion.Send(Load{Points: geo.Leg(depot, first, 100, 10)})
	h.motion.Send(MoveTo{Destination: first})
	h.state(t)
	if h.manual.Pending() != 1 {
		t.Fatalf("Pending() = %d, expected 1", h.manual.Pending())
	}

	h.motion.Send(MoveTo{Destination: second})
	h.state(t)
	if h.manual.Pending() != 1 {
		t.Errorf("Pending() = %d after redirect, expected the old timer stopped", h.manual.Pending())
	}
}

func TestStaleTimerIgnored(t *testing.T) {
	h := start(t, 1)
	h.motion.Send(reached{leg: 7})
	if s := h.state(t); s.Phase != Idle {
		t.Errorf("phase = %v after stale timer, expected idle", s.Phase)
	}
	if len(h.reports) != 0 {
		t.Error("stale timer produced a report")
	}
}

func TestHaltClearsQueue(t *testing.T) {
	h := start(t, 1)
	dest := geo.Offset(depot, 0, 300)

	h.motion.Send(Load{Points: geo.Leg(depot, dest, 100, 10)})
	h.motion.Send(MoveTo{Destination: dest})
	h.motion.Send(Halt{})
	if s := h.state(t); s.Phase != Idle || s.Queued != 0 {
		t.Errorf("state after Halt = %+v, expected idle and empty", s)
	}
	if h.manual.Pending() != 0 {
		t.Errorf("Pending() = %d after Halt, expected 0", h.manual.Pending())
	}
}
