package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/mini-rodalies-3d/transitsim/internal/clock"
	"github.com/mini-rodalies-3d/transitsim/internal/geo"
	"github.com/mini-rodalies-3d/transitsim/internal/mailbox"
)

func snapshot(t *testing.T, tr *Tracker) Path {
	t.Helper()
	ch := make(chan Path, 1)
	tr.Send(Snapshot{ReplyTo: mailbox.Chan[Path](ch)})
	select {
	case p := <-ch:
		return p
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for path")
		return Path{}
	}
}

func TestTrackingAccumulates(t *testing.T) {
	// a frozen wall clock forces every stamp through the collision bump
	frozen := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clk, err := clock.New(1, clock.WithWallClock(func() time.Time { return frozen }))
	if err != nil {
		t.Fatal(err)
	}

	tr := New("B1", clk)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	coords := []geo.Coordinate{{Lat: 1, Lng: 1}, {Lat: 2, Lng: 2}, {Lat: 3, Lng: 3}}
	for i, d := range []float64{5, 7, 3} {
		tr.Send(Track{Point: geo.Point{Distance: d, Coordinate: coords[i]}})
	}

	path := snapshot(t, tr)
	if path.BusID != "B1" {
		t.Errorf("BusID = %q", path.BusID)
	}

	wantMeters := []float64{0, 5, 12, 15}
	if len(path.Odometer) != len(wantMeters) {
		t.Fatalf("odometer has %d entries, expected %d", len(path.Odometer), len(wantMeters))
	}
	for i, want := range wantMeters {
		if path.Odometer[i].Meters != want {
			t.Errorf("odometer[%d] = %v, expected %v", i, path.Odometer[i].Meters, want)
		}
		if i > 0 && !path.Odometer[i].At.After(path.Odometer[i-1].At) {
			t.Errorf("odometer[%d] timestamp %v not after %v", i, path.Odometer[i].At, path.Odometer[i-1].At)
		}
	}

	if len(path.Positions) != 3 {
		t.Fatalf("positions has %d entries, expected 3", len(path.Positions))
	}
	for i, pos := range path.Positions {
		if pos.Coordinate != coords[i] {
			t.Errorf("position[%d] = %v, expected %v", i, pos.Coordinate, coords[i])
		}
		if pos.At != path.Odometer[i+1].At {
			t.Errorf("position[%d] and odometer stamped differently", i)
		}
	}

	if path.TotalMeters() != 15 {
		t.Errorf("TotalMeters() = %v, expected 15", path.TotalMeters())
	}
	if latest, ok := path.Latest(); !ok || latest.Coordinate != coords[2] {
		t.Errorf("Latest() = %v, %v", latest, ok)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	clk, _ := clock.New(1)
	tr := New("B2", clk)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go tr.Run(ctx)

	tr.Send(Track{Point: geo.Point{Distance: 10}})
	first := snapshot(t, tr)
	first.Odometer[1].Meters = 999

	second := snapshot(t, tr)
	if second.Odometer[1].Meters != 10 {
		t.Errorf("snapshot shares memory with the tracker")
	}
}

func TestEmptyPath(t *testing.T) {
	var p Path
	if _, ok := p.Latest(); ok {
		t.Error("Latest() on empty path reported a position")
	}
	if p.TotalMeters() != 0 {
		t.Error("TotalMeters() on empty path != 0")
	}
}
