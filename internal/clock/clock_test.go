package clock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mini-rodalies-3d/transitsim/internal/clock"
	"github.com/mini-rodalies-3d/transitsim/internal/clock/clocktest"
	"github.com/mini-rodalies-3d/transitsim/internal/mailbox"
)

func TestScale(t *testing.T) {
	tests := []struct {
		name  string
		scale int
		in    time.Duration
		want  time.Duration
	}{
		{"identity at scale 1", 1, 90 * time.Second, 90 * time.Second},
		{"divides by scale", 10, 90 * time.Second, 9 * time.Second},
		{"floors remainder", 3, 10 * time.Nanosecond, 3 * time.Nanosecond},
		{"zero stays zero", 60, 0, 0},
		{"negative clamps to zero", 5, -time.Minute, 0},
		{"negative clamps at scale 1", 1, -time.Nanosecond, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c, err := clock.New(tc.scale)
			if err != nil {
				t.Fatalf("New(%d) failed: %v", tc.scale, err)
			}
			if got := c.Scale(tc.in); got != tc.want {
				t.Errorf("Scale(%v) at %d = %v, expected %v", tc.in, tc.scale, got, tc.want)
			}
		})
	}
}

func TestNewRejectsInvalidScale(t *testing.T) {
	for _, scale := range []int{0, -1} {
		if _, err := clock.New(scale); !errors.Is(err, clock.ErrInvalidTimeScale) {
			t.Errorf("New(%d) error = %v, expected ErrInvalidTimeScale", scale, err)
		}
	}
}

func TestSetTimeScale(t *testing.T) {
	c, err := clock.New(1)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.SetTimeScale(0); !errors.Is(err, clock.ErrInvalidTimeScale) {
		t.Errorf("SetTimeScale(0) error = %v, expected ErrInvalidTimeScale", err)
	}
	if c.TimeScale() != 1 {
		t.Errorf("TimeScale() = %d after rejected change, expected 1", c.TimeScale())
	}

	if err := c.SetTimeScale(4); err != nil {
		t.Fatalf("SetTimeScale(4) failed: %v", err)
	}
	if got := c.Scale(time.Minute); got != 15*time.Second {
		t.Errorf("Scale(1m) = %v after SetTimeScale(4), expected 15s", got)
	}
}

type fakeWall struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeWall) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeWall) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestNowAdvancesScaled(t *testing.T) {
	wall := &fakeWall{now: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	c, err := clock.New(10, clock.WithWallClock(wall.Now))
	if err != nil {
		t.Fatal(err)
	}
	start := c.Now()

	wall.Advance(time.Second)
	if got := c.Now().Sub(start); got != 10*time.Second {
		t.Errorf("simulated elapsed = %v, expected 10s", got)
	}

	// The scale change re-anchors, so time already elapsed is kept
	if err := c.SetTimeScale(2); err != nil {
		t.Fatal(err)
	}
	wall.Advance(time.Second)
	if got := c.Now().Sub(start); got != 12*time.Second {
		t.Errorf("simulated elapsed = %v, expected 12s", got)
	}
}

func TestScheduleOnceDelivers(t *testing.T) {
	manual := &clocktest.Manual{}
	c := manual.NewClock(1)
	box := mailbox.New[string]()

	clock.ScheduleOnce[string](c, 3*time.Second, box, "tick")

	if delays := manual.Delays(); len(delays) != 1 || delays[0] != 3*time.Second {
		t.Fatalf("Delays() = %v, expected [3s]", delays)
	}
	if box.Len() != 0 {
		t.Fatal("message delivered before the timer fired")
	}

	manual.FireNext()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := box.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if got != "tick" {
		t.Errorf("Receive() = %q, expected tick", got)
	}
}

func TestTimerStop(t *testing.T) {
	manual := &clocktest.Manual{}
	c := manual.NewClock(1)
	box := mailbox.New[int]()

	timer := clock.ScheduleOnce[int](c, time.Second, box, 1)
	if !timer.Stop() {
		t.Error("Stop() = false on a pending timer")
	}
	if timer.Stop() {
		t.Error("Stop() = true on an already stopped timer")
	}
	if manual.FireNext() {
		t.Error("FireNext ran a stopped timer")
	}
	if box.Len() != 0 {
		t.Error("stopped timer delivered its message")
	}

	var nilTimer *clock.Timer
	if nilTimer.Stop() {
		t.Error("Stop() on nil timer = true")
	}
}

func TestScheduleOnceRealTimer(t *testing.T) {
	c, err := clock.New(1000)
	if err != nil {
		t.Fatal(err)
	}
	box := mailbox.New[int]()

	clock.ScheduleOnce[int](c, c.Scale(time.Second), box, 7)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := box.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if got != 7 {
		t.Errorf("Receive() = %d, expected 7", got)
	}
}

func TestWaitFor(t *testing.T) {
	c, err := clock.New(1000)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.WaitFor(context.Background(), 5*time.Second); err != nil {
		t.Errorf("WaitFor failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.WaitFor(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("WaitFor on cancelled ctx = %v, expected context.Canceled", err)
	}
}
