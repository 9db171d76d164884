// Package clock holds the simulated clock. Every delay a component schedules
// is simulated time; Scale turns it into the real delay handed to the timer.
package clock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mini-rodalies-3d/transitsim/internal/mailbox"
)

// ErrInvalidTimeScale is returned when a time scale below 1 is requested
var ErrInvalidTimeScale = errors.New("time scale must be a positive integer")

// Stopper is the cancellation side of a scheduled callback.
// *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f to run after d and returns a handle to cancel it
type AfterFunc func(d time.Duration, f func()) Stopper

// Clock scales simulated durations to real ones. A single Clock is created
// per simulation and passed to every component.
type Clock struct {
	mu        sync.RWMutex
	timeScale int

	// simulated time = simBase + (wall - wallBase) * timeScale
	wallBase time.Time
	simBase  time.Time

	now       func() time.Time
	afterFunc AfterFunc
}

// Option customizes a Clock
type Option func(*Clock)

// WithWallClock replaces time.Now as the wall clock source
func WithWallClock(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// WithAfterFunc replaces time.AfterFunc as the timer facility
func WithAfterFunc(fn AfterFunc) Option {
	return func(c *Clock) { c.afterFunc = fn }
}

// New creates a clock running timeScale times faster than real time
func New(timeScale int, opts ...Option) (*Clock, error) {
	if timeScale < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTimeScale, timeScale)
	}
	c := &Clock{
		timeScale: timeScale,
		now:       time.Now,
		afterFunc: func(d time.Duration, f func()) Stopper {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.wallBase = c.now()
	c.simBase = c.wallBase
	return c, nil
}

// TimeScale returns the current scale factor
func (c *Clock) TimeScale() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.timeScale
}

// SetTimeScale changes the scale factor. Timers already scheduled keep the
// delay they were given; only later Scale calls see the new factor.
func (c *Clock) SetTimeScale(timeScale int) error {
	if timeScale < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidTimeScale, timeScale)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.now()
	c.simBase = c.simulatedAt(wall)
	c.wallBase = wall
	c.timeScale = timeScale
	return nil
}

// Scale converts a simulated duration into the real delay to wait.
// Negative durations scale to zero.
func (c *Clock) Scale(d time.Duration) time.Duration {
	if d < 0 {
		d = 0
	}
	return d / time.Duration(c.TimeScale())
}

// Now returns the current simulated time
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.simulatedAt(c.now())
}

func (c *Clock) simulatedAt(wall time.Time) time.Time {
	elapsed := wall.Sub(c.wallBase)
	return c.simBase.Add(elapsed * time.Duration(c.timeScale))
}

// AfterFunc runs f once after the real delay d
func (c *Clock) AfterFunc(d time.Duration, f func()) *Timer {
	if d < 0 {
		d = 0
	}
	return &Timer{stopper: c.afterFunc(d, f)}
}

// WaitFor blocks for the scaled equivalent of the simulated duration d.
// Only synchronous callers outside the components use it.
func (c *Clock) WaitFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(c.Scale(d))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Timer is the handle of a scheduled delivery
type Timer struct {
	stopper Stopper
}

// Stop cancels the delivery. It reports false if the timer already fired or
// was stopped. Stop on a nil Timer is a no-op.
func (t *Timer) Stop() bool {
	if t == nil || t.stopper == nil {
		return false
	}
	return t.stopper.Stop()
}

// ScheduleOnce delivers msg to dst once the real delay has elapsed. The
// caller passes a delay already converted with Scale.
func ScheduleOnce[M any](c *Clock, delay time.Duration, dst mailbox.Sender[M], msg M) *Timer {
	return c.AfterFunc(delay, func() {
		dst.Send(msg)
	})
}
