// Package clocktest provides a hand-driven timer facility so component tests
// can fire scheduled deliveries deterministically.
package clocktest

import (
	"sort"
	"sync"
	"time"

	"github.com/mini-rodalies-3d/transitsim/internal/clock"
)

// Manual records scheduled callbacks and runs them only when told to.
type Manual struct {
	mu      sync.Mutex
	seq     int
	pending []*entry
}

type entry struct {
	m       *Manual
	seq     int
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (e *entry) Stop() bool {
	e.m.mu.Lock()
	defer e.m.mu.Unlock()
	if e.stopped || e.fired {
		return false
	}
	e.stopped = true
	return true
}

// AfterFunc satisfies clock.AfterFunc
func (m *Manual) AfterFunc(d time.Duration, f func()) clock.Stopper {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	e := &entry{m: m, seq: m.seq, delay: d, f: f}
	m.pending = append(m.pending, e)
	return e
}

// Delays returns the delays of the timers still waiting, in scheduling order
func (m *Manual) Delays() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Duration
	for _, e := range m.pending {
		if !e.stopped && !e.fired {
			out = append(out, e.delay)
		}
	}
	return out
}

// Pending returns how many timers are waiting
func (m *Manual) Pending() int {
	return len(m.Delays())
}

// FireNext runs the earliest scheduled timer that is still active.
// It returns false if none is waiting.
func (m *Manual) FireNext() bool {
	m.mu.Lock()
	var next *entry
	live := m.pending[:0]
	for _, e := range m.pending {
		if e.stopped || e.fired {
			continue
		}
		live = append(live, e)
	}
	m.pending = live
	sort.SliceStable(m.pending, func(i, j int) bool { return m.pending[i].seq < m.pending[j].seq })
	if len(m.pending) > 0 {
		next = m.pending[0]
		next.fired = true
		m.pending = m.pending[1:]
	}
	m.mu.Unlock()

	if next == nil {
		return false
	}
	next.f()
	return true
}

// NewClock returns a clock with the given scale driven by m
func (m *Manual) NewClock(timeScale int) *clock.Clock {
	c, err := clock.New(timeScale, clock.WithAfterFunc(m.AfterFunc))
	if err != nil {
		panic(err)
	}
	return c
}
