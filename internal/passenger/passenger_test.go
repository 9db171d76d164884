package passenger

import (
	"sync"
	"testing"
	"time"
)

func TestNone(t *testing.T) {
	if !None.IsNone() {
		t.Error("None.IsNone() = false")
	}
	if None.IsSuitable("R1") {
		t.Error("None should not be suitable for any route")
	}
}

func TestNewCopiesRoutes(t *testing.T) {
	var seq Sequence
	routes := []string{"R1", "R2"}
	p := New(&seq, "A", "C", routes, time.Time{})
	routes[0] = "X"

	if !p.IsSuitable("R1") {
		t.Error("passenger routes changed with the caller's slice")
	}
	if p.IsNone() {
		t.Error("new passenger reported as None")
	}
	if got := p.String(); got != "Passenger [1]" {
		t.Errorf("String() = %q", got)
	}
}

func TestAlightsAt(t *testing.T) {
	var seq Sequence
	p := New(&seq, "A", "C", nil, time.Time{})
	if !p.AlightsAt("C") || p.AlightsAt("B") {
		t.Error("AlightsAt mismatch")
	}
	stub := New(&seq, "A", "", nil, time.Time{})
	if stub.AlightsAt("") {
		t.Error("passenger without destination should never alight")
	}
}

func TestSequenceUniqueUnderConcurrency(t *testing.T) {
	var seq Sequence
	const workers, perWorker = 8, 500

	ids := make(chan int64, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				ids <- seq.Next()
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if id == 0 {
			t.Fatal("sequence produced the sentinel id 0")
		}
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*perWorker {
		t.Errorf("got %d ids, expected %d", len(seen), workers*perWorker)
	}
}
