package metrics

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestWelfordObserve(t *testing.T) {
	var w Welford
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		w.Observe(v)
	}
	if w.Count() != 8 {
		t.Errorf("Count() = %d, expected 8", w.Count())
	}
	if !almostEqual(w.Mean(), 5) {
		t.Errorf("Mean() = %f, expected 5", w.Mean())
	}
	if !almostEqual(w.StdDev(), 2) {
		t.Errorf("StdDev() = %f, expected 2", w.StdDev())
	}
}

func TestWelfordSingleObservation(t *testing.T) {
	var w Welford
	w.Observe(42)
	if w.StdDev() != 0 {
		t.Errorf("StdDev() = %f with one observation, expected 0", w.StdDev())
	}
}

func TestNewWelfordResumes(t *testing.T) {
	var full Welford
	values := []float64{10, 12, 9, 15, 11, 13}
	for _, v := range values {
		full.Observe(v)
	}

	var head Welford
	for _, v := range values[:3] {
		head.Observe(v)
	}
	resumed := NewWelford(head.Mean(), head.StdDev(), head.Count())
	for _, v := range values[3:] {
		resumed.Observe(v)
	}

	if !almostEqual(resumed.Mean(), full.Mean()) || !almostEqual(resumed.StdDev(), full.StdDev()) {
		t.Errorf("resumed = (%f, %f), expected (%f, %f)", resumed.Mean(), resumed.StdDev(), full.Mean(), full.StdDev())
	}
}

func TestWelfordMerge(t *testing.T) {
	values := []float64{3, 8, 1, 9, 4, 4, 7}
	var full, a, b Welford
	for i, v := range values {
		full.Observe(v)
		if i < 4 {
			a.Observe(v)
		} else {
			b.Observe(v)
		}
	}

	a.Merge(&b)
	if a.Count() != full.Count() || !almostEqual(a.Mean(), full.Mean()) || !almostEqual(a.StdDev(), full.StdDev()) {
		t.Errorf("merged = (%d, %f, %f), expected (%d, %f, %f)",
			a.Count(), a.Mean(), a.StdDev(), full.Count(), full.Mean(), full.StdDev())
	}

	var empty Welford
	empty.Merge(&full)
	if empty.Count() != full.Count() || !almostEqual(empty.Mean(), full.Mean()) {
		t.Error("merge into empty state should copy the other state")
	}
	empty.Merge(nil)
	if empty.Count() != full.Count() {
		t.Error("merging nil changed the state")
	}
}
