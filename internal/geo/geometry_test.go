package geo

import (
	"math"
	"testing"
	"time"
)

var catalunya = Coordinate{Lat: 41.3870, Lng: 2.1700}

func TestDistance(t *testing.T) {
	if d := Distance(catalunya, catalunya); d != 0 {
		t.Errorf("Distance to itself = %f, expected 0", d)
	}

	for _, meters := range []float64{8, 15, 100, 2500} {
		other := Offset(catalunya, 45, meters)
		got := Distance(catalunya, other)
		if math.Abs(got-meters) > 0.01*meters {
			t.Errorf("Distance after Offset(%v m) = %f", meters, got)
		}
	}
}

func TestBearing(t *testing.T) {
	tests := []struct {
		bearing float64
	}{
		{0}, {90}, {180}, {270},
	}
	for _, tc := range tests {
		other := Offset(catalunya, tc.bearing, 500)
		got := Bearing(catalunya, other)
		diff := math.Abs(got - tc.bearing)
		if diff > 180 {
			diff = 360 - diff
		}
		if diff > 0.5 {
			t.Errorf("Bearing toward %v = %f", tc.bearing, got)
		}
		if got < 0 || got >= 360 {
			t.Errorf("Bearing out of range: %f", got)
		}
	}
}

func TestLineLength(t *testing.T) {
	a := catalunya
	b := Offset(a, 90, 300)
	c := Offset(b, 0, 400)

	got := LineLength([]Coordinate{a, b, c})
	if math.Abs(got-700) > 1 {
		t.Errorf("LineLength = %f, expected ~700", got)
	}
	if LineLength(nil) != 0 {
		t.Error("LineLength of empty line should be 0")
	}
}

func TestLeg(t *testing.T) {
	to := Offset(catalunya, 90, 250)
	points := Leg(catalunya, to, 100, 10)

	if len(points) != 3 {
		t.Fatalf("Leg produced %d points, expected 3", len(points))
	}
	if points[len(points)-1].Coordinate != to {
		t.Errorf("last point = %v, expected destination %v", points[len(points)-1].Coordinate, to)
	}

	var total float64
	for i, p := range points {
		total += p.Distance
		if p.Distance > 100.5 {
			t.Errorf("point %d distance %f exceeds step", i, p.Distance)
		}
		want := time.Duration(p.Distance / 10 * float64(time.Second))
		if p.Duration != want {
			t.Errorf("point %d duration = %v, expected %v", i, p.Duration, want)
		}
	}
	if math.Abs(total-250) > 0.5 {
		t.Errorf("leg distance = %f, expected ~250", total)
	}
}

func TestLegZeroLength(t *testing.T) {
	points := Leg(catalunya, catalunya, 100, 10)
	if len(points) != 1 {
		t.Fatalf("Leg produced %d points, expected 1", len(points))
	}
	if points[0].Distance != 0 || points[0].Duration != 0 || points[0].Coordinate != catalunya {
		t.Errorf("unexpected point %+v", points[0])
	}
}

func TestKmphToMPS(t *testing.T) {
	if got := KmphToMPS(36); math.Abs(got-10) > 1e-9 {
		t.Errorf("KmphToMPS(36) = %f, expected 10", got)
	}
}
