package geo

import (
	"math"
	"time"
)

// Point is one step of a leg: the distance travelled since the previous
// point, the simulated time it takes, and where it ends.
type Point struct {
	Distance   float64       `json:"distance"`
	Duration   time.Duration `json:"duration"`
	Coordinate Coordinate    `json:"coordinate"`
}

// Leg splits the straight segment from -> to into points no longer than
// stepMeters, each timed at speedMPS. The last point is exactly to.
// A zero-length leg yields a single point at to with no distance or duration.
func Leg(from, to Coordinate, stepMeters, speedMPS float64) []Point {
	total := Distance(from, to)
	if total == 0 || stepMeters <= 0 || speedMPS <= 0 {
		return []Point{{Coordinate: to}}
	}

	steps := int(math.Ceil(total / stepMeters))
	points := make([]Point, 0, steps)
	prev := from
	for i := 1; i <= steps; i++ {
		next := to
		if i < steps {
			next = Interpolate(from, to, float64(i)/float64(steps))
		}
		d := Distance(prev, next)
		points = append(points, Point{
			Distance:   d,
			Duration:   time.Duration(d / speedMPS * float64(time.Second)),
			Coordinate: next,
		})
		prev = next
	}
	return points
}

// KmphToMPS converts a speed in km/h to meters per second
func KmphToMPS(kmph float64) float64 {
	return kmph * 1000 / 3600
}
