// Package geo holds the coordinate and point values buses travel over.
// Geodesic math is delegated to github.com/paulmach/orb.
package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// Coordinate is a WGS84 position
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinate) orb() orb.Point {
	return orb.Point{c.Lng, c.Lat}
}

func fromOrb(p orb.Point) Coordinate {
	return Coordinate{Lat: p.Lat(), Lng: p.Lon()}
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Lat, c.Lng)
}

// Distance calculates the distance between two coordinates in meters
func Distance(a, b Coordinate) float64 {
	return orbgeo.DistanceHaversine(a.orb(), b.orb())
}

// Bearing calculates the bearing from a to b in degrees (0-360)
func Bearing(a, b Coordinate) float64 {
	return math.Mod(orbgeo.Bearing(a.orb(), b.orb())+360, 360)
}

// Offset returns the coordinate reached by travelling meters from c along bearing
func Offset(c Coordinate, bearing, meters float64) Coordinate {
	return fromOrb(orbgeo.PointAtBearingAndDistance(c.orb(), bearing, meters))
}

// Interpolate linearly interpolates between two coordinates
func Interpolate(start, end Coordinate, fraction float64) Coordinate {
	return Coordinate{
		Lat: start.Lat + (end.Lat-start.Lat)*fraction,
		Lng: start.Lng + (end.Lng-start.Lng)*fraction,
	}
}

// LineLength calculates the total length of a polyline in meters
func LineLength(coords []Coordinate) float64 {
	line := make(orb.LineString, 0, len(coords))
	for _, c := range coords {
		line = append(line, c.orb())
	}
	return orbgeo.LengthHaversine(line)
}
