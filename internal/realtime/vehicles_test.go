package realtime

import (
	"testing"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/mini-rodalies-3d/transitsim/internal/bus"
	"github.com/mini-rodalies-3d/transitsim/internal/geo"
)

func TestVehiclePositionsFeed(t *testing.T) {
	at := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	statuses := []bus.Status{
		{BusID: "101", RouteID: "H1", Phase: "boarding", StationID: "UNI", Positioned: true,
			Position: geo.Coordinate{Lat: 41.3859, Lng: 2.1640}, Bearing: 45, Onboard: 10, Capacity: 60, At: at},
		{BusID: "102", RouteID: "H1R", Phase: "awaiting_route"},
		{BusID: "201", RouteID: "V2", Phase: "traveling", StationID: "PDG", Positioned: true,
			Position: geo.Coordinate{Lat: 41.39, Lng: 2.17}, Onboard: 40, Capacity: 40, At: at},
	}

	data, err := Marshal(statuses, at)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	feed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if feed.GetHeader().GetTimestamp() != uint64(at.Unix()) {
		t.Errorf("header timestamp = %d", feed.GetHeader().GetTimestamp())
	}
	if len(feed.Entity) != 2 {
		t.Fatalf("got %d entities, expected the 2 positioned buses", len(feed.Entity))
	}

	first := feed.Entity[0].GetVehicle()
	if first.GetVehicle().GetId() != "101" || first.GetTrip().GetRouteId() != "H1" || first.GetStopId() != "UNI" {
		t.Errorf("unexpected first vehicle %v", first)
	}
	if first.GetCurrentStatus() != gtfs.VehiclePosition_STOPPED_AT {
		t.Errorf("boarding bus status = %v", first.GetCurrentStatus())
	}
	if lat := first.GetPosition().GetLatitude(); lat < 41.385 || lat > 41.387 {
		t.Errorf("latitude = %f", lat)
	}

	second := feed.Entity[1].GetVehicle()
	if second.GetCurrentStatus() != gtfs.VehiclePosition_IN_TRANSIT_TO {
		t.Errorf("traveling bus status = %v", second.GetCurrentStatus())
	}
	if second.GetOccupancyStatus() != gtfs.VehiclePosition_FULL {
		t.Errorf("full bus occupancy = %v", second.GetOccupancyStatus())
	}
}

func TestOccupancy(t *testing.T) {
	tests := []struct {
		onboard, capacity int
		expected          gtfs.VehiclePosition_OccupancyStatus
	}{
		{0, 60, gtfs.VehiclePosition_EMPTY},
		{5, 0, gtfs.VehiclePosition_EMPTY},
		{10, 60, gtfs.VehiclePosition_MANY_SEATS_AVAILABLE},
		{30, 60, gtfs.VehiclePosition_FEW_SEATS_AVAILABLE},
		{55, 60, gtfs.VehiclePosition_STANDING_ROOM_ONLY},
		{60, 60, gtfs.VehiclePosition_FULL},
	}
	for _, tc := range tests {
		if got := occupancy(tc.onboard, tc.capacity); got != tc.expected {
			t.Errorf("occupancy(%d, %d) = %v, expected %v", tc.onboard, tc.capacity, got, tc.expected)
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Error("expected an error for invalid protobuf")
	}
}
