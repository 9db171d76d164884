// Package realtime publishes bus positions as a GTFS-Realtime feed.
package realtime

import (
	"fmt"
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"github.com/mini-rodalies-3d/transitsim/internal/bus"
)

const gtfsRealtimeVersion = "2.0"

// stopStatus maps bus phases to the GTFS-RT VehicleStopStatus. Phases
// missing here are reported without a status.
var stopStatus = map[string]gtfs.VehiclePosition_VehicleStopStatus{
	bus.AwaitingStation.String(): gtfs.VehiclePosition_IN_TRANSIT_TO,
	bus.AwaitingData.String():    gtfs.VehiclePosition_IN_TRANSIT_TO,
	bus.Traveling.String():       gtfs.VehiclePosition_IN_TRANSIT_TO,
	bus.AwaitingArrival.String(): gtfs.VehiclePosition_INCOMING_AT,
	bus.Alighting.String():       gtfs.VehiclePosition_STOPPED_AT,
	bus.Boarding.String():        gtfs.VehiclePosition_STOPPED_AT,
}

// VehiclePositions builds a full-dataset feed with one entity per
// positioned bus. at is the simulated time of the feed.
func VehiclePositions(statuses []bus.Status, at time.Time) *gtfs.FeedMessage {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String(gtfsRealtimeVersion),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(unixSeconds(at)),
		},
	}

	for _, s := range statuses {
		// Unpositioned buses have no meaningful coordinates yet
		if !s.Positioned {
			continue
		}

		vehicle := &gtfs.VehiclePosition{
			Trip: &gtfs.TripDescriptor{
				RouteId: proto.String(s.RouteID),
			},
			Vehicle: &gtfs.VehicleDescriptor{
				Id:    proto.String(s.BusID),
				Label: proto.String(fmt.Sprintf("%s-%s", s.RouteID, s.BusID)),
			},
			Position: &gtfs.Position{
				Latitude:  proto.Float32(float32(s.Position.Lat)),
				Longitude: proto.Float32(float32(s.Position.Lng)),
				Bearing:   proto.Float32(float32(s.Bearing)),
			},
			Timestamp:       proto.Uint64(unixSeconds(s.At)),
			OccupancyStatus: occupancy(s.Onboard, s.Capacity).Enum(),
		}
		if s.StationID != "" {
			vehicle.StopId = proto.String(s.StationID)
		}
		if status, ok := stopStatus[s.Phase]; ok {
			vehicle.CurrentStatus = status.Enum()
		}

		feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
			Id:      proto.String("bus:" + s.BusID),
			Vehicle: vehicle,
		})
	}

	return feed
}

// Marshal encodes the vehicle positions feed for the wire
func Marshal(statuses []bus.Status, at time.Time) ([]byte, error) {
	data, err := proto.Marshal(VehiclePositions(statuses, at))
	if err != nil {
		return nil, fmt.Errorf("failed to encode feed: %w", err)
	}
	return data, nil
}

// Parse decodes a feed produced by Marshal
func Parse(data []byte) (*gtfs.FeedMessage, error) {
	feed := &gtfs.FeedMessage{}
	if err := proto.Unmarshal(data, feed); err != nil {
		return nil, fmt.Errorf("failed to parse protobuf: %w", err)
	}
	return feed, nil
}

func occupancy(onboard, capacity int) gtfs.VehiclePosition_OccupancyStatus {
	if capacity <= 0 || onboard <= 0 {
		return gtfs.VehiclePosition_EMPTY
	}
	ratio := float64(onboard) / float64(capacity)
	switch {
	case ratio >= 1:
		return gtfs.VehiclePosition_FULL
	case ratio >= 0.9:
		return gtfs.VehiclePosition_STANDING_ROOM_ONLY
	case ratio >= 0.5:
		return gtfs.VehiclePosition_FEW_SEATS_AVAILABLE
	default:
		return gtfs.VehiclePosition_MANY_SEATS_AVAILABLE
	}
}

func unixSeconds(t time.Time) uint64 {
	if t.Unix() < 0 {
		return 0
	}
	return uint64(t.Unix())
}
