package realtime

import (
	"time"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"

	"metrotrack/internal/metro"
	"metrotrack/internal/tracking"
)

// BuildVehiclePositions encodes live train states as a full-dataset GTFS-RT
// feed. Speed is converted from km/h to m/s.
func BuildVehiclePositions(states []tracking.State, now time.Time) *gtfs.FeedMessage {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(uint64(now.Unix())),
		},
	}

	for _, st := range states {
		var dirID uint32
		if st.Direction == metro.Backward {
			dirID = 1
		}
		feed.Entity = append(feed.Entity, &gtfs.FeedEntity{
			Id: proto.String(st.Key),
			Vehicle: &gtfs.VehiclePosition{
				Trip: &gtfs.TripDescriptor{
					RouteId:     proto.String(st.LineID),
					DirectionId: proto.Uint32(dirID),
				},
				Vehicle: &gtfs.VehicleDescriptor{
					Id: proto.String(st.TrainID),
				},
				Position: &gtfs.Position{
					Latitude:  proto.Float32(float32(st.Latitude)),
					Longitude: proto.Float32(float32(st.Longitude)),
					Speed:     proto.Float32(float32(st.Speed / 3.6)),
				},
				Timestamp: proto.Uint64(uint64(st.LastUpdate.Unix())),
			},
		})
	}
	return feed
}

// MarshalVehiclePositions encodes states into GTFS-RT wire format.
func MarshalVehiclePositions(states []tracking.State, now time.Time) ([]byte, error) {
	return proto.Marshal(BuildVehiclePositions(states, now))
}
