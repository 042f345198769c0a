package tracking

import (
	"io"

	"google.golang.org/grpc"

	"github.com/example/riderfront/internal/booking/domain"
)

// VehiclePosition is one streamed position update from a driver app.
type VehiclePosition struct {
	DriverId  string
	Lat       float64
	Lng       float64
	SpeedKmh  float64
	AccuracyM float64
	Ts        int64
}

// Ack closes the stream.
type Ack struct{}

// TrackingServer defines the gRPC ingest contract.
type TrackingServer interface {
	StreamPositions(Tracking_StreamPositionsServer) error
}

// RegisterTrackingServer registers the service implementation.
func RegisterTrackingServer(s *grpc.Server, srv TrackingServer) {
	s.RegisterService(&grpc.ServiceDesc{
		ServiceName: "tracking.Tracking",
		HandlerType: (*TrackingServer)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    "StreamPositions",
			Handler:       _Tracking_StreamPositions_Handler,
			ServerStreams: true,
			ClientStreams: true,
		}},
	}, srv)
}

// Tracking_StreamPositionsServer defines the bidi stream interface.
type Tracking_StreamPositionsServer interface {
	grpc.ServerStream
	SendAndClose(*Ack) error
	Recv() (*VehiclePosition, error)
}

func _Tracking_StreamPositions_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(TrackingServer).StreamPositions(&trackingStreamServer{ServerStream: stream})
}

type trackingStreamServer struct {
	grpc.ServerStream
}

func (s *trackingStreamServer) SendAndClose(*Ack) error { return nil }

func (s *trackingStreamServer) Recv() (*VehiclePosition, error) {
	msg := new(VehiclePosition)
	if err := s.ServerStream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Server ingests driver position streams into the observer.
type Server struct {
	observer *Observer
}

// NewServer constructs the ingest server.
func NewServer(observer *Observer) *Server {
	return &Server{observer: observer}
}

// StreamPositions consumes updates until the driver app closes the
// stream.
func (s *Server) StreamPositions(stream Tracking_StreamPositionsServer) error {
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&Ack{})
		}
		if err != nil {
			return err
		}
		if msg.DriverId == "" {
			continue
		}
		s.observer.Update(stream.Context(), msg.DriverId,
			domain.Coordinate{Lat: msg.Lat, Lng: msg.Lng}, msg.SpeedKmh, msg.AccuracyM)
	}
}
