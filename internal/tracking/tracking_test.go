package tracking

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/riderfront/internal/booking/domain"
)

func TestObserverKeepsLatestSnapshot(t *testing.T) {
	observer := NewObserver()
	ctx := context.Background()

	observer.Update(ctx, "drv-1", domain.Coordinate{Lat: 12.97, Lng: 77.59}, 35, 5)
	observer.Update(ctx, "drv-1", domain.Coordinate{Lat: 12.98, Lng: 77.60}, 40, 4)
	observer.Update(ctx, "drv-2", domain.Coordinate{Lat: 13.08, Lng: 80.27}, 0, 10)

	snap, ok := observer.Snapshot(ctx, "drv-1")
	require.True(t, ok)
	require.InDelta(t, 12.98, snap.Point.Lat, 1e-9)
	require.InDelta(t, 40, snap.SpeedKmh, 1e-9)

	require.Len(t, observer.All(), 2)

	_, ok = observer.Snapshot(ctx, "drv-3")
	require.False(t, ok)
}

func TestArrivalEstimateUsesReportedSpeed(t *testing.T) {
	snap := PositionSnapshot{
		Point:    domain.Coordinate{Lat: 12.97, Lng: 77.59},
		SpeedKmh: 36, // 10 m/s
	}
	// Roughly 1.11 km due north.
	target := domain.Coordinate{Lat: 12.98, Lng: 77.59}

	eta := ArrivalEstimate(snap, target)
	require.InDelta(t, 111, eta.Seconds(), 5)
}

func TestArrivalEstimateFallsBackWhenStopped(t *testing.T) {
	snap := PositionSnapshot{Point: domain.Coordinate{Lat: 12.97, Lng: 77.59}}
	target := domain.Coordinate{Lat: 12.98, Lng: 77.59}

	eta := ArrivalEstimate(snap, target)
	// 1.11 km at the 30 km/h fallback.
	require.InDelta(t, 133, eta.Seconds(), 6)
}

// fakeStream feeds a fixed sequence of position updates.
type fakeStream struct {
	Tracking_StreamPositionsServer
	updates []*VehiclePosition
	idx     int
	closed  bool
}

func (s *fakeStream) Context() context.Context { return context.Background() }

func (s *fakeStream) Recv() (*VehiclePosition, error) {
	if s.idx >= len(s.updates) {
		return nil, io.EOF
	}
	msg := s.updates[s.idx]
	s.idx++
	return msg, nil
}

func (s *fakeStream) SendAndClose(*Ack) error {
	s.closed = true
	return nil
}

func TestStreamPositionsIngestsUpdates(t *testing.T) {
	observer := NewObserver()
	server := NewServer(observer)
	stream := &fakeStream{updates: []*VehiclePosition{
		{DriverId: "drv-1", Lat: 12.97, Lng: 77.59, SpeedKmh: 35, Ts: time.Now().Unix()},
		{DriverId: "", Lat: 1, Lng: 1},
		{DriverId: "drv-1", Lat: 12.98, Lng: 77.60, SpeedKmh: 42, Ts: time.Now().Unix()},
	}}

	require.NoError(t, server.StreamPositions(stream))
	require.True(t, stream.closed)

	snap, ok := observer.Snapshot(context.Background(), "drv-1")
	require.True(t, ok)
	require.InDelta(t, 42, snap.SpeedKmh, 1e-9)
	require.Len(t, observer.All(), 1, "updates without a driver id are dropped")
}

func TestTrackHandler(t *testing.T) {
	observer := NewObserver()
	observer.Update(context.Background(), "drv-1", domain.Coordinate{Lat: 12.97, Lng: 77.59}, 36, 5)
	srv := httptest.NewServer(NewHTTP(observer).Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/track/drv-1?lat=12.98&lng=77.59")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Position      PositionSnapshot `json:"position"`
		ArrivalETASec float64          `json:"arrival_eta_sec"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "drv-1", body.Position.DriverID)
	require.Greater(t, body.ArrivalETASec, 0.0)

	missing, err := http.Get(srv.URL + "/v1/track/drv-9")
	require.NoError(t, err)
	missing.Body.Close()
	require.Equal(t, http.StatusNotFound, missing.StatusCode)

	all, err := http.Get(srv.URL + "/v1/track")
	require.NoError(t, err)
	defer all.Body.Close()
	var list []PositionSnapshot
	require.NoError(t, json.NewDecoder(all.Body).Decode(&list))
	require.Len(t, list, 1)
}
