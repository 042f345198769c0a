package drivers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/riderfront/internal/booking/domain"
)

func TestNearbyParsesCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/nearby-drivers", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		start := body["startLocation"].(map[string]any)
		require.InDelta(t, 12.97, start["latitude"].(float64), 1e-9)
		require.InDelta(t, 77.59, start["longitude"].(float64), 1e-9)
		require.Equal(t, "car", body["vehicleType"])

		w.Write([]byte(`[
		  {"_id":"drv-1","name":"Asha","vehicleDetails":{"type":"car"},"dist":{"calculated":0.82}},
		  {"_id":"drv-2","name":"Ravi","vehicleDetails":{"type":"car"},"dist":{"calculated":1.4}}
		]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	candidates, err := client.Nearby(context.Background(),
		domain.Coordinate{Lat: 12.97, Lng: 77.59}, domain.VehicleCar)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, domain.DriverCandidate{
		ID: "drv-1", Name: "Asha", VehicleType: "car", DistanceKm: 0.82,
	}, candidates[0])
}

func TestNearbyEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	candidates, err := client.Nearby(context.Background(), domain.Coordinate{}, domain.VehicleCar)
	require.NoError(t, err)
	require.Empty(t, candidates)
}

func TestNearbyUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Nearby(context.Background(), domain.Coordinate{}, domain.VehicleCar)
	require.Error(t, err)
}
