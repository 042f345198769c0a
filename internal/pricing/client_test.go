package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/riderfront/internal/booking/domain"
)

func TestEstimateSendsTupleAndParsesPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/get-price", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "truck", body["vehicleType"])
		require.InDelta(t, 12.5, body["distance"].(float64), 1e-9)
		require.InDelta(t, 24.0, body["estimatedTime"].(float64), 1e-9)
		src := body["src"].(map[string]any)
		require.InDelta(t, 12.97, src["lat"].(float64), 1e-9)

		w.Write([]byte(`{"data":{"price":245.5}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	quote, err := client.Estimate(context.Background(),
		domain.Coordinate{Lat: 12.97, Lng: 77.59},
		domain.Coordinate{Lat: 13.08, Lng: 80.27},
		domain.VehicleTruck,
		domain.RouteMetrics{DistanceKm: 12.5, DurationMin: 24.0})
	require.NoError(t, err)
	require.InDelta(t, 245.5, quote.Amount, 1e-9)
}

func TestEstimateUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Estimate(context.Background(), domain.Coordinate{}, domain.Coordinate{},
		domain.VehicleCar, domain.RouteMetrics{})
	require.Error(t, err)
}
