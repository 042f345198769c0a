package bookingapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/example/riderfront/internal/booking/domain"
)

var sampleRequest = domain.BookingRequest{
	DistanceKm:  12.5,
	DurationSec: 1440,
	Pickup:      domain.Coordinate{Lat: 12.97, Lng: 77.59},
	Dropoff:     domain.Coordinate{Lat: 13.08, Lng: 80.27},
	Price:       245.5,
	PickupText:  "MG Road",
	DropoffText: "Marina Beach",
}

func TestCreateSendsBearerTokenAndWireFormat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/booking/create", r.URL.Path)
		require.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.InDelta(t, 12.5, body["distance"].(float64), 1e-9)
		require.InDelta(t, 1440.0, body["duration"].(float64), 1e-9)
		src := body["src"].(map[string]any)["coordinates"].([]any)
		require.InDelta(t, 12.97, src[0].(float64), 1e-9)
		require.InDelta(t, 77.59, src[1].(float64), 1e-9)
		require.Equal(t, "MG Road", body["srcText"])
		require.Equal(t, "Marina Beach", body["destnText"])

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"booking":{"_id":"bk-42","status":"pending","price":245.5}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	booking, err := client.Create(context.Background(), "token-abc", sampleRequest)
	require.NoError(t, err)
	require.Equal(t, "bk-42", booking.ID)
	require.Equal(t, "pending", booking.Document["status"])
}

func TestCreateMissingIDRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"booking":{"status":"pending"}}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Create(context.Background(), "token", sampleRequest)
	require.ErrorIs(t, err, ErrMissingID)
}

func TestCreateUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.Create(context.Background(), "token", sampleRequest)
	require.Error(t, err)
}
