package bookingapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/riderfront/internal/booking/domain"
)

// ErrMissingID indicates the backend returned a booking without an id.
var ErrMissingID = errors.New("booking response missing id")

// Client persists bookings against the backend. The raw booking
// document is kept so it can be relayed to drivers unchanged in the
// dispatch event.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs the booking client against the API base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type coordinatesField struct {
	Coordinates [2]float64 `json:"coordinates"`
}

type createRequest struct {
	Distance float64          `json:"distance"`
	Duration float64          `json:"duration"`
	Src      coordinatesField `json:"src"`
	Destn    coordinatesField `json:"destn"`
	Price    float64          `json:"price"`
	SrcText  string           `json:"srcText"`
	DestText string           `json:"destnText"`
}

type createResponse struct {
	Booking map[string]any `json:"booking"`
}

// Create submits the booking with the rider's bearer token.
func (c *Client) Create(ctx context.Context, token string, req domain.BookingRequest) (domain.Booking, error) {
	body, err := json.Marshal(createRequest{
		Distance: req.DistanceKm,
		Duration: req.DurationSec,
		Src:      coordinatesField{Coordinates: [2]float64{req.Pickup.Lat, req.Pickup.Lng}},
		Destn:    coordinatesField{Coordinates: [2]float64{req.Dropoff.Lat, req.Dropoff.Lng}},
		Price:    req.Price,
		SrcText:  req.PickupText,
		DestText: req.DropoffText,
	})
	if err != nil {
		return domain.Booking{}, fmt.Errorf("marshal booking request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/booking/create", bytes.NewReader(body))
	if err != nil {
		return domain.Booking{}, fmt.Errorf("build booking request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return domain.Booking{}, fmt.Errorf("booking request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return domain.Booking{}, fmt.Errorf("booking request: unexpected status %d", resp.StatusCode)
	}

	var payload createResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.Booking{}, fmt.Errorf("decode booking response: %w", err)
	}

	id, _ := payload.Booking["_id"].(string)
	if id == "" {
		return domain.Booking{}, ErrMissingID
	}
	return domain.Booking{ID: id, Document: payload.Booking}, nil
}
