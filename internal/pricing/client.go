package pricing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/riderfront/internal/booking/domain"
)

// Client requests computed fares from the backend pricing service.
// The operation is idempotent per input tuple; failures are returned
// as errors so the caller can keep the quote in a pending state.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs the pricing client against the API base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type priceRequest struct {
	Src           domain.Coordinate `json:"src"`
	Dest          domain.Coordinate `json:"dest"`
	VehicleType   string            `json:"vehicleType"`
	Distance      float64           `json:"distance"`
	EstimatedTime float64           `json:"estimatedTime"`
}

type priceResponse struct {
	Data struct {
		Price float64 `json:"price"`
	} `json:"data"`
}

// Estimate fetches the fare for the given tuple.
func (c *Client) Estimate(ctx context.Context, pickup, dropoff domain.Coordinate, vehicle domain.VehicleClass, metrics domain.RouteMetrics) (domain.FareQuote, error) {
	body, err := json.Marshal(priceRequest{
		Src:           pickup,
		Dest:          dropoff,
		VehicleType:   string(vehicle),
		Distance:      metrics.DistanceKm,
		EstimatedTime: metrics.DurationMin,
	})
	if err != nil {
		return domain.FareQuote{}, fmt.Errorf("marshal price request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/get-price", bytes.NewReader(body))
	if err != nil {
		return domain.FareQuote{}, fmt.Errorf("build price request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.FareQuote{}, fmt.Errorf("price request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.FareQuote{}, fmt.Errorf("price request: unexpected status %d", resp.StatusCode)
	}

	var payload priceResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.FareQuote{}, fmt.Errorf("decode price response: %w", err)
	}
	return domain.FareQuote{Amount: payload.Data.Price}, nil
}
