package drivers

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

// Client lists candidate drivers near a pickup point. The driver set
// refresh shares its trigger with the fare fetch but completes
// independently and may land in either order.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient constructs the discovery client against the API base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type nearbyRequest struct {
	StartLocation struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"startLocation"`
	VehicleType string `json:"vehicleType"`
}

type nearbyRecord struct {
	ID             string `json:"_id"`
	Name           string `json:"name"`
	VehicleDetails struct {
		Type string `json:"type"`
	} `json:"vehicleDetails"`
	Dist struct {
		Calculated float64 `json:"calculated"`
	} `json:"dist"`
}

// Nearby fetches candidate drivers for the pickup and vehicle class.
func (c *Client) Nearby(ctx context.Context, pickup domain.Coordinate, vehicle domain.VehicleClass) ([]domain.DriverCandidate, error) {
	var reqBody nearbyRequest
	reqBody.StartLocation.Latitude = pickup.Lat
	reqBody.StartLocation.Longitude = pickup.Lng
	reqBody.VehicleType = string(vehicle)

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal nearby request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/nearby-drivers", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build nearby request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("nearby request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nearby request: unexpected status %d", resp.StatusCode)
	}

	var records []nearbyRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode nearby response: %w", err)
	}

	candidates := make([]domain.DriverCandidate, 0, len(records))
	for _, rec := range records {
		candidates = append(candidates, domain.DriverCandidate{
			ID:          rec.ID,
			Name:        rec.Name,
			VehicleType: rec.VehicleDetails.Type,
			DistanceKm:  rec.Dist.Calculated,
		})
	}
	return candidates, nil
}
