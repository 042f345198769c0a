package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/example/riderfront/internal/booking/domain"
)

// DefaultBaseURL is the public OSRM demo server.
const DefaultBaseURL = "https://router.project-osrm.org"

// ErrNoRoute indicates the routing engine found no path between the
// endpoints.
var ErrNoRoute = errors.New("no route between endpoints")

// OSRMResolver obtains route metrics from an OSRM-compatible service.
// Distances are reported in kilometers and durations in minutes, both
// rounded to two decimals to match display precision.
type OSRMResolver struct {
	baseURL string
	profile string
	http    *http.Client
}

// NewOSRMResolver constructs the resolver for the driving profile.
func NewOSRMResolver(baseURL string) *OSRMResolver {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &OSRMResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: "driving",
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

// Resolve computes total distance and duration between the endpoints.
func (r *OSRMResolver) Resolve(ctx context.Context, pickup, dropoff domain.Coordinate) (domain.RouteMetrics, error) {
	// OSRM expects lng,lat pairs.
	endpoint := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=false",
		r.baseURL, r.profile, pickup.Lng, pickup.Lat, dropoff.Lng, dropoff.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.RouteMetrics{}, fmt.Errorf("build route request: %w", err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return domain.RouteMetrics{}, fmt.Errorf("route request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.RouteMetrics{}, fmt.Errorf("route request: unexpected status %d", resp.StatusCode)
	}

	var payload osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return domain.RouteMetrics{}, fmt.Errorf("decode route response: %w", err)
	}
	if payload.Code != "Ok" || len(payload.Routes) == 0 {
		return domain.RouteMetrics{}, ErrNoRoute
	}

	route := payload.Routes[0]
	return domain.RouteMetrics{
		DistanceKm:  round2(route.Distance / 1000),
		DurationMin: round2(route.Duration / 60),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
