package geosearch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/riderfront/internal/booking/domain"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Client queries a Nominatim-compatible place search service. A blank
// or whitespace query short-circuits to an empty result without a
// network call.
type Client struct {
	baseURL   string
	http      *http.Client
	userAgent string
	cache     Cache
	logger    *zap.Logger
}

// Cache stores search responses keyed by normalized query.
type Cache interface {
	Get(ctx context.Context, query string) ([]domain.PlaceCandidate, bool)
	Put(ctx context.Context, query string, candidates []domain.PlaceCandidate)
}

// NewClient constructs the search client. cache may be nil.
func NewClient(baseURL string, cache Cache, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 10 * time.Second},
		userAgent: "riderfront/1.0",
		cache:     cache,
		logger:    logger,
	}
}

type nominatimResult struct {
	PlaceID     json.Number `json:"place_id"`
	DisplayName string      `json:"display_name"`
	Lat         string      `json:"lat"`
	Lon         string      `json:"lon"`
}

// Search returns ranked place candidates for the query.
func (c *Client) Search(ctx context.Context, query string) ([]domain.PlaceCandidate, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []domain.PlaceCandidate{}, nil
	}

	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, query); ok {
			searchCacheHits.Inc()
			return cached, nil
		}
		searchCacheMisses.Inc()
	}

	endpoint := fmt.Sprintf("%s/search?q=%s&format=json", c.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("place search: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("place search: unexpected status %d", resp.StatusCode)
	}

	var results []nominatimResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	candidates := make([]domain.PlaceCandidate, 0, len(results))
	for _, res := range results {
		lat, latErr := strconv.ParseFloat(res.Lat, 64)
		lng, lngErr := strconv.ParseFloat(res.Lon, 64)
		if latErr != nil || lngErr != nil {
			c.logger.Warn("skipping unparsable place result", zap.String("place_id", res.PlaceID.String()))
			continue
		}
		candidates = append(candidates, domain.PlaceCandidate{
			ID:          res.PlaceID.String(),
			DisplayName: res.DisplayName,
			Coordinate:  domain.Coordinate{Lat: lat, Lng: lng},
		})
	}

	if c.cache != nil {
		c.cache.Put(ctx, query, candidates)
	}
	return candidates, nil
}
