package geosearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const nominatimBody = `[
  {"place_id": 228075683, "display_name": "Bengaluru, Karnataka, India", "lat": "12.9767936", "lon": "77.590082"},
  {"place_id": 227955423, "display_name": "Bangalore Urban, Karnataka, India", "lat": "12.94", "lon": "bad"}
]`

func TestSearchParsesCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/search", r.URL.Path)
		require.Equal(t, "bangalore", r.URL.Query().Get("q"))
		require.Equal(t, "json", r.URL.Query().Get("format"))
		require.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Write([]byte(nominatimBody))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, nil)
	candidates, err := client.Search(context.Background(), "bangalore")
	require.NoError(t, err)

	// The entry with an unparsable coordinate is skipped.
	require.Len(t, candidates, 1)
	require.Equal(t, "228075683", candidates[0].ID)
	require.Equal(t, "Bengaluru, Karnataka, India", candidates[0].DisplayName)
	require.InDelta(t, 12.9767936, candidates[0].Coordinate.Lat, 1e-9)
	require.InDelta(t, 77.590082, candidates[0].Coordinate.Lng, 1e-9)
}

func TestSearchBlankQuerySkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, nil)
	for _, q := range []string{"", "   ", "\t\n"} {
		candidates, err := client.Search(context.Background(), q)
		require.NoError(t, err)
		require.Empty(t, candidates)
	}
	require.Zero(t, calls.Load())
}

func TestSearchUpstreamErrorPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, nil)
	_, err := client.Search(context.Background(), "bangalore")
	require.Error(t, err)
}

func TestSearchServesRepeatQueryFromCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Write([]byte(nominatimBody))
	}))
	defer srv.Close()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	cache := NewRedisCache(rdb, time.Minute, nil)

	client := NewClient(srv.URL, cache, nil)
	first, err := client.Search(context.Background(), "bangalore")
	require.NoError(t, err)
	second, err := client.Search(context.Background(), "bangalore")
	require.NoError(t, err)

	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, first, second)
	require.True(t, mr.Exists("geosearch:q:bangalore"))
}

func TestCacheEntryExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	cache := NewRedisCache(rdb, time.Minute, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(nominatimBody))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, cache, nil)
	_, err := client.Search(context.Background(), "Bangalore")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	_, ok := cache.Get(context.Background(), "Bangalore")
	require.False(t, ok)
}
