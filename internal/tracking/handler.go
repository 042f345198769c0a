package tracking

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/example/riderfront/internal/booking/domain"
)

// HTTP serves the track-vehicle view.
type HTTP struct {
	observer *Observer
}

// NewHTTP creates the handler.
func NewHTTP(observer *Observer) *HTTP {
	return &HTTP{observer: observer}
}

// Router builds the chi router.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/track", h.listPositions)
	r.Get("/v1/track/{driverID}", h.trackDriver)
	return r
}

func (h *HTTP) listPositions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.observer.All())
}

func (h *HTTP) trackDriver(w http.ResponseWriter, r *http.Request) {
	driverID := chi.URLParam(r, "driverID")
	snap, ok := h.observer.Snapshot(r.Context(), driverID)
	if !ok {
		http.Error(w, "no position for driver", http.StatusNotFound)
		return
	}

	resp := map[string]any{"position": snap}
	if r.URL.Query().Has("lat") && r.URL.Query().Has("lng") {
		target := domain.Coordinate{
			Lat: parseQueryFloat(r, "lat"),
			Lng: parseQueryFloat(r, "lng"),
		}
		resp["arrival_eta_sec"] = ArrivalEstimate(snap, target).Seconds()
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseQueryFloat(r *http.Request, key string) float64 {
	v, _ := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
