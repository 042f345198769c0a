package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/example/riderfront/internal/auth"
	"github.com/example/riderfront/internal/booking/domain"
	"github.com/example/riderfront/internal/booking/session"
)

// HTTP exposes the rider session API.
type HTTP struct {
	registry      *session.Registry
	places        domain.PlaceSearcher
	searchLimit   func(http.Handler) http.Handler
	dispatchLimit func(http.Handler) http.Handler
}

// Option customizes the handler.
type Option func(*HTTP)

// WithSearchLimit rate-limits the place-search proxy.
func WithSearchLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *HTTP) { h.searchLimit = mw }
}

// WithDispatchLimit rate-limits pickup dispatch.
func WithDispatchLimit(mw func(http.Handler) http.Handler) Option {
	return func(h *HTTP) { h.dispatchLimit = mw }
}

// NewHTTP constructs the handler.
func NewHTTP(registry *session.Registry, places domain.PlaceSearcher, opts ...Option) *HTTP {
	h := &HTTP{registry: registry, places: places}
	for _, opt := range opts {
		opt(h)
	}
	if h.searchLimit == nil {
		h.searchLimit = passthrough
	}
	if h.dispatchLimit == nil {
		h.dispatchLimit = passthrough
	}
	return h
}

func passthrough(next http.Handler) http.Handler { return next }

// Router builds the chi router with all endpoints and middlewares.
// Authentication middleware is applied by the caller so tests can
// exercise the routes directly.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.With(h.searchLimit).Get("/v1/places", h.searchPlaces)
	r.Get("/v1/me", h.me)
	r.Post("/v1/sessions", h.createSession)
	r.Get("/v1/sessions/{id}", h.getSession)
	r.Put("/v1/sessions/{id}/pickup", h.setPickup)
	r.Put("/v1/sessions/{id}/dropoff", h.setDropoff)
	r.Put("/v1/sessions/{id}/vehicle", h.setVehicle)
	r.With(h.dispatchLimit).Post("/v1/sessions/{id}/request", h.requestPickup)
	r.Delete("/v1/sessions/{id}", h.deleteSession)
	return r
}

func (h *HTTP) searchPlaces(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.places.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		http.Error(w, "place search unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, candidates)
}

func (h *HTTP) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"subject": claims.Subject,
		"role":    claims.Role,
		"name":    claims.Name,
	})
}

type createSessionRequest struct {
	// Position is the one-shot geolocation fix; omitted when the
	// browser denied or failed the lookup.
	Position *domain.Coordinate `json:"position,omitempty"`
}

func (h *HTTP) createSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	var payload createSessionRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	coord, err := h.registry.Create(r.Context(), claims.Subject, payload.Position)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, coord.Snapshot())
}

func (h *HTTP) getSession(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, coord.Snapshot())
}

type endpointRequest struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Text string  `json:"text"`
}

func (h *HTTP) setPickup(w http.ResponseWriter, r *http.Request) {
	h.setEndpoint(w, r, true)
}

func (h *HTTP) setDropoff(w http.ResponseWriter, r *http.Request) {
	h.setEndpoint(w, r, false)
}

func (h *HTTP) setEndpoint(w http.ResponseWriter, r *http.Request, isPickup bool) {
	coord, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload endpointRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	point := domain.Coordinate{Lat: payload.Lat, Lng: payload.Lng}
	var err error
	if isPickup {
		err = coord.SetPickup(point, payload.Text)
	} else {
		err = coord.SetDropoff(point, payload.Text)
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, coord.Snapshot())
}

func (h *HTTP) setVehicle(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.session(w, r)
	if !ok {
		return
	}
	var payload struct {
		VehicleClass domain.VehicleClass `json:"vehicle_class"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := coord.SetVehicleClass(payload.VehicleClass); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, coord.Snapshot())
}

func (h *HTTP) requestPickup(w http.ResponseWriter, r *http.Request) {
	coord, ok := h.session(w, r)
	if !ok {
		return
	}
	token := auth.TokenFromHeader(r.Header.Get("Authorization"))
	bookingID, err := coord.RequestPickup(r.Context(), token)
	switch {
	case errors.Is(err, domain.ErrNotReady):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case errors.Is(err, session.ErrSuperseded):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, "booking creation failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"booking_id": bookingID})
}

func (h *HTTP) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	h.registry.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

// session loads the coordinator addressed by the request, enforcing
// rider ownership.
func (h *HTTP) session(w http.ResponseWriter, r *http.Request) (*session.Coordinator, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return nil, false
	}
	coord, ok := h.registry.Get(id)
	if !ok {
		http.Error(w, "session not found", http.StatusNotFound)
		return nil, false
	}
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims.Subject != coord.RiderID() {
		http.Error(w, "forbidden", http.StatusForbidden)
		return nil, false
	}
	return coord, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
