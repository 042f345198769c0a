package domain

import (
	"context"
	"errors"
	"time"
)

// SessionState enumerates the booking session lifecycle.
type SessionState string

const (
	StateIdle              SessionState = "IDLE"
	StateLocationsPartial  SessionState = "LOCATIONS_PARTIAL"
	StateLocationsResolved SessionState = "LOCATIONS_RESOLVED"
	StateQuotesPending     SessionState = "QUOTES_PENDING"
	StateQuotesReady       SessionState = "QUOTES_READY"
	StateDispatched        SessionState = "DISPATCHED"
	StateResolved          SessionState = "RESOLVED"
)

var ErrInvalidTransition = errors.New("invalid session state transition")

// ErrNotReady is returned when a pickup request arrives while the
// session has no confirmed fare quote.
var ErrNotReady = errors.New("session is not ready for dispatch")

var allowedTransitions = map[SessionState][]SessionState{
	StateIdle:              {StateLocationsPartial, StateLocationsResolved},
	StateLocationsPartial:  {StateLocationsResolved},
	StateLocationsResolved: {StateQuotesPending, StateLocationsPartial},
	StateQuotesPending:     {StateQuotesReady, StateLocationsResolved, StateLocationsPartial},
	StateQuotesReady:       {StateDispatched, StateQuotesPending, StateLocationsResolved, StateLocationsPartial},
	StateDispatched:        {StateResolved, StateQuotesPending, StateLocationsResolved, StateLocationsPartial},
}

// CanTransitionTo reports whether moving to next is a legal transition.
func (s SessionState) CanTransitionTo(next SessionState) bool {
	if s == next {
		return true
	}
	for _, candidate := range allowedTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Coordinate is a resolved WGS84 position. Immutable once selected.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PlaceCandidate is one ranked result for a free-text location query.
type PlaceCandidate struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"display_name"`
	Coordinate  Coordinate `json:"coordinate"`
}

// RouteMetrics holds the resolved route figures at display precision:
// kilometers and minutes, both rounded to two decimals.
type RouteMetrics struct {
	DistanceKm  float64 `json:"distance_km"`
	DurationMin float64 `json:"duration_min"`
}

// VehicleClass is the rider-selected vehicle category.
type VehicleClass string

const (
	VehicleCar        VehicleClass = "car"
	VehicleTruck      VehicleClass = "truck"
	VehicleBus        VehicleClass = "bus"
	VehicleMotorcycle VehicleClass = "motorcycle"
)

// DefaultVehicleClass matches the pre-selected option in the UI.
const DefaultVehicleClass = VehicleCar

// Valid reports whether the class is one of the known categories.
func (v VehicleClass) Valid() bool {
	switch v {
	case VehicleCar, VehicleTruck, VehicleBus, VehicleMotorcycle:
		return true
	default:
		return false
	}
}

// FareQuote is the backend-computed price for one input tuple.
type FareQuote struct {
	Amount float64 `json:"amount"`
}

// DriverCandidate is a nearby driver eligible for dispatch.
type DriverCandidate struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	VehicleType string  `json:"vehicle_type"`
	DistanceKm  float64 `json:"distance_km"`
}

// BookingRequest is the payload submitted to the booking backend.
// Duration is carried in seconds; the route metrics keep minutes.
type BookingRequest struct {
	DistanceKm  float64
	DurationSec float64
	Pickup      Coordinate
	Dropoff     Coordinate
	Price       float64
	PickupText  string
	DropoffText string
}

// Booking is the persisted booking returned by the backend. Document
// carries the raw backend record so it can be relayed to drivers
// untouched.
type Booking struct {
	ID       string
	Document map[string]any
}

// Outcome is the terminal accept/reject event for a dispatch.
type Outcome struct {
	BookingID string
	Accepted  bool
	Details   map[string]any
}

// PlaceSearcher resolves free text into ranked place candidates.
type PlaceSearcher interface {
	Search(ctx context.Context, query string) ([]PlaceCandidate, error)
}

// RouteResolver computes route metrics between two coordinates.
type RouteResolver interface {
	Resolve(ctx context.Context, pickup, dropoff Coordinate) (RouteMetrics, error)
}

// FareEstimator requests a price for a fully specified input tuple.
type FareEstimator interface {
	Estimate(ctx context.Context, pickup, dropoff Coordinate, vehicle VehicleClass, metrics RouteMetrics) (FareQuote, error)
}

// DriverDiscovery lists candidate drivers near the pickup point.
type DriverDiscovery interface {
	Nearby(ctx context.Context, pickup Coordinate, vehicle VehicleClass) ([]DriverCandidate, error)
}

// BookingCreator persists a booking with the rider's bearer token.
type BookingCreator interface {
	Create(ctx context.Context, token string, req BookingRequest) (Booking, error)
}

// RealtimeChannel is the bidirectional event transport shared by all
// sessions. On returns a disposer that must be invoked exactly once
// when the owning session ends.
type RealtimeChannel interface {
	Connect(ctx context.Context) error
	RegisterIdentity(ctx context.Context, userID string) error
	Emit(ctx context.Context, event string, payload any) error
	On(event string, handler func(payload []byte)) (unsubscribe func())
}

// Realtime event names exchanged with the dispatch backend.
const (
	EventRegisterUser    = "registerUser"
	EventRequestPickup   = "requestPickup"
	EventBookingAccepted = "bookingAccepted"
	EventBookingRejected = "bookingRejected"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
