package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/riderfront/internal/booking/domain"
)

// ErrSessionClosed is returned for operations on a torn-down session.
var ErrSessionClosed = errors.New("session closed")

// ErrSuperseded indicates the session inputs changed while a booking
// was being created; the booking is not dispatched.
var ErrSuperseded = errors.New("session changed during booking creation")

// Collaborators are the external services a session coordinates.
type Collaborators struct {
	Routes   domain.RouteResolver
	Fares    domain.FareEstimator
	Drivers  domain.DriverDiscovery
	Bookings domain.BookingCreator
	Channel  domain.RealtimeChannel
}

// routeKey identifies one route resolution request by its inputs.
type routeKey struct {
	Pickup  domain.Coordinate
	Dropoff domain.Coordinate
}

// quoteKey identifies one fare/driver fetch pair by the full input
// tuple. A response is applied only while its key is still current.
type quoteKey struct {
	Pickup      domain.Coordinate
	Dropoff     domain.Coordinate
	Vehicle     domain.VehicleClass
	DistanceKm  float64
	DurationMin float64
}

// Coordinator owns one rider booking flow end to end: location
// selection, route resolution, concurrent fare and driver lookup,
// booking creation and realtime dispatch, and outcome resolution.
// All state is mutated under c.mu by its own handlers; asynchronous
// fetch results are applied only when their input key still matches.
type Coordinator struct {
	id      uuid.UUID
	riderID string
	deps    Collaborators
	clock   domain.Clock
	logger  *zap.Logger

	// fetch lifetime; outlives individual HTTP requests.
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	state         domain.SessionState
	pickup        *domain.Coordinate
	dropoff       *domain.Coordinate
	pickupText    string
	dropoffText   string
	vehicle       domain.VehicleClass
	routeKey      *routeKey
	route         *domain.RouteMetrics
	quoteKey      *quoteKey
	fare          *domain.FareQuote
	drivers       []domain.DriverCandidate
	driversLoaded bool
	dispatching   bool
	bookingID     string
	outcome       *domain.Outcome
	lastRejection map[string]any
	createdAt     time.Time
	touchedAt     time.Time
	closed        bool
}

// NewCoordinator builds an idle session for the rider.
func NewCoordinator(riderID string, deps Collaborators, clock domain.Clock, logger *zap.Logger) *Coordinator {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	now := clock.Now()
	return &Coordinator{
		id:        uuid.New(),
		riderID:   riderID,
		deps:      deps,
		clock:     clock,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		state:     domain.StateIdle,
		vehicle:   domain.DefaultVehicleClass,
		createdAt: now,
		touchedAt: now,
	}
}

// ID returns the session identifier.
func (c *Coordinator) ID() uuid.UUID { return c.id }

// RiderID returns the owning rider.
func (c *Coordinator) RiderID() string { return c.riderID }

// SetPickup fixes the pickup endpoint from a selected place. Selecting
// the same coordinate again is a no-op; a changed coordinate
// invalidates the route and both quotes.
func (c *Coordinator) SetPickup(coord domain.Coordinate, text string) error {
	return c.setEndpoint(coord, text, true)
}

// SetDropoff fixes the dropoff endpoint from a selected place.
func (c *Coordinator) SetDropoff(coord domain.Coordinate, text string) error {
	return c.setEndpoint(coord, text, false)
}

func (c *Coordinator) setEndpoint(coord domain.Coordinate, text string, isPickup bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}
	if c.state == domain.StateResolved {
		return domain.ErrInvalidTransition
	}
	c.touchedAt = c.clock.Now()

	if isPickup {
		c.pickup = &coord
		c.pickupText = text
	} else {
		c.dropoff = &coord
		c.dropoffText = text
	}

	if c.pickup == nil || c.dropoff == nil {
		c.transition(domain.StateLocationsPartial)
		return nil
	}

	key := routeKey{Pickup: *c.pickup, Dropoff: *c.dropoff}
	if c.routeKey != nil && *c.routeKey == key {
		// Re-selecting an unchanged pair must not re-trigger.
		return nil
	}

	c.routeKey = &key
	c.route = nil
	c.resetQuotes()
	if c.bookingID != "" {
		c.logger.Info("dispatch abandoned by endpoint change",
			zap.String("session_id", c.id.String()), zap.String("booking_id", c.bookingID))
		c.bookingID = ""
	}
	c.transition(domain.StateLocationsResolved)
	go c.fetchRoute(key)
	return nil
}

// SetVehicleClass changes the vehicle category and, when a route is
// already resolved, re-triggers the quote pair for the new tuple.
func (c *Coordinator) SetVehicleClass(vehicle domain.VehicleClass) error {
	if !vehicle.Valid() {
		return fmt.Errorf("unknown vehicle class %q", vehicle)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrSessionClosed
	}
	if c.state == domain.StateResolved {
		return domain.ErrInvalidTransition
	}
	c.touchedAt = c.clock.Now()
	if c.vehicle == vehicle {
		return nil
	}
	c.vehicle = vehicle
	if c.route != nil {
		c.resetQuotes()
		c.triggerQuotes()
	}
	return nil
}

// fetchRoute resolves route metrics for key and applies them unless a
// newer endpoint pair superseded the request.
func (c *Coordinator) fetchRoute(key routeKey) {
	started := time.Now()
	metrics, err := c.deps.Routes.Resolve(c.ctx, key.Pickup, key.Dropoff)
	routeResolveSeconds.Observe(time.Since(started).Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.routeKey == nil || *c.routeKey != key {
		return
	}
	if err != nil {
		// The route stays unset; the rider recovers by changing an
		// endpoint, which issues a fresh request.
		c.logger.Error("route resolution failed",
			zap.String("session_id", c.id.String()), zap.Error(err))
		return
	}
	c.route = &metrics
	c.transition(domain.StateQuotesPending)
	c.triggerQuotes()
}

// triggerQuotes starts the concurrent fare and driver fetches for the
// current tuple. Caller must hold c.mu. Both fetches are keyed by the
// same tuple and may complete in either order.
func (c *Coordinator) triggerQuotes() {
	if c.pickup == nil || c.dropoff == nil || c.route == nil {
		return
	}
	key := quoteKey{
		Pickup:      *c.pickup,
		Dropoff:     *c.dropoff,
		Vehicle:     c.vehicle,
		DistanceKm:  c.route.DistanceKm,
		DurationMin: c.route.DurationMin,
	}
	if c.quoteKey != nil && *c.quoteKey == key {
		return
	}
	c.quoteKey = &key
	c.transition(domain.StateQuotesPending)
	go c.fetchFare(key)
	go c.fetchDrivers(key)
}

func (c *Coordinator) fetchFare(key quoteKey) {
	quote, err := c.deps.Fares.Estimate(c.ctx, key.Pickup, key.Dropoff, key.Vehicle,
		domain.RouteMetrics{DistanceKm: key.DistanceKm, DurationMin: key.DurationMin})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.quoteKey == nil || *c.quoteKey != key {
		quoteFetches.WithLabelValues("fare", "stale").Inc()
		return
	}
	if err != nil {
		quoteFetches.WithLabelValues("fare", "error").Inc()
		// No automatic retry: the quote stays pending until the rider
		// changes an input.
		c.logger.Error("fare estimate failed",
			zap.String("session_id", c.id.String()), zap.Error(err))
		return
	}
	quoteFetches.WithLabelValues("fare", "ok").Inc()
	c.fare = &quote
	c.transition(domain.StateQuotesReady)
}

func (c *Coordinator) fetchDrivers(key quoteKey) {
	candidates, err := c.deps.Drivers.Nearby(c.ctx, key.Pickup, key.Vehicle)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.quoteKey == nil || *c.quoteKey != key {
		quoteFetches.WithLabelValues("drivers", "stale").Inc()
		return
	}
	if err != nil {
		quoteFetches.WithLabelValues("drivers", "error").Inc()
		c.logger.Error("driver discovery failed",
			zap.String("session_id", c.id.String()), zap.Error(err))
		return
	}
	quoteFetches.WithLabelValues("drivers", "ok").Inc()
	c.drivers = candidates
	c.driversLoaded = true
	// Driver availability never gates QuotesReady; only the fare does.
}

// RequestPickup creates the booking and dispatches it to every known
// candidate driver. It is a guarded no-op outside QuotesReady. On
// backend failure the session stays in QuotesReady and nothing is
// emitted.
func (c *Coordinator) RequestPickup(ctx context.Context, token string) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrSessionClosed
	}
	if c.state != domain.StateQuotesReady || c.fare == nil || c.dispatching {
		c.mu.Unlock()
		return "", domain.ErrNotReady
	}
	c.dispatching = true
	c.touchedAt = c.clock.Now()
	key := *c.quoteKey
	req := domain.BookingRequest{
		DistanceKm:  c.route.DistanceKm,
		DurationSec: c.route.DurationMin * 60,
		Pickup:      *c.pickup,
		Dropoff:     *c.dropoff,
		Price:       c.fare.Amount,
		PickupText:  c.pickupText,
		DropoffText: c.dropoffText,
	}
	driverIDs := make([]string, 0, len(c.drivers))
	for _, d := range c.drivers {
		driverIDs = append(driverIDs, d.ID)
	}
	c.mu.Unlock()

	booking, err := c.deps.Bookings.Create(ctx, token, req)

	c.mu.Lock()
	c.dispatching = false
	if err != nil {
		c.mu.Unlock()
		dispatchTotal.WithLabelValues("create_failed").Inc()
		return "", fmt.Errorf("create booking: %w", err)
	}
	if c.closed || c.state != domain.StateQuotesReady || c.quoteKey == nil || *c.quoteKey != key {
		c.mu.Unlock()
		c.logger.Warn("booking superseded before dispatch",
			zap.String("session_id", c.id.String()), zap.String("booking_id", booking.ID))
		dispatchTotal.WithLabelValues("superseded").Inc()
		return "", ErrSuperseded
	}
	c.bookingID = booking.ID
	c.transition(domain.StateDispatched)
	c.mu.Unlock()

	if err := c.deps.Channel.Emit(c.ctx, domain.EventRequestPickup, map[string]any{
		"driverIds":   driverIDs,
		"bookingData": booking.Document,
	}); err != nil {
		// The booking exists backend-side; the rider keeps waiting and
		// drivers may still learn of it through a reconnect replay.
		c.logger.Error("pickup dispatch emit failed",
			zap.String("session_id", c.id.String()),
			zap.String("booking_id", booking.ID), zap.Error(err))
	}
	dispatchTotal.WithLabelValues("sent").Inc()
	c.logger.Info("pickup requested",
		zap.String("session_id", c.id.String()),
		zap.String("booking_id", booking.ID),
		zap.Int("driver_count", len(driverIDs)))
	return booking.ID, nil
}

// HandleOutcome applies a booking outcome event. Events that do not
// match the current dispatch are ignored. A rejection is recorded but
// does not terminate the dispatch; other drivers may still accept.
// Returns true when the event resolved the session.
func (c *Coordinator) HandleOutcome(outcome domain.Outcome) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state != domain.StateDispatched || c.bookingID == "" || outcome.BookingID != c.bookingID {
		return false
	}
	c.touchedAt = c.clock.Now()
	if !outcome.Accepted {
		dispatchTotal.WithLabelValues("rejected").Inc()
		c.lastRejection = outcome.Details
		c.logger.Info("booking rejected",
			zap.String("session_id", c.id.String()), zap.String("booking_id", outcome.BookingID))
		return false
	}
	dispatchTotal.WithLabelValues("accepted").Inc()
	c.outcome = &outcome
	c.transition(domain.StateResolved)
	c.logger.Info("booking accepted",
		zap.String("session_id", c.id.String()), zap.String("booking_id", outcome.BookingID))
	return true
}

// resetQuotes clears both quote results. Caller must hold c.mu.
func (c *Coordinator) resetQuotes() {
	c.quoteKey = nil
	c.fare = nil
	c.drivers = nil
	c.driversLoaded = false
}

// transition moves to next when legal. Illegal moves indicate a
// coordinator bug and are logged rather than propagated.
func (c *Coordinator) transition(next domain.SessionState) {
	if c.state == next {
		return
	}
	if !c.state.CanTransitionTo(next) {
		c.logger.Error("illegal session transition",
			zap.String("session_id", c.id.String()),
			zap.String("from", string(c.state)), zap.String("to", string(next)))
		return
	}
	c.state = next
}

// IdleSince reports the last time a rider action touched the session.
func (c *Coordinator) IdleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.touchedAt
}

// Close cancels outstanding fetches and rejects further operations.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
}
