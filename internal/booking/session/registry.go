package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/riderfront/internal/booking/domain"
)

// Registry owns the live sessions and the shared realtime
// subscriptions. Outcome events arrive multiplexed by booking id; the
// registry fans them out and each session applies only its own.
type Registry struct {
	deps   Collaborators
	clock  domain.Clock
	logger *zap.Logger
	ttl    time.Duration

	mu         sync.Mutex
	sessions   map[uuid.UUID]*Coordinator
	registered map[string]struct{}
	disposers  []func()
	closed     bool
}

// NewRegistry subscribes the booking outcome handlers on the channel
// and returns the registry. Close releases the subscriptions.
func NewRegistry(deps Collaborators, clock domain.Clock, logger *zap.Logger, ttl time.Duration) *Registry {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	r := &Registry{
		deps:       deps,
		clock:      clock,
		logger:     logger,
		ttl:        ttl,
		sessions:   make(map[uuid.UUID]*Coordinator),
		registered: make(map[string]struct{}),
	}
	r.disposers = append(r.disposers,
		deps.Channel.On(domain.EventBookingAccepted, r.handleAccepted),
		deps.Channel.On(domain.EventBookingRejected, r.handleRejected),
	)
	return r
}

// Create opens a session for the rider, announcing the rider identity
// on the realtime channel the first time it is seen. The optional
// position is the one-shot geolocation fix taken at session start;
// when absent the pickup stays unset and the rider searches manually.
func (r *Registry) Create(ctx context.Context, riderID string, position *domain.Coordinate) (*Coordinator, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrSessionClosed
	}
	_, known := r.registered[riderID]
	if !known {
		r.registered[riderID] = struct{}{}
	}
	coord := NewCoordinator(riderID, r.deps, r.clock, r.logger.Named("session"))
	r.sessions[coord.ID()] = coord
	r.mu.Unlock()

	if !known {
		if err := r.deps.Channel.RegisterIdentity(ctx, riderID); err != nil {
			r.logger.Warn("identity registration failed",
				zap.String("rider_id", riderID), zap.Error(err))
		}
	}

	if position != nil {
		if err := coord.SetPickup(*position, ""); err != nil {
			r.logger.Warn("initial pickup rejected", zap.Error(err))
		}
	} else {
		r.logger.Info("no geolocation fix, pickup unset", zap.String("rider_id", riderID))
	}
	return coord, nil
}

// Get returns a session by id.
func (r *Registry) Get(id uuid.UUID) (*Coordinator, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	coord, ok := r.sessions[id]
	return coord, ok
}

// Remove tears down one session.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	coord, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		coord.Close()
	}
}

// Run sweeps idle sessions until the context ends.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	cutoff := r.clock.Now().Add(-r.ttl)
	var stale []*Coordinator
	r.mu.Lock()
	for id, coord := range r.sessions {
		if coord.IdleSince().Before(cutoff) {
			stale = append(stale, coord)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	for _, coord := range stale {
		r.logger.Info("evicting idle session", zap.String("session_id", coord.ID().String()))
		coord.Close()
	}
}

// Close disposes the realtime subscriptions and every session.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	disposers := r.disposers
	r.disposers = nil
	sessions := make([]*Coordinator, 0, len(r.sessions))
	for _, coord := range r.sessions {
		sessions = append(sessions, coord)
	}
	r.sessions = make(map[uuid.UUID]*Coordinator)
	r.mu.Unlock()

	for _, dispose := range disposers {
		dispose()
	}
	for _, coord := range sessions {
		coord.Close()
	}
}

func (r *Registry) handleAccepted(payload []byte) {
	var event struct {
		BookingID string `json:"bookingId"`
	}
	if err := json.Unmarshal(payload, &event); err != nil || event.BookingID == "" {
		r.logger.Warn("malformed bookingAccepted event", zap.Error(err))
		return
	}
	r.deliver(domain.Outcome{BookingID: event.BookingID, Accepted: true})
}

func (r *Registry) handleRejected(payload []byte) {
	var details map[string]any
	if err := json.Unmarshal(payload, &details); err != nil {
		r.logger.Warn("malformed bookingRejected event", zap.Error(err))
		return
	}
	bookingID, _ := details["bookingId"].(string)
	if bookingID == "" {
		r.logger.Info("booking rejected without id", zap.Any("details", details))
		return
	}
	r.deliver(domain.Outcome{BookingID: bookingID, Accepted: false, Details: details})
}

func (r *Registry) deliver(outcome domain.Outcome) {
	r.mu.Lock()
	sessions := make([]*Coordinator, 0, len(r.sessions))
	for _, coord := range r.sessions {
		sessions = append(sessions, coord)
	}
	r.mu.Unlock()
	for _, coord := range sessions {
		if coord.HandleOutcome(outcome) {
			return
		}
	}
}
