package session

import (
	"github.com/example/riderfront/internal/booking/domain"
)

// View is the read model served to the UI. Pending quote slots are
// reported explicitly so the client can keep its loading indicators.
type View struct {
	SessionID    string                   `json:"session_id"`
	State        domain.SessionState      `json:"state"`
	Pickup       *domain.Coordinate       `json:"pickup,omitempty"`
	Dropoff      *domain.Coordinate       `json:"dropoff,omitempty"`
	PickupText   string                   `json:"pickup_text,omitempty"`
	DropoffText  string                   `json:"dropoff_text,omitempty"`
	VehicleClass domain.VehicleClass      `json:"vehicle_class"`
	Route        *domain.RouteMetrics     `json:"route,omitempty"`
	Fare         *domain.FareQuote        `json:"fare,omitempty"`
	FarePending  bool                     `json:"fare_pending"`
	Drivers      []domain.DriverCandidate `json:"drivers"`
	DriversKnown bool                     `json:"drivers_known"`
	BookingID    string                   `json:"booking_id,omitempty"`
	Rejection    map[string]any           `json:"last_rejection,omitempty"`
	RedirectTo   string                   `json:"redirect_to,omitempty"`
}

// Snapshot returns a consistent copy of the session state.
func (c *Coordinator) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	view := View{
		SessionID:    c.id.String(),
		State:        c.state,
		Pickup:       c.pickup,
		Dropoff:      c.dropoff,
		PickupText:   c.pickupText,
		DropoffText:  c.dropoffText,
		VehicleClass: c.vehicle,
		Route:        c.route,
		Fare:         c.fare,
		FarePending:  c.quoteKey != nil && c.fare == nil,
		Drivers:      append([]domain.DriverCandidate(nil), c.drivers...),
		DriversKnown: c.driversLoaded,
		BookingID:    c.bookingID,
		Rejection:    c.lastRejection,
	}
	if view.Drivers == nil {
		view.Drivers = []domain.DriverCandidate{}
	}
	if c.outcome != nil && c.outcome.Accepted {
		view.RedirectTo = "/user/bookings/" + c.outcome.BookingID
	}
	return view
}
