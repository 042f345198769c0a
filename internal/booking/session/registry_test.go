package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/riderfront/internal/booking/domain"
	"github.com/example/riderfront/internal/realtime"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func newRegistryFixture(t *testing.T, clock domain.Clock, ttl time.Duration) (*Registry, *fixture) {
	t.Helper()
	f := &fixture{
		routes:   &stubRoutes{},
		fares:    &stubFares{},
		drivers:  &stubDrivers{},
		bookings: &stubBookings{},
		channel:  realtime.NewMemoryChannel(),
	}
	r := NewRegistry(Collaborators{
		Routes:   f.routes,
		Fares:    f.fares,
		Drivers:  f.drivers,
		Bookings: f.bookings,
		Channel:  f.channel,
	}, clock, nil, ttl)
	t.Cleanup(r.Close)
	return r, f
}

func TestCreateRegistersIdentityOncePerRider(t *testing.T) {
	r, f := newRegistryFixture(t, nil, 0)

	first, err := r.Create(context.Background(), "rider-1", nil)
	require.NoError(t, err)
	second, err := r.Create(context.Background(), "rider-1", nil)
	require.NoError(t, err)
	require.NotEqual(t, first.ID(), second.ID())

	require.Equal(t, []string{"rider-1"}, f.channel.Identities())

	_, err = r.Create(context.Background(), "rider-2", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"rider-1", "rider-2"}, f.channel.Identities())
}

func TestCreateWithGeolocationFixSetsPickup(t *testing.T) {
	r, _ := newRegistryFixture(t, nil, 0)

	coord, err := r.Create(context.Background(), "rider-1", &pointA)
	require.NoError(t, err)
	view := coord.Snapshot()
	require.Equal(t, domain.StateLocationsPartial, view.State)
	require.NotNil(t, view.Pickup)
	require.Equal(t, pointA, *view.Pickup)
}

func TestCreateWithoutFixLeavesPickupUnset(t *testing.T) {
	r, _ := newRegistryFixture(t, nil, 0)

	coord, err := r.Create(context.Background(), "rider-1", nil)
	require.NoError(t, err)
	view := coord.Snapshot()
	require.Equal(t, domain.StateIdle, view.State)
	require.Nil(t, view.Pickup)
}

func TestOutcomeEventsReachOwningSession(t *testing.T) {
	r, f := newRegistryFixture(t, nil, 0)
	coord, err := r.Create(context.Background(), "rider-1", nil)
	require.NoError(t, err)

	require.NoError(t, coord.SetPickup(pointA, "MG Road"))
	require.NoError(t, coord.SetDropoff(pointB, "Marina Beach"))
	require.Eventually(t, func() bool {
		return coord.Snapshot().State == domain.StateQuotesReady
	}, 2*time.Second, 5*time.Millisecond)
	bookingID, err := coord.RequestPickup(context.Background(), "token")
	require.NoError(t, err)

	require.NoError(t, f.channel.Deliver(domain.EventBookingRejected,
		map[string]any{"bookingId": bookingID, "reason": "busy"}))
	require.Equal(t, domain.StateDispatched, coord.Snapshot().State)
	require.NotNil(t, coord.Snapshot().Rejection)

	require.NoError(t, f.channel.Deliver(domain.EventBookingAccepted,
		map[string]any{"bookingId": bookingID}))
	require.Equal(t, domain.StateResolved, coord.Snapshot().State)
}

func TestMalformedOutcomeEventsIgnored(t *testing.T) {
	r, f := newRegistryFixture(t, nil, 0)
	coord, err := r.Create(context.Background(), "rider-1", nil)
	require.NoError(t, err)

	require.NoError(t, f.channel.Deliver(domain.EventBookingAccepted, map[string]any{}))
	require.NoError(t, f.channel.Deliver(domain.EventBookingRejected, map[string]any{"reason": "no id"}))
	require.Equal(t, domain.StateIdle, coord.Snapshot().State)
}

func TestRemoveClosesSession(t *testing.T) {
	r, _ := newRegistryFixture(t, nil, 0)
	coord, err := r.Create(context.Background(), "rider-1", nil)
	require.NoError(t, err)

	r.Remove(coord.ID())
	_, ok := r.Get(coord.ID())
	require.False(t, ok)
	require.ErrorIs(t, coord.SetPickup(pointA, ""), ErrSessionClosed)
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	clock := &manualClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	r, _ := newRegistryFixture(t, clock, 10*time.Minute)

	idle, err := r.Create(context.Background(), "rider-1", nil)
	require.NoError(t, err)
	active, err := r.Create(context.Background(), "rider-2", nil)
	require.NoError(t, err)

	clock.now = clock.now.Add(9 * time.Minute)
	require.NoError(t, active.SetPickup(pointA, ""))
	clock.now = clock.now.Add(2 * time.Minute)
	r.sweep()

	_, ok := r.Get(idle.ID())
	require.False(t, ok)
	_, ok = r.Get(active.ID())
	require.True(t, ok)
}

func TestCloseDisposesSubscriptions(t *testing.T) {
	r, f := newRegistryFixture(t, nil, 0)
	require.Equal(t, 1, f.channel.HandlerCount(domain.EventBookingAccepted))
	require.Equal(t, 1, f.channel.HandlerCount(domain.EventBookingRejected))

	r.Close()
	require.Zero(t, f.channel.HandlerCount(domain.EventBookingAccepted))
	require.Zero(t, f.channel.HandlerCount(domain.EventBookingRejected))

	_, err := r.Create(context.Background(), "rider-1", nil)
	require.ErrorIs(t, err, ErrSessionClosed)
}
