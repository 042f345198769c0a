package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/example/riderfront/internal/booking/domain"
)

// PositionSnapshot is the latest known position of one vehicle.
type PositionSnapshot struct {
	DriverID  string            `json:"driver_id"`
	Point     domain.Coordinate `json:"point"`
	SpeedKmh  float64           `json:"speed_kmh"`
	AccuracyM float64           `json:"accuracy_m"`
	Updated   time.Time         `json:"updated"`
}

// Observer keeps the latest position snapshot per driver, fed by the
// ingest stream and read by the track-vehicle view.
type Observer struct {
	mu        sync.RWMutex
	snapshots map[string]PositionSnapshot
}

// NewObserver constructs an empty observer.
func NewObserver() *Observer {
	return &Observer{snapshots: make(map[string]PositionSnapshot)}
}

// Update stores the snapshot.
func (o *Observer) Update(_ context.Context, driverID string, point domain.Coordinate, speedKmh, accuracyM float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.snapshots[driverID] = PositionSnapshot{
		DriverID:  driverID,
		Point:     point,
		SpeedKmh:  speedKmh,
		AccuracyM: accuracyM,
		Updated:   time.Now().UTC(),
	}
}

// Snapshot returns the stored snapshot for the driver.
func (o *Observer) Snapshot(_ context.Context, driverID string) (PositionSnapshot, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	snap, ok := o.snapshots[driverID]
	return snap, ok
}

// All returns every stored snapshot.
func (o *Observer) All() []PositionSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	res := make([]PositionSnapshot, 0, len(o.snapshots))
	for _, snap := range o.snapshots {
		res = append(res, snap)
	}
	return res
}
