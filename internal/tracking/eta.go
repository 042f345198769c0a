package tracking

import (
	"math"
	"time"

	"github.com/example/riderfront/internal/booking/domain"
)

// fallbackSpeedKmh is used when the vehicle reports no speed.
const fallbackSpeedKmh = 30.0

// ArrivalEstimate approximates how long the driver needs to reach the
// target point, using the reported speed when present.
func ArrivalEstimate(snap PositionSnapshot, target domain.Coordinate) time.Duration {
	speed := snap.SpeedKmh
	if speed <= 0 {
		speed = fallbackSpeedKmh
	}
	meterPerSecond := speed * 1000.0 / 3600.0
	dist := haversine(snap.Point, target)
	return time.Duration(dist/meterPerSecond) * time.Second
}

func haversine(a, b domain.Coordinate) float64 {
	const earthRadius = 6371000.0
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dlat := toRadians(b.Lat - a.Lat)
	dlon := toRadians(b.Lng - a.Lng)

	sinDlat := math.Sin(dlat / 2)
	sinDlon := math.Sin(dlon / 2)
	aa := sinDlat*sinDlat + math.Cos(lat1)*math.Cos(lat2)*sinDlon*sinDlon
	c := 2 * math.Atan2(math.Sqrt(aa), math.Sqrt(1-aa))
	return earthRadius * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
