/*
Package geo decides whether a reported position is inside a tenant's geofence.

PURPOSE:
  Pure distance arithmetic plus the user-facing message. No I/O.

RULES:
  - Fence not enforced, or no office center configured: always valid,
    distance 0, "Geofencing not enforced".
  - Otherwise distance is the haversine great-circle distance in meters
    (mean earth radius 6,371,000 m), rounded to 2 decimals, and the
    position is valid when distance <= radius (boundary inclusive).

SEE ALSO:
  - attendance/engine.go: hard refusal at check-in, advisory at check-out
*/
package geo

import (
	"fmt"
	"math"
	"strconv"

	"github.com/warp/attendance-ledger/domain"
)

// EarthRadiusMeters is the mean earth radius used by Distance.
const EarthRadiusMeters = 6371000.0

const (
	MessageNotEnforced = "Geofencing not enforced"
	MessageValid       = "Location valid"
)

// Point is a WGS-84 coordinate in decimal degrees.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Validate rejects coordinates outside the legal ranges.
func (p Point) Validate() error {
	if math.IsNaN(p.Latitude) || p.Latitude < -90 || p.Latitude > 90 {
		return domain.NewValidationError("latitude", "must be between -90 and 90")
	}
	if math.IsNaN(p.Longitude) || p.Longitude < -180 || p.Longitude > 180 {
		return domain.NewValidationError("longitude", "must be between -180 and 180")
	}
	return nil
}

// Fence is an office center and radius. A nil Center disables the check.
type Fence struct {
	Center       *Point
	RadiusMeters int
	Enforced     bool
}

// FenceFor builds the fence configured on a tenant.
func FenceFor(t domain.Tenant) Fence {
	f := Fence{RadiusMeters: t.GeofenceRadiusMeters, Enforced: t.EnforceGeofence}
	if t.HasOffice() {
		f.Center = &Point{Latitude: *t.OfficeLatitude, Longitude: *t.OfficeLongitude}
	}
	return f
}

// Result is the outcome of a geofence check.
type Result struct {
	Valid          bool    `json:"valid"`
	WithinGeofence bool    `json:"within_geofence"`
	DistanceMeters float64 `json:"distance"`
	Message        string  `json:"message"`
}

// Check evaluates user against fence.
func Check(user Point, fence Fence) Result {
	if !fence.Enforced || fence.Center == nil {
		return Result{Valid: true, WithinGeofence: true, Message: MessageNotEnforced}
	}

	distance := round2(Distance(user, *fence.Center))
	valid := distance <= float64(fence.RadiusMeters)

	msg := MessageValid
	if !valid {
		msg = fmt.Sprintf("You are %sm away from office. Maximum allowed: %dm",
			strconv.FormatFloat(distance, 'f', -1, 64), fence.RadiusMeters)
	}
	return Result{Valid: valid, WithinGeofence: valid, DistanceMeters: distance, Message: msg}
}

// Distance returns the haversine distance between a and b in meters.
func Distance(a, b Point) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := radians(b.Latitude - a.Latitude)
	dLon := radians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
