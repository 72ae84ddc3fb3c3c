package domain

import "time"

// =============================================================================
// EVENTS - Emitted after commit, never inside a transaction
// =============================================================================

type EventType string

const (
	EventAttendanceCreated  EventType = "attendance.created"
	EventAttendanceClosed   EventType = "attendance.closed"
	EventLeaveSubmitted     EventType = "leave.submitted"
	EventLeaveRejected      EventType = "leave.rejected"
	EventLeaveDebited       EventType = "leave.debited"
	EventBalanceInitialized EventType = "balance.initialized"
	EventBalanceAdjusted    EventType = "balance.adjusted"
	EventCarryOverExpired   EventType = "balance.carry_over_expired"
)

// Event is a plain record of something that happened. Consumers decide
// whether it warrants a notification (e.g. late alerts only when IsLate
// and LateMinutes > 0, geofence alerts only on a check-out outside a fence
// the tenant enforces).
type Event struct {
	Type       EventType
	TenantID   string
	EmployeeID string
	At         time.Time

	AttendanceID     string
	IsLate           bool
	LateMinutes      int
	WithinGeofence   bool
	GeofenceEnforced bool
	DistanceMeters   float64

	LeaveID   string
	BalanceID string
	Days      Days
	Message   string
}

// Publisher receives committed events. Implementations must not block.
type Publisher interface {
	Publish(events ...Event)
}

// NopPublisher discards everything.
type NopPublisher struct{}

func (NopPublisher) Publish(...Event) {}

// WantsLateAlert reports whether an attendance event should raise a late alert.
func (e Event) WantsLateAlert() bool {
	return e.Type == EventAttendanceCreated && e.IsLate && e.LateMinutes > 0
}

// WantsGeofenceAlert reports whether an attendance event should raise a
// geofence alert. Check-ins outside an enforced fence are refused, so only a
// check-out can raise one.
func (e Event) WantsGeofenceAlert() bool {
	return e.Type == EventAttendanceClosed && !e.WithinGeofence && e.GeofenceEnforced
}
