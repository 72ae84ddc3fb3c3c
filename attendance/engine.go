/*
Package attendance runs the daily check-in / check-out state machine.

STATES (per employee per local calendar day):

	NoSession --CheckIn--> CheckedIn --CheckOut--> CheckedOut (terminal)

RULES:
  - CheckIn on a day that already has a row fails with
    StateConflict(already_checked_in_today). It never overwrites.
  - Coordinates are optional but come in pairs. When given and the tenant
    enforces a geofence, a position outside it refuses the check-in with
    GeofenceViolationError and nothing is stored.
  - Lateness comes from the resolved schedule (shift, else tenant). Late
    minutes are counted from the schedule start, not from the end of the
    tolerance window.
  - CheckOut needs an open row for today, else StateConflict(no_open_session).
    The geofence is recorded but never refuses a check-out.
  - Employees without a tenant get no geofence, no lateness and a
    Monday to Friday week.

CONCURRENCY:
  Each transition runs in one WithTx holding the attendance lock for
  (employee, day): lock, read, decide, write. The store's unique index on
  (employee_id, work_date) backs the same invariant.

EVENTS:
  AttendanceCreated and AttendanceClosed are published after commit.

SEE ALSO:
  - geo: distance and messages
  - shift: schedule resolution and lateness
*/
package attendance

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/warp/attendance-ledger/clock"
	"github.com/warp/attendance-ledger/domain"
	"github.com/warp/attendance-ledger/geo"
	"github.com/warp/attendance-ledger/shift"
)

// Eligibility reason codes.
const (
	ReasonNotWorkingDay = "not_working_day"
	ReasonNoSession     = "no_session"
	ReasonOpenSession   = "open_session"
	ReasonCompleted     = "completed"
)

// Engine is the AttendanceEngine.
type Engine struct {
	Store  domain.TxStore
	Clock  clock.Clock
	Events domain.Publisher
	Logger *slog.Logger

	// StrictWorkingDays refuses check-ins on days outside the schedule.
	StrictWorkingDays bool
}

func New(store domain.TxStore, clk clock.Clock, events domain.Publisher, logger *slog.Logger) *Engine {
	if clk == nil {
		clk = clock.Real()
	}
	if events == nil {
		events = domain.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{Store: store, Clock: clk, Events: events, Logger: logger}
}

// Request is a check-in or check-out submission.
type Request struct {
	EmployeeID string
	Latitude   *float64
	Longitude  *float64
	Location   string
	Notes      string
}

func (r Request) point() (*geo.Point, error) {
	if r.EmployeeID == "" {
		return nil, domain.NewValidationError("employee_id", "is required")
	}
	if (r.Latitude == nil) != (r.Longitude == nil) {
		return nil, domain.NewValidationError("coordinates", "latitude and longitude must be given together")
	}
	if r.Latitude == nil {
		return nil, nil
	}
	p := geo.Point{Latitude: *r.Latitude, Longitude: *r.Longitude}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Result is the outcome of a transition.
type Result struct {
	Attendance   domain.Attendance
	Message      string
	IsLate       bool
	LateMinutes  int
	WorkDuration string
	Geofence     geo.Result
}

// Eligibility answers "what may this employee do right now".
type Eligibility struct {
	CanCheckIn  bool
	CanCheckOut bool
	Reason      string
	Message     string
	Attendance  *domain.Attendance
}

// =============================================================================
// CONTEXT RESOLUTION
// =============================================================================

// subject is everything a transition needs to know about the employee.
type subject struct {
	employee domain.Employee
	tenant   *domain.Tenant
	schedule shift.Schedule
	now      time.Time // in the tenant's location
	day      domain.Date
}

func (e *Engine) resolve(ctx context.Context, s domain.Store, employeeID string) (subject, error) {
	emp, err := s.GetEmployee(ctx, employeeID)
	if err != nil {
		return subject{}, err
	}

	var tenant *domain.Tenant
	if emp.TenantID != "" {
		if tenant, err = s.GetTenant(ctx, emp.TenantID); err != nil {
			return subject{}, err
		}
	}

	var sh *domain.Shift
	if emp.ShiftID != "" {
		sh, err = s.GetShift(ctx, emp.ShiftID)
		if err != nil && !domain.IsNotFound(err) {
			return subject{}, err
		}
		if domain.IsNotFound(err) {
			e.Logger.WarnContext(ctx, "assigned shift missing, using tenant defaults",
				"employee_id", emp.ID, "shift_id", emp.ShiftID)
			sh = nil
		}
	}

	loc := time.UTC
	if tenant != nil {
		loc = tenant.Location()
	}
	now := e.Clock.Now().In(loc)
	return subject{
		employee: *emp,
		tenant:   tenant,
		schedule: shift.Resolve(tenant, sh),
		now:      now,
		day:      domain.DateOf(now),
	}, nil
}

func (sub subject) fence() geo.Fence {
	if sub.tenant == nil {
		return geo.Fence{}
	}
	return geo.FenceFor(*sub.tenant)
}

// =============================================================================
// CHECK-IN
// =============================================================================

func (e *Engine) CheckIn(ctx context.Context, req Request) (Result, error) {
	pt, err := req.point()
	if err != nil {
		return Result{}, err
	}

	var (
		res   Result
		event domain.Event
	)
	err = e.Store.WithTx(ctx, func(tx domain.Store) error {
		sub, err := e.resolve(ctx, tx, req.EmployeeID)
		if err != nil {
			return err
		}
		if e.StrictWorkingDays && !sub.schedule.IsWorkingDay(sub.day) {
			return &domain.NotWorkingDayError{Date: sub.day}
		}
		if err := tx.Lock(ctx, domain.AttendanceLockKey(sub.employee.ID, sub.day)); err != nil {
			return err
		}
		existing, err := tx.FindAttendance(ctx, sub.employee.ID, sub.day)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.NewStateConflict(domain.ConflictAlreadyCheckedIn, "You have already checked in today")
		}

		fence := sub.fence()
		gr := geo.Result{Valid: true, WithinGeofence: true, Message: geo.MessageNotEnforced}
		if pt != nil {
			gr = geo.Check(*pt, fence)
			if !gr.Valid {
				return &domain.GeofenceViolationError{
					Distance: gr.DistanceMeters,
					Allowed:  fence.RadiusMeters,
					Message:  gr.Message,
				}
			}
		}

		late := sub.schedule.Evaluate(sub.now)
		status := domain.StatusPresent
		if late.IsLate {
			status = domain.StatusLate
		}

		a := domain.Attendance{
			ID:               domain.NewID(),
			TenantID:         sub.employee.TenantID,
			EmployeeID:       sub.employee.ID,
			ShiftID:          sub.schedule.ShiftID,
			WorkDate:         sub.day,
			CheckIn:          sub.now,
			CheckInLatitude:  req.Latitude,
			CheckInLongitude: req.Longitude,
			CheckInLocation:  req.Location,
			WithinGeofence:   gr.WithinGeofence,
			Status:           status,
			IsLate:           late.IsLate,
			LateMinutes:      late.LateMinutes,
			Notes:            req.Notes,
			CreatedAt:        sub.now,
		}
		if pt != nil {
			d := gr.DistanceMeters
			a.CheckInDistance = &d
		}
		if err := tx.CreateAttendance(ctx, a); err != nil {
			return err
		}

		msg := "Checked in successfully"
		if late.IsLate {
			msg = fmt.Sprintf("Checked in successfully (Late by %d minutes)", late.LateMinutes)
		}
		res = Result{
			Attendance:  a,
			Message:     msg,
			IsLate:      late.IsLate,
			LateMinutes: late.LateMinutes,
			Geofence:    gr,
		}
		event = domain.Event{
			Type:             domain.EventAttendanceCreated,
			TenantID:         a.TenantID,
			EmployeeID:       a.EmployeeID,
			At:               a.CheckIn,
			AttendanceID:     a.ID,
			IsLate:           a.IsLate,
			LateMinutes:      a.LateMinutes,
			WithinGeofence:   a.WithinGeofence,
			GeofenceEnforced: fence.Enforced && fence.Center != nil,
			DistanceMeters:   gr.DistanceMeters,
			Message:          msg,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	e.Logger.InfoContext(ctx, "checked in",
		"employee_id", res.Attendance.EmployeeID,
		"work_date", res.Attendance.WorkDate.String(),
		"late_minutes", res.LateMinutes)
	e.Events.Publish(event)
	return res, nil
}

// =============================================================================
// CHECK-OUT
// =============================================================================

func (e *Engine) CheckOut(ctx context.Context, req Request) (Result, error) {
	pt, err := req.point()
	if err != nil {
		return Result{}, err
	}

	var (
		res   Result
		event domain.Event
	)
	err = e.Store.WithTx(ctx, func(tx domain.Store) error {
		sub, err := e.resolve(ctx, tx, req.EmployeeID)
		if err != nil {
			return err
		}
		if err := tx.Lock(ctx, domain.AttendanceLockKey(sub.employee.ID, sub.day)); err != nil {
			return err
		}
		a, err := tx.FindAttendance(ctx, sub.employee.ID, sub.day)
		if err != nil {
			return err
		}
		if a == nil || !a.Open() {
			return domain.NewStateConflict(domain.ConflictNoOpenSession,
				"No check-in record found for today or already checked out")
		}

		fence := sub.fence()
		gr := geo.Result{Valid: true, WithinGeofence: true, Message: geo.MessageNotEnforced}
		if pt != nil {
			gr = geo.Check(*pt, fence)
			d, within := gr.DistanceMeters, gr.WithinGeofence
			a.CheckOutDistance = &d
			a.CheckOutWithinGeofence = &within
		}

		out := sub.now
		a.CheckOut = &out
		a.CheckOutLatitude = req.Latitude
		a.CheckOutLongitude = req.Longitude
		a.CheckOutLocation = req.Location
		a.ActualWorkHours = FormatWorkDuration(out.Sub(a.CheckIn))
		if req.Notes != "" {
			a.Notes += "\nCheck-out: " + req.Notes
		}
		if err := tx.UpdateAttendance(ctx, *a); err != nil {
			return err
		}

		res = Result{
			Attendance:   *a,
			Message:      "Checked out successfully",
			IsLate:       a.IsLate,
			LateMinutes:  a.LateMinutes,
			WorkDuration: a.ActualWorkHours,
			Geofence:     gr,
		}
		event = domain.Event{
			Type:             domain.EventAttendanceClosed,
			TenantID:         a.TenantID,
			EmployeeID:       a.EmployeeID,
			At:               out,
			AttendanceID:     a.ID,
			WithinGeofence:   gr.WithinGeofence,
			GeofenceEnforced: pt != nil && fence.Enforced && fence.Center != nil,
			DistanceMeters:   gr.DistanceMeters,
			Message:          res.Message,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if !res.Geofence.WithinGeofence {
		e.Logger.WarnContext(ctx, "check-out outside geofence",
			"employee_id", res.Attendance.EmployeeID, "distance_m", res.Geofence.DistanceMeters)
	}
	e.Logger.InfoContext(ctx, "checked out",
		"employee_id", res.Attendance.EmployeeID, "work_duration", res.WorkDuration)
	e.Events.Publish(event)
	return res, nil
}

// FormatWorkDuration renders whole minutes of d as HH:MM:SS. Seconds are
// always zero; hours are not wrapped at 24.
func FormatWorkDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d / time.Minute)
	return fmt.Sprintf("%02d:%02d:00", minutes/60, minutes%60)
}

// =============================================================================
// QUERIES
// =============================================================================

// CanCheckIn reports the allowed transition. A non-working day blocks
// check-in whatever the session state.
func (e *Engine) CanCheckIn(ctx context.Context, employeeID string) (Eligibility, error) {
	sub, err := e.resolve(ctx, e.Store, employeeID)
	if err != nil {
		return Eligibility{}, err
	}
	if !sub.schedule.IsWorkingDay(sub.day) {
		return Eligibility{Reason: ReasonNotWorkingDay, Message: "Today is not a working day"}, nil
	}

	a, err := e.Store.FindAttendance(ctx, employeeID, sub.day)
	if err != nil {
		return Eligibility{}, err
	}
	switch {
	case a == nil:
		return Eligibility{CanCheckIn: true, Reason: ReasonNoSession, Message: "You can check in"}, nil
	case a.Open():
		return Eligibility{CanCheckOut: true, Reason: ReasonOpenSession, Message: "You can check out", Attendance: a}, nil
	default:
		return Eligibility{Reason: ReasonCompleted, Message: "You have already completed attendance for today", Attendance: a}, nil
	}
}

// Today returns the employee's attendance for the current local day, or
// nil when there is none.
func (e *Engine) Today(ctx context.Context, employeeID string) (*domain.Attendance, error) {
	sub, err := e.resolve(ctx, e.Store, employeeID)
	if err != nil {
		return nil, err
	}
	return e.Store.FindAttendance(ctx, employeeID, sub.day)
}
