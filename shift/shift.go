// Package shift resolves which schedule applies to an employee and decides
// lateness against it.
//
// An active shift assigned to the employee wins; otherwise the tenant's
// defaults apply. Employees without a tenant get a Monday to Friday week
// and are never marked late.
package shift

import (
	"time"

	"github.com/warp/attendance-ledger/domain"
)

// Lateness is the outcome of comparing a check-in with a schedule.
type Lateness struct {
	IsLate      bool `json:"is_late"`
	LateMinutes int  `json:"late_minutes"`
}

// Evaluate marks checkIn late when its wall-clock time is strictly after
// start plus tolerance. LateMinutes counts whole minutes from start, not
// from the end of the tolerance window.
func Evaluate(checkIn time.Time, start domain.TimeOfDay, toleranceMinutes int) Lateness {
	tod := domain.TimeOfDayOf(checkIn)
	if tod <= start.AddMinutes(toleranceMinutes) {
		return Lateness{}
	}
	return Lateness{IsLate: true, LateMinutes: (tod.Seconds() - start.Seconds()) / 60}
}

// Source says where a schedule came from.
type Source string

const (
	SourceShift   Source = "shift"
	SourceTenant  Source = "tenant"
	SourceDefault Source = "default"
)

// Schedule is the effective working pattern for one employee.
type Schedule struct {
	ShiftID              string
	Source               Source
	Start                domain.TimeOfDay
	End                  domain.TimeOfDay
	LateToleranceMinutes int
	WorkingDays          []time.Weekday
}

// Resolve picks the schedule for an employee. tenant may be nil for
// super-scope accounts; s may be nil or inactive.
func Resolve(tenant *domain.Tenant, s *domain.Shift) Schedule {
	base := Schedule{Source: SourceDefault, WorkingDays: domain.DefaultWorkingDays()}
	if tenant != nil {
		base = Schedule{
			Source:               SourceTenant,
			Start:                tenant.WorkStart,
			End:                  tenant.WorkEnd,
			LateToleranceMinutes: tenant.LateToleranceMinutes,
			WorkingDays:          tenant.WorkingDays,
		}
		if len(base.WorkingDays) == 0 {
			base.WorkingDays = domain.DefaultWorkingDays()
		}
	}
	if s == nil || !s.Active {
		return base
	}

	out := Schedule{
		ShiftID:              s.ID,
		Source:               SourceShift,
		Start:                s.Start,
		End:                  s.End,
		LateToleranceMinutes: s.LateToleranceMinutes,
		WorkingDays:          s.WorkingDays,
	}
	if len(out.WorkingDays) == 0 {
		out.WorkingDays = base.WorkingDays
	}
	return out
}

// IsWorkingDay reports whether d is one of the schedule's weekdays.
func (s Schedule) IsWorkingDay(d domain.Date) bool {
	return domain.ContainsWeekday(s.WorkingDays, d.Weekday())
}

// Evaluate applies the schedule to a check-in instant that is already in
// the tenant's location. Default schedules never report lateness.
func (s Schedule) Evaluate(checkIn time.Time) Lateness {
	if s.Source == SourceDefault {
		return Lateness{}
	}
	return Evaluate(checkIn, s.Start, s.LateToleranceMinutes)
}
