// Package workday counts chargeable leave days in a date range.
//
// A day is chargeable when it is Monday to Friday and not an active
// holiday for the tenant (tenant-specific or global, one-off or
// recurring). Both ends of the range are included. Shift working-day
// patterns are deliberately not consulted here; leave is always charged
// on the standard week.
package workday

import (
	"context"
	"fmt"

	"github.com/warp/attendance-ledger/domain"
)

// Calculator walks a range one day at a time against a HolidayCalendar.
type Calculator struct {
	Holidays domain.HolidayCalendar
}

func New(holidays domain.HolidayCalendar) *Calculator {
	return &Calculator{Holidays: holidays}
}

// CountWorkingDays returns the number of chargeable days in [start, end].
func (c *Calculator) CountWorkingDays(ctx context.Context, start, end domain.Date, tenantID string) (int, error) {
	days, err := c.WorkingDays(ctx, start, end, tenantID)
	if err != nil {
		return 0, err
	}
	return len(days), nil
}

// WorkingDays lists the chargeable days in [start, end] in order.
func (c *Calculator) WorkingDays(ctx context.Context, start, end domain.Date, tenantID string) ([]domain.Date, error) {
	if start.IsZero() || end.IsZero() {
		return nil, domain.NewValidationError("dates", "start and end dates are required")
	}
	if end.Before(start) {
		return nil, domain.NewValidationError("end_date", "end date %s is before start date %s", end, start)
	}

	var out []domain.Date
	for d := start; !d.After(end); d = d.AddDays(1) {
		if d.IsWeekend() {
			continue
		}
		if c.Holidays != nil {
			holiday, err := c.Holidays.IsHoliday(ctx, d, tenantID)
			if err != nil {
				return nil, fmt.Errorf("holiday lookup for %s: %w", d, err)
			}
			if holiday {
				continue
			}
		}
		out = append(out, d)
	}
	return out, nil
}

// HolidayList is an in-memory HolidayCalendar.
type HolidayList []domain.Holiday

func (l HolidayList) IsHoliday(_ context.Context, day domain.Date, tenantID string) (bool, error) {
	for _, h := range l {
		if h.Matches(day, tenantID) {
			return true, nil
		}
	}
	return false, nil
}
