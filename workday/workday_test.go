package workday_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-ledger/domain"
	"github.com/warp/attendance-ledger/workday"
)

func date(s string) domain.Date { return domain.MustParseDate(s) }

func TestCountWorkingDays_SkipsWeekendsAndHolidays(t *testing.T) {
	// GIVEN: Mon 2025-03-10 .. Fri 2025-03-14 with a tenant holiday on Wed
	cal := workday.New(workday.HolidayList{
		{TenantID: "t1", Date: date("2025-03-12"), Active: true},
	})

	// WHEN
	n, err := cal.CountWorkingDays(context.Background(), date("2025-03-10"), date("2025-03-16"), "t1")

	// THEN: 5 weekdays minus the holiday; Sat/Sun ignored
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestCountWorkingDays_GrowsOnlyOnWorkingDays(t *testing.T) {
	// GIVEN: a range starting Wed 2025-03-05 with a holiday on Wed 2025-03-12
	cal := workday.New(workday.HolidayList{
		{TenantID: "t1", Date: date("2025-03-12"), Active: true},
	})
	ctx := context.Background()
	start := date("2025-03-05")

	prev, err := cal.CountWorkingDays(ctx, start, start, "t1")
	require.NoError(t, err)
	require.Equal(t, 1, prev)

	// WHEN: the end date is pushed forward one day at a time across two weekends
	for end := start.AddDays(1); !end.After(date("2025-03-18")); end = end.AddDays(1) {
		n, err := cal.CountWorkingDays(ctx, start, end, "t1")
		require.NoError(t, err)

		// THEN: the count never drops and grows by exactly one on a working day
		want := prev
		if !end.IsWeekend() && !end.Equal(date("2025-03-12")) {
			want++
		}
		assert.Equal(t, want, n, "end %s", end)
		prev = n
	}
	assert.Equal(t, 9, prev)
}

func TestCountWorkingDays_HolidayOfOtherTenantIgnored(t *testing.T) {
	cal := workday.New(workday.HolidayList{
		{TenantID: "t2", Date: date("2025-03-12"), Active: true},
	})

	n, err := cal.CountWorkingDays(context.Background(), date("2025-03-10"), date("2025-03-14"), "t1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestCountWorkingDays_RecurringGlobalHoliday(t *testing.T) {
	cal := workday.New(workday.HolidayList{
		{Name: "Christmas", Date: date("2000-12-25"), Recurring: true, Active: true},
	})

	n, err := cal.CountWorkingDays(context.Background(), date("2025-12-22"), date("2025-12-26"), "t1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestCountWorkingDays_SingleDay(t *testing.T) {
	cal := workday.New(nil)

	n, err := cal.CountWorkingDays(context.Background(), date("2025-03-10"), date("2025-03-10"), "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = cal.CountWorkingDays(context.Background(), date("2025-03-09"), date("2025-03-09"), "")
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a lone Sunday counts zero")
}

func TestCountWorkingDays_EndBeforeStart(t *testing.T) {
	cal := workday.New(nil)

	_, err := cal.CountWorkingDays(context.Background(), date("2025-03-14"), date("2025-03-10"), "t1")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

type failingCalendar struct{}

func (failingCalendar) IsHoliday(context.Context, domain.Date, string) (bool, error) {
	return false, errors.New("db down")
}

func TestCountWorkingDays_PropagatesCalendarErrors(t *testing.T) {
	cal := workday.New(failingCalendar{})

	_, err := cal.CountWorkingDays(context.Background(), date("2025-03-10"), date("2025-03-11"), "t1")
	assert.ErrorContains(t, err, "db down")
}
