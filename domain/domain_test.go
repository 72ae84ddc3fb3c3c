package domain_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-ledger/domain"
)

func TestDays_StringAlwaysTwoDecimals(t *testing.T) {
	assert.Equal(t, "12.00", domain.DaysFromInt(12).String())
	assert.Equal(t, "6.02", domain.MustParseDays("6.0164").Round2().String())

	b, err := json.Marshal(domain.MustParseDays("3"))
	require.NoError(t, err)
	assert.Equal(t, "3.00", string(b))
}

func TestDays_UnmarshalAcceptsQuotedAndBare(t *testing.T) {
	var a, b domain.Days
	require.NoError(t, json.Unmarshal([]byte(`1.5`), &a))
	require.NoError(t, json.Unmarshal([]byte(`"1.5"`), &b))
	assert.True(t, a.Equal(b))
}

func TestDaysDecoder_KeepsFirstError(t *testing.T) {
	var dec domain.DaysDecoder
	assert.Equal(t, "1.50", dec.Parse("used", "1.5").String())
	require.NoError(t, dec.Err)

	dec.Parse("pending", "x")
	dec.Parse("available", "")
	assert.ErrorContains(t, dec.Err, `invalid pending "x"`)
}

func TestDate_ArithmeticAcrossMonthEnd(t *testing.T) {
	d := domain.MustParseDate("2025-01-31")
	assert.Equal(t, "2025-02-01", d.AddDays(1).String())
	assert.Equal(t, 365, domain.YearWindow(2025).TotalDays())
	assert.Equal(t, 366, domain.YearWindow(2024).TotalDays())
	assert.True(t, domain.MustParseDate("2025-03-08").IsWeekend())
	assert.Equal(t, -1, domain.MustParseDate("2025-01-01").Compare(domain.MustParseDate("2025-01-02")))
}

func TestDateOf_UsesTimesLocation(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	instant := time.Date(2025, 3, 10, 20, 0, 0, 0, time.UTC) // 03:00 next day in WIB

	assert.Equal(t, "2025-03-10", domain.DateOf(instant).String())
	assert.Equal(t, "2025-03-11", domain.DateOf(instant.In(jakarta)).String())
}

func TestTimeOfDay_ParseBothLayouts(t *testing.T) {
	a, err := domain.ParseTimeOfDay("08:15")
	require.NoError(t, err)
	b, err := domain.ParseTimeOfDay("08:15:00")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "08:30:00", a.AddMinutes(15).String())

	_, err = domain.ParseTimeOfDay("8 o'clock")
	assert.Error(t, err)
}

func TestParseWeekdays(t *testing.T) {
	days, err := domain.ParseWeekdays([]string{"monday", "TUE", "Saturday"})
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday, time.Saturday}, days)

	_, err = domain.ParseWeekdays([]string{"funday"})
	assert.Error(t, err)
}

func TestLeaveBalance_RecomputeKeepsIdentity(t *testing.T) {
	b := domain.LeaveBalance{
		Entitled:    domain.DaysFromInt(12),
		CarriedOver: domain.DaysFromInt(3),
		Adjustment:  domain.MustParseDays("-1.5"),
		Used:        domain.DaysFromInt(4),
		Pending:     domain.DaysFromInt(1),
	}
	b.Recompute()

	assert.Equal(t, "8.50", b.Available.String())
	assert.True(t, b.Consistent())

	b.Used = b.Used.Add(domain.DaysFromInt(1))
	assert.False(t, b.Consistent(), "mutation without Recompute must be detectable")
}

func TestHoliday_Matches(t *testing.T) {
	global := domain.Holiday{Date: domain.MustParseDate("2020-12-25"), Recurring: true, Active: true}
	local := domain.Holiday{TenantID: "t1", Date: domain.MustParseDate("2025-03-12"), Active: true}
	inactive := domain.Holiday{Date: domain.MustParseDate("2025-03-13"), Active: false}

	assert.True(t, global.Matches(domain.MustParseDate("2025-12-25"), "t2"))
	assert.True(t, local.Matches(domain.MustParseDate("2025-03-12"), "t1"))
	assert.False(t, local.Matches(domain.MustParseDate("2025-03-12"), "t2"))
	assert.False(t, inactive.Matches(domain.MustParseDate("2025-03-13"), "t1"))
}

func TestErrors_KindsAndCodes(t *testing.T) {
	var err error = domain.NewStateConflict(domain.ConflictAlreadyCheckedIn, "You have already checked in today")

	assert.True(t, errors.Is(err, domain.ErrStateConflict))
	assert.True(t, domain.IsClientError(err))
	assert.Equal(t, "already_checked_in_today", domain.ReasonCode(err))

	wrapped := errors.Join(errors.New("context"), &domain.PolicyNotFoundError{Year: 2025})
	assert.True(t, errors.Is(wrapped, domain.ErrPolicyMissing))
	assert.Equal(t, "policy_missing", domain.ReasonCode(wrapped))

	assert.Equal(t, "internal_error", domain.ReasonCode(errors.New("boom")))
	assert.True(t, domain.IsNotFound(domain.NewNotFound("employee", "e1")))
}
