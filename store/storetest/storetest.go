// Package storetest is a conformance suite run against every domain.TxStore
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-ledger/domain"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) domain.TxStore

var errBoom = errors.New("boom")

// Run executes the suite. Each case gets a fresh store.
func Run(t *testing.T, newStore Factory) {
	cases := []struct {
		name string
		fn   func(t *testing.T, s domain.TxStore)
	}{
		{"Directory", testDirectory},
		{"AttendanceUniquePerDay", testAttendanceUniquePerDay},
		{"AttendanceUpdate", testAttendanceUpdate},
		{"LeaveTypeCodes", testLeaveTypeCodes},
		{"PolicyLookup", testPolicyLookup},
		{"BalanceRoundTrip", testBalanceRoundTrip},
		{"TransactionsOrdered", testTransactionsOrdered},
		{"LeaveRoundTrip", testLeaveRoundTrip},
		{"Holidays", testHolidays},
		{"RollbackOnError", testRollbackOnError},
		{"NotFound", testNotFound},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := newStore(t)
			seedDirectory(t, s)
			c.fn(t, s)
		})
	}
}

func seedDirectory(t *testing.T, s domain.TxStore) {
	t.Helper()
	ctx := context.Background()
	lat, lng := -6.2, 106.8167
	tenant := domain.NewTenant("t1", "Acme")
	tenant.OfficeLatitude, tenant.OfficeLongitude = &lat, &lng
	tenant.EnforceGeofence = true
	tenant.Timezone = "Asia/Jakarta"
	require.NoError(t, s.SaveTenant(ctx, tenant))

	breakStart := domain.MustTimeOfDay("12:00")
	require.NoError(t, s.SaveShift(ctx, domain.Shift{
		ID: "night", TenantID: "t1", Name: "Night", Start: domain.MustTimeOfDay("22:00"), End: domain.MustTimeOfDay("06:00"),
		WorkingDays: []time.Weekday{time.Saturday, time.Sunday}, LateToleranceMinutes: 5, BreakStart: &breakStart, Active: true,
	}))
	require.NoError(t, s.SaveEmployee(ctx, domain.Employee{
		ID: "e1", TenantID: "t1", ShiftID: "night", Name: "Ana", Email: "ana@example.com",
		JoinedOn: domain.MustParseDate("2023-05-01"), Active: true,
	}))
	require.NoError(t, s.SaveEmployee(ctx, domain.Employee{ID: "root", Name: "Root", Active: true}))
	require.NoError(t, s.SaveLeaveType(ctx, domain.LeaveType{
		ID: "lt-annual", TenantID: "t1", Name: "Annual", Code: "annual", AnnualQuota: domain.DaysFromInt(12),
		RequiresApproval: true, Paid: true, Active: true, CarryOver: domain.DefaultCarryOverRule(),
	}))
}

func testDirectory(t *testing.T, s domain.TxStore) {
	ctx := context.Background()

	tenant, err := s.GetTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "Acme", tenant.Name)
	assert.Equal(t, domain.MustTimeOfDay("08:00"), tenant.WorkStart)
	assert.Equal(t, domain.DefaultWorkingDays(), tenant.WorkingDays)
	require.True(t, tenant.HasOffice())
	assert.InDelta(t, -6.2, *tenant.OfficeLatitude, 1e-9)
	assert.True(t, tenant.EnforceGeofence)
	assert.Equal(t, "Asia/Jakarta", tenant.Timezone)

	shift, err := s.GetShift(ctx, "night")
	require.NoError(t, err)
	assert.Equal(t, domain.MustTimeOfDay("22:00"), shift.Start)
	assert.Equal(t, []time.Weekday{time.Saturday, time.Sunday}, shift.WorkingDays)
	require.NotNil(t, shift.BreakStart)
	assert.Equal(t, domain.MustTimeOfDay("12:00"), *shift.BreakStart)
	assert.Nil(t, shift.BreakEnd)

	emp, err := s.GetEmployee(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, "night", emp.ShiftID)
	assert.Equal(t, "2023-05-01", emp.JoinedOn.String())

	root, err := s.GetEmployee(ctx, "root")
	require.NoError(t, err)
	assert.Equal(t, "", root.TenantID)
	assert.True(t, root.JoinedOn.IsZero())
}

func attendance(day string) domain.Attendance {
	dist := 11.12
	return domain.Attendance{
		ID: domain.NewID(), TenantID: "t1", EmployeeID: "e1", ShiftID: "night",
		WorkDate: domain.MustParseDate(day), CheckIn: time.Date(2025, 3, 10, 8, 16, 0, 0, time.UTC),
		CheckInDistance: &dist, WithinGeofence: true, Status: domain.StatusLate, IsLate: true, LateMinutes: 16,
		CreatedAt: time.Date(2025, 3, 10, 8, 16, 0, 0, time.UTC),
	}
}

func testAttendanceUniquePerDay(t *testing.T, s domain.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateAttendance(ctx, attendance("2025-03-10")))

	err := s.CreateAttendance(ctx, attendance("2025-03-10"))
	var conflict *domain.StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, domain.ConflictAlreadyCheckedIn, conflict.Reason)

	assert.NoError(t, s.CreateAttendance(ctx, attendance("2025-03-11")), "next day is a new row")
}

func testAttendanceUpdate(t *testing.T, s domain.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateAttendance(ctx, attendance("2025-03-10")))

	found, err := s.FindAttendance(ctx, "e1", domain.MustParseDate("2025-03-10"))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.True(t, found.Open())
	assert.Equal(t, 16, found.LateMinutes)
	assert.InDelta(t, 11.12, *found.CheckInDistance, 1e-9)

	out := time.Date(2025, 3, 10, 16, 47, 0, 0, time.UTC)
	within := false
	found.CheckOut = &out
	found.CheckOutWithinGeofence = &within
	found.ActualWorkHours = "08:31:00"
	found.Notes = "\nCheck-out: done"
	require.NoError(t, s.UpdateAttendance(ctx, *found))

	closed, err := s.FindAttendance(ctx, "e1", domain.MustParseDate("2025-03-10"))
	require.NoError(t, err)
	require.NotNil(t, closed.CheckOut)
	assert.True(t, closed.CheckOut.Equal(out))
	assert.Equal(t, "08:31:00", closed.ActualWorkHours)
	require.NotNil(t, closed.CheckOutWithinGeofence)
	assert.False(t, *closed.CheckOutWithinGeofence)

	none, err := s.FindAttendance(ctx, "e1", domain.MustParseDate("2025-03-12"))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func testLeaveTypeCodes(t *testing.T, s domain.TxStore) {
	ctx := context.Background()

	lt, err := s.FindLeaveTypeByCode(ctx, "t1", " Annual ")
	require.NoError(t, err)
	require.NotNil(t, lt)
	assert.Equal(t, "ANNUAL", lt.Code)
	assert.Equal(t, "12.00", lt.AnnualQuota.String())
	assert.Equal(t, "5.00", lt.CarryOver.MaxDays.String())

	err = s.CreateLeaveType(ctx, domain.LeaveType{ID: "dup", TenantID: "t1", Name: "Dup", Code: "ANNUAL", Active: true})
	assert.ErrorIs(t, err, domain.ErrStateConflict)

	require.NoError(t, s.CreateLeaveType(ctx, domain.LeaveType{ID: "other", TenantID: "t2", Name: "Annual", Code: "ANNUAL", Active: true}))
	require.NoError(t, s.CreateLeaveType(ctx, domain.LeaveType{ID: "old", TenantID: "t1", Name: "Old", Code: "OLD"}))

	active, err := s.ListLeaveTypes(ctx, "t1", true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "lt-annual", active[0].ID)

	all, err := s.ListLeaveTypes(ctx, "t1", false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func testPolicyLookup(t *testing.T, s domain.TxStore) {
	ctx := context.Background()
	expiry := domain.MustParseDate("2025-03-31")
	require.NoError(t, s.SaveLeavePolicy(ctx, domain.LeavePolicy{
		ID: "p-2025", TenantID: "t1", Year: 2025, Window: domain.YearWindow(2025), ProRateNewEmployees: true,
		MaxCarryOverDays: domain.DaysFromInt(3), CarryOverExpiry: &expiry, Active: true,
	}))

	p, err := s.FindPolicy(ctx, "t1", 2025)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "2025-12-31", p.Window.End.String())
	assert.Equal(t, "3.00", p.MaxCarryOverDays.String())
	require.NotNil(t, p.CarryOverExpiry)
	assert.Equal(t, "2025-03-31", p.CarryOverExpiry.String())

	covering, err := s.FindPolicyCovering(ctx, "t1", domain.MustParseDate("2025-07-02"))
	require.NoError(t, err)
	require.NotNil(t, covering)
	assert.Equal(t, 2025, covering.Year)

	missing, err := s.FindPolicy(ctx, "t1", 2024)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func balance() domain.LeaveBalance {
	b := domain.LeaveBalance{
		ID: "b1", TenantID: "t1", EmployeeID: "e1", LeaveTypeID: "lt-annual", PolicyYear: 2025,
		Entitled: domain.MustParseDays("6.02"), CarriedOver: domain.DaysFromInt(3), Used: domain.ZeroDays(),
		Pending: domain.ZeroDays(), Adjustment: domain.ZeroDays(),
		LastCalculatedAt:   time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC),
		CalculationDetails: map[string]string{"method": "pro_rata"},
	}
	b.Recompute()
	return b
}

func testBalanceRoundTrip(t *testing.T, s domain.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateBalance(ctx, balance()))
	assert.ErrorIs(t, s.CreateBalance(ctx, func() domain.LeaveBalance { b := balance(); b.ID = "b2"; return b }()), domain.ErrStateConflict)

	got, err := s.FindBalance(ctx, domain.BalanceKey{EmployeeID: "e1", LeaveTypeID: "lt-annual", PolicyYear: 2025})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "9.02", got.Available.String())
	assert.True(t, got.Consistent())
	assert.Equal(t, "pro_rata", got.CalculationDetails["method"])

	withCarry, err := s.ListBalancesWithCarryOver(ctx)
	require.NoError(t, err)
	require.Len(t, withCarry, 1)

	expired := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	got.CarriedOver = domain.ZeroDays()
	got.CarryOverExpiredAt = &expired
	got.Recompute()
	require.NoError(t, s.UpdateBalance(ctx, *got))

	withCarry, err = s.ListBalancesWithCarryOver(ctx)
	require.NoError(t, err)
	assert.Empty(t, withCarry)

	listed, err := s.ListBalances(ctx, "e1", 2025)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "6.02", listed[0].Available.String())
}

func testTransactionsOrdered(t *testing.T, s domain.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.CreateBalance(ctx, balance()))

	at := time.Date(2025, 3, 20, 9, 0, 0, 0, time.UTC)
	for i, reason := range []string{domain.ReasonAnnualEntitlement, domain.ReasonCarryOver, domain.ReasonLeaveTaken} {
		typ := domain.TxCredit
		if reason == domain.ReasonLeaveTaken {
			typ = domain.TxDebit
		}
		require.NoError(t, s.AppendTransaction(ctx, domain.LeaveTransaction{
			ID: domain.NewID(), TenantID: "t1", BalanceID: "b1", EmployeeID: "e1", LeaveTypeID: "lt-annual",
			Type: typ, Days: domain.DaysFromInt(i + 1), Reason: reason, CreatedBy: "system", CreatedAt: at,
			Metadata: map[string]string{"n": reason},
		}))
	}

	txs, err := s.ListTransactions(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, txs, 3)
	assert.Equal(t, domain.ReasonAnnualEntitlement, txs[0].Reason)
	assert.Equal(t, domain.ReasonLeaveTaken, txs[2].Reason)
	assert.Equal(t, domain.TxDebit, txs[2].Type)
	assert.Equal(t, "3.00", txs[2].Days.String())
	assert.Equal(t, domain.ReasonCarryOver, txs[1].Metadata["n"])

	none, err := s.ListTransactions(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testLeaveRoundTrip(t *testing.T, s domain.TxStore) {
	ctx := context.Background()
	l := domain.Leave{
		ID: "l1", TenantID: "t1", EmployeeID: "e1", LeaveTypeID: "lt-annual", TypeCode: "ANNUAL",
		StartDate: domain.MustParseDate("2025-03-11"), EndDate: domain.MustParseDate("2025-03-15"),
		Status: domain.LeavePending, CalculatedDays: domain.DaysFromInt(3),
		CreatedAt: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.CreateLeave(ctx, l))

	decided := time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)
	l.Status = domain.LeaveApproved
	l.DeductedFromBalance = true
	l.ApprovedBy = "manager-1"
	l.DecidedAt = &decided
	require.NoError(t, s.UpdateLeave(ctx, l))

	got, err := s.GetLeave(ctx, "l1")
	require.NoError(t, err)
	assert.Equal(t, domain.LeaveApproved, got.Status)
	assert.True(t, got.DeductedFromBalance)
	assert.Equal(t, "manager-1", got.ApprovedBy)
	assert.Equal(t, "2025-03-15", got.EndDate.String())
	assert.Equal(t, "3.00", got.CalculatedDays.String())
	require.NotNil(t, got.DecidedAt)
	assert.True(t, got.DecidedAt.Equal(decided))
}

func testHolidays(t *testing.T, s domain.TxStore) {
	ctx := context.Background()
	require.NoError(t, s.SaveHoliday(ctx, domain.Holiday{ID: "h1", Name: "New Year", Date: domain.MustParseDate("2020-01-01"), Recurring: true, Active: true}))
	require.NoError(t, s.SaveHoliday(ctx, domain.Holiday{ID: "h2", TenantID: "t1", Name: "Founders Day", Date: domain.MustParseDate("2025-03-12"), Active: true}))
	require.NoError(t, s.SaveHoliday(ctx, domain.Holiday{ID: "h3", TenantID: "t2", Name: "Other", Date: domain.MustParseDate("2025-03-13"), Active: true}))
	require.NoError(t, s.SaveHoliday(ctx, domain.Holiday{ID: "h4", Name: "Cancelled", Date: domain.MustParseDate("2025-03-14"), Active: false}))

	tests := []struct {
		day    string
		tenant string
		want   bool
	}{
		{"2025-01-01", "t1", true},
		{"2031-01-01", "", true},
		{"2025-03-12", "t1", true},
		{"2025-03-12", "t2", false},
		{"2025-03-13", "t1", false},
		{"2025-03-14", "t1", false},
		{"2025-03-17", "t1", false},
	}
	for _, tt := range tests {
		got, err := s.IsHoliday(ctx, domain.MustParseDate(tt.day), tt.tenant)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s for %q", tt.day, tt.tenant)
	}

	listed, err := s.ListHolidays(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, listed, 3, "global and own holidays")
}

func testRollbackOnError(t *testing.T, s domain.TxStore) {
	ctx := context.Background()
	err := s.WithTx(ctx, func(tx domain.Store) error {
		require.NoError(t, tx.Lock(ctx, domain.BalanceLockKey(balance().Key())))
		require.NoError(t, tx.CreateBalance(ctx, balance()))
		require.NoError(t, tx.CreateAttendance(ctx, attendance("2025-03-10")))
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	b, err := s.FindBalance(ctx, balance().Key())
	require.NoError(t, err)
	assert.Nil(t, b)
	a, err := s.FindAttendance(ctx, "e1", domain.MustParseDate("2025-03-10"))
	require.NoError(t, err)
	assert.Nil(t, a)

	require.NoError(t, s.WithTx(ctx, func(tx domain.Store) error {
		return tx.CreateBalance(ctx, balance())
	}))
	b, err = s.FindBalance(ctx, balance().Key())
	require.NoError(t, err)
	assert.NotNil(t, b)
}

func testNotFound(t *testing.T, s domain.TxStore) {
	ctx := context.Background()

	_, err := s.GetTenant(ctx, "missing")
	assert.True(t, domain.IsNotFound(err))
	_, err = s.GetEmployee(ctx, "missing")
	assert.True(t, domain.IsNotFound(err))
	_, err = s.GetShift(ctx, "missing")
	assert.True(t, domain.IsNotFound(err))
	_, err = s.GetLeave(ctx, "missing")
	assert.True(t, domain.IsNotFound(err))
	_, err = s.GetBalance(ctx, "missing")
	assert.True(t, domain.IsNotFound(err))
	_, err = s.GetLeaveType(ctx, "missing")
	assert.True(t, domain.IsNotFound(err))

	err = s.UpdateLeave(ctx, domain.Leave{ID: "missing", Status: domain.LeavePending})
	assert.True(t, domain.IsNotFound(err))
}
