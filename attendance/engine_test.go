package attendance_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-ledger/attendance"
	"github.com/warp/attendance-ledger/clock"
	"github.com/warp/attendance-ledger/domain"
	"github.com/warp/attendance-ledger/notify"
	"github.com/warp/attendance-ledger/store/memory"
	"github.com/warp/attendance-ledger/store/sqlite"
)

// =============================================================================
// FIXTURES
// =============================================================================

var (
	officeLat = -6.2000
	officeLon = 106.8167
)

// monday0816 is 16 minutes past the default 08:00 start.
var monday0816 = time.Date(2025, 3, 10, 8, 16, 0, 0, time.UTC)

type fixture struct {
	store  domain.TxStore
	clock  *clock.FakeClock
	events *notify.Recorder
	engine *attendance.Engine
}

func eachStore(t *testing.T, fn func(t *testing.T, f *fixture)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, newFixture(t, memory.New()))
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		fn(t, newFixture(t, s))
	})
}

func newFixture(t *testing.T, s domain.TxStore) *fixture {
	t.Helper()
	ctx := context.Background()

	tenant := domain.NewTenant("t1", "Acme")
	tenant.OfficeLatitude = &officeLat
	tenant.OfficeLongitude = &officeLon
	tenant.EnforceGeofence = true
	require.NoError(t, s.SaveTenant(ctx, tenant))
	require.NoError(t, s.SaveEmployee(ctx, domain.Employee{ID: "e1", TenantID: "t1", Name: "Ana", Active: true}))

	clk := clock.Fake(monday0816)
	rec := &notify.Recorder{}
	return &fixture{
		store:  s,
		clock:  clk,
		events: rec,
		engine: attendance.New(s, clk, rec, slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
}

func at(lat, lon float64) (*float64, *float64) {
	return &lat, &lon
}

func inside() attendance.Request {
	lat, lon := at(-6.2001, 106.8167)
	return attendance.Request{EmployeeID: "e1", Latitude: lat, Longitude: lon, Location: "HQ lobby"}
}

func outside() attendance.Request {
	lat, lon := at(-6.3000, 106.8167)
	return attendance.Request{EmployeeID: "e1", Latitude: lat, Longitude: lon}
}

// =============================================================================
// CHECK-IN
// =============================================================================

func TestCheckIn_LateInsideFence(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		// GIVEN: 08:16 on a Monday, start 08:00, tolerance 15
		// WHEN
		res, err := f.engine.CheckIn(context.Background(), inside())
		require.NoError(t, err)

		// THEN
		assert.True(t, res.IsLate)
		assert.Equal(t, 16, res.LateMinutes)
		assert.Equal(t, "Checked in successfully (Late by 16 minutes)", res.Message)
		assert.Equal(t, domain.StatusLate, res.Attendance.Status)
		assert.True(t, res.Attendance.WithinGeofence)
		require.NotNil(t, res.Attendance.CheckInDistance)
		assert.Equal(t, 11.12, *res.Attendance.CheckInDistance)
		assert.Equal(t, "2025-03-10", res.Attendance.WorkDate.String())

		events := f.events.Events()
		require.Len(t, events, 1)
		assert.Equal(t, domain.EventAttendanceCreated, events[0].Type)
		assert.True(t, events[0].WantsLateAlert())
		assert.False(t, events[0].WantsGeofenceAlert())
	})
}

func TestCheckIn_ToleranceBoundaryIsOnTime(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		f.clock.Set(time.Date(2025, 3, 10, 8, 15, 0, 0, time.UTC))

		res, err := f.engine.CheckIn(context.Background(), attendance.Request{EmployeeID: "e1"})
		require.NoError(t, err)

		assert.False(t, res.IsLate)
		assert.Equal(t, 0, res.LateMinutes)
		assert.Equal(t, domain.StatusPresent, res.Attendance.Status)
		assert.Equal(t, "Checked in successfully", res.Message)
		assert.Nil(t, res.Attendance.CheckInDistance, "no coordinates, no distance")
	})
}

func TestCheckIn_SecondAttemptRejected(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		first, err := f.engine.CheckIn(ctx, inside())
		require.NoError(t, err)

		f.clock.Advance(2 * time.Hour)
		_, err = f.engine.CheckIn(ctx, inside())

		var conflict *domain.StateConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, domain.ConflictAlreadyCheckedIn, conflict.Reason)
		assert.Equal(t, "You have already checked in today", conflict.Message)

		today, err := f.engine.Today(ctx, "e1")
		require.NoError(t, err)
		require.NotNil(t, today)
		assert.Equal(t, first.Attendance.ID, today.ID, "original row kept")
	})
}

func TestCheckIn_ConcurrentAttemptsCreateOneRow(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		const attempts = 20

		// GIVEN: many check-ins racing for the same employee and day
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			ok        int
			conflicts int
		)
		for range attempts {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.engine.CheckIn(ctx, inside())
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					ok++
					return
				}
				var conflict *domain.StateConflictError
				if assert.ErrorAs(t, err, &conflict) {
					assert.Equal(t, domain.ConflictAlreadyCheckedIn, conflict.Reason)
					conflicts++
				}
			}()
		}
		wg.Wait()

		// THEN: exactly one wins, one row, one event
		assert.Equal(t, 1, ok)
		assert.Equal(t, attempts-1, conflicts)
		today, err := f.engine.Today(ctx, "e1")
		require.NoError(t, err)
		require.NotNil(t, today)
		assert.Len(t, f.events.Events(), 1)
	})
}

func TestCheckIn_OutsideFenceRefused(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		// WHEN: checking in 11 km away from an enforced fence
		_, err := f.engine.CheckIn(ctx, outside())

		// THEN: refused with the measured distance and nothing stored
		var violation *domain.GeofenceViolationError
		require.ErrorAs(t, err, &violation)
		assert.Equal(t, 11119.49, violation.Distance)
		assert.Equal(t, 100, violation.Allowed)
		assert.Equal(t, "You are 11119.49m away from office. Maximum allowed: 100m", violation.Error())

		today, err := f.engine.Today(ctx, "e1")
		require.NoError(t, err)
		assert.Nil(t, today)
		assert.Empty(t, f.events.Events())
	})
}

func TestCheckIn_FenceNotEnforced(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		tenant, err := f.store.GetTenant(ctx, "t1")
		require.NoError(t, err)
		tenant.EnforceGeofence = false
		require.NoError(t, f.store.SaveTenant(ctx, *tenant))

		res, err := f.engine.CheckIn(ctx, outside())
		require.NoError(t, err)

		assert.True(t, res.Attendance.WithinGeofence)
		assert.Equal(t, "Geofencing not enforced", res.Geofence.Message)
		require.NotNil(t, res.Attendance.CheckInDistance)
		assert.Zero(t, *res.Attendance.CheckInDistance)
	})
}

func TestCheckIn_CoordinatesComeInPairs(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		lat := -6.2
		_, err := f.engine.CheckIn(context.Background(), attendance.Request{EmployeeID: "e1", Latitude: &lat})
		assert.ErrorIs(t, err, domain.ErrValidation)

		bad, lon := at(95, 10)
		_, err = f.engine.CheckIn(context.Background(), attendance.Request{EmployeeID: "e1", Latitude: bad, Longitude: lon})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestCheckIn_UnknownEmployee(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		_, err := f.engine.CheckIn(context.Background(), attendance.Request{EmployeeID: "ghost"})
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestCheckIn_ShiftOverridesTenant(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		// GIVEN: a 09:00 shift with no tolerance
		require.NoError(t, f.store.SaveShift(ctx, domain.Shift{
			ID: "s-late", TenantID: "t1", Name: "Late shift",
			Start: domain.MustTimeOfDay("09:00"), End: domain.MustTimeOfDay("18:00"),
			WorkingDays: domain.DefaultWorkingDays(), Active: true,
		}))
		require.NoError(t, f.store.SaveEmployee(ctx, domain.Employee{ID: "e1", TenantID: "t1", ShiftID: "s-late", Name: "Ana", Active: true}))

		// WHEN: checking in at 08:16
		res, err := f.engine.CheckIn(ctx, attendance.Request{EmployeeID: "e1"})
		require.NoError(t, err)

		// THEN: early for the shift
		assert.False(t, res.IsLate)
		assert.Equal(t, "s-late", res.Attendance.ShiftID)
	})
}

func TestCheckIn_UsesTenantTimezone(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		tenant, err := f.store.GetTenant(ctx, "t1")
		require.NoError(t, err)
		tenant.Timezone = "Asia/Jakarta"
		require.NoError(t, f.store.SaveTenant(ctx, *tenant))

		// GIVEN: 01:16 UTC is 08:16 in Jakarta
		f.clock.Set(time.Date(2025, 3, 10, 1, 16, 0, 0, time.UTC))

		res, err := f.engine.CheckIn(ctx, attendance.Request{EmployeeID: "e1"})
		require.NoError(t, err)

		assert.Equal(t, 16, res.LateMinutes)
		assert.Equal(t, "2025-03-10", res.Attendance.WorkDate.String())
	})
}

func TestCheckIn_LocalDateAcrossUTCMidnight(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		tenant, err := f.store.GetTenant(ctx, "t1")
		require.NoError(t, err)
		tenant.Timezone = "Asia/Jakarta"
		require.NoError(t, f.store.SaveTenant(ctx, *tenant))

		// 23:30 UTC on the 9th is 06:30 on the 10th in Jakarta
		f.clock.Set(time.Date(2025, 3, 9, 23, 30, 0, 0, time.UTC))
		res, err := f.engine.CheckIn(ctx, attendance.Request{EmployeeID: "e1"})
		require.NoError(t, err)
		assert.Equal(t, "2025-03-10", res.Attendance.WorkDate.String())
	})
}

func TestCheckIn_EmployeeWithoutTenant(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		require.NoError(t, f.store.SaveEmployee(ctx, domain.Employee{ID: "root", Name: "Operator", Active: true}))
		f.clock.Set(time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC))

		lat, lon := at(51.5, -0.12)
		res, err := f.engine.CheckIn(ctx, attendance.Request{EmployeeID: "root", Latitude: lat, Longitude: lon})
		require.NoError(t, err)

		assert.False(t, res.IsLate)
		assert.True(t, res.Attendance.WithinGeofence)
		assert.Empty(t, res.Attendance.TenantID)
	})
}

func TestCheckIn_StrictWorkingDays(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		f.engine.StrictWorkingDays = true
		f.clock.Set(time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC)) // Saturday

		_, err := f.engine.CheckIn(context.Background(), attendance.Request{EmployeeID: "e1"})
		assert.ErrorIs(t, err, domain.ErrNotWorkingDay)
	})
}

// =============================================================================
// CHECK-OUT
// =============================================================================

func TestCheckOut_WithoutCheckIn(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		_, err := f.engine.CheckOut(context.Background(), attendance.Request{EmployeeID: "e1"})

		var conflict *domain.StateConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, domain.ConflictNoOpenSession, conflict.Reason)
	})
}

func TestCheckOut_ClosesSession(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		req := inside()
		req.Notes = "client visit at 10"
		_, err := f.engine.CheckIn(ctx, req)
		require.NoError(t, err)
		f.events.Reset()

		// WHEN: checking out 8h31m50s later from outside the fence
		f.clock.Advance(8*time.Hour + 31*time.Minute + 50*time.Second)
		out := outside()
		out.Notes = "left early for dentist"
		res, err := f.engine.CheckOut(ctx, out)
		require.NoError(t, err)

		// THEN: advisory geofence, floored minutes, notes appended
		assert.Equal(t, "Checked out successfully", res.Message)
		assert.Equal(t, "08:31:00", res.WorkDuration)
		assert.Equal(t, "08:31:00", res.Attendance.ActualWorkHours)
		assert.Equal(t, "client visit at 10\nCheck-out: left early for dentist", res.Attendance.Notes)
		require.NotNil(t, res.Attendance.CheckOutWithinGeofence)
		assert.False(t, *res.Attendance.CheckOutWithinGeofence)
		require.NotNil(t, res.Attendance.CheckOutDistance)
		assert.Equal(t, 11119.49, *res.Attendance.CheckOutDistance)
		assert.Equal(t, domain.StatusLate, res.Attendance.Status, "status keeps the check-in verdict")

		stored, err := f.engine.Today(ctx, "e1")
		require.NoError(t, err)
		require.NotNil(t, stored.CheckOut)
		assert.True(t, stored.CheckOut.Equal(monday0816.Add(8*time.Hour+31*time.Minute+50*time.Second)))

		assert.Equal(t, []domain.EventType{domain.EventAttendanceClosed}, f.events.Types())
		closed := f.events.Events()[0]
		assert.True(t, closed.GeofenceEnforced)
		assert.False(t, closed.WithinGeofence)
		assert.True(t, closed.WantsGeofenceAlert())

		// AND: a second check-out is refused
		_, err = f.engine.CheckOut(ctx, attendance.Request{EmployeeID: "e1"})
		assert.ErrorIs(t, err, domain.ErrStateConflict)
	})
}

func TestFormatWorkDuration(t *testing.T) {
	assert.Equal(t, "00:00:00", attendance.FormatWorkDuration(59*time.Second))
	assert.Equal(t, "09:05:00", attendance.FormatWorkDuration(9*time.Hour+5*time.Minute+30*time.Second))
	assert.Equal(t, "26:00:00", attendance.FormatWorkDuration(26*time.Hour))
	assert.Equal(t, "00:00:00", attendance.FormatWorkDuration(-time.Minute))
}

// =============================================================================
// ELIGIBILITY
// =============================================================================

func TestCanCheckIn_Lifecycle(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()

		el, err := f.engine.CanCheckIn(ctx, "e1")
		require.NoError(t, err)
		assert.True(t, el.CanCheckIn)
		assert.Equal(t, "You can check in", el.Message)

		_, err = f.engine.CheckIn(ctx, inside())
		require.NoError(t, err)
		el, err = f.engine.CanCheckIn(ctx, "e1")
		require.NoError(t, err)
		assert.False(t, el.CanCheckIn)
		assert.True(t, el.CanCheckOut)
		assert.Equal(t, attendance.ReasonOpenSession, el.Reason)

		_, err = f.engine.CheckOut(ctx, inside())
		require.NoError(t, err)
		el, err = f.engine.CanCheckIn(ctx, "e1")
		require.NoError(t, err)
		assert.False(t, el.CanCheckIn)
		assert.False(t, el.CanCheckOut)
		assert.Equal(t, "You have already completed attendance for today", el.Message)
	})
}

func TestCanCheckIn_NonWorkingDay(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		f.clock.Set(time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC)) // Saturday

		el, err := f.engine.CanCheckIn(context.Background(), "e1")
		require.NoError(t, err)
		assert.False(t, el.CanCheckIn)
		assert.Equal(t, attendance.ReasonNotWorkingDay, el.Reason)
		assert.Equal(t, "Today is not a working day", el.Message)
	})
}

func TestCanCheckIn_ShiftWorkingDays(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		require.NoError(t, f.store.SaveShift(ctx, domain.Shift{
			ID: "weekend", TenantID: "t1", Name: "Weekend",
			Start: domain.MustTimeOfDay("07:00"), End: domain.MustTimeOfDay("15:00"),
			WorkingDays: []time.Weekday{time.Saturday, time.Sunday}, Active: true,
		}))
		require.NoError(t, f.store.SaveEmployee(ctx, domain.Employee{ID: "e1", TenantID: "t1", ShiftID: "weekend", Name: "Ana", Active: true}))

		f.clock.Set(time.Date(2025, 3, 8, 9, 0, 0, 0, time.UTC)) // Saturday
		el, err := f.engine.CanCheckIn(ctx, "e1")
		require.NoError(t, err)
		assert.True(t, el.CanCheckIn)

		f.clock.Set(monday0816)
		el, err = f.engine.CanCheckIn(ctx, "e1")
		require.NoError(t, err)
		assert.False(t, el.CanCheckIn)
	})
}
