package leave_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-ledger/clock"
	"github.com/warp/attendance-ledger/domain"
	"github.com/warp/attendance-ledger/leave"
	"github.com/warp/attendance-ledger/ledger"
	"github.com/warp/attendance-ledger/notify"
	"github.com/warp/attendance-ledger/store/memory"
	"github.com/warp/attendance-ledger/store/sqlite"
)

type fixture struct {
	store   domain.TxStore
	clock   *clock.FakeClock
	events  *notify.Recorder
	service *leave.Service
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

	require.NoError(t, s.SaveTenant(ctx, domain.NewTenant("t1", "Acme")))
	require.NoError(t, s.SaveEmployee(ctx, domain.Employee{
		ID: "e1", TenantID: "t1", Name: "Ana", JoinedOn: domain.MustParseDate("2023-01-09"), Active: true,
	}))
	require.NoError(t, s.SaveLeaveType(ctx, domain.LeaveType{
		ID: "lt-annual", TenantID: "t1", Name: "Annual Leave", Code: "ANNUAL",
		AnnualQuota: domain.DaysFromInt(12), MinNoticeDays: 3, MaxConsecutiveDays: 10,
		RequiresApproval: true, Paid: true, Active: true, CarryOver: domain.DefaultCarryOverRule(),
	}))
	require.NoError(t, s.SaveLeaveType(ctx, domain.LeaveType{
		ID: "lt-sick", TenantID: "t1", Name: "Sick Leave", Code: "SICK",
		AnnualQuota: domain.DaysFromInt(6), Paid: true, Active: true, CarryOver: domain.DefaultCarryOverRule(),
	}))
	require.NoError(t, s.SaveLeavePolicy(ctx, domain.LeavePolicy{
		ID: "p-2025", TenantID: "t1", Year: 2025, Window: domain.YearWindow(2025),
		ProRateNewEmployees: true, ProbationMonths: 3, MaxCarryOverDays: domain.DaysFromInt(5), Active: true,
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.Fake(time.Date(2025, 3, 5, 10, 0, 0, 0, time.UTC)) // Wednesday
	rec := &notify.Recorder{}
	l := ledger.New(s, clk, rec, logger)
	return &fixture{store: s, clock: clk, events: rec, service: leave.New(s, l, clk, rec, logger)}
}

func request(code, start, end string) leave.SubmitRequest {
	return leave.SubmitRequest{
		EmployeeID: "e1",
		TypeCode:   code,
		StartDate:  domain.MustParseDate(start),
		EndDate:    domain.MustParseDate(end),
		Reason:     "family trip",
	}
}

func available(t *testing.T, f *fixture, leaveTypeID string) string {
	t.Helper()
	b, err := f.store.FindBalance(context.Background(), domain.BalanceKey{EmployeeID: "e1", LeaveTypeID: leaveTypeID, PolicyYear: 2025})
	require.NoError(t, err)
	if b == nil {
		return ""
	}
	return b.Available.String()
}

// =============================================================================
// SUBMIT
// =============================================================================

func TestSubmit_CreatesPendingLeave(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		l, err := f.service.Submit(context.Background(), request("annual", "2025-03-10", "2025-03-14"))
		require.NoError(t, err)

		assert.Equal(t, domain.LeavePending, l.Status)
		assert.Equal(t, "ANNUAL", l.TypeCode)
		assert.Equal(t, "lt-annual", l.LeaveTypeID)
		assert.Equal(t, "5.00", l.CalculatedDays.String())
		assert.False(t, l.DeductedFromBalance)
		assert.Equal(t, "", available(t, f, "lt-annual"), "submission does not touch balances")
		assert.Equal(t, []domain.EventType{domain.EventLeaveSubmitted}, f.events.Types())
	})
}

func TestSubmit_Validation(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		tests := []struct {
			name string
			req  leave.SubmitRequest
		}{
			{"missing type", request("", "2025-03-10", "2025-03-10")},
			{"end before start", request("ANNUAL", "2025-03-12", "2025-03-10")},
			{"weekend only", request("ANNUAL", "2025-03-15", "2025-03-16")},
			{"short notice", request("ANNUAL", "2025-03-06", "2025-03-07")},
			{"too long", request("ANNUAL", "2025-03-10", "2025-03-25")},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := f.service.Submit(ctx, tt.req)
				assert.ErrorIs(t, err, domain.ErrValidation)
			})
		}
	})
}

func TestSubmit_DuringProbation(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		require.NoError(t, f.store.SaveEmployee(ctx, domain.Employee{
			ID: "e1", TenantID: "t1", Name: "Ana", JoinedOn: domain.MustParseDate("2025-02-01"), Active: true,
		}))

		_, err := f.service.Submit(ctx, request("ANNUAL", "2025-03-10", "2025-03-11"))
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Message, "probation")

		_, err = f.service.Submit(ctx, request("ANNUAL", "2025-05-05", "2025-05-06"))
		assert.NoError(t, err, "after probation ends")
	})
}

func TestSubmit_NoApprovalNeededDebitsImmediately(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		l, err := f.service.Submit(context.Background(), request("SICK", "2025-03-05", "2025-03-06"))
		require.NoError(t, err)

		assert.Equal(t, domain.LeaveApproved, l.Status)
		assert.True(t, l.DeductedFromBalance)
		assert.Equal(t, ledger.SystemActor, l.ApprovedBy)
		assert.Equal(t, "4.00", available(t, f, "lt-sick"))
		assert.Contains(t, f.events.Types(), domain.EventLeaveDebited)
	})
}

// =============================================================================
// APPROVE / REJECT
// =============================================================================

func TestApprove_DebitsOnce(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		l, err := f.service.Submit(ctx, request("ANNUAL", "2025-03-10", "2025-03-12"))
		require.NoError(t, err)

		// WHEN: approved
		res, err := f.service.Approve(ctx, l.ID, "manager-1")
		require.NoError(t, err)

		// THEN: 3 days charged
		assert.True(t, res.Debited)
		assert.Equal(t, domain.LeaveApproved, res.Leave.Status)
		assert.True(t, res.Leave.DeductedFromBalance)
		assert.Equal(t, "manager-1", res.Leave.ApprovedBy)
		assert.Equal(t, "9.00", available(t, f, "lt-annual"))

		// AND: approving again changes nothing
		again, err := f.service.Approve(ctx, l.ID, "manager-2")
		require.NoError(t, err)
		assert.False(t, again.Debited)
		assert.Equal(t, "manager-1", again.Leave.ApprovedBy)
		assert.Equal(t, "9.00", available(t, f, "lt-annual"))
	})
}

func TestApprove_InsufficientBalanceKeepsLeavePending(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		first, err := f.service.Submit(ctx, request("ANNUAL", "2025-03-10", "2025-03-21"))
		require.NoError(t, err)
		_, err = f.service.Approve(ctx, first.ID, "manager-1")
		require.NoError(t, err)
		require.Equal(t, "2.00", available(t, f, "lt-annual"))

		second, err := f.service.Submit(ctx, request("ANNUAL", "2025-04-07", "2025-04-09"))
		require.NoError(t, err)
		_, err = f.service.Approve(ctx, second.ID, "manager-1")
		assert.ErrorIs(t, err, domain.ErrInsufficientBalance)

		stored, err := f.service.Get(ctx, second.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.LeavePending, stored.Status, "status change rolled back with the debit")
	})
}

func TestReject(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		ctx := context.Background()
		l, err := f.service.Submit(ctx, request("ANNUAL", "2025-03-10", "2025-03-10"))
		require.NoError(t, err)

		rejected, err := f.service.Reject(ctx, l.ID, "manager-1", "  team offsite  ")
		require.NoError(t, err)
		assert.Equal(t, domain.LeaveRejected, rejected.Status)
		assert.Equal(t, "team offsite", rejected.RejectionReason)
		require.NotNil(t, rejected.DecidedAt)

		_, err = f.service.Approve(ctx, l.ID, "manager-1")
		var conflict *domain.StateConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, domain.ConflictInvalidLeaveStatus, conflict.Reason)

		_, err = f.service.Reject(ctx, l.ID, "manager-1", "again")
		assert.ErrorIs(t, err, domain.ErrStateConflict)
		assert.Equal(t, "", available(t, f, "lt-annual"))
	})
}

func TestApprove_UnknownLeave(t *testing.T) {
	eachStore(t, func(t *testing.T, f *fixture) {
		_, err := f.service.Approve(context.Background(), "missing", "manager-1")
		assert.True(t, domain.IsNotFound(err))
	})
}
