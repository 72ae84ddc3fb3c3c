/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Attendance check-in/check-out over HTTP and error rendering
- Leave submission, approval and the resulting balance
- Ledger maintenance endpoints
- Error kind to status mapping
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-ledger/attendance"
	"github.com/warp/attendance-ledger/clock"
	"github.com/warp/attendance-ledger/domain"
	"github.com/warp/attendance-ledger/leave"
	"github.com/warp/attendance-ledger/ledger"
	"github.com/warp/attendance-ledger/notify"
	"github.com/warp/attendance-ledger/store/sqlite"
)

type testServer struct {
	store  *sqlite.Store
	clock  *clock.FakeClock
	events *notify.Recorder
	router http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	lat, lng := -6.2000, 106.8167
	tenant := domain.NewTenant("t1", "Acme")
	tenant.OfficeLatitude, tenant.OfficeLongitude = &lat, &lng
	tenant.EnforceGeofence = true
	require.NoError(t, store.SaveTenant(ctx, tenant))
	require.NoError(t, store.SaveEmployee(ctx, domain.Employee{
		ID: "e1", TenantID: "t1", Name: "Ana", JoinedOn: domain.MustParseDate("2023-05-01"), Active: true,
	}))
	require.NoError(t, store.SaveLeaveType(ctx, domain.LeaveType{
		ID: "lt-annual", TenantID: "t1", Name: "Annual Leave", Code: "ANNUAL", AnnualQuota: domain.DaysFromInt(12),
		RequiresApproval: true, Paid: true, Active: true, CarryOver: domain.DefaultCarryOverRule(),
	}))
	require.NoError(t, store.SaveLeavePolicy(ctx, domain.LeavePolicy{
		ID: "p-2025", TenantID: "t1", Year: 2025, Window: domain.YearWindow(2025),
		ProRateNewEmployees: true, MaxCarryOverDays: domain.DaysFromInt(5), Active: true,
	}))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.Fake(time.Date(2025, 3, 10, 8, 16, 0, 0, time.UTC)) // Monday
	rec := &notify.Recorder{}
	l := ledger.New(store, clk, rec, logger)
	h := NewHandler(store,
		attendance.New(store, clk, rec, logger),
		leave.New(store, l, clk, rec, logger),
		l, clk, logger)

	return &testServer{store: store, clock: clk, events: rec, router: NewRouter(h, RouterOptions{})}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), rr.Body.String())
	return out
}

func ptr[T any](v T) *T { return &v }

// =============================================================================
// ATTENDANCE
// =============================================================================

func TestCheckIn_Late(t *testing.T) {
	// GIVEN: 08:16 on a Monday, 11m from the office
	s := newTestServer(t)

	// WHEN
	rr := s.do(t, http.MethodPost, "/api/attendance/check-in", AttendanceRequest{
		EmployeeID: "e1", Latitude: ptr(-6.2001), Longitude: ptr(106.8167),
	})

	// THEN
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	res := decodeBody[AttendanceResultDTO](t, rr)
	assert.True(t, res.IsLate)
	assert.Equal(t, 16, res.LateMinutes)
	assert.Equal(t, "Checked in successfully (Late by 16 minutes)", res.Message)
	assert.True(t, res.Geofence.WithinGeofence)
	assert.Equal(t, "2025-03-10", res.Attendance.Date.String())
	assert.Equal(t, "late", res.Attendance.Status)

	// AND: a second attempt conflicts
	rr = s.do(t, http.MethodPost, "/api/attendance/check-in", AttendanceRequest{
		EmployeeID: "e1", Latitude: ptr(-6.2001), Longitude: ptr(106.8167),
	})
	require.Equal(t, http.StatusConflict, rr.Code)
	errResp := decodeBody[ErrorResponse](t, rr)
	assert.Equal(t, domain.ConflictAlreadyCheckedIn, errResp.Code)
	assert.Equal(t, "You have already checked in today", errResp.Error)
}

func TestCheckIn_OutsideGeofence(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/attendance/check-in", AttendanceRequest{
		EmployeeID: "e1", Latitude: ptr(-6.3000), Longitude: ptr(106.8167),
	})

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	errResp := decodeBody[ErrorResponse](t, rr)
	assert.Equal(t, "geofence_violation", errResp.Code)
	assert.Equal(t, "You are 11119.49m away from office. Maximum allowed: 100m", errResp.Error)
	require.NotNil(t, errResp.DistanceMeters)
	assert.InDelta(t, 11119.49, *errResp.DistanceMeters, 0.001)
	require.NotNil(t, errResp.AllowedMeters)
	assert.Equal(t, 100, *errResp.AllowedMeters)
	assert.Empty(t, s.events.Events(), "refused check-in emits nothing")
}

func TestCheckIn_BadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"unknown field", map[string]any{"employee_id": "e1", "lat": 1}, http.StatusBadRequest, "invalid_body"},
		{"half a coordinate", AttendanceRequest{EmployeeID: "e1", Latitude: ptr(-6.2)}, http.StatusBadRequest, "validation_failed"},
		{"unknown employee", AttendanceRequest{EmployeeID: "ghost"}, http.StatusNotFound, "employee_not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := s.do(t, http.MethodPost, "/api/attendance/check-in", tt.body)
			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.code, decodeBody[ErrorResponse](t, rr).Code)
		})
	}
}

func TestAttendanceLifecycle(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: nothing yet today
	rr := s.do(t, http.MethodGet, "/api/attendance/e1/today", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "null", string(bytes.TrimSpace(rr.Body.Bytes())))

	rr = s.do(t, http.MethodPost, "/api/attendance/check-out", AttendanceRequest{EmployeeID: "e1"})
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, domain.ConflictNoOpenSession, decodeBody[ErrorResponse](t, rr).Code)

	// WHEN: check in, then out eight and a half hours later
	rr = s.do(t, http.MethodPost, "/api/attendance/check-in", AttendanceRequest{EmployeeID: "e1"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	el := decodeBody[EligibilityDTO](t, s.do(t, http.MethodGet, "/api/attendance/e1/eligibility", nil))
	assert.True(t, el.CanCheckOut)
	assert.Equal(t, attendance.ReasonOpenSession, el.Reason)

	s.clock.Advance(8*time.Hour + 31*time.Minute)
	rr = s.do(t, http.MethodPost, "/api/attendance/check-out", AttendanceRequest{EmployeeID: "e1", Notes: "done"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decodeBody[AttendanceResultDTO](t, rr)
	assert.Equal(t, "Checked out successfully", res.Message)
	assert.Equal(t, "08:31:00", res.Attendance.ActualWorkHours)

	// THEN
	el = decodeBody[EligibilityDTO](t, s.do(t, http.MethodGet, "/api/attendance/e1/eligibility", nil))
	assert.False(t, el.CanCheckIn)
	assert.False(t, el.CanCheckOut)
	assert.Equal(t, attendance.ReasonCompleted, el.Reason)

	today := decodeBody[AttendanceDTO](t, s.do(t, http.MethodGet, "/api/attendance/e1/today", nil))
	require.NotNil(t, today.CheckOut)
}

// =============================================================================
// LEAVES & BALANCES
// =============================================================================

func TestLeaveApproval_DebitsBalance(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: a three-working-day request
	rr := s.do(t, http.MethodPost, "/api/leaves", SubmitLeaveRequest{
		EmployeeID: "e1", Type: "annual",
		StartDate: domain.MustParseDate("2025-03-11"), EndDate: domain.MustParseDate("2025-03-13"),
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	submitted := decodeBody[LeaveDTO](t, rr)
	assert.Equal(t, "pending", submitted.Status)
	assert.Equal(t, "3.00", submitted.CalculatedDays.String())

	// WHEN: approved
	rr = s.do(t, http.MethodPost, "/api/leaves/"+submitted.ID+"/approve", DecisionRequest{ApproverID: "manager-1"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	approved := decodeBody[ApproveResultDTO](t, rr)

	// THEN
	assert.True(t, approved.Debited)
	assert.True(t, approved.Leave.DeductedFromBalance)
	require.NotNil(t, approved.Balance)
	assert.Equal(t, "9.00", approved.Balance.Available.String())
	require.NotNil(t, approved.Transaction)
	assert.Equal(t, "debit", approved.Transaction.Type)

	// AND: approving again is a no-op
	again := decodeBody[ApproveResultDTO](t, s.do(t, http.MethodPost, "/api/leaves/"+submitted.ID+"/approve", DecisionRequest{ApproverID: "manager-1"}))
	assert.False(t, again.Debited)

	summary := decodeBody[SummaryDTO](t, s.do(t, http.MethodGet, "/api/employees/e1/balances?year=2025", nil))
	require.Len(t, summary.Balances, 1)
	assert.Equal(t, "ANNUAL", summary.Balances[0].Code)
	assert.Equal(t, "3.00", summary.Balances[0].Used.String())

	txs := decodeBody[[]TransactionDTO](t, s.do(t, http.MethodGet, "/api/balances/"+approved.Balance.ID+"/transactions", nil))
	require.Len(t, txs, 2)
	assert.Equal(t, domain.ReasonAnnualEntitlement, txs[0].Reason)
	assert.Equal(t, domain.ReasonLeaveTaken, txs[1].Reason)
}

func TestRejectLeave(t *testing.T) {
	s := newTestServer(t)
	submitted := decodeBody[LeaveDTO](t, s.do(t, http.MethodPost, "/api/leaves", SubmitLeaveRequest{
		EmployeeID: "e1", Type: "ANNUAL",
		StartDate: domain.MustParseDate("2025-03-11"), EndDate: domain.MustParseDate("2025-03-11"),
	}))

	rr := s.do(t, http.MethodPost, "/api/leaves/"+submitted.ID+"/reject", DecisionRequest{ApproverID: "manager-1", Reason: "busy week"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "busy week", decodeBody[LeaveDTO](t, rr).RejectionReason)

	rr = s.do(t, http.MethodPost, "/api/leaves/"+submitted.ID+"/approve", DecisionRequest{ApproverID: "manager-1"})
	require.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, domain.ConflictInvalidLeaveStatus, decodeBody[ErrorResponse](t, rr).Code)
}

func TestInitializeAndAdjust(t *testing.T) {
	s := newTestServer(t)

	// GIVEN: an initialized year
	rr := s.do(t, http.MethodPost, "/api/balances/initialize", InitializeRequest{EmployeeID: "e1", Year: 2025})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	balances := decodeBody[[]BalanceDTO](t, rr)
	require.Len(t, balances, 1)
	id := balances[0].ID
	assert.Equal(t, "12.00", balances[0].Available.String())

	// WHEN: adjusted by -1.5
	rr = s.do(t, http.MethodPost, "/api/balances/"+id+"/adjust", map[string]any{"days": "-1.5", "reason": "correction", "actor_id": "hr-1"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	// THEN
	adjusted := decodeBody[BalanceDTO](t, rr)
	assert.Equal(t, "-1.50", adjusted.Adjustment.String())
	assert.Equal(t, "10.50", adjusted.Available.String())

	got := decodeBody[BalanceDTO](t, s.do(t, http.MethodGet, "/api/balances/"+id, nil))
	assert.Equal(t, "10.50", got.Available.String())

	rr = s.do(t, http.MethodPost, "/api/balances/"+id+"/adjust", map[string]any{"days": 0, "reason": "noop"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = s.do(t, http.MethodPost, "/api/balances/"+id+"/recalculate", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "10.50", decodeBody[BalanceDTO](t, rr).Available.String())
}

func TestInitialize_PolicyMissing(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/balances/initialize", InitializeRequest{EmployeeID: "e1", Year: 2030})

	require.Equal(t, http.StatusPreconditionFailed, rr.Code)
	errResp := decodeBody[ErrorResponse](t, rr)
	assert.Equal(t, "policy_missing", errResp.Code)
	assert.Equal(t, "Leave policy not found for year 2030", errResp.Error)
}

func TestBalanceEndpoints_NotFound(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/api/balances/missing", "/api/balances/missing/transactions", "/api/employees/ghost/balances"} {
		rr := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, rr.Code, path)
	}

	rr := s.do(t, http.MethodGet, "/api/employees/e1/balances?year=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestExpireSweep(t *testing.T) {
	s := newTestServer(t)

	rr := s.do(t, http.MethodPost, "/api/balances/expire", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, decodeBody[ExpiryRunDTO](t, rr).Expired)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rr := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Content-Type"))
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.NewValidationError("x", "bad"), http.StatusBadRequest},
		{domain.NewNotFound("leave", "1"), http.StatusNotFound},
		{domain.NewStateConflict(domain.ConflictAlreadyDeducted, "done"), http.StatusConflict},
		{&domain.PolicyNotFoundError{TenantID: "t1", Year: 2025}, http.StatusPreconditionFailed},
		{&domain.GeofenceViolationError{Distance: 200, Allowed: 100}, http.StatusUnprocessableEntity},
		{&domain.InsufficientBalanceError{}, http.StatusUnprocessableEntity},
		{&domain.NotWorkingDayError{}, http.StatusUnprocessableEntity},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%T", tt.err)
	}
}

func TestWriteError_HidesInternalDetails(t *testing.T) {
	h := &Handler{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	rr := httptest.NewRecorder()

	h.writeError(rr, httptest.NewRequest(http.MethodGet, "/x", nil), errors.New("pq: password authentication failed"))

	require.Equal(t, http.StatusInternalServerError, rr.Code)
	resp := decodeBody[ErrorResponse](t, rr)
	assert.Equal(t, "Internal server error", resp.Error)
	assert.Equal(t, "internal_error", resp.Code)
}
