/*
handlers.go - HTTP API handlers for attendance and the leave ledger

PURPOSE:
  Exposes the attendance engine, the leave service and the ledger over
  REST. Handlers parse the request, call exactly one engine operation and
  render the result; all rules live in the engines.

ENDPOINTS:
  Attendance:
    POST   /api/attendance/check-in                     Check in
    POST   /api/attendance/check-out                    Check out
    GET    /api/attendance/{employeeID}/eligibility     Allowed transition now
    GET    /api/attendance/{employeeID}/today           Today's row (null if none)

  Leaves:
    POST   /api/leaves                                  Submit
    GET    /api/leaves/{id}                             Get
    POST   /api/leaves/{id}/approve                     Approve and debit
    POST   /api/leaves/{id}/reject                      Reject

  Balances:
    POST   /api/balances/initialize                     Initialize a policy year
    POST   /api/balances/expire                         Run carry-over expiry now
    GET    /api/balances/{id}                           Get
    POST   /api/balances/{id}/adjust                    Manual adjustment
    POST   /api/balances/{id}/recalculate               Recompute entitlement
    POST   /api/balances/{id}/expire-carry-over         Expire one balance
    GET    /api/balances/{id}/transactions              Audit trail
    GET    /api/employees/{employeeID}/balances?year=   Summary

ERROR HANDLING:
  Engine errors are mapped by kind:
  - 400: validation
  - 404: not found
  - 409: state conflict
  - 412: leave policy missing
  - 422: geofence violation, insufficient balance, not a working day
  - 500: anything else (details are logged, not returned)

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/warp/attendance-ledger/attendance"
	"github.com/warp/attendance-ledger/clock"
	"github.com/warp/attendance-ledger/domain"
	"github.com/warp/attendance-ledger/leave"
	"github.com/warp/attendance-ledger/ledger"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds the engines the routes delegate to.
type Handler struct {
	Attendance *attendance.Engine
	Leaves     *leave.Service
	Ledger     *ledger.Ledger
	Store      domain.TxStore
	Clock      clock.Clock
	Logger     *slog.Logger
}

func NewHandler(store domain.TxStore, att *attendance.Engine, leaves *leave.Service, l *ledger.Ledger, clk clock.Clock, logger *slog.Logger) *Handler {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{Attendance: att, Leaves: leaves, Ledger: l, Store: store, Clock: clk, Logger: logger}
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req AttendanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Attendance.CheckIn(r.Context(), req.toDomain())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAttendanceResultDTO(res))
}

func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	var req AttendanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Attendance.CheckOut(r.Context(), req.toDomain())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceResultDTO(res))
}

func (h *Handler) Eligibility(w http.ResponseWriter, r *http.Request) {
	el, err := h.Attendance.CanCheckIn(r.Context(), chi.URLParam(r, "employeeID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEligibilityDTO(el))
}

func (h *Handler) Today(w http.ResponseWriter, r *http.Request) {
	a, err := h.Attendance.Today(r.Context(), chi.URLParam(r, "employeeID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if a == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, toAttendanceDTO(*a))
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}
	l, err := h.Leaves.Submit(r.Context(), leave.SubmitRequest{
		EmployeeID: req.EmployeeID,
		TypeCode:   req.Type,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Reason:     req.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(l))
}

func (h *Handler) GetLeave(w http.ResponseWriter, r *http.Request) {
	l, err := h.Leaves.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(*l))
}

func (h *Handler) ApproveLeave(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.Leaves.Approve(r.Context(), chi.URLParam(r, "id"), req.ApproverID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApproveResultDTO(res))
}

func (h *Handler) RejectLeave(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if !h.decode(w, r, &req) {
		return
	}
	l, err := h.Leaves.Reject(r.Context(), chi.URLParam(r, "id"), req.ApproverID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTO(l))
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

func (h *Handler) InitializeBalances(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Year == 0 {
		req.Year = h.Clock.Now().Year()
	}
	balances, err := h.Ledger.InitializeBalances(r.Context(), req.EmployeeID, req.Year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTOs(balances))
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.Store.GetBalance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(*b))
}

func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	var req AdjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.Ledger.AdjustBalance(r.Context(), chi.URLParam(r, "id"), req.Days, req.Reason, req.ActorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

func (h *Handler) RecalculateBalance(w http.ResponseWriter, r *http.Request) {
	var req RecalculateRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	b, err := h.Ledger.RecalculateEntitlement(r.Context(), chi.URLParam(r, "id"), req.ActorID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

func (h *Handler) ExpireCarryOver(w http.ResponseWriter, r *http.Request) {
	res, err := h.Ledger.ExpireCarryOver(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"balance": toBalanceDTO(res.Balance),
		"expired": res.Expired,
		"applied": res.Applied,
	})
}

func (h *Handler) ExpireDueCarryOvers(w http.ResponseWriter, r *http.Request) {
	n, err := h.Ledger.ExpireDueCarryOvers(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ExpiryRunDTO{Expired: n})
}

func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Ledger.Transactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	dtos := make([]TransactionDTO, len(txs))
	for i, t := range txs {
		dtos[i] = toTransactionDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")
	year := h.Clock.Now().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.writeError(w, r, domain.NewValidationError("year", "must be a positive integer"))
			return
		}
		year = parsed
	}
	if _, err := h.Store.GetEmployee(r.Context(), employeeID); err != nil {
		h.writeError(w, r, err)
		return
	}
	lines, err := h.Ledger.GetSummary(r.Context(), employeeID, year)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryDTO{EmployeeID: employeeID, Year: year, Balances: lines})
}

// Health reports whether the store answers.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.Logger.ErrorContext(r.Context(), "health check failed", "err", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid request body",
			Code:    "invalid_body",
			Details: err.Error(),
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// statusFor maps an engine error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStateConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPolicyMissing):
		return http.StatusPreconditionFailed
	case errors.Is(err, domain.ErrGeofenceViolation),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrNotWorkingDay):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := ErrorResponse{Error: err.Error(), Code: domain.ReasonCode(err)}

	var geofence *domain.GeofenceViolationError
	if errors.As(err, &geofence) {
		resp.DistanceMeters = &geofence.Distance
		resp.AllowedMeters = &geofence.Allowed
	}
	var validation *domain.ValidationError
	if errors.As(err, &validation) {
		resp.Details = validation.Field
	}

	if status == http.StatusInternalServerError {
		h.Logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "err", err)
		resp.Error = "Internal server error"
	} else {
		h.Logger.InfoContext(r.Context(), "request rejected", "path", r.URL.Path,
			"code", resp.Code, "status", status)
	}
	writeJSON(w, status, resp)
}
