/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication so that the domain
  types stay free of wire concerns.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Attendance:
    AttendanceRequest, AttendanceDTO, AttendanceResultDTO, EligibilityDTO

  Leave:
    SubmitLeaveRequest, DecisionRequest, LeaveDTO, ApproveResultDTO

  Balance:
    InitializeRequest, AdjustRequest, BalanceDTO, TransactionDTO, SummaryDTO

VALIDATION:
  Validation is done by the engines, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/attendance-ledger/attendance"
	"github.com/warp/attendance-ledger/domain"
	"github.com/warp/attendance-ledger/geo"
	"github.com/warp/attendance-ledger/leave"
	"github.com/warp/attendance-ledger/ledger"
)

// =============================================================================
// ATTENDANCE
// =============================================================================

type AttendanceRequest struct {
	EmployeeID string   `json:"employee_id"`
	Latitude   *float64 `json:"latitude,omitempty"`
	Longitude  *float64 `json:"longitude,omitempty"`
	Location   string   `json:"location,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

func (r AttendanceRequest) toDomain() attendance.Request {
	return attendance.Request{
		EmployeeID: r.EmployeeID,
		Latitude:   r.Latitude,
		Longitude:  r.Longitude,
		Location:   r.Location,
		Notes:      r.Notes,
	}
}

type AttendanceDTO struct {
	ID                     string      `json:"id"`
	TenantID               string      `json:"tenant_id,omitempty"`
	EmployeeID             string      `json:"employee_id"`
	ShiftID                string      `json:"shift_id,omitempty"`
	Date                   domain.Date `json:"date"`
	CheckIn                time.Time   `json:"check_in"`
	CheckOut               *time.Time  `json:"check_out,omitempty"`
	CheckInLatitude        *float64    `json:"check_in_latitude,omitempty"`
	CheckInLongitude       *float64    `json:"check_in_longitude,omitempty"`
	CheckInLocation        string      `json:"check_in_location,omitempty"`
	CheckInDistance        *float64    `json:"check_in_distance,omitempty"`
	WithinGeofence         bool        `json:"within_geofence"`
	CheckOutDistance       *float64    `json:"check_out_distance,omitempty"`
	CheckOutWithinGeofence *bool       `json:"check_out_within_geofence,omitempty"`
	Status                 string      `json:"status"`
	IsLate                 bool        `json:"is_late"`
	LateMinutes            int         `json:"late_minutes"`
	ActualWorkHours        string      `json:"actual_work_hours,omitempty"`
	Notes                  string      `json:"notes,omitempty"`
}

func toAttendanceDTO(a domain.Attendance) AttendanceDTO {
	return AttendanceDTO{
		ID:                     a.ID,
		TenantID:               a.TenantID,
		EmployeeID:             a.EmployeeID,
		ShiftID:                a.ShiftID,
		Date:                   a.WorkDate,
		CheckIn:                a.CheckIn,
		CheckOut:               a.CheckOut,
		CheckInLatitude:        a.CheckInLatitude,
		CheckInLongitude:       a.CheckInLongitude,
		CheckInLocation:        a.CheckInLocation,
		CheckInDistance:        a.CheckInDistance,
		WithinGeofence:         a.WithinGeofence,
		CheckOutDistance:       a.CheckOutDistance,
		CheckOutWithinGeofence: a.CheckOutWithinGeofence,
		Status:                 string(a.Status),
		IsLate:                 a.IsLate,
		LateMinutes:            a.LateMinutes,
		ActualWorkHours:        a.ActualWorkHours,
		Notes:                  a.Notes,
	}
}

type AttendanceResultDTO struct {
	Message      string        `json:"message"`
	Attendance   AttendanceDTO `json:"attendance"`
	IsLate       bool          `json:"is_late"`
	LateMinutes  int           `json:"late_minutes"`
	WorkDuration string        `json:"work_duration,omitempty"`
	Geofence     geo.Result    `json:"geofence"`
}

func toAttendanceResultDTO(r attendance.Result) AttendanceResultDTO {
	return AttendanceResultDTO{
		Message:      r.Message,
		Attendance:   toAttendanceDTO(r.Attendance),
		IsLate:       r.IsLate,
		LateMinutes:  r.LateMinutes,
		WorkDuration: r.WorkDuration,
		Geofence:     r.Geofence,
	}
}

type EligibilityDTO struct {
	CanCheckIn  bool           `json:"can_check_in"`
	CanCheckOut bool           `json:"can_check_out"`
	Reason      string         `json:"reason"`
	Message     string         `json:"message"`
	Attendance  *AttendanceDTO `json:"attendance,omitempty"`
}

func toEligibilityDTO(e attendance.Eligibility) EligibilityDTO {
	dto := EligibilityDTO{
		CanCheckIn:  e.CanCheckIn,
		CanCheckOut: e.CanCheckOut,
		Reason:      e.Reason,
		Message:     e.Message,
	}
	if e.Attendance != nil {
		a := toAttendanceDTO(*e.Attendance)
		dto.Attendance = &a
	}
	return dto
}

// =============================================================================
// LEAVES
// =============================================================================

type SubmitLeaveRequest struct {
	EmployeeID string      `json:"employee_id"`
	Type       string      `json:"type"`
	StartDate  domain.Date `json:"start_date"`
	EndDate    domain.Date `json:"end_date"`
	Reason     string      `json:"reason"`
}

// DecisionRequest is the body of approve and reject.
type DecisionRequest struct {
	ApproverID string `json:"approver_id"`
	Reason     string `json:"reason,omitempty"`
}

type LeaveDTO struct {
	ID                  string      `json:"id"`
	EmployeeID          string      `json:"employee_id"`
	LeaveTypeID         string      `json:"leave_type_id,omitempty"`
	Type                string      `json:"type"`
	StartDate           domain.Date `json:"start_date"`
	EndDate             domain.Date `json:"end_date"`
	Reason              string      `json:"reason,omitempty"`
	Status              string      `json:"status"`
	CalculatedDays      domain.Days `json:"calculated_days"`
	DeductedFromBalance bool        `json:"deducted_from_balance"`
	ApprovedBy          string      `json:"approved_by,omitempty"`
	DecidedAt           *time.Time  `json:"decided_at,omitempty"`
	RejectionReason     string      `json:"rejection_reason,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
}

func toLeaveDTO(l domain.Leave) LeaveDTO {
	return LeaveDTO{
		ID:                  l.ID,
		EmployeeID:          l.EmployeeID,
		LeaveTypeID:         l.LeaveTypeID,
		Type:                l.TypeCode,
		StartDate:           l.StartDate,
		EndDate:             l.EndDate,
		Reason:              l.Reason,
		Status:              string(l.Status),
		CalculatedDays:      l.CalculatedDays,
		DeductedFromBalance: l.DeductedFromBalance,
		ApprovedBy:          l.ApprovedBy,
		DecidedAt:           l.DecidedAt,
		RejectionReason:     l.RejectionReason,
		CreatedAt:           l.CreatedAt,
	}
}

type ApproveResultDTO struct {
	Leave       LeaveDTO        `json:"leave"`
	Debited     bool            `json:"debited"`
	Days        *domain.Days    `json:"days,omitempty"`
	Balance     *BalanceDTO     `json:"balance,omitempty"`
	Transaction *TransactionDTO `json:"transaction,omitempty"`
}

func toApproveResultDTO(r leave.ApproveResult) ApproveResultDTO {
	dto := ApproveResultDTO{Leave: toLeaveDTO(r.Leave), Debited: r.Debited}
	if r.Debit != nil {
		days := r.Debit.Days
		b := toBalanceDTO(r.Debit.Balance)
		dto.Days = &days
		dto.Balance = &b
		if r.Debit.Transaction != nil {
			t := toTransactionDTO(*r.Debit.Transaction)
			dto.Transaction = &t
		}
	}
	return dto
}

// =============================================================================
// BALANCES
// =============================================================================

type InitializeRequest struct {
	EmployeeID string `json:"employee_id"`
	Year       int    `json:"year"`
}

type AdjustRequest struct {
	Days    domain.Days `json:"days"`
	Reason  string      `json:"reason"`
	ActorID string      `json:"actor_id,omitempty"`
}

type RecalculateRequest struct {
	ActorID string `json:"actor_id,omitempty"`
}

type BalanceDTO struct {
	ID                 string            `json:"id"`
	EmployeeID         string            `json:"employee_id"`
	LeaveTypeID        string            `json:"leave_type_id"`
	Year               int               `json:"year"`
	Entitled           domain.Days       `json:"entitled"`
	Used               domain.Days       `json:"used"`
	Pending            domain.Days       `json:"pending"`
	CarriedOver        domain.Days       `json:"carried_over"`
	Adjustment         domain.Days       `json:"adjustment"`
	Available          domain.Days       `json:"available"`
	CarryOverExpiredAt *time.Time        `json:"carry_over_expired_at,omitempty"`
	LastCalculatedAt   time.Time         `json:"last_calculated_at"`
	CalculationDetails map[string]string `json:"calculation_details,omitempty"`
}

func toBalanceDTO(b domain.LeaveBalance) BalanceDTO {
	return BalanceDTO{
		ID:                 b.ID,
		EmployeeID:         b.EmployeeID,
		LeaveTypeID:        b.LeaveTypeID,
		Year:               b.PolicyYear,
		Entitled:           b.Entitled,
		Used:               b.Used,
		Pending:            b.Pending,
		CarriedOver:        b.CarriedOver,
		Adjustment:         b.Adjustment,
		Available:          b.Available,
		CarryOverExpiredAt: b.CarryOverExpiredAt,
		LastCalculatedAt:   b.LastCalculatedAt,
		CalculationDetails: b.CalculationDetails,
	}
}

func toBalanceDTOs(bs []domain.LeaveBalance) []BalanceDTO {
	out := make([]BalanceDTO, len(bs))
	for i, b := range bs {
		out[i] = toBalanceDTO(b)
	}
	return out
}

// TransactionDTO represents one audit-trail entry.
type TransactionDTO struct {
	ID          string            `json:"id"`
	BalanceID   string            `json:"balance_id"`
	LeaveID     string            `json:"leave_id,omitempty"`
	Type        string            `json:"type"`
	Days        domain.Days       `json:"days"`
	Reason      string            `json:"reason"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedBy   string            `json:"created_by,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

func toTransactionDTO(t domain.LeaveTransaction) TransactionDTO {
	return TransactionDTO{
		ID:          t.ID,
		BalanceID:   t.BalanceID,
		LeaveID:     t.LeaveID,
		Type:        string(t.Type),
		Days:        t.Days,
		Reason:      t.Reason,
		Description: t.Description,
		Metadata:    t.Metadata,
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
	}
}

// SummaryDTO is an employee's balances for one policy year.
type SummaryDTO struct {
	EmployeeID string               `json:"employee_id"`
	Year       int                  `json:"year"`
	Balances   []ledger.SummaryLine `json:"balances"`
}

// ExpiryRunDTO reports a carry-over expiry sweep.
type ExpiryRunDTO struct {
	Expired int `json:"expired"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error          string   `json:"error"`
	Code           string   `json:"code"`
	Details        string   `json:"details,omitempty"`
	DistanceMeters *float64 `json:"distance_meters,omitempty"`
	AllowedMeters  *int     `json:"allowed_meters,omitempty"`
}
