package domain

import (
	"strings"
	"time"
)

// =============================================================================
// TENANT - Isolation boundary with attendance defaults
// =============================================================================

// Tenant carries the fallback schedule and the geofence. Employees without
// a shift are evaluated against these defaults.
type Tenant struct {
	ID                   string
	Name                 string
	WorkStart            TimeOfDay
	WorkEnd              TimeOfDay
	LateToleranceMinutes int
	WorkingDays          []time.Weekday
	BreakDurationMinutes int

	OfficeLatitude       *float64
	OfficeLongitude      *float64
	GeofenceRadiusMeters int
	EnforceGeofence      bool

	// Timezone is an IANA name. Empty means UTC.
	Timezone string
	Active   bool
}

// NewTenant returns a tenant with the stock defaults: 08:00-17:00,
// 15 minutes tolerance, Monday to Friday, 100m radius, geofence off.
func NewTenant(id, name string) Tenant {
	return Tenant{
		ID:                   id,
		Name:                 name,
		WorkStart:            MustTimeOfDay("08:00"),
		WorkEnd:              MustTimeOfDay("17:00"),
		LateToleranceMinutes: 15,
		WorkingDays:          DefaultWorkingDays(),
		BreakDurationMinutes: 60,
		GeofenceRadiusMeters: 100,
		Timezone:             "UTC",
		Active:               true,
	}
}

// Location resolves Timezone, falling back to UTC when unknown.
func (t Tenant) Location() *time.Location {
	if t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HasOffice reports whether both office coordinates are configured.
func (t Tenant) HasOffice() bool {
	return t.OfficeLatitude != nil && t.OfficeLongitude != nil
}

// =============================================================================
// SHIFT / EMPLOYEE
// =============================================================================

type Shift struct {
	ID                   string
	TenantID             string
	Name                 string
	Start                TimeOfDay
	End                  TimeOfDay
	WorkingDays          []time.Weekday
	LateToleranceMinutes int
	BreakStart           *TimeOfDay
	BreakEnd             *TimeOfDay
	Active               bool
}

type Employee struct {
	ID       string
	TenantID string // empty for super-scope accounts
	ShiftID  string // empty means tenant defaults
	Name     string
	Email    string
	JoinedOn Date
	Active   bool
}

// =============================================================================
// ATTENDANCE
// =============================================================================

type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusLate    AttendanceStatus = "late"
	StatusAbsent  AttendanceStatus = "absent"
	StatusHalfDay AttendanceStatus = "half_day"
	StatusOnLeave AttendanceStatus = "on_leave"
)

// Attendance is one row per employee per work date.
type Attendance struct {
	ID         string
	TenantID   string
	EmployeeID string
	ShiftID    string
	WorkDate   Date

	CheckIn          time.Time
	CheckInLatitude  *float64
	CheckInLongitude *float64
	CheckInLocation  string
	CheckInDistance  *float64
	WithinGeofence   bool

	CheckOut               *time.Time
	CheckOutLatitude       *float64
	CheckOutLongitude      *float64
	CheckOutLocation       string
	CheckOutDistance       *float64
	CheckOutWithinGeofence *bool

	Status          AttendanceStatus
	IsLate          bool
	LateMinutes     int
	ActualWorkHours string // HH:MM:SS duration
	Notes           string
	CreatedAt       time.Time
}

// Open reports whether the session is still waiting for a check-out.
func (a Attendance) Open() bool { return a.CheckOut == nil }

// =============================================================================
// LEAVE CATALOGUE
// =============================================================================

// CarryOverRule controls how unused days move into the next policy year.
type CarryOverRule struct {
	Enabled      bool
	MaxDays      Days
	ExpiryMonths int
	AutoExpire   bool
}

func DefaultCarryOverRule() CarryOverRule {
	return CarryOverRule{MaxDays: DaysFromInt(5), ExpiryMonths: 3, AutoExpire: true}
}

type LeaveType struct {
	ID                 string
	TenantID           string
	Name               string
	Code               string // unique per tenant, upper-case
	AnnualQuota        Days
	MaxConsecutiveDays int // 0 = unlimited
	MinNoticeDays      int
	RequiresApproval   bool
	Paid               bool
	Active             bool
	CarryOver          CarryOverRule
}

// NormalizeLeaveCode upper-cases and trims a leave type code.
func NormalizeLeaveCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LeavePolicy is the per-tenant, per-year rule set.
type LeavePolicy struct {
	ID                   string
	TenantID             string
	Year                 int
	Window               Window
	ProRateNewEmployees  bool
	ProbationMonths      int
	AllowNegativeBalance bool
	MaxCarryOverDays     Days
	CarryOverExpiry      *Date
	Active               bool
}

// =============================================================================
// BALANCE
// =============================================================================

// BalanceKey identifies the single balance row allowed per
// employee, leave type and policy year.
type BalanceKey struct {
	EmployeeID  string
	LeaveTypeID string
	PolicyYear  int
}

type LeaveBalance struct {
	ID          string
	TenantID    string
	EmployeeID  string
	LeaveTypeID string
	PolicyYear  int

	Entitled    Days
	Used        Days
	Pending     Days
	CarriedOver Days
	Adjustment  Days
	Available   Days

	CarryOverExpiredAt *time.Time
	LastCalculatedAt   time.Time
	CalculationDetails map[string]string
}

func (b LeaveBalance) Key() BalanceKey {
	return BalanceKey{EmployeeID: b.EmployeeID, LeaveTypeID: b.LeaveTypeID, PolicyYear: b.PolicyYear}
}

// Recompute sets Available from the other components. Every mutation of a
// balance must end with a call to Recompute before it is persisted.
func (b *LeaveBalance) Recompute() {
	b.Available = b.Entitled.Add(b.CarriedOver).Add(b.Adjustment).Sub(b.Used).Sub(b.Pending).Round2()
}

// Consistent checks the available-days identity.
func (b LeaveBalance) Consistent() bool {
	want := b.Entitled.Add(b.CarriedOver).Add(b.Adjustment).Sub(b.Used).Sub(b.Pending).Round2()
	return want.Equal(b.Available)
}

// Clone copies the balance including its details map.
func (b LeaveBalance) Clone() LeaveBalance {
	b.CalculationDetails = cloneStrings(b.CalculationDetails)
	if b.CarryOverExpiredAt != nil {
		t := *b.CarryOverExpiredAt
		b.CarryOverExpiredAt = &t
	}
	return b
}

// =============================================================================
// TRANSACTIONS - Append-only audit trail
// =============================================================================

type TransactionType string

const (
	TxCredit     TransactionType = "credit"
	TxDebit      TransactionType = "debit"
	TxAdjustment TransactionType = "adjustment"
)

// Transaction reason codes.
const (
	ReasonAnnualEntitlement = "annual_entitlement"
	ReasonCarryOver         = "carry_over"
	ReasonLeaveTaken        = "leave_taken"
	ReasonManualAdjustment  = "manual_adjustment"
	ReasonRecalculation     = "entitlement_recalculation"
	ReasonCarryOverExpired  = "carry_over_expired"
)

// LeaveTransaction records one change to a balance. Days is always
// positive; Type carries the direction.
type LeaveTransaction struct {
	ID          string
	TenantID    string
	BalanceID   string
	EmployeeID  string
	LeaveTypeID string
	LeaveID     string
	Type        TransactionType
	Days        Days
	Reason      string
	Description string
	Metadata    map[string]string
	CreatedBy   string
	CreatedAt   time.Time
}

func (t LeaveTransaction) Clone() LeaveTransaction {
	t.Metadata = cloneStrings(t.Metadata)
	return t
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type LeaveStatus string

const (
	LeavePending  LeaveStatus = "pending"
	LeaveApproved LeaveStatus = "approved"
	LeaveRejected LeaveStatus = "rejected"
)

type Leave struct {
	ID                  string
	TenantID            string
	EmployeeID          string
	LeaveTypeID         string
	TypeCode            string
	StartDate           Date
	EndDate             Date
	Reason              string
	Status              LeaveStatus
	CalculatedDays      Days
	DeductedFromBalance bool
	ApprovedBy          string
	DecidedAt           *time.Time
	RejectionReason     string
	CreatedAt           time.Time
}

// =============================================================================
// HOLIDAY
// =============================================================================

// Holiday with an empty TenantID applies to every tenant.
type Holiday struct {
	ID        string
	TenantID  string
	Name      string
	Date      Date
	Recurring bool
	Active    bool
}

// Matches reports whether the holiday falls on d for the given tenant.
func (h Holiday) Matches(d Date, tenantID string) bool {
	if !h.Active || (h.TenantID != "" && h.TenantID != tenantID) {
		return false
	}
	if h.Recurring {
		return h.Date.Month == d.Month && h.Date.Day == d.Day
	}
	return h.Date.Equal(d)
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
