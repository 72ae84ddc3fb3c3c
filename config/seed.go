package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/warp/attendance-ledger/domain"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// SEED FILE - Directory and leave catalogue bootstrap
// =============================================================================

// Seed is the YAML document applied at startup. Every record carries an
// explicit id so that applying the same file twice is a no-op.
type Seed struct {
	Tenants    []SeedTenant    `yaml:"tenants"`
	Shifts     []SeedShift     `yaml:"shifts"`
	Employees  []SeedEmployee  `yaml:"employees"`
	LeaveTypes []SeedLeaveType `yaml:"leave_types"`
	Policies   []SeedPolicy    `yaml:"policies"`
	Holidays   []SeedHoliday   `yaml:"holidays"`
}

type SeedTenant struct {
	ID                   string      `yaml:"id"`
	Name                 string      `yaml:"name"`
	WorkStart            string      `yaml:"work_start"`
	WorkEnd              string      `yaml:"work_end"`
	LateToleranceMinutes *int        `yaml:"late_tolerance_minutes"`
	WorkingDays          []string    `yaml:"working_days"`
	BreakDurationMinutes *int        `yaml:"break_duration_minutes"`
	Office               *SeedOffice `yaml:"office"`
	Timezone             string      `yaml:"timezone"`
	Active               *bool       `yaml:"active"`
}

type SeedOffice struct {
	Latitude     float64 `yaml:"latitude"`
	Longitude    float64 `yaml:"longitude"`
	RadiusMeters int     `yaml:"radius_meters"`
	Enforce      bool    `yaml:"enforce"`
}

type SeedShift struct {
	ID                   string   `yaml:"id"`
	TenantID             string   `yaml:"tenant_id"`
	Name                 string   `yaml:"name"`
	Start                string   `yaml:"start"`
	End                  string   `yaml:"end"`
	WorkingDays          []string `yaml:"working_days"`
	LateToleranceMinutes int      `yaml:"late_tolerance_minutes"`
	BreakStart           string   `yaml:"break_start"`
	BreakEnd             string   `yaml:"break_end"`
}

type SeedEmployee struct {
	ID       string `yaml:"id"`
	TenantID string `yaml:"tenant_id"`
	ShiftID  string `yaml:"shift_id"`
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	JoinedOn string `yaml:"joined_on"`
	Active   *bool  `yaml:"active"`
}

type SeedLeaveType struct {
	ID                 string         `yaml:"id"`
	TenantID           string         `yaml:"tenant_id"`
	Name               string         `yaml:"name"`
	Code               string         `yaml:"code"`
	AnnualQuota        SeedDays       `yaml:"annual_quota"`
	MaxConsecutiveDays int            `yaml:"max_consecutive_days"`
	MinNoticeDays      int            `yaml:"min_notice_days"`
	RequiresApproval   *bool          `yaml:"requires_approval"`
	Paid               *bool          `yaml:"paid"`
	Active             *bool          `yaml:"active"`
	CarryOver          *SeedCarryOver `yaml:"carry_over"`
}

type SeedCarryOver struct {
	Enabled      bool      `yaml:"enabled"`
	MaxDays      *SeedDays `yaml:"max_days"`
	ExpiryMonths *int      `yaml:"expiry_months"`
	AutoExpire   *bool     `yaml:"auto_expire"`
}

type SeedPolicy struct {
	ID                   string   `yaml:"id"`
	TenantID             string   `yaml:"tenant_id"`
	Year                 int      `yaml:"year"`
	Start                string   `yaml:"start"`
	End                  string   `yaml:"end"`
	ProRateNewEmployees  *bool    `yaml:"pro_rate_new_employees"`
	ProbationMonths      int      `yaml:"probation_months"`
	AllowNegativeBalance bool     `yaml:"allow_negative_balance"`
	MaxCarryOverDays     SeedDays `yaml:"max_carry_over_days"`
	CarryOverExpiry      string   `yaml:"carry_over_expiry"`
}

type SeedHoliday struct {
	ID        string `yaml:"id"`
	TenantID  string `yaml:"tenant_id"`
	Name      string `yaml:"name"`
	Date      string `yaml:"date"`
	Recurring bool   `yaml:"recurring"`
}

// SeedDays accepts both 12 and "6.5".
type SeedDays struct {
	domain.Days
}

func (d *SeedDays) UnmarshalYAML(node *yaml.Node) error {
	days, err := domain.ParseDays(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid day quantity %q", node.Line, node.Value)
	}
	d.Days = days
	return nil
}

// LoadSeed reads and decodes a seed file.
func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(raw)
}

// ParseSeed decodes a seed document. Unknown keys are rejected.
func ParseSeed(raw []byte) (*Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return &seed, nil
		}
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &seed, nil
}

// Apply upserts every record, parents first. It returns the number of
// records written.
func (s *Seed) Apply(ctx context.Context, store domain.CatalogStore) (int, error) {
	n := 0
	for _, st := range s.Tenants {
		t, err := st.toDomain()
		if err != nil {
			return n, err
		}
		if err := store.SaveTenant(ctx, t); err != nil {
			return n, err
		}
		n++
	}
	for _, ss := range s.Shifts {
		sh, err := ss.toDomain()
		if err != nil {
			return n, err
		}
		if err := store.SaveShift(ctx, sh); err != nil {
			return n, err
		}
		n++
	}
	for _, se := range s.Employees {
		e, err := se.toDomain()
		if err != nil {
			return n, err
		}
		if err := store.SaveEmployee(ctx, e); err != nil {
			return n, err
		}
		n++
	}
	for _, sl := range s.LeaveTypes {
		lt, err := sl.toDomain()
		if err != nil {
			return n, err
		}
		if err := store.SaveLeaveType(ctx, lt); err != nil {
			return n, err
		}
		n++
	}
	for _, sp := range s.Policies {
		p, err := sp.toDomain()
		if err != nil {
			return n, err
		}
		if err := store.SaveLeavePolicy(ctx, p); err != nil {
			return n, err
		}
		n++
	}
	for _, sh := range s.Holidays {
		h, err := sh.toDomain()
		if err != nil {
			return n, err
		}
		if err := store.SaveHoliday(ctx, h); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// =============================================================================
// CONVERSION
// =============================================================================

func (st SeedTenant) toDomain() (domain.Tenant, error) {
	if st.ID == "" {
		return domain.Tenant{}, domain.NewValidationError("tenants.id", "is required")
	}
	t := domain.NewTenant(st.ID, st.Name)
	var err error
	if st.WorkStart != "" {
		if t.WorkStart, err = domain.ParseTimeOfDay(st.WorkStart); err != nil {
			return t, seedError("tenant", st.ID, err)
		}
	}
	if st.WorkEnd != "" {
		if t.WorkEnd, err = domain.ParseTimeOfDay(st.WorkEnd); err != nil {
			return t, seedError("tenant", st.ID, err)
		}
	}
	if st.LateToleranceMinutes != nil {
		t.LateToleranceMinutes = *st.LateToleranceMinutes
	}
	if st.BreakDurationMinutes != nil {
		t.BreakDurationMinutes = *st.BreakDurationMinutes
	}
	if len(st.WorkingDays) > 0 {
		if t.WorkingDays, err = domain.ParseWeekdays(st.WorkingDays); err != nil {
			return t, seedError("tenant", st.ID, err)
		}
	}
	if st.Office != nil {
		lat, lng := st.Office.Latitude, st.Office.Longitude
		t.OfficeLatitude, t.OfficeLongitude = &lat, &lng
		t.EnforceGeofence = st.Office.Enforce
		if st.Office.RadiusMeters > 0 {
			t.GeofenceRadiusMeters = st.Office.RadiusMeters
		}
	}
	if st.Timezone != "" {
		if _, err := time.LoadLocation(st.Timezone); err != nil {
			return t, seedError("tenant", st.ID, err)
		}
		t.Timezone = st.Timezone
	}
	t.Active = boolOr(st.Active, true)
	return t, nil
}

func (ss SeedShift) toDomain() (domain.Shift, error) {
	if ss.ID == "" || ss.TenantID == "" {
		return domain.Shift{}, domain.NewValidationError("shifts", "id and tenant_id are required")
	}
	start, err := domain.ParseTimeOfDay(ss.Start)
	if err != nil {
		return domain.Shift{}, seedError("shift", ss.ID, err)
	}
	end, err := domain.ParseTimeOfDay(ss.End)
	if err != nil {
		return domain.Shift{}, seedError("shift", ss.ID, err)
	}
	days := domain.DefaultWorkingDays()
	if len(ss.WorkingDays) > 0 {
		if days, err = domain.ParseWeekdays(ss.WorkingDays); err != nil {
			return domain.Shift{}, seedError("shift", ss.ID, err)
		}
	}
	sh := domain.Shift{
		ID: ss.ID, TenantID: ss.TenantID, Name: ss.Name, Start: start, End: end,
		WorkingDays: days, LateToleranceMinutes: ss.LateToleranceMinutes, Active: true,
	}
	if sh.BreakStart, err = optionalTimeOfDay(ss.BreakStart); err != nil {
		return sh, seedError("shift", ss.ID, err)
	}
	if sh.BreakEnd, err = optionalTimeOfDay(ss.BreakEnd); err != nil {
		return sh, seedError("shift", ss.ID, err)
	}
	return sh, nil
}

func (se SeedEmployee) toDomain() (domain.Employee, error) {
	if se.ID == "" {
		return domain.Employee{}, domain.NewValidationError("employees.id", "is required")
	}
	e := domain.Employee{
		ID: se.ID, TenantID: se.TenantID, ShiftID: se.ShiftID, Name: se.Name, Email: se.Email,
		Active: boolOr(se.Active, true),
	}
	if se.JoinedOn != "" {
		joined, err := domain.ParseDate(se.JoinedOn)
		if err != nil {
			return e, seedError("employee", se.ID, err)
		}
		e.JoinedOn = joined
	}
	return e, nil
}

func (sl SeedLeaveType) toDomain() (domain.LeaveType, error) {
	if sl.ID == "" || domain.NormalizeLeaveCode(sl.Code) == "" {
		return domain.LeaveType{}, domain.NewValidationError("leave_types", "id and code are required")
	}
	if sl.AnnualQuota.IsNegative() {
		return domain.LeaveType{}, domain.NewValidationError("annual_quota", "must not be negative")
	}
	lt := domain.LeaveType{
		ID:                 sl.ID,
		TenantID:           sl.TenantID,
		Name:               sl.Name,
		Code:               domain.NormalizeLeaveCode(sl.Code),
		AnnualQuota:        sl.AnnualQuota.Round2(),
		MaxConsecutiveDays: sl.MaxConsecutiveDays,
		MinNoticeDays:      sl.MinNoticeDays,
		RequiresApproval:   boolOr(sl.RequiresApproval, true),
		Paid:               boolOr(sl.Paid, true),
		Active:             boolOr(sl.Active, true),
		CarryOver:          domain.DefaultCarryOverRule(),
	}
	if lt.Name == "" {
		lt.Name = lt.Code
	}
	if co := sl.CarryOver; co != nil {
		lt.CarryOver.Enabled = co.Enabled
		if co.MaxDays != nil {
			lt.CarryOver.MaxDays = co.MaxDays.Round2()
		}
		if co.ExpiryMonths != nil {
			lt.CarryOver.ExpiryMonths = *co.ExpiryMonths
		}
		lt.CarryOver.AutoExpire = boolOr(co.AutoExpire, true)
	}
	return lt, nil
}

func (sp SeedPolicy) toDomain() (domain.LeavePolicy, error) {
	if sp.ID == "" || sp.Year == 0 {
		return domain.LeavePolicy{}, domain.NewValidationError("policies", "id and year are required")
	}
	p := domain.LeavePolicy{
		ID:                   sp.ID,
		TenantID:             sp.TenantID,
		Year:                 sp.Year,
		Window:               domain.YearWindow(sp.Year),
		ProRateNewEmployees:  boolOr(sp.ProRateNewEmployees, true),
		ProbationMonths:      sp.ProbationMonths,
		AllowNegativeBalance: sp.AllowNegativeBalance,
		MaxCarryOverDays:     sp.MaxCarryOverDays.Round2(),
		Active:               true,
	}
	var err error
	if sp.Start != "" {
		if p.Window.Start, err = domain.ParseDate(sp.Start); err != nil {
			return p, seedError("policy", sp.ID, err)
		}
	}
	if sp.End != "" {
		if p.Window.End, err = domain.ParseDate(sp.End); err != nil {
			return p, seedError("policy", sp.ID, err)
		}
	}
	if !p.Window.Valid() {
		return p, domain.NewValidationError("policies.end", "policy %s ends before it starts", sp.ID)
	}
	if sp.CarryOverExpiry != "" {
		expiry, err := domain.ParseDate(sp.CarryOverExpiry)
		if err != nil {
			return p, seedError("policy", sp.ID, err)
		}
		p.CarryOverExpiry = &expiry
	}
	return p, nil
}

func (sh SeedHoliday) toDomain() (domain.Holiday, error) {
	if sh.ID == "" {
		return domain.Holiday{}, domain.NewValidationError("holidays.id", "is required")
	}
	date, err := domain.ParseDate(sh.Date)
	if err != nil {
		return domain.Holiday{}, seedError("holiday", sh.ID, err)
	}
	return domain.Holiday{
		ID: sh.ID, TenantID: sh.TenantID, Name: sh.Name, Date: date, Recurring: sh.Recurring, Active: true,
	}, nil
}

func optionalTimeOfDay(s string) (*domain.TimeOfDay, error) {
	if s == "" {
		return nil, nil
	}
	t, err := domain.ParseTimeOfDay(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolOr(b *bool, fallback bool) bool {
	if b == nil {
		return fallback
	}
	return *b
}

func seedError(kind, id string, err error) error {
	return fmt.Errorf("seed %s %s: %w", kind, id, err)
}
