/*
Package sqlite provides a SQLite-backed implementation of domain.TxStore.

PURPOSE:
  The default persistent store. Every engine operation that mutates state
  runs inside WithTx on a single *sql.Tx.

KEY TABLES:
  tenants, shifts, employees: directory data (seeded or admin-managed)
  attendances:                one row per employee per work date
  leave_types, leave_policies: the leave catalogue
  leave_balances:             one row per employee/type/policy year
  leave_transactions:         append-only audit trail of balance changes
  leaves:                     leave requests and their deduction flag
  holidays:                   tenant or global, one-off or recurring

INVARIANTS BACKED BY INDEXES:
  - idx_attendance_employee_day: (employee_id, work_date) UNIQUE
  - idx_balance_key:             (employee_id, leave_type_id, policy_year) UNIQUE
  - idx_leave_type_code:         (tenant_id, code) UNIQUE
  - idx_policy_year:             (tenant_id, policy_year) UNIQUE
  Violations surface as domain.StateConflictError.

APPEND-ONLY ENFORCEMENT:
  leave_transactions has INSERT only. No UPDATE or DELETE statement
  touches it anywhere in this package.

CONCURRENCY:
  The pool is limited to one connection, so writers are serialised by
  SQLite itself and ":memory:" databases stay a single database. WithTx
  additionally holds a mutex so that transactions queue in-process rather
  than failing with SQLITE_BUSY. Lock is therefore a no-op.

WAL MODE:
  File databases are opened with WAL and foreign keys on.

USAGE:
  store, err := sqlite.New("./data/attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - domain/store.go: interface definitions
  - store/memory: in-memory implementation for tests
  - store/postgres: multi-node deployment
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/attendance-ledger/domain"
)

// Store implements domain.TxStore using SQLite.
type Store struct {
	*conn
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{conn: &conn{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		work_start INTEGER NOT NULL,
		work_end INTEGER NOT NULL,
		late_tolerance_minutes INTEGER NOT NULL,
		working_days TEXT NOT NULL,
		break_duration_minutes INTEGER NOT NULL DEFAULT 60,
		office_latitude REAL,
		office_longitude REAL,
		geofence_radius_meters INTEGER NOT NULL DEFAULT 100,
		enforce_geofence INTEGER NOT NULL DEFAULT 0,
		timezone TEXT NOT NULL DEFAULT 'UTC',
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER NOT NULL,
		working_days TEXT NOT NULL,
		late_tolerance_minutes INTEGER NOT NULL,
		break_start INTEGER,
		break_end INTEGER,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		tenant_id TEXT,
		shift_id TEXT,
		name TEXT NOT NULL,
		email TEXT,
		joined_on TEXT,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS attendances (
		id TEXT PRIMARY KEY,
		tenant_id TEXT,
		employee_id TEXT NOT NULL,
		shift_id TEXT,
		work_date TEXT NOT NULL,
		check_in TEXT NOT NULL,
		check_in_latitude REAL,
		check_in_longitude REAL,
		check_in_location TEXT,
		check_in_distance REAL,
		within_geofence INTEGER NOT NULL,
		check_out TEXT,
		check_out_latitude REAL,
		check_out_longitude REAL,
		check_out_location TEXT,
		check_out_distance REAL,
		check_out_within_geofence INTEGER,
		status TEXT NOT NULL,
		is_late INTEGER NOT NULL,
		late_minutes INTEGER NOT NULL,
		actual_work_hours TEXT,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	-- One attendance row per employee per day
	CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_employee_day
		ON attendances(employee_id, work_date);

	CREATE TABLE IF NOT EXISTS leave_types (
		id TEXT PRIMARY KEY,
		tenant_id TEXT,
		name TEXT NOT NULL,
		code TEXT NOT NULL,
		annual_quota TEXT NOT NULL,
		max_consecutive_days INTEGER NOT NULL DEFAULT 0,
		min_notice_days INTEGER NOT NULL DEFAULT 0,
		requires_approval INTEGER NOT NULL DEFAULT 1,
		paid INTEGER NOT NULL DEFAULT 1,
		active INTEGER NOT NULL DEFAULT 1,
		carry_over_enabled INTEGER NOT NULL DEFAULT 0,
		carry_over_max_days TEXT NOT NULL DEFAULT '5',
		carry_over_expiry_months INTEGER NOT NULL DEFAULT 3,
		carry_over_auto_expire INTEGER NOT NULL DEFAULT 1
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_leave_type_code
		ON leave_types(tenant_id, code);

	CREATE TABLE IF NOT EXISTS leave_policies (
		id TEXT PRIMARY KEY,
		tenant_id TEXT,
		policy_year INTEGER NOT NULL,
		year_start TEXT NOT NULL,
		year_end TEXT NOT NULL,
		pro_rate_new_employees INTEGER NOT NULL DEFAULT 1,
		probation_months INTEGER NOT NULL DEFAULT 0,
		allow_negative_balance INTEGER NOT NULL DEFAULT 0,
		max_carry_over_days TEXT NOT NULL DEFAULT '0',
		carry_over_expiry TEXT,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_policy_year
		ON leave_policies(tenant_id, policy_year);

	CREATE TABLE IF NOT EXISTS leave_balances (
		id TEXT PRIMARY KEY,
		tenant_id TEXT,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		policy_year INTEGER NOT NULL,
		entitled TEXT NOT NULL,
		used TEXT NOT NULL,
		pending TEXT NOT NULL,
		carried_over TEXT NOT NULL,
		adjustment TEXT NOT NULL,
		available TEXT NOT NULL,
		carry_over_expired_at TEXT,
		last_calculated_at TEXT NOT NULL,
		calculation_details TEXT
	);

	-- CRITICAL: one balance per employee, leave type and policy year
	CREATE UNIQUE INDEX IF NOT EXISTS idx_balance_key
		ON leave_balances(employee_id, leave_type_id, policy_year);

	-- Transactions (append-only)
	CREATE TABLE IF NOT EXISTS leave_transactions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		tenant_id TEXT,
		balance_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT NOT NULL,
		leave_id TEXT,
		tx_type TEXT NOT NULL CHECK (tx_type IN ('credit', 'debit', 'adjustment')),
		days TEXT NOT NULL,
		reason TEXT NOT NULL,
		description TEXT,
		metadata_json TEXT,
		created_by TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_balance
		ON leave_transactions(balance_id, seq);
	CREATE INDEX IF NOT EXISTS idx_transactions_leave
		ON leave_transactions(leave_id) WHERE leave_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS leaves (
		id TEXT PRIMARY KEY,
		tenant_id TEXT,
		employee_id TEXT NOT NULL,
		leave_type_id TEXT,
		type_code TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		reason TEXT,
		status TEXT NOT NULL,
		calculated_days TEXT NOT NULL DEFAULT '0',
		deducted_from_balance INTEGER NOT NULL DEFAULT 0,
		approved_by TEXT,
		decided_at TEXT,
		rejection_reason TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leaves_employee
		ON leaves(employee_id, start_date);

	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		tenant_id TEXT,
		name TEXT NOT NULL,
		holiday_date TEXT NOT NULL,
		recurring INTEGER NOT NULL DEFAULT 0,
		active INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_date
		ON holidays(holiday_date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (domain.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(domain.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// conn implements domain.Store against a queryer.
type conn struct {
	q queryer
}

// Lock is a no-op: the single connection already serialises writers.
func (c *conn) Lock(context.Context, string) error { return nil }

// =============================================================================
// DIRECTORY
// =============================================================================

func (c *conn) SaveTenant(ctx context.Context, t domain.Tenant) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO tenants (id, name, work_start, work_end, late_tolerance_minutes, working_days,
			break_duration_minutes, office_latitude, office_longitude, geofence_radius_meters,
			enforce_geofence, timezone, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, work_start = excluded.work_start, work_end = excluded.work_end,
			late_tolerance_minutes = excluded.late_tolerance_minutes, working_days = excluded.working_days,
			break_duration_minutes = excluded.break_duration_minutes,
			office_latitude = excluded.office_latitude, office_longitude = excluded.office_longitude,
			geofence_radius_meters = excluded.geofence_radius_meters,
			enforce_geofence = excluded.enforce_geofence, timezone = excluded.timezone,
			active = excluded.active`,
		t.ID, t.Name, int(t.WorkStart), int(t.WorkEnd), t.LateToleranceMinutes, encodeWeekdays(t.WorkingDays),
		t.BreakDurationMinutes, nullFloat(t.OfficeLatitude), nullFloat(t.OfficeLongitude), t.GeofenceRadiusMeters,
		t.EnforceGeofence, t.Timezone, t.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

func (c *conn) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	row := c.q.QueryRowContext(ctx, `
		SELECT id, name, work_start, work_end, late_tolerance_minutes, working_days,
			break_duration_minutes, office_latitude, office_longitude, geofence_radius_meters,
			enforce_geofence, timezone, active
		FROM tenants WHERE id = ?`, id)

	var (
		t        domain.Tenant
		start    int
		end      int
		days     string
		lat, lon sql.NullFloat64
	)
	err := row.Scan(&t.ID, &t.Name, &start, &end, &t.LateToleranceMinutes, &days,
		&t.BreakDurationMinutes, &lat, &lon, &t.GeofenceRadiusMeters,
		&t.EnforceGeofence, &t.Timezone, &t.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("tenant", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	t.WorkStart, t.WorkEnd = domain.TimeOfDay(start), domain.TimeOfDay(end)
	t.WorkingDays = decodeWeekdays(days)
	t.OfficeLatitude, t.OfficeLongitude = floatPtr(lat), floatPtr(lon)
	return &t, nil
}

func (c *conn) SaveShift(ctx context.Context, s domain.Shift) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO shifts (id, tenant_id, name, start_time, end_time, working_days,
			late_tolerance_minutes, break_start, break_end, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id, name = excluded.name, start_time = excluded.start_time,
			end_time = excluded.end_time, working_days = excluded.working_days,
			late_tolerance_minutes = excluded.late_tolerance_minutes,
			break_start = excluded.break_start, break_end = excluded.break_end, active = excluded.active`,
		s.ID, s.TenantID, s.Name, int(s.Start), int(s.End), encodeWeekdays(s.WorkingDays),
		s.LateToleranceMinutes, nullTimeOfDay(s.BreakStart), nullTimeOfDay(s.BreakEnd), s.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save shift: %w", err)
	}
	return nil
}

func (c *conn) GetShift(ctx context.Context, id string) (*domain.Shift, error) {
	row := c.q.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, start_time, end_time, working_days,
			late_tolerance_minutes, break_start, break_end, active
		FROM shifts WHERE id = ?`, id)

	var (
		s                    domain.Shift
		start, end           int
		days                 string
		breakStart, breakEnd sql.NullInt64
	)
	err := row.Scan(&s.ID, &s.TenantID, &s.Name, &start, &end, &days,
		&s.LateToleranceMinutes, &breakStart, &breakEnd, &s.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("shift", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}
	s.Start, s.End = domain.TimeOfDay(start), domain.TimeOfDay(end)
	s.WorkingDays = decodeWeekdays(days)
	s.BreakStart, s.BreakEnd = timeOfDayPtr(breakStart), timeOfDayPtr(breakEnd)
	return &s, nil
}

func (c *conn) SaveEmployee(ctx context.Context, e domain.Employee) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO employees (id, tenant_id, shift_id, name, email, joined_on, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id, shift_id = excluded.shift_id, name = excluded.name,
			email = excluded.email, joined_on = excluded.joined_on, active = excluded.active`,
		e.ID, nullString(e.TenantID), nullString(e.ShiftID), e.Name, nullString(e.Email), nullDate(e.JoinedOn), e.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (c *conn) GetEmployee(ctx context.Context, id string) (*domain.Employee, error) {
	row := c.q.QueryRowContext(ctx, `
		SELECT id, tenant_id, shift_id, name, email, joined_on, active
		FROM employees WHERE id = ?`, id)

	var (
		e                        domain.Employee
		tenantID, shiftID, email sql.NullString
		joined                   sql.NullString
	)
	err := row.Scan(&e.ID, &tenantID, &shiftID, &e.Name, &email, &joined, &e.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("employee", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	e.TenantID, e.ShiftID, e.Email = tenantID.String, shiftID.String, email.String
	e.JoinedOn = parseDate(joined.String)
	return &e, nil
}

// =============================================================================
// ATTENDANCE
// =============================================================================

const attendanceColumns = `id, tenant_id, employee_id, shift_id, work_date,
	check_in, check_in_latitude, check_in_longitude, check_in_location, check_in_distance, within_geofence,
	check_out, check_out_latitude, check_out_longitude, check_out_location, check_out_distance, check_out_within_geofence,
	status, is_late, late_minutes, actual_work_hours, notes, created_at`

func (c *conn) FindAttendance(ctx context.Context, employeeID string, day domain.Date) (*domain.Attendance, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendances WHERE employee_id = ? AND work_date = ?`,
		employeeID, day.String())
	a, err := scanAttendance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *conn) CreateAttendance(ctx context.Context, a domain.Attendance) error {
	_, err := c.q.ExecContext(ctx, `INSERT INTO attendances (`+attendanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attendanceArgs(a)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.NewStateConflict(domain.ConflictAlreadyCheckedIn, "You have already checked in today")
		}
		return fmt.Errorf("failed to create attendance: %w", err)
	}
	return nil
}

func (c *conn) UpdateAttendance(ctx context.Context, a domain.Attendance) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE attendances SET
			check_out = ?, check_out_latitude = ?, check_out_longitude = ?, check_out_location = ?,
			check_out_distance = ?, check_out_within_geofence = ?, status = ?, actual_work_hours = ?, notes = ?
		WHERE id = ?`,
		nullTime(a.CheckOut), nullFloat(a.CheckOutLatitude), nullFloat(a.CheckOutLongitude), nullString(a.CheckOutLocation),
		nullFloat(a.CheckOutDistance), nullBool(a.CheckOutWithinGeofence), string(a.Status), nullString(a.ActualWorkHours), a.Notes,
		a.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update attendance: %w", err)
	}
	return requireRow(res, "attendance", a.ID)
}

func attendanceArgs(a domain.Attendance) []any {
	return []any{
		a.ID, nullString(a.TenantID), a.EmployeeID, nullString(a.ShiftID), a.WorkDate.String(),
		formatTime(a.CheckIn), nullFloat(a.CheckInLatitude), nullFloat(a.CheckInLongitude), nullString(a.CheckInLocation),
		nullFloat(a.CheckInDistance), a.WithinGeofence,
		nullTime(a.CheckOut), nullFloat(a.CheckOutLatitude), nullFloat(a.CheckOutLongitude), nullString(a.CheckOutLocation),
		nullFloat(a.CheckOutDistance), nullBool(a.CheckOutWithinGeofence),
		string(a.Status), a.IsLate, a.LateMinutes, nullString(a.ActualWorkHours), a.Notes, formatTime(a.CreatedAt),
	}
}

func scanAttendance(row scanner) (domain.Attendance, error) {
	var (
		a                            domain.Attendance
		tenantID, shiftID            sql.NullString
		workDate, checkIn, createdAt string
		inLat, inLon, inDist         sql.NullFloat64
		inLoc, outLoc, hours, notes  sql.NullString
		checkOut                     sql.NullString
		outLat, outLon, outDist      sql.NullFloat64
		outWithin                    sql.NullBool
		status                       string
	)
	err := row.Scan(&a.ID, &tenantID, &a.EmployeeID, &shiftID, &workDate,
		&checkIn, &inLat, &inLon, &inLoc, &inDist, &a.WithinGeofence,
		&checkOut, &outLat, &outLon, &outLoc, &outDist, &outWithin,
		&status, &a.IsLate, &a.LateMinutes, &hours, &notes, &createdAt)
	if err != nil {
		return a, err
	}
	a.TenantID, a.ShiftID = tenantID.String, shiftID.String
	a.WorkDate = parseDate(workDate)
	a.CheckIn = parseTime(checkIn)
	a.CheckInLatitude, a.CheckInLongitude, a.CheckInDistance = floatPtr(inLat), floatPtr(inLon), floatPtr(inDist)
	a.CheckInLocation = inLoc.String
	a.CheckOut = timePtr(checkOut)
	a.CheckOutLatitude, a.CheckOutLongitude, a.CheckOutDistance = floatPtr(outLat), floatPtr(outLon), floatPtr(outDist)
	a.CheckOutLocation = outLoc.String
	if outWithin.Valid {
		v := outWithin.Bool
		a.CheckOutWithinGeofence = &v
	}
	a.Status = domain.AttendanceStatus(status)
	a.ActualWorkHours, a.Notes = hours.String, notes.String
	a.CreatedAt = parseTime(createdAt)
	return a, nil
}

// =============================================================================
// LEAVE TYPES & POLICIES
// =============================================================================

const leaveTypeColumns = `id, tenant_id, name, code, annual_quota, max_consecutive_days, min_notice_days,
	requires_approval, paid, active, carry_over_enabled, carry_over_max_days,
	carry_over_expiry_months, carry_over_auto_expire`

func (c *conn) GetLeaveType(ctx context.Context, id string) (*domain.LeaveType, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE id = ?`, id)
	lt, err := scanLeaveType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("leave_type", id)
	}
	if err != nil {
		return nil, err
	}
	return &lt, nil
}

func (c *conn) FindLeaveTypeByCode(ctx context.Context, tenantID, code string) (*domain.LeaveType, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+leaveTypeColumns+` FROM leave_types WHERE IFNULL(tenant_id, '') = ? AND code = ?`,
		tenantID, domain.NormalizeLeaveCode(code))
	lt, err := scanLeaveType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lt, nil
}

func (c *conn) ListLeaveTypes(ctx context.Context, tenantID string, activeOnly bool) ([]domain.LeaveType, error) {
	query := `SELECT ` + leaveTypeColumns + ` FROM leave_types WHERE IFNULL(tenant_id, '') = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY code ASC`

	rows, err := c.q.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave types: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaveType
	for rows.Next() {
		lt, err := scanLeaveType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lt)
	}
	return out, rows.Err()
}

func (c *conn) CreateLeaveType(ctx context.Context, lt domain.LeaveType) error {
	_, err := c.q.ExecContext(ctx, `INSERT INTO leave_types (`+leaveTypeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, leaveTypeArgs(lt)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.NewStateConflict(domain.ConflictDuplicateRecord, "leave type code already exists: "+lt.Code)
		}
		return fmt.Errorf("failed to create leave type: %w", err)
	}
	return nil
}

func (c *conn) SaveLeaveType(ctx context.Context, lt domain.LeaveType) error {
	_, err := c.q.ExecContext(ctx, `INSERT INTO leave_types (`+leaveTypeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id, name = excluded.name, code = excluded.code,
			annual_quota = excluded.annual_quota, max_consecutive_days = excluded.max_consecutive_days,
			min_notice_days = excluded.min_notice_days, requires_approval = excluded.requires_approval,
			paid = excluded.paid, active = excluded.active, carry_over_enabled = excluded.carry_over_enabled,
			carry_over_max_days = excluded.carry_over_max_days,
			carry_over_expiry_months = excluded.carry_over_expiry_months,
			carry_over_auto_expire = excluded.carry_over_auto_expire`, leaveTypeArgs(lt)...)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.NewStateConflict(domain.ConflictDuplicateRecord, "leave type code already exists: "+lt.Code)
		}
		return fmt.Errorf("failed to save leave type: %w", err)
	}
	return nil
}

func leaveTypeArgs(lt domain.LeaveType) []any {
	return []any{
		lt.ID, nullString(lt.TenantID), lt.Name, domain.NormalizeLeaveCode(lt.Code), lt.AnnualQuota.Value.String(),
		lt.MaxConsecutiveDays, lt.MinNoticeDays, lt.RequiresApproval, lt.Paid, lt.Active,
		lt.CarryOver.Enabled, lt.CarryOver.MaxDays.Value.String(), lt.CarryOver.ExpiryMonths, lt.CarryOver.AutoExpire,
	}
}

func scanLeaveType(row scanner) (domain.LeaveType, error) {
	var (
		lt       domain.LeaveType
		tenantID sql.NullString
		quota    string
		maxDays  string
	)
	err := row.Scan(&lt.ID, &tenantID, &lt.Name, &lt.Code, &quota, &lt.MaxConsecutiveDays, &lt.MinNoticeDays,
		&lt.RequiresApproval, &lt.Paid, &lt.Active, &lt.CarryOver.Enabled, &maxDays,
		&lt.CarryOver.ExpiryMonths, &lt.CarryOver.AutoExpire)
	if err != nil {
		return lt, err
	}
	lt.TenantID = tenantID.String
	var dec domain.DaysDecoder
	lt.AnnualQuota = dec.Parse("annual_quota", quota)
	lt.CarryOver.MaxDays = dec.Parse("carry_over_max_days", maxDays)
	return lt, dec.Err
}

const policyColumns = `id, tenant_id, policy_year, year_start, year_end, pro_rate_new_employees,
	probation_months, allow_negative_balance, max_carry_over_days, carry_over_expiry, active`

func (c *conn) FindPolicy(ctx context.Context, tenantID string, year int) (*domain.LeavePolicy, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM leave_policies
		 WHERE IFNULL(tenant_id, '') = ? AND policy_year = ? AND active = 1`, tenantID, year)
	return optionalPolicy(scanPolicy(row))
}

func (c *conn) FindPolicyCovering(ctx context.Context, tenantID string, day domain.Date) (*domain.LeavePolicy, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM leave_policies
		 WHERE IFNULL(tenant_id, '') = ? AND active = 1 AND year_start <= ? AND year_end >= ?
		 ORDER BY policy_year DESC LIMIT 1`, tenantID, day.String(), day.String())
	return optionalPolicy(scanPolicy(row))
}

func (c *conn) SaveLeavePolicy(ctx context.Context, p domain.LeavePolicy) error {
	_, err := c.q.ExecContext(ctx, `INSERT INTO leave_policies (`+policyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id, policy_year = excluded.policy_year,
			year_start = excluded.year_start, year_end = excluded.year_end,
			pro_rate_new_employees = excluded.pro_rate_new_employees,
			probation_months = excluded.probation_months,
			allow_negative_balance = excluded.allow_negative_balance,
			max_carry_over_days = excluded.max_carry_over_days,
			carry_over_expiry = excluded.carry_over_expiry, active = excluded.active`,
		p.ID, nullString(p.TenantID), p.Year, p.Window.Start.String(), p.Window.End.String(), p.ProRateNewEmployees,
		p.ProbationMonths, p.AllowNegativeBalance, p.MaxCarryOverDays.Value.String(), nullDatePtr(p.CarryOverExpiry), p.Active,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.NewStateConflict(domain.ConflictDuplicateRecord, fmt.Sprintf("policy for year %d already exists", p.Year))
		}
		return fmt.Errorf("failed to save leave policy: %w", err)
	}
	return nil
}

func scanPolicy(row scanner) (domain.LeavePolicy, error) {
	var (
		p                 domain.LeavePolicy
		tenantID          sql.NullString
		start, end, maxCO string
		expiry            sql.NullString
	)
	err := row.Scan(&p.ID, &tenantID, &p.Year, &start, &end, &p.ProRateNewEmployees,
		&p.ProbationMonths, &p.AllowNegativeBalance, &maxCO, &expiry, &p.Active)
	if err != nil {
		return p, err
	}
	p.TenantID = tenantID.String
	p.Window = domain.Window{Start: parseDate(start), End: parseDate(end)}
	var dec domain.DaysDecoder
	p.MaxCarryOverDays = dec.Parse("max_carry_over_days", maxCO)
	if expiry.Valid && expiry.String != "" {
		d := parseDate(expiry.String)
		p.CarryOverExpiry = &d
	}
	return p, dec.Err
}

func optionalPolicy(p domain.LeavePolicy, err error) (*domain.LeavePolicy, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read leave policy: %w", err)
	}
	return &p, nil
}

// =============================================================================
// BALANCES
// =============================================================================

const balanceColumns = `id, tenant_id, employee_id, leave_type_id, policy_year,
	entitled, used, pending, carried_over, adjustment, available,
	carry_over_expired_at, last_calculated_at, calculation_details`

func (c *conn) GetBalance(ctx context.Context, id string) (*domain.LeaveBalance, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+balanceColumns+` FROM leave_balances WHERE id = ?`, id)
	b, err := scanBalance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("balance", id)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *conn) FindBalance(ctx context.Context, key domain.BalanceKey) (*domain.LeaveBalance, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+balanceColumns+` FROM leave_balances
		WHERE employee_id = ? AND leave_type_id = ? AND policy_year = ?`,
		key.EmployeeID, key.LeaveTypeID, key.PolicyYear)
	b, err := scanBalance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (c *conn) ListBalances(ctx context.Context, employeeID string, year int) ([]domain.LeaveBalance, error) {
	return c.queryBalances(ctx, `SELECT `+balanceColumns+` FROM leave_balances
		WHERE employee_id = ? AND policy_year = ? ORDER BY leave_type_id ASC`, employeeID, year)
}

func (c *conn) ListBalancesWithCarryOver(ctx context.Context) ([]domain.LeaveBalance, error) {
	return c.queryBalances(ctx, `SELECT `+balanceColumns+` FROM leave_balances
		WHERE CAST(carried_over AS REAL) > 0 AND carry_over_expired_at IS NULL ORDER BY id ASC`)
}

func (c *conn) queryBalances(ctx context.Context, query string, args ...any) ([]domain.LeaveBalance, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaveBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (c *conn) CreateBalance(ctx context.Context, b domain.LeaveBalance) error {
	details, _ := json.Marshal(b.CalculationDetails)
	_, err := c.q.ExecContext(ctx, `INSERT INTO leave_balances (`+balanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, nullString(b.TenantID), b.EmployeeID, b.LeaveTypeID, b.PolicyYear,
		b.Entitled.String(), b.Used.String(), b.Pending.String(), b.CarriedOver.String(), b.Adjustment.String(), b.Available.String(),
		nullTime(b.CarryOverExpiredAt), formatTime(b.LastCalculatedAt), string(details),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.NewStateConflict(domain.ConflictDuplicateBalance, "balance already initialized")
		}
		return fmt.Errorf("failed to create balance: %w", err)
	}
	return nil
}

func (c *conn) UpdateBalance(ctx context.Context, b domain.LeaveBalance) error {
	details, _ := json.Marshal(b.CalculationDetails)
	res, err := c.q.ExecContext(ctx, `
		UPDATE leave_balances SET
			entitled = ?, used = ?, pending = ?, carried_over = ?, adjustment = ?, available = ?,
			carry_over_expired_at = ?, last_calculated_at = ?, calculation_details = ?
		WHERE id = ?`,
		b.Entitled.String(), b.Used.String(), b.Pending.String(), b.CarriedOver.String(), b.Adjustment.String(), b.Available.String(),
		nullTime(b.CarryOverExpiredAt), formatTime(b.LastCalculatedAt), string(details),
		b.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return requireRow(res, "balance", b.ID)
}

func scanBalance(row scanner) (domain.LeaveBalance, error) {
	var (
		b                                                       domain.LeaveBalance
		tenantID                                                sql.NullString
		entitled, used, pending, carried, adjustment, available string
		expiredAt, details                                      sql.NullString
		lastCalc                                                string
	)
	err := row.Scan(&b.ID, &tenantID, &b.EmployeeID, &b.LeaveTypeID, &b.PolicyYear,
		&entitled, &used, &pending, &carried, &adjustment, &available,
		&expiredAt, &lastCalc, &details)
	if err != nil {
		return b, err
	}
	b.TenantID = tenantID.String
	var dec domain.DaysDecoder
	b.Entitled = dec.Parse("entitled", entitled)
	b.Used = dec.Parse("used", used)
	b.Pending = dec.Parse("pending", pending)
	b.CarriedOver = dec.Parse("carried_over", carried)
	b.Adjustment = dec.Parse("adjustment", adjustment)
	b.Available = dec.Parse("available", available)
	if dec.Err != nil {
		return b, fmt.Errorf("balance %s: %w", b.ID, dec.Err)
	}
	b.CarryOverExpiredAt = timePtr(expiredAt)
	b.LastCalculatedAt = parseTime(lastCalc)
	if details.Valid && details.String != "" && details.String != "null" {
		if err := json.Unmarshal([]byte(details.String), &b.CalculationDetails); err != nil {
			return b, fmt.Errorf("balance %s: invalid calculation_details: %w", b.ID, err)
		}
	}
	return b, nil
}

// =============================================================================
// TRANSACTIONS (append-only)
// =============================================================================

func (c *conn) AppendTransaction(ctx context.Context, tx domain.LeaveTransaction) error {
	metadataJSON, _ := json.Marshal(tx.Metadata)
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO leave_transactions
		(id, tenant_id, balance_id, employee_id, leave_type_id, leave_id, tx_type, days,
		 reason, description, metadata_json, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, nullString(tx.TenantID), tx.BalanceID, tx.EmployeeID, tx.LeaveTypeID, nullString(tx.LeaveID),
		string(tx.Type), tx.Days.String(), tx.Reason, tx.Description, string(metadataJSON),
		nullString(tx.CreatedBy), formatTime(tx.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.NewStateConflict(domain.ConflictDuplicateRecord, "transaction already recorded")
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (c *conn) ListTransactions(ctx context.Context, balanceID string) ([]domain.LeaveTransaction, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, tenant_id, balance_id, employee_id, leave_type_id, leave_id, tx_type, days,
		       reason, description, metadata_json, created_by, created_at
		FROM leave_transactions WHERE balance_id = ? ORDER BY seq ASC`, balanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaveTransaction
	for rows.Next() {
		var (
			t                                        domain.LeaveTransaction
			tenantID, leaveID, desc, meta, createdBy sql.NullString
			typ, days, createdAt                     string
		)
		if err := rows.Scan(&t.ID, &tenantID, &t.BalanceID, &t.EmployeeID, &t.LeaveTypeID, &leaveID, &typ, &days,
			&t.Reason, &desc, &meta, &createdBy, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.TenantID, t.LeaveID, t.Description, t.CreatedBy = tenantID.String, leaveID.String, desc.String, createdBy.String
		t.Type = domain.TransactionType(typ)
		var dec domain.DaysDecoder
		t.Days = dec.Parse("days", days)
		if dec.Err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.ID, dec.Err)
		}
		t.CreatedAt = parseTime(createdAt)
		if meta.Valid && meta.String != "" && meta.String != "null" {
			if err := json.Unmarshal([]byte(meta.String), &t.Metadata); err != nil {
				return nil, fmt.Errorf("transaction %s: invalid metadata_json: %w", t.ID, err)
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// =============================================================================
// LEAVES
// =============================================================================

const leaveColumns = `id, tenant_id, employee_id, leave_type_id, type_code, start_date, end_date, reason,
	status, calculated_days, deducted_from_balance, approved_by, decided_at, rejection_reason, created_at`

func (c *conn) GetLeave(ctx context.Context, id string) (*domain.Leave, error) {
	row := c.q.QueryRowContext(ctx, `SELECT `+leaveColumns+` FROM leaves WHERE id = ?`, id)
	var (
		l                                               domain.Leave
		tenantID, typeID, reason, approvedBy, rejection sql.NullString
		start, end, status, days, createdAt             string
		decidedAt                                       sql.NullString
	)
	err := row.Scan(&l.ID, &tenantID, &l.EmployeeID, &typeID, &l.TypeCode, &start, &end, &reason,
		&status, &days, &l.DeductedFromBalance, &approvedBy, &decidedAt, &rejection, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound("leave", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leave: %w", err)
	}
	l.TenantID, l.LeaveTypeID, l.Reason = tenantID.String, typeID.String, reason.String
	l.ApprovedBy, l.RejectionReason = approvedBy.String, rejection.String
	l.StartDate, l.EndDate = parseDate(start), parseDate(end)
	l.Status = domain.LeaveStatus(status)
	var dec domain.DaysDecoder
	l.CalculatedDays = dec.Parse("calculated_days", days)
	if dec.Err != nil {
		return nil, fmt.Errorf("leave %s: %w", id, dec.Err)
	}
	l.DecidedAt = timePtr(decidedAt)
	l.CreatedAt = parseTime(createdAt)
	return &l, nil
}

func (c *conn) CreateLeave(ctx context.Context, l domain.Leave) error {
	_, err := c.q.ExecContext(ctx, `INSERT INTO leaves (`+leaveColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, nullString(l.TenantID), l.EmployeeID, nullString(l.LeaveTypeID), l.TypeCode,
		l.StartDate.String(), l.EndDate.String(), nullString(l.Reason), string(l.Status), l.CalculatedDays.String(),
		l.DeductedFromBalance, nullString(l.ApprovedBy), nullTime(l.DecidedAt), nullString(l.RejectionReason),
		formatTime(l.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return domain.NewStateConflict(domain.ConflictDuplicateRecord, "leave already exists")
		}
		return fmt.Errorf("failed to create leave: %w", err)
	}
	return nil
}

func (c *conn) UpdateLeave(ctx context.Context, l domain.Leave) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE leaves SET leave_type_id = ?, type_code = ?, status = ?, calculated_days = ?,
			deducted_from_balance = ?, approved_by = ?, decided_at = ?, rejection_reason = ?
		WHERE id = ?`,
		nullString(l.LeaveTypeID), l.TypeCode, string(l.Status), l.CalculatedDays.String(),
		l.DeductedFromBalance, nullString(l.ApprovedBy), nullTime(l.DecidedAt), nullString(l.RejectionReason),
		l.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update leave: %w", err)
	}
	return requireRow(res, "leave", l.ID)
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

func (c *conn) SaveHoliday(ctx context.Context, h domain.Holiday) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO holidays (id, tenant_id, name, holiday_date, recurring, active)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			tenant_id = excluded.tenant_id, name = excluded.name, holiday_date = excluded.holiday_date,
			recurring = excluded.recurring, active = excluded.active`,
		h.ID, nullString(h.TenantID), h.Name, h.Date.String(), h.Recurring, h.Active,
	)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

// IsHoliday matches one-off holidays by full date and recurring ones by
// month and day.
func (c *conn) IsHoliday(ctx context.Context, day domain.Date, tenantID string) (bool, error) {
	var count int
	err := c.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM holidays
		WHERE active = 1
		  AND (tenant_id IS NULL OR tenant_id = ?)
		  AND (holiday_date = ? OR (recurring = 1 AND strftime('%m-%d', holiday_date) = ?))`,
		tenantID, day.String(), day.String()[5:],
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check holiday: %w", err)
	}
	return count > 0, nil
}

func (c *conn) ListHolidays(ctx context.Context, tenantID string) ([]domain.Holiday, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, tenant_id, name, holiday_date, recurring, active FROM holidays
		WHERE tenant_id IS NULL OR tenant_id = ?
		ORDER BY holiday_date ASC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var out []domain.Holiday
	for rows.Next() {
		var (
			h      domain.Holiday
			tenant sql.NullString
			date   string
		)
		if err := rows.Scan(&h.ID, &tenant, &h.Name, &date, &h.Recurring, &h.Active); err != nil {
			return nil, err
		}
		h.TenantID = tenant.String
		h.Date = parseDate(date)
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

func nullTimeOfDay(t *domain.TimeOfDay) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*t), Valid: true}
}

func timeOfDayPtr(v sql.NullInt64) *domain.TimeOfDay {
	if !v.Valid {
		return nil
	}
	t := domain.TimeOfDay(v.Int64)
	return &t
}

func nullDate(d domain.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullDatePtr(d *domain.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return nullDate(*d)
}

func parseDate(s string) domain.Date {
	if s == "" {
		return domain.Date{}
	}
	d, err := domain.ParseDate(s)
	if err != nil {
		return domain.Date{}
	}
	return d
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func timePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func encodeWeekdays(days []time.Weekday) string {
	return strings.Join(domain.WeekdayNames(days), ",")
}

func decodeWeekdays(s string) []time.Weekday {
	if s == "" {
		return nil
	}
	days, err := domain.ParseWeekdays(strings.Split(s, ","))
	if err != nil {
		return nil
	}
	return days
}

func requireRow(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NewNotFound(entity, id)
	}
	return nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
