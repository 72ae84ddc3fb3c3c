/*
Package postgres provides a PostgreSQL implementation of domain.TxStore
on top of pgxpool, for deployments that run more than one server process.

LOCKING:
  Lock takes pg_advisory_xact_lock(hashtextextended(key, 0)) on the
  transaction's connection, so two processes checking in the same employee
  or debiting the same balance queue behind each other until the first
  transaction ends. Balance reads inside a transaction additionally use
  SELECT ... FOR UPDATE.

SCHEMA:
  migrations/*.sql are embedded and applied in name order on New; applied
  versions are recorded in schema_migrations. Day counts are NUMERIC(10,2)
  and the available-days identity is also a CHECK constraint.

ERRORS:
  unique_violation (23505) maps to domain.StateConflictError, no rows to
  domain.NotFoundError for Get* and (nil, nil) for Find*.
*/
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/warp/attendance-ledger/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store implements domain.TxStore using a pgx connection pool.
type Store struct {
	*conn
	pool *pgxpool.Pool
}

// Options tune the pool. Zero values keep pgx defaults.
type Options struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// New connects, verifies the connection and applies pending migrations.
func New(ctx context.Context, databaseURL string, opts Options) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		cfg.MinConns = opts.MinConns
	}
	if opts.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = opts.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	s := &Store{conn: &conn{q: pool}, pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx,
		"CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())"); err != nil {
		return err
	}

	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, file := range files {
		version := strings.TrimSuffix(strings.TrimPrefix(file, "migrations/"), ".sql")
		var applied bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)", version).Scan(&applied); err != nil {
			return err
		}
		if applied {
			continue
		}

		body, err := migrations.ReadFile(file)
		if err != nil {
			return err
		}
		tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, string(body)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("migration %s failed: %w", version, err)
		}
		if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			_ = tx.Rollback(ctx)
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// WithTx runs fn in a read-committed transaction. Advisory locks taken
// through Lock are released when it ends.
func (s *Store) WithTx(ctx context.Context, fn func(domain.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&conn{q: tx, inTx: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type conn struct {
	q    querier
	inTx bool
}

// Lock is only meaningful inside WithTx; on the pool it does nothing.
func (c *conn) Lock(ctx context.Context, key string) error {
	if !c.inTx {
		return nil
	}
	if _, err := c.q.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key); err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, err)
	}
	return nil
}

func (c *conn) forUpdate() string {
	if c.inTx {
		return " FOR UPDATE"
	}
	return ""
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (c *conn) SaveTenant(ctx context.Context, t domain.Tenant) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO tenants (id, name, work_start, work_end, late_tolerance_minutes, working_days,
			break_duration_minutes, office_latitude, office_longitude, geofence_radius_meters,
			enforce_geofence, timezone, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, work_start = EXCLUDED.work_start, work_end = EXCLUDED.work_end,
			late_tolerance_minutes = EXCLUDED.late_tolerance_minutes, working_days = EXCLUDED.working_days,
			break_duration_minutes = EXCLUDED.break_duration_minutes,
			office_latitude = EXCLUDED.office_latitude, office_longitude = EXCLUDED.office_longitude,
			geofence_radius_meters = EXCLUDED.geofence_radius_meters,
			enforce_geofence = EXCLUDED.enforce_geofence, timezone = EXCLUDED.timezone, active = EXCLUDED.active`,
		t.ID, t.Name, int(t.WorkStart), int(t.WorkEnd), t.LateToleranceMinutes, domain.WeekdayNames(t.WorkingDays),
		t.BreakDurationMinutes, t.OfficeLatitude, t.OfficeLongitude, t.GeofenceRadiusMeters,
		t.EnforceGeofence, t.Timezone, t.Active)
	if err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

func (c *conn) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	var (
		t          domain.Tenant
		start, end int
		days       []string
	)
	err := c.q.QueryRow(ctx, `
		SELECT id, name, work_start, work_end, late_tolerance_minutes, working_days,
			break_duration_minutes, office_latitude, office_longitude, geofence_radius_meters,
			enforce_geofence, timezone, active
		FROM tenants WHERE id = $1`, id).Scan(
		&t.ID, &t.Name, &start, &end, &t.LateToleranceMinutes, &days,
		&t.BreakDurationMinutes, &t.OfficeLatitude, &t.OfficeLongitude, &t.GeofenceRadiusMeters,
		&t.EnforceGeofence, &t.Timezone, &t.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound("tenant", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	t.WorkStart, t.WorkEnd = domain.TimeOfDay(start), domain.TimeOfDay(end)
	t.WorkingDays, _ = domain.ParseWeekdays(days)
	return &t, nil
}

func (c *conn) SaveShift(ctx context.Context, s domain.Shift) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO shifts (id, tenant_id, name, start_time, end_time, working_days,
			late_tolerance_minutes, break_start, break_end, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id, name = EXCLUDED.name, start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time, working_days = EXCLUDED.working_days,
			late_tolerance_minutes = EXCLUDED.late_tolerance_minutes,
			break_start = EXCLUDED.break_start, break_end = EXCLUDED.break_end, active = EXCLUDED.active`,
		s.ID, s.TenantID, s.Name, int(s.Start), int(s.End), domain.WeekdayNames(s.WorkingDays),
		s.LateToleranceMinutes, secondsPtr(s.BreakStart), secondsPtr(s.BreakEnd), s.Active)
	if err != nil {
		return fmt.Errorf("failed to save shift: %w", err)
	}
	return nil
}

func (c *conn) GetShift(ctx context.Context, id string) (*domain.Shift, error) {
	var (
		s                    domain.Shift
		start, end           int
		days                 []string
		breakStart, breakEnd *int
	)
	err := c.q.QueryRow(ctx, `
		SELECT id, tenant_id, name, start_time, end_time, working_days,
			late_tolerance_minutes, break_start, break_end, active
		FROM shifts WHERE id = $1`, id).Scan(
		&s.ID, &s.TenantID, &s.Name, &start, &end, &days,
		&s.LateToleranceMinutes, &breakStart, &breakEnd, &s.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound("shift", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shift: %w", err)
	}
	s.Start, s.End = domain.TimeOfDay(start), domain.TimeOfDay(end)
	s.WorkingDays, _ = domain.ParseWeekdays(days)
	s.BreakStart, s.BreakEnd = timeOfDay(breakStart), timeOfDay(breakEnd)
	return &s, nil
}

func (c *conn) SaveEmployee(ctx context.Context, e domain.Employee) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO employees (id, tenant_id, shift_id, name, email, joined_on, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id, shift_id = EXCLUDED.shift_id, name = EXCLUDED.name,
			email = EXCLUDED.email, joined_on = EXCLUDED.joined_on, active = EXCLUDED.active`,
		e.ID, nullable(e.TenantID), nullable(e.ShiftID), e.Name, nullable(e.Email), datePtr(e.JoinedOn), e.Active)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (c *conn) GetEmployee(ctx context.Context, id string) (*domain.Employee, error) {
	var (
		e                        domain.Employee
		tenantID, shiftID, email *string
		joined                   *time.Time
	)
	err := c.q.QueryRow(ctx, `
		SELECT id, tenant_id, shift_id, name, email, joined_on, active
		FROM employees WHERE id = $1`, id).Scan(
		&e.ID, &tenantID, &shiftID, &e.Name, &email, &joined, &e.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound("employee", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get employee: %w", err)
	}
	e.TenantID, e.ShiftID, e.Email = deref(tenantID), deref(shiftID), deref(email)
	e.JoinedOn = dateOf(joined)
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
	var (
		a                                domain.Attendance
		tenantID, shiftID, inLoc, outLoc *string
		hours                            *string
		workDate                         time.Time
		status                           string
	)
	err := c.q.QueryRow(ctx, `SELECT `+attendanceColumns+` FROM attendances
		WHERE employee_id = $1 AND work_date = $2`+c.forUpdate(), employeeID, day.Time()).Scan(
		&a.ID, &tenantID, &a.EmployeeID, &shiftID, &workDate,
		&a.CheckIn, &a.CheckInLatitude, &a.CheckInLongitude, &inLoc, &a.CheckInDistance, &a.WithinGeofence,
		&a.CheckOut, &a.CheckOutLatitude, &a.CheckOutLongitude, &outLoc, &a.CheckOutDistance, &a.CheckOutWithinGeofence,
		&status, &a.IsLate, &a.LateMinutes, &hours, &a.Notes, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find attendance: %w", err)
	}
	a.TenantID, a.ShiftID = deref(tenantID), deref(shiftID)
	a.CheckInLocation, a.CheckOutLocation, a.ActualWorkHours = deref(inLoc), deref(outLoc), deref(hours)
	a.WorkDate = domain.DateOf(workDate)
	a.Status = domain.AttendanceStatus(status)
	return &a, nil
}

func (c *conn) CreateAttendance(ctx context.Context, a domain.Attendance) error {
	_, err := c.q.Exec(ctx, `INSERT INTO attendances (`+attendanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		a.ID, nullable(a.TenantID), a.EmployeeID, nullable(a.ShiftID), a.WorkDate.Time(),
		a.CheckIn, a.CheckInLatitude, a.CheckInLongitude, nullable(a.CheckInLocation), a.CheckInDistance, a.WithinGeofence,
		a.CheckOut, a.CheckOutLatitude, a.CheckOutLongitude, nullable(a.CheckOutLocation), a.CheckOutDistance, a.CheckOutWithinGeofence,
		string(a.Status), a.IsLate, a.LateMinutes, nullable(a.ActualWorkHours), a.Notes, a.CreatedAt)
	if isUniqueViolation(err) {
		return domain.NewStateConflict(domain.ConflictAlreadyCheckedIn, "You have already checked in today")
	}
	if err != nil {
		return fmt.Errorf("failed to create attendance: %w", err)
	}
	return nil
}

func (c *conn) UpdateAttendance(ctx context.Context, a domain.Attendance) error {
	tag, err := c.q.Exec(ctx, `
		UPDATE attendances SET
			check_out = $2, check_out_latitude = $3, check_out_longitude = $4, check_out_location = $5,
			check_out_distance = $6, check_out_within_geofence = $7, status = $8, actual_work_hours = $9, notes = $10
		WHERE id = $1`,
		a.ID, a.CheckOut, a.CheckOutLatitude, a.CheckOutLongitude, nullable(a.CheckOutLocation),
		a.CheckOutDistance, a.CheckOutWithinGeofence, string(a.Status), nullable(a.ActualWorkHours), a.Notes)
	if err != nil {
		return fmt.Errorf("failed to update attendance: %w", err)
	}
	return requireRow(tag, "attendance", a.ID)
}

// =============================================================================
// LEAVE TYPES & POLICIES
// =============================================================================

const leaveTypeColumns = `id, tenant_id, name, code, annual_quota::text, max_consecutive_days, min_notice_days,
	requires_approval, paid, active, carry_over_enabled, carry_over_max_days::text,
	carry_over_expiry_months, carry_over_auto_expire`

const leaveTypeInsert = `INSERT INTO leave_types (id, tenant_id, name, code, annual_quota, max_consecutive_days,
	min_notice_days, requires_approval, paid, active, carry_over_enabled, carry_over_max_days,
	carry_over_expiry_months, carry_over_auto_expire)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

func leaveTypeArgs(lt domain.LeaveType) []any {
	return []any{
		lt.ID, lt.TenantID, lt.Name, domain.NormalizeLeaveCode(lt.Code), lt.AnnualQuota.Value,
		lt.MaxConsecutiveDays, lt.MinNoticeDays, lt.RequiresApproval, lt.Paid, lt.Active,
		lt.CarryOver.Enabled, lt.CarryOver.MaxDays.Value, lt.CarryOver.ExpiryMonths, lt.CarryOver.AutoExpire,
	}
}

func scanLeaveType(row pgx.Row) (domain.LeaveType, error) {
	var (
		lt             domain.LeaveType
		quota, maxDays string
	)
	err := row.Scan(&lt.ID, &lt.TenantID, &lt.Name, &lt.Code, &quota, &lt.MaxConsecutiveDays, &lt.MinNoticeDays,
		&lt.RequiresApproval, &lt.Paid, &lt.Active, &lt.CarryOver.Enabled, &maxDays,
		&lt.CarryOver.ExpiryMonths, &lt.CarryOver.AutoExpire)
	if err != nil {
		return lt, err
	}
	var dec domain.DaysDecoder
	lt.AnnualQuota = dec.Parse("annual_quota", quota)
	lt.CarryOver.MaxDays = dec.Parse("carry_over_max_days", maxDays)
	return lt, dec.Err
}

func (c *conn) GetLeaveType(ctx context.Context, id string) (*domain.LeaveType, error) {
	lt, err := scanLeaveType(c.q.QueryRow(ctx, `SELECT `+leaveTypeColumns+` FROM leave_types WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound("leave_type", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leave type: %w", err)
	}
	return &lt, nil
}

func (c *conn) FindLeaveTypeByCode(ctx context.Context, tenantID, code string) (*domain.LeaveType, error) {
	lt, err := scanLeaveType(c.q.QueryRow(ctx,
		`SELECT `+leaveTypeColumns+` FROM leave_types WHERE tenant_id = $1 AND code = $2`,
		tenantID, domain.NormalizeLeaveCode(code)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find leave type: %w", err)
	}
	return &lt, nil
}

func (c *conn) ListLeaveTypes(ctx context.Context, tenantID string, activeOnly bool) ([]domain.LeaveType, error) {
	query := `SELECT ` + leaveTypeColumns + ` FROM leave_types WHERE tenant_id = $1`
	if activeOnly {
		query += ` AND active`
	}
	rows, err := c.q.Query(ctx, query+` ORDER BY code`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list leave types: %w", err)
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
	_, err := c.q.Exec(ctx, leaveTypeInsert, leaveTypeArgs(lt)...)
	if isUniqueViolation(err) {
		return domain.NewStateConflict(domain.ConflictDuplicateRecord, "leave type code already exists: "+lt.Code)
	}
	if err != nil {
		return fmt.Errorf("failed to create leave type: %w", err)
	}
	return nil
}

func (c *conn) SaveLeaveType(ctx context.Context, lt domain.LeaveType) error {
	_, err := c.q.Exec(ctx, leaveTypeInsert+`
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id, name = EXCLUDED.name, code = EXCLUDED.code,
			annual_quota = EXCLUDED.annual_quota, max_consecutive_days = EXCLUDED.max_consecutive_days,
			min_notice_days = EXCLUDED.min_notice_days, requires_approval = EXCLUDED.requires_approval,
			paid = EXCLUDED.paid, active = EXCLUDED.active, carry_over_enabled = EXCLUDED.carry_over_enabled,
			carry_over_max_days = EXCLUDED.carry_over_max_days,
			carry_over_expiry_months = EXCLUDED.carry_over_expiry_months,
			carry_over_auto_expire = EXCLUDED.carry_over_auto_expire`, leaveTypeArgs(lt)...)
	if isUniqueViolation(err) {
		return domain.NewStateConflict(domain.ConflictDuplicateRecord, "leave type code already exists: "+lt.Code)
	}
	if err != nil {
		return fmt.Errorf("failed to save leave type: %w", err)
	}
	return nil
}

const policyColumns = `id, tenant_id, policy_year, year_start, year_end, pro_rate_new_employees,
	probation_months, allow_negative_balance, max_carry_over_days::text, carry_over_expiry, active`

func scanPolicy(row pgx.Row) (*domain.LeavePolicy, error) {
	var (
		p          domain.LeavePolicy
		start, end time.Time
		maxCO      string
		expiry     *time.Time
	)
	err := row.Scan(&p.ID, &p.TenantID, &p.Year, &start, &end, &p.ProRateNewEmployees,
		&p.ProbationMonths, &p.AllowNegativeBalance, &maxCO, &expiry, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read leave policy: %w", err)
	}
	p.Window = domain.Window{Start: domain.DateOf(start), End: domain.DateOf(end)}
	var dec domain.DaysDecoder
	p.MaxCarryOverDays = dec.Parse("max_carry_over_days", maxCO)
	if dec.Err != nil {
		return nil, fmt.Errorf("failed to read leave policy: %w", dec.Err)
	}
	if expiry != nil {
		d := domain.DateOf(*expiry)
		p.CarryOverExpiry = &d
	}
	return &p, nil
}

func (c *conn) FindPolicy(ctx context.Context, tenantID string, year int) (*domain.LeavePolicy, error) {
	return scanPolicy(c.q.QueryRow(ctx, `SELECT `+policyColumns+` FROM leave_policies
		WHERE tenant_id = $1 AND policy_year = $2 AND active`, tenantID, year))
}

func (c *conn) FindPolicyCovering(ctx context.Context, tenantID string, day domain.Date) (*domain.LeavePolicy, error) {
	return scanPolicy(c.q.QueryRow(ctx, `SELECT `+policyColumns+` FROM leave_policies
		WHERE tenant_id = $1 AND active AND year_start <= $2 AND year_end >= $2
		ORDER BY policy_year DESC LIMIT 1`, tenantID, day.Time()))
}

func (c *conn) SaveLeavePolicy(ctx context.Context, p domain.LeavePolicy) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO leave_policies (`+strings.ReplaceAll(policyColumns, "::text", "")+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id, policy_year = EXCLUDED.policy_year,
			year_start = EXCLUDED.year_start, year_end = EXCLUDED.year_end,
			pro_rate_new_employees = EXCLUDED.pro_rate_new_employees,
			probation_months = EXCLUDED.probation_months,
			allow_negative_balance = EXCLUDED.allow_negative_balance,
			max_carry_over_days = EXCLUDED.max_carry_over_days,
			carry_over_expiry = EXCLUDED.carry_over_expiry, active = EXCLUDED.active`,
		p.ID, p.TenantID, p.Year, p.Window.Start.Time(), p.Window.End.Time(), p.ProRateNewEmployees,
		p.ProbationMonths, p.AllowNegativeBalance, p.MaxCarryOverDays.Value, optionalDate(p.CarryOverExpiry), p.Active)
	if isUniqueViolation(err) {
		return domain.NewStateConflict(domain.ConflictDuplicateRecord, fmt.Sprintf("policy for year %d already exists", p.Year))
	}
	if err != nil {
		return fmt.Errorf("failed to save leave policy: %w", err)
	}
	return nil
}

// =============================================================================
// BALANCES
// =============================================================================

const balanceColumns = `id, tenant_id, employee_id, leave_type_id, policy_year,
	entitled::text, used::text, pending::text, carried_over::text, adjustment::text, available::text,
	carry_over_expired_at, last_calculated_at, calculation_details`

func scanBalance(row pgx.Row) (domain.LeaveBalance, error) {
	var (
		b                                                       domain.LeaveBalance
		entitled, used, pending, carried, adjustment, available string
	)
	err := row.Scan(&b.ID, &b.TenantID, &b.EmployeeID, &b.LeaveTypeID, &b.PolicyYear,
		&entitled, &used, &pending, &carried, &adjustment, &available,
		&b.CarryOverExpiredAt, &b.LastCalculatedAt, &b.CalculationDetails)
	if err != nil {
		return b, err
	}
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
	return b, nil
}

func (c *conn) GetBalance(ctx context.Context, id string) (*domain.LeaveBalance, error) {
	b, err := scanBalance(c.q.QueryRow(ctx, `SELECT `+balanceColumns+` FROM leave_balances WHERE id = $1`+c.forUpdate(), id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound("balance", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	return &b, nil
}

func (c *conn) FindBalance(ctx context.Context, key domain.BalanceKey) (*domain.LeaveBalance, error) {
	b, err := scanBalance(c.q.QueryRow(ctx, `SELECT `+balanceColumns+` FROM leave_balances
		WHERE employee_id = $1 AND leave_type_id = $2 AND policy_year = $3`+c.forUpdate(),
		key.EmployeeID, key.LeaveTypeID, key.PolicyYear))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find balance: %w", err)
	}
	return &b, nil
}

func (c *conn) ListBalances(ctx context.Context, employeeID string, year int) ([]domain.LeaveBalance, error) {
	return c.queryBalances(ctx, `SELECT `+balanceColumns+` FROM leave_balances
		WHERE employee_id = $1 AND policy_year = $2 ORDER BY leave_type_id`, employeeID, year)
}

func (c *conn) ListBalancesWithCarryOver(ctx context.Context) ([]domain.LeaveBalance, error) {
	return c.queryBalances(ctx, `SELECT `+balanceColumns+` FROM leave_balances
		WHERE carried_over > 0 AND carry_over_expired_at IS NULL ORDER BY id`)
}

func (c *conn) queryBalances(ctx context.Context, query string, args ...any) ([]domain.LeaveBalance, error) {
	rows, err := c.q.Query(ctx, query, args...)
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
	_, err := c.q.Exec(ctx, `
		INSERT INTO leave_balances (id, tenant_id, employee_id, leave_type_id, policy_year,
			entitled, used, pending, carried_over, adjustment, available,
			carry_over_expired_at, last_calculated_at, calculation_details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		b.ID, b.TenantID, b.EmployeeID, b.LeaveTypeID, b.PolicyYear,
		b.Entitled.Value, b.Used.Value, b.Pending.Value, b.CarriedOver.Value, b.Adjustment.Value, b.Available.Value,
		b.CarryOverExpiredAt, b.LastCalculatedAt, b.CalculationDetails)
	if isUniqueViolation(err) {
		return domain.NewStateConflict(domain.ConflictDuplicateBalance, "balance already initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to create balance: %w", err)
	}
	return nil
}

func (c *conn) UpdateBalance(ctx context.Context, b domain.LeaveBalance) error {
	tag, err := c.q.Exec(ctx, `
		UPDATE leave_balances SET
			entitled = $2, used = $3, pending = $4, carried_over = $5, adjustment = $6, available = $7,
			carry_over_expired_at = $8, last_calculated_at = $9, calculation_details = $10
		WHERE id = $1`,
		b.ID, b.Entitled.Value, b.Used.Value, b.Pending.Value, b.CarriedOver.Value, b.Adjustment.Value, b.Available.Value,
		b.CarryOverExpiredAt, b.LastCalculatedAt, b.CalculationDetails)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return requireRow(tag, "balance", b.ID)
}

// =============================================================================
// TRANSACTIONS (append-only)
// =============================================================================

func (c *conn) AppendTransaction(ctx context.Context, t domain.LeaveTransaction) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO leave_transactions (id, tenant_id, balance_id, employee_id, leave_type_id, leave_id,
			tx_type, days, reason, description, metadata, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		t.ID, t.TenantID, t.BalanceID, t.EmployeeID, t.LeaveTypeID, nullable(t.LeaveID),
		string(t.Type), t.Days.Value, t.Reason, t.Description, t.Metadata, nullable(t.CreatedBy), t.CreatedAt)
	if isUniqueViolation(err) {
		return domain.NewStateConflict(domain.ConflictDuplicateRecord, "transaction already recorded")
	}
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}
	return nil
}

func (c *conn) ListTransactions(ctx context.Context, balanceID string) ([]domain.LeaveTransaction, error) {
	rows, err := c.q.Query(ctx, `
		SELECT id, tenant_id, balance_id, employee_id, leave_type_id, leave_id, tx_type, days::text,
			reason, description, metadata, created_by, created_at
		FROM leave_transactions WHERE balance_id = $1 ORDER BY seq`, balanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.LeaveTransaction
	for rows.Next() {
		var (
			t                  domain.LeaveTransaction
			leaveID, createdBy *string
			typ, days          string
		)
		if err := rows.Scan(&t.ID, &t.TenantID, &t.BalanceID, &t.EmployeeID, &t.LeaveTypeID, &leaveID, &typ, &days,
			&t.Reason, &t.Description, &t.Metadata, &createdBy, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		t.LeaveID, t.CreatedBy = deref(leaveID), deref(createdBy)
		t.Type = domain.TransactionType(typ)
		var dec domain.DaysDecoder
		t.Days = dec.Parse("days", days)
		if dec.Err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.ID, dec.Err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// =============================================================================
// LEAVES
// =============================================================================

func (c *conn) GetLeave(ctx context.Context, id string) (*domain.Leave, error) {
	var (
		l                             domain.Leave
		typeID, approvedBy, rejection *string
		start, end                    time.Time
		status, days                  string
	)
	err := c.q.QueryRow(ctx, `
		SELECT id, tenant_id, employee_id, leave_type_id, type_code, start_date, end_date, reason,
			status, calculated_days::text, deducted_from_balance, approved_by, decided_at, rejection_reason, created_at
		FROM leaves WHERE id = $1`+c.forUpdate(), id).Scan(
		&l.ID, &l.TenantID, &l.EmployeeID, &typeID, &l.TypeCode, &start, &end, &l.Reason,
		&status, &days, &l.DeductedFromBalance, &approvedBy, &l.DecidedAt, &rejection, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewNotFound("leave", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get leave: %w", err)
	}
	l.LeaveTypeID, l.ApprovedBy, l.RejectionReason = deref(typeID), deref(approvedBy), deref(rejection)
	l.StartDate, l.EndDate = domain.DateOf(start), domain.DateOf(end)
	l.Status = domain.LeaveStatus(status)
	var dec domain.DaysDecoder
	l.CalculatedDays = dec.Parse("calculated_days", days)
	if dec.Err != nil {
		return nil, fmt.Errorf("leave %s: %w", id, dec.Err)
	}
	return &l, nil
}

func (c *conn) CreateLeave(ctx context.Context, l domain.Leave) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO leaves (id, tenant_id, employee_id, leave_type_id, type_code, start_date, end_date, reason,
			status, calculated_days, deducted_from_balance, approved_by, decided_at, rejection_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		l.ID, l.TenantID, l.EmployeeID, nullable(l.LeaveTypeID), l.TypeCode, l.StartDate.Time(), l.EndDate.Time(), l.Reason,
		string(l.Status), l.CalculatedDays.Value, l.DeductedFromBalance, nullable(l.ApprovedBy), l.DecidedAt,
		nullable(l.RejectionReason), l.CreatedAt)
	if isUniqueViolation(err) {
		return domain.NewStateConflict(domain.ConflictDuplicateRecord, "leave already exists")
	}
	if err != nil {
		return fmt.Errorf("failed to create leave: %w", err)
	}
	return nil
}

func (c *conn) UpdateLeave(ctx context.Context, l domain.Leave) error {
	tag, err := c.q.Exec(ctx, `
		UPDATE leaves SET leave_type_id = $2, type_code = $3, status = $4, calculated_days = $5,
			deducted_from_balance = $6, approved_by = $7, decided_at = $8, rejection_reason = $9
		WHERE id = $1`,
		l.ID, nullable(l.LeaveTypeID), l.TypeCode, string(l.Status), l.CalculatedDays.Value,
		l.DeductedFromBalance, nullable(l.ApprovedBy), l.DecidedAt, nullable(l.RejectionReason))
	if err != nil {
		return fmt.Errorf("failed to update leave: %w", err)
	}
	return requireRow(tag, "leave", l.ID)
}

// =============================================================================
// HOLIDAY CALENDAR
// =============================================================================

func (c *conn) SaveHoliday(ctx context.Context, h domain.Holiday) error {
	_, err := c.q.Exec(ctx, `
		INSERT INTO holidays (id, tenant_id, name, holiday_date, recurring, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id, name = EXCLUDED.name, holiday_date = EXCLUDED.holiday_date,
			recurring = EXCLUDED.recurring, active = EXCLUDED.active`,
		h.ID, h.TenantID, h.Name, h.Date.Time(), h.Recurring, h.Active)
	if err != nil {
		return fmt.Errorf("failed to save holiday: %w", err)
	}
	return nil
}

func (c *conn) IsHoliday(ctx context.Context, day domain.Date, tenantID string) (bool, error) {
	var found bool
	err := c.q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM holidays
			WHERE active
			  AND (tenant_id = '' OR tenant_id = $2)
			  AND (holiday_date = $1 OR (recurring
			       AND EXTRACT(MONTH FROM holiday_date) = EXTRACT(MONTH FROM $1::date)
			       AND EXTRACT(DAY FROM holiday_date) = EXTRACT(DAY FROM $1::date))))`,
		day.Time(), tenantID).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("failed to check holiday: %w", err)
	}
	return found, nil
}

func (c *conn) ListHolidays(ctx context.Context, tenantID string) ([]domain.Holiday, error) {
	rows, err := c.q.Query(ctx, `
		SELECT id, tenant_id, name, holiday_date, recurring, active FROM holidays
		WHERE tenant_id = '' OR tenant_id = $1
		ORDER BY holiday_date`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var out []domain.Holiday
	for rows.Next() {
		var (
			h    domain.Holiday
			date time.Time
		)
		if err := rows.Scan(&h.ID, &h.TenantID, &h.Name, &date, &h.Recurring, &h.Active); err != nil {
			return nil, err
		}
		h.Date = domain.DateOf(date)
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func datePtr(d domain.Date) *time.Time {
	if d.IsZero() {
		return nil
	}
	t := d.Time()
	return &t
}

func optionalDate(d *domain.Date) *time.Time {
	if d == nil {
		return nil
	}
	return datePtr(*d)
}

func dateOf(t *time.Time) domain.Date {
	if t == nil {
		return domain.Date{}
	}
	return domain.DateOf(t.UTC())
}

func secondsPtr(t *domain.TimeOfDay) *int {
	if t == nil {
		return nil
	}
	v := int(*t)
	return &v
}

func timeOfDay(v *int) *domain.TimeOfDay {
	if v == nil {
		return nil
	}
	t := domain.TimeOfDay(*v)
	return &t
}

func requireRow(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return domain.NewNotFound(entity, id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
