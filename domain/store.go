/*
store.go - Repository interfaces

PURPOSE:
  Defines the boundary between the engines and persistence. The engines
  never see SQL; they see these interfaces, and every multi-step mutation
  runs inside TxStore.WithTx.

READ CONVENTIONS:
  Get*  - lookup by primary id, returns *NotFoundError when absent
  Find* - lookup by natural key, returns (nil, nil) when absent
  List* - never returns NotFound, empty slice instead

LOCKING:
  Lock(ctx, key) serialises read-check-write sequences on a logical key
  (an employee's attendance day, a balance key, a leave). It must be
  called inside WithTx and holds until the enclosing transaction ends.
  Use the *LockKey helpers below to build keys.

  Lock order is leave, leave type, balance year, balance key, then rows.
  Balance reads inside a transaction may lock the row, so take the key
  lock before reading the balance.

APPEND-ONLY CONTRACT:
  LeaveTransactions have AppendTransaction and nothing else. There is no
  update or delete path for them.

IMPLEMENTATIONS:
  - store/memory: in-process, snapshot rollback
  - store/sqlite: default persistent store
  - store/postgres: pgx, advisory transaction locks

SEE ALSO:
  - errors.go: NotFoundError, StateConflictError
*/
package domain

import (
	"context"
	"fmt"
)

// =============================================================================
// READ/WRITE INTERFACES
// =============================================================================

// DirectoryStore resolves tenants, employees and shifts.
type DirectoryStore interface {
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	GetShift(ctx context.Context, id string) (*Shift, error)
}

// AttendanceStore persists attendance rows. CreateAttendance fails with a
// StateConflictError when the (employee, work date) pair already exists.
type AttendanceStore interface {
	FindAttendance(ctx context.Context, employeeID string, day Date) (*Attendance, error)
	CreateAttendance(ctx context.Context, a Attendance) error
	UpdateAttendance(ctx context.Context, a Attendance) error
}

// LeaveStore persists the leave catalogue, balances, transactions and leaves.
type LeaveStore interface {
	GetLeaveType(ctx context.Context, id string) (*LeaveType, error)
	FindLeaveTypeByCode(ctx context.Context, tenantID, code string) (*LeaveType, error)
	ListLeaveTypes(ctx context.Context, tenantID string, activeOnly bool) ([]LeaveType, error)
	CreateLeaveType(ctx context.Context, lt LeaveType) error

	FindPolicy(ctx context.Context, tenantID string, year int) (*LeavePolicy, error)
	FindPolicyCovering(ctx context.Context, tenantID string, day Date) (*LeavePolicy, error)

	GetBalance(ctx context.Context, id string) (*LeaveBalance, error)
	FindBalance(ctx context.Context, key BalanceKey) (*LeaveBalance, error)
	ListBalances(ctx context.Context, employeeID string, year int) ([]LeaveBalance, error)
	ListBalancesWithCarryOver(ctx context.Context) ([]LeaveBalance, error)
	CreateBalance(ctx context.Context, b LeaveBalance) error
	UpdateBalance(ctx context.Context, b LeaveBalance) error

	AppendTransaction(ctx context.Context, tx LeaveTransaction) error
	ListTransactions(ctx context.Context, balanceID string) ([]LeaveTransaction, error)

	GetLeave(ctx context.Context, id string) (*Leave, error)
	CreateLeave(ctx context.Context, l Leave) error
	UpdateLeave(ctx context.Context, l Leave) error
}

// HolidayCalendar answers whether a date is a holiday for a tenant.
// Global holidays (empty tenant) apply to everyone.
type HolidayCalendar interface {
	IsHoliday(ctx context.Context, day Date, tenantID string) (bool, error)
}

// CatalogStore is the administrative write side used by seeding and
// setup: idempotent upserts keyed by ID.
type CatalogStore interface {
	SaveTenant(ctx context.Context, t Tenant) error
	SaveEmployee(ctx context.Context, e Employee) error
	SaveShift(ctx context.Context, s Shift) error
	SaveLeaveType(ctx context.Context, lt LeaveType) error
	SaveLeavePolicy(ctx context.Context, p LeavePolicy) error
	SaveHoliday(ctx context.Context, h Holiday) error
	ListHolidays(ctx context.Context, tenantID string) ([]Holiday, error)
}

// Locker serialises work on a logical key for the rest of the transaction.
type Locker interface {
	Lock(ctx context.Context, key string) error
}

// Store is everything an engine may touch within one unit of work.
type Store interface {
	DirectoryStore
	AttendanceStore
	LeaveStore
	HolidayCalendar
	CatalogStore
	Locker
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
// If fn returns an error the transaction is rolled back, otherwise committed.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// LOCK KEYS
// =============================================================================

func AttendanceLockKey(employeeID string, day Date) string {
	return fmt.Sprintf("attendance:%s:%s", employeeID, day)
}

func BalanceLockKey(k BalanceKey) string {
	return fmt.Sprintf("balance:%s:%s:%d", k.EmployeeID, k.LeaveTypeID, k.PolicyYear)
}

// BalanceYearLockKey covers every balance an employee holds for one policy
// year. Initialization takes it before the per-key locks.
func BalanceYearLockKey(employeeID string, year int) string {
	return fmt.Sprintf("balance_year:%s:%d", employeeID, year)
}

func LeaveTypeLockKey(tenantID, code string) string {
	return fmt.Sprintf("leave_type:%s:%s", tenantID, code)
}

func LeaveLockKey(leaveID string) string {
	return "leave:" + leaveID
}
