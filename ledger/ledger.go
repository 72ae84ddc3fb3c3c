/*
Package ledger maintains per-employee leave balances and their audit trail.

PURPOSE:
  A LeaveBalance row holds the running components (entitled, carried over,
  adjustment, used, pending) and the derived available figure. Every change
  to a balance writes exactly one append-only LeaveTransaction describing
  it, in the same store transaction as the balance update.

CRITICAL INVARIANTS:
  1. available = entitled + carried_over + adjustment - used - pending,
     re-derived (Recompute) after every mutation and before persisting
  2. At most one balance per (employee, leave type, policy year)
  3. A leave is debited at most once; the leave's DeductedFromBalance flag
     is set in the same transaction as the debit
  4. Transactions are never updated or deleted; Days is always positive

MUTATION SHAPE:
  WithTx {
      Lock(key) -> read -> mutate -> Recompute -> persist -> append
  }
  Events are published only after WithTx returns nil.

OPERATIONS:
  InitializeBalances     create missing balances for a policy year
  DebitForApprovedLeave  charge an approved leave's working days
  AdjustBalance          manual signed correction
  GetSummary             read-only view per leave type
  RecalculateEntitlement re-derive entitled days from current quota/policy
  ExpireCarryOver        lapse unused carried-over days after expiry
  EnsureLeaveType        lazy provisioning of a leave type by code

SEE ALSO:
  - entitlement.go: pro-ration and carry-over arithmetic
  - debit.go: DebitForApprovedLeave, AdjustBalance
  - maintenance.go: RecalculateEntitlement, ExpireCarryOver
  - leave/service.go: the approval workflow that calls the debit
*/
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/warp/attendance-ledger/clock"
	"github.com/warp/attendance-ledger/domain"
	"github.com/warp/attendance-ledger/workday"
)

// SystemActor is recorded as CreatedBy for transactions the ledger writes
// on its own behalf.
const SystemActor = "system"

// Default attributes for lazily provisioned leave types.
var defaultLeaveTypeQuota = domain.DaysFromInt(12)

// Ledger is the LeaveBalanceLedger.
type Ledger struct {
	Store  domain.TxStore
	Clock  clock.Clock
	Events domain.Publisher
	Logger *slog.Logger
}

func New(store domain.TxStore, clk clock.Clock, events domain.Publisher, logger *slog.Logger) *Ledger {
	if clk == nil {
		clk = clock.Real()
	}
	if events == nil {
		events = domain.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{Store: store, Clock: clk, Events: events, Logger: logger}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

// InitializeBalances creates the balances an employee is missing for year,
// one per active leave type of the tenant. Existing balances are returned
// untouched, so calling it twice is harmless.
func (l *Ledger) InitializeBalances(ctx context.Context, employeeID string, year int) ([]domain.LeaveBalance, error) {
	var (
		balances []domain.LeaveBalance
		events   []domain.Event
	)
	err := l.Store.WithTx(ctx, func(tx domain.Store) error {
		emp, err := tx.GetEmployee(ctx, employeeID)
		if err != nil {
			return err
		}
		balances, events, err = l.initialize(ctx, tx, *emp, year)
		return err
	})
	if err != nil {
		return nil, err
	}

	l.Logger.Info("balances initialized", "employee_id", employeeID, "year", year, "created", len(events))
	l.Events.Publish(events...)
	return balances, nil
}

func (l *Ledger) initialize(ctx context.Context, tx domain.Store, emp domain.Employee, year int) ([]domain.LeaveBalance, []domain.Event, error) {
	policy, err := tx.FindPolicy(ctx, emp.TenantID, year)
	if err != nil {
		return nil, nil, err
	}
	if policy == nil {
		return nil, nil, &domain.PolicyNotFoundError{TenantID: emp.TenantID, Year: year}
	}

	if err := tx.Lock(ctx, domain.BalanceYearLockKey(emp.ID, year)); err != nil {
		return nil, nil, err
	}
	types, err := tx.ListLeaveTypes(ctx, emp.TenantID, true)
	if err != nil {
		return nil, nil, err
	}

	now := l.Clock.Now()
	var (
		out    []domain.LeaveBalance
		events []domain.Event
	)
	for _, lt := range types {
		key := domain.BalanceKey{EmployeeID: emp.ID, LeaveTypeID: lt.ID, PolicyYear: year}
		if err := tx.Lock(ctx, domain.BalanceLockKey(key)); err != nil {
			return nil, nil, err
		}
		existing, err := tx.FindBalance(ctx, key)
		if err != nil {
			return nil, nil, err
		}
		if existing != nil {
			out = append(out, *existing)
			continue
		}

		b, txs, err := l.newBalance(ctx, tx, emp, lt, *policy, now)
		if err != nil {
			return nil, nil, err
		}
		if err := tx.CreateBalance(ctx, b); err != nil {
			return nil, nil, err
		}
		for _, t := range txs {
			if err := tx.AppendTransaction(ctx, t); err != nil {
				return nil, nil, err
			}
		}

		out = append(out, b)
		events = append(events, domain.Event{
			Type:       domain.EventBalanceInitialized,
			TenantID:   emp.TenantID,
			EmployeeID: emp.ID,
			BalanceID:  b.ID,
			Days:       b.Available,
			At:         now,
		})
	}
	return out, events, nil
}

// newBalance computes a fresh balance and its opening credit transactions.
func (l *Ledger) newBalance(ctx context.Context, tx domain.Store, emp domain.Employee, lt domain.LeaveType, policy domain.LeavePolicy, now time.Time) (domain.LeaveBalance, []domain.LeaveTransaction, error) {
	ent := ComputeEntitlement(lt.AnnualQuota, policy, emp.JoinedOn)

	carried := domain.ZeroDays()
	if lt.CarryOver.Enabled {
		prev, err := tx.FindBalance(ctx, domain.BalanceKey{EmployeeID: emp.ID, LeaveTypeID: lt.ID, PolicyYear: policy.Year - 1})
		if err != nil {
			return domain.LeaveBalance{}, nil, err
		}
		if prev != nil {
			carried = ComputeCarryOver(prev.Available, lt.CarryOver, policy)
		}
	}

	b := domain.LeaveBalance{
		ID:               domain.NewID(),
		TenantID:         emp.TenantID,
		EmployeeID:       emp.ID,
		LeaveTypeID:      lt.ID,
		PolicyYear:       policy.Year,
		Entitled:         ent.Entitled,
		Used:             domain.ZeroDays(),
		Pending:          domain.ZeroDays(),
		CarriedOver:      carried,
		Adjustment:       domain.ZeroDays(),
		LastCalculatedAt: now,
		CalculationDetails: map[string]string{
			"base_quota": ent.Quota.String(),
			"pro_rated":  strconv.FormatBool(ent.ProRated),
			"entitled":   ent.Entitled.String(),
			"carry_over": carried.String(),
		},
	}
	if ent.ProRated {
		b.CalculationDetails["join_date"] = emp.JoinedOn.String()
		b.CalculationDetails["remaining_days"] = strconv.Itoa(ent.RemainingDays)
		b.CalculationDetails["total_days"] = strconv.Itoa(ent.TotalDays)
	}
	b.Recompute()

	var txs []domain.LeaveTransaction
	if ent.Entitled.IsPositive() {
		txs = append(txs, l.newTransaction(b, domain.TxCredit, ent.Entitled, domain.ReasonAnnualEntitlement,
			fmt.Sprintf("Annual entitlement for %d", policy.Year), SystemActor, now,
			map[string]string{"type": domain.ReasonAnnualEntitlement, "year": strconv.Itoa(policy.Year)}))
	}
	if carried.IsPositive() {
		txs = append(txs, l.newTransaction(b, domain.TxCredit, carried, domain.ReasonCarryOver,
			"Carry-over from previous year", SystemActor, now,
			map[string]string{"type": domain.ReasonCarryOver, "from_year": strconv.Itoa(policy.Year - 1)}))
	}
	return b, txs, nil
}

func (l *Ledger) newTransaction(b domain.LeaveBalance, typ domain.TransactionType, days domain.Days, reason, description, actor string, at time.Time, meta map[string]string) domain.LeaveTransaction {
	return domain.LeaveTransaction{
		ID:          domain.NewID(),
		TenantID:    b.TenantID,
		BalanceID:   b.ID,
		EmployeeID:  b.EmployeeID,
		LeaveTypeID: b.LeaveTypeID,
		Type:        typ,
		Days:        days.Abs().Round2(),
		Reason:      reason,
		Description: description,
		Metadata:    meta,
		CreatedBy:   actor,
		CreatedAt:   at,
	}
}

// =============================================================================
// LEAVE TYPE PROVISIONING
// =============================================================================

// EnsureLeaveType returns the tenant's leave type for code, creating it
// with default attributes when it does not exist. created reports whether
// a new leave type was provisioned.
func (l *Ledger) EnsureLeaveType(ctx context.Context, tenantID, code string) (lt domain.LeaveType, created bool, err error) {
	err = l.Store.WithTx(ctx, func(tx domain.Store) error {
		lt, created, err = ensureLeaveType(ctx, tx, tenantID, code)
		return err
	})
	if err == nil && created {
		l.Logger.Warn("leave type provisioned on demand", "tenant_id", tenantID, "code", lt.Code)
	}
	return lt, created, err
}

func ensureLeaveType(ctx context.Context, tx domain.Store, tenantID, code string) (domain.LeaveType, bool, error) {
	code = domain.NormalizeLeaveCode(code)
	if code == "" {
		return domain.LeaveType{}, false, domain.NewValidationError("type", "leave type code is required")
	}
	if err := tx.Lock(ctx, domain.LeaveTypeLockKey(tenantID, code)); err != nil {
		return domain.LeaveType{}, false, err
	}
	existing, err := tx.FindLeaveTypeByCode(ctx, tenantID, code)
	if err != nil {
		return domain.LeaveType{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	lt := domain.LeaveType{
		ID:               domain.NewID(),
		TenantID:         tenantID,
		Name:             leaveTypeName(code),
		Code:             code,
		AnnualQuota:      defaultLeaveTypeQuota,
		RequiresApproval: true,
		Paid:             true,
		Active:           true,
		CarryOver:        domain.DefaultCarryOverRule(),
	}
	if err := tx.CreateLeaveType(ctx, lt); err != nil {
		return domain.LeaveType{}, false, err
	}
	return lt, true, nil
}

// leaveTypeName turns "ANNUAL" into "Annual Leave".
func leaveTypeName(code string) string {
	lower := strings.ToLower(code)
	return strings.ToUpper(lower[:1]) + lower[1:] + " Leave"
}

// =============================================================================
// READS
// =============================================================================

// SummaryLine is one leave type's balance for a policy year.
type SummaryLine struct {
	BalanceID   string      `json:"balance_id"`
	LeaveType   string      `json:"leave_type"`
	Code        string      `json:"code"`
	Entitled    domain.Days `json:"entitled"`
	Used        domain.Days `json:"used"`
	Pending     domain.Days `json:"pending"`
	Available   domain.Days `json:"available"`
	CarriedOver domain.Days `json:"carried_over"`
	Adjustment  domain.Days `json:"adjustment"`
}

// GetSummary lists the employee's balances for year. It never creates
// balances; an employee with none gets an empty summary.
func (l *Ledger) GetSummary(ctx context.Context, employeeID string, year int) ([]SummaryLine, error) {
	balances, err := l.Store.ListBalances(ctx, employeeID, year)
	if err != nil {
		return nil, err
	}

	out := make([]SummaryLine, 0, len(balances))
	for _, b := range balances {
		lt, err := l.Store.GetLeaveType(ctx, b.LeaveTypeID)
		if err != nil {
			return nil, err
		}
		out = append(out, SummaryLine{
			BalanceID:   b.ID,
			LeaveType:   lt.Name,
			Code:        lt.Code,
			Entitled:    b.Entitled,
			Used:        b.Used,
			Pending:     b.Pending,
			Available:   b.Available,
			CarriedOver: b.CarriedOver,
			Adjustment:  b.Adjustment,
		})
	}
	return out, nil
}

// Transactions returns a balance's audit trail in append order.
func (l *Ledger) Transactions(ctx context.Context, balanceID string) ([]domain.LeaveTransaction, error) {
	if _, err := l.Store.GetBalance(ctx, balanceID); err != nil {
		return nil, err
	}
	return l.Store.ListTransactions(ctx, balanceID)
}

// =============================================================================
// HELPERS
// =============================================================================

// balanceKey reads a balance's key outside any transaction. The key never
// changes after creation, so it is safe to lock on it later.
func (l *Ledger) balanceKey(ctx context.Context, balanceID string) (domain.BalanceKey, error) {
	b, err := l.Store.GetBalance(ctx, balanceID)
	if err != nil {
		return domain.BalanceKey{}, err
	}
	return b.Key(), nil
}

// lockedBalance takes the key lock, then reads the balance. A store may
// lock the row on read, so the order must match DebitInTx.
func lockedBalance(ctx context.Context, tx domain.Store, key domain.BalanceKey, balanceID string) (*domain.LeaveBalance, error) {
	if err := tx.Lock(ctx, domain.BalanceLockKey(key)); err != nil {
		return nil, err
	}
	return tx.GetBalance(ctx, balanceID)
}

// checkNonNegative rejects a negative available unless the balance's policy
// allows it.
func checkNonNegative(ctx context.Context, tx domain.Store, b domain.LeaveBalance, requested domain.Days) error {
	if !b.Available.IsNegative() {
		return nil
	}
	policy, err := tx.FindPolicy(ctx, b.TenantID, b.PolicyYear)
	if err != nil {
		return err
	}
	if policy != nil && policy.AllowNegativeBalance {
		return nil
	}
	return &domain.InsufficientBalanceError{
		BalanceID: b.ID,
		Available: b.Available.Add(requested),
		Requested: requested,
	}
}

// today is the current date in the tenant's time zone.
func (l *Ledger) today(ctx context.Context, tx domain.Store, tenantID string) (domain.Date, error) {
	now := l.Clock.Now()
	if tenantID == "" {
		return domain.DateOf(now.UTC()), nil
	}
	t, err := tx.GetTenant(ctx, tenantID)
	if err != nil {
		return domain.Date{}, err
	}
	return domain.DateOf(now.In(t.Location())), nil
}

func workingDays(tx domain.Store) *workday.Calculator {
	return workday.New(tx)
}
