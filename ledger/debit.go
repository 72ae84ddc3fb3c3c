package ledger

import (
	"context"
	"fmt"

	"github.com/warp/attendance-ledger/domain"
)

// =============================================================================
// DEBIT - Charging an approved leave
// =============================================================================

// DebitResult reports what a debit did.
type DebitResult struct {
	Leave            domain.Leave
	Balance          domain.LeaveBalance
	Transaction      *domain.LeaveTransaction // nil when the range had no working days
	Days             domain.Days
	LeaveTypeCreated bool
}

// DebitForApprovedLeave charges the working days of an approved leave to the
// matching balance, initializing the policy year's balances first when
// needed. The leave must already be stored with status approved and must
// not have been deducted before.
func (l *Ledger) DebitForApprovedLeave(ctx context.Context, leave domain.Leave) (DebitResult, error) {
	var (
		res    DebitResult
		events []domain.Event
	)
	err := l.Store.WithTx(ctx, func(tx domain.Store) error {
		var err error
		res, events, err = l.DebitInTx(ctx, tx, leave.ID)
		return err
	})
	if err != nil {
		return DebitResult{}, err
	}
	l.Events.Publish(events...)
	return res, nil
}

// DebitInTx is DebitForApprovedLeave for callers that already hold a store
// transaction (the approval workflow). The caller publishes the returned
// events after commit.
func (l *Ledger) DebitInTx(ctx context.Context, tx domain.Store, leaveID string) (DebitResult, []domain.Event, error) {
	if err := tx.Lock(ctx, domain.LeaveLockKey(leaveID)); err != nil {
		return DebitResult{}, nil, err
	}
	leave, err := tx.GetLeave(ctx, leaveID)
	if err != nil {
		return DebitResult{}, nil, err
	}
	if leave.DeductedFromBalance {
		return DebitResult{}, nil, domain.NewStateConflict(domain.ConflictAlreadyDeducted, "leave has already been deducted from balance")
	}
	if leave.Status != domain.LeaveApproved {
		return DebitResult{}, nil, domain.NewStateConflict(domain.ConflictInvalidLeaveStatus,
			fmt.Sprintf("leave is %s, only approved leaves can be deducted", leave.Status))
	}

	emp, err := tx.GetEmployee(ctx, leave.EmployeeID)
	if err != nil {
		return DebitResult{}, nil, err
	}

	res := DebitResult{}
	var lt domain.LeaveType
	if leave.LeaveTypeID != "" {
		found, err := tx.GetLeaveType(ctx, leave.LeaveTypeID)
		if err != nil {
			return DebitResult{}, nil, err
		}
		lt = *found
	} else {
		lt, res.LeaveTypeCreated, err = ensureLeaveType(ctx, tx, emp.TenantID, leave.TypeCode)
		if err != nil {
			return DebitResult{}, nil, err
		}
	}

	year := leave.StartDate.Year
	covering, err := tx.FindPolicyCovering(ctx, emp.TenantID, leave.StartDate)
	if err != nil {
		return DebitResult{}, nil, err
	}
	if covering != nil {
		year = covering.Year
	}

	n, err := workingDays(tx).CountWorkingDays(ctx, leave.StartDate, leave.EndDate, emp.TenantID)
	if err != nil {
		return DebitResult{}, nil, err
	}
	days := domain.DaysFromInt(n)

	key := domain.BalanceKey{EmployeeID: emp.ID, LeaveTypeID: lt.ID, PolicyYear: year}
	if err := tx.Lock(ctx, domain.BalanceYearLockKey(emp.ID, year)); err != nil {
		return DebitResult{}, nil, err
	}
	if err := tx.Lock(ctx, domain.BalanceLockKey(key)); err != nil {
		return DebitResult{}, nil, err
	}
	b, err := tx.FindBalance(ctx, key)
	if err != nil {
		return DebitResult{}, nil, err
	}

	var events []domain.Event
	if b == nil {
		_, initEvents, err := l.initialize(ctx, tx, *emp, year)
		if err != nil {
			return DebitResult{}, nil, err
		}
		events = append(events, initEvents...)
		if b, err = tx.FindBalance(ctx, key); err != nil {
			return DebitResult{}, nil, err
		}
		if b == nil {
			return DebitResult{}, nil, fmt.Errorf("balance for leave type %s year %d missing after initialization", lt.Code, year)
		}
	}

	now := l.Clock.Now()
	b.Used = b.Used.Add(days)
	b.LastCalculatedAt = now
	b.Recompute()
	if err := checkNonNegative(ctx, tx, *b, days); err != nil {
		return DebitResult{}, nil, err
	}
	if err := tx.UpdateBalance(ctx, *b); err != nil {
		return DebitResult{}, nil, err
	}

	if days.IsPositive() {
		actor := leave.ApprovedBy
		if actor == "" {
			actor = leave.EmployeeID
		}
		t := l.newTransaction(*b, domain.TxDebit, days, domain.ReasonLeaveTaken,
			fmt.Sprintf("Leave taken: %s to %s", leave.StartDate, leave.EndDate), actor, now,
			map[string]string{"start_date": leave.StartDate.String(), "end_date": leave.EndDate.String()})
		t.LeaveID = leave.ID
		if err := tx.AppendTransaction(ctx, t); err != nil {
			return DebitResult{}, nil, err
		}
		res.Transaction = &t
	}

	leave.LeaveTypeID = lt.ID
	leave.TypeCode = lt.Code
	leave.CalculatedDays = days
	leave.DeductedFromBalance = true
	if err := tx.UpdateLeave(ctx, *leave); err != nil {
		return DebitResult{}, nil, err
	}

	res.Leave = *leave
	res.Balance = *b
	res.Days = days
	events = append(events, domain.Event{
		Type:       domain.EventLeaveDebited,
		TenantID:   emp.TenantID,
		EmployeeID: emp.ID,
		LeaveID:    leave.ID,
		BalanceID:  b.ID,
		Days:       days,
		At:         now,
	})

	l.Logger.Info("leave debited", "leave_id", leave.ID, "balance_id", b.ID, "days", days.String(),
		"leave_type_created", res.LeaveTypeCreated)
	return res, events, nil
}

// =============================================================================
// ADJUST - Manual signed correction
// =============================================================================

// AdjustBalance adds delta (positive or negative) to a balance's adjustment
// component and records a credit or debit of |delta|.
func (l *Ledger) AdjustBalance(ctx context.Context, balanceID string, delta domain.Days, reason, actor string) (domain.LeaveBalance, error) {
	if delta.IsZero() {
		return domain.LeaveBalance{}, domain.NewValidationError("days", "adjustment must be non-zero")
	}
	if !delta.Round2().Equal(delta) {
		return domain.LeaveBalance{}, domain.NewValidationError("days", "adjustment allows at most two decimal places")
	}
	if reason == "" {
		return domain.LeaveBalance{}, domain.NewValidationError("reason", "reason is required")
	}
	if actor == "" {
		actor = SystemActor
	}

	var (
		out   domain.LeaveBalance
		event domain.Event
	)
	key, err := l.balanceKey(ctx, balanceID)
	if err != nil {
		return domain.LeaveBalance{}, err
	}
	err = l.Store.WithTx(ctx, func(tx domain.Store) error {
		b, err := lockedBalance(ctx, tx, key, balanceID)
		if err != nil {
			return err
		}

		now := l.Clock.Now()
		b.Adjustment = b.Adjustment.Add(delta)
		b.LastCalculatedAt = now
		b.Recompute()
		if delta.IsNegative() {
			if err := checkNonNegative(ctx, tx, *b, delta.Abs()); err != nil {
				return err
			}
		}
		if err := tx.UpdateBalance(ctx, *b); err != nil {
			return err
		}

		typ := domain.TxCredit
		if delta.IsNegative() {
			typ = domain.TxDebit
		}
		t := l.newTransaction(*b, typ, delta.Abs(), domain.ReasonManualAdjustment,
			"Manual adjustment: "+reason, actor, now,
			map[string]string{"type": domain.ReasonManualAdjustment, "reason": reason})
		if err := tx.AppendTransaction(ctx, t); err != nil {
			return err
		}

		out = *b
		event = domain.Event{
			Type:       domain.EventBalanceAdjusted,
			TenantID:   b.TenantID,
			EmployeeID: b.EmployeeID,
			BalanceID:  b.ID,
			Days:       delta,
			At:         now,
		}
		return nil
	})
	if err != nil {
		return domain.LeaveBalance{}, err
	}

	l.Logger.Info("balance adjusted", "balance_id", balanceID, "delta", delta.String(), "actor", actor)
	l.Events.Publish(event)
	return out, nil
}
