package ledger

import (
	"context"

	"github.com/warp/attendance-ledger/domain"
)

// =============================================================================
// RECALCULATION
// =============================================================================

// RecalculateEntitlement re-derives entitled days from the leave type's
// current quota and the policy. A change is recorded as one adjustment
// transaction whose metadata carries the direction; no change writes
// nothing.
func (l *Ledger) RecalculateEntitlement(ctx context.Context, balanceID, actor string) (domain.LeaveBalance, error) {
	if actor == "" {
		actor = SystemActor
	}
	var (
		out     domain.LeaveBalance
		changed bool
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
		emp, err := tx.GetEmployee(ctx, b.EmployeeID)
		if err != nil {
			return err
		}
		lt, err := tx.GetLeaveType(ctx, b.LeaveTypeID)
		if err != nil {
			return err
		}
		policy, err := tx.FindPolicy(ctx, b.TenantID, b.PolicyYear)
		if err != nil {
			return err
		}
		if policy == nil {
			return &domain.PolicyNotFoundError{TenantID: b.TenantID, Year: b.PolicyYear}
		}

		ent := ComputeEntitlement(lt.AnnualQuota, *policy, emp.JoinedOn)
		delta := ent.Entitled.Sub(b.Entitled)
		out = *b
		if delta.IsZero() {
			return nil
		}

		now := l.Clock.Now()
		previous := b.Entitled
		b.Entitled = ent.Entitled
		b.LastCalculatedAt = now
		if b.CalculationDetails == nil {
			b.CalculationDetails = map[string]string{}
		}
		b.CalculationDetails["base_quota"] = ent.Quota.String()
		b.CalculationDetails["entitled"] = ent.Entitled.String()
		b.Recompute()
		if err := tx.UpdateBalance(ctx, *b); err != nil {
			return err
		}

		direction := "increase"
		if delta.IsNegative() {
			direction = "decrease"
		}
		t := l.newTransaction(*b, domain.TxAdjustment, delta.Abs(), domain.ReasonRecalculation,
			"Entitlement recalculated", actor, now,
			map[string]string{
				"type":      domain.ReasonRecalculation,
				"direction": direction,
				"previous":  previous.String(),
				"current":   ent.Entitled.String(),
			})
		if err := tx.AppendTransaction(ctx, t); err != nil {
			return err
		}
		out = *b
		changed = true
		return nil
	})
	if err != nil {
		return domain.LeaveBalance{}, err
	}
	if changed {
		l.Logger.Info("entitlement recalculated", "balance_id", balanceID, "entitled", out.Entitled.String())
		l.Events.Publish(domain.Event{
			Type:       domain.EventBalanceAdjusted,
			TenantID:   out.TenantID,
			EmployeeID: out.EmployeeID,
			BalanceID:  out.ID,
			Days:       out.Entitled,
			At:         out.LastCalculatedAt,
		})
	}
	return out, nil
}

// =============================================================================
// CARRY-OVER EXPIRY
// =============================================================================

// ExpiryResult reports the outcome of ExpireCarryOver.
type ExpiryResult struct {
	Balance domain.LeaveBalance
	Expired domain.Days
	Applied bool
}

// ExpireCarryOver lapses the unused part of a balance's carried-over days
// once the expiry date has been reached. Used days are counted against the
// carried-over portion first. Runs at most once per balance.
func (l *Ledger) ExpireCarryOver(ctx context.Context, balanceID string) (ExpiryResult, error) {
	var res ExpiryResult
	key, err := l.balanceKey(ctx, balanceID)
	if err != nil {
		return ExpiryResult{}, err
	}
	err = l.Store.WithTx(ctx, func(tx domain.Store) error {
		b, err := lockedBalance(ctx, tx, key, balanceID)
		if err != nil {
			return err
		}
		res.Balance = *b
		if b.CarryOverExpiredAt != nil || !b.CarriedOver.IsPositive() {
			return nil
		}

		lt, err := tx.GetLeaveType(ctx, b.LeaveTypeID)
		if err != nil {
			return err
		}
		if !lt.CarryOver.AutoExpire {
			return nil
		}
		policy, err := tx.FindPolicy(ctx, b.TenantID, b.PolicyYear)
		if err != nil {
			return err
		}
		if policy == nil {
			policy = &domain.LeavePolicy{TenantID: b.TenantID, Year: b.PolicyYear}
		}

		today, err := l.today(ctx, tx, b.TenantID)
		if err != nil {
			return err
		}
		if today.Before(CarryOverExpiryDate(lt.CarryOver, *policy)) {
			return nil
		}

		now := l.Clock.Now()
		unused := b.CarriedOver.Sub(b.CarriedOver.Min(b.Used))
		b.CarryOverExpiredAt = &now
		b.LastCalculatedAt = now
		if unused.IsPositive() {
			b.CarriedOver = b.CarriedOver.Sub(unused)
			if b.CalculationDetails == nil {
				b.CalculationDetails = map[string]string{}
			}
			b.CalculationDetails["carry_over_expired"] = unused.String()
		}
		b.Recompute()
		if err := tx.UpdateBalance(ctx, *b); err != nil {
			return err
		}
		if unused.IsPositive() {
			t := l.newTransaction(*b, domain.TxDebit, unused, domain.ReasonCarryOverExpired,
				"Carry-over expired", SystemActor, now,
				map[string]string{"type": domain.ReasonCarryOverExpired, "expired_on": today.String()})
			if err := tx.AppendTransaction(ctx, t); err != nil {
				return err
			}
		}

		res = ExpiryResult{Balance: *b, Expired: unused, Applied: true}
		return nil
	})
	if err != nil {
		return ExpiryResult{}, err
	}

	if res.Applied && res.Expired.IsPositive() {
		l.Logger.Info("carry-over expired", "balance_id", balanceID, "days", res.Expired.String())
		l.Events.Publish(domain.Event{
			Type:       domain.EventCarryOverExpired,
			TenantID:   res.Balance.TenantID,
			EmployeeID: res.Balance.EmployeeID,
			BalanceID:  res.Balance.ID,
			Days:       res.Expired,
			At:         res.Balance.LastCalculatedAt,
		})
	}
	return res, nil
}

// ExpireDueCarryOvers walks every balance still holding carried-over days
// and expires those that are due. It returns how many balances lapsed days.
// Failures on one balance are logged and do not stop the sweep.
func (l *Ledger) ExpireDueCarryOvers(ctx context.Context) (int, error) {
	balances, err := l.Store.ListBalancesWithCarryOver(ctx)
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, b := range balances {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		res, err := l.ExpireCarryOver(ctx, b.ID)
		if err != nil {
			l.Logger.Error("carry-over expiry failed", "balance_id", b.ID, "err", err)
			continue
		}
		if res.Applied && res.Expired.IsPositive() {
			expired++
		}
	}
	return expired, nil
}
