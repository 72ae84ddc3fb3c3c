package ledger

import (
	"github.com/shopspring/decimal"
	"github.com/warp/attendance-ledger/domain"
)

// Entitlement is the pure computation behind a new balance's entitled days.
type Entitlement struct {
	Quota    domain.Days
	Entitled domain.Days
	ProRated bool
	// RemainingDays and TotalDays are set when ProRated.
	RemainingDays int
	TotalDays     int
}

// ComputeEntitlement returns the annual quota, pro-rated by the share of the
// policy window left after joinedOn when the policy asks for it and the
// employee joined after the window opened.
func ComputeEntitlement(quota domain.Days, policy domain.LeavePolicy, joinedOn domain.Date) Entitlement {
	out := Entitlement{Quota: quota, Entitled: quota.Round2()}
	w := policyWindow(policy)
	if !policy.ProRateNewEmployees || joinedOn.IsZero() || !joinedOn.After(w.Start) {
		return out
	}

	total := w.TotalDays()
	remaining := domain.DaysBetween(joinedOn, w.End) + 1
	if remaining < 0 {
		remaining = 0
	}
	if remaining > total {
		remaining = total
	}

	out.ProRated = true
	out.TotalDays = total
	out.RemainingDays = remaining
	out.Entitled = domain.Days{
		Value: quota.Value.Mul(decimal.NewFromInt(int64(remaining))).Div(decimal.NewFromInt(int64(total))),
	}.Round2()
	return out
}

// ComputeCarryOver caps the previous year's available days by the smaller of
// the leave type's and the policy's carry-over limits. Negative previous
// balances carry nothing.
func ComputeCarryOver(previousAvailable domain.Days, rule domain.CarryOverRule, policy domain.LeavePolicy) domain.Days {
	if !rule.Enabled {
		return domain.ZeroDays()
	}
	limit := rule.MaxDays.Min(policy.MaxCarryOverDays)
	return previousAvailable.Min(limit).Max(domain.ZeroDays()).Round2()
}

// CarryOverExpiryDate is the first day on which unused carried-over days
// lapse: the policy's explicit date if set, otherwise the window start plus
// the rule's expiry months.
func CarryOverExpiryDate(rule domain.CarryOverRule, policy domain.LeavePolicy) domain.Date {
	if policy.CarryOverExpiry != nil && !policy.CarryOverExpiry.IsZero() {
		return *policy.CarryOverExpiry
	}
	return policyWindow(policy).Start.AddMonths(rule.ExpiryMonths)
}

func policyWindow(p domain.LeavePolicy) domain.Window {
	if p.Window.Start.IsZero() || p.Window.End.IsZero() || !p.Window.Valid() {
		return domain.YearWindow(p.Year)
	}
	return p.Window
}
