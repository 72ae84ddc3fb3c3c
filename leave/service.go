// Package leave is the request boundary in front of the ledger: it accepts
// leave applications and decides them. Approval is the only path that
// debits a balance, and it does so at most once per leave.
package leave

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/warp/attendance-ledger/clock"
	"github.com/warp/attendance-ledger/domain"
	"github.com/warp/attendance-ledger/ledger"
	"github.com/warp/attendance-ledger/workday"
)

type Service struct {
	Store  domain.TxStore
	Ledger *ledger.Ledger
	Clock  clock.Clock
	Events domain.Publisher
	Logger *slog.Logger
}

func New(store domain.TxStore, l *ledger.Ledger, clk clock.Clock, events domain.Publisher, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.Real()
	}
	if events == nil {
		events = domain.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{Store: store, Ledger: l, Clock: clk, Events: events, Logger: logger}
}

// SubmitRequest is a new leave application.
type SubmitRequest struct {
	EmployeeID string
	TypeCode   string
	StartDate  domain.Date
	EndDate    domain.Date
	Reason     string
}

// ApproveResult reports whether approval charged the balance. Debited is
// false when the leave had already been deducted.
type ApproveResult struct {
	Leave   domain.Leave
	Debited bool
	Debit   *ledger.DebitResult
}

// =============================================================================
// SUBMIT
// =============================================================================

// Submit validates and stores a leave application as pending. Leave types
// that do not require approval are approved and debited immediately.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (domain.Leave, error) {
	code := domain.NormalizeLeaveCode(req.TypeCode)
	switch {
	case req.EmployeeID == "":
		return domain.Leave{}, domain.NewValidationError("employee_id", "is required")
	case code == "":
		return domain.Leave{}, domain.NewValidationError("type", "is required")
	case req.StartDate.IsZero() || req.EndDate.IsZero():
		return domain.Leave{}, domain.NewValidationError("dates", "start_date and end_date are required")
	case req.EndDate.Before(req.StartDate):
		return domain.Leave{}, domain.NewValidationError("end_date", "must not be before start_date")
	}

	var (
		out    domain.Leave
		events []domain.Event
	)
	err := s.Store.WithTx(ctx, func(tx domain.Store) error {
		emp, err := tx.GetEmployee(ctx, req.EmployeeID)
		if err != nil {
			return err
		}
		if !emp.Active {
			return domain.NewValidationError("employee_id", "employee is not active")
		}
		lt, err := tx.FindLeaveTypeByCode(ctx, emp.TenantID, code)
		if err != nil {
			return err
		}
		if lt != nil && !lt.Active {
			return domain.NewValidationError("type", "leave type %s is not active", code)
		}

		today, err := s.today(ctx, tx, emp.TenantID)
		if err != nil {
			return err
		}
		days, err := workday.New(tx).CountWorkingDays(ctx, req.StartDate, req.EndDate, emp.TenantID)
		if err != nil {
			return err
		}
		if days == 0 {
			return domain.NewValidationError("dates", "the requested range contains no working days")
		}
		if err := s.checkRules(ctx, tx, *emp, lt, req, today, days); err != nil {
			return err
		}

		now := s.Clock.Now()
		l := domain.Leave{
			ID:             domain.NewID(),
			TenantID:       emp.TenantID,
			EmployeeID:     emp.ID,
			TypeCode:       code,
			StartDate:      req.StartDate,
			EndDate:        req.EndDate,
			Reason:         strings.TrimSpace(req.Reason),
			Status:         domain.LeavePending,
			CalculatedDays: domain.DaysFromInt(days),
			CreatedAt:      now,
		}
		if lt != nil {
			l.LeaveTypeID = lt.ID
		}
		autoApprove := lt != nil && !lt.RequiresApproval
		if autoApprove {
			l.Status = domain.LeaveApproved
			l.ApprovedBy = ledger.SystemActor
			l.DecidedAt = &now
		}
		if err := tx.CreateLeave(ctx, l); err != nil {
			return err
		}
		events = append(events, domain.Event{
			Type:       domain.EventLeaveSubmitted,
			TenantID:   l.TenantID,
			EmployeeID: l.EmployeeID,
			LeaveID:    l.ID,
			Days:       l.CalculatedDays,
			At:         now,
		})
		out = l

		if autoApprove {
			res, debitEvents, err := s.Ledger.DebitInTx(ctx, tx, l.ID)
			if err != nil {
				return err
			}
			out = res.Leave
			events = append(events, debitEvents...)
		}
		return nil
	})
	if err != nil {
		return domain.Leave{}, err
	}

	s.Logger.InfoContext(ctx, "leave submitted", "leave_id", out.ID, "employee_id", out.EmployeeID,
		"type", out.TypeCode, "days", out.CalculatedDays.String(), "status", out.Status)
	s.Events.Publish(events...)
	return out, nil
}

// checkRules applies the leave type's notice and length limits and the
// policy's probation period.
func (s *Service) checkRules(ctx context.Context, tx domain.Store, emp domain.Employee, lt *domain.LeaveType, req SubmitRequest, today domain.Date, days int) error {
	if lt != nil {
		if lt.MinNoticeDays > 0 && domain.DaysBetween(today, req.StartDate) < lt.MinNoticeDays {
			return domain.NewValidationError("start_date", "%s must be requested at least %d days in advance", lt.Name, lt.MinNoticeDays)
		}
		if lt.MaxConsecutiveDays > 0 && days > lt.MaxConsecutiveDays {
			return domain.NewValidationError("end_date", "%s allows at most %d consecutive working days", lt.Name, lt.MaxConsecutiveDays)
		}
	}

	policy, err := tx.FindPolicyCovering(ctx, emp.TenantID, req.StartDate)
	if err != nil {
		return err
	}
	if policy == nil || policy.ProbationMonths <= 0 || emp.JoinedOn.IsZero() {
		return nil
	}
	ends := emp.JoinedOn.AddMonths(policy.ProbationMonths)
	if req.StartDate.Before(ends) {
		return domain.NewValidationError("start_date", "leave is not available during probation (ends %s)", ends)
	}
	return nil
}

// =============================================================================
// DECISIONS
// =============================================================================

// Approve approves a pending leave and debits its balance in the same
// transaction. A leave that has already been deducted is returned as is.
func (s *Service) Approve(ctx context.Context, leaveID, approverID string) (ApproveResult, error) {
	if approverID == "" {
		return ApproveResult{}, domain.NewValidationError("approver_id", "is required")
	}

	var (
		res    ApproveResult
		events []domain.Event
	)
	err := s.Store.WithTx(ctx, func(tx domain.Store) error {
		if err := tx.Lock(ctx, domain.LeaveLockKey(leaveID)); err != nil {
			return err
		}
		l, err := tx.GetLeave(ctx, leaveID)
		if err != nil {
			return err
		}
		if l.DeductedFromBalance {
			res = ApproveResult{Leave: *l}
			return nil
		}
		switch l.Status {
		case domain.LeaveRejected:
			return domain.NewStateConflict(domain.ConflictInvalidLeaveStatus, "a rejected leave cannot be approved")
		case domain.LeavePending:
			now := s.Clock.Now()
			l.Status = domain.LeaveApproved
			l.ApprovedBy = approverID
			l.DecidedAt = &now
			if err := tx.UpdateLeave(ctx, *l); err != nil {
				return err
			}
		}

		debit, debitEvents, err := s.Ledger.DebitInTx(ctx, tx, leaveID)
		if err != nil {
			return err
		}
		res = ApproveResult{Leave: debit.Leave, Debited: true, Debit: &debit}
		events = debitEvents
		return nil
	})
	if err != nil {
		return ApproveResult{}, err
	}

	if res.Debited {
		s.Logger.InfoContext(ctx, "leave approved", "leave_id", leaveID, "approver", approverID,
			"days", res.Debit.Days.String())
	} else {
		s.Logger.InfoContext(ctx, "leave already deducted, approval is a no-op", "leave_id", leaveID)
	}
	s.Events.Publish(events...)
	return res, nil
}

// Reject closes a pending leave without touching any balance.
func (s *Service) Reject(ctx context.Context, leaveID, approverID, reason string) (domain.Leave, error) {
	if approverID == "" {
		return domain.Leave{}, domain.NewValidationError("approver_id", "is required")
	}

	var out domain.Leave
	err := s.Store.WithTx(ctx, func(tx domain.Store) error {
		if err := tx.Lock(ctx, domain.LeaveLockKey(leaveID)); err != nil {
			return err
		}
		l, err := tx.GetLeave(ctx, leaveID)
		if err != nil {
			return err
		}
		if l.Status != domain.LeavePending {
			return domain.NewStateConflict(domain.ConflictInvalidLeaveStatus,
				fmt.Sprintf("only pending leaves can be rejected, this one is %s", l.Status))
		}
		now := s.Clock.Now()
		l.Status = domain.LeaveRejected
		l.ApprovedBy = approverID
		l.DecidedAt = &now
		l.RejectionReason = strings.TrimSpace(reason)
		if err := tx.UpdateLeave(ctx, *l); err != nil {
			return err
		}
		out = *l
		return nil
	})
	if err != nil {
		return domain.Leave{}, err
	}

	s.Logger.InfoContext(ctx, "leave rejected", "leave_id", leaveID, "approver", approverID)
	s.Events.Publish(domain.Event{
		Type:       domain.EventLeaveRejected,
		TenantID:   out.TenantID,
		EmployeeID: out.EmployeeID,
		LeaveID:    out.ID,
		At:         *out.DecidedAt,
		Message:    out.RejectionReason,
	})
	return out, nil
}

// Get returns a leave by id.
func (s *Service) Get(ctx context.Context, leaveID string) (*domain.Leave, error) {
	return s.Store.GetLeave(ctx, leaveID)
}

func (s *Service) today(ctx context.Context, tx domain.Store, tenantID string) (domain.Date, error) {
	now := s.Clock.Now()
	if tenantID == "" {
		return domain.DateOf(now.UTC()), nil
	}
	t, err := tx.GetTenant(ctx, tenantID)
	if err != nil {
		return domain.Date{}, err
	}
	return domain.DateOf(now.In(t.Location())), nil
}
