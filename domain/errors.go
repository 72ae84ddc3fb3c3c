/*
errors.go - Error taxonomy shared by every engine

PURPOSE:
  All error types in one place. Engines return these unchanged so that
  callers (the HTTP layer, tests, background jobs) can branch on the kind
  with errors.Is / errors.As and surface the reason code to clients.

ERROR KINDS:
  ErrValidation          malformed input (coordinates, dates, zero delta)
  ErrStateConflict       attendance/leave state forbids the operation
  ErrPolicyMissing       no leave policy for the tenant and year
  ErrGeofenceViolation   check-in outside the enforced radius
  ErrInsufficientBalance debit would drive available below zero
  ErrNotFound            referenced record does not exist
  ErrNotWorkingDay       operation requested on a non-working day

REASON CODES:
  Every structured error has a Code() used as the machine-readable reason
  (e.g. "already_checked_in_today"). ReasonCode(err) extracts it.

SEE ALSO:
  - api/handlers.go: maps kinds to HTTP status codes
*/
package domain

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation          = errors.New("validation failed")
	ErrStateConflict       = errors.New("state conflict")
	ErrPolicyMissing       = errors.New("leave policy missing")
	ErrGeofenceViolation   = errors.New("outside geofence")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNotFound            = errors.New("not found")
	ErrNotWorkingDay       = errors.New("not a working day")
)

// State conflict codes.
const (
	ConflictAlreadyCheckedIn   = "already_checked_in_today"
	ConflictNoOpenSession      = "no_open_session"
	ConflictDuplicateBalance   = "duplicate_balance_init"
	ConflictAlreadyDeducted    = "already_deducted"
	ConflictInvalidLeaveStatus = "invalid_leave_status"
	ConflictDuplicateRecord    = "duplicate_record"
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports a malformed field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Code() string  { return "validation_failed" }
func (e *ValidationError) Unwrap() error { return ErrValidation }

// StateConflictError is returned when the current state of a record does not
// allow the requested transition.
type StateConflictError struct {
	Reason  string
	Message string
}

func NewStateConflict(reason, message string) *StateConflictError {
	return &StateConflictError{Reason: reason, Message: message}
}

func (e *StateConflictError) Error() string { return e.Message }
func (e *StateConflictError) Code() string  { return e.Reason }
func (e *StateConflictError) Unwrap() error { return ErrStateConflict }

// PolicyNotFoundError reports a missing leave policy.
type PolicyNotFoundError struct {
	TenantID string
	Year     int
}

func (e *PolicyNotFoundError) Error() string {
	return fmt.Sprintf("Leave policy not found for year %d", e.Year)
}

func (e *PolicyNotFoundError) Code() string  { return "policy_missing" }
func (e *PolicyNotFoundError) Unwrap() error { return ErrPolicyMissing }

// GeofenceViolationError carries the measured and allowed distance.
type GeofenceViolationError struct {
	Distance float64
	Allowed  int
	Message  string
}

func (e *GeofenceViolationError) Error() string { return e.Message }
func (e *GeofenceViolationError) Code() string  { return "geofence_violation" }
func (e *GeofenceViolationError) Unwrap() error { return ErrGeofenceViolation }

// InsufficientBalanceError is raised when a debit would make available negative
// and the policy does not allow it.
type InsufficientBalanceError struct {
	BalanceID string
	Available Days
	Requested Days
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s", e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Code() string  { return "insufficient_balance" }
func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// NotFoundError names the missing record.
type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Entity, e.ID) }
func (e *NotFoundError) Code() string  { return e.Entity + "_not_found" }
func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotWorkingDayError is returned when a check-in is attempted on a day
// outside the employee's schedule.
type NotWorkingDayError struct {
	Date Date
}

func (e *NotWorkingDayError) Error() string { return "Today is not a working day" }
func (e *NotWorkingDayError) Code() string  { return "not_working_day" }
func (e *NotWorkingDayError) Unwrap() error { return ErrNotWorkingDay }

// =============================================================================
// ERROR HELPERS
// =============================================================================

type coded interface {
	Code() string
}

// ReasonCode returns the machine-readable reason carried by err, or
// "internal_error" when err is not one of ours.
func ReasonCode(err error) string {
	var c coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return "internal_error"
}

// IsClientError returns true if the error is due to the request rather
// than the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrStateConflict) ||
		errors.Is(err, ErrPolicyMissing) ||
		errors.Is(err, ErrGeofenceViolation) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrNotWorkingDay)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
