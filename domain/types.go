/*
Package domain holds the shared vocabulary of the attendance and leave engines.

PURPOSE:
  Every engine (attendance, ledger, leave) and every store (memory, sqlite,
  postgres) speaks in the types defined here. Nothing in this package talks
  to a database or a clock; it is plain data plus the small amount of
  arithmetic that has to be identical everywhere.

KEY CONCEPTS IN THIS FILE (types.go):
  - Days: a decimal day quantity, always rendered with two decimals
  - NewID: identifier generation for every persisted record

DESIGN PRINCIPLES:
  1. Precision: day quantities use decimal.Decimal, never float64
  2. Rounding happens in one place (Days.Round2)
  3. Dates are civil dates (date.go), not instants

SEE ALSO:
  - date.go: Date, TimeOfDay and Window
  - entities.go: Tenant, Shift, Employee, Attendance, Leave*, Holiday
  - errors.go: error taxonomy shared by all engines
  - store.go: repository interfaces
*/
package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS - Decimal day quantity
// =============================================================================

// Days is a quantity of leave days. Balances and transactions use two
// decimal places; intermediate values (pro-ration) may carry more until
// Round2 is applied.
type Days struct {
	Value decimal.Decimal
}

func NewDays(value float64) Days { return Days{Value: decimal.NewFromFloat(value)} }
func DaysFromInt(value int) Days { return Days{Value: decimal.NewFromInt(int64(value))} }
func ZeroDays() Days             { return Days{Value: decimal.Zero} }

// ParseDays parses a decimal string such as "12" or "6.02".
func ParseDays(s string) (Days, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Days{}, err
	}
	return Days{Value: d}, nil
}

// DaysDecoder parses stored decimal columns, keeping the first failure in Err.
type DaysDecoder struct {
	Err error
}

func (d *DaysDecoder) Parse(column, s string) Days {
	v, err := ParseDays(s)
	if err != nil && d.Err == nil {
		d.Err = fmt.Errorf("invalid %s %q: %w", column, s, err)
	}
	return v
}

// MustParseDays is ParseDays for literals; invalid input yields zero.
func MustParseDays(s string) Days {
	d, err := ParseDays(s)
	if err != nil {
		return ZeroDays()
	}
	return d
}

func (d Days) Add(o Days) Days            { return Days{Value: d.Value.Add(o.Value)} }
func (d Days) Sub(o Days) Days            { return Days{Value: d.Value.Sub(o.Value)} }
func (d Days) Mul(s decimal.Decimal) Days { return Days{Value: d.Value.Mul(s)} }
func (d Days) Neg() Days                  { return Days{Value: d.Value.Neg()} }
func (d Days) Abs() Days                  { return Days{Value: d.Value.Abs()} }
func (d Days) Round2() Days               { return Days{Value: d.Value.Round(2)} }
func (d Days) IsNegative() bool           { return d.Value.IsNegative() }
func (d Days) IsZero() bool               { return d.Value.IsZero() }
func (d Days) IsPositive() bool           { return d.Value.IsPositive() }
func (d Days) Equal(o Days) bool          { return d.Value.Equal(o.Value) }
func (d Days) GreaterThan(o Days) bool    { return d.Value.GreaterThan(o.Value) }
func (d Days) LessThan(o Days) bool       { return d.Value.LessThan(o.Value) }
func (d Days) String() string             { return d.Value.StringFixed(2) }

func (d Days) Float64() float64 {
	f, _ := d.Value.Float64()
	return f
}

func (d Days) Min(o Days) Days {
	if d.LessThan(o) {
		return d
	}
	return o
}

func (d Days) Max(o Days) Days {
	if d.GreaterThan(o) {
		return d
	}
	return o
}

// MarshalJSON renders a bare JSON number with two decimals.
func (d Days) MarshalJSON() ([]byte, error) {
	return []byte(d.Value.StringFixed(2)), nil
}

// UnmarshalJSON accepts both 1.5 and "1.5".
func (d *Days) UnmarshalJSON(b []byte) error {
	return d.Value.UnmarshalJSON(b)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

// NewID returns a random identifier for a new record.
func NewID() string {
	return uuid.NewString()
}
