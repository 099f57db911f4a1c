/*
Package generic provides the primitives shared by every HR engine package.

PURPOSE:
  Keeps the domain packages (absence, probation, notify, employee) free of
  duplicated plumbing: calendar dates, day quantities, identifiers, clocks
  and the error taxonomy all live here.

KEY CONCEPTS:
  - Date: calendar day, the unit of every absence span
  - Amount: a quantity of days with decimal precision
  - Clock / IDGenerator: injected so tests are deterministic
  - ValidationError / StateError: business rule and lifecycle failures

DESIGN PRINCIPLES:
  1. Precision: day balances use decimal.Decimal, never float64
  2. Determinism: no package reads time.Now() directly, a Clock is passed in
  3. Explicit scope: company and user identifiers are always parameters

SEE ALSO:
  - time.go: Date and Clock
  - errors.go: Error taxonomy
  - absence/entitlement.go: Main consumer of Amount
*/
package generic

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNT - Quantity with unit
// =============================================================================

type Amount struct {
	Value decimal.Decimal
	Unit  Unit
}

type Unit string

const (
	UnitDays Unit = "days"
)

// Days returns an amount of n whole days.
func Days(n int) Amount {
	return Amount{Value: decimal.NewFromInt(int64(n)), Unit: UnitDays}
}

func NewAmount(value float64, unit Unit) Amount {
	return Amount{Value: decimal.NewFromFloat(value), Unit: unit}
}

func (a Amount) Zero() Amount              { return Amount{Value: decimal.Zero, Unit: a.Unit} }
func (a Amount) Add(b Amount) Amount       { return Amount{Value: a.Value.Add(b.Value), Unit: a.Unit} }
func (a Amount) Sub(b Amount) Amount       { return Amount{Value: a.Value.Sub(b.Value), Unit: a.Unit} }
func (a Amount) Neg() Amount               { return Amount{Value: a.Value.Neg(), Unit: a.Unit} }
func (a Amount) IsNegative() bool          { return a.Value.IsNegative() }
func (a Amount) IsZero() bool              { return a.Value.IsZero() }
func (a Amount) Equal(b Amount) bool       { return a.Value.Equal(b.Value) }
func (a Amount) GreaterThan(b Amount) bool { return a.Value.GreaterThan(b.Value) }
func (a Amount) LessThan(b Amount) bool    { return a.Value.LessThan(b.Value) }

// Float returns the value for JSON responses.
func (a Amount) Float() float64 {
	f, _ := a.Value.Float64()
	return f
}

func (a Amount) String() string { return a.Value.String() + " " + string(a.Unit) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.NewString() }
