// Package simtime implements the simulation's notion of time: a scalar
// value tagged with a unit. Unlike wall-clock time, a SimTime is only ever
// combined with another SimTime of a compatible unit; incompatible units
// are a caller error reported as a Fault, never silently coerced.
// Comparisons accept any two values and order them in seconds.
package simtime

import (
	"fmt"
	"math"
)

// Unit identifies the granularity a SimTime value is expressed in.
// Dimensionless values carry no unit and combine only with other
// dimensionless values.
type Unit int

const (
	Dimensionless Unit = iota
	Seconds
	Minutes
	Hours
)

func (u Unit) String() string {
	switch u {
	case Seconds:
		return "seconds"
	case Minutes:
		return "minutes"
	case Hours:
		return "hours"
	default:
		return "dimensionless"
	}
}

// secondsPerUnit is the 60**n conversion factor table.
var secondsPerUnit = map[Unit]float64{
	Dimensionless: 1,
	Seconds:       1,
	Minutes:       60,
	Hours:         3600,
}

// UnitMismatch reports an attempt to combine or compare two SimTime values
// whose units cannot be reconciled.
type UnitMismatch struct {
	A, B Unit
	Op   string
}

func (e *UnitMismatch) Error() string {
	return fmt.Sprintf("simtime: unit mismatch in %s: %s vs %s", e.Op, e.A, e.B)
}

func (e *UnitMismatch) Kind() string { return "UnitMismatch" }

// SimTime is an immutable scalar simulated-time value.
type SimTime struct {
	value float64
	unit  Unit
}

// Zero is the dimensionless zero value. It combines only with other
// dimensionless values; use FromScalar(0) for a zero in the configured
// base unit.
var Zero = SimTime{}

// New builds a SimTime from a scalar value expressed in unit.
func New(value float64, unit Unit) SimTime {
	return SimTime{value: value, unit: unit}
}

func (t SimTime) Unit() Unit    { return t.unit }
func (t SimTime) Value() float64 { return t.value }

// Seconds returns the value normalized to seconds, regardless of the unit
// it was constructed with. Dimensionless values pass through unchanged.
func (t SimTime) Seconds() float64 {
	return t.value * secondsPerUnit[t.unit]
}

// compatible rules: two dimensioned values of any units combine (the
// other operand is converted into the receiver's unit); two dimensionless
// values combine; mixing dimensionless with dimensioned is a UnitMismatch.
func compatible(a, b Unit) bool {
	return (a == Dimensionless) == (b == Dimensionless)
}

// Add returns t+other, expressed in t's unit.
func (t SimTime) Add(other SimTime) (SimTime, error) {
	if !compatible(t.unit, other.unit) {
		return SimTime{}, &UnitMismatch{A: t.unit, B: other.unit, Op: "Add"}
	}
	return New(t.value+other.Seconds()/secondsPerUnit[t.unit], t.unit), nil
}

// Sub returns t-other, expressed in t's unit.
func (t SimTime) Sub(other SimTime) (SimTime, error) {
	if !compatible(t.unit, other.unit) {
		return SimTime{}, &UnitMismatch{A: t.unit, B: other.unit, Op: "Sub"}
	}
	return New(t.value-other.Seconds()/secondsPerUnit[t.unit], t.unit), nil
}

// Scale multiplies the value by a dimensionless scalar, preserving unit.
func (t SimTime) Scale(factor float64) SimTime {
	return New(t.value*factor, t.unit)
}

// Compare returns -1, 0 or 1 as t is less than, equal to, or greater than
// other, comparing in seconds. Units need not match for Compare/Less/Equal:
// any two SimTimes have a well-defined ordering once normalized to seconds.
func (t SimTime) Compare(other SimTime) int {
	a, b := t.Seconds(), other.Seconds()
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func (t SimTime) Less(other SimTime) bool    { return t.Compare(other) < 0 }
func (t SimTime) LessEq(other SimTime) bool  { return t.Compare(other) <= 0 }
func (t SimTime) Greater(other SimTime) bool { return t.Compare(other) > 0 }
func (t SimTime) Equal(other SimTime) bool   { return t.Compare(other) == 0 }
func (t SimTime) IsZero() bool               { return t.Seconds() == 0 }

func (t SimTime) String() string {
	if math.IsInf(t.value, 0) {
		return "+Inf"
	}
	return fmt.Sprintf("%g %s", t.value, t.unit)
}

// Infinite is used as a sentinel "never" time, e.g. an unbounded wait_for.
func Infinite() SimTime { return New(math.Inf(1), Dimensionless) }

// IsInfinite reports whether t is the Infinite sentinel (or any other
// positive-infinite value), used by acquire/wait_for callers to recognize
// an unbounded timeout.
func (t SimTime) IsInfinite() bool { return math.IsInf(t.value, 1) }

// base is the model-wide default unit new SimTime values are constructed
// in when a bare scalar is supplied (the SimTime.BaseTimeUnit option).
var base = Seconds

// SetBaseUnit configures the process-wide default unit. Called once during
// configuration load, before any model construction.
func SetBaseUnit(u Unit) { base = u }

// BaseUnit returns the process-wide default unit.
func BaseUnit() Unit { return base }

// FromScalar builds a SimTime in the configured base unit.
func FromScalar(v float64) SimTime { return New(v, base) }
