// Package value implements the scalar value model: normalized unit values and
// the absolute/relative control values produced by sources and consumed by
// modes and targets. Everything here is pure data plus pure functions.
package value

import "math"

// BaseEpsilon is the tolerance used whenever two unit values are compared for
// equality. Continuous modes use it to decide "did the value change".
// NewUnitValue clamps into [0,1] exactly and does not use it.
const BaseEpsilon = 0.0001

// UnitValue is a normalized control value, always held in [0,1].
type UnitValue float64

// NewUnitValue clamps v into [0,1].
func NewUnitValue(v float64) UnitValue {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return UnitValue(v)
}

// IsZero reports whether v is within BaseEpsilon of 0.
func (v UnitValue) IsZero() bool {
	return math.Abs(float64(v)) < BaseEpsilon
}

// ApproxEq reports whether v and other are within BaseEpsilon of each other.
func (v UnitValue) ApproxEq(other UnitValue) bool {
	return math.Abs(float64(v)-float64(other)) < BaseEpsilon
}

// Interval is an inclusive range within [0,1], used for mode interval
// clamping and for normalizing a target's aggregated value back through a
// mapping's configured range.
type Interval struct {
	Min UnitValue
	Max UnitValue
}

// FullInterval covers the entire unit range.
var FullInterval = Interval{Min: 0, Max: 1}

// Clamp restricts v to the interval.
func (iv Interval) Clamp(v UnitValue) UnitValue {
	if v < iv.Min {
		return iv.Min
	}
	if v > iv.Max {
		return iv.Max
	}
	return v
}

// Normalize maps v (assumed already within iv) onto [0,1] proportional to iv's
// span. A degenerate (zero-width) interval normalizes everything to iv.Min.
func (iv Interval) Normalize(v UnitValue) UnitValue {
	span := float64(iv.Max - iv.Min)
	if span <= 0 {
		return iv.Min
	}
	return NewUnitValue((float64(v) - float64(iv.Min)) / span)
}

// Denormalize is the inverse of Normalize: maps a [0,1] value back into iv.
func (iv Interval) Denormalize(v UnitValue) UnitValue {
	return NewUnitValue(float64(iv.Min) + float64(v)*float64(iv.Max-iv.Min))
}

// ControlValueKind distinguishes how a ControlValue's payload should be
// interpreted by a mode.
type ControlValueKind int

const (
	// AbsoluteContinuous carries a normalized [0,1] value, e.g. a MIDI CC or
	// an OSC float argument.
	AbsoluteContinuous ControlValueKind = iota
	// AbsoluteDiscrete carries an integer position out of a known number of
	// discrete steps, e.g. a button with on/off or a stepped encoder detent.
	AbsoluteDiscrete
	// Relative carries a signed step count, e.g. an endless encoder's
	// increment/decrement ticks.
	Relative
)

// ControlValue is what a source produces and a mode consumes. Use the
// NewAbsolute*/NewRelative constructors; the zero value is not meaningful.
type ControlValue = CV

// CV is the concrete representation of a ControlValue. It is a plain value
// type (no pointers, no allocation) so it is safe to pass across the
// real-time boundary.
type CV struct {
	kind      ControlValueKind
	abs       UnitValue
	discrete  int
	discreteN int
	rel       int
}

// NewAbsoluteContinuous builds a continuous absolute control value.
func NewAbsoluteContinuous(v UnitValue) CV {
	return CV{kind: AbsoluteContinuous, abs: v}
}

// NewAbsoluteDiscrete builds a discrete absolute control value: position out
// of n total steps (n >= 1).
func NewAbsoluteDiscrete(position, n int) CV {
	if n < 1 {
		n = 1
	}
	denom := n - 1
	if denom < 1 {
		denom = 1
	}
	return CV{kind: AbsoluteDiscrete, discrete: position, discreteN: n, abs: NewUnitValue(float64(position) / float64(denom))}
}

// NewRelative builds a relative (signed step count) control value.
func NewRelative(steps int) CV {
	return CV{kind: Relative, rel: steps}
}

// Kind reports which shape this value carries.
func (c CV) Kind() ControlValueKind { return c.kind }

// ToUnitValue returns the value normalized to [0,1]. For Relative values this
// panics in spirit but practically returns 0.5 (relative values have no
// absolute position; callers must special-case Kind() == Relative before
// calling this).
func (c CV) ToUnitValue() UnitValue {
	if c.kind == Relative {
		return 0.5
	}
	return c.abs
}

// Steps returns the signed step count for a Relative value (0 otherwise).
func (c CV) Steps() int {
	if c.kind != Relative {
		return 0
	}
	return c.rel
}

// DiscretePosition returns (position, total) for an AbsoluteDiscrete value.
func (c CV) DiscretePosition() (int, int) {
	return c.discrete, c.discreteN
}
