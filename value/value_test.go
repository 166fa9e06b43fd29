package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestNewUnitValueClamps(t *testing.T) {
	assert.Equal(t, UnitValue(0), NewUnitValue(-5))
	assert.Equal(t, UnitValue(1), NewUnitValue(5))
	assert.Equal(t, UnitValue(0.5), NewUnitValue(0.5))
}

func TestIntervalNormalizeDenormalizeRoundTrip(t *testing.T) {
	iv := Interval{Min: 0.25, Max: 0.75}
	got := iv.Denormalize(iv.Normalize(0.5))
	assert.True(t, got.ApproxEq(0.5))
}

func TestIntervalDegenerate(t *testing.T) {
	iv := Interval{Min: 0.5, Max: 0.5}
	assert.Equal(t, iv.Min, iv.Normalize(0.9))
}

func TestAbsoluteDiscreteRoundTrip(t *testing.T) {
	cv := NewAbsoluteDiscrete(3, 5)
	pos, n := cv.DiscretePosition()
	assert.Equal(t, 3, pos)
	assert.Equal(t, 5, n)
	assert.True(t, cv.ToUnitValue().ApproxEq(0.75))
}

// TestUnitValueNeverEscapesRange is a property test: for any float input,
// NewUnitValue always returns something inside [0,1].
func TestUnitValueNeverEscapesRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := rapid.Float64Range(-1e6, 1e6).Draw(t, "f")
		uv := NewUnitValue(f)
		assert.GreaterOrEqual(t, float64(uv), 0.0)
		assert.LessOrEqual(t, float64(uv), 1.0)
	})
}

func TestIntervalNormalizeStaysInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		min := rapid.Float64Range(0, 1).Draw(t, "min")
		max := rapid.Float64Range(min, 1).Draw(t, "max")
		iv := Interval{Min: UnitValue(min), Max: UnitValue(max)}
		v := rapid.Float64Range(0, 1).Draw(t, "v")
		n := iv.Normalize(UnitValue(v))
		assert.GreaterOrEqual(t, float64(n), 0.0)
		assert.LessOrEqual(t, float64(n), 1.0)
	})
}
