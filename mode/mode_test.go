package mode

import (
	"testing"

	"github.com/jdginn/controlcore/value"
	"github.com/stretchr/testify/assert"
)

func TestAbsoluteModeMapsFullRange(t *testing.T) {
	s := New(Config{Kind: Absolute, SourceInterval: value.FullInterval, TargetInterval: value.FullInterval})
	out, ok := s.Process(value.NewAbsoluteContinuous(0.5039), 0)
	assert.True(t, ok)
	assert.InDelta(t, 0.5039, float64(out.ToUnitValue()), 1e-6)
}

func TestAbsoluteModeReverse(t *testing.T) {
	s := New(Config{Kind: Absolute, SourceInterval: value.FullInterval, TargetInterval: value.FullInterval, ReverseValue: true})
	out, _ := s.Process(value.NewAbsoluteContinuous(0.25), 0)
	assert.InDelta(t, 0.75, float64(out.ToUnitValue()), 1e-6)
}

func TestTakeoverBlocksUntilCrossing(t *testing.T) {
	s := New(Config{Kind: Absolute, SourceInterval: value.FullInterval, TargetInterval: value.FullInterval, Takeover: true})
	// Physical fader starts far from current target (0.9); first move should be blocked.
	_, ok := s.Process(value.NewAbsoluteContinuous(0.1), 0.9)
	assert.False(t, ok)
	// Fader keeps moving up but hasn't reached 0.9 yet.
	_, ok = s.Process(value.NewAbsoluteContinuous(0.5), 0.9)
	assert.False(t, ok)
	// Fader crosses the target value: takeover engages.
	out, ok := s.Process(value.NewAbsoluteContinuous(0.95), 0.9)
	assert.True(t, ok)
	assert.InDelta(t, 0.95, float64(out.ToUnitValue()), 1e-6)
	// Subsequent moves pass straight through.
	out, ok = s.Process(value.NewAbsoluteContinuous(0.2), 0.9)
	assert.True(t, ok)
	assert.InDelta(t, 0.2, float64(out.ToUnitValue()), 1e-6)
}

func TestRelativeModeAppliesStepsToCurrentTarget(t *testing.T) {
	s := New(Config{Kind: Relative, TargetInterval: value.FullInterval, StepSize: 0.05})
	out, ok := s.Process(value.NewRelative(2), 0.5)
	assert.True(t, ok)
	assert.InDelta(t, 0.6, float64(out.ToUnitValue()), 1e-9)
}

func TestRelativeModeIgnoresZeroSteps(t *testing.T) {
	s := New(Config{Kind: Relative, TargetInterval: value.FullInterval})
	_, ok := s.Process(value.NewRelative(0), 0.5)
	assert.False(t, ok)
}

func TestToggleModeFlipsOnEachPress(t *testing.T) {
	s := New(Config{Kind: Toggle, TargetInterval: value.FullInterval})
	out, ok := s.Process(value.NewAbsoluteDiscrete(1, 2), 0)
	assert.True(t, ok)
	assert.Equal(t, value.UnitValue(1), out.ToUnitValue())

	out, ok = s.Process(value.NewAbsoluteDiscrete(1, 2), 0)
	assert.True(t, ok)
	assert.Equal(t, value.UnitValue(0), out.ToUnitValue())

	// Release (position 0) never flips.
	_, ok = s.Process(value.NewAbsoluteDiscrete(0, 2), 0)
	assert.False(t, ok)
}

// TestFeedbackIdempotence verifies that emitting the same numeric feedback
// value repeatedly yields exactly one "should emit" true.
func TestFeedbackIdempotence(t *testing.T) {
	s := New(Config{Kind: Absolute})
	assert.True(t, s.ShouldEmitFeedback(0.5))
	assert.False(t, s.ShouldEmitFeedback(0.5))
	assert.False(t, s.ShouldEmitFeedback(0.5))
	assert.True(t, s.ShouldEmitFeedback(0.6))
}

func TestFeedbackWithTextualFormatAlwaysReemits(t *testing.T) {
	s := New(Config{Kind: Absolute, FeedbackFormat: func(v value.UnitValue) string { return "x" }})
	assert.True(t, s.ShouldEmitFeedback(0.5))
	assert.True(t, s.ShouldEmitFeedback(0.5))
	assert.True(t, s.UsesTextualFeedback())
}

func TestResetClearsTakeoverButNotFeedbackDedup(t *testing.T) {
	s := New(Config{Kind: Absolute, SourceInterval: value.FullInterval, TargetInterval: value.FullInterval, Takeover: true})
	s.Process(value.NewAbsoluteContinuous(0.9), 0.9) // crosses immediately, arms takeover
	assert.True(t, s.ShouldEmitFeedback(0.5))
	s.Reset()
	assert.False(t, s.ShouldEmitFeedback(0.5))
	_, ok := s.Process(value.NewAbsoluteContinuous(0.1), 0.9)
	assert.False(t, ok) // takeover re-armed by Reset
}
