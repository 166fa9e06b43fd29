// Package mode implements the per-mapping transformation pipeline:
// absolute/relative/toggle control logic, value intervals, step sizes,
// takeover, and textual feedback formatting. It also carries the
// previous-value dedup memory used by feedback polling: a mutex-guarded
// "don't resend if the value hasn't changed" registry gating one mapping's
// feedback output.
package mode

import (
	"sync"

	"github.com/jdginn/controlcore/value"
)

// Kind selects the control-value interpretation a mode applies.
type Kind int

const (
	Absolute Kind = iota
	Relative
	Toggle
)

// ScriptFunc is a transformation script hook (stands in for the EEL/Lua
// scripts of the source system — represented here as a plain Go closure
// supplied by the unit model when it compiles a mapping).
type ScriptFunc func(in value.UnitValue) value.UnitValue

// FeedbackFormatFunc renders a target value as source-facing feedback text.
// A non-nil formatter means duplicate numeric values must still re-emit,
// because the formatted text may depend on properties the core doesn't
// track.
type FeedbackFormatFunc func(value.UnitValue) string

// Config is the compiled, immutable description of one mapping's mode. It is
// produced by the unit model and never mutated by the core.
type Config struct {
	Kind Kind

	// SourceInterval restricts which portion of the raw control value is
	// considered "in range"; values outside it are clamped (deadzone-like
	// behavior at the edges).
	SourceInterval value.Interval
	// TargetInterval is the range within the target's own [0,1] space that
	// this mapping is allowed to drive.
	TargetInterval value.Interval

	// StepSize is the absolute delta (as a fraction of target range) applied
	// per relative step/detent.
	StepSize float64

	// Takeover enables "soft takeover"/jump-prevention: an absolute control
	// value is ignored until it crosses the target's current value, so
	// moving a physical fader doesn't cause the parameter to jump.
	Takeover bool

	ReverseValue bool

	Script ScriptFunc

	FeedbackFormat FeedbackFormatFunc
}

// State is the mutable per-mapping runtime state a mode pipeline carries:
// last control value (for takeover comparison), toggle memory, and the
// feedback dedup memory.
type State struct {
	cfg Config

	mu sync.Mutex

	haveLast   bool
	lastInput  value.UnitValue
	toggleOn   bool
	takeoverOK bool // once the fader has been "picked up", stays true until reset

	haveLastFeedback bool
	lastFeedback     value.UnitValue
}

// New builds fresh mode state for the given config. Called whenever a
// mapping is created or its mode state is reset (bulk update, compartment
// replace, source/target change); NOT called on a mere refresh.
func New(cfg Config) *State {
	return &State{cfg: cfg}
}

// Reset clears control-side memory (toggle state, takeover arming, last
// input) without touching the feedback dedup memory.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.haveLast = false
	s.toggleOn = false
	s.takeoverOK = false
}

// Process transforms one incoming control value into at most one outgoing
// control value. currentTarget is the target's present value,
// needed for relative steps and takeover comparison.
func (s *State) Process(in value.CV, currentTarget value.UnitValue) (out value.CV, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.cfg.Kind {
	case Relative:
		return s.processRelative(in, currentTarget)
	case Toggle:
		return s.processToggle(in)
	default:
		return s.processAbsolute(in, currentTarget)
	}
}

func (s *State) processAbsolute(in value.CV, currentTarget value.UnitValue) (value.CV, bool) {
	raw := in.ToUnitValue()
	clamped := s.cfg.SourceInterval.Clamp(raw)
	normalized := s.cfg.SourceInterval.Normalize(clamped)

	if s.cfg.ReverseValue {
		normalized = 1 - normalized
	}
	if s.cfg.Script != nil {
		normalized = s.cfg.Script(normalized)
	}

	mapped := s.cfg.TargetInterval.Denormalize(normalized)

	if s.cfg.Takeover && !s.takeoverOK {
		if !crossesTowards(s.haveLast, s.lastInput, mapped, currentTarget) {
			s.lastInput = mapped
			s.haveLast = true
			return value.CV{}, false
		}
		s.takeoverOK = true
	}

	s.lastInput = mapped
	s.haveLast = true
	return value.NewAbsoluteContinuous(mapped), true
}

// crossesTowards reports whether the fader's motion from prev to next has
// crossed the target's current value, meaning takeover may now engage.
func crossesTowards(havePrev bool, prev, next, target value.UnitValue) bool {
	if !havePrev {
		return next.ApproxEq(target)
	}
	if prev <= target && next >= target {
		return true
	}
	if prev >= target && next <= target {
		return true
	}
	return next.ApproxEq(target)
}

func (s *State) processRelative(in value.CV, currentTarget value.UnitValue) (value.CV, bool) {
	steps := in.Steps()
	if steps == 0 {
		return value.CV{}, false
	}
	step := s.cfg.StepSize
	if step <= 0 {
		step = 1.0 / 127.0
	}
	delta := step * float64(steps)
	next := value.NewUnitValue(float64(currentTarget) + delta)
	next = s.cfg.TargetInterval.Clamp(next)
	return value.NewAbsoluteContinuous(next), true
}

func (s *State) processToggle(in value.CV) (value.CV, bool) {
	pressed := false
	switch in.Kind() {
	case value.AbsoluteDiscrete:
		pos, _ := in.DiscretePosition()
		pressed = pos != 0
	default:
		pressed = !in.ToUnitValue().IsZero()
	}
	if !pressed {
		return value.CV{}, false
	}
	s.toggleOn = !s.toggleOn
	if s.toggleOn {
		return value.NewAbsoluteContinuous(s.cfg.TargetInterval.Max), true
	}
	return value.NewAbsoluteContinuous(s.cfg.TargetInterval.Min), true
}

// ResetFeedbackMemory clears the previous-value feedback cache, forcing the
// next feedback value through regardless of what was last sent. Used when a
// mapping re-activates after its source went dark.
func (s *State) ResetFeedbackMemory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.haveLastFeedback = false
}

// FormatFeedback renders v as textual feedback if a formatter is configured;
// ok is false when this mapping has no textual formatter (purely numeric
// feedback).
func (s *State) FormatFeedback(v value.UnitValue) (text string, ok bool) {
	s.mu.Lock()
	f := s.cfg.FeedbackFormat
	s.mu.Unlock()
	if f == nil {
		return "", false
	}
	return f(v), true
}

// UsesTextualFeedback reports whether this mode formats feedback as text:
// when true, duplicate numeric target values must always re-emit because
// the formatted text may depend on properties the core doesn't track.
func (s *State) UsesTextualFeedback() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.FeedbackFormat != nil
}

// ShouldEmitFeedback applies the previous-value dedup cache used by feedback
// polling: numeric-only feedback suppresses repeats; textual feedback
// always re-emits. It updates the cache as a side effect when it returns
// true.
func (s *State) ShouldEmitFeedback(v value.UnitValue) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.FeedbackFormat != nil {
		s.lastFeedback = v
		s.haveLastFeedback = true
		return true
	}
	if s.haveLastFeedback && s.lastFeedback.ApproxEq(v) {
		return false
	}
	s.lastFeedback = v
	s.haveLastFeedback = true
	return true
}
