// Package mapping implements the Mapping type: the (source, mode,
// target) triple plus activation predicate, group membership, feedback
// options, and cached evaluation state, and the ordered mapping table the
// main processor drives.
package mapping

import (
	"fmt"

	"github.com/jdginn/controlcore/mode"
	"github.com/jdginn/controlcore/source"
	"github.com/jdginn/controlcore/target"
	"github.com/jdginn/controlcore/value"
)

// MappingId is a stable, opaque identifier for one mapping.
type MappingId uint32

// CompartmentKind distinguishes the controller compartment (physical→virtual
// translation) from the main compartment (virtual/physical→target semantics).
type CompartmentKind int

const (
	Controller CompartmentKind = iota
	Main
)

func (c CompartmentKind) String() string {
	if c == Controller {
		return "controller"
	}
	return "main"
}

// QualifiedMappingId disambiguates a MappingId by compartment.
type QualifiedMappingId struct {
	Compartment CompartmentKind
	ID          MappingId
}

// FeedbackResolution is the declared polling rate class of a mapping's
// feedback path.
type FeedbackResolution int

const (
	FeedbackNone FeedbackResolution = iota
	FeedbackBeat
	FeedbackHigh
)

// GroupInteraction selects how a successful control on this mapping drives
// its group peers.
type GroupInteraction int

const (
	GroupNone GroupInteraction = iota
	SameControl
	InverseControl
	SameTargetValue
	InverseTargetValue
	InverseTargetValueOnOnly
	InverseTargetValueOffOnly
)

// Options holds the control-enabled/feedback-enabled/feedback-send-behavior/
// group-interaction policy for a mapping.
type Options struct {
	ControlEnabled  bool
	FeedbackEnabled bool

	// SendFeedbackAfterControl forces an extra feedback pass after a
	// successful control hit even when the target value didn't observably
	// change.
	SendFeedbackAfterControl bool

	// RefreshOnEveryControl marks this mapping "refresh on every control": the
	// target is re-resolved at the start of every control pass that reaches it.
	RefreshOnEveryControl bool

	Group            string
	GroupInteraction GroupInteraction
}

// ActivationKind tags which of the three activation inputs a condition
// evaluates.
type ActivationKind int

const (
	ActivationAlways ActivationKind = iota
	ActivationParameter
	ActivationTargetValue
	ActivationHostState
)

// ActivationCondition is a predicate over unit parameters, target values, and
// host-state flags.
type ActivationCondition struct {
	Kind ActivationKind

	// ActivationParameter
	ParamIndex     int
	ParamPredicate func(value.UnitValue) bool

	// ActivationTargetValue — reads another mapping's current target value.
	Lead           QualifiedMappingId
	TargetPredicate func(v value.UnitValue, available bool) bool

	// ActivationHostState
	HostStateName      string
	HostStatePredicate func(bool) bool
}

// Always is the trivial always-active condition.
var Always = ActivationCondition{Kind: ActivationAlways}

// ReferencesParam reports whether this condition depends on the given
// parameter index, used to limit re-evaluation to affected mappings on a
// single-parameter update.
func (c ActivationCondition) ReferencesParam(idx int) bool {
	return c.Kind == ActivationParameter && c.ParamIndex == idx
}

// Evaluate runs the condition. params is the unit's current parameter array;
// leadValue/leadAvailable describe the lead mapping's current target value
// when Kind is ActivationTargetValue; hostState looks up named host flags.
func (c ActivationCondition) Evaluate(params []value.UnitValue, leadValue value.UnitValue, leadAvailable bool, hostState func(string) bool) bool {
	switch c.Kind {
	case ActivationAlways:
		return true
	case ActivationParameter:
		if c.ParamIndex < 0 || c.ParamIndex >= len(params) || c.ParamPredicate == nil {
			return false
		}
		return c.ParamPredicate(params[c.ParamIndex])
	case ActivationTargetValue:
		if c.TargetPredicate == nil {
			return false
		}
		return c.TargetPredicate(leadValue, leadAvailable)
	case ActivationHostState:
		if c.HostStatePredicate == nil || hostState == nil {
			return false
		}
		return c.HostStatePredicate(hostState(c.HostStateName))
	default:
		return true
	}
}

// RuntimeCache is the per-mapping cached evaluation state.
type RuntimeCache struct {
	IsActive                      bool
	TargetIsResolved              bool
	LastNonPerformanceTargetValue value.UnitValue
	HasLastNonPerformanceValue    bool
	NeedsRefreshWhenTargetTouched bool
	FeedbackResolution            FeedbackResolution
	WantsToBePolledForControl     bool
	LastEmittedFeedbackAddress    source.Address
	HasLastEmittedFeedbackAddress bool
}

// Mapping is the (source, mode, target) triple plus its activation
// predicate, options, and runtime cache.
type Mapping struct {
	ID          MappingId
	Compartment CompartmentKind

	Source source.Source
	Target target.Target

	Mode       *mode.State
	ModeConfig mode.Config

	Activation ActivationCondition
	Options    Options

	Cache RuntimeCache
}

// New builds a mapping with fresh mode state. Validates the Virtual
// source/target invariant.
func New(id MappingId, compartment CompartmentKind, src source.Source, tgt target.Target, modeCfg mode.Config, activation ActivationCondition, opts Options) (*Mapping, error) {
	m := &Mapping{
		ID:          id,
		Compartment: compartment,
		Source:      src,
		Target:      tgt,
		Mode:        mode.New(modeCfg),
		ModeConfig:  modeCfg,
		Activation:  activation,
		Options:     opts,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// IsVirtualSource reports whether this mapping's source is a virtual element.
func (m *Mapping) IsVirtualSource() bool { return m.Source.Kind == source.KindVirtual }

// IsVirtualTarget reports whether this mapping's target is a virtual element.
func (m *Mapping) IsVirtualTarget() bool { return m.Target.Kind == target.KindVirtual }

// Validate enforces the invariant that at most one of source and target is
// Virtual per mapping, and a Virtual-target mapping lives in Controller while
// a Virtual-source mapping lives in Main.
func (m *Mapping) Validate() error {
	if m.IsVirtualSource() && m.IsVirtualTarget() {
		return fmt.Errorf("mapping %d: source and target cannot both be virtual", m.ID)
	}
	if m.IsVirtualTarget() && m.Compartment != Controller {
		return fmt.Errorf("mapping %d: virtual target only legal in controller compartment", m.ID)
	}
	if m.IsVirtualSource() && m.Compartment != Main {
		return fmt.Errorf("mapping %d: virtual source only legal in main compartment", m.ID)
	}
	return nil
}

// QualifiedID returns this mapping's (compartment, id) pair.
func (m *Mapping) QualifiedID() QualifiedMappingId {
	return QualifiedMappingId{Compartment: m.Compartment, ID: m.ID}
}

// FeedbackIsEffectivelyOn reports whether this mapping may emit feedback:
// feedback enabled, active, target resolved, and unit-level feedback on.
func (m *Mapping) FeedbackIsEffectivelyOn(unitFeedbackGloballyEnabled bool) bool {
	return m.Options.FeedbackEnabled && m.Cache.IsActive && m.Cache.TargetIsResolved && unitFeedbackGloballyEnabled
}

// ControlIsEffectivelyOn is the analogous predicate for control processing.
func (m *Mapping) ControlIsEffectivelyOn(unitControlGloballyEnabled bool) bool {
	return m.Options.ControlEnabled && m.Cache.IsActive && unitControlGloballyEnabled
}

// ResetModeState discards this mapping's mode runtime state (toggle memory,
// takeover arming) without touching the feedback dedup memory. Triggered by
// bulk update, compartment replace, and source/target change detected during
// diff — never by a mere refresh.
func (m *Mapping) ResetModeState() {
	m.Mode.Reset()
}
