package unitmodel

import (
	"github.com/jdginn/controlcore/mapping"
	"github.com/jdginn/controlcore/source"
	"github.com/jdginn/controlcore/value"
)

// TargetValueChanged is emitted whenever a mapping's target took on a new
// resolved value, whether from control input or an external host change
// observed during feedback polling.
type TargetValueChanged struct {
	MappingID   mapping.MappingId       `json:"mapping_id"`
	Compartment mapping.CompartmentKind `json:"compartment"`
	Value       value.UnitValue         `json:"value"`
}

// MappingMatched reports the match-outcome lattice result for one mapping
// against one control event.
type MappingMatched struct {
	MappingID   mapping.MappingId       `json:"mapping_id"`
	Compartment mapping.CompartmentKind `json:"compartment"`
	Outcome     source.Outcome          `json:"outcome"`
}

// SourceFeedback is one outgoing feedback value ready to render to a
// physical or virtual source.
type SourceFeedback struct {
	Address source.Address  `json:"address"`
	Value   value.UnitValue `json:"value"`
	Text    string          `json:"text,omitempty"`
	HasText bool            `json:"has_text,omitempty"`
}

// ProjectionFeedback carries a human-readable summary of what a mapping is
// currently doing, for editor UIs that project target state onto a timeline
// or meter rather than onto the physical control surface itself.
type ProjectionFeedback struct {
	MappingID   mapping.MappingId       `json:"mapping_id"`
	Compartment mapping.CompartmentKind `json:"compartment"`
	Summary     string                  `json:"summary"`
}

// UpdatedOnMappings reports which mappings changed IsActive/IsControlEnabled
// state this sweep, for an editor to repaint its "currently live" indicator.
type UpdatedOnMappings struct {
	Compartment mapping.CompartmentKind `json:"compartment"`
	MappingIDs  []mapping.MappingId     `json:"mapping_ids"`
}

// GlobalControlAndFeedbackStateChanged is emitted when either of a unit's
// global enable flags changes.
type GlobalControlAndFeedbackStateChanged struct {
	ControlGloballyEnabled  bool `json:"control_globally_enabled"`
	FeedbackGloballyEnabled bool `json:"feedback_globally_enabled"`
}

// ConditionsChanged marks that one or more activation inputs (parameters,
// target values, host state) changed since the last sweep, coalescing any
// number of individual changes into a single notification per sweep.
type ConditionsChanged struct {
	Compartment mapping.CompartmentKind `json:"compartment"`
}
