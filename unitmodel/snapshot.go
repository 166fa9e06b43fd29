// Package unitmodel defines the wire contract between the core and its
// controlling application: mapping snapshots flowing in, and the event
// stream flowing back out. Snapshots are plain, JSON-serializable
// descriptions — mode scripts and activation predicates are compiled from
// small closed enums rather than shipped as code, since the wire format has
// to survive `json-iterator` round-tripping. Compile turns a snapshot into
// the live *mapping.Mapping the core actually runs.
package unitmodel

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/jdginn/controlcore/mapping"
	"github.com/jdginn/controlcore/mode"
	"github.com/jdginn/controlcore/source"
	"github.com/jdginn/controlcore/target"
	"github.com/jdginn/controlcore/value"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ScriptKind enumerates the transformation scripts a mode can apply: a
// closed set shipped as an enum value instead of arbitrary code over the
// wire.
type ScriptKind int

const (
	ScriptNone ScriptKind = iota
	ScriptInvert
	ScriptSquareLaw
	ScriptSquareRootLaw
)

func (k ScriptKind) compile() mode.ScriptFunc {
	switch k {
	case ScriptInvert:
		return func(v value.UnitValue) value.UnitValue { return value.NewUnitValue(1 - float64(v)) }
	case ScriptSquareLaw:
		return func(v value.UnitValue) value.UnitValue { return value.NewUnitValue(float64(v) * float64(v)) }
	case ScriptSquareRootLaw:
		return func(v value.UnitValue) value.UnitValue {
			f := float64(v)
			if f < 0 {
				f = 0
			}
			return value.NewUnitValue(sqrt(f))
		}
	default:
		return nil
	}
}

// sqrt avoids importing math just for this one call site's worth of
// generality; Newton's method converges in a handful of iterations for the
// [0,1] domain UnitValue guarantees.
func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 20; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

// ModeSpec is the wire description of a mode.Config.
type ModeSpec struct {
	Kind mode.Kind `json:"kind"`

	SourceMin float64 `json:"source_min"`
	SourceMax float64 `json:"source_max"`
	TargetMin float64 `json:"target_min"`
	TargetMax float64 `json:"target_max"`

	StepSize     float64 `json:"step_size"`
	Takeover     bool    `json:"takeover"`
	ReverseValue bool    `json:"reverse_value"`

	Script ScriptKind `json:"script"`

	// FeedbackFormat is a fmt-style single-verb format string (e.g. "%.1f dB");
	// empty means purely numeric feedback.
	FeedbackFormat string `json:"feedback_format,omitempty"`
}

// Compile builds the runtime mode.Config this spec describes.
func (s ModeSpec) Compile() mode.Config {
	cfg := mode.Config{
		Kind:           s.Kind,
		SourceInterval: value.Interval{Min: value.NewUnitValue(s.SourceMin), Max: value.NewUnitValue(s.SourceMax)},
		TargetInterval: value.Interval{Min: value.NewUnitValue(s.TargetMin), Max: value.NewUnitValue(s.TargetMax)},
		StepSize:       s.StepSize,
		Takeover:       s.Takeover,
		ReverseValue:   s.ReverseValue,
		Script:         s.Script.compile(),
	}
	if s.FeedbackFormat != "" {
		format := s.FeedbackFormat
		cfg.FeedbackFormat = func(v value.UnitValue) string {
			return fmt.Sprintf(format, float64(v))
		}
	}
	return cfg
}

// CompareOp is the comparison a parameter- or target-value-based activation
// condition applies against its threshold.
type CompareOp int

const (
	OpGreaterThan CompareOp = iota
	OpGreaterEqual
	OpLessThan
	OpLessEqual
	OpEqual
)

func (op CompareOp) apply(v, threshold float64) bool {
	switch op {
	case OpGreaterThan:
		return v > threshold
	case OpGreaterEqual:
		return v >= threshold
	case OpLessThan:
		return v < threshold
	case OpLessEqual:
		return v <= threshold
	case OpEqual:
		return v == threshold
	default:
		return false
	}
}

// ActivationSpec is the wire description of a mapping.ActivationCondition.
type ActivationSpec struct {
	Kind mapping.ActivationKind `json:"kind"`

	ParamIndex int       `json:"param_index,omitempty"`
	Op         CompareOp `json:"op,omitempty"`
	Threshold  float64   `json:"threshold,omitempty"`

	LeadCompartment mapping.CompartmentKind `json:"lead_compartment,omitempty"`
	LeadID          mapping.MappingId       `json:"lead_id,omitempty"`
	RequireResolved bool                    `json:"require_resolved,omitempty"`

	HostStateName string `json:"host_state_name,omitempty"`
	Negate        bool   `json:"negate,omitempty"`
}

// Compile builds the runtime mapping.ActivationCondition this spec describes.
func (a ActivationSpec) Compile() mapping.ActivationCondition {
	switch a.Kind {
	case mapping.ActivationParameter:
		return mapping.ActivationCondition{
			Kind:       mapping.ActivationParameter,
			ParamIndex: a.ParamIndex,
			ParamPredicate: func(v value.UnitValue) bool {
				return a.Op.apply(float64(v), a.Threshold)
			},
		}
	case mapping.ActivationTargetValue:
		return mapping.ActivationCondition{
			Kind: mapping.ActivationTargetValue,
			Lead: mapping.QualifiedMappingId{Compartment: a.LeadCompartment, ID: a.LeadID},
			TargetPredicate: func(v value.UnitValue, available bool) bool {
				if a.RequireResolved && !available {
					return false
				}
				return a.Op.apply(float64(v), a.Threshold)
			},
		}
	case mapping.ActivationHostState:
		return mapping.ActivationCondition{
			Kind:          mapping.ActivationHostState,
			HostStateName: a.HostStateName,
			HostStatePredicate: func(b bool) bool {
				if a.Negate {
					return !b
				}
				return b
			},
		}
	default:
		return mapping.Always
	}
}

// MappingSnapshot is the full wire description of one mapping: everything
// needed to Compile a live *mapping.Mapping. Source and Target are already
// plain, tag-free data, so they serialize as-is.
type MappingSnapshot struct {
	ID          mapping.MappingId       `json:"id"`
	Compartment mapping.CompartmentKind `json:"compartment"`
	Source      source.Source           `json:"source"`
	Target      target.Target           `json:"target"`
	Mode        ModeSpec                `json:"mode"`
	Activation  ActivationSpec          `json:"activation"`
	Options     mapping.Options         `json:"options"`
}

// Compile builds the runtime mapping this snapshot describes.
func (s MappingSnapshot) Compile() (*mapping.Mapping, error) {
	return mapping.New(s.ID, s.Compartment, s.Source, s.Target, s.Mode.Compile(), s.Activation.Compile(), s.Options)
}

// UpdateAllMappings is a bulk-replace snapshot for one compartment. It
// triggers a full mode-state reset for every mapping in the compartment,
// since the whole set may have been restructured.
type UpdateAllMappings struct {
	Compartment mapping.CompartmentKind `json:"compartment"`
	Mappings    []MappingSnapshot       `json:"mappings"`
}

// UpdateSingleMapping replaces or inserts exactly one mapping. The
// replacement (see unit.Unit.ApplySingleMapping) starts with fresh mode
// state.
type UpdateSingleMapping struct {
	Compartment mapping.CompartmentKind `json:"compartment"`
	Mapping     MappingSnapshot         `json:"mapping"`
}

// EncodeSnapshot serializes v (an UpdateAllMappings or UpdateSingleMapping)
// using json-iterator's standard-library-compatible codec.
func EncodeSnapshot(v any) ([]byte, error) {
	return json.Marshal(v)
}

// DecodeUpdateAllMappings parses a bulk-replace payload.
func DecodeUpdateAllMappings(data []byte) (UpdateAllMappings, error) {
	var out UpdateAllMappings
	err := json.Unmarshal(data, &out)
	return out, err
}

// DecodeUpdateSingleMapping parses a single-mapping payload.
func DecodeUpdateSingleMapping(data []byte) (UpdateSingleMapping, error) {
	var out UpdateSingleMapping
	err := json.Unmarshal(data, &out)
	return out, err
}
