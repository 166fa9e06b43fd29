package unitmodel

import (
	"testing"

	"github.com/jdginn/controlcore/mapping"
	"github.com/jdginn/controlcore/mode"
	"github.com/jdginn/controlcore/source"
	"github.com/jdginn/controlcore/target"
	"github.com/jdginn/controlcore/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeSpecCompileAbsoluteFullRange(t *testing.T) {
	spec := ModeSpec{Kind: mode.Absolute, SourceMin: 0, SourceMax: 1, TargetMin: 0, TargetMax: 1}
	cfg := spec.Compile()
	state := mode.New(cfg)
	out, ok := state.Process(value.NewAbsoluteContinuous(0.4), 0)
	require.True(t, ok)
	assert.InDelta(t, 0.4, float64(out.ToUnitValue()), 1e-6)
}

func TestModeSpecCompileScriptInvert(t *testing.T) {
	spec := ModeSpec{Kind: mode.Absolute, SourceMin: 0, SourceMax: 1, TargetMin: 0, TargetMax: 1, Script: ScriptInvert}
	cfg := spec.Compile()
	state := mode.New(cfg)
	out, _ := state.Process(value.NewAbsoluteContinuous(0.25), 0)
	assert.InDelta(t, 0.75, float64(out.ToUnitValue()), 1e-6)
}

func TestModeSpecCompileFeedbackFormat(t *testing.T) {
	spec := ModeSpec{Kind: mode.Absolute, FeedbackFormat: "%.1f dB"}
	cfg := spec.Compile()
	require.NotNil(t, cfg.FeedbackFormat)
	assert.Equal(t, "0.5 dB", cfg.FeedbackFormat(0.5))
}

func TestActivationSpecCompileParameterThreshold(t *testing.T) {
	spec := ActivationSpec{Kind: mapping.ActivationParameter, ParamIndex: 1, Op: OpGreaterThan, Threshold: 0.5}
	cond := spec.Compile()
	assert.True(t, cond.Evaluate([]value.UnitValue{0, 0.9}, 0, false, nil))
	assert.False(t, cond.Evaluate([]value.UnitValue{0, 0.1}, 0, false, nil))
}

func TestActivationSpecCompileHostStateNegate(t *testing.T) {
	spec := ActivationSpec{Kind: mapping.ActivationHostState, HostStateName: "armed", Negate: true}
	cond := spec.Compile()
	hostState := func(name string) bool { return name == "armed" }
	assert.False(t, cond.Evaluate(nil, 0, false, hostState))
}

func TestMappingSnapshotCompileAndEncodeRoundTrip(t *testing.T) {
	snap := MappingSnapshot{
		ID:          7,
		Compartment: mapping.Main,
		Source:      source.MIDICC("dev", 0, 10),
		Target:      target.FXParameterTarget(0, 0, 1),
		Mode:        ModeSpec{Kind: mode.Absolute, SourceMax: 1, TargetMax: 1},
		Activation:  ActivationSpec{Kind: mapping.ActivationAlways},
		Options:     mapping.Options{ControlEnabled: true, FeedbackEnabled: true},
	}

	m, err := snap.Compile()
	require.NoError(t, err)
	assert.Equal(t, mapping.MappingId(7), m.ID)

	bulk := UpdateAllMappings{Compartment: mapping.Main, Mappings: []MappingSnapshot{snap}}
	data, err := EncodeSnapshot(bulk)
	require.NoError(t, err)

	decoded, err := DecodeUpdateAllMappings(data)
	require.NoError(t, err)
	require.Len(t, decoded.Mappings, 1)
	assert.Equal(t, mapping.MappingId(7), decoded.Mappings[0].ID)
	assert.Equal(t, source.MIDICC("dev", 0, 10), decoded.Mappings[0].Source)
}

func TestUnitSettingsYAMLRoundTrip(t *testing.T) {
	path := t.TempDir() + "/settings.yaml"
	settings := DefaultUnitSettings()
	settings.MIDIDeviceID = "xtouch-1"

	require.NoError(t, SaveUnitSettings(path, settings))
	loaded, err := LoadUnitSettings(path)
	require.NoError(t, err)
	assert.Equal(t, "xtouch-1", loaded.MIDIDeviceID)
	assert.Equal(t, settings.PollIntervalMillis, loaded.PollIntervalMillis)
}
