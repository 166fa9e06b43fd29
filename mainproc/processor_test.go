package mainproc

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

type mockSink struct {
	volumes map[int]value.UnitValue
	bools   map[[2]int]bool
	fx      map[[3]int]value.UnitValue
	actions []string
}

func newMockSink() *mockSink {
	return &mockSink{
		volumes: make(map[int]value.UnitValue),
		bools:   make(map[[2]int]bool),
		fx:      make(map[[3]int]value.UnitValue),
	}
}

func (s *mockSink) SetTrackVolume(track int, v value.UnitValue) error { s.volumes[track] = v; return nil }
func (s *mockSink) GetTrackVolume(track int) (value.UnitValue, bool) {
	v, ok := s.volumes[track]
	if !ok {
		return 0, true // default resolvable to 0
	}
	return v, true
}
func (s *mockSink) SetTrackBool(track int, prop target.TrackProperty, v bool) error {
	s.bools[[2]int{track, int(prop)}] = v
	return nil
}
func (s *mockSink) GetTrackBool(track int, prop target.TrackProperty) (bool, bool) {
	return s.bools[[2]int{track, int(prop)}], true
}
func (s *mockSink) SetFXParam(track, fx, param int, v value.UnitValue) error {
	s.fx[[3]int{track, fx, param}] = v
	return nil
}
func (s *mockSink) GetFXParam(track, fx, param int) (value.UnitValue, bool) {
	v, ok := s.fx[[3]int{track, fx, param}]
	if !ok {
		return 0, true
	}
	return v, true
}
func (s *mockSink) InvokeAction(command string) error { s.actions = append(s.actions, command); return nil }
func (s *mockSink) SetTransport(a target.TransportAction, v bool) error { return nil }
func (s *mockSink) GetTransport(a target.TransportAction) (bool, bool)  { return false, true }
func (s *mockSink) ProjectName() string                                { return "test" }

func simpleMapping(t *testing.T, id mapping.MappingId, compartment mapping.CompartmentKind, src source.Source, tgt target.Target) *mapping.Mapping {
	t.Helper()
	m, err := mapping.New(id, compartment, src, tgt,
		mode.Config{Kind: mode.Absolute, SourceInterval: value.FullInterval, TargetInterval: value.FullInterval},
		mapping.Always,
		mapping.Options{ControlEnabled: true, FeedbackEnabled: true})
	require.NoError(t, err)
	m.Cache.IsActive = true
	m.Cache.TargetIsResolved = true
	return m
}

func TestSweepHitsFXParameterFromCC(t *testing.T) {
	sink := newMockSink()
	p := New(sink)
	m := simpleMapping(t, 1, mapping.Main, source.MIDICC("dev", 0, 20), target.FXParameterTarget(0, 0, 3))
	p.MainTable.Upsert(m)

	res := p.Sweep([]ControlEvent{{
		Compartment: mapping.Main,
		MappingID:   1,
		Event:       source.Event{Kind: source.KindMIDIChannelVoice, MIDIDeviceID: "dev", ChannelVoice: source.CC, MIDIKeyOrCC: 20, MIDIValue: 127},
	}})

	assert.Equal(t, source.Matched, res.Outcomes[mapping.QualifiedMappingId{Compartment: mapping.Main, ID: 1}])
	v, _ := sink.GetFXParam(0, 0, 3)
	assert.InDelta(t, 1.0, float64(v), 1e-6)
}

func TestSweepVirtualIndirectionRoutesControllerToMain(t *testing.T) {
	sink := newMockSink()
	p := New(sink)
	controllerM := simpleMapping(t, 1, mapping.Controller, source.MIDICC("dev", 0, 30), target.VirtualTarget("fader1"))
	mainM := simpleMapping(t, 2, mapping.Main, source.Virtual("fader1"), target.TrackVolumeTarget(5))
	p.ControllerTable.Upsert(controllerM)
	p.MainTable.Upsert(mainM)

	res := p.Sweep([]ControlEvent{{
		Compartment: mapping.Controller,
		MappingID:   1,
		Event:       source.Event{Kind: source.KindMIDIChannelVoice, MIDIDeviceID: "dev", ChannelVoice: source.CC, MIDIKeyOrCC: 30, MIDIValue: 64},
	}})

	assert.Equal(t, source.Matched, res.Outcomes[mapping.QualifiedMappingId{Compartment: mapping.Controller, ID: 1}])
	v, _ := sink.GetTrackVolume(5)
	assert.InDelta(t, 64.0/127.0, float64(v), 1e-4)
}

func TestSweepFeedbackDedupsAcrossSweeps(t *testing.T) {
	sink := newMockSink()
	p := New(sink)
	m := simpleMapping(t, 1, mapping.Main, source.MIDICC("dev", 0, 1), target.TrackVolumeTarget(0))
	sink.volumes[0] = 0.5
	p.MainTable.Upsert(m)

	first := p.Sweep(nil)
	require.Len(t, first.Feedback, 1)

	second := p.Sweep(nil)
	assert.Empty(t, second.Feedback)

	sink.volumes[0] = 0.75
	third := p.Sweep(nil)
	require.Len(t, third.Feedback, 1)
	assert.InDelta(t, 0.75, float64(third.Feedback[0].Value), 1e-6)
}

func TestSweepGroupSameTargetValueDrivesPeer(t *testing.T) {
	sink := newMockSink()
	p := New(sink)
	lead := simpleMapping(t, 1, mapping.Main, source.MIDICC("dev", 0, 1), target.TrackBoolTarget(0, target.Mute))
	lead.Options.Group = "mutegrp"
	lead.Options.GroupInteraction = mapping.SameTargetValue
	peer := simpleMapping(t, 2, mapping.Main, source.MIDICC("dev", 1, 1), target.TrackBoolTarget(1, target.Mute))
	peer.Options.Group = "mutegrp"
	p.MainTable.Upsert(lead)
	p.MainTable.Upsert(peer)

	p.Sweep([]ControlEvent{{
		Compartment: mapping.Main,
		MappingID:   1,
		Event:       source.Event{Kind: source.KindMIDIChannelVoice, MIDIDeviceID: "dev", ChannelVoice: source.CC, MIDIKeyOrCC: 1, MIDIValue: 127},
	}})

	got, _ := sink.GetTrackBool(1, target.Mute)
	assert.True(t, got)
}

func TestSweepUnresolvedTargetDoesNotPanic(t *testing.T) {
	sink := newMockSink()
	p := New(sink)
	m := simpleMapping(t, 1, mapping.Main, source.MIDICC("dev", 0, 1), target.ActionTarget("unused"))
	m.Target.Kind = 99 // force an unresolvable/unknown kind
	p.MainTable.Upsert(m)

	assert.NotPanics(t, func() {
		p.Sweep([]ControlEvent{{Compartment: mapping.Main, MappingID: 1, Event: source.Event{
			Kind: source.KindMIDIChannelVoice, MIDIDeviceID: "dev", ChannelVoice: source.CC, MIDIKeyOrCC: 1, MIDIValue: 1,
		}}})
	})
}

func TestSweepActivationTogglesOnParameterChange(t *testing.T) {
	sink := newMockSink()
	p := New(sink)
	m := simpleMapping(t, 1, mapping.Main, source.MIDICC("dev", 0, 1), target.TrackVolumeTarget(0))
	m.Cache.IsActive = false
	m.Activation = mapping.ActivationCondition{
		Kind:           mapping.ActivationParameter,
		ParamIndex:     0,
		ParamPredicate: func(v value.UnitValue) bool { return v > 0.5 },
	}
	p.MainTable.Upsert(m)
	p.Params = []value.UnitValue{0.9}

	p.Sweep(nil)
	got, _ := p.MainTable.Get(1)
	assert.True(t, got.Cache.IsActive)
}

func TestSweepUnusedSourceFlushFiresWhenMappingGoesInactive(t *testing.T) {
	sink := newMockSink()
	p := New(sink)
	m := simpleMapping(t, 1, mapping.Main, source.MIDICC("dev", 0, 1), target.TrackVolumeTarget(0))
	m.Activation = mapping.ActivationCondition{
		Kind:           mapping.ActivationParameter,
		ParamIndex:     0,
		ParamPredicate: func(v value.UnitValue) bool { return v > 0.5 },
	}
	p.MainTable.Upsert(m)
	p.Params = []value.UnitValue{0.9}

	p.Sweep(nil)      // establishes feedback-on address
	p.Params[0] = 0.1 // the parameter condition now fails, so the next sweep deactivates m
	res := p.Sweep(nil)
	require.Len(t, res.UnusedSourceFlushes, 1)
	assert.Equal(t, m.Source.Address(), res.UnusedSourceFlushes[0])
}

// TestSweepHitInstructionEnablesGroupInOnePass verifies the hit-instruction
// bound: a mapping whose target returns a deferred "enable group" instruction
// takes effect by the end of the same sweep, and applying it never triggers a
// further round of control processing (applyHitInstruction only flips
// booleans, never calls target.Hit), so the cascade cannot deepen no matter
// how many mappings share the enabled group.
func TestSweepHitInstructionEnablesGroupInOnePass(t *testing.T) {
	sink := newMockSink()
	p := New(sink)

	trigger := simpleMapping(t, 1, mapping.Main, source.MIDICC("dev", 0, 1), target.ActionTarget("enable-group:extras"))
	peer := simpleMapping(t, 2, mapping.Main, source.MIDICC("dev", 1, 2), target.TrackVolumeTarget(0))
	peer.Options.Group = "extras"
	peer.Options.ControlEnabled = false
	peer.Options.FeedbackEnabled = false
	p.MainTable.Upsert(trigger)
	p.MainTable.Upsert(peer)

	p.Sweep([]ControlEvent{{
		Compartment: mapping.Main,
		MappingID:   1,
		Event:       source.Event{Kind: source.KindMIDIChannelVoice, MIDIDeviceID: "dev", ChannelVoice: source.CC, MIDIKeyOrCC: 1, MIDIValue: 127},
	}})

	got, _ := p.MainTable.Get(2)
	assert.True(t, got.Options.ControlEnabled)
	assert.True(t, got.Options.FeedbackEnabled)
}

// TestSweepGroupInverseControlDrivesPeerInverted is the two-mapping inverse
// group: controlling G1 drives G2 with the complement of G1's control value,
// and both emit feedback in insertion order, G1 first.
func TestSweepGroupInverseControlDrivesPeerInverted(t *testing.T) {
	sink := newMockSink()
	p := New(sink)
	g1 := simpleMapping(t, 1, mapping.Main, source.MIDICC("dev", 0, 1), target.TrackVolumeTarget(0))
	g1.Options.Group = "g"
	g1.Options.GroupInteraction = mapping.InverseControl
	g2 := simpleMapping(t, 2, mapping.Main, source.MIDICC("dev", 1, 1), target.TrackVolumeTarget(1))
	g2.Options.Group = "g"
	p.MainTable.Upsert(g1)
	p.MainTable.Upsert(g2)

	res := p.Sweep([]ControlEvent{{
		Compartment: mapping.Main,
		MappingID:   1,
		Event:       source.Event{Kind: source.KindMIDIChannelVoice, MIDIDeviceID: "dev", ChannelVoice: source.CC, MIDIKeyOrCC: 1, MIDIValue: 96},
	}})

	v0, _ := sink.GetTrackVolume(0)
	v1, _ := sink.GetTrackVolume(1)
	assert.InDelta(t, 96.0/127.0, float64(v0), 1e-6)
	assert.InDelta(t, 1-96.0/127.0, float64(v1), 1e-6)

	require.Len(t, res.Feedback, 2)
	assert.Equal(t, mapping.MappingId(1), res.Feedback[0].MappingID)
	assert.Equal(t, mapping.MappingId(2), res.Feedback[1].MappingID)
}

// TestSweepGroupSameControlRunsPeerModePipeline verifies that group
// interaction goes through the peer's own mode: a peer confined to the lower
// half of the target range lands at half the triggering value, not at the
// raw value.
func TestSweepGroupSameControlRunsPeerModePipeline(t *testing.T) {
	sink := newMockSink()
	p := New(sink)
	lead := simpleMapping(t, 1, mapping.Main, source.MIDICC("dev", 0, 1), target.TrackVolumeTarget(0))
	lead.Options.Group = "g"
	lead.Options.GroupInteraction = mapping.SameControl

	peer, err := mapping.New(2, mapping.Main, source.MIDICC("dev", 1, 1), target.TrackVolumeTarget(1),
		mode.Config{Kind: mode.Absolute, SourceInterval: value.FullInterval, TargetInterval: value.Interval{Min: 0, Max: 0.5}},
		mapping.Always,
		mapping.Options{ControlEnabled: true, FeedbackEnabled: true, Group: "g"})
	require.NoError(t, err)
	peer.Cache.IsActive = true
	peer.Cache.TargetIsResolved = true

	p.MainTable.Upsert(lead)
	p.MainTable.Upsert(peer)

	p.Sweep([]ControlEvent{{
		Compartment: mapping.Main,
		MappingID:   1,
		Event:       source.Event{Kind: source.KindMIDIChannelVoice, MIDIDeviceID: "dev", ChannelVoice: source.CC, MIDIKeyOrCC: 1, MIDIValue: 127},
	}})

	v1, _ := sink.GetTrackVolume(1)
	assert.InDelta(t, 0.5, float64(v1), 1e-6)
}

// TestSweepSendFeedbackAfterControlBypassesDedup: a control hit that leaves
// the target value unchanged still forces a feedback send when the mapping
// asks for feedback after control, even though both dedup caches would
// otherwise suppress the duplicate.
func TestSweepSendFeedbackAfterControlBypassesDedup(t *testing.T) {
	sink := newMockSink()
	p := New(sink)
	m := simpleMapping(t, 1, mapping.Main, source.MIDICC("dev", 0, 1), target.TrackVolumeTarget(0))
	m.Options.SendFeedbackAfterControl = true
	sink.volumes[0] = value.UnitValue(64.0 / 127.0)
	p.MainTable.Upsert(m)

	first := p.Sweep(nil)
	require.Len(t, first.Feedback, 1)

	// Hitting the target with its current value changes nothing, yet the
	// feedback must go out again.
	second := p.Sweep([]ControlEvent{{
		Compartment: mapping.Main,
		MappingID:   1,
		Event:       source.Event{Kind: source.KindMIDIChannelVoice, MIDIDeviceID: "dev", ChannelVoice: source.CC, MIDIKeyOrCC: 1, MIDIValue: 64},
	}})
	require.Len(t, second.Feedback, 1)
	assert.Equal(t, CauseFeedbackAfterControl, second.Feedback[0].Cause)

	// Without a control event the duplicate is suppressed as usual.
	third := p.Sweep(nil)
	assert.Empty(t, third.Feedback)
}

func TestSweepForcedTakeoverFeedbackBypassesDedup(t *testing.T) {
	sink := newMockSink()
	p := New(sink)
	m := simpleMapping(t, 1, mapping.Main, source.MIDICC("dev", 0, 1), target.TrackVolumeTarget(0))
	sink.volumes[0] = 0.5
	p.MainTable.Upsert(m)

	require.Len(t, p.Sweep(nil).Feedback, 1)
	assert.Empty(t, p.Sweep(nil).Feedback)

	p.ForceFeedbackForAddress(m.Source.Address())
	forced := p.Sweep(nil)
	require.Len(t, forced.Feedback, 1)
	assert.Equal(t, CauseTakeOverSource, forced.Feedback[0].Cause)

	// The force is a one-sweep affair.
	assert.Empty(t, p.Sweep(nil).Feedback)
}

func TestSweepSuppressedDuplicateFeedbackCounter(t *testing.T) {
	sink := newMockSink()
	p := New(sink)
	m := simpleMapping(t, 1, mapping.Main, source.MIDICC("dev", 0, 1), target.TrackVolumeTarget(0))
	sink.volumes[0] = 0.5
	p.MainTable.Upsert(m)

	p.Sweep(nil)
	assert.Equal(t, 0, p.SuppressedDuplicateFeedback)
	p.Sweep(nil)
	assert.Equal(t, 1, p.SuppressedDuplicateFeedback)
}

// TestSweepActivationFollowsLeadTargetValue drives a follow mapping's
// activation from a lead's target value through the activation graph: the
// follow activates in the same sweep that moves the lead past the threshold,
// emits its feedback, and deactivates again when the lead drops back.
func TestSweepActivationFollowsLeadTargetValue(t *testing.T) {
	sink := newMockSink()
	p := New(sink)

	lead := simpleMapping(t, 1, mapping.Main, source.MIDICC("dev", 0, 1), target.TrackVolumeTarget(0))
	p.UpsertMapping(lead)

	follow, err := mapping.New(2, mapping.Main, source.MIDICC("dev", 1, 2), target.TrackVolumeTarget(1),
		mode.Config{Kind: mode.Absolute, SourceInterval: value.FullInterval, TargetInterval: value.FullInterval},
		mapping.ActivationCondition{
			Kind: mapping.ActivationTargetValue,
			Lead: mapping.QualifiedMappingId{Compartment: mapping.Main, ID: 1},
			TargetPredicate: func(v value.UnitValue, available bool) bool {
				return available && v > 0.5
			},
		},
		mapping.Options{ControlEnabled: true, FeedbackEnabled: true})
	require.NoError(t, err)
	follow.Cache.TargetIsResolved = true
	p.UpsertMapping(follow)

	res := p.Sweep([]ControlEvent{{
		Compartment: mapping.Main,
		MappingID:   1,
		Event:       source.Event{Kind: source.KindMIDIChannelVoice, MIDIDeviceID: "dev", ChannelVoice: source.CC, MIDIKeyOrCC: 1, MIDIValue: 77},
	}})

	got, _ := p.MainTable.Get(2)
	assert.True(t, got.Cache.IsActive)
	var followEmitted bool
	for _, fb := range res.Feedback {
		if fb.MappingID == 2 {
			followEmitted = true
		}
	}
	assert.True(t, followEmitted)

	p.Sweep([]ControlEvent{{
		Compartment: mapping.Main,
		MappingID:   1,
		Event:       source.Event{Kind: source.KindMIDIChannelVoice, MIDIDeviceID: "dev", ChannelVoice: source.CC, MIDIKeyOrCC: 1, MIDIValue: 38},
	}})
	got, _ = p.MainTable.Get(2)
	assert.False(t, got.Cache.IsActive)
}
