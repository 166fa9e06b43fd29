package mapping

import (
	"testing"

	"github.com/jdginn/controlcore/mode"
	"github.com/jdginn/controlcore/source"
	"github.com/jdginn/controlcore/target"
	"github.com/jdginn/controlcore/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMapping(t *testing.T, id MappingId, compartment CompartmentKind, src source.Source, tgt target.Target) *Mapping {
	t.Helper()
	m, err := New(id, compartment, src, tgt, mode.Config{Kind: mode.Absolute, TargetInterval: value.FullInterval}, Always, Options{ControlEnabled: true, FeedbackEnabled: true})
	require.NoError(t, err)
	return m
}

func TestTablePreservesInsertionOrder(t *testing.T) {
	tbl := NewTable()
	m1 := mustMapping(t, 1, Main, source.MIDICC("dev", 0, 10), target.TrackVolumeTarget(0))
	m2 := mustMapping(t, 2, Main, source.MIDICC("dev", 0, 11), target.TrackVolumeTarget(1))
	m3 := mustMapping(t, 3, Main, source.MIDICC("dev", 0, 12), target.TrackVolumeTarget(2))
	tbl.Upsert(m3)
	tbl.Upsert(m1)
	tbl.Upsert(m2)

	got := tbl.InOrder()
	require.Len(t, got, 3)
	assert.Equal(t, MappingId(3), got[0].ID)
	assert.Equal(t, MappingId(1), got[1].ID)
	assert.Equal(t, MappingId(2), got[2].ID)
}

func TestTableUpsertReplacesInPlace(t *testing.T) {
	tbl := NewTable()
	m1 := mustMapping(t, 1, Main, source.MIDICC("dev", 0, 10), target.TrackVolumeTarget(0))
	m2 := mustMapping(t, 2, Main, source.MIDICC("dev", 0, 11), target.TrackVolumeTarget(1))
	tbl.Upsert(m1)
	tbl.Upsert(m2)

	replacement := mustMapping(t, 1, Main, source.MIDICC("dev", 0, 99), target.TrackVolumeTarget(0))
	tbl.Upsert(replacement)

	got := tbl.InOrder()
	require.Len(t, got, 2)
	assert.Equal(t, MappingId(1), got[0].ID)
	assert.Equal(t, uint8(99), got[0].Source.MIDIKeyOrCC)
}

func TestTableRemove(t *testing.T) {
	tbl := NewTable()
	m1 := mustMapping(t, 1, Main, source.MIDICC("dev", 0, 10), target.TrackVolumeTarget(0))
	tbl.Upsert(m1)
	tbl.Remove(1)
	_, ok := tbl.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, tbl.Len())
}

func TestBySourceClassFiltersByKind(t *testing.T) {
	tbl := NewTable()
	tbl.Upsert(mustMapping(t, 1, Main, source.MIDICC("dev", 0, 10), target.TrackVolumeTarget(0)))
	tbl.Upsert(mustMapping(t, 2, Main, source.OSC("/track/1/volume"), target.TrackVolumeTarget(1)))

	ccOnly := tbl.BySourceClass(source.KindMIDIChannelVoice)
	require.Len(t, ccOnly, 1)
	assert.Equal(t, MappingId(1), ccOnly[0].ID)
}

func TestVirtualTargetsForOnlyTracksControllerCompartment(t *testing.T) {
	tbl := NewTable()
	controllerM := mustMapping(t, 1, Controller, source.MIDICC("dev", 0, 10), target.VirtualTarget("fader1"))
	tbl.Upsert(controllerM)

	got := tbl.VirtualTargetsFor("fader1")
	require.Len(t, got, 1)
	assert.Equal(t, MappingId(1), got[0].ID)

	assert.Empty(t, tbl.VirtualTargetsFor("fader2"))
}

func TestByVirtualSourceFindsMainCompartmentMapping(t *testing.T) {
	tbl := NewTable()
	mainM := mustMapping(t, 5, Main, source.Virtual("fader1"), target.TrackVolumeTarget(0))
	tbl.Upsert(mainM)

	got := tbl.ByVirtualSource("fader1")
	require.Len(t, got, 1)
	assert.Equal(t, MappingId(5), got[0].ID)
}

func TestIndexesReflectCacheFlagsAndRebuild(t *testing.T) {
	tbl := NewTable()
	m1 := mustMapping(t, 1, Main, source.MIDICC("dev", 0, 10), target.TrackVolumeTarget(0))
	m1.Cache.FeedbackResolution = FeedbackHigh
	m1.Cache.WantsToBePolledForControl = true
	m1.Cache.NeedsRefreshWhenTargetTouched = true
	tbl.Upsert(m1)

	assert.Len(t, tbl.HighResolutionFeedbackMappings(), 1)
	assert.Len(t, tbl.PollControlMappings(), 1)
	assert.Contains(t, tbl.targetTouchDependent, MappingId(1))

	m1.Cache.FeedbackResolution = FeedbackBeat
	m1.Cache.WantsToBePolledForControl = false
	tbl.Upsert(m1)

	assert.Empty(t, tbl.HighResolutionFeedbackMappings())
	assert.Len(t, tbl.BeatResolutionFeedbackMappings(), 1)
	assert.Empty(t, tbl.PollControlMappings())

	tbl.RebuildIndexes()
	assert.Len(t, tbl.BeatResolutionFeedbackMappings(), 1)
}

func TestFirstActiveVirtualSourcePicksEarliestFeedbackOnMapping(t *testing.T) {
	tbl := NewTable()
	m1 := mustMapping(t, 1, Main, source.Virtual("fader1"), target.TrackVolumeTarget(0))
	m1.Cache.IsActive = false // feedback effectively off
	m2 := mustMapping(t, 2, Main, source.Virtual("fader1"), target.TrackVolumeTarget(1))
	m2.Cache.IsActive = true
	m2.Cache.TargetIsResolved = true
	tbl.Upsert(m1)
	tbl.Upsert(m2)

	got, ok := tbl.FirstActiveVirtualSource("fader1", true)
	require.True(t, ok)
	assert.Equal(t, MappingId(2), got.ID)
}

func TestFeedbackOnAddressesReflectsEffectiveFeedbackState(t *testing.T) {
	tbl := NewTable()
	m1 := mustMapping(t, 1, Main, source.MIDICC("dev", 0, 10), target.TrackVolumeTarget(0))
	m1.Cache.IsActive = true
	m1.Cache.TargetIsResolved = true
	tbl.Upsert(m1)

	addrs := tbl.FeedbackOnAddresses(true)
	assert.Len(t, addrs, 1)

	addrsDisabled := tbl.FeedbackOnAddresses(false)
	assert.Empty(t, addrsDisabled)
}
