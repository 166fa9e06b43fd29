package rtproc

import (
	"testing"

	"github.com/jdginn/controlcore/mapping"
	"github.com/jdginn/controlcore/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestProcessForwardsOnMatch(t *testing.T) {
	p := New(16, 16)
	p.SwapSnapshot(&Snapshot{Entries: []ClassEntry{
		{Source: source.MIDICC("dev", 0, 10), MappingID: 1, Compartment: mapping.Main},
	}})

	ok := p.Process(source.Event{Kind: source.KindMIDIChannelVoice, MIDIDeviceID: "dev", ChannelVoice: source.CC, MIDIKeyOrCC: 10, MIDIValue: 64})
	require.True(t, ok)

	select {
	case routed := <-p.Outbound():
		require.Len(t, routed.Candidate, 1)
		assert.Equal(t, mapping.MappingId(1), routed.Candidate[0].MappingID)
	default:
		t.Fatal("expected a routed event")
	}
}

func TestProcessDropsNonMatchingEvent(t *testing.T) {
	p := New(16, 16)
	p.SwapSnapshot(&Snapshot{Entries: []ClassEntry{
		{Source: source.MIDICC("dev", 0, 10), MappingID: 1, Compartment: mapping.Main},
	}})

	ok := p.Process(source.Event{Kind: source.KindMIDIChannelVoice, MIDIDeviceID: "dev", ChannelVoice: source.CC, MIDIKeyOrCC: 11, MIDIValue: 64})
	assert.False(t, ok)

	select {
	case <-p.Outbound():
		t.Fatal("no event should have been routed")
	default:
	}
}

// TestProcessNoMatchIsAllocationFree is the real-time-safety property for
// the common case: an event that matches nothing in the snapshot must not
// allocate, since this is the hot path the audio callback runs for every
// event that isn't destined for this unit.
func TestProcessNoMatchIsAllocationFree(t *testing.T) {
	p := New(16, 16)
	entries := make([]ClassEntry, 200)
	for i := range entries {
		entries[i] = ClassEntry{Source: source.MIDICC("dev", 0, uint8(i%120)), MappingID: mapping.MappingId(i)}
	}
	p.SwapSnapshot(&Snapshot{Entries: entries})

	e := source.Event{Kind: source.KindMIDIChannelVoice, MIDIDeviceID: "dev", ChannelVoice: source.CC, MIDIKeyOrCC: 200, MIDIValue: 1}
	allocs := testing.AllocsPerRun(100, func() {
		p.Process(e)
	})
	assert.Equal(t, float64(0), allocs)
}

func TestQueueAndDrainFeedbackPreservesOrder(t *testing.T) {
	p := New(4, 4)
	require.True(t, p.QueueFeedback(FeedbackFrame{DeviceID: "dev", Bytes: [3]byte{0x90, 1, 2}, Len: 3}))
	require.True(t, p.QueueFeedback(FeedbackFrame{DeviceID: "dev", Bytes: [3]byte{0x90, 3, 4}, Len: 3}))

	var got []byte
	p.DrainFeedback(func(f FeedbackFrame) {
		got = append(got, f.Bytes[1])
	})
	assert.Equal(t, []byte{1, 3}, got)
}

func TestQueueFeedbackDropsWhenFull(t *testing.T) {
	p := New(4, 1)
	require.True(t, p.QueueFeedback(FeedbackFrame{Len: 3}))
	assert.False(t, p.QueueFeedback(FeedbackFrame{Len: 3}))
}

// TestProcessNeverPanicsUnderFuzzedEvents is a property test over arbitrary
// event shapes, ensuring the classifier never panics regardless of which
// fields are populated.
func TestProcessNeverPanicsUnderFuzzedEvents(t *testing.T) {
	p := New(16, 16)
	p.SwapSnapshot(&Snapshot{Entries: []ClassEntry{
		{Source: source.MIDICC("dev", 0, 10)},
		{Source: source.OSC("/track/@/volume")},
		{Source: source.Virtual("fader1")},
	}})

	rapid.Check(t, func(rt *rapid.T) {
		e := source.Event{
			Kind:         source.Kind(rapid.IntRange(0, 8).Draw(rt, "kind")),
			MIDIDeviceID: rapid.StringN(0, 8, 8).Draw(rt, "dev"),
			MIDIKeyOrCC:  uint8(rapid.IntRange(0, 127).Draw(rt, "cc")),
			MIDIValue:    uint8(rapid.IntRange(0, 127).Draw(rt, "val")),
			OSCAddress:   rapid.StringN(0, 16, 16).Draw(rt, "addr"),
		}
		assert.NotPanics(t, func() { p.Process(e) })
	})
}
