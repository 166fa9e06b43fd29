package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestMIDICCMatchesExactChannelAndController(t *testing.T) {
	s := MIDICC("dev0", 1, 7)
	e := Event{Kind: KindMIDIChannelVoice, MIDIDeviceID: "dev0", MIDIChannel: 1, ChannelVoice: CC, MIDIKeyOrCC: 7, MIDIValue: 64}
	assert.True(t, s.Matches(e))

	wrongChan := e
	wrongChan.MIDIChannel = 2
	assert.False(t, s.Matches(wrongChan))
}

func TestExtractCCScalesToUnitValue(t *testing.T) {
	cv := Extract(MIDICC("d", 0, 7), Event{Kind: KindMIDIChannelVoice, ChannelVoice: CC, MIDIValue: 64})
	assert.InDelta(t, 64.0/127.0, float64(cv.ToUnitValue()), 1e-9)
}

func TestVirtualSourceNeverMatchesRawEvent(t *testing.T) {
	s := Virtual("btn1")
	e := Event{Kind: KindMIDIChannelVoice}
	assert.False(t, s.Matches(e))
}

func TestAddressIsStableForIdenticalSources(t *testing.T) {
	a := MIDICC("d", 1, 7).Address()
	b := MIDICC("d", 1, 7).Address()
	c := MIDICC("d", 1, 8).Address()
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestSysExPatternPrefixMatch(t *testing.T) {
	s := Source{Kind: KindMIDISysEx, MIDIDeviceID: "d", SysExPatternHex: "f000"}
	assert.True(t, s.Matches(Event{Kind: KindMIDISysEx, MIDIDeviceID: "d", SysExData: []byte{0xf0, 0x00, 0x7f}}))
	assert.False(t, s.Matches(Event{Kind: KindMIDISysEx, MIDIDeviceID: "d", SysExData: []byte{0xf0}}))
	assert.False(t, s.Matches(Event{Kind: KindMIDISysEx, MIDIDeviceID: "d", SysExData: []byte{0xf1, 0x00}}))
}

// TestMatchOutcomeMonotonicity verifies that merge(outcomes) equals Matched
// iff at least one Matched, Consumed iff none Matched and at least one
// Consumed, else Unmatched.
func TestMatchOutcomeMonotonicity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 8).Draw(t, "n")
		outcomes := make([]Outcome, n)
		hasMatched, hasConsumed := false, false
		for i := range outcomes {
			o := Outcome(rapid.IntRange(int(Unmatched), int(Matched)).Draw(t, "o"))
			outcomes[i] = o
			if o == Matched {
				hasMatched = true
			}
			if o == Consumed {
				hasConsumed = true
			}
		}
		got := Join(outcomes...)
		switch {
		case hasMatched:
			assert.Equal(t, Matched, got)
		case hasConsumed:
			assert.Equal(t, Consumed, got)
		default:
			assert.Equal(t, Unmatched, got)
		}
	})
}

func TestNRPNAccumulatorAssemblesFourMessages(t *testing.T) {
	var acc NRPNAccumulator
	consumed, complete, _, _ := acc.Feed(99, 1)
	assert.True(t, consumed)
	assert.False(t, complete)
	consumed, complete, _, _ = acc.Feed(98, 2)
	assert.True(t, consumed)
	assert.False(t, complete)
	consumed, complete, _, _ = acc.Feed(6, 10)
	assert.True(t, consumed)
	assert.False(t, complete)
	consumed, complete, param, val := acc.Feed(38, 20)
	assert.True(t, consumed)
	assert.True(t, complete)
	assert.Equal(t, uint16(1)<<7|2, param)
	assert.Equal(t, uint16(10)<<7|20, val)
}

func TestNRPNAccumulatorIgnoresUnrelatedCC(t *testing.T) {
	var acc NRPNAccumulator
	consumed, _, _, _ := acc.Feed(7, 64)
	assert.False(t, consumed)
}
