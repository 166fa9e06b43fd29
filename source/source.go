// Package source implements the tagged Source descriptor variants and the
// pure evaluation functions that classify incoming device events against
// them. Everything here is plain data plus pure functions; Matches and
// Extract run on the real-time audio thread without allocating, while
// Address builds its key with fmt and does allocate.
package source

import (
	"fmt"

	"github.com/jdginn/controlcore/value"
)

// Kind tags which variant a Source or Event is.
type Kind int

const (
	KindMIDIChannelVoice Kind = iota
	KindMIDISysEx
	KindMIDINRPN
	KindMIDI14BitCC
	KindOSC
	KindRawKey
	KindStreamDeck
	KindHostEvent
	KindVirtual
)

func (k Kind) String() string {
	switch k {
	case KindMIDIChannelVoice:
		return "midi-channel-voice"
	case KindMIDISysEx:
		return "midi-sysex"
	case KindMIDINRPN:
		return "midi-nrpn"
	case KindMIDI14BitCC:
		return "midi-14bit-cc"
	case KindOSC:
		return "osc"
	case KindRawKey:
		return "raw-key"
	case KindStreamDeck:
		return "stream-deck"
	case KindHostEvent:
		return "host-event"
	case KindVirtual:
		return "virtual"
	default:
		return "unknown"
	}
}

// ChannelVoiceType distinguishes the MIDI channel-voice message shapes.
type ChannelVoiceType int

const (
	CC ChannelVoiceType = iota
	NoteOnOff
	PitchBend
	Aftertouch
)

// Source is a tagged variant describing where a control message comes from.
// It is a plain comparable struct (no pointers or slices) so it can be used
// directly as a map key — the mapping table's per-class index relies on this.
type Source struct {
	Kind Kind

	// MIDI channel-voice (KindMIDIChannelVoice)
	MIDIDeviceID string
	MIDIChannel  uint8
	ChannelVoice ChannelVoiceType
	MIDIKeyOrCC  uint8

	// MIDI SysEx (KindMIDISysEx) — pattern hex-encoded so Source stays comparable.
	SysExPatternHex string

	// MIDI NRPN (KindMIDINRPN)
	NRPNNumber uint16

	// MIDI 14-bit CC (KindMIDI14BitCC)
	CC14MSB uint8
	CC14LSB uint8

	// OSC (KindOSC)
	OSCAddress string

	// Raw key (KindRawKey)
	KeyCode int

	// Stream Deck (KindStreamDeck)
	DeckButtonIndex int
	DeckIsEncoder   bool

	// Host event (KindHostEvent)
	HostEventName string

	// Virtual (KindVirtual) — only legal as a Main-compartment source or a
	// Controller-compartment target, never both on the same mapping.
	VirtualElement string
}

// Virtual builds a virtual-element source.
func Virtual(element string) Source {
	return Source{Kind: KindVirtual, VirtualElement: element}
}

// MIDICC builds a MIDI control-change source.
func MIDICC(deviceID string, channel, controller uint8) Source {
	return Source{Kind: KindMIDIChannelVoice, MIDIDeviceID: deviceID, MIDIChannel: channel, ChannelVoice: CC, MIDIKeyOrCC: controller}
}

// MIDINote builds a MIDI note on/off source.
func MIDINote(deviceID string, channel, key uint8) Source {
	return Source{Kind: KindMIDIChannelVoice, MIDIDeviceID: deviceID, MIDIChannel: channel, ChannelVoice: NoteOnOff, MIDIKeyOrCC: key}
}

// OSC builds an OSC address source.
func OSC(address string) Source {
	return Source{Kind: KindOSC, OSCAddress: address}
}

// Address is the canonicalized, hashable identifier extracted from a Source,
// used as the feedback dedup cache key and to detect "unused
// sources" after structural changes.
type Address string

// Address returns the canonical dedup key for this source. Two sources with
// the same Address compete for the same physical feedback slot.
func (s Source) Address() Address {
	switch s.Kind {
	case KindMIDIChannelVoice:
		return Address(fmt.Sprintf("midi:%s:%d:%d:%d", s.MIDIDeviceID, s.ChannelVoice, s.MIDIChannel, s.MIDIKeyOrCC))
	case KindMIDISysEx:
		return Address(fmt.Sprintf("sysex:%s:%s", s.MIDIDeviceID, s.SysExPatternHex))
	case KindMIDINRPN:
		return Address(fmt.Sprintf("nrpn:%s:%d:%d", s.MIDIDeviceID, s.MIDIChannel, s.NRPNNumber))
	case KindMIDI14BitCC:
		return Address(fmt.Sprintf("cc14:%s:%d:%d:%d", s.MIDIDeviceID, s.MIDIChannel, s.CC14MSB, s.CC14LSB))
	case KindOSC:
		return Address("osc:" + s.OSCAddress)
	case KindRawKey:
		return Address(fmt.Sprintf("key:%d", s.KeyCode))
	case KindStreamDeck:
		return Address(fmt.Sprintf("deck:%d:%v", s.DeckButtonIndex, s.DeckIsEncoder))
	case KindHostEvent:
		return Address("host:" + s.HostEventName)
	case KindVirtual:
		return Address("virtual:" + s.VirtualElement)
	default:
		return ""
	}
}

// Event is a single incoming device event, produced by the device I/O layer
// and classified by the real-time processor.
type Event struct {
	Kind Kind

	MIDIDeviceID string
	MIDIChannel  uint8
	ChannelVoice ChannelVoiceType
	MIDIKeyOrCC  uint8
	MIDIValue    uint8  // CC value, note velocity, aftertouch pressure
	MIDIValue16  uint16 // pitch bend absolute, NRPN 14-bit composed value
	NoteIsOn     bool

	SysExData []byte

	OSCAddress string
	OSCArgs    []any

	KeyCode   int
	KeyIsDown bool

	DeckButtonIndex int
	DeckIsEncoder   bool
	DeckPressed     bool
	DeckEncoderStep int

	HostEventName string
}

// Matches reports whether this source's static descriptor matches the class
// and identity of e. It does not itself produce a value; callers combine
// Matches with a per-kind value extractor (see Extract).
func (s Source) Matches(e Event) bool {
	if s.Kind != e.Kind {
		return false
	}
	switch s.Kind {
	case KindMIDIChannelVoice:
		return s.MIDIDeviceID == e.MIDIDeviceID && s.MIDIChannel == e.MIDIChannel &&
			s.ChannelVoice == e.ChannelVoice && s.MIDIKeyOrCC == e.MIDIKeyOrCC
	case KindMIDISysEx:
		return s.MIDIDeviceID == e.MIDIDeviceID && matchesSysExPattern(s.SysExPatternHex, e.SysExData)
	case KindMIDINRPN:
		return s.MIDIDeviceID == e.MIDIDeviceID && s.MIDIChannel == e.MIDIChannel && s.NRPNNumber == uint16(e.MIDIValue16)
	case KindMIDI14BitCC:
		return s.MIDIDeviceID == e.MIDIDeviceID && s.MIDIChannel == e.MIDIChannel &&
			s.CC14MSB == e.MIDIKeyOrCC
	case KindOSC:
		return s.OSCAddress == e.OSCAddress
	case KindRawKey:
		return s.KeyCode == e.KeyCode
	case KindStreamDeck:
		return s.DeckButtonIndex == e.DeckButtonIndex && s.DeckIsEncoder == e.DeckIsEncoder
	case KindHostEvent:
		return s.HostEventName == e.HostEventName
	case KindVirtual:
		return false // virtual sources never match raw device events directly
	default:
		return false
	}
}

func matchesSysExPattern(patternHex string, data []byte) bool {
	n := len(patternHex) / 2
	if len(data) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if data[i] != hexNibble(patternHex[i*2])<<4|hexNibble(patternHex[i*2+1]) {
			return false
		}
	}
	return true
}

func hexToBytes(h string) []byte {
	out := make([]byte, len(h)/2)
	for i := range out {
		out[i] = hexNibble(h[i*2])<<4 | hexNibble(h[i*2+1])
	}
	return out
}

func hexNibble(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	default:
		return 0
	}
}

// Extract converts a matched event's raw payload into the ControlValue a mode
// pipeline consumes. Discrete note-on/off and key/deck-button events become
// AbsoluteDiscrete(0|1, 2); CC/aftertouch/OSC-float become AbsoluteContinuous.
func Extract(s Source, e Event) value.CV {
	switch s.Kind {
	case KindMIDIChannelVoice:
		switch s.ChannelVoice {
		case CC, Aftertouch:
			return value.NewAbsoluteContinuous(value.NewUnitValue(float64(e.MIDIValue) / 127.0))
		case NoteOnOff:
			if e.NoteIsOn {
				return value.NewAbsoluteDiscrete(1, 2)
			}
			return value.NewAbsoluteDiscrete(0, 2)
		case PitchBend:
			return value.NewAbsoluteContinuous(value.NewUnitValue(float64(e.MIDIValue16) / 16383.0))
		}
	case KindMIDINRPN, KindMIDI14BitCC:
		return value.NewAbsoluteContinuous(value.NewUnitValue(float64(e.MIDIValue16) / 16383.0))
	case KindOSC:
		return extractOSC(e.OSCArgs)
	case KindRawKey:
		if e.KeyIsDown {
			return value.NewAbsoluteDiscrete(1, 2)
		}
		return value.NewAbsoluteDiscrete(0, 2)
	case KindStreamDeck:
		if s.DeckIsEncoder {
			return value.NewRelative(e.DeckEncoderStep)
		}
		if e.DeckPressed {
			return value.NewAbsoluteDiscrete(1, 2)
		}
		return value.NewAbsoluteDiscrete(0, 2)
	}
	return value.NewAbsoluteContinuous(0)
}

func extractOSC(args []any) value.CV {
	if len(args) == 0 {
		return value.NewAbsoluteContinuous(0)
	}
	switch a := args[0].(type) {
	case float32:
		return value.NewAbsoluteContinuous(value.NewUnitValue(float64(a)))
	case float64:
		return value.NewAbsoluteContinuous(value.NewUnitValue(a))
	case int32:
		return value.NewAbsoluteDiscrete(int(a), 2)
	case bool:
		if a {
			return value.NewAbsoluteDiscrete(1, 2)
		}
		return value.NewAbsoluteDiscrete(0, 2)
	default:
		return value.NewAbsoluteContinuous(0)
	}
}

// Outcome is the match-outcome lattice: Unmatched < Consumed < Matched.
type Outcome int

const (
	Unmatched Outcome = iota
	Consumed
	Matched
)

// Join implements the lattice join used to combine per-mapping outcomes for
// a single incoming event: the result is the maximum of all outcomes.
func Join(outcomes ...Outcome) Outcome {
	max := Unmatched
	for _, o := range outcomes {
		if o > max {
			max = o
		}
	}
	return max
}
