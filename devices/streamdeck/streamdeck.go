// Package streamdeck implements the Stream Deck device I/O primitive:
// buttons and encoders as control sources, plus a
// per-button feedback sink (color/image) for the subset of mappings whose
// FeedbackResolution routes there. It follows devices.rawkey's
// Bind-returns-unbind-func shape rather than firing typed per-control
// callbacks through a protocol-specific client, since the underlying USB HID
// transport is supplied by the host application (matching rawkey.Listener's
// separation of wire transport from the event model this engine consumes).
package streamdeck

import (
	"log/slog"
	"sync"

	"github.com/jdginn/controlcore/logging"
	"github.com/jdginn/controlcore/source"
)

var log = logging.Get(logging.MIDI_IN)

// Listener is supplied by the host application and delivers raw button and
// encoder transitions from whatever Stream Deck HID library it uses; Device
// has no opinion on how those are captured.
type Listener interface {
	Listen(handler func(buttonIndex int, isEncoder bool, pressed bool, encoderStep int))
}

// Panel is the feedback collaborator a Device drives for button-level
// feedback: solid color for boolean/toggle
// state, or an image for continuous/textual feedback. Supplied by the host,
// same separation as target.HostSink for REAPER.
type Panel interface {
	SetButtonColor(buttonIndex int, r, g, b uint8) error
	SetButtonImage(buttonIndex int, png []byte) error
	SetButtonText(buttonIndex int, text string) error
}

type buttonBinding struct {
	buttonIndex int
	isEncoder   bool
	callback    func(pressed bool, encoderStep int) error
}

// Device tracks per-button/encoder callback bindings and exposes a channel of
// source.Event for every transition, so a physical panel can both drive
// direct bindings and feed the mapping table, mirroring rawkey.Device.
type Device struct {
	panel Panel

	mu       sync.RWMutex
	bindings map[*buttonBinding]struct{}
	events   chan source.Event
}

// NewDevice builds a Device bound to panel (nil if this instance only
// consumes input and never drives feedback) with a bounded event channel
// (callers must drain Events; when the channel is full, new events are
// dropped).
func NewDevice(panel Panel, eventBuf int) *Device {
	return &Device{
		panel:    panel,
		bindings: make(map[*buttonBinding]struct{}),
		events:   make(chan source.Event, eventBuf),
	}
}

// Button returns a bindable handle for a press-button at buttonIndex.
func (d *Device) Button(buttonIndex int) *Button {
	return &Button{device: d, buttonIndex: buttonIndex, isEncoder: false}
}

// Encoder returns a bindable handle for a rotary encoder at buttonIndex.
func (d *Device) Encoder(buttonIndex int) *Button {
	return &Button{device: d, buttonIndex: buttonIndex, isEncoder: true}
}

// Events is the channel of translated source.Event values, one per
// press/release or encoder turn, ready for a real-time processor or Sweep
// call to consume.
func (d *Device) Events() <-chan source.Event {
	return d.events
}

// Run starts listening via l and dispatches every transition to matching
// bindings and onto Events. Intended to run in its own goroutine.
func (d *Device) Run(l Listener) {
	l.Listen(func(buttonIndex int, isEncoder bool, pressed bool, encoderStep int) {
		log.Debug("stream deck event", slog.Int("button", buttonIndex), slog.Bool("encoder", isEncoder), slog.Bool("pressed", pressed), slog.Int("step", encoderStep))

		select {
		case d.events <- source.Event{
			Kind:            source.KindStreamDeck,
			DeckButtonIndex: buttonIndex,
			DeckIsEncoder:   isEncoder,
			DeckPressed:     pressed,
			DeckEncoderStep: encoderStep,
		}:
		default:
			log.Debug("dropping stream deck event, events channel full", slog.Int("button", buttonIndex))
		}

		d.mu.RLock()
		for b := range d.bindings {
			if b.buttonIndex != buttonIndex || b.isEncoder != isEncoder {
				continue
			}
			if err := b.callback(pressed, encoderStep); err != nil {
				log.Error("stream deck callback failed", slog.Int("button", buttonIndex), slog.Any("err", err))
			}
		}
		d.mu.RUnlock()
	})
}

// SetButtonColor forwards to the bound Panel, a no-op if none was supplied.
func (d *Device) SetButtonColor(buttonIndex int, r, g, b uint8) error {
	if d.panel == nil {
		return nil
	}
	return d.panel.SetButtonColor(buttonIndex, r, g, b)
}

// SetButtonText forwards to the bound Panel, a no-op if none was supplied.
// Used for textual feedback formats.
func (d *Device) SetButtonText(buttonIndex int, text string) error {
	if d.panel == nil {
		return nil
	}
	return d.panel.SetButtonText(buttonIndex, text)
}

// Button is a bindable handle to one button or encoder.
type Button struct {
	device      *Device
	buttonIndex int
	isEncoder   bool
}

// Bind registers callback to run on every press/release (or encoder turn)
// of this control and returns a func to unregister it.
func (b *Button) Bind(callback func(pressed bool, encoderStep int) error) func() {
	binding := &buttonBinding{buttonIndex: b.buttonIndex, isEncoder: b.isEncoder, callback: callback}
	b.device.mu.Lock()
	b.device.bindings[binding] = struct{}{}
	b.device.mu.Unlock()
	return func() {
		b.device.mu.Lock()
		delete(b.device.bindings, binding)
		b.device.mu.Unlock()
	}
}

// Source builds the source.Source descriptor matching this button/encoder,
// for registering a mapping against it.
func (b *Button) Source() source.Source {
	return source.Source{Kind: source.KindStreamDeck, DeckButtonIndex: b.buttonIndex, DeckIsEncoder: b.isEncoder}
}
