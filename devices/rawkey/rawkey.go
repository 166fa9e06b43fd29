// Package rawkey implements the raw-key device I/O primitive: a
// keyboard-hotkey source independent of any particular
// controller protocol. It follows devices.MidiDevice's
// Bind-returns-unbind-func shape, but its job in this engine is to translate
// OS key events into source.Event values for the real-time classifier rather
// than to fire typed per-control callbacks directly.
package rawkey

import (
	"log/slog"
	"sync"

	"github.com/jdginn/controlcore/logging"
	"github.com/jdginn/controlcore/source"
)

var log = logging.Get(logging.MIDI_IN)

// Listener is supplied by the host application and delivers raw key
// transitions from whatever OS-level hook it uses; Device has no opinion on
// how those are captured, matching devices.Dispatcher's separation between
// wire transport and address routing.
type Listener interface {
	Listen(handler func(keyCode int, isDown bool))
}

type keyBinding struct {
	keyCode  int
	callback func(isDown bool) error
}

// Device tracks per-key callback bindings and exposes a channel of
// source.Event for every transition, so one physical keyboard can both drive
// direct bindings (e.g. a panic-button action) and feed the mapping table.
type Device struct {
	mu       sync.RWMutex
	bindings map[*keyBinding]struct{}
	events   chan source.Event
}

// NewDevice builds a Device with a bounded event channel (callers must
// drain Events; when the channel is full, new events are dropped).
func NewDevice(eventBuf int) *Device {
	return &Device{
		bindings: make(map[*keyBinding]struct{}),
		events:   make(chan source.Event, eventBuf),
	}
}

// Key returns a bindable handle for keyCode.
func (d *Device) Key(keyCode int) *Key {
	return &Key{device: d, keyCode: keyCode}
}

// Events is the channel of translated source.Event values, one per key
// transition, ready for a real-time processor or Sweep call to consume.
func (d *Device) Events() <-chan source.Event {
	return d.events
}

// Run starts listening via l and dispatches every transition to matching
// bindings and onto Events. Intended to run in its own goroutine.
func (d *Device) Run(l Listener) {
	l.Listen(func(keyCode int, isDown bool) {
		log.Debug("raw key event", slog.Int("key", keyCode), slog.Bool("down", isDown))

		select {
		case d.events <- source.Event{Kind: source.KindRawKey, KeyCode: keyCode, KeyIsDown: isDown}:
		default:
			log.Debug("dropping raw key event, events channel full", slog.Int("key", keyCode))
		}

		d.mu.RLock()
		for b := range d.bindings {
			if b.keyCode != keyCode {
				continue
			}
			if err := b.callback(isDown); err != nil {
				log.Error("raw key callback failed", slog.Int("key", keyCode), slog.Any("err", err))
			}
		}
		d.mu.RUnlock()
	})
}

// Key is a bindable handle to one key code.
type Key struct {
	device  *Device
	keyCode int
}

// Bind registers callback to run on every press/release of this key and
// returns a func to unregister it.
func (k *Key) Bind(callback func(isDown bool) error) func() {
	b := &keyBinding{keyCode: k.keyCode, callback: callback}
	k.device.mu.Lock()
	k.device.bindings[b] = struct{}{}
	k.device.mu.Unlock()
	return func() {
		k.device.mu.Lock()
		delete(k.device.bindings, b)
		k.device.mu.Unlock()
	}
}

// Source builds the source.Source descriptor matching this key, for
// registering a mapping against it.
func (k *Key) Source() source.Source {
	return source.Source{Kind: source.KindRawKey, KeyCode: k.keyCode}
}
