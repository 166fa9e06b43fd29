// Package orchestrate implements the orchestration bus and unit container:
// the layer above mainproc.Processor that multiplexes several units sharing
// physical devices and arbitrates which unit currently owns feedback rights
// to a given source address. The bus is a plain slice of callbacks invoked
// in registration order; an in-process bus needs no external pub/sub
// dependency.
package orchestrate

import (
	"sync"

	"github.com/jdginn/controlcore/source"
)

// IoUpdated reports that a unit's control-input or feedback-output usage of
// a shared device may have changed, so listeners (typically a UI showing
// per-unit activity) should re-query.
type IoUpdated struct {
	Unit                  string
	ControlInUsed         bool
	FeedbackOutUsed       bool
	UsageMightHaveChanged bool
}

// SourceReleased reports that Unit no longer owns feedback rights to
// FeedbackOutput — published strictly before any "off" feedback value is
// sent to that address during mass deactivation.
type SourceReleased struct {
	Unit           string
	FeedbackOutput source.Address
}

// Bus is the in-process publish point for orchestration-wide events.
type Bus struct {
	mu          sync.Mutex
	ioSubs      []func(IoUpdated)
	releaseSubs []func(SourceReleased)
}

// NewBus builds an empty Bus.
func NewBus() *Bus { return &Bus{} }

// OnIoUpdated registers a callback invoked on every PublishIoUpdated call.
func (b *Bus) OnIoUpdated(fn func(IoUpdated)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ioSubs = append(b.ioSubs, fn)
}

// OnSourceReleased registers a callback invoked on every PublishSourceReleased call.
func (b *Bus) OnSourceReleased(fn func(SourceReleased)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseSubs = append(b.releaseSubs, fn)
}

// PublishIoUpdated notifies every subscriber of e.
func (b *Bus) PublishIoUpdated(e IoUpdated) {
	b.mu.Lock()
	subs := append([]func(IoUpdated){}, b.ioSubs...)
	b.mu.Unlock()
	for _, fn := range subs {
		fn(e)
	}
}

// PublishSourceReleased notifies every subscriber of e.
func (b *Bus) PublishSourceReleased(e SourceReleased) {
	b.mu.Lock()
	subs := append([]func(SourceReleased){}, b.releaseSubs...)
	b.mu.Unlock()
	for _, fn := range subs {
		fn(e)
	}
}
