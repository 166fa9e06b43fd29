// Package rtproc implements the real-time processor: the
// half of the core that runs on the audio/MIDI-callback thread. It classifies
// raw device events against a read-only snapshot of the mapping table,
// forwards matches to the main processor over a bounded channel, and emits
// in-block MIDI feedback queued by the main thread. The snapshot is swapped
// in via atomic.Pointer; routed events and feedback frames travel over
// buffered Go channels with non-blocking sends and receives. An event that
// matches nothing is classified without allocating; a forwarded event
// allocates a copy of its candidate list.
package rtproc

import (
	"sync/atomic"

	"github.com/jdginn/controlcore/mapping"
	"github.com/jdginn/controlcore/source"
)

// ClassEntry is one precomputed (source, mapping) pair the real-time
// processor tests an incoming event against. Building this list (grouping by
// source.Kind, sorting, whatever indexing the main processor wants) happens
// off the audio thread in mainproc; rtproc only ever reads it.
type ClassEntry struct {
	Source      source.Source
	MappingID   mapping.MappingId
	Compartment mapping.CompartmentKind
}

// Snapshot is the immutable, audio-thread-safe view of the mapping table the
// real-time processor classifies against. A new Snapshot is built and swapped
// in by the main processor every time the mapping table structurally
// changes; the audio thread never mutates it.
type Snapshot struct {
	Entries []ClassEntry
}

// RoutedEvent is what the real-time processor hands to the main processor
// once it has found at least one statically matching mapping. The main
// processor re-resolves the exact match/outcome semantics; rtproc only
// does coarse pre-filtering so the channel carries just the mappings worth
// re-checking.
type RoutedEvent struct {
	Event     source.Event
	Candidate []ClassEntry
}

// FeedbackFrame is a single pre-encoded outgoing MIDI message, queued by the
// main processor and drained in-block by the real-time processor: feedback
// emitted on the same audio callback that produced the triggering control
// change, instead of waiting for the next main-thread sweep.
type FeedbackFrame struct {
	DeviceID string
	Bytes    [3]byte
	Len      int
}

// Processor is the real-time processor for one unit. candidatesBuf is reused
// across calls to Process as scratch space for collecting matches; its
// capacity is sized generously at construction and never shrinks. Each
// forwarded event carries its own copy of the candidates.
type Processor struct {
	snapshot atomic.Pointer[Snapshot]
	outbound chan RoutedEvent

	feedback      chan FeedbackFrame
	candidatesBuf []ClassEntry
}

// New builds a Processor. outboundCapacity bounds the channel the main
// processor drains every sweep (its bulk caps apply on the receiving end);
// feedbackCapacity bounds the in-block feedback queue.
func New(outboundCapacity, feedbackCapacity int) *Processor {
	p := &Processor{
		outbound:      make(chan RoutedEvent, outboundCapacity),
		feedback:      make(chan FeedbackFrame, feedbackCapacity),
		candidatesBuf: make([]ClassEntry, 0, 64),
	}
	p.snapshot.Store(&Snapshot{})
	return p
}

// SwapSnapshot installs a new read-only snapshot. Called by the main
// processor whenever the mapping table changes shape; safe to call
// concurrently with Process.
func (p *Processor) SwapSnapshot(s *Snapshot) {
	if s == nil {
		s = &Snapshot{}
	}
	p.snapshot.Store(s)
}

// Outbound returns the channel the main processor reads RoutedEvents from.
func (p *Processor) Outbound() <-chan RoutedEvent { return p.outbound }

// QueueFeedback enqueues a pre-encoded outgoing MIDI message for in-block
// emission. Non-blocking: if the queue is full the frame is dropped rather
// than stalling the caller (acceptable — the next sweep's normal feedback
// path will catch up).
func (p *Processor) QueueFeedback(f FeedbackFrame) (queued bool) {
	select {
	case p.feedback <- f:
		return true
	default:
		return false
	}
}

// DrainFeedback pulls every currently queued feedback frame and calls emit
// for each, in order. Intended to run once per audio callback, right after
// Process. It never allocates: the loop only reads from the channel.
func (p *Processor) DrainFeedback(emit func(FeedbackFrame)) {
	for {
		select {
		case f := <-p.feedback:
			emit(f)
		default:
			return
		}
	}
}

// Process classifies a single raw device event against the current snapshot
// and, if at least one mapping statically matches, forwards it to the main
// processor. It reuses p.candidatesBuf so no allocation occurs on the common
// path; a full outbound channel causes the event to be dropped rather than
// block the calling audio callback (the real-time thread must never block
// on the main thread).
//
// Process returns true if the event was forwarded, false if nothing matched
// or the outbound channel was full.
func (p *Processor) Process(e source.Event) bool {
	snap := p.snapshot.Load()
	p.candidatesBuf = p.candidatesBuf[:0]
	for _, entry := range snap.Entries {
		if entry.Source.Matches(e) {
			p.candidatesBuf = append(p.candidatesBuf, entry)
		}
	}
	if len(p.candidatesBuf) == 0 {
		return false
	}
	routed := RoutedEvent{Event: e, Candidate: append([]ClassEntry(nil), p.candidatesBuf...)}
	select {
	case p.outbound <- routed:
		return true
	default:
		return false
	}
}
