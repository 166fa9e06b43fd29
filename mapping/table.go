package mapping

import (
	"sync"

	"github.com/jdginn/controlcore/source"
)

// Table is the main processor's ordered MappingId → Mapping map for one
// compartment, preserving insertion order. For the Controller
// compartment it additionally tracks a separate ordered view of mappings
// whose target is Virtual.
type Table struct {
	mu    sync.RWMutex
	order []MappingId
	byID  map[MappingId]*Mapping

	virtualTargetOrder []MappingId

	// Cached index sets, rebuilt on bulk update and incrementally patched on
	// single-mapping update.
	targetTouchDependent  map[MappingId]struct{}
	beatDependentFeedback map[MappingId]struct{}
	highDependentFeedback map[MappingId]struct{}
	pollControl           map[MappingId]struct{}
}

// NewTable builds an empty table.
func NewTable() *Table {
	return &Table{
		byID:                  make(map[MappingId]*Mapping),
		targetTouchDependent:  make(map[MappingId]struct{}),
		beatDependentFeedback: make(map[MappingId]struct{}),
		highDependentFeedback: make(map[MappingId]struct{}),
		pollControl:           make(map[MappingId]struct{}),
	}
}

// Upsert inserts m (appending to insertion order) or replaces the existing
// mapping with the same ID in place (preserving its position).
func (t *Table) Upsert(m *Mapping) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byID[m.ID]; !exists {
		t.order = append(t.order, m.ID)
	}
	t.byID[m.ID] = m
	t.patchIndexesLocked(m)
}

// Remove deletes the mapping with the given ID.
func (t *Table) Remove(id MappingId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byID[id]; !ok {
		return
	}
	delete(t.byID, id)
	t.order = removeID(t.order, id)
	t.virtualTargetOrder = removeID(t.virtualTargetOrder, id)
	delete(t.targetTouchDependent, id)
	delete(t.beatDependentFeedback, id)
	delete(t.highDependentFeedback, id)
	delete(t.pollControl, id)
}

func removeID(s []MappingId, id MappingId) []MappingId {
	out := s[:0:0]
	for _, v := range s {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// Get looks up a mapping by ID.
func (t *Table) Get(id MappingId) (*Mapping, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.byID[id]
	return m, ok
}

// InOrder returns every mapping in insertion order. The returned slice is a
// fresh copy safe for the caller to range over without holding the lock.
func (t *Table) InOrder() []*Mapping {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Mapping, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.byID[id])
	}
	return out
}

// Len reports the number of mappings in the table.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// BySourceClass returns, in insertion order, every mapping whose source Kind
// matches k. O(n) over the table.
func (t *Table) BySourceClass(k source.Kind) []*Mapping {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Mapping
	for _, id := range t.order {
		m := t.byID[id]
		if m.Source.Kind == k {
			out = append(out, m)
		}
	}
	return out
}

// ByVirtualSource returns, in insertion order, every mapping whose source is
// Virtual(element) — used to dispatch a resolved virtual control value to
// Main-compartment mappings.
func (t *Table) ByVirtualSource(element string) []*Mapping {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Mapping
	for _, id := range t.order {
		m := t.byID[id]
		if m.IsVirtualSource() && m.Source.VirtualElement == element {
			out = append(out, m)
		}
	}
	return out
}

// VirtualTargetsFor returns, in insertion order, every Controller-compartment
// mapping whose target is Virtual(element) — used to resolve virtual
// feedback and to decide whether a controller mapping is "in use".
func (t *Table) VirtualTargetsFor(element string) []*Mapping {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []*Mapping
	for _, id := range t.virtualTargetOrder {
		m := t.byID[id]
		if m != nil && m.IsVirtualTarget() && m.Target.VirtualElement == element {
			out = append(out, m)
		}
	}
	return out
}

// FirstActiveVirtualSource returns the first (insertion order) feedback-on
// mapping whose source is Virtual(element), implementing the invariant that
// at most one active main mapping addresses a given virtual element for
// feedback purposes.
func (t *Table) FirstActiveVirtualSource(element string, unitFeedbackGloballyEnabled bool) (*Mapping, bool) {
	for _, m := range t.ByVirtualSource(element) {
		if m.FeedbackIsEffectivelyOn(unitFeedbackGloballyEnabled) {
			return m, true
		}
	}
	return nil, false
}

// RebuildIndexes recomputes every cached index set from scratch. Called on
// bulk update.
func (t *Table) RebuildIndexes() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targetTouchDependent = make(map[MappingId]struct{})
	t.beatDependentFeedback = make(map[MappingId]struct{})
	t.highDependentFeedback = make(map[MappingId]struct{})
	t.pollControl = make(map[MappingId]struct{})
	t.virtualTargetOrder = t.virtualTargetOrder[:0]
	for _, id := range t.order {
		t.patchIndexesLocked(t.byID[id])
	}
}

// patchIndexesLocked incrementally updates the cached index sets for a
// single mapping; callers must hold t.mu.
func (t *Table) patchIndexesLocked(m *Mapping) {
	if m.Cache.NeedsRefreshWhenTargetTouched {
		t.targetTouchDependent[m.ID] = struct{}{}
	} else {
		delete(t.targetTouchDependent, m.ID)
	}
	switch m.Cache.FeedbackResolution {
	case FeedbackBeat:
		t.beatDependentFeedback[m.ID] = struct{}{}
		delete(t.highDependentFeedback, m.ID)
	case FeedbackHigh:
		t.highDependentFeedback[m.ID] = struct{}{}
		delete(t.beatDependentFeedback, m.ID)
	default:
		delete(t.beatDependentFeedback, m.ID)
		delete(t.highDependentFeedback, m.ID)
	}
	if m.Cache.WantsToBePolledForControl {
		t.pollControl[m.ID] = struct{}{}
	} else {
		delete(t.pollControl, m.ID)
	}
	if m.IsVirtualTarget() {
		found := false
		for _, id := range t.virtualTargetOrder {
			if id == m.ID {
				found = true
				break
			}
		}
		if !found {
			t.virtualTargetOrder = append(t.virtualTargetOrder, m.ID)
		}
	}
}

// HighResolutionFeedbackMappings returns mappings declared high-resolution,
// re-queried every main sweep.
func (t *Table) HighResolutionFeedbackMappings() []*Mapping {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Mapping, 0, len(t.highDependentFeedback))
	for _, id := range t.order {
		if _, ok := t.highDependentFeedback[id]; ok {
			out = append(out, t.byID[id])
		}
	}
	return out
}

// BeatResolutionFeedbackMappings returns mappings declared beat-resolution.
func (t *Table) BeatResolutionFeedbackMappings() []*Mapping {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Mapping, 0, len(t.beatDependentFeedback))
	for _, id := range t.order {
		if _, ok := t.beatDependentFeedback[id]; ok {
			out = append(out, t.byID[id])
		}
	}
	return out
}

// PollControlMappings returns mappings that want their source polled for
// control instead of (or in addition to) receiving pushed events.
func (t *Table) PollControlMappings() []*Mapping {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Mapping, 0, len(t.pollControl))
	for _, id := range t.order {
		if _, ok := t.pollControl[id]; ok {
			out = append(out, t.byID[id])
		}
	}
	return out
}

// FeedbackOnAddresses returns the set of feedback addresses currently
// addressable by feedback-on mappings in this table — the "before" or
// "after" set used to compute the unused-source set on structural change.
func (t *Table) FeedbackOnAddresses(unitFeedbackGloballyEnabled bool) map[source.Address]struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[source.Address]struct{})
	for _, id := range t.order {
		m := t.byID[id]
		if m.FeedbackIsEffectivelyOn(unitFeedbackGloballyEnabled) {
			out[m.Source.Address()] = struct{}{}
		}
	}
	return out
}
