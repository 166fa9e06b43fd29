package orchestrate

import (
	"sync"

	"github.com/jdginn/controlcore/logging"
	"github.com/jdginn/controlcore/mainproc"
	"github.com/jdginn/controlcore/source"
)

// UnitHandle is one unit registered with a Container.
type UnitHandle struct {
	Name string
	Proc *mainproc.Processor
}

// Container multiplexes several units that may share physical devices,
// sweeping each and arbitrating which unit currently owns feedback rights to
// a given source address: first registered, first served, persistent until
// that unit stops emitting feedback for the address (source takeover between
// two units contending for the same control).
type Container struct {
	mu      sync.Mutex
	bus     *Bus
	units   map[string]*UnitHandle
	order   []string
	owners  map[source.Address]string
	pending []pendingRelease
}

// pendingRelease is a source address whose owning unit stopped using it this
// orchestration cycle. The off value is held back for one cycle: if another
// unit can take the address over it re-emits instead, otherwise the origin
// unit finally sends the off.
type pendingRelease struct {
	unit string
	addr source.Address
}

// NewContainer builds a Container publishing orchestration events to bus.
func NewContainer(bus *Bus) *Container {
	return &Container{
		bus:    bus,
		units:  make(map[string]*UnitHandle),
		owners: make(map[source.Address]string),
	}
}

// AddUnit registers a unit, appended after any already-registered units —
// registration order is the tie-break priority for source-address ownership.
func (c *Container) AddUnit(name string, proc *mainproc.Processor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.units[name]; !exists {
		c.order = append(c.order, name)
	}
	c.units[name] = &UnitHandle{Name: name, Proc: proc}
}

// RemoveUnit unregisters a unit and releases any source addresses it owned.
func (c *Container) RemoveUnit(name string) {
	c.mu.Lock()
	delete(c.units, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	var released []source.Address
	for addr, owner := range c.owners {
		if owner == name {
			released = append(released, addr)
			delete(c.owners, addr)
		}
	}
	c.mu.Unlock()

	for _, addr := range released {
		c.bus.PublishSourceReleased(SourceReleased{Unit: name, FeedbackOutput: addr})
	}
}

// SweepAll runs one sweep for every registered unit (events keyed by unit
// name), then arbitrates feedback ownership across units before returning
// each unit's (possibly filtered) result.
func (c *Container) SweepAll(events map[string][]mainproc.ControlEvent) map[string]mainproc.SweepResult {
	c.mu.Lock()
	names := append([]string{}, c.order...)
	handles := make(map[string]*UnitHandle, len(names))
	for _, n := range names {
		handles[n] = c.units[n]
	}
	c.mu.Unlock()

	results := make(map[string]mainproc.SweepResult, len(names))
	for _, name := range names {
		h := handles[name]
		if h == nil {
			continue
		}
		results[name] = h.Proc.Sweep(events[name])
	}

	c.arbitrate(names, results)
	c.resolveReleases(names, handles, results)
	return results
}

// resolveReleases implements source takeover. A unit's unused-source flush is
// never sent as an immediate off: IoUpdated and SourceReleased go out first
// and the off is held for one orchestration cycle. On the next SweepAll, a
// unit with a feedback-on mapping for the released address is told to re-emit
// (take over) and the off is dropped; with no taker, the off is restored to
// the origin unit's result.
func (c *Container) resolveReleases(names []string, handles map[string]*UnitHandle, results map[string]mainproc.SweepResult) {
	c.mu.Lock()
	due := c.pending
	c.pending = nil
	c.mu.Unlock()

	var held []pendingRelease
	for _, name := range names {
		res := results[name]
		if len(res.UnusedSourceFlushes) == 0 {
			continue
		}
		for _, addr := range res.UnusedSourceFlushes {
			c.bus.PublishIoUpdated(IoUpdated{Unit: name, UsageMightHaveChanged: true})
			c.bus.PublishSourceReleased(SourceReleased{Unit: name, FeedbackOutput: addr})
			held = append(held, pendingRelease{unit: name, addr: addr})
		}
		res.UnusedSourceFlushes = nil
		results[name] = res
	}

	for _, rel := range due {
		taken := false
		for _, name := range names {
			if name == rel.unit {
				continue
			}
			h := handles[name]
			if h == nil || !h.Proc.HasFeedbackOnAddress(rel.addr) {
				continue
			}
			h.Proc.ForceFeedbackForAddress(rel.addr)
			c.mu.Lock()
			c.owners[rel.addr] = name
			c.mu.Unlock()
			c.bus.PublishIoUpdated(IoUpdated{Unit: name, FeedbackOutUsed: true, UsageMightHaveChanged: true})
			taken = true
			break
		}
		if !taken {
			res := results[rel.unit]
			res.UnusedSourceFlushes = append(res.UnusedSourceFlushes, rel.addr)
			results[rel.unit] = res
			c.mu.Lock()
			if c.owners[rel.addr] == rel.unit {
				delete(c.owners, rel.addr)
			}
			c.mu.Unlock()
		}
	}

	c.mu.Lock()
	c.pending = append(c.pending, held...)
	c.mu.Unlock()
}

// arbitrate decides, per source address contended by more than one unit's
// feedback this sweep, which unit keeps the address — the first in
// registration order that emitted feedback for it — and filters every other
// unit's Feedback slice so only the owner's value is ever actually sent.
func (c *Container) arbitrate(names []string, results map[string]mainproc.SweepResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	claimed := make(map[source.Address]string)
	for _, name := range names {
		for _, fb := range results[name].Feedback {
			if _, taken := claimed[fb.Address]; !taken {
				claimed[fb.Address] = name
			}
		}
	}

	for addr, newOwner := range claimed {
		prevOwner, had := c.owners[addr]
		if had && prevOwner != newOwner {
			c.bus.PublishSourceReleased(SourceReleased{Unit: prevOwner, FeedbackOutput: addr})
			c.bus.PublishIoUpdated(IoUpdated{Unit: prevOwner, UsageMightHaveChanged: true})
		}
		if !had || prevOwner != newOwner {
			c.bus.PublishIoUpdated(IoUpdated{Unit: newOwner, FeedbackOutUsed: true, UsageMightHaveChanged: true})
		}
		c.owners[addr] = newOwner
	}

	for _, name := range names {
		res := results[name]
		filtered := res.Feedback[:0:0]
		for _, fb := range res.Feedback {
			if claimed[fb.Address] == name {
				filtered = append(filtered, fb)
			} else {
				logging.Get(logging.ORCHESTRATE).Debug("feedback suppressed, address owned by another unit",
					"unit", name, "address", string(fb.Address), "owner", claimed[fb.Address])
			}
		}
		res.Feedback = filtered
		results[name] = res
	}
}
