// Package mainproc implements the core main processor: the
// cooperative, non-real-time half of the control-routing engine. It owns the
// mapping tables, runs the per-event control pipeline (mode transform, target
// hit, group interaction, activation), and drives feedback (dedup, polling,
// unused-source flush). Bulk caps bound every phase of one sweep so a
// pathological mapping set degrades instead of stalling the host.
package mainproc

import (
	"encoding/binary"
	"hash/fnv"
	"log/slog"
	"math"

	"github.com/jdginn/controlcore/logging"
	"github.com/jdginn/controlcore/mapping"
	"github.com/jdginn/controlcore/source"
	"github.com/jdginn/controlcore/target"
	"github.com/jdginn/controlcore/value"
)

// ControlEvent is a single device event already narrowed to one candidate
// mapping, as produced by rtproc's coarse classifier.
type ControlEvent struct {
	Compartment mapping.CompartmentKind
	MappingID   mapping.MappingId
	Event       source.Event
}

// FeedbackCause describes why a feedback value is being produced. Normal
// feedback is subject to both dedup caches; feedback-after-control and
// take-over-source must always reach the device.
type FeedbackCause int

const (
	CauseNormal FeedbackCause = iota
	CauseFeedbackAfterControl
	CauseTakeOverSource
)

// FeedbackEmission is one outgoing feedback value ready for a device to
// render, produced by the feedback phase of a sweep.
type FeedbackEmission struct {
	Compartment mapping.CompartmentKind
	MappingID   mapping.MappingId
	Address     source.Address
	Value       value.UnitValue
	Text        string
	HasText     bool
	Cause       FeedbackCause
}

// SweepResult is everything observable a single sweep produced.
type SweepResult struct {
	Feedback            []FeedbackEmission
	UnusedSourceFlushes []source.Address
	Outcomes            map[mapping.QualifiedMappingId]source.Outcome
}

// passContext carries state that must be visible to every mapping evaluated
// within one sweep: once any mapping in this pass requests a target refresh,
// every mapping evaluated afterward in the same pass honors it, and the flag
// is cleared at the next sweep's start.
type passContext struct {
	enforceTargetRefresh bool
	hitInstructions      []target.HitInstruction

	// feedbackAfterControl collects mappings whose SendFeedbackAfterControl
	// option fired this pass; their feedback bypasses dedup this sweep.
	feedbackAfterControl map[mapping.QualifiedMappingId]struct{}
}

// Processor is the main processor for one unit: two compartments (Controller
// and Main), the activation graph linking target-value-dependent activation
// conditions, and the host sink every target hits.
type Processor struct {
	ControllerTable *mapping.Table
	MainTable       *mapping.Table
	Graph           *mapping.ActivationGraph
	Sink            target.HostSink

	Params []value.UnitValue

	ControlGloballyEnabled  bool
	FeedbackGloballyEnabled bool

	// HostState answers host-state-based activation predicates; nil is
	// treated as "every host-state flag is false".
	HostState func(name string) bool

	// SuppressedDuplicateFeedback counts feedback values swallowed by either
	// dedup cache, exposed for debugging.
	SuppressedDuplicateFeedback int

	prevFeedbackOnAddresses map[source.Address]struct{}

	// dedup is the unit-level feedback cache: source address to a 64-bit
	// checksum of the last emitted payload. A matching checksum suppresses
	// the send unless the cause is feedback-after-control or take-over-source.
	dedup map[source.Address]uint64

	// takeoverAddrs marks addresses whose next feedback must go out with the
	// take-over-source cause, set by the orchestrator when this unit adopts a
	// source another unit released.
	takeoverAddrs map[source.Address]struct{}

	// dirtyLeads records mappings whose cached target value changed this
	// sweep; their activation followers are re-evaluated before feedback.
	dirtyLeads map[mapping.QualifiedMappingId]struct{}

	// graphChanged forces a full re-evaluation of target-value-dependent
	// activation conditions after the edge set was rebuilt or patched.
	graphChanged bool

	log *slog.Logger
}

// New builds a Processor over fresh, empty mapping tables.
func New(sink target.HostSink) *Processor {
	return &Processor{
		ControllerTable:         mapping.NewTable(),
		MainTable:               mapping.NewTable(),
		Graph:                   mapping.NewActivationGraph(),
		Sink:                    sink,
		ControlGloballyEnabled:  true,
		FeedbackGloballyEnabled: true,
		prevFeedbackOnAddresses: make(map[source.Address]struct{}),
		dedup:                   make(map[source.Address]uint64),
		takeoverAddrs:           make(map[source.Address]struct{}),
		dirtyLeads:              make(map[mapping.QualifiedMappingId]struct{}),
		log:                     logging.Get(logging.MAINPROC),
	}
}

func (p *Processor) tableFor(c mapping.CompartmentKind) *mapping.Table {
	if c == mapping.Controller {
		return p.ControllerTable
	}
	return p.MainTable
}

// UpsertMapping installs m into its compartment's table and patches the
// activation graph: stale edges for a replaced mapping are dropped, and a
// target-value-dependent condition registers its (lead, follow) edge.
func (p *Processor) UpsertMapping(m *mapping.Mapping) {
	p.tableFor(m.Compartment).Upsert(m)
	p.Graph.RemoveMapping(m.QualifiedID())
	if m.Activation.Kind == mapping.ActivationTargetValue {
		p.Graph.SetEdge(m.Activation.Lead, m.QualifiedID())
	}
	p.graphChanged = true
}

// RemoveMapping drops a mapping from its table and from the activation graph.
func (p *Processor) RemoveMapping(qid mapping.QualifiedMappingId) {
	p.tableFor(qid.Compartment).Remove(qid.ID)
	p.Graph.RemoveMapping(qid)
	p.graphChanged = true
}

// RebuildActivationGraph reconstructs the lead/follow edge set from both
// tables. Called after a bulk table swap; single-mapping updates go through
// UpsertMapping, which patches edges incrementally.
func (p *Processor) RebuildActivationGraph() {
	p.Graph = mapping.NewActivationGraph()
	for _, tbl := range [2]*mapping.Table{p.ControllerTable, p.MainTable} {
		for _, m := range tbl.InOrder() {
			if m.Activation.Kind == mapping.ActivationTargetValue {
				p.Graph.SetEdge(m.Activation.Lead, m.QualifiedID())
			}
		}
	}
	p.graphChanged = true
}

// Sweep runs one full cooperative pass: control processing for every pending
// event, the deferred hit-instruction pass, activation re-evaluation, and
// feedback. It never blocks and never recurses past its declared bulk caps.
func (p *Processor) Sweep(events []ControlEvent) SweepResult {
	pass := &passContext{feedbackAfterControl: make(map[mapping.QualifiedMappingId]struct{})}
	outcomes := make(map[mapping.QualifiedMappingId]source.Outcome, len(events))

	n := 0
	for _, ev := range events {
		if n >= MaxControlEventsPerSweep {
			p.log.Warn("control event cap reached, dropping remainder", "cap", MaxControlEventsPerSweep)
			break
		}
		n++
		qid := mapping.QualifiedMappingId{Compartment: ev.Compartment, ID: ev.MappingID}
		outcomes[qid] = source.Join(outcomes[qid], p.processControlEvent(pass, ev))
	}

	p.applyHitInstructions(pass)
	p.runActivation()

	res := SweepResult{
		Feedback:            p.runFeedback(pass),
		UnusedSourceFlushes: p.computeUnusedSourceFlush(),
		Outcomes:            outcomes,
	}
	p.takeoverAddrs = make(map[source.Address]struct{})
	return res
}

// processControlEvent runs the full control pipeline for a single candidate
// mapping.
func (p *Processor) processControlEvent(pass *passContext, ev ControlEvent) source.Outcome {
	tbl := p.tableFor(ev.Compartment)
	m, ok := tbl.Get(ev.MappingID)
	if !ok {
		return source.Unmatched
	}
	if !m.Source.Matches(ev.Event) {
		return source.Unmatched
	}
	if !m.ControlIsEffectivelyOn(p.ControlGloballyEnabled) {
		return source.Consumed
	}

	cv := source.Extract(m.Source, ev.Event)

	if m.Options.RefreshOnEveryControl {
		pass.enforceTargetRefresh = true
	}

	currentTarget, resolved := p.currentTargetFor(m)
	if !resolved && !m.IsVirtualTarget() {
		if pass.enforceTargetRefresh {
			currentTarget, resolved = target.CurrentValue(m.Target, p.Sink)
		}
		if !resolved {
			m.Cache.TargetIsResolved = false
			return source.Consumed
		}
	}

	out, ok := m.Mode.Process(cv, currentTarget)
	if !ok {
		return source.Consumed
	}

	if m.IsVirtualTarget() {
		p.dispatchVirtual(pass, m, out)
		return source.Matched
	}

	hit := p.hitAndBookkeep(m, out)
	if !hit.Reached {
		return source.Consumed
	}
	if m.Options.SendFeedbackAfterControl {
		pass.feedbackAfterControl[m.QualifiedID()] = struct{}{}
	}
	p.applyGroupInteraction(m, out, hit)
	if hit.Instruction != nil {
		pass.hitInstructions = append(pass.hitInstructions, *hit.Instruction)
	}
	if hit.CausedEffect || m.Options.SendFeedbackAfterControl {
		return source.Matched
	}
	return source.Consumed
}

// currentTargetFor returns the value a mode pipeline should treat as "the
// target's current value". Virtual targets have no host-resolvable value of
// their own; they use the last value the controller mapping itself produced,
// so takeover/relative math still has something sensible to compare against.
func (p *Processor) currentTargetFor(m *mapping.Mapping) (value.UnitValue, bool) {
	if m.IsVirtualTarget() {
		return m.Cache.LastNonPerformanceTargetValue, m.Cache.HasLastNonPerformanceValue
	}
	return target.CurrentValue(m.Target, p.Sink)
}

// hitAndBookkeep calls target.Hit and updates the mapping's runtime cache
// from the result.
func (p *Processor) hitAndBookkeep(m *mapping.Mapping, out value.CV) target.HitResult {
	hit := target.Hit(m.Target, p.Sink, out)
	m.Cache.TargetIsResolved = hit.Reached
	if hit.HasNewValue {
		if !m.Cache.HasLastNonPerformanceValue || !m.Cache.LastNonPerformanceTargetValue.ApproxEq(hit.NewValue) {
			p.dirtyLeads[m.QualifiedID()] = struct{}{}
		}
		m.Cache.LastNonPerformanceTargetValue = hit.NewValue
		m.Cache.HasLastNonPerformanceValue = true
	}
	return hit
}

// dispatchVirtual forwards a Controller-compartment mapping's virtual-target
// output to every Main-compartment mapping sourced from that same virtual
// element.
func (p *Processor) dispatchVirtual(pass *passContext, m *mapping.Mapping, out value.CV) {
	m.Cache.TargetIsResolved = true
	if !m.Cache.HasLastNonPerformanceValue || !m.Cache.LastNonPerformanceTargetValue.ApproxEq(out.ToUnitValue()) {
		p.dirtyLeads[m.QualifiedID()] = struct{}{}
	}
	m.Cache.LastNonPerformanceTargetValue = out.ToUnitValue()
	m.Cache.HasLastNonPerformanceValue = true

	followers := p.MainTable.ByVirtualSource(m.Target.VirtualElement)
	for _, follower := range followers {
		if !follower.ControlIsEffectivelyOn(p.ControlGloballyEnabled) {
			continue
		}
		currentTarget, resolved := target.CurrentValue(follower.Target, p.Sink)
		if !resolved {
			follower.Cache.TargetIsResolved = false
			continue
		}
		cv2 := value.NewAbsoluteContinuous(out.ToUnitValue())
		out2, ok := follower.Mode.Process(cv2, currentTarget)
		if !ok {
			continue
		}
		hit := p.hitAndBookkeep(follower, out2)
		if !hit.Reached {
			continue
		}
		if follower.Options.SendFeedbackAfterControl {
			pass.feedbackAfterControl[follower.QualifiedID()] = struct{}{}
		}
		p.applyGroupInteraction(follower, out2, hit)
		if hit.Instruction != nil {
			pass.hitInstructions = append(pass.hitInstructions, *hit.Instruction)
		}
	}
}

// applyGroupInteraction drives a successful control's control-enabled group
// peers. SameControl/InverseControl re-run the triggering control value
// through each peer's own mode pipeline, so a peer's interval, toggle, or
// takeover settings apply; the *TargetValue forms read the triggering
// mapping's reached value, normalize it through the triggering mapping's
// target interval, and drive the peer's target directly.
func (p *Processor) applyGroupInteraction(m *mapping.Mapping, out value.CV, hit target.HitResult) {
	if m.Options.Group == "" || m.Options.GroupInteraction == mapping.GroupNone {
		return
	}
	tbl := p.tableFor(m.Compartment)
	for _, peer := range tbl.InOrder() {
		if peer.ID == m.ID || peer.Options.Group != m.Options.Group {
			continue
		}
		if !peer.ControlIsEffectivelyOn(p.ControlGloballyEnabled) {
			continue
		}
		switch m.Options.GroupInteraction {
		case mapping.SameControl, mapping.InverseControl:
			cv := out
			if m.Options.GroupInteraction == mapping.InverseControl {
				cv = value.NewAbsoluteContinuous(value.NewUnitValue(1 - float64(out.ToUnitValue())))
			}
			peerCurrent, resolved := p.currentTargetFor(peer)
			if !resolved {
				continue
			}
			pout, ok := peer.Mode.Process(cv, peerCurrent)
			if !ok {
				continue
			}
			p.hitAndBookkeep(peer, pout)
		case mapping.SameTargetValue, mapping.InverseTargetValue, mapping.InverseTargetValueOnOnly, mapping.InverseTargetValueOffOnly:
			if !hit.HasNewValue {
				continue
			}
			on := !hit.NewValue.IsZero()
			if m.Options.GroupInteraction == mapping.InverseTargetValueOnOnly && !on {
				continue
			}
			if m.Options.GroupInteraction == mapping.InverseTargetValueOffOnly && on {
				continue
			}
			v := m.ModeConfig.TargetInterval.Normalize(hit.NewValue)
			if m.Options.GroupInteraction != mapping.SameTargetValue {
				v = value.NewUnitValue(1 - float64(v))
			}
			p.hitAndBookkeep(peer, value.NewAbsoluteContinuous(v))
		}
	}
}

// applyHitInstructions runs the deferred group enable/disable/refresh
// effects queued during control processing. This is the one extra pass the
// hit-instruction cascade is allowed: instructions are
// applied by flipping mapping state directly, never by re-invoking Hit, so
// no further instructions can ever be generated from this pass.
func (p *Processor) applyHitInstructions(pass *passContext) {
	for _, instr := range pass.hitInstructions {
		p.applyHitInstruction(instr)
	}
}

func (p *Processor) applyHitInstruction(instr target.HitInstruction) {
	for _, tbl := range [2]*mapping.Table{p.ControllerTable, p.MainTable} {
		for _, m := range tbl.InOrder() {
			if m.Options.Group != instr.GroupID {
				continue
			}
			switch instr.Kind {
			case target.EnableGroup:
				m.Options.ControlEnabled = true
				m.Options.FeedbackEnabled = true
			case target.DisableGroup:
				m.Options.ControlEnabled = false
				m.Options.FeedbackEnabled = false
			case target.RefreshGroup:
				m.Cache.TargetIsResolved = false
			}
		}
	}
}

type activationChange struct {
	m         *mapping.Mapping
	newActive bool
}

// runActivation re-evaluates activation conditions in two phases — compute
// the full batch of changes, then apply them — so no condition ever observes
// a half-applied batch mid-scan. Parameter- and host-state-based conditions
// are scanned directly; target-value-based conditions are reached through
// the activation graph, so only followers of leads whose value changed this
// sweep pay for re-evaluation.
func (p *Processor) runActivation() {
	batch := p.computeActivationBatch()
	batch = append(batch, p.computeTargetValueActivation()...)
	p.applyActivationBatch(batch)
	p.dirtyLeads = make(map[mapping.QualifiedMappingId]struct{})
}

func (p *Processor) computeActivationBatch() []activationChange {
	var batch []activationChange
	n := 0
	for _, tbl := range [2]*mapping.Table{p.ControllerTable, p.MainTable} {
		for _, m := range tbl.InOrder() {
			if m.Activation.Kind == mapping.ActivationTargetValue {
				continue
			}
			if n >= MaxActivationEvalsPerSweep {
				p.log.Warn("activation eval cap reached", "cap", MaxActivationEvalsPerSweep)
				return batch
			}
			n++
			newActive := m.Activation.Evaluate(p.Params, 0, false, p.HostState)
			if newActive != m.Cache.IsActive {
				batch = append(batch, activationChange{m: m, newActive: newActive})
			}
		}
	}
	return batch
}

// computeTargetValueActivation re-evaluates target-value-dependent
// conditions. After a graph change every such condition is reconsidered
// once; otherwise only the followers of this sweep's dirty leads are, via
// Graph.FollowersOf. A lead that is inactive propagates as "value
// unavailable"; an active lead with no cached value yet is a transient and
// the follower's previous decision stands.
func (p *Processor) computeTargetValueActivation() []activationChange {
	var batch []activationChange

	evaluate := func(m *mapping.Mapping) {
		lead, ok := p.tableFor(m.Activation.Lead.Compartment).Get(m.Activation.Lead.ID)
		if !ok {
			return
		}
		leadValue := lead.Cache.LastNonPerformanceTargetValue
		leadAvailable := lead.Cache.HasLastNonPerformanceValue && lead.Cache.IsActive
		if lead.Cache.IsActive && !lead.Cache.HasLastNonPerformanceValue {
			return
		}
		newActive := m.Activation.Evaluate(p.Params, leadValue, leadAvailable, p.HostState)
		if newActive != m.Cache.IsActive {
			batch = append(batch, activationChange{m: m, newActive: newActive})
		}
	}

	if p.graphChanged {
		p.graphChanged = false
		for _, tbl := range [2]*mapping.Table{p.ControllerTable, p.MainTable} {
			for _, m := range tbl.InOrder() {
				if m.Activation.Kind == mapping.ActivationTargetValue {
					evaluate(m)
				}
			}
		}
		return batch
	}

	for lead := range p.dirtyLeads {
		for _, qid := range p.Graph.FollowersOf(lead) {
			if m, ok := p.tableFor(qid.Compartment).Get(qid.ID); ok {
				evaluate(m)
			}
		}
	}
	return batch
}

func (p *Processor) applyActivationBatch(batch []activationChange) {
	for _, c := range batch {
		c.m.Cache.IsActive = c.newActive
		if c.newActive {
			// A freshly activated mapping re-announces itself even if its
			// value matches what it last sent before deactivating.
			c.m.Mode.ResetFeedbackMemory()
		}
	}
}

// feedbackValue resolves the value a mapping's feedback path should render.
// A Controller-compartment mapping whose target is virtual has no host value
// of its own; it mirrors whichever Main-compartment mapping is currently the
// active feedback source for that virtual element.
func (p *Processor) feedbackValue(m *mapping.Mapping) (value.UnitValue, bool) {
	if m.IsVirtualTarget() {
		peer, ok := p.MainTable.FirstActiveVirtualSource(m.Target.VirtualElement, p.FeedbackGloballyEnabled)
		if !ok {
			return 0, false
		}
		return target.CurrentValue(peer.Target, p.Sink)
	}
	return target.CurrentValue(m.Target, p.Sink)
}

// feedbackChecksum folds an emission's address, value bit-pattern, and
// rendered text into the 64-bit hash stored in the unit-level dedup cache.
// Identical payloads produce identical sums, so float-equality anomalies
// cannot split a duplicate into two sends.
func feedbackChecksum(addr source.Address, v value.UnitValue, text string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(addr))
	var bits [8]byte
	binary.LittleEndian.PutUint64(bits[:], math.Float64bits(float64(v)))
	h.Write(bits[:])
	h.Write([]byte(text))
	return h.Sum64()
}

// ForceFeedbackForAddress marks addr so the next sweep's feedback for any
// mapping with that source address goes out with the take-over-source cause,
// bypassing both dedup caches. The orchestrator calls this on the unit
// adopting a source another unit released.
func (p *Processor) ForceFeedbackForAddress(addr source.Address) {
	p.takeoverAddrs[addr] = struct{}{}
}

// HasFeedbackOnAddress reports whether any currently feedback-on mapping in
// either compartment uses addr as its source address. The orchestrator uses
// this to find a takeover candidate for a released source.
func (p *Processor) HasFeedbackOnAddress(addr source.Address) bool {
	for a := range p.ControllerTable.FeedbackOnAddresses(p.FeedbackGloballyEnabled) {
		if a == addr {
			return true
		}
	}
	for a := range p.MainTable.FeedbackOnAddresses(p.FeedbackGloballyEnabled) {
		if a == addr {
			return true
		}
	}
	return false
}

// feedbackCauseFor resolves why a mapping's feedback is being produced this
// sweep: take-over-source and feedback-after-control bypass dedup, anything
// else is normal.
func (p *Processor) feedbackCauseFor(pass *passContext, m *mapping.Mapping) FeedbackCause {
	if _, ok := pass.feedbackAfterControl[m.QualifiedID()]; ok {
		return CauseFeedbackAfterControl
	}
	if _, ok := p.takeoverAddrs[m.Source.Address()]; ok {
		return CauseTakeOverSource
	}
	return CauseNormal
}

// runFeedback computes and dedups feedback for every effectively-on mapping
// across both compartments. Normal feedback passes two caches: the mapping's
// own previous-value cache, then the unit-level address-keyed checksum cache.
// Feedback caused by send-feedback-after-control or source takeover skips
// both and is always sent.
func (p *Processor) runFeedback(pass *passContext) []FeedbackEmission {
	var out []FeedbackEmission
	n := 0
	for _, tbl := range [2]*mapping.Table{p.ControllerTable, p.MainTable} {
		for _, m := range tbl.InOrder() {
			if n >= MaxFeedbackEmitsPerSweep {
				p.log.Warn("feedback emit cap reached", "cap", MaxFeedbackEmitsPerSweep)
				return out
			}
			if !m.FeedbackIsEffectivelyOn(p.FeedbackGloballyEnabled) {
				continue
			}
			v, ok := p.feedbackValue(m)
			if !ok {
				continue
			}
			cause := p.feedbackCauseFor(pass, m)
			text, hasText := m.Mode.FormatFeedback(v)
			addr := m.Source.Address()
			sum := feedbackChecksum(addr, v, text)
			if cause == CauseNormal {
				if !m.Mode.ShouldEmitFeedback(v) {
					p.SuppressedDuplicateFeedback++
					continue
				}
				if prev, had := p.dedup[addr]; had && prev == sum {
					p.SuppressedDuplicateFeedback++
					continue
				}
			} else {
				m.Mode.ShouldEmitFeedback(v)
			}
			p.dedup[addr] = sum
			n++
			emission := FeedbackEmission{
				Compartment: m.Compartment,
				MappingID:   m.ID,
				Address:     addr,
				Value:       v,
				Text:        text,
				HasText:     hasText,
				Cause:       cause,
			}
			m.Cache.LastEmittedFeedbackAddress = addr
			m.Cache.HasLastEmittedFeedbackAddress = true
			out = append(out, emission)
		}
	}
	return out
}

// computeUnusedSourceFlush diffs this sweep's feedback-on address set
// against the previous sweep's, returning addresses that dropped out of use
// so the caller can send a one-time "go dark" notification to the physical
// source. Off values are ordered after all normal feedback for the same
// change, and after IoUpdated during mass deactivation, so they never
// overwrite fresh values for the same address.
func (p *Processor) computeUnusedSourceFlush() []source.Address {
	current := make(map[source.Address]struct{})
	for addr := range p.ControllerTable.FeedbackOnAddresses(p.FeedbackGloballyEnabled) {
		current[addr] = struct{}{}
	}
	for addr := range p.MainTable.FeedbackOnAddresses(p.FeedbackGloballyEnabled) {
		current[addr] = struct{}{}
	}

	var unused []source.Address
	n := 0
	for addr := range p.prevFeedbackOnAddresses {
		if _, stillUsed := current[addr]; stillUsed {
			continue
		}
		if n >= MaxUnusedSourceFlushes {
			break
		}
		n++
		unused = append(unused, addr)
		delete(p.dedup, addr)
	}
	p.prevFeedbackOnAddresses = current
	return unused
}
