// Package unit composes the real-time processor, main processor, and
// control-mode state machine into one addressable routing unit,
// and groups units sharing a parameter array into an Instance.
package unit

import (
	"fmt"

	"github.com/jdginn/controlcore/control"
	"github.com/jdginn/controlcore/logging"
	"github.com/jdginn/controlcore/mainproc"
	"github.com/jdginn/controlcore/mapping"
	"github.com/jdginn/controlcore/rtproc"
	"github.com/jdginn/controlcore/source"
	"github.com/jdginn/controlcore/target"
	"github.com/jdginn/controlcore/unitmodel"
)

// Unit is one complete control-routing pipeline: a real-time classifier
// feeding a main processor, gated by a control-mode state machine.
type Unit struct {
	Name     string
	Proc     *mainproc.Processor
	RT       *rtproc.Processor
	Control  *control.Manager
	Settings unitmodel.UnitSettings
}

// New builds a Unit bound to sink, with the given runtime settings.
func New(name string, sink target.HostSink, settings unitmodel.UnitSettings) *Unit {
	u := &Unit{
		Name:     name,
		Proc:     mainproc.New(sink),
		RT:       rtproc.New(1024, 256),
		Control:  control.NewManager(),
		Settings: settings,
	}
	u.Control.SetControlGloballyEnabled(settings.ControlGloballyEnabled)
	u.Control.SetFeedbackGloballyEnabled(settings.FeedbackGloballyEnabled)
	return u
}

// ApplyBulkUpdate replaces one compartment's entire mapping set (resetting
// mode state for every mapping in the compartment) and rebuilds the
// real-time classifier snapshot.
func (u *Unit) ApplyBulkUpdate(update unitmodel.UpdateAllMappings) error {
	tbl := mapping.NewTable()
	for _, snap := range update.Mappings {
		m, err := snap.Compile()
		if err != nil {
			return fmt.Errorf("unit %s: compiling mapping %d: %w", u.Name, snap.ID, err)
		}
		tbl.Upsert(m)
	}
	tbl.RebuildIndexes()

	switch update.Compartment {
	case mapping.Controller:
		u.Proc.ControllerTable = tbl
	case mapping.Main:
		u.Proc.MainTable = tbl
	}
	u.Proc.RebuildActivationGraph()
	u.rebuildClassifierSnapshot()
	return nil
}

// ApplySingleMapping replaces or inserts one mapping. The replacement is
// freshly compiled, so its mode state (toggle and takeover memory) starts
// empty whether or not the source or target descriptor changed; the replaced
// mapping's mode state is not carried over.
func (u *Unit) ApplySingleMapping(update unitmodel.UpdateSingleMapping) error {
	tbl := u.tableFor(update.Compartment)
	next, err := update.Mapping.Compile()
	if err != nil {
		return fmt.Errorf("unit %s: compiling mapping %d: %w", u.Name, update.Mapping.ID, err)
	}
	if prev, ok := tbl.Get(next.ID); ok {
		if prev.Source != next.Source || prev.Target != next.Target {
			next.ResetModeState()
		}
	}
	u.Proc.UpsertMapping(next)
	u.rebuildClassifierSnapshot()
	return nil
}

func (u *Unit) tableFor(c mapping.CompartmentKind) *mapping.Table {
	if c == mapping.Controller {
		return u.Proc.ControllerTable
	}
	return u.Proc.MainTable
}

// rebuildClassifierSnapshot refreshes the real-time processor's read-only
// snapshot from the current mapping tables. Called after any structural
// mapping change; never on the audio thread itself.
func (u *Unit) rebuildClassifierSnapshot() {
	var entries []rtproc.ClassEntry
	for _, m := range u.Proc.ControllerTable.InOrder() {
		entries = append(entries, rtproc.ClassEntry{Source: m.Source, MappingID: m.ID, Compartment: mapping.Controller})
	}
	for _, m := range u.Proc.MainTable.InOrder() {
		entries = append(entries, rtproc.ClassEntry{Source: m.Source, MappingID: m.ID, Compartment: mapping.Main})
	}
	u.RT.SwapSnapshot(&rtproc.Snapshot{Entries: entries})
}

// Sweep classifies raw is pushed through the real-time processor (mirroring
// what the audio callback does for each incoming device message), drains
// whatever it routed, and runs one main-processor sweep over the result.
// Global control/feedback enable state is applied before running so a
// Disabled or learning unit correctly drops control input.
func (u *Unit) Sweep(raw []source.Event) mainproc.SweepResult {
	u.Proc.ControlGloballyEnabled = u.Control.ControlGloballyEnabled()
	u.Proc.FeedbackGloballyEnabled = u.Control.FeedbackGloballyEnabled()

	if u.Control.IsLearning() {
		logging.Get(logging.MAINPROC).Debug("unit is learning, control input suppressed", "unit", u.Name)
		return u.Proc.Sweep(nil)
	}

	for _, e := range raw {
		u.RT.Process(e)
	}

	var events []mainproc.ControlEvent
drain:
	for {
		select {
		case routed := <-u.RT.Outbound():
			for _, cand := range routed.Candidate {
				events = append(events, mainproc.ControlEvent{
					Compartment: cand.Compartment,
					MappingID:   cand.MappingID,
					Event:       routed.Event,
				})
			}
		default:
			break drain
		}
	}

	return u.Proc.Sweep(events)
}
