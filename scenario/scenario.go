// Package scenario implements the timed variable-action event list that
// drives a simulation run's inputs and output overrides independent of any
// one subsimulator's own logic.
package scenario

import (
	"sort"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/cosimerr"
	"github.com/sarchlab/cosim/iocache"
	"github.com/sarchlab/cosim/observer"
	"github.com/sarchlab/cosim/simtime"
)

// VariableAction names one (subsimulator, type, reference) target and
// whether the modifier installs on the set-cache (IsInput) or the get-cache.
type VariableAction struct {
	Sub      observer.Subsimulator
	SetCache SetCache
	Type     cosim.Type
	Ref      int
	IsInput  bool
	Modifier iocache.Modifier
}

// SetCache is the minimal capability an input-side variable-action needs:
// satisfied by *iocache.SetCache.
type SetCache interface {
	SetModifier(ref int, fn iocache.Modifier) error
}

// Event pairs an activation time with the action it installs.
type Event struct {
	Time   simtime.TimePoint
	Action VariableAction
}

// Manager holds a timestamped event list and an end time. On each
// StepCommencing(t) it installs the modifier for every event whose time has
// arrived and removes it from the pending list; once t reaches End, every
// still-active modifier it installed is uninstalled.
type Manager struct {
	pending []Event
	active  []VariableAction
	End     simtime.TimePoint

	ended bool
}

// NewManager builds a scenario manager over events, sorted by activation
// time, ending at end.
func NewManager(events []Event, end simtime.TimePoint) *Manager {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time < sorted[j].Time })
	return &Manager{pending: sorted, End: end}
}

// SimulatorAdded is a no-op for the scenario manager.
func (m *Manager) SimulatorAdded(index int, name string) {}

// SimulatorRemoved is a no-op for the scenario manager.
func (m *Manager) SimulatorRemoved(index int) {}

// StepCommencing activates every event due by current, then, once current
// has reached End, uninstalls every modifier it has ever installed. A
// modifier rejected because its reference was never exposed is collected as
// a NonfatalBadValue rather than discarded; StepCommencing still attempts
// every remaining event before returning the merged report.
func (m *Manager) StepCommencing(current simtime.TimePoint) error {
	var col cosimerr.Collector

	i := 0
	for i < len(m.pending) && m.pending[i].Time <= current {
		m.activate(m.pending[i].Action, &col)
		i++
	}
	m.pending = m.pending[i:]

	if !m.ended && current >= m.End {
		m.ended = true
		m.deactivateAll(&col)
	}

	return col.Err()
}

func (m *Manager) activate(a VariableAction, col *cosimerr.Collector) {
	var err error
	if a.IsInput {
		err = a.SetCache.SetModifier(a.Ref, a.Modifier)
	} else {
		err = a.Sub.GetCache(a.Type).SetModifier(a.Ref, a.Modifier)
	}
	if err != nil {
		col.Add(&cosimerr.NonfatalBadValue{Subsimulator: "scenario", Reference: a.Ref, Err: err})
		return
	}
	m.active = append(m.active, a)
}

func (m *Manager) deactivateAll(col *cosimerr.Collector) {
	for _, a := range m.active {
		var err error
		if a.IsInput {
			err = a.SetCache.SetModifier(a.Ref, nil)
		} else {
			err = a.Sub.GetCache(a.Type).SetModifier(a.Ref, nil)
		}
		if err != nil {
			col.Add(&cosimerr.NonfatalBadValue{Subsimulator: "scenario", Reference: a.Ref, Err: err})
		}
	}
	m.active = nil
}
