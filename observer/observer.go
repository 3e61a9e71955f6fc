// Package observer defines the execution's before-step and after-step hook
// capability sets, plus the override manipulator built directly on top of
// them.
package observer

import (
	"sync"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/cosimerr"
	"github.com/sarchlab/cosim/iocache"
	"github.com/sarchlab/cosim/simtime"
)

// Manipulator is invoked as subsimulators are registered and removed, and
// once per tick before the worker pool is dispatched. StepCommencing returns
// a merged *cosimerr.NonfatalBadValue report (via errors.Join, nil if none)
// when one of its actions targets a reference that was never exposed.
//
//go:generate mockgen -write_package_comment=false -package=observer_test -destination=mock_manipulator_test.go github.com/sarchlab/cosim/observer Manipulator
type Manipulator interface {
	SimulatorAdded(index int, name string)
	SimulatorRemoved(index int)
	StepCommencing(current simtime.TimePoint) error
}

// Observer additionally sees the execution's initialisation and every
// completed step, strictly after the worker-pool join and all transfers.
//
//go:generate mockgen -write_package_comment=false -package=observer_test -destination=mock_observer_test.go github.com/sarchlab/cosim/observer Observer
type Observer interface {
	Manipulator

	SimulationInitialized(step int, time simtime.TimePoint)
	SimulatorStepComplete(index int, step int, stepSize simtime.Duration, time simtime.TimePoint)
	StepComplete(step int, stepSize simtime.Duration, time simtime.TimePoint)
}

// Cache is the minimal capability the override manipulator needs from a
// subsimulator's get-cache to install or clear an output modifier. It is
// satisfied by *iocache.GetCache.
type Cache interface {
	SetModifier(ref int, fn iocache.Modifier) error
}

type overrideAction struct {
	cache Cache
	ref   int
	value iocache.Modifier // nil clears the modifier
}

// OverrideManipulator stores a mutex-protected list of pending override or
// reset actions and applies them all at the next StepCommencing, installing
// constant-returning closures for overrides and clearing modifiers for
// resets.
type OverrideManipulator struct {
	mu      sync.Mutex
	pending []overrideAction
}

// NewOverrideManipulator returns an empty manipulator.
func NewOverrideManipulator() *OverrideManipulator {
	return &OverrideManipulator{}
}

// Constant builds a modifier that ignores the original value and dt and
// always reports v, the building block for every override_* call.
func Constant(v cosim.Value) iocache.Modifier {
	return func(cosim.Value, simtime.Duration) cosim.Value { return v }
}

// Override schedules cache's ref to report value constantly starting at the
// next StepCommencing, regardless of type: the caller supplies the already
// type-tagged cosim.Value via modifier.
func (m *OverrideManipulator) Override(cache Cache, ref int, modifier iocache.Modifier) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, overrideAction{cache: cache, ref: ref, value: modifier})
}

// Reset schedules cache's ref to drop any installed modifier at the next
// StepCommencing.
func (m *OverrideManipulator) Reset(cache Cache, ref int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, overrideAction{cache: cache, ref: ref, value: nil})
}

// SimulatorAdded is a no-op for the override manipulator.
func (m *OverrideManipulator) SimulatorAdded(index int, name string) {}

// SimulatorRemoved is a no-op for the override manipulator.
func (m *OverrideManipulator) SimulatorRemoved(index int) {}

// StepCommencing drains and applies every pending override/reset action,
// collecting any rejected write (a ref that was never exposed) into a merged
// NonfatalBadValue report rather than silently dropping it.
func (m *OverrideManipulator) StepCommencing(current simtime.TimePoint) error {
	m.mu.Lock()
	actions := m.pending
	m.pending = nil
	m.mu.Unlock()

	var col cosimerr.Collector
	for _, a := range actions {
		if err := a.cache.SetModifier(a.ref, a.value); err != nil {
			col.Add(&cosimerr.NonfatalBadValue{Subsimulator: "override-manipulator", Reference: a.ref, Err: err})
		}
	}
	return col.Err()
}
