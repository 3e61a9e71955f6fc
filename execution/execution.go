// Package execution owns the subsimulator and function tables, the
// observer/manipulator lists, and the wall-clock pacing loop that drives a
// scheduler from one macro step to the next.
package execution

import (
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/cosimerr"
	"github.com/sarchlab/cosim/cosimlog"
	"github.com/sarchlab/cosim/function"
	"github.com/sarchlab/cosim/graph"
	"github.com/sarchlab/cosim/observer"
	"github.com/sarchlab/cosim/scheduler"
	"github.com/sarchlab/cosim/simtime"
	"github.com/sarchlab/cosim/slave"
)

// Execution runs a scheduler to completion: it owns the subsimulator and
// function tables, dispatches manipulator/observer hooks around every tick,
// and tracks the stop flag and initialisation state. Its pacing loop is
// driven by an akita TickingComponent exactly the way the teacher's own
// driverImpl is: the tick body here runs one macro step instead of one
// accelerator cycle.
type Execution struct {
	sched  scheduler.Scheduler
	engine sim.Engine
	ticker *sim.TickingComponent

	manipulators map[string]observer.Manipulator
	observers    map[string]observer.Observer

	subsByIndex map[int]*slave.Subsimulator

	current       simtime.TimePoint
	initialized   bool
	stopRequested atomic.Bool

	runStop     simtime.TimePoint
	runStep     simtime.Duration
	runWallStep time.Duration
	runErr      error
}

// New wraps sched for execution, ticked by engine at freq through an
// embedded akita TickingComponent (the same Tick/engine.Run contract the
// teacher's api.driverImpl satisfies).
func New(sched scheduler.Scheduler, start simtime.TimePoint, engine sim.Engine, freq sim.Freq) *Execution {
	e := &Execution{
		sched:        sched,
		engine:       engine,
		manipulators: make(map[string]observer.Manipulator),
		observers:    make(map[string]observer.Observer),
		subsByIndex:  make(map[int]*slave.Subsimulator),
		current:      start,
	}
	e.ticker = sim.NewTickingComponent("Execution", engine, freq, e)
	return e
}

// AddSlave registers sub with the scheduler and notifies every manipulator
// and observer.
func (e *Execution) AddSlave(sub *slave.Subsimulator) int {
	idx := e.sched.AddSubsimulator(sub)
	e.subsByIndex[idx] = sub
	for _, m := range e.manipulators {
		m.SimulatorAdded(idx, sub.Name)
	}
	for _, o := range e.observers {
		o.SimulatorAdded(idx, sub.Name)
	}
	return idx
}

// AddFunction registers fn with the scheduler.
func (e *Execution) AddFunction(fn *function.Wrapper) int {
	return e.sched.AddFunction(fn)
}

// AddManipulator registers m under a freshly minted handle so it can later
// be detached even if the caller never kept their own reference.
func (e *Execution) AddManipulator(m observer.Manipulator) string {
	id := xid.New().String()
	e.manipulators[id] = m
	return id
}

// AddObserver registers o under a freshly minted handle.
func (e *Execution) AddObserver(o observer.Observer) string {
	id := xid.New().String()
	e.observers[id] = o
	return id
}

// RemoveManipulator detaches a previously registered manipulator.
func (e *Execution) RemoveManipulator(id string) { delete(e.manipulators, id) }

// RemoveObserver detaches a previously registered observer.
func (e *Execution) RemoveObserver(id string) { delete(e.observers, id) }

// variableConnector is implemented by every scheduler variant; kept as a
// narrow interface here rather than added to scheduler.Scheduler, since only
// the execution boundary needs causality-checked connection.
type variableConnector interface {
	ConnectVariables(kind graph.EdgeKind, source, target graph.PortRef) error
}

// ConnectVariables validates causality (a subsimulator source must be Output
// or CalculatedParameter, a subsimulator target must be Input) before
// delegating to the scheduler's graph, which separately enforces the
// at-most-one-incoming-edge and type-compatibility invariants.
func (e *Execution) ConnectVariables(kind graph.EdgeKind, source, target graph.PortRef) error {
	if source.Kind == graph.SubsimEndpoint {
		sub, ok := e.subsByIndex[source.Index]
		if !ok {
			return &cosimerr.InvalidSystemStructure{Reason: "connection source names an unregistered subsimulator"}
		}
		if v, ok := sub.Variable(source.Type, source.Reference); ok {
			if v.Causality != cosim.Output && v.Causality != cosim.CalculatedParameter {
				return &cosimerr.InvalidSystemStructure{Reason: "connection source must have Output or CalculatedParameter causality"}
			}
		}
	}
	if target.Kind == graph.SubsimEndpoint {
		sub, ok := e.subsByIndex[target.Index]
		if !ok {
			return &cosimerr.InvalidSystemStructure{Reason: "connection target names an unregistered subsimulator"}
		}
		if v, ok := sub.Variable(target.Type, target.Reference); ok && v.Causality != cosim.Input {
			return &cosimerr.InvalidSystemStructure{Reason: "connection target must have Input causality"}
		}
	}

	connector, ok := e.sched.(variableConnector)
	if !ok {
		return &cosimerr.UnsupportedFeature{Feature: "scheduler does not support graph connection"}
	}
	return connector.ConnectVariables(kind, source, target)
}

// requireNotInitialized is shared by the four typed initial-value setters: all
// fail once the scheduler has run its fixed-point initialisation, since the
// value is then no longer a start value but a live set-cache entry.
func (e *Execution) requireNotInitialized() error {
	if e.initialized {
		return &cosimerr.UnsupportedFeature{Feature: "initial values cannot be set after the execution has initialized"}
	}
	return nil
}

// SetRealInitialValue sets sub's pre-initialisation real start value.
func (e *Execution) SetRealInitialValue(sub *slave.Subsimulator, ref int, v float64) error {
	if err := e.requireNotInitialized(); err != nil {
		return err
	}
	return sub.SetRealInitialValue(ref, v)
}

// SetIntegerInitialValue sets sub's pre-initialisation integer start value.
func (e *Execution) SetIntegerInitialValue(sub *slave.Subsimulator, ref int, v int32) error {
	if err := e.requireNotInitialized(); err != nil {
		return err
	}
	return sub.SetIntegerInitialValue(ref, v)
}

// SetBooleanInitialValue sets sub's pre-initialisation boolean start value.
func (e *Execution) SetBooleanInitialValue(sub *slave.Subsimulator, ref int, v bool) error {
	if err := e.requireNotInitialized(); err != nil {
		return err
	}
	return sub.SetBooleanInitialValue(ref, v)
}

// SetStringInitialValue sets sub's pre-initialisation string start value.
func (e *Execution) SetStringInitialValue(sub *slave.Subsimulator, ref int, v string) error {
	if err := e.requireNotInitialized(); err != nil {
		return err
	}
	return sub.SetStringInitialValue(ref, v)
}

// Step lazily triggers scheduler initialisation and the simulation_initialized
// observer hook on its first call, then runs one full tick: manipulator
// step_commencing hooks, the scheduler's DoStep, per-subsimulator and
// aggregate observer completion hooks, then advances time and the step
// counter.
func (e *Execution) Step() error {
	if !e.initialized {
		if err := e.sched.Initialize(); err != nil {
			return err
		}
		e.initialized = true
		for _, o := range e.observers {
			o.SimulationInitialized(e.sched.StepCounter(), e.current)
		}
	}

	var manipErrs []error
	for _, m := range e.manipulators {
		if err := m.StepCommencing(e.current); err != nil {
			manipErrs = append(manipErrs, err)
		}
	}
	if len(manipErrs) > 0 {
		return errors.Join(manipErrs...)
	}

	stepSize, finished, err := e.sched.DoStep(e.current)
	if err != nil {
		return err
	}

	e.current = e.current.Add(stepSize)
	step := e.sched.StepCounter()

	for _, idx := range finished {
		for _, o := range e.observers {
			o.SimulatorStepComplete(idx, step, stepSize, e.current)
		}
	}
	for _, o := range e.observers {
		o.StepComplete(step, stepSize, e.current)
	}

	cosimlog.Schedule("execution step complete", "step", step, "time_ns", int64(e.current))
	return nil
}

// StopSimulation sets the cooperative stop flag, checked by SimulateUntil at
// the top of every tick; callable from any goroutine.
func (e *Execution) StopSimulation() { e.stopRequested.Store(true) }

// Tick runs one macro step, satisfying the sim.Tickable contract the
// TickingComponent embedded in New drives: madeProgress is false once the
// stop flag is set, the run's target time is reached, or Step fails (the
// error is stashed in runErr for SimulateUntil/SimulateUntilAsync to surface
// after engine.Run returns). now is unused, the same way api.driverImpl's
// own Tick ignores it: the scheduler's own nanosecond clock, not the
// engine's virtual time, is authoritative for simulation time.
func (e *Execution) Tick(now sim.VTimeInSec) (madeProgress bool) {
	if e.stopRequested.Load() {
		return false
	}
	if simtime.NearStop(e.current, e.runStop, e.runStep) {
		return false
	}

	start := time.Now()
	if err := e.Step(); err != nil {
		e.runErr = err
		return false
	}
	if e.runWallStep > 0 {
		if elapsed := time.Since(start); elapsed < e.runWallStep {
			time.Sleep(e.runWallStep - elapsed)
		}
	}
	return true
}

// SimulateUntil steps until current reaches stop (within the boundary
// tolerance) or StopSimulation is called, returning true if it reached stop
// and false if it was stopped early. It drives the run through the engine:
// schedule this execution's tick event once, then let engine.Run fan out
// the self-rescheduling ticks, the same pattern the teacher's test mains use
// for a driver or a tile's TickingComponent.
func (e *Execution) SimulateUntil(stop simtime.TimePoint, approxStepSize simtime.Duration) (bool, error) {
	e.runStop = stop
	e.runStep = approxStepSize
	e.runWallStep = 0
	e.runErr = nil

	e.engine.Schedule(sim.MakeTickEvent(e.ticker, 0))
	if err := e.engine.Run(); err != nil {
		return false, err
	}

	if e.runErr != nil {
		return false, e.runErr
	}
	return !e.stopRequested.Load(), nil
}

// SimulateUntilAsync paces SimulateUntil against the wall clock: each Tick
// sleeps so that, on average, one simulated approxStepSize elapses for every
// approxStepSize/realTimeFactor of wall-clock time. A factor <= 0 disables
// pacing (equivalent to SimulateUntil).
func (e *Execution) SimulateUntilAsync(stop simtime.TimePoint, approxStepSize simtime.Duration, realTimeFactor float64) (bool, error) {
	if realTimeFactor <= 0 {
		return e.SimulateUntil(stop, approxStepSize)
	}

	e.runStop = stop
	e.runStep = approxStepSize
	e.runWallStep = time.Duration(float64(approxStepSize.AsStd()) / realTimeFactor)
	e.runErr = nil

	e.engine.Schedule(sim.MakeTickEvent(e.ticker, 0))
	if err := e.engine.Run(); err != nil {
		return false, err
	}

	if e.runErr != nil {
		return false, e.runErr
	}
	return !e.stopRequested.Load(), nil
}

// GetModifiedVariables returns the sorted union, across every registered
// subsimulator, of variable references that currently carry an installed
// modifier.
func (e *Execution) GetModifiedVariables() map[int][]slave.VariableRef {
	out := make(map[int][]slave.VariableRef)
	indices := make([]int, 0, len(e.subsByIndex))
	for idx := range e.subsByIndex {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		if refs := e.subsByIndex[idx].ModifiedVariables(); len(refs) > 0 {
			out[idx] = refs
		}
	}
	return out
}

// CurrentTime returns the execution's current simulation time.
func (e *Execution) CurrentTime() simtime.TimePoint { return e.current }
