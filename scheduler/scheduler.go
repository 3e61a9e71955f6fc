// Package scheduler implements the fixed-step and adaptive (energy-coupled)
// co-simulation schedulers: multi-rate step dispatch through a worker pool,
// decimation-aware variable transfer, and fixed-point initialisation.
package scheduler

import (
	"fmt"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/cosimerr"
	"github.com/sarchlab/cosim/cosimlog"
	"github.com/sarchlab/cosim/function"
	"github.com/sarchlab/cosim/graph"
	"github.com/sarchlab/cosim/simtime"
	"github.com/sarchlab/cosim/slave"
)

// Scheduler is the capability set the execution runner drives once per
// macro step.
type Scheduler interface {
	AddSubsimulator(sub *slave.Subsimulator) int
	AddFunction(fn *function.Wrapper) int
	Graph() *graph.Graph

	Initialize() error
	DoStep(current simtime.TimePoint) (simtime.Duration, []int, error)

	StepCounter() int
}

// base holds the state and transfer machinery shared by the fixed-step and
// adaptive schedulers.
type base struct {
	subs []*slave.Subsimulator
	fns  []*function.Wrapper
	g    *graph.Graph
	pool *workerPool

	stepCounter int
}

func newBase(workers int) base {
	return base{
		g:    graph.New(),
		pool: newWorkerPool(workers),
	}
}

// AddSubsimulator registers sub and returns its index.
func (b *base) AddSubsimulator(sub *slave.Subsimulator) int {
	b.subs = append(b.subs, sub)
	return sub.Index
}

// AddFunction registers fn and returns its index.
func (b *base) AddFunction(fn *function.Wrapper) int {
	b.fns = append(b.fns, fn)
	return fn.Index
}

// Graph returns the connection graph.
func (b *base) Graph() *graph.Graph { return b.g }

// StepCounter returns the number of completed ticks.
func (b *base) StepCounter() int { return b.stepCounter }

func (b *base) decimationFactorOf(p graph.PortRef) int {
	if p.Kind == graph.FunctionEndpoint {
		return b.fns[p.Index].DecimationFactor()
	}
	return b.subs[p.Index].DecimationFactor()
}

// recomputeFunctionDecimationFactors recomputes every function's
// decimation factor from its current outgoing function->subsim edges. It
// must run whenever a subsimulator's decimation factor could have changed
// the lcm, and whenever a new outgoing edge is added.
func (b *base) recomputeFunctionDecimationFactors() {
	for _, fn := range b.fns {
		df := graph.FunctionDecimationFactor(b.g, fn.Index, func(i int) int {
			return b.subs[i].DecimationFactor()
		})
		fn.SetDecimationFactor(df)
	}
}

// ConnectVariables adds an edge to the graph, exposes the source for
// getting and the target for setting (per the connection-graph contract:
// connect_variables always exposes both endpoints it touches), and
// recomputes function decimation factors, since a new function->subsim
// edge may change one.
func (b *base) ConnectVariables(kind graph.EdgeKind, source, target graph.PortRef) error {
	_, err := b.g.Connect(kind, source, target)
	if err != nil {
		return err
	}

	if source.Kind == graph.SubsimEndpoint {
		if err := b.subs[source.Index].ExposeForGetting(source.Type, source.Reference); err != nil {
			return err
		}
	}
	if target.Kind == graph.SubsimEndpoint {
		start := cosim.Zero(target.Type)
		if v, ok := b.subs[target.Index].Variable(target.Type, target.Reference); ok && v.Start != nil {
			start = *v.Start
		}
		if err := b.subs[target.Index].ExposeForSetting(target.Type, target.Reference, start); err != nil {
			return err
		}
	}

	b.recomputeFunctionDecimationFactors()
	return nil
}

// transferEdges copies values across every outgoing edge of source whose
// lcm-gated timing fires at tick.
func (b *base) transferEdges(source graph.PortRef, tick int) error {
	sourceDF := b.decimationFactorOf(source)
	for _, e := range b.g.OutgoingEdges(source) {
		targetDF := b.decimationFactorOf(e.Target)
		if !graph.ShouldTransfer(tick, sourceDF, targetDF) {
			continue
		}
		if err := b.copyEdge(e); err != nil {
			return err
		}
	}
	return nil
}

// transferEdgesUnconditional copies values across every outgoing edge of
// source regardless of decimation timing, used during fixed-point
// initialisation where every iteration propagates fully.
func (b *base) transferEdgesUnconditional(source graph.PortRef) error {
	for _, e := range b.g.OutgoingEdges(source) {
		if err := b.copyEdge(e); err != nil {
			return err
		}
	}
	return nil
}

func (b *base) copyEdge(e graph.Edge) error {
	v, err := b.readPort(e.Source)
	if err != nil {
		return err
	}
	return b.writePort(e.Target, v)
}

func (b *base) readPort(p graph.PortRef) (cosim.Value, error) {
	if p.Kind == graph.SubsimEndpoint {
		return b.subs[p.Index].GetCache(p.Type).Get(p.Reference)
	}
	fn := b.fns[p.Index].Function()
	switch p.Type {
	case cosim.Real:
		v, err := fn.GetReal(p.IO)
		return cosim.NewReal(v), err
	case cosim.Integer:
		v, err := fn.GetInteger(p.IO)
		return cosim.NewInteger(v), err
	case cosim.Boolean:
		v, err := fn.GetBoolean(p.IO)
		return cosim.NewBoolean(v), err
	case cosim.String:
		v, err := fn.GetString(p.IO)
		return cosim.NewString(v), err
	default:
		return cosim.Value{}, &cosimerr.UnsupportedFeature{Feature: fmt.Sprintf("type %s is not transferable", p.Type)}
	}
}

func (b *base) writePort(p graph.PortRef, v cosim.Value) error {
	if p.Kind == graph.SubsimEndpoint {
		return b.subs[p.Index].SetCache(p.Type).SetValue(p.Reference, v)
	}
	fn := b.fns[p.Index].Function()
	switch p.Type {
	case cosim.Real:
		real, _ := v.Real()
		return fn.SetReal(p.IO, real)
	case cosim.Integer:
		integer, _ := v.Integer()
		return fn.SetInteger(p.IO, integer)
	case cosim.Boolean:
		boolean, _ := v.Boolean()
		return fn.SetBoolean(p.IO, boolean)
	case cosim.String:
		str, _ := v.StringValue()
		return fn.SetString(p.IO, str)
	default:
		return &cosimerr.UnsupportedFeature{Feature: fmt.Sprintf("type %s is not transferable", p.Type)}
	}
}

// initializeFixedPoint runs the shared initialisation sequence: setup every
// subsimulator, then N = |subsimulators| + |functions| fixed-point
// iterations of do_iteration + unconditional transfer + function calculate,
// then start_simulation on every subsimulator.
func (b *base) initializeFixedPoint(start simtime.TimePoint, stop *simtime.TimePoint) error {
	if err := b.runAll(func(sub *slave.Subsimulator) error {
		return sub.Setup(start, stop, nil)
	}); err != nil {
		return err
	}

	n := len(b.subs) + len(b.fns)
	for iter := 0; iter < n; iter++ {
		if err := b.runAll(func(sub *slave.Subsimulator) error {
			return sub.DoIteration()
		}); err != nil {
			return err
		}

		if err := b.transferAllSubsimOutputs(); err != nil {
			return err
		}

		for _, fn := range b.fns {
			if err := fn.Calculate(); err != nil {
				return &cosimerr.ModelError{Subsimulator: fmt.Sprintf("function[%d]", fn.Index), Err: err}
			}
		}
		if err := b.transferAllFunctionOutputs(); err != nil {
			return err
		}

		cosimlog.Trace("fixed-point iteration complete", "iteration", iter)
	}

	return b.runAll(func(sub *slave.Subsimulator) error {
		return sub.StartSimulation()
	})
}

func (b *base) transferAllSubsimOutputs() error {
	for i, sub := range b.subs {
		for typ := cosim.Real; typ <= cosim.String; typ++ {
			for _, ref := range sub.GetCache(typ).ExposedRefs() {
				source := graph.PortRef{Kind: graph.SubsimEndpoint, Index: i, Type: typ, Reference: ref}
				if err := b.transferEdgesUnconditional(source); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (b *base) transferAllFunctionOutputs() error {
	for _, fn := range b.fns {
		for _, e := range b.g.OutgoingEdgesFromFunction(fn.Index) {
			if err := b.copyEdge(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// runAll submits fn for every subsimulator through the pool and joins,
// aggregating any failures into a SimulationError.
func (b *base) runAll(fn func(sub *slave.Subsimulator) error) error {
	tasks := make([]func() error, len(b.subs))
	for i, sub := range b.subs {
		sub := sub
		tasks[i] = func() error { return fn(sub) }
	}

	var errs []error
	b.pool.run(tasks, func(err error) { errs = append(errs, err) })
	if len(errs) > 0 {
		return &cosimerr.SimulationError{Errs: errs}
	}
	return nil
}
