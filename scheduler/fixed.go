package scheduler

import (
	"fmt"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/cosimerr"
	"github.com/sarchlab/cosim/cosimlog"
	"github.com/sarchlab/cosim/graph"
	"github.com/sarchlab/cosim/simtime"
	"github.com/sarchlab/cosim/slave"
)

var transferableTypes = []cosim.Type{cosim.Real, cosim.Integer, cosim.Boolean, cosim.String}

// FixedStepScheduler advances every subsimulator at an integer multiple of
// a constant base step. Per-subsimulator decimation factors default to 1
// and may be overridden explicitly or derived from a step-size hint.
type FixedStepScheduler struct {
	base

	baseStep  simtime.Duration
	startTime simtime.TimePoint
	stopTime  *simtime.TimePoint
}

// NewFixedStepScheduler builds a fixed-step scheduler. workers < 0 selects
// the default pool size (hardware parallelism - 1); workers == 0 runs
// synchronously.
func NewFixedStepScheduler(baseStep simtime.Duration, workers int) *FixedStepScheduler {
	if baseStep <= 0 {
		panic("fixed-step scheduler requires a positive base step size")
	}
	return &FixedStepScheduler{base: newBase(workers), baseStep: baseStep}
}

// SetHorizon records the start and optional stop time passed to every
// subsimulator's setup call during Initialize.
func (s *FixedStepScheduler) SetHorizon(start simtime.TimePoint, stop *simtime.TimePoint) {
	s.startTime = start
	s.stopTime = stop
}

// BaseStepSize returns the constant macro step.
func (s *FixedStepScheduler) BaseStepSize() simtime.Duration { return s.baseStep }

// DecimationFactorForHint derives a decimation factor from a step-size
// hint: df = max(1, hint/base_step_size). If hint is not a whole multiple
// of the base step, the nearest multiple <= hint (but never less than one
// base step) is used and warn is true. A hint <= 0 yields 1 without a warning.
func (s *FixedStepScheduler) DecimationFactorForHint(hint simtime.Duration) (df int, warn bool) {
	if hint <= 0 {
		return 1, false
	}
	df = int(hint / s.baseStep)
	if df < 1 {
		df = 1
	}
	warn = simtime.Duration(df)*s.baseStep != hint
	if warn {
		cosimlog.Schedule("step-size hint is not a whole multiple of the base step",
			"hint_ns", int64(hint), "base_step_ns", int64(s.baseStep), "decimation_factor", df)
	}
	return df, warn
}

// Initialize runs the shared fixed-point initialisation sequence.
func (s *FixedStepScheduler) Initialize() error {
	return s.initializeFixedPoint(s.startTime, s.stopTime)
}

// DoStep advances the schedule by one base tick. tick is the 1-indexed
// count of ticks completed once this call returns, used consistently for
// the do_step selection, the subsim transfer lcm rule, and the function
// decimation-divides check.
func (s *FixedStepScheduler) DoStep(current simtime.TimePoint) (simtime.Duration, []int, error) {
	tick := s.stepCounter + 1

	type stepTask struct {
		sub *slave.Subsimulator
		idx int
	}
	var tasks []stepTask
	for i, sub := range s.subs {
		if tick%sub.DecimationFactor() == 0 {
			tasks = append(tasks, stepTask{sub: sub, idx: i})
		}
	}

	jobs := make([]func() error, len(tasks))
	for i, t := range tasks {
		t := t
		jobs[i] = func() error {
			delta := s.baseStep * simtime.Duration(t.sub.DecimationFactor())
			result, err := t.sub.DoStep(current, delta)
			if err != nil {
				return err
			}
			if result != slave.Complete {
				return &cosimerr.ModelError{Subsimulator: t.sub.Name, Err: fmt.Errorf("do_step returned %s", result)}
			}
			return nil
		}
	}

	var errs []error
	s.pool.run(jobs, func(err error) { errs = append(errs, err) })

	s.stepCounter = tick

	if len(errs) > 0 {
		return 0, nil, &cosimerr.SimulationError{Errs: errs}
	}

	finished := make([]int, len(tasks))
	for i, t := range tasks {
		finished[i] = t.idx
	}

	for _, idx := range finished {
		sub := s.subs[idx]
		for _, typ := range transferableTypes {
			for _, ref := range sub.GetCache(typ).ExposedRefs() {
				source := graph.PortRef{Kind: graph.SubsimEndpoint, Index: idx, Type: typ, Reference: ref}
				if err := s.transferEdges(source, tick); err != nil {
					return 0, nil, err
				}
			}
		}
	}

	for _, fn := range s.fns {
		if tick%fn.DecimationFactor() != 0 {
			continue
		}
		if err := fn.Calculate(); err != nil {
			return 0, nil, &cosimerr.ModelError{Subsimulator: fmt.Sprintf("function[%d]", fn.Index), Err: err}
		}
		for _, e := range s.g.OutgoingEdgesFromFunction(fn.Index) {
			if err := s.copyEdge(e); err != nil {
				return 0, nil, err
			}
		}
	}

	cosimlog.Schedule("tick complete", "tick", tick, "finished", finished)
	return s.baseStep, finished, nil
}
