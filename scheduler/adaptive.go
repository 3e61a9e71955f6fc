package scheduler

import (
	"fmt"
	"math"

	"github.com/sarchlab/cosim/cosimerr"
	"github.com/sarchlab/cosim/cosimlog"
	"github.com/sarchlab/cosim/graph"
	"github.com/sarchlab/cosim/simtime"
	"github.com/sarchlab/cosim/slave"
)

// AdaptiveParams holds the PI controller configuration for an
// AdaptiveScheduler. Every field is required; NewAdaptiveScheduler
// validates MinStepSize > 0 and MaxStepSize >= StepSize >= MinStepSize.
type AdaptiveParams struct {
	SafetyFactor  float64
	StepSize      simtime.Duration
	MinStepSize   simtime.Duration
	MaxStepSize   simtime.Duration
	MinChangeRate float64
	MaxChangeRate float64
	AbsTolerance  float64
	RelTolerance  float64
	PGain         float64
	IGain         float64
}

// AdaptiveScheduler is the energy-coupled scheduler: identical to
// FixedStepScheduler except the step size is a mutable field recomputed
// after each tick from a single power-bond residual via a PI controller.
type AdaptiveScheduler struct {
	base

	params AdaptiveParams
	bond   *PowerBond

	stepSize  simtime.Duration
	epsPrev   float64
	startTime simtime.TimePoint
	stopTime  *simtime.TimePoint
}

// NewAdaptiveScheduler builds an adaptive scheduler over the single power
// bond. Panics if the parameters violate MinStepSize > 0 or
// MaxStepSize >= StepSize >= MinStepSize — these are construction-time
// preconditions on caller-supplied configuration, not runtime faults.
func NewAdaptiveScheduler(params AdaptiveParams, bond *PowerBond, workers int) *AdaptiveScheduler {
	if params.MinStepSize <= 0 {
		panic("adaptive scheduler requires MinStepSize > 0")
	}
	if params.MaxStepSize < params.StepSize || params.StepSize < params.MinStepSize {
		panic("adaptive scheduler requires MaxStepSize >= StepSize >= MinStepSize")
	}
	return &AdaptiveScheduler{
		base:     newBase(workers),
		params:   params,
		bond:     bond,
		stepSize: params.StepSize,
	}
}

// SetHorizon records the start and optional stop time passed to every
// subsimulator's setup call during Initialize.
func (s *AdaptiveScheduler) SetHorizon(start simtime.TimePoint, stop *simtime.TimePoint) {
	s.startTime = start
	s.stopTime = stop
}

// StepSize returns the scheduler's current macro step.
func (s *AdaptiveScheduler) StepSize() simtime.Duration { return s.stepSize }

// MinStepSize returns the configured lower clamp on the step size.
func (s *AdaptiveScheduler) MinStepSize() simtime.Duration { return s.params.MinStepSize }

// MaxStepSize returns the configured upper clamp on the step size.
func (s *AdaptiveScheduler) MaxStepSize() simtime.Duration { return s.params.MaxStepSize }

// Initialize runs the shared fixed-point initialisation sequence.
func (s *AdaptiveScheduler) Initialize() error {
	return s.initializeFixedPoint(s.startTime, s.stopTime)
}

// DoStep advances the schedule by one macro tick at the current step size,
// then recomputes the step size from the power-bond residual before
// transferring this tick's results, per the canonical ordering: step-size
// recompute happens after the tick counter increments but before transfer.
func (s *AdaptiveScheduler) DoStep(current simtime.TimePoint) (simtime.Duration, []int, error) {
	tick := s.stepCounter + 1
	stepSizeUsed := s.stepSize

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
			delta := stepSizeUsed * simtime.Duration(t.sub.DecimationFactor())
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

	if err := s.recomputeStepSize(stepSizeUsed); err != nil {
		return 0, nil, err
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

	cosimlog.Schedule("adaptive tick complete", "tick", tick, "step_size_ns", int64(stepSizeUsed), "next_step_size_ns", int64(s.stepSize))
	return stepSizeUsed, finished, nil
}

// recomputeStepSize implements the PI controller: an energy residual and
// level are formed from the bond's power estimate at the step size just
// used, reduced to a single error ratio epsilon, and turned into a
// clamped gain that scales the step size for the next tick.
func (s *AdaptiveScheduler) recomputeStepSize(dt simtime.Duration) error {
	powerA, powerB, err := s.bond.Power(s.subs)
	if err != nil {
		return err
	}

	dtSeconds := dt.Seconds()
	residual := powerA - powerB
	level := math.Max(powerA, powerB)
	energyResidual := residual * dtSeconds
	energyLevel := level * dtSeconds

	eps := math.Abs(energyResidual) / (s.params.AbsTolerance + s.params.RelTolerance*math.Abs(energyLevel))

	if eps == 0 || s.epsPrev == 0 {
		s.epsPrev = eps
		return nil
	}

	gain := s.params.SafetyFactor *
		math.Pow(eps, -s.params.IGain-s.params.PGain) *
		math.Pow(s.epsPrev, s.params.PGain)
	gain = clampFloat(gain, s.params.MinChangeRate, s.params.MaxChangeRate)

	proposed := simtime.ToDurationNaive(gain * dtSeconds)
	s.stepSize = simtime.Clamp(proposed, s.params.MinStepSize, s.params.MaxStepSize)
	s.epsPrev = eps
	return nil
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
