package slave

import (
	"fmt"
	"sort"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/cosimerr"
	"github.com/sarchlab/cosim/iocache"
	"github.com/sarchlab/cosim/simtime"
)

func typeIndex(t cosim.Type) (int, error) {
	switch t {
	case cosim.Real, cosim.Integer, cosim.Boolean, cosim.String:
		return int(t), nil
	default:
		return 0, &cosimerr.UnsupportedFeature{Feature: fmt.Sprintf("type %s is not transferable", t)}
	}
}

type portKey struct {
	typ cosim.Type
	ref int
}

// Subsimulator adapts one opaque Slave into the scheduler's view: lifecycle
// state machine, exposed-variable registry, and the four get/set I/O caches
// per type. It is created when added to an execution and exclusively owned
// by it.
type Subsimulator struct {
	Index int
	Name  string

	slave Slave
	state State

	decimationFactor int

	exposedForGetting map[portKey]struct{}
	exposedForSetting map[portKey]struct{}

	getCaches [4]*iocache.GetCache
	setCaches [4]*iocache.SetCache

	variables map[portKey]cosim.VariableDescriptor
}

// NewSubsimulator wraps slave for use by the scheduler/execution. decimation
// must be >= 1.
func NewSubsimulator(index int, name string, s Slave, decimation int) *Subsimulator {
	if decimation < 1 {
		decimation = 1
	}

	sub := &Subsimulator{
		Index:             index,
		Name:              name,
		slave:             s,
		state:             Created,
		decimationFactor:  decimation,
		exposedForGetting: make(map[portKey]struct{}),
		exposedForSetting: make(map[portKey]struct{}),
		variables:         make(map[portKey]cosim.VariableDescriptor),
	}
	for i := range sub.getCaches {
		sub.getCaches[i] = iocache.NewGetCache(cosim.Type(i))
		sub.setCaches[i] = iocache.NewSetCache(cosim.Type(i))
	}

	for _, v := range s.ModelDescription().Variables {
		sub.variables[portKey{v.Type, v.Reference}] = v
	}

	return sub
}

// State returns the current lifecycle state.
func (s *Subsimulator) State() State { return s.state }

// DecimationFactor returns the subsimulator's integer ratio of its step to
// the base step.
func (s *Subsimulator) DecimationFactor() int { return s.decimationFactor }

// SetDecimationFactor overrides the decimation factor, e.g. derived from a
// step-size hint by the scheduler.
func (s *Subsimulator) SetDecimationFactor(df int) {
	if df < 1 {
		df = 1
	}
	s.decimationFactor = df
}

// Variable looks up the descriptor for (typ, ref).
func (s *Subsimulator) Variable(typ cosim.Type, ref int) (cosim.VariableDescriptor, bool) {
	v, ok := s.variables[portKey{typ, ref}]
	return v, ok
}

// GetCache returns the get-cache for typ.
func (s *Subsimulator) GetCache(typ cosim.Type) *iocache.GetCache {
	idx, err := typeIndex(typ)
	if err != nil {
		return nil
	}
	return s.getCaches[idx]
}

// SetCache returns the set-cache for typ.
func (s *Subsimulator) SetCache(typ cosim.Type) *iocache.SetCache {
	idx, err := typeIndex(typ)
	if err != nil {
		return nil
	}
	return s.setCaches[idx]
}

// ExposeForGetting registers (typ, ref) in the exposed-for-getting set and
// idempotently exposes it in the corresponding get-cache.
func (s *Subsimulator) ExposeForGetting(typ cosim.Type, ref int) error {
	idx, err := typeIndex(typ)
	if err != nil {
		return err
	}
	s.exposedForGetting[portKey{typ, ref}] = struct{}{}
	s.getCaches[idx].Expose(ref)
	return nil
}

// ExposeForSetting registers (typ, ref) in the exposed-for-setting set and
// idempotently exposes it in the corresponding set-cache, seeded with start.
func (s *Subsimulator) ExposeForSetting(typ cosim.Type, ref int, start cosim.Value) error {
	idx, err := typeIndex(typ)
	if err != nil {
		return err
	}
	s.exposedForSetting[portKey{typ, ref}] = struct{}{}
	s.setCaches[idx].Expose(ref, start)
	return nil
}

// IsExposedForGetting reports whether (typ, ref) was exposed for getting.
func (s *Subsimulator) IsExposedForGetting(typ cosim.Type, ref int) bool {
	_, ok := s.exposedForGetting[portKey{typ, ref}]
	return ok
}

// IsExposedForSetting reports whether (typ, ref) was exposed for setting.
func (s *Subsimulator) IsExposedForSetting(typ cosim.Type, ref int) bool {
	_, ok := s.exposedForSetting[portKey{typ, ref}]
	return ok
}

// withScopedState runs fn while the subsimulator is in the transient
// Indeterminate state, then restores final on success or transitions to
// Error (terminal) if fn returned an error.
func (s *Subsimulator) withScopedState(final State, fn func() error) error {
	s.state = Indeterminate
	if err := fn(); err != nil {
		s.state = Error
		return err
	}
	s.state = final
	return nil
}

// Setup requires Created and advances to Initialisation.
func (s *Subsimulator) Setup(start simtime.TimePoint, stop *simtime.TimePoint, tolerance *float64) error {
	if s.state != Created {
		return &cosimerr.InvalidState{Reason: fmt.Sprintf("setup requires Created, got %s", s.state)}
	}
	return s.withScopedState(Initialisation, func() error {
		return s.slave.Setup(start, stop, tolerance)
	})
}

// StartSimulation requires Initialisation and advances to Simulation.
func (s *Subsimulator) StartSimulation() error {
	if s.state != Initialisation {
		return &cosimerr.InvalidState{Reason: fmt.Sprintf("start_simulation requires Initialisation, got %s", s.state)}
	}
	return s.withScopedState(Simulation, func() error {
		return s.slave.StartSimulation()
	})
}

// DoIteration performs one fixed-point initialisation pass: modify_and_get
// on every set-cache (with a causality filter skipping constant and input
// variables), a batched set into the slave, a batched get, and run_modifiers
// on every get-cache. It does not call the slave's DoStep.
func (s *Subsimulator) DoIteration() error {
	if s.state != Initialisation {
		return &cosimerr.InvalidState{Reason: fmt.Sprintf("do_iteration requires Initialisation, got %s", s.state)}
	}
	return s.withScopedState(Initialisation, func() error {
		return s.batchedIO(0, s.skipConstantAndInput)
	})
}

// DoStep requires Simulation, preserves it. It performs (a) modify_and_get
// on the four set-caches, (b) a single batched set into the slave, (c) the
// slave step, (d) a batched get, (e) run_modifiers on the four get-caches —
// the only I/O boundary between master and slave.
func (s *Subsimulator) DoStep(current simtime.TimePoint, delta simtime.Duration) (StepResult, error) {
	if s.state != Simulation {
		return Failed, &cosimerr.InvalidState{Reason: fmt.Sprintf("do_step requires Simulation, got %s", s.state)}
	}

	var result StepResult
	err := s.withScopedState(Simulation, func() error {
		if err := s.pushPendingSets(delta); err != nil {
			return err
		}

		r, err := s.slave.DoStep(current, delta)
		if err != nil {
			return err
		}
		result = r
		if r != Complete {
			return &cosimerr.ModelError{Subsimulator: s.Name, Err: fmt.Errorf("do_step returned %s", r)}
		}

		if err := s.pullOutputs(delta); err != nil {
			return err
		}
		s.ResetTick()
		return nil
	})
	return result, err
}

// batchedIO performs one non-stepping set+get round-trip, used by
// DoIteration. It resets the set-caches' per-tick state afterward so the
// next fixed-point iteration's transfer can write fresh pending sets.
func (s *Subsimulator) batchedIO(dt simtime.Duration, skip func(typ cosim.Type, ref int) bool) error {
	if err := s.pushPendingSetsFiltered(dt, skip); err != nil {
		return err
	}
	if err := s.pullOutputs(dt); err != nil {
		return err
	}
	s.ResetTick()
	return nil
}

func (s *Subsimulator) pushPendingSets(dt simtime.Duration) error {
	return s.pushPendingSetsFiltered(dt, nil)
}

// skipConstantAndInput is the causality filter used during fixed-point
// initialisation: constant and input variables do not participate in the
// settling iteration.
func (s *Subsimulator) skipConstantAndInput(typ cosim.Type, ref int) bool {
	v, ok := s.variables[portKey{typ, ref}]
	if !ok {
		return false
	}
	return v.Variability == cosim.Constant || v.Causality == cosim.Input
}

func (s *Subsimulator) pushPendingSetsFiltered(dt simtime.Duration, skip func(typ cosim.Type, ref int) bool) error {
	filterFor := func(typ cosim.Type) func(ref int) bool {
		if skip == nil {
			return nil
		}
		return func(ref int) bool { return !skip(typ, ref) }
	}

	if refs, values := s.setCaches[cosim.Real].ModifyAndGet(dt, filterFor(cosim.Real)); len(refs) > 0 {
		vals := make([]float64, len(values))
		for i, v := range values {
			vals[i], _ = v.Real()
		}
		if err := s.slave.SetReal(refs, vals); err != nil {
			return &cosimerr.ModelError{Subsimulator: s.Name, Err: err}
		}
	}
	if refs, values := s.setCaches[cosim.Integer].ModifyAndGet(dt, filterFor(cosim.Integer)); len(refs) > 0 {
		vals := make([]int32, len(values))
		for i, v := range values {
			vals[i], _ = v.Integer()
		}
		if err := s.slave.SetInteger(refs, vals); err != nil {
			return &cosimerr.ModelError{Subsimulator: s.Name, Err: err}
		}
	}
	if refs, values := s.setCaches[cosim.Boolean].ModifyAndGet(dt, filterFor(cosim.Boolean)); len(refs) > 0 {
		vals := make([]bool, len(values))
		for i, v := range values {
			vals[i], _ = v.Boolean()
		}
		if err := s.slave.SetBoolean(refs, vals); err != nil {
			return &cosimerr.ModelError{Subsimulator: s.Name, Err: err}
		}
	}
	if refs, values := s.setCaches[cosim.String].ModifyAndGet(dt, filterFor(cosim.String)); len(refs) > 0 {
		vals := make([]string, len(values))
		for i, v := range values {
			vals[i], _ = v.StringValue()
		}
		if err := s.slave.SetString(refs, vals); err != nil {
			return &cosimerr.ModelError{Subsimulator: s.Name, Err: err}
		}
	}
	return nil
}

func (s *Subsimulator) pullOutputs(dt simtime.Duration) error {
	if refs := s.getCaches[cosim.Real].ExposedRefs(); len(refs) > 0 {
		vals, err := s.slave.GetReal(refs)
		if err != nil {
			return &cosimerr.ModelError{Subsimulator: s.Name, Err: err}
		}
		for i, ref := range refs {
			_ = s.getCaches[cosim.Real].SetOriginal(ref, cosim.NewReal(vals[i]))
		}
	}
	if refs := s.getCaches[cosim.Integer].ExposedRefs(); len(refs) > 0 {
		vals, err := s.slave.GetInteger(refs)
		if err != nil {
			return &cosimerr.ModelError{Subsimulator: s.Name, Err: err}
		}
		for i, ref := range refs {
			_ = s.getCaches[cosim.Integer].SetOriginal(ref, cosim.NewInteger(vals[i]))
		}
	}
	if refs := s.getCaches[cosim.Boolean].ExposedRefs(); len(refs) > 0 {
		vals, err := s.slave.GetBoolean(refs)
		if err != nil {
			return &cosimerr.ModelError{Subsimulator: s.Name, Err: err}
		}
		for i, ref := range refs {
			_ = s.getCaches[cosim.Boolean].SetOriginal(ref, cosim.NewBoolean(vals[i]))
		}
	}
	if refs := s.getCaches[cosim.String].ExposedRefs(); len(refs) > 0 {
		vals, err := s.slave.GetString(refs)
		if err != nil {
			return &cosimerr.ModelError{Subsimulator: s.Name, Err: err}
		}
		for i, ref := range refs {
			_ = s.getCaches[cosim.String].SetOriginal(ref, cosim.NewString(vals[i]))
		}
	}

	for i := range s.getCaches {
		s.getCaches[i].RunModifiers(dt)
	}
	return nil
}

// SetRealInitialValue requires initialized == false, enforced by the caller
// (the enclosing execution). Each initial-value setter exposes ref for
// setting first, if it is not exposed already.
func (s *Subsimulator) SetRealInitialValue(ref int, v float64) error {
	_ = s.ExposeForSetting(cosim.Real, ref, cosim.NewReal(v))
	return s.setCaches[cosim.Real].SetValue(ref, cosim.NewReal(v))
}

// SetIntegerInitialValue requires initialized == false, enforced by the
// caller.
func (s *Subsimulator) SetIntegerInitialValue(ref int, v int32) error {
	_ = s.ExposeForSetting(cosim.Integer, ref, cosim.NewInteger(v))
	return s.setCaches[cosim.Integer].SetValue(ref, cosim.NewInteger(v))
}

// SetBooleanInitialValue requires initialized == false, enforced by the
// caller.
func (s *Subsimulator) SetBooleanInitialValue(ref int, v bool) error {
	_ = s.ExposeForSetting(cosim.Boolean, ref, cosim.NewBoolean(v))
	return s.setCaches[cosim.Boolean].SetValue(ref, cosim.NewBoolean(v))
}

// SetStringInitialValue requires initialized == false, enforced by the
// caller.
func (s *Subsimulator) SetStringInitialValue(ref int, v string) error {
	_ = s.ExposeForSetting(cosim.String, ref, cosim.NewString(v))
	return s.setCaches[cosim.String].SetValue(ref, cosim.NewString(v))
}

// VariableRef names a (type, reference) pair on a subsimulator.
type VariableRef struct {
	Type      cosim.Type
	Reference int
}

// ModifiedVariables returns, across all four types, the sorted variable
// references that currently carry an installed input- or output-modifier.
func (s *Subsimulator) ModifiedVariables() []VariableRef {
	var out []VariableRef
	for i := range s.getCaches {
		typ := cosim.Type(i)
		for _, ref := range iocache.ModifiedRefs(s.getCaches[i], s.setCaches[i]) {
			out = append(out, VariableRef{Type: typ, Reference: ref})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Reference < out[j].Reference
	})
	return out
}

// ResetTick clears every set-cache's per-tick state, readying the
// subsimulator for the next macro step.
func (s *Subsimulator) ResetTick() {
	for _, c := range s.setCaches {
		c.Reset()
	}
}

// GetState returns the slave's opaque snapshot bytes, wrapped in the same
// scoped Indeterminate transition every other slave call goes through.
// Slaves that do not support snapshotting report UnsupportedFeature, which
// the caller (package snapshot) treats as "nothing to save" rather than a
// fault.
func (s *Subsimulator) GetState() ([]byte, error) {
	var out []byte
	err := s.withScopedState(s.state, func() error {
		b, err := s.slave.GetState()
		out = b
		return err
	})
	return out, err
}

// SetState restores the slave from previously captured snapshot bytes.
func (s *Subsimulator) SetState(state []byte) error {
	return s.withScopedState(s.state, func() error {
		return s.slave.SetState(state)
	})
}
