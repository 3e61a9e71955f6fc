package scheduler_test

import (
	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/simtime"
	"github.com/sarchlab/cosim/slave"
)

// countingSlave exposes one real input (ref 0) and one real output (ref 1).
// Each DoStep increments an internal tally and sets the output to
// input*gain + tally, letting tests assert exactly how many times a
// subsimulator actually stepped.
type countingSlave struct {
	name   string
	steps  int
	input  float64
	output float64
	gain   float64

	// extra holds values for refs beyond the declared in/out pair, e.g. the
	// effort/flow variables a power-bond test exposes directly. Unlike
	// output, these are not overwritten by DoStep, so a test can seed them
	// once and trust they survive repeated get_variables calls.
	extra map[int]float64
}

func newCountingSlave(name string, gain float64) *countingSlave {
	return &countingSlave{name: name, gain: gain, extra: make(map[int]float64)}
}

// SetExtraReal seeds a ref outside the declared in/out pair.
func (s *countingSlave) SetExtraReal(ref int, v float64) {
	s.extra[ref] = v
}

func (s *countingSlave) ModelDescription() slave.ModelDescription {
	return slave.ModelDescription{
		Name: s.name,
		Variables: []cosim.VariableDescriptor{
			{Name: "in", Reference: 0, Type: cosim.Real, Causality: cosim.Input, Variability: cosim.Continuous},
			{Name: "out", Reference: 1, Type: cosim.Real, Causality: cosim.Output, Variability: cosim.Continuous},
		},
	}
}

func (s *countingSlave) Setup(start simtime.TimePoint, stop *simtime.TimePoint, tolerance *float64) error {
	return nil
}
func (s *countingSlave) StartSimulation() error { return nil }
func (s *countingSlave) EndSimulation() error   { return nil }

func (s *countingSlave) DoStep(current simtime.TimePoint, delta simtime.Duration) (slave.StepResult, error) {
	s.steps++
	s.output = s.input*s.gain + float64(s.steps)
	return slave.Complete, nil
}

func (s *countingSlave) GetReal(refs []int) ([]float64, error) {
	out := make([]float64, len(refs))
	for i, r := range refs {
		switch {
		case r == 1:
			out[i] = s.output
		default:
			out[i] = s.extra[r]
		}
	}
	return out, nil
}
func (s *countingSlave) GetInteger(refs []int) ([]int32, error) { return make([]int32, len(refs)), nil }
func (s *countingSlave) GetBoolean(refs []int) ([]bool, error)  { return make([]bool, len(refs)), nil }
func (s *countingSlave) GetString(refs []int) ([]string, error) {
	return make([]string, len(refs)), nil
}

func (s *countingSlave) SetReal(refs []int, values []float64) error {
	for i, r := range refs {
		if r == 0 {
			s.input = values[i]
		}
	}
	return nil
}
func (s *countingSlave) SetInteger(refs []int, values []int32) error { return nil }
func (s *countingSlave) SetBoolean(refs []int, values []bool) error  { return nil }
func (s *countingSlave) SetString(refs []int, values []string) error { return nil }

func (s *countingSlave) GetState() ([]byte, error) { return nil, nil }
func (s *countingSlave) SetState(state []byte) error { return nil }

// newCountingSubsimulator builds a Subsimulator around a countingSlave with
// its input/output exposed, left in the Created state so a scheduler's
// Initialize call drives its lifecycle.
func newCountingSubsimulator(index int, name string, gain float64, decimation int) (*slave.Subsimulator, *countingSlave) {
	cs := newCountingSlave(name, gain)
	sub := slave.NewSubsimulator(index, name, cs, decimation)
	_ = sub.ExposeForSetting(cosim.Real, 0, cosim.NewReal(0))
	_ = sub.ExposeForGetting(cosim.Real, 1)
	return sub, cs
}

// exposeExtraReal exposes ref on sub's get-cache and seeds it on the
// underlying countingSlave, so every subsequent get_variables call (inside
// DoIteration or DoStep) reports v rather than resetting it to zero.
func exposeExtraReal(sub *slave.Subsimulator, cs *countingSlave, ref int, v float64) {
	_ = sub.ExposeForGetting(cosim.Real, ref)
	cs.SetExtraReal(ref, v)
}
