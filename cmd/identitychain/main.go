// Command identitychain drives a two-subsimulator chain end to end: a
// source that counts up by a fixed increment every macro step, feeding an
// identity pass-through that adds a constant offset. It exercises the
// execution/scheduler/slave public surface the way the teacher's own sample
// drivers exercise a device build.
package main

import (
	"fmt"

	"github.com/sarchlab/akita/v4/sim"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/cosimerr"
	"github.com/sarchlab/cosim/execution"
	"github.com/sarchlab/cosim/graph"
	"github.com/sarchlab/cosim/scheduler"
	"github.com/sarchlab/cosim/simtime"
	"github.com/sarchlab/cosim/slave"
)

const (
	outRef = 0
	inRef  = 1
)

// counterSlave exposes a single real output that increases by step every
// do_step call.
type counterSlave struct {
	step    float64
	current float64
}

func (s *counterSlave) ModelDescription() slave.ModelDescription {
	return slave.ModelDescription{
		Name: "counter",
		Variables: []cosim.VariableDescriptor{
			{Name: "out", Reference: outRef, Type: cosim.Real, Causality: cosim.Output, Variability: cosim.Continuous},
		},
	}
}

func (s *counterSlave) Setup(simtime.TimePoint, *simtime.TimePoint, *float64) error { return nil }
func (s *counterSlave) StartSimulation() error                                      { return nil }
func (s *counterSlave) EndSimulation() error                                        { return nil }

func (s *counterSlave) DoStep(current simtime.TimePoint, delta simtime.Duration) (slave.StepResult, error) {
	s.current += s.step
	return slave.Complete, nil
}

func (s *counterSlave) GetReal(refs []int) ([]float64, error) {
	out := make([]float64, len(refs))
	for i := range refs {
		out[i] = s.current
	}
	return out, nil
}
func (s *counterSlave) GetInteger(refs []int) ([]int32, error) { return make([]int32, len(refs)), nil }
func (s *counterSlave) GetBoolean(refs []int) ([]bool, error)  { return make([]bool, len(refs)), nil }
func (s *counterSlave) GetString(refs []int) ([]string, error) { return make([]string, len(refs)), nil }

func (s *counterSlave) SetReal(refs []int, values []float64) error  { return nil }
func (s *counterSlave) SetInteger(refs []int, values []int32) error { return nil }
func (s *counterSlave) SetBoolean(refs []int, values []bool) error  { return nil }
func (s *counterSlave) SetString(refs []int, values []string) error { return nil }

func (s *counterSlave) GetState() ([]byte, error)   { return nil, unsupportedState() }
func (s *counterSlave) SetState(state []byte) error { return unsupportedState() }

// offsetSlave exposes a real input and a real output, out = in + offset.
type offsetSlave struct {
	offset float64
	input  float64
	output float64
}

func (s *offsetSlave) ModelDescription() slave.ModelDescription {
	return slave.ModelDescription{
		Name: "offset",
		Variables: []cosim.VariableDescriptor{
			{Name: "in", Reference: inRef, Type: cosim.Real, Causality: cosim.Input, Variability: cosim.Continuous},
			{Name: "out", Reference: outRef, Type: cosim.Real, Causality: cosim.Output, Variability: cosim.Continuous},
		},
	}
}

func (s *offsetSlave) Setup(simtime.TimePoint, *simtime.TimePoint, *float64) error { return nil }
func (s *offsetSlave) StartSimulation() error                                     { return nil }
func (s *offsetSlave) EndSimulation() error                                       { return nil }

func (s *offsetSlave) DoStep(current simtime.TimePoint, delta simtime.Duration) (slave.StepResult, error) {
	s.output = s.input + s.offset
	return slave.Complete, nil
}

func (s *offsetSlave) GetReal(refs []int) ([]float64, error) {
	out := make([]float64, len(refs))
	for i, r := range refs {
		if r == outRef {
			out[i] = s.output
		}
	}
	return out, nil
}
func (s *offsetSlave) GetInteger(refs []int) ([]int32, error) { return make([]int32, len(refs)), nil }
func (s *offsetSlave) GetBoolean(refs []int) ([]bool, error)  { return make([]bool, len(refs)), nil }
func (s *offsetSlave) GetString(refs []int) ([]string, error) { return make([]string, len(refs)), nil }

func (s *offsetSlave) SetReal(refs []int, values []float64) error {
	for i, r := range refs {
		if r == inRef {
			s.input = values[i]
		}
	}
	return nil
}
func (s *offsetSlave) SetInteger(refs []int, values []int32) error { return nil }
func (s *offsetSlave) SetBoolean(refs []int, values []bool) error  { return nil }
func (s *offsetSlave) SetString(refs []int, values []string) error { return nil }

func (s *offsetSlave) GetState() ([]byte, error)   { return nil, unsupportedState() }
func (s *offsetSlave) SetState(state []byte) error { return unsupportedState() }

func unsupportedState() error {
	return &cosimerr.UnsupportedFeature{Feature: "this model does not support state snapshots"}
}

func main() {
	sched := scheduler.NewFixedStepScheduler(simtime.Millisecond*10, 0)
	sched.SetHorizon(0, nil)
	exec := execution.New(sched, 0, sim.NewSerialEngine(), 1*sim.GHz)

	source := slave.NewSubsimulator(0, "counter", &counterSlave{step: 1}, 1)
	sink := slave.NewSubsimulator(1, "offset", &offsetSlave{offset: 100}, 1)

	exec.AddSlave(source)
	exec.AddSlave(sink)

	err := exec.ConnectVariables(graph.SubsimToSubsim,
		graph.PortRef{Kind: graph.SubsimEndpoint, Index: 0, Type: cosim.Real, Reference: outRef},
		graph.PortRef{Kind: graph.SubsimEndpoint, Index: 1, Type: cosim.Real, Reference: inRef},
	)
	if err != nil {
		panic(err)
	}

	stop := simtime.FromSecondsTimePoint(0.1)
	if _, err := exec.SimulateUntil(stop, simtime.Millisecond*10); err != nil {
		panic(err)
	}

	fmt.Println(sched.DumpState())
	fmt.Printf("final time: %s\n", exec.CurrentTime())

	atexit.Exit(0)
}
