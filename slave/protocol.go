// Package slave defines the opaque slave protocol consumed by the core and
// the Subsimulator wrapper that adapts a slave into the scheduler's view:
// lifecycle state machine, exposed-variable registry, and the four
// get/set I/O caches per type.
package slave

import (
	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/simtime"
)

// StepResult is the outcome reported by a slave's DoStep call.
type StepResult int

const (
	Complete StepResult = iota
	Failed
	Cancelled
)

func (r StepResult) String() string {
	switch r {
	case Complete:
		return "Complete"
	case Failed:
		return "Failed"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// ModelDescription is the static description a slave reports about itself.
type ModelDescription struct {
	Name      string
	UUID      string
	Author    string
	Version   string
	Variables []cosim.VariableDescriptor

	CanGetAndSetState bool
}

// Slave is the opaque black-box protocol an ODE/DAE solver implements to
// plug into the master. All get/set operations are bulk, type-sorted
// vectors; the subsimulator wrapper is the only caller.
//
//go:generate mockgen -write_package_comment=false -package=slave_test -destination=mock_slave_test.go github.com/sarchlab/cosim/slave Slave
type Slave interface {
	ModelDescription() ModelDescription

	Setup(start simtime.TimePoint, stop *simtime.TimePoint, tolerance *float64) error
	StartSimulation() error
	EndSimulation() error

	DoStep(current simtime.TimePoint, delta simtime.Duration) (StepResult, error)

	GetReal(refs []int) ([]float64, error)
	GetInteger(refs []int) ([]int32, error)
	GetBoolean(refs []int) ([]bool, error)
	GetString(refs []int) ([]string, error)

	SetReal(refs []int, values []float64) error
	SetInteger(refs []int, values []int32) error
	SetBoolean(refs []int, values []bool) error
	SetString(refs []int, values []string) error

	// GetState and SetState support optional snapshotting. Implementations
	// that do not support it return cosimerr.UnsupportedFeature.
	GetState() ([]byte, error)
	SetState(state []byte) error
}
