// Package builtin provides ready-made Function implementations grounded in
// the reference scenarios: a single-input linear transform and a
// fixed-width vector sum.
package builtin

import (
	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/function"
)

// LinearTransform computes out = in*factor + offset for a single real
// input and real output. Group 0 holds the single input io; group 1 holds
// the single output io.
type LinearTransform struct {
	Offset float64
	Factor float64

	in  float64
	out float64
}

// NewLinearTransform builds a transform with the given offset and factor.
func NewLinearTransform(offset, factor float64) *LinearTransform {
	return &LinearTransform{Offset: offset, Factor: factor}
}

var linearTransformDescription = function.FunctionTypeDescription{
	Parameters: []function.ParameterDescription{
		{Name: "offset", Type: cosim.Real},
		{Name: "factor", Type: cosim.Real},
	},
	IOGroups: []function.IOGroupDescription{
		{Count: 1, IOs: []function.IODescription{{Type: cosim.Real, Causality: cosim.Input, Count: 1}}},
		{Count: 1, IOs: []function.IODescription{{Type: cosim.Real, Causality: cosim.Output, Count: 1}}},
	},
}

// Description returns the static shape of LinearTransform.
func (f *LinearTransform) Description() function.FunctionTypeDescription {
	return linearTransformDescription
}

// SetReal accepts the single input io at group 0.
func (f *LinearTransform) SetReal(ref function.IORef, v float64) error {
	f.in = v
	return nil
}

// GetReal returns the single output io at group 1.
func (f *LinearTransform) GetReal(ref function.IORef) (float64, error) {
	return f.out, nil
}

// Calculate applies out = in*factor + offset.
func (f *LinearTransform) Calculate() error {
	f.out = f.in*f.Factor + f.Offset
	return nil
}

// SetInteger, SetBoolean, SetString, GetInteger, GetBoolean and GetString
// are unreachable for this real-only function; they exist to satisfy
// function.Function and fail loudly if ever invoked.
func (f *LinearTransform) SetInteger(ref function.IORef, v int32) error  { return unsupported("LinearTransform", ref) }
func (f *LinearTransform) SetBoolean(ref function.IORef, v bool) error   { return unsupported("LinearTransform", ref) }
func (f *LinearTransform) SetString(ref function.IORef, v string) error  { return unsupported("LinearTransform", ref) }
func (f *LinearTransform) GetInteger(ref function.IORef) (int32, error)  { return 0, unsupported("LinearTransform", ref) }
func (f *LinearTransform) GetBoolean(ref function.IORef) (bool, error)   { return false, unsupported("LinearTransform", ref) }
func (f *LinearTransform) GetString(ref function.IORef) (string, error)  { return "", unsupported("LinearTransform", ref) }
