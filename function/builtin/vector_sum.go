package builtin

import (
	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/cosimerr"
	"github.com/sarchlab/cosim/function"
)

// VectorSum sums inputCount fixed-width integer vectors elementwise. Group 0
// holds inputCount instances of a dimension-wide integer io; group 1 holds
// one dimension-wide integer output io. String-typed vectors are rejected
// at construction, not at Calculate time, per the canonical construction-
// time rejection rule for sum-style functions.
type VectorSum struct {
	inputCount int
	dimension  int
	typ        cosim.Type

	inputs [][]int32
	output []int32
}

// NewVectorSum builds a vector-sum function over inputCount vectors of the
// given dimension and element type. Returns InvalidSystemStructure if typ is
// String (sum is undefined over strings) or if inputCount/dimension is not
// positive. Elements are stored and summed as integers only: for a Real or
// Boolean typ, Description reports that type, but only SetInteger and
// GetInteger are implemented and every other accessor fails.
func NewVectorSum(inputCount, dimension int, typ cosim.Type) (*VectorSum, error) {
	if typ == cosim.String {
		return nil, &cosimerr.InvalidSystemStructure{Reason: "vector sum does not support string operands"}
	}
	if inputCount <= 0 || dimension <= 0 {
		return nil, &cosimerr.InvalidSystemStructure{Reason: "vector sum requires positive input count and dimension"}
	}

	inputs := make([][]int32, inputCount)
	for i := range inputs {
		inputs[i] = make([]int32, dimension)
	}
	return &VectorSum{
		inputCount: inputCount,
		dimension:  dimension,
		typ:        typ,
		inputs:     inputs,
		output:     make([]int32, dimension),
	}, nil
}

// Description returns the static shape of the vector sum.
func (f *VectorSum) Description() function.FunctionTypeDescription {
	return function.FunctionTypeDescription{
		IOGroups: []function.IOGroupDescription{
			{Count: f.inputCount, IOs: []function.IODescription{{Type: f.typ, Causality: cosim.Input, Count: f.dimension}}},
			{Count: 1, IOs: []function.IODescription{{Type: f.typ, Causality: cosim.Output, Count: f.dimension}}},
		},
	}
}

// SetInteger writes one element of one input vector, addressed by
// (GroupInstance = which input, IOInstance = which element).
func (f *VectorSum) SetInteger(ref function.IORef, v int32) error {
	if ref.Group != 0 || ref.GroupInstance < 0 || ref.GroupInstance >= f.inputCount ||
		ref.IOInstance < 0 || ref.IOInstance >= f.dimension {
		return unsupported("VectorSum", ref)
	}
	f.inputs[ref.GroupInstance][ref.IOInstance] = v
	return nil
}

// GetInteger reads one element of the summed output vector.
func (f *VectorSum) GetInteger(ref function.IORef) (int32, error) {
	if ref.Group != 1 || ref.IOInstance < 0 || ref.IOInstance >= f.dimension {
		return 0, unsupported("VectorSum", ref)
	}
	return f.output[ref.IOInstance], nil
}

// Calculate writes output[j] = sum over i of inputs[i][j].
func (f *VectorSum) Calculate() error {
	for j := 0; j < f.dimension; j++ {
		var sum int32
		for i := 0; i < f.inputCount; i++ {
			sum += f.inputs[i][j]
		}
		f.output[j] = sum
	}
	return nil
}

func (f *VectorSum) SetReal(ref function.IORef, v float64) error { return unsupported("VectorSum", ref) }
func (f *VectorSum) SetBoolean(ref function.IORef, v bool) error  { return unsupported("VectorSum", ref) }
func (f *VectorSum) SetString(ref function.IORef, v string) error { return unsupported("VectorSum", ref) }
func (f *VectorSum) GetReal(ref function.IORef) (float64, error)  { return 0, unsupported("VectorSum", ref) }
func (f *VectorSum) GetBoolean(ref function.IORef) (bool, error)  { return false, unsupported("VectorSum", ref) }
func (f *VectorSum) GetString(ref function.IORef) (string, error) { return "", unsupported("VectorSum", ref) }
