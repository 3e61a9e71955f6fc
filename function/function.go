// Package function defines the pure-transformation protocol that sits
// between subsimulator ports: a typed, grouped interface description plus
// the Function that implements it. Unlike a slave, a function has no
// lifecycle and no step primitive; the graph invokes Calculate whenever a
// consumer's decimation boundary is reached.
package function

import (
	"fmt"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/cosimerr"
)

// IODescription describes one io within a group: its type, causality (only
// Input and Output are meaningful for a function) and cardinality.
type IODescription struct {
	Type      cosim.Type
	Causality cosim.Causality
	Count     int
}

// IOGroupDescription describes one repeatable group of ios, e.g. the
// operand slots of a vector-sum function. Count is the number of group
// instances (group-instance in the spec's group x group-instance x io x
// io-instance hierarchy).
type IOGroupDescription struct {
	Count int
	IOs   []IODescription
}

// ParameterDescription describes a construction-time parameter, reported
// for introspection only; functions are parameterised through their own
// constructors, not through this description.
type ParameterDescription struct {
	Name string
	Type cosim.Type
}

// FunctionTypeDescription is the static shape of a function type.
type FunctionTypeDescription struct {
	Parameters []ParameterDescription
	IOGroups   []IOGroupDescription
}

// IORef addresses one io-instance: (group index, group-instance index, io
// index within the group, io-instance index within that io's Count).
type IORef struct {
	Group         int
	GroupInstance int
	IO            int
	IOInstance    int
}

// Function is the pure-transformation protocol consumed by the graph.
// Calculate reads every installed input and writes every output; it is
// invoked synchronously by the graph and must not block.
//
//go:generate mockgen -write_package_comment=false -package=function_test -destination=mock_function_test.go github.com/sarchlab/cosim/function Function
type Function interface {
	Description() FunctionTypeDescription

	SetReal(ref IORef, v float64) error
	SetInteger(ref IORef, v int32) error
	SetBoolean(ref IORef, v bool) error
	SetString(ref IORef, v string) error

	GetReal(ref IORef) (float64, error)
	GetInteger(ref IORef) (int32, error)
	GetBoolean(ref IORef) (bool, error)
	GetString(ref IORef) (string, error)

	Calculate() error
}

// typeMismatch builds the error for a value fetched or set with the wrong
// accessor for its declared type. Nothing calls it at present: the builtin
// functions report their own errors through builtin's unsupported helper.
func typeMismatch(name string, ref IORef) error {
	return &cosimerr.UnsupportedFeature{
		Feature: fmt.Sprintf("%s: type mismatch at group %d instance %d io %d io-instance %d",
			name, ref.Group, ref.GroupInstance, ref.IO, ref.IOInstance),
	}
}
