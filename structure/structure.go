// Package structure implements the inject_system_structure boundary helper:
// the seam between an externally-parsed system-structure document (an OSP
// system-structure.xml or an SSP archive, neither of which this core
// parses) and a running execution.Execution. Callers hand this package a
// SystemStructure value plus a Registry of model/function constructors; it
// instantiates entities in document order, wires declared connections by
// causality-derived direction, and dispatches initial values to their typed
// setters.
package structure

import (
	"fmt"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/cosimerr"
	"github.com/sarchlab/cosim/execution"
	"github.com/sarchlab/cosim/function"
	"github.com/sarchlab/cosim/graph"
	"github.com/sarchlab/cosim/simtime"
	"github.com/sarchlab/cosim/slave"
)

// EntityKind distinguishes a subsimulator entity from a function entity in
// a parsed system structure.
type EntityKind int

const (
	ModelEntity EntityKind = iota
	FunctionEntity
)

// Entity is one parsed system-structure component: a named model or
// function instance together with the construction-time parameters parsed
// out of the document.
type Entity struct {
	Name       string
	Kind       EntityKind
	TypeName   string // key into the Registry
	Parameters map[string]cosim.Value

	// StepSizeHint is meaningful only for ModelEntity; nil means "use the
	// scheduler's default decimation factor of 1".
	StepSizeHint *simtime.Duration
}

// Endpoint names one side of a declared connection. Variable addresses a
// subsimulator's named variable; Port addresses a function's io-instance.
// Which one is meaningful is selected by the owning Entity's Kind.
type Endpoint struct {
	Entity   string
	Variable string
	Port     function.IORef
}

// Connection is an undirected pair of endpoints as the document declares
// it; Inject determines which side is the source from the causality of its
// variable, per the External Interfaces boundary rule.
type Connection struct {
	A, B Endpoint
}

// InitialValue names one entity's variable and the value parsed for it.
// Per the boundary rule, the referenced variable must belong to a
// subsimulator (not a function) and have Parameter or Input causality.
type InitialValue struct {
	Entity   string
	Variable string
	Value    cosim.Value
}

// SystemStructure is the parser's output: entities in document order (so
// injection can preserve insertion order for reproducibility), the
// connections between them, and the initial-value map.
type SystemStructure struct {
	Entities      []Entity
	Connections   []Connection
	InitialValues []InitialValue
}

// ModelFactory instantiates a Slave from its construction-time parameters.
type ModelFactory func(params map[string]cosim.Value) (slave.Slave, error)

// FunctionFactory instantiates a Function from its construction-time
// parameters.
type FunctionFactory func(params map[string]cosim.Value) (function.Function, error)

// Registry maps the TypeName an Entity declares to the constructor that
// builds it. Concrete FMU loading and XML-described function types are
// external to the core; callers populate a Registry with whatever
// constructors their own artefact loader produces.
type Registry struct {
	Models    map[string]ModelFactory
	Functions map[string]FunctionFactory
}

// NewRegistry returns an empty Registry ready for population.
func NewRegistry() *Registry {
	return &Registry{Models: make(map[string]ModelFactory), Functions: make(map[string]FunctionFactory)}
}

// DecimationHinter resolves a step-size hint to a decimation factor; the
// fixed-step scheduler satisfies it directly. May be nil if no entity in
// the document declares a step-size hint.
type DecimationHinter interface {
	DecimationFactorForHint(hint simtime.Duration) (df int, warn bool)
}

// resolved tracks, for one injected entity, everything later phases need:
// its assigned index, its kind, and (for subsimulators) the wrapper pointer
// the typed initial-value setters require.
type resolved struct {
	kind EntityKind
	idx  int
	sub  *slave.Subsimulator
}

// Inject wires ss into exec using registry to instantiate entities. It
// instantiates every entity in document order, connects every declared
// edge in its causality-derived direction, and dispatches every initial
// value to its typed setter.
func Inject(exec *execution.Execution, registry *Registry, ss *SystemStructure, hinter DecimationHinter) error {
	entities := make(map[string]resolved, len(ss.Entities))
	nSubs, nFns := 0, 0

	for _, e := range ss.Entities {
		switch e.Kind {
		case ModelEntity:
			factory, ok := registry.Models[e.TypeName]
			if !ok {
				return &cosimerr.InvalidSystemStructure{Reason: fmt.Sprintf("no model factory registered for type %q (entity %q)", e.TypeName, e.Name)}
			}
			s, err := factory(e.Parameters)
			if err != nil {
				return &cosimerr.ModelError{Subsimulator: e.Name, Err: err}
			}

			df := 1
			if e.StepSizeHint != nil && hinter != nil {
				df, _ = hinter.DecimationFactorForHint(*e.StepSizeHint)
			}

			sub := slave.NewSubsimulator(nSubs, e.Name, s, df)
			nSubs++
			idx := exec.AddSlave(sub)
			entities[e.Name] = resolved{kind: ModelEntity, idx: idx, sub: sub}

		case FunctionEntity:
			factory, ok := registry.Functions[e.TypeName]
			if !ok {
				return &cosimerr.InvalidSystemStructure{Reason: fmt.Sprintf("no function factory registered for type %q (entity %q)", e.TypeName, e.Name)}
			}
			fn, err := factory(e.Parameters)
			if err != nil {
				return &cosimerr.ModelError{Subsimulator: e.Name, Err: err}
			}
			wrapper := function.NewWrapper(nFns, fn)
			nFns++
			idx := exec.AddFunction(wrapper)
			entities[e.Name] = resolved{kind: FunctionEntity, idx: idx}

		default:
			return &cosimerr.InvalidSystemStructure{Reason: fmt.Sprintf("entity %q has unknown kind", e.Name)}
		}
	}

	for _, c := range ss.Connections {
		if err := injectConnection(exec, entities, c); err != nil {
			return err
		}
	}

	for _, iv := range ss.InitialValues {
		if err := injectInitialValue(exec, entities, iv); err != nil {
			return err
		}
	}

	return nil
}

// portAndCausality resolves an Endpoint against its already-instantiated
// entity into a graph.PortRef plus the causality of the variable it names.
// A function port carries no causality of its own in the model (only its
// IODescription's Input/Output tag, which the caller already encoded by
// choosing the port), so it reports Local as a neutral, never-a-source-nor-
// a-forced-target value; direction between two function ports never arises
// since a Connection always has exactly one subsimulator-facing causality
// to decide it.
func portAndCausality(entities map[string]resolved, ep Endpoint) (graph.PortRef, cosim.Causality, error) {
	r, ok := entities[ep.Entity]
	if !ok {
		return graph.PortRef{}, 0, &cosimerr.InvalidSystemStructure{Reason: fmt.Sprintf("connection references unknown entity %q", ep.Entity)}
	}

	if r.kind == FunctionEntity {
		return graph.PortRef{Kind: graph.FunctionEndpoint, Index: r.idx, IO: ep.Port, Type: cosim.Real}, cosim.Local, nil
	}

	desc, err := findVariable(r.sub, ep.Variable)
	if err != nil {
		return graph.PortRef{}, 0, err
	}
	return graph.PortRef{Kind: graph.SubsimEndpoint, Index: r.idx, Type: desc.Type, Reference: desc.Reference}, desc.Causality, nil
}

// findVariable looks a variable up by name across every exposable type,
// since VariableDescriptor.Reference is only unique within subsimulator x
// type, not within subsimulator alone.
func findVariable(sub *slave.Subsimulator, name string) (cosim.VariableDescriptor, error) {
	for typ := cosim.Real; typ <= cosim.String; typ++ {
		for ref := 0; ; ref++ {
			v, ok := sub.Variable(typ, ref)
			if !ok {
				break
			}
			if v.Name == name {
				return v, nil
			}
		}
	}
	return cosim.VariableDescriptor{}, &cosimerr.InvalidSystemStructure{Reason: fmt.Sprintf("unknown variable %q on %q", name, sub.Name)}
}

// injectConnection resolves both endpoints, determines which is the source
// from its variable's causality (Output or CalculatedParameter is a
// source; Input is a destination), and forwards to exec.ConnectVariables in
// that source->destination direction. A port naming a function's input or
// output group is resolved to a function endpoint whose direction is
// implied by the subsimulator side's causality, since a function's own
// IODescription.Causality is carried in its Description(), not re-derived
// here.
func injectConnection(exec connector, entities map[string]resolved, c Connection) error {
	portA, causA, err := portAndCausality(entities, c.A)
	if err != nil {
		return err
	}
	portB, causB, err := portAndCausality(entities, c.B)
	if err != nil {
		return err
	}

	var source, target graph.PortRef
	switch {
	case causA == cosim.Output || causA == cosim.CalculatedParameter:
		source, target = portA, portB
	case causB == cosim.Output || causB == cosim.CalculatedParameter:
		source, target = portB, portA
	case portA.Kind == graph.FunctionEndpoint:
		// A function endpoint carries no causality here (it is opaque at
		// this layer); when neither side is conclusively Output, a
		// function endpoint is taken as the source whatever the other
		// side is. The causality of the other side is not checked here.
		source, target = portA, portB
	case portB.Kind == graph.FunctionEndpoint:
		source, target = portB, portA
	default:
		return &cosimerr.InvalidSystemStructure{Reason: fmt.Sprintf("connection between %q and %q has no Output/CalculatedParameter side to serve as source", c.A.Entity, c.B.Entity)}
	}

	kind := edgeKind(source, target)
	return exec.ConnectVariables(kind, source, target)
}

func edgeKind(source, target graph.PortRef) graph.EdgeKind {
	switch {
	case source.Kind == graph.SubsimEndpoint && target.Kind == graph.SubsimEndpoint:
		return graph.SubsimToSubsim
	case source.Kind == graph.SubsimEndpoint && target.Kind == graph.FunctionEndpoint:
		return graph.SubsimToFunction
	default:
		return graph.FunctionToSubsim
	}
}

// connector is the slice of execution.Execution's surface injectConnection
// needs, kept narrow so the function is independently testable against a
// fake.
type connector interface {
	ConnectVariables(kind graph.EdgeKind, source, target graph.PortRef) error
}

func injectInitialValue(exec *execution.Execution, entities map[string]resolved, iv InitialValue) error {
	r, ok := entities[iv.Entity]
	if !ok {
		return &cosimerr.InvalidSystemStructure{Reason: fmt.Sprintf("initial value references unknown entity %q", iv.Entity)}
	}
	if r.kind != ModelEntity {
		return &cosimerr.InvalidSystemStructure{Reason: fmt.Sprintf("initial value for %q names a function, not a subsimulator", iv.Entity)}
	}

	desc, err := findVariable(r.sub, iv.Variable)
	if err != nil {
		return err
	}
	if desc.Causality != cosim.Parameter && desc.Causality != cosim.Input {
		return &cosimerr.InvalidSystemStructure{Reason: fmt.Sprintf("initial value for %q.%q requires Parameter or Input causality, got %s", iv.Entity, iv.Variable, desc.Causality)}
	}

	switch iv.Value.Type() {
	case cosim.Real:
		v, _ := iv.Value.Real()
		return exec.SetRealInitialValue(r.sub, desc.Reference, v)
	case cosim.Integer:
		v, _ := iv.Value.Integer()
		return exec.SetIntegerInitialValue(r.sub, desc.Reference, v)
	case cosim.Boolean:
		v, _ := iv.Value.Boolean()
		return exec.SetBooleanInitialValue(r.sub, desc.Reference, v)
	case cosim.String:
		v, _ := iv.Value.StringValue()
		return exec.SetStringInitialValue(r.sub, desc.Reference, v)
	default:
		return &cosimerr.UnsupportedFeature{Feature: fmt.Sprintf("initial value of type %s is not transferable", iv.Value.Type())}
	}
}
