// Package graph implements the connection graph: typed directed edges
// between subsimulator ports and function ports, with the decimation-aware
// transfer-timing rule and the function decimation-factor recomputation
// that both depend on it.
package graph

import (
	"fmt"

	"github.com/sarchlab/cosim"
	"github.com/sarchlab/cosim/cosimerr"
	"github.com/sarchlab/cosim/function"
)

// EdgeKind tags the three connection shapes the core allows.
type EdgeKind int

const (
	SubsimToSubsim EdgeKind = iota
	SubsimToFunction
	FunctionToSubsim
)

func (k EdgeKind) String() string {
	switch k {
	case SubsimToSubsim:
		return "subsim->subsim"
	case SubsimToFunction:
		return "subsim->function"
	case FunctionToSubsim:
		return "function->subsim"
	default:
		return "unknown"
	}
}

// EndpointKind distinguishes a subsimulator port from a function port
// within a PortRef.
type EndpointKind int

const (
	SubsimEndpoint EndpointKind = iota
	FunctionEndpoint
)

// PortRef fully qualifies one endpoint of an edge: a subsimulator variable
// reference or a function io-instance, never both.
type PortRef struct {
	Kind      EndpointKind
	Index     int
	Type      cosim.Type
	Reference int            // meaningful iff Kind == SubsimEndpoint
	IO        function.IORef // meaningful iff Kind == FunctionEndpoint
}

type portKey struct {
	kind  EndpointKind
	index int
	typ   cosim.Type
	ref   int
	io    function.IORef
}

func key(p PortRef) portKey {
	return portKey{kind: p.Kind, index: p.Index, typ: p.Type, ref: p.Reference, io: p.IO}
}

// Edge is one directed, typed connection between two ports.
type Edge struct {
	Kind   EdgeKind
	Source PortRef
	Target PortRef
}

// Graph stores outgoing edges keyed by their source port and enforces the
// at-most-one-edge-per-destination invariant.
type Graph struct {
	outgoing     map[portKey][]Edge
	destinations map[portKey]Edge

	// functionOutgoing indexes edges sourced at a function by its index
	// alone (ignoring which output port), since FunctionDecimationFactor
	// must see every output port's consumers, not just one port's.
	functionOutgoing map[int][]Edge
}

// New creates an empty connection graph.
func New() *Graph {
	return &Graph{
		outgoing:         make(map[portKey][]Edge),
		destinations:     make(map[portKey]Edge),
		functionOutgoing: make(map[int][]Edge),
	}
}

// Connect adds an edge from source to target of the given kind, after
// checking the type-compatibility invariants: source and target types must
// be equal, enumeration is never transferable, and string is only
// transferable between two subsimulators. Fails with InvalidSystemStructure
// if the destination already has an incoming edge.
func (g *Graph) Connect(kind EdgeKind, source, target PortRef) (Edge, error) {
	if source.Type != target.Type {
		return Edge{}, &cosimerr.InvalidSystemStructure{
			Reason: fmt.Sprintf("type mismatch connecting %s (%s) to %s (%s)", portString(source), source.Type, portString(target), target.Type),
		}
	}
	if source.Type == cosim.Enumeration {
		return Edge{}, &cosimerr.UnsupportedFeature{Feature: "enumeration values are not transferable"}
	}
	if source.Type == cosim.String && kind != SubsimToSubsim {
		return Edge{}, &cosimerr.UnsupportedFeature{Feature: "string edges are only allowed between subsimulators"}
	}

	dk := key(target)
	if existing, ok := g.destinations[dk]; ok {
		return Edge{}, &cosimerr.InvalidSystemStructure{
			Reason: fmt.Sprintf("%s already has an incoming edge from %s", portString(target), portString(existing.Source)),
		}
	}

	edge := Edge{Kind: kind, Source: source, Target: target}
	sk := key(source)
	g.outgoing[sk] = append(g.outgoing[sk], edge)
	g.destinations[dk] = edge
	if source.Kind == FunctionEndpoint {
		g.functionOutgoing[source.Index] = append(g.functionOutgoing[source.Index], edge)
	}
	return edge, nil
}

// Disconnect removes the edge terminating at target, if any. O(n) in the
// source's outgoing fan-out.
func (g *Graph) Disconnect(target PortRef) {
	dk := key(target)
	edge, ok := g.destinations[dk]
	if !ok {
		return
	}
	delete(g.destinations, dk)

	sk := key(edge.Source)
	edges := g.outgoing[sk]
	for i, e := range edges {
		if key(e.Target) == dk {
			g.outgoing[sk] = append(edges[:i], edges[i+1:]...)
			break
		}
	}

	if edge.Source.Kind == FunctionEndpoint {
		fedges := g.functionOutgoing[edge.Source.Index]
		for i, e := range fedges {
			if key(e.Target) == dk {
				g.functionOutgoing[edge.Source.Index] = append(fedges[:i], fedges[i+1:]...)
				break
			}
		}
	}
}

// OutgoingEdges returns the edges sourced at source, in insertion order.
func (g *Graph) OutgoingEdges(source PortRef) []Edge {
	return g.outgoing[key(source)]
}

// OutgoingEdgesFromFunction returns every edge sourced at functionIndex,
// across all of its output ports, in registration order.
func (g *Graph) OutgoingEdgesFromFunction(functionIndex int) []Edge {
	return g.functionOutgoing[functionIndex]
}

// HasIncoming reports whether target already has an incoming edge.
func (g *Graph) HasIncoming(target PortRef) bool {
	_, ok := g.destinations[key(target)]
	return ok
}

// ShouldTransfer reports whether an edge between a source of decimation
// factor sourceDF and a target of decimation factor targetDF fires at tick.
func ShouldTransfer(tick int, sourceDF, targetDF int) bool {
	return tick%lcm(sourceDF, targetDF) == 0
}

// FunctionDecimationFactor computes the least-common-multiple of the
// decimation factors of every subsimulator that functionIndex feeds,
// per the edges currently registered for it. subsimDF resolves a
// subsimulator index to its current decimation factor. Returns 1 if the
// function has no subsim consumers yet.
func FunctionDecimationFactor(g *Graph, functionIndex int, subsimDF func(index int) int) int {
	edges := g.functionOutgoing[functionIndex]
	df := 1
	for _, e := range edges {
		if e.Kind != FunctionToSubsim {
			continue
		}
		df = lcm(df, subsimDF(e.Target.Index))
	}
	return df
}

func portString(p PortRef) string {
	if p.Kind == FunctionEndpoint {
		return fmt.Sprintf("function[%d]", p.Index)
	}
	return fmt.Sprintf("subsim[%d].%s[%d]", p.Index, p.Type, p.Reference)
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
