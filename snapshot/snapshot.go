// Package snapshot implements the named-node tree used for state
// import/export: a nested tree whose leaves are any primitive value, byte,
// or byte vector, CBOR-encoded with a custom tag marking the signed-integer
// branch of an otherwise unsigned major type. Concrete CBOR snapshot
// serialisation is a core boundary per the external interfaces section;
// this package is the boundary's Go-native shape plus its CBOR codec.
package snapshot

import "fmt"

type leafKind int

const (
	leafBool leafKind = iota
	leafInt
	leafUint
	leafFloat
	leafString
	leafBytes
)

// Leaf is one primitive value a Node may carry: a bool, a signed or
// unsigned integer, a float, a string, or a byte vector.
type Leaf struct {
	kind leafKind
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	by   []byte
}

// NewBoolLeaf builds a boolean leaf.
func NewBoolLeaf(v bool) *Leaf { return &Leaf{kind: leafBool, b: v} }

// NewIntLeaf builds a signed-integer leaf.
func NewIntLeaf(v int64) *Leaf { return &Leaf{kind: leafInt, i: v} }

// NewUintLeaf builds an unsigned-integer leaf.
func NewUintLeaf(v uint64) *Leaf { return &Leaf{kind: leafUint, u: v} }

// NewFloatLeaf builds a floating-point leaf.
func NewFloatLeaf(v float64) *Leaf { return &Leaf{kind: leafFloat, f: v} }

// NewStringLeaf builds a string leaf.
func NewStringLeaf(v string) *Leaf { return &Leaf{kind: leafString, s: v} }

// NewBytesLeaf builds a byte-vector leaf, the kind used to carry a slave's
// opaque GetState/SetState snapshot.
func NewBytesLeaf(v []byte) *Leaf { return &Leaf{kind: leafBytes, by: v} }

// Bool returns the leaf's boolean payload; ok is false if it is not a bool.
func (l *Leaf) Bool() (v bool, ok bool) { return l.b, l.kind == leafBool }

// Int returns the leaf's signed-integer payload.
func (l *Leaf) Int() (v int64, ok bool) { return l.i, l.kind == leafInt }

// Uint returns the leaf's unsigned-integer payload.
func (l *Leaf) Uint() (v uint64, ok bool) { return l.u, l.kind == leafUint }

// Float returns the leaf's floating-point payload.
func (l *Leaf) Float() (v float64, ok bool) { return l.f, l.kind == leafFloat }

// String returns the leaf's string payload.
func (l *Leaf) String() (v string, ok bool) { return l.s, l.kind == leafString }

// Bytes returns the leaf's byte-vector payload.
func (l *Leaf) Bytes() (v []byte, ok bool) { return l.by, l.kind == leafBytes }

// Node is one entry in the named snapshot tree: either a branch with
// ordered named Children, or a leaf carrying exactly one Value. A node is
// never both; Value is nil for a branch and Children is nil for a leaf.
type Node struct {
	Name     string
	Children []*Node
	Value    *Leaf
}

// NewBranch builds an empty branch node named name.
func NewBranch(name string) *Node { return &Node{Name: name} }

// NewLeaf builds a leaf node named name holding value.
func NewLeaf(name string, value *Leaf) *Node { return &Node{Name: name, Value: value} }

// Add appends child to a branch's children, returning the branch for
// chaining.
func (n *Node) Add(child *Node) *Node {
	n.Children = append(n.Children, child)
	return n
}

// Child looks up an immediate child by name.
func (n *Node) Child(name string) (*Node, bool) {
	for _, c := range n.Children {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

func (n *Node) String() string {
	if n.Value != nil {
		return fmt.Sprintf("%s=<leaf>", n.Name)
	}
	return fmt.Sprintf("%s(%d children)", n.Name, len(n.Children))
}
