package snapshot

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/sarchlab/cosim/cosimerr"
)

// SignedIntTag is the custom CBOR tag the snapshot wire format uses to mark
// a non-negative signed-integer leaf. CBOR's major type 0 (unsigned
// integer) and a non-negative signed integer are otherwise indistinguishable
// on the wire; a negative signed integer already gets CBOR's native major
// type 1 and needs no tag. This mirrors the FMI/OSP snapshot convention the
// external interfaces boundary names.
const SignedIntTag = 0x8000

type wireNode struct {
	Name     string      `cbor:"name"`
	Children []*wireNode `cbor:"children,omitempty"`
	Value    interface{} `cbor:"value,omitempty"`
}

// Encode serialises root as CBOR.
func Encode(root *Node) ([]byte, error) {
	w, err := toWire(root)
	if err != nil {
		return nil, err
	}
	data, err := cbor.Marshal(w)
	if err != nil {
		return nil, &cosimerr.BadFile{Path: "<snapshot>", Err: err}
	}
	return data, nil
}

// Decode reconstructs a Node tree from CBOR bytes previously produced by
// Encode.
func Decode(data []byte) (*Node, error) {
	var w wireNode
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, &cosimerr.BadFile{Path: "<snapshot>", Err: err}
	}
	return fromWire(&w)
}

func toWire(n *Node) (*wireNode, error) {
	w := &wireNode{Name: n.Name}

	if n.Value != nil {
		v, err := marshalLeaf(n.Value)
		if err != nil {
			return nil, err
		}
		w.Value = v
		return w, nil
	}

	w.Children = make([]*wireNode, len(n.Children))
	for i, c := range n.Children {
		cw, err := toWire(c)
		if err != nil {
			return nil, err
		}
		w.Children[i] = cw
	}
	return w, nil
}

func fromWire(w *wireNode) (*Node, error) {
	if w.Value != nil {
		leaf, err := leafFromWire(w.Value)
		if err != nil {
			return nil, err
		}
		return &Node{Name: w.Name, Value: leaf}, nil
	}

	n := &Node{Name: w.Name}
	for _, cw := range w.Children {
		c, err := fromWire(cw)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, c)
	}
	return n, nil
}

func marshalLeaf(l *Leaf) (interface{}, error) {
	switch l.kind {
	case leafBool:
		return l.b, nil
	case leafInt:
		if l.i >= 0 {
			return cbor.Tag{Number: SignedIntTag, Content: uint64(l.i)}, nil
		}
		return l.i, nil
	case leafUint:
		return l.u, nil
	case leafFloat:
		return l.f, nil
	case leafString:
		return l.s, nil
	case leafBytes:
		return l.by, nil
	default:
		return nil, fmt.Errorf("snapshot: leaf has no recognised kind")
	}
}

func leafFromWire(v interface{}) (*Leaf, error) {
	switch t := v.(type) {
	case bool:
		return NewBoolLeaf(t), nil
	case uint64:
		return NewUintLeaf(t), nil
	case int64:
		return NewIntLeaf(t), nil
	case float64:
		return NewFloatLeaf(t), nil
	case string:
		return NewStringLeaf(t), nil
	case []byte:
		return NewBytesLeaf(t), nil
	case cbor.Tag:
		if t.Number != SignedIntTag {
			return nil, &cosimerr.UnsupportedFeature{Feature: fmt.Sprintf("snapshot: unsupported cbor tag %#x", t.Number)}
		}
		switch c := t.Content.(type) {
		case uint64:
			return NewIntLeaf(int64(c)), nil
		case int64:
			return NewIntLeaf(c), nil
		default:
			return nil, fmt.Errorf("snapshot: tag 0x8000 content has unexpected type %T", t.Content)
		}
	default:
		return nil, fmt.Errorf("snapshot: unsupported leaf wire type %T", v)
	}
}
