package snapshot

import (
	"fmt"

	"github.com/sarchlab/cosim/cosimerr"
)

// StateSource is the slice of slave.Subsimulator's surface BuildTree needs:
// an opaque GetState (the name comes from the map key passed to BuildTree).
// Satisfied by *slave.Subsimulator.
type StateSource interface {
	GetState() ([]byte, error)
}

// StateSink is the restore-side counterpart SetState needs.
type StateSink interface {
	SetState(state []byte) error
}

// BuildTree captures, under a root branch, one bytes leaf per named
// subsimulator holding its raw GetState snapshot. A subsimulator whose
// slave reports UnsupportedFeature for GetState is skipped rather than
// failing the whole capture, since not every slave supports snapshotting.
func BuildTree(rootName string, subs map[string]StateSource) (*Node, error) {
	root := NewBranch(rootName)
	for name, sub := range subs {
		state, err := sub.GetState()
		if err != nil {
			var unsupported *cosimerr.UnsupportedFeature
			if asUnsupportedFeature(err, &unsupported) {
				continue
			}
			return nil, err
		}
		root.Add(NewLeaf(name, NewBytesLeaf(state)))
	}
	return root, nil
}

// ApplyTree dispatches each child of root back into the matching
// subsimulator's SetState, the inverse of BuildTree. Fails if root names a
// subsimulator not present in subs.
func ApplyTree(root *Node, subs map[string]StateSink) error {
	for _, child := range root.Children {
		sink, ok := subs[child.Name]
		if !ok {
			return fmt.Errorf("snapshot: tree names subsimulator %q not present in the execution", child.Name)
		}
		state, ok := child.Value.Bytes()
		if !ok {
			return fmt.Errorf("snapshot: node %q is not a bytes leaf", child.Name)
		}
		if err := sink.SetState(state); err != nil {
			return err
		}
	}
	return nil
}

func asUnsupportedFeature(err error, target **cosimerr.UnsupportedFeature) bool {
	uf, ok := err.(*cosimerr.UnsupportedFeature)
	if !ok {
		return false
	}
	*target = uf
	return true
}
