package tree

import (
	"errors"
	"slices"
)

// ErrNotApplied is returned when a structural edit is reversed on a tree it
// was never applied to.
var ErrNotApplied = errors.New("structural edit not applied")

// Clone deep-copies the subtree rooted at id inside the same arena. The copy
// is detached and keeps the bookkeeping of the originals, node indexes
// included.
func (t *Tree) Clone(id NodeID) NodeID {
	return t.copyFrom(t, id)
}

// Subtree deep-copies the subtree rooted at id into a new tree whose root is
// the copy.
func (t *Tree) Subtree(id NodeID) *Tree {
	out := New()
	out.root = out.copyFrom(t, id)

	return out
}

// Copy returns an independent copy of the whole arena, detached slots and
// trailer included, so node ids stay valid across both trees.
func (t *Tree) Copy() *Tree {
	out := &Tree{root: t.root, Trailer: t.Trailer, maxDepth: t.maxDepth, nodes: slices.Clone(t.nodes)}
	for i := range out.nodes {
		out.nodes[i].Children = slices.Clone(out.nodes[i].Children)
		out.nodes[i].Meta.MutationIDs = slices.Clone(out.nodes[i].Meta.MutationIDs)
	}

	return out
}

// Graft deep-copies the whole of src into t and returns the detached copy of
// its root.
func (t *Tree) Graft(src *Tree) NodeID {
	if src.root == None {
		return None
	}

	return t.copyFrom(src, src.root)
}

func (t *Tree) copyFrom(src *Tree, id NodeID) NodeID {
	n := src.nodes[id]
	n.Parent = None
	n.Children = nil
	n.Meta.MutationIDs = slices.Clone(n.Meta.MutationIDs)

	t.nodes = append(t.nodes, n)
	dst := NodeID(len(t.nodes) - 1)

	kids := src.nodes[id].Children
	if len(kids) > 0 {
		copies := make([]NodeID, len(kids))
		for i, c := range kids {
			copies[i] = t.copyFrom(src, c)
			t.nodes[copies[i]].Parent = dst
		}

		t.nodes[dst].Children = copies
	}

	return dst
}

// Replace splices the content of from into the slot of target. The target
// keeps its position, field label and addressing bookkeeping so it stays
// reachable by its index; the applied ID and mutation IDs are taken from
// from. The from slot is left empty and must not be reused.
func (t *Tree) Replace(target, from NodeID) {
	src := t.nodes[from]

	if first := t.FirstTerminal(from); first != None && t.nodes[first].Leading == "" {
		if orig := t.FirstTerminal(target); orig != None {
			t.nodes[first].Leading = t.nodes[orig].Leading
		}
	}

	dst := &t.nodes[target]
	dst.Type = src.Type
	dst.Terminal = src.Terminal
	dst.Text = src.Text
	dst.Children = src.Children
	dst.Meta.AppliedID = src.Meta.AppliedID
	dst.Meta.MutationIDs = src.Meta.MutationIDs

	if src.Terminal {
		dst.Leading = t.nodes[from].Leading
	}

	for _, c := range dst.Children {
		t.nodes[c].Parent = target
	}

	t.nodes[from].Children = nil
	t.invalidate()
}

// Find returns every node of the subtree rooted at id matching pred, in
// pre-order.
func (t *Tree) Find(id NodeID, pred func(id NodeID) bool) []NodeID {
	var out []NodeID

	t.Walk(id, func(n NodeID) bool {
		if pred(n) {
			out = append(out, n)
		}

		return true
	})

	return out
}

// FindType returns every node of the given types under id, in pre-order.
func (t *Tree) FindType(id NodeID, types ...string) []NodeID {
	return t.Find(id, func(n NodeID) bool {
		return slices.Contains(types, t.nodes[n].Type)
	})
}

// FindApplied returns the first node under id stamped with appliedID.
func (t *Tree) FindApplied(id NodeID, appliedID int) (NodeID, bool) {
	found := None

	t.Walk(id, func(n NodeID) bool {
		if found != None {
			return false
		}

		if t.nodes[n].Meta.AppliedID == appliedID {
			found = n
			return false
		}

		return true
	})

	return found, found != None
}

// FindMutation returns every node under id whose variant key holds
// mutationID.
func (t *Tree) FindMutation(id NodeID, mutationID int) []NodeID {
	return t.Find(id, func(n NodeID) bool {
		return slices.Contains(t.nodes[n].Meta.MutationIDs, mutationID)
	})
}

// Attached reports whether id is reachable from the root.
func (t *Tree) Attached(id NodeID) bool {
	for id != None {
		if id == t.root {
			return true
		}

		id = t.nodes[id].Parent
	}

	return false
}
