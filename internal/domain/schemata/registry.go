// Package schemata folds the mutations of a Java file into one compilable
// source whose mutants are selected at run time through MUT<id>
// environment flags.
package schemata

import (
	"errors"
	"fmt"

	m "gooze.dev/pkg/jgooze/internal/model"
	"gooze.dev/pkg/jgooze/internal/tree"
)

// ErrTargetNotFound is returned when a structural edit addresses a node that
// is no longer in the tree.
var ErrTargetNotFound = errors.New("structural edit target not found")

// slot is one spliced-in replacement and the saved original it replaced.
type slot struct {
	applied int
	saved   tree.NodeID
}

// Registry tracks the structural edits applied to one file's tree so they
// can be reversed. It belongs to a single encoding session and is not safe
// for concurrent use.
type Registry struct {
	next int
	// live holds the slots of the current application of each mutation.
	live map[int][]slot
	// issued holds every slot ever spliced for each mutation, including
	// the ones copied into variants.
	issued map[int][]slot
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{live: make(map[int][]slot), issued: make(map[int][]slot)}
}

// Applied reports whether mutation id is currently applied.
func (r *Registry) Applied(id int) bool {
	_, ok := r.live[id]
	return ok
}

// Apply splices the structural edit of mu into the subtree rooted at root.
// Every outermost node numbered like a target is rewritten, so copies of a
// target made by earlier encodings are mutated too. The edit is all or
// nothing: when a target is missing the parts already spliced are undone.
func (r *Registry) Apply(t *tree.Tree, root tree.NodeID, mu m.Mutation) error {
	if mu.Edit.Len() == 0 {
		return fmt.Errorf("mutation %d has no structural edit", mu.ID)
	}

	if r.Applied(mu.ID) {
		return fmt.Errorf("mutation %d is already applied", mu.ID)
	}

	var slots []slot

	for i, target := range mu.Edit.Targets {
		matches := outermost(t, root, target)
		if len(matches) == 0 {
			r.undo(t, root, slots)
			return fmt.Errorf("%w: node %d of mutation %d", ErrTargetNotFound, target, mu.ID)
		}

		for _, node := range matches {
			r.next++
			s := slot{applied: r.next, saved: t.Clone(node)}

			var repl tree.NodeID
			if mu.Edit.Styles[i] == m.StyleAppend {
				repl = wrap(t, node, mu.Edit.Replacements[i])
			} else {
				repl = t.Graft(mu.Edit.Replacements[i])
			}

			t.Meta(repl).AppliedID = s.applied
			t.Replace(node, repl)

			slots = append(slots, s)
		}
	}

	r.live[mu.ID] = slots
	r.issued[mu.ID] = append(r.issued[mu.ID], slots...)

	return nil
}

// Reverse restores the nodes mu's last application replaced under root.
// Slots that were pruned since are skipped.
func (r *Registry) Reverse(t *tree.Tree, root tree.NodeID, mu m.Mutation) error {
	slots, ok := r.live[mu.ID]
	if !ok {
		return fmt.Errorf("mutation %d: %w", mu.ID, tree.ErrNotApplied)
	}

	delete(r.live, mu.ID)
	r.undo(t, root, slots)

	return nil
}

// Revert restores every copy of every replacement ever spliced for mutation
// id under root, wherever encoding copied it. It returns the number of
// nodes restored.
func (r *Registry) Revert(t *tree.Tree, root tree.NodeID, id int) int {
	restored := 0

	for _, s := range r.issued[id] {
		for _, node := range t.Find(root, func(n tree.NodeID) bool { return t.Meta(n).AppliedID == s.applied }) {
			t.Replace(node, t.Clone(s.saved))
			restored++
		}
	}

	delete(r.live, id)

	return restored
}

func (r *Registry) undo(t *tree.Tree, root tree.NodeID, slots []slot) {
	for i := len(slots) - 1; i >= 0; i-- {
		node, found := t.FindApplied(root, slots[i].applied)
		if !found {
			continue
		}

		t.Replace(node, t.Clone(slots[i].saved))
	}
}

// outermost returns the nodes numbered index under root, leaving out the
// ones nested inside another match.
func outermost(t *tree.Tree, root tree.NodeID, index int) []tree.NodeID {
	var out []tree.NodeID

	t.Walk(root, func(n tree.NodeID) bool {
		if t.Meta(n).Index == index {
			out = append(out, n)
			return false
		}

		return true
	})

	return out
}

// wrap builds (node <replacement>) for append-style edits.
func wrap(t *tree.Tree, node tree.NodeID, replacement *tree.Tree) tree.NodeID {
	inner := t.Clone(node)
	if first := t.FirstTerminal(inner); first != tree.None {
		t.Node(first).Leading = ""
	}

	open := t.AddTerminal("(", "(")
	tail := t.Graft(replacement)
	closing := t.AddTerminal(")", ")")

	return t.AddRule("parenthesized_expression", open, inner, tail, closing)
}
