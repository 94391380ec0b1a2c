// Package model defines the data structures for mutation testing.
package model

import (
	"encoding/json"
	"fmt"

	"gooze.dev/pkg/jgooze/internal/tree"
)

// Style selects how a structural edit splices its replacement in.
type Style int

const (
	// StyleReplace puts the replacement in place of the target.
	StyleReplace Style = iota
	// StyleAppend wraps the target in parentheses with the replacement
	// appended as a further operand.
	StyleAppend
)

func (s Style) String() string {
	if s == StyleAppend {
		return "append"
	}

	return "replace"
}

// StructuralEdit is the tree-level counterpart of a Mutation: parallel lists
// of target node indexes, replacement subtrees and styles.
type StructuralEdit struct {
	Targets      []int
	Replacements []*tree.Tree
	Styles       []Style
}

// Add appends one target.
func (e *StructuralEdit) Add(target int, replacement *tree.Tree, style Style) {
	e.Targets = append(e.Targets, target)
	e.Replacements = append(e.Replacements, replacement)
	e.Styles = append(e.Styles, style)
}

// Len returns the number of targets.
func (e *StructuralEdit) Len() int {
	if e == nil {
		return 0
	}

	return len(e.Targets)
}

type structuralEditJSON struct {
	Targets      []int        `json:"targets"`
	Replacements []*tree.Tree `json:"replacements"`
	Styles       []string     `json:"styles"`
}

// MarshalJSON encodes the edit with its replacement subtrees.
func (e *StructuralEdit) MarshalJSON() ([]byte, error) {
	out := structuralEditJSON{Targets: e.Targets, Replacements: e.Replacements}
	for _, s := range e.Styles {
		out.Styles = append(out.Styles, s.String())
	}

	return json.Marshal(out)
}

// UnmarshalJSON decodes an edit written by MarshalJSON.
func (e *StructuralEdit) UnmarshalJSON(data []byte) error {
	var in structuralEditJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("failed to decode structural edit: %w", err)
	}

	if len(in.Targets) != len(in.Replacements) || len(in.Targets) != len(in.Styles) {
		return fmt.Errorf("structural edit lists differ in length: %d targets, %d replacements, %d styles",
			len(in.Targets), len(in.Replacements), len(in.Styles))
	}

	*e = StructuralEdit{Targets: in.Targets, Replacements: in.Replacements}

	for _, s := range in.Styles {
		switch s {
		case "replace":
			e.Styles = append(e.Styles, StyleReplace)
		case "append":
			e.Styles = append(e.Styles, StyleAppend)
		default:
			return fmt.Errorf("unknown structural edit style %q", s)
		}
	}

	return nil
}

// Mutation is one atomic edit of a source file: the inclusive byte range
// [Start, End] is replaced by Replacement.
type Mutation struct {
	ID int
	// NodeIndex is the index of the node that owns the edit.
	NodeIndex   int
	Operator    string
	Start       int
	End         int
	Line        int
	Replacement string
	Color       string
	Path        Path
	Edit        *StructuralEdit
	// CompileTime marks mutations that cannot be dispatched at run time and
	// need a build of their own.
	CompileTime bool
}

// ByteOffset returns the change in file length the mutation introduces.
func (mu Mutation) ByteOffset() int {
	return len(mu.Replacement) - (mu.End - mu.Start + 1)
}

// Apply returns src with the mutation applied alone.
func (mu Mutation) Apply(src string) string {
	return mu.applyAt(src, 0)
}

func (mu Mutation) applyAt(src string, offset int) string {
	return src[:mu.Start+offset] + mu.Replacement + src[mu.End+offset+1:]
}

// Conflicts reports whether both mutations rewrite the same node at the same
// position, which forbids combining them.
func (mu Mutation) Conflicts(other Mutation) bool {
	return mu.NodeIndex == other.NodeIndex && mu.Start == other.Start
}

// Overlaps reports whether the byte ranges of the mutations intersect.
func (mu Mutation) Overlaps(other Mutation) bool {
	return mu.Start <= other.End && other.Start <= mu.End
}

// Validate checks the range against a source of length size.
func (mu Mutation) Validate(size int) error {
	if mu.Start < 0 || mu.End < mu.Start || mu.End >= size {
		return fmt.Errorf("mutation %d: range [%d, %d] outside source of %d bytes", mu.ID, mu.Start, mu.End, size)
	}

	return nil
}
