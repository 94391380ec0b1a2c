package mutagens

import (
	"fmt"
	"slices"
	"strings"
)

// Meta types tag operators for selection.
const (
	MetaTraditional = "Traditional"
	MetaNull        = "Null"
	MetaMethod      = "Method"
	MetaAll         = "All"
)

// Entry is one named constructor of the catalogue.
type Entry struct {
	Name      string
	MetaTypes []string
	Color     string
	New       func() Operator
}

// catalogue lists every operator in generation order.
var catalogue = build(
	newRemoveMethod,
	newRemoveNullCheck,
	newNullifyObjectInitialization,
	newNullifyReturnValue,
	newNullifyInputVariable,
	newArithmeticBinary,
	newRelational,
	newConditional,
	newLogical,
	newAssignmentShortcut,
	newArithmeticUnary,
	newConditionalDeletion,
	newArithmeticShortcut,
	newShift,
)

func build(constructors ...func() Operator) []Entry {
	entries := make([]Entry, 0, len(constructors))

	for _, ctor := range constructors {
		op := ctor()
		entries = append(entries, Entry{Name: op.Name(), MetaTypes: op.MetaTypes(), Color: op.Color(), New: ctor})
	}

	return entries
}

// Catalogue returns every entry in generation order.
func Catalogue() []Entry {
	return slices.Clone(catalogue)
}

// Lookup returns the entry registered under name.
func Lookup(name string) (Entry, bool) {
	for _, e := range catalogue {
		if e.Name == name {
			return e, true
		}
	}

	return Entry{}, false
}

// Select instantiates every operator tagged with one of metaTypes, each
// once, in generation order.
func Select(metaTypes ...string) ([]Operator, error) {
	if len(metaTypes) == 0 {
		metaTypes = []string{MetaTraditional}
	}

	for _, mt := range metaTypes {
		if !isMetaType(mt) {
			return nil, fmt.Errorf("unsupported meta type: %s", mt)
		}
	}

	var ops []Operator

	for _, e := range catalogue {
		if slices.ContainsFunc(metaTypes, func(mt string) bool { return slices.Contains(e.MetaTypes, mt) }) {
			ops = append(ops, e.New())
		}
	}

	return ops, nil
}

// ParseMetaTypes splits a comma separated list, normalizing the case of
// each name.
func ParseMetaTypes(list string) ([]string, error) {
	var out []string

	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		found := false

		for _, mt := range []string{MetaTraditional, MetaNull, MetaMethod, MetaAll} {
			if strings.EqualFold(mt, part) {
				out = append(out, mt)
				found = true
			}
		}

		if !found {
			return nil, fmt.Errorf("unsupported meta type: %s", part)
		}
	}

	return out, nil
}

func isMetaType(name string) bool {
	switch name {
	case MetaTraditional, MetaNull, MetaMethod, MetaAll:
		return true
	}

	return false
}

// ChangesPrecedence reports whether the operator swaps operators of
// different precedence, so that every combination of its mutations at one
// expression has to be encoded.
func ChangesPrecedence(name string) bool {
	return name == "ConditionalOperatorReplacement" || name == "LogicalOperatorReplacement"
}

// RewritesBody reports whether the operator replaces a whole method body,
// which is encoded as a statement rather than an expression.
func RewritesBody(name string) bool {
	return name == "RemoveMethod" || name == "NullifyInputVariable"
}
