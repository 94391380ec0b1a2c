package model

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

var (
	// ErrEmptyMutant is returned when a mutant is built without mutations.
	ErrEmptyMutant = errors.New("mutant has no mutations")
	// ErrOverlappingMutations is returned when two mutations of one mutant
	// rewrite intersecting byte ranges.
	ErrOverlappingMutations = errors.New("overlapping mutations")
	// ErrIncompatibleSources is returned when composing mutants of different
	// source texts.
	ErrIncompatibleSources = errors.New("mutants built from different sources")
)

// Mutant is one alternate version of a source file made of one or more
// mutations applied together.
type Mutant struct {
	ID        int
	Mutations []Mutation
	Source    string
	Mutated   string

	materialized bool
}

// NewMutant builds a mutant over source.
func NewMutant(id int, source string, mutations ...Mutation) (*Mutant, error) {
	if len(mutations) == 0 {
		return nil, ErrEmptyMutant
	}

	return &Mutant{ID: id, Mutations: slices.Clone(mutations), Source: source}, nil
}

// Order returns the number of mutations in the mutant.
func (mt *Mutant) Order() int {
	return len(mt.Mutations)
}

// MutationIDs returns the ids of the mutations in list order.
func (mt *Mutant) MutationIDs() []int {
	ids := make([]int, len(mt.Mutations))
	for i, mu := range mt.Mutations {
		ids[i] = mu.ID
	}

	return ids
}

// Materialize applies every mutation in list order and returns the mutated
// text. Mutations need not be sorted by position; a running offset per start
// position keeps later splices aligned with the edits already made.
func (mt *Mutant) Materialize() (string, error) {
	if mt.materialized {
		return mt.Mutated, nil
	}

	if len(mt.Mutations) == 0 {
		return "", ErrEmptyMutant
	}

	for i, mu := range mt.Mutations {
		if err := mu.Validate(len(mt.Source)); err != nil {
			return "", err
		}

		for _, prev := range mt.Mutations[:i] {
			if mu.Overlaps(prev) {
				return "", fmt.Errorf("%w: %d [%d, %d] and %d [%d, %d]",
					ErrOverlappingMutations, prev.ID, prev.Start, prev.End, mu.ID, mu.Start, mu.End)
			}
		}
	}

	code := mt.Source
	// offsetAt[p] holds the summed byte offset of every applied mutation
	// starting at or before p.
	offsetAt := make(map[int]int, len(mt.Mutations))

	for _, mu := range mt.Mutations {
		delta := mu.ByteOffset()
		offsetAt[mu.Start] = delta

		for _, pos := range sortedKeys(offsetAt) {
			switch {
			case pos < mu.Start:
				offsetAt[mu.Start] = offsetAt[pos] + delta
			case pos > mu.Start:
				offsetAt[pos] += delta
			}
		}

		code = mu.applyAt(code, offsetAt[mu.Start]-delta)
	}

	mt.Mutated = code
	mt.materialized = true

	return code, nil
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}

// Stub renders the provenance header written on top of a materialized
// mutant. It is a block comment, so comment terminators inside the quoted
// lines are escaped.
func (mt *Mutant) Stub() string {
	var sb strings.Builder

	sb.WriteString("/* jgooze generated order-" + strconv.Itoa(mt.Order()) + " mutant\n")
	sb.WriteString("\n----> mutantID: " + strconv.Itoa(mt.ID) + "\n\n")

	for _, mu := range mt.Mutations {
		before := escapeComment(lineAt(mt.Source, mu.Line))
		after := escapeComment(lineAt(mu.Apply(mt.Source), mu.Line))

		sb.WriteString("mutant type: " + mu.Operator)
		sb.WriteString("\n----> before: " + before)
		sb.WriteString("\n----> after: " + after)
		sb.WriteString("\n----> line number in original file: " + strconv.Itoa(mu.Line))
		sb.WriteString("\n----> mutated node: " + strconv.Itoa(mu.NodeIndex))
		sb.WriteString("\n----> mutation ID: " + strconv.Itoa(mu.ID))
		sb.WriteString("\n\n")
	}

	sb.WriteString("*/\n\n")

	return sb.String()
}

// String returns the stub followed by the mutated text.
func (mt *Mutant) String() string {
	code, err := mt.Materialize()
	if err != nil {
		return mt.Stub() + "/* " + escapeComment(err.Error()) + " */\n"
	}

	return mt.Stub() + code
}

// Compose returns a new mutant holding the mutations of both. The id of the
// result is the negated product of both ids.
func (mt *Mutant) Compose(other *Mutant) (*Mutant, error) {
	if other == nil {
		return mt.clone(), nil
	}

	if mt.Source != other.Source {
		return nil, ErrIncompatibleSources
	}

	mutations := make([]Mutation, 0, len(mt.Mutations)+len(other.Mutations))
	mutations = append(mutations, mt.Mutations...)
	mutations = append(mutations, other.Mutations...)

	out := &Mutant{ID: -1 * mt.ID * other.ID, Mutations: mutations, Source: mt.Source}
	if _, err := out.Materialize(); err != nil {
		return nil, fmt.Errorf("failed to materialize composed mutant: %w", err)
	}

	return out, nil
}

func (mt *Mutant) clone() *Mutant {
	out := *mt
	out.Mutations = slices.Clone(mt.Mutations)

	return &out
}

func escapeComment(s string) string {
	return strings.ReplaceAll(s, "*/", `*\/`)
}

// lineAt returns the 1-based line n of code without its terminator.
func lineAt(code string, n int) string {
	for i := 1; i < n; i++ {
		nl := strings.IndexAny(code, "\r\n")
		if nl < 0 {
			return ""
		}

		if strings.HasPrefix(code[nl:], "\r\n") {
			nl++
		}

		code = code[nl+1:]
	}

	if nl := strings.IndexAny(code, "\r\n"); nl >= 0 {
		return code[:nl]
	}

	return code
}
