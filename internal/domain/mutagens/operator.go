// Package mutagens implements the catalogue of Java mutation operators.
package mutagens

import (
	"strconv"

	m "gooze.dev/pkg/jgooze/internal/model"
	"gooze.dev/pkg/jgooze/internal/tree"
)

// Operator is one stateless entry of the catalogue. Find scans a subtree
// for candidate nodes, Filter keeps the ones the operator can rewrite and
// Mutate emits the mutations of one mutable node, drawing ids from next.
type Operator interface {
	Name() string
	MetaTypes() []string
	Color() string
	Find(t *tree.Tree, root tree.NodeID, searchChildren bool) []tree.NodeID
	Filter(t *tree.Tree, candidates []tree.NodeID) []tree.NodeID
	Mutate(t *tree.Tree, node tree.NodeID, next func() int) []m.Mutation
}

// Options configures one operator run.
type Options struct {
	// LastID is the last mutation id issued before this run. Each mutation
	// takes the next one.
	LastID int
	// Mutations generates mutations right away.
	Mutations bool
	// Mutants generates single-mutation mutants; it implies Mutations.
	Mutants bool
	// SearchChildren scans the whole subtree instead of its root only.
	SearchChildren bool
	Path           m.Path
}

// Run is one operator applied to one (sub)tree.
type Run struct {
	op     Operator
	t      *tree.Tree
	source string
	path   m.Path
	lastID int

	candidates []tree.NodeID
	mutable    []tree.NodeID
	mutations  []m.Mutation
	mutants    []*m.Mutant
	generated  bool
}

// NewRun runs the operator pipeline over the subtree rooted at root: find
// candidates, filter them, then generate mutations and mutants as opts
// requests.
func NewRun(op Operator, t *tree.Tree, root tree.NodeID, source string, opts Options) *Run {
	r := &Run{op: op, t: t, source: source, path: opts.Path, lastID: opts.LastID}

	r.candidates = op.Find(t, root, opts.SearchChildren)
	r.mutable = op.Filter(t, r.candidates)

	switch {
	case opts.Mutants:
		r.GenerateMutants()
	case opts.Mutations:
		r.GenerateMutations()
	}

	return r
}

// Operator returns the operator of the run.
func (r *Run) Operator() Operator {
	return r.op
}

// LastID returns the last mutation id issued so far; callers chaining runs
// pass it on as the next run's Options.LastID.
func (r *Run) LastID() int {
	return r.lastID
}

// Candidates returns every node the operator looked at.
func (r *Run) Candidates() []tree.NodeID {
	return r.candidates
}

// Mutable returns the candidates the operator can rewrite.
func (r *Run) Mutable() []tree.NodeID {
	return r.mutable
}

// Mutations returns the generated mutations.
func (r *Run) Mutations() []m.Mutation {
	return r.mutations
}

// Mutants returns the generated mutants.
func (r *Run) Mutants() []*m.Mutant {
	return r.mutants
}

// GenerateMutations emits the mutations of every mutable node once.
func (r *Run) GenerateMutations() []m.Mutation {
	if r.generated {
		return r.mutations
	}

	next := func() int {
		r.lastID++
		return r.lastID
	}

	for _, node := range r.mutable {
		for _, mu := range r.op.Mutate(r.t, node, next) {
			mu.Operator = r.op.Name()
			mu.Color = r.op.Color()
			mu.Path = r.path
			r.mutations = append(r.mutations, mu)
		}
	}

	r.generated = true

	return r.mutations
}

// GenerateMutants builds one mutant per mutation, generating the mutations
// first when needed.
func (r *Run) GenerateMutants() []*m.Mutant {
	r.GenerateMutations()

	if r.mutants != nil {
		return r.mutants
	}

	r.mutants = make([]*m.Mutant, 0, len(r.mutations))

	for i, mu := range r.mutations {
		mt, err := m.NewMutant(i+1, r.source, mu)
		if err != nil {
			continue
		}

		if _, err := mt.Materialize(); err != nil {
			continue
		}

		r.mutants = append(r.mutants, mt)
	}

	return r.mutants
}

// marker is the comment that tags schemata code with its mutation id.
func marker(id int) string {
	return "/*MUT" + strconv.Itoa(id) + "*/"
}

// terminal builds a one-terminal replacement subtree.
func terminal(typ, text string) *tree.Tree {
	frag := tree.New()
	frag.SetRoot(frag.AddTerminal(typ, text))

	return frag
}

// at returns a mutation spanning node with its addressing filled in.
func at(t *tree.Tree, owner, span tree.NodeID) m.Mutation {
	n := t.Node(span)

	return m.Mutation{
		NodeIndex: t.Meta(owner).Index,
		Start:     n.Start,
		End:       n.End,
		Line:      t.Node(owner).Line,
	}
}

// findTypes walks the subtree for nodes of the given types. Without
// searchChildren only root itself is considered.
func findTypes(t *tree.Tree, root tree.NodeID, searchChildren bool, types ...string) []tree.NodeID {
	if !searchChildren {
		for _, typ := range types {
			if t.Type(root) == typ {
				return []tree.NodeID{root}
			}
		}

		return nil
	}

	return t.FindType(root, types...)
}
