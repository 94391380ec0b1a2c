package schemata

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	m "gooze.dev/pkg/jgooze/internal/model"
	"gooze.dev/pkg/jgooze/internal/tree"
)

// Encoder folds the mutations of one file into a schemata source.
type Encoder struct {
	threshold int
}

// NewEncoder returns an encoder marking sites with a fan-out above
// threshold as compile-time; zero selects DefaultOverloadThreshold.
func NewEncoder(threshold int) *Encoder {
	if threshold <= 0 {
		threshold = DefaultOverloadThreshold
	}

	return &Encoder{threshold: threshold}
}

// Variant is one alternative of a site, selected when every flag of its
// mutations is set.
type Variant struct {
	Key         string
	MutationIDs []int
}

// File is the encoding of one source file. It owns the tree it was built
// from and the registry of the edits spliced into it.
type File struct {
	Path m.Path

	t        *tree.Tree
	registry *Registry
	plan     *Plan

	mutations   map[int]m.Mutation
	encoded     []int
	reverted    []int
	compileTime []m.Mutation
	variants    map[int][]Variant

	bodies      map[int]bool
	classBodies map[int]bool
}

// Encode rewrites t, an indexed tree whose mutations were generated on it,
// into the schemata form. t is modified in place and must not be shared.
func (e *Encoder) Encode(path m.Path, t *tree.Tree, mutations []m.Mutation) (*File, error) {
	if t.Root() == tree.None {
		return nil, fmt.Errorf("failed to encode %s: empty tree", path)
	}

	f := &File{
		Path:        path,
		t:           t,
		registry:    NewRegistry(),
		plan:        NewPlan(t, mutations, e.threshold),
		mutations:   make(map[int]m.Mutation, len(mutations)),
		variants:    make(map[int][]Variant),
		bodies:      make(map[int]bool),
		classBodies: make(map[int]bool),
	}

	for _, mu := range mutations {
		f.mutations[mu.ID] = mu
	}

	f.compileTime = slices.Clone(f.plan.CompileTime)

	for _, site := range f.plan.Sites {
		if err := f.encodeSite(site); err != nil {
			slog.Warn("Building schemata site as standalone mutants", "path", path, "node", site.Anchor, "error", err)

			for _, mu := range site.Mutations {
				mu.CompileTime = true
				f.compileTime = append(f.compileTime, mu)
			}

			continue
		}

		for _, mu := range site.Mutations {
			f.encoded = append(f.encoded, mu.ID)
		}
	}

	f.declare()

	slog.Debug("Encoded schemata", "path", path, "sites", len(f.plan.Sites), "encoded", len(f.encoded), "compile_time", len(f.compileTime))

	return f, nil
}

// Text renders the encoded source.
func (f *File) Text() string {
	return f.t.Source()
}

// Encoded returns the ids of the mutations selectable at run time.
func (f *File) Encoded() []int {
	return slices.Clone(f.encoded)
}

// Has reports whether mutation id is selectable at run time.
func (f *File) Has(id int) bool {
	return slices.Contains(f.encoded, id)
}

// CompileTime returns the mutations that need a build of their own.
func (f *File) CompileTime() []m.Mutation {
	return slices.Clone(f.compileTime)
}

// Reverted returns the ids taken out of the encoding after build failures.
func (f *File) Reverted() []int {
	return slices.Clone(f.reverted)
}

// Mutation returns the mutation registered under id.
func (f *File) Mutation(id int) (m.Mutation, bool) {
	mu, ok := f.mutations[id]
	return mu, ok
}

// Variants returns the variants of the site anchored at node index anchor,
// in dispatch order.
func (f *File) Variants(anchor int) []Variant {
	return slices.Clone(f.variants[anchor])
}

// Revert takes mutation id out of the encoding: every variant embodying it
// falls back to the original code, so the flag no longer changes behavior.
func (f *File) Revert(id int) error {
	if !f.Has(id) {
		return fmt.Errorf("mutation %d is not encoded in %s", id, f.Path)
	}

	root := f.t.Root()
	restored := f.registry.Revert(f.t, root, id)

	for _, v := range f.t.FindMutation(root, id) {
		meta := f.t.Meta(v)
		meta.MutationIDs = slices.DeleteFunc(meta.MutationIDs, func(x int) bool { return x == id })
	}

	f.encoded = slices.DeleteFunc(f.encoded, func(x int) bool { return x == id })
	f.reverted = append(f.reverted, id)

	if restored == 0 {
		return fmt.Errorf("%w: mutation %d in %s", ErrTargetNotFound, id, f.Path)
	}

	return nil
}

type built struct {
	ids  []int
	root tree.NodeID
}

func (f *File) encodeSite(s *Site) error {
	t := f.t
	anchor := s.node

	variants, err := f.variantsOf(s)
	if err != nil {
		return err
	}

	classBody := -1
	if t.Meta(anchor).ContextID == tree.ContextClassBody {
		if body := t.OutermostClassBody(anchor); body != tree.None {
			classBody = t.Meta(body).Index
		}
	}

	b := builder{t: t}

	var dispatch tree.NodeID

	switch {
	case s.Statement:
		dispatch = f.ifChain(b, anchor, variants, classBody)
	default:
		dispatch = b.leading(t.Clone(anchor), "")

		for i := len(variants) - 1; i >= 0; i-- {
			dispatch = b.ternary(b.condition(variants[i].ids, classBody), variants[i].root, dispatch)
		}

		if s.Class == tree.ClassStatement || s.Class == tree.ClassForClause {
			body := t.EnclosingBody(anchor)
			if body == tree.None {
				return fmt.Errorf("no body encloses statement site %d", s.Anchor)
			}

			idx := t.Meta(body).Index
			f.bodies[idx] = true
			dispatch = b.assign(idx, dispatch)
		}
	}

	if classBody >= 0 {
		f.classBodies[classBody] = true
	}

	t.Replace(anchor, dispatch)

	for _, v := range variants {
		f.variants[s.Anchor] = append(f.variants[s.Anchor], Variant{Key: key(v.ids), MutationIDs: v.ids})
	}

	return nil
}

// variantsOf applies each group of the site's mutations to the anchor,
// copies the result and reverses the group.
func (f *File) variantsOf(s *Site) ([]built, error) {
	t := f.t
	b := builder{t: t}

	var out []built

	for _, group := range groups(s) {
		var applied []m.Mutation

		for _, mu := range group {
			if err := f.registry.Apply(t, s.node, mu); err != nil {
				f.reverse(s.node, applied)
				return nil, err
			}

			applied = append(applied, mu)
		}

		v := b.leading(t.Clone(s.node), "")
		ids := make([]int, len(group))

		for i, mu := range group {
			ids[i] = mu.ID
		}

		t.Meta(v).MutationIDs = ids

		f.reverse(s.node, applied)

		out = append(out, built{ids: ids, root: v})
	}

	return out, nil
}

func (f *File) reverse(root tree.NodeID, applied []m.Mutation) {
	for i := len(applied) - 1; i >= 0; i-- {
		if err := f.registry.Reverse(f.t, root, applied[i]); err != nil {
			slog.Warn("Failed to reverse structural edit", "path", f.Path, "mutation", applied[i].ID, "error", err)
		}
	}
}

// ifChain builds { if (g1) v1 if (g2) v2 ... <original statements> }.
func (f *File) ifChain(b builder, anchor tree.NodeID, variants []built, classBody int) tree.NodeID {
	t := f.t
	kids := slices.Clone(t.Children(anchor))

	block := t.AddRule("block", b.tok("{", "{"))

	for _, v := range variants {
		t.AppendChild(block, b.guarded(v.ids[0], b.condition(v.ids, classBody), v.root))
	}

	if len(kids) >= 2 {
		for _, stmt := range kids[1 : len(kids)-1] {
			t.AppendChild(block, stmt)
		}

		t.AppendChild(block, kids[len(kids)-1])
	} else {
		t.AppendChild(block, b.spaced("}", "}"))
	}

	return block
}

// groups lists the mutation sets of a site in dispatch order: every
// non-empty combination of the precedence mutations, largest first, then
// each other mutation alone.
func groups(s *Site) [][]m.Mutation {
	var prec, rest []m.Mutation

	for _, mu := range s.Mutations {
		if s.Precedence() && mu.Operator == s.precedence {
			prec = append(prec, mu)
		} else {
			rest = append(rest, mu)
		}
	}

	var out [][]m.Mutation

	for size := len(prec); size > 0; size-- {
		out = append(out, combinations(prec, size)...)
	}

	for _, mu := range rest {
		out = append(out, []m.Mutation{mu})
	}

	return out
}

// combinations returns the size-element subsets of list in lexicographic
// order of positions.
func combinations(list []m.Mutation, size int) [][]m.Mutation {
	var out [][]m.Mutation

	var pick func(start int, acc []m.Mutation)
	pick = func(start int, acc []m.Mutation) {
		if len(acc) == size {
			out = append(out, slices.Clone(acc))
			return
		}

		for i := start; i <= len(list)-(size-len(acc)); i++ {
			pick(i+1, append(acc, list[i]))
		}
	}

	pick(0, make([]m.Mutation, 0, size))

	return out
}

// declare inserts the scratch variables and environment maps the guards
// refer to. Variants cloned from a host keep its index, so only the
// outermost copies get a declaration; the nested ones are in its scope.
func (f *File) declare() {
	t := f.t
	b := builder{t: t}
	root := t.Root()

	for _, idx := range sortedKeys(f.bodies) {
		for _, body := range outermost(t, root, idx) {
			if t.IsTerminal(body) {
				continue
			}

			t.InsertChild(body, bodyInsertAt(t, body), b.scratchDecl(idx))
		}
	}

	for _, idx := range sortedKeys(f.classBodies) {
		for _, body := range outermost(t, root, idx) {
			if t.IsTerminal(body) {
				continue
			}

			t.InsertChild(body, 1, b.envMapDecl(idx))
		}
	}
}

// bodyInsertAt returns the child position after the opening brace and after
// an explicit this(...) or super(...) call.
func bodyInsertAt(t *tree.Tree, body tree.NodeID) int {
	first := t.Child(body, 1)
	if first == tree.None {
		return 1
	}

	if t.Type(first) == "explicit_constructor_invocation" {
		return 2
	}

	text := strings.TrimSpace(t.Text(first))
	if strings.HasPrefix(text, "this(") || strings.HasPrefix(text, "super(") {
		return 2
	}

	return 1
}

func key(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}

	return strings.Join(parts, ",")
}

func sortedKeys(set map[int]bool) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}

	slices.Sort(keys)

	return keys
}
