package schemata

import (
	"cmp"
	"slices"

	"gooze.dev/pkg/jgooze/internal/domain/mutagens"
	m "gooze.dev/pkg/jgooze/internal/model"
	"gooze.dev/pkg/jgooze/internal/tree"
)

// DefaultOverloadThreshold is the fan-out above which a site and the sites
// it contains are built as standalone mutants instead.
const DefaultOverloadThreshold = 10

// Site is one rewrite point of the encoding: a node and the mutations
// folded into it.
type Site struct {
	// Anchor is the index of the node the dispatch replaces.
	Anchor int
	Depth  int
	Class  int
	// Statement sites replace a method body with an if chain.
	Statement bool
	Mutations []m.Mutation

	// precedence is the operator whose mutations are folded in every
	// combination, when the site has one.
	precedence string
	// owners lists the nodes whose precedence mutations the site absorbed.
	owners []int
	node   tree.NodeID
}

// Precedence reports whether the site folds combinations.
func (s *Site) Precedence() bool {
	return s.precedence != ""
}

// Plan splits the mutations of a file into sites to encode and mutations
// that need a build of their own.
type Plan struct {
	// Sites are in encoding order: deepest first.
	Sites []*Site
	// CompileTime holds the mutations left out of the encoding, flagged.
	CompileTime []m.Mutation
	// Overloaded holds the anchors whose fan-out passed the threshold.
	Overloaded map[int]bool
}

// NewPlan groups mutations by anchor over the pristine, indexed tree.
// Mutations of a precedence-changing operator nested under a node the same
// operator rewrites join that node's site. A site is compile-time when its
// anchor is a constant context or when it is overloaded.
func NewPlan(t *tree.Tree, mutations []m.Mutation, threshold int) *Plan {
	if threshold <= 0 {
		threshold = DefaultOverloadThreshold
	}

	p := &Plan{Overloaded: make(map[int]bool)}

	var sites []*Site

	byAnchor := make(map[int]*Site)

	for _, mu := range mutations {
		anchor := anchorOf(mu)

		node, ok := t.NodeByIndex(anchor)
		if !ok || mu.Edit.Len() == 0 {
			mu.CompileTime = true
			p.CompileTime = append(p.CompileTime, mu)

			continue
		}

		if mutagens.ChangesPrecedence(mu.Operator) {
			if host := absorbing(t, sites, node, mu.Operator); host != nil {
				host.Mutations = append(host.Mutations, mu)
				if !slices.Contains(host.owners, anchor) {
					host.owners = append(host.owners, anchor)
				}

				continue
			}
		}

		s, ok := byAnchor[anchor]
		if !ok {
			meta := t.Meta(node)
			s = &Site{
				Anchor:    anchor,
				Depth:     meta.Depth,
				Class:     meta.MutationClass,
				Statement: mutagens.RewritesBody(mu.Operator),
				node:      node,
			}
			byAnchor[anchor] = s
			sites = append(sites, s)
		}

		if mutagens.ChangesPrecedence(mu.Operator) && s.precedence == "" {
			s.precedence = mu.Operator
			s.owners = append(s.owners, anchor)
		}

		s.Mutations = append(s.Mutations, mu)
	}

	p.markOverloaded(t, sites, threshold)

	for _, s := range sites {
		if s.Class == tree.ClassCompileTime || p.Overloaded[s.Anchor] {
			for _, mu := range s.Mutations {
				mu.CompileTime = true
				p.CompileTime = append(p.CompileTime, mu)
			}

			continue
		}

		p.Sites = append(p.Sites, s)
	}

	slices.SortStableFunc(p.Sites, func(a, b *Site) int {
		if c := cmp.Compare(b.Depth, a.Depth); c != 0 {
			return c
		}

		return cmp.Compare(a.Anchor, b.Anchor)
	})

	return p
}

// anchorOf returns the index of the node a mutation's dispatch replaces:
// the body for body rewrites, the returned value for nullified returns and
// the owning node otherwise.
func anchorOf(mu m.Mutation) int {
	if mu.Edit.Len() > 0 && (mutagens.RewritesBody(mu.Operator) || mu.Operator == "NullifyReturnValue") {
		return mu.Edit.Targets[0]
	}

	return mu.NodeIndex
}

func absorbing(t *tree.Tree, sites []*Site, node tree.NodeID, operator string) *Site {
	for _, s := range sites {
		if s.precedence == operator && s.node != node && t.IsAncestor(s.node, node) {
			return s
		}
	}

	return nil
}

// fanout is one entry of a site's descendant list.
type fanout struct {
	anchor     int
	precedence bool
}

// markOverloaded counts for every outermost site the sites below it. Sites
// without precedence combinations do not count precedence sites, which are
// judged on their own. A precedence site multiplies its count by one plus
// the number of other precedence nodes below it. A site over threshold
// marks every site on its list.
func (p *Plan) markOverloaded(t *tree.Tree, sites []*Site, threshold int) {
	lists := make(map[*Site][]fanout, len(sites))
	covered := make(map[*Site]bool)

	for _, s := range sites {
		for _, owner := range s.owners {
			if owner != s.Anchor {
				lists[s] = append(lists[s], fanout{anchor: owner, precedence: true})
			}
		}
	}

	for _, si := range sites {
		if covered[si] {
			continue
		}

		if si.Statement {
			lists[si] = append(lists[si], fanout{anchor: si.Anchor})
			continue
		}

		for _, sj := range sites {
			if !si.Precedence() && sj.Precedence() {
				continue
			}

			if !t.IsAncestor(si.node, sj.node) {
				continue
			}

			lists[si] = append(lists[si], fanout{anchor: sj.Anchor, precedence: sj.Precedence()})
			if sj != si {
				covered[sj] = true
			}
		}
	}

	for _, s := range sites {
		if covered[s] {
			continue
		}

		list := lists[s]
		n := len(list)

		if s.Precedence() {
			factor := 1
			for _, f := range list {
				if f.anchor != s.Anchor && f.precedence {
					factor++
				}
			}

			n *= factor
		}

		if n <= threshold {
			continue
		}

		for _, f := range list {
			p.Overloaded[f.anchor] = true
		}
	}
}
