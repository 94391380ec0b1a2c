package domain

import (
	"log/slog"
	"slices"

	m "gooze.dev/pkg/jgooze/internal/model"
)

// CombineUpToOrder builds the mutants of one file for every order from 1 to
// order. Order 1 holds one mutant per mutation. Each higher order extends
// every mutant of the order below with one later mutation that conflicts
// with none of its members, so a set of mutations appears once whatever the
// order it could be listed in. Mutants whose edits overlap are dropped.
//
// The result grows exponentially with order; callers pick the order.
// Mutant ids are consecutive from firstID.
func CombineUpToOrder(source string, mutations []m.Mutation, order, firstID int) []*m.Mutant {
	if len(mutations) == 0 || order < 1 {
		return nil
	}

	sorted := slices.Clone(mutations)
	slices.SortStableFunc(sorted, func(a, b m.Mutation) int { return a.ID - b.ID })

	type partial struct {
		picked []int // positions in sorted
	}

	var (
		out   []*m.Mutant
		level []partial
	)

	nextID := firstID

	emit := func(p partial) bool {
		members := make([]m.Mutation, len(p.picked))
		for i, pos := range p.picked {
			members[i] = sorted[pos]
		}

		mt, err := m.NewMutant(nextID, source, members...)
		if err == nil {
			_, err = mt.Materialize()
		}

		if err != nil {
			slog.Debug("Dropping mutant", "mutations", idsOf(members), "error", err)
			return false
		}

		out = append(out, mt)
		nextID++

		return true
	}

	for i := range sorted {
		p := partial{picked: []int{i}}
		if emit(p) {
			level = append(level, p)
		}
	}

	for k := 2; k <= order; k++ {
		var next []partial

		for _, p := range level {
			last := p.picked[len(p.picked)-1]

			for j := last + 1; j < len(sorted); j++ {
				if conflictsWithAny(sorted, p.picked, sorted[j]) {
					continue
				}

				q := partial{picked: append(slices.Clone(p.picked), j)}
				if emit(q) {
					next = append(next, q)
				}
			}
		}

		if len(next) == 0 {
			break
		}

		level = next
	}

	return out
}

func conflictsWithAny(sorted []m.Mutation, picked []int, mu m.Mutation) bool {
	for _, pos := range picked {
		if sorted[pos].Conflicts(mu) {
			return true
		}
	}

	return false
}

func idsOf(mutations []m.Mutation) []int {
	ids := make([]int, len(mutations))
	for i, mu := range mutations {
		ids[i] = mu.ID
	}

	return ids
}
