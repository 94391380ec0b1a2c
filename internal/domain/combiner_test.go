package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "gooze.dev/pkg/jgooze/internal/model"
)

func TestCombineUpToOrder(t *testing.T) {
	const src = "abcdef"

	x := m.Mutation{ID: 1, NodeIndex: 1, Start: 0, End: 0, Replacement: "X"}
	y := m.Mutation{ID: 2, NodeIndex: 2, Start: 2, End: 2, Replacement: "Y"}
	z := m.Mutation{ID: 3, NodeIndex: 3, Start: 4, End: 4, Replacement: "Z"}
	sameNode := m.Mutation{ID: 4, NodeIndex: 1, Start: 0, End: 0, Replacement: "W"}
	overlapping := m.Mutation{ID: 5, NodeIndex: 5, Start: 1, End: 2, Replacement: "Q"}

	tests := []struct {
		name      string
		mutations []m.Mutation
		order     int
		firstID   int
		want      [][]int
	}{
		{
			name:      "first order only",
			mutations: []m.Mutation{x, y, z},
			order:     1,
			firstID:   1,
			want:      [][]int{{1}, {2}, {3}},
		},
		{
			name:      "every combination once",
			mutations: []m.Mutation{z, x, y},
			order:     3,
			firstID:   10,
			want:      [][]int{{1}, {2}, {3}, {1, 2}, {1, 3}, {2, 3}, {1, 2, 3}},
		},
		{
			name:      "order above the mutation count",
			mutations: []m.Mutation{x, y},
			order:     5,
			firstID:   1,
			want:      [][]int{{1}, {2}, {1, 2}},
		},
		{
			name:      "conflicting mutations are not combined",
			mutations: []m.Mutation{x, sameNode},
			order:     2,
			firstID:   1,
			want:      [][]int{{1}, {4}},
		},
		{
			name:      "overlapping mutations are dropped",
			mutations: []m.Mutation{y, overlapping},
			order:     2,
			firstID:   1,
			want:      [][]int{{2}, {5}},
		},
		{
			name:    "no mutations",
			order:   2,
			firstID: 1,
		},
		{
			name:      "order zero",
			mutations: []m.Mutation{x},
			order:     0,
			firstID:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutants := CombineUpToOrder(src, tt.mutations, tt.order, tt.firstID)
			require.Len(t, mutants, len(tt.want))

			for i, mt := range mutants {
				assert.Equal(t, tt.firstID+i, mt.ID)
				assert.Equal(t, tt.want[i], mt.MutationIDs())
				assert.Equal(t, src, mt.Source)
			}
		})
	}
}

func TestCombineUpToOrder_Materializes(t *testing.T) {
	mutations := []m.Mutation{
		{ID: 1, NodeIndex: 1, Start: 0, End: 0, Replacement: "XX"},
		{ID: 2, NodeIndex: 2, Start: 2, End: 3, Replacement: ""},
		{ID: 3, NodeIndex: 3, Start: 5, End: 5, Replacement: "Z"},
	}

	mutants := CombineUpToOrder("abcdef", mutations, 3, 1)
	require.Len(t, mutants, 7)

	want := []string{"XXbcdef", "abef", "abcdeZ", "XXbef", "XXbcdeZ", "abeZ", "XXbeZ"}
	for i, mt := range mutants {
		got, err := mt.Materialize()
		require.NoError(t, err)
		assert.Equal(t, want[i], got, "mutant %v", mt.MutationIDs())
	}
}
