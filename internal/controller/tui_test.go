package controller

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "gooze.dev/pkg/jgooze/internal/model"
)

func update(t *testing.T, model tea.Model, msgs ...tea.Msg) tea.Model {
	t.Helper()

	for _, msg := range msgs {
		model, _ = model.Update(msg)
	}

	return model
}

func TestRunModel(t *testing.T) {
	model := update(t, newRunModel(),
		concurrencyMsg{threads: 2, shardIndex: 0, shardCount: 1},
		upcomingMsg(4),
		startedMsg{worker: 0, mutant: 1, label: "mutant 1 AOR src/A.java:5"},
		startedMsg{worker: 1, mutant: 2, label: "mutant 2 ROR src/A.java:9"},
		completedMsg(m.Result{MutantID: 1, Operator: "AOR", Path: "src/A.java", Line: 5, Status: m.Killed}),
		completedMsg(m.Result{MutantID: 3, Operator: "ROR", Path: "src/A.java", Line: 9, Status: m.Uncovered}),
	)

	rm, ok := model.(runModel)
	require.True(t, ok)

	assert.Equal(t, 2, rm.done)
	assert.InDelta(t, 0.5, rm.percent(), 1e-9)
	assert.Equal(t, map[m.TestStatus]int{m.Killed: 1, m.Uncovered: 1}, rm.counts)
	assert.Len(t, rm.active, 1)
	require.Len(t, rm.recent, 1)
	assert.Contains(t, rm.recent[0], "mutant 3 ROR src/A.java:9")

	view := rm.View()
	assert.Contains(t, view, "2 worker(s) | shard 0/1")
	assert.Contains(t, view, "2/4")
	assert.Contains(t, view, "worker 1: mutant 2 ROR src/A.java:9")
	assert.NotContains(t, view, "worker 0:")
	assert.Contains(t, view, "Not detected:")
	assert.NotContains(t, view, "Mutation score")

	rm = update(t, rm, scoreMsg(0.5)).(runModel)
	assert.Contains(t, rm.View(), "Mutation score: 50.00%")
}

func TestRunModel_RecentIsBounded(t *testing.T) {
	model := tea.Model(newRunModel())
	for id := range maxRecent + 3 {
		model = update(t, model, completedMsg(m.Result{MutantID: id, Status: m.Survived}))
	}

	rm := model.(runModel)
	require.Len(t, rm.recent, maxRecent)
	assert.Contains(t, rm.recent[maxRecent-1], fmt.Sprintf("mutant %d ", maxRecent+2))
	assert.Zero(t, newRunModel().percent())
}

func TestPagerModel(t *testing.T) {
	lines := make([]string, 30)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %02d", i+1)
	}

	key := func(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

	pager := newPagerModel("title", lines)
	assert.False(t, pager.needsPagination(), "an unknown height never pages")

	model := update(t, pager, tea.WindowSizeMsg{Width: 80, Height: 17})
	pm := model.(pagerModel)
	require.True(t, pm.needsPagination())
	assert.Equal(t, 10, pm.itemsPerPage())
	assert.Equal(t, 20, pm.maxOffset())

	tests := []struct {
		name   string
		keys   []tea.KeyMsg
		offset int
	}{
		{"down", []tea.KeyMsg{key("j"), key("j")}, 2},
		{"up stops at top", []tea.KeyMsg{key("k")}, 0},
		{"page down", []tea.KeyMsg{key("d"), key("d"), key("d")}, 20},
		{"bottom then page up", []tea.KeyMsg{key("G"), key("u")}, 10},
		{"top", []tea.KeyMsg{key("j"), key("g")}, 0},
		{"arrow keys", []tea.KeyMsg{{Type: tea.KeyDown}, {Type: tea.KeyDown}, {Type: tea.KeyUp}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tea.Model(pm)
			for _, k := range tt.keys {
				got = update(t, got, k)
			}

			assert.Equal(t, tt.offset, got.(pagerModel).offset)
		})
	}

	bottom := update(t, pm, key("G")).(pagerModel)
	view := bottom.View()
	assert.Contains(t, view, "line 30")
	assert.NotContains(t, view, "line 20\n")
	assert.Contains(t, view, "Lines 21-30 of 30")

	quit, cmd := pm.Update(key("q"))
	assert.True(t, quit.(pagerModel).quitting)
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestTUI_PrintsWhenNotATerminal(t *testing.T) {
	ctx := context.Background()

	var out bytes.Buffer

	ui := NewTUI(&out)
	require.NoError(t, ui.Start(ctx, WithViewMode()))
	require.NoError(t, ui.DisplayResults(ctx, testSummary(), FormatTable))
	ui.Wait(ctx)
	ui.Close(ctx)

	assert.Contains(t, out.String(), "jgooze - Mutation Testing Results")
	assert.Contains(t, out.String(), "mutant does not compile")
	assert.Contains(t, out.String(), "Mutation score: 50.00%")

	out.Reset()
	require.NoError(t, ui.DisplayResults(ctx, testSummary(), FormatYAML))
	assert.Contains(t, out.String(), "status: build_failure")

	out.Reset()
	require.NoError(t, ui.DisplayEstimation(ctx, []m.Estimate{{Path: "src/A.java", Mutations: 2, Mutants: 3}}, nil))
	assert.Contains(t, out.String(), "src/A.java")

	out.Reset()
	require.NoError(t, ui.DisplayEstimation(ctx, nil, nil))
	assert.Contains(t, out.String(), "No source files found")
}

func TestTUI_TestMode(t *testing.T) {
	ctx := context.Background()

	var out bytes.Buffer

	ui := NewTUI(&out)
	require.NoError(t, ui.Start(ctx, WithTestMode()))

	mutant := &m.Mutant{ID: 1, Mutations: []m.Mutation{{ID: 1, Operator: "AOR", Line: 5}}}

	ui.DisplayConcurrencyInfo(ctx, 1, 0, 1)
	ui.DisplayUpcomingTestsInfo(ctx, 1)
	ui.DisplayStartingTestInfo(ctx, mutant, "src/A.java", 0)
	ui.DisplayCompletedTestInfo(ctx, m.Result{MutantID: 1, Operator: "AOR", Status: m.Killed})
	ui.DisplayMutationScore(ctx, 1)
	ui.Close(ctx)

	assert.Contains(t, out.String(), "Mutation score: 100.00%")

	// Events after Close are dropped.
	ui.DisplayMutationScore(ctx, 0)
}
