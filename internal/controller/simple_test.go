package controller

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	m "gooze.dev/pkg/jgooze/internal/model"
)

func newTestSimpleUI() (*SimpleUI, *bytes.Buffer) {
	var out bytes.Buffer

	cmd := &cobra.Command{}
	cmd.SetOut(&out)

	return NewSimpleUI(cmd), &out
}

func testSummary() Summary {
	return Summary{
		Results: []m.Result{
			{MutantID: 2, MutationIDs: []int{2}, Path: "src/A.java", Line: 9, Operator: "RelationalOperatorReplacement", Status: m.Survived, Diff: "-a > 0\n+a <= 0\n"},
			{MutantID: 1, MutationIDs: []int{1}, Path: "src/A.java", Line: 5, Operator: "ArithmeticOperatorReplacementBinary", Status: m.Killed},
			{MutantID: 3, MutationIDs: []int{1, 2}, Path: "src/A.java", Line: 5, Operator: "ArithmeticOperatorReplacementBinary", Status: m.BuildFailure, Reason: "mutant does not compile"},
		},
		Counts: map[m.TestStatus]int{m.Killed: 1, m.Survived: 1, m.BuildFailure: 1},
		Score:  0.5,
	}
}

func TestSimpleUI_DisplayEstimation(t *testing.T) {
	ui, out := newTestSimpleUI()

	estimates := []m.Estimate{
		{Path: "src/B.java", Mutations: 1, Mutants: 1, ByOperator: map[string]int{"ConditionalOperatorDeletion": 1}, Density: map[int]int{3: 1}},
		{Path: "src/A.java", Mutations: 2, Mutants: 3, ByOperator: map[string]int{"ArithmeticOperatorReplacementBinary": 2}, Density: map[int]int{5: 1, 9: 1}},
	}

	require.NoError(t, ui.DisplayEstimation(context.Background(), estimates, nil))

	text := out.String()
	assert.Contains(t, text, "TOTAL FILES 2")
	assert.Contains(t, text, "ArithmeticOperatorReplacementBinary")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("src/A.java")), bytes.Index(out.Bytes(), []byte("src/B.java")))
}

func TestSimpleUI_DisplayEstimation_Error(t *testing.T) {
	ui, out := newTestSimpleUI()
	boom := errors.New("boom")

	err := ui.DisplayEstimation(context.Background(), nil, boom)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, out.String(), "estimation error: boom")
}

func TestSimpleUI_Progress(t *testing.T) {
	ctx := context.Background()
	ui, out := newTestSimpleUI()

	mutant := &m.Mutant{ID: 7, Mutations: []m.Mutation{{ID: 7, Operator: "RelationalOperatorReplacement", Line: 9}}}

	require.NoError(t, ui.Start(ctx, WithTestMode()))
	ui.DisplayConcurrencyInfo(ctx, 4, 1, 3)
	ui.DisplayUpcomingTestsInfo(ctx, 12)
	ui.DisplayStartingTestInfo(ctx, mutant, "src/A.java", 2)
	ui.DisplayCompletedTestInfo(ctx, m.Result{MutantID: 7, Operator: "RelationalOperatorReplacement", Path: "src/A.java", Line: 9, Status: m.Survived, Diff: "@@ diff @@"})
	ui.DisplayCompletedTestInfo(ctx, m.Result{MutantID: 8, Operator: "RelationalOperatorReplacement", Status: m.Killed, Diff: "@@ hidden @@"})
	ui.DisplayMutationScore(ctx, 0.5)
	ui.Close(ctx)

	text := out.String()
	assert.Contains(t, text, "Running with 4 worker(s) (Shard 1/3)")
	assert.Contains(t, text, "Upcoming mutants: 12")
	assert.Contains(t, text, "[worker 2] Starting mutant 7 (RelationalOperatorReplacement) src/A.java")
	assert.Contains(t, text, "Completed mutant 7 (RelationalOperatorReplacement) -> survived")
	assert.Contains(t, text, "File: src/A.java:9")
	assert.Contains(t, text, "@@ diff @@")
	assert.NotContains(t, text, "@@ hidden @@")
	assert.Contains(t, text, "Mutation score: 50.00%")
}

func TestSimpleUI_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ui, out := newTestSimpleUI()

	require.Error(t, ui.Start(ctx))
	ui.DisplayUpcomingTestsInfo(ctx, 3)
	ui.DisplayMutationScore(ctx, 1)
	require.Error(t, ui.DisplayResults(ctx, testSummary(), FormatTable))
	assert.Empty(t, out.String())
}

func TestSimpleUI_DisplayResults(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		check  func(t *testing.T, out string)
	}{
		{
			name:   "table",
			format: FormatTable,
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "RelationalOperatorReplacement")
				assert.Contains(t, out, "mutant does not compile")
				assert.Contains(t, out, "50.00%")
				assert.Contains(t, out, "KILLED 1, SURVIVED 1, BUILD FAILURE 1", "footers are title cased")
			},
		},
		{
			name:   "default is table",
			format: "",
			check: func(t *testing.T, out string) {
				assert.Contains(t, out, "50.00%")
			},
		},
		{
			name:   "yaml",
			format: FormatYAML,
			check: func(t *testing.T, out string) {
				var report resultReport
				require.NoError(t, yaml.Unmarshal([]byte(out), &report))

				assert.InDelta(t, 0.5, report.Score, 1e-9)
				assert.Equal(t, map[string]int{"killed": 1, "survived": 1, "build_failure": 1}, report.Counts)
				require.Len(t, report.Results, 3)
				assert.Equal(t, []int{1, 2, 3}, []int{report.Results[0].Mutant, report.Results[1].Mutant, report.Results[2].Mutant})
				assert.Equal(t, []int{1, 2}, report.Results[2].Mutations)
				assert.Equal(t, "survived", report.Results[1].Status)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ui, out := newTestSimpleUI()

			require.NoError(t, ui.DisplayResults(context.Background(), testSummary(), tt.format))
			tt.check(t, out.String())
		})
	}
}

func TestSimpleUI_DisplayResults_UnknownFormat(t *testing.T) {
	ui, _ := newTestSimpleUI()

	require.Error(t, ui.DisplayResults(context.Background(), testSummary(), "xml"))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"yaml", FormatYAML, false},
		{"json", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}

		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewUI(t *testing.T) {
	cmd := &cobra.Command{}

	assert.IsType(t, &SimpleUI{}, NewUI(cmd, false))
	assert.IsType(t, &TUI{}, NewUI(cmd, true))
	assert.False(t, IsTTY(&bytes.Buffer{}))
}
