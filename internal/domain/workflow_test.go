package domain

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gooze.dev/pkg/jgooze/internal/adapter"
	"gooze.dev/pkg/jgooze/internal/controller"
	m "gooze.dev/pkg/jgooze/internal/model"
)

// recordingUI keeps what the workflow displays.
type recordingUI struct {
	mu        sync.Mutex
	modes     []controller.StartOption
	estimates []m.Estimate
	started   []int
	completed []m.Result
	score     float64
	scored    bool
	summary   *controller.Summary
	format    controller.Format
}

func (u *recordingUI) Start(_ context.Context, options ...controller.StartOption) error {
	u.modes = append(u.modes, options...)
	return nil
}

func (u *recordingUI) Close(context.Context) {}

func (u *recordingUI) Wait(context.Context) {}

func (u *recordingUI) DisplayEstimation(_ context.Context, estimates []m.Estimate, err error) error {
	u.estimates = estimates
	return err
}

func (u *recordingUI) DisplayConcurrencyInfo(context.Context, int, int, int) {}

func (u *recordingUI) DisplayUpcomingTestsInfo(context.Context, int) {}

func (u *recordingUI) DisplayStartingTestInfo(_ context.Context, mutant *m.Mutant, _ m.Path, _ int) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.started = append(u.started, mutant.ID)
}

func (u *recordingUI) DisplayCompletedTestInfo(_ context.Context, result m.Result) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.completed = append(u.completed, result)
}

func (u *recordingUI) DisplayMutationScore(_ context.Context, score float64) {
	u.score, u.scored = score, true
}

func (u *recordingUI) DisplayResults(_ context.Context, summary controller.Summary, format controller.Format) error {
	u.summary, u.format = &summary, format
	return nil
}

// calcProject copies the calc example into a temporary project.
func calcProject(t *testing.T) string {
	t.Helper()

	root := filepath.Join(t.TempDir(), "calc")
	src, err := filepath.Abs(calcRoot)
	require.NoError(t, err)

	require.NoError(t, adapter.NewLocalSourceFSAdapter().CopyDir(context.Background(), m.Path(src), m.Path(root)))

	return root
}

// calcRunner builds everything and kills a mutant when the workspace source
// subtracts in add or when MUT1 is set.
func calcRunner() *fakeRunner {
	return &fakeRunner{run: func(spec adapter.CommandSpec) (adapter.CommandResult, error) {
		if strings.HasPrefix(spec.Command, "build") || strings.HasPrefix(spec.Command, "mvn compile") {
			return adapter.CommandResult{Output: "BUILD SUCCESS"}, nil
		}

		if slices.Contains(spec.Env, "MUT1=true") {
			return adapter.CommandResult{Output: "Tests run: 2, Failures: 1", ExitCode: 1}, nil
		}

		content, err := os.ReadFile(filepath.Join(spec.Dir, calcSource))
		if err != nil {
			return adapter.CommandResult{}, err
		}

		if strings.Contains(string(content), "a - b") {
			return adapter.CommandResult{Output: "Tests run: 2, Failures: 1", ExitCode: 1}, nil
		}

		return adapter.CommandResult{Output: "Tests run: 2, Failures: 0"}, nil
	}}
}

type workflowFixture struct {
	workflow Workflow
	store    *adapter.GormReportStore
	runner   *fakeRunner
	ui       *recordingUI
}

func newWorkflowFixture(t *testing.T, dsn string) *workflowFixture {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(dsn), 0o750))

	store, err := adapter.OpenReportStore(dsn, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	fs := adapter.NewLocalSourceFSAdapter()
	runner := calcRunner()
	ui := &recordingUI{}

	wf := NewWorkflow(
		fs,
		store,
		adapter.NewFileCoverageAdapter(),
		adapter.NewPrometheusMetricsAdapter(),
		runner,
		ui,
		NewMutagen(adapter.NewLocalJavaFileAdapter(), fs),
	)

	return &workflowFixture{workflow: wf, store: store, runner: runner, ui: ui}
}

func runArgs(root string) RunArgs {
	return RunArgs{
		EstimateArgs: EstimateArgs{
			Paths:    []m.Path{m.Path(root)},
			Exclude:  adapter.DefaultExclude,
			Order:    1,
			Parallel: 2,
		},
		Output:       m.Path(filepath.Join(root, ".jgooze")),
		ShardCount:   1,
		Timeout:      time.Minute,
		BuildCommand: "build",
		TestCommand:  "test -Dtest={tests}",
	}
}

func statusesByMutant(results []m.Result) map[int]m.TestStatus {
	out := make(map[int]m.TestStatus, len(results))
	for _, r := range results {
		out[r.MutantID] = r.Status
	}

	return out
}

func TestWorkflow_Test(t *testing.T) {
	tests := []struct {
		name     string
		args     func(root string) RunArgs
		want     map[int]m.TestStatus
		score    float64
		commands func(t *testing.T, commands []string)
	}{
		{
			name:  "materialized",
			args:  runArgs,
			want:  map[int]m.TestStatus{1: m.Killed, 2: m.Survived},
			score: 0.5,
			commands: func(t *testing.T, commands []string) {
				assert.Equal(t, 2, countOf(commands, "build"))
				assert.Equal(t, 2, countOf(commands, "test"))
			},
		},
		{
			name: "second order",
			args: func(root string) RunArgs {
				args := runArgs(root)
				args.Order = 2

				return args
			},
			want:  map[int]m.TestStatus{1: m.Killed, 2: m.Survived, 3: m.Killed},
			score: 2.0 / 3.0,
		},
		{
			name: "shard",
			args: func(root string) RunArgs {
				args := runArgs(root)
				args.ShardIndex, args.ShardCount = 1, 2

				return args
			},
			want:  map[int]m.TestStatus{1: m.Killed},
			score: 1,
		},
		{
			name: "coverage",
			args: func(root string) RunArgs {
				args := runArgs(root)
				args.CoverageFile = m.Path(filepath.Join(root, "coverage.yaml"))

				return args
			},
			want:  map[int]m.TestStatus{1: m.Killed, 2: m.Uncovered},
			score: 0.5,
			commands: func(t *testing.T, commands []string) {
				assert.Equal(t, []string{"build", "test -Dtest=CalculatorTest#add"}, commands)
			},
		},
		{
			name: "schemata",
			args: func(root string) RunArgs {
				args := runArgs(root)
				args.Schemata = true
				args.BuildCommand = "mvn compile"

				return args
			},
			want:  map[int]m.TestStatus{1: m.Killed, 2: m.Survived},
			score: 0.5,
			commands: func(t *testing.T, commands []string) {
				assert.Equal(t, 1, countOf(commands, "mvn compile"), "schemata are built once")
				assert.Equal(t, 2, countOf(commands, "test"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			root := calcProject(t)
			writeFile(t, filepath.Join(root, "coverage.yaml"), `
- path: src/main/java/com/example/calc/Calculator.java
  lines:
    - number: 5
      tests: [CalculatorTest#add]
`)

			args := tt.args(root)
			args.MetricsFile = m.Path(filepath.Join(root, ".jgooze", "metrics.prom"))

			fx := newWorkflowFixture(t, filepath.Join(root, ".jgooze", ReportFile))
			require.NoError(t, fx.workflow.Test(ctx, args))

			results, err := fx.store.LoadResults(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.want, statusesByMutant(results))

			for _, r := range results {
				assert.Equal(t, m.Path(calcSource), r.Path)
				assert.NotEmpty(t, r.RunID)
				assert.NotEmpty(t, r.Diff)
			}

			assert.Len(t, fx.ui.completed, len(tt.want))
			assert.True(t, fx.ui.scored)
			assert.InDelta(t, tt.score, fx.ui.score, 1e-9)

			if tt.commands != nil {
				tt.commands(t, fx.runner.commands())
			}

			metrics := readFile(t, string(args.MetricsFile))
			assert.Contains(t, metrics, "jgooze_mutation_score_ratio")

			assert.Equal(t, readFile(t, filepath.Join(calcRoot, calcSource)), readFile(t, filepath.Join(root, calcSource)), "project sources are never modified")
		})
	}
}

// countOf counts the commands starting with prefix.
func countOf(commands []string, prefix string) int {
	n := 0

	for _, c := range commands {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}

	return n
}

func TestWorkflow_Test_Errors(t *testing.T) {
	tests := []struct {
		name  string
		args  func(root string) RunArgs
		check func(t *testing.T, err error)
	}{
		{
			name: "no mutants",
			args: func(string) RunArgs {
				root, err := filepath.Abs("../../examples/empty")
				if err != nil {
					panic(err)
				}

				return runArgs(root)
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrNoMutants)
			},
		},
		{
			name: "schemata without build command",
			args: func(root string) RunArgs {
				args := runArgs(root)
				args.Schemata = true
				args.BuildCommand = ""

				return args
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "BuildCommand")
			},
		},
		{
			name: "shard index out of range",
			args: func(root string) RunArgs {
				args := runArgs(root)
				args.ShardIndex, args.ShardCount = 2, 2

				return args
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "ShardIndex")
			},
		},
		{
			name: "missing coverage file",
			args: func(root string) RunArgs {
				args := runArgs(root)
				args.CoverageFile = m.Path(filepath.Join(root, "nope.yaml"))

				return args
			},
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "load coverage")
			},
		},
		{
			name: "no project root",
			args: func(string) RunArgs {
				return runArgs(t.TempDir())
			},
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, adapter.ErrNoProjectRoot)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := calcProject(t)
			fx := newWorkflowFixture(t, filepath.Join(t.TempDir(), ReportFile))

			err := fx.workflow.Test(context.Background(), tt.args(root))
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestWorkflow_Test_Cancelled(t *testing.T) {
	root := calcProject(t)
	fx := newWorkflowFixture(t, filepath.Join(root, ".jgooze", ReportFile))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, fx.workflow.Test(ctx, runArgs(root)))
	assert.Empty(t, fx.runner.commands())
	assert.Empty(t, fx.ui.completed)
}

func TestWorkflow_Estimate(t *testing.T) {
	root := calcProject(t)
	fx := newWorkflowFixture(t, filepath.Join(t.TempDir(), ReportFile))

	err := fx.workflow.Estimate(context.Background(), EstimateArgs{
		Paths:    []m.Path{m.Path(root)},
		Exclude:  adapter.DefaultExclude,
		Order:    2,
		Parallel: 1,
	})
	require.NoError(t, err)

	require.Len(t, fx.ui.estimates, 1)
	est := fx.ui.estimates[0]
	assert.Equal(t, m.Path(calcSource), est.Path)
	assert.Equal(t, 2, est.Mutations)
	assert.Equal(t, 3, est.Mutants)
	assert.Equal(t, map[string]int{"ArithmeticOperatorReplacementBinary": 1, "RelationalOperatorReplacement": 1}, est.ByOperator)
	assert.Equal(t, map[int]int{5: 1, 9: 1}, est.Density)
	assert.Empty(t, fx.runner.commands())
}

func TestWorkflow_Estimate_InvalidArgs(t *testing.T) {
	fx := newWorkflowFixture(t, filepath.Join(t.TempDir(), ReportFile))

	err := fx.workflow.Estimate(context.Background(), EstimateArgs{Order: 1, Parallel: 1})
	require.Error(t, err)
}

func TestWorkflow_View(t *testing.T) {
	ctx := context.Background()
	root := calcProject(t)
	fx := newWorkflowFixture(t, filepath.Join(root, ".jgooze", ReportFile))

	require.NoError(t, fx.workflow.Test(ctx, runArgs(root)))
	require.NoError(t, fx.workflow.View(ctx, ViewArgs{Format: controller.FormatYAML}))

	require.NotNil(t, fx.ui.summary)
	assert.Equal(t, controller.FormatYAML, fx.ui.format)
	assert.Len(t, fx.ui.summary.Results, 2)
	assert.Equal(t, 1, fx.ui.summary.Counts[m.Killed])
	assert.Equal(t, 1, fx.ui.summary.Counts[m.Survived])
	assert.InDelta(t, 0.5, fx.ui.summary.Score, 1e-9)
}

func TestWorkflow_Merge(t *testing.T) {
	ctx := context.Background()
	root := calcProject(t)
	output := m.Path(filepath.Join(root, ".jgooze"))

	for index := range 2 {
		fx := newWorkflowFixture(t, filepath.Join(string(ShardDir(output, index)), ReportFile))

		args := runArgs(root)
		args.ShardIndex, args.ShardCount = index, 2
		require.NoError(t, fx.workflow.Test(ctx, args))
	}

	merged := newWorkflowFixture(t, filepath.Join(string(output), ReportFile))
	require.NoError(t, merged.workflow.Merge(ctx, MergeArgs{Output: output}))

	results, err := merged.store.LoadResults(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]m.TestStatus{1: m.Killed, 2: m.Survived}, statusesByMutant(results))

	err = newWorkflowFixture(t, filepath.Join(t.TempDir(), ReportFile)).workflow.Merge(ctx, MergeArgs{Output: m.Path(t.TempDir())})
	require.Error(t, err)
}
