package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gooze.dev/pkg/jgooze/internal/adapter"
	"gooze.dev/pkg/jgooze/internal/controller"
	"gooze.dev/pkg/jgooze/internal/domain/mutagens"
	"gooze.dev/pkg/jgooze/internal/domain/schemata"
	m "gooze.dev/pkg/jgooze/internal/model"
	pkg "gooze.dev/pkg/jgooze/pkg"
)

// ErrNoMutants is returned when the selected sources yield no mutant.
var ErrNoMutants = errors.New("no mutants generated")

// ReportFile is the name of the report database inside an output directory.
const ReportFile = "jgooze.db"

// ShardDir returns the output directory of one shard.
func ShardDir(output m.Path, index int) m.Path {
	return m.Path(filepath.Join(string(output), fmt.Sprintf("shard_%d", index)))
}

// EstimateArgs selects the sources and operators of a run.
type EstimateArgs struct {
	Paths     []m.Path `validate:"required,min=1"`
	Include   []string
	Exclude   []string
	MetaTypes []string
	// Order is the highest mutant order generated.
	Order    int `validate:"gte=1"`
	Parallel int `validate:"gte=1"`
}

// RunArgs configures a mutation testing run.
type RunArgs struct {
	EstimateArgs

	// ProjectRoot defaults to the build file directory above Paths[0].
	ProjectRoot m.Path
	BuildPath   m.Path
	Output      m.Path `validate:"required"`

	Schemata          bool
	OverloadThreshold int `validate:"gte=0"`

	ShardIndex int `validate:"gte=0,ltfield=ShardCount"`
	ShardCount int `validate:"gte=1"`

	Timeout             time.Duration `validate:"gt=0"`
	BuildCommand        string        `validate:"required_if=Schemata true"`
	TestCommand         string        `validate:"required"`
	FailString          string
	CompileFailureRegex string

	CoverageFile m.Path
	MetricsFile  m.Path
}

// ViewArgs selects how stored results are shown.
type ViewArgs struct {
	Format controller.Format
}

// MergeArgs names the output directory holding the shard reports.
type MergeArgs struct {
	Output m.Path `validate:"required"`
}

// Workflow defines the interface for the mutation testing workflow.
type Workflow interface {
	Estimate(ctx context.Context, args EstimateArgs) error
	Test(ctx context.Context, args RunArgs) error
	View(ctx context.Context, args ViewArgs) error
	Merge(ctx context.Context, args MergeArgs) error
}

type workflow struct {
	adapter.SourceFSAdapter
	adapter.CoverageAdapter
	adapter.MetricsAdapter
	controller.UI
	Mutagen

	store    adapter.ReportStore
	runner   adapter.TestRunnerAdapter
	validate *validator.Validate
}

// NewWorkflow creates a new Workflow instance with the provided dependencies.
func NewWorkflow(
	fsAdapter adapter.SourceFSAdapter,
	reportStore adapter.ReportStore,
	coverageAdapter adapter.CoverageAdapter,
	metricsAdapter adapter.MetricsAdapter,
	testAdapter adapter.TestRunnerAdapter,
	ui controller.UI,
	mutagen Mutagen,
) Workflow {
	return &workflow{
		SourceFSAdapter: fsAdapter,
		CoverageAdapter: coverageAdapter,
		MetricsAdapter:  metricsAdapter,
		UI:              ui,
		Mutagen:         mutagen,
		store:           reportStore,
		runner:          testAdapter,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (w *workflow) Estimate(ctx context.Context, args EstimateArgs) error {
	if err := w.validate.Struct(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	if err := w.Start(ctx, controller.WithEstimateMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	units, err := w.collectUnits(ctx, args)
	if err != nil {
		_ = w.DisplayEstimation(ctx, nil, err)
		slog.Error("Failed to generate mutations", "error", err)

		return fmt.Errorf("generate mutations: %w", err)
	}

	estimates := make([]m.Estimate, 0, len(units))
	for _, unit := range units {
		estimates = append(estimates, estimateOf(unit, args.Order))
	}

	if err := w.DisplayEstimation(ctx, estimates, nil); err != nil {
		slog.Error("Failed to display estimation", "error", err)
		return fmt.Errorf("display: %w", err)
	}

	w.Wait(ctx)

	return nil
}

func (w *workflow) collectUnits(ctx context.Context, args EstimateArgs) ([]*Unit, error) {
	sources, err := w.Get(ctx, args.Paths, args.Include, args.Exclude)
	if err != nil {
		return nil, fmt.Errorf("collect sources: %w", err)
	}

	slog.Info("Collected sources", "count", len(sources))

	unitCh, errCh := w.StreamMutations(ctx, sources, args.Parallel, args.MetaTypes...)

	var units []*Unit
	for unit := range unitCh {
		units = append(units, unit)
	}

	if err := <-errCh; err != nil {
		return nil, err
	}

	return units, nil
}

func estimateOf(unit *Unit, order int) m.Estimate {
	est := m.Estimate{
		Path:       unit.Source.Origin.Path,
		Mutations:  len(unit.Mutations),
		Mutants:    len(CombineUpToOrder(unit.Text, unit.Mutations, order, 1)),
		ByOperator: make(map[string]int),
		Density:    make(map[int]int),
	}

	for _, mu := range unit.Mutations {
		est.ByOperator[mu.Operator]++
		est.Density[mu.Line]++
	}

	return est
}

// planned is a mutant with the unit it was built from.
type planned struct {
	unit   *Unit
	mutant *m.Mutant
}

func (w *workflow) Test(ctx context.Context, args RunArgs) error {
	if err := w.validate.Struct(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	runID := uuid.NewString()
	log := slog.With("run", runID)

	root, err := w.projectRoot(args)
	if err != nil {
		return err
	}

	coverage, err := w.loadCoverage(args.CoverageFile)
	if err != nil {
		return err
	}

	if err := w.Start(ctx, controller.WithTestMode()); err != nil {
		slog.Error("Failed to start workflow UI", "error", err)
		return err
	}
	defer w.Close(ctx)

	if err := w.prepareStore(ctx, coverage); err != nil {
		return err
	}

	units, err := w.collectUnits(ctx, args.EstimateArgs)
	if err != nil {
		log.Error("Failed to generate mutations", "error", err)
		return fmt.Errorf("generate mutations: %w", err)
	}

	for _, unit := range units {
		if err := w.store.SaveFile(ctx, unit.Source, unit.Tree); err != nil {
			return err
		}

		if err := w.store.SaveMutations(ctx, runID, unit.Mutations); err != nil {
			return err
		}
	}

	plan, total := planMutants(units, args.Order, args.ShardIndex, args.ShardCount)
	if total == 0 {
		return ErrNoMutants
	}

	mutants := make([]*m.Mutant, len(plan))
	for i, p := range plan {
		mutants[i] = p.mutant
	}

	if err := w.store.SaveMutants(ctx, runID, mutants); err != nil {
		return err
	}

	log.Info("Planned mutants", "total", total, "shard", len(plan), "shardIndex", args.ShardIndex, "shardCount", args.ShardCount)

	orch := NewOrchestrator(w.SourceFSAdapter, w.runner, Settings{
		ProjectRoot:         root,
		BuildPath:           args.BuildPath,
		BuildCommand:        args.BuildCommand,
		TestCommand:         args.TestCommand,
		FailString:          args.FailString,
		Timeout:             args.Timeout,
		Skip:                w.workspaceSkips(root, args.Output),
		CompileFailureRegex: args.CompileFailureRegex,
	})

	spill, err := pkg.NewFileSpill[m.Result](string(args.Output))
	if err != nil {
		return fmt.Errorf("failed to create result spill: %w", err)
	}

	defer func() {
		if err := spill.Remove(); err != nil {
			slog.Warn("Failed to remove result spill", "path", spill.Path(), "error", err)
		}
	}()

	w.SetMutants(len(plan))
	w.DisplayConcurrencyInfo(ctx, args.Parallel, args.ShardIndex, args.ShardCount)
	w.DisplayUpcomingTestsInfo(ctx, len(plan))

	if err := w.testPlan(ctx, orch, runID, root, plan, coverage, args, spill); err != nil {
		return err
	}

	return w.finish(ctx, spill, args.MetricsFile)
}

func (w *workflow) projectRoot(args RunArgs) (m.Path, error) {
	if args.ProjectRoot != "" {
		return args.ProjectRoot, nil
	}

	root, err := w.FindProjectRoot(args.Paths[0])
	if err != nil {
		return "", fmt.Errorf("locate project root: %w", err)
	}

	return root, nil
}

func (w *workflow) loadCoverage(path m.Path) (m.Coverage, error) {
	if path == "" {
		return nil, nil
	}

	coverage, err := w.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load coverage: %w", err)
	}

	return coverage, nil
}

func (w *workflow) prepareStore(ctx context.Context, coverage m.Coverage) error {
	if err := w.store.Reset(ctx); err != nil {
		return err
	}

	entries := mutagens.Catalogue()
	operators := make([]adapter.OperatorRecord, len(entries))

	for i, e := range entries {
		operators[i] = adapter.OperatorRecord{Name: e.Name, MetaTypes: strings.Join(e.MetaTypes, ","), Color: e.Color}
	}

	if err := w.store.SaveOperators(ctx, operators); err != nil {
		return err
	}

	if len(coverage) == 0 {
		return nil
	}

	return w.store.SaveCoverage(ctx, coverage)
}

// planMutants combines the mutations of every unit with ids running on
// across units and keeps the mutants of one shard. total counts the mutants
// of all shards.
func planMutants(units []*Unit, order, shardIndex, shardCount int) ([]planned, int) {
	var (
		plan  []planned
		total int
	)

	nextID := 1

	for _, unit := range units {
		mutants := CombineUpToOrder(unit.Text, unit.Mutations, order, nextID)
		nextID += len(mutants)
		total += len(mutants)

		for _, mt := range mutants {
			if shardCount > 1 && mt.ID%shardCount != shardIndex {
				continue
			}

			plan = append(plan, planned{unit: unit, mutant: mt})
		}
	}

	return plan, total
}

// workspaceSkips keeps the output directory out of workspace copies when it
// lives inside the project.
func (w *workflow) workspaceSkips(root, output m.Path) []string {
	rel, err := w.RelPath(root, output)
	if err != nil || rel == "." || strings.HasPrefix(string(rel), "..") {
		return nil
	}

	return []string{string(rel)}
}

// coveringTests returns the tests covering any line of mt. uncovered is true
// when coverage knows the file and no test runs any of those lines.
func coveringTests(coverage m.Coverage, path m.Path, mt *m.Mutant) (tests []string, uncovered bool) {
	if len(coverage) == 0 {
		return nil, false
	}

	for _, mu := range mt.Mutations {
		lineTests, known := coverage.Tests(path, mu.Line)
		if !known {
			return nil, false
		}

		for _, test := range lineTests {
			if !slices.Contains(tests, test) {
				tests = append(tests, test)
			}
		}
	}

	if len(tests) == 0 {
		return nil, true
	}

	slices.Sort(tests)

	return tests, false
}


func (w *workflow) testPlan(
	ctx context.Context,
	orch Orchestrator,
	runID string,
	root m.Path,
	plan []planned,
	coverage m.Coverage,
	args RunArgs,
	spill pkg.FileSpill[m.Result],
) error {
	var (
		jobs  []Job
		units = make(map[m.Path]*Unit)
	)

	for _, p := range plan {
		rel, err := w.RelPath(root, p.unit.Source.Origin.FullPath)
		if err != nil {
			return fmt.Errorf("failed to locate %s in project: %w", p.unit.Source.Origin.FullPath, err)
		}

		units[p.unit.Source.Origin.FullPath] = p.unit
		job := Job{RunID: runID, Mutant: p.mutant, Source: p.unit.Source}

		tests, uncovered := coveringTests(coverage, m.Path(filepath.ToSlash(string(rel))), p.mutant)
		if uncovered {
			if err := w.record(ctx, spill, decidedResult(job, m.Uncovered, "no test covers the mutated lines")); err != nil {
				return err
			}

			continue
		}

		job.Tests = tests
		jobs = append(jobs, job)
	}

	var schemataRoot m.Path

	if args.Schemata {
		base, kept, err := w.buildSchemata(ctx, orch, root, units, jobs, args.OverloadThreshold, spill)
		if err != nil {
			return err
		}

		if base != nil {
			defer orch.RemoveWorkspace(ctx, base)
			schemataRoot = base.Root
		}

		jobs = kept
	}

	return w.runJobs(ctx, orch, jobs, args.Parallel, root, schemataRoot, spill)
}

// decidedResult is the result of a mutant decided without testing it.
func decidedResult(job Job, status m.TestStatus, reason string) m.Result {
	result, _ := resultFor(job)
	result.Status = status
	result.Reason = reason

	return result
}

// buildSchemata encodes the first order mutants of every file, builds them
// into a base workspace and marks their jobs as schemata jobs. Mutations the
// compiler rejected are recorded as build failures and their jobs dropped.
// Higher order and compile-time mutants keep running materialized.
func (w *workflow) buildSchemata(
	ctx context.Context,
	orch Orchestrator,
	root m.Path,
	units map[m.Path]*Unit,
	jobs []Job,
	threshold int,
	spill pkg.FileSpill[m.Result],
) (*Workspace, []Job, error) {
	var (
		order     []m.Path
		mutations = make(map[m.Path][]m.Mutation)
		jobOf     = make(map[int]int) // mutation id to job index
	)

	for i, job := range jobs {
		if job.Mutant.Order() != 1 {
			continue
		}

		full := job.Source.Origin.FullPath
		if _, ok := mutations[full]; !ok {
			order = append(order, full)
		}

		mu := job.Mutant.Mutations[0]
		mutations[full] = append(mutations[full], mu)
		jobOf[mu.ID] = i
	}

	encoder := schemata.NewEncoder(threshold)
	files := make([]*schemata.File, 0, len(order))

	for _, full := range order {
		rel, err := w.RelPath(root, full)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to locate %s in project: %w", full, err)
		}

		// The encoder rewrites the tree it is given.
		f, err := encoder.Encode(rel, units[full].Tree.Copy(), mutations[full])
		if err != nil {
			slog.Warn("Testing file without schemata", "path", rel, "error", err)
			continue
		}

		if len(f.Encoded()) == 0 {
			continue
		}

		for _, id := range f.Encoded() {
			jobs[jobOf[id]].Schemata = true
		}

		files = append(files, f)
	}

	if len(files) == 0 {
		return nil, jobs, nil
	}

	base, err := orch.NewWorkspace(ctx, root)
	if err != nil {
		return nil, nil, err
	}

	reverted, err := orch.BuildSchemata(ctx, base, files)
	if err != nil {
		orch.RemoveWorkspace(ctx, base)
		return nil, nil, fmt.Errorf("build schemata: %w", err)
	}

	kept := make([]Job, 0, len(jobs))

	for _, job := range jobs {
		at, failed := "", false
		if job.Schemata {
			at, failed = reverted[job.Mutant.Mutations[0].ID]
		}

		if !failed {
			kept = append(kept, job)
			continue
		}

		if err := w.record(ctx, spill, decidedResult(job, m.BuildFailure, "compile error at "+at)); err != nil {
			orch.RemoveWorkspace(ctx, base)
			return nil, nil, err
		}
	}

	slog.Info("Schemata ready", "files", len(files), "reverted", len(reverted), "jobs", len(kept))

	return base, kept, nil
}

// worker owns up to two workspaces: a copy of the project for materialized
// mutants and a copy of the built schemata for schemata mutants.
type worker struct {
	id           int
	orch         Orchestrator
	root         m.Path
	schemataRoot m.Path

	plain    *Workspace
	schemata *Workspace
}

func (wk *worker) workspace(ctx context.Context, job Job) (*Workspace, error) {
	var err error

	if job.Schemata {
		if wk.schemata == nil {
			wk.schemata, err = wk.orch.NewWorkspace(ctx, wk.schemataRoot)
		}

		return wk.schemata, err
	}

	if wk.plain == nil {
		wk.plain, err = wk.orch.NewWorkspace(ctx, wk.root)
	}

	return wk.plain, err
}

func (wk *worker) test(ctx context.Context, job Job) (m.Result, error) {
	ws, err := wk.workspace(ctx, job)
	if err != nil {
		result := decidedResult(job, m.Error, err.Error())
		return result, err
	}

	return wk.orch.TestMutant(ctx, ws, job)
}

func (wk *worker) cleanup(ctx context.Context) {
	wk.orch.RemoveWorkspace(ctx, wk.plain)
	wk.orch.RemoveWorkspace(ctx, wk.schemata)
}

func (w *workflow) runJobs(
	ctx context.Context,
	orch Orchestrator,
	jobs []Job,
	parallel int,
	root, schemataRoot m.Path,
	spill pkg.FileSpill[m.Result],
) error {
	if len(jobs) == 0 {
		return nil
	}

	parallel = max(1, min(parallel, len(jobs)))
	jobCh := make(chan Job)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer close(jobCh)

		for _, job := range jobs {
			select {
			case <-groupCtx.Done():
				return groupCtx.Err()
			case jobCh <- job:
			}
		}

		return nil
	})

	for id := range parallel {
		group.Go(func() error {
			wk := &worker{id: id, orch: orch, root: root, schemataRoot: schemataRoot}
			defer wk.cleanup(ctx)

			for job := range jobCh {
				w.DisplayStartingTestInfo(groupCtx, job.Mutant, job.Source.Origin.Path, wk.id)

				result, err := wk.test(groupCtx, job)
				if err != nil {
					if isContextErr(err) {
						return err
					}

					slog.Error("Failed to test mutant", "mutant", job.Mutant.ID, "worker", wk.id, "error", err)
					result.Status = m.Error
					result.Reason = err.Error()
				}

				if err := w.record(groupCtx, spill, result); err != nil {
					return err
				}
			}

			return nil
		})
	}

	return group.Wait()
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (w *workflow) record(ctx context.Context, spill pkg.FileSpill[m.Result], result m.Result) error {
	if err := spill.Append(result); err != nil {
		return fmt.Errorf("failed to record result: %w", err)
	}

	w.Observe(result)
	w.DisplayCompletedTestInfo(ctx, result)

	return nil
}

// finish stores the spilled results and reports the score.
func (w *workflow) finish(ctx context.Context, spill pkg.FileSpill[m.Result], metricsFile m.Path) error {
	results, err := spill.Collect()
	if err != nil {
		return fmt.Errorf("failed to read results: %w", err)
	}

	if err := w.store.SaveResults(ctx, results); err != nil {
		return err
	}

	tally := tallyOf(results)
	score := tally.Score()

	slog.Info("Mutation testing finished",
		"killed", tally[m.Killed],
		"survived", tally[m.Survived],
		"timeout", tally[m.Timeout],
		"build_failure", tally[m.BuildFailure],
		"uncovered", tally[m.Uncovered],
		"error", tally[m.Error],
		"score", score,
	)

	w.SetScore(score)
	w.DisplayMutationScore(ctx, score)

	if metricsFile == "" {
		return nil
	}

	if err := w.Flush(metricsFile); err != nil {
		slog.Error("Failed to write metrics", "path", metricsFile, "error", err)
		return fmt.Errorf("write metrics: %w", err)
	}

	return nil
}

func (w *workflow) View(ctx context.Context, args ViewArgs) error {
	format := args.Format
	if format == "" {
		format = controller.FormatTable
	}

	results, err := w.store.LoadResults(ctx)
	if err != nil {
		slog.Error("Failed to load results", "error", err)
		return fmt.Errorf("load results: %w", err)
	}

	if err := w.Start(ctx, controller.WithViewMode()); err != nil {
		return err
	}
	defer w.Close(ctx)

	tally := tallyOf(results)

	if err := w.DisplayResults(ctx, controller.Summary{Results: results, Counts: tally, Score: tally.Score()}, format); err != nil {
		return fmt.Errorf("display: %w", err)
	}

	w.Wait(ctx)

	return nil
}

func (w *workflow) Merge(ctx context.Context, args MergeArgs) error {
	if err := w.validate.Struct(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	pattern := filepath.Join(string(args.Output), "shard_*", ReportFile)

	shards, err := w.Glob(pattern)
	if err != nil {
		return err
	}

	if len(shards) == 0 {
		return fmt.Errorf("no shard reports match %s", pattern)
	}

	for _, shard := range shards {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := w.store.Merge(ctx, string(shard)); err != nil {
			slog.Error("Failed to merge shard", "path", shard, "error", err)
			return fmt.Errorf("merge %s: %w", shard, err)
		}

		slog.Info("Merged shard", "path", shard)
	}

	return nil
}
