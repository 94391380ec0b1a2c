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

	"github.com/pmezard/go-difflib/difflib"

	"gooze.dev/pkg/jgooze/internal/adapter"
	"gooze.dev/pkg/jgooze/internal/domain/schemata"
	m "gooze.dev/pkg/jgooze/internal/model"
)

// TestsPlaceholder in a test command is replaced by the comma separated
// tests covering the mutant.
const TestsPlaceholder = "{tests}"

// maxOutput bounds the command output kept with a result.
const maxOutput = 8 << 10

// Settings configures how mutants are built and tested.
type Settings struct {
	ProjectRoot m.Path
	// BuildPath is the directory, relative to ProjectRoot, the commands run
	// in.
	BuildPath    m.Path
	BuildCommand string
	TestCommand  string
	FailString   string
	Timeout      time.Duration
	// Skip lists directories, relative to ProjectRoot, left out of
	// workspace copies.
	Skip []string
	// CompileFailureRegex overrides the diagnostic pattern of the build tool.
	CompileFailureRegex string
}

// Workspace is a private copy of the project a worker builds and tests in.
type Workspace struct {
	Root m.Path
}

// Job is one mutant scheduled for testing.
type Job struct {
	RunID  string
	Mutant *m.Mutant
	Source m.Source
	// Tests are the tests covering the mutant; empty runs the whole suite.
	Tests []string
	// Schemata selects the mutant through MUT<id> flags in a workspace
	// holding the built schemata.
	Schemata bool
}

// Orchestrator coordinates applying a mutant to a workspace copy of the
// project and running the tests to decide whether it is killed.
type Orchestrator interface {
	// NewWorkspace copies from, the project root or a built workspace, into
	// a fresh temporary directory.
	NewWorkspace(ctx context.Context, from m.Path) (*Workspace, error)
	RemoveWorkspace(ctx context.Context, ws *Workspace)
	// BuildSchemata writes the encoded files, whose paths are relative to the
	// project root, into ws and builds it. Every mutation named by a compile
	// error is reverted and the build repeated. It returns the reverted
	// mutation ids with the diagnostic position that hit them.
	BuildSchemata(ctx context.Context, ws *Workspace, files []*schemata.File) (map[int]string, error)
	TestMutant(ctx context.Context, ws *Workspace, job Job) (m.Result, error)
}

type orchestrator struct {
	fsAdapter   adapter.SourceFSAdapter
	testAdapter adapter.TestRunnerAdapter
	settings    Settings
}

// NewOrchestrator constructs an Orchestrator backed by the provided
// filesystem and test runner adapters.
func NewOrchestrator(fsAdapter adapter.SourceFSAdapter, testAdapter adapter.TestRunnerAdapter, settings Settings) Orchestrator {
	return &orchestrator{
		fsAdapter:   fsAdapter,
		testAdapter: testAdapter,
		settings:    settings,
	}
}

func (to *orchestrator) NewWorkspace(ctx context.Context, from m.Path) (*Workspace, error) {
	tmpDir, err := to.fsAdapter.CreateTempDir("jgooze-workspace-*")
	if err != nil {
		slog.Error("Failed to create temp dir", "error", err)
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	if err := to.fsAdapter.CopyDir(ctx, from, tmpDir, to.settings.Skip...); err != nil {
		to.cleanupTempDir(tmpDir)
		slog.Error("Failed to copy project to temp dir", "from", from, "tmpDir", tmpDir, "error", err)

		return nil, fmt.Errorf("failed to copy project: %w", err)
	}

	return &Workspace{Root: tmpDir}, nil
}

func (to *orchestrator) RemoveWorkspace(_ context.Context, ws *Workspace) {
	if ws != nil {
		to.cleanupTempDir(ws.Root)
	}
}

// cleanupTempDir removes the temporary directory, logging errors if cleanup fails.
func (to *orchestrator) cleanupTempDir(tmpDir m.Path) {
	if err := to.fsAdapter.RemoveAll(tmpDir); err != nil {
		slog.Error("Failed to cleanup temp dir", "tmpDir", tmpDir, "error", err)
	}
}

func (to *orchestrator) TestMutant(ctx context.Context, ws *Workspace, job Job) (m.Result, error) {
	if err := validateJob(job); err != nil {
		return m.Result{}, err
	}

	result, ok := resultFor(job)
	if !ok {
		return result, nil
	}

	start := time.Now()
	status, output, err := to.test(ctx, ws, job)
	result.Duration = time.Since(start)

	if err != nil {
		return result, err
	}

	result.Status, result.Output = status, output
	if status == m.BuildFailure {
		result.Reason = "mutant does not compile"
	}

	return result, nil
}

func (to *orchestrator) test(ctx context.Context, ws *Workspace, job Job) (m.TestStatus, string, error) {
	if job.Schemata {
		env := make([]string, 0, job.Mutant.Order())
		for _, id := range job.Mutant.MutationIDs() {
			env = append(env, schemata.Flag(id)+"=true")
		}

		return to.runTests(ctx, ws, job.Tests, env)
	}

	target, err := to.workspacePath(ws, job.Source.Origin.FullPath)
	if err != nil {
		return m.Error, "", err
	}

	if err := to.writeFile(target, job.Mutant.String()); err != nil {
		return m.Error, "", err
	}

	defer func() {
		if err := to.writeFile(target, job.Mutant.Source); err != nil {
			slog.Error("Failed to restore source", "path", target, "error", err)
		}
	}()

	built, output, err := to.build(ctx, ws)
	if err != nil {
		return m.Error, "", err
	}

	if !built {
		return m.BuildFailure, tail(output, maxOutput), nil
	}

	return to.runTests(ctx, ws, job.Tests, nil)
}

func validateJob(job Job) error {
	if job.Mutant == nil {
		return errors.New("job without mutant")
	}

	return validateSource(job.Source)
}

// resultFor fills in everything a result knows before testing, the diff
// included. A mutant that cannot be materialized is not tested and comes
// back as an Error result with ok false.
func resultFor(job Job) (m.Result, bool) {
	mt := job.Mutant
	result := m.Result{
		RunID:       job.RunID,
		MutantID:    mt.ID,
		MutationIDs: mt.MutationIDs(),
		Path:        job.Source.Origin.Path,
		Status:      m.Error,
	}

	if len(mt.Mutations) > 0 {
		first := mt.Mutations[0]
		result.Operator, result.Line = first.Operator, first.Line
	}

	mutated, err := mt.Materialize()
	if err != nil {
		result.Reason = err.Error()
		return result, false
	}

	result.Diff = unifiedDiff(string(result.Path), mt.Source, mutated)

	return result, true
}

func unifiedDiff(path, before, after string) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  2,
	})
	if err != nil {
		return ""
	}

	return diff
}

func (to *orchestrator) workspacePath(ws *Workspace, fullPath m.Path) (m.Path, error) {
	rel, err := to.fsAdapter.RelPath(to.settings.ProjectRoot, fullPath)
	if err != nil {
		slog.Error("Failed to get relative source path", "projectRoot", to.settings.ProjectRoot, "sourcePath", fullPath, "error", err)
		return "", fmt.Errorf("failed to get relative source path: %w", err)
	}

	return to.fsAdapter.JoinPath(string(ws.Root), string(rel)), nil
}

func (to *orchestrator) writeFile(path m.Path, content string) error {
	if err := to.fsAdapter.WriteFile(path, []byte(content), 0o600); err != nil {
		slog.Error("Failed to write file", "path", path, "error", err)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}

func (to *orchestrator) commandDir(ws *Workspace) string {
	return string(to.fsAdapter.JoinPath(string(ws.Root), string(to.settings.BuildPath)))
}

// build runs the build command; a project without one is always built.
func (to *orchestrator) build(ctx context.Context, ws *Workspace) (bool, string, error) {
	if to.settings.BuildCommand == "" {
		return true, "", nil
	}

	res, err := to.testAdapter.Run(ctx, adapter.CommandSpec{
		Dir:     to.commandDir(ws),
		Command: to.settings.BuildCommand,
		Timeout: to.settings.Timeout,
	})
	if err != nil {
		return false, "", fmt.Errorf("failed to build: %w", err)
	}

	return !res.Failed(), res.Output, nil
}

func (to *orchestrator) runTests(ctx context.Context, ws *Workspace, tests []string, env []string) (m.TestStatus, string, error) {
	res, err := to.testAdapter.Run(ctx, adapter.CommandSpec{
		Dir:     to.commandDir(ws),
		Command: testCommand(to.settings.TestCommand, tests),
		Env:     env,
		Timeout: to.settings.Timeout,
	})
	if err != nil {
		return m.Error, "", fmt.Errorf("failed to run tests: %w", err)
	}

	return classify(res, to.settings.FailString), tail(res.Output, maxOutput), nil
}

// testCommand substitutes the covering tests into command. Without tests
// the placeholder and a flag glued to it, such as -Dtest={tests}, are
// removed so the whole suite runs.
func testCommand(command string, tests []string) string {
	if !strings.Contains(command, TestsPlaceholder) {
		return command
	}

	if len(tests) > 0 {
		return strings.ReplaceAll(command, TestsPlaceholder, strings.Join(tests, ","))
	}

	fields := strings.Fields(command)
	fields = slices.DeleteFunc(fields, func(f string) bool { return strings.Contains(f, TestsPlaceholder) })

	return strings.Join(fields, " ")
}

// classify maps a finished test command to a status. A run past the timeout
// counts as a timeout kill; a zero exit still kills when the output holds
// failString.
func classify(res adapter.CommandResult, failString string) m.TestStatus {
	switch {
	case res.TimedOut:
		return m.Timeout
	case res.ExitCode != 0:
		return m.Killed
	case failString != "" && strings.Contains(res.Output, failString):
		return m.Killed
	default:
		return m.Survived
	}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}

	return "..." + s[len(s)-n:]
}

func (to *orchestrator) BuildSchemata(ctx context.Context, ws *Workspace, files []*schemata.File) (map[int]string, error) {
	if to.settings.BuildCommand == "" {
		return nil, errors.New("schemata mode needs a build command")
	}

	parser, err := schemata.NewDiagnosticParser(to.settings.BuildCommand, to.settings.CompileFailureRegex)
	if err != nil {
		return nil, err
	}

	reverted := make(map[int]string)

	for round := 1; ; round++ {
		for _, f := range files {
			if err := to.writeFile(to.fsAdapter.JoinPath(string(ws.Root), string(f.Path)), f.Text()); err != nil {
				return reverted, err
			}
		}

		built, output, err := to.build(ctx, ws)
		if err != nil {
			return reverted, err
		}

		if built {
			slog.Info("Schemata built", "rounds", round, "reverted", len(reverted))
			return reverted, nil
		}

		culprits, err := schemata.Culprits(parser, output, func(file string) (string, bool) {
			f := fileFor(files, file)
			if f == nil {
				return "", false
			}

			return f.Text(), true
		})
		if err != nil {
			slog.Error("Schemata build failed", "round", round, "error", err)
			return reverted, err
		}

		progress := false

		for _, c := range culprits {
			f := fileFor(files, c.File)
			if f == nil || !f.Has(c.MutationID) {
				continue
			}

			if err := f.Revert(c.MutationID); err != nil {
				slog.Warn("Reverting schemata mutation left no trace", "path", f.Path, "mutation", c.MutationID, "error", err)
			}

			reverted[c.MutationID] = fmt.Sprintf("%s:%d:%d", c.File, c.Line, c.Column+1)
			progress = true

			slog.Debug("Reverted schemata mutation", "path", f.Path, "mutation", c.MutationID, "line", c.Line)
		}

		if !progress {
			return reverted, fmt.Errorf("%w: compile errors point at mutations already reverted:\n%s", schemata.ErrUndiagnosableFailure, output)
		}
	}
}

// fileFor finds the encoded file a diagnostic names. Build tools report
// absolute or module relative paths, so the longest matching suffix wins.
func fileFor(files []*schemata.File, diagnosed string) *schemata.File {
	diagnosed = filepath.ToSlash(diagnosed)

	var (
		best    *schemata.File
		bestLen int
	)

	for _, f := range files {
		p := filepath.ToSlash(string(f.Path))
		if (diagnosed == p || strings.HasSuffix(diagnosed, "/"+p) || strings.HasSuffix(p, "/"+diagnosed)) && len(p) > bestLen {
			best, bestLen = f, len(p)
		}
	}

	return best
}
