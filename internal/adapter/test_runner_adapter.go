package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// CommandSpec describes one build or test invocation. Command is a shell
// command line.
type CommandSpec struct {
	Dir     string
	Command string
	// Env is appended to the environment of the current process.
	Env     []string
	Timeout time.Duration
}

// CommandResult is the outcome of a finished command.
type CommandResult struct {
	// Output interleaves stdout and stderr.
	Output   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Failed reports whether the command exited non-zero or ran out of time.
func (r CommandResult) Failed() bool {
	return r.TimedOut || r.ExitCode != 0
}

// TestRunnerAdapter runs the build and test commands of a project.
type TestRunnerAdapter interface {
	// Run executes spec to completion. A non-zero exit or a timeout is
	// reported in the result; the error is reserved for commands that
	// could not be started and for cancellation of ctx.
	Run(ctx context.Context, spec CommandSpec) (CommandResult, error)
}

// LocalTestRunnerAdapter runs commands through the system shell.
type LocalTestRunnerAdapter struct {
	timeout time.Duration
}

// NewLocalTestRunnerAdapter constructs a LocalTestRunnerAdapter. timeout
// applies to specs that carry none; zero means no limit.
func NewLocalTestRunnerAdapter(timeout time.Duration) *LocalTestRunnerAdapter {
	return &LocalTestRunnerAdapter{timeout: timeout}
}

// Run implements TestRunnerAdapter.
func (a *LocalTestRunnerAdapter) Run(ctx context.Context, spec CommandSpec) (CommandResult, error) {
	if spec.Command == "" {
		return CommandResult{}, errors.New("empty command")
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = a.timeout
	}

	runCtx := ctx

	if timeout > 0 {
		var cancel context.CancelFunc

		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := shell(runCtx, spec.Command)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.WaitDelay = time.Second

	var out bytes.Buffer

	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	err := cmd.Run()
	result := CommandResult{Output: out.String(), Duration: time.Since(start)}

	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1

		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}

	if err != nil {
		return result, fmt.Errorf("failed to run %q: %w", spec.Command, err)
	}

	return result, nil
}

func shell(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		// #nosec G204 - the command line comes from the user's configuration
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}

	// #nosec G204 - the command line comes from the user's configuration
	return exec.CommandContext(ctx, "sh", "-c", command)
}
