// Package controller provides output adapters for displaying mutation testing results.
package controller

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	m "gooze.dev/pkg/jgooze/internal/model"
)

// StartMode defines the mode of operation for the UI.
type StartMode int

// Available StartMode values.
const (
	ModeEstimate StartMode = iota
	ModeTest
	ModeView
)

// StartOption is a functional option for Start method.
type StartOption func(*StartConfig)

// StartConfig holds configuration for starting the UI.
type StartConfig struct {
	mode StartMode
}

// WithEstimateMode sets the UI to estimation mode.
func WithEstimateMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeEstimate
	}
}

// WithTestMode sets the UI to test execution mode.
func WithTestMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeTest
	}
}

// WithViewMode sets the UI to report viewing mode.
func WithViewMode() StartOption {
	return func(c *StartConfig) {
		c.mode = ModeView
	}
}

func startConfig(options []StartOption) StartConfig {
	cfg := StartConfig{mode: ModeEstimate}
	for _, opt := range options {
		opt(&cfg)
	}

	return cfg
}

// Format selects how stored results are rendered.
type Format string

// Supported result formats.
const (
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(name); f {
	case FormatTable, FormatYAML:
		return f, nil
	case "":
		return FormatTable, nil
	default:
		return "", fmt.Errorf("unknown format %q, want %q or %q", name, FormatTable, FormatYAML)
	}
}

// Summary is a finished run as shown by view.
type Summary struct {
	Results []m.Result
	Counts  map[m.TestStatus]int
	Score   float64
}

// UI defines the interface for displaying mutation testing progress and
// results. Implementations can use different output methods (simple text,
// TUI, etc).
//
//nolint:interfacebloat // One method per workflow event.
type UI interface {
	Start(ctx context.Context, options ...StartOption) error
	Close(ctx context.Context)
	Wait(ctx context.Context) // Wait for UI to finish (user closes it)
	DisplayEstimation(ctx context.Context, estimates []m.Estimate, err error) error
	DisplayConcurrencyInfo(ctx context.Context, threads int, shardIndex int, shardCount int)
	DisplayUpcomingTestsInfo(ctx context.Context, total int)
	DisplayStartingTestInfo(ctx context.Context, mutant *m.Mutant, path m.Path, workerID int)
	DisplayCompletedTestInfo(ctx context.Context, result m.Result)
	DisplayMutationScore(ctx context.Context, score float64)
	DisplayResults(ctx context.Context, summary Summary, format Format) error
}

// NewUI returns the interactive UI on a terminal and the line based one
// otherwise.
func NewUI(cmd *cobra.Command, tty bool) UI {
	if tty {
		return NewTUI(cmd.OutOrStdout())
	}

	return NewSimpleUI(cmd)
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
