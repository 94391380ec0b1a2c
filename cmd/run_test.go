package cmd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"gooze.dev/pkg/jgooze/internal/domain"
	"gooze.dev/pkg/jgooze/internal/domain/schemata"
	m "gooze.dev/pkg/jgooze/internal/model"
)

var anyRun = mock.AnythingOfType("domain.RunArgs")

func TestRunCmd_Defaults(t *testing.T) {
	mockWorkflow, call := useMockWorkflow(t)

	mockWorkflow.On("Test", anyContext, mock.MatchedBy(func(args domain.RunArgs) bool {
		return assert.ObjectsAreEqual([]m.Path{"."}, args.Paths) &&
			args.Output == m.Path(defaultOutputDir) &&
			args.ShardIndex == 0 &&
			args.ShardCount == 1 &&
			args.Timeout == defaultTimeout &&
			args.BuildCommand == defaultBuildCommand &&
			args.TestCommand == defaultTestCommand &&
			!args.Schemata &&
			args.OverloadThreshold == schemata.DefaultOverloadThreshold &&
			args.Order == 1 &&
			args.Parallel == 1 &&
			args.CoverageFile == "" &&
			args.MetricsFile == ""
	})).Return(nil)

	_, err := execute(newRunCmd(), "run")
	require.NoError(t, err)

	assert.True(t, call.built)
	assert.Equal(t, filepath.Join(defaultOutputDir, domain.ReportFile), call.dsn)
	assert.Equal(t, defaultTimeout, call.timeout)
}

func TestRunCmd_Flags(t *testing.T) {
	mockWorkflow, call := useMockWorkflow(t)

	mockWorkflow.On("Test", anyContext, mock.MatchedBy(func(args domain.RunArgs) bool {
		return assert.ObjectsAreEqual([]m.Path{"core"}, args.Paths) &&
			args.Output == "out" &&
			args.ShardIndex == 1 &&
			args.ShardCount == 3 &&
			args.Timeout == 30*time.Second &&
			args.BuildCommand == "gradle compileJava" &&
			args.TestCommand == "gradle test --tests {tests}" &&
			args.BuildPath == "app" &&
			args.FailString == "BUILD FAILED" &&
			args.CompileFailureRegex == `(?P<file>\S+):(?P<line>\d+)` &&
			args.Schemata &&
			args.OverloadThreshold == 4 &&
			args.CoverageFile == "coverage.yaml" &&
			args.MetricsFile == "metrics.prom" &&
			args.Parallel == 3
	})).Return(nil)

	_, err := execute(newRunCmd(), "run",
		"-o", "out",
		"-s", "1/3",
		"-p", "3",
		"--timeout", "30s",
		"--build-command", "gradle compileJava",
		"--test-command", "gradle test --tests {tests}",
		"--build-path", "app",
		"--fail-string", "BUILD FAILED",
		"--compile-failure-regex", `(?P<file>\S+):(?P<line>\d+)`,
		"--schemata",
		"--overload-threshold", "4",
		"--coverage", "coverage.yaml",
		"--metrics", "metrics.prom",
		"core",
	)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("out", "shard_1", domain.ReportFile), call.dsn)
	assert.Equal(t, 30*time.Second, call.timeout)
}

func TestRunCmd_ConfigFile(t *testing.T) {
	mockWorkflow, _ := useMockWorkflow(t)

	config := "run:\n  test_command: ant test\n  parallel: 6\nmutate:\n  order: 3\n"
	require.NoError(t, os.WriteFile(configFileName, []byte(config), 0o600))
	initConfig()

	mockWorkflow.On("Test", anyContext, mock.MatchedBy(func(args domain.RunArgs) bool {
		return args.TestCommand == "ant test" && args.Parallel == 6 && args.Order == 3
	})).Return(nil)

	_, err := execute(newRunCmd(), "run")
	require.NoError(t, err)
}

func TestRunCmd_Errors(t *testing.T) {
	t.Run("invalid shard", func(t *testing.T) {
		_, call := useMockWorkflow(t)

		_, err := execute(newRunCmd(), "run", "--shard", "3/3")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid shard")
		assert.False(t, call.built)
	})

	t.Run("no mutants names the paths", func(t *testing.T) {
		mockWorkflow, _ := useMockWorkflow(t)
		mockWorkflow.On("Test", anyContext, anyRun).Return(domain.ErrNoMutants)

		_, err := execute(newRunCmd(), "run", "src/main/java")
		require.ErrorIs(t, err, domain.ErrNoMutants)
		assert.Contains(t, err.Error(), "src/main/java")
	})

	t.Run("workflow error", func(t *testing.T) {
		mockWorkflow, _ := useMockWorkflow(t)
		boom := errors.New("boom")
		mockWorkflow.On("Test", anyContext, anyRun).Return(boom)

		_, err := execute(newRunCmd(), "run")
		require.ErrorIs(t, err, boom)
	})
}

func TestParseShardFlag(t *testing.T) {
	tests := []struct {
		name      string
		shard     string
		wantIndex int
		wantTotal int
		wantErr   bool
	}{
		{name: "empty", shard: "", wantIndex: 0, wantTotal: 1},
		{name: "first", shard: "0/3", wantIndex: 0, wantTotal: 3},
		{name: "last", shard: "2/3", wantIndex: 2, wantTotal: 3},
		{name: "index out of range", shard: "3/3", wantErr: true},
		{name: "negative index", shard: "-1/3", wantErr: true},
		{name: "zero total", shard: "0/0", wantErr: true},
		{name: "garbage", shard: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index, total, err := parseShardFlag(tt.shard)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantIndex, index)
			assert.Equal(t, tt.wantTotal, total)
		})
	}
}
