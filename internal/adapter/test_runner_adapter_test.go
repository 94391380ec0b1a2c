package adapter

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTestRunnerAdapter_Run(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("commands are written for a POSIX shell")
	}

	tests := []struct {
		name     string
		spec     CommandSpec
		exitCode int
		timedOut bool
		contains string
	}{
		{
			name:     "success",
			spec:     CommandSpec{Command: "echo tests passed"},
			contains: "tests passed",
		},
		{
			name:     "failure keeps output and exit code",
			spec:     CommandSpec{Command: "echo broken >&2; exit 3"},
			exitCode: 3,
			contains: "broken",
		},
		{
			name:     "environment is passed",
			spec:     CommandSpec{Command: `echo "flag=$MUT7"`, Env: []string{"MUT7=true"}},
			contains: "flag=true",
		},
		{
			name:     "timeout",
			spec:     CommandSpec{Command: "sleep 5", Timeout: 100 * time.Millisecond},
			exitCode: -1,
			timedOut: true,
		},
	}

	adapter := NewLocalTestRunnerAdapter(0)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.spec.Dir = t.TempDir()

			result, err := adapter.Run(context.Background(), tt.spec)
			require.NoError(t, err)

			assert.Equal(t, tt.exitCode, result.ExitCode)
			assert.Equal(t, tt.timedOut, result.TimedOut)
			assert.Equal(t, tt.exitCode != 0, result.Failed())
			assert.Contains(t, result.Output, tt.contains)
		})
	}
}

func TestLocalTestRunnerAdapter_RunsInDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("commands are written for a POSIX shell")
	}

	dir := t.TempDir()
	writeTestFile(t, dir+"/marker.txt", "here\n")

	result, err := NewLocalTestRunnerAdapter(time.Minute).Run(context.Background(), CommandSpec{Dir: dir, Command: "cat marker.txt"})
	require.NoError(t, err)
	assert.Equal(t, "here\n", result.Output)
}

func TestLocalTestRunnerAdapter_Errors(t *testing.T) {
	adapter := NewLocalTestRunnerAdapter(0)

	_, err := adapter.Run(context.Background(), CommandSpec{})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = adapter.Run(ctx, CommandSpec{Command: "echo never"})
	assert.ErrorIs(t, err, context.Canceled)
}
