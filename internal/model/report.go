package model

import (
	"fmt"
	"strings"
	"time"
)

// TestStatus represents the status of a mutant after testing.
type TestStatus int

const (
	// Killed indicates the mutant was detected by tests.
	Killed TestStatus = iota
	// Survived indicates the mutant was not detected by tests.
	Survived
	// Timeout indicates the tests ran past the timeout; it counts as killed.
	Timeout
	// BuildFailure indicates the mutant did not compile.
	BuildFailure
	// Uncovered indicates no test executes the mutated lines.
	Uncovered
	// Skipped indicates the mutant was skipped.
	Skipped
	// Error indicates an error occurred during testing.
	Error
)

var statusNames = [...]string{
	Killed:       "killed",
	Survived:     "survived",
	Timeout:      "timeout",
	BuildFailure: "build_failure",
	Uncovered:    "uncovered",
	Skipped:      "skipped",
	Error:        "error",
}

func (s TestStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}

	return statusNames[s]
}

// ParseTestStatus is the inverse of TestStatus.String.
func ParseTestStatus(name string) (TestStatus, error) {
	for i, n := range statusNames {
		if strings.EqualFold(n, name) {
			return TestStatus(i), nil
		}
	}

	return Error, fmt.Errorf("unknown test status %q", name)
}

// Detected reports whether the status counts towards the mutation score.
func (s TestStatus) Detected() bool {
	return s == Killed || s == Timeout
}

// Result is the outcome of testing one mutant.
type Result struct {
	RunID       string
	MutantID    int
	MutationIDs []int
	Path        Path
	Operator    string
	Line        int
	Status      TestStatus
	Output      string
	Diff        string
	Duration    time.Duration
	// Reason explains Error and BuildFailure results.
	Reason string
}

// FileResult holds the mutation testing results for a single source file.
type FileResult struct {
	Source  Source
	Results []Result
}

// Estimate summarizes the mutations found in one file.
type Estimate struct {
	Path Path
	// Mutations is the number of first order mutations.
	Mutations int
	// Mutants is the number of mutants up to the requested order.
	Mutants    int
	ByOperator map[string]int
	// Density counts mutations per source line.
	Density map[int]int
}
