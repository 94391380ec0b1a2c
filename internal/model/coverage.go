package model

import "slices"

// WholeFile is the line number of a coverage entry that applies to every
// line of its file without an entry of its own.
const WholeFile = -1

// LineCoverage lists the tests executing one line.
type LineCoverage struct {
	Number int      `yaml:"number" json:"number"`
	Tests  []string `yaml:"tests" json:"tests"`
}

// FileCoverage holds the covered lines of one source file.
type FileCoverage struct {
	Path  Path           `yaml:"path" json:"path"`
	Lines []LineCoverage `yaml:"lines" json:"lines"`
}

// Coverage is line coverage for a set of files.
type Coverage []FileCoverage

// Tests returns the tests covering line of path. known is false when path
// was not instrumented at all, in which case every test is a candidate. A
// known file whose line has no tests is uncovered.
func (c Coverage) Tests(path Path, line int) (tests []string, known bool) {
	for _, f := range c {
		if f.Path != path {
			continue
		}

		var fallback []string

		for _, l := range f.Lines {
			switch l.Number {
			case line:
				return slices.Clone(l.Tests), true
			case WholeFile:
				fallback = l.Tests
			}
		}

		return slices.Clone(fallback), true
	}

	return nil, false
}
