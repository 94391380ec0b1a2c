package schemata

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrUndiagnosableFailure is returned when a failed schemata build names no
// mutation marker that could be taken out.
var ErrUndiagnosableFailure = errors.New("schemata build failed without a recoverable mutation marker")

// Diagnostic is one compiler error position. Line is 1-based, Column is a
// 0-based byte offset into the line.
type Diagnostic struct {
	File   string
	Line   int
	Column int
}

// DiagnosticParser extracts error positions from build output.
type DiagnosticParser interface {
	Parse(output string) []Diagnostic
}

// Default diagnostic patterns. Maven reports 1-based columns in brackets,
// Ant echoes the source line and points at the column with a caret.
const (
	MavenPattern = `(?m)^\[ERROR\]\s+(?P<file>\S+\.java):\[(?P<line>\d+),(?P<col>\d+)\]`
	antPattern   = `(?m)\[javac\]\s+(\S+\.java):(\d+):\s+error.*\n.*\[javac\].*\n.*\[javac\]( *)\^`
)

var markerPattern = regexp.MustCompile(`MUT(\d+)\s*\*/`)

// NewDiagnosticParser picks the parser for a build: a custom pattern with
// the named groups file, line and col (1-based) when given, the Ant parser
// for ant builds and the Maven one otherwise.
func NewDiagnosticParser(buildCommand, pattern string) (DiagnosticParser, error) {
	if pattern != "" {
		return newRegexParser(pattern)
	}

	if fields := strings.Fields(buildCommand); len(fields) > 0 && strings.HasPrefix(fields[0], "ant") {
		return antParser{re: regexp.MustCompile(antPattern)}, nil
	}

	return newRegexParser(MavenPattern)
}

type regexParser struct {
	re              *regexp.Regexp
	file, line, col int
}

func newRegexParser(pattern string) (*regexParser, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile diagnostic pattern: %w", err)
	}

	p := &regexParser{re: re, file: re.SubexpIndex("file"), line: re.SubexpIndex("line"), col: re.SubexpIndex("col")}
	if p.file < 0 || p.line < 0 || p.col < 0 {
		return nil, fmt.Errorf("diagnostic pattern %q needs the named groups file, line and col", pattern)
	}

	return p, nil
}

func (p *regexParser) Parse(output string) []Diagnostic {
	var out []Diagnostic

	for _, match := range p.re.FindAllStringSubmatch(output, -1) {
		line, err := strconv.Atoi(match[p.line])
		if err != nil {
			continue
		}

		col, err := strconv.Atoi(match[p.col])
		if err != nil {
			continue
		}

		out = append(out, Diagnostic{File: match[p.file], Line: line, Column: col - 1})
	}

	return out
}

type antParser struct {
	re *regexp.Regexp
}

// Parse aligns the caret line with the echoed source line; both follow the
// [javac] tag and one separating space.
func (p antParser) Parse(output string) []Diagnostic {
	var out []Diagnostic

	for _, match := range p.re.FindAllStringSubmatch(output, -1) {
		line, err := strconv.Atoi(match[2])
		if err != nil {
			continue
		}

		out = append(out, Diagnostic{File: match[1], Line: line, Column: max(len(match[3])-1, 0)})
	}

	return out
}

// LocateMarker returns the id of the last mutation marker that ends at or
// before column col of line, which is the edit the compiler tripped over.
func LocateMarker(line string, col int) (int, bool) {
	end := min(col+1, len(line))
	if end <= 0 {
		return 0, false
	}

	matches := markerPattern.FindAllStringSubmatch(line[:end], -1)
	if len(matches) == 0 {
		return 0, false
	}

	id, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil {
		return 0, false
	}

	return id, true
}

// Culprit is the mutation a diagnostic points at.
type Culprit struct {
	Diagnostic
	MutationID int
}

// Culprits maps every diagnostic of a failed build to the marker on its
// line. text returns the current content of a diagnosed file. Output with
// no diagnostic, or a diagnostic without a marker, is undiagnosable.
func Culprits(parser DiagnosticParser, output string, text func(file string) (string, bool)) ([]Culprit, error) {
	diags := parser.Parse(output)
	if len(diags) == 0 {
		return nil, fmt.Errorf("%w: no compiler diagnostic found:\n%s", ErrUndiagnosableFailure, output)
	}

	var out []Culprit

	for _, d := range diags {
		content, ok := text(d.File)
		if !ok {
			return nil, fmt.Errorf("%w: %s is not an encoded file:\n%s", ErrUndiagnosableFailure, d.File, output)
		}

		id, ok := LocateMarker(lineOf(content, d.Line), d.Column)
		if !ok {
			return nil, fmt.Errorf("%w: no marker at %s:%d:%d:\n%s", ErrUndiagnosableFailure, d.File, d.Line, d.Column+1, output)
		}

		out = append(out, Culprit{Diagnostic: d, MutationID: id})
	}

	return out, nil
}

func lineOf(content string, n int) string {
	lines := strings.Split(content, "\n")
	if n < 1 || n > len(lines) {
		return ""
	}

	return strings.TrimSuffix(lines[n-1], "\r")
}
