package schemata

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticParsers(t *testing.T) {
	tests := []struct {
		name    string
		command string
		pattern string
		output  string
		want    []Diagnostic
	}{
		{
			name:    "maven",
			command: "mvn -q compile",
			output:  "[INFO] Compiling 3 source files\n[ERROR] /w/src/A.java:[3,27] bad operand types for binary operator '-'\n[ERROR] /w/src/B.java:[10,5] cannot find symbol\n",
			want:    []Diagnostic{{File: "/w/src/A.java", Line: 3, Column: 26}, {File: "/w/src/B.java", Line: 10, Column: 4}},
		},
		{
			name:    "ant",
			command: "ant compile",
			output: "    [javac] /w/src/A.java:3: error: bad operand types\n" +
				"    [javac]     x = a /*MUT5*/- b;\n" +
				"    [javac]                   ^\n",
			want: []Diagnostic{{File: "/w/src/A.java", Line: 3, Column: 18}},
		},
		{
			name:    "custom pattern",
			command: "gradle build",
			pattern: `(?m)^e: (?P<file>\S+): \((?P<line>\d+), (?P<col>\d+)\)`,
			output:  "e: /w/A.java: (7, 12): type mismatch\n",
			want:    []Diagnostic{{File: "/w/A.java", Line: 7, Column: 11}},
		},
		{
			name:    "clean output",
			command: "mvn compile",
			output:  "[INFO] BUILD SUCCESS\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewDiagnosticParser(tt.command, tt.pattern)
			require.NoError(t, err)

			assert.Equal(t, tt.want, p.Parse(tt.output))
		})
	}

	t.Run("pattern without named groups", func(t *testing.T) {
		_, err := NewDiagnosticParser("mvn", `(\d+):(\d+)`)
		assert.Error(t, err)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := NewDiagnosticParser("mvn", `(`)
		assert.Error(t, err)
	})
}

func TestLocateMarker(t *testing.T) {
	line := "    x = a /*MUT1*/- (b /*MUT2*/* c);"

	tests := []struct {
		name   string
		col    int
		want   int
		wantOK bool
	}{
		{"operator after first marker", strings.Index(line, "-"), 1, true},
		{"operator after second marker", strings.Index(line, "* c"), 2, true},
		{"operand between markers", strings.Index(line, "b "), 1, true},
		{"before any marker", strings.Index(line, "a "), 0, false},
		{"column past the end", len(line) + 40, 2, true},
		{"negative column", -3, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := LocateMarker(line, tt.col)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestCulprits(t *testing.T) {
	f, _ := encode(t, addSource, addShape, 0, "ArithmeticOperatorReplacementBinary")
	text := f.Text()
	col := strings.Index(text, "/*MUT1*/-") + len("/*MUT1*/") + 1

	parser, err := NewDiagnosticParser("mvn compile", "")
	require.NoError(t, err)

	files := func(name string) (string, bool) {
		if strings.HasSuffix(name, "A.java") {
			return f.Text(), true
		}

		return "", false
	}

	t.Run("marker found and reverted", func(t *testing.T) {
		output := "[ERROR] /w/src/A.java:[1," + strconv.Itoa(col) + "] bad operand types\n"

		culprits, err := Culprits(parser, output, files)
		require.NoError(t, err)
		require.Len(t, culprits, 1)
		assert.Equal(t, 1, culprits[0].MutationID)

		require.NoError(t, f.Revert(culprits[0].MutationID))
		assert.NotContains(t, f.Text(), "/*MUT1*/")
	})

	t.Run("no diagnostic", func(t *testing.T) {
		_, err := Culprits(parser, "[ERROR] BUILD FAILURE\n", files)
		assert.ErrorIs(t, err, ErrUndiagnosableFailure)
	})

	t.Run("unknown file", func(t *testing.T) {
		_, err := Culprits(parser, "[ERROR] /w/src/B.java:[1,1] oops\n", files)
		assert.ErrorIs(t, err, ErrUndiagnosableFailure)
	})

	t.Run("no marker on the line", func(t *testing.T) {
		_, err := Culprits(parser, "[ERROR] /w/src/A.java:[1,3] oops\n", files)
		assert.ErrorIs(t, err, ErrUndiagnosableFailure)
	})
}
