package schemata

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	m "gooze.dev/pkg/jgooze/internal/model"
	"gooze.dev/pkg/jgooze/internal/tree"
)

func encode(t *testing.T, src, shape string, threshold int, operators ...string) (*File, *tree.Tree) {
	t.Helper()

	tr := indexed(src, shape)
	mutations := generate(t, tr, operators...)

	f, err := NewEncoder(threshold).Encode("A.java", tr, mutations)
	require.NoError(t, err)

	return f, tr
}

func TestEncodeBodySite(t *testing.T) {
	f, _ := encode(t, readySource, readyShape, 0, "RemoveMethod")

	want := `class A { static java.util.Map<String, String> ENV_VAR_MAPS_4 = System.getenv(); boolean isReady() {` +
		` if (/*MUT1*/ (ENV_VAR_MAPS_4.containsKey("MUT1"))) {/*MUT1*/ return true;}` +
		` if (/*MUT2*/ (ENV_VAR_MAPS_4.containsKey("MUT2"))) {/*MUT2*/ return false;}` +
		` return x > 0; } }`

	text := f.Text()
	assert.Equal(t, want, text)

	first := strings.Index(text, `ENV_VAR_MAPS_4.containsKey("MUT1")`)
	second := strings.Index(text, `ENV_VAR_MAPS_4.containsKey("MUT2")`)
	original := strings.Index(text, "return x > 0;")
	assert.True(t, first >= 0 && first < second && second < original)

	assert.Equal(t, []int{1, 2}, f.Encoded())
	assert.Empty(t, f.CompileTime())
	assert.Equal(t, []Variant{{Key: "1", MutationIDs: []int{1}}, {Key: "2", MutationIDs: []int{2}}}, f.Variants(12))
}

func TestEncodeExpressionSite(t *testing.T) {
	f, _ := encode(t, addSource, addShape, 0, "ArithmeticOperatorReplacementBinary")

	want := `class A { static java.util.Map<String, String> ENV_VAR_MAPS_4 = System.getenv(); int m() {` +
		` return ((ENV_VAR_MAPS_4.containsKey("MUT1")) ? (a /*MUT1*/- b) : (a + b)); } }`
	assert.Equal(t, want, f.Text())
}

func TestEncodeOutsideClassBody(t *testing.T) {
	f, _ := encode(t, "a + b", "(binary_expression . . .)", 0, "ArithmeticOperatorReplacementBinary")

	assert.Equal(t, `((java.lang.Boolean.valueOf(System.getenv("MUT1"))) ? (a /*MUT1*/- b) : (a + b))`, f.Text())
}

func TestEncodeStatementSite(t *testing.T) {
	f, _ := encode(t, updateSource, updateShape, 0, "ArithmeticOperatorReplacementShortcut")

	want := `class A { static java.util.Map<String, String> ENV_VAR_MAPS_4 = System.getenv(); void m() {` +
		` Object LD_MUT_VAR_12; LD_MUT_VAR_12 = ((ENV_VAR_MAPS_4.containsKey("MUT1")) ? (i/*MUT1*/--) : (i++)); } }`
	assert.Equal(t, want, f.Text())
}

func TestEncodeBodyAndStatementSites(t *testing.T) {
	tests := []struct {
		name      string
		source    string
		shape     string
		operator  string
		statement string
	}{
		{
			name:      "update statement",
			source:    incrementSource,
			shape:     incrementShape,
			operator:  "ArithmeticOperatorReplacementShortcut",
			statement: `LD_MUT_VAR_17 = ((ENV_VAR_MAPS_4.containsKey("MUT3")) ? (x/*MUT3*/--) : (x++));`,
		},
		{
			name:      "compound assignment",
			source:    compoundSource,
			shape:     compoundShape,
			operator:  "AssignmentOperatorReplacementShortcut",
			statement: `LD_MUT_VAR_17 = ((ENV_VAR_MAPS_4.containsKey("MUT3")) ? (x /*MUT3*/-= 2) : (x += 2));`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, _ := encode(t, tt.source, tt.shape, 0, "RemoveMethod", tt.operator)
			require.ElementsMatch(t, []int{1, 2, 3}, f.Encoded())

			text := f.Text()
			assert.Equal(t, 1, strings.Count(text, "Object LD_MUT_VAR_"), text)
			assert.Equal(t, 1, strings.Count(text, "Object LD_MUT_VAR_17;"), text)
			assert.Equal(t, 1, strings.Count(text, "java.util.Map<String, String> ENV_VAR_MAPS_"), text)
			assert.Contains(t, text, tt.statement)
			assert.Contains(t, text, `{/*MUT1*/ return 0;}`)
			assert.Contains(t, text, `{/*MUT2*/ return 1;}`)

			decl := strings.Index(text, "Object LD_MUT_VAR_17;")
			guard := strings.Index(text, "if (/*MUT1*/")
			assign := strings.Index(text, "LD_MUT_VAR_17 = ")
			assert.True(t, decl >= 0 && decl < guard && guard < assign, text)
		})
	}
}

func TestEncodeSelectsOneVariant(t *testing.T) {
	t.Run("one variant per mutation", func(t *testing.T) {
		f, tr := encode(t, objectSource, objectShape, 0, "ArithmeticOperatorReplacementBinary", "NullifyReturnValue")
		require.Equal(t, []int{1, 2}, f.Encoded())

		site := tr.FindType(tr.Root(), "return_statement")[0]
		root := tr.Child(site, 1)

		assert.Equal(t, "a + b", selected(tr, root))
		assert.Equal(t, "a /*MUT1*/- b", selected(tr, root, 1))
		assert.Equal(t, "/*MUT2*/ null", selected(tr, root, 2))
	})

	t.Run("precedence combinations", func(t *testing.T) {
		f, tr := encode(t, precedenceSource, precedenceShape, 0, "ConditionalOperatorReplacement")
		require.Equal(t, []int{1, 2}, f.Encoded())

		site := tr.FindType(tr.Root(), "return_statement")[0]
		root := tr.Child(site, 1)
		anchor := tr.Meta(root).Index

		assert.Equal(t, []Variant{
			{Key: "1,2", MutationIDs: []int{1, 2}},
			{Key: "1", MutationIDs: []int{1}},
			{Key: "2", MutationIDs: []int{2}},
		}, f.Variants(anchor))

		assert.Equal(t, "a && b || c", selected(tr, root))
		assert.Equal(t, "a && b /*MUT1*/&& c", selected(tr, root, 1))
		assert.Equal(t, "a /*MUT2*/|| b || c", selected(tr, root, 2))
		assert.Equal(t, "a /*MUT2*/|| b /*MUT1*/&& c", selected(tr, root, 1, 2))
		assert.Contains(t, f.Text(), `(ENV_VAR_MAPS_4.containsKey("MUT1") && ENV_VAR_MAPS_4.containsKey("MUT2"))`)
	})

	t.Run("nested sites keep the inner dispatch", func(t *testing.T) {
		f, _ := encode(t, nestedSource, nestedShape, 0, "ArithmeticOperatorReplacementBinary")

		assert.Equal(t, []int{2, 1}, f.Encoded())
		assert.Equal(t, 2, strings.Count(f.Text(), `((ENV_VAR_MAPS_4.containsKey("MUT2")) ? (a /*MUT2*/- b) : (a + b))`))
		assert.Contains(t, f.Text(), `/*MUT1*/+ c`)
		assert.Equal(t, 1, strings.Count(f.Text(), "ENV_VAR_MAPS_4 = System.getenv()"))
	})
}

func TestEncodeCompileTime(t *testing.T) {
	t.Run("constant context", func(t *testing.T) {
		f, _ := encode(t, constantSource, constantShape, 0, "ArithmeticOperatorReplacementBinary")

		assert.Equal(t, constantSource, f.Text())
		assert.Empty(t, f.Encoded())
		require.Len(t, f.CompileTime(), 1)
		assert.True(t, f.CompileTime()[0].CompileTime)
	})

	t.Run("overloaded", func(t *testing.T) {
		f, _ := encode(t, nestedSource, nestedShape, 1, "ArithmeticOperatorReplacementBinary")

		assert.Equal(t, nestedSource, f.Text())
		assert.Len(t, f.CompileTime(), 2)
	})
}

func TestFileRevert(t *testing.T) {
	t.Run("expression variant falls back to the original", func(t *testing.T) {
		f, _ := encode(t, addSource, addShape, 0, "ArithmeticOperatorReplacementBinary")

		require.NoError(t, f.Revert(1))
		assert.NotContains(t, f.Text(), "/*MUT1*/")
		assert.Contains(t, f.Text(), "? (a + b) : (a + b)")
		assert.Empty(t, f.Encoded())
		assert.Equal(t, []int{1}, f.Reverted())
		assert.False(t, f.Has(1))

		assert.Error(t, f.Revert(1))
	})

	t.Run("body variant falls back to the original", func(t *testing.T) {
		f, _ := encode(t, readySource, readyShape, 0, "RemoveMethod")

		require.NoError(t, f.Revert(1))
		assert.NotContains(t, f.Text(), "return true")
		assert.Contains(t, f.Text(), `if (/*MUT1*/ (ENV_VAR_MAPS_4.containsKey("MUT1"))) { return x > 0; }`)
		assert.Equal(t, []int{2}, f.Encoded())
	})
}

func TestPlan(t *testing.T) {
	t.Run("precedence nodes join the outermost site", func(t *testing.T) {
		tr := indexed(precedenceSource, precedenceShape)
		p := NewPlan(tr, generate(t, tr, "ConditionalOperatorReplacement"), 0)

		require.Len(t, p.Sites, 1)
		assert.True(t, p.Sites[0].Precedence())
		assert.Len(t, p.Sites[0].Mutations, 2)
		assert.Empty(t, p.Overloaded)
	})

	t.Run("deepest sites first", func(t *testing.T) {
		tr := indexed(nestedSource, nestedShape)
		p := NewPlan(tr, generate(t, tr, "ArithmeticOperatorReplacementBinary"), 0)

		require.Len(t, p.Sites, 2)
		assert.Greater(t, p.Sites[0].Depth, p.Sites[1].Depth)
	})

	t.Run("fan-out over the threshold", func(t *testing.T) {
		tr := indexed(nestedSource, nestedShape)
		p := NewPlan(tr, generate(t, tr, "ArithmeticOperatorReplacementBinary"), 1)

		assert.Empty(t, p.Sites)
		assert.Len(t, p.Overloaded, 2)
		assert.Len(t, p.CompileTime, 2)
	})

	t.Run("precedence fan-out is multiplied", func(t *testing.T) {
		tr := indexed(precedenceSource, precedenceShape)
		p := NewPlan(tr, generate(t, tr, "ConditionalOperatorReplacement"), 3)

		assert.Empty(t, p.Sites)
		assert.Len(t, p.CompileTime, 2)
	})
}

func TestCombinations(t *testing.T) {
	const cor = "ConditionalOperatorReplacement"

	list := []m.Mutation{{ID: 1, Operator: cor}, {ID: 2, Operator: cor}, {ID: 3, Operator: cor}}

	var got [][]int

	for _, group := range combinations(list, 2) {
		var ids []int
		for _, mu := range group {
			ids = append(ids, mu.ID)
		}

		got = append(got, ids)
	}

	assert.Equal(t, [][]int{{1, 2}, {1, 3}, {2, 3}}, got)
	assert.Len(t, combinations(list, 3), 1)
	assert.Len(t, groups(&Site{Mutations: list, precedence: cor}), 7)
	assert.Len(t, groups(&Site{Mutations: list}), 3)
}
