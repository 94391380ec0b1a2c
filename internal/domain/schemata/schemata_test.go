package schemata

import (
	"regexp"
	"slices"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"gooze.dev/pkg/jgooze/internal/domain/mutagens"
	m "gooze.dev/pkg/jgooze/internal/model"
	"gooze.dev/pkg/jgooze/internal/tree"
)

const (
	addSource = "class A { int m() { return a + b; } }"
	addShape  = "(program (class_declaration . name:. body:(class_body . (method_declaration type:(integral_type .) name:. parameters:(formal_parameters . .) body:(block . (return_statement . (binary_expression left:. operator:. right:.) .) .)) .)))"

	readySource = "class A { boolean isReady() { return x > 0; } }"
	readyShape  = "(program (class_declaration . name:. body:(class_body . (method_declaration type:. name:. parameters:(formal_parameters . .) body:(block . (return_statement . (binary_expression left:. operator:. right:.) .) .)) .)))"

	objectSource = "class A { Object m() { return a + b; } }"
	objectShape  = "(program (class_declaration . name:. body:(class_body . (method_declaration type:.type_identifier name:. parameters:(formal_parameters . .) body:(block . (return_statement . (binary_expression left:. operator:. right:.) .) .)) .)))"

	precedenceSource = "class A { boolean m() { return a && b || c; } }"
	precedenceShape  = "(program (class_declaration . name:. body:(class_body . (method_declaration type:. name:. parameters:(formal_parameters . .) body:(block . (return_statement . (binary_expression left:(binary_expression left:. operator:. right:.) operator:. right:.) .) .)) .)))"

	updateSource = "class A { void m() { i++; } }"
	updateShape  = "(program (class_declaration . name:. body:(class_body . (method_declaration type:. name:. parameters:(formal_parameters . .) body:(block . (expression_statement (update_expression . .) .) .)) .)))"

	nestedSource = "class A { int m() { return a + b - c; } }"
	nestedShape  = "(program (class_declaration . name:. body:(class_body . (method_declaration type:(integral_type .) name:. parameters:(formal_parameters . .) body:(block . (return_statement . (binary_expression left:(binary_expression left:. operator:. right:.) operator:. right:.) .) .)) .)))"

	constantSource = "class A { final int x = 1 + 2; }"
	constantShape  = "(program (class_declaration . name:. body:(class_body . (field_declaration (modifiers .) type:(integral_type .) declarator:(variable_declarator name:. . value:(binary_expression . . .)) .) .)))"
)

const (
	incrementSource = "class A { int m(int x) { x++; return x; } }"
	incrementShape  = "(program (class_declaration . name:. body:(class_body . (method_declaration type:(integral_type .) name:. parameters:(formal_parameters . (formal_parameter type:(integral_type .) name:.) .) body:(block . (expression_statement (update_expression . .) .) (return_statement . . .) .)) .)))"

	compoundSource = "class A { int m(int x) { x += 2; return x; } }"
	compoundShape  = "(program (class_declaration . name:. body:(class_body . (method_declaration type:(integral_type .) name:. parameters:(formal_parameters . (formal_parameter type:(integral_type .) name:.) .) body:(block . (expression_statement (assignment_expression left:. operator:. right:.) .) (return_statement . . .) .)) .)))"
)

func indexed(src, shape string) *tree.Tree {
	t := tree.Shape(src, shape)
	t.Index()

	return t
}

// generate runs the named operators over the whole tree, chaining ids.
func generate(t *testing.T, tr *tree.Tree, names ...string) []m.Mutation {
	t.Helper()

	var (
		out  []m.Mutation
		last int
	)

	for _, name := range names {
		entry, ok := mutagens.Lookup(name)
		require.True(t, ok, "operator %s not registered", name)

		r := mutagens.NewRun(entry.New(), tr, tr.Root(), tr.Source(), mutagens.Options{LastID: last, Mutations: true, SearchChildren: true})
		out = append(out, r.Mutations()...)
		last = r.LastID()
	}

	return out
}

var flagPattern = regexp.MustCompile(`"MUT(\d+)"`)

// selected follows the dispatch rooted at node the way the JVM would with
// the given flags set and returns the text of the chosen branch.
func selected(tr *tree.Tree, node tree.NodeID, flags ...int) string {
	for {
		tern := tr.ChildOfType(node, "ternary_expression")
		if tr.Type(node) != "parenthesized_expression" || tern == tree.None {
			return tr.Text(node)
		}

		branch := tr.Child(tern, 4)
		if holds(tr.Text(tr.Child(tern, 0)), flags) {
			branch = tr.Child(tern, 2)
		}

		node = tr.Child(branch, 1)
	}
}

func holds(cond string, flags []int) bool {
	for _, match := range flagPattern.FindAllStringSubmatch(cond, -1) {
		id, _ := strconv.Atoi(match[1])
		if !slices.Contains(flags, id) {
			return false
		}
	}

	return true
}
