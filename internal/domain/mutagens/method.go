package mutagens

import (
	"strings"

	m "gooze.dev/pkg/jgooze/internal/model"
	"gooze.dev/pkg/jgooze/internal/tree"
)

// removeMethod replaces a method body with a single return of a default
// value of the method's type.
type removeMethod struct{}

func newRemoveMethod() Operator { return removeMethod{} }

func (removeMethod) Name() string        { return "RemoveMethod" }
func (removeMethod) MetaTypes() []string { return methodMeta }
func (removeMethod) Color() string       { return "#FF00D4" }

func (removeMethod) Find(t *tree.Tree, root tree.NodeID, searchChildren bool) []tree.NodeID {
	return findTypes(t, root, searchChildren, "block")
}

func (removeMethod) Filter(t *tree.Tree, candidates []tree.NodeID) []tree.NodeID {
	var out []tree.NodeID

	for _, body := range candidates {
		parent := t.Parent(body)
		if parent == tree.None || t.Type(parent) != "method_declaration" || t.Node(body).Field != "body" {
			continue
		}

		if ReturnType(t, parent) == "" {
			continue
		}

		out = append(out, body)
	}

	return out
}

func (removeMethod) Mutate(t *tree.Tree, body tree.NodeID, next func() int) []m.Mutation {
	typ := ReturnType(t, t.Parent(body))

	var out []m.Mutation

	for _, value := range defaultValues(typ) {
		mu := at(t, body, body)
		mu.ID = next()

		if value == "" {
			mu.Replacement = "{ return; }"
		} else {
			mu.Replacement = "{ return " + value + "; }"
		}

		mu.Edit = &m.StructuralEdit{}
		mu.Edit.Add(t.Meta(body).Index, returnBlock(mu.ID, value), m.StyleReplace)

		out = append(out, mu)
	}

	return out
}

// ReturnType returns the declared return type of a method without
// whitespace, prefixed with its type parameters for generic methods. It
// returns "" for anything but a method declaration.
func ReturnType(t *tree.Tree, method tree.NodeID) string {
	if t.Type(method) != "method_declaration" {
		return ""
	}

	typ := t.ChildByField(method, "type")
	if typ == tree.None {
		return ""
	}

	out := compact(t.Text(typ))
	if params := t.ChildOfType(method, "type_parameters"); params != tree.None {
		out = compact(t.Text(params)) + out
	}

	return out
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// defaultValues lists the return values substituted for a body of the given
// type; "" stands for a bare return.
func defaultValues(typ string) []string {
	switch typ {
	case "void":
		return []string{""}
	case "boolean":
		return []string{"true", "false"}
	case "byte", "short", "int", "long":
		return []string{"0", "1"}
	case "float", "double":
		return []string{"0.0", "0.1"}
	case "char":
		return []string{`'\0'`, "'A'"}
	case "String":
		return []string{`""`, `"A"`}
	}

	if strings.Contains(typ, "[") && strings.Contains(typ, "]") && !strings.Contains(typ, "<") {
		return []string{"new " + typ + " {}"}
	}

	return []string{"null"}
}

func literalType(value string) string {
	switch {
	case value == "true" || value == "false":
		return value
	case value == "null":
		return "null_literal"
	case strings.HasPrefix(value, "'"):
		return "character_literal"
	case strings.HasPrefix(value, `"`):
		return "string_literal"
	case strings.HasPrefix(value, "new "):
		return "array_creation_expression"
	case strings.Contains(value, "."):
		return "decimal_floating_point_literal"
	}

	return "decimal_integer_literal"
}

// returnBlock builds {/*MUTid*/ return value;}.
func returnBlock(id int, value string) *tree.Tree {
	frag := tree.New()

	stmt := frag.AddRule("return_statement", frag.AddTerminal("return", marker(id)+" return"))
	if value != "" {
		frag.AppendChild(stmt, frag.AddSpaced(literalType(value), value))
	}

	frag.AppendChild(stmt, frag.AddTerminal(";", ";"))

	block := frag.AddRule("block", frag.AddTerminal("{", "{"), stmt, frag.AddTerminal("}", "}"))
	frag.SetRoot(block)

	return frag
}
