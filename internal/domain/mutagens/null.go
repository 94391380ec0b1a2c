package mutagens

import (
	"strings"

	m "gooze.dev/pkg/jgooze/internal/model"
	"gooze.dev/pkg/jgooze/internal/tree"
)

// removeNullCheck turns x != null into (x != null || true) and x == null
// into (x == null && false). Any ==/!= comparison whose text mentions null
// qualifies.
type removeNullCheck struct{}

func newRemoveNullCheck() Operator { return removeNullCheck{} }

func (removeNullCheck) Name() string        { return "RemoveNullCheck" }
func (removeNullCheck) MetaTypes() []string { return nullMeta }
func (removeNullCheck) Color() string       { return "#ADD8E6" }

func (removeNullCheck) Find(t *tree.Tree, root tree.NodeID, searchChildren bool) []tree.NodeID {
	return findTypes(t, root, searchChildren, "binary_expression")
}

func (removeNullCheck) Filter(t *tree.Tree, candidates []tree.NodeID) []tree.NodeID {
	var out []tree.NodeID

	for _, node := range candidates {
		sym := infix(t, node)
		if sym == tree.None {
			continue
		}

		if op := t.Node(sym).Text; op != "==" && op != "!=" {
			continue
		}

		if !strings.Contains(t.Text(node), "null") {
			continue
		}

		out = append(out, node)
	}

	return out
}

func (removeNullCheck) Mutate(t *tree.Tree, node tree.NodeID, next func() int) []m.Mutation {
	mu := at(t, node, node)
	mu.ID = next()

	tail := "&& false"
	if t.Node(infix(t, node)).Text == "!=" {
		tail = "|| true"
	}

	mu.Replacement = "(" + t.Text(node) + " " + tail + ")"

	op, value, _ := strings.Cut(tail, " ")
	frag := tree.New()
	frag.SetRoot(frag.AddSpaced("binary_tail", op+" "+marker(mu.ID)+value))

	mu.Edit = &m.StructuralEdit{}
	mu.Edit.Add(t.Meta(node).Index, frag, m.StyleAppend)

	return []m.Mutation{mu}
}

// nullifyObjectInitialization replaces new T(...) with null.
type nullifyObjectInitialization struct{}

func newNullifyObjectInitialization() Operator { return nullifyObjectInitialization{} }

func (nullifyObjectInitialization) Name() string        { return "NullifyObjectInitialization" }
func (nullifyObjectInitialization) MetaTypes() []string { return nullMeta }
func (nullifyObjectInitialization) Color() string       { return "#F08080" }

func (nullifyObjectInitialization) Find(t *tree.Tree, root tree.NodeID, searchChildren bool) []tree.NodeID {
	return findTypes(t, root, searchChildren, "object_creation_expression")
}

// Filter keeps unqualified creations whose argument list closes the
// expression, which leaves out anonymous classes.
func (nullifyObjectInitialization) Filter(t *tree.Tree, candidates []tree.NodeID) []tree.NodeID {
	var out []tree.NodeID

	for _, node := range candidates {
		first := t.Child(node, 0)
		if first == tree.None || !t.IsTerminal(first) || t.Node(first).Text != "new" {
			continue
		}

		args := t.Child(node, -1)
		if args == tree.None || t.Type(args) != "argument_list" {
			continue
		}

		if last := t.Child(args, -1); last == tree.None || t.Node(last).Text != ")" {
			continue
		}

		out = append(out, node)
	}

	return out
}

func (nullifyObjectInitialization) Mutate(t *tree.Tree, node tree.NodeID, next func() int) []m.Mutation {
	mu := at(t, node, node)
	mu.ID = next()
	mu.Replacement = "null"

	mu.Edit = &m.StructuralEdit{}
	mu.Edit.Add(t.Meta(node).Index, terminal("null_literal", marker(mu.ID)+"null"), m.StyleReplace)

	return []m.Mutation{mu}
}

// nullifyReturnValue replaces return x; with return null; in methods of a
// reference or array type.
type nullifyReturnValue struct{}

func newNullifyReturnValue() Operator { return nullifyReturnValue{} }

func (nullifyReturnValue) Name() string        { return "NullifyReturnValue" }
func (nullifyReturnValue) MetaTypes() []string { return nullMeta }
func (nullifyReturnValue) Color() string       { return "#E0FFFF" }

func (nullifyReturnValue) Find(t *tree.Tree, root tree.NodeID, searchChildren bool) []tree.NodeID {
	return findTypes(t, root, searchChildren, "return_statement")
}

func (nullifyReturnValue) Filter(t *tree.Tree, candidates []tree.NodeID) []tree.NodeID {
	var out []tree.NodeID

	for _, stmt := range candidates {
		value := t.Child(stmt, 1)
		if value == tree.None || t.Type(value) == ";" || t.Child(stmt, 2) == tree.None {
			continue
		}

		method := t.EnclosingMethod(stmt)
		if method == tree.None {
			continue
		}

		typ := t.ChildByField(method, "type")
		if typ == tree.None || t.Type(typ) == "void_type" || t.IsPrimitiveType(typ) {
			continue
		}

		out = append(out, stmt)
	}

	return out
}

func (nullifyReturnValue) Mutate(t *tree.Tree, stmt tree.NodeID, next func() int) []m.Mutation {
	mu := at(t, stmt, stmt)
	mu.ID = next()
	mu.Start = t.Node(t.Child(stmt, 0)).Start
	mu.End = t.Node(t.Child(stmt, 2)).End
	mu.Replacement = "return null;"

	value := t.Child(stmt, 1)
	mu.Edit = &m.StructuralEdit{}
	mu.Edit.Add(t.Meta(value).Index, terminal("null_literal", marker(mu.ID)+" null"), m.StyleReplace)

	return []m.Mutation{mu}
}

// nullifyInputVariable assigns null to a reference parameter on method
// entry, one mutation per parameter.
type nullifyInputVariable struct{}

func newNullifyInputVariable() Operator { return nullifyInputVariable{} }

func (nullifyInputVariable) Name() string        { return "NullifyInputVariable" }
func (nullifyInputVariable) MetaTypes() []string { return nullMeta }
func (nullifyInputVariable) Color() string       { return "#90EE90" }

func (nullifyInputVariable) Find(t *tree.Tree, root tree.NodeID, searchChildren bool) []tree.NodeID {
	return findTypes(t, root, searchChildren, "method_declaration")
}

func (nullifyInputVariable) Filter(t *tree.Tree, candidates []tree.NodeID) []tree.NodeID {
	var out []tree.NodeID

	for _, method := range candidates {
		if len(NullableParameters(t, method)) > 0 {
			out = append(out, method)
		}
	}

	return out
}

func (nullifyInputVariable) Mutate(t *tree.Tree, method tree.NodeID, next func() int) []m.Mutation {
	body := t.ChildByField(method, "body")
	brace := t.Child(body, 0)

	var out []m.Mutation

	for _, name := range NullableParameters(t, method) {
		mu := at(t, method, brace)
		mu.ID = next()
		mu.Replacement = "{ " + name + " = null;"

		mu.Edit = &m.StructuralEdit{}
		mu.Edit.Add(t.Meta(body).Index, nullifyBlock(mu.ID, name), m.StyleReplace)

		out = append(out, mu)
	}

	return out
}

// NullableParameters returns the names of the parameters of a method that
// can be set to null on entry. Parameters with modifiers, of a primitive
// element type, or whose name shows up in a lambda or a nested method body
// are left out; the name check is textual.
func NullableParameters(t *tree.Tree, method tree.NodeID) []string {
	body := t.ChildByField(method, "body")
	params := t.ChildByField(method, "parameters")

	if body == tree.None || t.Type(body) != "block" || params == tree.None {
		return nil
	}

	var names []string

	for _, p := range t.Children(params) {
		name, typ := parameter(t, p)
		if name == "" || typ == tree.None {
			continue
		}

		if t.ChildOfType(p, "modifiers") != tree.None {
			continue
		}

		if t.IsPrimitiveType(t.ElementType(typ)) {
			continue
		}

		if usedInLambda(t, method, name) || usedInNestedMethod(t, body, name) {
			continue
		}

		names = append(names, name)
	}

	return names
}

// parameter returns the name and type node of a formal or spread parameter.
func parameter(t *tree.Tree, p tree.NodeID) (string, tree.NodeID) {
	switch t.Type(p) {
	case "formal_parameter":
		name := t.ChildByField(p, "name")
		if name == tree.None {
			return "", tree.None
		}

		return t.Text(name), t.ChildByField(p, "type")
	case "spread_parameter":
		typ := tree.None

		for _, c := range t.Children(p) {
			switch {
			case t.Type(c) == "modifiers" || t.Type(c) == "variable_declarator":
				continue
			case t.IsTerminal(c) && !isTypeLeaf(t, c):
				continue
			}

			typ = c

			break
		}

		decl := t.ChildOfType(p, "variable_declarator")
		if decl == tree.None {
			return "", tree.None
		}

		name := t.ChildByField(decl, "name")
		if name == tree.None {
			return "", tree.None
		}

		return t.Text(name), typ
	}

	return "", tree.None
}

func isTypeLeaf(t *tree.Tree, id tree.NodeID) bool {
	switch t.Type(id) {
	case "type_identifier", "integral_type", "floating_point_type", "boolean_type":
		return true
	}

	return false
}

func usedInLambda(t *tree.Tree, method tree.NodeID, name string) bool {
	for _, lambda := range t.FindType(method, "lambda_expression") {
		if body := t.ChildByField(lambda, "body"); body != tree.None && mentions(t, body, name) {
			return true
		}
	}

	return false
}

func usedInNestedMethod(t *tree.Tree, body tree.NodeID, name string) bool {
	for _, nested := range t.FindType(body, "method_declaration", "constructor_declaration") {
		if inner := t.ChildByField(nested, "body"); inner != tree.None && mentions(t, inner, name) {
			return true
		}
	}

	return false
}

func mentions(t *tree.Tree, root tree.NodeID, name string) bool {
	return len(t.Find(root, func(id tree.NodeID) bool {
		return t.Type(id) == "identifier" && t.Node(id).Text == name
	})) > 0
}

// nullifyBlock builds { /*MUTid*/name = null; }.
func nullifyBlock(id int, name string) *tree.Tree {
	frag := tree.New()

	assign := frag.AddRule("assignment_expression",
		frag.AddSpaced("identifier", marker(id)+name),
		frag.AddSpaced("=", "="),
		frag.AddSpaced("null_literal", "null"),
	)
	stmt := frag.AddRule("expression_statement", assign, frag.AddTerminal(";", ";"))
	block := frag.AddRule("block", frag.AddTerminal("{", "{"), stmt, frag.AddSpaced("}", "}"))
	frag.SetRoot(block)

	return frag
}
