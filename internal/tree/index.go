package tree

// Index numbers every attached node in one depth-first pass: pre-order
// index, depth, in/out timestamps, context ID and mutation class. It
// returns the maximum depth reached.
func (t *Tree) Index() int {
	t.invalidate()
	t.maxDepth = 0

	if t.root == None {
		return 0
	}

	for i := range t.nodes {
		t.nodes[i].Meta.classSet = false
	}

	ix := indexer{t: t}
	ix.visit(t.root, ContextNone, ClassNone, 0)

	return t.maxDepth
}

type indexer struct {
	t     *Tree
	index int
	timer int
}

func (ix *indexer) visit(id NodeID, context, class, depth int) {
	t := ix.t
	if depth > t.maxDepth {
		t.maxDepth = depth
	}

	n := &t.nodes[id]

	switch n.Type {
	case "class_declaration", "interface_declaration":
		context = ContextClassBody
	case "enum_declaration":
		if context == ContextNone {
			context = ContextEnum
		}
	}

	n.Meta.In = ix.timer
	ix.timer++

	class = ix.classify(id, class)

	n = &t.nodes[id]
	if n.Meta.classSet {
		class = n.Meta.MutationClass
	} else {
		n.Meta.MutationClass = class
		n.Meta.classSet = true
	}

	n.Meta.Index = ix.index
	n.Meta.ContextID = context

	n.Meta.Depth = depth
	if n.Terminal && n.Text == "return" {
		n.Meta.Depth = depth - 1
	}

	for _, c := range n.Children {
		ix.index++
		ix.visit(c, context, class, depth+1)

		if (class == ClassStatement || class == ClassForClause) && t.nodes[c].Terminal && resetsStatementClass(t.nodes[c].Text) {
			class = ClassNone
		}
	}

	t.nodes[id].Meta.Out = ix.timer
	ix.timer++
}

// classify applies the context rules for id given the inherited class.
func (ix *indexer) classify(id NodeID, class int) int {
	t := ix.t
	n := &t.nodes[id]

	if isCompileTimeContext(t, id) {
		class = ClassCompileTime
	}

	if isExpression(n.Type) && (class == ClassNone || class == ClassMethodBody) {
		class = ClassExpression
	}

	switch {
	case n.Type == "expression_statement":
		class = ClassStatement
	case n.Type == "object_creation_expression" || n.Type == "array_creation_expression":
		class = ClassCreator
	case n.Type == "argument_list":
		if class != ClassForClause {
			class = ClassExpressionList
		}
	case n.Field == "value" && t.nodes[n.Parent].Type == "variable_declarator":
		if class != ClassCompileTime {
			class = ClassInitializer
		}
	case (n.Field == "init" || n.Field == "update") && t.nodes[n.Parent].Type == "for_statement":
		class = ClassForClause
	case isMethodBody(t, id):
		class = ClassMethodBody
	case n.Type == "method_declaration" || n.Type == "constructor_declaration":
		class = ClassMethod
	}

	if n.Terminal && n.Text == "return" && n.Parent != None {
		parent := n.Parent
		class = ClassExpression
		t.nodes[parent].Meta.MutationClass = ClassExpression
		t.nodes[parent].Meta.classSet = true

		if value := t.Child(parent, 1); value != None && t.nodes[value].Type != ";" {
			t.nodes[value].Meta.MutationClass = ClassReturnValue
			t.nodes[value].Meta.classSet = true
		}
	}

	return class
}

func resetsStatementClass(text string) bool {
	switch text {
	case "=", "|=", "*=", "/=", "+=", "^=", "-=", "(", "new", "[":
		return true
	}

	return false
}

func isCompileTimeContext(t *Tree, id NodeID) bool {
	n := &t.nodes[id]

	switch n.Type {
	case "switch_label", "annotation", "marker_annotation":
		return true
	case "field_declaration", "constant_declaration":
		return HasModifier(t, id, "final")
	}

	return false
}

// HasModifier reports whether the declaration id carries the modifier kw.
func HasModifier(t *Tree, id NodeID, kw string) bool {
	mods := t.ChildOfType(id, "modifiers")
	if mods == None {
		return false
	}

	for _, c := range t.nodes[mods].Children {
		if t.nodes[c].Terminal && t.nodes[c].Text == kw {
			return true
		}
	}

	return false
}

func isMethodBody(t *Tree, id NodeID) bool {
	n := &t.nodes[id]
	if n.Parent == None {
		return false
	}

	parent := t.nodes[n.Parent].Type

	switch n.Type {
	case "block":
		return n.Field == "body" && parent == "method_declaration"
	case "constructor_body":
		return true
	}

	return false
}

var expressionTypes = map[string]bool{
	"assignment_expression":          true,
	"binary_expression":              true,
	"unary_expression":               true,
	"update_expression":              true,
	"ternary_expression":             true,
	"parenthesized_expression":       true,
	"cast_expression":                true,
	"instanceof_expression":          true,
	"lambda_expression":              true,
	"method_invocation":              true,
	"method_reference":               true,
	"field_access":                   true,
	"array_access":                   true,
	"object_creation_expression":     true,
	"array_creation_expression":      true,
	"switch_expression":              true,
	"class_literal":                  true,
	"this":                           true,
	"identifier":                     true,
	"null_literal":                   true,
	"true":                           true,
	"false":                          true,
	"string_literal":                 true,
	"character_literal":              true,
	"decimal_integer_literal":        true,
	"hex_integer_literal":            true,
	"octal_integer_literal":          true,
	"binary_integer_literal":         true,
	"decimal_floating_point_literal": true,
	"hex_floating_point_literal":     true,
}

func isExpression(typ string) bool {
	return expressionTypes[typ]
}

// IsAncestor reports whether a is b or an ancestor of b, using the
// timestamps recorded by Index.
func (t *Tree) IsAncestor(a, b NodeID) bool {
	ma, mb := &t.nodes[a].Meta, &t.nodes[b].Meta

	return ma.In <= mb.In && mb.Out <= ma.Out
}

// NodeByIndex returns the attached node numbered idx. Lookups memoize every
// node passed on the way, so repeated queries are cheap until the next
// structural edit.
func (t *Tree) NodeByIndex(idx int) (NodeID, bool) {
	if t.root == None || idx < 0 {
		return None, false
	}

	if t.byIndex == nil {
		t.byIndex = make(map[int]NodeID)
	}

	if id, ok := t.byIndex[idx]; ok {
		return id, true
	}

	found := None
	t.Walk(t.root, func(id NodeID) bool {
		if found != None {
			return false
		}

		i := t.nodes[id].Meta.Index
		if _, seen := t.byIndex[i]; !seen && i != scratchIndex {
			t.byIndex[i] = id
		}

		if i == idx {
			found = id
			return false
		}

		return true
	})

	return found, found != None
}
