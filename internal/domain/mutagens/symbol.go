package mutagens

import (
	"strings"

	m "gooze.dev/pkg/jgooze/internal/model"
	"gooze.dev/pkg/jgooze/internal/tree"
)

var (
	traditionalMeta = []string{MetaTraditional, MetaAll}
	nullMeta        = []string{MetaNull, MetaAll}
	methodMeta      = []string{MetaMethod, MetaAll}
)

// shape locates the operator terminal of a node, or None when the node does
// not have the expected form.
type shape func(t *tree.Tree, node tree.NodeID) tree.NodeID

// infix matches (operand, operator, operand).
func infix(t *tree.Tree, node tree.NodeID) tree.NodeID {
	kids := t.Children(node)
	if len(kids) != 3 || !isSymbol(t, kids[1]) {
		return tree.None
	}

	return kids[1]
}

// prefix matches (operator, operand).
func prefix(t *tree.Tree, node tree.NodeID) tree.NodeID {
	kids := t.Children(node)
	if len(kids) != 2 || !isSymbol(t, kids[0]) {
		return tree.None
	}

	return kids[0]
}

// affix matches an operator on either side of its operand.
func affix(t *tree.Tree, node tree.NodeID) tree.NodeID {
	kids := t.Children(node)
	if len(kids) != 2 {
		return tree.None
	}

	switch {
	case isSymbol(t, kids[0]):
		return kids[0]
	case isSymbol(t, kids[1]):
		return kids[1]
	}

	return tree.None
}

// isOperand reports whether a terminal can stand for an expression, as
// identifiers and literals do.
func isOperand(t *tree.Tree, id tree.NodeID) bool {
	typ := t.Type(id)
	return typ == "identifier" || typ == "this" || typ == "super" || strings.HasSuffix(typ, "_literal") || typ == "true" || typ == "false"
}

func isSymbol(t *tree.Tree, id tree.NodeID) bool {
	return t.IsTerminal(id) && !isOperand(t, id)
}

// symbolOperator rewrites the operator terminal of an expression through a
// replacement table.
type symbolOperator struct {
	name   string
	color  string
	types  []string
	shape  shape
	table  map[string]string
	accept func(t *tree.Tree, node tree.NodeID) bool
}

func (o *symbolOperator) Name() string        { return o.name }
func (o *symbolOperator) MetaTypes() []string { return traditionalMeta }
func (o *symbolOperator) Color() string       { return o.color }

// Table returns the replacement table of the operator.
func (o *symbolOperator) Table() map[string]string {
	return o.table
}

func (o *symbolOperator) Find(t *tree.Tree, root tree.NodeID, searchChildren bool) []tree.NodeID {
	return findTypes(t, root, searchChildren, o.types...)
}

func (o *symbolOperator) Filter(t *tree.Tree, candidates []tree.NodeID) []tree.NodeID {
	var out []tree.NodeID

	for _, node := range candidates {
		sym := o.shape(t, node)
		if sym == tree.None {
			continue
		}

		if _, ok := o.table[t.Node(sym).Text]; !ok {
			continue
		}

		if o.accept != nil && !o.accept(t, node) {
			continue
		}

		out = append(out, node)
	}

	return out
}

func (o *symbolOperator) Mutate(t *tree.Tree, node tree.NodeID, next func() int) []m.Mutation {
	sym := o.shape(t, node)
	repl := o.table[t.Node(sym).Text]

	mu := at(t, node, sym)
	mu.ID = next()
	mu.Replacement = repl

	typ := repl
	if typ == "" {
		typ = "comment"
	}

	mu.Edit = &m.StructuralEdit{}
	mu.Edit.Add(t.Meta(sym).Index, terminal(typ, marker(mu.ID)+repl), m.StyleReplace)

	return []m.Mutation{mu}
}

// notString rejects binary expressions with a string operand, where + is a
// concatenation.
func notString(t *tree.Tree, node tree.NodeID) bool {
	for _, side := range []tree.NodeID{t.Child(node, 0), t.Child(node, 2)} {
		if strings.HasPrefix(t.Text(side), `"`) {
			return false
		}
	}

	return true
}

func newArithmeticBinary() Operator {
	return &symbolOperator{
		name:   "ArithmeticOperatorReplacementBinary",
		color:  "#FFB6C1",
		types:  []string{"binary_expression"},
		shape:  infix,
		table:  map[string]string{"+": "-", "-": "+", "*": "/", "/": "*", "%": "/"},
		accept: notString,
	}
}

func newRelational() Operator {
	return &symbolOperator{
		name:  "RelationalOperatorReplacement",
		color: "#FFA07A",
		types: []string{"binary_expression"},
		shape: infix,
		table: map[string]string{">": "<=", "<": ">=", ">=": "<", "<=": ">", "==": "!=", "!=": "=="},
	}
}

func newConditional() Operator {
	return &symbolOperator{
		name:  "ConditionalOperatorReplacement",
		color: "#87CEFA",
		types: []string{"binary_expression"},
		shape: infix,
		table: map[string]string{"&&": "||", "||": "&&"},
	}
}

func newLogical() Operator {
	return &symbolOperator{
		name:  "LogicalOperatorReplacement",
		color: "#F0E68C",
		types: []string{"binary_expression"},
		shape: infix,
		table: map[string]string{"&": "|", "|": "^", "^": "&"},
	}
}

func newAssignmentShortcut() Operator {
	return &symbolOperator{
		name:  "AssignmentOperatorReplacementShortcut",
		color: "#B0C4DE",
		types: []string{"assignment_expression"},
		shape: infix,
		table: map[string]string{
			"+=": "-=", "-=": "+=",
			"*=": "/=", "/=": "*=", "%=": "/=",
			"&=": "|=", "|=": "^=", "^=": "&=",
			"<<=": ">>=", ">>=": ">>>=", ">>>=": ">>=",
		},
	}
}

func newArithmeticUnary() Operator {
	return &symbolOperator{
		name:  "ArithmeticOperatorReplacementUnary",
		color: "#DDA0DD",
		types: []string{"unary_expression"},
		shape: prefix,
		table: map[string]string{"+": "-", "-": "+"},
	}
}

func newConditionalDeletion() Operator {
	return &symbolOperator{
		name:  "ConditionalOperatorDeletion",
		color: "#FFD700",
		types: []string{"unary_expression"},
		shape: prefix,
		table: map[string]string{"!": ""},
	}
}

func newArithmeticShortcut() Operator {
	return &symbolOperator{
		name:  "ArithmeticOperatorReplacementShortcut",
		color: "#FF00FF",
		types: []string{"update_expression"},
		shape: affix,
		table: map[string]string{"++": "--", "--": "++"},
	}
}

func newShift() Operator {
	return &symbolOperator{
		name:  "ShiftOperatorReplacement",
		color: "#9ACD32",
		types: []string{"binary_expression"},
		shape: infix,
		table: map[string]string{"<<": ">>", ">>": "<<", ">>>": ">>"},
	}
}
