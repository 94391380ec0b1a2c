package schemata

import (
	"strconv"

	"gooze.dev/pkg/jgooze/internal/tree"
)

// Names of the helpers the encoding declares in the mutated source.
const (
	envMapPrefix  = "ENV_VAR_MAPS_"
	scratchPrefix = "LD_MUT_VAR_"
)

// Flag returns the environment variable that activates mutation id.
func Flag(id int) string {
	return "MUT" + strconv.Itoa(id)
}

// guardSource renders the runtime check for one mutation id. Inside a class
// body the lookup goes through the static map of the outermost class body;
// elsewhere the environment is read directly.
func guardSource(id, classBody int) string {
	if classBody >= 0 {
		return envMapPrefix + strconv.Itoa(classBody) + `.containsKey("` + Flag(id) + `")`
	}

	return `java.lang.Boolean.valueOf(System.getenv("` + Flag(id) + `"))`
}

// builder synthesizes Java nodes in the arena of the tree being encoded.
type builder struct {
	t *tree.Tree
}

func (b builder) tok(typ, text string) tree.NodeID {
	return b.t.AddTerminal(typ, text)
}

func (b builder) spaced(typ, text string) tree.NodeID {
	return b.t.AddSpaced(typ, text)
}

func (b builder) paren(inner tree.NodeID) tree.NodeID {
	return b.t.AddRule("parenthesized_expression", b.tok("(", "("), inner, b.tok(")", ")"))
}

// condition builds the guard of a variant: one check per id, and-ed from
// the right.
func (b builder) condition(ids []int, classBody int) tree.NodeID {
	last := len(ids) - 1
	cond := b.tok("method_invocation", guardSource(ids[last], classBody))

	for i := last - 1; i >= 0; i-- {
		left := b.tok("method_invocation", guardSource(ids[i], classBody))
		cond = b.t.AddRule("binary_expression", left, b.spaced("&&", "&&"), b.leading(cond, " "))
	}

	return cond
}

// ternary builds ((cond) ? (then) : (otherwise)).
func (b builder) ternary(cond, then, otherwise tree.NodeID) tree.NodeID {
	open := b.tok("(", "(")
	guard := b.paren(cond)
	question := b.spaced("?", "?")
	left := b.leading(b.paren(then), " ")
	colon := b.spaced(":", ":")
	right := b.leading(b.paren(otherwise), " ")

	inner := b.t.AddRule("ternary_expression", guard, question, left, colon, right)

	return b.t.AddRule("parenthesized_expression", open, inner, b.tok(")", ")"))
}

// assign builds LD_MUT_VAR_<body> = value.
func (b builder) assign(body int, value tree.NodeID) tree.NodeID {
	name := b.tok("identifier", scratchPrefix+strconv.Itoa(body))

	return b.t.AddRule("assignment_expression", name, b.spaced("=", "="), b.leading(value, " "))
}

// guarded builds if ((/*MUTk*/ cond)) block for the statement dispatch.
func (b builder) guarded(marker int, cond, block tree.NodeID) tree.NodeID {
	open := b.tok("(", "(/*"+Flag(marker)+"*/")
	test := b.t.AddRule("parenthesized_expression", open, b.leading(b.paren(cond), " "), b.tok(")", ")"))

	return b.t.AddRule("if_statement", b.spaced("if", "if"), b.leading(test, " "), b.leading(block, " "))
}

// scratchDecl builds Object LD_MUT_VAR_<body>;
func (b builder) scratchDecl(body int) tree.NodeID {
	decl := b.t.AddRule("variable_declarator", b.spaced("identifier", scratchPrefix+strconv.Itoa(body)))

	return b.t.AddRule("local_variable_declaration", b.spaced("type_identifier", "Object"), decl, b.tok(";", ";"))
}

// envMapDecl builds the static map of a class body, filled once at class
// load time.
func (b builder) envMapDecl(classBody int) tree.NodeID {
	decl := b.t.AddRule("variable_declarator",
		b.spaced("identifier", envMapPrefix+strconv.Itoa(classBody)),
		b.spaced("=", "="),
		b.spaced("method_invocation", "System.getenv()"),
	)

	return b.t.AddRule("field_declaration",
		b.t.AddRule("modifiers", b.spaced("static", "static")),
		b.spaced("generic_type", "java.util.Map<String, String>"),
		decl,
		b.tok(";", ";"),
	)
}

// leading sets the trivia before the first terminal of id and returns id.
func (b builder) leading(id tree.NodeID, trivia string) tree.NodeID {
	if first := b.t.FirstTerminal(id); first != tree.None {
		b.t.Node(first).Leading = trivia
	}

	return id
}
