// Package tree implements the arena syntax tree the mutation engine works on.
//
// Nodes live in a single backing slice and reference each other by NodeID.
// Terminals carry their token text plus the trivia (whitespace, comments)
// that precede them, so rendering the whole tree reproduces the parsed
// source byte for byte.
package tree

import "strings"

// NodeID addresses a node inside its Tree's arena.
type NodeID int32

// None is the null NodeID.
const None NodeID = -1

// Context IDs recorded in Meta.ContextID.
const (
	ContextNone      = 0
	ContextEnum      = 1
	ContextClassBody = 2
)

// Mutation classes recorded in Meta.MutationClass.
const (
	ClassNone           = 0
	ClassExpression     = 1
	ClassStatement      = 2
	ClassExpressionList = 3
	ClassInitializer    = 4
	ClassForClause      = 5
	ClassCompileTime    = 6
	ClassMethodBody     = 7
	ClassReturnValue    = 8
	ClassMethod         = 9
	ClassCreator        = 10
)

const scratchIndex = -1

// Meta is the engine-owned bookkeeping attached to every node.
type Meta struct {
	// Index is the depth-first pre-order number; -1 for scratch nodes.
	Index int `json:"index"`
	Depth int `json:"depth"`
	In    int `json:"in"`
	Out   int `json:"out"`
	// MutationClass classifies the syntactic context of the node.
	MutationClass int `json:"class"`
	ContextID     int `json:"context"`
	// AppliedID links a spliced-in replacement to the saved original.
	AppliedID int `json:"applied,omitempty"`
	// MutationIDs lists the mutations a schemata variant embodies.
	MutationIDs []int `json:"mutations,omitempty"`

	classSet bool
}

// Node is one arena slot.
type Node struct {
	Type     string
	Field    string
	Terminal bool
	// Text is the token text of a terminal.
	Text string
	// Leading is the source text between the previous terminal and this one.
	Leading string
	// Start and End are inclusive byte offsets; -1 for synthesized nodes.
	Start    int
	End      int
	Line     int
	Parent   NodeID
	Children []NodeID
	Meta     Meta
}

// Tree is an arena of nodes with a single root.
type Tree struct {
	nodes []Node
	root  NodeID
	// Trailer holds the text after the last terminal.
	Trailer string

	byIndex  map[int]NodeID
	maxDepth int
}

// New returns an empty tree.
func New() *Tree {
	return &Tree{root: None}
}

// Root returns the root node or None.
func (t *Tree) Root() NodeID {
	return t.root
}

// SetRoot makes id the root of the tree.
func (t *Tree) SetRoot(id NodeID) {
	t.root = id
	t.nodes[id].Parent = None
	t.invalidate()
}

// Len returns the number of arena slots, attached or not.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Node returns the slot for id. The pointer is only valid until the next
// allocation in the arena.
func (t *Tree) Node(id NodeID) *Node {
	return &t.nodes[id]
}

// Valid reports whether id addresses a slot in the arena.
func (t *Tree) Valid(id NodeID) bool {
	return id >= 0 && int(id) < len(t.nodes)
}

func (t *Tree) alloc(n Node) NodeID {
	n.Meta.Index = scratchIndex
	n.Meta.MutationClass = ClassNone
	t.nodes = append(t.nodes, n)

	return NodeID(len(t.nodes) - 1)
}

// AddTerminal allocates a detached synthesized terminal.
func (t *Tree) AddTerminal(typ, text string) NodeID {
	return t.alloc(Node{Type: typ, Terminal: true, Text: text, Start: -1, End: -1, Parent: None})
}

// AddSpaced allocates a detached synthesized terminal preceded by one space.
func (t *Tree) AddSpaced(typ, text string) NodeID {
	id := t.AddTerminal(typ, text)
	t.nodes[id].Leading = " "

	return id
}

// AddRule allocates a detached rule node adopting children.
func (t *Tree) AddRule(typ string, children ...NodeID) NodeID {
	id := t.alloc(Node{Type: typ, Start: -1, End: -1, Parent: None})
	for _, c := range children {
		t.AppendChild(id, c)
	}

	return id
}

// AppendChild adds child as the last child of parent.
func (t *Tree) AppendChild(parent, child NodeID) {
	t.nodes[child].Parent = parent
	t.nodes[parent].Children = append(t.nodes[parent].Children, child)
	t.invalidate()
}

// InsertChild adds child at position at of parent's child list.
func (t *Tree) InsertChild(parent NodeID, at int, child NodeID) {
	kids := t.nodes[parent].Children
	if at < 0 || at > len(kids) {
		at = len(kids)
	}

	kids = append(kids, None)
	copy(kids[at+1:], kids[at:])
	kids[at] = child
	t.nodes[parent].Children = kids
	t.nodes[child].Parent = parent
	t.invalidate()
}

// Type returns the grammar type of id.
func (t *Tree) Type(id NodeID) string {
	return t.nodes[id].Type
}

// Parent returns the parent of id or None.
func (t *Tree) Parent(id NodeID) NodeID {
	return t.nodes[id].Parent
}

// Children returns the child list of id. Callers must not modify it.
func (t *Tree) Children(id NodeID) []NodeID {
	return t.nodes[id].Children
}

// Child returns the i-th child of id or None.
func (t *Tree) Child(id NodeID, i int) NodeID {
	kids := t.nodes[id].Children
	if i < 0 {
		i += len(kids)
	}

	if i < 0 || i >= len(kids) {
		return None
	}

	return kids[i]
}

// ChildByField returns the first child of id labelled field.
func (t *Tree) ChildByField(id NodeID, field string) NodeID {
	for _, c := range t.nodes[id].Children {
		if t.nodes[c].Field == field {
			return c
		}
	}

	return None
}

// ChildOfType returns the first child of id with the given type.
func (t *Tree) ChildOfType(id NodeID, typ string) NodeID {
	for _, c := range t.nodes[id].Children {
		if t.nodes[c].Type == typ {
			return c
		}
	}

	return None
}

// IsTerminal reports whether id is a token.
func (t *Tree) IsTerminal(id NodeID) bool {
	return t.nodes[id].Terminal
}

// Meta returns the bookkeeping of id. See Node for pointer validity.
func (t *Tree) Meta(id NodeID) *Meta {
	return &t.nodes[id].Meta
}

// MaxDepth returns the depth recorded by the last Index call.
func (t *Tree) MaxDepth() int {
	return t.maxDepth
}

// Render returns the text of the subtree including the trivia before its
// first terminal.
func (t *Tree) Render(id NodeID) string {
	var sb strings.Builder

	t.render(&sb, id, true)

	return sb.String()
}

// Text returns the source text of the subtree without leading trivia.
func (t *Tree) Text(id NodeID) string {
	var sb strings.Builder

	first := true
	t.walkTerminals(id, func(n *Node) {
		if !first {
			sb.WriteString(n.Leading)
		}

		first = false

		sb.WriteString(n.Text)
	})

	return sb.String()
}

// Source renders the whole tree, trailer included.
func (t *Tree) Source() string {
	if t.root == None {
		return t.Trailer
	}

	return t.Render(t.root) + t.Trailer
}

func (t *Tree) render(sb *strings.Builder, id NodeID, leading bool) {
	t.walkTerminals(id, func(n *Node) {
		if leading {
			sb.WriteString(n.Leading)
		}

		leading = true

		sb.WriteString(n.Text)
	})
}

func (t *Tree) walkTerminals(id NodeID, fn func(n *Node)) {
	n := &t.nodes[id]
	if n.Terminal {
		fn(n)
		return
	}

	for _, c := range n.Children {
		t.walkTerminals(c, fn)
	}
}

// FirstTerminal returns the leftmost terminal of the subtree or None.
func (t *Tree) FirstTerminal(id NodeID) NodeID {
	for !t.nodes[id].Terminal {
		kids := t.nodes[id].Children
		if len(kids) == 0 {
			return None
		}

		id = kids[0]
	}

	return id
}

// LastTerminal returns the rightmost terminal of the subtree or None.
func (t *Tree) LastTerminal(id NodeID) NodeID {
	for !t.nodes[id].Terminal {
		kids := t.nodes[id].Children
		if len(kids) == 0 {
			return None
		}

		id = kids[len(kids)-1]
	}

	return id
}

// Walk visits the subtree in pre-order. Returning false from fn skips the
// children of the visited node.
func (t *Tree) Walk(id NodeID, fn func(id NodeID) bool) {
	if !fn(id) {
		return
	}

	for _, c := range t.nodes[id].Children {
		t.Walk(c, fn)
	}
}

func (t *Tree) invalidate() {
	t.byIndex = nil
}
