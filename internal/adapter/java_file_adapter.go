package adapter

import (
	"context"
	"errors"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"

	m "gooze.dev/pkg/jgooze/internal/model"
	"gooze.dev/pkg/jgooze/internal/tree"
)

// ErrSyntax is returned for sources the Java grammar rejects.
var ErrSyntax = errors.New("java syntax error")

// JavaFileAdapter turns Java sources into indexed syntax trees.
type JavaFileAdapter interface {
	// Parse builds and indexes the tree of src. The tree renders back to src
	// byte for byte.
	Parse(ctx context.Context, path m.Path, src []byte) (*tree.Tree, error)

	// PackageName returns the declared package of a parsed compilation unit,
	// or "" for the default package.
	PackageName(t *tree.Tree) string
}

// LocalJavaFileAdapter parses with the tree-sitter Java grammar.
type LocalJavaFileAdapter struct{}

// NewLocalJavaFileAdapter constructs a LocalJavaFileAdapter.
func NewLocalJavaFileAdapter() *LocalJavaFileAdapter {
	return &LocalJavaFileAdapter{}
}

// literals are kept as single terminals even where the grammar splits them
// into fragments.
var literals = map[string]bool{
	"string_literal":    true,
	"character_literal": true,
	"text_block":        true,
}

// Parse implements JavaFileAdapter.
func (a *LocalJavaFileAdapter) Parse(ctx context.Context, path m.Path, src []byte) (*tree.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	defer parser.Close()

	parser.SetLanguage(java.GetLanguage())

	cst, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	defer cst.Close()

	root := cst.RootNode()
	if root.HasError() {
		line, col := firstError(root)
		return nil, fmt.Errorf("%w in %s at %d:%d", ErrSyntax, path, line, col)
	}

	b := tree.NewBuilder(string(src))
	t := b.Tree(convert(b, root))
	t.Index()

	return t, nil
}

// convert copies the concrete syntax tree into b. Comments are extras in
// the grammar; they end up in the leading trivia of the next terminal.
func convert(b *tree.Builder, n *sitter.Node) tree.NodeID {
	start, end := int(n.StartByte()), int(n.EndByte())
	if end == start {
		return b.Rule(n.Type())
	}

	count := int(n.ChildCount())
	if count == 0 || literals[n.Type()] {
		return b.Span(n.Type(), start, end-1)
	}

	kids := make([]tree.NodeID, 0, count)

	for i := range count {
		child := n.Child(i)
		if child == nil || child.IsExtra() {
			continue
		}

		id := convert(b, child)
		if field := n.FieldNameForChild(i); field != "" {
			b.Field(field, id)
		}

		kids = append(kids, id)
	}

	return b.Rule(n.Type(), kids...)
}

// firstError returns the 1-based position of the first ERROR or MISSING
// node.
func firstError(n *sitter.Node) (int, int) {
	if n.IsError() || n.IsMissing() {
		p := n.StartPoint()
		return int(p.Row) + 1, int(p.Column) + 1
	}

	for i := range int(n.ChildCount()) {
		child := n.Child(i)
		if child == nil || !child.HasError() && !child.IsMissing() {
			continue
		}

		return firstError(child)
	}

	p := n.StartPoint()

	return int(p.Row) + 1, int(p.Column) + 1
}

// PackageName implements JavaFileAdapter.
func (a *LocalJavaFileAdapter) PackageName(t *tree.Tree) string {
	if t.Root() == tree.None {
		return ""
	}

	decl := t.ChildOfType(t.Root(), "package_declaration")
	if decl == tree.None {
		return ""
	}

	for _, c := range t.Children(decl) {
		switch t.Type(c) {
		case "scoped_identifier", "identifier":
			return t.Text(c)
		}
	}

	return ""
}
