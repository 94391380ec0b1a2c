package tree

import (
	"strings"
	"unicode"
)

// Builder assembles a tree over a source text token by token. Tokens are
// consumed in source order, so nested Rule calls written in reading order
// produce a tree whose rendering is the source. It lets callers and tests
// build trees without a grammar.
type Builder struct {
	src  string
	pos  int
	line int
	t    *Tree
}

// NewBuilder starts a tree over src.
func NewBuilder(src string) *Builder {
	return &Builder{src: src, line: 1, t: New()}
}

var javaKeywords = map[string]bool{
	"abstract": true, "assert": true, "break": true, "case": true, "catch": true,
	"class": true, "continue": true, "default": true, "do": true, "else": true,
	"enum": true, "extends": true, "final": true, "finally": true, "for": true,
	"if": true, "implements": true, "import": true, "instanceof": true,
	"interface": true, "new": true, "package": true, "private": true,
	"protected": true, "public": true, "return": true, "static": true,
	"super": true, "switch": true, "synchronized": true, "this": true,
	"throw": true, "throws": true, "try": true, "while": true, "var": true,
	"int": true, "long": true, "short": true, "byte": true, "char": true,
	"float": true, "double": true, "true": true, "false": true,
}

var operators = []string{
	">>>=", "<<=", ">>=", ">>>", "...", "->", "::", "++", "--", "&&", "||",
	"==", "!=", "<=", ">=", "+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=",
	"<<", ">>",
}

// Tok consumes the next token. The optional typ overrides the inferred type.
func (b *Builder) Tok(typ ...string) NodeID {
	leading := b.skipTrivia()
	start, line := b.pos, b.line
	lexeme, inferred := b.lex()

	id := b.t.alloc(Node{
		Type:     inferred,
		Terminal: true,
		Text:     lexeme,
		Leading:  leading,
		Start:    start,
		End:      start + len(lexeme) - 1,
		Line:     line,
		Parent:   None,
	})

	if len(typ) > 0 {
		b.t.nodes[id].Type = typ[0]
	}

	return id
}

// Span consumes the token at the inclusive byte range [start, end]. The
// source text skipped since the previous token becomes its leading trivia,
// so tokens must come in source order.
func (b *Builder) Span(typ string, start, end int) NodeID {
	if start < b.pos || end < start || end >= len(b.src) {
		panic("tree: span out of order")
	}

	leading := b.src[b.pos:start]
	b.advance(start - b.pos)
	line := b.line
	b.advance(end - start + 1)

	return b.t.alloc(Node{
		Type:     typ,
		Terminal: true,
		Text:     b.src[start : end+1],
		Leading:  leading,
		Start:    start,
		End:      end,
		Line:     line,
		Parent:   None,
	})
}

// Rule builds a rule node spanning its children.
func (b *Builder) Rule(typ string, kids ...NodeID) NodeID {
	id := b.t.AddRule(typ, kids...)
	if len(kids) > 0 {
		first, last := b.t.nodes[kids[0]], b.t.nodes[kids[len(kids)-1]]
		n := &b.t.nodes[id]
		n.Start, n.End, n.Line = first.Start, last.End, first.Line
	}

	return id
}

// Field labels id with a field name and returns it.
func (b *Builder) Field(name string, id NodeID) NodeID {
	b.t.nodes[id].Field = name
	return id
}

// Tree finishes the build with root as the root node.
func (b *Builder) Tree(root NodeID) *Tree {
	b.t.SetRoot(root)
	b.t.Trailer = b.src[b.pos:]

	return b.t
}

func (b *Builder) skipTrivia() string {
	start := b.pos

	for b.pos < len(b.src) {
		rest := b.src[b.pos:]

		switch {
		case rest[0] == ' ' || rest[0] == '\t' || rest[0] == '\r' || rest[0] == '\n':
			b.advance(1)
		case strings.HasPrefix(rest, "//"):
			end := strings.IndexByte(rest, '\n')
			if end < 0 {
				end = len(rest)
			}

			b.advance(end)
		case strings.HasPrefix(rest, "/*"):
			end := strings.Index(rest[2:], "*/")
			if end < 0 {
				end = len(rest) - 4
			}

			b.advance(end + 4)
		default:
			return b.src[start:b.pos]
		}
	}

	return b.src[start:b.pos]
}

func (b *Builder) advance(n int) {
	b.line += strings.Count(b.src[b.pos:b.pos+n], "\n")
	b.pos += n
}

func (b *Builder) lex() (string, string) {
	rest := b.src[b.pos:]
	if rest == "" {
		panic("tree: builder ran out of tokens")
	}

	n, typ := 1, rest[:1]

	switch c := rune(rest[0]); {
	case unicode.IsLetter(c) || c == '_' || c == '$':
		for n < len(rest) && (isIdent(rune(rest[n]))) {
			n++
		}

		typ = identType(rest[:n])
	case unicode.IsDigit(c):
		for n < len(rest) && (isIdent(rune(rest[n])) || rest[n] == '.') {
			n++
		}

		typ = "decimal_integer_literal"
		if strings.ContainsAny(rest[:n], ".") {
			typ = "decimal_floating_point_literal"
		}
	case c == '"' || c == '\'':
		for n < len(rest) && rest[n] != rest[0] {
			if rest[n] == '\\' {
				n++
			}
			n++
		}

		n++

		typ = "string_literal"
		if c == '\'' {
			typ = "character_literal"
		}
	default:
		for _, op := range operators {
			if strings.HasPrefix(rest, op) {
				n, typ = len(op), op
				break
			}
		}
	}

	lexeme := rest[:n]
	b.advance(n)

	return lexeme, typ
}

func isIdent(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '$'
}

func identType(word string) string {
	switch {
	case word == "null":
		return "null_literal"
	case word == "void":
		return "void_type"
	case word == "boolean":
		return "boolean_type"
	case javaKeywords[word]:
		return word
	}

	return "identifier"
}

// Shape builds a tree over src from an s-expression naming its rules.
// "." consumes the next token, ".type" consumes it under an explicit type,
// "(type item ...)" builds a rule and "field:item" labels an item. It panics
// on a malformed shape or when the shape and src disagree on token count.
func Shape(src, shape string) *Tree {
	s := &shapeParser{b: NewBuilder(src), toks: strings.Fields(strings.NewReplacer("(", " ( ", ")", " ) ").Replace(shape))}

	root := s.item()
	if s.pos != len(s.toks) {
		panic("tree: trailing shape tokens after " + strings.Join(s.toks[:s.pos], " "))
	}

	if rest := strings.TrimSpace(s.b.src[s.b.pos:]); rest != "" && !strings.HasPrefix(rest, "//") && !strings.HasPrefix(rest, "/*") {
		panic("tree: shape does not cover source text " + rest)
	}

	return s.b.Tree(root)
}

type shapeParser struct {
	b    *Builder
	toks []string
	pos  int
}

func (s *shapeParser) next() string {
	if s.pos >= len(s.toks) {
		panic("tree: shape ended early")
	}

	tok := s.toks[s.pos]
	s.pos++

	return tok
}

func (s *shapeParser) item() NodeID {
	tok := s.next()

	if i := strings.IndexByte(tok, ':'); i > 0 {
		field, rest := tok[:i], tok[i+1:]

		var id NodeID
		if rest == "" {
			id = s.item()
		} else {
			id = s.atom(rest)
		}

		return s.b.Field(field, id)
	}

	if tok != "(" {
		return s.atom(tok)
	}

	typ := s.next()

	var kids []NodeID
	for s.pos < len(s.toks) && s.toks[s.pos] != ")" {
		kids = append(kids, s.item())
	}

	s.next()

	return s.b.Rule(typ, kids...)
}

func (s *shapeParser) atom(tok string) NodeID {
	switch {
	case tok == ".":
		return s.b.Tok()
	case strings.HasPrefix(tok, "."):
		return s.b.Tok(tok[1:])
	}

	panic("tree: unexpected shape token " + tok)
}
