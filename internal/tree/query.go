package tree

// Enclosing returns the nearest strict ancestor of id whose type is one of
// types, or None. Ancestors of a type listed in stop end the search.
func (t *Tree) Enclosing(id NodeID, types []string, stop ...string) NodeID {
	for p := t.nodes[id].Parent; p != None; p = t.nodes[p].Parent {
		typ := t.nodes[p].Type
		for _, want := range types {
			if typ == want {
				return p
			}
		}

		for _, s := range stop {
			if typ == s {
				return None
			}
		}
	}

	return None
}

// EnclosingMethod returns the method declaration whose body contains id.
// Lambdas and nested class bodies end the search.
func (t *Tree) EnclosingMethod(id NodeID) NodeID {
	return t.Enclosing(id, []string{"method_declaration"}, "lambda_expression", "class_body")
}

// EnclosingBody returns the executable block that scopes id: a method or
// constructor body, an initializer block or a lambda block.
func (t *Tree) EnclosingBody(id NodeID) NodeID {
	for p := id; p != None; p = t.nodes[p].Parent {
		if t.IsBody(p) {
			return p
		}
	}

	return None
}

// IsBody reports whether id is a block that can host local declarations for
// a whole method-like scope.
func (t *Tree) IsBody(id NodeID) bool {
	n := &t.nodes[id]
	if n.Parent == None {
		return false
	}

	parent := t.nodes[n.Parent].Type

	switch n.Type {
	case "constructor_body":
		return true
	case "block":
		switch parent {
		case "method_declaration", "static_initializer", "class_body", "enum_body_declarations":
			return true
		case "lambda_expression":
			return n.Field == "body"
		}
	}

	return false
}

// OutermostClassBody returns the outermost class or interface body that
// contains id, or None.
func (t *Tree) OutermostClassBody(id NodeID) NodeID {
	found := None

	for p := id; p != None; p = t.nodes[p].Parent {
		switch t.nodes[p].Type {
		case "class_body", "interface_body":
			found = p
		}
	}

	return found
}

// MethodName returns the name of the method or constructor that contains
// id, or "" outside any.
func (t *Tree) MethodName(id NodeID) string {
	for p := id; p != None; p = t.nodes[p].Parent {
		switch t.nodes[p].Type {
		case "method_declaration", "constructor_declaration":
			if name := t.ChildByField(p, "name"); name != None {
				return t.Text(name)
			}

			return ""
		}
	}

	return ""
}

// IsPrimitiveType reports whether the type node names a primitive value type.
func (t *Tree) IsPrimitiveType(typ NodeID) bool {
	switch t.nodes[typ].Type {
	case "integral_type", "floating_point_type", "boolean_type":
		return true
	}

	return false
}

// ElementType strips array dimensions off a type node.
func (t *Tree) ElementType(typ NodeID) NodeID {
	for t.nodes[typ].Type == "array_type" {
		elem := t.ChildByField(typ, "element")
		if elem == None {
			elem = t.Child(typ, 0)
		}

		if elem == None {
			break
		}

		typ = elem
	}

	return typ
}

// Lines returns the set of lines that terminals of id start on.
func (t *Tree) Lines(id NodeID) map[int]bool {
	lines := make(map[int]bool)

	t.Walk(id, func(n NodeID) bool {
		if t.nodes[n].Terminal && t.nodes[n].Line > 0 {
			lines[t.nodes[n].Line] = true
		}

		return true
	})

	return lines
}
