package tree

import (
	"encoding/json"
	"fmt"
)

type jsonNode struct {
	Type     string     `json:"type"`
	Field    string     `json:"field,omitempty"`
	Terminal bool       `json:"terminal,omitempty"`
	Text     string     `json:"text,omitempty"`
	Leading  string     `json:"leading,omitempty"`
	Start    int        `json:"start"`
	End      int        `json:"end"`
	Line     int        `json:"line,omitempty"`
	Meta     Meta       `json:"meta"`
	Children []jsonNode `json:"children,omitempty"`
}

// MarshalJSON encodes the tree from its root as nested JSON objects.
func (t *Tree) MarshalJSON() ([]byte, error) {
	if t.root == None {
		return []byte("null"), nil
	}

	return json.Marshal(t.toJSON(t.root))
}

// UnmarshalJSON rebuilds a tree encoded by MarshalJSON.
func (t *Tree) UnmarshalJSON(data []byte) error {
	*t = Tree{root: None}

	if string(data) == "null" {
		return nil
	}

	var root jsonNode
	if err := json.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to decode subtree: %w", err)
	}

	t.root = t.fromJSON(root, None)

	return nil
}

// EncodeSubtree encodes the subtree rooted at id.
func (t *Tree) EncodeSubtree(id NodeID) ([]byte, error) {
	return json.Marshal(t.toJSON(id))
}

func (t *Tree) toJSON(id NodeID) jsonNode {
	n := &t.nodes[id]
	out := jsonNode{
		Type:     n.Type,
		Field:    n.Field,
		Terminal: n.Terminal,
		Text:     n.Text,
		Leading:  n.Leading,
		Start:    n.Start,
		End:      n.End,
		Line:     n.Line,
		Meta:     n.Meta,
	}

	for _, c := range n.Children {
		out.Children = append(out.Children, t.toJSON(c))
	}

	return out
}

func (t *Tree) fromJSON(j jsonNode, parent NodeID) NodeID {
	t.nodes = append(t.nodes, Node{
		Type:     j.Type,
		Field:    j.Field,
		Terminal: j.Terminal,
		Text:     j.Text,
		Leading:  j.Leading,
		Start:    j.Start,
		End:      j.End,
		Line:     j.Line,
		Parent:   parent,
		Meta:     j.Meta,
	})
	id := NodeID(len(t.nodes) - 1)

	for _, c := range j.Children {
		child := t.fromJSON(c, id)
		t.nodes[id].Children = append(t.nodes[id].Children, child)
	}

	return id
}
