// Package mindmap defines the mind-map tree and the functions that repair,
// bound and parse trees produced by a language model.
package mindmap

import "strings"

// UnknownLabel replaces missing or empty labels.
const UnknownLabel = "unknown node"

// Node is one concept in a mind map. Children are in display order.
type Node struct {
	ID       string  `json:"id"`
	Label    string  `json:"label"`
	Children []*Node `json:"children"`
}

// NewNode returns a leaf with a non-nil children slice.
func NewNode(id, label string) *Node {
	return &Node{ID: id, Label: label, Children: []*Node{}}
}

// ErrorNode is the root returned when generation failed and no partial tree
// exists. The failure is surfaced in the label.
func ErrorNode(msg string) *Node {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = "unknown error"
	}
	return NewNode("root", "Generation failed: "+msg)
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{ID: n.ID, Label: n.Label, Children: make([]*Node, 0, len(n.Children))}
	for _, c := range n.Children {
		if c != nil {
			out.Children = append(out.Children, c.Clone())
		}
	}
	return out
}

// Walk visits n and its descendants depth-first, root at depth 0.
func (n *Node) Walk(fn func(node *Node, depth int)) {
	var walk func(node *Node, depth int)
	walk = func(node *Node, depth int) {
		if node == nil {
			return
		}
		fn(node, depth)
		for _, c := range node.Children {
			walk(c, depth+1)
		}
	}
	walk(n, 0)
}

// Depth returns the depth of the deepest node, the root being 0.
func (n *Node) Depth() int {
	deepest := 0
	n.Walk(func(_ *Node, d int) {
		if d > deepest {
			deepest = d
		}
	})
	return deepest
}

// Count returns the number of nodes in the tree.
func (n *Node) Count() int {
	total := 0
	n.Walk(func(*Node, int) { total++ })
	return total
}

// Markdown renders the tree as a heading/list outline: the root and its
// children become headings, deeper levels become nested bullets.
func (n *Node) Markdown() string {
	var b strings.Builder
	n.Walk(func(node *Node, depth int) {
		switch {
		case depth < 3:
			b.WriteString(strings.Repeat("#", depth+1))
			b.WriteString(" ")
		default:
			b.WriteString(strings.Repeat("  ", depth-3))
			b.WriteString("- ")
		}
		b.WriteString(node.Label)
		b.WriteString("\n")
	})
	return b.String()
}
