package mindmap

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// FromMarkdown reads a heading/list outline into a tree. Headings nest by
// level and list items nest under the closest heading or parent item. A single
// top-level heading becomes the root; otherwise a synthetic root holds the
// top-level entries. Returns nil when the text has no headings or lists.
func FromMarkdown(md string) *Node {
	src := []byte(md)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	type stackEntry struct {
		node  *Node
		level int
	}

	root := &Node{Label: "Mind Map", Children: []*Node{}}
	stack := []stackEntry{{node: root, level: 0}}
	headings := 0

	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch block := n.(type) {
		case *ast.Heading:
			label := inlineText(block, src)
			if label == "" {
				continue
			}
			headings++
			node := &Node{Label: label, Children: []*Node{}}
			for len(stack) > 1 && stack[len(stack)-1].level >= block.Level {
				stack = stack[:len(stack)-1]
			}
			parent := stack[len(stack)-1].node
			parent.Children = append(parent.Children, node)
			stack = append(stack, stackEntry{node: node, level: block.Level})

		case *ast.List:
			parent := stack[len(stack)-1].node
			parent.Children = append(parent.Children, listItems(block, src)...)
		}
	}

	if len(root.Children) == 0 {
		return nil
	}
	out := root
	if len(root.Children) == 1 && headings > 0 {
		out = root.Children[0]
	}
	return Normalize(out)
}

func listItems(list *ast.List, src []byte) []*Node {
	var out []*Node
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		node := &Node{Children: []*Node{}}
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			switch block := c.(type) {
			case *ast.List:
				node.Children = append(node.Children, listItems(block, src)...)
			case *ast.TextBlock, *ast.Paragraph:
				if node.Label == "" {
					node.Label = inlineText(block, src)
				}
			}
		}
		if node.Label == "" && len(node.Children) == 0 {
			continue
		}
		out = append(out, node)
	}
	return out
}

// inlineText concatenates the text of n's inline descendants.
func inlineText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				buf.Write(t.Value(src))
				if t.SoftLineBreak() || t.HardLineBreak() {
					buf.WriteByte(' ')
				}
			case *ast.String:
				buf.Write(t.Value)
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return strings.TrimSpace(buf.String())
}
