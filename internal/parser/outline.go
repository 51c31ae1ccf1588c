package parser

import (
	"strings"

	"github.com/dgallion1/mindmapd/internal/doctree"
)

// outline builds a DocTree from a flat sequence of headings and text blocks.
// Headings nest by level; text attaches to the most recent heading.
type outline struct {
	root  *doctree.DocNode
	stack []outlineEntry
	text  strings.Builder
}

type outlineEntry struct {
	node  *doctree.DocNode
	level int
}

func newOutline(title string) *outline {
	root := &doctree.DocNode{Title: title}
	return &outline{root: root, stack: []outlineEntry{{node: root, level: 0}}}
}

// heading opens a section at level (1 is the outermost).
func (o *outline) heading(level int, title string) {
	o.flush()
	node := &doctree.DocNode{Title: title}
	for len(o.stack) > 1 && o.stack[len(o.stack)-1].level >= level {
		o.stack = o.stack[:len(o.stack)-1]
	}
	parent := o.stack[len(o.stack)-1].node
	parent.Children = append(parent.Children, node)
	o.stack = append(o.stack, outlineEntry{node: node, level: level})
}

// paragraph appends a text block to the current section.
func (o *outline) paragraph(t string) {
	t = strings.TrimSpace(t)
	if t == "" {
		return
	}
	if o.text.Len() > 0 {
		o.text.WriteString("\n\n")
	}
	o.text.WriteString(t)
}

func (o *outline) flush() {
	t := strings.TrimSpace(o.text.String())
	o.text.Reset()
	if t == "" {
		return
	}
	top := o.stack[len(o.stack)-1].node
	if top.Text != "" {
		top.Text += "\n\n" + t
	} else {
		top.Text = t
	}
}

// tree finishes the outline. Text outside any heading becomes a single
// untitled child when there are no headings at all, and a leading
// untitled child otherwise.
func (o *outline) tree(title string) *doctree.DocTree {
	o.flush()
	tree := &doctree.DocTree{Title: title, Children: o.root.Children}
	if o.root.Text != "" {
		lead := &doctree.DocNode{Text: o.root.Text}
		tree.Children = append([]*doctree.DocNode{lead}, tree.Children...)
	}
	return tree
}
