package doctree

import "strings"

// DocTree is the outline of a parsed upload.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document outline.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Text     string     // Body text of this node (may be empty for container nodes)
	Page     int        // Source page (0 if N/A)
	Children []*DocNode // Subsections
}

// Chunk is a bounded slice of a document's text with its position.
type Chunk struct {
	Text  string
	Index int // 0-based
	Total int
}

// Text renders the outline back to plain text. Headings become Markdown
// headings at their nesting level so the model still sees the structure.
func (t *DocTree) Text() string {
	var b strings.Builder
	if t.Title != "" {
		b.WriteString("# ")
		b.WriteString(t.Title)
		b.WriteString("\n\n")
	}
	for _, child := range t.Children {
		writeNode(&b, child, 2)
	}
	return strings.TrimSpace(b.String())
}

func writeNode(b *strings.Builder, n *DocNode, level int) {
	if n.Title != "" {
		b.WriteString(strings.Repeat("#", min(level, 6)))
		b.WriteString(" ")
		b.WriteString(n.Title)
		b.WriteString("\n\n")
	}
	if text := strings.TrimSpace(n.Text); text != "" {
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	for _, child := range n.Children {
		writeNode(b, child, level+1)
	}
}

