package parser

import (
	"strings"
	"testing"
)

func TestMarkdownParser_Outline(t *testing.T) {
	input := `Preface before any heading.

# Databases

Storage engines compared.

## Relational

Tables and joins.

### Postgres

MVCC.

## Key-value

- fast lookups
- no joins
`
	p := &MarkdownParser{}
	tree, err := p.Parse(strings.NewReader(input), "notes.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Title != "notes" {
		t.Errorf("expected title %q, got %q", "notes", tree.Title)
	}

	// Leading untitled text, then the h1.
	if len(tree.Children) != 2 {
		t.Fatalf("expected 2 top-level children, got %d", len(tree.Children))
	}
	if lead := tree.Children[0]; lead.Title != "" || lead.Text != "Preface before any heading." {
		t.Errorf("unexpected leading child: %+v", lead)
	}

	db := tree.Children[1]
	if db.Title != "Databases" || db.Text != "Storage engines compared." {
		t.Errorf("unexpected h1: title=%q text=%q", db.Title, db.Text)
	}
	if len(db.Children) != 2 {
		t.Fatalf("expected 2 h2 children, got %d", len(db.Children))
	}

	rel := db.Children[0]
	if rel.Title != "Relational" || len(rel.Children) != 1 || rel.Children[0].Title != "Postgres" {
		t.Errorf("unexpected relational section: %+v", rel)
	}
	if rel.Children[0].Text != "MVCC." {
		t.Errorf("expected h3 text %q, got %q", "MVCC.", rel.Children[0].Text)
	}

	kv := db.Children[1]
	if !strings.Contains(kv.Text, "fast lookups") || !strings.Contains(kv.Text, "no joins") {
		t.Errorf("expected list items in key-value text, got %q", kv.Text)
	}
}

func TestMarkdownParser_ParagraphNotDuplicated(t *testing.T) {
	p := &MarkdownParser{}
	tree, err := p.Parse(strings.NewReader("# Topic\n\nOnly once.\n"), "t.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tree.Children[0].Text; got != "Only once." {
		t.Errorf("expected %q, got %q", "Only once.", got)
	}
}

func TestMarkdownParser_CodeBlockStaysInSection(t *testing.T) {
	input := "# CLI\n\n## Usage\n\nRun it:\n\n```\nmindmap generate -f doc.md\n```\n\nThen read the tree.\n"
	p := &MarkdownParser{}
	tree, err := p.Parse(strings.NewReader(input), "cli.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	usage := tree.Children[0].Children[0]
	if usage.Title != "Usage" {
		t.Fatalf("expected %q, got %q", "Usage", usage.Title)
	}
	for _, want := range []string{"Run it:", "mindmap generate -f doc.md", "Then read the tree."} {
		if !strings.Contains(usage.Text, want) {
			t.Errorf("expected usage text to contain %q, got %q", want, usage.Text)
		}
	}
}

func TestMarkdownParser_SkippedLevels(t *testing.T) {
	// An h3 directly under an h1 still nests under it.
	p := &MarkdownParser{}
	tree, err := p.Parse(strings.NewReader("# A\n\n### A.1\n\n# B\n"), "levels.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Children) != 2 {
		t.Fatalf("expected 2 top-level children, got %d", len(tree.Children))
	}
	if len(tree.Children[0].Children) != 1 || tree.Children[0].Children[0].Title != "A.1" {
		t.Errorf("expected A.1 under A, got %+v", tree.Children[0].Children)
	}
}

func TestMarkdownParser_EmptyInput(t *testing.T) {
	p := &MarkdownParser{}
	tree, err := p.Parse(strings.NewReader(""), "empty.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Children) != 0 {
		t.Errorf("expected 0 children for empty input, got %d", len(tree.Children))
	}
	if tree.Text() != "# empty" {
		t.Errorf("expected only the title line, got %q", tree.Text())
	}
}

func TestMarkdownParser_TitleFromFilename(t *testing.T) {
	tests := []struct {
		filename string
		want     string
	}{
		{"readme.md", "readme"},
		{"notes.markdown", "notes"},
		{"dir/guide.md", "guide"},
	}
	p := &MarkdownParser{}
	for _, tt := range tests {
		tree, err := p.Parse(strings.NewReader("text"), tt.filename)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", tt.filename, err)
		}
		if tree.Title != tt.want {
			t.Errorf("filename=%q: expected title %q, got %q", tt.filename, tt.want, tree.Title)
		}
	}
}

func TestDocTreeText_HeadingLevels(t *testing.T) {
	p := &MarkdownParser{}
	tree, err := p.Parse(strings.NewReader("# One\n\nbody\n\n## Two\n\nmore\n"), "doc.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "# doc\n\n## One\n\nbody\n\n### Two\n\nmore"
	if got := tree.Text(); got != want {
		t.Errorf("expected\n%q\ngot\n%q", want, got)
	}
}
