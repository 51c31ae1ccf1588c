package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"

	"github.com/dgallion1/mindmapd/internal/mindmap"
)

var (
	rootStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("160"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	reasoningStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("244"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	enumStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginRight(1)
)

// renderTree draws a mind-map tree with box-drawing branches.
func renderTree(root *mindmap.Node) string {
	t := tree.Root(rootStyle.Render(root.Label)).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(enumStyle)
	for _, c := range root.Children {
		t.Child(subtree(c))
	}
	return t.String()
}

func subtree(n *mindmap.Node) any {
	if len(n.Children) == 0 {
		return n.Label
	}
	t := tree.Root(n.Label)
	for _, c := range n.Children {
		t.Child(subtree(c))
	}
	return t
}
