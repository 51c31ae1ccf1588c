package mindmap

// LimitDepth clears the children of every node at depth maxDepth, counting n
// as depth current.
func LimitDepth(n *Node, current, maxDepth int) {
	if n == nil {
		return
	}
	if current >= maxDepth {
		n.Children = []*Node{}
		return
	}
	for _, c := range n.Children {
		LimitDepth(c, current+1, maxDepth)
	}
}

// DedupeChildren keeps the first child for each label among n's immediate
// children, preserving order. Deeper levels are left alone.
func DedupeChildren(n *Node) {
	if n == nil || len(n.Children) < 2 {
		return
	}
	seen := make(map[string]bool, len(n.Children))
	kept := make([]*Node, 0, len(n.Children))
	for _, c := range n.Children {
		if c == nil || seen[c.Label] {
			continue
		}
		seen[c.Label] = true
		kept = append(kept, c)
	}
	n.Children = kept
}

// Optimize is the final pass over a generated tree: duplicate top-level
// branches are dropped, then the tree is cut at maxDepth.
func Optimize(root *Node, maxDepth int) *Node {
	DedupeChildren(root)
	LimitDepth(root, 0, maxDepth)
	return root
}
