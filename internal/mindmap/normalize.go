package mindmap

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// labelKeys are checked in order; models do not always use "label".
var labelKeys = []string{"label", "topic", "title", "name"}

// Normalize repairs an arbitrary decoded value into a canonical tree. It never
// fails: mappings become nodes with defaulted fields, anything else becomes a
// leaf labelled with its rendered value. Duplicate ids are suffixed so ids are
// unique within the result. Normalize(Normalize(x)) equals Normalize(x).
func Normalize(raw any) *Node {
	root := normalize(toRaw(raw))
	ensureUniqueIDs(root)
	return root
}

func normalize(v any) *Node {
	m, ok := v.(map[string]any)
	if !ok {
		label := strings.TrimSpace(render(v))
		if label == "" {
			label = UnknownLabel
		}
		return NewNode(deriveID(label), label)
	}

	label := labelOf(m)
	id := idOf(m)
	if id == "" {
		seed := label
		if label == UnknownLabel {
			seed = render(m)
		}
		id = deriveID(seed)
	}

	n := NewNode(id, label)
	switch children := m["children"].(type) {
	case []any:
		for _, c := range children {
			n.Children = append(n.Children, normalize(c))
		}
	case map[string]any:
		n.Children = append(n.Children, normalize(children))
	}
	return n
}

func labelOf(m map[string]any) string {
	for _, key := range labelKeys {
		v, ok := m[key]
		if !ok || v == nil {
			continue
		}
		if s := strings.TrimSpace(render(v)); s != "" {
			return s
		}
	}
	return UnknownLabel
}

func idOf(m map[string]any) string {
	switch v := m["id"].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number, float64, int, int64:
		return render(v)
	}
	return ""
}

func deriveID(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return "n-" + hex.EncodeToString(sum[:])[:10]
}

// render returns the display form of a decoded JSON value.
func render(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// toRaw converts typed trees back to their decoded form so they go through
// the same repair path as model output.
func toRaw(v any) any {
	switch t := v.(type) {
	case *Node:
		if t == nil {
			return nil
		}
		children := make([]any, 0, len(t.Children))
		for _, c := range t.Children {
			children = append(children, toRaw(c))
		}
		return map[string]any{"id": t.ID, "label": t.Label, "children": children}
	case Node:
		return toRaw(&t)
	case []*Node:
		out := make([]any, 0, len(t))
		for _, c := range t {
			out = append(out, toRaw(c))
		}
		return out
	}
	return v
}

func ensureUniqueIDs(root *Node) {
	seen := make(map[string]bool)
	root.Walk(func(n *Node, _ int) {
		if !seen[n.ID] {
			seen[n.ID] = true
			return
		}
		for i := 2; ; i++ {
			candidate := n.ID + "-" + strconv.Itoa(i)
			if !seen[candidate] {
				n.ID = candidate
				seen[candidate] = true
				return
			}
		}
	})
}
