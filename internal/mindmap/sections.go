package mindmap

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// SectionType is the coarse role of a document section.
type SectionType string

const (
	SectionAbstract     SectionType = "abstract"
	SectionIntroduction SectionType = "introduction"
	SectionMethod       SectionType = "method"
	SectionResult       SectionType = "result"
	SectionConclusion   SectionType = "conclusion"
	SectionGeneral      SectionType = "general"
)

var sectionLabels = map[SectionType]string{
	SectionAbstract:     "Abstract",
	SectionIntroduction: "Introduction",
	SectionMethod:       "Method",
	SectionResult:       "Results",
	SectionConclusion:   "Conclusion",
	SectionGeneral:      "Content",
}

// ParseSectionType maps free-form model output onto the fixed vocabulary.
// Unknown values are general.
func ParseSectionType(s string) SectionType {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return SectionGeneral
	case strings.HasPrefix(s, "abstract"), s == "summary":
		return SectionAbstract
	case strings.HasPrefix(s, "intro"), s == "background":
		return SectionIntroduction
	case strings.HasPrefix(s, "method"), s == "methodology", s == "approach":
		return SectionMethod
	case strings.HasPrefix(s, "result"), s == "findings", s == "evaluation":
		return SectionResult
	case strings.HasPrefix(s, "conclu"), s == "discussion":
		return SectionConclusion
	}
	return SectionGeneral
}

// Label is the display name used when a section has no title.
func (t SectionType) Label() string {
	if l, ok := sectionLabels[t]; ok {
		return l
	}
	return sectionLabels[SectionGeneral]
}

// Section is one segment of a document found by structure analysis.
type Section struct {
	Title      string      `json:"title"`
	Type       SectionType `json:"type"`
	Content    string      `json:"content"`
	Importance int         `json:"importance"`
}

// DisplayTitle is the title, or the type's label when the title is empty.
func (s Section) DisplayTitle() string {
	if t := strings.TrimSpace(s.Title); t != "" {
		return t
	}
	return s.Type.Label()
}

// FallbackSection wraps the whole text when structure analysis fails.
func FallbackSection(text string) Section {
	return Section{
		Title:      SectionGeneral.Label(),
		Type:       SectionGeneral,
		Content:    text,
		Importance: 3,
	}
}

// ErrNoSections is returned when structure output lists no usable sections.
var ErrNoSections = errors.New("structure analysis returned no sections")

// ParseSections reads structure-analysis output of the form
// {"sections": [{"title", "type", "content", "importance"}]}. A bare array is
// accepted too. Sections with neither title nor content are dropped.
func ParseSections(text string) ([]Section, error) {
	v, err := ExtractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("parse sections: %w", err)
	}

	var items []any
	switch t := v.(type) {
	case map[string]any:
		items, _ = t["sections"].([]any)
	case []any:
		items = t
	}

	var sections []Section
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		s := Section{
			Title:      strings.TrimSpace(render(m["title"])),
			Type:       ParseSectionType(render(m["type"])),
			Content:    strings.TrimSpace(render(m["content"])),
			Importance: importance(m["importance"]),
		}
		if s.Title == "" && s.Content == "" {
			continue
		}
		sections = append(sections, s)
	}
	if len(sections) == 0 {
		return nil, ErrNoSections
	}
	return sections, nil
}

func importance(v any) int {
	n, err := strconv.Atoi(strings.TrimSpace(render(v)))
	if err != nil {
		if f, ferr := strconv.ParseFloat(render(v), 64); ferr == nil {
			n = int(f)
		} else {
			return 3
		}
	}
	return min(max(n, 1), 5)
}

// ParsePoints reads section-processing output: {"points": [...]} where each
// point is a node-like object or a plain string. "children" is accepted in
// place of "points", and a bare array works too.
func ParsePoints(text string) ([]*Node, error) {
	v, err := ExtractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("parse points: %w", err)
	}

	var items []any
	switch t := v.(type) {
	case map[string]any:
		for _, key := range []string{"points", "children", "nodes"} {
			if list, ok := t[key].([]any); ok {
				items = list
				break
			}
		}
	case []any:
		items = t
	}

	points := make([]*Node, 0, len(items))
	for _, item := range items {
		points = append(points, normalize(item))
	}
	return points, nil
}
