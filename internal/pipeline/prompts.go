package pipeline

import (
	"fmt"
	"strings"

	"github.com/dgallion1/mindmapd/internal/mindmap"
)

const MindmapPrompt = `Analyze the text below and turn it into a detailed mind map written in Markdown.

Structure:
- One "#" heading: the core topic of the whole text.
- 4-6 "##" headings: the main aspects, each stating one complete idea.
- 3-5 "###" headings under each aspect: concrete points with the key details and figures.
- 2-3 "-" list items under each point: supporting explanations, examples or data.

Rules:
- Keep domain terminology and every concrete number from the text.
- Keep the logical relationship between levels clear.
- Cover all important content; do not invent facts.
- Output only the Markdown mind map, no preamble.`

const MainPointsPrompt = `List the main points of the text below as briefly as possible:
- Only the 3 most important points
- At most 10 words per point
- One "-" bullet per point, no explanations`

const MindmapWithPointsPrompt = `Build a concise mind map in Markdown from the main points and the detailed content below.

Rules:
- At most 3 levels ("#", "##", "###").
- At most 5 nodes per level.
- Every node label under 20 words.
- Organize the details around the main points.
- Output only the Markdown mind map, no explanation.`

const SummaryPrompt = `Summarize the following passage in 3-5 sentences. Keep the key terms, names and figures. Respond with the summary only.`

const TreePrompt = `Build a mind map of the text below as a JSON tree.

Each node has:
- "id": short unique string
- "label": concise node text
- "children": list of child nodes (empty list for leaves)

The root label is the core topic. Use 3-6 main branches with 2-5 children each.
Respond with ONLY the JSON object, no other text.`

const StructurePrompt = `Split the document below into its logical sections. Return a JSON object:

{"sections": [{"title": "...", "type": "...", "content": "...", "importance": 3}]}

- "type": one of "abstract", "introduction", "method", "result", "conclusion", "general"
- "content": the section's text, verbatim or lightly condensed
- "importance": 1 (minor) to 5 (central)

Keep the sections in document order. Respond with ONLY the JSON object.`

const DetailPrompt = `Expand one branch of a mind map.

Return a JSON object {"children": [...]} with 2-4 points for the branch. Each point has "id", "label" and "children" (may be empty).
Respond with ONLY the JSON object.`

// sectionFocus tells the model what matters in each kind of section.
var sectionFocus = map[mindmap.SectionType]string{
	mindmap.SectionAbstract:     "the problem, the approach and the headline results",
	mindmap.SectionIntroduction: "the background, the motivation and the stated contributions",
	mindmap.SectionMethod:       "the techniques, the components and how they fit together",
	mindmap.SectionResult:       "the experiments, the metrics and the concrete numbers",
	mindmap.SectionConclusion:   "the findings, the limitations and the future work",
	mindmap.SectionGeneral:      "the main ideas and their supporting details",
}

func withText(instructions, text string) string {
	var sb strings.Builder
	sb.WriteString(instructions)
	sb.WriteString("\n\n---\n")
	sb.WriteString(text)
	return sb.String()
}

func BuildMindmapPrompt(text string) string {
	return withText(MindmapPrompt, text)
}

func BuildMainPointsPrompt(text string) string {
	return withText(MainPointsPrompt, text)
}

func BuildMindmapWithPointsPrompt(mainPoints, details string) string {
	var sb strings.Builder
	sb.WriteString(MindmapWithPointsPrompt)
	sb.WriteString("\n\n---\nMain points:\n")
	sb.WriteString(mainPoints)
	sb.WriteString("\n\n---\nDetailed content:\n")
	sb.WriteString(details)
	return sb.String()
}

func BuildSummaryPrompt(text string) string {
	return withText(SummaryPrompt, text)
}

// BuildTreePrompt asks for a JSON tree; a non-empty title is requested as
// the root label.
func BuildTreePrompt(text, title string) string {
	instructions := TreePrompt
	if title != "" {
		instructions += fmt.Sprintf("\nUse %q as the root label.", title)
	}
	return withText(instructions, text)
}

func BuildStructurePrompt(text string) string {
	return withText(StructurePrompt, text)
}

func BuildSectionPrompt(section mindmap.Section) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Extract the key points of this %s section, focusing on %s.\n\n",
		strings.ToLower(section.Type.Label()), sectionFocus[section.Type])
	sb.WriteString(`Return a JSON object {"points": [...]} with 3-6 points. Each point has "id", "label" and "children" (sub-points, may be empty).
Respond with ONLY the JSON object.`)
	sb.WriteString("\n\n---\n")
	if title := strings.TrimSpace(section.Title); title != "" {
		fmt.Fprintf(&sb, "Section: %q\n---\n", title)
	}
	sb.WriteString(section.Content)
	return sb.String()
}

// BuildDetailPrompt includes the map topic and the branch label so the model
// stays inside that branch.
func BuildDetailPrompt(topic, category, context string) string {
	var sb strings.Builder
	sb.WriteString(DetailPrompt)
	sb.WriteString("\n\n---\n")
	fmt.Fprintf(&sb, "Topic: %q\n", topic)
	fmt.Fprintf(&sb, "Branch: %q\n", category)
	sb.WriteString("---\n")
	sb.WriteString(context)
	return sb.String()
}
