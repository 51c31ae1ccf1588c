package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dgallion1/mindmapd/internal/events"
	"github.com/dgallion1/mindmapd/internal/llm"
	"github.com/dgallion1/mindmapd/internal/metrics"
	"github.com/dgallion1/mindmapd/internal/mindmap"
	"github.com/dgallion1/mindmapd/internal/parser"
)

// errNoDetails marks a detail call whose output listed no points.
var errNoDetails = errors.New("no detail points returned")

// ErrInvalidDocument marks input errors: the document cannot be read at all.
var ErrInvalidDocument = errors.New("invalid document")

// DocType is the encoding of DocumentRequest.Content.
type DocType string

const (
	DocText DocType = "text"
	DocPDF  DocType = "pdf"
)

const (
	defaultDocumentDepth = 3
	maxDocumentDepth     = 5
	defaultDocumentTitle = "Document Analysis"
)

// DocumentRequest asks for a structured mind map of a document. For pdf,
// Content is base64.
type DocumentRequest struct {
	Content  string  `json:"content"`
	DocType  DocType `json:"doc_type"`
	MaxDepth int     `json:"max_depth"`
	Title    string  `json:"title,omitempty"`
}

// Validate checks the request shape and applies defaults.
func (r *DocumentRequest) Validate() error {
	if r.DocType == "" {
		r.DocType = DocText
	}
	if r.DocType != DocText && r.DocType != DocPDF {
		return fmt.Errorf("doc_type must be %q or %q, got %q", DocText, DocPDF, r.DocType)
	}
	if r.MaxDepth == 0 {
		r.MaxDepth = defaultDocumentDepth
	}
	if r.MaxDepth < 1 || r.MaxDepth > maxDocumentDepth {
		return fmt.Errorf("max_depth must be between 1 and %d, got %d", maxDocumentDepth, r.MaxDepth)
	}
	if strings.TrimSpace(r.Content) == "" {
		return errors.New("content is required")
	}
	return nil
}

// documentText returns the plain text of a request.
func documentText(req DocumentRequest) (string, error) {
	var text string
	switch req.DocType {
	case DocText, "":
		text = req.Content
	case DocPDF:
		data, err := parser.DecodeBase64PDF(req.Content)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
		text, err = (&parser.PDFParser{FallbackPdftotext: true}).Text(data)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
		}
	default:
		return "", fmt.Errorf("%w: unsupported doc_type %q", ErrInvalidDocument, req.DocType)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: no text content", ErrInvalidDocument)
	}
	return text, nil
}

func documentDepth(req DocumentRequest) int {
	if req.MaxDepth <= 0 {
		return defaultDocumentDepth
	}
	return min(req.MaxDepth, maxDocumentDepth)
}

// ProcessDocument returns a structured mind map of a document. Only input
// errors are returned; generation failures degrade to a partial tree or an
// error root. progress, when non-nil, receives human-readable stage updates.
func (p *Pipeline) ProcessDocument(ctx context.Context, req DocumentRequest, progress func(string)) (*mindmap.Node, error) {
	run, log := p.startRun(ctx, KindDocument)
	report := func(msg string) {
		run.SetStage(msg)
		if progress != nil {
			progress(msg)
		}
	}

	text, err := documentText(req)
	if err != nil {
		log.Warn("document rejected", "error", err)
		run.AddError(err.Error())
		run.Finish(StatusFailed)
		return nil, err
	}

	depth := documentDepth(req)
	key := p.fingerprint("tree", text, req.Title, strconv.Itoa(depth))
	if tree, ok := p.trees.Get(key); ok {
		log.Info("tree cache hit")
		run.Finish(StatusCompleted)
		return tree.Clone(), nil
	}

	plan, chunks := p.plan(text)
	log.Info("document plan", "strategy", plan.Strategy, "length", plan.Length, "chunks", plan.Chunks, "estimated_tokens", plan.Tokens)

	var root *mindmap.Node
	if plan.Strategy == StrategySingle {
		report("Generating mind map")
		root, err = p.generateTree(ctx, llm.ScenarioTree, BuildTreePrompt(p.fitInput(text), req.Title), p.cfg.Temperatures.Mindmap)
	} else {
		root, err = p.chunkedTree(ctx, chunks, req.Title, run, log, report)
	}
	if err != nil {
		log.Error("document structure failed", "error", err)
		metrics.StageFailures.WithLabelValues("structure").Inc()
		run.AddError(err.Error())
		run.Finish(StatusFailed)
		return mindmap.ErrorNode(err.Error()), nil
	}

	if req.Title != "" {
		root.Label = req.Title
	}
	root = mindmap.Optimize(mindmap.Normalize(root), depth)
	p.trees.Set(key, root.Clone())

	log.Info("document complete", "nodes", root.Count(), "depth", root.Depth())
	run.Finish(StatusCompleted)
	return root, nil
}

// chunkedTree summarizes every chunk, derives the structure from the joined
// summaries, then fills in each top-level branch.
func (p *Pipeline) chunkedTree(ctx context.Context, chunks []string, title string, run *Run, log *slog.Logger, report func(string)) (*mindmap.Node, error) {
	run.SetTotalChunks(len(chunks))
	report(fmt.Sprintf("Processing %d chunks", len(chunks)))

	summaries := p.summarizeChunks(ctx, chunks, run, log, func(done, total int) {
		report(fmt.Sprintf("Summarized chunk %d/%d", done, total))
	})
	joined := p.fitInput(strings.Join(summaries, "\n\n"))

	report("Building structure")
	root, err := p.generateTree(ctx, llm.ScenarioStructure, BuildTreePrompt(joined, title), p.cfg.Temperatures.Structure)
	if err != nil {
		return nil, err
	}

	report("Filling details")
	for i, child := range root.Children {
		out, err := p.invoke(ctx, llm.Request{
			Scenario:    llm.ScenarioDetail,
			Prompt:      BuildDetailPrompt(root.Label, child.Label, joined),
			Temperature: p.cfg.Temperatures.Detail,
		})
		if err == nil {
			var points []*mindmap.Node
			points, err = mindmap.ParsePoints(out)
			if err == nil && len(points) == 0 {
				err = errNoDetails
			}
			if err == nil {
				child.Children = points
				continue
			}
		}
		log.Warn("detail fill failed", "branch", i, "label", child.Label, "error", err)
		metrics.StageFailures.WithLabelValues("detail").Inc()
		run.AddError(fmt.Sprintf("detail %q: %s", child.Label, err))
	}
	return root, nil
}

func (p *Pipeline) generateTree(ctx context.Context, scenario llm.Scenario, prompt string, temperature float64) (*mindmap.Node, error) {
	out, err := p.invoke(ctx, llm.Request{Scenario: scenario, Prompt: prompt, Temperature: temperature})
	if err != nil {
		return nil, err
	}
	return mindmap.ParseTree(out)
}

// ProcessDocumentStream analyses the document section by section, emitting
// the growing tree as update events. Every outcome ends in exactly one
// terminal event on sink.
func (p *Pipeline) ProcessDocumentStream(ctx context.Context, req DocumentRequest, sink events.Sink) {
	run, log := p.startRun(ctx, KindDocumentStream)
	em := events.NewEmitter(sink)
	timing := events.Timing{}

	if err := em.Start("Analyzing document", run.ID); err != nil {
		run.Finish(StatusFailed)
		return
	}

	text, err := documentText(req)
	if err != nil {
		log.Warn("document rejected", "error", err)
		run.AddError(err.Error())
		run.Finish(StatusFailed)
		_ = em.Error(err)
		return
	}
	depth := documentDepth(req)

	run.SetStage("structure")
	progress(em, "Analyzing document structure", 0, 0)
	start := time.Now()
	sections := p.analyzeStructure(ctx, text, run, log)
	timing["structure"] = time.Since(start)
	run.SetTotalSections(len(sections))

	title := req.Title
	if title == "" {
		title = defaultDocumentTitle
	}
	root := mindmap.NewNode("root", title)
	for i, s := range sections {
		root.Children = append(root.Children, mindmap.NewNode(fmt.Sprintf("section-%d", i), s.DisplayTitle()))
	}
	if err := em.Update(mindmap.Normalize(root)); err != nil {
		run.Finish(StatusFailed)
		return
	}

	run.SetStage("sections")
	start = time.Now()
	for i, s := range sections {
		if ctx.Err() != nil {
			break
		}
		progress(em, fmt.Sprintf("Processing section %d/%d: %s", i+1, len(sections), s.DisplayTitle()), i+1, len(sections))

		points, err := p.processSection(ctx, s, run, log)
		if err != nil {
			log.Warn("section failed", "section", i, "title", s.DisplayTitle(), "error", err)
			metrics.StageFailures.WithLabelValues("section").Inc()
			run.AddError(fmt.Sprintf("section %d: %s", i, err))
		} else {
			root.Children[i].Children = points
		}
		run.IncrSectionsProcessed()

		if err := em.Update(mindmap.Normalize(root)); err != nil {
			run.Finish(StatusFailed)
			return
		}
	}
	timing["sections"] = time.Since(start)

	if err := ctx.Err(); err != nil {
		run.AddError(err.Error())
		run.Finish(StatusFailed)
		_ = em.Error(err)
		return
	}

	tree := mindmap.Optimize(mindmap.Normalize(root), depth)
	timing["total"] = em.Elapsed()
	log.Info("document stream complete", "sections", len(sections), "nodes", tree.Count(), "elapsed", em.Elapsed())
	run.Finish(StatusCompleted)
	_ = em.Complete(tree, timing)
}

// analyzeStructure splits text into sections. On any failure the whole text
// becomes one general section.
func (p *Pipeline) analyzeStructure(ctx context.Context, text string, run *Run, log *slog.Logger) []mindmap.Section {
	out, err := p.invoke(ctx, llm.Request{
		Scenario:    llm.ScenarioStructure,
		Prompt:      BuildStructurePrompt(p.fitInput(text)),
		Temperature: p.cfg.Temperatures.Structure,
	})
	var sections []mindmap.Section
	if err == nil {
		sections, err = mindmap.ParseSections(out)
	}
	if err != nil {
		log.Warn("structure analysis failed, using single section", "error", err)
		metrics.StageFailures.WithLabelValues("structure").Inc()
		run.AddError(fmt.Sprintf("structure: %s", err))
		return []mindmap.Section{mindmap.FallbackSection(text)}
	}
	return sections
}

// processSection extracts the key points of one section. Content longer
// than a chunk is summarized chunk by chunk first.
func (p *Pipeline) processSection(ctx context.Context, s mindmap.Section, run *Run, log *slog.Logger) ([]*mindmap.Node, error) {
	if utf8.RuneCountInString(s.Content) > p.cfg.ChunkSize {
		chunks := p.splitter.Split(s.Content)
		s.Content = strings.Join(p.summarizeChunks(ctx, chunks, run, log, nil), "\n\n")
	}
	out, err := p.invoke(ctx, llm.Request{
		Scenario:    llm.ScenarioSection,
		Prompt:      BuildSectionPrompt(s),
		Temperature: p.cfg.Temperatures.Section,
	})
	if err != nil {
		return nil, err
	}
	return mindmap.ParsePoints(out)
}
