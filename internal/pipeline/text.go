package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/mindmapd/internal/events"
	"github.com/dgallion1/mindmapd/internal/llm"
	"github.com/dgallion1/mindmapd/internal/mindmap"
	"github.com/dgallion1/mindmapd/internal/stream"
)

// ErrEmptyText is returned for blank text input.
var ErrEmptyText = errors.New("text is empty")

// GenerateMarkdown returns a Markdown mind map for text. Unlike the other
// entry points it reports failures to the caller instead of degrading.
func (p *Pipeline) GenerateMarkdown(ctx context.Context, text string) (string, error) {
	run, log := p.startRun(ctx, KindText)

	if strings.TrimSpace(text) == "" {
		run.Finish(StatusFailed)
		return "", ErrEmptyText
	}

	req, err := p.textRequest(ctx, text, run, log, nil, nil)
	if err != nil {
		log.Error("generate mind map failed", "stage", "main_points", "error", err)
		run.AddError(err.Error())
		run.Finish(StatusFailed)
		return "", fmt.Errorf("generate mind map: %w", err)
	}

	run.SetStage("generating")
	out, err := p.invoke(ctx, req)
	if err != nil {
		log.Error("generate mind map failed", "stage", "generate", "error", err)
		run.AddError(err.Error())
		run.Finish(StatusFailed)
		return "", fmt.Errorf("generate mind map: %w", err)
	}

	run.Finish(StatusCompleted)
	return strings.TrimSpace(mindmap.StripReasoning(out)), nil
}

// GenerateMarkdownStream plans like GenerateMarkdown, then streams the final
// call through the reasoning demultiplexer. Every outcome, including
// failure, ends in exactly one terminal event on sink.
func (p *Pipeline) GenerateMarkdownStream(ctx context.Context, text string, sink events.Sink) {
	run, log := p.startRun(ctx, KindTextStream)
	em := events.NewEmitter(sink)

	fail := func(stage string, err error) {
		log.Error("stream generation failed", "stage", stage, "error", err)
		run.AddError(err.Error())
		run.Finish(StatusFailed)
		_ = em.Error(err)
	}

	if err := em.Start("Generating mind map", run.ID); err != nil {
		run.Finish(StatusFailed)
		return
	}
	if strings.TrimSpace(text) == "" {
		fail("input", ErrEmptyText)
		return
	}

	timing := events.Timing{}
	req, err := p.textRequest(ctx, text, run, log, em, timing)
	if err != nil {
		fail("main_points", err)
		return
	}

	run.SetStage("generating")
	if err := em.Progress("Generating mind map", 0, 0); err != nil {
		run.Finish(StatusFailed)
		return
	}

	streamCtx, cancel := context.WithTimeout(ctx, p.cfg.StreamTimeout)
	defer cancel()

	d := stream.New(p.cfg.StreamBufferSize)
	d.Started = em.Started()
	d.Timing = timing
	if err := d.Run(p.llm.Stream(streamCtx, req), em.Emit); err != nil {
		fail("stream", err)
		return
	}
	log.Info("stream complete", "content_len", len(d.Content()), "reasoning_len", len(d.Reasoning()), "elapsed", em.Elapsed())
	run.Finish(StatusCompleted)
}

// textRequest builds the final mind-map request. Short text goes straight
// to the template; long text is chunked and a main-points call over the
// first chunks frames the full chunk set.
func (p *Pipeline) textRequest(ctx context.Context, text string, run *Run, log *slog.Logger, em *events.Emitter, timing events.Timing) (llm.Request, error) {
	req := llm.Request{Scenario: llm.ScenarioMindmap, Temperature: p.cfg.Temperatures.Mindmap}

	run.SetStage("planning")
	plan, chunks := p.plan(text)
	log.Info("text plan", "strategy", plan.Strategy, "length", plan.Length, "chunks", plan.Chunks, "estimated_tokens", plan.Tokens)

	if plan.Strategy == StrategySingle {
		req.Prompt = BuildMindmapPrompt(p.fitInput(text))
		return req, nil
	}

	run.SetTotalChunks(len(chunks))
	progress(em, fmt.Sprintf("Text split into %d chunks", len(chunks)), 0, 0)

	run.SetStage("main_points")
	head := chunks[:min(p.cfg.MainPointsChunks, len(chunks))]
	start := time.Now()
	points, err := p.invoke(ctx, llm.Request{
		Scenario:    llm.ScenarioMainPoints,
		Prompt:      BuildMainPointsPrompt(strings.Join(head, "\n")),
		Temperature: p.cfg.Temperatures.Summary,
	})
	if timing != nil {
		timing["main_points"] = time.Since(start)
	}
	if err != nil {
		return req, fmt.Errorf("main points: %w", err)
	}
	progress(em, "Main points extracted", 1, 2)

	details := p.fitInput(strings.Join(chunks, "\n"))
	req.Prompt = BuildMindmapWithPointsPrompt(strings.TrimSpace(mindmap.StripReasoning(points)), details)
	return req, nil
}

// progress emits when an emitter is present. A failed emit closes the
// emitter, so later stages notice through their own emits.
func progress(em *events.Emitter, msg string, current, total int) {
	if em != nil {
		_ = em.Progress(msg, current, total)
	}
}
