package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dgallion1/mindmapd/internal/llm"
	"github.com/dgallion1/mindmapd/internal/metrics"
	"github.com/dgallion1/mindmapd/internal/mindmap"
)

var errEmptySummary = errors.New("empty summary")

// summarizeChunks summarizes chunks in batches of ChunkBatchSize. A batch is
// fanned out and awaited before the next one starts; the semaphore bounds
// in-flight calls across all requests. A failed chunk degrades to a
// truncated fallback, so the result always has one entry per chunk.
// report, when non-nil, is called after each chunk with the running count.
func (p *Pipeline) summarizeChunks(ctx context.Context, chunks []string, run *Run, log *slog.Logger, report func(done, total int)) []string {
	out := make([]string, len(chunks))
	batch := max(p.cfg.ChunkBatchSize, 1)

	var mu sync.Mutex
	done := 0

	for start := 0; start < len(chunks); start += batch {
		end := min(start+batch, len(chunks))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				out[i] = p.summarizeChunk(ctx, i, chunks[i], run, log)

				mu.Lock()
				done++
				if report != nil {
					report(done, len(chunks))
				}
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}
	return out
}

func (p *Pipeline) summarizeChunk(ctx context.Context, i int, text string, run *Run, log *slog.Logger) string {
	key := p.fingerprint("summary", text)
	if s, ok := p.summaries.Get(key); ok {
		metrics.Chunks.WithLabelValues("cached").Inc()
		run.IncrChunksProcessed()
		return s
	}

	v, err := p.summarizeShared(ctx, key, text)
	run.IncrChunksProcessed()
	if err != nil {
		log.Warn("chunk summary failed, using fallback", "chunk", i, "error", err)
		metrics.Chunks.WithLabelValues("fallback").Inc()
		run.AddError(fmtChunkErr(i, err))
		return p.fallbackSummary(text)
	}
	metrics.Chunks.WithLabelValues("ok").Inc()
	return v
}

// maxSharedAttempts bounds how often a caller rejoins a summary call after
// the caller that ran it was cancelled.
const maxSharedAttempts = 3

// summarizeShared runs one summary call per key across concurrent callers.
// A waiter whose own context is live does not inherit the cancellation of
// the caller that ran the call; it starts the call again.
func (p *Pipeline) summarizeShared(ctx context.Context, key, text string) (string, error) {
	var (
		v      any
		err    error
		shared bool
	)
	for range maxSharedAttempts {
		v, err, shared = p.flight.Do(key, func() (any, error) {
			return p.summarize(ctx, key, text)
		})
		if !shared || ctx.Err() != nil || !isContextErr(err) {
			break
		}
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (p *Pipeline) summarize(ctx context.Context, key, text string) (string, error) {
	if s, ok := p.summaries.Get(key); ok {
		return s, nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	out, err := p.invoke(ctx, llm.Request{
		Scenario:    llm.ScenarioSummary,
		Prompt:      BuildSummaryPrompt(p.fitInput(text)),
		Temperature: p.cfg.Temperatures.Summary,
	})
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(mindmap.StripReasoning(out))
	if summary == "" {
		return "", errEmptySummary
	}
	p.summaries.Set(key, summary)
	return summary, nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// fallbackSummary is the first SummaryFallbackChars runes plus an ellipsis.
func (p *Pipeline) fallbackSummary(text string) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) > p.cfg.SummaryFallbackChars {
		r = r[:p.cfg.SummaryFallbackChars]
	}
	return string(r) + "..."
}
