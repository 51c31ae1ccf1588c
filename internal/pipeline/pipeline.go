// Package pipeline orchestrates the language model calls that turn text and
// documents into mind maps.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/dgallion1/mindmapd/internal/cache"
	"github.com/dgallion1/mindmapd/internal/chunker"
	"github.com/dgallion1/mindmapd/internal/config"
	"github.com/dgallion1/mindmapd/internal/llm"
	"github.com/dgallion1/mindmapd/internal/mindmap"
)

// Pipeline owns the shared state of every request: caches, the concurrency
// limiter and the run registry. One Pipeline serves the whole process.
type Pipeline struct {
	cfg      config.Config
	llm      llm.Client
	log      *slog.Logger
	splitter *chunker.Splitter
	tokens   chunker.TokenEstimator

	summaries *cache.Cache[string, string]
	trees     *cache.Cache[string, *mindmap.Node]
	sem       *semaphore.Weighted
	flight    singleflight.Group
	runs      *RunStore

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg config.Config, client llm.Client, log *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg: cfg,
		llm: client,
		log: log,
		splitter: chunker.NewSplitter(chunker.Config{
			ChunkSize:    cfg.ChunkSize,
			ChunkOverlap: cfg.ChunkOverlap,
			MinChunk:     cfg.MinChunkLength,
		}),
		tokens:    chunker.TokenEstimator{CharsPerToken: cfg.CharsPerToken},
		summaries: cache.New[string, string]("summary", cfg.CacheMaxItems, cfg.CacheTTL),
		trees:     cache.New[string, *mindmap.Node]("tree", cfg.CacheMaxItems, cfg.CacheTTL),
		sem:       semaphore.NewWeighted(int64(max(cfg.MaxConcurrentRequests, 1))),
		runs:      NewRunStore(cfg.RunTTL),
	}
}

// Start launches background maintenance.
func (p *Pipeline) Start(ctx context.Context) {
	bgCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-bgCtx.Done():
				return
			case <-ticker.C:
				p.runs.Cleanup()
			}
		}
	}()
}

// Stop ends background maintenance. In-flight requests are bound to their
// own contexts.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// Runs returns the run registry.
func (p *Pipeline) Runs() *RunStore {
	return p.runs
}

// Strategy is how a text is turned into a mind map.
type Strategy string

const (
	StrategySingle  Strategy = "single"
	StrategyChunked Strategy = "chunked"
)

// Plan describes how a text will be processed.
type Plan struct {
	Strategy Strategy `json:"strategy"`
	Length   int      `json:"length"`
	Chunks   int      `json:"chunks"`
	Tokens   int      `json:"estimated_tokens"`
}

// Plan reports the strategy for text without calling the model.
func (p *Pipeline) Plan(text string) Plan {
	plan, _ := p.plan(text)
	return plan
}

func (p *Pipeline) plan(text string) (Plan, []string) {
	plan := Plan{
		Strategy: StrategySingle,
		Length:   utf8.RuneCountInString(text),
		Chunks:   1,
		Tokens:   p.tokens.EstimateTokens(text),
	}
	if plan.Length <= p.cfg.ShortTextThreshold {
		return plan, nil
	}
	chunks := p.splitter.Split(text)
	plan.Strategy = StrategyChunked
	plan.Chunks = len(chunks)
	return plan, chunks
}

// fitInput applies head/tail truncation when text would overflow the model
// context.
func (p *Pipeline) fitInput(text string) string {
	return p.tokens.Truncate(text, p.cfg.MaxInputTokens, p.cfg.TextHeadRatio, p.cfg.TextTailRatio)
}

// fingerprint identifies content for caching: a hash over a bounded prefix
// plus the total length, so long inputs hash in constant time.
func (p *Pipeline) fingerprint(kind, text string, extra ...string) string {
	n := utf8.RuneCountInString(text)
	prefix := text
	if n > p.cfg.CacheKeyLength {
		prefix = string([]rune(text)[:p.cfg.CacheKeyLength])
	}
	buf := make([]byte, 0, len(prefix)+32)
	buf = append(buf, prefix...)
	buf = append(buf, 0)
	buf = strconv.AppendInt(buf, int64(n), 10)
	for _, e := range extra {
		buf = append(buf, 0)
		buf = append(buf, e...)
	}
	return kind + ":" + ContentHashHex(buf)
}

type requestIDKey struct{}

// WithRequestID attaches the id used for runs, logs and the start event.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id attached to ctx, or a new one.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func (p *Pipeline) startRun(ctx context.Context, kind RunKind) (*Run, *slog.Logger) {
	run := newRun(RequestID(ctx), kind)
	p.runs.Put(run)
	return run, p.log.With("request_id", run.ID, "kind", kind)
}

func fmtChunkErr(i int, err error) string {
	return fmt.Sprintf("chunk %d: %s", i, err)
}
