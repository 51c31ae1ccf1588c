package pipeline

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/dgallion1/mindmapd/internal/config"
	"github.com/dgallion1/mindmapd/internal/events"
	"github.com/dgallion1/mindmapd/internal/llm"
)

// stubLLM records every request and answers through the configured funcs.
type stubLLM struct {
	mu     sync.Mutex
	calls  []llm.Request
	invoke func(ctx context.Context, req llm.Request) (string, error)
	stream func(req llm.Request) ([]llm.Fragment, error)
}

func (s *stubLLM) Invoke(ctx context.Context, req llm.Request) (string, error) {
	s.record(req)
	if s.invoke == nil {
		return "", fmt.Errorf("unexpected invoke %s", req.Scenario)
	}
	return s.invoke(ctx, req)
}

func (s *stubLLM) Stream(ctx context.Context, req llm.Request) iter.Seq2[llm.Fragment, error] {
	s.record(req)
	return func(yield func(llm.Fragment, error) bool) {
		if s.stream == nil {
			yield(llm.Fragment{}, fmt.Errorf("unexpected stream %s", req.Scenario))
			return
		}
		frags, err := s.stream(req)
		for _, f := range frags {
			if !yield(f, nil) {
				return
			}
		}
		if err != nil {
			yield(llm.Fragment{}, err)
		}
	}
}

func (s *stubLLM) record(req llm.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
}

func (s *stubLLM) Calls() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.calls...)
}

func (s *stubLLM) CallsFor(scenario llm.Scenario) []llm.Request {
	var out []llm.Request
	for _, c := range s.Calls() {
		if c.Scenario == scenario {
			out = append(out, c)
		}
	}
	return out
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.RetryDelay = 0
	return cfg
}

func newTestPipeline(t *testing.T, cfg config.Config, client llm.Client) *Pipeline {
	t.Helper()
	return New(cfg, client, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// longText builds numbered paragraphs so every chunk is distinct.
func longText(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		fmt.Fprintf(&b, "Paragraph %d covers subject %d. It has a few sentences of detail about the subject, "+
			"including figures like %d units and a short remark about its relevance to the whole.\n\n", i, i%17, i*3)
	}
	return b.String()
}

// eventLog is a concurrency-safe events.Sink.
type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) Sink(ev events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return nil
}

func (l *eventLog) Types() []events.Type {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]events.Type, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func (l *eventLog) OfType(t events.Type) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, ev := range l.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (l *eventLog) Last() events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

func (l *eventLog) Terminals() int {
	n := 0
	for _, t := range l.Types() {
		if t.Terminal() {
			n++
		}
	}
	return n
}
