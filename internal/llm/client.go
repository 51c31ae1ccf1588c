// Package llm abstracts the language model behind a two-call capability:
// one-shot completion and token streaming.
package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/dgallion1/mindmapd/internal/config"
)

// Scenario names the pipeline step a call belongs to. It selects nothing in
// the client; it labels stats and metrics.
type Scenario string

const (
	ScenarioMindmap    Scenario = "mindmap"
	ScenarioMainPoints Scenario = "main_points"
	ScenarioSummary    Scenario = "summary"
	ScenarioTree       Scenario = "tree"
	ScenarioStructure  Scenario = "structure"
	ScenarioSection    Scenario = "section"
	ScenarioDetail     Scenario = "detail"
)

// Request is a single prompt.
type Request struct {
	Scenario    Scenario
	Prompt      string
	Temperature float64
}

// Fragment is one increment of a streamed completion. Reasoning carries
// reasoning text the backend sends outside the visible content.
type Fragment struct {
	Text      string
	Reasoning string
}

// Client is the model capability the pipeline depends on.
type Client interface {
	Invoke(ctx context.Context, req Request) (string, error)
	// Stream yields fragments in order. A non-nil error is yielded at most
	// once and ends the sequence.
	Stream(ctx context.Context, req Request) iter.Seq2[Fragment, error]
}

// HealthChecker is implemented by clients that can probe their backend.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Backend is a concrete model API client.
type Backend interface {
	Client
	HealthChecker
	Model() string
	Close()
}

// NewBackend returns the client selected by cfg.LLMProvider.
func NewBackend(cfg config.Config) (Backend, error) {
	switch cfg.LLMProvider {
	case config.ProviderOpenAI, "":
		return NewOpenAIClient(cfg), nil
	case config.ProviderAnthropic:
		return NewAnthropicClient(cfg), nil
	}
	return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
}

// ErrStreamIdle is returned when a stream produces nothing for too long.
var ErrStreamIdle = errors.New("llm stream idle timeout")

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var retryErr *RetryableError
	return errors.As(err, &retryErr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
