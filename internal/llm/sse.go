package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// streamResponse drives one streaming request: it waits on the limiter,
// opens the response and decodes it into fragments. The request is aborted
// with ErrStreamIdle when no bytes arrive within idle.
func streamResponse(
	ctx context.Context,
	limiter *rate.Limiter,
	idle time.Duration,
	open func(context.Context) (*http.Response, error),
	decode func(io.Reader, func(Fragment) bool) error,
) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		if err := limiter.Wait(ctx); err != nil {
			yield(Fragment{}, fmt.Errorf("rate limiter: %w", err))
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		var idled atomic.Bool
		timer := time.AfterFunc(idle, func() {
			idled.Store(true)
			cancel()
		})
		defer timer.Stop()

		resp, err := open(ctx)
		if err != nil {
			if idled.Load() {
				err = fmt.Errorf("%w after %s", ErrStreamIdle, idle)
			}
			yield(Fragment{}, err)
			return
		}
		defer resp.Body.Close()

		body := &idleReader{r: resp.Body, timer: timer, idle: idle}
		if err := decode(body, func(f Fragment) bool { return yield(f, nil) }); err != nil {
			if idled.Load() {
				err = fmt.Errorf("%w after %s", ErrStreamIdle, idle)
			}
			yield(Fragment{}, err)
		}
	}
}

// idleReader pushes the idle deadline back on every successful read.
type idleReader struct {
	r     io.Reader
	timer *time.Timer
	idle  time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if n > 0 {
		r.timer.Reset(r.idle)
	}
	return n, err
}

// scanData calls fn with the payload of every non-empty "data:" line of a
// server-sent event body until fn reports done or fails.
func scanData(r io.Reader, fn func(data string) (done bool, err error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		done, err := fn(data)
		if err != nil || done {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
			Reasoning        string `json:"reasoning"`
		} `json:"delta"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

// readStream parses an OpenAI chat-completions stream and calls fn for every
// non-empty delta. It stops at [DONE], at EOF, or when fn returns false.
func readStream(r io.Reader, fn func(Fragment) bool) error {
	return scanData(r, func(data string) (bool, error) {
		if data == "[DONE]" {
			return true, nil
		}
		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return false, fmt.Errorf("decode stream chunk: %w", err)
		}
		if chunk.Error != nil {
			return false, fmt.Errorf("openai stream error: %s", chunk.Error.Message)
		}
		for _, choice := range chunk.Choices {
			f := Fragment{Text: choice.Delta.Content, Reasoning: choice.Delta.ReasoningContent}
			if f.Reasoning == "" {
				f.Reasoning = choice.Delta.Reasoning
			}
			if f.Text == "" && f.Reasoning == "" {
				continue
			}
			if !fn(f) {
				return true, nil
			}
		}
		return false, nil
	})
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"delta"`
	Error *apiError `json:"error"`
}

// readAnthropicStream parses a Messages API stream. Text deltas become
// Fragment.Text and thinking deltas Fragment.Reasoning.
func readAnthropicStream(r io.Reader, fn func(Fragment) bool) error {
	return scanData(r, func(data string) (bool, error) {
		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return false, fmt.Errorf("decode stream event: %w", err)
		}
		switch ev.Type {
		case "error":
			if ev.Error != nil {
				return false, fmt.Errorf("anthropic stream error: %s: %s", ev.Error.Type, ev.Error.Message)
			}
			return false, fmt.Errorf("anthropic stream error")
		case "message_stop":
			return true, nil
		case "content_block_delta":
			var f Fragment
			switch ev.Delta.Type {
			case "text_delta":
				f.Text = ev.Delta.Text
			case "thinking_delta":
				f.Reasoning = ev.Delta.Thinking
			}
			if f.Text == "" && f.Reasoning == "" {
				return false, nil
			}
			return !fn(f), nil
		}
		return false, nil
	})
}
