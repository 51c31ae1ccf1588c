package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgallion1/mindmapd/internal/config"
)

const anthropicVersion = "2023-06-01"

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	apiKey         string
	baseURL        string
	model          string
	maxTokens      int
	requestTimeout time.Duration
	idleTimeout    time.Duration
	httpClient     *http.Client
	limiter        *rate.Limiter
}

func NewAnthropicClient(cfg config.Config) *AnthropicClient {
	return &AnthropicClient{
		apiKey:         cfg.AnthropicAPIKey,
		baseURL:        cfg.AnthropicBaseURL,
		model:          cfg.AnthropicModel,
		maxTokens:      cfg.MaxTokens,
		requestTimeout: cfg.RequestTimeout,
		idleTimeout:    cfg.StreamIdleTimeout,
		httpClient:     &http.Client{},
		limiter:        rate.NewLimiter(rate.Limit(cfg.LLMRateLimit), cfg.LLMRateBurst),
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *apiError `json:"error"`
}

// Model returns the configured model name.
func (c *AnthropicClient) Model() string {
	return c.model
}

// Invoke sends one prompt and returns the concatenated text blocks.
func (c *AnthropicClient) Invoke(ctx context.Context, req Request) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.post(ctx, req, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out anthropicResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("anthropic error: %s: %s", out.Error.Type, out.Error.Message)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response from anthropic")
	}
	return text.String(), nil
}

// Stream sends one prompt with streaming enabled. Thinking deltas arrive as
// Fragment.Reasoning.
func (c *AnthropicClient) Stream(ctx context.Context, req Request) iter.Seq2[Fragment, error] {
	open := func(ctx context.Context) (*http.Response, error) {
		return c.post(ctx, req, true)
	}
	return streamResponse(ctx, c.limiter, c.idleTimeout, open, readAnthropicStream)
}

// Health lists models to check that the backend is reachable and the key
// is accepted.
func (c *AnthropicClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("anthropic api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("anthropic api status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return nil
}

func (c *AnthropicClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
}

func (c *AnthropicClient) post(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
		Temperature: min(req.Temperature, 1),
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(httpReq)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("anthropic api: %w", ctxErr)
		}
		return nil, &RetryableError{Message: err.Error()}
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	// 529 is Anthropic's overloaded status; it falls in the 5xx range.
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	var apiResp anthropicResponse
	if json.Unmarshal(respBody, &apiResp) == nil && apiResp.Error != nil {
		return nil, fmt.Errorf("anthropic api status %d: %s", resp.StatusCode, apiResp.Error.Message)
	}
	return nil, fmt.Errorf("anthropic api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
}

// Close releases resources.
func (c *AnthropicClient) Close() {
	c.httpClient.CloseIdleConnections()
}
