package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgallion1/mindmapd/internal/config"
)

// OpenAIClient calls an OpenAI-compatible chat-completions API.
type OpenAIClient struct {
	apiKey         string
	baseURL        string
	model          string
	maxTokens      int
	topP           float64
	presence       float64
	frequency      float64
	requestTimeout time.Duration
	idleTimeout    time.Duration
	httpClient     *http.Client
	limiter        *rate.Limiter
}

func NewOpenAIClient(cfg config.Config) *OpenAIClient {
	return &OpenAIClient{
		apiKey:         cfg.OpenAIAPIKey,
		baseURL:        cfg.OpenAIBaseURL,
		model:          cfg.OpenAIModel,
		maxTokens:      cfg.MaxTokens,
		topP:           cfg.TopP,
		presence:       cfg.PresencePenalty,
		frequency:      cfg.FrequencyPenalty,
		requestTimeout: cfg.RequestTimeout,
		idleTimeout:    cfg.StreamIdleTimeout,
		// Streams can run for minutes; deadlines come from contexts.
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(cfg.LLMRateLimit), cfg.LLMRateBurst),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Temperature      float64       `json:"temperature"`
	TopP             float64       `json:"top_p,omitempty"`
	PresencePenalty  float64       `json:"presence_penalty,omitempty"`
	FrequencyPenalty float64       `json:"frequency_penalty,omitempty"`
	MaxTokens        int           `json:"max_tokens,omitempty"`
	Stream           bool          `json:"stream,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

// Invoke sends one prompt and returns the completion text.
func (c *OpenAIClient) Invoke(ctx context.Context, req Request) (string, error) {
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

	var out chatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("openai error: %s: %s", out.Error.Type, out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("empty response from openai")
	}
	return out.Choices[0].Message.Content, nil
}

// Stream sends one prompt with streaming enabled. The stream is aborted with
// ErrStreamIdle when no bytes arrive within the idle timeout.
func (c *OpenAIClient) Stream(ctx context.Context, req Request) iter.Seq2[Fragment, error] {
	open := func(ctx context.Context) (*http.Response, error) {
		return c.post(ctx, req, true)
	}
	return streamResponse(ctx, c.limiter, c.idleTimeout, open, readStream)
}

// Health lists models to check that the backend is reachable and the key
// is accepted.
func (c *OpenAIClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("openai api: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("openai api status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
	return nil
}

// post sends the chat request and returns the response only on 200.
func (c *OpenAIClient) post(ctx context.Context, req Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(chatRequest{
		Model:            c.model,
		Messages:         []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature:      req.Temperature,
		TopP:             c.topP,
		PresencePenalty:  c.presence,
		FrequencyPenalty: c.frequency,
		MaxTokens:        c.maxTokens,
		Stream:           stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("openai api: %w", ctxErr)
		}
		return nil, &RetryableError{Message: err.Error()}
	}
	if resp.StatusCode == http.StatusOK {
		return resp, nil
	}

	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, &RetryableError{
			StatusCode: resp.StatusCode,
			Message:    string(respBody),
		}
	}
	var apiResp chatResponse
	if json.Unmarshal(respBody, &apiResp) == nil && apiResp.Error != nil {
		return nil, fmt.Errorf("openai api status %d: %s", resp.StatusCode, apiResp.Error.Message)
	}
	return nil, fmt.Errorf("openai api status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
}

// Close releases resources.
func (c *OpenAIClient) Close() {
	c.httpClient.CloseIdleConnections()
}
