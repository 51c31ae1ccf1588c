package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/dgallion1/mindmapd/internal/llm"
)

// ErrGenerationTimeout is returned when a single generation call exceeds the
// per-call timeout. It is distinct from the caller's own cancellation.
var ErrGenerationTimeout = errors.New("generation timed out")

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	return llm.IsRetryable(err) || errors.Is(err, ErrGenerationTimeout)
}

// Backoff returns a duration for attempt n (0-indexed) with jitter. The
// delay starts at base and doubles per attempt, capped at 30s. A
// non-positive base disables waiting.
func Backoff(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	d := 30 * time.Second
	if attempt < 32 {
		if s := base << uint(attempt); s > 0 && s < d {
			d = s
		}
	}
	jitter := time.Duration(rand.Int64N(int64(d)/2 + 1))
	return d + jitter
}

// invoke runs a single-shot call with a per-attempt timeout, retrying
// transient failures up to MaxRetries attempts.
func (p *Pipeline) invoke(ctx context.Context, req llm.Request) (string, error) {
	attempts := max(p.cfg.MaxRetries, 1)
	var lastErr error
	for attempt := range attempts {
		out, err := p.invokeOnce(ctx, req)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == attempts-1 {
			break
		}
		p.log.Warn("retryable llm error", "scenario", req.Scenario, "attempt", attempt, "error", err)
		select {
		case <-time.After(Backoff(attempt, p.cfg.RetryDelay)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "", lastErr
}

func (p *Pipeline) invokeOnce(ctx context.Context, req llm.Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.cfg.GenerationTimeout)
	defer cancel()

	out, err := p.llm.Invoke(callCtx, req)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%s after %s: %w", req.Scenario, p.cfg.GenerationTimeout, ErrGenerationTimeout)
	}
	return out, err
}
