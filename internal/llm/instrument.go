package llm

import (
	"context"
	"iter"
	"time"

	"github.com/dgallion1/mindmapd/internal/metrics"
)

// Instrumented wraps a Client and records every call in stats and the
// Prometheus LLM instruments.
type Instrumented struct {
	next  Client
	stats *Stats
}

func Instrument(next Client, stats *Stats) *Instrumented {
	return &Instrumented{next: next, stats: stats}
}

func (c *Instrumented) Invoke(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	out, err := c.next.Invoke(ctx, req)
	c.observe(req.Scenario, "invoke", time.Since(start), err)
	return out, err
}

func (c *Instrumented) Stream(ctx context.Context, req Request) iter.Seq2[Fragment, error] {
	return func(yield func(Fragment, error) bool) {
		start := time.Now()
		var streamErr error
		defer func() { c.observe(req.Scenario, "stream", time.Since(start), streamErr) }()

		for f, err := range c.next.Stream(ctx, req) {
			if err != nil {
				streamErr = err
			}
			if !yield(f, err) {
				return
			}
		}
	}
}

// Health delegates to the wrapped client when it supports probing.
func (c *Instrumented) Health(ctx context.Context) error {
	if hc, ok := c.next.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

func (c *Instrumented) observe(scenario Scenario, mode string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.LLMRequests.WithLabelValues(string(scenario), mode, result).Inc()
	metrics.LLMDuration.WithLabelValues(string(scenario), mode).Observe(d.Seconds())
	if c.stats != nil {
		c.stats.Record(scenario, d, err)
	}
}
