package pipeline

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/mindmapd/internal/llm"
)

func TestBackoff(t *testing.T) {
	if d := Backoff(3, 0); d != 0 {
		t.Errorf("zero base: got %s, want 0", d)
	}

	for attempt, want := range []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond} {
		d := Backoff(attempt, 100*time.Millisecond)
		if d < want || d > want+want/2 {
			t.Errorf("attempt %d: got %s, want within [%s, %s]", attempt, d, want, want+want/2)
		}
	}

	if d := Backoff(40, time.Second); d < 30*time.Second || d > 45*time.Second {
		t.Errorf("capped: got %s", d)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{&llm.RetryableError{StatusCode: 503}, true},
		{fmt.Errorf("wrapped: %w", &llm.RetryableError{StatusCode: 429}), true},
		{fmt.Errorf("summary after 30s: %w", ErrGenerationTimeout), true},
		{fmt.Errorf("status 400"), false},
	}
	for _, tt := range tests {
		if got := IsRetryable(tt.err); got != tt.want {
			t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestFingerprint(t *testing.T) {
	cfg := testConfig()
	cfg.CacheKeyLength = 10
	p := newTestPipeline(t, cfg, &stubLLM{})

	a := p.fingerprint("summary", "same prefix, short")
	if a != p.fingerprint("summary", "same prefix, short") {
		t.Error("fingerprint not stable")
	}
	if a == p.fingerprint("summary", "same prefix, longer text") {
		t.Error("length should change the fingerprint")
	}
	if a == p.fingerprint("tree", "same prefix, short") {
		t.Error("kind should change the fingerprint")
	}
	if p.fingerprint("tree", "x", "title", "3") == p.fingerprint("tree", "x", "title", "2") {
		t.Error("extras should change the fingerprint")
	}
	if !strings.HasPrefix(a, "summary:") {
		t.Errorf("fingerprint %q missing kind prefix", a)
	}
	// Only the bounded prefix and the length are hashed.
	if p.fingerprint("summary", "0123456789AAAA") != p.fingerprint("summary", "0123456789BBBB") {
		t.Error("content past the key length should not change the fingerprint")
	}
}
