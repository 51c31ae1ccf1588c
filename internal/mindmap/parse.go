package mindmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when model output contains no JSON value.
var ErrNoJSON = errors.New("no JSON found in model output")

var (
	codeFence     = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")
	thinkBlock    = regexp.MustCompile(`(?s)<think>.*?</think>`)
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	pythonNone    = regexp.MustCompile(`\bNone\b`)
)

// wrapperKeys are single-key envelopes some models put around the tree.
var wrapperKeys = []string{"mindmap", "mind_map", "root", "tree", "data"}

// StripReasoning removes <think>...</think> blocks from model output.
func StripReasoning(s string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(s, ""))
}

// StripCodeBlock returns the body of the first fenced block, or s unchanged.
func StripCodeBlock(s string) string {
	if m := codeFence.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// ExtractJSON finds and decodes the JSON object or array in model output.
// Both an object span and an array span are tried; when both decode, the
// longer one wins, so a bare array of objects is not mistaken for its first
// element. Reasoning blocks, code fences, trailing commas and Python-style
// None are tolerated. Numbers decode as json.Number.
func ExtractJSON(text string) (any, error) {
	s := StripCodeBlock(StripReasoning(text))

	var (
		best     any
		bestLen  int
		firstErr error
	)
	for _, delims := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		start := strings.IndexByte(s, delims[0])
		if start < 0 {
			continue
		}
		v, n, err := decodeSpan(s[start:], delims[1])
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if n > bestLen {
			best, bestLen = v, n
		}
	}
	if bestLen > 0 {
		return best, nil
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, ErrNoJSON
}

// maxSpanAttempts bounds how many closing delimiters decodeSpan backs off
// over when prose after the JSON contains the same delimiter.
const maxSpanAttempts = 16

// decodeSpan decodes s[:i+1] for the last closer at i, backing off to
// earlier closers while the span fails to decode. It returns the value and
// the length of the span that decoded.
func decodeSpan(s string, closer byte) (any, int, error) {
	var firstErr error
	end := len(s)
	for range maxSpanAttempts {
		i := strings.LastIndexByte(s[:end], closer)
		if i < 0 {
			break
		}
		v, err := decodeLenient(s[:i+1])
		if err == nil {
			return v, i + 1, nil
		}
		if firstErr == nil {
			firstErr = err
		}
		end = i
	}
	if firstErr == nil {
		firstErr = ErrNoJSON
	}
	return nil, 0, firstErr
}

func decodeLenient(body string) (any, error) {
	v, err := decodeJSON(body)
	if err == nil {
		return v, nil
	}
	body = trailingComma.ReplaceAllString(body, "$1")
	body = pythonNone.ReplaceAllString(body, "null")
	v, err2 := decodeJSON(body)
	if err2 != nil {
		return nil, fmt.Errorf("decode model JSON: %w (content: %s)", err, truncate(body, 200))
	}
	return v, nil
}

// decodeJSON decodes exactly one value; anything but whitespace after it is
// an error.
func decodeJSON(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if rest := strings.TrimSpace(s[dec.InputOffset():]); rest != "" {
		return nil, fmt.Errorf("unexpected content after JSON value: %q", truncate(rest, 40))
	}
	return v, nil
}

// ParseTree turns model output into a normalized tree. JSON is preferred;
// output without JSON is read as a Markdown outline.
func ParseTree(text string) (*Node, error) {
	v, err := ExtractJSON(text)
	if err == nil {
		return Normalize(unwrap(v)), nil
	}
	if root := FromMarkdown(StripCodeBlock(StripReasoning(text))); root != nil {
		return root, nil
	}
	return nil, fmt.Errorf("parse mind map: %w", err)
}

func unwrap(v any) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 1 {
			for _, key := range wrapperKeys {
				if inner, ok := t[key].(map[string]any); ok {
					return inner
				}
			}
		}
		return t
	case []any:
		return map[string]any{"id": "root", "label": "Mind Map", "children": t}
	}
	return v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
