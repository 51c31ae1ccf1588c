// Package events defines the progress events a mind-map request emits and
// their server-sent-event framing.
package events

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"
)

type Type string

const (
	TypeStart      Type = "start"
	TypeProgress   Type = "progress"
	TypeReasoning  Type = "reasoning"
	TypeGenerating Type = "generating"
	TypeUpdate     Type = "update"
	TypeComplete   Type = "complete"
	TypeError      Type = "error"
)

// Terminal reports whether t ends a request's stream.
func (t Type) Terminal() bool {
	return t == TypeComplete || t == TypeError
}

// Event is one typed message. Payload keys are merged with "type" on the
// wire.
type Event struct {
	Type    Type
	Payload map[string]any
}

func (e Event) MarshalJSON() ([]byte, error) {
	obj := make(map[string]any, len(e.Payload)+1)
	maps.Copy(obj, e.Payload)
	obj["type"] = e.Type
	return json.Marshal(obj)
}

// Format frames ev as a single SSE data line.
func Format(ev Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	frame := make([]byte, 0, len(b)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, b...)
	frame = append(frame, "\n\n"...)
	return frame, nil
}

// KeepAlive is an SSE comment frame that clients ignore.
var KeepAlive = []byte(": keep-alive\n\n")

// Timing is a set of named stage durations, encoded as milliseconds.
type Timing map[string]time.Duration

func (t Timing) MarshalJSON() ([]byte, error) {
	ms := make(map[string]int64, len(t))
	for k, d := range t {
		ms[k] = d.Milliseconds()
	}
	return json.Marshal(ms)
}

func Start(message, requestID string) Event {
	return Event{Type: TypeStart, Payload: map[string]any{
		"message":    message,
		"request_id": requestID,
	}}
}

// Progress reports a stage. current and total are omitted when total is zero.
func Progress(message string, current, total int) Event {
	p := map[string]any{"message": message}
	if total > 0 {
		p["current"] = current
		p["total"] = total
	}
	return Event{Type: TypeProgress, Payload: p}
}

func Reasoning(content string) Event {
	return Event{Type: TypeReasoning, Payload: map[string]any{"content": content}}
}

func Generating(content string) Event {
	return Event{Type: TypeGenerating, Payload: map[string]any{"content": content}}
}

// Update carries a snapshot of the tree built so far.
func Update(tree any) Event {
	return Event{Type: TypeUpdate, Payload: map[string]any{"data": tree}}
}

// CompleteText ends a text-generation stream.
func CompleteText(content, reasoning string, elapsed time.Duration, timing Timing) Event {
	p := map[string]any{
		"content":    content,
		"reasoning":  reasoning,
		"elapsed_ms": elapsed.Milliseconds(),
	}
	if len(timing) > 0 {
		p["timing"] = timing
	}
	return Event{Type: TypeComplete, Payload: p}
}

// CompleteTree ends a document stream with the finished tree.
func CompleteTree(tree any, timing Timing) Event {
	p := map[string]any{"data": tree}
	if len(timing) > 0 {
		p["timing"] = timing
	}
	return Event{Type: TypeComplete, Payload: p}
}

func Error(message string, elapsed time.Duration) Event {
	return Event{Type: TypeError, Payload: map[string]any{
		"message":    message,
		"elapsed_ms": elapsed.Milliseconds(),
	}}
}
