// Package stream separates a model's reasoning from its answer in a token
// stream and turns both into progress events.
package stream

import (
	"iter"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dgallion1/mindmapd/internal/events"
	"github.com/dgallion1/mindmapd/internal/llm"
)

const (
	OpenMarker  = "<think>"
	CloseMarker = "</think>"

	DefaultThreshold = 10
)

// Demux is a two-state machine over stream fragments. In the answering state
// text is buffered and flushed as generating events once the buffer reaches
// Threshold runes. In the thinking state every fragment becomes a reasoning
// event immediately.
type Demux struct {
	Threshold int
	// Started is the reference point for elapsed_ms. New sets it to now.
	Started time.Time
	// Timing is attached to the complete event.
	Timing events.Timing

	thinking  bool
	content   strings.Builder
	reasoning strings.Builder
	buf       strings.Builder
	bufRunes  int
}

func New(threshold int) *Demux {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Demux{Threshold: threshold, Started: time.Now()}
}

// Thinking reports the current state.
func (d *Demux) Thinking() bool { return d.thinking }

// Content is the full answer accumulated so far.
func (d *Demux) Content() string { return d.content.String() }

// Reasoning is the full reasoning accumulated so far.
func (d *Demux) Reasoning() string { return d.reasoning.String() }

// Feed advances the machine by one fragment and returns the events it
// produces, possibly none.
func (d *Demux) Feed(f llm.Fragment) []events.Event {
	// A structured reasoning attachment wins over the visible text.
	if f.Reasoning != "" {
		return d.think(f.Reasoning)
	}

	text := f.Text
	if strings.Contains(text, OpenMarker) {
		d.thinking = true
		text = strings.ReplaceAll(text, OpenMarker, "")
	}
	if strings.Contains(text, CloseMarker) {
		text = strings.ReplaceAll(text, CloseMarker, "")
		d.thinking = false
		// The closing fragment is consumed entirely as reasoning.
		return d.think(text)
	}
	if d.thinking {
		return d.think(text)
	}
	return d.answer(text)
}

func (d *Demux) think(text string) []events.Event {
	if text == "" {
		return nil
	}
	d.reasoning.WriteString(text)
	return []events.Event{events.Reasoning(text)}
}

func (d *Demux) answer(text string) []events.Event {
	if text == "" {
		return nil
	}
	d.content.WriteString(text)
	d.buf.WriteString(text)
	d.bufRunes += utf8.RuneCountInString(text)
	if d.bufRunes < d.Threshold {
		return nil
	}
	ev := events.Generating(d.buf.String())
	d.buf.Reset()
	d.bufRunes = 0
	return []events.Event{ev}
}

// Complete is the terminal success event. A sub-threshold buffer is not
// flushed separately; the full content carries it.
func (d *Demux) Complete() events.Event {
	return events.CompleteText(d.Content(), d.Reasoning(), time.Since(d.Started), d.Timing)
}

// Fail is the terminal error event.
func (d *Demux) Fail(err error) events.Event {
	return events.Error(err.Error(), time.Since(d.Started))
}

// Run drives the machine over seq and emits exactly one terminal event unless
// emit itself fails. It returns the stream error, or the emit error that
// stopped consumption.
func (d *Demux) Run(seq iter.Seq2[llm.Fragment, error], emit func(events.Event) error) error {
	var streamErr error
	for f, err := range seq {
		if err != nil {
			streamErr = err
			break
		}
		for _, ev := range d.Feed(f) {
			if emitErr := emit(ev); emitErr != nil {
				return emitErr
			}
		}
	}
	if streamErr != nil {
		if emitErr := emit(d.Fail(streamErr)); emitErr != nil {
			return emitErr
		}
		return streamErr
	}
	return emit(d.Complete())
}
