package events

import (
	"errors"
	"sync"
	"time"

	"github.com/dgallion1/mindmapd/internal/metrics"
)

// ErrClosed is returned when an event is emitted after the terminal one.
var ErrClosed = errors.New("event stream closed")

// Sink receives events in order. An error stops the producer.
type Sink func(Event) error

// Emitter serializes events from concurrent producers into a Sink and
// guarantees at most one terminal event.
type Emitter struct {
	mu      sync.Mutex
	sink    Sink
	started time.Time
	closed  bool
}

func NewEmitter(sink Sink) *Emitter {
	return &Emitter{sink: sink, started: time.Now()}
}

// Discard is a sink that drops everything.
func Discard(Event) error { return nil }

// Emit delivers ev. Once a terminal event has been delivered, or the sink
// has failed, further calls return ErrClosed.
func (e *Emitter) Emit(ev Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}
	if ev.Type.Terminal() {
		e.closed = true
	}
	if err := e.sink(ev); err != nil {
		e.closed = true
		return err
	}
	metrics.StreamEvents.WithLabelValues(string(ev.Type)).Inc()
	return nil
}

// Started is when the emitter was created.
func (e *Emitter) Started() time.Time {
	return e.started
}

func (e *Emitter) Elapsed() time.Duration {
	return time.Since(e.started)
}

// Closed reports whether a terminal event was emitted.
func (e *Emitter) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Emitter) Start(message, requestID string) error {
	return e.Emit(Start(message, requestID))
}

func (e *Emitter) Progress(message string, current, total int) error {
	return e.Emit(Progress(message, current, total))
}

func (e *Emitter) Update(tree any) error {
	return e.Emit(Update(tree))
}

func (e *Emitter) Complete(tree any, timing Timing) error {
	return e.Emit(CompleteTree(tree, timing))
}

func (e *Emitter) Error(err error) error {
	return e.Emit(Error(err.Error(), e.Elapsed()))
}
