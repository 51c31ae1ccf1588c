package api

import (
	"context"
	"net/http"
	"time"

	"github.com/dgallion1/mindmapd/internal/events"
	"github.com/dgallion1/mindmapd/internal/metrics"
)

// serveEvents runs produce in its own goroutine and writes every event it
// emits as an SSE frame. A client disconnect or write failure cancels the
// producer's context.
func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request, produce func(context.Context, events.Sink)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.ActiveStreams.Inc()
	defer metrics.ActiveStreams.Dec()

	ch := make(chan events.Event)
	sink := func(ev events.Event) error {
		select {
		case ch <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	go func() {
		defer close(ch)
		produce(ctx, sink)
	}()

	var tick <-chan time.Time
	if s.cfg.StreamKeepAlive > 0 {
		t := time.NewTicker(s.cfg.StreamKeepAlive)
		defer t.Stop()
		tick = t.C
	}

	log := s.log.With("path", r.URL.Path, "request_id", w.Header().Get("X-Request-ID"))
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			frame, err := events.Format(ev)
			if err != nil {
				log.Error("encode event", "error", err)
				continue
			}
			if _, err := w.Write(frame); err != nil {
				log.Warn("client write failed", "error", err)
				cancel()
				drain(ch)
				return
			}
			flusher.Flush()
		case <-tick:
			if _, err := w.Write(events.KeepAlive); err != nil {
				cancel()
				drain(ch)
				return
			}
			flusher.Flush()
		}
	}
}

// drain waits for the producer to finish after the stream was cancelled.
func drain(ch <-chan events.Event) {
	for range ch {
	}
}
