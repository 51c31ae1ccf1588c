package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/dgallion1/mindmapd/internal/events"
)

type textRequest struct {
	Content string `json:"content"`
}

func (s *Server) readText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req textRequest
	if err := decodeBody(w, r, s.cfg.MaxUploadBytes, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	if strings.TrimSpace(req.Content) == "" {
		jsonError(w, "content is required", http.StatusBadRequest)
		return "", false
	}
	return req.Content, true
}

func (s *Server) handleFromText(w http.ResponseWriter, r *http.Request) {
	text, ok := s.readText(w, r)
	if !ok {
		return
	}
	md, err := s.pipeline.GenerateMarkdown(r.Context(), text)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeData(w, md)
}

func (s *Server) handleFromTextStream(w http.ResponseWriter, r *http.Request) {
	text, ok := s.readText(w, r)
	if !ok {
		return
	}
	s.serveEvents(w, r, func(ctx context.Context, sink events.Sink) {
		s.pipeline.GenerateMarkdownStream(ctx, text, sink)
	})
}

// handlePlan reports how a text would be processed without calling the model.
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	text, ok := s.readText(w, r)
	if !ok {
		return
	}
	writeData(w, s.pipeline.Plan(text))
}
