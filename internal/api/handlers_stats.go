package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

const healthProbeTimeout = 5 * time.Second

// handleHealth probes the model backend. A failed probe still answers 200 so
// the service stays live while the backend is down.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok", "llm": "available"}
	if s.llm == nil {
		resp["llm"] = "unavailable"
		resp["error"] = "no model backend configured"
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp["model"] = s.llm.Model()

	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()
	if err := s.llm.Health(ctx); err != nil {
		s.log.Warn("llm health probe failed", "error", err)
		resp["llm"] = "unavailable"
		resp["error"] = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}
	model := ""
	if s.llm != nil {
		model = s.llm.Model()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model": model,
		"stats": s.stats.Snapshot(),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	writeData(w, s.pipeline.Runs().List())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run := s.pipeline.Runs().Get(chi.URLParam(r, "runID"))
	if run == nil {
		jsonError(w, "run not found", http.StatusNotFound)
		return
	}
	writeData(w, run.Snapshot())
}
