// Package api exposes the mind-map pipeline over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dgallion1/mindmapd/internal/config"
	"github.com/dgallion1/mindmapd/internal/llm"
	"github.com/dgallion1/mindmapd/internal/pipeline"
)

// LLMInfo is what the health and stats endpoints need from the model backend.
type LLMInfo interface {
	Health(ctx context.Context) error
	Model() string
}

// Server is the HTTP API server for mindmapd.
type Server struct {
	router   chi.Router
	pipeline *pipeline.Pipeline
	llm      LLMInfo
	stats    *llm.Stats
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(p *pipeline.Pipeline, info LLMInfo, stats *llm.Stats, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		pipeline: p,
		llm:      info,
		stats:    stats,
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(CORS)

	r.Get("/health", s.handleLiveness)
	r.Handle("/metrics", promhttp.Handler())

	r.Route(s.cfg.APIPrefix+"/mindmap", func(r chi.Router) {
		r.Post("/from-text", s.handleFromText)
		r.Post("/from-text/stream", s.handleFromTextStream)
		r.Post("/plan", s.handlePlan)

		r.Post("/from-document", s.handleFromDocument)
		r.Post("/from-document/stream", s.handleFromDocumentStream)
		r.Get("/from-document/stream", s.handleFromDocumentStreamQuery)
		r.Post("/from-pdf", s.handleFromPDF)
		r.Post("/from-file", s.handleFromFile)

		r.Get("/health", s.handleHealth)
		r.Get("/stats/llm", s.handleLLMStats)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)
	})

	s.router = r
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
