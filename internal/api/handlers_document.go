package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dgallion1/mindmapd/internal/events"
	"github.com/dgallion1/mindmapd/internal/parser"
	"github.com/dgallion1/mindmapd/internal/pipeline"
)

func (s *Server) handleFromDocument(w http.ResponseWriter, r *http.Request) {
	var req pipeline.DocumentRequest
	if err := decodeBody(w, r, s.cfg.MaxUploadBytes, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.processDocument(w, r, req)
}

func (s *Server) processDocument(w http.ResponseWriter, r *http.Request, req pipeline.DocumentRequest) {
	if err := req.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	tree, err := s.pipeline.ProcessDocument(r.Context(), req, nil)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeData(w, tree)
}

func (s *Server) handleFromDocumentStream(w http.ResponseWriter, r *http.Request) {
	var req pipeline.DocumentRequest
	if err := decodeBody(w, r, s.cfg.MaxUploadBytes, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.streamDocument(w, r, req)
}

// handleFromDocumentStreamQuery serves EventSource clients, which can only
// issue GET requests.
func (s *Server) handleFromDocumentStreamQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := pipeline.DocumentRequest{
		Content: q.Get("content"),
		DocType: pipeline.DocType(q.Get("doc_type")),
		Title:   q.Get("title"),
	}
	if v := q.Get("max_depth"); v != "" {
		depth, err := strconv.Atoi(v)
		if err != nil {
			jsonError(w, "max_depth must be an integer", http.StatusBadRequest)
			return
		}
		req.MaxDepth = depth
	}
	s.streamDocument(w, r, req)
}

func (s *Server) streamDocument(w http.ResponseWriter, r *http.Request, req pipeline.DocumentRequest) {
	if err := req.Validate(); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.serveEvents(w, r, func(ctx context.Context, sink events.Sink) {
		s.pipeline.ProcessDocumentStream(ctx, req, sink)
	})
}

// handleFromPDF accepts a multipart PDF upload and runs it as a pdf document.
func (s *Server) handleFromPDF(w http.ResponseWriter, r *http.Request) {
	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	if strings.ToLower(filepath.Ext(up.filename)) != ".pdf" {
		jsonError(w, "only .pdf files are accepted", http.StatusBadRequest)
		return
	}
	s.processDocument(w, r, pipeline.DocumentRequest{
		Content:  base64.StdEncoding.EncodeToString(up.data),
		DocType:  pipeline.DocPDF,
		MaxDepth: up.depth,
		Title:    up.title,
	})
}

// handleFromFile accepts Markdown, HTML, DOCX or plain text uploads. The
// parsed outline is flattened to headed text before generation.
func (s *Server) handleFromFile(w http.ResponseWriter, r *http.Request) {
	up, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	if !parser.IsSupportedExtension(up.filename) {
		jsonError(w, fmt.Sprintf("unsupported file type %q", filepath.Ext(up.filename)), http.StatusBadRequest)
		return
	}
	text, err := parser.ExtractText(up.data, up.filename)
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.processDocument(w, r, pipeline.DocumentRequest{
		Content:  text,
		DocType:  pipeline.DocText,
		MaxDepth: up.depth,
		Title:    up.title,
	})
}

type upload struct {
	filename string
	data     []byte
	depth    int
	title    string
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "file too large", http.StatusRequestEntityTooLarge)
			return upload{}, false
		}
		jsonError(w, "invalid multipart form", http.StatusBadRequest)
		return upload{}, false
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonError(w, "missing 'file' field", http.StatusBadRequest)
		return upload{}, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		jsonError(w, "failed to read file", http.StatusInternalServerError)
		return upload{}, false
	}

	up := upload{
		filename: sanitizeFilename(header.Filename),
		data:     data,
		title:    strings.TrimSpace(r.FormValue("title")),
	}
	if v := r.FormValue("max_depth"); v != "" {
		up.depth, err = strconv.Atoi(v)
		if err != nil {
			jsonError(w, "max_depth must be an integer", http.StatusBadRequest)
			return upload{}, false
		}
	}
	return up, true
}

// sanitizeFilename strips directory components and path traversal sequences
// from a user-supplied filename.
func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "." || name == ".." || name == "/" {
		return "upload"
	}
	return name
}
