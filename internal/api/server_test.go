package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/mindmapd/internal/config"
	"github.com/dgallion1/mindmapd/internal/llm"
	"github.com/dgallion1/mindmapd/internal/pipeline"
)

type fakeLLM struct {
	mu        sync.Mutex
	prompts   map[llm.Scenario][]string
	answers   map[llm.Scenario]string
	fragments []llm.Fragment
	healthErr error
}

func newFakeLLM() *fakeLLM {
	return &fakeLLM{prompts: map[llm.Scenario][]string{}, answers: map[llm.Scenario]string{}}
}

func (f *fakeLLM) Invoke(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts[req.Scenario] = append(f.prompts[req.Scenario], req.Prompt)
	out, ok := f.answers[req.Scenario]
	if !ok {
		return "", fmt.Errorf("no answer for %s", req.Scenario)
	}
	return out, nil
}

func (f *fakeLLM) Stream(ctx context.Context, req llm.Request) iter.Seq2[llm.Fragment, error] {
	return func(yield func(llm.Fragment, error) bool) {
		for _, frag := range f.fragments {
			if !yield(frag, nil) {
				return
			}
		}
	}
}

func (f *fakeLLM) Health(ctx context.Context) error { return f.healthErr }
func (f *fakeLLM) Model() string                    { return "test-model" }

func (f *fakeLLM) Prompts(s llm.Scenario) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts[s]...)
}

func newTestServer(t *testing.T, client *fakeLLM) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.RetryDelay = 0
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := pipeline.New(cfg, client, log)
	return NewServer(p, client, llm.NewStats(time.Hour), log, cfg)
}

func doJSON(t *testing.T, srv http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postFile(t *testing.T, srv http.Handler, path, filename string, data []byte, fields map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	body, ct := multipartBody(t, filename, data, fields)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

// sseTypes returns the type of every data frame in an event-stream body.
func sseTypes(t *testing.T, body string) []string {
	t.Helper()
	var types []string
	for _, frame := range strings.Split(body, "\n\n") {
		data, ok := strings.CutPrefix(frame, "data: ")
		if !ok {
			continue
		}
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(data), &ev), data)
		types = append(types, ev["type"].(string))
	}
	return types
}

func TestFromText(t *testing.T) {
	client := newFakeLLM()
	client.answers[llm.ScenarioMindmap] = "# Topic\n## Branch"
	srv := newTestServer(t, client)

	text := strings.Repeat("Go is a statically typed language. ", 15)[:500]
	rec, env := doJSON(t, srv, http.MethodPost, "/api/v1/mindmap/from-text", fmt.Sprintf(`{"content": %q}`, text))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "# Topic\n## Branch", env.Data)
	assert.Empty(t, env.Error)
	require.Len(t, client.Prompts(llm.ScenarioMindmap), 1)
	assert.Contains(t, client.Prompts(llm.ScenarioMindmap)[0], text)
}

func TestFromText_BadRequests(t *testing.T) {
	srv := newTestServer(t, newFakeLLM())

	tests := []struct {
		name string
		body string
	}{
		{"empty content", `{"content": "   "}`},
		{"missing content", `{}`},
		{"no body", ``},
		{"bad json", `{"content":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := doJSON(t, srv, http.MethodPost, "/api/v1/mindmap/from-text", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}
}

func TestFromText_GenerationFailure(t *testing.T) {
	srv := newTestServer(t, newFakeLLM())

	rec, env := doJSON(t, srv, http.MethodPost, "/api/v1/mindmap/from-text", `{"content": "some text"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "no answer for mindmap")
}

func TestFromTextStream(t *testing.T) {
	client := newFakeLLM()
	client.fragments = []llm.Fragment{{Reasoning: "thinking"}, {Text: "# Topic\n"}, {Text: "## Branch"}}
	srv := newTestServer(t, client)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/mindmap/from-text/stream", strings.NewReader(`{"content": "short text"}`))
	req.Header.Set("X-Request-ID", "stream-42")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.Equal(t, "stream-42", rec.Header().Get("X-Request-ID"))

	types := sseTypes(t, rec.Body.String())
	require.NotEmpty(t, types)
	assert.Equal(t, "start", types[0])
	assert.Equal(t, "complete", types[len(types)-1])
	assert.Contains(t, types, "reasoning")
	assert.Contains(t, rec.Body.String(), `"request_id":"stream-42"`)
}

func TestFromTextStream_ValidatesBeforeStreaming(t *testing.T) {
	srv := newTestServer(t, newFakeLLM())

	rec, env := doJSON(t, srv, http.MethodPost, "/api/v1/mindmap/from-text/stream", `{"content": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
}

func TestFromDocument(t *testing.T) {
	client := newFakeLLM()
	client.answers[llm.ScenarioTree] = `{"label": "Paper", "children": [{"label": "Method"}, {"label": "Method"}]}`
	srv := newTestServer(t, client)

	rec, env := doJSON(t, srv, http.MethodPost, "/api/v1/mindmap/from-document", `{"content": "a short paper", "doc_type": "text", "max_depth": 2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)

	tree := env.Data.(map[string]any)
	assert.Equal(t, "Paper", tree["label"])
	assert.Len(t, tree["children"], 1)
}

func TestFromDocument_Validation(t *testing.T) {
	srv := newTestServer(t, newFakeLLM())

	tests := []struct {
		name string
		body string
	}{
		{"bad doc type", `{"content": "x", "doc_type": "docx"}`},
		{"depth too large", `{"content": "x", "max_depth": 9}`},
		{"empty content", `{"content": ""}`},
		{"bad json", `[`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := doJSON(t, srv, http.MethodPost, "/api/v1/mindmap/from-document", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.False(t, env.Success)
		})
	}
}

func TestFromDocument_MalformedPDF(t *testing.T) {
	srv := newTestServer(t, newFakeLLM())

	rec, env := doJSON(t, srv, http.MethodPost, "/api/v1/mindmap/from-document", `{"content": "%%% not base64 %%%", "doc_type": "pdf"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, env.Success)
	assert.Contains(t, env.Error, "invalid document")
}

func TestFromPDF(t *testing.T) {
	srv := newTestServer(t, newFakeLLM())

	t.Run("garbage pdf", func(t *testing.T) {
		rec, env := postFile(t, srv, "/api/v1/mindmap/from-pdf", "paper.pdf", []byte("not really a pdf"), nil)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, env.Error, "not a PDF")
	})

	t.Run("wrong extension", func(t *testing.T) {
		rec, env := postFile(t, srv, "/api/v1/mindmap/from-pdf", "paper.txt", []byte("text"), nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, env.Success)
	})

	t.Run("bad depth", func(t *testing.T) {
		rec, _ := postFile(t, srv, "/api/v1/mindmap/from-pdf", "paper.pdf", []byte("%PDF-1.4"), map[string]string{"max_depth": "deep"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestFromFile_Markdown(t *testing.T) {
	client := newFakeLLM()
	client.answers[llm.ScenarioTree] = `{"label": "Guide", "children": [{"label": "Install"}]}`
	srv := newTestServer(t, client)

	md := "# Guide\n\n## Install\n\nRun the installer.\n"
	rec, env := postFile(t, srv, "/api/v1/mindmap/from-file", "../../guide.md", []byte(md), map[string]string{"title": "User Guide"})
	require.Equal(t, http.StatusOK, rec.Code, env.Error)

	tree := env.Data.(map[string]any)
	assert.Equal(t, "User Guide", tree["label"])

	prompts := client.Prompts(llm.ScenarioTree)
	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "## Install")
	assert.Contains(t, prompts[0], "Run the installer.")
}

func TestFromFile_Unsupported(t *testing.T) {
	srv := newTestServer(t, newFakeLLM())

	rec, env := postFile(t, srv, "/api/v1/mindmap/from-file", "tool.exe", []byte("MZ"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error, ".exe")
}

func TestUploadTooLarge(t *testing.T) {
	client := newFakeLLM()
	cfg := config.Default()
	cfg.MaxUploadBytes = 256
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := NewServer(pipeline.New(cfg, client, log), client, nil, log, cfg)

	rec, env := postFile(t, srv, "/api/v1/mindmap/from-file", "big.txt", bytes.Repeat([]byte("a"), 1024), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.False(t, env.Success)
}

func TestFromDocumentStreamQuery(t *testing.T) {
	client := newFakeLLM()
	client.answers[llm.ScenarioStructure] = `{"sections": [{"title": "Intro", "type": "introduction", "content": "hello"}]}`
	client.answers[llm.ScenarioSection] = `{"points": ["greeting"]}`
	srv := newTestServer(t, client)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/mindmap/from-document/stream?content=hello&max_depth=2&title=Doc", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	types := sseTypes(t, rec.Body.String())
	require.NotEmpty(t, types)
	assert.Equal(t, "start", types[0])
	assert.Contains(t, types, "update")
	assert.Equal(t, "complete", types[len(types)-1])
}

func TestFromDocumentStream_BadQuery(t *testing.T) {
	srv := newTestServer(t, newFakeLLM())

	for _, q := range []string{"content=x&max_depth=abc", "content=x&doc_type=epub", "content=&max_depth=2"} {
		rec, env := doJSON(t, srv, http.MethodGet, "/api/v1/mindmap/from-document/stream?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		assert.False(t, env.Success, q)
	}
}

func TestHealth(t *testing.T) {
	client := newFakeLLM()
	srv := newTestServer(t, client)

	get := func() map[string]any {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/mindmap/health", nil)
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body
	}

	body := get()
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "available", body["llm"])
	assert.Equal(t, "test-model", body["model"])
	assert.NotContains(t, body, "error")

	client.healthErr = errors.New("connection refused")
	body = get()
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "unavailable", body["llm"])
	assert.Equal(t, "connection refused", body["error"])
}

func TestLiveness(t *testing.T) {
	srv := newTestServer(t, newFakeLLM())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRuns(t *testing.T) {
	client := newFakeLLM()
	client.answers[llm.ScenarioMindmap] = "# Topic"
	srv := newTestServer(t, client)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/mindmap/from-text", strings.NewReader(`{"content": "hello"}`))
	req.Header.Set("X-Request-ID", "run-1")
	srv.ServeHTTP(httptest.NewRecorder(), req)

	rec, env := doJSON(t, srv, http.MethodGet, "/api/v1/mindmap/runs/run-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	run := env.Data.(map[string]any)
	assert.Equal(t, "run-1", run["run_id"])
	assert.Equal(t, "completed", run["status"])
	assert.Equal(t, "text", run["kind"])

	rec, env = doJSON(t, srv, http.MethodGet, "/api/v1/mindmap/runs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.Data, 1)

	rec, env = doJSON(t, srv, http.MethodGet, "/api/v1/mindmap/runs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, env.Success)
}

func TestPlan(t *testing.T) {
	srv := newTestServer(t, newFakeLLM())

	rec, env := doJSON(t, srv, http.MethodPost, "/api/v1/mindmap/plan", `{"content": "short"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	plan := env.Data.(map[string]any)
	assert.Equal(t, "single", plan["strategy"])
	assert.EqualValues(t, 5, plan["length"])
}

func TestLLMStats(t *testing.T) {
	client := newFakeLLM()
	srv := newTestServer(t, client)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/mindmap/stats/llm", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "test-model", body["model"])
	assert.Contains(t, body, "stats")

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.Default()
	noStats := NewServer(pipeline.New(cfg, client, log), client, nil, log, cfg)
	rec = httptest.NewRecorder()
	noStats.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/mindmap/stats/llm", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, newFakeLLM())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/mindmap/from-text", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, newFakeLLM())

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mindmapd_")
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct{ in, want string }{
		{"report.pdf", "report.pdf"},
		{"../../etc/passwd", "passwd"},
		{"/", "upload"},
		{"..", "upload"},
		{"", "upload"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
