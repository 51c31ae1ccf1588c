package pipeline

import (
	"crypto/sha256"
	"fmt"
	"slices"
	"sync"
	"time"
)

// RunStatus represents the state of a generation request.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusPartial   RunStatus = "partial"
	StatusFailed    RunStatus = "failed"
)

// RunKind names the entry point that started a run.
type RunKind string

const (
	KindText           RunKind = "text"
	KindTextStream     RunKind = "text_stream"
	KindDocument       RunKind = "document"
	KindDocumentStream RunKind = "document_stream"
)

// Run tracks the state of a single generation request.
type Run struct {
	mu sync.Mutex

	ID     string
	Kind   RunKind
	Status RunStatus
	Stage  string

	Progress Progress

	CreatedAt time.Time
	UpdatedAt time.Time

	errors []string
}

// Progress tracks processing progress.
type Progress struct {
	TotalChunks       int      `json:"total_chunks"`
	ChunksProcessed   int      `json:"chunks_processed"`
	TotalSections     int      `json:"total_sections"`
	SectionsProcessed int      `json:"sections_processed"`
	Errors            []string `json:"errors"`
}

func newRun(id string, kind RunKind) *Run {
	now := time.Now()
	return &Run{
		ID:        id,
		Kind:      kind,
		Status:    StatusRunning,
		Stage:     "starting",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// RunStore is a thread-safe in-memory run registry with TTL eviction.
type RunStore struct {
	mu   sync.Mutex
	runs map[string]*Run
	ttl  time.Duration
}

func NewRunStore(ttl time.Duration) *RunStore {
	return &RunStore{
		runs: make(map[string]*Run),
		ttl:  ttl,
	}
}

func (s *RunStore) Put(run *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
}

func (s *RunStore) Get(id string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id]
}

// List returns snapshots of all retained runs, newest first.
func (s *RunStore) List() []RunSnapshot {
	s.mu.Lock()
	runs := make([]*Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.Unlock()

	out := make([]RunSnapshot, 0, len(runs))
	for _, r := range runs {
		out = append(out, r.Snapshot())
	}
	slices.SortFunc(out, func(a, b RunSnapshot) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

// Cleanup removes finished runs not updated within the TTL.
func (s *RunStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, run := range s.runs {
		run.mu.Lock()
		expired := run.Status != StatusRunning && now.Sub(run.UpdatedAt) > s.ttl
		run.mu.Unlock()
		if expired {
			delete(s.runs, id)
		}
	}
}

// SetStage records the stage currently executing.
func (r *Run) SetStage(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stage = stage
	r.UpdatedAt = time.Now()
}

// Finish sets the final status. Runs that finished with recorded errors are
// partial rather than completed.
func (r *Run) Finish(status RunStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if status == StatusCompleted && len(r.errors) > 0 {
		status = StatusPartial
	}
	r.Status = status
	r.Stage = "done"
	r.UpdatedAt = time.Now()
}

// AddError records an error.
func (r *Run) AddError(err string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, err)
	r.Progress.Errors = r.errors
	r.UpdatedAt = time.Now()
}

// IncrChunksProcessed atomically increments chunks processed.
func (r *Run) IncrChunksProcessed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Progress.ChunksProcessed++
	r.UpdatedAt = time.Now()
}

// SetTotalChunks records total chunk count.
func (r *Run) SetTotalChunks(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Progress.TotalChunks = n
	r.UpdatedAt = time.Now()
}

func (r *Run) SetTotalSections(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Progress.TotalSections = n
	r.UpdatedAt = time.Now()
}

func (r *Run) IncrSectionsProcessed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Progress.SectionsProcessed++
	r.UpdatedAt = time.Now()
}

// RunSnapshot is a read-only, JSON-safe copy of run state.
type RunSnapshot struct {
	ID        string    `json:"run_id"`
	Kind      RunKind   `json:"kind"`
	Status    RunStatus `json:"status"`
	Stage     string    `json:"stage"`
	Progress  Progress  `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the run state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	errs := slices.Clone(r.Progress.Errors)
	if errs == nil {
		errs = []string{}
	}
	p := r.Progress
	p.Errors = errs
	return RunSnapshot{
		ID:        r.ID,
		Kind:      r.Kind,
		Status:    r.Status,
		Stage:     r.Stage,
		Progress:  p,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
