package engine

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ResultStatus is the terminal state of one operation on one host.
type ResultStatus string

const (
	ResultSucceeded ResultStatus = "succeeded"
	ResultFailed    ResultStatus = "failed"
	ResultSkipped   ResultStatus = "skipped"

	// ResultDispatched marks fire-and-forget dispatches whose completion is
	// intentionally not tracked.
	ResultDispatched ResultStatus = "dispatched"
)

// HostResult records the outcome of one operation on one host.
type HostResult struct {
	Host     string
	OpHash   string
	OpName   string
	Status   ResultStatus
	Commands []CommandResult
	Err      error
	Duration time.Duration
}

// Summary aggregates result counts for a run.
type Summary struct {
	Succeeded  int
	Failed     int
	Skipped    int
	Dispatched int
}

// Report collects per-host per-operation results for one run. Appends are
// serialized internally since workers report concurrently.
type Report struct {
	RunID     string
	StartedAt time.Time

	mu          sync.Mutex
	results     []HostResult
	completedAt time.Time
}

func newReport() *Report {
	return &Report{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}
}

func (r *Report) append(res HostResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *Report) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completedAt = time.Now()
}

// Results returns a copy of the collected results.
func (r *Report) Results() []HostResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]HostResult{}, r.results...)
}

// CompletedAt returns when the run finished draining.
func (r *Report) CompletedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completedAt
}

// Summary tallies the collected results.
func (r *Report) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s Summary
	for _, res := range r.results {
		switch res.Status {
		case ResultSucceeded:
			s.Succeeded++
		case ResultFailed:
			s.Failed++
		case ResultSkipped:
			s.Skipped++
		case ResultDispatched:
			s.Dispatched++
		}
	}
	return s
}

// displayName renders an operation's accumulated names for reporting.
func displayName(meta *OpMeta) string {
	names := make([]string, 0, len(meta.Names))
	for name := range meta.Names {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, " / ")
}
