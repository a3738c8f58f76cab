// Package stores persists run history: one record per run plus one record
// per host/operation result.
package stores

import (
	"context"
	"time"
)

// RunStatus is the terminal status of a stored run.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one stored execution run.
type Run struct {
	ID          string     `json:"id"`
	Status      RunStatus  `json:"status"`
	Hosts       int        `json:"hosts"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	Skipped     int        `json:"skipped"`
	Error       *string    `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// HostResult is one stored host/operation outcome.
type HostResult struct {
	ID        int64         `json:"id"`
	RunID     string        `json:"run_id"`
	Host      string        `json:"host"`
	OpHash    string        `json:"op_hash"`
	OpName    string        `json:"op_name"`
	Status    string        `json:"status"`
	ExitCode  int           `json:"exit_code"`
	Output    string        `json:"output"`
	Error     *string       `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store is the persistence interface consumed by the CLI.
type Store interface {
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error

	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)

	AppendHostResult(ctx context.Context, result *HostResult) error
	ListHostResults(ctx context.Context, runID string) ([]*HostResult, error)
}
