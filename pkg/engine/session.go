package engine

import (
	"context"
	"io"
	"time"

	"github.com/opsline/opsline/pkg/inventory"
)

// CommandResult captures one remote command execution.
type CommandResult struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Session is one live remote execution session. Implementations must be safe
// for sequential use by one worker; the engine never shares a session
// between workers.
type Session interface {
	// Run executes a shell command and returns its result. A nonzero exit
	// status is returned in the result, not as an error; errors indicate
	// transport failure or context expiry.
	Run(ctx context.Context, cmd string) (*CommandResult, error)

	// Upload writes the content to remotePath.
	Upload(ctx context.Context, content io.Reader, remotePath string) error

	Close() error
}

// Provider opens sessions. The engine depends on the remote transport only
// through this seam.
type Provider interface {
	Connect(ctx context.Context, host *inventory.Host) (Session, error)
}
