package engine

import (
	"errors"
	"fmt"
)

// ConnectError records a failed connection attempt for one host. It is
// absorbed into the state's failure accounting and never aborts the run on
// its own.
type ConnectError struct {
	Host string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to connect to %s: %v", e.Host, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// CompileError signals that an operation failed to produce commands for a
// host. Compilation failures are logic or configuration errors, so they are
// never tolerated by ignore-errors and always surface to the caller.
type CompileError struct {
	Host string
	Op   string
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("failed to compile %s for %s: %v", e.Op, e.Host, e.Err)
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

// ExecError records a failed command or transfer on one host: nonzero exit,
// transport failure or timeout. Tolerated per host when the operation sets
// ignore-errors, otherwise counted against the failure threshold.
type ExecError struct {
	Host     string
	Op       string
	Command  string
	ExitCode int
	Err      error
}

func (e *ExecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed on %s: %v", e.Op, e.Host, e.Err)
	}
	return fmt.Sprintf("%s failed on %s: exit status %d", e.Op, e.Host, e.ExitCode)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// ThresholdError aborts the whole run when accumulated failures exceed the
// configured fail percentage. It is raised at most once per run.
type ThresholdError struct {
	Threshold int
	Failed    int
	Total     int
	Percent   float64
}

func (e *ThresholdError) Error() string {
	return fmt.Sprintf("over %d%% of hosts failed (%d/%d, %.0f%%)",
		e.Threshold, e.Failed, e.Total, e.Percent)
}

// IsThreshold reports whether err is (or wraps) a ThresholdError.
func IsThreshold(err error) bool {
	var t *ThresholdError
	return errors.As(err, &t)
}

// IsCompile reports whether err is (or wraps) a CompileError.
func IsCompile(err error) bool {
	var c *CompileError
	return errors.As(err, &c)
}
