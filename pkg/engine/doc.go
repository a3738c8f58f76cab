// Package engine implements the execution core: it compiles declared
// operations into per-host command sequences and drains them through live
// remote sessions.
//
// # Overview
//
// A run proceeds through three phases:
//
//  1. Connect - establish a session for every inventory host (ConnectAll)
//  2. Compile - declare operations, deduplicated by identity (AddOp)
//  3. Execute - drain the run order through the sessions (RunOps)
//
// Operations are identified by a digest of their name, arguments and
// escalation settings. Declaring the same operation twice collapses into
// one entry in the run order; changing any argument or the sudo/su settings
// produces a distinct entry.
//
// # Core Domain Types
//
//   - State: the mutable context for one run, owning sessions and results
//   - Operation: a declarative action compiled per host into Commands
//   - Command: one shell command or file upload in a compiled sequence
//   - OpMeta: shared escalation and tolerance settings per operation
//   - Report: the per-host per-operation outcomes of one run
//
// # Execution Modes
//
// The default mode is operation-major: each operation runs across all hosts
// through a bounded worker pool, with a completion barrier before the next
// operation starts. Serial mode is host-major: one host drains every
// operation before the next host begins. NoWait dispatches commands without
// tracking completion.
//
// # Failure Handling
//
// Hosts fail individually: a connection or command failure excludes that
// host from the remainder of the run. The run itself aborts only when the
// fraction of failed hosts exceeds the configured fail percentage, checked
// after the connect phase and at every operation barrier.
//
// # Transports
//
// The engine reaches remote hosts only through the Provider and Session
// interfaces. The production transport is SSH with SFTP transfer; tests
// substitute in-memory fakes.
package engine
