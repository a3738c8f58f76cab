package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/opsline/opsline/pkg/inventory"
)

// RunOptions selects the iteration mode for one RunOps call.
type RunOptions struct {
	// Serial drains every operation against one host before moving to the
	// next host (host-major order). Used when cross-host progress must never
	// interleave.
	Serial bool

	// NoWait fires each operation at all hosts and proceeds without waiting
	// for completion. Dispatched commands are not tracked afterwards.
	NoWait bool
}

// RunOps drains the declared operations through the live sessions. In the
// default mode operations run one at a time across all hosts in parallel,
// with a completion barrier between operations so operation N+1 never races
// operation N on any host. Within one host, operations always execute in
// declaration order.
func RunOps(ctx context.Context, state *State, opts RunOptions) (*Report, error) {
	report := newReport()

	var err error
	if opts.Serial {
		err = runSerial(ctx, state, report)
	} else {
		err = runParallel(ctx, state, report, opts.NoWait)
	}

	report.finish()
	return report, err
}

// runParallel is the operation-major mode: every host for the current
// operation is dispatched through a bounded worker pool before the engine
// advances.
func runParallel(ctx context.Context, state *State, report *Report, noWait bool) error {
	for _, hash := range state.opOrder {
		meta := state.opMeta[hash]

		var hosts []*inventory.Host
		for _, h := range state.Inventory.ConnectedHosts() {
			if _, ok := state.ops[h.Name][hash]; !ok {
				continue
			}
			if state.isFailed(h.Name) {
				report.append(HostResult{
					Host:   h.Name,
					OpHash: hash,
					OpName: displayName(meta),
					Status: ResultSkipped,
				})
				continue
			}
			hosts = append(hosts, h)
		}
		if len(hosts) == 0 {
			continue
		}

		log.Info().
			Str("op", displayName(meta)).
			Int("hosts", len(hosts)).
			Bool("no_wait", noWait).
			Msg("running operation")

		if noWait {
			for _, h := range hosts {
				report.append(HostResult{
					Host:   h.Name,
					OpHash: hash,
					OpName: displayName(meta),
					Status: ResultDispatched,
				})
				go func(h *inventory.Host) {
					if err := execHostOp(ctx, state, h, hash, meta, nil); err != nil {
						log.Warn().Str("host", h.Name).Err(err).Msg("fire-and-forget command failed")
					}
				}(h)
			}
			continue
		}

		workQueue := make(chan *inventory.Host, len(hosts))
		for _, h := range hosts {
			workQueue <- h
		}
		close(workQueue)

		workerCount := state.Config.Parallel
		if len(hosts) < workerCount {
			workerCount = len(hosts)
		}

		var wg sync.WaitGroup
		for i := 0; i < workerCount; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for h := range workQueue {
					_ = execHostOp(ctx, state, h, hash, meta, report)
				}
			}()
		}
		wg.Wait()

		// Cross-host completion barrier: threshold accounting happens once
		// the whole fleet has finished this operation.
		if err := state.checkThreshold(); err != nil {
			log.Error().Err(err).Msg("execution failure threshold breached")
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return nil
}

// runSerial is the host-major mode: each host drains every operation before
// the next host starts.
func runSerial(ctx context.Context, state *State, report *Report) error {
	for _, h := range state.activeHosts() {
		for _, hash := range state.opOrder {
			meta := state.opMeta[hash]
			if _, ok := state.ops[h.Name][hash]; !ok {
				continue
			}
			if state.isFailed(h.Name) {
				report.append(HostResult{
					Host:   h.Name,
					OpHash: hash,
					OpName: displayName(meta),
					Status: ResultSkipped,
				})
				continue
			}
			_ = execHostOp(ctx, state, h, hash, meta, report)

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		if err := state.checkThreshold(); err != nil {
			log.Error().Err(err).Msg("execution failure threshold breached")
			return err
		}
	}

	return nil
}

// execHostOp runs one compiled operation against one host's session,
// stopping at the first failing command. Failures are tolerated when the
// operation sets ignore-errors; otherwise the host is excluded from the
// remainder of the run and counted against the threshold.
func execHostOp(
	ctx context.Context,
	state *State,
	host *inventory.Host,
	hash string,
	meta *OpMeta,
	report *Report,
) error {
	sess, ok := state.Session(host.Name)
	if !ok {
		return &ExecError{Host: host.Name, Op: displayName(meta), Err: fmt.Errorf("no live session")}
	}
	compiled := state.ops[host.Name][hash]

	start := time.Now()
	result := HostResult{
		Host:   host.Name,
		OpHash: hash,
		OpName: displayName(meta),
		Status: ResultSucceeded,
	}

	var opErr error
	for _, cmd := range compiled.Commands {
		var (
			cmdResult *CommandResult
			err       error
		)
		switch c := cmd.(type) {
		case ShellCommand:
			cmdResult, err = execShell(ctx, state, sess, host, hash, string(c), meta)
		case FileUpload:
			cmdResult, err = execUpload(ctx, state, sess, host, hash, c, meta)
		default:
			err = &ExecError{Host: host.Name, Op: displayName(meta),
				Err: fmt.Errorf("unknown command type %T", cmd)}
		}
		if cmdResult != nil {
			result.Commands = append(result.Commands, *cmdResult)
		}
		if err != nil {
			opErr = err
			break
		}
	}
	result.Duration = time.Since(start)

	if opErr != nil {
		result.Status = ResultFailed
		result.Err = opErr
		if meta.IgnoreErrors {
			log.Warn().Str("host", host.Name).Err(opErr).Msg("operation failed, ignored")
		} else {
			log.Error().Str("host", host.Name).Err(opErr).Msg("operation failed")
			state.markFailed(host.Name)
		}
	}

	if state.metrics != nil {
		state.metrics.OpExecuted(string(result.Status), result.Duration)
	}
	if report != nil {
		report.append(result)
	}
	return opErr
}

// execShell runs one shell command with escalation wrapping and the
// effective timeout.
func execShell(
	ctx context.Context,
	state *State,
	sess Session,
	host *inventory.Host,
	hash string,
	cmd string,
	meta *OpMeta,
) (*CommandResult, error) {
	wrapped := escalate(cmd, meta)

	timeout := state.Config.CommandTimeout
	if meta.Timeout > 0 {
		timeout = meta.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	log.Debug().Str("host", host.Name).Str("command", wrapped).Msg("executing")

	result, err := sess.Run(runCtx, wrapped)
	if err != nil {
		return result, &ExecError{Host: host.Name, Op: displayName(meta), Command: cmd, Err: err}
	}
	if result.ExitCode != 0 {
		return result, &ExecError{
			Host:     host.Name,
			Op:       displayName(meta),
			Command:  cmd,
			ExitCode: result.ExitCode,
		}
	}
	return result, nil
}

// execUpload pushes a local file to the remote path. Escalated uploads go
// through an unprivileged temp path followed by a privileged move, since
// the transfer channel itself runs as the login user.
func execUpload(
	ctx context.Context,
	state *State,
	sess Session,
	host *inventory.Host,
	hash string,
	upload FileUpload,
	meta *OpMeta,
) (*CommandResult, error) {
	f, err := os.Open(upload.Local)
	if err != nil {
		return nil, &ExecError{Host: host.Name, Op: displayName(meta),
			Err: fmt.Errorf("failed to open %s: %w", upload.Local, err)}
	}
	defer f.Close()

	timeout := state.Config.CommandTimeout
	if meta.Timeout > 0 {
		timeout = meta.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	escalated := meta.Sudo || meta.SudoUser != "" || meta.SuUser != ""
	target := upload.Remote
	if escalated {
		target = fmt.Sprintf("/tmp/opsline-%s-%s", hash[:8], filepath.Base(upload.Remote))
	}

	log.Debug().Str("host", host.Name).Str("local", upload.Local).Str("remote", target).Msg("uploading")

	if err := sess.Upload(runCtx, f, target); err != nil {
		return nil, &ExecError{Host: host.Name, Op: displayName(meta),
			Command: upload.String(), Err: err}
	}

	if !escalated {
		return &CommandResult{Command: upload.String()}, nil
	}

	move := fmt.Sprintf("mv %s %s", target, upload.Remote)
	return execShell(ctx, state, sess, host, hash, move, meta)
}

// escalate wraps a shell command per the operation's escalation metadata.
// su takes precedence when both su and sudo are somehow set.
func escalate(cmd string, meta *OpMeta) string {
	switch {
	case meta.SuUser != "":
		return fmt.Sprintf("su %s -c '%s'", meta.SuUser, quoteSingle(cmd))
	case meta.SudoUser != "":
		return fmt.Sprintf("sudo -H -n -u %s -- sh -c '%s'", meta.SudoUser, quoteSingle(cmd))
	case meta.Sudo:
		return fmt.Sprintf("sudo -H -n -- sh -c '%s'", quoteSingle(cmd))
	}
	return cmd
}

// quoteSingle escapes single quotes for embedding inside a single-quoted
// shell string.
func quoteSingle(s string) string {
	return strings.ReplaceAll(s, `'`, `'"'"'`)
}
