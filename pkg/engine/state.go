package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/opsline/opsline/pkg/config"
	"github.com/opsline/opsline/pkg/inventory"
	"github.com/opsline/opsline/pkg/telemetry"
)

// OpMeta is the per-operation metadata shared by every host executing it.
// Escalation and tolerance live here, not in the compiled commands.
type OpMeta struct {
	// Names accumulates the human-readable names of every declaration that
	// collapsed into this operation's identity hash.
	Names map[string]struct{}

	Sudo         bool
	SudoUser     string
	SuUser       string
	IgnoreErrors bool

	// Timeout overrides the config command timeout for this operation when
	// nonzero.
	Timeout time.Duration
}

// CompiledOp is one host's compiled command sequence for one operation.
type CompiledOp struct {
	Commands []Command
}

// State is the mutable orchestration context, exclusively owned by one run.
// The compile phase writes opOrder/opMeta/ops single-threaded; the run phase
// fans reads out across workers, each touching only its own host's subtree.
// The failure counter is the only cross-worker mutable value.
type State struct {
	Inventory *inventory.Inventory
	Config    *config.Config

	provider Provider
	metrics  *telemetry.Metrics

	opOrder []string
	opMeta  map[string]*OpMeta
	ops     map[string]map[string]*CompiledOp

	mu       sync.Mutex
	sessions map[string]Session
	failed   map[string]struct{}

	failCount atomic.Int64
}

// NewState creates the run state for an inventory, config and session
// provider.
func NewState(inv *inventory.Inventory, cfg *config.Config, provider Provider) *State {
	return &State{
		Inventory: inv,
		Config:    cfg,
		provider:  provider,
		opMeta:    make(map[string]*OpMeta),
		ops:       make(map[string]map[string]*CompiledOp),
		sessions:  make(map[string]Session),
		failed:    make(map[string]struct{}),
	}
}

// WithMetrics attaches a metrics collector to the state.
func (s *State) WithMetrics(m *telemetry.Metrics) *State {
	s.metrics = m
	return s
}

// OpOrder returns the ordered identity hashes of all declared operations.
func (s *State) OpOrder() []string {
	return append([]string{}, s.opOrder...)
}

// Meta returns the metadata for an operation hash.
func (s *State) Meta(hash string) (*OpMeta, bool) {
	m, ok := s.opMeta[hash]
	return m, ok
}

// HostOps returns one host's compiled command table.
func (s *State) HostOps(host string) map[string]*CompiledOp {
	return s.ops[host]
}

// Session returns the live session for a host, if any.
func (s *State) Session(host string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[host]
	return sess, ok
}

// addSession records a live session and marks the host connected.
func (s *State) addSession(h *inventory.Host, sess Session) {
	s.mu.Lock()
	s.sessions[h.Name] = sess
	if _, ok := s.ops[h.Name]; !ok {
		s.ops[h.Name] = make(map[string]*CompiledOp)
	}
	s.mu.Unlock()
	s.Inventory.MarkConnected(h)
}

// markFailed excludes a host from the remainder of the run and bumps the
// shared failure counter.
func (s *State) markFailed(host string) {
	s.mu.Lock()
	_, already := s.failed[host]
	if !already {
		s.failed[host] = struct{}{}
	}
	s.mu.Unlock()
	if !already {
		s.failCount.Add(1)
	}
}

// isFailed reports whether a host has been excluded.
func (s *State) isFailed(host string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.failed[host]
	return ok
}

// FailedHosts returns the names of hosts excluded so far.
func (s *State) FailedHosts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.failed))
	for name := range s.failed {
		out = append(out, name)
	}
	return out
}

// checkThreshold compares accumulated failures against the configured fail
// percentage. Zero hosts is treated as zero percent failed.
func (s *State) checkThreshold() error {
	total := s.Inventory.Len()
	if total == 0 {
		return nil
	}
	failed := int(s.failCount.Load())
	percent := float64(failed) / float64(total) * 100
	if percent > float64(s.Config.FailPercent) {
		return &ThresholdError{
			Threshold: s.Config.FailPercent,
			Failed:    failed,
			Total:     total,
			Percent:   percent,
		}
	}
	return nil
}

// activeHosts returns connected hosts not yet excluded by failure.
func (s *State) activeHosts() []*inventory.Host {
	hosts := s.Inventory.ConnectedHosts()
	out := make([]*inventory.Host, 0, len(hosts))
	for _, h := range hosts {
		if !s.isFailed(h.Name) {
			out = append(out, h)
		}
	}
	return out
}

// Close tears down every live session.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, sess := range s.sessions {
		_ = sess.Close()
		delete(s.sessions, name)
	}
}
