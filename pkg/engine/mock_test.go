package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/opsline/opsline/pkg/config"
	"github.com/opsline/opsline/pkg/inventory"
)

// mockSession records every command and upload it receives.
type mockSession struct {
	mu       sync.Mutex
	host     string
	commands []string
	uploads  map[string]string
	closed   bool

	// failCommands maps a command substring to the exit code it produces.
	failCommands map[string]int
	uploadErr    error

	// record, when set, receives "host: command" lines across all sessions
	// of one provider in dispatch order.
	record *commandRecord
}

func (s *mockSession) Run(_ context.Context, cmd string) (*CommandResult, error) {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()

	if s.record != nil {
		s.record.append(s.host + ": " + cmd)
	}

	for substr, code := range s.failCommands {
		if strings.Contains(cmd, substr) {
			return &CommandResult{Command: cmd, ExitCode: code, Stderr: "command failed"}, nil
		}
	}
	return &CommandResult{Command: cmd, Stdout: "ok"}, nil
}

func (s *mockSession) Upload(_ context.Context, content io.Reader, remotePath string) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.uploads[remotePath] = string(data)
	s.mu.Unlock()
	return nil
}

func (s *mockSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *mockSession) commandList() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.commands...)
}

// commandRecord is a cross-session dispatch log.
type commandRecord struct {
	mu    sync.Mutex
	lines []string
}

func (r *commandRecord) append(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

func (r *commandRecord) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.lines...)
}

// mockProvider hands out mockSessions and optionally refuses some hosts.
type mockProvider struct {
	mu           sync.Mutex
	failHosts    map[string]bool
	failCommands map[string]int
	sessions     map[string]*mockSession
	record       *commandRecord
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		failHosts:    make(map[string]bool),
		failCommands: make(map[string]int),
		sessions:     make(map[string]*mockSession),
		record:       &commandRecord{},
	}
}

func (p *mockProvider) Connect(_ context.Context, host *inventory.Host) (Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failHosts[host.Name] {
		return nil, fmt.Errorf("connection refused")
	}
	sess := &mockSession{
		host:         host.Name,
		uploads:      make(map[string]string),
		failCommands: p.failCommands,
		record:       p.record,
	}
	p.sessions[host.Name] = sess
	return sess, nil
}

func (p *mockProvider) session(host string) *mockSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessions[host]
}

// testOp is a minimal operation with a fixed command list.
type testOp struct {
	OpName string   `json:"op_name"`
	Cmds   []string `json:"cmds"`
	Upload *FileUpload
	Fail   bool `json:"-"`
}

func (o testOp) Name() string { return o.OpName }

func (o testOp) Compile(_ *inventory.Host) ([]Command, error) {
	if o.Fail {
		return nil, fmt.Errorf("compile rejected")
	}
	out := make([]Command, 0, len(o.Cmds)+1)
	for _, c := range o.Cmds {
		out = append(out, ShellCommand(c))
	}
	if o.Upload != nil {
		out = append(out, *o.Upload)
	}
	return out, nil
}

// newTestState builds a state over named hosts, not yet connected.
func newTestState(t *testing.T, cfg *config.Config, hostNames ...string) (*State, *mockProvider) {
	t.Helper()

	specs := make([]inventory.HostSpec, 0, len(hostNames))
	for _, name := range hostNames {
		specs = append(specs, inventory.HostSpec{Name: name})
	}
	inv, err := inventory.New(specs, nil, nil)
	if err != nil {
		t.Fatalf("failed to build inventory: %v", err)
	}

	if cfg == nil {
		cfg = config.Default()
	}
	provider := newMockProvider()
	return NewState(inv, cfg, provider), provider
}
