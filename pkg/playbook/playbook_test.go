package playbook

import (
	"testing"
	"time"

	"github.com/opsline/opsline/pkg/ops/files"
	"github.com/opsline/opsline/pkg/ops/server"
)

func TestParsePlaybook(t *testing.T) {
	data := []byte(`
tasks:
  - name: create log file
    module: files.file
    params:
      path: /var/log/app.log
      user: app
      group: app
      mode: "644"
    sudo: true
  - name: upload config
    module: files.put
    params:
      local: files/app.conf
      remote: /etc/app.conf
  - module: server.shell
    params:
      commands:
        - systemctl restart app
    su_user: root
    timeout: 90s
`)

	pb, err := Parse(data)
	if err != nil {
		t.Fatalf("failed to parse playbook: %v", err)
	}

	if len(pb.Tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(pb.Tasks))
	}

	op, err := pb.Tasks[0].Operation()
	if err != nil {
		t.Fatalf("failed to build operation: %v", err)
	}
	file, ok := op.(files.File)
	if !ok {
		t.Fatalf("expected files.File, got %T", op)
	}
	if file.Path != "/var/log/app.log" || file.User != "app" || file.Mode != "644" {
		t.Errorf("unexpected file params: %+v", file)
	}

	opts := pb.Tasks[0].Options()
	if !opts.Sudo {
		t.Error("expected sudo to be set")
	}

	op, err = pb.Tasks[1].Operation()
	if err != nil {
		t.Fatalf("failed to build operation: %v", err)
	}
	put, ok := op.(files.Put)
	if !ok {
		t.Fatalf("expected files.Put, got %T", op)
	}
	if put.Local != "files/app.conf" || put.Remote != "/etc/app.conf" {
		t.Errorf("unexpected put params: %+v", put)
	}

	op, err = pb.Tasks[2].Operation()
	if err != nil {
		t.Fatalf("failed to build operation: %v", err)
	}
	shell, ok := op.(server.Shell)
	if !ok {
		t.Fatalf("expected server.Shell, got %T", op)
	}
	if len(shell.Commands) != 1 || shell.Commands[0] != "systemctl restart app" {
		t.Errorf("unexpected shell commands: %v", shell.Commands)
	}

	opts = pb.Tasks[2].Options()
	if opts.SuUser != "root" {
		t.Errorf("expected su_user root, got %q", opts.SuUser)
	}
	if opts.Timeout != 90*time.Second {
		t.Errorf("expected 90s timeout, got %v", opts.Timeout)
	}
}

func TestParseUnknownModule(t *testing.T) {
	data := []byte(`
tasks:
  - module: apt.packages
    params:
      packages: [nginx]
`)

	if _, err := Parse(data); err == nil {
		t.Error("expected error for unknown module")
	}
}

func TestParseEmptyPlaybook(t *testing.T) {
	if _, err := Parse([]byte("tasks: []")); err == nil {
		t.Error("expected error for empty task list")
	}
}

func TestParseInvalidTimeout(t *testing.T) {
	data := []byte(`
tasks:
  - module: server.shell
    params:
      commands: [uptime]
    timeout: soon
`)

	if _, err := Parse(data); err == nil {
		t.Error("expected error for invalid timeout")
	}
}

func TestParseScriptModule(t *testing.T) {
	data := []byte(`
tasks:
  - module: server.script
    params:
      local: scripts/setup.sh
`)

	pb, err := Parse(data)
	if err != nil {
		t.Fatalf("failed to parse playbook: %v", err)
	}

	op, err := pb.Tasks[0].Operation()
	if err != nil {
		t.Fatalf("failed to build operation: %v", err)
	}
	script, ok := op.(server.Script)
	if !ok {
		t.Fatalf("expected server.Script, got %T", op)
	}
	if script.Local != "scripts/setup.sh" {
		t.Errorf("unexpected script local path: %q", script.Local)
	}
}
