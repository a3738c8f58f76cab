package server

import (
	"strings"
	"testing"

	"github.com/opsline/opsline/pkg/engine"
)

func TestShellPreservesCommandOrder(t *testing.T) {
	op := Shell{Commands: []string{"apt-get update", "apt-get install -y nginx"}}

	commands, err := op.Compile(nil)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}
	if len(commands) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(commands))
	}
	if commands[0].String() != "apt-get update" {
		t.Errorf("unexpected first command %q", commands[0].String())
	}
	if commands[1].String() != "apt-get install -y nginx" {
		t.Errorf("unexpected second command %q", commands[1].String())
	}
}

func TestShellRequiresCommands(t *testing.T) {
	if _, err := (Shell{}).Compile(nil); err == nil {
		t.Error("expected error for empty command list")
	}
}

func TestScriptUploadExecuteCleanup(t *testing.T) {
	op := Script{Local: "scripts/bootstrap.sh"}

	commands, err := op.Compile(nil)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}
	if len(commands) != 4 {
		t.Fatalf("expected upload, chmod, exec, rm; got %d commands", len(commands))
	}

	upload, ok := commands[0].(engine.FileUpload)
	if !ok {
		t.Fatalf("expected FileUpload first, got %T", commands[0])
	}
	if upload.Local != "scripts/bootstrap.sh" {
		t.Errorf("unexpected local path %q", upload.Local)
	}
	if !strings.HasPrefix(upload.Remote, "/tmp/opsline-") || !strings.HasSuffix(upload.Remote, "-bootstrap.sh") {
		t.Errorf("unexpected remote path %q", upload.Remote)
	}

	if commands[1].String() != "chmod +x "+upload.Remote {
		t.Errorf("unexpected chmod %q", commands[1].String())
	}
	if commands[2].String() != upload.Remote {
		t.Errorf("unexpected exec %q", commands[2].String())
	}
	if commands[3].String() != "rm -f "+upload.Remote {
		t.Errorf("unexpected cleanup %q", commands[3].String())
	}
}

func TestScriptRemotePathDeterministic(t *testing.T) {
	op := Script{Local: "scripts/bootstrap.sh"}

	first, err := op.Compile(nil)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}
	second, err := op.Compile(nil)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}

	if first[0].(engine.FileUpload).Remote != second[0].(engine.FileUpload).Remote {
		t.Error("remote path must be stable across compilations")
	}

	other, err := Script{Local: "scripts/other.sh"}.Compile(nil)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}
	if first[0].(engine.FileUpload).Remote == other[0].(engine.FileUpload).Remote {
		t.Error("different scripts must not collide on the remote path")
	}
}

func TestScriptRequiresLocal(t *testing.T) {
	if _, err := (Script{}).Compile(nil); err == nil {
		t.Error("expected error for missing script path")
	}
}
