package files

import (
	"testing"

	"github.com/opsline/opsline/pkg/engine"
)

func commandStrings(t *testing.T, op engine.Operation) []string {
	t.Helper()
	commands, err := op.Compile(nil)
	if err != nil {
		t.Fatalf("failed to compile %s: %v", op.Name(), err)
	}
	out := make([]string, 0, len(commands))
	for _, c := range commands {
		out = append(out, c.String())
	}
	return out
}

func TestFileCommandSequence(t *testing.T) {
	op := File{Path: "/var/log/app.log", User: "app", Group: "app", Mode: "644"}

	got := commandStrings(t, op)
	want := []string{
		"touch /var/log/app.log",
		"chmod 644 /var/log/app.log",
		"chown app:app /var/log/app.log",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d commands, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestFileMinimal(t *testing.T) {
	got := commandStrings(t, File{Path: "/tmp/marker"})
	if len(got) != 1 || got[0] != "touch /tmp/marker" {
		t.Errorf("expected bare touch, got %v", got)
	}
}

func TestFileOwnershipVariants(t *testing.T) {
	tests := []struct {
		name string
		op   File
		want string
	}{
		{"user only", File{Path: "/x", User: "app"}, "chown app /x"},
		{"group only", File{Path: "/x", Group: "ops"}, "chown :ops /x"},
		{"both", File{Path: "/x", User: "app", Group: "ops"}, "chown app:ops /x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := commandStrings(t, tt.op)
			if got[len(got)-1] != tt.want {
				t.Errorf("expected %q, got %v", tt.want, got)
			}
		})
	}
}

func TestFileRequiresPath(t *testing.T) {
	if _, err := (File{}).Compile(nil); err == nil {
		t.Error("expected error for missing path")
	}
}

func TestPutCompilesToSingleUpload(t *testing.T) {
	op := Put{Local: "files/file.txt", Remote: "/home/deploy/file.txt"}

	commands, err := op.Compile(nil)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}
	if len(commands) != 1 {
		t.Fatalf("expected 1 command, got %d", len(commands))
	}
	upload, ok := commands[0].(engine.FileUpload)
	if !ok {
		t.Fatalf("expected FileUpload, got %T", commands[0])
	}
	if upload.Local != "files/file.txt" || upload.Remote != "/home/deploy/file.txt" {
		t.Errorf("unexpected upload %+v", upload)
	}
}

func TestPutRequiresBothPaths(t *testing.T) {
	if _, err := (Put{Local: "only-local"}).Compile(nil); err == nil {
		t.Error("expected error for missing remote")
	}
	if _, err := (Put{Remote: "/only-remote"}).Compile(nil); err == nil {
		t.Error("expected error for missing local")
	}
}

func TestDirectoryCommandSequence(t *testing.T) {
	op := Directory{Path: "/srv/app", User: "app", Mode: "755"}

	got := commandStrings(t, op)
	want := []string{
		"mkdir -p /srv/app",
		"chmod 755 /srv/app",
		"chown app /srv/app",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d commands, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestLinkCommand(t *testing.T) {
	got := commandStrings(t, Link{Source: "/opt/app-1.2", Target: "/opt/app"})
	if len(got) != 1 || got[0] != "ln -sf /opt/app-1.2 /opt/app" {
		t.Errorf("unexpected commands %v", got)
	}

	if _, err := (Link{Source: "/opt/app-1.2"}).Compile(nil); err == nil {
		t.Error("expected error for missing target")
	}
}

func TestOperationNames(t *testing.T) {
	names := map[string]string{
		File{}.Name():      "Files/File",
		Put{}.Name():       "Files/Put",
		Directory{}.Name(): "Files/Directory",
		Link{}.Name():      "Files/Link",
	}
	for got, want := range names {
		if got != want {
			t.Errorf("expected name %q, got %q", want, got)
		}
	}
}
