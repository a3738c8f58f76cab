// Package files provides operations for managing remote files and
// directories.
package files

import (
	"fmt"

	"github.com/opsline/opsline/pkg/engine"
	"github.com/opsline/opsline/pkg/inventory"
)

// File ensures a file exists with the given ownership and mode.
type File struct {
	Path  string `json:"path"`
	User  string `json:"user,omitempty"`
	Group string `json:"group,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

func (f File) Name() string { return "Files/File" }

func (f File) Compile(host *inventory.Host) ([]engine.Command, error) {
	if f.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	commands := []engine.Command{
		engine.ShellCommand("touch " + f.Path),
	}
	if f.Mode != "" {
		commands = append(commands, engine.ShellCommand(fmt.Sprintf("chmod %s %s", f.Mode, f.Path)))
	}
	if chown := chownCommand(f.User, f.Group, f.Path); chown != "" {
		commands = append(commands, engine.ShellCommand(chown))
	}
	return commands, nil
}

// Put uploads a local file to a remote path.
type Put struct {
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

func (p Put) Name() string { return "Files/Put" }

func (p Put) Compile(host *inventory.Host) ([]engine.Command, error) {
	if p.Local == "" || p.Remote == "" {
		return nil, fmt.Errorf("local and remote are required")
	}
	return []engine.Command{
		engine.FileUpload{Local: p.Local, Remote: p.Remote},
	}, nil
}

// Directory ensures a directory exists with the given ownership and mode.
type Directory struct {
	Path  string `json:"path"`
	User  string `json:"user,omitempty"`
	Group string `json:"group,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

func (d Directory) Name() string { return "Files/Directory" }

func (d Directory) Compile(host *inventory.Host) ([]engine.Command, error) {
	if d.Path == "" {
		return nil, fmt.Errorf("path is required")
	}

	commands := []engine.Command{
		engine.ShellCommand("mkdir -p " + d.Path),
	}
	if d.Mode != "" {
		commands = append(commands, engine.ShellCommand(fmt.Sprintf("chmod %s %s", d.Mode, d.Path)))
	}
	if chown := chownCommand(d.User, d.Group, d.Path); chown != "" {
		commands = append(commands, engine.ShellCommand(chown))
	}
	return commands, nil
}

// Link ensures a symlink at Target pointing to Source.
type Link struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

func (l Link) Name() string { return "Files/Link" }

func (l Link) Compile(host *inventory.Host) ([]engine.Command, error) {
	if l.Source == "" || l.Target == "" {
		return nil, fmt.Errorf("source and target are required")
	}
	return []engine.Command{
		engine.ShellCommand(fmt.Sprintf("ln -sf %s %s", l.Source, l.Target)),
	}, nil
}

func chownCommand(user, group, path string) string {
	switch {
	case user != "" && group != "":
		return fmt.Sprintf("chown %s:%s %s", user, group, path)
	case user != "":
		return fmt.Sprintf("chown %s %s", user, path)
	case group != "":
		return fmt.Sprintf("chown :%s %s", group, path)
	}
	return ""
}
