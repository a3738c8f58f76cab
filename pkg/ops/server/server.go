// Package server provides operations for running arbitrary commands and
// scripts on remote hosts.
package server

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/opsline/opsline/pkg/engine"
	"github.com/opsline/opsline/pkg/inventory"
)

// Shell runs raw shell commands in order.
type Shell struct {
	Commands []string `json:"commands"`
}

func (s Shell) Name() string { return "Server/Shell" }

func (s Shell) Compile(host *inventory.Host) ([]engine.Command, error) {
	if len(s.Commands) == 0 {
		return nil, fmt.Errorf("at least one command is required")
	}
	commands := make([]engine.Command, 0, len(s.Commands))
	for _, cmd := range s.Commands {
		commands = append(commands, engine.ShellCommand(cmd))
	}
	return commands, nil
}

// Script uploads a local script and executes it remotely, removing it
// afterwards.
type Script struct {
	Local string `json:"local"`
}

func (s Script) Name() string { return "Server/Script" }

func (s Script) Compile(host *inventory.Host) ([]engine.Command, error) {
	if s.Local == "" {
		return nil, fmt.Errorf("local script path is required")
	}

	// Temp path must be deterministic so compilation stays pure.
	sum := sha1.Sum([]byte(s.Local))
	remote := fmt.Sprintf("/tmp/opsline-%s-%s", hex.EncodeToString(sum[:4]), filepath.Base(s.Local))

	return []engine.Command{
		engine.FileUpload{Local: s.Local, Remote: remote},
		engine.ShellCommand("chmod +x " + remote),
		engine.ShellCommand(remote),
		engine.ShellCommand("rm -f " + remote),
	}, nil
}
