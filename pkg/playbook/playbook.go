// Package playbook loads YAML task lists and turns them into executable
// operations.
package playbook

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/opsline/opsline/pkg/engine"
	"github.com/opsline/opsline/pkg/ops/files"
	"github.com/opsline/opsline/pkg/ops/server"
)

// Task describes a single task to run. Timeout uses time.ParseDuration
// syntax.
type Task struct {
	Name         string    `yaml:"name"`
	Module       string    `yaml:"module" validate:"required"`
	Params       yaml.Node `yaml:"params"`
	Sudo         bool      `yaml:"sudo,omitempty"`
	SudoUser     string    `yaml:"sudo_user,omitempty"`
	SuUser       string    `yaml:"su_user,omitempty"`
	IgnoreErrors bool      `yaml:"ignore_errors,omitempty"`
	Timeout      string    `yaml:"timeout,omitempty"`
}

// Playbook holds an ordered list of tasks.
type Playbook struct {
	Tasks []Task `yaml:"tasks" validate:"min=1,dive"`
}

var validate = validator.New()

// Load reads and parses a playbook file.
func Load(path string) (*Playbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read playbook: %w", err)
	}
	return Parse(data)
}

// Parse parses playbook YAML.
func Parse(data []byte) (*Playbook, error) {
	var pb Playbook
	if err := yaml.Unmarshal(data, &pb); err != nil {
		return nil, fmt.Errorf("failed to parse playbook: %w", err)
	}

	if err := validate.Struct(&pb); err != nil {
		return nil, fmt.Errorf("invalid playbook: %w", err)
	}

	for i := range pb.Tasks {
		task := &pb.Tasks[i]
		if _, err := buildOperation(task); err != nil {
			return nil, fmt.Errorf("task %d (%s): %w", i, task.Module, err)
		}
		if _, err := task.timeout(); err != nil {
			return nil, fmt.Errorf("task %d (%s): invalid timeout: %w", i, task.Module, err)
		}
	}

	return &pb, nil
}

// Options returns the execution options for a task. The playbook must have
// been parsed successfully, so the timeout is known to be valid.
func (t *Task) Options() engine.OpOptions {
	timeout, _ := t.timeout()
	return engine.OpOptions{
		Sudo:         t.Sudo,
		SudoUser:     t.SudoUser,
		SuUser:       t.SuUser,
		IgnoreErrors: t.IgnoreErrors,
		Timeout:      timeout,
	}
}

func (t *Task) timeout() (time.Duration, error) {
	if t.Timeout == "" {
		return 0, nil
	}
	return time.ParseDuration(t.Timeout)
}

// Operation builds the operation a task describes.
func (t *Task) Operation() (engine.Operation, error) {
	return buildOperation(t)
}

func buildOperation(t *Task) (engine.Operation, error) {
	switch t.Module {
	case "files.file":
		return decode[files.File](t)
	case "files.put":
		return decode[files.Put](t)
	case "files.directory":
		return decode[files.Directory](t)
	case "files.link":
		return decode[files.Link](t)
	case "server.shell":
		return decode[server.Shell](t)
	case "server.script":
		return decode[server.Script](t)
	default:
		return nil, fmt.Errorf("unknown module %q", t.Module)
	}
}

func decode[T engine.Operation](t *Task) (engine.Operation, error) {
	var v T
	if t.Params.Kind != 0 {
		if err := t.Params.Decode(&v); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}
	return v, nil
}
