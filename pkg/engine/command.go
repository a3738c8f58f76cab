package engine

import "fmt"

// Command is one entry in a compiled operation: either a plain shell command
// or a file-transfer directive. Escalation is not baked into commands at
// compile time; the run phase wraps shell commands per the operation's
// metadata at dispatch.
type Command interface {
	fmt.Stringer
	isCommand()
}

// ShellCommand is a plain shell command string.
type ShellCommand string

func (c ShellCommand) isCommand() {}

func (c ShellCommand) String() string { return string(c) }

// FileUpload directs the transfer of a local file to a remote path.
type FileUpload struct {
	Local  string
	Remote string
}

func (c FileUpload) isCommand() {}

func (c FileUpload) String() string {
	return fmt.Sprintf("upload %s -> %s", c.Local, c.Remote)
}
