package cmdutil

import (
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/kballard/go-shellquote"
)

// StartOptions configures a background process launch.
type StartOptions struct {
	// Dir is the working directory for the command.
	// If empty, the caller's working directory is used.
	Dir string

	// Env contains environment variables for the command.
	// If nil, the process inherits the caller's environment.
	Env []string

	// Stdout and Stderr receive the process output.
	// When they are *os.File values the descriptor is handed to the child directly,
	// so the caller may close its own handle as soon as Start returns.
	Stdout io.Writer
	Stderr io.Writer

	// Detach places the process in its own session so it survives the
	// caller's exit and does not receive the caller's terminal signals.
	Detach bool
}

// Process describes a launched background process.
type Process struct {
	// PID is the operating system process ID.
	PID int

	// Command is the formatted command line, for logging.
	Command string
}

// Start launches a command without waiting for it to finish.
// The exit status is collected on a background goroutine only so the child
// does not linger as a zombie; it is discarded.
func Start(opts StartOptions, cmdParts []string) (*Process, error) {
	if len(cmdParts) == 0 {
		return nil, fmt.Errorf("empty command")
	}

	cmd := exec.Command(cmdParts[0], cmdParts[1:]...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	if opts.Detach {
		cmd.SysProcAttr = detachedAttr()
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", FormatCommand(cmdParts), err)
	}

	go func() {
		_ = cmd.Wait()
	}()

	return &Process{
		PID:     cmd.Process.Pid,
		Command: FormatCommand(cmdParts),
	}, nil
}

// ParseCommandString parses a shell-quoted command string into parts.
//
// Example:
//
//	"bash \"/opt/my app/deploy.sh\"" -> ["bash", "/opt/my app/deploy.sh"]
func ParseCommandString(cmdStr string) ([]string, error) {
	parts, err := shellquote.Split(cmdStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse command string: %w", err)
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty command string")
	}
	return parts, nil
}

// FormatCommand formats command parts into a readable string for logging.
// Arguments containing whitespace or quotes are shell-quoted.
func FormatCommand(cmdParts []string) string {
	if len(cmdParts) == 0 {
		return "<empty command>"
	}

	quoted := make([]string, len(cmdParts))
	for i, part := range cmdParts {
		if part == "" || strings.ContainsAny(part, " \t\n\"'") {
			quoted[i] = shellquote.Join(part)
		} else {
			quoted[i] = part
		}
	}

	return strings.Join(quoted, " ")
}
