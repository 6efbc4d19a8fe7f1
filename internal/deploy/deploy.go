// Package deploy launches the external deploy action for accepted webhooks.
package deploy

import (
	"fmt"
	"time"

	"deployhook/internal/config"
	"deployhook/internal/security"
	"deployhook/pkg/cmdutil"

	"github.com/google/uuid"
)

// Trigger describes one accepted webhook delivery.
type Trigger struct {
	ID         string
	Ref        string
	Commit     string
	DeliveryID string
	Event      string
}

// NewTrigger creates a trigger with a fresh deploy ID.
func NewTrigger(ref, commit, deliveryID, event string) Trigger {
	return Trigger{
		ID:         uuid.NewString(),
		Ref:        ref,
		Commit:     commit,
		DeliveryID: deliveryID,
		Event:      event,
	}
}

// Launcher starts the deploy command as a detached process whose output is
// appended to the deploy log.
type Launcher struct {
	command []string
	dir     string
	logPath string
}

// NewLauncher builds a launcher from the deploy settings in cfg.
func NewLauncher(cfg *config.Config) (*Launcher, error) {
	command, err := cfg.DeployArgs()
	if err != nil {
		return nil, fmt.Errorf("invalid deploy command: %w", err)
	}
	return &Launcher{
		command: command,
		dir:     cfg.DeployDir,
		logPath: cfg.DeployLog,
	}, nil
}

// Command returns the formatted deploy command line.
func (l *Launcher) Command() string {
	return cmdutil.FormatCommand(l.command)
}

// Launch starts the deploy command and returns as soon as the process exists.
// The log handle is only held for the duration of the call; the child keeps
// its own descriptor.
func (l *Launcher) Launch(t Trigger) (*cmdutil.Process, error) {
	logFile, err := security.OpenAppendFile(l.logPath, security.PermLogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open deploy log: %w", err)
	}
	defer logFile.Close()

	fmt.Fprintf(logFile, "==> %s deploy %s ref=%q commit=%q\n",
		time.Now().UTC().Format(time.RFC3339), t.ID, t.Ref, t.Commit)

	proc, err := cmdutil.Start(cmdutil.StartOptions{
		Dir:    l.dir,
		Stdout: logFile,
		Stderr: logFile,
		Detach: true,
	}, l.command)
	if err != nil {
		fmt.Fprintf(logFile, "==> deploy %s failed to start: %v\n", t.ID, err)
		return nil, err
	}

	return proc, nil
}
