package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"deployhook/pkg/fileutil"
	"deployhook/pkg/templates"

	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
)

var unitFlags struct {
	user       string
	group      string
	workingDir string
	envFile    string
}

var unitCmd = &cobra.Command{
	Use:   "unit",
	Short: "Print a systemd unit for the receiver",
	Long: `Print a systemd service unit that runs "deployhook serve".

The unit uses KillMode=process so deploy scripts started by the receiver keep running
when the service is restarted or stopped.`,
	Example: `  deployhook unit --user deploy --config /etc/deployhook/deployhook.yaml \
    | sudo tee /etc/systemd/system/deployhook.service`,
	Args: cobra.NoArgs,
	RunE: runUnit,
}

func init() {
	f := unitCmd.Flags()
	f.StringVar(&unitFlags.user, "user", "", "User the service runs as (default: current user)")
	f.StringVar(&unitFlags.group, "group", "", "Group the service runs as")
	f.StringVar(&unitFlags.workingDir, "working-dir", "", "Working directory (default: directory of the binary)")
	f.StringVar(&unitFlags.envFile, "environment-file", "", "EnvironmentFile holding WEBHOOK_SECRET and overrides")
}

func runUnit(cmd *cobra.Command, args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}

	svcUser := unitFlags.user
	if svcUser == "" {
		current, err := user.Current()
		if err != nil {
			return fmt.Errorf("failed to determine current user: %w", err)
		}
		svcUser = current.Username
	}

	workingDir := unitFlags.workingDir
	if workingDir == "" {
		workingDir = fileutil.ExecutableDir()
	}

	execArgs := []string{exe, "serve"}
	if configFile != "" {
		abs, err := filepath.Abs(configFile)
		if err != nil {
			return fmt.Errorf("invalid config path: %w", err)
		}
		execArgs = append(execArgs, "--config", abs)
	}

	unit, err := templates.RenderSystemdService(templates.SystemdService{
		User:            svcUser,
		Group:           unitFlags.group,
		WorkingDir:      workingDir,
		EnvironmentFile: unitFlags.envFile,
		ExecStart:       shellquote.Join(execArgs...),
	})
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), unit)
	return nil
}
