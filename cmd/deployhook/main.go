package main

import (
	"fmt"
	"os"

	"deployhook/internal/config"

	"github.com/spf13/cobra"
)

var version = "dev" // Will be set during build

var (
	configFile string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "deployhook",
	Short: "Webhook receiver that triggers a deploy script",
	Long: `Deployhook listens for GitHub push webhooks, verifies their HMAC-SHA256
signature and launches a detached deploy script when the configured branch is pushed.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Custom usage template that encourages 'help' subcommand pattern
const usageTemplate = `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

Additional Commands:{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} help [command]" for more information about a command.{{end}}
`

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	// Set custom usage template to encourage 'help' subcommand pattern
	rootCmd.SetUsageTemplate(usageTemplate)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", os.Getenv("DEPLOYHOOK_CONFIG_FILE"), "Path to deployhook.yaml (default: search ./, ./config/, /etc/deployhook/)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Path to .env file(s), comma separated (default: ENV_FILE or ./.env)")

	// Register subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(unitCmd)
}

// loadConfig loads .env files, then defaults, the config file and the environment.
// The result is not validated.
func loadConfig() (*config.Config, string, error) {
	if err := config.LoadDotenv(envFile); err != nil {
		return nil, "", err
	}
	return config.Load(configFile)
}
