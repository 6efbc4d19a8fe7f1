package main

import (
	"fmt"
	"io"
	"os"

	"deployhook/internal/server"

	"github.com/spf13/cobra"
)

var signSecret string

var signCmd = &cobra.Command{
	Use:   "sign [FILE]",
	Short: "Print the X-Hub-Signature-256 value for a payload",
	Long: `Compute the signature GitHub would send for a payload, using the configured
webhook secret or --secret. The payload is read from FILE, or stdin when omitted.`,
	Example: `  deployhook sign payload.json
  curl -X POST http://localhost:9500/deploy \
    -H "X-Hub-Signature-256: $(deployhook sign payload.json)" \
    --data-binary @payload.json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSign,
}

func init() {
	signCmd.Flags().StringVar(&signSecret, "secret", "", "Secret to sign with (default: configured webhook secret)")
}

func runSign(cmd *cobra.Command, args []string) error {
	secret := signSecret
	if !cmd.Flags().Changed("secret") {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		secret = cfg.Secret
	}
	if secret == "" {
		return fmt.Errorf("no webhook secret configured; set WEBHOOK_SECRET or pass --secret")
	}

	payload, err := readPayload(cmd, args)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), server.Sign(payload, secret))
	return nil
}

func readPayload(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		payload, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read payload from stdin: %w", err)
		}
		return payload, nil
	}

	payload, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return payload, nil
}
