package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"deployhook/internal/github"
	"deployhook/internal/security"

	"github.com/spf13/cobra"
)

// RegisterTimeout bounds the GitHub API calls made by register
const RegisterTimeout = 30 * time.Second

var registerFlags struct {
	repo   string
	url    string
	token  string
	secret string
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create the GitHub push webhook for this receiver",
	Long: `Register this receiver as a push webhook on a GitHub repository.

If a webhook with the same URL already exists it is left unchanged. When no secret is
configured a new one is generated and printed; set it as WEBHOOK_SECRET on the receiver.
The token needs the admin:repo_hook scope.`,
	Example: `  deployhook register --repo acme/app --url https://deploy.example.com
  GITHUB_TOKEN=ghp_xxx deployhook register --repo acme/app --url https://deploy.example.com/hooks/push`,
	Args: cobra.NoArgs,
	RunE: runRegister,
}

func init() {
	f := registerCmd.Flags()
	f.StringVar(&registerFlags.repo, "repo", "", "Repository as owner/name")
	f.StringVar(&registerFlags.url, "url", "", "Public URL of the receiver (the deploy path is appended when URL has no path)")
	f.StringVar(&registerFlags.token, "token", "", "GitHub token (default: GITHUB_TOKEN)")
	f.StringVar(&registerFlags.secret, "secret", "", "Webhook secret (default: configured secret, generated when empty)")
	_ = registerCmd.MarkFlagRequired("repo")
	_ = registerCmd.MarkFlagRequired("url")
}

func runRegister(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	owner, repo, err := security.ValidateRepoFullName(registerFlags.repo)
	if err != nil {
		return err
	}

	hookURL, err := resolveHookURL(registerFlags.url, cfg.DeployPath)
	if err != nil {
		return err
	}

	token := registerFlags.token
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}
	if token == "" {
		return fmt.Errorf("a GitHub token is required; pass --token or set GITHUB_TOKEN")
	}

	secret := registerFlags.secret
	if secret == "" {
		secret = cfg.Secret
	}
	generated := false
	if secret == "" {
		secret, err = security.GenerateSecret()
		if err != nil {
			return err
		}
		generated = true
	} else if err := security.CheckSecret(secret); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: webhook secret is weak: %v\n", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), RegisterTimeout)
	defer cancel()

	client, err := github.NewClient(ctx, token)
	if err != nil {
		return err
	}

	hook, err := client.EnsurePushWebhook(ctx, owner, repo, hookURL, secret)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !hook.Created {
		fmt.Fprintf(out, "Webhook already exists on %s/%s (id %d): %s\n", owner, repo, hook.ID, hook.URL)
		fmt.Fprintln(out, "Its configuration, including the secret, was not changed.")
		return nil
	}

	fmt.Fprintf(out, "Created webhook on %s/%s (id %d): %s\n", owner, repo, hook.ID, hook.URL)
	if generated {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Generated webhook secret. Configure the receiver with:")
		fmt.Fprintf(out, "  WEBHOOK_SECRET=%s\n", secret)
	}
	return nil
}

// resolveHookURL validates the receiver URL and appends deployPath when the
// URL has no path of its own.
func resolveHookURL(raw, deployPath string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid --url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid --url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid --url %q: missing host", raw)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = deployPath
	}
	return u.String(), nil
}
