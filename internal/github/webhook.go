// Package github registers the receiver as a push webhook on a GitHub repository.
package github

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// Client wraps an authenticated GitHub API client
type Client struct {
	gh *github.Client
}

// NewClient creates a client authenticated with a personal access token
func NewClient(ctx context.Context, token string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	return &Client{gh: github.NewClient(oauth2.NewClient(ctx, ts))}, nil
}

// Webhook describes a registered repository webhook
type Webhook struct {
	ID      int64
	URL     string
	Created bool // false when an existing hook with the same URL was found
}

// EnsurePushWebhook makes sure owner/repo delivers push events to hookURL.
// An existing hook with the same URL is left untouched.
func (c *Client) EnsurePushWebhook(ctx context.Context, owner, repo, hookURL, secret string) (*Webhook, error) {
	existing, err := c.findHook(ctx, owner, repo, hookURL)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &Webhook{ID: existing.GetID(), URL: hookURL}, nil
	}

	hookConfig := map[string]interface{}{
		"url":          hookURL,
		"content_type": "json",
		"insecure_ssl": "0",
	}
	if secret != "" {
		hookConfig["secret"] = secret
	}

	hookReq := &github.Hook{
		Events: []string{"push"},
		Active: github.Bool(true),
		Config: hookConfig,
	}

	hook, _, err := c.gh.Repositories.CreateHook(ctx, owner, repo, hookReq)
	if err != nil {
		return nil, fmt.Errorf("creating webhook: %w", err)
	}

	return &Webhook{ID: hook.GetID(), URL: hookURL, Created: true}, nil
}

func (c *Client) findHook(ctx context.Context, owner, repo, hookURL string) (*github.Hook, error) {
	opts := &github.ListOptions{PerPage: 100}
	for {
		hooks, resp, err := c.gh.Repositories.ListHooks(ctx, owner, repo, opts)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				return nil, fmt.Errorf("repository %s/%s not found or token lacks admin:repo_hook scope", owner, repo)
			}
			return nil, fmt.Errorf("listing webhooks: %w", err)
		}

		for _, hook := range hooks {
			if hook.Config == nil {
				continue
			}
			if url, ok := hook.Config["url"].(string); ok && url == hookURL {
				return hook, nil
			}
		}

		if resp.NextPage == 0 {
			return nil, nil
		}
		opts.Page = resp.NextPage
	}
}
