package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Port != 9500 {
		t.Errorf("Port = %d, want 9500", cfg.Port)
	}
	if cfg.Branch != "vfp" {
		t.Errorf("Branch = %q, want vfp", cfg.Branch)
	}
	if cfg.DeployPath != "/deploy" || cfg.HealthPath != "/health" {
		t.Errorf("paths = %q %q, want /deploy /health", cfg.DeployPath, cfg.HealthPath)
	}
	if cfg.Secret != "" {
		t.Errorf("Secret = %q, want empty", cfg.Secret)
	}

	args, err := cfg.DeployArgs()
	if err != nil {
		t.Fatalf("DeployArgs() error = %v", err)
	}
	if len(args) != 2 || args[0] != "bash" || filepath.Base(args[1]) != DefaultDeployScript {
		t.Errorf("DeployArgs() = %v, want [bash .../%s]", args, DefaultDeployScript)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
port: 9600
secret: kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS2uW5yA7bD0fG3hK6
branch: main
deploy_command: bash /opt/taskmate/scripts/deploy_server.sh
deploy_log: /tmp/deploy.log
rate_limit: 6
`)

	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Port != 9600 {
		t.Errorf("Port = %d, want 9600", cfg.Port)
	}
	if cfg.Branch != "main" {
		t.Errorf("Branch = %q, want main", cfg.Branch)
	}
	if cfg.RateLimit != 6 {
		t.Errorf("RateLimit = %d, want 6", cfg.RateLimit)
	}
	// Keys absent from the file keep their defaults
	if cfg.DeployPath != DefaultDeployPath {
		t.Errorf("DeployPath = %q, want default %q", cfg.DeployPath, DefaultDeployPath)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{"unknown key", "prot: 9500\n", "field prot not found"},
		{"wrong type", "port: nine\n", "cannot unmarshal"},
		{"malformed yaml", "port: [9500\n", "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			err := Default().LoadFile(path)
			if err == nil {
				t.Fatal("LoadFile() expected error")
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("LoadFile() error = %v, want to contain %q", err, tt.errText)
			}
		})
	}

	if err := Default().LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile() expected error for missing file")
	}
}

func TestLoadFile_Empty(t *testing.T) {
	path := writeConfig(t, "")
	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v for empty file", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("Port = %d, want default", cfg.Port)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "from-webhook-secret")
	t.Setenv("DEPLOYHOOK_PORT", "9700")
	t.Setenv("DEPLOYHOOK_BRANCH", "release")
	t.Setenv("DEPLOYHOOK_MAX_PAYLOAD_BYTES", "2048")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.Secret != "from-webhook-secret" {
		t.Errorf("Secret = %q, want from WEBHOOK_SECRET", cfg.Secret)
	}
	if cfg.Port != 9700 {
		t.Errorf("Port = %d, want 9700", cfg.Port)
	}
	if cfg.Branch != "release" {
		t.Errorf("Branch = %q, want release", cfg.Branch)
	}
	if cfg.MaxPayloadBytes != 2048 {
		t.Errorf("MaxPayloadBytes = %d, want 2048", cfg.MaxPayloadBytes)
	}
}

func TestApplyEnv_SecretPrecedence(t *testing.T) {
	t.Setenv("WEBHOOK_SECRET", "legacy")
	t.Setenv("DEPLOYHOOK_SECRET", "preferred")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Secret != "preferred" {
		t.Errorf("Secret = %q, want DEPLOYHOOK_SECRET to win", cfg.Secret)
	}
}

func TestApplyEnv_TrustProxy(t *testing.T) {
	if Default().TrustProxy {
		t.Fatal("TrustProxy should be off by default")
	}

	t.Setenv("DEPLOYHOOK_TRUST_PROXY", "true")
	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if !cfg.TrustProxy {
		t.Error("TrustProxy = false, want true from DEPLOYHOOK_TRUST_PROXY")
	}

	t.Setenv("DEPLOYHOOK_TRUST_PROXY", "sometimes")
	if err := Default().ApplyEnv(); err == nil {
		t.Error("ApplyEnv() expected error for non-boolean DEPLOYHOOK_TRUST_PROXY")
	}
}

func TestApplyEnv_InvalidInteger(t *testing.T) {
	t.Setenv("DEPLOYHOOK_PORT", "ninety")

	if err := Default().ApplyEnv(); err == nil {
		t.Error("ApplyEnv() expected error for non-integer port")
	}
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "branch: main\nport: 9600\n")
	t.Setenv("DEPLOYHOOK_PORT", "9800")

	cfg, used, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if used != path {
		t.Errorf("Load() used %q, want %q", used, path)
	}
	if cfg.Branch != "main" {
		t.Errorf("Branch = %q, want main from file", cfg.Branch)
	}
	if cfg.Port != 9800 {
		t.Errorf("Port = %d, want 9800 from env overriding file", cfg.Port)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		errText string
	}{
		{"port zero", func(c *Config) { c.Port = 0 }, "port must be between"},
		{"port too high", func(c *Config) { c.Port = 70000 }, "port must be between"},
		{"empty branch", func(c *Config) { c.Branch = "" }, "branch"},
		{"full ref as branch", func(c *Config) { c.Branch = "refs/heads/vfp" }, "branch"},
		{"relative deploy path", func(c *Config) { c.DeployPath = "deploy" }, "deploy_path"},
		{"same paths", func(c *Config) { c.HealthPath = c.DeployPath }, "must differ"},
		{"empty deploy command", func(c *Config) { c.DeployCommand = "  " }, "deploy_command"},
		{"unterminated quote", func(c *Config) { c.DeployCommand = "bash 'x.sh" }, "deploy_command"},
		{"empty deploy log", func(c *Config) { c.DeployLog = "" }, "deploy_log is required"},
		{"zero payload limit", func(c *Config) { c.MaxPayloadBytes = 0 }, "max_payload_bytes"},
		{"negative rate limit", func(c *Config) { c.RateLimit = -1 }, "rate_limit"},
		{"nats without subject", func(c *Config) { c.NATSURL, c.NATSSubject = "nats://localhost:4222", "" }, "nats_subject"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("Validate() error = %v, want to contain %q", err, tt.errText)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Port = 0
	cfg.DeployLog = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error")
	}
	if !strings.Contains(err.Error(), "port") || !strings.Contains(err.Error(), "deploy_log") {
		t.Errorf("Validate() error = %v, want both problems reported", err)
	}
}

func TestWarnings(t *testing.T) {
	script := filepath.Join(t.TempDir(), "deploy_server.sh")
	if err := os.WriteFile(script, []byte("#!/bin/bash\n"), 0750); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}

	tests := []struct {
		name     string
		secret   string
		command  string
		contains []string
	}{
		{"no secret", "", "bash " + script, []string{"signature verification is disabled"}},
		{"weak secret", "changeme", "bash " + script, []string{"webhook secret is weak"}},
		{"missing script", "kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS2uW5yA7bD0fG3hK6", "bash /nonexistent/deploy_server.sh", []string{"missing file /nonexistent/deploy_server.sh"}},
		{"clean", "kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS2uW5yA7bD0fG3hK6", "bash " + script, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Secret = tt.secret
			cfg.DeployCommand = tt.command

			warnings := cfg.Warnings()
			if len(tt.contains) == 0 && len(warnings) != 0 {
				t.Errorf("Warnings() = %v, want none", warnings)
			}
			joined := strings.Join(warnings, "\n")
			for _, want := range tt.contains {
				if !strings.Contains(joined, want) {
					t.Errorf("Warnings() = %v, want to contain %q", warnings, want)
				}
			}
		})
	}
}

func TestMatchesRef(t *testing.T) {
	cfg := Default()
	cfg.Branch = "vfp"

	tests := []struct {
		ref  string
		want bool
	}{
		{"refs/heads/vfp", true},
		{"refs/heads/main", false},
		{"refs/tags/vfp", false},
		{"vfp", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := cfg.MatchesRef(tt.ref); got != tt.want {
			t.Errorf("MatchesRef(%q) = %v, want %v", tt.ref, got, tt.want)
		}
	}

	if got := cfg.TargetRef().String(); got != "refs/heads/vfp" {
		t.Errorf("TargetRef() = %q, want refs/heads/vfp", got)
	}
}

func TestAddr(t *testing.T) {
	cfg := Default()
	if got := cfg.Addr(); got != "0.0.0.0:9500" {
		t.Errorf("Addr() = %q, want 0.0.0.0:9500", got)
	}

	cfg.Host = "::1"
	if got := cfg.Addr(); got != "[::1]:9500" {
		t.Errorf("Addr() = %q, want [::1]:9500", got)
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"-4", slog.LevelDebug},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.in}
		if got := cfg.Level().Level(); got != tt.want {
			t.Errorf("Level(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadDotenv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(envFile, []byte("DEPLOYHOOK_TEST_DOTENV=from-file\n"), 0600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}

	t.Setenv("DEPLOYHOOK_TEST_DOTENV", "")
	os.Unsetenv("DEPLOYHOOK_TEST_DOTENV")

	if err := LoadDotenv(envFile); err != nil {
		t.Fatalf("LoadDotenv() error = %v", err)
	}
	if got := os.Getenv("DEPLOYHOOK_TEST_DOTENV"); got != "from-file" {
		t.Errorf("DEPLOYHOOK_TEST_DOTENV = %q, want from-file", got)
	}

	if err := LoadDotenv(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("LoadDotenv() expected error for explicit missing file")
	}
}

func TestLoadDotenv_DoesNotOverride(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(envFile, []byte("WEBHOOK_SECRET=from-file\n"), 0600); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}

	t.Setenv("WEBHOOK_SECRET", "exported")

	if err := LoadDotenv(envFile); err != nil {
		t.Fatalf("LoadDotenv() error = %v", err)
	}
	if got := os.Getenv("WEBHOOK_SECRET"); got != "exported" {
		t.Errorf("WEBHOOK_SECRET = %q, want exported value kept", got)
	}
}
