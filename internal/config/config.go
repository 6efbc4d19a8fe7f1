package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"deployhook/internal/security"
	"deployhook/pkg/cmdutil"
	"deployhook/pkg/fileutil"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the config file name searched for in the default locations.
	FileName = "deployhook.yaml"

	DefaultHost            = "0.0.0.0"
	DefaultPort            = 9500
	DefaultBranch          = "vfp"
	DefaultDeployPath      = "/deploy"
	DefaultHealthPath      = "/health"
	DefaultDeployScript    = "deploy_server.sh"
	DefaultDeployLog       = "/var/log/taskmate-deploy.log"
	DefaultLogLevel        = "info"
	DefaultMaxPayloadBytes = 1_000_000 // 1 MB
	DefaultNATSSubject     = "deployhook.deploy.triggered"
)

// Config is the process-wide receiver configuration. It is built once at
// startup and never mutated afterwards.
type Config struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Secret     string `yaml:"secret"`
	Branch     string `yaml:"branch"`
	DeployPath string `yaml:"deploy_path"`
	HealthPath string `yaml:"health_path"`

	// DeployCommand is the shell-quoted command line of the deploy action.
	DeployCommand string `yaml:"deploy_command"`
	// DeployDir is the working directory of the deploy action (optional).
	DeployDir string `yaml:"deploy_dir"`
	// DeployLog receives the deploy action's stdout and stderr (append mode).
	DeployLog string `yaml:"deploy_log"`

	ServerLog string `yaml:"server_log"`
	LogLevel  string `yaml:"log_level"`

	MaxPayloadBytes int64 `yaml:"max_payload_bytes"`
	// RateLimit is the number of deploy requests per minute allowed per client IP. 0 disables.
	RateLimit int `yaml:"rate_limit"`
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP. Only
	// enable it when the receiver sits behind a reverse proxy that sets them.
	TrustProxy bool `yaml:"trust_proxy"`

	HistoryDB   string `yaml:"history_db"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
}

// Default returns the built-in configuration.
func Default() *Config {
	script := filepath.Join(fileutil.ExecutableDir(), DefaultDeployScript)
	return &Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		Branch:          DefaultBranch,
		DeployPath:      DefaultDeployPath,
		HealthPath:      DefaultHealthPath,
		DeployCommand:   "bash " + shellquote.Join(script),
		DeployLog:       DefaultDeployLog,
		LogLevel:        DefaultLogLevel,
		MaxPayloadBytes: DefaultMaxPayloadBytes,
		NATSSubject:     DefaultNATSSubject,
	}
}

// Load builds a configuration from defaults, the YAML file at path (or the
// first file found in the default locations when path is empty) and the
// environment. It returns the config file actually used, if any.
// The result is not validated; callers apply flag overrides and then Validate.
func Load(path string) (*Config, string, error) {
	cfg := Default()

	if path == "" {
		path = fileutil.SearchPathsOptional(fileutil.DefaultConfigPaths(FileName))
	}

	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, "", err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, "", err
	}

	return cfg, path, nil
}

// LoadFile overlays values from a YAML file. Unknown keys are rejected.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
	}

	return nil
}

// ApplyEnv overlays values from environment variables.
// WEBHOOK_SECRET is honoured for compatibility with existing deployments.
func (c *Config) ApplyEnv() error {
	// Later entries win, so DEPLOYHOOK_SECRET overrides WEBHOOK_SECRET.
	strVars := []struct {
		key string
		dst *string
	}{
		{"WEBHOOK_SECRET", &c.Secret},
		{"DEPLOYHOOK_SECRET", &c.Secret},
		{"DEPLOYHOOK_HOST", &c.Host},
		{"DEPLOYHOOK_BRANCH", &c.Branch},
		{"DEPLOYHOOK_DEPLOY_COMMAND", &c.DeployCommand},
		{"DEPLOYHOOK_DEPLOY_DIR", &c.DeployDir},
		{"DEPLOYHOOK_DEPLOY_LOG", &c.DeployLog},
		{"DEPLOYHOOK_SERVER_LOG", &c.ServerLog},
		{"DEPLOYHOOK_LOG_LEVEL", &c.LogLevel},
		{"DEPLOYHOOK_HISTORY_DB", &c.HistoryDB},
		{"DEPLOYHOOK_NATS_URL", &c.NATSURL},
		{"DEPLOYHOOK_NATS_SUBJECT", &c.NATSSubject},
	}
	for _, v := range strVars {
		if value, ok := getEnv(v.key); ok {
			*v.dst = value
		}
	}

	intVars := []struct {
		key string
		dst *int
	}{
		{"DEPLOYHOOK_PORT", &c.Port},
		{"DEPLOYHOOK_RATE_LIMIT", &c.RateLimit},
	}
	for _, v := range intVars {
		if value, ok := getEnv(v.key); ok {
			n, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid %s %q: must be an integer", v.key, value)
			}
			*v.dst = n
		}
	}

	if v, ok := getEnv("DEPLOYHOOK_MAX_PAYLOAD_BYTES"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid DEPLOYHOOK_MAX_PAYLOAD_BYTES %q: must be an integer", v)
		}
		c.MaxPayloadBytes = n
	}

	if v, ok := getEnv("DEPLOYHOOK_TRUST_PROXY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid DEPLOYHOOK_TRUST_PROXY %q: must be true or false", v)
		}
		c.TrustProxy = b
	}

	return nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("  - port must be between 1 and 65535, got %d", c.Port))
	}

	if err := security.ValidateBranchName(c.Branch); err != nil {
		errs = append(errs, fmt.Sprintf("  - branch: %v", err))
	}

	if err := security.ValidateURLPath(c.DeployPath); err != nil {
		errs = append(errs, fmt.Sprintf("  - deploy_path: %v", err))
	}
	if err := security.ValidateURLPath(c.HealthPath); err != nil {
		errs = append(errs, fmt.Sprintf("  - health_path: %v", err))
	}
	if c.DeployPath == c.HealthPath {
		errs = append(errs, fmt.Sprintf("  - deploy_path and health_path must differ, both are %q", c.DeployPath))
	}

	if _, err := cmdutil.ParseCommandString(c.DeployCommand); err != nil {
		errs = append(errs, fmt.Sprintf("  - deploy_command: %v", err))
	}

	if strings.TrimSpace(c.DeployLog) == "" {
		errs = append(errs, "  - deploy_log is required")
	}

	if c.MaxPayloadBytes <= 0 {
		errs = append(errs, fmt.Sprintf("  - max_payload_bytes must be a positive integer, got %d", c.MaxPayloadBytes))
	}

	if c.RateLimit < 0 {
		errs = append(errs, fmt.Sprintf("  - rate_limit must not be negative, got %d", c.RateLimit))
	}

	if c.NATSURL != "" && strings.TrimSpace(c.NATSSubject) == "" {
		errs = append(errs, "  - nats_subject is required when nats_url is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

// Warnings reports settings that are valid but probably unintended.
func (c *Config) Warnings() []string {
	var warnings []string

	if c.Secret == "" {
		warnings = append(warnings, "no webhook secret configured; signature verification is disabled")
	} else if err := security.CheckSecret(c.Secret); err != nil {
		warnings = append(warnings, fmt.Sprintf("webhook secret is weak: %v", err))
	}

	if parts, err := cmdutil.ParseCommandString(c.DeployCommand); err == nil {
		for _, part := range parts {
			if filepath.IsAbs(part) && !fileutil.FileExists(part) {
				warnings = append(warnings, fmt.Sprintf("deploy command references missing file %s", part))
			}
		}
	}

	return warnings
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TargetRef returns the full ref of the target branch.
func (c *Config) TargetRef() plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(c.Branch)
}

// MatchesRef checks if a git ref matches the target branch.
func (c *Config) MatchesRef(ref string) bool {
	return ref == c.TargetRef().String()
}

// DeployArgs returns the parsed deploy command.
func (c *Config) DeployArgs() ([]string, error) {
	return cmdutil.ParseCommandString(c.DeployCommand)
}

// Level parses LogLevel. Numeric levels are accepted
// (-4 debug, 0 info, 4 warn, 8 error).
func (c *Config) Level() slog.Leveler {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		if n, err := strconv.Atoi(c.LogLevel); err == nil {
			return slog.Level(n)
		}
		return slog.LevelInfo
	}
}

func getEnv(key string) (string, bool) {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}
