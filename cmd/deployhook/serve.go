package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deployhook/internal/bus"
	"deployhook/internal/bus/natsbus"
	"deployhook/internal/config"
	"deployhook/internal/deploy"
	"deployhook/internal/history"
	"deployhook/internal/security"
	"deployhook/internal/server"

	"github.com/spf13/cobra"
)

// ShutdownTimeout bounds graceful shutdown after a signal
const ShutdownTimeout = 15 * time.Second

var serveFlags struct {
	host          string
	port          int
	branch        string
	deployCommand string
	deployDir     string
	deployLog     string
	serverLog     string
	logLevel      string
	historyDB     string
	natsURL       string
	rateLimit     int
	trustProxy    bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook receiver",
	Long: `Start the HTTP server that receives GitHub push webhooks.

Requests to the deploy path are authenticated with the shared secret (WEBHOOK_SECRET),
filtered by branch, and answered before the deploy command is launched as a detached
process. Flags override the config file and environment.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.host, "host", config.DefaultHost, "Host to bind to")
	f.IntVarP(&serveFlags.port, "port", "p", config.DefaultPort, "Port to listen on")
	f.StringVarP(&serveFlags.branch, "branch", "b", config.DefaultBranch, "Branch whose pushes trigger a deploy")
	f.StringVar(&serveFlags.deployCommand, "deploy-command", "", "Deploy command line (default: bash <binary dir>/deploy_server.sh)")
	f.StringVar(&serveFlags.deployDir, "deploy-dir", "", "Working directory for the deploy command")
	f.StringVar(&serveFlags.deployLog, "deploy-log", config.DefaultDeployLog, "File receiving deploy output (appended)")
	f.StringVar(&serveFlags.serverLog, "log", "", "Also write server logs to this file")
	f.StringVar(&serveFlags.logLevel, "log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")
	f.StringVar(&serveFlags.historyDB, "db", "", "SQLite trigger history database (disabled when empty)")
	f.StringVar(&serveFlags.natsURL, "nats-url", "", "NATS server for deploy notifications (disabled when empty)")
	f.IntVar(&serveFlags.rateLimit, "rate-limit", 0, "Deploy requests per minute per client IP (0 disables)")
	f.BoolVar(&serveFlags.trustProxy, "trust-proxy", false, "Take the client IP from X-Forwarded-For / X-Real-IP (only behind a reverse proxy)")
}

// applyServeFlags copies explicitly set flags over cfg
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Host = serveFlags.host
	}
	if f.Changed("port") {
		cfg.Port = serveFlags.port
	}
	if f.Changed("branch") {
		cfg.Branch = serveFlags.branch
	}
	if f.Changed("deploy-command") {
		cfg.DeployCommand = serveFlags.deployCommand
	}
	if f.Changed("deploy-dir") {
		cfg.DeployDir = serveFlags.deployDir
	}
	if f.Changed("deploy-log") {
		cfg.DeployLog = serveFlags.deployLog
	}
	if f.Changed("log") {
		cfg.ServerLog = serveFlags.serverLog
	}
	if f.Changed("log-level") {
		cfg.LogLevel = serveFlags.logLevel
	}
	if f.Changed("db") {
		cfg.HistoryDB = serveFlags.historyDB
	}
	if f.Changed("nats-url") {
		cfg.NATSURL = serveFlags.natsURL
	}
	if f.Changed("rate-limit") {
		cfg.RateLimit = serveFlags.rateLimit
	}
	if f.Changed("trust-proxy") {
		cfg.TrustProxy = serveFlags.trustProxy
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}
	applyServeFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := setupLogging(cfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer closeLog()

	logger.Info("starting deployhook", "version", version, "config", cfgPath)

	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}
	if cfgPath != "" {
		if err := security.ValidateSecurePermissions(cfgPath); err != nil {
			logger.Warn("insecure config file permissions", "path", cfgPath, "error", err)
		}
	}

	launcher, err := deploy.NewLauncher(cfg)
	if err != nil {
		return err
	}
	logger.Info("deploy command configured",
		"command", launcher.Command(),
		"dir", cfg.DeployDir,
		"deploy_log", cfg.DeployLog)

	var hist *history.History
	if cfg.HistoryDB != "" {
		logger.Info("initializing history database", "db", cfg.HistoryDB)
		hist, err = history.NewHistory(cfg.HistoryDB)
		if err != nil {
			return fmt.Errorf("failed to initialize history database: %w", err)
		}
	}

	// Left as a nil interface when disabled
	var b bus.Bus
	if cfg.NATSURL != "" {
		logger.Info("connecting to nats", "url", cfg.NATSURL, "subject", cfg.NATSSubject)
		nb, err := natsbus.Connect(cfg.NATSURL, logger)
		if err != nil {
			if hist != nil {
				hist.Close()
			}
			return err
		}
		b = nb
	}

	srv := server.NewServer(cfg, launcher, hist, b, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("http server exited", "error", serveErr)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		if serveErr == nil {
			serveErr = fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	if serveErr != nil {
		return fmt.Errorf("server failed: %w", serveErr)
	}

	logger.Info("server stopped")
	return nil
}

// setupLogging configures a JSON slog logger writing to stdout and, when
// ServerLog is set, to that file as well. The returned func closes the file.
func setupLogging(cfg *config.Config) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stdout
	closeFn := func() {}

	if cfg.ServerLog != "" {
		file, err := security.OpenAppendFile(cfg.ServerLog, security.PermLogFile)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		// Log to both file and console
		w = io.MultiWriter(os.Stdout, file)
		closeFn = func() { file.Close() }
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.Level(),
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, closeFn, nil
}
