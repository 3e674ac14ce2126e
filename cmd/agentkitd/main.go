// Command agentkitd is agentkit's long-running server process: it loads
// Config, builds the composition root (internal/app), starts the
// HTTP/WebSocket transport, and runs the Task Scheduler loop until
// signaled to stop.
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

	"github.com/spf13/cobra"

	"github.com/haasonsaas/agentkit/internal/app"
	"github.com/haasonsaas/agentkit/internal/config"
	"github.com/haasonsaas/agentkit/internal/observability"
	"github.com/haasonsaas/agentkit/internal/transport"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "agentkitd",
		Short:        "agentkitd runs the agentkit orchestration server",
		Version:      fmt.Sprintf("%s (commit %s)", version, commit),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "agentkit.yaml", "path to YAML configuration file")
	return root
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	obsLogger := newLogger(cfg.Logging)
	logger := obsLogger.Slog()
	slog.SetDefault(logger)

	logger.Info("starting agentkitd",
		"version", version,
		"commit", commit,
		"config", configPath,
		"http_addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.HTTPPort),
		"metrics_addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
	)

	a, err := app.Build(cfg, logger)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}

	server := transport.New(a, cfg.Server.Host, cfg.Server.HTTPPort, cfg.Server.MetricsPort, logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(ctx) }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newLogger builds the process-wide observability.Logger from cfg,
// resolving Output to stdout, stderr, or an append-mode file. Its
// redaction patterns apply only to records logged through the Logger's
// own methods, not to the *slog.Logger that Slog returns.
func newLogger(cfg config.LoggingConfig) *observability.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: resolveLogWriter(cfg.Output),
	})
}

func resolveLogWriter(output string) io.Writer {
	switch {
	case output == "" || output == "stdout":
		return os.Stdout
	case output == "stderr":
		return os.Stderr
	case len(output) > len("file:") && output[:len("file:")] == "file:":
		path := output[len("file:"):]
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			slog.Warn("agentkitd: open log file, falling back to stderr", "path", path, "error", err)
			return os.Stderr
		}
		return f
	default:
		return os.Stdout
	}
}
