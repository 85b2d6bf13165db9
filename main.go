// bulk-restore discovers cloud backups and restores them in bulk.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/clumio-code/bulk-restore/cmd"
	"github.com/clumio-code/bulk-restore/internal/config"
	"github.com/clumio-code/bulk-restore/internal/exitcode"
	"github.com/clumio-code/bulk-restore/internal/logger"
)

// Build information (set by ldflags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	// Create context that cancels on interrupt
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.New()
	cfg.Version = version
	cfg.BuildTime = buildTime
	cfg.GitCommit = gitCommit

	// Promote to debug level when the debug flag is set
	logLevel := cfg.LogLevel
	if cfg.Debug && logLevel != "debug" {
		logLevel = "debug"
	}
	log := logger.New(logLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(exitcode.Config)
	}

	if err := cmd.Execute(ctx, cfg, log); err != nil {
		log.Error("Application failed", "error", err)
		os.Exit(exitcode.FromError(err))
	}
}
