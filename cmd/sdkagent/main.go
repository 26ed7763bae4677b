package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/config"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/logging"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	configPath := pflag.StringP("config", "c", os.Getenv("CONFIG_PATH"), "path to the agent configuration file")
	pflag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.String("service", cfg.Site.Service),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.String("consent", cfg.Consent.Initial),
		zap.Bool("encryption", cfg.Encryption.Enabled))

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		logger.Fatal("Failed to create data directory", zap.Error(err))
	}
	if cfg.Encryption.Enabled && !filepath.IsAbs(cfg.Encryption.IdentityFile) {
		cfg.Encryption.IdentityFile = filepath.Join(cfg.Storage.DataDir, cfg.Encryption.IdentityFile)
	}

	agent, err := newAgent(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize agent", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := agent.Run(ctx); err != nil {
		logger.Error("Agent stopped with error", zap.Error(err))
		agent.Shutdown()
		os.Exit(1)
	}
	agent.Shutdown()
	logger.Info("Agent stopped")
}
