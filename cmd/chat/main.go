package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/xaenox/gigachat-bot/internal/app"
	"github.com/xaenox/gigachat-bot/internal/tui"
	"github.com/xaenox/gigachat-bot/pkg/config"
)

const defaultLogFile = "gigachat-chat.log"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// The terminal belongs to the UI.
	if cfg.Log.File == "" {
		cfg.Log.File = defaultLogFile
	}
	logger, err := app.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", zap.Error(err))
		return err
	}
	defer a.Close()

	logger.Info("Chat started", zap.String("session_id", a.SessionID))
	return tui.Run(ctx, a.Session)
}
