// Terminal client for the MentorAI tutoring service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"mentor-ai/internal/app"
	"mentor-ai/internal/config"
	"mentor-ai/internal/terminal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mentor:", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// ---- Logging ----
	logFile, err := app.OpenLogFile(cfg.Log.Path)
	if err != nil {
		return err
	}
	defer logFile.Close()

	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: cfg.LogLevel()}))
	slog.SetDefault(logger)

	// ---- Wiring ----
	client, err := app.BuildClient(cfg, logger)
	if err != nil {
		slog.Error("failed to start client", "err", err)
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			slog.Error("failed to close storage", "err", err)
		}
	}()

	var render terminal.Renderer = terminal.PlainRenderer
	if cfg.UI.Markdown {
		if md, err := terminal.NewMarkdownRenderer(cfg.UI.WordWrap); err != nil {
			slog.Warn("markdown disabled", "err", err)
		} else {
			render = md
		}
	}

	// ---- REPL ----
	historyFile := ""
	if dir, err := config.Dir(); err == nil {
		historyFile = filepath.Join(dir, "history")
	}
	editor := terminal.NewLineEditor(historyFile)
	defer editor.Close()

	repl, err := terminal.New(client.Controller, editor, os.Stdout,
		terminal.WithRenderer(render),
		terminal.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	slog.Info("client started", "api", cfg.API.BaseURL, "storage", cfg.Storage.Backend)
	return repl.Run(ctx)
}
