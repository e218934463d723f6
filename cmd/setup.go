package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"themeforge/pkg/config"
	"themeforge/pkg/logger"
	"themeforge/pkg/tracer"
)

const chatLogFileName = "themeforge.log"

// process is what every command starts from: the loaded config plus the
// installed logger and tracer.
type process struct {
	cfg     *config.Config
	log     *slog.Logger
	cleanup func()
}

// setupProcess loads config and installs the process logger and tracer. When
// tui is set, logs go to a file next to the store so they never draw over the
// terminal UI.
func setupProcess(ctx context.Context, component string, tui bool) (*process, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	var (
		out     io.Writer = os.Stderr
		closers []func()
	)
	if tui {
		file, err := openChatLog(cfg)
		if err != nil {
			return nil, err
		}
		out = file
		closers = append(closers, func() { _ = file.Close() })
	}

	appLogger, err := logger.NewWithWriter(cfg.Logging, out)
	if err != nil {
		runAll(closers)
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)
	log := slog.Default().With("component", component)

	shutdown, err := tracer.Setup(ctx, cfg.Tracing)
	if err != nil {
		runAll(closers)
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	closers = append([]func(){func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn("Tracer shutdown failed", "error", err)
		}
	}}, closers...)

	return &process{cfg: cfg, log: log, cleanup: func() { runAll(closers) }}, nil
}

func openChatLog(cfg *config.Config) (*os.File, error) {
	dir := os.TempDir()
	if path := strings.TrimSpace(cfg.Storage.Path); path != "" {
		dir = filepath.Dir(path)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filepath.Join(dir, chatLogFileName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
