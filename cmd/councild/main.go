// Councild runs a multi-role debate council over a text generation
// provider. It exposes an HTTP API for driving debates turn by turn,
// persists sessions to a JSON snapshot, and keeps a durable SQLite
// transcript archive. Configuration is loaded from a single YAML file
// discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	councild                 Start the API server
//	councild -config <path>  Start with an explicit config file
//	councild -version        Print version and build information
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/councild/councild/internal/api"
	"github.com/councild/councild/internal/archive"
	"github.com/councild/councild/internal/buildinfo"
	"github.com/councild/councild/internal/config"
	"github.com/councild/councild/internal/engine"
	"github.com/councild/councild/internal/events"
	"github.com/councild/councild/internal/llm"
	"github.com/councild/councild/internal/session"
	"github.com/councild/councild/internal/snapshot"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run] so the full
// startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the councild command. Arguments are
// parsed by hand: the flag package relies on package-level globals,
// which makes it impossible to call run() concurrently from tests, and
// the argument surface here is two flags.
func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	var configPath string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-version" || args[i] == "--version":
			fmt.Fprintln(stdout, buildinfo.String())
			return nil
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			fmt.Fprintln(stdout, "usage: councild [-config path] [-version]")
			return nil
		default:
			return fmt.Errorf("unknown flag: %s", args[i])
		}
	}

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// The API key can also arrive via the environment, which keeps it
	// out of config files committed to dotfile repos.
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		// Already validated by cfg.Validate.
		level, _ = config.ParseLogLevel(cfg.LogLevel)
	}
	logger := newLogger(stdout, level, cfg.LogFormat)

	logger.Info("councild starting",
		"version", buildinfo.Version,
		"config", cfgPath,
		"model", cfg.Gemini.Model,
		"mock", cfg.Gemini.Mock,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	// --- Generation provider ---
	var gen llm.Generator
	if cfg.Gemini.Mock {
		logger.Warn("mock generation enabled; no API calls will be made")
		gen = &llm.Mock{}
	} else {
		gen = llm.NewGemini(cfg.Gemini.APIKey, cfg.Gemini.Model, logger)
	}

	// --- Stores and engine ---
	bus := events.New()

	arch, err := archive.Open(filepath.Join(cfg.DataDir, "archive.db"))
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer arch.Close()

	repo := session.NewMemoryRepository()
	eng := engine.New(repo, gen, logger,
		engine.WithBus(bus),
		engine.WithArchive(arch),
		engine.WithRand(rand.New(rand.NewSource(time.Now().UnixNano()))),
	)

	snapshotPath := filepath.Join(cfg.DataDir, "sessions.json")
	saver := snapshot.NewSaver(snapshotPath,
		time.Duration(cfg.Snapshot.DebounceSeconds)*time.Second,
		eng.Dump, bus, logger)
	eng.AttachSaver(saver)

	sessions, err := snapshot.Load(snapshotPath)
	if err != nil {
		// A torn snapshot must not stop the server; the archive still
		// has the transcripts.
		logger.Error("snapshot load failed, starting empty", "path", snapshotPath, "error", err)
	}
	eng.Seed(sessions)

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, eng, bus, logger)

	// --- Signal handling and graceful shutdown ---
	// NotifyContext wraps the parent context so SIGINT/SIGTERM flow
	// through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		if err := saver.FlushNow(); err != nil {
			logger.Error("final snapshot failed", "error", err)
		}
		saver.Stop()

		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("councild stopped")
	return nil
}

// newLogger creates a structured logger writing to w at the given level
// and format, with TRACE rendered by name.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. When no
// file exists anywhere in the search path and none was requested
// explicitly, built-in defaults apply.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		return config.Default(), "(defaults)", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	return cfg, cfgPath, nil
}
