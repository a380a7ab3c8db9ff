// Command shadowline is the main entry point for the Shadowline shadowing
// practice system: it serves the speech scoring service and, when a lesson
// is configured, runs an interactive practice session on the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mtoso/shadowline/internal/app"
	"github.com/mtoso/shadowline/internal/config"
	"github.com/mtoso/shadowline/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ─────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "shadowline: config file %q not found (copy configs/example.yaml to get started)\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "shadowline: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("shadowline starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Config watcher ────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level updated", "level", d.NewLogLevel)
		}
		if d.SessionChanged || d.AutoStopChanged {
			slog.Warn("session settings changed on disk; restart to apply them")
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Signal context ────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "shadowline",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Startup summary ───────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if application.Orchestrator() != nil {
		slog.Info("session ready: type key names (space, r, s, n, p, enter, escape) and press return")
	} else {
		slog.Info("server ready, press Ctrl+C to shut down")
	}

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────

// printStartupSummary prints a human-readable box of what this process will
// run, mirroring the config resolution the app performs.
func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Shadowline starting          ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("Scoring service", orDisabled(cfg.Server.ListenAddr))
	printEntry("Metrics", orDisabled(cfg.Server.MetricsAddr))
	printEntry("Recognizer", recognizerSummary(cfg.Recognizer))
	printEntry("Lesson source", lessonSummary(cfg.Lessons))
	printEntry("Lesson", orDisabled(cfg.Lessons.LessonID))
	printEntry("Updates feed", orDisabled(cfg.Updates.FeedURL))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(kind, value string) {
	fmt.Printf("║  %-15s : %-19s ║\n", kind, value)
}

func orDisabled(v string) string {
	if v == "" {
		return "(disabled)"
	}
	return v
}

func recognizerSummary(rc config.RecognizerConfig) string {
	switch rc.Mode {
	case config.RecognizerRemote:
		return "remote / " + rc.URL
	case config.RecognizerNative:
		return "native / " + rc.ModelPath
	default:
		return "(disabled)"
	}
}

func lessonSummary(lc config.LessonsConfig) string {
	switch lc.Source {
	case config.LessonSourceFile:
		return "file / " + lc.Dir
	case config.LessonSourcePostgres:
		return "postgres"
	default:
		return "(disabled)"
	}
}

// ── Logger ────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
