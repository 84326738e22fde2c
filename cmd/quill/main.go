// Command quill is the main entry point for the Quill dictation utility.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/quill/internal/app"
	"github.com/MrWong99/quill/internal/config"
	"github.com/MrWong99/quill/internal/health"
	"github.com/MrWong99/quill/internal/observe"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "quill: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "quill: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := newLevelVar(cfg.Server.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("quill starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "quill",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Application ───────────────────────────────────────────────────────────
	metrics := observe.DefaultMetrics()

	application, err := app.New(cfg,
		app.WithMetrics(metrics),
		app.WithLogLevelVar(levelVar),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, application.ApplyConfigChange)
	if err != nil {
		slog.Error("failed to watch config file", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Observability listener ────────────────────────────────────────────────
	var httpServer *http.Server
	if cfg.Server.ListenAddr != "" {
		httpServer = newHTTPServer(cfg, application, metrics)
		go func() {
			slog.Info("observability listener started", "addr", cfg.Server.ListenAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http server error", "err", err)
			}
		}()
	}

	printStartupSummary(cfg)
	slog.Info("ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http server shutdown error", "err", err)
		}
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── HTTP wiring ───────────────────────────────────────────────────────────────

// newHTTPServer assembles the /metrics, /healthz, and /readyz endpoints.
func newHTTPServer(cfg *config.Config, application *app.App, metrics *observe.Metrics) *http.Server {
	var checkers []health.Checker
	checkers = append(checkers, health.ModelFile("transcription-model", cfg.Transcription.ModelPath))
	if cfg.WakeWord.Enabled {
		checkers = append(checkers, health.ModelFile("wake-word-model", filepath.Join(cfg.WakeWord.ModelDir, "encoder.onnx")))
	}
	if store := application.StatsStore(); store != nil {
		checkers = append(checkers, health.Pinger("stats-db", store))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	health.New(checkers...).Register(mux)

	return &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          Quill — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printLine("Model", filepath.Base(cfg.Transcription.ModelPath))
	printLine("Language", cfg.Transcription.Language)
	if cfg.Trigger.Binding != "" {
		printLine("Hotkey", cfg.Trigger.Binding+" ("+cfg.Trigger.Mode+")")
	} else {
		printLine("Hotkey", "(disabled)")
	}
	if cfg.WakeWord.Enabled {
		enabled := 0
		for _, k := range cfg.WakeWord.Keywords {
			if k.Enabled {
				enabled++
			}
		}
		printLine("Wake phrases", fmt.Sprintf("%d enabled", enabled))
	} else {
		printLine("Wake phrases", "(disabled)")
	}
	if cfg.Stats.DBPath != "" {
		printLine("Statistics", filepath.Base(cfg.Stats.DBPath))
	} else {
		printLine("Statistics", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printLine("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printLine(label, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLevelVar(level config.LogLevel) *slog.LevelVar {
	lv := &slog.LevelVar{}
	switch level {
	case config.LogDebug:
		lv.Set(slog.LevelDebug)
	case config.LogWarn:
		lv.Set(slog.LevelWarn)
	case config.LogError:
		lv.Set(slog.LevelError)
	default:
		lv.Set(slog.LevelInfo)
	}
	return lv
}
