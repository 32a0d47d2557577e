// Command voicewire is a real-time voice client for live conversational
// models: it streams the default microphone to the model and plays the
// model's spoken replies gaplessly through the default output device.
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
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jmallek/voicewire/internal/config"
	"github.com/jmallek/voicewire/internal/health"
	"github.com/jmallek/voicewire/internal/observe"
	"github.com/jmallek/voicewire/internal/session"
	"github.com/jmallek/voicewire/pkg/audio"
	"github.com/jmallek/voicewire/pkg/audio/playback"
	paio "github.com/jmallek/voicewire/pkg/audio/portaudio"
	"github.com/jmallek/voicewire/pkg/live"
	"github.com/jmallek/voicewire/pkg/live/gemini"
	"github.com/jmallek/voicewire/pkg/usage"
	"github.com/jmallek/voicewire/pkg/usage/postgres"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	modelFlag := flag.String("model", "", "override the configured model")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicewire: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicewire: %v\n", err)
		}
		return 1
	}
	if *modelFlag != "" {
		cfg.Client.Model = *modelFlag
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voicewire starting",
		"config", *configPath,
		"model", cfg.Client.Model,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
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

	// ── Model client ──────────────────────────────────────────────────────────
	apiKey := cfg.Client.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		slog.Error("no API key: set client.api_key or GEMINI_API_KEY")
		return 1
	}

	var clientOpts []gemini.Option
	if cfg.Client.Model != "" {
		clientOpts = append(clientOpts, gemini.WithModel(cfg.Client.Model))
	}
	if cfg.Client.BaseURL != "" {
		clientOpts = append(clientOpts, gemini.WithBaseURL(cfg.Client.BaseURL))
	}
	client := gemini.New(apiKey, clientOpts...)

	sess, err := client.Connect(ctx, live.SessionConfig{
		Instructions: cfg.Client.Instructions,
		Voice:        cfg.Client.Voice,
	})
	if err != nil {
		slog.Error("failed to connect", "err", err)
		return 1
	}
	defer sess.Close()
	slog.Info("connected", "model", client.Model())

	// ── Audio devices ─────────────────────────────────────────────────────────
	capture, err := paio.OpenCapture()
	if err != nil {
		slog.Error("failed to open capture device", "err", err)
		return 1
	}
	defer capture.Close()

	player, err := paio.OpenPlayer()
	if err != nil {
		slog.Error("failed to open playback device", "err", err)
		return 1
	}
	defer player.Close()

	scheduler := playback.NewScheduler(player)

	// ── Usage ledger (optional) ───────────────────────────────────────────────
	var ledger usage.Ledger
	if dsn := cfg.Usage.PostgresDSN; dsn != "" {
		store, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			slog.Error("failed to open usage ledger", "err", err)
			return 1
		}
		defer store.Close()
		ledger = store
		slog.Info("usage ledger enabled")
	}

	// ── Diagnostics endpoint: /metrics, /healthz, /readyz ─────────────────────
	if cfg.Server.MetricsAddr != "" {
		checkers := []health.Checker{
			{Name: "session", Check: func(context.Context) error { return sess.Err() }},
		}
		if store, ok := ledger.(*postgres.Store); ok {
			checkers = append(checkers, health.Checker{Name: "ledger", Check: store.Ping})
		}
		srv := serveDiagnostics(cfg.Server.MetricsAddr, health.New(checkers...))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	// ── Transcript printer ────────────────────────────────────────────────────
	transcripts := make(chan session.Transcript, 64)
	go func() {
		for tr := range transcripts {
			fmt.Printf("[%s] %s\n", tr.Source, tr.Text)
		}
	}()

	// ── Conversation loop ─────────────────────────────────────────────────────
	orch, err := session.New(session.Config{
		Live:        sess,
		Capture:     capture.Blocks(),
		Scheduler:   scheduler,
		Clock:       player.Now,
		Prices:      cfg.Pricing.PriceTable(),
		Model:       client.Model(),
		Ledger:      ledger,
		Metrics:     observe.DefaultMetrics(),
		Logger:      logger,
		Transcripts: transcripts,
	})
	if err != nil {
		slog.Error("failed to build session", "err", err)
		return 1
	}

	slog.Info("session ready — press Ctrl+C to hang up")

	runErr := orch.Run(ctx)
	close(transcripts)

	// Keep the capture channel flowing until the deferred Close shuts the
	// device down.
	go audio.Drain(capture.Blocks())

	// ── Session summary ───────────────────────────────────────────────────────
	tracker := orch.Tracker()
	slog.Info("session ended",
		"turns", tracker.Turns(),
		"total_cost_usd", fmt.Sprintf("%.4f", tracker.Total()),
	)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// serveDiagnostics starts the Prometheus scrape endpoint and health probes in
// the background.
func serveDiagnostics(addr string, h *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	h.Register(mux)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		slog.Info("diagnostics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("diagnostics endpoint error", "err", err)
		}
	}()
	return srv
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
