// Command ccoli is the voice assistant server for the ccoli desk robot.
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

	"github.com/jwhan-dev/ccoli/internal/app"
	"github.com/jwhan-dev/ccoli/internal/config"
	"github.com/jwhan-dev/ccoli/internal/observe"
	"github.com/jwhan-dev/ccoli/pkg/provider/llm"
	"github.com/jwhan-dev/ccoli/pkg/provider/llm/ollama"
	"github.com/jwhan-dev/ccoli/pkg/provider/llm/openai"
	"github.com/jwhan-dev/ccoli/pkg/provider/stt"
	"github.com/jwhan-dev/ccoli/pkg/provider/stt/whisper"
	"github.com/jwhan-dev/ccoli/pkg/provider/tts/edge"
)

// version is stamped by the release build; "dev" otherwise.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	commandsPath := flag.String("commands", "commands.yaml", "path to the voice command catalog")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ccoli: %v\n", err)
		return 1
	}
	catalog, err := config.LoadCatalog(*commandsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ccoli: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("ccoli starting",
		"version", version,
		"config", *configPath,
		"commands", len(catalog),
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "ccoli",
		ServiceVersion: version,
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

	// ── Providers ─────────────────────────────────────────────────────────────
	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	printStartupSummary(cfg)

	counters := observe.NewCounters()
	application, err := app.New(cfg, providers,
		app.WithCatalog(catalog),
		app.WithCounters(counters),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}

	fmt.Println(counters.Summary())
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProviders constructs the chat, transcription, and synthesis backends
// named in cfg.
func buildProviders(ctx context.Context, cfg *config.Config) (*app.Providers, error) {
	chat, err := buildChat(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("llm: %w", err)
	}

	transcriber, err := buildTranscriber(cfg)
	if err != nil {
		return nil, fmt.Errorf("stt: %w", err)
	}

	synth := edge.New(edge.WithVoice(cfg.TTS.Voice))
	slog.Info("provider created", "kind", "tts", "voice", cfg.TTS.Voice)

	return &app.Providers{
		Chat:        chat,
		Transcriber: transcriber,
		Synthesizer: synth,
	}, nil
}

// buildChat connects to the local Ollama server, auto-starting it when
// configured. When Ollama stays unreachable and a hosted fallback is
// configured, the fallback takes over.
func buildChat(ctx context.Context, cfg *config.Config) (llm.Chat, error) {
	opts := []ollama.Option{ollama.WithThink(cfg.LLM.Think)}
	if cfg.LLM.AutoStart {
		opts = append(opts, ollama.WithStartCommand(cfg.LLM.StartCommand, cfg.LLM.StartupTimeout()))
	}

	client, err := ollama.New(cfg.LLM.BaseURL, cfg.LLM.Model, opts...)
	if err != nil {
		return nil, err
	}

	if cfg.LLM.AutoStart {
		err = client.EnsureRunning(ctx)
	} else {
		err = client.Healthy(ctx)
	}
	if err == nil {
		slog.Info("provider created", "kind", "llm", "backend", "ollama", "model", cfg.LLM.Model)
		return client, nil
	}

	if oa := cfg.LLM.OpenAI; oa != nil {
		slog.Warn("ollama unreachable, using the hosted fallback", "err", err, "model", oa.Model)
		var oaOpts []openai.Option
		if oa.BaseURL != "" {
			oaOpts = append(oaOpts, openai.WithBaseURL(oa.BaseURL))
		}
		return openai.New(oa.APIKey, oa.Model, oaOpts...)
	}

	slog.Warn("ollama unreachable, chat calls will fail until it comes up", "err", err)
	return client, nil
}

// buildTranscriber selects the whisper backend from config.
func buildTranscriber(cfg *config.Config) (stt.Transcriber, error) {
	switch cfg.STT.Backend {
	case "whisper-native":
		t, err := whisper.NewNative(cfg.STT.ModelPath, whisper.WithNativeLanguage(cfg.STT.Language))
		if err != nil {
			return nil, err
		}
		slog.Info("provider created", "kind", "stt", "backend", "whisper-native",
			"model", cfg.STT.ModelPath, "device", cfg.STT.Device)
		return t, nil

	case "whisper-http":
		t, err := whisper.New(cfg.STT.Endpoint, whisper.WithLanguage(cfg.STT.Language))
		if err != nil {
			return nil, err
		}
		slog.Info("provider created", "kind", "stt", "backend", "whisper-http", "endpoint", cfg.STT.Endpoint)
		return t, nil

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.STT.Backend)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║          ccoli — startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Assistant", cfg.Assistant.Name)
	printRow("Mode", cfg.Server.InitialMode)
	printRow("STT", cfg.STT.Backend)
	printRow("LLM", cfg.LLM.Model)
	printRow("TTS", cfg.TTS.Voice)
	printRow("Listen", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	if cfg.Metrics.Addr != "" {
		printRow("Metrics", cfg.Metrics.Addr)
	} else {
		printRow("Metrics", "(disabled)")
	}
	if cfg.Assistant.Proactive {
		printRow("Proactive", cfg.Assistant.ProactiveInterval().String())
	} else {
		printRow("Proactive", "(disabled)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if len(value) > 25 {
		value = value[:22] + "…"
	}
	fmt.Printf("║  %-9s : %-25s ║\n", label, value)
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
