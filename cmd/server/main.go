package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/doramirdor/friday-ai/internal/alerts"
	"github.com/doramirdor/friday-ai/internal/asr"
	"github.com/doramirdor/friday-ai/internal/audio"
	"github.com/doramirdor/friday-ai/internal/codec"
	"github.com/doramirdor/friday-ai/internal/config"
	"github.com/doramirdor/friday-ai/internal/lockfile"
	"github.com/doramirdor/friday-ai/internal/preserve"
	"github.com/doramirdor/friday-ai/internal/server"
	"github.com/doramirdor/friday-ai/internal/stream"
	"github.com/doramirdor/friday-ai/internal/transcript"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "friday-transcription-service"
	serviceVersion    = "1.0.0"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("chunk_duration", cfg.Audio.ChunkDuration),
		slog.Float64("overlap_duration", cfg.Audio.OverlapDuration),
		slog.String("asr_endpoint", cfg.ASR.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Single-instance guard, taken before binding any port so a respawn
	// race fails fast instead of fighting over the socket.
	lock, err := lockfile.Acquire(cfg.Server.GetLockFilePath())
	if err != nil {
		logger.Error("Failed to acquire instance lock", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer lock.Release()
	logger.Info("Instance lock acquired", slog.String("path", lock.Path()))

	asrClient, err := asr.NewClient(asr.ClientConfig{
		Endpoint:      cfg.ASR.Endpoint,
		APIKey:        cfg.ASR.APIKey,
		Timeout:       cfg.ASR.GetTimeoutDuration(),
		MaxRetries:    cfg.ASR.MaxRetries,
		MaxConcurrent: cfg.ASR.MaxConcurrent,
	})
	if err != nil {
		logger.Error("Failed to create transcription client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	matcher, err := alerts.NewEmbeddingMatcher(alerts.Config{
		Endpoint: cfg.Alerts.Endpoint,
		Model:    cfg.Alerts.Model,
		Timeout:  cfg.Alerts.GetTimeoutDuration(),
	})
	if err != nil {
		logger.Error("Failed to create alert matcher", slog.String("error", err.Error()))
		os.Exit(1)
	}

	preserver := preserve.New(cfg.Preserve.GetDirectory(), cfg.Preserve.GetLogPath(), cfg.Preserve.Enabled, logger)
	defer preserver.Close()

	gate := audio.NewGate(
		audio.GateThresholds{
			MinDuration:   cfg.Quality.Microphone.MinDuration,
			MaxSilencePct: cfg.Quality.Microphone.MaxSilencePct,
			MinAmplitude:  cfg.Quality.Microphone.MinAmplitude,
			MinRMS:        cfg.Quality.Microphone.MinRMS,
		},
		audio.GateThresholds{
			MinDuration:   cfg.Quality.System.MinDuration,
			MaxSilencePct: cfg.Quality.System.MaxSilencePct,
			MinAmplitude:  cfg.Quality.System.MinAmplitude,
			MinRMS:        cfg.Quality.System.MinRMS,
		},
	)

	registry := stream.NewRegistry(stream.RegistryConfig{
		Buffer: audio.BufferConfig{
			SampleRate:       cfg.Audio.SampleRate,
			ChunkDuration:    cfg.Audio.GetChunkDuration(),
			MinChunkDuration: cfg.Audio.GetMinChunkDuration(),
			OverlapDuration:  cfg.Audio.GetOverlapDuration(),
		},
		Transcript: transcript.Config{
			SentenceTimeout:    cfg.Transcript.GetSentenceTimeout(),
			MinSegmentDuration: cfg.Transcript.MinSegmentDuration,
			HistorySize:        cfg.Transcript.HistorySize,
		},
	}, logger)

	tcpServer := server.NewTCPServer(&cfg.Server, logger, registry, matcher,
		codec.NewFFmpegConverter(""), cfg.Alerts.GetTimeoutDuration(), cfg.Audio.SampleRate)

	processor := stream.NewProcessor(stream.ProcessorConfig{
		PollInterval: cfg.Processing.GetPollInterval(),
		ASRTimeout:   cfg.ASR.GetTimeoutDuration(),
		Language:     cfg.ASR.Language,
		Model:        cfg.ASR.Model,
	}, registry, asrClient, gate, preserver, tcpServer, logger)

	tcpServer.SetProcessor(processor)
	registry.SetDrainer(processor)

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, registry, tcpServer, asrClient)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	processor.Start()

	if err := tcpServer.Start(); err != nil {
		logger.Error("Failed to start command server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.Port)),
	)

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop surfaces first so no new work arrives, then drain the streams,
	// then stop the loop.
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	if err := tcpServer.Stop(); err != nil {
		logger.Error("Error stopping command server", slog.String("error", err.Error()))
	}

	registry.StopAll()
	processor.Stop()

	if err := asrClient.Close(); err != nil {
		logger.Error("Error closing transcription client", slog.String("error", err.Error()))
	}

	stats := tcpServer.GetStatistics()
	logger.Info("Final server statistics",
		slog.Uint64("connections_total", stats.ConnectionsTotal),
		slog.Uint64("commands_total", stats.CommandsTotal),
		slog.Uint64("command_errors", stats.CommandErrors),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
