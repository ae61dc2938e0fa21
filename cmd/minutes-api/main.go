package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"minutes-studio/internal/config"
	"minutes-studio/internal/httpapi"
	"minutes-studio/internal/minutes"
	"minutes-studio/internal/observability"
	"minutes-studio/internal/pipeline"
	"minutes-studio/internal/storage"
	"minutes-studio/internal/stylecorpus"
	"minutes-studio/internal/styleguide"
	"minutes-studio/internal/transcription"
	"minutes-studio/internal/upstream/gemini"
)

// generator is the model surface shared by the AI-backed services.
type generator interface {
	transcription.Generator
	CheckModel(ctx context.Context, model string) error
}

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	metrics := observability.NewMetrics()

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	upstreamHTTPClient := &http.Client{Timeout: cfg.UpstreamTimeout + 30*time.Second, Transport: transport}

	// Left as a nil interface in mock mode so every service sees no client.
	var model generator
	if cfg.AIEnabled() {
		client, err := gemini.New(startupCtx, cfg.GeminiAPIKey, cfg.GeminiBaseURL, upstreamHTTPClient, gemini.WithObserver(metrics.ObserveUpstream))
		if err != nil {
			logger.Error("gemini client init failed", "error", err)
			os.Exit(1)
		}
		model = client
		logger.Info("ai mode", "mode", "live", "transcription_models", cfg.TranscriptionModels(), "minutes_model", cfg.MinutesModel)
	} else {
		logger.Warn("GEMINI_API_KEY is not set, serving mock results")
	}

	var uploads httpapi.UploadSigner
	var objects pipeline.ObjectFetcher
	switch {
	case cfg.Storage.Enabled():
		store, err := storage.New(startupCtx, storage.Config{
			Region:          cfg.Storage.Region,
			Bucket:          cfg.Storage.Bucket,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			Endpoint:        cfg.Storage.Endpoint,
		})
		if err != nil {
			logger.Error("storage init failed", "error", err)
			os.Exit(1)
		}
		uploads, objects = store, store
		logger.Info("storage enabled", "bucket", cfg.Storage.Bucket, "region", cfg.Storage.Region)
	case cfg.Storage.Partial():
		logger.Warn("storage is partially configured and stays disabled; set AWS_REGION, S3_UPLOAD_BUCKET, AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY together")
	}

	basePrompt, err := config.LoadPrompt(cfg.MinutesPromptFile, minutes.DefaultSystemPrompt)
	if err != nil {
		logger.Error("minutes prompt load failed", "error", err)
		os.Exit(1)
	}

	hooks := transcription.Hooks{
		OnFallback:   metrics.IncTranscriptionFallback,
		OnFileFailed: metrics.IncAudioFileFailed,
	}
	transcriber := transcription.New(model, cfg.TranscriptionModels(), cfg.UpstreamTimeout, logger, hooks)
	guidelines := styleguide.New(model, cfg.StyleModel, cfg.UpstreamTimeout)
	synthesizer := minutes.New(model, cfg.MinutesModel, basePrompt, cfg.UpstreamTimeout)

	var upstream httpapi.UpstreamChecker
	if model != nil {
		upstream = model
	}

	pipelineService := pipeline.New(pipeline.Dependencies{
		Transcriber: transcriber,
		Extractor:   stylecorpus.New(logger, metrics.IncStyleFileSkipped),
		Guidelines:  guidelines,
		Minutes:     synthesizer,
		Storage:     objects,
		UsedAI:      model != nil,
	})

	handler := httpapi.NewServer(cfg, logger, httpapi.Dependencies{
		Pipeline:       pipelineService,
		Uploads:        uploads,
		Upstream:       upstream,
		Metrics:        metrics,
		MetricsHandler: metrics.Handler(),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      20 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("server exited", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func newLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn", "warning":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}
