// Package main provides the entry point for the research digest service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/anesthub/research-digest-service/internal/config"
	"github.com/anesthub/research-digest-service/internal/digest"
	"github.com/anesthub/research-digest-service/internal/llm"
	"github.com/anesthub/research-digest-service/internal/observability"
	"github.com/anesthub/research-digest-service/internal/pipeline"
	"github.com/anesthub/research-digest-service/internal/pubmed"
	httpserver "github.com/anesthub/research-digest-service/internal/server/http"
	"github.com/anesthub/research-digest-service/internal/sourceclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("research-digest-service starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	// Bibliographic source client. An NCBI API key raises the permitted
	// request rate, so override the configured limit when one is present.
	rateLimit, burst := cfg.PubMed.RateLimit, cfg.PubMed.BurstSize
	if cfg.PubMed.APIKey != "" && rateLimit < 10 {
		rateLimit, burst = 10, 10
	}
	source := pubmed.New(pubmed.Config{
		BaseURL:    cfg.PubMed.BaseURL,
		APIKey:     cfg.PubMed.APIKey,
		Timeout:    cfg.PubMed.Timeout,
		RateLimit:  rateLimit,
		BurstSize:  burst,
		MaxResults: cfg.PubMed.MaxResults,
		Retry: sourceclient.RetryPolicy{
			MaxAttempts: cfg.PubMed.RetryMaxAttempts,
			BaseDelay:   cfg.PubMed.RetryBaseDelay,
			Multiplier:  cfg.PubMed.RetryMultiplier,
		},
		RawTTL:  cfg.Cache.RawTTL,
		Metrics: metrics,
	})

	// AI enrichment client. Fails here when the API key is absent.
	gemini, err := llm.NewGemini(llm.GeminiConfig{
		APIKey:     cfg.Gemini.APIKey,
		Model:      cfg.Gemini.Model,
		DeepModel:  cfg.Gemini.DeepModel,
		BaseURL:    cfg.Gemini.BaseURL,
		Timeout:    cfg.Gemini.Timeout,
		MaxRetries: cfg.Gemini.MaxRetries,
		Metrics:    metrics,
	})
	if err != nil {
		return fmt.Errorf("create enrichment client: %w", err)
	}

	runner := pipeline.NewRunner(source, gemini, logger, metrics)

	svc := digest.New(digest.Config{
		ResearchTTL:   cfg.Cache.ResearchTTL,
		GuidelineTTL:  cfg.Cache.GuidelineTTL,
		ResearchDays:  cfg.Digest.ResearchDays,
		GuidelineDays: cfg.Digest.GuidelineDays,
		MaxResults:    cfg.Digest.MaxResults,
	}, runner, gemini, logger, metrics, nil)

	httpSrv := httpserver.NewServer(httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, svc, logger)

	// Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if metricsServer != nil {
		go func() {
			logger.Info().Str("address", metricsServer.Addr).Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	// Wait for a shutdown signal or a server failure.
	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server failed")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("research-digest-service stopped")
	return nil
}
