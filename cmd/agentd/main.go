// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command agentd starts the shell-watching agent server.
//
// agentd observes shell commands and chat messages, decides whether to
// speak, stay silent, block, or ask for confirmation, and produces
// model-backed responses behind rate limiting and circuit breaking.
//
// Usage:
//
//	go run ./cmd/agentd
//	go run ./cmd/agentd -config agentd.yaml
//	AGENTD_LLM_API_KEY=... go run ./cmd/agentd -port 9090
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8780/healthz
//
//	# Report a failed command
//	curl -X POST http://localhost:8780/v1/terminal \
//	  -H "Content-Type: application/json" \
//	  -d '{"user_id": "dev1", "command": "git sttaus", "exit_code": 1}'
//
//	# Chat (SSE stream)
//	curl -N -X POST http://localhost:8780/v1/chat \
//	  -H "Content-Type: application/json" \
//	  -d '{"user_id": "dev1", "message": "what does ls -la do?"}'
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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/shellsense/agent"
	"github.com/AleutianAI/shellsense/agent/compact"
	"github.com/AleutianAI/shellsense/agent/llm"
	"github.com/AleutianAI/shellsense/agent/patterns"
	"github.com/AleutianAI/shellsense/agent/resilience"
	"github.com/AleutianAI/shellsense/agent/safety"
	"github.com/AleutianAI/shellsense/agent/silence"
	"github.com/AleutianAI/shellsense/config"
	"github.com/AleutianAI/shellsense/conversation"
	"github.com/AleutianAI/shellsense/server"
	"github.com/AleutianAI/shellsense/session"
	"github.com/AleutianAI/shellsense/telemetry"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML or JSON config file")
	port := flag.Int("port", 0, "Override listen port")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *port != 0 {
		settings.Server.Port = *port
	}

	setupLogging(settings.Logging, *debug)

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := telemetry.NewMetrics(nil)

	sessions, checkpoints, err := openStores(settings.Storage)
	if err != nil {
		slog.Error("failed to open stores", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		if err := sessions.Close(); err != nil {
			slog.Error("session store close failed", slog.String("error", err.Error()))
		}
		if err := checkpoints.Close(); err != nil {
			slog.Error("checkpoint store close failed", slog.String("error", err.Error()))
		}
	}()

	ctx := context.Background()

	var client *resilience.Client
	var compactor *compact.Compactor
	if settings.LLM.Enabled {
		client, err = buildLLMClient(ctx, settings, metrics)
		if err != nil {
			slog.Error("failed to build llm client", slog.String("error", err.Error()))
			os.Exit(1)
		}
		compactor = compact.NewCompactor(compact.Config{
			Enabled:             settings.Compaction.Enabled,
			ContextWindowTokens: settings.Compaction.ContextWindowTokens,
			SoftLimitRatio:      settings.Compaction.SoftLimitRatio,
			TriggerMinMessages:  settings.Compaction.TriggerMinMessages,
			MinRecentMessages:   settings.Compaction.MinRecentMessages,
			RecentTurnsKeep:     settings.Compaction.RecentTurnsKeep,
			MaxBatch:            settings.Compaction.MaxBatch,
			SummaryMaxChars:     settings.Compaction.SummaryMaxChars,
			SnippetMaxChars:     settings.Compaction.SnippetMaxChars,
		}, client, slog.Default(), metrics)
	} else {
		slog.Info("llm disabled, planner will stay silent")
	}

	pipeline, err := agent.NewPipeline(agent.Config{
		LLMEnabled:                 settings.LLM.Enabled,
		PatternsEnabled:            settings.Pipeline.PatternsEnabled,
		PatternConfidenceThreshold: settings.Pipeline.PatternConfidenceThreshold,
		MaxOutputBytes:             settings.Pipeline.MaxOutputBytes,
		OutputHeadLines:            settings.Pipeline.OutputHeadLines,
		OutputTailLines:            settings.Pipeline.OutputTailLines,
		Temperature:                settings.LLM.Temperature,
		MaxTokens:                  settings.LLM.MaxTokens,
	}, agent.Deps{
		Safety:      safety.NewChecker(),
		Patterns:    patterns.NewEngine(),
		Silence:     silence.NewChecker(settings.Pipeline.ProactiveCooldown),
		Sessions:    sessions,
		Checkpoints: checkpoints,
		LLM:         client,
		Compactor:   compactor,
		Metrics:     metrics,
	})
	if err != nil {
		slog.Error("failed to build pipeline", slog.String("error", err.Error()))
		os.Exit(1)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if *debug {
		router.Use(gin.Logger())
	}
	server.RegisterRoutes(router, server.Deps{
		Pipeline:    pipeline,
		Sessions:    sessions,
		Checkpoints: checkpoints,
	})

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("shutting down agentd")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown failed", slog.String("error", err.Error()))
		}
	}()

	slog.Info("starting agentd",
		slog.String("address", addr),
		slog.String("version", server.Version),
		slog.Bool("llm_enabled", settings.LLM.Enabled))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// setupLogging installs the process-wide slog handler.
func setupLogging(cfg config.LoggingSettings, debug bool) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if debug {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// openStores builds the session and checkpoint stores per configuration.
func openStores(cfg config.StorageSettings) (session.Store, conversation.CheckpointStore, error) {
	if cfg.Backend == "memory" {
		return session.NewMemoryStore(), conversation.NewMemoryStore(), nil
	}

	sessions, err := session.NewBadgerStore(session.BadgerStoreConfig{
		Path: cfg.Path + "/sessions",
		TTL:  cfg.SessionTTL,
	})
	if err != nil {
		return nil, nil, err
	}
	checkpoints, err := conversation.NewBadgerStore(conversation.BadgerStoreConfig{
		Path: cfg.Path + "/threads",
	})
	if err != nil {
		_ = sessions.Close()
		return nil, nil, err
	}
	return sessions, checkpoints, nil
}

// buildLLMClient assembles the provider chain and token counter.
func buildLLMClient(ctx context.Context, settings config.Settings, metrics *telemetry.Metrics) (*resilience.Client, error) {
	primary, err := llm.NewClient(ctx, llm.ClientConfig{
		Provider: settings.LLM.Provider,
		Model:    settings.LLM.Model,
		APIKey:   settings.LLM.APIKey,
		BaseURL:  settings.LLM.BaseURL,
	})
	if err != nil {
		return nil, err
	}

	entries := []resilience.ModelEntry{{
		Name:             settings.LLM.Model,
		Provider:         primary,
		MaxCalls:         settings.Resilience.RateMaxCalls,
		Window:           settings.Resilience.RateWindow,
		BreakerThreshold: settings.Resilience.BreakerThreshold,
		BreakerRecovery:  settings.Resilience.BreakerRecovery,
	}}

	for _, fb := range settings.LLM.FallbackModels {
		apiKey := fb.APIKey
		if apiKey == "" {
			apiKey = settings.LLM.APIKey
		}
		provider, err := llm.NewClient(ctx, llm.ClientConfig{
			Provider: fb.Provider,
			Model:    fb.Model,
			APIKey:   apiKey,
			BaseURL:  fb.BaseURL,
		})
		if err != nil {
			slog.Warn("skipping fallback model",
				slog.String("model", fb.Model),
				slog.String("error", err.Error()))
			continue
		}
		entries = append(entries, resilience.ModelEntry{
			Name:             fb.Model,
			Provider:         provider,
			MaxCalls:         settings.Resilience.RateMaxCalls,
			Window:           settings.Resilience.RateWindow,
			BreakerThreshold: settings.Resilience.BreakerThreshold,
			BreakerRecovery:  settings.Resilience.BreakerRecovery,
		})
	}

	// Authoritative token counting is only available through Gemini.
	var counter llm.TokenCounter
	switch settings.LLM.Provider {
	case "googleai", "gemini":
		counter, err = llm.NewGeminiTokenCounter(ctx, settings.LLM.APIKey, settings.LLM.Model)
		if err != nil {
			slog.Warn("token counter unavailable, using estimates",
				slog.String("error", err.Error()))
			counter = nil
		}
	}

	return resilience.NewClient(resilience.ClientConfig{
		Models:       entries,
		Counter:      counter,
		CountTimeout: settings.LLM.CountTokensTimeout,
		Metrics:      metrics,
	})
}
