// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads agentd settings from defaults, an optional YAML or
// JSON file, and AGENTD_* environment overrides, in that order.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the full agentd configuration.
type Settings struct {
	Server     ServerSettings     `yaml:"server" json:"server"`
	Logging    LoggingSettings    `yaml:"logging" json:"logging"`
	LLM        LLMSettings        `yaml:"llm" json:"llm"`
	Resilience ResilienceSettings `yaml:"resilience" json:"resilience"`
	Compaction CompactionSettings `yaml:"compaction" json:"compaction"`
	Pipeline   PipelineSettings   `yaml:"pipeline" json:"pipeline"`
	Storage    StorageSettings    `yaml:"storage" json:"storage"`
}

// ServerSettings configures the HTTP listener.
type ServerSettings struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
}

// LoggingSettings configures slog output.
type LoggingSettings struct {
	// Level is debug, info, warn, or error.
	Level string `yaml:"level" json:"level"`

	// Format is json or text.
	Format string `yaml:"format" json:"format"`
}

// LLMSettings selects the model chain.
type LLMSettings struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Provider is googleai, anthropic, openai, or openrouter.
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	APIKey   string `yaml:"api_key" json:"api_key"`
	BaseURL  string `yaml:"base_url" json:"base_url"`

	// FallbackModels are tried in order after the primary fails.
	FallbackModels []FallbackModel `yaml:"fallback_models" json:"fallback_models"`

	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" json:"max_tokens"`

	// CountTokensTimeout bounds authoritative token-count calls.
	CountTokensTimeout time.Duration `yaml:"count_tokens_timeout" json:"count_tokens_timeout"`
}

// FallbackModel is one entry of the fallback chain.
type FallbackModel struct {
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	APIKey   string `yaml:"api_key" json:"api_key"`
	BaseURL  string `yaml:"base_url" json:"base_url"`
}

// ResilienceSettings guards every model call.
type ResilienceSettings struct {
	// RateMaxCalls admissions per RateWindow (sliding).
	RateMaxCalls int           `yaml:"rate_max_calls" json:"rate_max_calls"`
	RateWindow   time.Duration `yaml:"rate_window" json:"rate_window"`

	// BreakerThreshold consecutive failures open the circuit for
	// BreakerRecovery.
	BreakerThreshold int           `yaml:"breaker_threshold" json:"breaker_threshold"`
	BreakerRecovery  time.Duration `yaml:"breaker_recovery" json:"breaker_recovery"`
}

// CompactionSettings tunes context compaction.
type CompactionSettings struct {
	Enabled             bool    `yaml:"enabled" json:"enabled"`
	ContextWindowTokens int     `yaml:"context_window_tokens" json:"context_window_tokens"`
	SoftLimitRatio      float64 `yaml:"soft_limit_ratio" json:"soft_limit_ratio"`
	TriggerMinMessages  int     `yaml:"trigger_min_messages" json:"trigger_min_messages"`
	MinRecentMessages   int     `yaml:"min_recent_messages" json:"min_recent_messages"`
	RecentTurnsKeep     int     `yaml:"recent_turns_keep" json:"recent_turns_keep"`
	MaxBatch            int     `yaml:"max_batch" json:"max_batch"`
	SummaryMaxChars     int     `yaml:"summary_max_chars" json:"summary_max_chars"`
	SnippetMaxChars     int     `yaml:"snippet_max_chars" json:"snippet_max_chars"`
}

// PipelineSettings tunes the guardian and planner stages.
type PipelineSettings struct {
	PatternsEnabled            bool          `yaml:"patterns_enabled" json:"patterns_enabled"`
	PatternConfidenceThreshold float64       `yaml:"pattern_confidence_threshold" json:"pattern_confidence_threshold"`
	ProactiveCooldown          time.Duration `yaml:"proactive_cooldown" json:"proactive_cooldown"`
	MaxOutputBytes             int           `yaml:"max_output_bytes" json:"max_output_bytes"`
	OutputHeadLines            int           `yaml:"output_head_lines" json:"output_head_lines"`
	OutputTailLines            int           `yaml:"output_tail_lines" json:"output_tail_lines"`
}

// StorageSettings selects the session/checkpoint backend.
type StorageSettings struct {
	// Backend is memory or badger.
	Backend string `yaml:"backend" json:"backend"`

	// Path is the badger directory (ignored for memory).
	Path string `yaml:"path" json:"path"`

	// SessionTTL expires idle badger session entries. Zero disables.
	SessionTTL time.Duration `yaml:"session_ttl" json:"session_ttl"`
}

// Default returns production defaults.
func Default() Settings {
	return Settings{
		Server: ServerSettings{
			Host: "0.0.0.0",
			Port: 8780,
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "json",
		},
		LLM: LLMSettings{
			Enabled:            true,
			Provider:           "googleai",
			Model:              "gemini-2.0-flash",
			Temperature:        0.4,
			CountTokensTimeout: 3 * time.Second,
		},
		Resilience: ResilienceSettings{
			RateMaxCalls:     1,
			RateWindow:       time.Second,
			BreakerThreshold: 5,
			BreakerRecovery:  30 * time.Second,
		},
		Compaction: CompactionSettings{
			Enabled:             true,
			ContextWindowTokens: 1_000_000,
			SoftLimitRatio:      0.70,
			TriggerMinMessages:  6,
			MinRecentMessages:   2,
			RecentTurnsKeep:     3,
			MaxBatch:            30,
			SummaryMaxChars:     2000,
			SnippetMaxChars:     180,
		},
		Pipeline: PipelineSettings{
			PatternsEnabled:            true,
			PatternConfidenceThreshold: 0.7,
			ProactiveCooldown:          2 * time.Minute,
			MaxOutputBytes:             50 * 1024,
			OutputHeadLines:            20,
			OutputTailLines:            20,
		},
		Storage: StorageSettings{
			Backend:    "memory",
			SessionTTL: 24 * time.Hour,
		},
	}
}

// Load builds settings from defaults, the optional file at path, and
// AGENTD_* environment variables, then validates.
func Load(path string) (Settings, error) {
	s := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("config: read %s: %w", path, err)
		}
		if strings.HasSuffix(path, ".json") {
			err = json.Unmarshal(raw, &s)
		} else {
			err = yaml.Unmarshal(raw, &s)
		}
		if err != nil {
			return s, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	s.applyEnv()

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// applyEnv overlays AGENTD_* environment variables. Parse failures keep
// the prior value rather than aborting startup.
func (s *Settings) applyEnv() {
	setString(&s.Server.Host, "AGENTD_HOST")
	setInt(&s.Server.Port, "AGENTD_PORT")
	setString(&s.Logging.Level, "AGENTD_LOG_LEVEL")
	setString(&s.Logging.Format, "AGENTD_LOG_FORMAT")

	setBool(&s.LLM.Enabled, "AGENTD_LLM_ENABLED")
	setString(&s.LLM.Provider, "AGENTD_LLM_PROVIDER")
	setString(&s.LLM.Model, "AGENTD_LLM_MODEL")
	setString(&s.LLM.APIKey, "AGENTD_LLM_API_KEY")
	setString(&s.LLM.BaseURL, "AGENTD_LLM_BASE_URL")
	setFloat(&s.LLM.Temperature, "AGENTD_LLM_TEMPERATURE")
	setInt(&s.LLM.MaxTokens, "AGENTD_LLM_MAX_TOKENS")
	setDuration(&s.LLM.CountTokensTimeout, "AGENTD_COUNT_TOKENS_TIMEOUT")

	setInt(&s.Resilience.RateMaxCalls, "AGENTD_RATE_MAX_CALLS")
	setDuration(&s.Resilience.RateWindow, "AGENTD_RATE_WINDOW")
	setInt(&s.Resilience.BreakerThreshold, "AGENTD_BREAKER_THRESHOLD")
	setDuration(&s.Resilience.BreakerRecovery, "AGENTD_BREAKER_RECOVERY")

	setBool(&s.Compaction.Enabled, "AGENTD_COMPACTION_ENABLED")
	setInt(&s.Compaction.ContextWindowTokens, "AGENTD_CONTEXT_WINDOW_TOKENS")
	setFloat(&s.Compaction.SoftLimitRatio, "AGENTD_SOFT_LIMIT_RATIO")

	setBool(&s.Pipeline.PatternsEnabled, "AGENTD_PATTERNS_ENABLED")
	setFloat(&s.Pipeline.PatternConfidenceThreshold, "AGENTD_PATTERN_CONFIDENCE_THRESHOLD")
	setDuration(&s.Pipeline.ProactiveCooldown, "AGENTD_PROACTIVE_COOLDOWN")

	setString(&s.Storage.Backend, "AGENTD_STORAGE_BACKEND")
	setString(&s.Storage.Path, "AGENTD_STORAGE_PATH")
	setDuration(&s.Storage.SessionTTL, "AGENTD_SESSION_TTL")
}

// Validate rejects settings the process cannot run with.
func (s *Settings) Validate() error {
	if s.Server.Port < 1 || s.Server.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", s.Server.Port)
	}
	switch s.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", s.Logging.Level)
	}
	switch s.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown log format %q", s.Logging.Format)
	}
	if s.LLM.Enabled && s.LLM.APIKey == "" {
		return errors.New("config: llm enabled but no api key set")
	}
	if s.Resilience.RateMaxCalls < 1 {
		return errors.New("config: rate_max_calls must be >= 1")
	}
	if s.Resilience.RateWindow <= 0 {
		return errors.New("config: rate_window must be positive")
	}
	if s.Resilience.BreakerThreshold < 1 {
		return errors.New("config: breaker_threshold must be >= 1")
	}
	if s.Compaction.SoftLimitRatio <= 0 || s.Compaction.SoftLimitRatio > 1 {
		return fmt.Errorf("config: soft_limit_ratio %f out of (0, 1]", s.Compaction.SoftLimitRatio)
	}
	if s.Pipeline.PatternConfidenceThreshold < 0 || s.Pipeline.PatternConfidenceThreshold > 1 {
		return errors.New("config: pattern_confidence_threshold out of [0, 1]")
	}
	switch s.Storage.Backend {
	case "memory":
	case "badger":
		if s.Storage.Path == "" {
			return errors.New("config: badger backend requires storage path")
		}
	default:
		return fmt.Errorf("config: unknown storage backend %q", s.Storage.Backend)
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
