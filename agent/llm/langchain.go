// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"
)

// openRouterBaseURL is the OpenAI-compatible endpoint OpenRouter exposes.
const openRouterBaseURL = "https://openrouter.ai/api/v1"

// ClientConfig selects and authenticates a model backend.
type ClientConfig struct {
	// Provider is one of "googleai", "anthropic", "openai", "openrouter".
	Provider string

	// Model is the provider-specific model name.
	Model string

	// APIKey authenticates against the provider.
	APIKey string

	// BaseURL overrides the provider endpoint. Optional; openrouter sets
	// its own default.
	BaseURL string
}

// LangChainProvider adapts a langchaingo model to the Provider interface.
//
// Thread Safety: LangChainProvider is immutable after construction and safe
// for concurrent use when the underlying model is.
type LangChainProvider struct {
	model llms.Model
	name  string
}

// NewLangChainProvider wraps an already-constructed langchaingo model.
func NewLangChainProvider(model llms.Model, name string) *LangChainProvider {
	return &LangChainProvider{model: model, name: name}
}

// NewClient builds a Provider from configuration.
//
// Description:
//
//	Dispatches on cfg.Provider and constructs the matching langchaingo
//	backend. OpenRouter reuses the OpenAI client against OpenRouter's
//	compatible endpoint.
//
// Outputs:
//
//	Provider - Ready-to-use model client.
//	error - Unknown provider name or backend construction failure.
func NewClient(ctx context.Context, cfg ClientConfig) (Provider, error) {
	if cfg.Model == "" {
		return nil, errors.New("llm: model name required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("llm: api key required")
	}

	switch strings.ToLower(cfg.Provider) {
	case "googleai", "gemini":
		model, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("llm: googleai client: %w", err)
		}
		return NewLangChainProvider(model, "googleai"), nil

	case "anthropic":
		opts := []anthropic.Option{
			anthropic.WithToken(cfg.APIKey),
			anthropic.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		model, err := anthropic.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("llm: anthropic client: %w", err)
		}
		return NewLangChainProvider(model, "anthropic"), nil

	case "openai":
		opts := []openai.Option{
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		model, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("llm: openai client: %w", err)
		}
		return NewLangChainProvider(model, "openai"), nil

	case "openrouter":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = openRouterBaseURL
		}
		model, err := openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
			openai.WithBaseURL(baseURL))
		if err != nil {
			return nil, fmt.Errorf("llm: openrouter client: %w", err)
		}
		return NewLangChainProvider(model, "openrouter"), nil

	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// Invoke implements Provider.
func (p *LangChainProvider) Invoke(
	ctx context.Context,
	messages []Message,
	opts Options,
) (*Generation, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		content = append(content, llms.TextParts(chatMessageType(m.Role), m.Content))
	}

	callOpts := []llms.CallOption{}
	if opts.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(opts.Temperature))
	}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}
	if opts.StreamFunc != nil {
		callOpts = append(callOpts, llms.WithStreamingFunc(opts.StreamFunc))
	}

	resp, err := p.model.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return nil, fmt.Errorf("llm: %s generate: %w", p.name, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("llm: %s returned no choices", p.name)
	}

	choice := resp.Choices[0]
	return &Generation{
		Content: choice.Content,
		Usage:   usageFromGenerationInfo(choice.GenerationInfo),
	}, nil
}

// Name implements Provider.
func (p *LangChainProvider) Name() string {
	return p.name
}

func chatMessageType(role string) llms.ChatMessageType {
	switch role {
	case RoleSystem:
		return llms.ChatMessageTypeSystem
	case RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// usageFromGenerationInfo normalizes the per-provider usage metadata.
// Each backend reports counts under its own keys and numeric types, so
// every alias is tried in order and the first present one wins.
func usageFromGenerationInfo(info map[string]any) Usage {
	if len(info) == 0 {
		return Usage{}
	}
	usage := Usage{
		PromptTokens: intFromInfo(info,
			"PromptTokens", "prompt_tokens", "InputTokens", "input_tokens",
			"prompt_token_count"),
		CompletionTokens: intFromInfo(info,
			"CompletionTokens", "completion_tokens", "OutputTokens",
			"output_tokens", "candidates_token_count"),
		TotalTokens: intFromInfo(info,
			"TotalTokens", "total_tokens", "total_token_count"),
		CachedTokens: intFromInfo(info,
			"CachedTokens", "cached_tokens", "CacheReadInputTokens",
			"cache_read_input_tokens", "cached_content_token_count"),
	}
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return usage
}

func intFromInfo(info map[string]any, keys ...string) int {
	for _, key := range keys {
		v, ok := info[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int:
			return n
		case int32:
			return int(n)
		case int64:
			return int(n)
		case float64:
			return int(n)
		case float32:
			return int(n)
		}
	}
	return 0
}
