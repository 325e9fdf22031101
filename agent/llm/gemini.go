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
	"fmt"

	"google.golang.org/genai"
)

// GeminiTokenCounter provides authoritative token counts through the
// Gemini countTokens endpoint.
//
// Thread Safety: GeminiTokenCounter is safe for concurrent use.
type GeminiTokenCounter struct {
	client *genai.Client
	model  string
}

// NewGeminiTokenCounter creates a counter bound to one model.
//
// Inputs:
//
//	ctx - Context for client construction.
//	apiKey - Gemini API key.
//	model - Model name the counts are computed against.
func NewGeminiTokenCounter(ctx context.Context, apiKey, model string) (*GeminiTokenCounter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("llm: gemini token counter: api key required")
	}
	if model == "" {
		return nil, fmt.Errorf("llm: gemini token counter: model required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("llm: gemini token counter: %w", err)
	}
	return &GeminiTokenCounter{client: client, model: model}, nil
}

// CountTokens implements TokenCounter.
//
// Callers bound ctx with a timeout; a slow count must not stall the
// request path.
func (c *GeminiTokenCounter) CountTokens(ctx context.Context, messages []Message) (int, error) {
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	resp, err := c.client.Models.CountTokens(ctx, c.model, contents, nil)
	if err != nil {
		return 0, fmt.Errorf("llm: count tokens: %w", err)
	}
	return int(resp.TotalTokens), nil
}
