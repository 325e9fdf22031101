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
	"strings"
	"testing"
)

func TestUsageFromGenerationInfo(t *testing.T) {
	tests := []struct {
		name string
		info map[string]any
		want Usage
	}{
		{
			name: "openai style",
			info: map[string]any{
				"PromptTokens":     10,
				"CompletionTokens": 5,
				"TotalTokens":      15,
			},
			want: Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
		{
			name: "anthropic snake case",
			info: map[string]any{
				"input_tokens":  int64(7),
				"output_tokens": int64(3),
			},
			want: Usage{PromptTokens: 7, CompletionTokens: 3, TotalTokens: 10},
		},
		{
			name: "gemini counts as floats",
			info: map[string]any{
				"prompt_token_count":     float64(20),
				"candidates_token_count": float64(8),
				"total_token_count":      float64(28),
			},
			want: Usage{PromptTokens: 20, CompletionTokens: 8, TotalTokens: 28},
		},
		{
			name: "empty info",
			info: nil,
			want: Usage{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := usageFromGenerationInfo(tt.info); got != tt.want {
				t.Errorf("usageFromGenerationInfo() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewClient_UnknownProvider(t *testing.T) {
	_, err := NewClient(context.Background(), ClientConfig{
		Provider: "mainframe",
		Model:    "m",
		APIKey:   "k",
	})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestNewClient_MissingCredentials(t *testing.T) {
	if _, err := NewClient(context.Background(), ClientConfig{Provider: "openai", Model: "gpt-4o"}); err == nil {
		t.Error("expected error without api key")
	}
	if _, err := NewClient(context.Background(), ClientConfig{Provider: "openai", APIKey: "k"}); err == nil {
		t.Error("expected error without model")
	}
}

func TestTruncateOutput(t *testing.T) {
	lines := make([]string, 100)
	for i := range lines {
		lines[i] = strings.Repeat("x", 1024)
	}
	big := strings.Join(lines, "\n")

	got := TruncateOutput(big, 50*1024, 20, 20)
	if len(got) >= len(big) {
		t.Fatalf("output not truncated: %d bytes", len(got))
	}
	if !strings.Contains(got, "[60 lines truncated]") {
		t.Errorf("missing elision marker in %q", got[:200])
	}
	gotLines := strings.Split(got, "\n")
	if len(gotLines) != 41 {
		t.Errorf("kept %d lines, want 41 (20 head + marker + 20 tail)", len(gotLines))
	}
}

func TestTruncateOutput_SmallPassesThrough(t *testing.T) {
	out := "total 4\ndrwxr-xr-x"
	if got := TruncateOutput(out, 50*1024, 20, 20); got != out {
		t.Errorf("small output changed: %q", got)
	}
}

func TestTruncateOutput_FewHugeLines(t *testing.T) {
	big := strings.Repeat("a", 200*1024)
	got := TruncateOutput(big, 1024, 20, 20)
	if !strings.HasSuffix(got, "[output truncated]") {
		t.Errorf("expected byte-level truncation marker, got tail %q", got[len(got)-40:])
	}
}

func TestBuildTerminalPrompt(t *testing.T) {
	prompt := BuildTerminalPrompt(TerminalEvent{
		Command:  "git sttaus",
		ExitCode: 1,
		Cwd:      "/home/dev/proj",
		Output:   "git: 'sttaus' is not a git command.",
	}, 50*1024, 20, 20)

	for _, want := range []string{
		"Command: git sttaus",
		"Exit code: 1",
		"Working directory: /home/dev/proj",
		"git: 'sttaus' is not a git command.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestComposeSystemPrompt(t *testing.T) {
	base := SystemPrompt()
	if got := ComposeSystemPrompt(base, ""); got != base {
		t.Error("empty summary must leave the base prompt unchanged")
	}
	got := ComposeSystemPrompt(base, "- user: asked about ls")
	if !strings.Contains(got, "- user: asked about ls") {
		t.Error("summary not appended")
	}
	if !strings.HasPrefix(got, base) {
		t.Error("base prompt must come first")
	}
}

func TestMockProvider_Script(t *testing.T) {
	mock := NewMockProvider("fallback")
	mock.QueueResponse("first")
	mock.QueueError(errors.New("boom"))

	gen, err := mock.Invoke(context.Background(), []Message{{Role: RoleUser, Content: "hi"}}, Options{})
	if err != nil || gen.Content != "first" {
		t.Fatalf("first call = (%v, %v)", gen, err)
	}
	if _, err := mock.Invoke(context.Background(), nil, Options{}); err == nil {
		t.Fatal("second call should fail")
	}
	gen, err = mock.Invoke(context.Background(), nil, Options{})
	if err != nil || gen.Content != "fallback" {
		t.Fatalf("drained queue should return default, got (%v, %v)", gen, err)
	}
	if mock.CallCount() != 3 {
		t.Errorf("CallCount() = %d, want 3", mock.CallCount())
	}
}

func TestMockProvider_Streaming(t *testing.T) {
	mock := NewMockProvider("streamed reply")
	var chunks []string
	gen, err := mock.Invoke(context.Background(), nil, Options{
		StreamFunc: func(ctx context.Context, chunk []byte) error {
			chunks = append(chunks, string(chunk))
			return nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(chunks, "") != gen.Content {
		t.Errorf("streamed %q, final %q", strings.Join(chunks, ""), gen.Content)
	}
}
