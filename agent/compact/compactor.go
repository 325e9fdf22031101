// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compact keeps a conversation inside the model's token budget by
// folding the oldest turns into a rolling summary.
//
// Compaction is single-pass per request: one oversized turn can leave the
// context above the soft limit until the next request compacts again.
//
// Thread Safety:
//
//	Compactor is safe for concurrent use; it holds no mutable state.
package compact

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/shellsense/agent/llm"
	"github.com/AleutianAI/shellsense/agent/resilience"
	"github.com/AleutianAI/shellsense/conversation"
	"github.com/AleutianAI/shellsense/telemetry"
)

// CountModeEstimatedSkipped marks counts produced without any counting
// call because the history was below the trigger minimum.
const CountModeEstimatedSkipped = "estimated_skipped"

// Config tunes the compactor. Zero values are replaced by defaults
// matching DefaultConfig.
type Config struct {
	// Enabled gates steps 3-6; counting still happens when disabled.
	Enabled bool

	// ContextWindowTokens is the model's context window.
	ContextWindowTokens int

	// SoftLimitRatio marks the compaction trigger as a fraction of the
	// window.
	SoftLimitRatio float64

	// TriggerMinMessages is the history length below which no token
	// counting call is made at all.
	TriggerMinMessages int

	// MinRecentMessages is the absolute floor of retained turns.
	MinRecentMessages int

	// RecentTurnsKeep is the number of recent exchanges (user+assistant
	// pairs) to keep; the effective keep-floor is
	// max(MinRecentMessages, RecentTurnsKeep*2).
	RecentTurnsKeep int

	// MaxBatch caps how many turns one pass may remove.
	MaxBatch int

	// SummaryMaxChars caps the rolling summary; oldest content is
	// dropped on overflow.
	SummaryMaxChars int

	// SnippetMaxChars caps each turn snippet in the local fold.
	SnippetMaxChars int

	// SummaryModel pins summarization to one model. Empty walks the
	// fallback chain.
	SummaryModel string
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		ContextWindowTokens: 1_000_000,
		SoftLimitRatio:      0.70,
		TriggerMinMessages:  6,
		MinRecentMessages:   2,
		RecentTurnsKeep:     3,
		MaxBatch:            30,
		SummaryMaxChars:     2000,
		SnippetMaxChars:     180,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ContextWindowTokens <= 0 {
		c.ContextWindowTokens = def.ContextWindowTokens
	}
	if c.SoftLimitRatio <= 0 {
		c.SoftLimitRatio = def.SoftLimitRatio
	}
	if c.TriggerMinMessages <= 0 {
		c.TriggerMinMessages = def.TriggerMinMessages
	}
	if c.MinRecentMessages <= 0 {
		c.MinRecentMessages = def.MinRecentMessages
	}
	if c.RecentTurnsKeep <= 0 {
		c.RecentTurnsKeep = def.RecentTurnsKeep
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = def.MaxBatch
	}
	if c.SummaryMaxChars <= 0 {
		c.SummaryMaxChars = def.SummaryMaxChars
	}
	if c.SnippetMaxChars <= 0 {
		c.SnippetMaxChars = def.SnippetMaxChars
	}
	return c
}

// KeepFloor is the minimum number of most-recent turns a pass retains.
func (c Config) KeepFloor() int {
	floor := c.RecentTurnsKeep * 2
	if c.MinRecentMessages > floor {
		floor = c.MinRecentMessages
	}
	return floor
}

// SoftLimit is the token count above which compaction engages.
func (c Config) SoftLimit() int {
	return int(float64(c.ContextWindowTokens) * c.SoftLimitRatio)
}

// Result is one pass over a thread.
type Result struct {
	// SystemPrompt is the base prompt with the (possibly updated)
	// summary appended.
	SystemPrompt string

	// History is the surviving turn sequence, oldest first.
	History []conversation.Turn

	// RetractIDs are the ids of turns removed by this pass. The caller
	// retracts them from the checkpoint store.
	RetractIDs []string

	// Summary is the rolling summary after the pass.
	Summary string

	// SummaryChanged reports whether Summary differs from the input and
	// must be persisted.
	SummaryChanged bool

	// Compacted reports whether any turns were removed.
	Compacted bool

	// PreTokens and PostTokens are the counts before and after the
	// pass. Without compaction they are equal.
	PreTokens  int
	PostTokens int

	// TokenMode is exact, estimated, or estimated_skipped.
	TokenMode string
}

// Compactor trims conversation context against the token budget.
type Compactor struct {
	cfg     Config
	client  *resilience.Client
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewCompactor creates a compactor over the given resilience client.
func NewCompactor(cfg Config, client *resilience.Client, logger *slog.Logger, metrics *telemetry.Metrics) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{cfg: cfg.withDefaults(), client: client, logger: logger, metrics: metrics}
}

// Compact runs the single-pass procedure over a thread.
//
// Inputs:
//
//	ctx - Context for the counting and summarization calls.
//	thread - Current thread (turns + rolling summary). Not mutated.
//	newTurn - The user text about to be appended, included in counting.
//
// Outputs:
//
//	*Result - Composed prompt, surviving history, retract ids, counts.
//	error - Reserved; the pass degrades internally instead of failing.
func (c *Compactor) Compact(ctx context.Context, thread *conversation.Thread, newTurn string) (*Result, error) {
	history := thread.Turns
	summary := thread.Summary

	res := &Result{
		SystemPrompt: llm.ComposeSystemPrompt(llm.SystemPrompt(), summary),
		History:      history,
		Summary:      summary,
	}

	// Below the trigger minimum counting is not worth a network call.
	if len(history) < c.cfg.TriggerMinMessages {
		res.PreTokens = resilience.EstimateTokens(c.composeMessages(res.SystemPrompt, history, newTurn))
		res.PostTokens = res.PreTokens
		res.TokenMode = CountModeEstimatedSkipped
		c.countRun(CountModeEstimatedSkipped)
		return res, nil
	}

	messages := c.composeMessages(res.SystemPrompt, history, newTurn)
	count, mode := c.client.CountTokens(ctx, messages)
	res.PreTokens = count
	res.PostTokens = count
	res.TokenMode = mode

	if !c.cfg.Enabled || count <= c.cfg.SoftLimit() {
		c.countRun("skipped")
		return res, nil
	}

	keepFloor := c.cfg.KeepFloor()
	if len(history) <= keepFloor {
		c.countRun("noop")
		return res, nil
	}

	batch := len(history) - keepFloor
	if batch > c.cfg.MaxBatch {
		batch = c.cfg.MaxBatch
	}
	removed := history[:batch]
	res.History = history[batch:]
	res.RetractIDs = make([]string, 0, batch)
	for _, t := range removed {
		res.RetractIDs = append(res.RetractIDs, t.ID)
	}

	res.Summary = c.summarize(ctx, summary, removed)
	res.SummaryChanged = res.Summary != summary
	res.SystemPrompt = llm.ComposeSystemPrompt(llm.SystemPrompt(), res.Summary)
	res.Compacted = true

	recount, _ := c.client.CountTokens(ctx, c.composeMessages(res.SystemPrompt, res.History, newTurn))
	res.PostTokens = recount

	c.countRun("compacted")
	if c.metrics != nil {
		c.metrics.TurnsCompacted.Add(float64(batch))
	}
	c.logger.Info("context compacted",
		slog.Int("removed_turns", batch),
		slog.Int("pre_tokens", res.PreTokens),
		slog.Int("post_tokens", res.PostTokens),
		slog.String("token_mode", res.TokenMode))

	return res, nil
}

func (c *Compactor) countRun(result string) {
	if c.metrics != nil {
		c.metrics.CompactionRuns.WithLabelValues(result).Inc()
	}
}

func (c *Compactor) composeMessages(systemPrompt string, history []conversation.Turn, newTurn string) []llm.Message {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	for _, t := range history {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	if newTurn != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: newTurn})
	}
	return messages
}

// summarize folds removed turns into the rolling summary. The LLM path is
// exempt from rate limiting so summarization cannot starve user traffic;
// any failure or empty result falls back to the deterministic local fold.
func (c *Compactor) summarize(ctx context.Context, oldSummary string, removed []conversation.Turn) string {
	if c.client != nil {
		prompt := buildSummaryPrompt(oldSummary, removed, c.cfg.SnippetMaxChars)
		gen, err := c.client.Generate(ctx, resilience.Request{
			Messages: []llm.Message{
				{Role: llm.RoleSystem, Content: summarySystemPrompt},
				{Role: llm.RoleUser, Content: prompt},
			},
			Model:         c.cfg.SummaryModel,
			Node:          "compactor",
			SkipRateLimit: true,
		})
		if err == nil && strings.TrimSpace(gen.Content) != "" {
			return capHead(strings.TrimSpace(gen.Content), c.cfg.SummaryMaxChars)
		}
		if err != nil {
			c.logger.Warn("summary call failed, using local fold",
				slog.String("error", err.Error()))
		}
	}

	merged := oldSummary
	fold := localFold(removed, c.cfg.SnippetMaxChars)
	if merged == "" {
		merged = fold
	} else if fold != "" {
		merged = merged + "\n" + fold
	}
	return capTail(merged, c.cfg.SummaryMaxChars)
}

const summarySystemPrompt = `You compress terminal-assistant conversation history.
Produce a terse bullet summary of facts worth remembering: commands run, errors seen, advice given.
Do not invent details. Output only the summary.`

func buildSummaryPrompt(oldSummary string, removed []conversation.Turn, snippetMax int) string {
	var b strings.Builder
	if oldSummary != "" {
		b.WriteString("Existing summary:\n")
		b.WriteString(oldSummary)
		b.WriteString("\n\n")
	}
	b.WriteString("Turns to fold in:\n")
	b.WriteString(localFold(removed, snippetMax))
	return b.String()
}

// localFold renders removed turns as "- role: snippet" lines.
func localFold(removed []conversation.Turn, snippetMax int) string {
	lines := make([]string, 0, len(removed))
	for _, t := range removed {
		lines = append(lines, fmt.Sprintf("- %s: %s", t.Role, snippet(t.Content, snippetMax)))
	}
	return strings.Join(lines, "\n")
}

func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// capHead keeps the first max characters (LLM summaries front-load the
// important content).
func capHead(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// capTail keeps the last max characters (merged folds grow at the end, so
// overflow drops the oldest content).
func capTail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
