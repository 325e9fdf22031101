// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/shellsense/agent/compact"
	"github.com/AleutianAI/shellsense/agent/llm"
	"github.com/AleutianAI/shellsense/agent/patterns"
	"github.com/AleutianAI/shellsense/agent/resilience"
	"github.com/AleutianAI/shellsense/agent/safety"
	"github.com/AleutianAI/shellsense/agent/silence"
	"github.com/AleutianAI/shellsense/conversation"
	"github.com/AleutianAI/shellsense/session"
	"github.com/AleutianAI/shellsense/telemetry"
)

// Silent reasons produced by the planner itself (the silence checker has
// its own reason set).
const (
	reasonLLMDisabled      = "llm_disabled"
	reasonCommandSucceeded = "command_succeeded"
	reasonEmptyGeneration  = "empty_generation"
)

// Config tunes the pipeline.
type Config struct {
	// LLMEnabled gates the planner's model call entirely.
	LLMEnabled bool

	// PatternsEnabled gates the pattern engine in the guardian stage.
	PatternsEnabled bool

	// PatternConfidenceThreshold is the minimum confidence for a pattern
	// match to become the outcome.
	PatternConfidenceThreshold float64

	// MaxOutputBytes bounds command output included in prompts.
	MaxOutputBytes int

	// OutputHeadLines and OutputTailLines shape output truncation.
	OutputHeadLines int
	OutputTailLines int

	// Temperature and MaxTokens are passed to the model call.
	Temperature float64
	MaxTokens   int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		LLMEnabled:                 true,
		PatternsEnabled:            true,
		PatternConfidenceThreshold: 0.7,
		MaxOutputBytes:             50 * 1024,
		OutputHeadLines:            20,
		OutputTailLines:            20,
		Temperature:                0.4,
	}
}

// Deps are the pipeline's collaborators.
type Deps struct {
	Safety      *safety.Checker
	Patterns    *patterns.Engine
	Silence     *silence.Checker
	Sessions    session.Store
	Checkpoints conversation.CheckpointStore
	LLM         *resilience.Client
	Compactor   *compact.Compactor
	Logger      *slog.Logger
	Metrics     *telemetry.Metrics
}

// Pipeline is the decision pipeline over one set of collaborators.
type Pipeline struct {
	cfg         Config
	safety      *safety.Checker
	patterns    *patterns.Engine
	silence     *silence.Checker
	sessions    session.Store
	checkpoints conversation.CheckpointStore
	llm         *resilience.Client
	compactor   *compact.Compactor
	logger      *slog.Logger
	metrics     *telemetry.Metrics
}

// NewPipeline wires a pipeline. Safety, Silence, Sessions, and
// Checkpoints are required; LLM and Compactor may be nil only when
// cfg.LLMEnabled is false.
func NewPipeline(cfg Config, deps Deps) (*Pipeline, error) {
	if deps.Safety == nil || deps.Silence == nil {
		return nil, errors.New("agent: safety and silence checkers required")
	}
	if deps.Sessions == nil || deps.Checkpoints == nil {
		return nil, errors.New("agent: session and checkpoint stores required")
	}
	if cfg.LLMEnabled && (deps.LLM == nil || deps.Compactor == nil) {
		return nil, errors.New("agent: llm client and compactor required when llm enabled")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:         cfg,
		safety:      deps.Safety,
		patterns:    deps.Patterns,
		silence:     deps.Silence,
		sessions:    deps.Sessions,
		checkpoints: deps.Checkpoints,
		llm:         deps.LLM,
		compactor:   deps.Compactor,
		logger:      logger,
		metrics:     deps.Metrics,
	}, nil
}

// ProcessTurn decides on one observed shell command.
//
// Description:
//
//	Runs the guardian stage (safety, silence, pattern checks fanned out
//	concurrently, then resolved by fixed priority) and, when no check is
//	terminal, the planner stage. All session and checkpoint side effects
//	complete before the response is returned.
//
// Outputs:
//
//	[]Response - Deduped responses; exactly one element today.
//	error - *ValidationError for malformed identity, nil otherwise.
func (p *Pipeline) ProcessTurn(ctx context.Context, in TerminalInput) ([]Response, error) {
	userID, sessionID, err := ValidateIdentity(in.UserID, in.SessionID)
	if err != nil {
		return nil, err
	}
	log := p.logger.With(
		slog.String("user_id", userID),
		slog.String("session_id", sessionID))

	sess := p.loadSession(userID, sessionID, log)

	state := p.advance(StateStart, StateGuardian)
	resp, terminal := p.runGuardian(ctx, sess, in, log)
	if terminal {
		state = p.advance(state, StateTerminal)
		p.advance(state, StateEnd)
		p.saveSession(sess, sessionID, log)
		p.countRequest("terminal", resp.Kind)
		return Dedup([]Response{resp}), nil
	}

	state = p.advance(state, StatePlanner)
	resp = p.runPlanner(ctx, sess, sessionID, in, log)
	p.advance(state, StateEnd)
	p.saveSession(sess, sessionID, log)
	p.countRequest("terminal", resp.Kind)
	return Dedup([]Response{resp}), nil
}

// ProcessChatTurn handles a direct chat message. Guardian checks and the
// exit-code gate do not apply; the model is always consulted unless the
// LLM is disabled. stream receives content chunks as they arrive and may
// be nil.
func (p *Pipeline) ProcessChatTurn(ctx context.Context, in ChatInput, stream func(chunk string) error) (Response, error) {
	userID, sessionID, err := ValidateIdentity(in.UserID, in.SessionID)
	if err != nil {
		return Response{}, err
	}
	log := p.logger.With(
		slog.String("user_id", userID),
		slog.String("session_id", sessionID),
		slog.String("node", "chat"))

	// Chat skips the guardian; the user addressed the agent directly.
	state := p.advance(StateStart, StatePlanner)
	defer p.advance(state, StateEnd)

	if !p.cfg.LLMEnabled {
		resp := SilentResponse(reasonLLMDisabled)
		p.countRequest("chat", resp.Kind)
		return resp, nil
	}

	resp := p.generateTurn(ctx, generateInput{
		userID:    userID,
		sessionID: sessionID,
		userText:  in.Message,
		node:      "chat",
		stream:    stream,
	}, log)
	p.countRequest("chat", resp.Kind)
	return resp, nil
}

// runGuardian fans out the three checks and resolves them by fixed
// priority: tier-1 block > tier-2 confirm > pattern > silence > continue.
// The second return is false when the planner should run.
func (p *Pipeline) runGuardian(ctx context.Context, sess *session.State, in TerminalInput, log *slog.Logger) (Response, bool) {
	var (
		block *safety.Block
		dec   silence.Decision
		match *patterns.Match
	)

	// The checks read independent inputs; no shared mutable state
	// crosses goroutine boundaries, resolution happens after the join.
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		block = p.safety.Check(in.Command)
		return nil
	})
	g.Go(func() error {
		dec = p.silence.Check(sess, silence.Input{Command: in.Command, ExitCode: in.ExitCode})
		return nil
	})
	g.Go(func() error {
		if p.cfg.PatternsEnabled && p.patterns != nil {
			match = p.patterns.Match(in.Command)
		}
		return nil
	})
	_ = g.Wait()

	if block != nil {
		switch block.Tier {
		case safety.TierHardBlock:
			// Safety interventions are reactive, not proactive chatter;
			// they do not start the cooldown clock.
			log.Warn("command blocked",
				slog.String("command", in.Command),
				slog.String("tier", block.Tier.String()))
			return Response{
				Kind:    KindUnsafe,
				Content: block.Message,
				Sidebar: block.Message,
				Alert:   true,
				Block:   &BlockInfo{Tier: int(block.Tier), Message: block.Message},
			}, true
		case safety.TierConfirmIntent:
			log.Warn("command requires confirmation",
				slog.String("command", in.Command))
			return Response{
				Kind:           KindConfirm,
				Content:        block.Message,
				Sidebar:        block.Message,
				RequireConfirm: true,
				Block:          &BlockInfo{Tier: int(block.Tier), Message: block.Message},
			}, true
		case safety.TierLogOnly:
			log.Info("sensitive command observed",
				slog.String("command", in.Command),
				slog.String("category", block.LogCategory))
		}
	}

	if match != nil && match.Confidence >= p.cfg.PatternConfidenceThreshold {
		p.silence.RecordProactive(sess)
		return Response{
			Kind:       KindPattern,
			Content:    match.Definition.Response,
			Sidebar:    match.Definition.Response,
			Pattern:    match.Definition.Name,
			Confidence: match.Confidence,
		}, true
	}

	if dec.Silent {
		if dec.Reason == silence.ReasonSelfCorrected {
			p.silence.ResetSelfCorrected(sess)
		}
		return SilentResponse(string(dec.Reason)), true
	}

	return Response{}, false
}

// runPlanner produces the outcome for a turn the guardian let through.
func (p *Pipeline) runPlanner(ctx context.Context, sess *session.State, sessionID string, in TerminalInput, log *slog.Logger) Response {
	if !p.cfg.LLMEnabled {
		return SilentResponse(reasonLLMDisabled)
	}
	if in.ExitCode == 0 {
		// Successful commands that survived the guardian still do not
		// warrant unsolicited commentary.
		return SilentResponse(reasonCommandSucceeded)
	}

	userText := llm.BuildTerminalPrompt(llm.TerminalEvent{
		Command:  in.Command,
		ExitCode: in.ExitCode,
		Cwd:      in.Cwd,
		Output:   in.Output,
	}, p.cfg.MaxOutputBytes, p.cfg.OutputHeadLines, p.cfg.OutputTailLines)

	resp := p.generateTurn(ctx, generateInput{
		userID:    sess.UserID,
		sessionID: sessionID,
		userText:  userText,
		node:      "planner",
	}, log)
	if resp.Kind == KindAIResponse {
		p.silence.RecordProactive(sess)
	}
	return resp
}

type generateInput struct {
	userID    string
	sessionID string
	userText  string
	node      string
	stream    func(chunk string) error
}

// generateTurn runs compaction, the guarded model call, and all
// conversation side effects for one turn.
func (p *Pipeline) generateTurn(ctx context.Context, in generateInput, log *slog.Logger) Response {
	thread, err := p.checkpoints.LoadThread(in.sessionID)
	if err != nil {
		log.Error("checkpoint load failed, starting empty",
			slog.String("error", err.Error()))
		thread = &conversation.Thread{}
	}

	res, _ := p.compactor.Compact(ctx, thread, in.userText)

	messages := make([]llm.Message, 0, len(res.History)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: res.SystemPrompt})
	for _, t := range res.History {
		messages = append(messages, llm.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: in.userText})

	opts := llm.Options{
		Temperature: p.cfg.Temperature,
		MaxTokens:   p.cfg.MaxTokens,
	}
	if in.stream != nil {
		stream := in.stream
		opts.StreamFunc = func(ctx context.Context, chunk []byte) error {
			return stream(string(chunk))
		}
	}

	gen, err := p.llm.Generate(ctx, resilience.Request{
		Messages:  messages,
		Options:   opts,
		UserID:    in.userID,
		SessionID: in.sessionID,
		Node:      in.node,
	})
	if err != nil {
		return failureResponse(err, log)
	}

	// Persist compaction results and the new exchange before responding.
	if len(res.RetractIDs) > 0 {
		if err := p.checkpoints.RetractByID(in.sessionID, res.RetractIDs...); err != nil {
			log.Error("checkpoint retract failed", slog.String("error", err.Error()))
		}
	}
	if res.SummaryChanged {
		if err := p.checkpoints.SaveSummary(in.sessionID, res.Summary); err != nil {
			log.Error("summary save failed", slog.String("error", err.Error()))
		}
	}

	content := sanitizeContent(gen.Content)
	if content == "" {
		return SilentResponse(reasonEmptyGeneration)
	}

	err = p.checkpoints.Append(in.sessionID,
		conversation.NewTurn(conversation.RoleUser, in.userText),
		conversation.NewTurn(conversation.RoleAssistant, content))
	if err != nil {
		log.Error("checkpoint append failed", slog.String("error", err.Error()))
	}

	return Response{Kind: KindAIResponse, Content: content, Sidebar: content}
}

// failureResponse maps model-boundary failures onto typed backpressure
// or a sanitized error. Raw provider text never reaches the user.
func failureResponse(err error, log *slog.Logger) Response {
	var rle *resilience.RateLimitedError
	switch {
	case errors.As(err, &rle):
		return Response{
			Kind:       KindRateLimited,
			Content:    "I'm getting too many requests right now. Give me a moment.",
			RetryAfter: rle.RetryAfter,
		}
	case errors.Is(err, resilience.ErrCircuitOpen):
		return Response{
			Kind:    KindUnavailable,
			Content: "The model endpoint is having trouble. I'll back off briefly.",
		}
	default:
		log.Error("model call failed", slog.String("error", err.Error()))
		return Response{Kind: KindError, Content: sanitizedFailureMessage}
	}
}

func (p *Pipeline) loadSession(userID, sessionID string, log *slog.Logger) *session.State {
	sess, found, err := p.sessions.Load(userID, sessionID)
	if err != nil {
		log.Error("session load failed, using fresh state",
			slog.String("error", err.Error()))
	}
	if !found || sess == nil {
		return session.New(userID)
	}
	return sess
}

func (p *Pipeline) saveSession(sess *session.State, sessionID string, log *slog.Logger) {
	if err := p.sessions.Save(sess, sessionID); err != nil {
		log.Error("session save failed", slog.String("error", err.Error()))
	}
}

func (p *Pipeline) countRequest(entry, kind string) {
	if p.metrics != nil {
		p.metrics.RequestsTotal.WithLabelValues(entry, kind).Inc()
	}
}
