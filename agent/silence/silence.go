// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package silence decides when the assistant must stay quiet.
//
// The rules run in a fixed order and the first applicable rule wins:
//
//	1. Editor mode        - never interrupt someone inside an editor
//	2. Self-corrected     - the user already fixed their own mistake
//	3. Safe exploration   - routine commands that succeeded
//	4. Cooldown           - a proactive message was sent too recently
//	5. Typing             - the user is mid-keystroke
//
// Rules 3 and 4 apply only to successful commands: a non-zero exit code
// always reaches the later stages so failures are never suppressed.
package silence

import (
	"strings"
	"time"

	"github.com/AleutianAI/shellsense/session"
)

// Reason explains a silence decision.
type Reason string

const (
	ReasonInEditorMode    Reason = "in_editor_mode"
	ReasonSelfCorrected   Reason = "self_corrected"
	ReasonSafeExploration Reason = "safe_exploration"
	ReasonCooldown        Reason = "cooldown"
	ReasonUserTyping      Reason = "user_typing"
	ReasonMaySpeak        Reason = "may_speak"
)

// Input is the slice of a terminal turn the silence rules consult.
type Input struct {
	Command  string
	ExitCode int
}

// Decision is the outcome of a silence check.
type Decision struct {
	Silent bool
	Reason Reason
}

// safeCommands are routine exploration commands whose success never
// warrants a proactive message.
var safeCommands = map[string]struct{}{
	"ls": {}, "cd": {}, "pwd": {}, "cat": {}, "less": {}, "head": {},
	"tail": {}, "echo": {}, "man": {}, "clear": {}, "exit": {},
}

// Checker applies the silence rules in deterministic order.
//
// Thread Safety: Checker is stateless and safe for concurrent use; the
// clock hook exists for tests.
type Checker struct {
	cooldown time.Duration
	now      func() time.Time
}

// NewChecker creates a checker with the given proactive-message cooldown.
func NewChecker(cooldown time.Duration) *Checker {
	return &Checker{cooldown: cooldown, now: time.Now}
}

// NewCheckerWithClock creates a checker with an injected clock for tests.
func NewCheckerWithClock(cooldown time.Duration, now func() time.Time) *Checker {
	return &Checker{cooldown: cooldown, now: now}
}

// Check decides whether to stay silent for this turn.
//
// Inputs:
//
//	sess - Current session state; nil behaves like a fresh session.
//	in - The terminal turn being evaluated.
//
// Outputs:
//
//	Decision - Silent flag plus the first applicable rule's reason.
func (c *Checker) Check(sess *session.State, in Input) Decision {
	hasError := in.ExitCode != 0

	if sess != nil && sess.InEditorMode {
		return Decision{Silent: true, Reason: ReasonInEditorMode}
	}

	if sess != nil && sess.JustSelfCorrected {
		return Decision{Silent: true, Reason: ReasonSelfCorrected}
	}

	// Safe exploration silence only applies to successful commands.
	parts := strings.Fields(strings.TrimSpace(in.Command))
	if !hasError && len(parts) > 0 {
		if _, ok := safeCommands[parts[0]]; ok {
			return Decision{Silent: true, Reason: ReasonSafeExploration}
		}
	}

	// Cooldown must not block error help.
	if !hasError && sess != nil && !sess.LastProactiveMsg.IsZero() {
		if c.now().Sub(sess.LastProactiveMsg) < c.cooldown {
			return Decision{Silent: true, Reason: ReasonCooldown}
		}
	}

	if sess != nil && sess.IsTyping {
		return Decision{Silent: true, Reason: ReasonUserTyping}
	}

	return Decision{Silent: false, Reason: ReasonMaySpeak}
}

// RecordProactive stamps the session with the current time after the
// assistant speaks unprompted.
func (c *Checker) RecordProactive(sess *session.State) {
	if sess != nil {
		sess.LastProactiveMsg = c.now()
	}
}

// ResetSelfCorrected clears the one-shot self-correction flag after a
// silence decision has consumed it.
func (c *Checker) ResetSelfCorrected(sess *session.State) {
	if sess != nil {
		sess.JustSelfCorrected = false
	}
}
