// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package silence

import (
	"testing"
	"time"

	"github.com/AleutianAI/shellsense/session"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestChecker_Check_RuleOrder(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	checker := NewCheckerWithClock(2*time.Minute, fixedClock(now))

	tests := []struct {
		name       string
		sess       *session.State
		in         Input
		wantSilent bool
		wantReason Reason
	}{
		{
			name:       "editor mode wins over everything",
			sess:       &session.State{UserID: "u", InEditorMode: true, JustSelfCorrected: true},
			in:         Input{Command: "gcc main.c", ExitCode: 1},
			wantSilent: true,
			wantReason: ReasonInEditorMode,
		},
		{
			name:       "self corrected",
			sess:       &session.State{UserID: "u", JustSelfCorrected: true},
			in:         Input{Command: "make", ExitCode: 1},
			wantSilent: true,
			wantReason: ReasonSelfCorrected,
		},
		{
			name:       "safe exploration on success",
			sess:       &session.State{UserID: "u"},
			in:         Input{Command: "ls -la", ExitCode: 0},
			wantSilent: true,
			wantReason: ReasonSafeExploration,
		},
		{
			name:       "cooldown on success",
			sess:       &session.State{UserID: "u", LastProactiveMsg: now.Add(-30 * time.Second)},
			in:         Input{Command: "make build", ExitCode: 0},
			wantSilent: true,
			wantReason: ReasonCooldown,
		},
		{
			name:       "cooldown elapsed",
			sess:       &session.State{UserID: "u", LastProactiveMsg: now.Add(-3 * time.Minute)},
			in:         Input{Command: "make build", ExitCode: 0},
			wantSilent: false,
			wantReason: ReasonMaySpeak,
		},
		{
			name:       "typing",
			sess:       &session.State{UserID: "u", IsTyping: true},
			in:         Input{Command: "make build", ExitCode: 0},
			wantSilent: true,
			wantReason: ReasonUserTyping,
		},
		{
			name:       "nil session may speak",
			sess:       nil,
			in:         Input{Command: "make build", ExitCode: 0},
			wantSilent: false,
			wantReason: ReasonMaySpeak,
		},
		{
			name:       "nil session safe command still silent",
			sess:       nil,
			in:         Input{Command: "pwd", ExitCode: 0},
			wantSilent: true,
			wantReason: ReasonSafeExploration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checker.Check(tt.sess, tt.in)
			if got.Silent != tt.wantSilent {
				t.Errorf("Silent = %v, want %v", got.Silent, tt.wantSilent)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

// Failures are never suppressed by the safe-command or cooldown rules.
func TestChecker_Check_ErrorsBypassSafeAndCooldown(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	checker := NewCheckerWithClock(2*time.Minute, fixedClock(now))

	sess := &session.State{UserID: "u", LastProactiveMsg: now.Add(-10 * time.Second)}

	got := checker.Check(sess, Input{Command: "ls /does/not/exist", ExitCode: 2})
	if got.Silent {
		t.Fatalf("failed safe command silenced via %q", got.Reason)
	}

	got = checker.Check(sess, Input{Command: "make build", ExitCode: 1})
	if got.Silent {
		t.Fatalf("failed command silenced during cooldown via %q", got.Reason)
	}
}

func TestChecker_SessionBookkeeping(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	checker := NewCheckerWithClock(2*time.Minute, fixedClock(now))

	sess := &session.State{UserID: "u", JustSelfCorrected: true}

	checker.ResetSelfCorrected(sess)
	if sess.JustSelfCorrected {
		t.Error("ResetSelfCorrected did not clear the flag")
	}

	checker.RecordProactive(sess)
	if !sess.LastProactiveMsg.Equal(now) {
		t.Errorf("LastProactiveMsg = %v, want %v", sess.LastProactiveMsg, now)
	}

	// Both are nil-safe.
	checker.ResetSelfCorrected(nil)
	checker.RecordProactive(nil)
}
