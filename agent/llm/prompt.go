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
	"fmt"
	"strings"
)

// systemPrompt frames the assistant as a quiet terminal companion. The
// actual speak/stay-silent decision is made upstream; the prompt reinforces
// brevity for the cases that do reach the model.
const systemPrompt = `You are a terminal assistant watching a developer's shell session.
You only see commands the user has already run, their exit codes, and their output.

Rules:
- Be brief. One or two sentences unless the user asks for more.
- When a command failed, explain the likely cause and suggest a concrete fix.
- Never invent command output you did not see.
- Prefer showing a corrected command over describing one.`

// SystemPrompt returns the base system prompt.
func SystemPrompt() string {
	return systemPrompt
}

// ComposeSystemPrompt appends the rolling conversation summary to the base
// system prompt so compacted history stays visible to the model.
func ComposeSystemPrompt(base, summary string) string {
	if summary == "" {
		return base
	}
	return base + "\n\nConversation so far (summarized):\n" + summary
}

// TerminalEvent is the observed shell activity a prompt is built from.
type TerminalEvent struct {
	Command  string
	ExitCode int
	Cwd      string
	Output   string
}

// BuildTerminalPrompt renders a terminal event as the user-turn text sent
// to the model. Output is truncated first so oversized command output
// cannot blow the context window.
func BuildTerminalPrompt(ev TerminalEvent, maxOutputBytes, headLines, tailLines int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Command: %s\n", ev.Command)
	fmt.Fprintf(&b, "Exit code: %d\n", ev.ExitCode)
	if ev.Cwd != "" {
		fmt.Fprintf(&b, "Working directory: %s\n", ev.Cwd)
	}
	if ev.Output != "" {
		b.WriteString("Output:\n")
		b.WriteString(TruncateOutput(ev.Output, maxOutputBytes, headLines, tailLines))
	}
	return strings.TrimRight(b.String(), "\n")
}

// TruncateOutput bounds command output by size, keeping the head and tail
// lines around an elision marker. Output at or under maxBytes passes
// through unchanged.
func TruncateOutput(output string, maxBytes, headLines, tailLines int) string {
	if maxBytes <= 0 || len(output) <= maxBytes {
		return output
	}

	lines := strings.Split(output, "\n")
	if headLines < 0 {
		headLines = 0
	}
	if tailLines < 0 {
		tailLines = 0
	}
	if headLines+tailLines >= len(lines) {
		// Few huge lines rather than many small ones. Cut by bytes.
		return output[:maxBytes] + "\n... [output truncated]"
	}

	elided := len(lines) - headLines - tailLines
	kept := make([]string, 0, headLines+tailLines+1)
	kept = append(kept, lines[:headLines]...)
	kept = append(kept, fmt.Sprintf("... [%d lines truncated] ...", elided))
	kept = append(kept, lines[len(lines)-tailLines:]...)
	return strings.Join(kept, "\n")
}
