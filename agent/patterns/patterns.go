// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package patterns provides deterministic regex matching for high-confidence
// command hints.
//
// The engine answers common commands (ls, cd, man, --help, ...) with canned
// teaching hints without spending an LLM call. Patterns are sorted by
// descending priority at construction; the first match wins.
//
// Thread Safety:
//
//	Engine is immutable after construction and safe for concurrent use.
package patterns

import (
	"regexp"
	"sort"
	"strings"
)

// Confidence scoring constants. Short hint names matched against long
// commands score lower; the floor is 0.7 and the ceiling 1.0.
const (
	confidenceBase  = 0.7
	confidenceBonus = 0.3
)

// Definition is a registered hint pattern.
type Definition struct {
	// Name identifies the pattern (e.g. "help_flag").
	Name string

	// Regex matches anywhere in the trimmed command.
	Regex *regexp.Regexp

	// Response is the canned hint shown to the user.
	Response string

	// Priority orders evaluation; higher wins.
	Priority int
}

// Match is a successful pattern match.
type Match struct {
	Definition *Definition

	// Confidence in [0.7, 1.0]. Callers treat matches below their
	// configured threshold as no-match.
	Confidence float64
}

// Engine is a priority-ordered regex matcher.
type Engine struct {
	patterns []Definition
}

// NewEngine creates an engine with the default hint set.
func NewEngine() *Engine {
	e := &Engine{}
	e.registerDefaults()
	return e
}

// NewEngineWithPatterns creates an engine from a caller-supplied set.
// Patterns are sorted by descending priority; ties keep declaration order.
func NewEngineWithPatterns(defs []Definition) *Engine {
	e := &Engine{patterns: defs}
	sort.SliceStable(e.patterns, func(i, j int) bool {
		return e.patterns[i].Priority > e.patterns[j].Priority
	})
	return e
}

func (e *Engine) registerDefaults() {
	raw := []struct {
		name, regex, response string
		priority              int
	}{
		{"man_command", `^man\s+\S+`,
			"Manual pages are great for command details. Use `/` to search and `q` to quit.", 100},
		{"help_flag", `\s+--help\s*$`,
			"`--help` is the fastest way to inspect command usage.", 100},
		{"cd_home", `^cd\s*(~)?\s*$`,
			"`cd` with no argument sends you to your home directory.", 95},
		{"cd_up", `^cd\s+\.\.\s*$`,
			"`cd ..` moves to the parent directory.", 95},
		{"pwd", `^pwd\s*$`,
			"`pwd` prints your current working directory.", 95},
		{"ls_simple", `^ls\s*$`,
			"Try `ls -la` to include hidden files and metadata.", 90},
		{"ls_detailed", `^ls\s+-la?\s*$`,
			"`ls -la` shows permission bits, ownership, and timestamps.", 90},
		{"cat_file", `^cat\s+\S+`,
			"`cat` prints a file in full; use `less` for long outputs.", 85},
		{"mkdir", `^mkdir\s+\S+`,
			"Use `mkdir -p` when parent directories may not exist.", 85},
		{"touch", `^touch\s+\S+`,
			"`touch` creates empty files or updates timestamps.", 85},
		{"chmod", `^chmod\s+`,
			"Permissions: read=4, write=2, execute=1; combine per user/group/other.", 80},
	}

	for _, p := range raw {
		e.patterns = append(e.patterns, Definition{
			Name:     p.name,
			Regex:    regexp.MustCompile(p.regex),
			Response: p.response,
			Priority: p.priority,
		})
	}
	sort.SliceStable(e.patterns, func(i, j int) bool {
		return e.patterns[i].Priority > e.patterns[j].Priority
	})
}

// Match finds the highest-priority pattern matching a command.
//
// Description:
//
//	Trims the command and scans patterns in priority order. Confidence is
//	0.7 + min(0.3, nameLength/commandLength * 0.3), clamped to 1.0 - short
//	hint names relative to long commands score closer to the floor.
//
// Inputs:
//
//	command - The raw shell command line.
//
// Outputs:
//
//	*Match - The first matching pattern with its confidence, or nil.
func (e *Engine) Match(command string) *Match {
	text := strings.TrimSpace(command)
	if text == "" {
		return nil
	}

	for i := range e.patterns {
		def := &e.patterns[i]
		if !def.Regex.MatchString(text) {
			continue
		}
		nameLen := len(def.Name)
		if nameLen < 1 {
			nameLen = 1
		}
		bonus := float64(nameLen) / float64(len(text)) * confidenceBonus
		if bonus > confidenceBonus {
			bonus = confidenceBonus
		}
		confidence := confidenceBase + bonus
		if confidence > 1.0 {
			confidence = 1.0
		}
		return &Match{Definition: def, Confidence: confidence}
	}
	return nil
}
