// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package safety evaluates shell commands against tiered safety rules.
//
// Rules are organized in three fixed-priority tiers:
//
//	Tier 1 (hard block)     - the command is never executed or discussed
//	Tier 2 (confirm intent) - the command requires explicit user confirmation
//	Tier 3 (log only)       - non-blocking telemetry, categorized for audit
//
// The checker scans tiers in priority order and declaration order within a
// tier; the first matching rule wins.
//
// Thread Safety:
//
//	Checker is immutable after construction and safe for concurrent use.
package safety

import (
	"regexp"
)

// Tier is the severity bucket of a safety rule.
type Tier int

const (
	// TierHardBlock aborts the turn unconditionally.
	TierHardBlock Tier = 1

	// TierConfirmIntent requires explicit confirmation before proceeding.
	TierConfirmIntent Tier = 2

	// TierLogOnly records the command category without blocking.
	TierLogOnly Tier = 3
)

// String returns a human-readable tier name.
func (t Tier) String() string {
	switch t {
	case TierHardBlock:
		return "hard_block"
	case TierConfirmIntent:
		return "confirm_intent"
	case TierLogOnly:
		return "log_only"
	default:
		return "unknown"
	}
}

// Rule is a single safety rule.
type Rule struct {
	// Pattern matches anywhere in the command (regexp search semantics).
	Pattern *regexp.Regexp

	// Tier is the severity bucket this rule belongs to.
	Tier Tier

	// Message explains the block or confirmation to the user. Empty for
	// log-only rules.
	Message string

	// LogCategory classifies log-only matches (e.g. "privilege_escalation").
	LogCategory string
}

// Block is the result of a matched safety rule.
type Block struct {
	Tier        Tier
	Message     string
	LogCategory string
}

// Checker evaluates shell commands against tiered rules.
type Checker struct {
	rules []Rule
}

// NewChecker creates a checker with the default rule set.
//
// Outputs:
//
//	*Checker - Ready to use checker, safe for concurrent use.
func NewChecker() *Checker {
	c := &Checker{}
	c.registerDefaults()
	return c
}

// NewCheckerWithRules creates a checker with a caller-supplied rule set.
// Rules must already be ordered tier-first; the checker does not re-sort.
func NewCheckerWithRules(rules []Rule) *Checker {
	return &Checker{rules: rules}
}

func (c *Checker) registerDefaults() {
	tier1 := []struct{ pattern, message string }{
		{`^rm\s+-[rf]+\s+/\s*$`, "This would delete the entire filesystem."},
		{`^rm\s+-[rf]+\s+/\s+`, "Recursive delete from root is blocked."},
		{`:\(\)\s*\{\s*:\|:\s*&\s*\}\s*;?\s*:`, "Fork bomb detected."},
		{`^mkfs\.`, "Filesystem format command is blocked."},
		{`^dd\s+.*\bof=/dev/(sd[a-z]|nvme\d+n\d+)`, "Direct disk writes are blocked."},
		{`>\s*/dev/(sd[a-z]|nvme\d+n\d+)`, "Redirecting output to block devices is blocked."},
	}
	tier2 := []struct{ pattern, message string }{
		{`^dd\s+`, "`dd` can destroy data. Confirm intent."},
		{`^chmod\s+-R\s+777`, "Recursive world-writable permissions are risky. Confirm."},
		{`^chown\s+-R`, "Recursive ownership change. Confirm intent."},
		{`^rm\s+-[rf]+`, "Recursive/force delete detected. Confirm intent."},
		{`^kill\s+-9`, "Force-killing processes can be disruptive. Confirm."},
	}
	tier3 := []struct{ pattern, category string }{
		{`^sudo\s+`, "privilege_escalation"},
		{`^(apt|apt-get|yum|dnf)\s+install`, "package_install"},
		{`^systemctl\s+`, "service_management"},
		{`^(ufw|iptables)\s+`, "firewall_config"},
	}

	for _, r := range tier1 {
		c.rules = append(c.rules, Rule{
			Pattern: regexp.MustCompile(r.pattern),
			Tier:    TierHardBlock,
			Message: r.message,
		})
	}
	for _, r := range tier2 {
		c.rules = append(c.rules, Rule{
			Pattern: regexp.MustCompile(r.pattern),
			Tier:    TierConfirmIntent,
			Message: r.message,
		})
	}
	for _, r := range tier3 {
		c.rules = append(c.rules, Rule{
			Pattern:     regexp.MustCompile(r.pattern),
			Tier:        TierLogOnly,
			LogCategory: r.category,
		})
	}
}

// Check evaluates a command against the rule set.
//
// Description:
//
//	Scans rules in tier-then-declaration order. The first match wins and
//	no further rules are consulted.
//
// Inputs:
//
//	command - The raw shell command line.
//
// Outputs:
//
//	*Block - The matched rule's tier, message, and category. Nil if no
//	rule matched.
func (c *Checker) Check(command string) *Block {
	for i := range c.rules {
		rule := &c.rules[i]
		if rule.Pattern.MatchString(command) {
			return &Block{
				Tier:        rule.Tier,
				Message:     rule.Message,
				LogCategory: rule.LogCategory,
			}
		}
	}
	return nil
}
