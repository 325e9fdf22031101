// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package safety

import (
	"regexp"
	"testing"
)

func TestChecker_Check_Tiers(t *testing.T) {
	checker := NewChecker()

	tests := []struct {
		name     string
		command  string
		wantTier Tier
		wantNil  bool
	}{
		{name: "delete root", command: "rm -rf /", wantTier: TierHardBlock},
		{name: "delete root subtree", command: "rm -rf / --no-preserve-root", wantTier: TierHardBlock},
		{name: "fork bomb", command: ":(){ :|: & };:", wantTier: TierHardBlock},
		{name: "mkfs", command: "mkfs.ext4 /dev/sda1", wantTier: TierHardBlock},
		{name: "dd to disk", command: "dd if=/dev/zero of=/dev/sda", wantTier: TierHardBlock},
		{name: "redirect to block device", command: "echo x > /dev/nvme0n1", wantTier: TierHardBlock},
		{name: "plain dd", command: "dd if=in.img of=out.img", wantTier: TierConfirmIntent},
		{name: "recursive delete home", command: "rm -rf ~/project", wantTier: TierConfirmIntent},
		{name: "chmod 777", command: "chmod -R 777 .", wantTier: TierConfirmIntent},
		{name: "chown recursive", command: "chown -R www-data:www-data /var/www", wantTier: TierConfirmIntent},
		{name: "kill dash nine", command: "kill -9 4242", wantTier: TierConfirmIntent},
		{name: "sudo", command: "sudo apt update", wantTier: TierLogOnly},
		{name: "package install", command: "apt install curl", wantTier: TierLogOnly},
		{name: "systemctl", command: "systemctl restart nginx", wantTier: TierLogOnly},
		{name: "firewall", command: "ufw allow 22", wantTier: TierLogOnly},
		{name: "safe command", command: "ls -la", wantNil: true},
		{name: "empty command", command: "", wantNil: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block := checker.Check(tt.command)
			if tt.wantNil {
				if block != nil {
					t.Fatalf("Check(%q) = %+v, want nil", tt.command, block)
				}
				return
			}
			if block == nil {
				t.Fatalf("Check(%q) = nil, want tier %d", tt.command, tt.wantTier)
			}
			if block.Tier != tt.wantTier {
				t.Errorf("tier = %d, want %d", block.Tier, tt.wantTier)
			}
		})
	}
}

// Tier order beats declaration order: "rm -rf /" matches a tier-1 rule even
// though a tier-2 rule ("rm -rf") would also match.
func TestChecker_Check_TierPriority(t *testing.T) {
	checker := NewChecker()

	block := checker.Check("rm -rf /")
	if block == nil || block.Tier != TierHardBlock {
		t.Fatalf("Check(rm -rf /) = %+v, want tier 1", block)
	}
}

// Within a tier, declaration order decides.
func TestChecker_Check_DeclarationOrder(t *testing.T) {
	checker := NewCheckerWithRules([]Rule{
		{Pattern: regexp.MustCompile(`^echo`), Tier: TierConfirmIntent, Message: "first"},
		{Pattern: regexp.MustCompile(`echo`), Tier: TierConfirmIntent, Message: "second"},
	})

	block := checker.Check("echo hello")
	if block == nil || block.Message != "first" {
		t.Fatalf("Check(echo hello) = %+v, want first declared rule", block)
	}
}

func TestChecker_Check_LogOnlyNeverBlocks(t *testing.T) {
	checker := NewChecker()

	block := checker.Check("sudo systemctl restart nginx")
	if block == nil {
		t.Fatal("expected a log-only match")
	}
	if block.Tier != TierLogOnly {
		t.Fatalf("tier = %d, want log-only", block.Tier)
	}
	if block.Message != "" {
		t.Errorf("log-only rules should carry no user message, got %q", block.Message)
	}
	if block.LogCategory != "privilege_escalation" {
		t.Errorf("category = %q, want privilege_escalation", block.LogCategory)
	}
}
