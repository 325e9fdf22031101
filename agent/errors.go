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
	"fmt"
	"regexp"
)

// Identity limits. Identity is opaque and pre-authenticated; validation
// only keeps ids storage- and log-safe.
const (
	maxUserIDLen    = 128
	maxSessionIDLen = 256
)

var userIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidationError rejects malformed identity or session ids before the
// pipeline runs.
type ValidationError struct {
	Field  string
	Reason string
}

// Error implements error.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("agent: invalid %s: %s", e.Field, e.Reason)
}

// ValidateIdentity checks user and session ids and applies the session
// default.
//
// Outputs:
//
//	string - The user id, unchanged.
//	string - The session id; defaults to the user id when empty.
//	error - *ValidationError on any violation.
func ValidateIdentity(userID, sessionID string) (string, string, error) {
	if userID == "" {
		return "", "", &ValidationError{Field: "user_id", Reason: "required"}
	}
	if len(userID) > maxUserIDLen {
		return "", "", &ValidationError{Field: "user_id", Reason: "too long"}
	}
	if !userIDPattern.MatchString(userID) {
		return "", "", &ValidationError{Field: "user_id", Reason: "must match ^[a-zA-Z0-9_-]+$"}
	}
	if len(sessionID) > maxSessionIDLen {
		return "", "", &ValidationError{Field: "session_id", Reason: "too long"}
	}
	if sessionID == "" {
		sessionID = userID
	}
	return userID, sessionID, nil
}
