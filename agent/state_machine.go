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

// PipelineState names a stage of the decision pipeline. Requests move
// START -> GUARDIAN -> {TERMINAL, PLANNER} -> END; TERMINAL means the
// guardian produced the outcome and the planner never runs.
type PipelineState string

const (
	StateStart    PipelineState = "START"
	StateGuardian PipelineState = "GUARDIAN"
	StateTerminal PipelineState = "TERMINAL"
	StatePlanner  PipelineState = "PLANNER"
	StateEnd      PipelineState = "END"
)

// transitions is the only legal edge set. Routing is deterministic given
// the guardian resolution; there are no retries or loops inside the
// pipeline.
var transitions = map[PipelineState][]PipelineState{
	StateStart:    {StateGuardian, StatePlanner},
	StateGuardian: {StateTerminal, StatePlanner},
	StateTerminal: {StateEnd},
	StatePlanner:  {StateEnd},
}

// ValidTransition reports whether from -> to is a legal edge.
func ValidTransition(from, to PipelineState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// advance moves to the next state, logging the edge. An illegal edge is a
// programming error; it is logged loudly but not fatal.
func (p *Pipeline) advance(from, to PipelineState) PipelineState {
	if !ValidTransition(from, to) {
		p.logger.Error("illegal pipeline transition",
			"from", string(from), "to", string(to))
		return to
	}
	p.logger.Debug("pipeline transition",
		"from", string(from), "to", string(to))
	return to
}
