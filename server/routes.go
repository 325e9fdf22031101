// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/shellsense/agent"
	"github.com/AleutianAI/shellsense/conversation"
	"github.com/AleutianAI/shellsense/session"
)

// Deps are the collaborators the routes need.
type Deps struct {
	Pipeline    *agent.Pipeline
	Sessions    session.Store
	Checkpoints conversation.CheckpointStore
}

// RegisterRoutes mounts all endpoints on the router.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	v1 := r.Group("/v1")
	{
		v1.POST("/terminal", HandleTerminal(deps.Pipeline))
		v1.POST("/chat", HandleChat(deps.Pipeline))
		v1.POST("/session/signals", HandleSignals(deps.Sessions))
		v1.POST("/session/reset", HandleReset(deps.Sessions, deps.Checkpoints))
	}
	r.GET("/healthz", HandleHealth())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
