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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/shellsense/agent"
	"github.com/AleutianAI/shellsense/conversation"
	"github.com/AleutianAI/shellsense/session"
)

var tracer = otel.Tracer("shellsense.server")

// HandleTerminal processes one observed shell command and returns the
// deduped decision list.
func HandleTerminal(pipeline *agent.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleTerminal")
		defer span.End()

		var req TerminalRequest
		if err := c.BindJSON(&req); err != nil {
			slog.Error("failed to parse terminal request", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}

		responses, err := pipeline.ProcessTurn(ctx, agent.TerminalInput{
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Command:   req.Command,
			ExitCode:  req.ExitCode,
			Output:    req.Output,
			Cwd:       req.Cwd,
		})
		if err != nil {
			var verr *agent.ValidationError
			if errors.As(err, &verr) {
				c.JSON(http.StatusBadRequest, ErrorResponse{Error: verr.Error()})
				return
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("terminal turn failed", "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
			return
		}
		c.JSON(http.StatusOK, TerminalResponse{Responses: responses})
	}
}

// HandleChat streams the chat response over SSE: zero or more "content"
// events, then one "done" event. Errors after the stream has started are
// reported as an "error" event with a sanitized message.
func HandleChat(pipeline *agent.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleChat")
		defer span.End()

		var req ChatRequest
		if err := c.BindJSON(&req); err != nil {
			slog.Error("failed to parse chat request", "error", err)
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")

		resp, err := pipeline.ProcessChatTurn(ctx, agent.ChatInput{
			UserID:    req.UserID,
			SessionID: req.SessionID,
			Message:   req.Message,
		}, func(chunk string) error {
			c.SSEvent("content", chunk)
			c.Writer.Flush()
			return nil
		})
		if err != nil {
			var verr *agent.ValidationError
			if errors.As(err, &verr) {
				c.SSEvent("error", verr.Error())
			} else {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				c.SSEvent("error", "internal error")
			}
			c.Writer.Flush()
			return
		}

		c.SSEvent("done", resp)
		c.Writer.Flush()
	}
}

// HandleSignals updates session flags (editor mode, typing,
// self-corrected). Absent flags are left unchanged.
func HandleSignals(sessions session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SignalsRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
		userID, sessionID, err := agent.ValidateIdentity(req.UserID, req.SessionID)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}

		state, found, err := sessions.Load(userID, sessionID)
		if err != nil {
			slog.Error("session load failed", "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "session store unavailable"})
			return
		}
		if !found || state == nil {
			state = session.New(userID)
		}

		if req.InEditorMode != nil {
			state.InEditorMode = *req.InEditorMode
		}
		if req.IsTyping != nil {
			state.IsTyping = *req.IsTyping
		}
		if req.JustSelfCorrected != nil {
			state.JustSelfCorrected = *req.JustSelfCorrected
		}

		if err := sessions.Save(state, sessionID); err != nil {
			slog.Error("session save failed", "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "session store unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

// HandleReset deletes session state and the conversation thread. Partial
// failures are reported rather than hidden.
func HandleReset(sessions session.Store, checkpoints conversation.CheckpointStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ResetRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
		userID, sessionID, err := agent.ValidateIdentity(req.UserID, req.SessionID)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}

		var failures []string
		if !sessions.Delete(userID, sessionID) {
			failures = append(failures, failSessionDelete)
		}
		if !checkpoints.DeleteThread(sessionID) {
			failures = append(failures, failCheckpointDelete)
		}

		if len(failures) > 0 {
			slog.Warn("session reset incomplete",
				"user_id", userID,
				"session_id", sessionID,
				"failures", failures)
			c.JSON(http.StatusInternalServerError, ResetResponse{
				Status:   "partial_failure",
				Failures: failures,
			})
			return
		}
		c.JSON(http.StatusOK, ResetResponse{Status: "ok"})
	}
}

// HandleHealth reports liveness and version.
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": Version})
	}
}
