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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/shellsense/agent"
	"github.com/AleutianAI/shellsense/agent/compact"
	"github.com/AleutianAI/shellsense/agent/llm"
	"github.com/AleutianAI/shellsense/agent/patterns"
	"github.com/AleutianAI/shellsense/agent/resilience"
	"github.com/AleutianAI/shellsense/agent/safety"
	"github.com/AleutianAI/shellsense/agent/silence"
	"github.com/AleutianAI/shellsense/conversation"
	"github.com/AleutianAI/shellsense/session"
)

type routerEnv struct {
	router      *gin.Engine
	provider    *llm.MockProvider
	sessions    *session.MemoryStore
	checkpoints *conversation.MemoryStore
}

func newRouter(t *testing.T) *routerEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	provider := llm.NewMockProvider("model reply")
	client, err := resilience.NewClient(resilience.ClientConfig{
		Models: []resilience.ModelEntry{{
			Name:             "primary",
			Provider:         provider,
			MaxCalls:         100,
			Window:           time.Second,
			BreakerThreshold: 5,
			BreakerRecovery:  30 * time.Second,
		}},
	})
	require.NoError(t, err)

	sessions := session.NewMemoryStore()
	checkpoints := conversation.NewMemoryStore()

	pipeline, err := agent.NewPipeline(agent.DefaultConfig(), agent.Deps{
		Safety:      safety.NewChecker(),
		Patterns:    patterns.NewEngine(),
		Silence:     silence.NewChecker(2 * time.Minute),
		Sessions:    sessions,
		Checkpoints: checkpoints,
		LLM:         client,
		Compactor:   compact.NewCompactor(compact.DefaultConfig(), client, nil, nil),
	})
	require.NoError(t, err)

	router := gin.New()
	RegisterRoutes(router, Deps{
		Pipeline:    pipeline,
		Sessions:    sessions,
		Checkpoints: checkpoints,
	})
	return &routerEnv{router: router, provider: provider, sessions: sessions, checkpoints: checkpoints}
}

func postJSON(t *testing.T, router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTerminal_BlockedCommand(t *testing.T) {
	env := newRouter(t)

	w := postJSON(t, env.router, "/v1/terminal", TerminalRequest{
		UserID:  "dev1",
		Command: "rm -rf /",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp TerminalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Responses, 1)
	require.Equal(t, agent.KindUnsafe, resp.Responses[0].Kind)
	require.True(t, resp.Responses[0].Alert)
}

func TestTerminal_InvalidBody(t *testing.T) {
	env := newRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/terminal", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTerminal_InvalidUserID(t *testing.T) {
	env := newRouter(t)

	w := postJSON(t, env.router, "/v1/terminal", TerminalRequest{
		UserID:  "not valid!",
		Command: "ls",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Contains(t, resp.Error, "user_id")
}

func TestChat_StreamsSSE(t *testing.T) {
	env := newRouter(t)
	env.provider.QueueResponse("hello there")

	w := postJSON(t, env.router, "/v1/chat", ChatRequest{
		UserID:  "dev1",
		Message: "hi",
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	body := w.Body.String()
	require.Contains(t, body, "event:content")
	require.Contains(t, body, "hello there")
	require.Contains(t, body, "event:done")
}

func TestSignals_UpdatesSessionFlags(t *testing.T) {
	env := newRouter(t)

	editing := true
	w := postJSON(t, env.router, "/v1/session/signals", SignalsRequest{
		UserID:       "dev1",
		InEditorMode: &editing,
	})
	require.Equal(t, http.StatusOK, w.Code)

	state, found, err := env.sessions.Load("dev1", "dev1")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, state.InEditorMode)
	require.False(t, state.IsTyping, "absent flags must stay unchanged")
}

func TestSignals_PartialUpdateKeepsOtherFlags(t *testing.T) {
	env := newRouter(t)
	editing := true
	postJSON(t, env.router, "/v1/session/signals", SignalsRequest{UserID: "dev1", InEditorMode: &editing})

	typing := true
	postJSON(t, env.router, "/v1/session/signals", SignalsRequest{UserID: "dev1", IsTyping: &typing})

	state, _, err := env.sessions.Load("dev1", "dev1")
	require.NoError(t, err)
	require.True(t, state.InEditorMode)
	require.True(t, state.IsTyping)
}

func TestReset_ClearsSessionAndThread(t *testing.T) {
	env := newRouter(t)
	require.NoError(t, env.sessions.Save(session.New("dev1"), "dev1"))
	require.NoError(t, env.checkpoints.Append("dev1", conversation.NewTurn(conversation.RoleUser, "hi")))

	w := postJSON(t, env.router, "/v1/session/reset", ResetRequest{UserID: "dev1"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp ResetResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
	require.Empty(t, resp.Failures)

	_, found, err := env.sessions.Load("dev1", "dev1")
	require.NoError(t, err)
	require.False(t, found)

	thread, err := env.checkpoints.LoadThread("dev1")
	require.NoError(t, err)
	require.Empty(t, thread.Turns)
}

func TestHealthz(t *testing.T) {
	env := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), Version)
}

func TestMetricsEndpointMounted(t *testing.T) {
	env := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
