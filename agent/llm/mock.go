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
	"context"
	"errors"
	"sync"
)

// MockProvider is a scriptable Provider for tests. Responses and errors
// are consumed in FIFO order; when the queue runs dry the provider repeats
// DefaultContent.
//
// Thread Safety: MockProvider is safe for concurrent use.
type MockProvider struct {
	mu sync.Mutex

	// DefaultContent is returned when no queued result remains.
	DefaultContent string

	// CountResult is returned by CountTokens when CountErr is nil.
	CountResult int

	// CountErr makes CountTokens fail.
	CountErr error

	queue []mockResult
	calls [][]Message
}

type mockResult struct {
	gen *Generation
	err error
}

// NewMockProvider creates a mock with a default reply.
func NewMockProvider(defaultContent string) *MockProvider {
	return &MockProvider{DefaultContent: defaultContent}
}

// QueueResponse appends a successful generation to the script.
func (m *MockProvider) QueueResponse(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockResult{gen: &Generation{Content: content}})
}

// QueueError appends a failure to the script.
func (m *MockProvider) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockResult{err: err})
}

// QueuePartialStream appends a call that delivers content through
// Options.StreamFunc and then fails, as a provider that drops the
// connection mid-stream would.
func (m *MockProvider) QueuePartialStream(content string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockResult{gen: &Generation{Content: content}, err: err})
}

// Invoke implements Provider.
func (m *MockProvider) Invoke(ctx context.Context, messages []Message, opts Options) (*Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, append([]Message(nil), messages...))
	var next mockResult
	if len(m.queue) > 0 {
		next = m.queue[0]
		m.queue = m.queue[1:]
	} else {
		next = mockResult{gen: &Generation{Content: m.DefaultContent}}
	}
	m.mu.Unlock()

	if next.err != nil {
		if next.gen != nil && opts.StreamFunc != nil {
			if err := opts.StreamFunc(ctx, []byte(next.gen.Content)); err != nil {
				return nil, err
			}
		}
		return nil, next.err
	}
	if opts.StreamFunc != nil {
		if err := opts.StreamFunc(ctx, []byte(next.gen.Content)); err != nil {
			return nil, err
		}
	}
	gen := *next.gen
	return &gen, nil
}

// Name implements Provider.
func (m *MockProvider) Name() string {
	return "mock"
}

// CountTokens implements TokenCounter.
func (m *MockProvider) CountTokens(ctx context.Context, messages []Message) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CountErr != nil {
		return 0, m.CountErr
	}
	if m.CountResult == 0 {
		return 0, errors.New("llm: mock count not configured")
	}
	return m.CountResult, nil
}

// Calls returns the message sets Invoke has seen, in order.
func (m *MockProvider) Calls() [][]Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]Message(nil), m.calls...)
}

// CallCount returns the number of Invoke calls so far.
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
