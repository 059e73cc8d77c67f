package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// --- Test Helpers ---

// recorder is a transport stub that records every request and answers with respond.
type recorder struct {
	mu      sync.Mutex
	paths   []string
	bodies  [][]byte
	respond func(n int, body []byte) ([]byte, error)
}

func newRecorder(respond func(n int, body []byte) ([]byte, error)) *recorder {
	return &recorder{respond: respond}
}

// replying returns a recorder that always answers with body.
func replying(body []byte) *recorder {
	return newRecorder(func(int, []byte) ([]byte, error) { return body, nil })
}

func (r *recorder) JSONPost(_ context.Context, path string, body []byte) ([]byte, error) {
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.bodies = append(r.bodies, append([]byte(nil), body...))
	n := len(r.bodies)
	r.mu.Unlock()
	return r.respond(n, body)
}

func (r *recorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

func (r *recorder) lastBody(t *testing.T) map[string]any {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.bodies, "transport was never called")
	var m map[string]any
	require.NoError(t, json.Unmarshal(r.bodies[len(r.bodies)-1], &m))
	return m
}

// openAIReply builds a chat completion whose first choice calls name once per arguments string.
func openAIReply(t *testing.T, name string, arguments ...string) []byte {
	t.Helper()
	calls := make([]map[string]any, len(arguments))
	for i, args := range arguments {
		calls[i] = map[string]any{
			"id":   fmt.Sprintf("call_%d", i),
			"type": "function",
			"function": map[string]any{
				"name":      name,
				"arguments": args,
			},
		}
	}
	body, err := json.Marshal(map[string]any{
		"id":     "chatcmpl-123",
		"object": "chat.completion",
		"model":  "gpt-4o",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": "tool_calls",
			"message": map[string]any{
				"role":       "assistant",
				"tool_calls": calls,
			},
		}},
	})
	require.NoError(t, err)
	return body
}

// anthropicReply builds a messages response with one tool_use block per input.
func anthropicReply(t *testing.T, name string, inputs ...any) []byte {
	t.Helper()
	content := []any{map[string]any{"type": "text", "text": "Here you go."}}
	for i, in := range inputs {
		content = append(content, map[string]any{
			"type":  "tool_use",
			"id":    fmt.Sprintf("toolu_%d", i),
			"name":  name,
			"input": in,
		})
	}
	body, err := json.Marshal(map[string]any{
		"id":          "msg_123",
		"type":        "message",
		"role":        "assistant",
		"content":     content,
		"stop_reason": "tool_use",
	})
	require.NoError(t, err)
	return body
}

func userParams(content string) map[string]any {
	return map[string]any{
		"model": "gpt-4o",
		"messages": []any{
			map[string]any{"role": "user", "content": content},
		},
	}
}
