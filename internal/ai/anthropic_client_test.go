package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"
)

func TestAnthropicGenerateLiftsSystemPrompt(t *testing.T) {
	var captured struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		System    []struct {
			Text string `json:"text"`
		} `json:"system"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Api-Key") != "sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          "msg_01",
			"type":        "message",
			"role":        "assistant",
			"model":       captured.Model,
			"stop_reason": "end_turn",
			"content": []map[string]any{
				{"type": "text", "text": "Column age "},
				{"type": "text", "text": "has mixed types."},
			},
			"usage": map[string]any{"input_tokens": 20, "output_tokens": 6},
		})
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-test", srv.URL, 2*time.Second, 0)
	resp, err := c.Generate(context.Background(), GenerateRequest{
		Model: "claude-test",
		Messages: []Message{
			{Role: RoleSystem, Content: "You review datasets."},
			{Role: RoleUser, Content: "What is wrong?"},
			{Role: RoleAssistant, Content: "Let me look."},
			{Role: RoleUser, Content: "Go on."},
		},
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if resp.Text() != "Column age has mixed types." {
		t.Fatalf("unexpected text: %q", resp.Text())
	}
	if resp.ID != "msg_01" || resp.Usage.TotalTokens != 26 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(captured.System) != 1 || captured.System[0].Text != "You review datasets." {
		t.Fatalf("system prompt not lifted: %+v", captured.System)
	}
	if len(captured.Messages) != 3 || captured.Messages[1].Role != "assistant" {
		t.Fatalf("unexpected turns: %+v", captured.Messages)
	}
	if captured.MaxTokens != defaultAnthropicMaxTokens {
		t.Fatalf("expected default max tokens, got %d", captured.MaxTokens)
	}
}

func TestAnthropicErrorsAreTyped(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Request-Id", "req_anthropic_1")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":  "error",
			"error": map[string]any{"type": "authentication_error", "message": "invalid x-api-key"},
		})
	}))
	defer srv.Close()

	c := NewAnthropicClient("sk-wrong", srv.URL, 2*time.Second, 0)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "claude-test", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %T: %v", err, err)
	}
	if ae.RequestID != "req_anthropic_1" {
		t.Fatalf("unexpected request id: %q", ae.RequestID)
	}
}

func TestAnthropicRequiresKeyAndUserTurn(t *testing.T) {
	var hits int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := NewAnthropicClient("", srv.URL, time.Second, 0)
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}

	c = NewAnthropicClient("sk-test", srv.URL, time.Second, 0)
	_, err = c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: []Message{{Role: RoleSystem, Content: "only system"}}})
	if err == nil {
		t.Fatalf("expected error for system-only request")
	}
	if atomic.LoadInt32(&hits) != 0 {
		t.Fatalf("no request should reach the server")
	}
}
