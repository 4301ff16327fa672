package openai_compat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"showchat/internal/providers"
)

func TestBuildPayload(t *testing.T) {
	c := New(Config{BaseURL: "https://api.example.com/v1"})

	body, endpoint, err := c.buildPayload(providers.ChatRequest{
		Model:        "gpt-4o-mini",
		SystemPrompt: "You are concise",
		UserPrompt:   "hello",
		MaxTokens:    123,
		Temperature:  0.4,
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if endpoint != "https://api.example.com/v1/chat/completions" {
		t.Fatalf("unexpected endpoint %q", endpoint)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["model"] != "gpt-4o-mini" {
		t.Fatalf("expected model gpt-4o-mini, got %#v", payload["model"])
	}
	if _, ok := payload["messages"]; !ok {
		t.Fatalf("messages missing in payload")
	}
}

func TestChatRetriesOnServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]string{"content": "hi there"}}},
		})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "k", MaxAttempts: 3, BackoffBase: time.Millisecond})
	resp, err := c.Chat(context.Background(), providers.ChatRequest{Model: "m", UserPrompt: "hi"})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if resp.Text != "hi there" {
		t.Fatalf("unexpected text %q", resp.Text)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestChatClientErrorNoRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "bad", MaxAttempts: 3, BackoffBase: time.Millisecond})
	_, err := c.Chat(context.Background(), providers.ChatRequest{Model: "m", UserPrompt: "hi"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if providers.IsOverloaded(err) {
		t.Fatalf("auth failure must not be retryable: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", calls)
	}
}
