package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kailas-cloud/triage/internal/domain"
)

func chatServer(t *testing.T, handle func(req map[string]any) (int, any)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		status, body := handle(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCompleter_Complete(t *testing.T) {
	var got map[string]any
	srv := chatServer(t, func(req map[string]any) (int, any) {
		got = req
		return http.StatusOK, map[string]any{
			"id":     "cmpl-1",
			"object": "chat.completion",
			"model":  "gpt-test",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": `{"is_followup": true, "confidence": 0.8}`},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 12, "total_tokens": 132},
		}
	})

	c := NewCompleter(&Config{APIKey: "k", BaseURL: srv.URL, Model: "gpt-test", Provider: "openai"})
	out, err := c.Complete(context.Background(), "you judge follow-ups", "is this a follow-up?")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out.Text != `{"is_followup": true, "confidence": 0.8}` {
		t.Errorf("text = %q", out.Text)
	}
	if out.InputTokens != 120 || out.OutputTokens != 12 || out.TotalTokens() != 132 {
		t.Errorf("usage = %+v", out)
	}

	msgs, _ := got["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("messages = %v", got["messages"])
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("first message role = %v", first["role"])
	}
	if got["max_tokens"] != float64(DefaultMaxTokens) {
		t.Errorf("max_tokens = %v", got["max_tokens"])
	}
}

func TestCompleter_NoChoices(t *testing.T) {
	srv := chatServer(t, func(map[string]any) (int, any) {
		return http.StatusOK, map[string]any{"id": "x", "choices": []any{}}
	})
	c := NewCompleter(&Config{APIKey: "k", BaseURL: srv.URL, Model: "m", Provider: "openai"})
	if _, err := c.Complete(context.Background(), "s", "u"); !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("err = %v, want ErrOracleUnavailable", err)
	}
}

func TestCompleter_APIError(t *testing.T) {
	srv := chatServer(t, func(map[string]any) (int, any) {
		return http.StatusInternalServerError, map[string]any{
			"error": map[string]any{"message": "overloaded", "type": "server_error"},
		}
	})
	c := NewCompleter(&Config{APIKey: "k", BaseURL: srv.URL, Model: "m", Provider: "openai"})
	_, err := c.Complete(context.Background(), "s", "u")
	if !errors.Is(err, domain.ErrOracleUnavailable) {
		t.Fatalf("err = %v, want ErrOracleUnavailable", err)
	}
}
