package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/perculacms/aicore/internal/types"
)

func TestClaudeAdapter_Chat(t *testing.T) {
	var body claudeRequestBody
	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_1", "model": "claude-3-5-sonnet",
			"content": [{"type": "text", "text": "Sure."}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 20, "output_tokens": 4}
		}`))
	}))
	defer srv.Close()

	a := NewClaudeAdapter(Credentials{APIKey: "ak-test"}, Options{BaseURL: srv.URL + "/v1"}, srv.Client())
	resp, err := a.Chat(context.Background(), types.ChatRequest{
		Model: "claude-3-5-sonnet",
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: "one"},
			{Role: types.RoleSystem, Content: "two"},
			{Role: types.RoleUser, Content: "go"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Text != "Sure." {
		t.Errorf("expected 'Sure.', got %q", resp.Text)
	}
	if *resp.InputTokens != 20 || *resp.OutputTokens != 4 {
		t.Errorf("unexpected usage %d/%d", *resp.InputTokens, *resp.OutputTokens)
	}
	if body.System != "one\ntwo" {
		t.Errorf("expected joined system prompt, got %q", body.System)
	}
	if len(body.Messages) != 1 || body.Messages[0].Role != "user" {
		t.Errorf("system messages should not be sent as turns: %+v", body.Messages)
	}
	if body.MaxTokens != claudeDefaultMax {
		t.Errorf("expected default max_tokens %d, got %d", claudeDefaultMax, body.MaxTokens)
	}
	if gotKey != "ak-test" || gotVersion != claudeAPIVersion {
		t.Errorf("unexpected headers key=%q version=%q", gotKey, gotVersion)
	}
}

func TestClaudeAdapter_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{"auth", http.StatusUnauthorized, `{"type":"error","error":{"type":"authentication_error"}}`, KindAuth},
		{"overloaded", http.StatusTooManyRequests, `{}`, KindQuota},
		{"bad json", http.StatusOK, `not json`, KindMalformed},
		{"no text", http.StatusOK, `{"content": []}`, KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			a := NewClaudeAdapter(Credentials{APIKey: "ak-test"}, Options{BaseURL: srv.URL}, srv.Client())
			_, err := a.Chat(context.Background(), types.ChatRequest{Model: "claude", Messages: []types.Message{{Role: types.RoleUser, Content: "x"}}})
			if !IsKind(err, tt.kind) {
				t.Errorf("expected %s error, got %v", tt.kind, err)
			}
		})
	}
}
