package adapters

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/perculacms/aicore/internal/types"
)

func newOpenAITestServer(t *testing.T, status int, body string, inspect func(*http.Request, map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			raw, _ := io.ReadAll(r.Body)
			var payload map[string]any
			json.Unmarshal(raw, &payload)
			inspect(r, payload)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestOpenAIAdapter_Chat(t *testing.T) {
	var gotOrg, gotAuth string
	var gotPayload map[string]any
	srv := newOpenAITestServer(t, http.StatusOK, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": "gpt-4o",
		"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello there"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
	}`, func(r *http.Request, payload map[string]any) {
		gotOrg = r.Header.Get("OpenAI-Organization")
		gotAuth = r.Header.Get("Authorization")
		gotPayload = payload
	})
	defer srv.Close()

	a := NewOpenAIAdapter(Credentials{APIKey: "sk-test", OrganizationID: "org-cms"}, Options{BaseURL: srv.URL + "/v1"}, srv.Client())
	resp, err := a.Chat(context.Background(), types.ChatRequest{
		Model: "gpt-4o",
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: "be brief"},
			{Role: types.RoleUser, Content: "hi"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Text != "Hello there" {
		t.Errorf("expected text 'Hello there', got %q", resp.Text)
	}
	if resp.InputTokens == nil || *resp.InputTokens != 10 {
		t.Errorf("expected input tokens 10, got %v", resp.InputTokens)
	}
	if resp.OutputTokens == nil || *resp.OutputTokens != 5 {
		t.Errorf("expected output tokens 5, got %v", resp.OutputTokens)
	}
	if resp.VendorType != types.VendorOpenAI || resp.Model != "gpt-4o" {
		t.Errorf("unexpected vendor/model: %s/%s", resp.VendorType, resp.Model)
	}
	if gotOrg != "org-cms" {
		t.Errorf("expected organization header org-cms, got %q", gotOrg)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	msgs, _ := gotPayload["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages sent, got %d", len(msgs))
	}
	if first, _ := msgs[0].(map[string]any); first["role"] != "system" {
		t.Errorf("system role should be sent natively, got %v", first["role"])
	}
}

func TestOpenAIAdapter_Temperature(t *testing.T) {
	zero, warm := 0.0, 0.7
	tests := []struct {
		name        string
		temperature *float64
		wantSent    bool
		wantValue   float64
	}{
		{"unset", nil, false, 0},
		{"explicit zero", &zero, true, 0},
		{"nonzero", &warm, true, 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload map[string]any
			srv := newOpenAITestServer(t, http.StatusOK, `{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`,
				func(_ *http.Request, p map[string]any) { payload = p })
			defer srv.Close()

			a := NewOpenAIAdapter(Credentials{APIKey: "sk-test"}, Options{BaseURL: srv.URL + "/v1"}, srv.Client())
			_, err := a.Chat(context.Background(), types.ChatRequest{
				Model:       "gpt-4o",
				Messages:    []types.Message{{Role: types.RoleUser, Content: "rewrite this"}},
				Temperature: tt.temperature,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			got, sent := payload["temperature"]
			if sent != tt.wantSent {
				t.Fatalf("temperature sent = %v, want %v (payload %v)", sent, tt.wantSent, payload)
			}
			if !sent {
				return
			}
			v, _ := got.(float64)
			if math.Abs(v-tt.wantValue) > 1e-6 {
				t.Errorf("expected temperature %v, got %v", tt.wantValue, v)
			}
		})
	}
}

func TestOpenAIAdapter_NoOrganizationHeader(t *testing.T) {
	var hasOrg bool
	srv := newOpenAITestServer(t, http.StatusOK, `{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`,
		func(r *http.Request, _ map[string]any) {
			_, hasOrg = r.Header["Openai-Organization"]
		})
	defer srv.Close()

	a := NewOpenAIAdapter(Credentials{APIKey: "sk-test"}, Options{BaseURL: srv.URL}, srv.Client())
	resp, err := a.Chat(context.Background(), types.ChatRequest{Model: "gpt-4o-mini", Messages: []types.Message{{Role: types.RoleUser, Content: "x"}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hasOrg {
		t.Error("organization header should be omitted when not configured")
	}
	if resp.InputTokens != nil || resp.OutputTokens != nil {
		t.Error("token counts should stay nil when usage is not reported")
	}
}

func TestOpenAIAdapter_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   ErrorKind
	}{
		{"auth", http.StatusUnauthorized, `{"error": {"message": "bad key", "type": "invalid_request_error", "code": "invalid_api_key"}}`, KindAuth},
		{"quota", http.StatusTooManyRequests, `{"error": {"message": "slow down", "type": "rate_limit_error"}}`, KindQuota},
		{"empty choices", http.StatusOK, `{"choices": []}`, KindMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newOpenAITestServer(t, tt.status, tt.body, nil)
			defer srv.Close()

			a := NewOpenAIAdapter(Credentials{APIKey: "sk-test"}, Options{BaseURL: srv.URL}, srv.Client())
			_, err := a.Chat(context.Background(), types.ChatRequest{Model: "gpt-4o", Messages: []types.Message{{Role: types.RoleUser, Content: "x"}}})
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsKind(err, tt.kind) {
				t.Errorf("expected kind %s, got %v", tt.kind, err)
			}
		})
	}
}

func TestOpenAIAdapter_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	a := NewOpenAIAdapter(Credentials{APIKey: "sk-test"}, Options{BaseURL: url}, &http.Client{})
	_, err := a.Chat(context.Background(), types.ChatRequest{Model: "gpt-4o", Messages: []types.Message{{Role: types.RoleUser, Content: "x"}}})
	if !IsKind(err, KindUnreachable) {
		t.Errorf("expected unreachable error, got %v", err)
	}
}
