package adapters

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/perculacms/aicore/internal/types"
	"google.golang.org/genai"
)

func TestConvertMessages(t *testing.T) {
	system, contents := convertMessages([]types.Message{
		{Role: types.RoleSystem, Content: "You are an editor."},
		{Role: types.RoleUser, Content: "Draft a title."},
		{Role: types.RoleSystem, Content: "Answer in French."},
		{Role: types.RoleAssistant, Content: "Un titre"},
		{Role: types.RoleUser, Content: "Shorter."},
	})

	if system == nil || len(system.Parts) != 1 {
		t.Fatal("expected a single system instruction part")
	}
	if system.Parts[0].Text != "You are an editor.\nAnswer in French." {
		t.Errorf("system messages should be joined with newline, got %q", system.Parts[0].Text)
	}

	wantRoles := []string{"user", "model", "user"}
	if len(contents) != len(wantRoles) {
		t.Fatalf("expected %d contents, got %d", len(wantRoles), len(contents))
	}
	for i, role := range wantRoles {
		if contents[i].Role != role {
			t.Errorf("contents[%d].Role = %q, want %q", i, contents[i].Role, role)
		}
	}
	if contents[1].Parts[0].Text != "Un titre" {
		t.Errorf("unexpected assistant text %q", contents[1].Parts[0].Text)
	}
}

func TestConvertMessages_NoSystem(t *testing.T) {
	system, contents := convertMessages([]types.Message{{Role: types.RoleUser, Content: "hi"}})
	if system != nil {
		t.Error("expected no system instruction")
	}
	if len(contents) != 1 {
		t.Errorf("expected 1 content, got %d", len(contents))
	}
}

func TestGeminiUsage(t *testing.T) {
	in, out := geminiUsage(nil)
	if in != nil || out != nil {
		t.Error("missing usage metadata should yield nil counts")
	}

	in, out = geminiUsage(&genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 12, CandidatesTokenCount: 7})
	if in == nil || *in != 12 || out == nil || *out != 7 {
		t.Errorf("unexpected usage: %v %v", in, out)
	}
}

func TestCandidateText(t *testing.T) {
	if _, ok := candidateText(&genai.GenerateContentResponse{}); ok {
		t.Error("no candidates should not be ok")
	}

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{
			{Text: "thinking...", Thought: true},
			{Text: "Hello "},
			{Text: "world"},
		}},
	}}}
	text, ok := candidateText(resp)
	if !ok || text != "Hello world" {
		t.Errorf("candidateText = (%q, %v), want (Hello world, true)", text, ok)
	}
}

func TestGeminiAdapter_Chat(t *testing.T) {
	var gotPath, gotKey string
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &payload)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Bonjour"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 8, "candidatesTokenCount": 3, "totalTokenCount": 11}
		}`))
	}))
	defer srv.Close()

	a := NewGeminiAdapter(Credentials{APIKey: "g-test"}, Options{BaseURL: srv.URL + "/"}, srv.Client())
	resp, err := a.Chat(context.Background(), types.ChatRequest{
		Model: "gemini-1.5-pro",
		Messages: []types.Message{
			{Role: types.RoleSystem, Content: "Translate to French."},
			{Role: types.RoleUser, Content: "Hello"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Text != "Bonjour" {
		t.Errorf("expected Bonjour, got %q", resp.Text)
	}
	if resp.InputTokens == nil || *resp.InputTokens != 8 || resp.OutputTokens == nil || *resp.OutputTokens != 3 {
		t.Errorf("unexpected usage: %v %v", resp.InputTokens, resp.OutputTokens)
	}
	if !strings.Contains(gotPath, "gemini-1.5-pro:generateContent") {
		t.Errorf("unexpected request path %q", gotPath)
	}
	if gotKey != "g-test" {
		t.Errorf("expected api key header, got %q", gotKey)
	}
	if _, ok := payload["systemInstruction"]; !ok {
		t.Error("expected systemInstruction in request body")
	}
}

func TestGeminiAdapter_AuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error": {"code": 403, "message": "API key not valid", "status": "PERMISSION_DENIED"}}`))
	}))
	defer srv.Close()

	a := NewGeminiAdapter(Credentials{APIKey: "g-bad"}, Options{BaseURL: srv.URL + "/"}, srv.Client())
	_, err := a.Chat(context.Background(), types.ChatRequest{Model: "gemini-1.5-pro", Messages: []types.Message{{Role: types.RoleUser, Content: "x"}}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsKind(err, KindAuth) {
		t.Errorf("expected auth kind, got %v", err)
	}
}
