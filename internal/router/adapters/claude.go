package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/perculacms/aicore/internal/types"
)

const (
	claudeDefaultBaseURL = "https://api.anthropic.com/v1"
	claudeAPIVersion     = "2023-06-01"
	claudeDefaultMax     = 4096
)

// ClaudeAdapter handles communication with the Anthropic Messages API.
type ClaudeAdapter struct {
	creds  Credentials
	opts   Options
	client *http.Client
}

func NewClaudeAdapter(creds Credentials, opts Options, client *http.Client) *ClaudeAdapter {
	if opts.BaseURL == "" {
		opts.BaseURL = claudeDefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &ClaudeAdapter{creds: creds, opts: opts, client: client}
}

func (a *ClaudeAdapter) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	var system []string
	messages := make([]claudeMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		messages = append(messages, claudeMessage{Role: string(m.Role), Content: m.Content})
	}

	// Anthropic requires max_tokens
	maxTokens := claudeDefaultMax
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	data, err := json.Marshal(claudeRequestBody{
		Model:       req.Model,
		Messages:    messages,
		System:      strings.Join(system, "\n"),
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, malformed(types.VendorClaude, "marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(a.opts.BaseURL, "/")+"/messages", bytes.NewReader(data))
	if err != nil {
		return nil, unreachable(types.VendorClaude, fmt.Errorf("create http request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.creds.APIKey)
	httpReq.Header.Set("anthropic-version", claudeAPIVersion)
	for k, v := range a.opts.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, unreachable(types.VendorClaude, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, unreachable(types.VendorClaude, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(types.VendorClaude, resp.StatusCode, fmt.Errorf("%s", truncate(body, 512)))
	}

	var cr claudeResponseBody
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, malformed(types.VendorClaude, "unmarshal response: %w", err)
	}

	var text strings.Builder
	found := false
	for _, block := range cr.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
			found = true
		}
	}
	if !found {
		return nil, malformed(types.VendorClaude, "response contained no text content")
	}

	out := &types.ChatResponse{
		Text:       text.String(),
		VendorType: types.VendorClaude,
		Model:      req.Model,
		Raw:        cr,
	}
	if cr.Usage != nil {
		out.InputTokens = intPtr(cr.Usage.InputTokens)
		out.OutputTokens = intPtr(cr.Usage.OutputTokens)
	}
	return out, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequestBody struct {
	Model       string          `json:"model"`
	Messages    []claudeMessage `json:"messages"`
	System      string          `json:"system,omitempty"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature *float64        `json:"temperature,omitempty"`
}

type claudeResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
