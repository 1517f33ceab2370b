package adapters

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/perculacms/aicore/internal/types"
	"google.golang.org/genai"
)

// GeminiAdapter talks to the Gemini generateContent API. Gemini has no
// system role, so system messages become the system instruction.
type GeminiAdapter struct {
	creds      Credentials
	opts       Options
	httpClient *http.Client
}

func NewGeminiAdapter(creds Credentials, opts Options, httpClient *http.Client) *GeminiAdapter {
	return &GeminiAdapter{creds: creds, opts: opts, httpClient: httpClient}
}

var geminiRoles = map[types.Role]string{
	types.RoleUser:      "user",
	types.RoleAssistant: "model",
}

// convertMessages splits messages into a joined system instruction and the
// conversation turns with Gemini role names.
func convertMessages(msgs []types.Message) (*genai.Content, []*genai.Content) {
	var system []string
	contents := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		role, ok := geminiRoles[m.Role]
		if !ok {
			role = "user"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}

	if len(system) == 0 {
		return nil, contents
	}
	return &genai.Content{Parts: []*genai.Part{{Text: strings.Join(system, "\n")}}}, contents
}

func (a *GeminiAdapter) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	cc := &genai.ClientConfig{
		APIKey:     a.creds.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: a.httpClient,
	}
	if a.opts.BaseURL != "" {
		cc.HTTPOptions.BaseURL = a.opts.BaseURL
	}
	if len(a.opts.Headers) > 0 {
		cc.HTTPOptions.Headers = http.Header{}
		for k, v := range a.opts.Headers {
			cc.HTTPOptions.Headers.Set(k, v)
		}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, unreachable(types.VendorGemini, err)
	}

	system, contents := convertMessages(req.Messages)
	gcfg := &genai.GenerateContentConfig{SystemInstruction: system}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		gcfg.Temperature = &t
	}
	if req.MaxTokens != nil {
		gcfg.MaxOutputTokens = int32(*req.MaxTokens)
	}

	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, gcfg)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	text, ok := candidateText(resp)
	if !ok {
		return nil, malformed(types.VendorGemini, "response contained no candidates")
	}

	out := &types.ChatResponse{
		Text:       text,
		VendorType: types.VendorGemini,
		Model:      req.Model,
		Raw:        resp,
	}
	out.InputTokens, out.OutputTokens = geminiUsage(resp.UsageMetadata)
	return out, nil
}

func candidateText(resp *genai.GenerateContentResponse) (string, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", false
	}
	var sb strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if p == nil || p.Thought {
			continue
		}
		sb.WriteString(p.Text)
	}
	return sb.String(), true
}

func geminiUsage(meta *genai.GenerateContentResponseUsageMetadata) (*int, *int) {
	if meta == nil {
		return nil, nil
	}
	return intPtr(int(meta.PromptTokenCount)), intPtr(int(meta.CandidatesTokenCount))
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError(types.VendorGemini, apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return statusError(types.VendorGemini, apiErrPtr.Code, err)
	}
	return unreachable(types.VendorGemini, err)
}
