package adapters

import (
	"context"
	"errors"
	"math"
	"net/http"

	"github.com/perculacms/aicore/internal/types"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIAdapter talks to the OpenAI chat completions API.
type OpenAIAdapter struct {
	client *openai.Client
}

func NewOpenAIAdapter(creds Credentials, opts Options, httpClient *http.Client) *OpenAIAdapter {
	cfg := openai.DefaultConfig(creds.APIKey)
	if creds.OrganizationID != "" {
		cfg.OrgID = creds.OrganizationID
	}
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	cfg.HTTPClient = withHeaders(httpClient, opts.Headers)
	return &OpenAIAdapter{client: openai.NewClientWithConfig(cfg)}
}

func (a *OpenAIAdapter) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResponse, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	creq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: msgs,
	}
	if req.Temperature != nil {
		creq.Temperature = float32(*req.Temperature)
		// go-openai omits a zero temperature from the request body.
		if creq.Temperature == 0 {
			creq.Temperature = math.SmallestNonzeroFloat32
		}
	}
	if req.MaxTokens != nil {
		creq.MaxTokens = *req.MaxTokens
	}

	resp, err := a.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, malformed(types.VendorOpenAI, "response contained no choices")
	}

	out := &types.ChatResponse{
		Text:       resp.Choices[0].Message.Content,
		VendorType: types.VendorOpenAI,
		Model:      req.Model,
		Raw:        resp,
	}
	// An all-zero usage block means the vendor did not report usage.
	if u := resp.Usage; u.PromptTokens != 0 || u.CompletionTokens != 0 || u.TotalTokens != 0 {
		out.InputTokens = intPtr(u.PromptTokens)
		out.OutputTokens = intPtr(u.CompletionTokens)
	}
	return out, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(types.VendorOpenAI, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(types.VendorOpenAI, reqErr.HTTPStatusCode, err)
	}
	return unreachable(types.VendorOpenAI, err)
}
