package agents

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/perculacms/aicore/internal/router"
	"github.com/perculacms/aicore/internal/types"
)

// Chatter is the router surface the service needs.
type Chatter interface {
	Chat(ctx context.Context, p router.ChatParams) (*types.ChatResponse, error)
}

// RunInput is the caller-provided input for one agent run. Input is either
// a string or a map[string]any, rendered as "key: value" lines.
type RunInput struct {
	Input         any
	Context       map[string]string
	Principal     string
	ClientAddress string
}

// RunResult is the outcome of a successful run.
type RunResult struct {
	AgentID      string              `json:"agent_id"`
	OutputText   string              `json:"output_text"`
	VendorType   types.VendorType    `json:"vendor_type"`
	Model        string              `json:"model"`
	InputTokens  *int                `json:"input_tokens"`
	OutputTokens *int                `json:"output_tokens"`
	JobID        string              `json:"job_id"`
	Fallback     bool                `json:"fallback"`
	Response     *types.ChatResponse `json:"-"`
}

// Service runs catalog agents through the router.
type Service struct {
	catalog *Catalog
	router  Chatter
	logger  *slog.Logger
}

func NewService(catalog *Catalog, chatter Chatter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{catalog: catalog, router: chatter, logger: logger}
}

// Run executes agent id. The agent id is recorded as the job's agent label.
func (s *Service) Run(ctx context.Context, id string, in RunInput) (*RunResult, error) {
	def, err := s.catalog.Get(id)
	if err != nil {
		return nil, err
	}

	resp, err := s.router.Chat(ctx, router.ChatParams{
		Messages:      BuildMessages(def, in),
		VendorType:    def.VendorType,
		ModelID:       def.Model,
		AgentLabel:    def.ID,
		Principal:     in.Principal,
		ClientAddress: in.ClientAddress,
	})
	if err != nil {
		s.logger.Error("agent run failed", "agent", id, "error", err)
		return nil, fmt.Errorf("run agent %s: %w", id, err)
	}

	s.logger.Info("agent run completed",
		"agent", id,
		"job_id", resp.JobID,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
	)

	return &RunResult{
		AgentID:      id,
		OutputText:   strings.TrimSpace(resp.Text),
		VendorType:   resp.VendorType,
		Model:        resp.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		JobID:        resp.JobID,
		Fallback:     resp.Fallback,
		Response:     resp,
	}, nil
}

// BuildMessages renders the system role and the user turn for def.
func BuildMessages(def *Definition, in RunInput) []types.Message {
	parts := []string{def.Task}
	if len(in.Context) > 0 {
		ctxMap := make(map[string]any, len(in.Context))
		for k, v := range in.Context {
			ctxMap[k] = v
		}
		parts = append(parts, "\nContext:\n"+renderMap(ctxMap))
	}
	parts = append(parts, "\nInput:\n"+renderInput(in.Input))

	return []types.Message{
		{Role: types.RoleSystem, Content: def.Role},
		{Role: types.RoleUser, Content: strings.Join(parts, "\n")},
	}
}

func renderInput(v any) string {
	switch in := v.(type) {
	case nil:
		return ""
	case string:
		return in
	case map[string]any:
		return renderMap(in)
	case map[string]string:
		m := make(map[string]any, len(in))
		for k, v := range in {
			m[k] = v
		}
		return renderMap(m)
	default:
		return fmt.Sprint(in)
	}
}

func renderMap(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, m[k]))
	}
	return strings.Join(lines, "\n")
}
