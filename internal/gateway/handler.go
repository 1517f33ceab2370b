package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/perculacms/aicore/internal/agents"
	"github.com/perculacms/aicore/internal/auth"
	"github.com/perculacms/aicore/internal/httputil"
	"github.com/perculacms/aicore/internal/router"
	"github.com/perculacms/aicore/internal/router/adapters"
	"github.com/perculacms/aicore/internal/store"
	"github.com/perculacms/aicore/internal/types"
)

const maxBodyBytes = 1 << 20

// AIRouter is the router surface used by the HTTP API.
type AIRouter interface {
	Chat(ctx context.Context, p router.ChatParams) (*types.ChatResponse, error)
	Generate(ctx context.Context, prompt string, p router.ChatParams) (*types.ChatResponse, error)
}

type AgentCatalog interface {
	List() []*agents.Definition
}

type AgentRunner interface {
	Run(ctx context.Context, id string, in agents.RunInput) (*agents.RunResult, error)
}

type JobReader interface {
	GetJob(ctx context.Context, id string) (*types.JobRecord, error)
	ListJobs(ctx context.Context, filter types.JobFilter) ([]types.JobRecord, error)
}

type SpendRecorder interface {
	RecordSpend(ctx context.Context, principal string, cost decimal.NullDecimal) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of Handler. Budget and DB may be nil.
type Deps struct {
	Router  AIRouter
	Catalog AgentCatalog
	Agents  AgentRunner
	Jobs    JobReader
	Models  router.ModelSource
	Budget  SpendRecorder
	DB      Pinger
	Version string
	Logger  *slog.Logger
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	Deps
}

func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{Deps: d}
}

type chatRequest struct {
	Messages    []types.Message `json:"messages"`
	Provider    string          `json:"provider,omitempty"`
	Model       string          `json:"model,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
}

type generateRequest struct {
	Prompt      string   `json:"prompt"`
	Provider    string   `json:"provider,omitempty"`
	Model       string   `json:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
}

type agentRunRequest struct {
	Input   any               `json:"input"`
	Context map[string]string `json:"context,omitempty"`
}

// Chat handles POST /v1/chat
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	var req chatRequest
	if !decodeBody(w, r, reqID, &req) {
		return
	}
	params, ok := h.params(w, r, reqID, req.Provider, req.Model)
	if !ok {
		return
	}
	params.Messages = req.Messages
	params.Temperature = req.Temperature
	params.MaxTokens = req.MaxTokens

	resp, err := h.Router.Chat(r.Context(), params)
	if err != nil {
		h.writeError(w, reqID, err)
		return
	}
	h.recordSpend(r.Context(), params.Principal, resp.Cost)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Generate handles POST /v1/generate
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	var req generateRequest
	if !decodeBody(w, r, reqID, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		httputil.WriteBadRequestError(w, reqID, "prompt is required")
		return
	}
	params, ok := h.params(w, r, reqID, req.Provider, req.Model)
	if !ok {
		return
	}
	params.Temperature = req.Temperature
	params.MaxTokens = req.MaxTokens

	resp, err := h.Router.Generate(r.Context(), req.Prompt, params)
	if err != nil {
		h.writeError(w, reqID, err)
		return
	}
	h.recordSpend(r.Context(), params.Principal, resp.Cost)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// ListAgents handles GET /v1/agents
func (h *Handler) ListAgents(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": h.Catalog.List()})
}

// RunAgent handles POST /v1/agents/{agentID}/run
func (h *Handler) RunAgent(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	agentID := chi.URLParam(r, "agentID")

	var req agentRunRequest
	if !decodeBody(w, r, reqID, &req) {
		return
	}
	if req.Input == nil {
		httputil.WriteBadRequestError(w, reqID, "input is required")
		return
	}

	principal := principalFrom(r)
	res, err := h.Agents.Run(r.Context(), agentID, agents.RunInput{
		Input:         req.Input,
		Context:       req.Context,
		Principal:     principal,
		ClientAddress: clientAddress(r),
	})
	if err != nil {
		h.writeError(w, reqID, err)
		return
	}
	if res.Response != nil {
		h.recordSpend(r.Context(), principal, res.Response.Cost)
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

type modelObject struct {
	ID                    string              `json:"id"`
	Name                  string              `json:"name"`
	Provider              string              `json:"provider"`
	VendorType            types.VendorType    `json:"vendor_type"`
	InputPricePerMillion  decimal.NullDecimal `json:"input_price_per_million"`
	OutputPricePerMillion decimal.NullDecimal `json:"output_price_per_million"`
}

// ListModels handles GET /v1/models. Only active models of active providers
// are listed and provider credentials are never included.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	filter := router.ModelFilter{}
	if p := r.URL.Query().Get("provider"); p != "" {
		vt, ok := types.ParseVendorType(p)
		if !ok {
			httputil.WriteBadRequestError(w, reqID, fmt.Sprintf("unknown provider %q", p))
			return
		}
		filter.VendorType = vt
	}

	models, err := h.Models.ActiveModels(r.Context(), filter)
	if err != nil {
		h.Logger.Error("list models failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to list models")
		return
	}

	out := make([]modelObject, 0, len(models))
	for _, m := range models {
		out = append(out, modelObject{
			ID:                    m.Model.ModelID,
			Name:                  m.Model.Name,
			Provider:              m.Provider.Name,
			VendorType:            m.Provider.VendorType,
			InputPricePerMillion:  m.Model.InputPricePerMillion,
			OutputPricePerMillion: m.Model.OutputPricePerMillion,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": out})
}

// ListJobs handles GET /v1/jobs?agent=&status=&principal=&limit=
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	q := r.URL.Query()

	filter := types.JobFilter{
		AgentLabel: q.Get("agent"),
		Principal:  q.Get("principal"),
	}
	if s := q.Get("status"); s != "" {
		status := types.JobStatus(strings.ToUpper(s))
		if status != types.JobPending && !status.Terminal() {
			httputil.WriteBadRequestError(w, reqID, fmt.Sprintf("unknown status %q", s))
			return
		}
		filter.Status = status
	}
	if l := q.Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			httputil.WriteBadRequestError(w, reqID, "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	jobs, err := h.Jobs.ListJobs(r.Context(), filter)
	if err != nil {
		h.Logger.Error("list jobs failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []types.JobRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"data": jobs})
}

// GetJob handles GET /v1/jobs/{jobID}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	jobID := chi.URLParam(r, "jobID")

	job, err := h.Jobs.GetJob(r.Context(), jobID)
	if errors.Is(err, store.ErrNotFound) {
		httputil.WriteNotFoundError(w, reqID, "job_not_found", fmt.Sprintf("job %q not found", jobID))
		return
	}
	if err != nil {
		h.Logger.Error("get job failed", "request_id", reqID, "job_id", jobID, "error", err)
		httputil.WriteInternalError(w, reqID, "Failed to load job")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, job)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if h.DB != nil {
		if err := h.DB.Ping(r.Context()); err != nil {
			h.Logger.Warn("health check: database unreachable", "error", err)
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}
	httputil.WriteJSON(w, code, map[string]string{
		"status":  status,
		"version": h.Version,
	})
}

// params builds the caller-independent part of ChatParams.
func (h *Handler) params(w http.ResponseWriter, r *http.Request, reqID, provider, model string) (router.ChatParams, bool) {
	p := router.ChatParams{
		ModelID:       model,
		Principal:     principalFrom(r),
		ClientAddress: clientAddress(r),
	}
	if provider != "" {
		vt, ok := types.ParseVendorType(provider)
		if !ok {
			httputil.WriteBadRequestError(w, reqID, fmt.Sprintf("unknown provider %q", provider))
			return p, false
		}
		p.VendorType = vt
	}
	return p, true
}

func (h *Handler) recordSpend(ctx context.Context, principal string, cost decimal.NullDecimal) {
	if h.Budget == nil || principal == "" {
		return
	}
	if err := h.Budget.RecordSpend(context.WithoutCancel(ctx), principal, cost); err != nil {
		h.Logger.Warn("failed to record spend", "principal", principal, "error", err)
	}
}

// writeError maps domain errors onto HTTP responses.
func (h *Handler) writeError(w http.ResponseWriter, reqID string, err error) {
	var (
		unsupported *router.UnsupportedVendorError
		adapterErr  *adapters.AdapterError
	)
	switch {
	case errors.Is(err, router.ErrInvalidRequest):
		httputil.WriteBadRequestError(w, reqID, err.Error())
	case errors.Is(err, agents.ErrAgentNotFound):
		httputil.WriteNotFoundError(w, reqID, "agent_not_found", err.Error())
	case errors.Is(err, router.ErrNoActiveModel):
		httputil.WriteConfigurationError(w, reqID, "no_active_model", "No active model is configured for this request")
	case errors.As(err, &unsupported):
		httputil.WriteConfigurationError(w, reqID, "unsupported_vendor", unsupported.Error())
	case errors.As(err, &adapterErr):
		if adapters.IsKind(err, adapters.KindAuth) {
			h.Logger.Error("provider rejected the configured credential",
				"request_id", reqID,
				"vendor_type", adapterErr.Vendor,
				"status", adapterErr.StatusCode,
			)
		}
		// the vendor message may echo request data, so only the kind is returned
		httputil.WriteProviderError(w, reqID, string(adapterErr.Kind),
			fmt.Sprintf("%s request failed (%s)", adapterErr.Vendor, adapterErr.Kind))
	default:
		h.Logger.Error("request failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, "Internal error")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, reqID string, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

func principalFrom(r *http.Request) string {
	if info, ok := auth.AuthFromContext(r.Context()); ok {
		return info.Principal
	}
	return ""
}

// clientAddress strips the port; RemoteAddr has already been rewritten by
// middleware.RealIP when a proxy header is present.
func clientAddress(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
