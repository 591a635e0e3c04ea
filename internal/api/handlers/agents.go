package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agentconsole/internal/core"
	"agentconsole/internal/plansync"
	"agentconsole/internal/types"
)

// CreateAgentRequest is the body of POST /agents.
type CreateAgentRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// UpdateAgentRequest is the body of PATCH /agents/{agentID}.
type UpdateAgentRequest struct {
	IsConnected *bool `json:"is_connected" validate:"required"`
}

// AgentManager is the subset of plansync.AgentService used by AgentHandler.
type AgentManager interface {
	Create(ctx context.Context, actor types.Actor, name string) (*types.AgentRecord, error)
	List(ctx context.Context, userID string) ([]*types.AgentRecord, error)
	SetConnected(ctx context.Context, actor types.Actor, agentID string, connected bool) (*types.AgentRecord, error)
	Delete(ctx context.Context, actor types.Actor, agentID string) error
}

// QuotaChecker reports whether the user may create another agent.
type QuotaChecker interface {
	CanCreateAgent(ctx context.Context, userID string) (plansync.QuotaDecision, error)
}

// AgentHandler serves the caller's agents.
type AgentHandler struct {
	agents    AgentManager
	quota     QuotaChecker
	logger    *slog.Logger
	validator *core.Validator
}

// NewAgentHandler creates an AgentHandler.
func NewAgentHandler(agents AgentManager, quota QuotaChecker, l *slog.Logger, v *core.Validator) *AgentHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AgentHandler{agents: agents, quota: quota, logger: l, validator: v}
}

// RegisterRoutes mounts the agent routes.
func (h *AgentHandler) RegisterRoutes(r chi.Router) {
	r.Route("/agents", func(r chi.Router) {
		r.Get("/", h.List)
		r.Post("/", h.Create)
		r.Get("/quota", h.Quota)
		r.Patch("/{agentID}", h.Update)
		r.Delete("/{agentID}", h.Delete)
	})
}

// List handles GET /agents.
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	agents, err := h.agents.List(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if agents == nil {
		agents = []*types.AgentRecord{}
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: agents})
}

// Quota handles GET /agents/quota. The dashboard uses it to disable the
// create button before the user tries.
func (h *AgentHandler) Quota(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	decision, err := h.quota.CanCreateAgent(r.Context(), actor.ID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: decision})
}

// Create handles POST /agents.
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CreateAgentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	agent, err := h.agents.Create(r.Context(), actor, req.Name)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: agent})
}

// Update handles PATCH /agents/{agentID}.
func (h *AgentHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req UpdateAgentRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	agent, err := h.agents.SetConnected(r.Context(), actor, chi.URLParam(r, "agentID"), *req.IsConnected)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: agent})
}

// Delete handles DELETE /agents/{agentID}.
func (h *AgentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.agents.Delete(r.Context(), actor, chi.URLParam(r, "agentID")); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
