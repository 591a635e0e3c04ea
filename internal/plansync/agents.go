package plansync

import (
	"context"
	"log/slog"
	"strings"

	"agentconsole/internal/types"
)

// AgentStore is the persistence AgentService needs.
type AgentStore interface {
	AgentCounter
	Create(ctx context.Context, a *types.AgentRecord) error
	GetByID(ctx context.Context, id string) (*types.AgentRecord, error)
	ListByUser(ctx context.Context, userID string) ([]*types.AgentRecord, error)
	SetConnected(ctx context.Context, id string, connected bool) error
	Delete(ctx context.Context, id string) error
}

// QuotaChecker is satisfied by *QuotaGuard.
type QuotaChecker interface {
	CanCreateAgent(ctx context.Context, userID string) (QuotaDecision, error)
}

// AgentService manages a user's agents behind the quota guard.
type AgentService struct {
	agents AgentStore
	quota  QuotaChecker
	logger *slog.Logger
}

// NewAgentService creates an AgentService.
func NewAgentService(agents AgentStore, quota QuotaChecker, logger *slog.Logger) *AgentService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentService{agents: agents, quota: quota, logger: logger}
}

// Create adds an agent for the actor after the quota check passes.
func (s *AgentService) Create(ctx context.Context, actor types.Actor, name string) (*types.AgentRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "agent name is required", nil)
	}
	if len(name) > types.MaxAgentNameLength {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPayload, "agent name is too long", nil)
	}

	decision, err := s.quota.CanCreateAgent(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		code := types.ErrCodeLimitAgents
		msg := "agent limit reached for the current plan"
		if decision.Reason == ReasonPlanInactive {
			code = types.ErrCodeLimitPlanInactive
			msg = "plan is not active"
		}
		return nil, types.NewAppErrorWithDetails(code, msg, nil, map[string]any{
			"limit": decision.Limit,
			"count": decision.Count,
		})
	}

	agent := &types.AgentRecord{UserID: actor.ID, Name: name}
	if err := s.agents.Create(ctx, agent); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "agent created",
		"user_id", actor.ID,
		"agent_id", agent.ID,
		"remaining", decision.Remaining-1,
	)
	return agent, nil
}

// List returns the agents owned by userID.
func (s *AgentService) List(ctx context.Context, userID string) ([]*types.AgentRecord, error) {
	return s.agents.ListByUser(ctx, userID)
}

// SetConnected toggles an agent's connection flag.
func (s *AgentService) SetConnected(ctx context.Context, actor types.Actor, agentID string, connected bool) (*types.AgentRecord, error) {
	agent, err := s.owned(ctx, actor, agentID)
	if err != nil {
		return nil, err
	}
	if err := s.agents.SetConnected(ctx, agentID, connected); err != nil {
		return nil, err
	}
	agent.IsConnected = connected
	return agent, nil
}

// Delete removes an agent. Owners and administrators may delete.
func (s *AgentService) Delete(ctx context.Context, actor types.Actor, agentID string) error {
	if _, err := s.owned(ctx, actor, agentID); err != nil {
		return err
	}
	if err := s.agents.Delete(ctx, agentID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "agent deleted", "agent_id", agentID, "actor_id", actor.ID)
	return nil
}

func (s *AgentService) owned(ctx context.Context, actor types.Actor, agentID string) (*types.AgentRecord, error) {
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}
	if agent.UserID != actor.ID && !actor.IsAdmin() {
		return nil, types.NewAppError(types.ErrCodePermissionOwner, "agent belongs to another user", nil)
	}
	return agent, nil
}
