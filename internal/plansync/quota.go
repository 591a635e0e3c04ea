package plansync

import (
	"context"
	"log/slog"
	"time"

	"agentconsole/internal/billing"
	"agentconsole/internal/types"
)

// Quota denial reasons.
const (
	ReasonLimitReached = "limit_reached"
	ReasonPlanInactive = "plan_inactive"
)

// PlanReconciler resolves a user's current plan.
type PlanReconciler interface {
	Reconcile(ctx context.Context, userID string) ReconcileResult
}

// AgentCounter reads the live agent count from the relational store.
type AgentCounter interface {
	CountByUser(ctx context.Context, userID string) (int, error)
}

// QuotaDecision is the answer to "may this user create another agent".
type QuotaDecision struct {
	Allowed   bool   `json:"allowed"`
	Limit     int    `json:"limit"`
	Count     int    `json:"count"`
	Remaining int    `json:"remaining"`
	Reason    string `json:"reason,omitempty"`
}

// QuotaGuard gates agent creation on the plan's agent limit and activity.
//
// The guard is a predicate. Two creations racing past it can both be allowed
// and overshoot the limit by the number of racers.
type QuotaGuard struct {
	plans   PlanReconciler
	agents  AgentCounter
	clock   types.Clock
	timeout time.Duration
	metrics QuotaMetrics
	logger  *slog.Logger
}

// QuotaMetrics records denied creations.
type QuotaMetrics interface {
	RecordQuotaDenied(ctx context.Context, reason string)
}

// NewQuotaGuard creates a QuotaGuard. metrics may be nil.
func NewQuotaGuard(plans PlanReconciler, agents AgentCounter, clock types.Clock, timeout time.Duration, metrics QuotaMetrics, logger *slog.Logger) *QuotaGuard {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &QuotaGuard{
		plans:   plans,
		agents:  agents,
		clock:   clock,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
	}
}

// CanCreateAgent reports whether userID may create one more agent.
// A failure to read the live count is returned as an error; a cached count
// is never substituted.
func (g *QuotaGuard) CanCreateAgent(ctx context.Context, userID string) (QuotaDecision, error) {
	res := g.plans.Reconcile(ctx, userID)
	if res.Record == nil {
		return QuotaDecision{}, types.NewAppError(types.ErrCodeUpstreamUnavailable, "plan is unavailable", nil)
	}

	countCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	count, err := g.agents.CountByUser(countCtx, userID)
	if err != nil {
		return QuotaDecision{}, err
	}

	limit := res.Record.AgentLimit
	d := QuotaDecision{
		Limit:     limit,
		Count:     count,
		Remaining: max(limit-count, 0),
	}
	switch {
	case !billing.IsActive(res.Record, g.clock.Now()):
		d.Reason = ReasonPlanInactive
	case d.Remaining == 0:
		d.Reason = ReasonLimitReached
	default:
		d.Allowed = true
	}

	if !d.Allowed {
		g.logger.InfoContext(ctx, "agent creation denied",
			"user_id", userID,
			"reason", d.Reason,
			"limit", limit,
			"count", count,
		)
		if g.metrics != nil {
			g.metrics.RecordQuotaDenied(ctx, d.Reason)
		}
	}
	return d, nil
}
