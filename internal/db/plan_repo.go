package db

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"agentconsole/internal/types"
)

// PlanRepository is the authoritative store of plan records.
type PlanRepository struct {
	db DBTX
}

// NewPlanRepository creates a PlanRepository.
func NewPlanRepository(db DBTX) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `user_id, tier, trial_ends_at, payment_date, subscription_ends_at,
	payment_status, agent_limit, limit_source, limit_set_at, updated_at`

func scanPlan(row pgx.Row) (*types.PlanRecord, error) {
	var p types.PlanRecord
	err := row.Scan(
		&p.UserID,
		&p.Tier,
		&p.TrialEndsAt,
		&p.PaymentDate,
		&p.SubscriptionEndsAt,
		&p.PaymentStatus,
		&p.AgentLimit,
		&p.LimitSource,
		&p.LimitSetAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Get returns the plan for userID, or not_found_plan.
func (r *PlanRepository) Get(ctx context.Context, userID string) (*types.PlanRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans WHERE user_id = $1`,
		userID,
	)

	p, err := scanPlan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve plan", err)
	}
	return p, nil
}

// Upsert writes the full record, keyed by user id.
func (r *PlanRepository) Upsert(ctx context.Context, p *types.PlanRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO plans (`+planColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()))
		 ON CONFLICT (user_id) DO UPDATE SET
		     tier = EXCLUDED.tier,
		     trial_ends_at = EXCLUDED.trial_ends_at,
		     payment_date = EXCLUDED.payment_date,
		     subscription_ends_at = EXCLUDED.subscription_ends_at,
		     payment_status = EXCLUDED.payment_status,
		     agent_limit = EXCLUDED.agent_limit,
		     limit_source = EXCLUDED.limit_source,
		     limit_set_at = EXCLUDED.limit_set_at,
		     updated_at = EXCLUDED.updated_at`,
		p.UserID,
		p.Tier,
		p.TrialEndsAt,
		p.PaymentDate,
		p.SubscriptionEndsAt,
		p.PaymentStatus,
		p.AgentLimit,
		p.LimitSource,
		p.LimitSetAt,
		nilIfZeroTime(p.UpdatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to upsert plan", err)
	}
	return nil
}

// MarkPaymentFailed records a failed renewal without touching the tier.
func (r *PlanRepository) MarkPaymentFailed(ctx context.Context, userID string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE plans SET payment_status = 'failed', updated_at = NOW() WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark payment failure", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPlan, "plan not found", nil)
	}
	return nil
}
