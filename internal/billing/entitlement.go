package billing

import (
	"math"
	"time"

	"agentconsole/internal/types"
)

const day = 24 * time.Hour

// IsTrialExpired reports whether a trial record is past its end.
// The boundary instant itself is not expired.
func IsTrialExpired(rec *types.PlanRecord, now time.Time) bool {
	if rec == nil || rec.Tier != types.PlanTrial || rec.TrialEndsAt == nil {
		return false
	}
	return now.After(*rec.TrialEndsAt)
}

// IsSubscriptionExpired reports whether a paid record is past its subscription end.
func IsSubscriptionExpired(rec *types.PlanRecord, now time.Time) bool {
	if rec == nil || rec.Tier == types.PlanTrial || rec.SubscriptionEndsAt == nil {
		return false
	}
	return now.After(*rec.SubscriptionEndsAt)
}

// DaysRemaining returns whole days, rounded up, until the relevant expiry.
func DaysRemaining(rec *types.PlanRecord, now time.Time) int {
	if rec == nil {
		return 0
	}
	var end *time.Time
	if rec.Tier == types.PlanTrial {
		end = rec.TrialEndsAt
	} else {
		end = rec.SubscriptionEndsAt
	}
	if end == nil || !end.After(now) {
		return 0
	}
	return int(math.Ceil(float64(end.Sub(now)) / float64(day)))
}

// IsActive reports whether the record currently grants its entitlement.
func IsActive(rec *types.PlanRecord, now time.Time) bool {
	if rec == nil {
		return false
	}
	if IsTrialExpired(rec, now) || IsSubscriptionExpired(rec, now) {
		return false
	}
	return rec.Tier == types.PlanTrial || rec.PaymentStatus == types.PaymentCompleted
}

// Evaluate bundles the predicates into an Entitlement view.
func Evaluate(rec *types.PlanRecord, now time.Time) types.Entitlement {
	if rec == nil {
		return types.Entitlement{}
	}
	return types.Entitlement{
		Tier:                rec.Tier,
		Active:              IsActive(rec, now),
		TrialExpired:        IsTrialExpired(rec, now),
		SubscriptionExpired: IsSubscriptionExpired(rec, now),
		DaysRemaining:       DaysRemaining(rec, now),
		AgentLimit:          rec.AgentLimit,
		LimitSource:         rec.LimitSource,
	}
}

// NewTrialRecord builds the first-time record for a user with no plan.
func NewTrialRecord(c PlanCatalog, userID string, now time.Time) (*types.PlanRecord, error) {
	e, err := c.Get(types.PlanTrial)
	if err != nil {
		return nil, err
	}
	ends := now.Add(e.TrialLength())
	return &types.PlanRecord{
		UserID:        userID,
		Tier:          types.PlanTrial,
		TrialEndsAt:   &ends,
		PaymentStatus: types.PaymentPending,
		AgentLimit:    e.AgentLimit,
		LimitSource:   types.LimitSourceCatalog,
		UpdatedAt:     now,
	}, nil
}

// ApplyPaidTier moves rec onto a paid tier after a completed payment.
// The tier never decreases. An admin-set agent limit is kept.
func ApplyPaidTier(c PlanCatalog, rec *types.PlanRecord, tier types.PlanTier, now time.Time) (*types.PlanRecord, error) {
	if tier == types.PlanTrial || !tier.Valid() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPlanTier, "payment requires a paid tier", nil)
	}
	out := rec.Clone()
	resolved := types.MaxTier(out.Tier, tier)
	e, err := c.Get(resolved)
	if err != nil {
		return nil, err
	}
	ends := now.Add(SubscriptionPeriod)
	paid := now
	out.Tier = resolved
	out.TrialEndsAt = nil
	out.PaymentStatus = types.PaymentCompleted
	out.PaymentDate = &paid
	out.SubscriptionEndsAt = &ends
	if !out.HasLimitOverride() {
		out.AgentLimit = e.AgentLimit
		out.LimitSource = types.LimitSourceCatalog
	}
	out.UpdatedAt = now
	return out, nil
}
