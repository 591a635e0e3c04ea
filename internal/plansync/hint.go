package plansync

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"agentconsole/internal/types"
)

// Query parameters the checkout provider appends on redirect.
const (
	HintParamConfirmed = "confirmed"
	HintParamTier      = "tier"
	HintParamSessionID = "session_id"
)

// ParseCheckoutHint extracts a payment-return hint from URL query values.
// It returns nil when no usable hint is present: a missing or false
// confirmation flag, or a tier outside the paid tiers. Malformed hints are
// logged and otherwise ignored.
func ParseCheckoutHint(ctx context.Context, q url.Values, logger *slog.Logger) *types.CheckoutHint {
	if logger == nil {
		logger = slog.Default()
	}
	rawConfirmed := q.Get(HintParamConfirmed)
	rawTier := q.Get(HintParamTier)
	if rawConfirmed == "" && rawTier == "" {
		return nil
	}

	confirmed, err := strconv.ParseBool(rawConfirmed)
	if err != nil {
		logger.WarnContext(ctx, "ignoring checkout hint with malformed confirmation flag",
			"confirmed", rawConfirmed,
			"tier", rawTier,
		)
		return nil
	}
	if !confirmed {
		return nil
	}

	tier, ok := types.ParsePlanTier(strings.ToLower(strings.TrimSpace(rawTier)))
	if !ok || tier == types.PlanTrial {
		logger.WarnContext(ctx, "ignoring checkout hint with invalid tier", "tier", rawTier)
		return nil
	}
	return &types.CheckoutHint{
		Confirmed: true,
		Tier:      tier,
		SessionID: strings.TrimSpace(q.Get(HintParamSessionID)),
	}
}
