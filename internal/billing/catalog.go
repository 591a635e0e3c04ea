// Package billing holds the plan catalog and the entitlement rules derived from it.
package billing

import (
	"fmt"
	"time"

	"agentconsole/internal/types"
)

// SubscriptionPeriod is the length of one paid billing cycle.
const SubscriptionPeriod = 30 * 24 * time.Hour

// CatalogEntry describes one plan tier.
type CatalogEntry struct {
	Tier              types.PlanTier `json:"tier"`
	Name              string         `json:"name"`
	MonthlyPriceCents int64          `json:"monthly_price_cents"`
	AgentLimit        int            `json:"agent_limit"`
	// TrialDays is only meaningful for the trial tier.
	TrialDays int `json:"trial_days"`
}

// TrialLength returns the trial duration for the entry.
func (e CatalogEntry) TrialLength() time.Duration {
	return time.Duration(e.TrialDays) * 24 * time.Hour
}

// PlanCatalog is the static lookup of plan tiers.
type PlanCatalog interface {
	// Get returns the entry for tier. It fails only for tiers outside the
	// closed enumeration, which is a programming error.
	Get(tier types.PlanTier) (CatalogEntry, error)

	// Tiers returns all entries in ascending tier order.
	Tiers() []CatalogEntry
}

type staticCatalog struct {
	entries map[types.PlanTier]CatalogEntry
}

// catalogDefaults is the plan table:
//
//	| Tier     | Price/month | Agents | Trial |
//	|----------|-------------|--------|-------|
//	| Trial    | $0          | 1      | 5d    |
//	| Basic    | $29         | 3      | -     |
//	| Standard | $79         | 10     | -     |
//	| Premium  | $199        | 25     | -     |
var catalogDefaults = map[types.PlanTier]CatalogEntry{
	types.PlanTrial: {
		Tier:       types.PlanTrial,
		Name:       "Trial",
		AgentLimit: 1,
		TrialDays:  5,
	},
	types.PlanBasic: {
		Tier:              types.PlanBasic,
		Name:              "Basic",
		MonthlyPriceCents: 2900,
		AgentLimit:        3,
	},
	types.PlanStandard: {
		Tier:              types.PlanStandard,
		Name:              "Standard",
		MonthlyPriceCents: 7900,
		AgentLimit:        10,
	},
	types.PlanPremium: {
		Tier:              types.PlanPremium,
		Name:              "Premium",
		MonthlyPriceCents: 19900,
		AgentLimit:        25,
	},
}

// NewStaticCatalog returns the catalog backed by the built-in plan table.
func NewStaticCatalog() PlanCatalog {
	return NewCatalog(nil)
}

// NewCatalog returns the built-in catalog with per-tier overrides applied.
// Overrides for unknown tiers are ignored.
func NewCatalog(overrides map[types.PlanTier]CatalogEntry) PlanCatalog {
	// Copy the defaults so callers cannot mutate the package-level table.
	m := make(map[types.PlanTier]CatalogEntry, len(catalogDefaults))
	for k, v := range catalogDefaults {
		m[k] = v
	}
	for k, v := range overrides {
		if _, ok := m[k]; ok {
			v.Tier = k
			m[k] = v
		}
	}
	return &staticCatalog{entries: m}
}

func (c *staticCatalog) Get(tier types.PlanTier) (CatalogEntry, error) {
	e, ok := c.entries[tier]
	if !ok {
		return CatalogEntry{}, types.NewAppError(
			types.ErrCodeValidationInvalidPlanTier,
			fmt.Sprintf("unknown plan tier %q", tier),
			nil,
		)
	}
	return e, nil
}

func (c *staticCatalog) Tiers() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(types.AllPlanTiers))
	for _, t := range types.AllPlanTiers {
		out = append(out, c.entries[t])
	}
	return out
}

// MustLimit returns the catalog agent limit for tier, or 0 for an unknown tier.
func MustLimit(c PlanCatalog, tier types.PlanTier) int {
	e, err := c.Get(tier)
	if err != nil {
		return 0
	}
	return e.AgentLimit
}
