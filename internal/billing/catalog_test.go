package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentconsole/internal/types"
)

func TestStaticCatalog_Defaults(t *testing.T) {
	c := NewStaticCatalog()

	tests := []struct {
		tier      types.PlanTier
		limit     int
		price     int64
		trialDays int
	}{
		{types.PlanTrial, 1, 0, 5},
		{types.PlanBasic, 3, 2900, 0},
		{types.PlanStandard, 10, 7900, 0},
		{types.PlanPremium, 25, 19900, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			e, err := c.Get(tt.tier)
			require.NoError(t, err)
			assert.Equal(t, tt.tier, e.Tier)
			assert.Equal(t, tt.limit, e.AgentLimit)
			assert.Equal(t, tt.price, e.MonthlyPriceCents)
			assert.Equal(t, tt.trialDays, e.TrialDays)
		})
	}
}

func TestStaticCatalog_UnknownTier(t *testing.T) {
	_, err := NewStaticCatalog().Get(types.PlanTier("enterprise"))
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeValidationInvalidPlanTier, types.ErrorCodeOf(err))
}

func TestStaticCatalog_TiersAscending(t *testing.T) {
	entries := NewStaticCatalog().Tiers()
	require.Len(t, entries, 4)
	for i := 1; i < len(entries); i++ {
		assert.Less(t, entries[i-1].Tier.Rank(), entries[i].Tier.Rank())
	}
}

func TestNewCatalog_Overrides(t *testing.T) {
	c := NewCatalog(map[types.PlanTier]CatalogEntry{
		types.PlanBasic:         {Name: "Basic", AgentLimit: 5, MonthlyPriceCents: 3900},
		types.PlanTier("bogus"): {AgentLimit: 100},
	})

	e, err := c.Get(types.PlanBasic)
	require.NoError(t, err)
	assert.Equal(t, 5, e.AgentLimit)
	assert.Equal(t, types.PlanBasic, e.Tier)

	_, err = c.Get(types.PlanTier("bogus"))
	assert.Error(t, err)

	// Defaults are untouched by overrides on another catalog.
	assert.Equal(t, 3, MustLimit(NewStaticCatalog(), types.PlanBasic))
}
