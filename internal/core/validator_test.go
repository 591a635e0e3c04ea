package core

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentconsole/internal/types"
)

// testLogger returns a discard logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testTierStruct struct {
	Tier string `json:"tier" validate:"required,paid_tier"`
}

type testAnyTierStruct struct {
	Tier string `json:"tier" validate:"omitempty,plan_tier"`
}

type testRequiredStruct struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email_address" validate:"required,email"`
}

func TestValidator_PaidTier(t *testing.T) {
	v := NewValidator(testLogger())

	assert.NoError(t, v.ValidateStruct(testTierStruct{Tier: "premium"}))
	assert.Error(t, v.ValidateStruct(testTierStruct{Tier: "trial"}))
	assert.Error(t, v.ValidateStruct(testTierStruct{Tier: "gold"}))
}

func TestValidator_PlanTier(t *testing.T) {
	v := NewValidator(testLogger())

	assert.NoError(t, v.ValidateStruct(testAnyTierStruct{}))
	assert.NoError(t, v.ValidateStruct(testAnyTierStruct{Tier: "trial"}))
	assert.Error(t, v.ValidateStruct(testAnyTierStruct{Tier: "Trial"}))
}

func TestValidator_ErrorDetailsUseJSONNames(t *testing.T) {
	v := NewValidator(testLogger())

	err := v.ValidateStruct(testRequiredStruct{Name: "x", Email: "nope"})

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidPayload, appErr.Code)
	assert.Equal(t, map[string]any{"email_address": "email"}, appErr.Details["fields"])
}

func TestValidator_SingleMissingField(t *testing.T) {
	v := NewValidator(testLogger())

	err := v.ValidateStruct(testRequiredStruct{Email: "a@b.co"})

	assert.Equal(t, types.ErrCodeValidationMissingField, types.ErrorCodeOf(err))
}
