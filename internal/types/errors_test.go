package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeLimitAgents,
		Message: "agent limit reached",
	}

	expected := "limit_agents_exceeded: agent limit reached"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("database connection failed")
	appErr := NewAppError(ErrCodeInternalDB, "failed to load plan", underlying)

	if !errors.Is(appErr, underlying) {
		t.Error("errors.Is should find the underlying error through Unwrap")
	}

	wrapped := fmt.Errorf("handler failed: %w", appErr)
	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find AppError in the chain")
	}
	if target.Code != ErrCodeInternalDB {
		t.Errorf("extracted Code = %q, want %q", target.Code, ErrCodeInternalDB)
	}
}

func TestAppErrorWithDetails(t *testing.T) {
	original := NewAppErrorWithDetails(
		ErrCodeValidationMissingField,
		"field is required",
		nil,
		map[string]any{"field": "name"},
	)

	enhanced := original.WithDetails(map[string]any{"limit": 3})

	if _, ok := original.Details["limit"]; ok {
		t.Error("WithDetails should not mutate the original error")
	}
	if enhanced.Details["field"] != "name" {
		t.Errorf("enhanced should retain original detail: field = %v", enhanced.Details["field"])
	}
	if enhanced.Details["limit"] != 3 {
		t.Errorf("enhanced should have new detail: limit = %v", enhanced.Details["limit"])
	}
}

func TestErrorCodeHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidPlanTier, http.StatusBadRequest},
		{ErrCodeAuthTokenInvalid, http.StatusUnauthorized},
		{ErrCodePermissionRole, http.StatusForbidden},
		{ErrCodeLimitAgents, http.StatusForbidden},
		{ErrCodeNotFoundPlan, http.StatusNotFound},
		{ErrCodeConflictEmail, http.StatusConflict},
		{ErrCodeUpstreamRateLimited, http.StatusTooManyRequests},
		{ErrCodeUpstreamStripe, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrorCode("something_else"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := tt.code.HTTPStatus(); got != tt.want {
				t.Errorf("HTTPStatus() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(NewAppError(ErrCodeNotFoundPlan, "plan not found", nil)) {
		t.Error("not_found_plan should be reported as not found")
	}
	if !IsNotFound(fmt.Errorf("wrapped: %w", NewAppError(ErrCodeNotFoundAgent, "x", nil))) {
		t.Error("wrapped not_found_agent should be reported as not found")
	}
	if IsNotFound(NewAppError(ErrCodeInternalDB, "db down", nil)) {
		t.Error("internal errors are not not-found")
	}
	if IsNotFound(errors.New("plain")) {
		t.Error("plain errors are not not-found")
	}
	if ErrorCodeOf(errors.New("plain")) != "" {
		t.Error("ErrorCodeOf should be empty for plain errors")
	}
}
