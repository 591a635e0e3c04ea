package core

import (
	"errors"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"agentconsole/internal/types"
)

// Validator wraps go-playground/validator and registers domain rules.
// Field names in errors are the JSON names clients send.
type Validator struct {
	v      *validator.Validate
	logger *slog.Logger
}

// NewValidator creates a Validator with the plan_tier and paid_tier tags.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("plan_tier", func(fl validator.FieldLevel) bool {
		return types.PlanTier(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("paid_tier", func(fl validator.FieldLevel) bool {
		t := types.PlanTier(fl.Field().String())
		return t.Valid() && t != types.PlanTrial
	})
	return &Validator{v: v, logger: logger}
}

// ValidateStruct validates s and returns a validation_invalid_payload
// AppError listing the failing fields, or nil.
func (val *Validator) ValidateStruct(s any) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		val.logger.Error("validator misuse", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	code := types.ErrCodeValidationInvalidPayload
	if len(verrs) == 1 && verrs[0].Tag() == "required" {
		code = types.ErrCodeValidationMissingField
	}
	return types.NewAppErrorWithDetails(code, "request validation failed", err, map[string]any{"fields": fields})
}
