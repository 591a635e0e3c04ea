package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agentconsole/internal/core"
	"agentconsole/internal/gateway"
	"agentconsole/internal/types"
)

// FunctionInvoker runs named privileged functions.
type FunctionInvoker interface {
	Invoke(ctx context.Context, actor types.Actor, name string, payload json.RawMessage) (json.RawMessage, error)
}

// FunctionHandler exposes the function gateway over HTTP.
type FunctionHandler struct {
	invoker FunctionInvoker
	logger  *slog.Logger
}

// NewFunctionHandler creates a FunctionHandler.
func NewFunctionHandler(invoker FunctionInvoker, l *slog.Logger) *FunctionHandler {
	if l == nil {
		l = slog.Default()
	}
	return &FunctionHandler{invoker: invoker, logger: l}
}

// RegisterRoutes mounts POST /functions/{name}.
func (h *FunctionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/functions/{name}", h.Invoke)
}

// Invoke handles POST /functions/{name}. The body is passed to the function
// untouched; an empty body is sent as JSON null.
func (h *FunctionHandler) Invoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, gateway.MaxPayloadBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidPayload, "function payload too large", err))
			return
		}
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON, "failed to read request body", err))
		return
	}
	if len(body) == 0 {
		body = []byte("null")
	}
	if !json.Valid(body) {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON, "function payload is not valid JSON", nil))
		return
	}

	name := chi.URLParam(r, "name")
	out, err := h.invoker.Invoke(r.Context(), actor, name, body)
	if err != nil {
		h.logger.InfoContext(r.Context(), "function invocation failed",
			"function", name,
			"actor_id", actor.ID,
			"error_code", types.ErrorCodeOf(err),
		)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: out})
}
