// Package gateway runs named privileged functions on behalf of an actor.
//
// Each function authorizes the caller before it touches any state, so a
// rejected invocation has no effect.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"agentconsole/internal/core"
	"agentconsole/internal/types"
)

// MaxPayloadBytes bounds a function payload.
const MaxPayloadBytes = 64 * 1024

// Function is one invocable operation.
type Function struct {
	Name string
	// Authorize must not have side effects.
	Authorize func(ctx context.Context, actor types.Actor, payload json.RawMessage) error
	Run       func(ctx context.Context, actor types.Actor, payload json.RawMessage) (any, error)
}

// Gateway dispatches invocations to registered functions.
type Gateway struct {
	fns    map[string]Function
	logger *slog.Logger
}

// New creates an empty Gateway.
func New(logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{fns: make(map[string]Function), logger: logger}
}

// Register adds fn, replacing any function with the same name.
func (g *Gateway) Register(fn Function) {
	g.fns[fn.Name] = fn
}

// Names lists registered functions in sorted order.
func (g *Gateway) Names() []string {
	out := make([]string, 0, len(g.fns))
	for name := range g.fns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Invoke authorizes and runs the named function and returns its JSON result.
func (g *Gateway) Invoke(ctx context.Context, actor types.Actor, name string, payload json.RawMessage) (json.RawMessage, error) {
	fn, ok := g.fns[name]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundFunction, fmt.Sprintf("function %q does not exist", name), nil)
	}
	if len(payload) > MaxPayloadBytes {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPayload, "payload too large", nil)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage(`{}`)
	}

	start := time.Now()
	if err := fn.Authorize(ctx, actor, payload); err != nil {
		g.logger.WarnContext(ctx, "function invocation rejected",
			"function", name,
			"actor_id", actor.ID,
			"error", err,
		)
		return nil, err
	}

	result, err := fn.Run(ctx, actor, payload)
	if err != nil {
		g.logger.ErrorContext(ctx, "function invocation failed",
			"function", name,
			"actor_id", actor.ID,
			"error", err,
		)
		return nil, err
	}

	out, err := json.Marshal(result)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode function result", err)
	}
	g.logger.InfoContext(ctx, "function invoked",
		"function", name,
		"actor_id", actor.ID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

var payloadValidator = core.NewValidator(nil)

// Typed adapts strongly typed authorize/run funcs into a Function. The
// payload is decoded strictly, then authorized, then validated.
func Typed[P any](
	name string,
	authorize func(ctx context.Context, actor types.Actor, p *P) error,
	run func(ctx context.Context, actor types.Actor, p *P) (any, error),
) Function {
	return Function{
		Name: name,
		Authorize: func(ctx context.Context, actor types.Actor, raw json.RawMessage) error {
			p, err := decodePayload[P](raw)
			if err != nil {
				return err
			}
			return authorize(ctx, actor, p)
		},
		Run: func(ctx context.Context, actor types.Actor, raw json.RawMessage) (any, error) {
			p, err := decodePayload[P](raw)
			if err != nil {
				return nil, err
			}
			if err := payloadValidator.ValidateStruct(p); err != nil {
				return nil, err
			}
			return run(ctx, actor, p)
		},
	}
}

func decodePayload[P any](raw json.RawMessage) (*P, error) {
	var p P
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON, "payload is not valid JSON for this function", err)
	}
	return &p, nil
}

func forbidden(msg string) error {
	return types.NewAppError(types.ErrCodePermissionRole, msg, nil)
}
