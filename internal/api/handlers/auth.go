// Package handlers contains the HTTP handlers of the console API.
//
// Each handler decodes and validates its request, calls one service method
// and encodes the result. Services are reached through small local
// interfaces so tests can substitute fakes.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"agentconsole/internal/core"
	"agentconsole/internal/types"
)

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
}

// LoginResponse carries the bearer token the dashboard sends on later calls.
type LoginResponse struct {
	Token     string      `json:"token"`
	User      *types.User `json:"user"`
	ExpiresAt time.Time   `json:"expires_at"`
}

// AuthService is the subset of auth.Service used by AuthHandler.
type AuthService interface {
	Login(ctx context.Context, email, password string) (*types.User, *types.Session, string, error)
	Logout(ctx context.Context, token string) error
}

// AuthHandler serves login and logout.
type AuthHandler struct {
	auth      AuthService
	logger    *slog.Logger
	validator *core.Validator
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(auth AuthService, l *slog.Logger, v *core.Validator) *AuthHandler {
	if l == nil {
		l = slog.Default()
	}
	return &AuthHandler{auth: auth, logger: l, validator: v}
}

// RegisterRoutes mounts /auth routes. Login is public; logout needs a session.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
	r.Post("/auth/logout", h.Logout)
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	user, session, token, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: LoginResponse{
		Token:     token,
		User:      user,
		ExpiresAt: session.ExpiresAt,
	}})
}

// Logout handles POST /auth/logout. It answers 204 even when the session was
// already gone.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := core.BearerToken(r)
	if token == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return
	}
	if err := h.auth.Logout(r.Context(), token); err != nil {
		core.Error(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireActor returns the request actor or writes a 401.
func requireActor(w http.ResponseWriter, r *http.Request) (types.Actor, bool) {
	actor, ok := types.GetActor(r.Context())
	if !ok || actor.ID == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
		return types.Actor{}, false
	}
	return actor, true
}
