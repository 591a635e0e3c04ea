package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"agentconsole/internal/types"
)

// authPublicPaths are served without a bearer token.
var authPublicPaths = map[string]bool{
	"/health":        true,
	"/v1/auth/login": true,
	"/v1/plans":      true,
}

// authPublicPrefixes cover provider callbacks, which authenticate with their
// own signatures.
var authPublicPrefixes = []string{"/webhooks/"}

func isPublicPath(path string) bool {
	if authPublicPaths[path] {
		return true
	}
	for _, p := range authPublicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// AuthMiddleware resolves the bearer token to an Actor and stores it in the
// request context. Failures answer 401 with auth_token_missing,
// auth_token_invalid or auth_session_expired. Without an Authenticator the
// middleware is a pass-through.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r.Header.Get("Authorization"))
		if token == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenMissing, "Bearer token is required")
			return
		}

		actor, err := s.Authenticator.ResolveToken(r.Context(), token)
		if err != nil {
			s.handleAuthError(w, r, err)
			return
		}
		if actor.ID == "" {
			s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Invalid authentication token")
			return
		}

		if rc, ok := w.(*responseCapture); ok {
			rc.actorID = actor.ID
		}
		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), actor)))
	})
}

// BearerToken returns the bearer token of r's Authorization header.
func BearerToken(r *http.Request) string {
	return extractBearerToken(r.Header.Get("Authorization"))
}

// extractBearerToken returns the token of a "Bearer <token>" header value.
// The scheme is case-insensitive.
func extractBearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func (s *Server) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		switch appErr.Code {
		case types.ErrCodeAuthSessionExpired:
			s.writeAuthError(w, r, appErr.Code, "Session has expired")
			return
		case types.ErrCodeAuthTokenInvalid, types.ErrCodeAuthTokenMissing:
			s.Logger.WarnContext(r.Context(), "authentication failed",
				slog.String("path", r.URL.Path),
				slog.String("error_code", string(appErr.Code)),
			)
			s.writeAuthError(w, r, appErr.Code, "Invalid authentication token")
			return
		}
	}

	// Store failures must not leak; the client just sees an invalid token.
	s.Logger.ErrorContext(r.Context(), "token resolution failed",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	s.writeAuthError(w, r, types.ErrCodeAuthTokenInvalid, "Authentication failed")
}

func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	Error(w, r, types.NewAppError(code, message, nil))
}

// RequireAdmin rejects actors without an administrator role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := types.GetActor(r.Context())
		if !ok {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "Authentication required", nil))
			return
		}
		if !actor.IsAdmin() {
			Error(w, r, types.NewAppError(types.ErrCodePermissionRole, "Administrator role required", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}
