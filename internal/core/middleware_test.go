package core

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentconsole/internal/config"
	"agentconsole/internal/types"
)

func newTestServer(t *testing.T, auth Authenticator, v1 ...func(chi.Router)) *Server {
	t.Helper()
	cfg := &config.Config{
		Environment: "local",
		Server:      config.ServerConfig{RequestTimeout: 5 * time.Second},
		Security:    config.SecurityConfig{CorsAllowedOrigins: []string{"https://console.example.com"}},
		Build:       config.BuildInfo{Version: "test"},
	}
	srv, err := NewServer(cfg, testLogger())
	require.NoError(t, err)
	srv.Authenticator = auth
	srv.V1RouteRegistrars = v1
	srv.MountRoutes()
	return srv
}

func whoami(r chi.Router) {
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		actor, _ := types.GetActor(r.Context())
		JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{"id": actor.ID}})
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(nil, testLogger())
	assert.Error(t, err)
	_, err = NewServer(&config.Config{}, nil)
	assert.Error(t, err)
}

func TestAuthMiddleware(t *testing.T) {
	auth := &MockAuthenticator{
		ResolveTokenFunc: func(_ context.Context, token string) (types.Actor, error) {
			switch token {
			case "sess_good":
				return types.Actor{ID: "usr_1", Type: types.ActorTypeUser}, nil
			case "sess_old":
				return types.Actor{}, types.NewAppError(types.ErrCodeAuthSessionExpired, "expired", nil)
			case "sess_db":
				return types.Actor{}, errors.New("connection refused")
			default:
				return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid", nil)
			}
		},
	}
	srv := newTestServer(t, auth, whoami)

	tests := []struct {
		name     string
		header   string
		wantCode int
		wantErr  types.ErrorCode
	}{
		{"missing header", "", http.StatusUnauthorized, types.ErrCodeAuthTokenMissing},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, types.ErrCodeAuthTokenMissing},
		{"unknown token", "Bearer sess_nope", http.StatusUnauthorized, types.ErrCodeAuthTokenInvalid},
		{"expired session", "Bearer sess_old", http.StatusUnauthorized, types.ErrCodeAuthSessionExpired},
		{"store failure is masked", "Bearer sess_db", http.StatusUnauthorized, types.ErrCodeAuthTokenInvalid},
		{"valid, scheme case-insensitive", "bearer sess_good", http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantErr != "" {
				detail := decodeError(t, rec)
				assert.Equal(t, string(tt.wantErr), detail.Code)
				assert.NotEmpty(t, detail.RequestID)
				assert.NotContains(t, rec.Body.String(), "connection refused")
			} else {
				assert.JSONEq(t, `{"data":{"id":"usr_1"}}`, rec.Body.String())
			}
		})
	}
}

func TestAuthMiddleware_PublicPaths(t *testing.T) {
	auth := &MockAuthenticator{Err: types.NewAppError(types.ErrCodeAuthTokenInvalid, "no", nil)}
	hook := func(r chi.Router) {
		r.Post("/webhooks/stripe", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	}
	srv, err := NewServer(&config.Config{}, testLogger())
	require.NoError(t, err)
	srv.Authenticator = auth
	srv.RootRouteRegistrars = []func(chi.Router){hook}
	srv.MountRoutes()

	for _, path := range []string{"/health", "/webhooks/stripe"} {
		method := http.MethodGet
		if path == "/webhooks/stripe" {
			method = http.MethodPost
		}
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	assert.Empty(t, auth.Calls, "public paths never resolve tokens")
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(types.WithActor(req.Context(), types.Actor{ID: "usr_1"}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(types.WithActor(req.Context(), types.Actor{ID: "adm", AdminRole: types.AdminRoleGroup}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequestID_PropagatesOrGenerates(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Len(t, rec.Header().Get("X-Request-Id"), 36)
}

func TestRecoverer(t *testing.T) {
	srv := newTestServer(t, nil, func(r chi.Router) {
		r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("kaboom") })
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), decodeError(t, rec).Code)
	assert.NotContains(t, rec.Body.String(), "kaboom")
}

func TestSecurityHeadersAndCORS(t *testing.T) {
	srv := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/v1/plan", nil)
	req.Header.Set("Origin", "https://console.example.com")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://console.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	req = httptest.NewRequest(http.MethodOptions, "/v1/plan", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestShutdown_RunsHooksInReverse(t *testing.T) {
	srv := newTestServer(t, nil)
	var order []string
	srv.OnShutdown(func(context.Context) error { order = append(order, "first"); return nil })
	srv.OnShutdown(func(context.Context) error { order = append(order, "second"); return errors.New("flush failed") })

	err := srv.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestExtractBearerToken(t *testing.T) {
	assert.Equal(t, "tok", extractBearerToken("Bearer tok"))
	assert.Equal(t, "tok", extractBearerToken("BEARER  tok "))
	assert.Equal(t, "", extractBearerToken("Bear"))
	assert.Equal(t, "", extractBearerToken("Token tok"))
}
