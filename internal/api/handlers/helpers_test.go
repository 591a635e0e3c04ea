package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"agentconsole/internal/core"
	"agentconsole/internal/plansync"
	"agentconsole/internal/types"
)

var testUser = types.Actor{ID: "usr_1", Type: types.ActorTypeUser, Email: "a@example.com"}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() *core.Validator {
	return core.NewValidator(testLogger())
}

// newRouter mounts register on a chi router that injects actor, if any.
func newRouter(actor *types.Actor, register func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	if actor != nil {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(types.WithActor(req.Context(), *actor)))
			})
		})
	}
	register(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// decodeData unwraps the {"data": ...} envelope into dst.
func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NoError(t, json.Unmarshal(env.Data, dst))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Error.Code
}

type fakeSyncer struct {
	SyncFunc func(ctx context.Context, userID string, t plansync.Trigger) plansync.SyncResult
	calls    []plansync.Trigger
}

func (f *fakeSyncer) Sync(ctx context.Context, userID string, t plansync.Trigger) plansync.SyncResult {
	f.calls = append(f.calls, t)
	return f.SyncFunc(ctx, userID, t)
}

type fakePayments struct {
	ApplyFunc      func(ctx context.Context, userID string, tier types.PlanTier) plansync.SyncResult
	RenewFunc      func(ctx context.Context, userID string, tier types.PlanTier) plansync.SyncResult
	MarkFailedFunc func(ctx context.Context, userID string) error
}

func (f *fakePayments) ApplyPaymentConfirmation(ctx context.Context, userID string, tier types.PlanTier) plansync.SyncResult {
	return f.ApplyFunc(ctx, userID, tier)
}

func (f *fakePayments) ApplyRenewal(ctx context.Context, userID string, tier types.PlanTier) plansync.SyncResult {
	return f.RenewFunc(ctx, userID, tier)
}

func (f *fakePayments) MarkPaymentFailed(ctx context.Context, userID string) error {
	return f.MarkFailedFunc(ctx, userID)
}

type fakeEnqueuer struct {
	err  error
	msgs []types.SyncRequestMessage
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, msg types.SyncRequestMessage, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msg)
	return nil
}
