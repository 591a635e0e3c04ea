package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"agentconsole/internal/billing"
	"agentconsole/internal/core"
	"agentconsole/internal/plansync"
	"agentconsole/internal/types"
)

// PlanSyncer is the subset of plansync.Service used by PlanHandler.
type PlanSyncer interface {
	Sync(ctx context.Context, userID string, t plansync.Trigger) plansync.SyncResult
}

// CheckoutVerifier confirms a checkout session with the payment provider.
type CheckoutVerifier interface {
	VerifyCheckoutSession(ctx context.Context, sessionID, userID string, tier types.PlanTier) error
}

// PlanResponse is the dashboard's view of one sync. A failed sync still
// answers 200; the dashboard shows the notification and the last known plan.
type PlanResponse struct {
	Outcome      types.SyncOutcome       `json:"outcome"`
	Plan         *types.PlanRecord       `json:"plan"`
	Entitlement  *types.Entitlement      `json:"entitlement,omitempty"`
	SyncPending  bool                    `json:"sync_pending"`
	Notification *types.PlanNotification `json:"notification,omitempty"`
}

// PlanHandler exposes the caller's plan and the public catalog.
type PlanHandler struct {
	syncer   PlanSyncer
	catalog  billing.PlanCatalog
	verifier CheckoutVerifier
	logger   *slog.Logger
}

// NewPlanHandler creates a PlanHandler. Without a verifier, checkout-return
// hints are never trusted.
func NewPlanHandler(syncer PlanSyncer, catalog billing.PlanCatalog, verifier CheckoutVerifier, l *slog.Logger) *PlanHandler {
	if l == nil {
		l = slog.Default()
	}
	return &PlanHandler{syncer: syncer, catalog: catalog, verifier: verifier, logger: l}
}

// RegisterRoutes mounts the plan routes.
func (h *PlanHandler) RegisterRoutes(r chi.Router) {
	r.Get("/plans", h.Catalog)
	r.Get("/plan", h.Get)
	r.Post("/plan/refresh", h.Refresh)
	r.Get("/plan/checkout-return", h.CheckoutReturn)
}

// Catalog handles GET /plans.
func (h *PlanHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: h.catalog.Tiers()})
}

// Get handles GET /plan, the sync that runs when the dashboard loads.
func (h *PlanHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.sync(w, r, plansync.Trigger{Kind: types.TriggerLoad})
}

// Refresh handles POST /plan/refresh.
func (h *PlanHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.sync(w, r, plansync.Trigger{Kind: types.TriggerManual})
}

// CheckoutReturn handles GET /plan/checkout-return. The dashboard forwards
// the query string Stripe redirected it with. A hint whose checkout session
// Stripe confirms is applied before the webhook arrives; anything else is a
// plain sync and the webhook does the write.
func (h *PlanHandler) CheckoutReturn(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	hint := plansync.ParseCheckoutHint(r.Context(), r.URL.Query(), h.logger)
	if hint != nil {
		if err := h.verifyHint(r.Context(), actor, hint); err != nil {
			h.logger.WarnContext(r.Context(), "ignoring unverified checkout hint",
				"user_id", actor.ID,
				"tier", hint.Tier,
				"session_id", hint.SessionID,
				"error", err,
			)
			hint = nil
		}
	}
	h.syncAs(w, r, actor, plansync.Trigger{Kind: types.TriggerPaymentReturn, Hint: hint})
}

func (h *PlanHandler) verifyHint(ctx context.Context, actor types.Actor, hint *types.CheckoutHint) error {
	if h.verifier == nil {
		return errors.New("no checkout verifier configured")
	}
	return h.verifier.VerifyCheckoutSession(ctx, hint.SessionID, actor.ID, hint.Tier)
}

func (h *PlanHandler) sync(w http.ResponseWriter, r *http.Request, t plansync.Trigger) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	h.syncAs(w, r, actor, t)
}

func (h *PlanHandler) syncAs(w http.ResponseWriter, r *http.Request, actor types.Actor, t plansync.Trigger) {
	res := h.syncer.Sync(r.Context(), actor.ID, t)
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: toPlanResponse(res)})
}

func toPlanResponse(res plansync.SyncResult) PlanResponse {
	out := PlanResponse{
		Outcome:      res.Outcome,
		Plan:         res.Record,
		SyncPending:  res.SyncPending,
		Notification: res.Notification,
	}
	if res.Record != nil {
		ent := res.Entitlement
		out.Entitlement = &ent
	}
	return out
}
