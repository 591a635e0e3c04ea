package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"agentconsole/internal/core"
	"agentconsole/internal/types"
)

// Dashboard paths Stripe sends the user back to.
const (
	checkoutReturnPath = "/billing/return"
	checkoutCancelPath = "/billing"
)

// CheckoutRequest is the body of POST /billing/checkout-session.
type CheckoutRequest struct {
	Tier types.PlanTier `json:"tier" validate:"required,paid_tier"`
}

// CheckoutResponse carries the hosted checkout page to redirect to.
type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
}

// CheckoutCreator starts hosted checkout sessions.
type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, userID, email string, tier types.PlanTier, urls types.CheckoutURLs) (string, string, error)
}

// BillingHandler starts plan purchases.
type BillingHandler struct {
	checkout     CheckoutCreator
	dashboardURL string
	logger       *slog.Logger
	validator    *core.Validator
}

// NewBillingHandler creates a BillingHandler. dashboardURL is the absolute
// base of the dashboard the checkout returns to.
func NewBillingHandler(checkout CheckoutCreator, dashboardURL string, l *slog.Logger, v *core.Validator) *BillingHandler {
	if l == nil {
		l = slog.Default()
	}
	return &BillingHandler{
		checkout:     checkout,
		dashboardURL: strings.TrimSuffix(dashboardURL, "/"),
		logger:       l,
		validator:    v,
	}
}

// RegisterRoutes mounts the billing routes.
func (h *BillingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/checkout-session", h.CreateCheckoutSession)
}

// CreateCheckoutSession handles POST /billing/checkout-session.
func (h *BillingHandler) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CheckoutRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	urls := types.CheckoutURLs{
		Success: h.dashboardURL + checkoutReturnPath,
		Cancel:  h.dashboardURL + checkoutCancelPath,
	}
	checkoutURL, sessionID, err := h.checkout.CreateCheckoutSession(r.Context(), actor.ID, actor.Email, req.Tier, urls)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "checkout session creation failed",
			"user_id", actor.ID,
			"tier", req.Tier,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: CheckoutResponse{
		CheckoutURL: checkoutURL,
		SessionID:   sessionID,
	}})
}
