package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"agentconsole/internal/core"
	"agentconsole/internal/external"
	"agentconsole/internal/plansync"
	"agentconsole/internal/types"
)

// maxWebhookBodySize bounds a Stripe webhook payload.
const maxWebhookBodySize = 64 * 1024

// webhookRetryDelay is the queue delay for a confirmation that could not be
// applied inline.
const webhookRetryDelay = 30 * time.Second

// PaymentApplier is the subset of plansync.Service the webhook drives.
type PaymentApplier interface {
	ApplyPaymentConfirmation(ctx context.Context, userID string, tier types.PlanTier) plansync.SyncResult
	ApplyRenewal(ctx context.Context, userID string, tier types.PlanTier) plansync.SyncResult
	MarkPaymentFailed(ctx context.Context, userID string) error
}

// SyncEnqueuer queues a sync for the worker.
type SyncEnqueuer interface {
	Enqueue(ctx context.Context, msg types.SyncRequestMessage, delay time.Duration) error
}

// errRedeliver marks a processing failure Stripe should deliver again.
var errRedeliver = errors.New("event must be redelivered")

// StripeWebhookHandler applies Stripe payment events to user plans. It sits
// outside auth middleware; the Stripe-Signature header authenticates it.
type StripeWebhookHandler struct {
	verifier external.WebhookVerifier
	payments PaymentApplier
	queue    SyncEnqueuer
	secret   string
	logger   *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler.
func NewStripeWebhookHandler(
	verifier external.WebhookVerifier,
	payments PaymentApplier,
	queue SyncEnqueuer,
	secret string,
	logger *slog.Logger,
) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{
		verifier: verifier,
		payments: payments,
		queue:    queue,
		secret:   secret,
		logger:   logger,
	}
}

// RegisterRoutes mounts POST /webhooks/stripe on the root router.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/stripe", h.Handle)
}

// Handle verifies and applies one Stripe event. Verified events are
// acknowledged with 200 unless applying them failed in a way only a
// redelivery can fix, which is answered 503.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.WarnContext(r.Context(), "failed to read webhook body", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidPayload, "failed to read request body", err))
		return
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		h.logger.WarnContext(r.Context(), "missing Stripe-Signature header")
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "missing Stripe-Signature header", nil))
		return
	}
	if err := h.verifier.Verify(payload, sigHeader, h.secret); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature verification failed", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenInvalid, "webhook signature verification failed", err))
		return
	}

	var event stripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to parse webhook event JSON", "error", err)
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidJSON, "invalid webhook event JSON", err))
		return
	}

	h.logger.InfoContext(r.Context(), "processing stripe webhook event",
		"event_id", event.ID,
		"event_type", event.Type,
	)

	if err := h.routeEvent(r.Context(), &event); err != nil {
		h.logger.ErrorContext(r.Context(), "webhook event processing failed",
			"event_id", event.ID,
			"event_type", event.Type,
			"error", err,
		)
		if errors.Is(err, errRedeliver) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
}

func (h *StripeWebhookHandler) routeEvent(ctx context.Context, event *stripeWebhookEvent) error {
	switch event.Type {
	case external.EventCheckoutCompleted:
		return h.handleCheckoutCompleted(ctx, event)
	case external.EventInvoicePaid:
		return h.handleInvoicePaid(ctx, event)
	case external.EventPaymentFailed:
		return h.handlePaymentFailed(ctx, event)
	default:
		h.logger.DebugContext(ctx, "ignoring unhandled webhook event type", "event_type", event.Type)
		return nil
	}
}

// handleCheckoutCompleted applies the purchased tier. When the sync cannot
// finish inline the confirmation goes to the retry queue with its hint, so
// the upgrade is not lost.
func (h *StripeWebhookHandler) handleCheckoutCompleted(ctx context.Context, event *stripeWebhookEvent) error {
	var session stripeCheckoutSessionObj
	if err := event.decodeObject(&session); err != nil {
		return err
	}
	if session.PaymentStatus == "unpaid" {
		h.logger.InfoContext(ctx, "checkout completed without payment; waiting for a later event",
			"event_id", event.ID,
		)
		return nil
	}

	userID := session.ClientReferenceID
	if userID == "" {
		userID = session.Metadata[external.MetadataUserID]
	}
	if userID == "" {
		return fmt.Errorf("%s: missing user id in event %s", event.Type, event.ID)
	}
	tier, ok := types.ParsePlanTier(session.Metadata[external.MetadataTier])
	if !ok || tier == types.PlanTrial {
		return fmt.Errorf("%s: invalid tier %q in event %s", event.Type, session.Metadata[external.MetadataTier], event.ID)
	}

	res := h.payments.ApplyPaymentConfirmation(ctx, userID, tier)
	h.logger.InfoContext(ctx, "payment confirmation applied",
		"event_id", event.ID,
		"user_id", userID,
		"tier", tier,
		"outcome", res.Outcome,
	)
	return h.queueIfUnfinished(ctx, userID, res, types.CheckoutHint{Confirmed: true, Tier: tier})
}

// handleInvoicePaid restarts the paid period after a subscription invoice is
// paid. Renewals are the only event that moves the payment date forward on a
// plan that is already paid.
func (h *StripeWebhookHandler) handleInvoicePaid(ctx context.Context, event *stripeWebhookEvent) error {
	var invoice stripeInvoiceObj
	if err := event.decodeObject(&invoice); err != nil {
		return err
	}
	userID := invoice.userID()
	if userID == "" {
		return fmt.Errorf("%s: missing user id in event %s", event.Type, event.ID)
	}
	raw := invoice.metadata(external.MetadataTier)
	tier, ok := types.ParsePlanTier(raw)
	if !ok || tier == types.PlanTrial {
		return fmt.Errorf("%s: invalid tier %q in event %s", event.Type, raw, event.ID)
	}

	res := h.payments.ApplyRenewal(ctx, userID, tier)
	h.logger.InfoContext(ctx, "subscription renewal applied",
		"event_id", event.ID,
		"user_id", userID,
		"tier", tier,
		"billing_reason", invoice.BillingReason,
		"outcome", res.Outcome,
	)
	return h.queueIfUnfinished(ctx, userID, res, types.CheckoutHint{Confirmed: true, Tier: tier, Renewal: true})
}

// queueIfUnfinished hands the payment to the retry queue when the sync could
// not finish inline. A pending sync or a deferred hint is already queued by
// the service.
func (h *StripeWebhookHandler) queueIfUnfinished(ctx context.Context, userID string, res plansync.SyncResult, hint types.CheckoutHint) error {
	needsRetry := (res.Outcome == types.SyncFailed && !res.SyncPending) ||
		(res.Outcome == types.SyncSkipped && !res.Deferred)
	if !needsRetry {
		return nil
	}

	msg := types.SyncRequestMessage{
		UserID:  userID,
		Trigger: types.TriggerWebhook,
		Hint:    &hint,
	}
	if err := h.queue.Enqueue(ctx, msg, webhookRetryDelay); err != nil {
		return fmt.Errorf("%w: queueing confirmation for %s: %v", errRedeliver, userID, err)
	}
	return nil
}

func (h *StripeWebhookHandler) handlePaymentFailed(ctx context.Context, event *stripeWebhookEvent) error {
	var invoice stripeInvoiceObj
	if err := event.decodeObject(&invoice); err != nil {
		return err
	}
	userID := invoice.userID()
	if userID == "" {
		return fmt.Errorf("%s: missing user id in event %s", event.Type, event.ID)
	}

	h.logger.WarnContext(ctx, "processing payment failure",
		"event_id", event.ID,
		"user_id", userID,
	)
	if err := h.payments.MarkPaymentFailed(ctx, userID); err != nil {
		if types.IsNotFound(err) {
			return err
		}
		return fmt.Errorf("%w: %v", errRedeliver, err)
	}
	return nil
}

// stripeWebhookEvent holds only the fields routing needs; the object is
// decoded per event type.
type stripeWebhookEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

func (e *stripeWebhookEvent) decodeObject(dst any) error {
	if len(e.Data.Object) == 0 {
		return fmt.Errorf("%s: event %s has no data object", e.Type, e.ID)
	}
	if err := json.Unmarshal(e.Data.Object, dst); err != nil {
		return fmt.Errorf("%s: decoding data object of %s: %w", e.Type, e.ID, err)
	}
	return nil
}

type stripeCheckoutSessionObj struct {
	ClientReferenceID string            `json:"client_reference_id"`
	PaymentStatus     string            `json:"payment_status"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeSubscriptionDetails struct {
	Metadata map[string]string `json:"metadata"`
}

// stripeInvoiceObj covers both invoice layouts: recent API versions nest the
// subscription metadata under parent, older ones keep it at the top level.
type stripeInvoiceObj struct {
	Parent *struct {
		SubscriptionDetails *stripeSubscriptionDetails `json:"subscription_details"`
	} `json:"parent"`
	SubscriptionDetails *stripeSubscriptionDetails `json:"subscription_details"`
	Metadata            map[string]string          `json:"metadata"`
	BillingReason       string                     `json:"billing_reason"`
}

func (inv *stripeInvoiceObj) userID() string {
	return inv.metadata(external.MetadataUserID)
}

// metadata looks key up in the subscription metadata, newest layout first.
func (inv *stripeInvoiceObj) metadata(key string) string {
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		if v := inv.Parent.SubscriptionDetails.Metadata[key]; v != "" {
			return v
		}
	}
	if inv.SubscriptionDetails != nil {
		if v := inv.SubscriptionDetails.Metadata[key]; v != "" {
			return v
		}
	}
	return inv.Metadata[key]
}
