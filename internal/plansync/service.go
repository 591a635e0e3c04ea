package plansync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"agentconsole/internal/billing"
	"agentconsole/internal/types"
)

// Notifier delivers user-facing plan notifications.
type Notifier interface {
	Notify(ctx context.Context, n types.PlanNotification) error
}

// SyncMetrics records sync outcomes.
type SyncMetrics interface {
	RecordOutcome(ctx context.Context, trigger types.SyncTrigger, outcome types.SyncOutcome, elapsed time.Duration)
}

// RetryQueue schedules a later sync for a user.
type RetryQueue interface {
	Enqueue(ctx context.Context, msg types.SyncRequestMessage, delay time.Duration) error
}

// Trigger describes why a sync is running.
type Trigger struct {
	Kind types.SyncTrigger
	// Hint is a payment confirmation to write through before reconciling.
	Hint       *types.CheckoutHint
	RetryCount int
}

// SyncResult is the terminal state of one sync.
type SyncResult struct {
	Outcome     types.SyncOutcome
	Record      *types.PlanRecord
	Entitlement types.Entitlement
	// SyncPending is set when the remote store still needs a write.
	SyncPending bool
	// Deferred is set when a skipped sync was handed to the retry queue.
	Deferred     bool
	Notification *types.PlanNotification
}

// ServiceConfig tunes retries and notifications.
type ServiceConfig struct {
	RetryDelay    time.Duration
	MaxRetries    int
	NotifyEnabled bool
}

// Service runs plan synchronization for triggers coming from the dashboard,
// the payment webhook and the retry queue.
type Service struct {
	store    *Store
	notifier Notifier
	metrics  SyncMetrics
	retries  RetryQueue
	cfg      ServiceConfig
	logger   *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewService creates a Service. notifier, metrics and retries may be nil.
func NewService(store *Store, notifier Notifier, metrics SyncMetrics, retries RetryQueue, cfg ServiceConfig, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		retries:  retries,
		cfg:      cfg,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Store exposes the underlying two-channel store.
func (s *Service) Store() *Store { return s.store }

func (s *Service) acquire(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[userID]; busy {
		return false
	}
	s.inflight[userID] = struct{}{}
	return true
}

func (s *Service) release(userID string) {
	s.mu.Lock()
	delete(s.inflight, userID)
	s.mu.Unlock()
}

// Sync reconciles userID's plan. A sync for a user who already has one in
// flight is dropped with outcome skipped; if it carried a payment hint the
// hint is queued for retry instead of being lost.
func (s *Service) Sync(ctx context.Context, userID string, t Trigger) SyncResult {
	start := s.store.Now()

	if !s.acquire(userID) {
		res := SyncResult{Outcome: types.SyncSkipped}
		s.logger.DebugContext(ctx, "plan sync already in flight", "user_id", userID, "trigger", t.Kind)
		if t.Hint != nil {
			res.Deferred = s.enqueueRetry(ctx, userID, t, t.Hint)
		}
		s.recordOutcome(ctx, t.Kind, res.Outcome, start)
		return res
	}
	defer s.release(userID)

	var hint hintResult
	if t.Hint != nil && t.Hint.Confirmed {
		hint = s.applyHint(ctx, userID, *t.Hint)
	}

	rr := s.store.Reconcile(ctx, userID)
	now := s.store.Now()

	// Reconcile pushes the cached upgrade to the remote store, so a hint
	// whose own write failed is only outstanding if the result lacks it.
	var pendingHint *types.CheckoutHint
	if hint.pending && !coversPayment(rr.Record, hint.record) {
		pendingHint = t.Hint
	}
	if hint.pending && rr.SyncPending {
		pendingHint = t.Hint
	}

	res := SyncResult{
		Record:      rr.Record,
		SyncPending: rr.SyncPending || pendingHint != nil,
	}
	if rr.Record != nil {
		res.Entitlement = billing.Evaluate(rr.Record, now)
	}

	prev := rr.Previous
	if hint.applied {
		prev = hint.previous
	}
	switch {
	case rr.Record == nil || res.SyncPending:
		res.Outcome = types.SyncFailed
	case rr.Changed || hint.applied:
		res.Outcome = types.SyncUpdated
	default:
		res.Outcome = types.SyncUnchanged
	}

	s.logger.InfoContext(ctx, "plan sync finished",
		"user_id", userID,
		"trigger", t.Kind,
		"outcome", res.Outcome,
		"sync_pending", res.SyncPending,
	)

	if res.SyncPending {
		s.enqueueRetry(ctx, userID, t, pendingHint)
	}
	if res.Outcome == types.SyncUpdated || res.Outcome == types.SyncFailed {
		n := buildNotification(userID, t.Kind, res.Outcome, rr, prev, hint.applied, now)
		res.Notification = &n
		s.notify(ctx, n)
	}
	s.recordOutcome(ctx, t.Kind, res.Outcome, start)
	return res
}

// ApplyPaymentConfirmation syncs userID with a confirmed payment for tier.
// Used by the payment webhook.
func (s *Service) ApplyPaymentConfirmation(ctx context.Context, userID string, tier types.PlanTier) SyncResult {
	return s.Sync(ctx, userID, Trigger{
		Kind: types.TriggerWebhook,
		Hint: &types.CheckoutHint{Confirmed: true, Tier: tier},
	})
}

// ApplyRenewal syncs userID after a recurring payment for tier. Unlike a
// checkout confirmation it always restarts the paid period from now.
func (s *Service) ApplyRenewal(ctx context.Context, userID string, tier types.PlanTier) SyncResult {
	return s.Sync(ctx, userID, Trigger{
		Kind: types.TriggerWebhook,
		Hint: &types.CheckoutHint{Confirmed: true, Tier: tier, Renewal: true},
	})
}

// MarkPaymentFailed records a failed renewal payment on the user's plan.
// The tier is kept; the plan stops being active until a payment completes.
func (s *Service) MarkPaymentFailed(ctx context.Context, userID string) error {
	current, err := s.store.Current(ctx, userID)
	if err != nil {
		return err
	}
	if current.PaymentStatus == types.PaymentFailed {
		return nil
	}
	rec := current.Clone()
	rec.PaymentStatus = types.PaymentFailed
	rec.UpdatedAt = s.store.Now()
	if pending := s.store.WriteThrough(ctx, rec); pending {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, "payment status write is pending", nil)
	}
	s.logger.InfoContext(ctx, "plan payment marked failed", "user_id", userID, "tier", rec.Tier)
	return nil
}

type hintResult struct {
	applied  bool
	pending  bool
	previous *types.PlanRecord
	record   *types.PlanRecord
}

// applyHint writes a confirmed payment through both channels. A checkout
// hint that the current record already reflects is a no-op; a renewal is
// always written.
func (s *Service) applyHint(ctx context.Context, userID string, h types.CheckoutHint) hintResult {
	now := s.store.Now()
	catalog := s.store.Catalog()

	current, err := s.store.Current(ctx, userID)
	if err != nil {
		current, err = billing.NewTrialRecord(catalog, userID, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "cannot build base record for payment hint", "user_id", userID, "error", err)
			return hintResult{}
		}
	}
	if !h.Renewal && hintReflected(current, h, now) {
		s.logger.DebugContext(ctx, "payment hint already applied", "user_id", userID, "tier", h.Tier)
		return hintResult{}
	}

	rec, err := billing.ApplyPaidTier(catalog, current, h.Tier, now)
	if err != nil {
		s.logger.WarnContext(ctx, "ignoring payment hint", "user_id", userID, "tier", h.Tier, "error", err)
		return hintResult{}
	}
	pending := s.store.WriteThrough(ctx, rec)
	s.logger.InfoContext(ctx, "payment hint applied",
		"user_id", userID,
		"previous_tier", current.Tier,
		"tier", rec.Tier,
		"subscription_ends_at", rec.SubscriptionEndsAt,
		"renewal", h.Renewal,
	)
	return hintResult{applied: true, pending: pending, previous: current, record: rec}
}

func hintReflected(rec *types.PlanRecord, h types.CheckoutHint, now time.Time) bool {
	return rec.Tier != types.PlanTrial &&
		rec.Tier.AtLeast(h.Tier) &&
		rec.PaymentStatus == types.PaymentCompleted &&
		!billing.IsSubscriptionExpired(rec, now)
}

// coversPayment reports whether rec grants at least what the payment write
// produced, including its payment date.
func coversPayment(rec, written *types.PlanRecord) bool {
	if rec == nil || written == nil {
		return false
	}
	if !rec.Tier.AtLeast(written.Tier) || rec.PaymentStatus != types.PaymentCompleted {
		return false
	}
	if written.PaymentDate == nil {
		return true
	}
	return rec.PaymentDate != nil && !rec.PaymentDate.Before(*written.PaymentDate)
}

func (s *Service) enqueueRetry(ctx context.Context, userID string, t Trigger, hint *types.CheckoutHint) bool {
	if s.retries == nil {
		return false
	}
	if t.RetryCount >= s.cfg.MaxRetries {
		s.logger.ErrorContext(ctx, "plan sync retries exhausted",
			"user_id", userID,
			"retry_count", t.RetryCount,
		)
		return false
	}
	msg := types.SyncRequestMessage{
		UserID:     userID,
		Trigger:    types.TriggerRetry,
		Hint:       hint,
		RetryCount: t.RetryCount + 1,
		EnqueuedAt: s.store.Now(),
	}
	delay := s.cfg.RetryDelay * time.Duration(msg.RetryCount)
	if err := s.retries.Enqueue(context.WithoutCancel(ctx), msg, delay); err != nil {
		s.logger.ErrorContext(ctx, "failed to enqueue plan sync retry",
			"user_id", userID,
			"error", err,
		)
		return false
	}
	return true
}

func (s *Service) notify(ctx context.Context, n types.PlanNotification) {
	if !s.cfg.NotifyEnabled || s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(context.WithoutCancel(ctx), n); err != nil {
		s.logger.WarnContext(ctx, "plan notification failed",
			"user_id", n.UserID,
			"kind", n.Kind,
			"error", err,
		)
	}
}

func (s *Service) recordOutcome(ctx context.Context, trigger types.SyncTrigger, outcome types.SyncOutcome, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordOutcome(ctx, trigger, outcome, s.store.Now().Sub(start))
}

func buildNotification(userID string, trigger types.SyncTrigger, outcome types.SyncOutcome, rr ReconcileResult, prev *types.PlanRecord, paid bool, now time.Time) types.PlanNotification {
	n := types.PlanNotification{
		UserID:     userID,
		Trigger:    trigger,
		OccurredAt: now,
	}
	if rr.Record != nil {
		n.Tier = rr.Record.Tier
	}
	if prev != nil {
		n.PrevTier = prev.Tier
	}

	switch {
	case outcome == types.SyncFailed:
		n.Kind = types.NotifySyncFailed
		n.Message = "We could not confirm your plan with the server. Showing the last known state."
	case rr.Provisioned:
		n.Kind = types.NotifyPlanProvisioned
		n.Message = "Your free trial has started."
	case prev != nil && n.Tier.Rank() > n.PrevTier.Rank():
		n.Kind = types.NotifyPlanUpgraded
		n.Message = fmt.Sprintf("Your plan was upgraded to %s.", n.Tier)
	case paid:
		n.Kind = types.NotifyPaymentConfirmed
		n.Message = fmt.Sprintf("Payment confirmed for the %s plan.", n.Tier)
	default:
		n.Kind = types.NotifyPlanChanged
		n.Message = "Your plan details were updated."
	}
	return n
}
