package types

import "time"

// SyncRequestMessage is the SQS payload consumed by the sync worker.
// Producers are the webhook handler, the gateway's request-resync function,
// and the sync service itself when a remote write is left pending.
type SyncRequestMessage struct {
	UserID  string      `json:"user_id"`
	Trigger SyncTrigger `json:"trigger"`

	// Hint carries a payment confirmation that still needs to be applied.
	Hint *CheckoutHint `json:"hint,omitempty"`

	RetryCount int       `json:"retry_count"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// CheckoutHint is a payment confirmation for a tier. It comes from the
// checkout return URL (SessionID set, verified against Stripe before use),
// from a checkout webhook, or from a paid renewal invoice.
type CheckoutHint struct {
	Confirmed bool     `json:"confirmed"`
	Tier      PlanTier `json:"tier"`
	SessionID string   `json:"session_id,omitempty"`
	// Renewal marks a recurring payment. It always restarts the paid period,
	// even when the plan already shows the tier as paid.
	Renewal bool `json:"renewal,omitempty"`
}

// PlanNotification is a user-facing message produced by a sync.
type PlanNotification struct {
	UserID     string           `json:"user_id"`
	Kind       NotificationKind `json:"kind"`
	Message    string           `json:"message"`
	Tier       PlanTier         `json:"tier,omitempty"`
	PrevTier   PlanTier         `json:"previous_tier,omitempty"`
	Trigger    SyncTrigger      `json:"trigger"`
	OccurredAt time.Time        `json:"occurred_at"`
}
