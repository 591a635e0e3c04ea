package types

// PlanTier identifies the subscription plan of a user account.
// The stored and wire encoding is the lowercase name; ordering is only
// observable through Rank, AtLeast and MaxTier.
type PlanTier string

const (
	PlanTrial    PlanTier = "trial"
	PlanBasic    PlanTier = "basic"
	PlanStandard PlanTier = "standard"
	PlanPremium  PlanTier = "premium"
)

// AllPlanTiers lists every tier in ascending order.
var AllPlanTiers = []PlanTier{PlanTrial, PlanBasic, PlanStandard, PlanPremium}

var tierRank = map[PlanTier]int{
	PlanTrial:    0,
	PlanBasic:    1,
	PlanStandard: 2,
	PlanPremium:  3,
}

// Valid reports whether t is one of the known tiers.
func (t PlanTier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Rank returns the position of t in the upgrade order, or -1 for unknown tiers.
func (t PlanTier) Rank() int {
	r, ok := tierRank[t]
	if !ok {
		return -1
	}
	return r
}

// AtLeast reports whether t is the same tier as other or above it.
func (t PlanTier) AtLeast(other PlanTier) bool {
	return t.Rank() >= other.Rank()
}

// MaxTier returns the higher of two tiers. Ties return a.
func MaxTier(a, b PlanTier) PlanTier {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// ParsePlanTier converts a wire value into a PlanTier.
func ParsePlanTier(s string) (PlanTier, bool) {
	t := PlanTier(s)
	return t, t.Valid()
}

// PaymentStatus tracks the state of the last payment for a plan.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// LimitSource records who set a plan's agent limit.
type LimitSource string

const (
	LimitSourceCatalog LimitSource = "catalog-default"
	LimitSourceAdmin   LimitSource = "admin-override"
)

// AdminRole defines administrator privilege levels.
type AdminRole string

const (
	// AdminRoleMaster may manage other administrators.
	AdminRoleMaster AdminRole = "master"
	// AdminRoleGroup is scoped to the users of one group.
	AdminRoleGroup AdminRole = "group"
)

// SyncTrigger identifies what started a plan synchronization.
type SyncTrigger string

const (
	TriggerLoad          SyncTrigger = "load"
	TriggerPaymentReturn SyncTrigger = "payment_return"
	TriggerManual        SyncTrigger = "manual"
	TriggerWebhook       SyncTrigger = "webhook"
	TriggerRetry         SyncTrigger = "retry"
)

// SyncOutcome is the terminal state of one synchronization.
type SyncOutcome string

const (
	SyncUpdated   SyncOutcome = "updated"
	SyncUnchanged SyncOutcome = "unchanged"
	SyncFailed    SyncOutcome = "failed"
	// SyncSkipped is returned when another sync for the same user was in flight.
	SyncSkipped SyncOutcome = "skipped"
)

// NotificationKind classifies user-facing plan notifications.
type NotificationKind string

const (
	NotifyPlanUpgraded     NotificationKind = "plan_upgraded"
	NotifyPlanProvisioned  NotificationKind = "plan_provisioned"
	NotifyPlanChanged      NotificationKind = "plan_changed"
	NotifySyncFailed       NotificationKind = "sync_failed"
	NotifyPaymentConfirmed NotificationKind = "payment_confirmed"
)
