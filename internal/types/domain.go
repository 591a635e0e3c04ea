package types

import "time"

// PlanRecord is the persisted entitlement state for one user account.
// Exactly one record exists per user; writes are upserts keyed by UserID.
type PlanRecord struct {
	UserID             string        `json:"user_id"`
	Tier               PlanTier      `json:"tier"`
	TrialEndsAt        *time.Time    `json:"trial_ends_at,omitempty"`
	PaymentDate        *time.Time    `json:"payment_date,omitempty"`
	SubscriptionEndsAt *time.Time    `json:"subscription_ends_at,omitempty"`
	PaymentStatus      PaymentStatus `json:"payment_status"`
	AgentLimit         int           `json:"agent_limit"`
	LimitSource        LimitSource   `json:"limit_source"`
	// LimitSetAt is when an administrator last set or cleared the agent
	// limit. Nil when no administrator has touched it.
	LimitSetAt *time.Time `json:"limit_set_at,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// HasLimitOverride reports whether an administrator set the agent limit.
func (p *PlanRecord) HasLimitOverride() bool {
	return p.LimitSource == LimitSourceAdmin
}

// Clone returns a deep copy so callers can mutate the result freely.
func (p *PlanRecord) Clone() *PlanRecord {
	if p == nil {
		return nil
	}
	c := *p
	c.TrialEndsAt = cloneTime(p.TrialEndsAt)
	c.PaymentDate = cloneTime(p.PaymentDate)
	c.SubscriptionEndsAt = cloneTime(p.SubscriptionEndsAt)
	c.LimitSetAt = cloneTime(p.LimitSetAt)
	return &c
}

// SameEntitlement reports whether two records grant the same entitlement,
// ignoring UpdatedAt.
func (p *PlanRecord) SameEntitlement(o *PlanRecord) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.UserID == o.UserID &&
		p.Tier == o.Tier &&
		p.PaymentStatus == o.PaymentStatus &&
		p.AgentLimit == o.AgentLimit &&
		p.LimitSource == o.LimitSource &&
		timeEqual(p.TrialEndsAt, o.TrialEndsAt) &&
		timeEqual(p.PaymentDate, o.PaymentDate) &&
		timeEqual(p.SubscriptionEndsAt, o.SubscriptionEndsAt) &&
		timeEqual(p.LimitSetAt, o.LimitSetAt)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func timeEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// Entitlement is the derived view of a PlanRecord at a point in time.
type Entitlement struct {
	Tier                PlanTier    `json:"tier"`
	Active              bool        `json:"active"`
	TrialExpired        bool        `json:"trial_expired"`
	SubscriptionExpired bool        `json:"subscription_expired"`
	DaysRemaining       int         `json:"days_remaining"`
	AgentLimit          int         `json:"agent_limit"`
	LimitSource         LimitSource `json:"limit_source"`
}

// AgentRecord is one AI agent owned by a user.
type AgentRecord struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	IsConnected bool      `json:"is_connected"`
	CreatedAt   time.Time `json:"created_at"`
}

// User is an account in the user directory.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	PasswordHash string         `json:"-"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Admin is an administrator account linked to a directory user.
type Admin struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      AdminRole `json:"role"`
	GroupID   string    `json:"group_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is a persisted login session. Only the hash of the bearer token is stored.
type Session struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CheckoutURLs guide the user back to the dashboard after checkout.
type CheckoutURLs struct {
	Success string
	Cancel  string
}
