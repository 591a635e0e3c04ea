package gateway

import (
	"context"
	"log/slog"
	"time"

	"agentconsole/internal/auth"
	"agentconsole/internal/billing"
	"agentconsole/internal/db"
	"agentconsole/internal/types"
)

// Registered function names.
const (
	FnCreateAdmin       = "create-admin"
	FnCreateUser        = "create-user"
	FnUpdateCredentials = "update-credentials"
	FnSetAgentLimit     = "set-agent-limit"
	FnRequestResync     = "request-resync"
)

// MetadataGroupID is the user metadata key holding the user's admin group.
const MetadataGroupID = "group_id"

// AdminCreator inserts administrator rows.
type AdminCreator interface {
	Create(ctx context.Context, a *types.Admin) error
}

// AdminTx runs fn with transaction-scoped user and admin repositories.
type AdminTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, users auth.UserRepo, admins AdminCreator) error) error
}

// PlanWriter is the plan store surface the functions need.
type PlanWriter interface {
	Current(ctx context.Context, userID string) (*types.PlanRecord, error)
	WriteThrough(ctx context.Context, rec *types.PlanRecord) (pending bool)
	Catalog() billing.PlanCatalog
	Now() time.Time
}

// SyncEnqueuer schedules background plan syncs.
type SyncEnqueuer interface {
	Enqueue(ctx context.Context, msg types.SyncRequestMessage, delay time.Duration) error
}

// Deps are the collaborators of the built-in functions.
type Deps struct {
	Directory *auth.Directory
	AdminTx   AdminTx
	Plans     PlanWriter
	Queue     SyncEnqueuer
	Logger    *slog.Logger
}

// RegisterDefaults registers every built-in function on g.
func RegisterDefaults(g *Gateway, d Deps) {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	f := &functions{Deps: d}
	g.Register(Typed(FnCreateAdmin, f.authorizeCreateAdmin, f.createAdmin))
	g.Register(Typed(FnCreateUser, f.authorizeCreateUser, f.createUser))
	g.Register(Typed(FnUpdateCredentials, f.authorizeUpdateCredentials, f.updateCredentials))
	g.Register(Typed(FnSetAgentLimit, f.authorizeSetAgentLimit, f.setAgentLimit))
	g.Register(Typed(FnRequestResync, f.authorizeRequestResync, f.requestResync))
}

type functions struct {
	Deps
}

// inGroup allows masters everywhere and group admins only for users whose
// metadata places them in the admin's group.
func (f *functions) inGroup(ctx context.Context, actor types.Actor, userID string) error {
	if actor.IsMaster() {
		return nil
	}
	if !actor.IsAdmin() {
		return forbidden("administrator role required")
	}
	u, err := f.Directory.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if g, _ := u.Metadata[MetadataGroupID].(string); g == "" || g != actor.GroupID {
		return forbidden("user is outside the administrator's group")
	}
	return nil
}

// --- create-admin ---

type createAdminPayload struct {
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"omitempty,min=8,max=72"`
	Role     types.AdminRole `json:"role" validate:"required,oneof=master group"`
	GroupID  string          `json:"group_id" validate:"required_if=Role group"`
}

type adminResult struct {
	Admin       *types.Admin `json:"admin"`
	UserCreated bool         `json:"user_created"`
}

func (f *functions) authorizeCreateAdmin(_ context.Context, actor types.Actor, _ *createAdminPayload) error {
	if !actor.IsMaster() {
		return forbidden("only master administrators can create administrators")
	}
	return nil
}

func (f *functions) createAdmin(ctx context.Context, actor types.Actor, p *createAdminPayload) (any, error) {
	res := adminResult{}
	err := f.AdminTx.RunInTx(ctx, func(ctx context.Context, users auth.UserRepo, admins AdminCreator) error {
		dir := f.Directory.WithRepo(users)
		u, err := dir.FindByEmail(ctx, p.Email)
		if types.IsNotFound(err) {
			if p.Password == "" {
				return types.NewAppError(types.ErrCodeValidationMissingField, "password is required for a new user", nil)
			}
			meta := map[string]any{}
			if p.GroupID != "" {
				meta[MetadataGroupID] = p.GroupID
			}
			u, err = dir.CreateUser(ctx, p.Email, p.Password, meta)
			res.UserCreated = true
		}
		if err != nil {
			return err
		}

		a := &types.Admin{UserID: u.ID, Email: u.Email, Role: p.Role, GroupID: p.GroupID}
		if err := admins.Create(ctx, a); err != nil {
			return err
		}
		res.Admin = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	f.Logger.InfoContext(ctx, "administrator created",
		"admin_id", res.Admin.ID,
		"role", res.Admin.Role,
		"created_by", actor.ID,
	)
	return res, nil
}

// --- create-user ---

type createUserPayload struct {
	Email    string         `json:"email" validate:"required,email"`
	Password string         `json:"password" validate:"required,min=8,max=72"`
	Tier     types.PlanTier `json:"tier" validate:"omitempty,plan_tier"`
	GroupID  string         `json:"group_id"`
}

type userResult struct {
	User        *types.User       `json:"user"`
	Plan        *types.PlanRecord `json:"plan"`
	SyncPending bool              `json:"sync_pending"`
}

func (f *functions) authorizeCreateUser(_ context.Context, actor types.Actor, p *createUserPayload) error {
	if !actor.IsAdmin() {
		return forbidden("administrator role required")
	}
	if !actor.IsMaster() && p.GroupID != "" && p.GroupID != actor.GroupID {
		return forbidden("group administrators can only create users in their group")
	}
	return nil
}

func (f *functions) createUser(ctx context.Context, actor types.Actor, p *createUserPayload) (any, error) {
	group := p.GroupID
	if group == "" && !actor.IsMaster() {
		group = actor.GroupID
	}
	meta := map[string]any{}
	if group != "" {
		meta[MetadataGroupID] = group
	}

	u, err := f.Directory.CreateUser(ctx, p.Email, p.Password, meta)
	if err != nil {
		return nil, err
	}

	now := f.Plans.Now()
	rec, err := billing.NewTrialRecord(f.Plans.Catalog(), u.ID, now)
	if err != nil {
		return nil, err
	}
	if p.Tier != "" && p.Tier != types.PlanTrial {
		if rec, err = billing.ApplyPaidTier(f.Plans.Catalog(), rec, p.Tier, now); err != nil {
			return nil, err
		}
	}
	pending := f.Plans.WriteThrough(ctx, rec)

	f.Logger.InfoContext(ctx, "user created by administrator",
		"user_id", u.ID,
		"tier", rec.Tier,
		"created_by", actor.ID,
	)
	return userResult{User: u, Plan: rec, SyncPending: pending}, nil
}

// --- update-credentials ---

type updateCredentialsPayload struct {
	UserID   string  `json:"user_id" validate:"required"`
	Email    *string `json:"email" validate:"omitempty,email"`
	Password *string `json:"password" validate:"omitempty,min=8,max=72"`
}

func (f *functions) authorizeUpdateCredentials(_ context.Context, actor types.Actor, p *updateCredentialsPayload) error {
	if actor.IsMaster() || (actor.ID != "" && actor.ID == p.UserID) {
		return nil
	}
	return forbidden("only the user or a master administrator can change credentials")
}

func (f *functions) updateCredentials(ctx context.Context, _ types.Actor, p *updateCredentialsPayload) (any, error) {
	if p.Email == nil && p.Password == nil {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "email or password is required", nil)
	}
	if err := f.Directory.UpdateUser(ctx, p.UserID, auth.UserUpdate{Email: p.Email, Password: p.Password}); err != nil {
		return nil, err
	}
	return map[string]any{"user_id": p.UserID, "updated": true}, nil
}

// --- set-agent-limit ---

type setAgentLimitPayload struct {
	UserID string `json:"user_id" validate:"required"`
	Limit  *int   `json:"limit" validate:"omitempty,min=0,max=10000"`
	Clear  bool   `json:"clear"`
}

type planResult struct {
	Plan        *types.PlanRecord `json:"plan"`
	SyncPending bool              `json:"sync_pending"`
}

func (f *functions) authorizeSetAgentLimit(ctx context.Context, actor types.Actor, p *setAgentLimitPayload) error {
	return f.inGroup(ctx, actor, p.UserID)
}

// setAgentLimit writes the override straight through both channels. It is
// the one write that may lower an agent limit.
func (f *functions) setAgentLimit(ctx context.Context, actor types.Actor, p *setAgentLimitPayload) (any, error) {
	if p.Limit == nil && !p.Clear {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "limit is required unless clearing the override", nil)
	}
	now := f.Plans.Now()
	rec, err := f.Plans.Current(ctx, p.UserID)
	if types.IsNotFound(err) {
		rec, err = billing.NewTrialRecord(f.Plans.Catalog(), p.UserID, now)
	}
	if err != nil {
		return nil, err
	}

	if p.Clear {
		rec.AgentLimit = billing.MustLimit(f.Plans.Catalog(), rec.Tier)
		rec.LimitSource = types.LimitSourceCatalog
	} else {
		rec.AgentLimit = *p.Limit
		rec.LimitSource = types.LimitSourceAdmin
	}
	rec.LimitSetAt = &now
	rec.UpdatedAt = now
	pending := f.Plans.WriteThrough(ctx, rec)

	f.Logger.InfoContext(ctx, "agent limit set",
		"user_id", p.UserID,
		"agent_limit", rec.AgentLimit,
		"limit_source", rec.LimitSource,
		"set_by", actor.ID,
	)
	return planResult{Plan: rec, SyncPending: pending}, nil
}

// --- request-resync ---

type requestResyncPayload struct {
	UserID string `json:"user_id" validate:"required"`
}

func (f *functions) authorizeRequestResync(ctx context.Context, actor types.Actor, p *requestResyncPayload) error {
	return f.inGroup(ctx, actor, p.UserID)
}

func (f *functions) requestResync(ctx context.Context, _ types.Actor, p *requestResyncPayload) (any, error) {
	msg := types.SyncRequestMessage{
		UserID:     p.UserID,
		Trigger:    types.TriggerManual,
		EnqueuedAt: f.Plans.Now(),
	}
	if err := f.Queue.Enqueue(ctx, msg, 0); err != nil {
		return nil, err
	}
	return map[string]any{"user_id": p.UserID, "queued": true}, nil
}

// NewDBAdminTx adapts a db.TxManager to AdminTx.
func NewDBAdminTx(m *db.TxManager) AdminTx {
	return dbAdminTx{m: m}
}

type dbAdminTx struct {
	m *db.TxManager
}

func (t dbAdminTx) RunInTx(ctx context.Context, fn func(ctx context.Context, users auth.UserRepo, admins AdminCreator) error) error {
	return t.m.RunInTx(ctx, func(ctx context.Context, repos *db.Repositories) error {
		return fn(ctx, repos.Users, repos.Admins)
	})
}
