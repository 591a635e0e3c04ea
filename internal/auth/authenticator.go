package auth

import (
	"context"

	"agentconsole/internal/types"
)

// AdminLookup resolves a user's administrator role.
type AdminLookup interface {
	GetByUserID(ctx context.Context, userID string) (*types.Admin, error)
}

// UserLookup loads the user behind a session.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
}

// Authenticator maps bearer tokens to request actors.
type Authenticator struct {
	sessions *SessionService
	users    UserLookup
	admins   AdminLookup
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(sessions *SessionService, users UserLookup, admins AdminLookup) *Authenticator {
	return &Authenticator{sessions: sessions, users: users, admins: admins}
}

// ResolveToken returns the actor for a raw bearer token.
func (a *Authenticator) ResolveToken(ctx context.Context, token string) (types.Actor, error) {
	session, err := a.sessions.ValidateToken(ctx, token)
	if err != nil {
		return types.Actor{}, err
	}
	user, err := a.users.GetByID(ctx, session.UserID)
	if err != nil {
		if types.IsNotFound(err) {
			return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "session user no longer exists", nil)
		}
		return types.Actor{}, err
	}

	actor := types.Actor{
		ID:    user.ID,
		Type:  types.ActorTypeUser,
		Email: user.Email,
	}
	admin, err := a.admins.GetByUserID(ctx, user.ID)
	switch {
	case err == nil:
		actor.AdminRole = admin.Role
		actor.GroupID = admin.GroupID
	case !types.IsNotFound(err):
		return types.Actor{}, err
	}
	return actor, nil
}
