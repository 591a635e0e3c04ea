package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"agentconsole/internal/types"
)

func TestService_Login(t *testing.T) {
	ctx := context.Background()

	setup := func() (*mockUserRepo, *mockSessionRepo, *mockPasswordHasher, *Service) {
		users := &mockUserRepo{}
		sessions := &mockSessionRepo{}
		hasher := &mockPasswordHasher{}
		svc := NewService(ServiceConfig{
			Users:    users,
			Sessions: newTestSessions(sessions, "sess_tok"),
			Hasher:   hasher,
		})
		return users, sessions, hasher, svc
	}

	t.Run("success", func(t *testing.T) {
		users, sessions, hasher, svc := setup()
		users.On("GetByEmail", mock.Anything, "ada@example.com").Return(testUser(), nil)
		hasher.On("CompareHashAndPassword", "$2a$12$hashed", "pw").Return(nil)
		sessions.On("Create", mock.Anything, mock.Anything).Return(nil)

		user, session, token, err := svc.Login(ctx, "Ada@example.com", "pw")

		require.NoError(t, err)
		assert.Equal(t, "usr_1", user.ID)
		assert.Equal(t, "sess_tok", token)
		assert.Equal(t, "usr_1", session.UserID)
	})

	t.Run("unknown email masked", func(t *testing.T) {
		users, sessions, _, svc := setup()
		users.On("GetByEmail", mock.Anything, "nobody@example.com").Return(nil, notFoundUser())

		_, _, _, err := svc.Login(ctx, "nobody@example.com", "pw")

		assert.Equal(t, types.ErrCodeAuthInvalidCreds, types.ErrorCodeOf(err))
		sessions.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("wrong password", func(t *testing.T) {
		users, _, hasher, svc := setup()
		users.On("GetByEmail", mock.Anything, "ada@example.com").Return(testUser(), nil)
		hasher.On("CompareHashAndPassword", mock.Anything, "bad").Return(errors.New("mismatch"))

		_, _, _, err := svc.Login(ctx, "ada@example.com", "bad")

		assert.Equal(t, types.ErrCodeAuthInvalidCreds, types.ErrorCodeOf(err))
	})

	t.Run("database error passes through", func(t *testing.T) {
		users, _, _, svc := setup()
		dbErr := types.NewAppError(types.ErrCodeInternalDB, "boom", nil)
		users.On("GetByEmail", mock.Anything, mock.Anything).Return(nil, dbErr)

		_, _, _, err := svc.Login(ctx, "ada@example.com", "pw")

		assert.Equal(t, types.ErrCodeInternalDB, types.ErrorCodeOf(err))
	})
}

func TestAuthenticator_ResolveToken(t *testing.T) {
	ctx := context.Background()
	session := &types.Session{ID: "ses_1", UserID: "usr_1", ExpiresAt: fixedNow.Add(time.Hour)}

	setup := func() (*mockUserRepo, *mockAdminLookup, *Authenticator) {
		sessions := &mockSessionRepo{}
		sessions.On("GetByTokenHash", mock.Anything, HashToken("sess_tok")).Return(session, nil)
		users := &mockUserRepo{}
		admins := &mockAdminLookup{}
		return users, admins, NewAuthenticator(newTestSessions(sessions, ""), users, admins)
	}

	t.Run("plain user", func(t *testing.T) {
		users, admins, a := setup()
		users.On("GetByID", mock.Anything, "usr_1").Return(testUser(), nil)
		admins.On("GetByUserID", mock.Anything, "usr_1").
			Return(nil, types.NewAppError(types.ErrCodeNotFoundAdmin, "admin not found", nil))

		actor, err := a.ResolveToken(ctx, "sess_tok")

		require.NoError(t, err)
		assert.Equal(t, types.Actor{ID: "usr_1", Type: types.ActorTypeUser, Email: "ada@example.com"}, actor)
		assert.False(t, actor.IsAdmin())
	})

	t.Run("group admin", func(t *testing.T) {
		users, admins, a := setup()
		users.On("GetByID", mock.Anything, "usr_1").Return(testUser(), nil)
		admins.On("GetByUserID", mock.Anything, "usr_1").
			Return(&types.Admin{UserID: "usr_1", Role: types.AdminRoleGroup, GroupID: "g1"}, nil)

		actor, err := a.ResolveToken(ctx, "sess_tok")

		require.NoError(t, err)
		assert.True(t, actor.IsAdmin())
		assert.False(t, actor.IsMaster())
		assert.Equal(t, "g1", actor.GroupID)
	})

	t.Run("deleted user", func(t *testing.T) {
		users, _, a := setup()
		users.On("GetByID", mock.Anything, "usr_1").Return(nil, notFoundUser())

		_, err := a.ResolveToken(ctx, "sess_tok")

		assert.Equal(t, types.ErrCodeAuthTokenInvalid, types.ErrorCodeOf(err))
	})
}
