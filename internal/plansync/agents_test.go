package plansync

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentconsole/internal/types"
)

type fnQuota struct {
	fn func(ctx context.Context, userID string) (QuotaDecision, error)
}

func (f fnQuota) CanCreateAgent(ctx context.Context, userID string) (QuotaDecision, error) {
	return f.fn(ctx, userID)
}

func allowAll() QuotaChecker {
	return fnQuota{fn: func(context.Context, string) (QuotaDecision, error) {
		return QuotaDecision{Allowed: true, Limit: 5, Remaining: 5}, nil
	}}
}

func TestAgentService_Create(t *testing.T) {
	ctx := context.Background()
	owner := types.Actor{ID: "u1", Type: types.ActorTypeUser}

	t.Run("validates name", func(t *testing.T) {
		svc := NewAgentService(newMemAgents(), allowAll(), discardLogger())
		_, err := svc.Create(ctx, owner, "   ")
		assert.Equal(t, types.ErrCodeValidationMissingField, types.ErrorCodeOf(err))
	})

	t.Run("denied by limit", func(t *testing.T) {
		agents := newMemAgents()
		svc := NewAgentService(agents, fnQuota{fn: func(context.Context, string) (QuotaDecision, error) {
			return QuotaDecision{Limit: 3, Count: 3, Reason: ReasonLimitReached}, nil
		}}, discardLogger())

		_, err := svc.Create(ctx, owner, "bot")

		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeLimitAgents, appErr.Code)
		assert.Equal(t, 3, appErr.Details["limit"])
		n, _ := agents.CountByUser(ctx, "u1")
		assert.Zero(t, n)
	})

	t.Run("denied by inactive plan", func(t *testing.T) {
		svc := NewAgentService(newMemAgents(), fnQuota{fn: func(context.Context, string) (QuotaDecision, error) {
			return QuotaDecision{Limit: 1, Remaining: 1, Reason: ReasonPlanInactive}, nil
		}}, discardLogger())

		_, err := svc.Create(ctx, owner, "bot")

		assert.Equal(t, types.ErrCodeLimitPlanInactive, types.ErrorCodeOf(err))
	})

	t.Run("creates", func(t *testing.T) {
		agents := newMemAgents()
		svc := NewAgentService(agents, allowAll(), discardLogger())

		a, err := svc.Create(ctx, owner, " support bot ")

		require.NoError(t, err)
		assert.Equal(t, "support bot", a.Name)
		assert.Equal(t, "u1", a.UserID)
		assert.NotEmpty(t, a.ID)
	})
}

func TestAgentService_OwnershipChecks(t *testing.T) {
	ctx := context.Background()
	agents := newMemAgents()
	agents.seed("u1", 1)
	list, _ := agents.ListByUser(ctx, "u1")
	id := list[0].ID
	svc := NewAgentService(agents, allowAll(), discardLogger())

	_, err := svc.SetConnected(ctx, types.Actor{ID: "u2"}, id, true)
	assert.Equal(t, types.ErrCodePermissionOwner, types.ErrorCodeOf(err))

	err = svc.Delete(ctx, types.Actor{ID: "u2"}, id)
	assert.Equal(t, types.ErrCodePermissionOwner, types.ErrorCodeOf(err))

	a, err := svc.SetConnected(ctx, types.Actor{ID: "u1"}, id, true)
	require.NoError(t, err)
	assert.True(t, a.IsConnected)

	admin := types.Actor{ID: "adm", AdminRole: types.AdminRoleGroup}
	require.NoError(t, svc.Delete(ctx, admin, id))
	_, err = agents.GetByID(ctx, id)
	assert.True(t, types.IsNotFound(err))
}
