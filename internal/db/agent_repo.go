package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"agentconsole/internal/types"
)

// AgentRepository provides data access for the agents table.
type AgentRepository struct {
	db DBTX
}

// NewAgentRepository creates an AgentRepository.
func NewAgentRepository(db DBTX) *AgentRepository {
	return &AgentRepository{db: db}
}

const agentColumns = `id, user_id, name, is_connected, created_at`

func scanAgent(row pgx.Row) (*types.AgentRecord, error) {
	var a types.AgentRecord
	if err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.IsConnected, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// CountByUser returns the live number of agents owned by userID.
func (r *AgentRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM agents WHERE user_id = $1`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count agents", err)
	}
	return n, nil
}

// Create inserts a new agent. An empty ID is assigned a UUID; CreatedAt is
// filled from the database.
func (r *AgentRepository) Create(ctx context.Context, a *types.AgentRecord) error {
	if a.ID == "" {
		a.ID = "agt_" + uuid.NewString()
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO agents (id, user_id, name, is_connected, created_at)
		 VALUES ($1, $2, $3, $4, COALESCE($5, NOW()))
		 RETURNING created_at`,
		a.ID,
		a.UserID,
		a.Name,
		a.IsConnected,
		nilIfZeroTime(a.CreatedAt),
	).Scan(&a.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create agent", err)
	}
	return nil
}

// GetByID returns one agent or not_found_agent.
func (r *AgentRepository) GetByID(ctx context.Context, id string) (*types.AgentRecord, error) {
	a, err := scanAgent(r.db.QueryRow(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE id = $1`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAgent, "agent not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve agent", err)
	}
	return a, nil
}

// ListByUser returns the agents owned by userID, oldest first.
func (r *AgentRepository) ListByUser(ctx context.Context, userID string) ([]*types.AgentRecord, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+agentColumns+` FROM agents WHERE user_id = $1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list agents", err)
	}
	defer rows.Close()

	var out []*types.AgentRecord
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan agent", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate agents", err)
	}
	return out, nil
}

// SetConnected toggles the connection flag.
func (r *AgentRepository) SetConnected(ctx context.Context, id string, connected bool) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE agents SET is_connected = $1 WHERE id = $2`,
		connected,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update agent", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAgent, "agent not found", nil)
	}
	return nil
}

// Delete removes an agent.
func (r *AgentRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to delete agent", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundAgent, "agent not found", nil)
	}
	return nil
}
