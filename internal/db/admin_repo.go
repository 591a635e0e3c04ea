package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"agentconsole/internal/types"
)

// AdminRepository provides data access for the admins table.
type AdminRepository struct {
	db DBTX
}

// NewAdminRepository creates an AdminRepository.
func NewAdminRepository(db DBTX) *AdminRepository {
	return &AdminRepository{db: db}
}

const adminColumns = `id, user_id, email, role, COALESCE(group_id, ''), created_at`

func scanAdmin(row pgx.Row) (*types.Admin, error) {
	var a types.Admin
	if err := row.Scan(&a.ID, &a.UserID, &a.Email, &a.Role, &a.GroupID, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetByUserID returns the admin row for a directory user, or not_found_admin.
func (r *AdminRepository) GetByUserID(ctx context.Context, userID string) (*types.Admin, error) {
	a, err := scanAdmin(r.db.QueryRow(ctx,
		`SELECT `+adminColumns+` FROM admins WHERE user_id = $1`,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundAdmin, "admin not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve admin", err)
	}
	return a, nil
}

// Create inserts an admin. A user can hold at most one admin role.
func (r *AdminRepository) Create(ctx context.Context, a *types.Admin) error {
	if a.ID == "" {
		a.ID = "adm_" + uuid.NewString()
	}
	var groupID *string
	if a.GroupID != "" {
		groupID = &a.GroupID
	}
	err := r.db.QueryRow(ctx,
		`INSERT INTO admins (id, user_id, email, role, group_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at`,
		a.ID,
		a.UserID,
		a.Email,
		a.Role,
		groupID,
	).Scan(&a.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictAdmin, "user is already an administrator", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create admin", err)
	}
	return nil
}

// List returns all administrators ordered by creation.
func (r *AdminRepository) List(ctx context.Context) ([]*types.Admin, error) {
	rows, err := r.db.Query(ctx, `SELECT `+adminColumns+` FROM admins ORDER BY created_at, id`)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list admins", err)
	}
	defer rows.Close()

	var out []*types.Admin
	for rows.Next() {
		a, err := scanAdmin(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan admin", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate admins", err)
	}
	return out, nil
}
