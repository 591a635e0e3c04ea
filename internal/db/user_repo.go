package db

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"agentconsole/internal/types"
)

// UserRepository provides data access for the users table (the user directory).
type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a UserRepository.
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, password_hash, metadata, created_at, updated_at`

func scanUser(row pgx.Row) (*types.User, error) {
	var u types.User
	var (
		passwordHash *string
		metadata     []byte
	)
	if err := row.Scan(&u.ID, &u.Email, &passwordHash, &metadata, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	if passwordHash != nil {
		u.PasswordHash = *passwordHash
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &u.Metadata); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg string) (*types.User, error) {
	u, err := scanUser(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve user", err)
	}
	return u, nil
}

// GetByID retrieves a user by id.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*types.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

// Create inserts a user. An empty ID is assigned a UUID.
// A duplicate email yields conflict_email_exists.
func (r *UserRepository) Create(ctx context.Context, u *types.User) error {
	if u.ID == "" {
		u.ID = "usr_" + uuid.NewString()
	}
	metadata, err := marshalMetadata(u.Metadata)
	if err != nil {
		return err
	}
	err = r.db.QueryRow(ctx,
		`INSERT INTO users (id, email, password_hash, metadata)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		u.ID,
		u.Email,
		u.PasswordHash,
		metadata,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictEmail, "email already registered", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create user", err)
	}
	return nil
}

// UpdateEmail changes the login email.
func (r *UserRepository) UpdateEmail(ctx context.Context, id, email string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET email = $1, updated_at = NOW() WHERE id = $2`,
		email,
		id,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.NewAppError(types.ErrCodeConflictEmail, "email already registered", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update email", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// UpdatePassword replaces the stored bcrypt hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, hash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $1, updated_at = NOW() WHERE id = $2`,
		hash,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update password", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

// MergeMetadata merges fields into the user's metadata document.
func (r *UserRepository) MergeMetadata(ctx context.Context, id string, fields map[string]any) error {
	patch, err := marshalMetadata(fields)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET metadata = metadata || $1::jsonb, updated_at = NOW() WHERE id = $2`,
		patch,
		id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update metadata", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
	}
	return nil
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if m == nil {
		return []byte(`{}`), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidPayload, "metadata is not serializable", err)
	}
	return b, nil
}
