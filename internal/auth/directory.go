package auth

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"agentconsole/internal/types"
)

// DefaultBcryptCost is the bcrypt cost factor used for password hashing.
const DefaultBcryptCost = 12

// Password length bounds. bcrypt ignores input past 72 bytes.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// UserRepo is the persistence the directory needs.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*types.User, error)
	GetByEmail(ctx context.Context, email string) (*types.User, error)
	Create(ctx context.Context, u *types.User) error
	UpdateEmail(ctx context.Context, id, email string) error
	UpdatePassword(ctx context.Context, id, hash string) error
	MergeMetadata(ctx context.Context, id string, fields map[string]any) error
}

// PasswordHasher abstracts bcrypt operations for testability.
type PasswordHasher interface {
	CompareHashAndPassword(hashedPassword, password string) error
	GenerateFromPassword(password string) (string, error)
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher returns the production hasher. A cost outside bcrypt's
// range falls back to DefaultBcryptCost.
func NewBcryptHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	return &bcryptHasher{cost: cost}
}

func (b *bcryptHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func (b *bcryptHasher) GenerateFromPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// SessionRevoker drops a user's sessions after a credential change.
type SessionRevoker interface {
	InvalidateAllUserSessions(ctx context.Context, userID string) error
}

// UserUpdate is a partial update; nil fields are left unchanged.
type UserUpdate struct {
	Email    *string
	Password *string
	Metadata map[string]any
}

// Directory is the user directory: account creation and credential updates.
type Directory struct {
	users    UserRepo
	hasher   PasswordHasher
	sessions SessionRevoker
	validate *validator.Validate
	logger   *slog.Logger
}

// NewDirectory creates a Directory. sessions may be nil.
func NewDirectory(users UserRepo, hasher PasswordHasher, sessions SessionRevoker, logger *slog.Logger) *Directory {
	if hasher == nil {
		hasher = NewBcryptHasher(DefaultBcryptCost)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{
		users:    users,
		hasher:   hasher,
		sessions: sessions,
		validate: validator.New(),
		logger:   logger,
	}
}

// WithRepo returns a copy of the directory bound to another UserRepo,
// typically a transaction-scoped one.
func (d *Directory) WithRepo(users UserRepo) *Directory {
	c := *d
	c.users = users
	return &c
}

func (d *Directory) checkEmail(email string) error {
	if err := d.validate.Var(email, "required,email,max=254"); err != nil {
		return types.NewAppError(types.ErrCodeValidationInvalidEmail, "invalid email address", err)
	}
	return nil
}

func checkPassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPayload, "password length is out of range", nil,
			map[string]any{"min": MinPasswordLength, "max": MaxPasswordLength})
	}
	return nil
}

// CreateUser registers a new account and returns it.
func (d *Directory) CreateUser(ctx context.Context, email, password string, metadata map[string]any) (*types.User, error) {
	email = CanonicalizeEmail(email)
	if err := d.checkEmail(email); err != nil {
		return nil, err
	}
	if err := checkPassword(password); err != nil {
		return nil, err
	}
	hash, err := d.hasher.GenerateFromPassword(password)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
	}

	u := &types.User{Email: email, PasswordHash: hash, Metadata: metadata}
	if err := d.users.Create(ctx, u); err != nil {
		return nil, err
	}
	d.logger.InfoContext(ctx, "user created", "user_id", u.ID)
	return u, nil
}

// GetUser returns a user by id.
func (d *Directory) GetUser(ctx context.Context, id string) (*types.User, error) {
	return d.users.GetByID(ctx, id)
}

// FindByEmail returns a user by email.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*types.User, error) {
	return d.users.GetByEmail(ctx, CanonicalizeEmail(email))
}

// UpdateUser applies a partial update. Changing the email or password
// revokes the user's sessions.
func (d *Directory) UpdateUser(ctx context.Context, id string, upd UserUpdate) error {
	var email, hash string
	if upd.Email != nil {
		email = CanonicalizeEmail(*upd.Email)
		if err := d.checkEmail(email); err != nil {
			return err
		}
	}
	if upd.Password != nil {
		if err := checkPassword(*upd.Password); err != nil {
			return err
		}
		h, err := d.hasher.GenerateFromPassword(*upd.Password)
		if err != nil {
			return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to hash password", err)
		}
		hash = h
	}

	if upd.Email != nil {
		if err := d.users.UpdateEmail(ctx, id, email); err != nil {
			return err
		}
	}
	if upd.Password != nil {
		if err := d.users.UpdatePassword(ctx, id, hash); err != nil {
			return err
		}
	}
	if len(upd.Metadata) > 0 {
		if err := d.users.MergeMetadata(ctx, id, upd.Metadata); err != nil {
			return err
		}
	}

	if (upd.Email != nil || upd.Password != nil) && d.sessions != nil {
		if err := d.sessions.InvalidateAllUserSessions(ctx, id); err != nil {
			d.logger.WarnContext(ctx, "failed to revoke sessions after credential change",
				"user_id", id,
				"error", err,
			)
		}
	}
	d.logger.InfoContext(ctx, "user updated",
		"user_id", id,
		"email_changed", upd.Email != nil,
		"password_changed", upd.Password != nil,
	)
	return nil
}
