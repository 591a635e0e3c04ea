// Package auth implements the user directory, bearer-token sessions and
// the resolution of tokens to request actors.
package auth

import (
	"context"
	"log/slog"

	"agentconsole/internal/types"
)

// CredentialLookup finds a user for login.
type CredentialLookup interface {
	GetByEmail(ctx context.Context, email string) (*types.User, error)
}

// Service verifies credentials and issues sessions.
type Service struct {
	users    CredentialLookup
	sessions *SessionService
	hasher   PasswordHasher
	logger   *slog.Logger
}

// ServiceConfig holds the dependencies for creating a Service.
type ServiceConfig struct {
	Users    CredentialLookup
	Sessions *SessionService
	Hasher   PasswordHasher
	Logger   *slog.Logger
}

// NewService creates a Service. If Hasher is nil the bcrypt hasher is used.
func NewService(cfg ServiceConfig) *Service {
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = NewBcryptHasher(DefaultBcryptCost)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    cfg.Users,
		sessions: cfg.Sessions,
		hasher:   hasher,
		logger:   logger,
	}
}

// Login verifies credentials and returns the user, its new session and the
// raw bearer token. Unknown emails and wrong passwords produce the same
// error.
func (s *Service) Login(ctx context.Context, email, password string) (*types.User, *types.Session, string, error) {
	invalid := types.NewAppError(types.ErrCodeAuthInvalidCreds, "invalid email or password", nil)

	user, err := s.users.GetByEmail(ctx, CanonicalizeEmail(email))
	if err != nil {
		if types.IsNotFound(err) {
			s.logger.InfoContext(ctx, "login failed", "reason", "user_not_found")
			return nil, nil, "", invalid
		}
		return nil, nil, "", err
	}

	if err := s.hasher.CompareHashAndPassword(user.PasswordHash, password); err != nil {
		s.logger.InfoContext(ctx, "login failed", "user_id", user.ID, "reason", "invalid_creds")
		return nil, nil, "", invalid
	}

	session, token, err := s.sessions.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, nil, "", err
	}

	s.logger.InfoContext(ctx, "user logged in", "user_id", user.ID)
	return user, session, token, nil
}

// Logout invalidates the session behind token.
func (s *Service) Logout(ctx context.Context, token string) error {
	session, err := s.sessions.ValidateToken(ctx, token)
	if err != nil {
		return err
	}
	return s.sessions.InvalidateSession(ctx, session.ID)
}
