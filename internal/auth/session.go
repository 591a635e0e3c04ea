package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"agentconsole/internal/types"
)

// SessionConfig holds configuration for session management.
type SessionConfig struct {
	// SessionDuration is the lifetime of a new session. Default: 7 days.
	SessionDuration time.Duration

	// TokenPrefix is the prefix of raw bearer tokens ("sess_").
	TokenPrefix string
}

// DefaultSessionConfig returns the default session configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		SessionDuration: 7 * 24 * time.Hour,
		TokenPrefix:     "sess_",
	}
}

// SessionRepo defines the data access methods needed by the SessionService.
type SessionRepo interface {
	Create(ctx context.Context, session *types.Session) error
	GetByTokenHash(ctx context.Context, hash string) (*types.Session, error)
	DeleteByID(ctx context.Context, sessionID string) error
	DeleteByUser(ctx context.Context, userID string) error
}

// TokenGenerator abstracts entropy sources for testability.
type TokenGenerator interface {
	GenerateToken() (string, error)
}

// SessionService issues and validates bearer-token sessions. Only the
// SHA-256 hash of a token is persisted.
type SessionService struct {
	repo     SessionRepo
	tokenGen TokenGenerator
	config   SessionConfig
	clock    types.Clock
	logger   *slog.Logger
}

// NewSessionService creates a SessionService.
func NewSessionService(
	repo SessionRepo,
	tokenGen TokenGenerator,
	config SessionConfig,
	clock types.Clock,
	logger *slog.Logger,
) *SessionService {
	if tokenGen == nil {
		tokenGen = NewCryptoTokenGenerator(config.TokenPrefix)
	}
	if config.SessionDuration <= 0 {
		config.SessionDuration = DefaultSessionConfig().SessionDuration
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		repo:     repo,
		tokenGen: tokenGen,
		config:   config,
		clock:    clock,
		logger:   logger,
	}
}

// CreateSession creates a session for userID and returns it with the raw
// token. The raw token is never stored.
func (s *SessionService) CreateSession(ctx context.Context, userID string) (*types.Session, string, error) {
	token, err := s.tokenGen.GenerateToken()
	if err != nil {
		return nil, "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate session token", err)
	}

	now := s.clock.Now()
	session := &types.Session{
		ID:        "ses_" + uuid.NewString(),
		UserID:    userID,
		TokenHash: HashToken(token),
		ExpiresAt: now.Add(s.config.SessionDuration),
		CreatedAt: now,
	}
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, "", err
	}

	s.logger.InfoContext(ctx, "session created",
		"session_id", session.ID,
		"user_id", userID,
	)
	return session, token, nil
}

// ValidateToken resolves a raw bearer token to its session.
func (s *SessionService) ValidateToken(ctx context.Context, token string) (*types.Session, error) {
	if token == "" {
		return nil, types.NewAppError(types.ErrCodeAuthTokenMissing, "missing bearer token", nil)
	}
	if !strings.HasPrefix(token, s.config.TokenPrefix) {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "malformed bearer token", nil)
	}
	session, err := s.repo.GetByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, err
	}
	if s.clock.Now().After(session.ExpiresAt) {
		return nil, types.NewAppError(types.ErrCodeAuthSessionExpired, "session has expired", nil)
	}
	return session, nil
}

// InvalidateSession deletes a single session (logout).
func (s *SessionService) InvalidateSession(ctx context.Context, sessionID string) error {
	if err := s.repo.DeleteByID(ctx, sessionID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "session invalidated", "session_id", sessionID)
	return nil
}

// InvalidateAllUserSessions removes all sessions for a user. Used after a
// credential change.
func (s *SessionService) InvalidateAllUserSessions(ctx context.Context, userID string) error {
	if err := s.repo.DeleteByUser(ctx, userID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "all sessions invalidated for user", "user_id", userID)
	return nil
}

// CryptoTokenGenerator is the production TokenGenerator.
type CryptoTokenGenerator struct {
	Prefix string
}

// NewCryptoTokenGenerator creates a generator; an empty prefix means "sess_".
func NewCryptoTokenGenerator(prefix string) *CryptoTokenGenerator {
	if prefix == "" {
		prefix = "sess_"
	}
	return &CryptoTokenGenerator{Prefix: prefix}
}

// GenerateToken returns the prefix followed by 32 random bytes in hex.
func (g *CryptoTokenGenerator) GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return g.Prefix + hex.EncodeToString(b), nil
}

// HashToken produces a hex-encoded SHA-256 hash of a raw token so it can be
// looked up without storing the token itself.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// CanonicalizeEmail normalizes email addresses for consistent DB lookups.
func CanonicalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
