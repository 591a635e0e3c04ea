package auth

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"agentconsole/internal/types"
)

var fixedNow = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

// --- Mock UserRepo ---

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*types.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*types.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (*types.User, error) {
	args := m.Called(ctx, email)
	if u := args.Get(0); u != nil {
		return u.(*types.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserRepo) Create(ctx context.Context, u *types.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *mockUserRepo) UpdateEmail(ctx context.Context, id, email string) error {
	return m.Called(ctx, id, email).Error(0)
}

func (m *mockUserRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	return m.Called(ctx, id, hash).Error(0)
}

func (m *mockUserRepo) MergeMetadata(ctx context.Context, id string, fields map[string]any) error {
	return m.Called(ctx, id, fields).Error(0)
}

// --- Mock SessionRepo ---

type mockSessionRepo struct {
	mock.Mock
}

func (m *mockSessionRepo) Create(ctx context.Context, session *types.Session) error {
	return m.Called(ctx, session).Error(0)
}

func (m *mockSessionRepo) GetByTokenHash(ctx context.Context, hash string) (*types.Session, error) {
	args := m.Called(ctx, hash)
	if s := args.Get(0); s != nil {
		return s.(*types.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *mockSessionRepo) DeleteByUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

// --- Mock AdminLookup ---

type mockAdminLookup struct {
	mock.Mock
}

func (m *mockAdminLookup) GetByUserID(ctx context.Context, userID string) (*types.Admin, error) {
	args := m.Called(ctx, userID)
	if a := args.Get(0); a != nil {
		return a.(*types.Admin), args.Error(1)
	}
	return nil, args.Error(1)
}

// --- Mock PasswordHasher ---

type mockPasswordHasher struct {
	mock.Mock
}

func (m *mockPasswordHasher) CompareHashAndPassword(hashedPassword, password string) error {
	return m.Called(hashedPassword, password).Error(0)
}

func (m *mockPasswordHasher) GenerateFromPassword(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// --- Fixed token generator ---

type staticTokenGen struct {
	token string
	err   error
}

func (g staticTokenGen) GenerateToken() (string, error) { return g.token, g.err }

func testUser() *types.User {
	return &types.User{
		ID:           "usr_1",
		Email:        "ada@example.com",
		PasswordHash: "$2a$12$hashed",
		CreatedAt:    fixedNow.Add(-48 * time.Hour),
	}
}

func notFoundUser() error {
	return types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
}
