package core

import (
	"context"
	"sync"

	"agentconsole/internal/types"
)

// MockAuthenticator resolves every token to Actor, or fails with Err.
// ResolveTokenFunc, when set, takes precedence. Used by handler tests.
type MockAuthenticator struct {
	Actor            types.Actor
	Err              error
	ResolveTokenFunc func(ctx context.Context, token string) (types.Actor, error)

	mu    sync.Mutex
	Calls []string
}

func (m *MockAuthenticator) ResolveToken(ctx context.Context, token string) (types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, token)
	m.mu.Unlock()

	if m.ResolveTokenFunc != nil {
		return m.ResolveTokenFunc(ctx, token)
	}
	if m.Err != nil {
		return types.Actor{}, m.Err
	}
	return m.Actor, nil
}
