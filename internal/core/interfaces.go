package core

import (
	"context"

	"agentconsole/internal/types"
)

// Authenticator resolves a bearer token to the Actor making the request.
// Errors should carry auth_token_missing, auth_token_invalid or
// auth_session_expired; anything else is reported as an invalid token.
type Authenticator interface {
	ResolveToken(ctx context.Context, token string) (types.Actor, error)
}
