package types

import "context"

// ActorType identifies the kind of authenticated entity making a request.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// Actor represents the authenticated entity performing an operation.
type Actor struct {
	ID    string
	Type  ActorType
	Email string

	// AdminRole is empty for non-administrators.
	AdminRole AdminRole
	GroupID   string
}

// IsAdmin reports whether the actor holds any administrator role.
func (a Actor) IsAdmin() bool {
	return a.AdminRole != ""
}

// IsMaster reports whether the actor is a master administrator.
func (a Actor) IsMaster() bool {
	return a.AdminRole == AdminRoleMaster
}

// SystemActor is used by workers and the ops CLI.
func SystemActor(source string) Actor {
	return Actor{ID: source, Type: ActorTypeSystem, AdminRole: AdminRoleMaster}
}

type contextKey string

const (
	actorKey     contextKey = "actor"
	requestIDKey contextKey = "request_id"
)

// WithActor stores the Actor in the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// GetActor retrieves the Actor from the context.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok
}

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
