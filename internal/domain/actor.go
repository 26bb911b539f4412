package domain

import (
	"context"

	"github.com/google/uuid"
)

// Role is the capability set an actor carries into core operations.
type Role string

const (
	RoleClient       Role = "client"
	RoleProfessional Role = "professional"
	RoleAdmin        Role = "admin"
	RoleSystem       Role = "system"
)

// Valid reports whether r is one of the roles issued to callers.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleProfessional, RoleAdmin:
		return true
	}
	return false
}

// Actor identifies who performs an operation. Professionals act under their
// professional id.
type Actor struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

// SystemActor is used by background processing such as webhook dispatch.
var SystemActor = Actor{Role: RoleSystem}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

func (a Actor) IsPrivileged() bool { return a.Role == RoleAdmin || a.Role == RoleSystem }

type ctxKey string

const actorKey ctxKey = "marketplace.actor"

// WithActor stores the authenticated actor in context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext extracts the actor if present.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey).(Actor)
	return actor, ok && actor.Role != ""
}
