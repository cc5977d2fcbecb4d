// Package actors is the directory of authenticated users. Authentication
// itself happens upstream; this package resolves the forwarded identity and
// answers role-membership queries used for notification fan-out.
package actors

import (
	"context"
	"time"
)

// Role is the closed set of roles an actor can hold. A role is immutable for
// the duration of a request.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSales      Role = "sales"
	RoleStock      Role = "stock"
	RoleAccounting Role = "accounting"
)

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSales, RoleStock, RoleAccounting:
		return true
	}
	return false
}

// Actor describes the authenticated user invoking a request.
type Actor struct {
	ID        int64
	Name      string
	Email     string
	Role      Role
	IsActive  bool
	CreatedAt time.Time
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type actorContextKey struct{}

// ContextWithActor stores the request actor in context. Workflow services
// receive the actor explicitly; the context carry is for middleware plumbing
// only, never for ambient lookups inside domain logic.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
