// Package auth carries the authenticated actor from the HTTP middleware into
// the services.
package auth

import "context"

// Role of an authenticated actor.
type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
	RoleAdmin      Role = "admin"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   string
	Role Role
}

// Admin reports whether the actor may act on any record.
func (a Actor) Admin() bool { return a.Role == RoleAdmin }

// System is the internal actor used by background jobs.
var System = Actor{ID: "system", Role: RoleAdmin}

type contextKey struct{}

// WithActor stores the actor on the context.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, contextKey{}, actor)
}

// ActorFrom extracts the actor from ctx. The zero Actor means unauthenticated.
func ActorFrom(ctx context.Context) Actor {
	if actor, ok := ctx.Value(contextKey{}).(Actor); ok {
		return actor
	}
	return Actor{}
}
