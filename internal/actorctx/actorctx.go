package actorctx

import "context"

// Actor is the authenticated identity attached to every mutating
// operation for audit attribution.
type Actor struct {
	ID       string
	Username string
	Role     string
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func ActorFrom(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)

	return a, ok && a.ID != ""
}
