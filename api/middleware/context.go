package middleware

import "context"

type actorKey struct{}

type actor struct {
	subject string
	role    string
}

func actorFrom(ctx context.Context) actor {
	if ctx == nil {
		return actor{}
	}
	a, _ := ctx.Value(actorKey{}).(actor)
	return a
}

// SubjectFromContext returns the authenticated operator's subject, or "".
func SubjectFromContext(ctx context.Context) string { return actorFrom(ctx).subject }

// RoleFromContext returns the authenticated operator's role, or "".
func RoleFromContext(ctx context.Context) string { return actorFrom(ctx).role }

// WithActor injects the authenticated operator into the context.
func WithActor(ctx context.Context, subject, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor{subject: subject, role: role})
}
