package model

import "context"

// Principal is the authenticated caller of a request, decoded from the
// session token.
type Principal struct {
	UserID uint64
	Email  string
	Roles  []string
}

type principalKey struct{}

// WithPrincipal returns a context carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored in ctx, or nil.
func PrincipalFrom(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}

// ActorID returns the principal's user id for audit entries, nil when
// anonymous.
func ActorID(ctx context.Context) *uint64 {
	if p := PrincipalFrom(ctx); p != nil {
		id := p.UserID
		return &id
	}
	return nil
}
