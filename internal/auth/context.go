package auth

import (
	"context"
	"errors"
)

// Identity is the verified caller of a request or realtime connection.
type Identity struct {
	UserID string
	OrgID  string
	Role   string
}

var ErrNoIdentity = errors.New("auth: identity not in context")

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// IdentityFrom returns the caller stored by WithIdentity. A stored identity
// without a user id counts as absent.
func IdentityFrom(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	if !ok || id.UserID == "" {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}
