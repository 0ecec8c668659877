package access

import "context"

type grantKey struct{}

// WithManagerGrant marks ctx as belonging to a caller the identity provider
// already granted the manager role.
func WithManagerGrant(ctx context.Context) context.Context {
	return context.WithValue(ctx, grantKey{}, true)
}

// GrantedManager reports whether ctx carries a manager grant.
func GrantedManager(ctx context.Context) bool {
	ok, _ := ctx.Value(grantKey{}).(bool)
	return ok
}
