package auth

import "context"

type identityKey struct{}

// WithClaims 把已验证的身份放进 context。
func WithClaims(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, identityKey{}, c)
}

func FromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(identityKey{}).(Claims)
	return c, ok
}
