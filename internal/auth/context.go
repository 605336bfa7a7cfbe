// Package auth carries the caller's identity through a request context.
package auth

import "context"

type contextKey struct{}

// Identity is the signed-in account behind a request.
type Identity struct {
	AccountID int64
	Email     string
	SessionID int64
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// AccountID returns the signed-in account id, or 0 for anonymous requests.
func AccountID(ctx context.Context) int64 {
	id, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return id.AccountID
}
