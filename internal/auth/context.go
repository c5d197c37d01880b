package auth

import (
	"context"

	"github.com/jw6ventures/calgrid/internal/store"
)

type contextKey string

const (
	contextKeyUser  contextKey = "user"
	contextKeyToken contextKey = "token"
)

func WithUser(ctx context.Context, user *store.User) context.Context {
	return context.WithValue(ctx, contextKeyUser, user)
}

func UserFromContext(ctx context.Context) (*store.User, bool) {
	u, ok := ctx.Value(contextKeyUser).(*store.User)
	return u, ok
}

// WithToken stores the raw login token the request authenticated with.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, contextKeyToken, token)
}

func TokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(contextKeyToken).(string)
	return s
}
