package api

import (
	"context"
)

type contextKey string

const userContextKey contextKey = "game_user"

// User is the authenticated caller as resolved by the identity provider
type User struct {
	ID          string
	DisplayName string
}

// UserFromContext extracts the authenticated user from context
func UserFromContext(ctx context.Context) *User {
	user, ok := ctx.Value(userContextKey).(*User)
	if !ok {
		return nil
	}
	return user
}

// ContextWithUser adds the authenticated user to context
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
