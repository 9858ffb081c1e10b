package common

import (
	"context"
	"strings"
)

type ctxKey string

const (
	userIDKey ctxKey = "auth/user-id"
	rolesKey  ctxKey = "auth/roles"
	anonIDKey ctxKey = "cart/anon-id"
	emailKey  ctxKey = "auth/email"
)

// WithUserID stores the authenticated user identifier on the provided context.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// UserID extracts the authenticated user identifier from the context if present.
func UserID(ctx context.Context) (string, bool) {
	v := ctx.Value(userIDKey)
	if v == nil {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

// WithRoles stores the caller's roles on the context.
func WithRoles(ctx context.Context, roles []string) context.Context {
	return context.WithValue(ctx, rolesKey, append([]string(nil), roles...))
}

// HasRole reports whether the caller carries the given role.
func HasRole(ctx context.Context, role string) bool {
	roles, _ := ctx.Value(rolesKey).([]string)
	for _, r := range roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

// WithAnonID stores the guest cart identifier supplied by the client.
func WithAnonID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, anonIDKey, id)
}

// AnonID extracts the guest cart identifier from the context if present.
func AnonID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(anonIDKey).(string)
	return id, ok && id != ""
}

// WithEmail stores the authenticated user's email address.
func WithEmail(ctx context.Context, email string) context.Context {
	return context.WithValue(ctx, emailKey, email)
}

// Email extracts the authenticated user's email address if present.
func Email(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(emailKey).(string)
	return v, ok && v != ""
}
