package middleware

import (
	"context"

	"github.com/angelmondragon/shopdesk-backend/internal/gate"
)

type contextKey string

const (
	ctxPrincipalID contextKey = "principal_id"
	ctxEmail       contextKey = "principal_email"
	ctxAccessID    contextKey = "access_id"
	ctxAdmin       contextKey = "admin_principal"
)

func PrincipalIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxPrincipalID)
}

func EmailFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxEmail)
}

// AccessIDFromContext returns the session id carried by the bearer token.
func AccessIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxAccessID)
}

// AdminFromContext returns the admin principal attached by RequireAdmin.
func AdminFromContext(ctx context.Context) *gate.AdminPrincipal {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxAdmin).(*gate.AdminPrincipal); ok {
		return v
	}
	return nil
}

// WithPrincipal injects the authenticated principal into the context.
func WithPrincipal(ctx context.Context, principalID, email, accessID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxPrincipalID, principalID)
	ctx = context.WithValue(ctx, ctxEmail, email)
	return context.WithValue(ctx, ctxAccessID, accessID)
}

func withAdmin(ctx context.Context, admin *gate.AdminPrincipal) context.Context {
	return context.WithValue(ctx, ctxAdmin, admin)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
