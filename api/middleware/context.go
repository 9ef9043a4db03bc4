package middleware

import (
	"context"

	"github.com/angelmondragon/fieldsync/pkg/auth"
)

type contextKey string

const (
	ctxUserID  contextKey = "user_id"
	ctxSession contextKey = "session"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

// SessionFromContext returns the claims Auth attached, or nil.
func SessionFromContext(ctx context.Context) *auth.SessionClaims {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxSession).(*auth.SessionClaims); ok {
		return v
	}
	return nil
}

// WithSession injects the session claims and user id into the context.
func WithSession(ctx context.Context, claims *auth.SessionClaims) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxSession, claims)
	return context.WithValue(ctx, ctxUserID, claims.UserID)
}
