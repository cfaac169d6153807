package common

import (
	"context"
	"strings"
)

// UserContext holds per-request identity injected via X-Folio-* headers.
// Identity only: the surrounding deployment is responsible for authentication.
type UserContext struct {
	UserID            string
	ReportingCurrency string
}

type contextKey int

const userContextKey contextKey = iota

// WithUserContext stores a UserContext in the request context.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey, uc)
}

// UserContextFromContext retrieves the UserContext from context, or nil if absent.
func UserContextFromContext(ctx context.Context) *UserContext {
	uc, _ := ctx.Value(userContextKey).(*UserContext)
	return uc
}

// ResolveUserID returns the UserID from context, or "default" when no user context is present.
func ResolveUserID(ctx context.Context) string {
	if uc := UserContextFromContext(ctx); uc != nil && uc.UserID != "" {
		return uc.UserID
	}
	return "default"
}

// ResolveReportingCurrency returns the user-context currency when it is a
// known ISO code, otherwise fallback.
func ResolveReportingCurrency(ctx context.Context, fallback string) string {
	if uc := UserContextFromContext(ctx); uc != nil && uc.ReportingCurrency != "" {
		ccy := strings.ToUpper(uc.ReportingCurrency)
		if IsKnownCurrency(ccy) {
			return ccy
		}
	}
	return fallback
}
