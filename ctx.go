package identity

import (
	"context"
)

var subjectCtxKey = &contextKey{"subject"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithSubject sets the authenticated subject in the given context. The
// principal is always carried explicitly through request scope, never through
// ambient mutable state.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectCtxKey, subject)
}

// SubjectFrom finds the authenticated subject from the context.
func SubjectFrom(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(subjectCtxKey).(string)
	return raw, ok
}

// WithClaims sets the SessionClaims in the given context
func WithClaims(ctx context.Context, claims *SessionClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// ClaimsFrom extracts the SessionClaims from the standard context
func ClaimsFrom(ctx context.Context) (*SessionClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*SessionClaims)
	return raw, ok
}
