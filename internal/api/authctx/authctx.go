// Package authctx carries the authenticated caller identity through a
// request context.
package authctx

import "context"

type ctxKeySubject struct{}

// WithSubject returns a context carrying the token subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	if subject == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeySubject{}, subject)
}

// Subject returns the authenticated subject, or "" when the request was not
// authenticated.
func Subject(ctx context.Context) string {
	s, _ := ctx.Value(ctxKeySubject{}).(string)
	return s
}
