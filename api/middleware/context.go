package middleware

import "context"

type contextKey string

const ctxCallerService contextKey = "caller_service"

// CallerFromContext returns the authenticated caller's service name.
func CallerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxCallerService).(string); ok {
		return v
	}
	return ""
}

// WithCaller injects the caller service name, used by tests and the auth
// middleware.
func WithCaller(ctx context.Context, service string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxCallerService, service)
}
