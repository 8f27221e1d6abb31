package obs

import "context"

type ctxKeyRoutePattern struct{}

// WithRoutePattern stores the matched router pattern on the context so the
// metrics and logging middleware can label by route, not raw path.
func WithRoutePattern(ctx context.Context, pattern string) context.Context {
	return context.WithValue(ctx, ctxKeyRoutePattern{}, pattern)
}

// RoutePatternFromContext returns the stored pattern, or "" when absent.
func RoutePatternFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(ctxKeyRoutePattern{}).(string)
	return v
}
