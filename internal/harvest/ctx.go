package harvest

import "context"

type ctxKey string

const runIDKey ctxKey = "harvest_run_id"

// WithRunID stores the run ID on the context.
func WithRunID(ctx context.Context, runID string) context.Context {
	if runID == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID reads the run ID from context.
func RunID(ctx context.Context) string {
	v := ctx.Value(runIDKey)
	s, _ := v.(string)
	return s
}
