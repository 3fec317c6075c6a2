package services

import "context"

type contextKey string

const (
	entryIDKey    contextKey = "entry_id"
	outputTypeKey contextKey = "output_type"
	stageKey      contextKey = "stage"
	runIDKey      contextKey = "run_id"
	batchKey      contextKey = "batch"
)

// WithEntryID annotates context with the catalog entry identifier.
func WithEntryID(ctx context.Context, id int) context.Context {
	return context.WithValue(ctx, entryIDKey, id)
}

// EntryIDFromContext extracts the catalog entry identifier if present.
func EntryIDFromContext(ctx context.Context) (int, bool) {
	v := ctx.Value(entryIDKey)
	if v == nil {
		return 0, false
	}
	switch val := v.(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		return 0, false
	}
}

// WithOutputType annotates context with the output type being planned or verified.
func WithOutputType(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, outputTypeKey, name)
}

// OutputTypeFromContext returns the output type name if present.
func OutputTypeFromContext(ctx context.Context) (string, bool) {
	if str, ok := ctx.Value(outputTypeKey).(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithStage annotates context with the run phase (plan, dispatch, verify).
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRunID annotates context with the converter run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithBatch annotates context with the 1-based batch index.
func WithBatch(ctx context.Context, index int) context.Context {
	if index <= 0 {
		return ctx
	}
	return context.WithValue(ctx, batchKey, index)
}

// BatchFromContext extracts the batch index if present.
func BatchFromContext(ctx context.Context) (int, bool) {
	if v, ok := ctx.Value(batchKey).(int); ok && v > 0 {
		return v, true
	}
	return 0, false
}
