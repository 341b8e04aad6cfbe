package logging

import (
	"context"
	"log/slog"
)

type contextKey int

const (
	modalityKey contextKey = iota
	requestIDKey
)

// WithModality tags ctx with the identification modality.
func WithModality(ctx context.Context, modality string) context.Context {
	return context.WithValue(ctx, modalityKey, modality)
}

// WithRequestID tags ctx with a log correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	var fields []slog.Attr
	if v, ok := ctx.Value(modalityKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldModality, v))
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		fields = append(fields, slog.String(FieldRequestID, v))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
