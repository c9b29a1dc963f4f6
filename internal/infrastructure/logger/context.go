package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	userIDKey
)

// WithRequestID stores the request id in ctx and returns log tagged with it
func WithRequestID(ctx context.Context, log *zap.Logger, id string) (context.Context, *zap.Logger) {
	return context.WithValue(ctx, requestIDKey, id), OrNop(log).With(zap.String("request_id", id))
}

// GetRequestID returns the request id stored in ctx, or ""
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithUserID stores the authenticated user id in ctx and returns log tagged with it
func WithUserID(ctx context.Context, log *zap.Logger, id string) (context.Context, *zap.Logger) {
	return context.WithValue(ctx, userIDKey, id), OrNop(log).With(zap.String("user_id", id))
}

// GetUserID returns the user id stored in ctx, or ""
func GetUserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// ForContext tags log with the request id, user id and trace id carried by ctx
func ForContext(ctx context.Context, log *zap.Logger) *zap.Logger {
	log = OrNop(log)
	var fields []zap.Field
	if id := GetRequestID(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if id := GetUserID(ctx); id != "" {
		fields = append(fields, zap.String("user_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
	}
	if len(fields) == 0 {
		return log
	}
	return log.With(fields...)
}
