package logging

import (
	"context"

	"go.uber.org/zap"
)

type (
	loggerKey        struct{}
	correlationIDKey struct{}
)

// LoggerFromContext returns the logger attached by RequestLogger, or the
// process logger outside a request.
func LoggerFromContext(ctx context.Context) *zap.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
			return l
		}
	}
	return Logger()
}

// CorrelationID returns the Cloud Trace resource or request ID of the current
// request, or "" outside a request.
func CorrelationID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}

func LogInfo(ctx context.Context, msg string, fields ...zap.Field) {
	LoggerFromContext(ctx).Info(msg, fields...)
}

func LogWarn(ctx context.Context, msg string, fields ...zap.Field) {
	LoggerFromContext(ctx).Warn(msg, fields...)
}

// LogError logs at error severity with err attached when non-nil.
func LogError(ctx context.Context, msg string, err error, fields ...zap.Field) {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	LoggerFromContext(ctx).Error(msg, fields...)
}

func withRequestLogger(ctx context.Context, logger *zap.Logger, correlationID string) context.Context {
	ctx = context.WithValue(ctx, loggerKey{}, logger)
	if correlationID != "" {
		ctx = context.WithValue(ctx, correlationIDKey{}, correlationID)
	}
	return ctx
}
