package logging

import (
	"context"

	"go.uber.org/zap"
)

// Audit results.
const (
	AuditSuccess = "success"
	AuditFailure = "failure"
)

// LogAuditEvent records a state change on a durable resource.
//
// Submitters are anonymous, so events identify the resource only. Callers must
// not put personal data (email, name) in details.
func LogAuditEvent(ctx context.Context, action, resourceType, resourceID, result string, details map[string]any) {
	fields := []zap.Field{
		zap.String("audit.action", action),
		zap.String("audit.resource_type", resourceType),
		zap.String("audit.resource_id", resourceID),
		zap.String("audit.result", result),
	}
	if id := CorrelationID(ctx); id != "" {
		fields = append(fields, zap.String("audit.correlation_id", id))
	}
	if len(details) > 0 {
		fields = append(fields, zap.Any("audit.details", details))
	}
	LoggerFromContext(ctx).Info("audit event", fields...)
}
