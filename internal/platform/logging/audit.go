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

// AuditEvent describes a state change on a citizen resource.
// Subject is the fiscal code the resource belongs to; it is hashed before logging.
// An empty Actor is taken from the context.
type AuditEvent struct {
	Action       string
	Actor        string
	ResourceType string
	Subject      string
	Version      int
	Result       string
	Details      map[string]any
}

// LogAuditEvent logs a structured audit event for security and compliance.
func LogAuditEvent(ctx context.Context, ev AuditEvent) {
	fields := []zap.Field{
		zap.String("audit.action", ev.Action),
		zap.String("audit.resource_type", ev.ResourceType),
		zap.String("audit.subject", SubjectHash(ev.Subject)),
		zap.Int("audit.version", ev.Version),
		zap.String("audit.result", ev.Result),
	}
	actor := ev.Actor
	if actor == "" {
		actor = ActorFromContext(ctx)
	}
	if actor != "" {
		fields = append(fields, zap.String("audit.actor", actor))
	}
	if len(ev.Details) > 0 {
		fields = append(fields, zap.Any("audit.details", ev.Details))
	}
	LoggerFromContext(ctx).Info("Audit event", fields...)
}
