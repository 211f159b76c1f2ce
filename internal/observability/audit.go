// ABOUTME: Audit logging system for security-relevant event tracking
// ABOUTME: Records credential refreshes, catalog refreshes, and token handouts

package observability

import (
	"context"
	"log/slog"
	"time"
)

// Audit event type constants.
const (
	EventTypeAuth    = "AUTH"
	EventTypeAccess  = "ACCESS"
	EventTypeRefresh = "REFRESH"
)

// Audit action constants.
const (
	ActionCreate = "CREATE"
	ActionRead   = "READ"
)

// Audit result constants.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultDenied  = "denied"
)

// AuditLogger provides structured audit logging for security events.
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// LogTokenRefresh logs an upstream credential exchange. Token values never
// appear here; only the outcome does.
func (a *AuditLogger) LogTokenRefresh(ctx context.Context, success bool, details string) {
	correlationID := FromContext(ctx)

	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	a.logger.InfoContext(ctx, "audit_event",
		slog.String("event_type", EventTypeAuth),
		slog.String("action", ActionCreate),
		slog.String("actor", "system"),
		slog.String("resource", "upstream_token"),
		slog.String("result", result),
		slog.String("details", details),
		slog.String("correlation_id", string(correlationID)),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// LogCatalogRefresh logs a catalog refresh event, scheduled or forced.
func (a *AuditLogger) LogCatalogRefresh(ctx context.Context, dataType string, forced, success bool, details string) {
	correlationID := FromContext(ctx)

	result := ResultSuccess
	if !success {
		result = ResultFailure
	}

	a.logger.InfoContext(ctx, "audit_event",
		slog.String("event_type", EventTypeRefresh),
		slog.String("action", ActionCreate),
		slog.String("actor", "system"),
		slog.String("resource", dataType),
		slog.Bool("forced", forced),
		slog.String("result", result),
		slog.String("details", details),
		slog.String("correlation_id", string(correlationID)),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// LogRefreshCommand logs an externally-triggered refresh request and where
// it came from (http, nats, cli).
func (a *AuditLogger) LogRefreshCommand(ctx context.Context, dataType, origin string) {
	correlationID := FromContext(ctx)

	a.logger.InfoContext(ctx, "audit_event",
		slog.String("event_type", EventTypeRefresh),
		slog.String("action", ActionCreate),
		slog.String("actor", origin),
		slog.String("resource", dataType),
		slog.String("result", ResultSuccess),
		slog.String("correlation_id", string(correlationID)),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// LogMapTokenAccess logs a map-token handout to a client.
func (a *AuditLogger) LogMapTokenAccess(ctx context.Context, remoteAddr string) {
	correlationID := FromContext(ctx)

	a.logger.InfoContext(ctx, "audit_event",
		slog.String("event_type", EventTypeAccess),
		slog.String("action", ActionRead),
		slog.String("resource", "map_token"),
		slog.String("remote_addr", remoteAddr),
		slog.String("result", ResultSuccess),
		slog.String("correlation_id", string(correlationID)),
		slog.Time("timestamp", time.Now().UTC()),
	)
}

// LogMapTokenDenied logs a map-token request that could not be served.
func (a *AuditLogger) LogMapTokenDenied(ctx context.Context, remoteAddr, reason string) {
	correlationID := FromContext(ctx)

	a.logger.WarnContext(ctx, "audit_event",
		slog.String("event_type", EventTypeAccess),
		slog.String("action", ActionRead),
		slog.String("resource", "map_token"),
		slog.String("remote_addr", remoteAddr),
		slog.String("result", ResultDenied),
		slog.String("reason", reason),
		slog.String("correlation_id", string(correlationID)),
		slog.Time("timestamp", time.Now().UTC()),
	)
}
