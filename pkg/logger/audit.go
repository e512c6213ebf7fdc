package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventLogin          = "login"
	EventLockout        = "account_locked"
	EventLogout         = "logout"
	EventRegister       = "register"
	EventTokenRefresh   = "token_refresh"
	EventResetRequested = "password_reset_requested"
	EventResetCompleted = "password_reset_completed"
	EventRoleChanged    = "role_changed"
	EventStatusChanged  = "status_changed"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security audit events through slog
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger.With(slog.String("log_type", "audit")),
		now:    time.Now,
	}
}

// Log records an audit event. Failures are logged at warn level.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if al == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}
	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogLockout records that an account crossed the failed-login threshold.
func (al *AuditLogger) LogLockout(ctx context.Context, userID, ipAddress string, until time.Time) {
	al.Log(ctx, AuditEvent{
		EventType: EventLockout,
		UserID:    userID,
		IPAddress: ipAddress,
		Success:   false,
		Metadata:  map[string]string{"locked_until": until.UTC().Format(time.RFC3339)},
	})
}

// LogAccountAction records an administrative change made by actorID to targetID.
func (al *AuditLogger) LogAccountAction(ctx context.Context, eventType, actorID, targetID string, metadata map[string]string) {
	md := map[string]string{"actor_id": actorID}
	for k, v := range metadata {
		md[k] = v
	}
	al.Log(ctx, AuditEvent{EventType: eventType, UserID: targetID, Success: true, Metadata: md})
}
