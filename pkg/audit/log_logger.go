package audit

import (
	"context"

	"github.com/seaport-io/gangway/pkg/observability"
)

// LogLogger emits audit events through the structured application log.
// Useful for local development and as a tee alongside the database logger.
type LogLogger struct {
	logger *observability.Logger
}

// NewLogLogger creates an audit logger backed by the application log
func NewLogLogger(logger *observability.Logger) *LogLogger {
	return &LogLogger{logger: logger}
}

// Log emits the event as a structured log line
func (l *LogLogger) Log(ctx context.Context, event *Event) error {
	fields := map[string]interface{}{
		"audit":      true,
		"event_type": event.EventType,
		"status":     event.Status,
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.Username != "" {
		fields["username"] = event.Username
	}
	if event.Service != "" {
		fields["service"] = event.Service
	}
	if event.SessionID != "" {
		fields["session_id"] = event.SessionID
	}
	if event.IPAddress != "" {
		fields["ip_address"] = event.IPAddress
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}

	entry := l.logger.WithFields(fields)
	if event.Status == EventStatusSuccess {
		entry.Info(event.Message)
	} else {
		entry.Warn(event.Message)
	}
	return nil
}

// LogAuthentication logs a primary login or logout event
func (l *LogLogger) LogAuthentication(ctx context.Context, eventType EventType, userID *int64, username string, status EventStatus, message string) error {
	event := NewEvent(ctx, eventType, status)
	event.UserID = userID
	event.Username = username
	event.Message = message
	return l.Log(ctx, event)
}

// LogHandshake logs a federation handshake event against a service
func (l *LogLogger) LogHandshake(ctx context.Context, eventType EventType, userID *int64, service, sessionID string, status EventStatus, message string) error {
	event := NewEvent(ctx, eventType, status)
	event.UserID = userID
	event.Service = service
	event.SessionID = sessionID
	event.Message = message
	return l.Log(ctx, event)
}

// LogSession logs a session lifecycle event
func (l *LogLogger) LogSession(ctx context.Context, eventType EventType, userID *int64, service, sessionID string, status EventStatus, message string) error {
	event := NewEvent(ctx, eventType, status)
	event.UserID = userID
	event.Service = service
	event.SessionID = sessionID
	event.Message = message
	return l.Log(ctx, event)
}

// Close is a no-op for the log-backed logger
func (l *LogLogger) Close() error { return nil }
