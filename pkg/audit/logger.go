package audit

import (
	"context"
	"time"

	"github.com/seaport-io/gangway/pkg/observability"
)

// Logger is the interface for audit logging. Implementations must be safe
// for concurrent use; callers treat audit writes as best-effort and never
// fail a request because of one.
type Logger interface {
	// Log logs an audit event.
	Log(ctx context.Context, event *Event) error

	// LogAuthentication logs a primary login or logout event.
	LogAuthentication(ctx context.Context, eventType EventType, userID *int64, username string, status EventStatus, message string) error

	// LogHandshake logs a federation handshake event against a service.
	LogHandshake(ctx context.Context, eventType EventType, userID *int64, service, sessionID string, status EventStatus, message string) error

	// LogSession logs a session lifecycle event.
	LogSession(ctx context.Context, eventType EventType, userID *int64, service, sessionID string, status EventStatus, message string) error

	// Close closes the logger and flushes any buffered events.
	Close() error
}

// NewEvent builds an event stamped with the request context's identifiers.
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now(),
		EventType: eventType,
		Status:    status,
		RequestID: observability.GetRequestID(ctx),
	}
}

// NopLogger discards all events. Used when auditing is disabled and as the
// fallback for handlers constructed without a logger.
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }

func (NopLogger) LogAuthentication(ctx context.Context, eventType EventType, userID *int64, username string, status EventStatus, message string) error {
	return nil
}

func (NopLogger) LogHandshake(ctx context.Context, eventType EventType, userID *int64, service, sessionID string, status EventStatus, message string) error {
	return nil
}

func (NopLogger) LogSession(ctx context.Context, eventType EventType, userID *int64, service, sessionID string, status EventStatus, message string) error {
	return nil
}

func (NopLogger) Close() error { return nil }
