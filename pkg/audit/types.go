package audit

import (
	"encoding/json"
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authentication events
	EventTypeAuthLogin       EventType = "auth.login"
	EventTypeAuthLoginFailed EventType = "auth.login_failed"
	EventTypeAuthLogout      EventType = "auth.logout"

	// Federation events
	EventTypeHandshakeInitiate EventType = "sso.handshake_initiate"
	EventTypeHandshakeComplete EventType = "sso.handshake_complete"
	EventTypeInvalidState      EventType = "sso.invalid_state"
	EventTypeAccessDenied      EventType = "sso.access_denied"
	EventTypeTokenIssue        EventType = "sso.token_issue"
	EventTypeTokenValidateFail EventType = "sso.token_validate_fail"

	// Session lifecycle events
	EventTypeSessionRevoke     EventType = "sso.session_revoke"
	EventTypeSessionExtend     EventType = "sso.session_extend"
	EventTypeSessionExpire     EventType = "sso.session_expire_sweep"
	EventTypeNotificationFail  EventType = "sso.logout_notification_failed"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// Event represents a single audit log entry
type Event struct {
	ID        int64       `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	UserID   *int64 `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`

	// Federation context
	Service   string `json:"service,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// Request context
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	// Additional details
	Message      string                 `json:"message,omitempty"`
	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToJSON converts the audit event to JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON parses an audit event from JSON
func FromJSON(data []byte) (*Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return &event, err
}

// SearchFilter represents filters for querying audit logs
type SearchFilter struct {
	StartTime *time.Time
	EndTime   *time.Time

	UserID    *int64
	Service   string
	SessionID string

	EventTypes []EventType
	Status     *EventStatus

	Limit  int
	Offset int
}
