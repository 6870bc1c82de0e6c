package api

import (
	"time"

	"github.com/seaport-io/gangway/pkg/session"
)

// LoginRequest is the body of POST /auth/sso/login
type LoginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Service     string `json:"service"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// LoginResponse returns the parked handshake. The caller follows
// CallbackURL to consume it and collect the service token.
type LoginResponse struct {
	State       string `json:"state"`
	CallbackURL string `json:"callback_url"`
	ExpiresIn   int64  `json:"expires_in_seconds"`
}

// ValidateRequest is the body of POST /auth/sso/validate. The calling
// service is identified by its API key, never by a field in the body.
type ValidateRequest struct {
	Token string `json:"token"`
}

// ValidateResponse reports a validation outcome. Reason is set only on
// denial and comes from the closed reason set.
type ValidateResponse struct {
	Valid   bool         `json:"valid"`
	Reason  string       `json:"reason,omitempty"`
	User    *UserInfo    `json:"user,omitempty"`
	Session *SessionInfo `json:"session,omitempty"`
}

// UserInfo is the identity snapshot returned to relying services
type UserInfo struct {
	ID          int64    `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	FullName    string   `json:"full_name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// SessionInfo is the ledger view returned by session endpoints
type SessionInfo struct {
	SessionID      string    `json:"session_id"`
	Service        string    `json:"service"`
	Status         string    `json:"status"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ClientIP       string    `json:"client_ip,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// RevokeRequest is the body of POST /auth/sso/sessions/revoke
type RevokeRequest struct {
	SessionID string `json:"session_id"`
}

// ExtendRequest is the body of POST /auth/sso/sessions/extend
type ExtendRequest struct {
	SessionID       string `json:"session_id"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

// LogoutRequest is the body of POST /auth/sso/logout
type LogoutRequest struct {
	All bool `json:"all,omitempty"`
}

// LogoutResponse reports how many sessions the logout closed
type LogoutResponse struct {
	RevokedSessions int `json:"revoked_sessions"`
}

func sessionInfo(s *session.Session) *SessionInfo {
	return &SessionInfo{
		SessionID:      s.SessionID,
		Service:        s.Service,
		Status:         string(s.Status),
		IssuedAt:       s.IssuedAt,
		ExpiresAt:      s.ExpiresAt,
		LastActivityAt: s.LastActivityAt,
		ClientIP:       s.ClientIP,
		Metadata:       s.Metadata,
	}
}
