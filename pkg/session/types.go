package session

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a session. Sessions start active and
// transition to exactly one terminal state. Revocation is absorbing: a
// revoked session never becomes active or expired afterwards.
type Status string

const (
	// StatusActive is the only state in which a session authorizes access.
	StatusActive Status = "active"
	// StatusRevoked marks a session ended by an explicit logout or an
	// administrative revocation.
	StatusRevoked Status = "revoked"
	// StatusExpired marks a session that passed its expiry without being
	// revoked first.
	StatusExpired Status = "expired"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusRevoked || s == StatusExpired
}

// Session is a ledger record binding one user to one relying service.
// A user holds at most one live session per service at a time; access to a
// second service mints a second session rather than widening this one.
type Session struct {
	SessionID      string     `json:"session_id"`
	UserID         int64      `json:"user_id"`
	Service        string     `json:"service"`
	Status         Status     `json:"status"`
	Permissions    []string   `json:"permissions,omitempty"`
	IssuedAt       time.Time  `json:"issued_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	LastActivityAt time.Time  `json:"last_activity_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	ClientIP       string     `json:"client_ip,omitempty"`
	UserAgent      string     `json:"user_agent,omitempty"`

	// Metadata is an opaque bag stamped at creation (login time, redirect
	// target) and never written afterwards.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Live reports whether the session is active and not past expiry at the
// given instant.
func (s *Session) Live(now time.Time) bool {
	return s.Status == StatusActive && now.Before(s.ExpiresAt)
}

var (
	// ErrNotFound indicates no session exists under the given ID.
	ErrNotFound = errors.New("session not found")

	// ErrSessionNotActive indicates the session exists but has reached a
	// terminal state.
	ErrSessionNotActive = errors.New("session is not active")

	// ErrInvalidService indicates the named relying service is not
	// registered with this deployment.
	ErrInvalidService = errors.New("invalid service")
)

// Stats summarizes the ledger for the monitoring endpoint.
type Stats struct {
	Active           int64            `json:"active_sessions"`
	Revoked          int64            `json:"revoked_sessions"`
	Expired          int64            `json:"expired_sessions"`
	ActivePerService map[string]int64 `json:"active_per_service"`
}

// Store is the session ledger. All state transitions go through it and are
// conditional on the current status, so concurrent writers cannot resurrect
// a terminal session.
type Store interface {
	// Create inserts a new active session record.
	Create(ctx context.Context, s *Session) error

	// Get fetches a session by ID. Returns ErrNotFound when absent.
	Get(ctx context.Context, sessionID string) (*Session, error)

	// MarkRevoked moves an active session to revoked. Revoking an already
	// revoked session is a no-op; revoking an expired session returns
	// ErrSessionNotActive.
	MarkRevoked(ctx context.Context, sessionID string) error

	// MarkExpired moves an active session to expired. Terminal sessions are
	// left untouched and the call succeeds, so the sweep can safely race
	// concurrent revocations.
	MarkExpired(ctx context.Context, sessionID string) error

	// Extend pushes an active session's expiry forward by d and returns the
	// updated record. The new expiry is the stored expires_at plus d, so
	// expiry only ever moves forward; a non-positive d leaves the session
	// unchanged.
	Extend(ctx context.Context, sessionID string, d time.Duration) (*Session, error)

	// TouchActivity stamps last_activity_at on an active session.
	TouchActivity(ctx context.Context, sessionID string, at time.Time) error

	// ListActiveForUser returns the user's active sessions across all
	// services, newest first.
	ListActiveForUser(ctx context.Context, userID int64) ([]*Session, error)

	// ExpireDue marks every active session with expires_at at or before now
	// as expired and returns the affected sessions.
	ExpireDue(ctx context.Context, now time.Time) ([]*Session, error)

	// Stats reports ledger counts by status and service.
	Stats(ctx context.Context) (*Stats, error)
}
