package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store over a postgres sessions table. Every
// transition is a conditional UPDATE guarded on status = 'active', so a
// lost race surfaces as zero affected rows instead of a stale overwrite.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a postgres-backed session ledger
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the sessions table and its indexes if missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			session_id       UUID PRIMARY KEY,
			user_id          BIGINT NOT NULL,
			service          TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'active',
			permissions      TEXT[] NOT NULL DEFAULT '{}',
			issued_at        TIMESTAMPTZ NOT NULL,
			expires_at       TIMESTAMPTZ NOT NULL,
			last_activity_at TIMESTAMPTZ NOT NULL,
			revoked_at       TIMESTAMPTZ,
			client_ip        TEXT NOT NULL DEFAULT '',
			user_agent       TEXT NOT NULL DEFAULT '',
			metadata         JSONB NOT NULL DEFAULT '{}'
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_user_status ON sessions (user_id, status);
		CREATE INDEX IF NOT EXISTS idx_sessions_status_expires ON sessions (status, expires_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to ensure sessions schema: %w", err)
	}
	return nil
}

const sessionColumns = `session_id, user_id, service, status, permissions, issued_at, expires_at, last_activity_at, revoked_at, client_ip, user_agent, metadata`

func scanSession(row interface{ Scan(...interface{}) error }) (*Session, error) {
	var (
		sess Session
		meta []byte
	)
	err := row.Scan(&sess.SessionID, &sess.UserID, &sess.Service, &sess.Status,
		pq.Array(&sess.Permissions), &sess.IssuedAt, &sess.ExpiresAt,
		&sess.LastActivityAt, &sess.RevokedAt, &sess.ClientIP, &sess.UserAgent, &meta)
	if err != nil {
		return nil, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &sess.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode session metadata: %w", err)
		}
	}
	return &sess, nil
}

func encodeMetadata(meta map[string]string) ([]byte, error) {
	if len(meta) == 0 {
		return []byte(`{}`), nil
	}
	return json.Marshal(meta)
}

// Create inserts a new active session record
func (s *PostgresStore) Create(ctx context.Context, sess *Session) error {
	meta, err := encodeMetadata(sess.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode session metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, user_id, service, status, permissions, issued_at, expires_at, last_activity_at, client_ip, user_agent, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, sess.SessionID, sess.UserID, sess.Service, sess.Status,
		pq.Array(sess.Permissions), sess.IssuedAt, sess.ExpiresAt,
		sess.LastActivityAt, sess.ClientIP, sess.UserAgent, meta)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// Get fetches a session by ID
func (s *PostgresStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE session_id = $1`, sessionID)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch session: %w", err)
	}
	return sess, nil
}

// MarkRevoked moves an active session to revoked. Already revoked sessions
// are left as-is and the call succeeds; expired sessions cannot be revoked.
func (s *PostgresStore) MarkRevoked(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = $2, revoked_at = NOW()
		WHERE session_id = $1 AND status = $3
	`, sessionID, StatusRevoked, StatusActive)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if affected == 1 {
		return nil
	}

	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status == StatusRevoked {
		return nil
	}
	return ErrSessionNotActive
}

// MarkExpired moves an active session to expired. Terminal sessions are
// left untouched.
func (s *PostgresStore) MarkExpired(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET status = $2
		WHERE session_id = $1 AND status = $3
	`, sessionID, StatusExpired, StatusActive)
	if err != nil {
		return fmt.Errorf("failed to expire session: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to expire session: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Distinguish a missing session from one that already reached a
	// terminal state.
	if _, err := s.Get(ctx, sessionID); err != nil {
		return err
	}
	return nil
}

// Extend pushes an active session's expiry forward by d. The increment is
// applied to the stored expires_at inside the UPDATE, so concurrent
// extensions accumulate instead of clobbering each other.
func (s *PostgresStore) Extend(ctx context.Context, sessionID string, d time.Duration) (*Session, error) {
	if d <= 0 {
		sess, err := s.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if sess.Status != StatusActive {
			return nil, ErrSessionNotActive
		}
		return sess, nil
	}

	row := s.db.QueryRowContext(ctx, `
		UPDATE sessions SET expires_at = expires_at + make_interval(secs => $2)
		WHERE session_id = $1 AND status = $3
		RETURNING `+sessionColumns+`
	`, sessionID, d.Seconds(), StatusActive)

	sess, err := scanSession(row)
	if err == nil {
		return sess, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to extend session: %w", err)
	}

	// Distinguish a missing session from one in a terminal state.
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return nil, ErrSessionNotActive
}

// TouchActivity stamps last_activity_at on an active session. A miss is
// not an error; activity on a terminal session is simply dropped.
func (s *PostgresStore) TouchActivity(ctx context.Context, sessionID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET last_activity_at = $2
		WHERE session_id = $1 AND status = $3
	`, sessionID, at, StatusActive)
	if err != nil {
		return fmt.Errorf("failed to touch session activity: %w", err)
	}
	return nil
}

// ListActiveForUser returns the user's active sessions, newest first
func (s *PostgresStore) ListActiveForUser(ctx context.Context, userID int64) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND status = $2
		ORDER BY issued_at DESC
	`, userID, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ExpireDue marks overdue active sessions expired and returns them
func (s *PostgresStore) ExpireDue(ctx context.Context, now time.Time) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		UPDATE sessions SET status = $2
		WHERE status = $1 AND expires_at <= $3
		RETURNING `+sessionColumns+`
	`, StatusActive, StatusExpired, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire due sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// Stats reports ledger counts by status and service
func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ActivePerService: make(map[string]int64)}

	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM sessions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status Status
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch status {
		case StatusActive:
			stats.Active = count
		case StatusRevoked:
			stats.Revoked = count
		case StatusExpired:
			stats.Expired = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	svcRows, err := s.db.QueryContext(ctx, `
		SELECT service, COUNT(*) FROM sessions
		WHERE status = $1 GROUP BY service
	`, StatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to count active sessions per service: %w", err)
	}
	defer svcRows.Close()

	for svcRows.Next() {
		var (
			service string
			count   int64
		)
		if err := svcRows.Scan(&service, &count); err != nil {
			return nil, err
		}
		stats.ActivePerService[service] = count
	}
	if err := svcRows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
