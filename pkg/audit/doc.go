// Package audit records security-relevant events: primary logins,
// federation handshakes, token validation failures and session lifecycle
// transitions.
//
// Events carry a closed taxonomy of types (auth.*, sso.*) so downstream
// consumers can filter without string matching. Two logger backends are
// provided: DBLogger persists to the audit_logs table in postgres, and
// LogLogger tees events into the structured application log. Audit writes
// are best-effort; callers log failures but never fail the request that
// produced the event.
package audit
