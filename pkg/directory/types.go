package directory

import (
	"context"
	"errors"
	"time"
)

// User represents an account in the central identity store
type User struct {
	ID          int64      `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name,omitempty"`
	Department  string     `json:"department,omitempty"`
	Active      bool       `json:"active"`
	Roles       []string   `json:"roles,omitempty"`
	Permissions []string   `json:"permissions,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP string     `json:"last_login_ip,omitempty"`
}

// Grants holds a user's resolved role and permission sets
type Grants struct {
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

var (
	// ErrInvalidCredentials indicates a failed password check at primary login.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserInactive indicates the account exists but is disabled.
	ErrUserInactive = errors.New("user is inactive")

	// ErrUserNotFound indicates no account matches the identifier.
	ErrUserNotFound = errors.New("user not found")
)

// Directory is the boundary to the central identity store. The SSO core
// reads identity through it and never touches password hashes or role
// tables directly.
type Directory interface {
	// VerifyPassword authenticates a primary login. The identifier may be a
	// username or an email address. Returns ErrInvalidCredentials on a bad
	// password and ErrUserInactive for disabled accounts.
	VerifyPassword(ctx context.Context, identifier, password string) (*User, error)

	// GetUser fetches a user with roles and permissions resolved.
	GetUser(ctx context.Context, userID int64) (*User, error)

	// IsActive reports whether the account is currently enabled.
	IsActive(ctx context.Context, userID int64) (bool, error)

	// RolesAndPermissions resolves the user's grant sets.
	RolesAndPermissions(ctx context.Context, userID int64) (*Grants, error)

	// HasGrant reports whether the user may obtain a session for the named
	// relying service.
	HasGrant(ctx context.Context, userID int64, service string) (bool, error)

	// RecordLogin stamps last_login_at/last_login_ip after a successful
	// primary login. Best-effort bookkeeping.
	RecordLogin(ctx context.Context, userID int64, clientIP string) error
}
