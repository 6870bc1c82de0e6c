package directory

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// SQLDirectory implements Directory over the identity store's postgres schema
// (users, roles, permissions and their pivot tables).
type SQLDirectory struct {
	db *sql.DB
}

// NewSQLDirectory creates a new SQL-backed directory
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// VerifyPassword authenticates a primary login against the stored bcrypt hash
func (d *SQLDirectory) VerifyPassword(ctx context.Context, identifier, password string) (*User, error) {
	var (
		user User
		hash string
	)

	err := d.db.QueryRowContext(ctx, `
		SELECT id, username, email, full_name, department, status = 'active', password, created_at, last_login_at, last_login_ip
		FROM users
		WHERE username = $1 OR email = $1
	`, identifier).Scan(&user.ID, &user.Username, &user.Email, &user.FullName,
		&user.Department, &user.Active, &hash, &user.CreatedAt, &user.LastLoginAt, &user.LastLoginIP)
	if err == sql.ErrNoRows {
		// Burn a comparison anyway so missing and present accounts take the
		// same time.
		bcrypt.CompareHashAndPassword([]byte("$2a$10$000000000000000000000uGFBxZGKXReZsh3Jel3hGMbhUWzULNO"), []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		return nil, ErrUserInactive
	}

	grants, err := d.RolesAndPermissions(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = grants.Roles
	user.Permissions = grants.Permissions

	return &user, nil
}

// GetUser fetches a user with roles and permissions resolved
func (d *SQLDirectory) GetUser(ctx context.Context, userID int64) (*User, error) {
	var user User

	err := d.db.QueryRowContext(ctx, `
		SELECT id, username, email, full_name, department, status = 'active', created_at, last_login_at, last_login_ip
		FROM users
		WHERE id = $1
	`, userID).Scan(&user.ID, &user.Username, &user.Email, &user.FullName,
		&user.Department, &user.Active, &user.CreatedAt, &user.LastLoginAt, &user.LastLoginIP)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}

	grants, err := d.RolesAndPermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.Roles = grants.Roles
	user.Permissions = grants.Permissions

	return &user, nil
}

// IsActive reports whether the account is currently enabled
func (d *SQLDirectory) IsActive(ctx context.Context, userID int64) (bool, error) {
	var active bool
	err := d.db.QueryRowContext(ctx,
		`SELECT status = 'active' FROM users WHERE id = $1`, userID).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check user status: %w", err)
	}
	return active, nil
}

// RolesAndPermissions resolves the user's grant sets. Permissions come from
// both direct assignment and role membership.
func (d *SQLDirectory) RolesAndPermissions(ctx context.Context, userID int64) (*Grants, error) {
	grants := &Grants{}

	rows, err := d.db.QueryContext(ctx, `
		SELECT r.name
		FROM roles r
		JOIN user_roles ur ON ur.role_id = r.id
		WHERE ur.user_id = $1
		ORDER BY r.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		grants.Roles = append(grants.Roles, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	permRows, err := d.db.QueryContext(ctx, `
		SELECT DISTINCT p.name
		FROM permissions p
		LEFT JOIN role_permissions rp ON rp.permission_id = p.id
		LEFT JOIN user_roles ur ON ur.role_id = rp.role_id AND ur.user_id = $1
		LEFT JOIN user_permissions up ON up.permission_id = p.id AND up.user_id = $1
		WHERE ur.user_id IS NOT NULL OR up.user_id IS NOT NULL
		ORDER BY p.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query permissions: %w", err)
	}
	defer permRows.Close()

	for permRows.Next() {
		var name string
		if err := permRows.Scan(&name); err != nil {
			return nil, err
		}
		grants.Permissions = append(grants.Permissions, name)
	}
	if err := permRows.Err(); err != nil {
		return nil, err
	}

	return grants, nil
}

// HasGrant reports whether the user may obtain a session for the service.
// A grant is an exact "access <service>" or "manage <service>" permission.
func (d *SQLDirectory) HasGrant(ctx context.Context, userID int64, service string) (bool, error) {
	grants, err := d.RolesAndPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return HasServiceGrant(grants.Permissions, service), nil
}

// RecordLogin stamps last_login_at and last_login_ip
func (d *SQLDirectory) RecordLogin(ctx context.Context, userID int64, clientIP string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE users SET last_login_at = NOW(), last_login_ip = $2 WHERE id = $1
	`, userID, clientIP)
	if err != nil {
		return fmt.Errorf("failed to record login: %w", err)
	}
	return nil
}

// HasServiceGrant checks a permission set for the exact access/manage grant
// of a service. Exact match only; permission names that merely contain the
// service name do not count.
func HasServiceGrant(permissions []string, service string) bool {
	access := "access " + service
	manage := "manage " + service
	for _, p := range permissions {
		if p == access || p == manage {
			return true
		}
	}
	return false
}

// FilterServicePermissions snapshots the subset of a user's permissions that
// a relying service declares as relevant. Only exact matches against the
// declared set count.
func FilterServicePermissions(userPermissions, declared []string) []string {
	declaredSet := make(map[string]struct{}, len(declared))
	for _, p := range declared {
		declaredSet[p] = struct{}{}
	}

	var out []string
	for _, p := range userPermissions {
		if _, ok := declaredSet[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
