package directory

import (
	"context"
	"sync"
	"time"
)

// MemoryDirectory is an in-memory Directory for tests and local development.
type MemoryDirectory struct {
	mu        sync.RWMutex
	users     map[int64]*User
	passwords map[int64]string
	nextID    int64
}

// NewMemoryDirectory creates an empty in-memory directory
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:     make(map[int64]*User),
		passwords: make(map[int64]string),
		nextID:    1,
	}
}

// AddUser registers a user with a plaintext password and returns its ID
func (d *MemoryDirectory) AddUser(user User, password string) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if user.ID == 0 {
		user.ID = d.nextID
		d.nextID++
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	d.users[user.ID] = &user
	d.passwords[user.ID] = password
	return user.ID
}

// SetActive flips an account's active flag
func (d *MemoryDirectory) SetActive(userID int64, active bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[userID]; ok {
		u.Active = active
	}
}

// VerifyPassword authenticates against the stored plaintext password
func (d *MemoryDirectory) VerifyPassword(ctx context.Context, identifier, password string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for id, u := range d.users {
		if u.Username == identifier || u.Email == identifier {
			if d.passwords[id] != password {
				return nil, ErrInvalidCredentials
			}
			if !u.Active {
				return nil, ErrUserInactive
			}
			copy := *u
			return &copy, nil
		}
	}
	return nil, ErrInvalidCredentials
}

// GetUser fetches a user by ID
func (d *MemoryDirectory) GetUser(ctx context.Context, userID int64) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	copy := *u
	return &copy, nil
}

// IsActive reports whether the account is enabled
func (d *MemoryDirectory) IsActive(ctx context.Context, userID int64) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[userID]
	if !ok {
		return false, nil
	}
	return u.Active, nil
}

// RolesAndPermissions returns the user's grant sets
func (d *MemoryDirectory) RolesAndPermissions(ctx context.Context, userID int64) (*Grants, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	u, ok := d.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &Grants{Roles: append([]string(nil), u.Roles...), Permissions: append([]string(nil), u.Permissions...)}, nil
}

// HasGrant reports whether the user holds the service's access or manage grant
func (d *MemoryDirectory) HasGrant(ctx context.Context, userID int64, service string) (bool, error) {
	grants, err := d.RolesAndPermissions(ctx, userID)
	if err != nil {
		return false, err
	}
	return HasServiceGrant(grants.Permissions, service), nil
}

// RecordLogin stamps last login bookkeeping
func (d *MemoryDirectory) RecordLogin(ctx context.Context, userID int64, clientIP string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if u, ok := d.users[userID]; ok {
		now := time.Now()
		u.LastLoginAt = &now
		u.LastLoginIP = clientIP
	}
	return nil
}
