package handshake

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// State is the pending half of a handshake: created at initiation for an
// authenticated user, consumed exactly once at completion. The opaque token
// is the only handle to it.
type State struct {
	Token       string    `json:"token"`
	UserID      int64     `json:"user_id"`
	Service     string    `json:"service"`
	RedirectURI string    `json:"redirect_uri"`
	CreatedAt   time.Time `json:"created_at"`
}

var (
	// ErrInvalidState indicates the state token is unknown, expired or was
	// already consumed.
	ErrInvalidState = errors.New("invalid or expired handshake state")

	// ErrAccessDenied indicates the user holds no grant for the service.
	ErrAccessDenied = errors.New("access to service denied")

	// ErrInvalidRedirect indicates the redirect URI falls outside the
	// service's registered base URL.
	ErrInvalidRedirect = errors.New("redirect uri not allowed for service")
)

// StateStore holds pending handshake states. Consume must be atomic: of two
// concurrent calls with the same token exactly one receives the state.
type StateStore interface {
	// Put stores a pending state under its token for the store's TTL.
	Put(ctx context.Context, state *State) error

	// Consume removes and returns the state. Returns ErrInvalidState when
	// the token is unknown, already consumed or past its TTL.
	Consume(ctx context.Context, token string) (*State, error)
}

// NewStateToken returns a fresh random handshake token.
func NewStateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate state token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
