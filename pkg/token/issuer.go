package token

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/seaport-io/gangway/pkg/directory"
	"github.com/seaport-io/gangway/pkg/observability"
	"github.com/seaport-io/gangway/pkg/session"
)

// Issuer mints service tokens for active sessions. Tokens are HS256-signed
// and cached write-through so validators can find them without re-minting.
type Issuer struct {
	secret    []byte
	issuer    string
	directory directory.Directory
	cache     *Cache
	logger    *observability.Logger
}

// NewIssuer creates a token issuer. The issuer string is stamped into the
// iss claim of every minted token.
func NewIssuer(secret []byte, issuer string, dir directory.Directory, cache *Cache, logger *observability.Logger) *Issuer {
	return &Issuer{secret: secret, issuer: issuer, directory: dir, cache: cache, logger: logger}
}

// Issue signs a token bound to the session's service. The account's active
// flag is re-checked here even when the caller just authenticated it, so a
// deactivation between login and issuance still locks the user out.
func (i *Issuer) Issue(ctx context.Context, sess *session.Session, user *directory.User) (string, error) {
	active, err := i.directory.IsActive(ctx, user.ID)
	if err != nil {
		return "", fmt.Errorf("failed to check user status: %w", err)
	}
	if !active {
		return "", directory.ErrUserInactive
	}

	claims := &Claims{
		RegisteredClaims: NewClaims(sess.SessionID, strconv.FormatInt(user.ID, 10),
			i.issuer, sess.Service, sess.IssuedAt, sess.ExpiresAt),
		SessionID:   sess.SessionID,
		Username:    user.Username,
		Email:       user.Email,
		FullName:    user.FullName,
		Roles:       user.Roles,
		Permissions: sess.Permissions,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	if i.cache != nil {
		ttl := time.Until(sess.ExpiresAt)
		if err := i.cache.Put(ctx, sess.Service, sess.SessionID, signed, ttl); err != nil {
			// The cache is an optimization; issuance succeeds without it.
			i.logger.WithError(err).WithField("session_id", sess.SessionID).
				Warn("failed to cache issued token")
		}
	}

	return signed, nil
}
