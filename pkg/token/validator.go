package token

import (
	"context"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/seaport-io/gangway/pkg/directory"
	"github.com/seaport-io/gangway/pkg/observability"
	"github.com/seaport-io/gangway/pkg/session"
)

// Validator checks a presented token for one relying service. Checks run in
// a fixed order and stop at the first failure: signature, audience, account
// status, then session status. The ledger is authoritative for expiry; the
// token's own exp claim is ignored because extensions move a session's
// expiry without re-minting its token.
type Validator struct {
	secret    []byte
	directory directory.Directory
	store     session.Store
	cache     *Cache
	metrics   *observability.Metrics
	logger    *observability.Logger
}

// NewValidator creates a token validator
func NewValidator(secret []byte, dir directory.Directory, store session.Store, cache *Cache, metrics *observability.Metrics, logger *observability.Logger) *Validator {
	return &Validator{secret: secret, directory: dir, store: store, cache: cache, metrics: metrics, logger: logger}
}

// Validate verifies a token presented to the named service and returns its
// claims together with the live session record.
func (v *Validator) Validate(ctx context.Context, tokenString, service string) (*Claims, *session.Session, error) {
	start := time.Now()
	claims, sess, err := v.validate(ctx, tokenString, service)
	if v.metrics != nil {
		v.metrics.ObserveValidation(service, ReasonFor(err), time.Since(start))
	}
	return claims, sess, err
}

// ValidateOwner verifies a token against the audience embedded in it. Used
// by the session-management endpoints, where the caller proves ownership
// with the token itself rather than a service API key.
func (v *Validator) ValidateOwner(ctx context.Context, tokenString string) (*Claims, *session.Session, error) {
	start := time.Now()
	claims, sess, err := v.validate(ctx, tokenString, "")
	if v.metrics != nil {
		service := "unknown"
		if claims != nil && len(claims.Audience) > 0 {
			service = claims.Audience[0]
		}
		v.metrics.ObserveValidation(service, ReasonFor(err), time.Since(start))
	}
	return claims, sess, err
}

func (v *Validator) validate(ctx context.Context, tokenString, service string) (*Claims, *session.Session, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return nil, nil, ErrTokenMalformed
	}

	if service == "" {
		if len(claims.Audience) != 1 {
			return nil, nil, ErrTokenMalformed
		}
		service = claims.Audience[0]
	} else if !hasAudience(claims.Audience, service) {
		return nil, nil, ErrWrongAudience
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, nil, ErrTokenMalformed
	}

	active, err := v.directory.IsActive(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	if !active {
		return nil, nil, directory.ErrUserInactive
	}

	// Deny hints short-circuit the ledger read but only after the account
	// check, so a deactivated user is always reported as inactive. A live
	// cache entry still goes to the ledger so grants never ride on stale
	// state.
	if v.cache != nil {
		entry, cacheErr := v.cache.Get(ctx, service, claims.SessionID)
		switch {
		case cacheErr == nil && entry.Denied():
			v.countCache("deny", true)
			return nil, nil, session.ErrSessionNotActive
		case cacheErr == nil:
			v.countCache("deny", false)
		case cacheErr != ErrCacheMiss:
			v.logger.WithError(cacheErr).Warn("token cache unavailable, falling through to ledger")
		}
	}

	sess, err := v.store.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if sess.Service != service {
		return nil, nil, ErrWrongAudience
	}
	if !sess.Live(time.Now()) {
		return nil, nil, session.ErrSessionNotActive
	}

	if err := v.store.TouchActivity(ctx, sess.SessionID, time.Now()); err != nil {
		v.logger.WithError(err).WithField("session_id", sess.SessionID).
			Warn("failed to record session activity")
	}

	return claims, sess, nil
}

func (v *Validator) countCache(kind string, hit bool) {
	if v.metrics == nil {
		return
	}
	if hit {
		v.metrics.CacheHitsTotal.WithLabelValues(kind).Inc()
	} else {
		v.metrics.CacheMissesTotal.WithLabelValues(kind).Inc()
	}
}

func hasAudience(aud jwt.ClaimStrings, service string) bool {
	for _, a := range aud {
		if a == service {
			return true
		}
	}
	return false
}
