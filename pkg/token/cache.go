package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/seaport-io/gangway/pkg/session"
)

// ErrCacheMiss indicates no entry exists for the session's cache key.
var ErrCacheMiss = errors.New("token cache miss")

// Entry is the cached record for one session token. Entries marked with a
// terminal status let validators deny without touching the ledger; a live
// entry is only a hint and never grants by itself.
type Entry struct {
	Token  string         `json:"token"`
	Status session.Status `json:"status"`
}

// Denied reports whether the entry short-circuits validation to a denial.
func (e *Entry) Denied() bool {
	return e.Status.Terminal()
}

// Cache keeps issued tokens in Redis keyed by service and session. Keys
// expire with the session, so a cold cache just falls through to the ledger.
type Cache struct {
	client *redis.Client
}

// NewCache creates a Redis-backed token cache
func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

// Key returns the cache key for a service/session pair.
func Key(service, sessionID string) string {
	return fmt.Sprintf("sso_token:%s:%s", service, sessionID)
}

// Put stores a freshly issued token with the session's remaining lifetime
func (c *Cache) Put(ctx context.Context, service, sessionID, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(Entry{Token: token, Status: session.StatusActive})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := c.client.Set(ctx, Key(service, sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache token: %w", err)
	}
	return nil
}

// Get fetches the cache entry for a session. Returns ErrCacheMiss when the
// key is absent or unreadable.
func (c *Cache) Get(ctx context.Context, service, sessionID string) (*Entry, error) {
	data, err := c.client.Get(ctx, Key(service, sessionID)).Result()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token cache: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, ErrCacheMiss
	}
	return &entry, nil
}

// denyHintTTL bounds how long a deny hint written over a cold key lives.
const denyHintTTL = time.Hour

// markStatus rewrites the entry's status in place, keeping the key's TTL.
// On a miss a bare deny hint is written instead so validators still get the
// short-circuit.
func (c *Cache) markStatus(ctx context.Context, service, sessionID string, status session.Status) error {
	ttl := time.Duration(redis.KeepTTL)

	entry, err := c.Get(ctx, service, sessionID)
	if err == ErrCacheMiss {
		entry = &Entry{}
		ttl = denyHintTTL
	} else if err != nil {
		return err
	}

	entry.Status = status
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	if err := c.client.Set(ctx, Key(service, sessionID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to update token cache: %w", err)
	}
	return nil
}

// MarkRevoked flips the entry to a revoked deny hint
func (c *Cache) MarkRevoked(ctx context.Context, service, sessionID string) error {
	return c.markStatus(ctx, service, sessionID, session.StatusRevoked)
}

// MarkExpired flips the entry to an expired deny hint
func (c *Cache) MarkExpired(ctx context.Context, service, sessionID string) error {
	return c.markStatus(ctx, service, sessionID, session.StatusExpired)
}

// Invalidate drops the entry entirely
func (c *Cache) Invalidate(ctx context.Context, service, sessionID string) error {
	if err := c.client.Del(ctx, Key(service, sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token cache: %w", err)
	}
	return nil
}

// RefreshTTL realigns the key's lifetime after a session extension
func (c *Cache) RefreshTTL(ctx context.Context, service, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return c.Invalidate(ctx, service, sessionID)
	}
	if err := c.client.Expire(ctx, Key(service, sessionID), ttl).Err(); err != nil {
		return fmt.Errorf("failed to refresh token cache ttl: %w", err)
	}
	return nil
}
