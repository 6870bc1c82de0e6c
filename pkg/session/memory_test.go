package session

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(userID int64, service string, ttl time.Duration) *Session {
	now := time.Now()
	return &Session{
		SessionID:      uuid.NewString(),
		UserID:         userID,
		Service:        service,
		Status:         StatusActive,
		Permissions:    []string{"access " + service},
		IssuedAt:       now,
		ExpiresAt:      now.Add(ttl),
		LastActivityAt: now,
	}
}

func TestMemoryStore_RevocationIsAbsorbing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sess := newTestSession(1, "spb", time.Hour)
	require.NoError(t, store.Create(ctx, sess))

	require.NoError(t, store.MarkRevoked(ctx, sess.SessionID))

	// a later expiry sweep must not overwrite revoked
	require.NoError(t, store.MarkExpired(ctx, sess.SessionID))
	got, err := store.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusRevoked, got.Status)
	assert.NotNil(t, got.RevokedAt)

	// nor can an extension resurrect it
	_, err = store.Extend(ctx, sess.SessionID, 24*time.Hour)
	assert.ErrorIs(t, err, ErrSessionNotActive)

	// revoking again stays a no-op
	require.NoError(t, store.MarkRevoked(ctx, sess.SessionID))
}

func TestMemoryStore_ExpiredCannotBeRevoked(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sess := newTestSession(1, "spb", time.Hour)
	require.NoError(t, store.Create(ctx, sess))
	require.NoError(t, store.MarkExpired(ctx, sess.SessionID))

	assert.ErrorIs(t, store.MarkRevoked(ctx, sess.SessionID), ErrSessionNotActive)
}

func TestMemoryStore_ExtendIsMonotonic(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sess := newTestSession(1, "spb", 8*time.Hour)
	require.NoError(t, store.Create(ctx, sess))

	// an increment below the remaining lifetime still extends
	got, err := store.Extend(ctx, sess.SessionID, time.Hour)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(sess.ExpiresAt.Add(time.Hour)),
		"new expiry is the old expiry plus the increment")

	got, err = store.Extend(ctx, sess.SessionID, 30*time.Minute)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(sess.ExpiresAt.Add(90*time.Minute)),
		"extensions accumulate")

	got, err = store.Extend(ctx, sess.SessionID, -time.Hour)
	require.NoError(t, err)
	assert.True(t, got.ExpiresAt.Equal(sess.ExpiresAt.Add(90*time.Minute)),
		"expiry must not move backwards")
}

func TestMemoryStore_ExpireDue(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	overdue := newTestSession(1, "spb", -time.Minute)
	live := newTestSession(1, "shti", time.Hour)
	require.NoError(t, store.Create(ctx, overdue))
	require.NoError(t, store.Create(ctx, live))

	expired, err := store.ExpireDue(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, overdue.SessionID, expired[0].SessionID)
	assert.Equal(t, StatusExpired, expired[0].Status)

	got, err := store.Get(ctx, live.SessionID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
}

func TestMemoryStore_ListActiveForUser(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	first := newTestSession(1, "spb", time.Hour)
	first.IssuedAt = time.Now().Add(-time.Minute)
	second := newTestSession(1, "shti", time.Hour)
	other := newTestSession(2, "spb", time.Hour)
	revoked := newTestSession(1, "epit", time.Hour)

	for _, s := range []*Session{first, second, other, revoked} {
		require.NoError(t, store.Create(ctx, s))
	}
	require.NoError(t, store.MarkRevoked(ctx, revoked.SessionID))

	sessions, err := store.ListActiveForUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, second.SessionID, sessions[0].SessionID, "newest first")
	assert.Equal(t, first.SessionID, sessions[1].SessionID)
}

func TestSessionLive(t *testing.T) {
	now := time.Now()
	sess := &Session{Status: StatusActive, ExpiresAt: now.Add(time.Minute)}
	assert.True(t, sess.Live(now))
	assert.False(t, sess.Live(now.Add(2*time.Minute)))

	sess.Status = StatusRevoked
	assert.False(t, sess.Live(now))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusActive.Terminal())
	assert.True(t, StatusRevoked.Terminal())
	assert.True(t, StatusExpired.Terminal())
}
