package lifecycle

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaport-io/gangway/pkg/audit"
	"github.com/seaport-io/gangway/pkg/config"
	"github.com/seaport-io/gangway/pkg/observability"
	"github.com/seaport-io/gangway/pkg/session"
	"github.com/seaport-io/gangway/pkg/token"
)

type notifyRecorder struct {
	mu       sync.Mutex
	payloads []logoutNotification
	auths    []string
	status   int
}

func (r *notifyRecorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var payload logoutNotification
	json.NewDecoder(req.Body).Decode(&payload)
	r.payloads = append(r.payloads, payload)
	r.auths = append(r.auths, req.Header.Get("Authorization"))
	if r.status != 0 {
		w.WriteHeader(r.status)
	}
}

func (r *notifyRecorder) received() []logoutNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]logoutNotification(nil), r.payloads...)
}

type managerFixture struct {
	mgr      *Manager
	store    *session.MemoryStore
	cache    *token.Cache
	recorder *notifyRecorder
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()

	recorder := &notifyRecorder{}
	server := httptest.NewServer(recorder)
	t.Cleanup(server.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := config.SSOConfig{
		SessionLifetime: 8 * time.Hour,
		MaxExtension:    4 * time.Hour,
		NotifyTimeout:   time.Second,
		SweepSchedule:   "@every 5m",
		Services: map[string]config.ServiceConfig{
			"spb": {
				Name:           "spb",
				BaseURL:        server.URL,
				APIKey:         "spb-api-key",
				LogoutCallback: server.URL + "/auth/sso/logout-notify",
			},
			"shti": {
				Name:    "shti",
				BaseURL: "https://shti.example",
				// no logout callback registered
			},
		},
	}

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	store := session.NewMemoryStore()
	cache := token.NewCache(client)
	notifier := NewNotifier(cfg, audit.NopLogger{}, nil, logger)
	mgr := NewManager(cfg, store, cache, notifier, audit.NopLogger{}, nil, logger)

	return &managerFixture{mgr: mgr, store: store, cache: cache, recorder: recorder}
}

func (f *managerFixture) openSession(t *testing.T, userID int64, service string, ttl time.Duration) *session.Session {
	t.Helper()

	now := time.Now()
	sess := &session.Session{
		SessionID:      uuid.NewString(),
		UserID:         userID,
		Service:        service,
		Status:         session.StatusActive,
		IssuedAt:       now,
		ExpiresAt:      now.Add(ttl),
		LastActivityAt: now,
	}
	require.NoError(t, f.store.Create(context.Background(), sess))
	require.NoError(t, f.cache.Put(context.Background(), service, sess.SessionID, "tok", ttl))
	return sess
}

func TestManager_RevokeSession(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)
	sess := f.openSession(t, 7, "spb", time.Hour)

	require.NoError(t, f.mgr.RevokeSession(ctx, 7, sess.SessionID))

	got, err := f.store.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusRevoked, got.Status)

	entry, err := f.cache.Get(ctx, "spb", sess.SessionID)
	require.NoError(t, err)
	assert.True(t, entry.Denied())

	payloads := f.recorder.received()
	require.Len(t, payloads, 1)
	assert.Equal(t, sess.SessionID, payloads[0].SessionID)
	assert.Equal(t, int64(7), payloads[0].UserID)
	assert.Equal(t, "logout", payloads[0].Action)
	assert.Equal(t, "Bearer spb-api-key", f.recorder.auths[0])
}

func TestManager_RevokeSession_WrongOwner(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)
	sess := f.openSession(t, 7, "spb", time.Hour)

	err := f.mgr.RevokeSession(ctx, 99, sess.SessionID)
	assert.ErrorIs(t, err, session.ErrNotFound)

	got, err := f.store.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, got.Status)
}

func TestManager_RevokeSession_Unknown(t *testing.T) {
	f := newManagerFixture(t)
	err := f.mgr.RevokeSession(context.Background(), 7, "no-such-session")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestManager_RevokeAllForUser(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)
	a := f.openSession(t, 7, "spb", time.Hour)
	b := f.openSession(t, 7, "shti", time.Hour)
	other := f.openSession(t, 8, "spb", time.Hour)

	count, err := f.mgr.RevokeAllForUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	for _, id := range []string{a.SessionID, b.SessionID} {
		got, err := f.store.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, session.StatusRevoked, got.Status)
	}

	got, err := f.store.Get(ctx, other.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, got.Status)

	// only spb has a callback registered
	payloads := f.recorder.received()
	require.Len(t, payloads, 1)
	assert.Equal(t, a.SessionID, payloads[0].SessionID)
}

func TestManager_Extend_CappedAtMaxExtension(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)
	sess := f.openSession(t, 7, "spb", time.Hour)

	extended, err := f.mgr.Extend(ctx, 7, sess.SessionID, 48*time.Hour)
	require.NoError(t, err)

	assert.True(t, extended.ExpiresAt.Equal(sess.ExpiresAt.Add(4*time.Hour)),
		"capped increment is added to the old expiry")
}

func TestManager_Extend_ShorterThanRemaining(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)
	sess := f.openSession(t, 7, "spb", 3*time.Hour)

	extended, err := f.mgr.Extend(ctx, 7, sess.SessionID, time.Hour)
	require.NoError(t, err)

	assert.True(t, extended.ExpiresAt.Equal(sess.ExpiresAt.Add(time.Hour)),
		"an increment below the remaining lifetime still extends")
}

func TestManager_Extend_RevokedSession(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)
	sess := f.openSession(t, 7, "spb", time.Hour)
	require.NoError(t, f.mgr.RevokeSession(ctx, 7, sess.SessionID))

	_, err := f.mgr.Extend(ctx, 7, sess.SessionID, time.Hour)
	assert.ErrorIs(t, err, session.ErrSessionNotActive)
}

func TestManager_Extend_WrongOwner(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)
	sess := f.openSession(t, 7, "spb", time.Hour)

	_, err := f.mgr.Extend(ctx, 99, sess.SessionID, time.Hour)
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestManager_SweepSkipsTerminalSessions(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)
	expired := f.openSession(t, 7, "spb", time.Hour)
	revoked := f.openSession(t, 7, "shti", time.Hour)

	require.NoError(t, f.store.MarkExpired(ctx, expired.SessionID))
	require.NoError(t, f.store.MarkRevoked(ctx, revoked.SessionID))

	count, err := f.mgr.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestManager_SweepExpiresOverdue(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)
	overdue := f.openSession(t, 7, "spb", -time.Minute)
	live := f.openSession(t, 7, "shti", time.Hour)

	count, err := f.mgr.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := f.store.Get(ctx, overdue.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusExpired, got.Status)

	entry, err := f.cache.Get(ctx, "spb", overdue.SessionID)
	require.NoError(t, err)
	assert.True(t, entry.Denied())

	stillLive, err := f.store.Get(ctx, live.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, stillLive.Status)
}

func TestManager_Stats(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)
	f.openSession(t, 7, "spb", time.Hour)
	f.openSession(t, 8, "spb", time.Hour)
	revoked := f.openSession(t, 7, "shti", time.Hour)
	require.NoError(t, f.mgr.RevokeSession(ctx, 7, revoked.SessionID))

	stats, err := f.mgr.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Active)
	assert.Equal(t, int64(1), stats.Revoked)
	assert.Equal(t, int64(2), stats.ActivePerService["spb"])
}

func TestNotifier_FailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	f := newManagerFixture(t)
	f.recorder.status = http.StatusInternalServerError

	sess := f.openSession(t, 7, "spb", time.Hour)

	// revocation must succeed even when the callback rejects it
	require.NoError(t, f.mgr.RevokeSession(ctx, 7, sess.SessionID))

	got, err := f.store.Get(ctx, sess.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusRevoked, got.Status)
}

func TestManager_StartStop(t *testing.T) {
	f := newManagerFixture(t)

	require.NoError(t, f.mgr.Start())
	assert.Error(t, f.mgr.Start(), "double start must fail")
	f.mgr.Stop()
}
