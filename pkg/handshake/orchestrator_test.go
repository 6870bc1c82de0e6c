package handshake

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seaport-io/gangway/pkg/audit"
	"github.com/seaport-io/gangway/pkg/config"
	"github.com/seaport-io/gangway/pkg/directory"
	"github.com/seaport-io/gangway/pkg/observability"
	"github.com/seaport-io/gangway/pkg/session"
	"github.com/seaport-io/gangway/pkg/token"
)

type orchestratorFixture struct {
	orch  *Orchestrator
	dir   *directory.MemoryDirectory
	store *session.MemoryStore
	user  *directory.User
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	dir := directory.NewMemoryDirectory()
	store := session.NewMemoryStore()

	userID := dir.AddUser(directory.User{
		Username: "budi", Email: "budi@kkp.example", Active: true,
		Permissions: []string{"access spb", "manage spb"},
	}, "rahasia")
	user, err := dir.GetUser(context.Background(), userID)
	require.NoError(t, err)

	cfg := config.SSOConfig{
		SessionLifetime: 8 * time.Hour,
		HandshakeTTL:    10 * time.Minute,
		Services: map[string]config.ServiceConfig{
			"spb": {
				Name:        "spb",
				BaseURL:     "https://spb.example",
				Permissions: []string{"access spb", "manage spb"},
			},
			"shti": {
				Name:        "shti",
				BaseURL:     "https://shti.example",
				Permissions: []string{"access shti"},
			},
		},
	}

	issuer := token.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), "https://sso.pelabuhan.example", dir, nil, logger)
	orch := NewOrchestrator(cfg, dir, store, issuer,
		NewMemoryStateStore(cfg.HandshakeTTL), audit.NopLogger{}, nil, logger)

	return &orchestratorFixture{orch: orch, dir: dir, store: store, user: user}
}

func TestOrchestrator_FullHandshake(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t)

	state, err := f.orch.Initiate(ctx, f.user.ID, "spb", "https://spb.example/auth/callback")
	require.NoError(t, err)
	assert.Equal(t, "spb", state.Service)

	result, err := f.orch.Complete(ctx, state.Token, "10.0.0.1", "curl/8")
	require.NoError(t, err)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, "spb", result.Service)

	// the redirect carries the token, the session and the echoed state
	u, err := url.Parse(result.RedirectURL)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(result.RedirectURL, "https://spb.example/auth/callback"))
	assert.Equal(t, result.Token, u.Query().Get("token"))
	assert.Equal(t, result.SessionID, u.Query().Get("session_id"))
	assert.Equal(t, state.Token, u.Query().Get("state"))

	sess, err := f.store.Get(ctx, result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, session.StatusActive, sess.Status)
	assert.Equal(t, "spb", sess.Service)
	assert.Equal(t, []string{"access spb", "manage spb"}, sess.Permissions)
	assert.Equal(t, "10.0.0.1", sess.ClientIP)
}

func TestOrchestrator_StateIsSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t)

	state, err := f.orch.Initiate(ctx, f.user.ID, "spb", "")
	require.NoError(t, err)

	_, err = f.orch.Complete(ctx, state.Token, "", "")
	require.NoError(t, err)

	// replaying the same state must not mint a second session
	_, err = f.orch.Complete(ctx, state.Token, "", "")
	assert.ErrorIs(t, err, ErrInvalidState)

	sessions, err := f.store.ListActiveForUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestOrchestrator_UnknownService(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t)

	_, err := f.orch.Initiate(ctx, f.user.ID, "epit", "")
	assert.ErrorIs(t, err, session.ErrInvalidService)
}

func TestOrchestrator_RedirectOutsideBaseURL(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t)

	_, err := f.orch.Initiate(ctx, f.user.ID, "spb", "https://evil.example/phish")
	assert.ErrorIs(t, err, ErrInvalidRedirect)
}

func TestOrchestrator_AccessDenied(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t)

	// user has no grant for shti
	state, err := f.orch.Initiate(ctx, f.user.ID, "shti", "")
	require.NoError(t, err)

	_, err = f.orch.Complete(ctx, state.Token, "", "")
	assert.ErrorIs(t, err, ErrAccessDenied)

	sessions, err := f.store.ListActiveForUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestOrchestrator_InactiveUserGetsNoSession(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t)

	state, err := f.orch.Initiate(ctx, f.user.ID, "spb", "")
	require.NoError(t, err)

	// deactivated between initiation and completion
	f.dir.SetActive(f.user.ID, false)

	_, err = f.orch.Complete(ctx, state.Token, "", "")
	assert.ErrorIs(t, err, directory.ErrUserInactive)

	sessions, err := f.store.ListActiveForUser(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions, "failed issuance must not leave a live session")
}

func TestOrchestrator_TwoServicesTwoSessions(t *testing.T) {
	ctx := context.Background()
	f := newOrchestratorFixture(t)

	// grant shti as well
	f.user.Permissions = append(f.user.Permissions, "access shti")
	f.dir.AddUser(*f.user, "rahasia")

	stateA, err := f.orch.Initiate(ctx, f.user.ID, "spb", "")
	require.NoError(t, err)
	resA, err := f.orch.Complete(ctx, stateA.Token, "", "")
	require.NoError(t, err)

	stateB, err := f.orch.Initiate(ctx, f.user.ID, "shti", "")
	require.NoError(t, err)
	resB, err := f.orch.Complete(ctx, stateB.Token, "", "")
	require.NoError(t, err)

	assert.NotEqual(t, resA.SessionID, resB.SessionID)

	sessA, err := f.store.Get(ctx, resA.SessionID)
	require.NoError(t, err)
	sessB, err := f.store.Get(ctx, resB.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "spb", sessA.Service)
	assert.Equal(t, "shti", sessB.Service)
	assert.NotContains(t, sessB.Permissions, "access spb")
}
