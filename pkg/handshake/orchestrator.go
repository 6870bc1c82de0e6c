package handshake

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/seaport-io/gangway/pkg/audit"
	"github.com/seaport-io/gangway/pkg/config"
	"github.com/seaport-io/gangway/pkg/directory"
	"github.com/seaport-io/gangway/pkg/observability"
	"github.com/seaport-io/gangway/pkg/session"
	"github.com/seaport-io/gangway/pkg/token"
)

// Result is the outcome of a completed handshake: a ledger session, its
// signed token and the URL to send the browser back to.
type Result struct {
	SessionID   string `json:"session_id"`
	Token       string `json:"token"`
	Service     string `json:"service"`
	RedirectURL string `json:"redirect_url"`
}

// Orchestrator drives the federation handshake. Initiate parks a single-use
// state for an authenticated user heading to a relying service; Complete
// consumes it, checks the grant, opens the session and mints the token.
type Orchestrator struct {
	cfg      config.SSOConfig
	dir      directory.Directory
	sessions session.Store
	issuer   *token.Issuer
	states   StateStore
	auditor  audit.Logger
	metrics  *observability.Metrics
	logger   *observability.Logger
}

// NewOrchestrator creates a handshake orchestrator
func NewOrchestrator(cfg config.SSOConfig, dir directory.Directory, sessions session.Store,
	issuer *token.Issuer, states StateStore, auditor audit.Logger,
	metrics *observability.Metrics, logger *observability.Logger) *Orchestrator {
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	return &Orchestrator{
		cfg: cfg, dir: dir, sessions: sessions, issuer: issuer,
		states: states, auditor: auditor, metrics: metrics, logger: logger,
	}
}

// Initiate validates the target service, parks a single-use state and
// returns it. The redirect URI defaults to the service's base URL and must
// stay inside it.
func (o *Orchestrator) Initiate(ctx context.Context, userID int64, service, redirectURI string) (*State, error) {
	svc, ok := o.cfg.Services[service]
	if !ok {
		return nil, session.ErrInvalidService
	}

	if redirectURI == "" {
		redirectURI = svc.BaseURL
	} else if !strings.HasPrefix(redirectURI, svc.BaseURL) {
		return nil, ErrInvalidRedirect
	}

	stateToken, err := NewStateToken()
	if err != nil {
		return nil, err
	}

	state := &State{
		Token:       stateToken,
		UserID:      userID,
		Service:     service,
		RedirectURI: redirectURI,
		CreatedAt:   time.Now(),
	}
	if err := o.states.Put(ctx, state); err != nil {
		return nil, err
	}

	if o.metrics != nil {
		o.metrics.HandshakesTotal.WithLabelValues(service, "initiated").Inc()
	}
	if err := o.auditor.LogHandshake(ctx, audit.EventTypeHandshakeInitiate,
		&userID, service, "", audit.EventStatusSuccess, "handshake initiated"); err != nil {
		o.logger.WithError(err).Warn("failed to write audit event")
	}

	return state, nil
}

// Complete consumes the state and opens an audience-bound session for the
// user it was parked for. The state is gone after this call whether or not
// it succeeds, so a replayed token can never mint a second session.
func (o *Orchestrator) Complete(ctx context.Context, stateToken, clientIP, userAgent string) (*Result, error) {
	start := time.Now()

	state, err := o.states.Consume(ctx, stateToken)
	if err != nil {
		o.countHandshake("unknown", "invalid_state")
		if auditErr := o.auditor.LogHandshake(ctx, audit.EventTypeInvalidState,
			nil, "", "", audit.EventStatusDenied, "handshake state unknown or already consumed"); auditErr != nil {
			o.logger.WithError(auditErr).Warn("failed to write audit event")
		}
		return nil, err
	}

	svc, ok := o.cfg.Services[state.Service]
	if !ok {
		o.countHandshake(state.Service, "invalid_service")
		return nil, session.ErrInvalidService
	}

	user, err := o.dir.GetUser(ctx, state.UserID)
	if err != nil {
		o.countHandshake(state.Service, "error")
		return nil, err
	}

	hasGrant, err := o.dir.HasGrant(ctx, user.ID, state.Service)
	if err != nil {
		return nil, err
	}
	if !hasGrant {
		o.countHandshake(state.Service, "access_denied")
		if auditErr := o.auditor.LogHandshake(ctx, audit.EventTypeAccessDenied,
			&user.ID, state.Service, "", audit.EventStatusDenied, "no grant for service"); auditErr != nil {
			o.logger.WithError(auditErr).Warn("failed to write audit event")
		}
		return nil, ErrAccessDenied
	}

	now := time.Now()
	sess := &session.Session{
		SessionID:      uuid.NewString(),
		UserID:         user.ID,
		Service:        state.Service,
		Status:         session.StatusActive,
		Permissions:    directory.FilterServicePermissions(user.Permissions, svc.Permissions),
		IssuedAt:       now,
		ExpiresAt:      now.Add(o.cfg.SessionLifetime),
		LastActivityAt: now,
		ClientIP:       clientIP,
		UserAgent:      userAgent,
		Metadata: map[string]string{
			"login_time":   now.UTC().Format(time.RFC3339),
			"redirect_uri": state.RedirectURI,
		},
	}
	if err := o.sessions.Create(ctx, sess); err != nil {
		o.countHandshake(state.Service, "error")
		return nil, err
	}

	signed, err := o.issuer.Issue(ctx, sess, user)
	if err != nil {
		// The session must not outlive a failed issuance.
		if revokeErr := o.sessions.MarkRevoked(ctx, sess.SessionID); revokeErr != nil {
			o.logger.WithError(revokeErr).WithField("session_id", sess.SessionID).
				Error("failed to revoke session after issuance failure")
		}
		o.countHandshake(state.Service, "error")
		return nil, err
	}

	redirectURL, err := buildRedirectURL(state.RedirectURI, signed, sess.SessionID, stateToken)
	if err != nil {
		return nil, err
	}

	o.countHandshake(state.Service, "completed")
	if o.metrics != nil {
		o.metrics.HandshakeDuration.WithLabelValues(state.Service).Observe(time.Since(start).Seconds())
		o.metrics.SessionsCreatedTotal.WithLabelValues(state.Service).Inc()
	}
	if auditErr := o.auditor.LogHandshake(ctx, audit.EventTypeHandshakeComplete,
		&user.ID, state.Service, sess.SessionID, audit.EventStatusSuccess, "handshake completed"); auditErr != nil {
		o.logger.WithError(auditErr).Warn("failed to write audit event")
	}

	return &Result{
		SessionID:   sess.SessionID,
		Token:       signed,
		Service:     state.Service,
		RedirectURL: redirectURL,
	}, nil
}

func (o *Orchestrator) countHandshake(service, outcome string) {
	if o.metrics != nil {
		o.metrics.HandshakesTotal.WithLabelValues(service, outcome).Inc()
	}
}

// buildRedirectURL appends the token, session and echoed state to the
// service's redirect URI.
func buildRedirectURL(redirectURI, signed, sessionID, stateToken string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("failed to parse redirect uri: %w", err)
	}
	q := u.Query()
	q.Set("token", signed)
	q.Set("session_id", sessionID)
	q.Set("state", stateToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
