package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/seaport-io/gangway/pkg/audit"
	"github.com/seaport-io/gangway/pkg/config"
	"github.com/seaport-io/gangway/pkg/observability"
	"github.com/seaport-io/gangway/pkg/session"
	"github.com/seaport-io/gangway/pkg/token"
)

// Manager owns session lifecycle transitions after issuance: revocation,
// extension and the periodic expiry sweep. Every transition goes through
// the ledger first; the token cache and relying services are told after.
type Manager struct {
	cfg      config.SSOConfig
	sessions session.Store
	cache    *token.Cache
	notifier *Notifier
	auditor  audit.Logger
	metrics  *observability.Metrics
	logger   *observability.Logger
	cron     *cron.Cron
}

// NewManager creates a lifecycle manager
func NewManager(cfg config.SSOConfig, sessions session.Store, cache *token.Cache,
	notifier *Notifier, auditor audit.Logger, metrics *observability.Metrics,
	logger *observability.Logger) *Manager {
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	return &Manager{
		cfg:      cfg,
		sessions: sessions,
		cache:    cache,
		notifier: notifier,
		auditor:  auditor,
		metrics:  metrics,
		logger:   logger,
	}
}

// RevokeSession revokes one of the user's sessions. The ownership check
// reports foreign session IDs as not found rather than confirming they
// exist.
func (m *Manager) RevokeSession(ctx context.Context, userID int64, sessionID string) error {
	sess, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return session.ErrNotFound
	}

	if err := m.sessions.MarkRevoked(ctx, sessionID); err != nil {
		return err
	}
	m.afterRevoke(ctx, sess)
	return nil
}

// RevokeAllForUser revokes every active session the user holds and returns
// how many were revoked. Used by the portal-wide logout.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	sessions, err := m.sessions.ListActiveForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, sess := range sessions {
		sess := sess
		g.Go(func() error {
			if err := m.sessions.MarkRevoked(gctx, sess.SessionID); err != nil {
				// Losing the race to a concurrent revocation is fine.
				if err == session.ErrNotFound || err == session.ErrSessionNotActive {
					return nil
				}
				return err
			}
			m.afterRevoke(gctx, sess)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return len(sessions), nil
}

// afterRevoke updates the cache, notifies the relying service and audits.
// All best-effort; the ledger transition already happened.
func (m *Manager) afterRevoke(ctx context.Context, sess *session.Session) {
	if m.cache != nil {
		if err := m.cache.MarkRevoked(ctx, sess.Service, sess.SessionID); err != nil {
			m.logger.WithError(err).WithField("session_id", sess.SessionID).
				Warn("failed to mark cache entry revoked")
		}
	}
	if m.notifier != nil {
		m.notifier.NotifyLogout(ctx, sess)
	}
	if m.metrics != nil {
		m.metrics.SessionsRevokedTotal.WithLabelValues(sess.Service).Inc()
	}
	if err := m.auditor.LogSession(ctx, audit.EventTypeSessionRevoke,
		&sess.UserID, sess.Service, sess.SessionID, audit.EventStatusSuccess, "session revoked"); err != nil {
		m.logger.WithError(err).Warn("failed to write audit event")
	}
}

// Extend pushes a session's expiry forward by the requested duration,
// capped at MaxExtension. The increment is added to the current expiry, not
// to the clock. The same ownership rule as RevokeSession applies.
func (m *Manager) Extend(ctx context.Context, userID int64, sessionID string, d time.Duration) (*session.Session, error) {
	if d <= 0 {
		d = m.cfg.SessionLifetime
	}
	if d > m.cfg.MaxExtension {
		d = m.cfg.MaxExtension
	}

	sess, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, session.ErrNotFound
	}

	extended, err := m.sessions.Extend(ctx, sessionID, d)
	if err != nil {
		return nil, err
	}

	if m.cache != nil {
		ttl := time.Until(extended.ExpiresAt)
		if err := m.cache.RefreshTTL(ctx, extended.Service, extended.SessionID, ttl); err != nil {
			m.logger.WithError(err).WithField("session_id", sessionID).
				Warn("failed to refresh cache ttl after extension")
		}
	}
	if m.metrics != nil {
		m.metrics.SessionsExtendedTotal.WithLabelValues(extended.Service).Inc()
	}
	if err := m.auditor.LogSession(ctx, audit.EventTypeSessionExtend,
		&extended.UserID, extended.Service, extended.SessionID, audit.EventStatusSuccess,
		fmt.Sprintf("session extended until %s", extended.ExpiresAt.UTC().Format(time.RFC3339))); err != nil {
		m.logger.WithError(err).Warn("failed to write audit event")
	}

	return extended, nil
}

// Sweep expires every overdue active session and fans the terminal state
// out to caches. Safe to run concurrently with revocations; the ledger's
// conditional updates resolve any race.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	expired, err := m.sessions.ExpireDue(ctx, time.Now())
	if err != nil {
		return 0, err
	}

	for _, sess := range expired {
		if m.cache != nil {
			if err := m.cache.MarkExpired(ctx, sess.Service, sess.SessionID); err != nil {
				m.logger.WithError(err).WithField("session_id", sess.SessionID).
					Warn("failed to mark cache entry expired")
			}
		}
		if m.metrics != nil {
			m.metrics.SessionsExpiredTotal.WithLabelValues(sess.Service).Inc()
		}
		if err := m.auditor.LogSession(ctx, audit.EventTypeSessionExpire,
			&sess.UserID, sess.Service, sess.SessionID, audit.EventStatusSuccess, "session expired by sweep"); err != nil {
			m.logger.WithError(err).Warn("failed to write audit event")
		}
	}

	if len(expired) > 0 {
		m.logger.WithField("count", len(expired)).Info("expiry sweep completed")
	}
	return len(expired), nil
}

// Start schedules the periodic expiry sweep
func (m *Manager) Start() error {
	if m.cron != nil {
		return fmt.Errorf("lifecycle manager already started")
	}

	c := cron.New()
	_, err := c.AddFunc(m.cfg.SweepSchedule, func() {
		if _, err := m.Sweep(context.Background()); err != nil {
			m.logger.WithError(err).Error("expiry sweep failed")
		}
		m.updateActiveGauge(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to schedule expiry sweep: %w", err)
	}

	c.Start()
	m.cron = c
	m.logger.WithField("schedule", m.cfg.SweepSchedule).Info("expiry sweep scheduled")
	return nil
}

// Stop halts the sweep scheduler and waits for a running sweep to finish
func (m *Manager) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
		m.cron = nil
	}
}

// Stats reports ledger counts for the monitoring endpoint
func (m *Manager) Stats(ctx context.Context) (*session.Stats, error) {
	stats, err := m.sessions.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(float64(stats.Active))
	}
	return stats, nil
}

func (m *Manager) updateActiveGauge(ctx context.Context) {
	if m.metrics == nil {
		return
	}
	if _, err := m.Stats(ctx); err != nil {
		m.logger.WithError(err).Warn("failed to refresh session stats")
	}
}
