package lifecycle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/seaport-io/gangway/pkg/audit"
	"github.com/seaport-io/gangway/pkg/config"
	"github.com/seaport-io/gangway/pkg/observability"
	"github.com/seaport-io/gangway/pkg/session"
)

// logoutNotification is the payload POSTed to a relying service's logout
// callback when one of its sessions is revoked.
type logoutNotification struct {
	SessionID string `json:"session_id"`
	UserID    int64  `json:"user_id"`
	Action    string `json:"action"`
	Timestamp string `json:"timestamp"`
}

// Notifier tells relying services about revoked sessions so they can drop
// their local state. Notifications are strictly best-effort: a dead service
// is audited and counted, never allowed to fail the revocation.
type Notifier struct {
	cfg     config.SSOConfig
	client  *http.Client
	auditor audit.Logger
	metrics *observability.Metrics
	logger  *observability.Logger
}

// NewNotifier creates a logout notifier
func NewNotifier(cfg config.SSOConfig, auditor audit.Logger, metrics *observability.Metrics, logger *observability.Logger) *Notifier {
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	return &Notifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.NotifyTimeout},
		auditor: auditor,
		metrics: metrics,
		logger:  logger,
	}
}

// NotifyLogout posts the logout to the session's service callback
func (n *Notifier) NotifyLogout(ctx context.Context, sess *session.Session) {
	svc, ok := n.cfg.Services[sess.Service]
	if !ok || svc.LogoutCallback == "" {
		return
	}

	err := n.post(ctx, svc, sess)
	if err == nil {
		n.count(sess.Service, "ok")
		return
	}

	n.count(sess.Service, "failed")
	n.logger.WithError(err).WithFields(map[string]interface{}{
		"service":    sess.Service,
		"session_id": sess.SessionID,
	}).Warn("logout notification failed")
	if auditErr := n.auditor.LogSession(ctx, audit.EventTypeNotificationFail,
		&sess.UserID, sess.Service, sess.SessionID, audit.EventStatusFailure, err.Error()); auditErr != nil {
		n.logger.WithError(auditErr).Warn("failed to write audit event")
	}
}

func (n *Notifier) post(ctx context.Context, svc config.ServiceConfig, sess *session.Session) error {
	timeout := n.cfg.NotifyTimeout
	if svc.Timeout > 0 {
		timeout = svc.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(logoutNotification{
		SessionID: sess.SessionID,
		UserID:    sess.UserID,
		Action:    "logout",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.LogoutCallback, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if svc.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+svc.APIKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification rejected with status %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) count(service, outcome string) {
	if n.metrics != nil {
		n.metrics.NotificationsTotal.WithLabelValues(service, outcome).Inc()
	}
}
