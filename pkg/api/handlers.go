package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/seaport-io/gangway/pkg/audit"
	"github.com/seaport-io/gangway/pkg/httputil"
	"github.com/seaport-io/gangway/pkg/token"
)

// login handles POST /auth/sso/login. It verifies the primary credential
// and parks a handshake toward the requested relying service.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Username, "username") ||
		!httputil.RequireNonEmpty(w, req.Password, "password") ||
		!httputil.RequireNonEmpty(w, req.Service, "service") {
		return
	}

	ctx := r.Context()
	clientIP := httputil.ClientIP(r)

	user, err := s.dir.VerifyPassword(ctx, req.Username, req.Password)
	if err != nil {
		if s.metrics != nil {
			s.metrics.LoginsTotal.WithLabelValues("failure").Inc()
		}
		if auditErr := s.auditor.LogAuthentication(ctx, audit.EventTypeAuthLoginFailed,
			nil, req.Username, audit.EventStatusFailure, "primary login failed"); auditErr != nil {
			s.logger.WithError(auditErr).Warn("failed to write audit event")
		}
		s.writeDomainError(w, err)
		return
	}

	if err := s.dir.RecordLogin(ctx, user.ID, clientIP); err != nil {
		s.logger.WithFields(logrus.Fields{"user_id": user.ID}).
			WithError(err).Warn("failed to record login")
	}
	if s.metrics != nil {
		s.metrics.LoginsTotal.WithLabelValues("success").Inc()
	}
	if auditErr := s.auditor.LogAuthentication(ctx, audit.EventTypeAuthLogin,
		&user.ID, user.Username, audit.EventStatusSuccess, "primary login"); auditErr != nil {
		s.logger.WithError(auditErr).Warn("failed to write audit event")
	}

	state, err := s.orch.Initiate(ctx, user.ID, req.Service, req.RedirectURI)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	httputil.WriteSuccess(w, LoginResponse{
		State:       state.Token,
		CallbackURL: "/auth/sso/callback?state=" + url.QueryEscape(state.Token),
		ExpiresIn:   int64(s.cfg.HandshakeTTL.Seconds()),
	})
}

// callback handles GET /auth/sso/callback. It consumes the parked state,
// opens the session and sends the browser to the relying service. API
// clients can ask for the result as JSON instead of a redirect.
func (s *Server) callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		httputil.WriteValidationError(w, "state is required")
		return
	}

	result, err := s.orch.Complete(r.Context(), state, httputil.ClientIP(r), r.UserAgent())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if httputil.ParseQueryBool(r, "json", false) {
		httputil.WriteSuccess(w, result)
		return
	}
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

// validate handles POST /auth/sso/validate for relying services. The
// audience is the authenticated caller, never a field in the body.
func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Token == "" {
		httputil.WriteValidationError(w, "token is required")
		return
	}

	ctx := r.Context()
	service := callingService(ctx)

	claims, sess, err := s.validator.Validate(ctx, req.Token, service)
	if err != nil {
		reason := token.ReasonFor(err)
		if auditErr := s.auditor.LogHandshake(ctx, audit.EventTypeTokenValidateFail,
			nil, service, "", audit.EventStatusDenied, reason); auditErr != nil {
			s.logger.WithError(auditErr).Warn("failed to write audit event")
		}
		httputil.WriteJSON(w, http.StatusUnauthorized, ValidateResponse{Valid: false, Reason: reason})
		return
	}

	userID, _ := strconv.ParseInt(claims.Subject, 10, 64)
	httputil.WriteSuccess(w, ValidateResponse{
		Valid: true,
		User: &UserInfo{
			ID:          userID,
			Username:    claims.Username,
			Email:       claims.Email,
			FullName:    claims.FullName,
			Roles:       claims.Roles,
			Permissions: claims.Permissions,
		},
		Session: sessionInfo(sess),
	})
}

// listSessions handles GET /auth/sso/sessions for the token holder
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		s.writeDomainError(w, token.ErrTokenMalformed)
		return
	}

	sessions, err := s.sessions.ListActiveForUser(r.Context(), userID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	infos := make([]*SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, sessionInfo(sess))
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"sessions": infos,
		"count":    len(infos),
	})
}

// revokeSession handles POST /auth/sso/sessions/revoke
func (s *Server) revokeSession(w http.ResponseWriter, r *http.Request) {
	var req RevokeRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		httputil.WriteValidationError(w, "session_id is required")
		return
	}

	claims := claimsFrom(r.Context())
	userID, _ := strconv.ParseInt(claims.Subject, 10, 64)

	if err := s.manager.RevokeSession(r.Context(), userID, req.SessionID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// extendSession handles POST /auth/sso/sessions/extend
func (s *Server) extendSession(w http.ResponseWriter, r *http.Request) {
	var req ExtendRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		httputil.WriteValidationError(w, "session_id is required")
		return
	}
	if req.DurationMinutes < 0 {
		httputil.WriteValidationError(w, "duration_minutes must not be negative")
		return
	}

	claims := claimsFrom(r.Context())
	userID, _ := strconv.ParseInt(claims.Subject, 10, 64)

	extended, err := s.manager.Extend(r.Context(), userID, req.SessionID,
		time.Duration(req.DurationMinutes)*time.Minute)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, sessionInfo(extended))
}

// logout handles POST /auth/sso/logout. With all=true it closes every
// active session the user holds; otherwise only the presented one.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	var req LogoutRequest
	// An empty body means a single-session logout.
	if r.ContentLength > 0 && !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	ctx := r.Context()
	claims := claimsFrom(ctx)
	userID, _ := strconv.ParseInt(claims.Subject, 10, 64)

	var revoked int
	if req.All {
		n, err := s.manager.RevokeAllForUser(ctx, userID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		revoked = n
	} else {
		if err := s.manager.RevokeSession(ctx, userID, claims.SessionID); err != nil {
			s.writeDomainError(w, err)
			return
		}
		revoked = 1
	}

	if auditErr := s.auditor.LogAuthentication(ctx, audit.EventTypeAuthLogout,
		&userID, claims.Username, audit.EventStatusSuccess,
		fmt.Sprintf("logout closed %d sessions", revoked)); auditErr != nil {
		s.logger.WithError(auditErr).Warn("failed to write audit event")
	}

	httputil.WriteSuccess(w, LogoutResponse{RevokedSessions: revoked})
}

// stats handles GET /auth/sso/stats for monitoring callers
func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.manager.Stats(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	httputil.WriteSuccess(w, stats)
}
