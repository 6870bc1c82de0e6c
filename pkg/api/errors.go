package api

import (
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/seaport-io/gangway/pkg/directory"
	"github.com/seaport-io/gangway/pkg/handshake"
	"github.com/seaport-io/gangway/pkg/httputil"
	"github.com/seaport-io/gangway/pkg/session"
	"github.com/seaport-io/gangway/pkg/token"
)

// writeDomainError maps the closed error taxonomy onto HTTP statuses.
// Anything outside it is an internal error; the detail stays in the log.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidCredentials):
		httputil.WriteUnauthorized(w, "invalid credentials")
	case errors.Is(err, directory.ErrUserInactive):
		httputil.WriteErrorReason(w, http.StatusForbidden, "user account is inactive", token.ReasonUserInactive)
	case errors.Is(err, directory.ErrUserNotFound):
		httputil.WriteNotFoundError(w, "user not found")
	case errors.Is(err, session.ErrInvalidService):
		httputil.WriteValidationError(w, "unknown service")
	case errors.Is(err, handshake.ErrInvalidRedirect):
		httputil.WriteValidationError(w, "redirect uri not allowed for service")
	case errors.Is(err, handshake.ErrInvalidState):
		httputil.WriteValidationError(w, "invalid or expired handshake state")
	case errors.Is(err, handshake.ErrAccessDenied):
		httputil.WriteForbidden(w, "access to service denied")
	case errors.Is(err, session.ErrNotFound):
		httputil.WriteNotFoundError(w, "session not found")
	case errors.Is(err, session.ErrSessionNotActive):
		httputil.WriteErrorReason(w, http.StatusConflict, "session is not active", token.ReasonSessionInactive)
	case errors.Is(err, token.ErrTokenMalformed):
		httputil.WriteErrorReason(w, http.StatusUnauthorized, "token rejected", token.ReasonMalformed)
	case errors.Is(err, token.ErrWrongAudience):
		httputil.WriteErrorReason(w, http.StatusUnauthorized, "token rejected", token.ReasonWrongAudience)
	default:
		s.logger.WithFields(logrus.Fields{"error": err}).Error("request failed")
		httputil.WriteInternalError(w)
	}
}
