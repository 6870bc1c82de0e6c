package api

import (
	"context"
	"net/http"

	"github.com/seaport-io/gangway/pkg/httputil"
	"github.com/seaport-io/gangway/pkg/observability"
	"github.com/seaport-io/gangway/pkg/session"
	"github.com/seaport-io/gangway/pkg/token"
)

type contextKey string

const (
	claimsKey  contextKey = "sso_claims"
	sessionKey contextKey = "sso_session"
	serviceKey contextKey = "calling_service"
)

// claimsFrom returns the validated token claims injected by sessionAuth
func claimsFrom(ctx context.Context) *token.Claims {
	claims, _ := ctx.Value(claimsKey).(*token.Claims)
	return claims
}

// sessionFrom returns the live session injected by sessionAuth
func sessionFrom(ctx context.Context) *session.Session {
	sess, _ := ctx.Value(sessionKey).(*session.Session)
	return sess
}

// callingService returns the relying service authenticated by serviceAuth
func callingService(ctx context.Context) string {
	svc, _ := ctx.Value(serviceKey).(string)
	return svc
}

// sessionAuth guards the session-management endpoints. The caller presents
// its service token in X-SSO-Token or as a bearer credential; a token that
// fails validation is rejected with its denial reason.
func (s *Server) sessionAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("X-SSO-Token")
		if tokenString == "" {
			tokenString = httputil.BearerToken(r)
		}
		if tokenString == "" {
			httputil.WriteUnauthorized(w, "missing token")
			return
		}

		claims, sess, err := s.validator.ValidateOwner(r.Context(), tokenString)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		ctx = context.WithValue(ctx, sessionKey, sess)
		ctx = observability.WithUserID(ctx, claims.Subject)
		ctx = observability.WithSessionID(ctx, sess.SessionID)
		next(w, r.WithContext(ctx))
	}
}

// serviceAuth guards the endpoints relying services call directly. The
// caller authenticates with its registered API key as a bearer credential.
func (s *Server) serviceAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apiKey := httputil.BearerToken(r)
		if apiKey == "" {
			httputil.WriteUnauthorized(w, "missing service credential")
			return
		}

		service, ok := s.serviceKeys[apiKey]
		if !ok {
			httputil.WriteUnauthorized(w, "unknown service credential")
			return
		}

		ctx := context.WithValue(r.Context(), serviceKey, service)
		ctx = observability.WithService(ctx, service)
		next(w, r.WithContext(ctx))
	}
}
