package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/seaport-io/gangway/pkg/audit"
	"github.com/seaport-io/gangway/pkg/config"
	"github.com/seaport-io/gangway/pkg/directory"
	"github.com/seaport-io/gangway/pkg/handshake"
	"github.com/seaport-io/gangway/pkg/httputil"
	"github.com/seaport-io/gangway/pkg/lifecycle"
	"github.com/seaport-io/gangway/pkg/observability"
	"github.com/seaport-io/gangway/pkg/session"
	"github.com/seaport-io/gangway/pkg/token"
)

// Server is the HTTP surface of the SSO core. It exposes the primary login
// and handshake endpoints for users, the validate endpoint for relying
// services, and session-management endpoints for token holders.
type Server struct {
	cfg       config.SSOConfig
	router    *mux.Router
	dir       directory.Directory
	orch      *handshake.Orchestrator
	validator *token.Validator
	manager   *lifecycle.Manager
	sessions  session.Store
	auditor   audit.Logger
	metrics   *observability.Metrics
	logger    *logrus.Logger

	// serviceKeys maps registered API keys to service names.
	serviceKeys map[string]string
}

// NewServer creates the API server and wires its routes
func NewServer(cfg config.SSOConfig, dir directory.Directory, orch *handshake.Orchestrator,
	validator *token.Validator, manager *lifecycle.Manager, sessions session.Store,
	auditor audit.Logger, metrics *observability.Metrics, logger *logrus.Logger) *Server {
	if auditor == nil {
		auditor = audit.NopLogger{}
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &Server{
		cfg:         cfg,
		router:      mux.NewRouter(),
		dir:         dir,
		orch:        orch,
		validator:   validator,
		manager:     manager,
		sessions:    sessions,
		auditor:     auditor,
		metrics:     metrics,
		logger:      logger,
		serviceKeys: make(map[string]string),
	}
	for name, svc := range cfg.Services {
		if svc.APIKey != "" {
			s.serviceKeys[svc.APIKey] = name
		}
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.MaxBytesMiddleware(1<<20),
	)

	// Primary login and handshake
	s.router.HandleFunc("/auth/sso/login", s.login).Methods("POST")
	s.router.HandleFunc("/auth/sso/callback", s.callback).Methods("GET")

	// Relying-service endpoints (API-key authenticated)
	s.router.HandleFunc("/auth/sso/validate", s.serviceAuth(s.validate)).Methods("POST")
	s.router.HandleFunc("/auth/sso/stats", s.serviceAuth(s.stats)).Methods("GET")

	// Session management (token authenticated)
	s.router.HandleFunc("/auth/sso/sessions", s.sessionAuth(s.listSessions)).Methods("GET")
	s.router.HandleFunc("/auth/sso/sessions/revoke", s.sessionAuth(s.revokeSession)).Methods("POST")
	s.router.HandleFunc("/auth/sso/sessions/extend", s.sessionAuth(s.extendSession)).Methods("POST")
	s.router.HandleFunc("/auth/sso/logout", s.sessionAuth(s.logout)).Methods("POST")

	s.router.HandleFunc("/health", s.health).Methods("GET")
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// health handles GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}
