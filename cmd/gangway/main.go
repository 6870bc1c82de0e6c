package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/seaport-io/gangway/pkg/api"
	"github.com/seaport-io/gangway/pkg/audit"
	"github.com/seaport-io/gangway/pkg/config"
	"github.com/seaport-io/gangway/pkg/directory"
	"github.com/seaport-io/gangway/pkg/handshake"
	"github.com/seaport-io/gangway/pkg/lifecycle"
	"github.com/seaport-io/gangway/pkg/observability"
	"github.com/seaport-io/gangway/pkg/session"
	"github.com/seaport-io/gangway/pkg/token"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting gangway SSO core")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize OpenTelemetry: %v", err)
	}

	db, err := openPostgres(ctx, cfg.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer db.Close()
	logger.Info("Connected to postgres")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redisClient.Close()
	logger.Info("Connected to redis")

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	sessions := session.NewPostgresStore(db)
	if err := sessions.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to ensure session schema: %v", err)
	}

	auditor, err := audit.NewDBLogger(db)
	if err != nil {
		log.Fatalf("Failed to initialize audit logger: %v", err)
	}
	defer auditor.Close()

	dir := directory.NewSQLDirectory(db)
	secret := []byte(cfg.Token.SigningSecret)
	cache := token.NewCache(redisClient)
	issuer := token.NewIssuer(secret, cfg.Token.Issuer, dir, cache, logger)
	validator := token.NewValidator(secret, dir, sessions, cache, metrics, logger)
	states := handshake.NewRedisStateStore(redisClient, cfg.SSO.HandshakeTTL)

	orch := handshake.NewOrchestrator(cfg.SSO, dir, sessions, issuer, states, auditor, metrics, logger)
	notifier := lifecycle.NewNotifier(cfg.SSO, auditor, metrics, logger)
	manager := lifecycle.NewManager(cfg.SSO, sessions, cache, notifier, auditor, metrics, logger)
	if err := manager.Start(); err != nil {
		log.Fatalf("Failed to start lifecycle manager: %v", err)
	}
	defer manager.Stop()

	httpLogger := logrus.New()
	httpLogger.SetFormatter(&logrus.JSONFormatter{})
	server := api.NewServer(cfg.SSO, dir, orch, validator, manager, sessions, auditor, metrics, httpLogger)

	var handler http.Handler = server
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "gangway")
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthHandler(registry, db, redisClient, cfg.Observability.MetricsEnabled),
	}

	go reportDBStats(ctx, db, metrics)

	errCh := make(chan error, 2)
	go func() {
		logger.WithField("addr", apiServer.Addr).Info("API server listening")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("Health server listening")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("health server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		logger.WithError(err).Error("Server failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("API server shutdown failed")
	}
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Health server shutdown failed")
	}
	if err := observability.ShutdownOTel(shutdownCtx, providers, logger); err != nil {
		logger.WithError(err).Error("OpenTelemetry shutdown failed")
	}

	logger.Info("Shutdown complete")
}

// openPostgres opens the database pool and verifies connectivity
func openPostgres(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("postgres URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}

// healthHandler serves liveness, readiness and metrics on the internal port
func healthHandler(registry *prometheus.Registry, db *sql.DB, redisClient *redis.Client, metricsEnabled bool) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := redisClient.Ping(ctx).Err(); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	if metricsEnabled {
		mux.Handle("/metrics", observability.Handler(registry))
	}

	return mux
}

// reportDBStats refreshes the connection-pool gauges until ctx is done
func reportDBStats(ctx context.Context, db *sql.DB, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			metrics.DBConnectionsActive.Set(float64(stats.InUse))
			metrics.DBConnectionsIdle.Set(float64(stats.Idle))
		}
	}
}
