// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	GANGWAY_HOST="0.0.0.0"
//	GANGWAY_PORT="8080"
//	GANGWAY_HEALTH_PORT="9090"
//	GANGWAY_READ_TIMEOUT="15s"
//	GANGWAY_WRITE_TIMEOUT="15s"
//
// Storage settings:
//
//	GANGWAY_POSTGRES_URL="postgres://localhost/gangway"
//	GANGWAY_POSTGRES_MAX_CONNS="20"
//	GANGWAY_REDIS_ADDR="localhost:6379"
//	GANGWAY_REDIS_POOL_SIZE="10"
//
// Token and SSO settings:
//
//	GANGWAY_TOKEN_SECRET="<at least 32 bytes>"
//	GANGWAY_TOKEN_ISSUER="https://sso.pelabuhan.example"
//	GANGWAY_SESSION_LIFETIME="8h"
//	GANGWAY_HANDSHAKE_TTL="10m"
//	GANGWAY_SWEEP_SCHEDULE="@every 5m"
//
// Relying services:
//
//	GANGWAY_SERVICES="sahbandar,spb,shti,epit"
//	GANGWAY_SERVICE_SPB_URL="https://spb.pelabuhan.example"
//	GANGWAY_SERVICE_SPB_API_KEY="..."
//	GANGWAY_SERVICE_SPB_LOGOUT_CALLBACK="https://spb.pelabuhan.example/sso/logout"
//	GANGWAY_SERVICE_SPB_PERMISSIONS="access spb,manage spb,spb.reports.read"
//
// Observability settings:
//
//	GANGWAY_LOG_LEVEL="info"  # debug, info, warn, error
//	GANGWAY_METRICS_ENABLED="true"
//	GANGWAY_OTEL_ENABLED="true"
//	GANGWAY_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Services: %v\n", cfg.SSO.ServiceNames())
//
// # Related Packages
//
//   - pkg/session: Uses the relying-service registry for ledger validation
//   - pkg/observability: Uses observability configuration
package config
