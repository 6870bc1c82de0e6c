package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/seaport-io/gangway/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Postgres configuration
	Postgres PostgresConfig

	// Redis configuration
	Redis RedisConfig

	// Token signing configuration
	Token TokenConfig

	// SSO behaviour and relying-service registry
	SSO SSOConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// PostgresConfig holds database connection configuration
type PostgresConfig struct {
	URL      string
	MaxConns int
	MinConns int
	Timeout  time.Duration
}

// RedisConfig holds redis connection configuration
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// TokenConfig holds credential signing configuration
type TokenConfig struct {
	// SigningSecret is the HMAC-SHA256 key. Relying services never verify
	// signatures themselves, they call /validate.
	SigningSecret string

	// Issuer is the iss claim stamped into every credential.
	Issuer string
}

// SSOConfig holds session lifetimes and the relying-service registry
type SSOConfig struct {
	// SessionLifetime is the initial expires_at horizon for new sessions.
	SessionLifetime time.Duration

	// MaxExtension bounds a single extend call.
	MaxExtension time.Duration

	// HandshakeTTL bounds how long an unconsumed login handshake stays valid.
	HandshakeTTL time.Duration

	// NotifyTimeout bounds the best-effort logout notification to a relying service.
	NotifyTimeout time.Duration

	// SweepSchedule is a cron expression for the expiry sweep.
	SweepSchedule string

	// LoginURL is where unauthenticated handshakes are redirected.
	LoginURL string

	// Services is the closed set of configured relying services, keyed by name.
	Services map[string]ServiceConfig
}

// ServiceConfig describes one configured relying service
type ServiceConfig struct {
	Name           string
	BaseURL        string
	APIKey         string
	LogoutCallback string
	Timeout        time.Duration

	// Permissions is the declared set of permission names relevant to this
	// service. The issuer snapshots the intersection of this set with the
	// user's permissions; nothing is matched by substring.
	Permissions []string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Postgres:      loadPostgresConfig(),
		Redis:         loadRedisConfig(),
		Token:         loadTokenConfig(),
		SSO:           loadSSOConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GANGWAY_HOST", "0.0.0.0"),
		Port:            getEnv("GANGWAY_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GANGWAY_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GANGWAY_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GANGWAY_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GANGWAY_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GANGWAY_HEALTH_PORT", "9090"),
	}
}

func loadPostgresConfig() PostgresConfig {
	return PostgresConfig{
		URL:      getEnv("GANGWAY_POSTGRES_URL", ""),
		MaxConns: getEnvInt("GANGWAY_POSTGRES_MAX_CONNS", 20),
		MinConns: getEnvInt("GANGWAY_POSTGRES_MIN_CONNS", 2),
		Timeout:  getEnvDuration("GANGWAY_POSTGRES_TIMEOUT", 5*time.Second),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:     getEnv("GANGWAY_REDIS_ADDR", "localhost:6379"),
		Password: getEnv("GANGWAY_REDIS_PASSWORD", ""),
		DB:       getEnvInt("GANGWAY_REDIS_DB", 0),
		PoolSize: getEnvInt("GANGWAY_REDIS_POOL_SIZE", 10),
	}
}

func loadTokenConfig() TokenConfig {
	return TokenConfig{
		SigningSecret: getEnv("GANGWAY_TOKEN_SECRET", ""),
		Issuer:        getEnv("GANGWAY_TOKEN_ISSUER", "https://sso.pelabuhan.example"),
	}
}

func loadSSOConfig() SSOConfig {
	cfg := SSOConfig{
		SessionLifetime: getEnvDuration("GANGWAY_SESSION_LIFETIME", 8*time.Hour),
		MaxExtension:    getEnvDuration("GANGWAY_MAX_EXTENSION", 8*time.Hour),
		HandshakeTTL:    getEnvDuration("GANGWAY_HANDSHAKE_TTL", 10*time.Minute),
		NotifyTimeout:   getEnvDuration("GANGWAY_NOTIFY_TIMEOUT", 10*time.Second),
		SweepSchedule:   getEnv("GANGWAY_SWEEP_SCHEDULE", "@every 5m"),
		LoginURL:        getEnv("GANGWAY_LOGIN_URL", "/login"),
		Services:        map[string]ServiceConfig{},
	}

	names := strings.Split(getEnv("GANGWAY_SERVICES", "sahbandar,spb,shti,epit"), ",")
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		cfg.Services[name] = loadServiceConfig(name)
	}

	return cfg
}

// loadServiceConfig loads one relying service from GANGWAY_SERVICE_<NAME>_* vars
func loadServiceConfig(name string) ServiceConfig {
	prefix := "GANGWAY_SERVICE_" + strings.ToUpper(name) + "_"

	svc := ServiceConfig{
		Name:           name,
		BaseURL:        getEnv(prefix+"URL", ""),
		APIKey:         getEnv(prefix+"API_KEY", ""),
		LogoutCallback: getEnv(prefix+"LOGOUT_CALLBACK", ""),
		Timeout:        getEnvDuration(prefix+"TIMEOUT", 30*time.Second),
	}

	// Default declared permission set: the access/manage grants for the
	// service itself. Deployments extend this via the env var.
	perms := getEnv(prefix+"PERMISSIONS", "access "+name+",manage "+name)
	for _, p := range strings.Split(perms, ",") {
		if p = strings.TrimSpace(p); p != "" {
			svc.Permissions = append(svc.Permissions, p)
		}
	}

	return svc
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("GANGWAY_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("GANGWAY_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("GANGWAY_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GANGWAY_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("GANGWAY_OTEL_SERVICE_NAME", "gangway-sso"),
		OTelServiceVersion: getEnv("GANGWAY_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("GANGWAY_OTEL_INSECURE", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Token.SigningSecret == "" {
		return fmt.Errorf("token signing secret is required")
	}
	if len(c.Token.SigningSecret) < 32 {
		return fmt.Errorf("token signing secret must be at least 32 bytes")
	}

	if len(c.SSO.Services) == 0 {
		return fmt.Errorf("at least one relying service must be configured")
	}
	if c.SSO.SessionLifetime <= 0 {
		return fmt.Errorf("session lifetime must be positive")
	}
	if c.SSO.MaxExtension <= 0 {
		return fmt.Errorf("max extension must be positive")
	}
	if c.SSO.HandshakeTTL <= 0 {
		return fmt.Errorf("handshake TTL must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ServiceNames returns the configured relying-service names
func (c *SSOConfig) ServiceNames() []string {
	names := make([]string, 0, len(c.Services))
	for name := range c.Services {
		names = append(names, name)
	}
	return names
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
