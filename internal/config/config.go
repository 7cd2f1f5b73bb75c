package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Observability ObservabilityConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
	WhatsApp      WhatsAppConfig
	Cache         CacheConfig
	Monitor       MonitorConfig
	Notifications NotificationConfig
}

// RateLimitConfig holds inbound webhook rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string
	Host            string
	Port            string
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// ObservabilityConfig holds logging and tracing configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string
	OTELEnabled    bool
	ServiceName    string
	ServiceVersion string
	OTLPEndpoint   string
	OTLPInsecure   bool
	SamplingRate   float64
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	// EncryptionKey is 64 hex characters or a passphrase
	EncryptionKey string
}

// WhatsAppConfig configures the outbound Graph API client
type WhatsAppConfig struct {
	BaseURL      string
	APIVersion   string
	ProbeTimeout time.Duration
	RPS          float64
	Burst        int
}

// CacheConfig holds cache lifetimes
type CacheConfig struct {
	CredentialTTL time.Duration
	PhoneTTL      time.Duration
	PreferenceTTL time.Duration
	DirectoryPage int
	HistoryLimit  int
}

// MonitorConfig configures the background health monitor
type MonitorConfig struct {
	Enabled     bool
	Interval    time.Duration
	TickTimeout time.Duration
	Concurrency int
}

// NotificationConfig configures outbound alert delivery
type NotificationConfig struct {
	Timeout   time.Duration
	Issuer    string
	EmailFrom string
}

// LoadEnv loads an optional dotenv file and its ".secret" sidecar. An empty
// path falls back to WHATSGATE_ENV, then ".env". Missing files are ignored
// and variables already set in the environment win.
func LoadEnv(path string) {
	if path == "" {
		path = os.Getenv("WHATSGATE_ENV")
	}
	if path == "" {
		path = ".env"
	}
	_ = godotenv.Load(path)
	_ = godotenv.Load(path + ".secret")
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     parseDuration("SERVER_READ_TIMEOUT", "15s"),
			WriteTimeout:    parseDuration("SERVER_WRITE_TIMEOUT", "15s"),
			IdleTimeout:     parseDuration("SERVER_IDLE_TIMEOUT", "60s"),
			ShutdownTimeout: parseDuration("SERVER_SHUTDOWN_TIMEOUT", "30s"),
			MaxBodyBytes:    int64(parseInt("SERVER_MAX_BODY_BYTES", 1<<20)),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", DriverMemory),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "whatsgate"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "whatsgate"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    parseInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    parseInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: parseDuration("DB_CONN_MAX_LIFETIME", "5m"),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			OTELEnabled:    parseBool("OTEL_ENABLED", false),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "whatsgate"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "0.1.0"),
			OTLPEndpoint:   getEnv("OTLP_ENDPOINT", ""),
			OTLPInsecure:   parseBool("OTLP_INSECURE", false),
			SamplingRate:   parseFloat("OTEL_SAMPLING_RATE", 1.0),
		},
		Security: SecurityConfig{
			EncryptionKey: getEnv("ENCRYPTION_KEY", ""),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: parseFloat("RATELIMIT_RPS", 50),
			Burst:             parseInt("RATELIMIT_BURST", 100),
		},
		WhatsApp: WhatsAppConfig{
			BaseURL:      getEnv("WHATSAPP_API_BASE_URL", "https://graph.facebook.com"),
			APIVersion:   getEnv("WHATSAPP_API_VERSION", "v21.0"),
			ProbeTimeout: parseDuration("WHATSAPP_PROBE_TIMEOUT", "10s"),
			RPS:          parseFloat("WHATSAPP_API_RPS", 20),
			Burst:        parseInt("WHATSAPP_API_BURST", 40),
		},
		Cache: CacheConfig{
			CredentialTTL: parseDuration("CACHE_CREDENTIAL_TTL", "15m"),
			PhoneTTL:      parseDuration("CACHE_PHONE_TTL", "5m"),
			PreferenceTTL: parseDuration("CACHE_PREFERENCES_TTL", "1m"),
			DirectoryPage: parseInt("DIRECTORY_PAGE_SIZE", 100),
			HistoryLimit:  parseInt("VALIDATION_HISTORY_LIMIT", 50),
		},
		Monitor: MonitorConfig{
			Enabled:     parseBool("MONITOR_ENABLED", true),
			Interval:    parseDuration("MONITOR_INTERVAL", "5m"),
			TickTimeout: parseDuration("MONITOR_TICK_TIMEOUT", "4m"),
			Concurrency: parseInt("MONITOR_CONCURRENCY", 4),
		},
		Notifications: NotificationConfig{
			Timeout:   parseDuration("NOTIFY_TIMEOUT", "5s"),
			Issuer:    getEnv("NOTIFY_ISSUER", "whatsgate"),
			EmailFrom: getEnv("NOTIFY_EMAIL_FROM", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required for the postgres driver")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverMemory, DriverPostgres, c.Database.Driver)
	}

	if c.Monitor.Interval <= 0 {
		return fmt.Errorf("MONITOR_INTERVAL must be positive")
	}
	if c.Monitor.Concurrency <= 0 {
		return fmt.Errorf("MONITOR_CONCURRENCY must be positive")
	}
	if c.Cache.CredentialTTL <= 0 || c.Cache.PhoneTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if c.WhatsApp.ProbeTimeout <= 0 {
		return fmt.Errorf("WHATSAPP_PROBE_TIMEOUT must be positive")
	}
	if c.Notifications.Timeout <= 0 {
		return fmt.Errorf("NOTIFY_TIMEOUT must be positive")
	}
	return nil
}

// DSN returns the postgres connection string
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func parseFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func parseBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func parseDuration(key string, defaultValue string) time.Duration {
	value := getEnv(key, defaultValue)
	d, err := time.ParseDuration(value)
	if err != nil {
		// Fallback to default
		d, _ = time.ParseDuration(defaultValue)
	}
	return d
}
