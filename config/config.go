package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Providers     ProvidersConfig
	Routing       RoutingConfig
	Oracle        OracleConfig
	Observability ObservabilityConfig
	CatalogPath   string
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AuthSecret      string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence
// over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// ProvidersConfig holds upstream origin configurations. An origin with an
// empty API key is not registered and its models never enter candidate sets.
type ProvidersConfig struct {
	OpenAI OpenAIConfig
	Gemini GeminiConfig
}

// OpenAIConfig holds OpenAI origin configuration
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// GeminiConfig holds Google Gemini origin configuration
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// RoutingConfig holds selection and execution strategy parameters
type RoutingConfig struct {
	FailureRateThreshold   float64
	FailureRateWindow      time.Duration
	TokenBuffer            int
	FloorTokens            int
	DefaultEstimatedTokens int
	MaxFallbackAttempts    int
	ProviderTimeout        time.Duration
	Temperature            float64
	PruneSchedule          string
}

// OracleConfig holds decision-oracle configuration
type OracleConfig struct {
	Origin  string
	Model   string
	Timeout time.Duration
}

// ObservabilityConfig holds logging and metrics configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New() (*Config, error) {
	// Load .env if present; real environments set variables directly
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		CatalogPath: getEnv("CATALOG_PATH", "catalog.yaml"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AuthSecret:      getEnv("AUTH_SECRET", ""),
		},
		Database: loadDatabaseConfig(),
		Providers: ProvidersConfig{
			OpenAI: OpenAIConfig{
				APIKey:  getEnv("OPENAI_API_KEY", ""),
				BaseURL: getEnv("OPENAI_BASE_URL", ""),
				Timeout: getEnvAsDuration("OPENAI_TIMEOUT", 60*time.Second),
			},
			Gemini: GeminiConfig{
				APIKey:  getEnv("GEMINI_API_KEY", ""),
				BaseURL: getEnv("GEMINI_BASE_URL", ""),
				Timeout: getEnvAsDuration("GEMINI_TIMEOUT", 60*time.Second),
			},
		},
		Routing: RoutingConfig{
			FailureRateThreshold:   getEnvAsFloat("ROUTING_FAILURE_RATE_THRESHOLD", 50.0),
			FailureRateWindow:      getEnvAsDuration("ROUTING_FAILURE_RATE_WINDOW", 10*time.Minute),
			TokenBuffer:            getEnvAsInt("ROUTING_TOKEN_BUFFER", 500),
			FloorTokens:            getEnvAsInt("ROUTING_FLOOR_TOKENS", 256),
			DefaultEstimatedTokens: getEnvAsInt("ROUTING_DEFAULT_ESTIMATED_TOKENS", 1000),
			MaxFallbackAttempts:    getEnvAsInt("ROUTING_MAX_FALLBACK_ATTEMPTS", 3),
			ProviderTimeout:        getEnvAsDuration("ROUTING_PROVIDER_TIMEOUT", 60*time.Second),
			Temperature:            getEnvAsFloat("ROUTING_TEMPERATURE", 0.7),
			PruneSchedule:          getEnv("ROUTING_PRUNE_SCHEDULE", "@hourly"),
		},
		Oracle: OracleConfig{
			Origin:  getEnv("ORACLE_ORIGIN", "openai"),
			Model:   getEnv("ORACLE_MODEL", "gpt-4o-mini"),
			Timeout: getEnvAsDuration("ORACLE_TIMEOUT", 15*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for consistency
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Routing.MaxFallbackAttempts < 1 {
		return fmt.Errorf("max fallback attempts must be at least 1, got %d", c.Routing.MaxFallbackAttempts)
	}
	if c.Routing.FailureRateThreshold < 0 || c.Routing.FailureRateThreshold > 100 {
		return fmt.Errorf("failure rate threshold must be a percentage, got %.1f", c.Routing.FailureRateThreshold)
	}
	if c.Routing.TokenBuffer < 0 {
		return fmt.Errorf("token buffer must be non-negative, got %d", c.Routing.TokenBuffer)
	}
	return nil
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		ConnectionString: getEnv("DATABASE_URL", ""),
		Host:             getEnv("DB_HOST", "localhost"),
		Port:             getEnvAsInt("DB_PORT", 5432),
		User:             getEnv("DB_USER", "arbiter"),
		Password:         getEnv("DB_PASSWORD", ""),
		Database:         getEnv("DB_NAME", "arbiter"),
		SSLMode:          getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// DSN returns the PostgreSQL connection string
func (d DatabaseConfig) DSN() string {
	if d.ConnectionString != "" {
		return d.ConnectionString
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode)
}

// LogString returns a connection description safe for logging (no password)
func (d DatabaseConfig) LogString() string {
	if d.ConnectionString != "" {
		if u, err := url.Parse(d.ConnectionString); err == nil {
			if u.User != nil {
				u.User = url.User(u.User.Username())
			}
			return u.Redacted()
		}
		return "database_url"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s", d.Host, d.Port, d.Database)
}

// Environment variable helpers

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
