package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Client        ClientConfig
	Auth          AuthConfig
	Server        ServerConfig
	Mock          MockConfig
	Observability ObservabilityConfig
	Environment   string
}

// ClientConfig holds rules API client configuration
type ClientConfig struct {
	BaseURL         string
	Timeout         time.Duration
	TenantID        string
	ValidateLocally bool
}

// AuthConfig holds bearer credential configuration.
// Token is a pre-issued bearer token; JWTSecret enables locally minted
// HS256 tokens for the development backend.
type AuthConfig struct {
	Token     string
	JWTSecret string
	Issuer    string
	Subject   string
	Email     string
	Role      string
	TokenTTL  time.Duration
}

// ServerConfig holds HTTP server configuration for the development backend
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// MockConfig holds development backend behaviour
type MockConfig struct {
	Delay       time.Duration
	Seed        bool
	RequireAuth bool
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load(".env")

	cfg := Load()

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Load reads the configuration from the environment without validating it
func Load() *Config {
	return &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Client: ClientConfig{
			BaseURL:         getEnv("RULES_API_BASE_URL", "http://localhost:8000"),
			Timeout:         getEnvAsDuration("RULES_API_TIMEOUT", 10*time.Second),
			TenantID:        getEnv("RULES_TENANT_ID", ""),
			ValidateLocally: getEnvAsBool("RULES_VALIDATE_LOCALLY", false),
		},
		Auth: AuthConfig{
			Token:     getEnv("AUTH_TOKEN", ""),
			JWTSecret: getEnv("AUTH_JWT_SECRET", ""),
			Issuer:    getEnv("AUTH_JWT_ISSUER", "tenant-rules-mock"),
			Subject:   getEnv("AUTH_SUBJECT", "rules-admin"),
			Email:     getEnv("AUTH_EMAIL", ""),
			Role:      getEnv("AUTH_ROLE", ""),
			TokenTTL:  getEnvAsDuration("AUTH_TOKEN_TTL", time.Hour),
		},
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Mock: MockConfig{
			Delay:       getEnvAsMillis("MOCK_API_DELAY", 0),
			Seed:        getEnvAsBool("MOCK_API_SEED", true),
			RequireAuth: getEnvAsBool("MOCK_API_REQUIRE_AUTH", true),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	u, err := url.Parse(c.Client.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("rules API base URL must be an absolute URL, got %q", c.Client.BaseURL)
	}
	if c.Client.Timeout <= 0 {
		return fmt.Errorf("rules API timeout must be positive")
	}

	if c.IsProduction() && c.Mock.RequireAuth && c.Auth.JWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required in production")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}
	switch c.Observability.LogFormat {
	case "json", "console", "text":
	default:
		return fmt.Errorf("unsupported log format %q", c.Observability.LogFormat)
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsMillis accepts a bare millisecond count ("500") or a duration ("500ms")
func getEnvAsMillis(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return getEnvAsDuration(key, defaultValue)
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
