package config

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(*testing.T, *Config)
	}{
		{
			name: "default configuration",
			envVars: map[string]string{
				"ENVIRONMENT": "development",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "development", cfg.Environment)
				assert.Equal(t, "http://localhost:8000", cfg.Client.BaseURL)
				assert.Equal(t, 10*time.Second, cfg.Client.Timeout)
				assert.False(t, cfg.Client.ValidateLocally)
				assert.Equal(t, "0.0.0.0", cfg.Server.Host)
				assert.Equal(t, 8000, cfg.Server.Port)
				assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
				assert.Equal(t, time.Duration(0), cfg.Mock.Delay)
				assert.True(t, cfg.Mock.Seed)
				assert.True(t, cfg.Mock.RequireAuth)
				assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
				assert.Equal(t, "tenant-rules-mock", cfg.Auth.Issuer)
			},
		},
		{
			name: "client overrides",
			envVars: map[string]string{
				"RULES_API_BASE_URL":     "https://rules.example.com",
				"RULES_API_TIMEOUT":      "3s",
				"RULES_TENANT_ID":        "tenant-123",
				"RULES_VALIDATE_LOCALLY": "true",
				"AUTH_TOKEN":             "tok",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "https://rules.example.com", cfg.Client.BaseURL)
				assert.Equal(t, 3*time.Second, cfg.Client.Timeout)
				assert.Equal(t, "tenant-123", cfg.Client.TenantID)
				assert.True(t, cfg.Client.ValidateLocally)
				assert.Equal(t, "tok", cfg.Auth.Token)
			},
		},
		{
			name: "mock delay as milliseconds",
			envVars: map[string]string{
				"MOCK_API_DELAY": "500",
				"MOCK_API_SEED":  "false",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 500*time.Millisecond, cfg.Mock.Delay)
				assert.False(t, cfg.Mock.Seed)
			},
		},
		{
			name: "mock delay as duration",
			envVars: map[string]string{
				"MOCK_API_DELAY": "1.5s",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 1500*time.Millisecond, cfg.Mock.Delay)
			},
		},
		{
			name: "cors origins list",
			envVars: map[string]string{
				"CORS_ALLOWED_ORIGINS": "http://a.test, http://b.test,,",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.AllowedOrigins)
			},
		},
		{
			name: "PORT env var takes precedence over SERVER_PORT",
			envVars: map[string]string{
				"PORT":        "9443",
				"SERVER_PORT": "9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9443, cfg.Server.Port)
			},
		},
		{
			name: "SERVER_PORT env var when PORT not set",
			envVars: map[string]string{
				"SERVER_PORT": "9000",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9000, cfg.Server.Port)
			},
		},
		{
			name: "observability configuration",
			envVars: map[string]string{
				"LOG_LEVEL":       "debug",
				"LOG_FORMAT":      "console",
				"METRICS_ENABLED": "false",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Observability.LogLevel)
				assert.Equal(t, "console", cfg.Observability.LogFormat)
				assert.False(t, cfg.Observability.MetricsEnabled)
			},
		},
		{
			name: "production with secret",
			envVars: map[string]string{
				"ENVIRONMENT":     "production",
				"AUTH_JWT_SECRET": "s3cret",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.IsProduction())
				assert.False(t, cfg.IsDevelopment())
			},
		},
		{
			name: "production without secret",
			envVars: map[string]string{
				"ENVIRONMENT": "production",
			},
			wantErr: true,
		},
		{
			name: "relative base URL",
			envVars: map[string]string{
				"RULES_API_BASE_URL": "/api",
			},
			wantErr: true,
		},
		{
			name: "unknown log format",
			envVars: map[string]string{
				"LOG_FORMAT": "xml",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Clear environment
			os.Clearenv()

			// Set test environment variables
			for k, v := range tt.envVars {
				os.Setenv(k, v)
			}

			cfg, err := New(context.Background())

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)

			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Environment: "development",
			Client:      ClientConfig{BaseURL: "http://localhost:8000", Timeout: time.Second},
			Auth:        AuthConfig{TokenTTL: time.Hour},
			Observability: ObservabilityConfig{
				LogLevel:  "info",
				LogFormat: "json",
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{name: "valid development config", mutate: func(*Config) {}},
		{
			name:    "missing base URL",
			mutate:  func(c *Config) { c.Client.BaseURL = "" },
			wantErr: true,
			errMsg:  "base URL",
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.Client.Timeout = 0 },
			wantErr: true,
			errMsg:  "timeout",
		},
		{
			name:    "missing log level",
			mutate:  func(c *Config) { c.Observability.LogLevel = "" },
			wantErr: true,
			errMsg:  "log level is required",
		},
		{
			name: "production requires secret when auth enforced",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.Mock.RequireAuth = true
			},
			wantErr: true,
			errMsg:  "AUTH_JWT_SECRET",
		},
		{
			name: "production without enforced auth",
			mutate: func(c *Config) {
				c.Environment = "production"
				c.Mock.RequireAuth = false
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr {
				assert.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		want        bool
	}{
		{"production", "production", true},
		{"prod", "prod", true},
		{"development", "development", false},
		{"staging", "staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsProduction())
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	tests := []struct {
		name        string
		environment string
		want        bool
	}{
		{"development", "development", true},
		{"dev", "dev", true},
		{"production", "production", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Environment: tt.environment}
			assert.Equal(t, tt.want, cfg.IsDevelopment())
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{
		Host: "127.0.0.1",
		Port: 8000,
	}

	assert.Equal(t, "127.0.0.1:8000", cfg.Address())
}

func TestGetEnvAsBool(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue bool
		want         bool
	}{
		{"true", "true", false, true},
		{"false", "false", true, false},
		{"empty value", "", true, true},
		{"invalid bool", "not-a-bool", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_BOOL", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsBool("TEST_BOOL", tt.defaultValue))
		})
	}
}

func TestGetEnvAsMillis(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  time.Duration
	}{
		{"bare milliseconds", "250", 250 * time.Millisecond},
		{"duration string", "2s", 2 * time.Second},
		{"invalid", "soon", time.Second},
		{"empty", "", time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			if tt.value != "" {
				os.Setenv("TEST_DELAY", tt.value)
			}
			assert.Equal(t, tt.want, getEnvAsMillis("TEST_DELAY", time.Second))
		})
	}
}
