package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/tenant-rules-admin/config"
	"github.com/upb/tenant-rules-admin/internal/observability"
	"github.com/upb/tenant-rules-admin/services/rules"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Client:      config.ClientConfig{BaseURL: "http://localhost:8000", Timeout: 10 * time.Second},
		Auth:        config.AuthConfig{JWTSecret: "test-secret", Issuer: "tenant-rules-mock", TokenTTL: time.Hour},
		Mock:        config.MockConfig{Seed: true, RequireAuth: true},
		Observability: config.ObservabilityConfig{
			LogLevel:       "debug",
			LogFormat:      "console",
			MetricsEnabled: true,
		},
	}
}

func TestNewDependencies(t *testing.T) {
	ctx := context.Background()

	t.Run("successful initialization with all components", func(t *testing.T) {
		deps, err := NewDependencies(ctx, testConfig(t), zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps)

		// Verify infrastructure
		assert.NotNil(t, deps.Config)
		assert.NotNil(t, deps.Logger)
		assert.NotNil(t, deps.Store)
		assert.NotNil(t, deps.Rules)
		assert.NotNil(t, deps.TxManager)
		assert.NotNil(t, deps.RuleService)
		assert.NotNil(t, deps.Registry)
		assert.NotNil(t, deps.AuthMiddleware)

		// Verify seeding
		list, err := deps.RuleService.List(ctx, rules.SeedTenantID)
		require.NoError(t, err)
		assert.Len(t, list, 6)

		assert.NoError(t, deps.Close(ctx))
	})

	t.Run("empty store and no auth", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Mock.Seed = false
		cfg.Mock.RequireAuth = false
		cfg.Observability.MetricsEnabled = false

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)

		list, err := deps.RuleService.List(ctx, rules.SeedTenantID)
		require.NoError(t, err)
		assert.Empty(t, list)

		assert.Nil(t, deps.AuthMiddleware)
		assert.Nil(t, deps.Registry)
		assert.IsType(t, observability.NopMetrics{}, deps.Metrics)
	})

	t.Run("auth without secret rejects everything", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Auth.JWTSecret = ""

		deps, err := NewDependencies(ctx, cfg, zaptest.NewLogger(t))
		require.NoError(t, err)
		require.NotNil(t, deps.AuthMiddleware)

		_, err = (&rejectAllValidator{}).ValidateToken(ctx, "anything")
		assert.Error(t, err)
	})

	t.Run("nil config", func(t *testing.T) {
		_, err := NewDependencies(ctx, nil, nil)
		assert.Error(t, err)
	})
}
